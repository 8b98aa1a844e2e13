package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/internal/ai"
	"github.com/seehafer/fda-guidance-navigator/internal/config"
	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
	"github.com/seehafer/fda-guidance-navigator/middleware"
	"github.com/seehafer/fda-guidance-navigator/routes"
	"github.com/seehafer/fda-guidance-navigator/services"
)

func main() {
	// Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatal("Failed to load config:", err)
	}

	logger.InitLogger(cfg)

	// Connect to MongoDB
	mongoClient, err := config.ConnectMongoDB(cfg)
	if err != nil {
		log.Fatal("Failed to connect to MongoDB:", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		mongoClient.Disconnect(ctx)
	}()

	// Redis backs the rate limiter and the ingest queue
	rdb, err := config.NewRedisClient(cfg)
	if err != nil {
		log.Fatal("Failed to connect to Redis:", err)
	}
	defer rdb.Close()

	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build asynq Redis options:", err)
	}
	asynqClient := asynq.NewClient(redisOpt)
	defer asynqClient.Close()

	if cfg.TracingEnabled {
		shutdown, err := telemetry.InitTracer("fda-guidance-navigator", cfg.OTLPEndpoint, cfg.TraceSampleRatio)
		if err != nil {
			log.Fatal("Failed to init tracer:", err)
		}
		defer shutdown()
	}
	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	// AI clients
	embedder, err := ai.NewEmbedder(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	gemini, err := ai.NewGeminiClient(cfg.GeminiAPIKey, cfg.GeminiModel, cfg.GeminiTier, cfg.LLMMaxTokens, metrics)
	if err != nil {
		log.Fatal("Failed to init Gemini client:", err)
	}
	defer gemini.Close()

	// Services
	store := services.NewVectorStore(mongoClient, cfg.DBName)
	extractor := services.NewPDFExtractor(cfg.MaxDownloadSize)
	chunker := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	ingest := services.NewIngestService(store, extractor, chunker, embedder, metrics, cfg.IngestConcurrency)
	retrieval := services.NewRetrievalService(store, embedder, cfg.DefaultTopK, cfg.MaxTopK)
	sessions := services.NewSessionService(mongoClient, cfg.DBName, cfg.HistoryMaxTurns, cfg.HistoryTokenBudget)
	answer := services.NewAnswerService(retrieval, sessions, gemini, metrics)

	if cfg.SweepCron != "" {
		sweeper := services.NewSweeper(store, asynqClient)
		if err := sweeper.Start(cfg.SweepCron); err != nil {
			log.Fatal("Failed to start ingestion sweeper:", err)
		}
		defer sweeper.Stop()
	}

	// Initialize Gin router
	if cfg.GinMode == "release" {
		gin.SetMode(gin.ReleaseMode)
	}

	router := gin.New()
	router.Use(gin.Logger())
	router.Use(gin.Recovery())
	router.Use(middleware.CORSMiddleware(cfg.CORSOrigins))
	router.Use(middleware.RequestIDMiddleware())
	router.Use(middleware.TracingMiddleware())
	router.Use(middleware.EnrichTrace())
	router.Use(middleware.MetricsMiddleware(metrics))
	router.Use(middleware.RateLimitMiddleware(rdb, cfg))

	// Health check endpoint
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "healthy", "timestamp": time.Now()})
	})

	// Setup routes
	routes.SetupDocumentRoutes(router, store, ingest, asynqClient)
	routes.SetupQueryRoutes(router, answer, sessions)

	// Create HTTP server
	srv := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	// Start server in a goroutine
	go func() {
		log.Printf("Server starting on port %s", cfg.Port)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Failed to start server: %v", err)
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Println("Shutting down server...")

	// Graceful shutdown with timeout
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Fatal("Server forced to shutdown:", err)
	}

	log.Println("Server exited")
}
