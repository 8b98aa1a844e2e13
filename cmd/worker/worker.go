package main

import (
	"context"
	"log"

	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/internal/ai"
	"github.com/seehafer/fda-guidance-navigator/internal/config"
	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/queue"
	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
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
	defer mongoClient.Disconnect(context.Background())

	metrics, err := telemetry.InitMetrics()
	if err != nil {
		log.Fatal("Failed to init metrics:", err)
	}

	embedder, err := ai.NewEmbedder(context.Background(), cfg)
	if err != nil {
		log.Fatal("Failed to init embedder:", err)
	}
	defer embedder.Close()

	store := services.NewVectorStore(mongoClient, cfg.DBName)
	extractor := services.NewPDFExtractor(cfg.MaxDownloadSize)
	chunker := services.NewChunker(cfg.ChunkSize, cfg.ChunkOverlap)
	ingest := services.NewIngestService(store, extractor, chunker, embedder, metrics, cfg.IngestConcurrency)

	// Redis options for Asynq
	redisOpt, err := config.AsynqRedisOpt(cfg)
	if err != nil {
		log.Fatal("Failed to build asynq Redis options:", err)
	}

	// Create Asynq server
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.IngestConcurrency,
			Queues: map[string]int{
				"default": 1,
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task failed", "type", task.Type(), "error", err)
			}),
		},
	)

	processor := queue.NewTaskProcessor(ingest)

	log.Println("Starting ingestion worker...")
	log.Printf("   Concurrency: %d", cfg.IngestConcurrency)
	log.Printf("   Redis: %s", redisOpt.Addr)

	// Start the server
	if err := server.Run(processor.Mux()); err != nil {
		log.Fatal("Failed to start worker:", err)
	}
}
