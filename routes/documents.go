package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/queue"
	"github.com/seehafer/fda-guidance-navigator/models"
	"github.com/seehafer/fda-guidance-navigator/services"
	"github.com/seehafer/fda-guidance-navigator/utils"
)

// SetupDocumentRoutes wires the catalog and ingestion endpoints.
func SetupDocumentRoutes(router *gin.Engine, store *services.VectorStore, ingest *services.IngestService, asynqClient *asynq.Client) {
	api := router.Group("/api")

	// Register or update a catalog entry
	api.POST("/documents", func(c *gin.Context) {
		var req models.RegisterDocumentRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		doc, err := store.RegisterDocument(c.Request.Context(), req)
		if err != nil {
			logger.Error("Failed to register document", "fda_document_id", req.FDADocumentID, "error", err)
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, doc)
	})

	// List the catalog with ingestion state
	api.GET("/documents", func(c *gin.Context) {
		docs, err := store.ListDocuments(c.Request.Context())
		if err != nil {
			logger.Error("Failed to list documents", "error", err)
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"documents": docs, "count": len(docs)})
	})

	// Corpus-wide ingestion summary
	api.GET("/ingest/status", func(c *gin.Context) {
		docs, err := store.ListDocuments(c.Request.Context())
		if err != nil {
			logger.Error("Failed to list documents", "error", err)
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, services.SummarizeCorpus(docs))
	})

	// Single document ingestion status
	api.GET("/documents/:id/status", func(c *gin.Context) {
		doc, err := store.GetDocument(c.Request.Context(), c.Param("id"))
		if err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, models.StatusResponse{
			DocumentID:   doc.FDADocumentID,
			Status:       doc.Status,
			ChunkCount:   doc.ChunkCount,
			Fingerprint:  doc.Fingerprint,
			ErrorKind:    doc.ErrorKind,
			ErrorMessage: doc.ErrorMessage,
		})
	})

	// Enqueue ingestion of one document
	api.POST("/ingest", func(c *gin.Context) {
		var req models.IngestRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		// Surface unknown documents now rather than in the worker log
		if _, err := store.GetDocument(c.Request.Context(), req.DocumentID); err != nil {
			utils.RespondWithDomainError(c, err)
			return
		}

		task, err := queue.NewIngestTask(req.DocumentID, req.Force)
		if err != nil {
			utils.RespondWithInternalError(c, "failed to build ingest task", nil)
			return
		}
		info, err := asynqClient.EnqueueContext(c.Request.Context(), task)
		if err != nil {
			logger.Error("Failed to enqueue ingestion", "fda_document_id", req.DocumentID, "error", err)
			utils.RespondWithInternalError(c, "failed to enqueue ingestion", nil)
			return
		}

		c.JSON(http.StatusAccepted, gin.H{
			"document_id": req.DocumentID,
			"task_id":     info.ID,
			"queue":       info.Queue,
		})
	})

	// Run the whole catalog inline and report per-document outcomes
	api.POST("/ingest/all", func(c *gin.Context) {
		var req models.IngestAllRequest
		if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
			utils.RespondWithBadRequest(c, "Invalid request data", gin.H{"error": err.Error()})
			return
		}

		summary, err := ingest.IngestAll(c.Request.Context(), req.Force)
		if err != nil {
			logger.Error("Batch ingestion failed", "error", err)
			utils.RespondWithDomainError(c, err)
			return
		}
		c.JSON(http.StatusOK, summary)
	})
}
