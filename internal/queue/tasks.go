package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/models"
)

const (
	TaskIngestDocument = "ingest:document"
)

type IngestPayload struct {
	FDADocumentID string `json:"fda_document_id"`
	Force         bool   `json:"force"`
}

// NewIngestTask enqueues ingestion of a single guidance document. Retries
// handle transient fetch and provider failures, handler-side classification
// decides what is actually retryable.
func NewIngestTask(fdaDocumentID string, force bool) (*asynq.Task, error) {
	payload, err := json.Marshal(IngestPayload{
		FDADocumentID: fdaDocumentID,
		Force:         force,
	})
	if err != nil {
		return nil, err
	}

	return asynq.NewTask(
		TaskIngestDocument,
		payload,
		asynq.MaxRetry(3),
		asynq.Timeout(15*time.Minute),
		asynq.Queue("default"),
	), nil
}

// Ingestor runs the ingestion pipeline for one document.
type Ingestor interface {
	IngestDocument(ctx context.Context, fdaDocumentID string, force bool) (*models.IngestResult, error)
}

type TaskProcessor struct {
	ingestor Ingestor
}

func NewTaskProcessor(ingestor Ingestor) *TaskProcessor {
	return &TaskProcessor{ingestor: ingestor}
}

func (p *TaskProcessor) ProcessIngest(ctx context.Context, t *asynq.Task) error {
	var payload IngestPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("unmarshal failed: %v: %w", err, asynq.SkipRetry)
	}

	logger.Info("Ingesting document", "fda_document_id", payload.FDADocumentID, "force", payload.Force)

	result, err := p.ingestor.IngestDocument(ctx, payload.FDADocumentID, payload.Force)
	if err != nil {
		switch {
		case models.IsNotFound(err), models.IsValidation(err):
			// The document record is missing or malformed, retrying cannot help.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		case models.IsConflict(err):
			// Another worker holds the document, the later enqueue wins nothing.
			logger.Warn("Ingestion already in progress", "fda_document_id", payload.FDADocumentID)
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		case models.ErrorKindOf(err) == models.ErrorKindParse:
			// Parsing is deterministic for a given PDF, a retry reparses the
			// same bytes.
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		default:
			// fetch and provider failures are transient, let asynq retry
			return err
		}
	}

	logger.Info("Document ingested",
		"fda_document_id", payload.FDADocumentID,
		"outcome", result.Outcome,
		"chunks", result.ChunkCount)
	return nil
}

// Mux wires task types to their handlers.
func (p *TaskProcessor) Mux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.HandleFunc(TaskIngestDocument, p.ProcessIngest)
	return mux
}
