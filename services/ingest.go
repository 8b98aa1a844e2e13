package services

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
	"github.com/seehafer/fda-guidance-navigator/models"
	"github.com/seehafer/fda-guidance-navigator/utils"
)

const embedBatchSize = 64

var errNoChunks = errors.New("document produced no chunks")

// IngestStore is the slice of the vector store the pipeline writes through.
type IngestStore interface {
	ListDocuments(ctx context.Context) ([]models.SourceDocument, error)
	TryBeginIngest(ctx context.Context, fdaDocumentID string) (*models.SourceDocument, error)
	RestoreCompleted(ctx context.Context, fdaDocumentID string) error
	FailIngest(ctx context.Context, fdaDocumentID, kind, message string) error
	StageChunks(ctx context.Context, fdaDocumentID string, generation int64, chunks []models.Chunk) error
	CompleteIngest(ctx context.Context, fdaDocumentID string, generation int64, chunkCount int, fingerprint string) error
}

// Extractor fetches a document's bytes and turns them into per-page text.
type Extractor interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
	ExtractPages(content []byte) ([]models.PageText, error)
}

// ChunkEmbedder computes one vector per input text.
type ChunkEmbedder interface {
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// IngestService runs the fetch, parse, chunk, embed, store pipeline for
// guidance documents. A run stages a fresh chunk generation and commits it
// with one atomic document update, so queries either see the complete old
// chunk set or the complete new one.
type IngestService struct {
	store     IngestStore
	extractor Extractor
	chunker   *Chunker
	embedder  ChunkEmbedder
	metrics   *telemetry.Metrics

	concurrency int
}

func NewIngestService(store IngestStore, extractor Extractor, chunker *Chunker, embedder ChunkEmbedder, metrics *telemetry.Metrics, concurrency int) *IngestService {
	if concurrency < 1 {
		concurrency = 1
	}
	return &IngestService{
		store:       store,
		extractor:   extractor,
		chunker:     chunker,
		embedder:    embedder,
		metrics:     metrics,
		concurrency: concurrency,
	}
}

// IngestDocument runs the pipeline for one document. A completed document
// whose PDF bytes are unchanged is skipped unless force is set. Exactly one
// run can hold a document at a time; a second caller gets a ConflictError.
func (s *IngestService) IngestDocument(ctx context.Context, fdaDocumentID string, force bool) (*models.IngestResult, error) {
	tracer := otel.Tracer("ingest-service")
	ctx, span := tracer.Start(ctx, "ingest.document")
	defer span.End()
	span.SetAttributes(
		attribute.String("ingest.document_id", fdaDocumentID),
		attribute.Bool("ingest.force", force),
	)

	start := time.Now()

	prev, err := s.store.TryBeginIngest(ctx, fdaDocumentID)
	if err != nil {
		return nil, err
	}

	result, err := s.run(ctx, prev, force)
	if err != nil {
		kind := models.ErrorKindOf(err)
		if kind == "" {
			kind = models.ErrorKindProvider
		}
		// The failure must land even when the triggering request or task
		// context is already gone, otherwise the document stays claimed.
		failCtx, cancel := detachedContext()
		if failErr := s.store.FailIngest(failCtx, fdaDocumentID, kind, err.Error()); failErr != nil {
			logger.Error("Failed to record ingestion failure", "fda_document_id", fdaDocumentID, "error", failErr)
		}
		cancel()
		s.metrics.RecordIngest(time.Since(start).Seconds(), models.OutcomeFailed, 0)
		span.SetAttributes(attribute.String("ingest.outcome", models.OutcomeFailed))
		return nil, err
	}

	s.metrics.RecordIngest(time.Since(start).Seconds(), result.Outcome, int64(result.ChunkCount))
	span.SetAttributes(attribute.String("ingest.outcome", result.Outcome))
	return result, nil
}

// run executes the pipeline body after the document has been claimed. prev
// holds the document state from before the claim.
func (s *IngestService) run(ctx context.Context, prev *models.SourceDocument, force bool) (*models.IngestResult, error) {
	content, err := s.extractor.Fetch(ctx, prev.PDFURL)
	if err != nil {
		return nil, tagDocument(err, prev.FDADocumentID)
	}

	fingerprint := utils.ContentFingerprint(content)
	if !force && prev.Status == models.StatusCompleted && prev.Fingerprint == fingerprint {
		if err := s.store.RestoreCompleted(ctx, prev.FDADocumentID); err != nil {
			return nil, err
		}
		logger.Info("Document unchanged, skipping", "fda_document_id", prev.FDADocumentID)
		return &models.IngestResult{
			DocumentID: prev.FDADocumentID,
			Title:      prev.Title,
			Outcome:    models.OutcomeSkipped,
			ChunkCount: prev.ChunkCount,
		}, nil
	}

	pages, err := s.extractor.ExtractPages(content)
	if err != nil {
		return nil, tagDocument(err, prev.FDADocumentID)
	}

	chunks := s.chunker.Chunk(pages)
	if len(chunks) == 0 {
		return nil, &models.PipelineError{
			Kind:       models.ErrorKindParse,
			DocumentID: prev.FDADocumentID,
			Err:        errNoChunks,
		}
	}

	if err := s.embedChunks(ctx, chunks); err != nil {
		return nil, &models.PipelineError{
			Kind:       models.ErrorKindProvider,
			DocumentID: prev.FDADocumentID,
			Err:        err,
		}
	}

	generation := prev.ActiveGeneration + 1
	if err := s.store.StageChunks(ctx, prev.FDADocumentID, generation, chunks); err != nil {
		return nil, err
	}
	if err := s.store.CompleteIngest(ctx, prev.FDADocumentID, generation, len(chunks), fingerprint); err != nil {
		return nil, err
	}

	// Superseded generations are invisible already; the sweeper prunes them
	// once in-flight readers of the old document snapshot have drained.

	logger.Info("Document ingested",
		"fda_document_id", prev.FDADocumentID,
		"generation", generation,
		"pages", len(pages),
		"chunks", len(chunks))

	return &models.IngestResult{
		DocumentID: prev.FDADocumentID,
		Title:      prev.Title,
		Outcome:    models.OutcomeSucceeded,
		ChunkCount: len(chunks),
	}, nil
}

func (s *IngestService) embedChunks(ctx context.Context, chunks []models.Chunk) error {
	for start := 0; start < len(chunks); start += embedBatchSize {
		end := start + embedBatchSize
		if end > len(chunks) {
			end = len(chunks)
		}

		texts := make([]string, end-start)
		for i := start; i < end; i++ {
			texts[i-start] = chunks[i].Text
		}

		vectors, err := s.embedder.Embed(ctx, texts)
		if err != nil {
			return err
		}
		for i := start; i < end; i++ {
			chunks[i].Vector = vectors[i-start]
		}
	}
	return nil
}

// IngestAll walks the catalog with bounded concurrency. Without force only
// documents that are not yet completed are candidates; completed documents
// are left alone so a routine batch never takes them out of retrieval.
// Per-document failures are recorded in the summary, they never abort the
// batch.
func (s *IngestService) IngestAll(ctx context.Context, force bool) (*models.IngestSummary, error) {
	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return nil, err
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make([]models.IngestResult, 0, len(docs))
	)
	sem := make(chan struct{}, s.concurrency)

	for _, doc := range docs {
		if !force && doc.Status == models.StatusCompleted {
			continue
		}

		wg.Add(1)
		sem <- struct{}{}
		go func(fdaDocumentID, title string) {
			defer wg.Done()
			defer func() { <-sem }()

			result, err := s.IngestDocument(ctx, fdaDocumentID, force)
			if err != nil {
				result = &models.IngestResult{
					DocumentID: fdaDocumentID,
					Title:      title,
					Error:      err.Error(),
				}
				if models.IsConflict(err) {
					result.Outcome = models.OutcomeConflict
				} else {
					result.Outcome = models.OutcomeFailed
					result.ErrorKind = models.ErrorKindOf(err)
				}
			}

			mu.Lock()
			results = append(results, *result)
			mu.Unlock()
		}(doc.FDADocumentID, doc.Title)
	}
	wg.Wait()

	summary := &models.IngestSummary{Processed: len(results), Results: results}
	for _, r := range results {
		switch r.Outcome {
		case models.OutcomeSucceeded:
			summary.Succeeded++
		case models.OutcomeFailed:
			summary.Failed++
		default:
			summary.Skipped++
		}
	}
	return summary, nil
}

// tagDocument attaches the document id to a pipeline error that was built
// below the document layer.
func tagDocument(err error, fdaDocumentID string) error {
	if pe, ok := err.(*models.PipelineError); ok && pe.DocumentID == "" {
		pe.DocumentID = fdaDocumentID
	}
	return err
}
