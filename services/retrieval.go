package services

import (
	"context"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/seehafer/fda-guidance-navigator/internal/ai"
	"github.com/seehafer/fda-guidance-navigator/models"
)

// RetrievalService embeds a question and ranks active chunks against it.
type RetrievalService struct {
	store    *VectorStore
	embedder *ai.Embedder

	defaultTopK int
	maxTopK     int
}

func NewRetrievalService(store *VectorStore, embedder *ai.Embedder, defaultTopK, maxTopK int) *RetrievalService {
	return &RetrievalService{
		store:       store,
		embedder:    embedder,
		defaultTopK: defaultTopK,
		maxTopK:     maxTopK,
	}
}

// Retrieve returns the top chunks for question, optionally restricted to a
// single document. Documents that are failed or mid-ingestion contribute
// nothing, a query only ever sees committed chunk generations.
func (s *RetrievalService) Retrieve(ctx context.Context, question, fdaDocumentID string, topK int) ([]models.RetrievedChunk, error) {
	tracer := otel.Tracer("retrieval-service")
	ctx, span := tracer.Start(ctx, "retrieval.search")
	defer span.End()

	question = strings.TrimSpace(question)
	if question == "" {
		return nil, models.NewValidationError("question must not be empty")
	}
	if topK == 0 {
		topK = s.defaultTopK
	}
	if topK < 1 || topK > s.maxTopK {
		return nil, models.NewValidationError("top_k must be between 1 and %d", s.maxTopK)
	}

	// Restricting to an unknown document is a caller error, not an empty result
	if fdaDocumentID != "" {
		if _, err := s.store.GetDocument(ctx, fdaDocumentID); err != nil {
			return nil, err
		}
	}

	queryVector, err := s.embedder.EmbedQuery(ctx, question)
	if err != nil {
		return nil, &models.PipelineError{Kind: models.ErrorKindProvider, Err: err}
	}

	start := time.Now()
	chunks, err := s.store.Search(ctx, queryVector, fdaDocumentID, topK)
	if err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("retrieval.top_k", topK),
		attribute.Int("retrieval.results", len(chunks)),
		attribute.Float64("retrieval.seconds", time.Since(start).Seconds()),
	)
	return chunks, nil
}
