package services

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seehafer/fda-guidance-navigator/models"
	"github.com/seehafer/fda-guidance-navigator/utils"
)

// VectorStore owns the documents and chunks collections. Chunk visibility is
// generational: readers only ever see chunks whose generation matches the
// owning document's active_generation, so a re-ingestion swap is atomic from
// the reader's point of view.
type VectorStore struct {
	documents *mongo.Collection
	chunks    *mongo.Collection
}

func NewVectorStore(client *mongo.Client, dbName string) *VectorStore {
	db := client.Database(dbName)
	return &VectorStore{
		documents: db.Collection("documents"),
		chunks:    db.Collection("chunks"),
	}
}

// RegisterDocument upserts a catalog entry keyed by its FDA document number.
// A new entry starts at not_started; an existing one keeps its ingestion
// state and only the catalog-owned fields change.
func (s *VectorStore) RegisterDocument(ctx context.Context, req models.RegisterDocumentRequest) (*models.SourceDocument, error) {
	now := time.Now().UTC()

	update := bson.M{
		"$set": bson.M{
			"title":      req.Title,
			"summary":    req.Summary,
			"pdf_url":    req.PDFURL,
			"updated_at": now,
		},
		"$setOnInsert": bson.M{
			"_id":               uuid.NewString(),
			"fda_document_id":   req.FDADocumentID,
			"status":            models.StatusNotStarted,
			"active_generation": int64(0),
			"chunk_count":       0,
		},
	}

	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var doc models.SourceDocument
	err := s.documents.FindOneAndUpdate(ctx, bson.M{"fda_document_id": req.FDADocumentID}, update, opts).Decode(&doc)
	if err != nil {
		return nil, fmt.Errorf("failed to register document: %w", err)
	}
	return &doc, nil
}

// GetDocument looks up a catalog entry by FDA document number.
func (s *VectorStore) GetDocument(ctx context.Context, fdaDocumentID string) (*models.SourceDocument, error) {
	var doc models.SourceDocument
	err := s.documents.FindOne(ctx, bson.M{"fda_document_id": fdaDocumentID}).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, &models.NotFoundError{Resource: "document", ID: fdaDocumentID}
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// ListDocuments returns the whole catalog ordered by FDA document number.
func (s *VectorStore) ListDocuments(ctx context.Context) ([]models.SourceDocument, error) {
	cursor, err := s.documents.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "fda_document_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var docs []models.SourceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	return docs, nil
}

// TryBeginIngest moves a document into in_progress. The transition is a
// single compare-and-set on the current status, so two concurrent runs for
// the same document cannot both win; the loser gets a ConflictError.
func (s *VectorStore) TryBeginIngest(ctx context.Context, fdaDocumentID string) (*models.SourceDocument, error) {
	filter := bson.M{
		"fda_document_id": fdaDocumentID,
		"status": bson.M{"$in": []string{
			models.StatusNotStarted,
			models.StatusCompleted,
			models.StatusFailed,
		}},
	}
	update := bson.M{
		"$set": bson.M{
			"status":     models.StatusInProgress,
			"updated_at": time.Now().UTC(),
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.Before)

	var doc models.SourceDocument
	err := s.documents.FindOneAndUpdate(ctx, filter, update, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		// Either unknown or already in progress, distinguish for the caller
		if _, getErr := s.GetDocument(ctx, fdaDocumentID); getErr != nil {
			return nil, getErr
		}
		return nil, models.NewConflictError("ingestion already in progress for document %s", fdaDocumentID)
	}
	if err != nil {
		return nil, err
	}
	return &doc, nil
}

// CompleteIngest commits a staged generation. Flipping active_generation in
// the same update that sets status completed is the atomic swap point.
func (s *VectorStore) CompleteIngest(ctx context.Context, fdaDocumentID string, generation int64, chunkCount int, fingerprint string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set": bson.M{
			"status":            models.StatusCompleted,
			"active_generation": generation,
			"chunk_count":       chunkCount,
			"fingerprint":       fingerprint,
			"ingested_at":       now,
			"updated_at":        now,
		},
		"$unset": bson.M{
			"error_kind":    "",
			"error_message": "",
		},
	}
	result, err := s.documents.UpdateOne(ctx, bson.M{"fda_document_id": fdaDocumentID}, update)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return &models.NotFoundError{Resource: "document", ID: fdaDocumentID}
	}
	return nil
}

// RestoreCompleted reverts an in_progress document back to completed without
// touching its generation, used for the fingerprint-match skip path.
func (s *VectorStore) RestoreCompleted(ctx context.Context, fdaDocumentID string) error {
	_, err := s.documents.UpdateOne(ctx,
		bson.M{"fda_document_id": fdaDocumentID, "status": models.StatusInProgress},
		bson.M{"$set": bson.M{
			"status":     models.StatusCompleted,
			"updated_at": time.Now().UTC(),
		}},
	)
	return err
}

// FailIngest records a failed run. The previous active generation stays
// untouched but the failed status removes the document from retrieval.
func (s *VectorStore) FailIngest(ctx context.Context, fdaDocumentID, kind, message string) error {
	update := bson.M{
		"$set": bson.M{
			"status":        models.StatusFailed,
			"error_kind":    kind,
			"error_message": message,
			"updated_at":    time.Now().UTC(),
		},
	}
	_, err := s.documents.UpdateOne(ctx, bson.M{"fda_document_id": fdaDocumentID}, update)
	return err
}

// StageChunks writes a full generation of chunks. The generation is invisible
// to readers until CompleteIngest flips active_generation to it.
func (s *VectorStore) StageChunks(ctx context.Context, fdaDocumentID string, generation int64, chunks []models.Chunk) error {
	if len(chunks) == 0 {
		return fmt.Errorf("refusing to stage empty chunk set for document %s", fdaDocumentID)
	}

	docs := make([]interface{}, len(chunks))
	for i, chunk := range chunks {
		compressed, algorithm, err := utils.CompressText(chunk.Text)
		if err != nil {
			return fmt.Errorf("failed to compress chunk %d: %w", chunk.Ordinal, err)
		}

		chunk.ID = uuid.NewString()
		chunk.DocumentID = fdaDocumentID
		chunk.Generation = generation
		if algorithm != utils.CompressionNone {
			chunk.Text = base64.StdEncoding.EncodeToString(compressed)
			chunk.Compressed = true
			chunk.Compression = string(algorithm)
		}
		docs[i] = chunk
	}

	_, err := s.chunks.InsertMany(ctx, docs)
	return err
}

// ReclaimAbandoned fails documents stuck in in_progress longer than
// olderThan, typically left behind by a crashed or cancelled run. The failed
// status makes them claimable and sweepable again.
func (s *VectorStore) ReclaimAbandoned(ctx context.Context, olderThan time.Duration) (int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	result, err := s.documents.UpdateMany(ctx,
		bson.M{
			"status":     models.StatusInProgress,
			"updated_at": bson.M{"$lt": cutoff},
		},
		bson.M{"$set": bson.M{
			"status":        models.StatusFailed,
			"error_kind":    models.ErrorKindFetch,
			"error_message": "ingestion run abandoned before completion",
			"updated_at":    time.Now().UTC(),
		}},
	)
	if err != nil {
		return 0, err
	}
	return result.ModifiedCount, nil
}

// PruneGenerations deletes every chunk generation except keep. Stale staged
// generations from crashed runs go with them.
func (s *VectorStore) PruneGenerations(ctx context.Context, fdaDocumentID string, keep int64) error {
	_, err := s.chunks.DeleteMany(ctx, bson.M{
		"document_id": fdaDocumentID,
		"generation":  bson.M{"$ne": keep},
	})
	return err
}

// SummarizeCorpus counts catalog documents by ingestion status.
func SummarizeCorpus(docs []models.SourceDocument) models.CorpusStatus {
	status := models.CorpusStatus{Total: len(docs)}
	for _, doc := range docs {
		switch doc.Status {
		case models.StatusCompleted:
			status.Completed++
		case models.StatusInProgress:
			status.InProgress++
		case models.StatusFailed:
			status.Failed++
		default:
			status.NotStarted++
		}
	}
	return status
}

// scoredChunk pairs a chunk with its similarity during ranking.
type scoredChunk struct {
	chunk      models.Chunk
	doc        *models.SourceDocument
	similarity float64
}

// Search ranks active chunks against a query vector and returns the top k.
// Both sides are L2-normalized so the dot product is cosine similarity.
// Ties break deterministically: higher similarity first, then document id
// ascending, then ordinal ascending.
func (s *VectorStore) Search(ctx context.Context, queryVector []float32, fdaDocumentID string, topK int) ([]models.RetrievedChunk, error) {
	docFilter := bson.M{"status": models.StatusCompleted, "active_generation": bson.M{"$gt": 0}}
	if fdaDocumentID != "" {
		docFilter["fda_document_id"] = fdaDocumentID
	}

	cursor, err := s.documents.Find(ctx, docFilter)
	if err != nil {
		return nil, err
	}
	var docs []models.SourceDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}

	var scored []scoredChunk
	for i := range docs {
		doc := &docs[i]
		chunkCursor, err := s.chunks.Find(ctx, bson.M{
			"document_id": doc.FDADocumentID,
			"generation":  doc.ActiveGeneration,
		})
		if err != nil {
			return nil, err
		}
		var chunks []models.Chunk
		if err := chunkCursor.All(ctx, &chunks); err != nil {
			return nil, err
		}

		for _, chunk := range chunks {
			if len(chunk.Vector) != len(queryVector) {
				continue
			}
			scored = append(scored, scoredChunk{
				chunk:      chunk,
				doc:        doc,
				similarity: dotProduct(queryVector, chunk.Vector),
			})
		}
	}

	scored = rankScored(scored, topK)

	results := make([]models.RetrievedChunk, 0, len(scored))
	for _, sc := range scored {
		text, err := chunkPlaintext(sc.chunk)
		if err != nil {
			return nil, err
		}
		results = append(results, models.RetrievedChunk{
			DocumentID:    sc.doc.ID,
			FDADocumentID: sc.doc.FDADocumentID,
			Title:         sc.doc.Title,
			Ordinal:       sc.chunk.Ordinal,
			Text:          text,
			PageStart:     sc.chunk.PageStart,
			PageEnd:       sc.chunk.PageEnd,
			Section:       sc.chunk.Section,
			Similarity:    sc.similarity,
		})
	}
	return results, nil
}

// rankScored orders candidates best-first and cuts to topK. Equal scores
// break on document id then ordinal so repeated queries return identical
// result lists.
func rankScored(scored []scoredChunk, topK int) []scoredChunk {
	sort.Slice(scored, func(i, j int) bool {
		if scored[i].similarity != scored[j].similarity {
			return scored[i].similarity > scored[j].similarity
		}
		if scored[i].chunk.DocumentID != scored[j].chunk.DocumentID {
			return scored[i].chunk.DocumentID < scored[j].chunk.DocumentID
		}
		return scored[i].chunk.Ordinal < scored[j].chunk.Ordinal
	})

	if len(scored) > topK {
		scored = scored[:topK]
	}
	return scored
}

func chunkPlaintext(chunk models.Chunk) (string, error) {
	if !chunk.Compressed {
		return chunk.Text, nil
	}
	raw, err := base64.StdEncoding.DecodeString(chunk.Text)
	if err != nil {
		return "", fmt.Errorf("failed to decode chunk %s: %w", chunk.ID, err)
	}
	return utils.DecompressText(raw, utils.CompressionAlgorithm(chunk.Compression))
}

func dotProduct(a, b []float32) float64 {
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}
