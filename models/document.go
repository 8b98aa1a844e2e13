package models

import "time"

// Document status constants. Only the ingestion pipeline moves a document
// between these states; the catalog owns everything else on the record.
const (
	StatusNotStarted = "not_started"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusFailed     = "failed"
)

// Ingestion failure kinds, recorded on the document when a run fails.
const (
	ErrorKindFetch    = "fetch"
	ErrorKindParse    = "parse"
	ErrorKindProvider = "provider"
)

// SourceDocument is a guidance document registered in the catalog. The
// ingestion pipeline reads its location and writes back status, fingerprint
// and the active chunk generation; title/summary/url are catalog-owned.
type SourceDocument struct {
	ID               string    `bson:"_id" json:"id"`
	FDADocumentID    string    `bson:"fda_document_id" json:"fda_document_id"`
	Title            string    `bson:"title" json:"title"`
	Summary          string    `bson:"summary,omitempty" json:"summary,omitempty"`
	PDFURL           string    `bson:"pdf_url" json:"pdf_url"`
	Status           string    `bson:"status" json:"status"`
	Fingerprint      string    `bson:"fingerprint,omitempty" json:"fingerprint,omitempty"`
	ActiveGeneration int64     `bson:"active_generation" json:"active_generation"`
	ChunkCount       int       `bson:"chunk_count" json:"chunk_count"`
	ErrorKind        string    `bson:"error_kind,omitempty" json:"error_kind,omitempty"`
	ErrorMessage     string    `bson:"error_message,omitempty" json:"error_message,omitempty"`
	IngestedAt       *time.Time `bson:"ingested_at,omitempty" json:"ingested_at,omitempty"`
	UpdatedAt        time.Time `bson:"updated_at" json:"updated_at"`
}

// Queryable reports whether retrieval may serve chunks for this document.
// Only a completed document with at least one committed generation qualifies;
// a failed document stays absent from retrieval even if prior chunks exist.
func (d *SourceDocument) Queryable() bool {
	return d.Status == StatusCompleted && d.ActiveGeneration > 0
}

// IngestOutcome classifies one document's result within a batch run.
const (
	OutcomeSucceeded = "succeeded"
	OutcomeFailed    = "failed"
	OutcomeSkipped   = "skipped"
	OutcomeConflict  = "conflict"
)

// IngestResult is the per-document entry in an ingest-all summary.
type IngestResult struct {
	DocumentID string `json:"document_id"`
	Title      string `json:"title,omitempty"`
	Outcome    string `json:"outcome"`
	ChunkCount int    `json:"chunk_count,omitempty"`
	ErrorKind  string `json:"error_kind,omitempty"`
	Error      string `json:"error,omitempty"`
}

// IngestSummary aggregates a batch ingestion run.
type IngestSummary struct {
	Processed int            `json:"processed"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Results   []IngestResult `json:"results"`
}
