package models

// Chunk is a bounded, page-anchored passage of extracted document text paired
// with its embedding vector. Chunks are written in whole generations: a new
// ingestion run stages generation N+1 while readers keep seeing generation N,
// and the document's active_generation field is the only visibility switch.
type Chunk struct {
	ID          string    `bson:"_id,omitempty" json:"id"`
	DocumentID  string    `bson:"document_id" json:"document_id"`
	Generation  int64     `bson:"generation" json:"-"`
	Ordinal     int       `bson:"ordinal" json:"ordinal"`
	Text        string    `bson:"text" json:"text"`
	Compressed  bool      `bson:"compressed,omitempty" json:"-"`
	Compression string    `bson:"compression,omitempty" json:"-"`
	PageStart   int       `bson:"page_start" json:"page_start"`
	PageEnd     int       `bson:"page_end" json:"page_end"`
	Section     string    `bson:"section,omitempty" json:"section,omitempty"`
	TokenCount  int       `bson:"token_count" json:"token_count"`
	Vector      []float32 `bson:"vector" json:"-"`
}

// RetrievedChunk is a chunk joined with its document metadata and scored
// against a query embedding.
type RetrievedChunk struct {
	DocumentID    string  `json:"document_id"`
	FDADocumentID string  `json:"fda_document_id"`
	Title         string  `json:"title"`
	Ordinal       int     `json:"ordinal"`
	Text          string  `json:"text"`
	PageStart     int     `json:"page_start"`
	PageEnd       int     `json:"page_end"`
	Section       string  `json:"section,omitempty"`
	Similarity    float64 `json:"similarity"`
}

// PageText is one page of extracted PDF text, numbered from 1.
type PageText struct {
	Page int
	Text string
}
