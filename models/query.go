package models

// QueryRequest is the body for both the synchronous and streaming query
// endpoints.
type QueryRequest struct {
	Question   string `json:"question" binding:"required,min=1,max=4000"`
	DocumentID string `json:"document_id,omitempty"`
	SessionID  string `json:"session_id,omitempty"`
	TopK       int    `json:"top_k,omitempty"`
}

// QueryResponse is the synchronous query result.
type QueryResponse struct {
	Answer    string     `json:"answer"`
	Sources   []Citation `json:"sources"`
	SessionID string     `json:"session_id"`
}

// Stream event types. Exactly one sources event precedes any text events;
// error is terminal when generation fails mid-stream; done closes a
// successful stream.
const (
	EventSources = "sources"
	EventText    = "text"
	EventError   = "error"
	EventDone    = "done"
)

// StreamEvent is one framed record in a streaming answer. Consumers must
// reassemble a full frame before acting on it.
type StreamEvent struct {
	Type      string     `json:"type"`
	Sources   []Citation `json:"sources,omitempty"`
	SessionID string     `json:"session_id,omitempty"`
	Content   string     `json:"content,omitempty"`
	Error     string     `json:"error,omitempty"`
}

// RegisterDocumentRequest adds or updates a catalog entry. Registration
// never touches ingestion state; a re-registered document keeps its status
// and chunks until the next ingestion run.
type RegisterDocumentRequest struct {
	FDADocumentID string `json:"fda_document_id" binding:"required"`
	Title         string `json:"title" binding:"required"`
	Summary       string `json:"summary,omitempty"`
	PDFURL        string `json:"pdf_url" binding:"required,url"`
}

// IngestRequest triggers ingestion of a single catalog document.
type IngestRequest struct {
	DocumentID string `json:"document_id" binding:"required"`
	Force      bool   `json:"force,omitempty"`
}

// IngestAllRequest triggers a batch run over the catalog.
type IngestAllRequest struct {
	Force bool `json:"force,omitempty"`
}

// CorpusStatus summarizes ingestion state across the whole catalog.
type CorpusStatus struct {
	Total      int `json:"total"`
	NotStarted int `json:"not_started"`
	InProgress int `json:"in_progress"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
}

// StatusResponse is the single-document ingestion status.
type StatusResponse struct {
	DocumentID   string `json:"document_id"`
	Status       string `json:"status"`
	ChunkCount   int    `json:"chunk_count"`
	Fingerprint  string `json:"fingerprint,omitempty"`
	ErrorKind    string `json:"error_kind,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
