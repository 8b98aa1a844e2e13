package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
	"github.com/seehafer/fda-guidance-navigator/models"
)

const contentPreviewLen = 200

// noEvidenceAnswer is returned without calling the model when retrieval
// comes back empty. Grounding means never answering from the model's own
// knowledge.
const noEvidenceAnswer = "I couldn't find relevant information in the ingested FDA guidance documents to answer your question. Try rephrasing, or check that the relevant document has been ingested."

// Generator streams a completion for a prompt. Implemented by the Gemini
// client in production and by fakes in tests.
type Generator interface {
	StreamAnswer(ctx context.Context, prompt string, onText func(fragment string) error) (string, error)
}

// Retriever finds evidence chunks for a question.
type Retriever interface {
	Retrieve(ctx context.Context, question, fdaDocumentID string, topK int) ([]models.RetrievedChunk, error)
}

// SessionStore is the slice of session behavior the orchestrator needs.
type SessionStore interface {
	GetOrCreate(ctx context.Context, sessionID, fdaDocumentID string) (*models.Session, error)
	AcquireStream(sessionID string) (func(), error)
	History(ctx context.Context, sessionID string) ([]models.Turn, error)
	AppendTurns(ctx context.Context, sessionID string, turns ...*models.Turn) error
}

// AnswerService orchestrates one question: resolve the session, retrieve
// evidence, stream a grounded answer, persist the exchange.
//
// Turn persistence depends on how the stream ends. A completed answer writes
// the user turn and the assistant turn together. A stream cut short by the
// client or by a mid-generation failure writes exactly one turn, the
// assistant's partial content marked incomplete. A failure before anything
// was generated writes nothing.
type AnswerService struct {
	retrieval Retriever
	sessions  SessionStore
	generator Generator
	metrics   *telemetry.Metrics
}

func NewAnswerService(retrieval Retriever, sessions SessionStore, generator Generator, metrics *telemetry.Metrics) *AnswerService {
	return &AnswerService{
		retrieval: retrieval,
		sessions:  sessions,
		generator: generator,
		metrics:   metrics,
	}
}

// Answer processes one question, delivering frames through emit in order:
// one sources frame, zero or more text frames, then either done or error.
// A non-nil return from emit is treated as a client disconnect.
//
// Errors returned from Answer occurred before the first frame; the caller
// still owns the HTTP status. After the first frame all failures are
// reported in-band and Answer returns nil.
func (s *AnswerService) Answer(ctx context.Context, req models.QueryRequest, emit func(models.StreamEvent) error) error {
	session, err := s.sessions.GetOrCreate(ctx, req.SessionID, req.DocumentID)
	if err != nil {
		return err
	}

	release, err := s.sessions.AcquireStream(session.ID)
	if err != nil {
		return err
	}
	defer release()

	// The session's document scope wins over the request's
	scope := session.DocumentID
	if scope == "" {
		scope = req.DocumentID
	}

	retrievalStart := time.Now()
	chunks, err := s.retrieval.Retrieve(ctx, req.Question, scope, req.TopK)
	if err != nil {
		return err
	}
	retrievalSeconds := time.Since(retrievalStart).Seconds()

	citations := buildCitations(chunks)
	if err := emit(models.StreamEvent{
		Type:      models.EventSources,
		Sources:   citations,
		SessionID: session.ID,
	}); err != nil {
		s.metrics.RecordStreamCancelled()
		return nil
	}

	if len(chunks) == 0 {
		if err := emit(models.StreamEvent{Type: models.EventText, Content: noEvidenceAnswer}); err != nil {
			s.metrics.RecordStreamCancelled()
			return nil
		}
		s.persistPair(session.ID, req.Question, noEvidenceAnswer, nil)
		s.metrics.RecordQuery("no_evidence", retrievalSeconds)
		emitDone(emit)
		return nil
	}

	history, err := s.sessions.History(ctx, session.ID)
	if err != nil {
		logger.Error("Failed to load session history", "session_id", session.ID, "error", err)
		history = nil
	}

	prompt := buildPrompt(req.Question, chunks, history)

	var disconnected bool
	accumulated, genErr := s.generator.StreamAnswer(ctx, prompt, func(fragment string) error {
		if err := emit(models.StreamEvent{Type: models.EventText, Content: fragment}); err != nil {
			disconnected = true
			return err
		}
		return nil
	})

	switch {
	case genErr == nil:
		s.persistPair(session.ID, req.Question, accumulated, citations)
		s.metrics.RecordQuery("answered", retrievalSeconds)
		emitDone(emit)

	case disconnected || errors.Is(genErr, context.Canceled):
		s.persistIncomplete(session.ID, accumulated, citations)
		s.metrics.RecordStreamCancelled()
		s.metrics.RecordQuery("cancelled", retrievalSeconds)

	default:
		// Partial output the client already saw is kept, a failure
		// before the first fragment leaves no trace.
		if accumulated != "" {
			s.persistIncomplete(session.ID, accumulated, citations)
		}
		s.metrics.RecordQuery("failed", retrievalSeconds)
		_ = emit(models.StreamEvent{
			Type:  models.EventError,
			Error: "answer generation failed",
		})
		logger.Error("Generation failed mid-stream", "session_id", session.ID, "error", genErr)
	}

	return nil
}

// AnswerSync collects the full stream into a single response.
func (s *AnswerService) AnswerSync(ctx context.Context, req models.QueryRequest) (*models.QueryResponse, error) {
	var (
		answer    strings.Builder
		sources   []models.Citation
		sessionID string
		streamErr string
	)

	err := s.Answer(ctx, req, func(event models.StreamEvent) error {
		switch event.Type {
		case models.EventSources:
			sources = event.Sources
			sessionID = event.SessionID
		case models.EventText:
			answer.WriteString(event.Content)
		case models.EventError:
			streamErr = event.Error
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if streamErr != "" {
		return nil, &models.StreamError{Err: errors.New(streamErr)}
	}

	return &models.QueryResponse{
		Answer:    answer.String(),
		Sources:   sources,
		SessionID: sessionID,
	}, nil
}

// persistPair writes the completed user/assistant exchange.
func (s *AnswerService) persistPair(sessionID, question, answer string, citations []models.Citation) {
	ctx, cancel := detachedContext()
	defer cancel()

	err := s.sessions.AppendTurns(ctx, sessionID,
		&models.Turn{Role: models.RoleUser, Content: question},
		&models.Turn{Role: models.RoleAssistant, Content: answer, Citations: citations},
	)
	if err != nil {
		logger.Error("Failed to persist turns", "session_id", sessionID, "error", err)
	}
}

// persistIncomplete writes the lone partial assistant turn left behind by a
// cancelled or failed stream.
func (s *AnswerService) persistIncomplete(sessionID, partial string, citations []models.Citation) {
	ctx, cancel := detachedContext()
	defer cancel()

	err := s.sessions.AppendTurns(ctx, sessionID,
		&models.Turn{Role: models.RoleAssistant, Content: partial, Citations: citations, Incomplete: true},
	)
	if err != nil {
		logger.Error("Failed to persist incomplete turn", "session_id", sessionID, "error", err)
	}
}

// detachedContext survives request cancellation so final state writes (turn
// persistence, ingestion failure records) still land after a disconnect.
func detachedContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), 10*time.Second)
}

func emitDone(emit func(models.StreamEvent) error) {
	_ = emit(models.StreamEvent{Type: models.EventDone})
}

func buildCitations(chunks []models.RetrievedChunk) []models.Citation {
	citations := make([]models.Citation, len(chunks))
	for i, chunk := range chunks {
		preview := chunk.Text
		if len(preview) > contentPreviewLen {
			preview = preview[:contentPreviewLen] + "..."
		}
		citations[i] = models.Citation{
			DocumentID:     chunk.DocumentID,
			FDADocumentID:  chunk.FDADocumentID,
			Title:          chunk.Title,
			Page:           chunk.PageStart,
			ContentPreview: preview,
			Similarity:     chunk.Similarity,
		}
	}
	return citations
}

// buildPrompt assembles the grounded prompt: instructions, numbered source
// excerpts, recent conversation, then the question. Source numbering matches
// the order of the sources frame so [Source N] references line up.
func buildPrompt(question string, chunks []models.RetrievedChunk, history []models.Turn) string {
	var b strings.Builder

	b.WriteString("You are an expert assistant specializing in FDA guidance documents. ")
	b.WriteString("Answer the question using ONLY the provided source excerpts. ")
	b.WriteString("Cite sources inline as [Source N] where N is the excerpt number. ")
	b.WriteString("If the sources do not contain the answer, say so plainly instead of guessing.\n\n")

	b.WriteString("Sources:\n\n")
	blocks := make([]string, len(chunks))
	for i, chunk := range chunks {
		header := fmt.Sprintf("[Source %d] %s (p. %d", i+1, chunk.Title, chunk.PageStart)
		if chunk.PageEnd > chunk.PageStart {
			header += fmt.Sprintf("-%d", chunk.PageEnd)
		}
		header += ")"
		if chunk.Section != "" {
			header += " " + chunk.Section
		}
		blocks[i] = header + "\n" + chunk.Text
	}
	b.WriteString(strings.Join(blocks, "\n\n---\n\n"))

	if len(history) > 0 {
		b.WriteString("\n\nConversation so far:\n")
		for _, turn := range history {
			b.WriteString(fmt.Sprintf("%s: %s\n", turn.Role, turn.Content))
		}
	}

	b.WriteString("\n\nQuestion: ")
	b.WriteString(question)
	return b.String()
}
