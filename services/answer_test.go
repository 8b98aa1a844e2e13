package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/seehafer/fda-guidance-navigator/internal/telemetry"
	"github.com/seehafer/fda-guidance-navigator/models"
)

type fakeRetriever struct {
	chunks []models.RetrievedChunk
	err    error
}

func (f *fakeRetriever) Retrieve(ctx context.Context, question, fdaDocumentID string, topK int) ([]models.RetrievedChunk, error) {
	return f.chunks, f.err
}

type fakeSessions struct {
	mu       sync.Mutex
	session  models.Session
	appended []models.Turn
	history  []models.Turn
	locked   bool
}

func (f *fakeSessions) GetOrCreate(ctx context.Context, sessionID, fdaDocumentID string) (*models.Session, error) {
	if f.session.ID == "" {
		f.session = models.Session{ID: "sess-1", DocumentID: fdaDocumentID}
	}
	return &f.session, nil
}

func (f *fakeSessions) AcquireStream(sessionID string) (func(), error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.locked {
		return nil, models.NewConflictError("session %s already has a query in flight", sessionID)
	}
	f.locked = true
	return func() {
		f.mu.Lock()
		f.locked = false
		f.mu.Unlock()
	}, nil
}

func (f *fakeSessions) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	return f.history, nil
}

func (f *fakeSessions) AppendTurns(ctx context.Context, sessionID string, turns ...*models.Turn) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, turn := range turns {
		f.appended = append(f.appended, *turn)
	}
	return nil
}

type fakeGenerator struct {
	fragments []string
	failAfter int   // fragments delivered before failing, -1 means never
	err       error // error to fail with
}

func (f *fakeGenerator) StreamAnswer(ctx context.Context, prompt string, onText func(string) error) (string, error) {
	var accumulated string
	for i, fragment := range f.fragments {
		if f.err != nil && i == f.failAfter {
			return accumulated, f.err
		}
		if err := onText(fragment); err != nil {
			return accumulated, err
		}
		accumulated += fragment
	}
	if f.err != nil && f.failAfter >= len(f.fragments) {
		return accumulated, f.err
	}
	return accumulated, nil
}

func testChunks() []models.RetrievedChunk {
	return []models.RetrievedChunk{
		{
			DocumentID:    "doc-1",
			FDADocumentID: "FDA-2020-D-1136",
			Title:         "Premarket Submissions Guidance",
			Ordinal:       3,
			Text:          strings.Repeat("cybersecurity documentation requirements ", 12),
			PageStart:     4,
			PageEnd:       5,
			Similarity:    0.91,
		},
	}
}

func newTestAnswer(retriever Retriever, sessions SessionStore, gen Generator) *AnswerService {
	metrics, _ := telemetry.InitMetrics()
	return NewAnswerService(retriever, sessions, gen, metrics)
}

func collectEvents(t *testing.T, svc *AnswerService, ctx context.Context, req models.QueryRequest) ([]models.StreamEvent, error) {
	t.Helper()
	var events []models.StreamEvent
	err := svc.Answer(ctx, req, func(event models.StreamEvent) error {
		events = append(events, event)
		return nil
	})
	return events, err
}

func TestAnswerSourcesFirstThenTextThenDone(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestAnswer(
		&fakeRetriever{chunks: testChunks()},
		sessions,
		&fakeGenerator{fragments: []string{"The guidance ", "requires [Source 1]."}, failAfter: -1},
	)

	events, err := collectEvents(t, svc, context.Background(), models.QueryRequest{Question: "what is required?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(events) < 3 {
		t.Fatalf("expected sources, text and done events, got %d events", len(events))
	}
	if events[0].Type != models.EventSources {
		t.Fatalf("first event is %q, want sources", events[0].Type)
	}
	if events[0].SessionID == "" {
		t.Error("sources event is missing the session id")
	}
	if len(events[0].Sources) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(events[0].Sources))
	}
	if events[len(events)-1].Type != models.EventDone {
		t.Errorf("last event is %q, want done", events[len(events)-1].Type)
	}
	for _, event := range events[1 : len(events)-1] {
		if event.Type != models.EventText {
			t.Errorf("middle event has type %q, want text", event.Type)
		}
	}

	// Completed stream persists the user/assistant pair
	if len(sessions.appended) != 2 {
		t.Fatalf("expected 2 persisted turns, got %d", len(sessions.appended))
	}
	if sessions.appended[0].Role != models.RoleUser {
		t.Errorf("first persisted turn role %q, want user", sessions.appended[0].Role)
	}
	assistant := sessions.appended[1]
	if assistant.Role != models.RoleAssistant || assistant.Incomplete {
		t.Errorf("second persisted turn = %+v, want complete assistant turn", assistant)
	}
	if assistant.Content != "The guidance requires [Source 1]." {
		t.Errorf("assistant content = %q", assistant.Content)
	}
	if len(assistant.Citations) != 1 {
		t.Errorf("assistant turn carries %d citations, want 1", len(assistant.Citations))
	}
}

func TestAnswerClientDisconnectPersistsOneIncompleteTurn(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestAnswer(
		&fakeRetriever{chunks: testChunks()},
		sessions,
		&fakeGenerator{fragments: []string{"partial ", "answer ", "never sent"}, failAfter: -1},
	)

	delivered := 0
	err := svc.Answer(context.Background(), models.QueryRequest{Question: "q"}, func(event models.StreamEvent) error {
		if event.Type == models.EventText {
			delivered++
			if delivered == 2 {
				return errors.New("client gone")
			}
		}
		return nil
	})
	if err != nil {
		t.Fatalf("disconnect must not surface as a handler error, got %v", err)
	}

	if len(sessions.appended) != 1 {
		t.Fatalf("expected exactly 1 persisted turn, got %d", len(sessions.appended))
	}
	turn := sessions.appended[0]
	if turn.Role != models.RoleAssistant || !turn.Incomplete {
		t.Errorf("persisted turn = %+v, want incomplete assistant turn", turn)
	}
	if turn.Content != "partial " {
		t.Errorf("persisted partial content = %q, want content delivered before disconnect", turn.Content)
	}
}

func TestAnswerMidStreamFailureEmitsErrorEvent(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestAnswer(
		&fakeRetriever{chunks: testChunks()},
		sessions,
		&fakeGenerator{fragments: []string{"some text "}, failAfter: 1, err: errors.New("upstream 500")},
	)

	events, err := collectEvents(t, svc, context.Background(), models.QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := events[len(events)-1]
	if last.Type != models.EventError {
		t.Fatalf("last event type %q, want error", last.Type)
	}
	for _, event := range events {
		if event.Type == models.EventDone {
			t.Error("failed stream must not emit done")
		}
	}

	if len(sessions.appended) != 1 || !sessions.appended[0].Incomplete {
		t.Fatalf("expected one incomplete turn, got %+v", sessions.appended)
	}
}

func TestAnswerFailureBeforeFirstTokenPersistsNothing(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestAnswer(
		&fakeRetriever{chunks: testChunks()},
		sessions,
		&fakeGenerator{failAfter: 0, err: errors.New("provider down")},
	)

	events, err := collectEvents(t, svc, context.Background(), models.QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if events[len(events)-1].Type != models.EventError {
		t.Fatalf("expected terminal error event, got %q", events[len(events)-1].Type)
	}
	if len(sessions.appended) != 0 {
		t.Fatalf("expected no persisted turns, got %d", len(sessions.appended))
	}
}

func TestAnswerEmptyCorpusAnswersWithoutGenerator(t *testing.T) {
	sessions := &fakeSessions{}
	gen := &fakeGenerator{fragments: []string{"must not be called"}, failAfter: -1}
	svc := newTestAnswer(&fakeRetriever{}, sessions, gen)

	events, err := collectEvents(t, svc, context.Background(), models.QueryRequest{Question: "anything"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if events[0].Type != models.EventSources || len(events[0].Sources) != 0 {
		t.Fatalf("expected empty sources event first, got %+v", events[0])
	}
	var text string
	for _, event := range events {
		if event.Type == models.EventText {
			text += event.Content
		}
	}
	if text != noEvidenceAnswer {
		t.Errorf("expected the no-evidence answer, got %q", text)
	}
	if events[len(events)-1].Type != models.EventDone {
		t.Errorf("expected done, got %q", events[len(events)-1].Type)
	}
	if len(sessions.appended) != 2 {
		t.Errorf("expected persisted pair, got %d turns", len(sessions.appended))
	}
}

func TestAnswerSessionConflict(t *testing.T) {
	sessions := &fakeSessions{locked: true, session: models.Session{ID: "sess-1"}}
	svc := newTestAnswer(&fakeRetriever{chunks: testChunks()}, sessions, &fakeGenerator{failAfter: -1})

	_, err := collectEvents(t, svc, context.Background(), models.QueryRequest{Question: "q", SessionID: "sess-1"})
	if !models.IsConflict(err) {
		t.Fatalf("expected conflict error, got %v", err)
	}
	if len(sessions.appended) != 0 {
		t.Errorf("conflicting request must not persist turns")
	}
}

func TestAnswerSyncCollectsStream(t *testing.T) {
	sessions := &fakeSessions{}
	svc := newTestAnswer(
		&fakeRetriever{chunks: testChunks()},
		sessions,
		&fakeGenerator{fragments: []string{"a ", "b"}, failAfter: -1},
	)

	resp, err := svc.AnswerSync(context.Background(), models.QueryRequest{Question: "q"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if resp.Answer != "a b" {
		t.Errorf("answer = %q", resp.Answer)
	}
	if resp.SessionID == "" || len(resp.Sources) != 1 {
		t.Errorf("response missing session id or sources: %+v", resp)
	}
}

func TestBuildPromptNumbersSources(t *testing.T) {
	chunks := []models.RetrievedChunk{
		{Title: "Guidance A", Text: "alpha", PageStart: 1, PageEnd: 1},
		{Title: "Guidance B", Text: "beta", PageStart: 7, PageEnd: 9, Section: "II. Scope"},
	}
	prompt := buildPrompt("what applies?", chunks, []models.Turn{
		{Role: models.RoleUser, Content: "earlier question"},
	})

	if !strings.Contains(prompt, "[Source 1] Guidance A") {
		t.Error("prompt missing numbered first source")
	}
	if !strings.Contains(prompt, "[Source 2] Guidance B (p. 7-9) II. Scope") {
		t.Error("prompt missing second source header with page range and section")
	}
	if !strings.Contains(prompt, "\n\n---\n\n") {
		t.Error("source blocks must be separated by dividers")
	}
	if !strings.Contains(prompt, "earlier question") {
		t.Error("prompt missing conversation history")
	}
	if strings.Index(prompt, "[Source 1]") > strings.Index(prompt, "[Source 2]") {
		t.Error("sources out of order")
	}
}

func TestBuildCitationsPreviewTruncation(t *testing.T) {
	long := strings.Repeat("x", 300)
	citations := buildCitations([]models.RetrievedChunk{{Text: long, PageStart: 2}})
	if len(citations) != 1 {
		t.Fatalf("expected 1 citation, got %d", len(citations))
	}
	if want := 200 + len("..."); len(citations[0].ContentPreview) != want {
		t.Errorf("preview length = %d, want %d", len(citations[0].ContentPreview), want)
	}
	citations = buildCitations([]models.RetrievedChunk{{Text: "short", PageStart: 1}})
	if citations[0].ContentPreview != "short" {
		t.Errorf("short text must not be truncated, got %q", citations[0].ContentPreview)
	}
}
