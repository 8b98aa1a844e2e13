package queue

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/models"
)

type stubIngestor struct {
	result *models.IngestResult
	err    error
}

func (s *stubIngestor) IngestDocument(ctx context.Context, fdaDocumentID string, force bool) (*models.IngestResult, error) {
	return s.result, s.err
}

func TestNewIngestTaskPayload(t *testing.T) {
	task, err := NewIngestTask("FDA-2020-D-1136", true)
	if err != nil {
		t.Fatal(err)
	}
	if task.Type() != TaskIngestDocument {
		t.Errorf("task type = %q", task.Type())
	}

	var payload IngestPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		t.Fatal(err)
	}
	if payload.FDADocumentID != "FDA-2020-D-1136" || !payload.Force {
		t.Errorf("payload = %+v", payload)
	}
}

func processWith(t *testing.T, ingestor Ingestor) error {
	t.Helper()
	task, err := NewIngestTask("FDA-2020-D-1136", false)
	if err != nil {
		t.Fatal(err)
	}
	return NewTaskProcessor(ingestor).ProcessIngest(context.Background(), task)
}

func TestProcessIngestSuccess(t *testing.T) {
	err := processWith(t, &stubIngestor{
		result: &models.IngestResult{DocumentID: "FDA-2020-D-1136", Outcome: models.OutcomeSucceeded, ChunkCount: 12},
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestProcessIngestSkipsRetryForTerminalErrors(t *testing.T) {
	terminal := []error{
		&models.NotFoundError{Resource: "document", ID: "FDA-2020-D-1136"},
		models.NewValidationError("bad input"),
		models.NewConflictError("already running"),
		&models.PipelineError{Kind: models.ErrorKindParse, Err: errors.New("broken pdf")},
	}

	for _, cause := range terminal {
		err := processWith(t, &stubIngestor{err: cause})
		if err == nil {
			t.Fatalf("expected error for %v", cause)
		}
		if !errors.Is(err, asynq.SkipRetry) {
			t.Errorf("error %v should skip retry", cause)
		}
	}
}

func TestProcessIngestRetriesTransientErrors(t *testing.T) {
	transient := []error{
		&models.PipelineError{Kind: models.ErrorKindFetch, Err: errors.New("timeout")},
		&models.PipelineError{Kind: models.ErrorKindProvider, Err: errors.New("rate limited")},
	}

	for _, cause := range transient {
		err := processWith(t, &stubIngestor{err: cause})
		if err == nil {
			t.Fatalf("expected error for %v", cause)
		}
		if errors.Is(err, asynq.SkipRetry) {
			t.Errorf("error %v must stay retryable", cause)
		}
	}
}

func TestProcessIngestBadPayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(TaskIngestDocument, []byte("{not json"))
	err := NewTaskProcessor(&stubIngestor{}).ProcessIngest(context.Background(), task)
	if !errors.Is(err, asynq.SkipRetry) {
		t.Fatalf("malformed payload must skip retry, got %v", err)
	}
}
