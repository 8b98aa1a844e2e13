package services

import (
	"strings"
	"testing"

	"github.com/seehafer/fda-guidance-navigator/models"
)

func TestTrimToTokenBudgetDropsOldestFirst(t *testing.T) {
	turns := []models.Turn{
		{Seq: 1, Role: models.RoleUser, Content: strings.Repeat("old ", 200)},
		{Seq: 2, Role: models.RoleAssistant, Content: strings.Repeat("mid ", 200)},
		{Seq: 3, Role: models.RoleUser, Content: "newest question"},
	}

	trimmed := trimToTokenBudget(turns, 250)
	if len(trimmed) == 0 {
		t.Fatal("budget should keep at least the newest turn")
	}
	if trimmed[len(trimmed)-1].Seq != 3 {
		t.Errorf("newest turn must survive trimming, last seq = %d", trimmed[len(trimmed)-1].Seq)
	}
	for i := 1; i < len(trimmed); i++ {
		if trimmed[i].Seq < trimmed[i-1].Seq {
			t.Error("trimming must preserve chronological order")
		}
	}
	if len(trimmed) == len(turns) {
		t.Error("expected oldest turn to be dropped to fit the budget")
	}
}

func TestTrimToTokenBudgetKeepsAllWithinBudget(t *testing.T) {
	turns := []models.Turn{
		{Seq: 1, Content: "short"},
		{Seq: 2, Content: "also short"},
	}
	trimmed := trimToTokenBudget(turns, 1000)
	if len(trimmed) != 2 {
		t.Fatalf("got %d turns, want 2", len(trimmed))
	}
}

func TestTrimToTokenBudgetEmpty(t *testing.T) {
	if trimmed := trimToTokenBudget(nil, 100); len(trimmed) != 0 {
		t.Fatal("expected empty result")
	}
}

func TestAcquireStreamSingleFlightPerSession(t *testing.T) {
	s := &SessionService{inFlight: make(map[string]struct{})}

	release, err := s.AcquireStream("session-a")
	if err != nil {
		t.Fatal(err)
	}

	if _, err := s.AcquireStream("session-a"); !models.IsConflict(err) {
		t.Fatalf("second acquire = %v, want conflict", err)
	}
	if _, err := s.AcquireStream("session-b"); err != nil {
		t.Fatalf("unrelated session blocked: %v", err)
	}

	release()
	release2, err := s.AcquireStream("session-a")
	if err != nil {
		t.Fatalf("acquire after release = %v", err)
	}
	release2()
}

func TestAcquireStreamReleaseFreesEntry(t *testing.T) {
	s := &SessionService{inFlight: make(map[string]struct{})}

	for i := 0; i < 100; i++ {
		release, err := s.AcquireStream("session-a")
		if err != nil {
			t.Fatal(err)
		}
		release()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.inFlight) != 0 {
		t.Fatalf("in-flight set holds %d entries after release, want 0", len(s.inFlight))
	}
}
