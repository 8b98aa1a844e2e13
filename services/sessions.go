package services

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/seehafer/fda-guidance-navigator/internal/ai"
	"github.com/seehafer/fda-guidance-navigator/models"
)

// SessionService owns conversations and their turn history. Turns are
// append-only; ordering is fixed by a per-session sequence number assigned
// under the session's stream lock.
type SessionService struct {
	sessions *mongo.Collection
	turns    *mongo.Collection

	historyMaxTurns    int
	historyTokenBudget int

	// sessions with an answer in flight; entries are removed on release so
	// the set stays bounded by concurrent streams, not session count
	mu       sync.Mutex
	inFlight map[string]struct{}
}

func NewSessionService(client *mongo.Client, dbName string, historyMaxTurns, historyTokenBudget int) *SessionService {
	db := client.Database(dbName)
	return &SessionService{
		sessions:           db.Collection("sessions"),
		turns:              db.Collection("turns"),
		historyMaxTurns:    historyMaxTurns,
		historyTokenBudget: historyTokenBudget,
		inFlight:           make(map[string]struct{}),
	}
}

// AcquireStream claims the session for one in-flight answer. The returned
// release must be called exactly once. A session that is already streaming
// yields a ConflictError instead of blocking.
func (s *SessionService) AcquireStream(sessionID string) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, busy := s.inFlight[sessionID]; busy {
		return nil, models.NewConflictError("session %s already has a query in flight", sessionID)
	}
	s.inFlight[sessionID] = struct{}{}

	return func() {
		s.mu.Lock()
		delete(s.inFlight, sessionID)
		s.mu.Unlock()
	}, nil
}

// GetOrCreate resolves the request's session. An empty id creates a fresh
// session lazily; a non-empty id must reference an existing session. The
// document scope is fixed at creation and cannot be changed by later queries.
func (s *SessionService) GetOrCreate(ctx context.Context, sessionID, fdaDocumentID string) (*models.Session, error) {
	if sessionID == "" {
		now := time.Now().UTC()
		session := &models.Session{
			ID:         uuid.NewString(),
			DocumentID: fdaDocumentID,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		if _, err := s.sessions.InsertOne(ctx, session); err != nil {
			return nil, err
		}
		return session, nil
	}

	session, err := s.Get(ctx, sessionID)
	if err != nil {
		return nil, err
	}
	if fdaDocumentID != "" && session.DocumentID != "" && session.DocumentID != fdaDocumentID {
		return nil, models.NewValidationError(
			"session %s is scoped to document %s", sessionID, session.DocumentID)
	}
	return session, nil
}

// Get looks up a session by id.
func (s *SessionService) Get(ctx context.Context, sessionID string) (*models.Session, error) {
	var session models.Session
	err := s.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&session)
	if err == mongo.ErrNoDocuments {
		return nil, &models.NotFoundError{Resource: "session", ID: sessionID}
	}
	if err != nil {
		return nil, err
	}
	return &session, nil
}

// History returns recent turns in chronological order, bounded first by the
// turn cap and then trimmed oldest-first to fit the token budget. Incomplete
// turns stay in history, the model should see what the user saw.
func (s *SessionService) History(ctx context.Context, sessionID string) ([]models.Turn, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "seq", Value: -1}}).
		SetLimit(int64(s.historyMaxTurns))

	cursor, err := s.turns.Find(ctx, bson.M{"session_id": sessionID}, opts)
	if err != nil {
		return nil, err
	}
	var recent []models.Turn
	if err := cursor.All(ctx, &recent); err != nil {
		return nil, err
	}

	// reverse into chronological order
	for i, j := 0, len(recent)-1; i < j; i, j = i+1, j-1 {
		recent[i], recent[j] = recent[j], recent[i]
	}

	return trimToTokenBudget(recent, s.historyTokenBudget), nil
}

// Transcript returns every turn of a session in order.
func (s *SessionService) Transcript(ctx context.Context, sessionID string) ([]models.Turn, error) {
	if _, err := s.Get(ctx, sessionID); err != nil {
		return nil, err
	}

	cursor, err := s.turns.Find(ctx, bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var turns []models.Turn
	if err := cursor.All(ctx, &turns); err != nil {
		return nil, err
	}
	return turns, nil
}

// AppendTurns persists turns with consecutive sequence numbers. Callers hold
// the session stream lock, so the max-seq read cannot race another writer on
// the same session.
func (s *SessionService) AppendTurns(ctx context.Context, sessionID string, turns ...*models.Turn) error {
	nextSeq, err := s.nextSeq(ctx, sessionID)
	if err != nil {
		return err
	}

	docs := make([]interface{}, len(turns))
	now := time.Now().UTC()
	for i, turn := range turns {
		turn.ID = uuid.NewString()
		turn.SessionID = sessionID
		turn.Seq = nextSeq + int64(i)
		turn.CreatedAt = now
		docs[i] = turn
	}

	if _, err := s.turns.InsertMany(ctx, docs); err != nil {
		return err
	}

	_, err = s.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"updated_at": now}})
	return err
}

func (s *SessionService) nextSeq(ctx context.Context, sessionID string) (int64, error) {
	var last models.Turn
	err := s.turns.FindOne(ctx,
		bson.M{"session_id": sessionID},
		options.FindOne().SetSort(bson.D{{Key: "seq", Value: -1}}),
	).Decode(&last)
	if err == mongo.ErrNoDocuments {
		return 1, nil
	}
	if err != nil {
		return 0, err
	}
	return last.Seq + 1, nil
}

// trimToTokenBudget drops oldest turns until the estimated token total fits.
func trimToTokenBudget(turns []models.Turn, budget int) []models.Turn {
	total := 0
	for _, turn := range turns {
		total += ai.EstimateTokens(turn.Content)
	}
	for len(turns) > 0 && total > budget {
		total -= ai.EstimateTokens(turns[0].Content)
		turns = turns[1:]
	}
	return turns
}
