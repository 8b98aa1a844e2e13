package services

import (
	"context"
	"time"

	"github.com/go-co-op/gocron"
	"github.com/hibiken/asynq"

	"github.com/seehafer/fda-guidance-navigator/internal/logger"
	"github.com/seehafer/fda-guidance-navigator/internal/queue"
	"github.com/seehafer/fda-guidance-navigator/models"
)

const (
	// An in_progress document older than this lost its run; no single
	// ingestion legitimately takes that long.
	abandonedAfter = 30 * time.Minute

	// Superseded chunk generations are kept this long after a swap so a
	// reader holding the old document snapshot never sees a half-deleted set.
	pruneAfter = 10 * time.Minute
)

// SweepStore is the slice of the vector store the sweeper maintains.
type SweepStore interface {
	ListDocuments(ctx context.Context) ([]models.SourceDocument, error)
	ReclaimAbandoned(ctx context.Context, olderThan time.Duration) (int64, error)
	PruneGenerations(ctx context.Context, fdaDocumentID string, keep int64) error
}

// TaskEnqueuer submits ingest tasks. Satisfied by *asynq.Client.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Sweeper periodically reclaims abandoned runs, re-enqueues ingestion for
// documents that never started or failed transiently, and prunes superseded
// chunk generations. Parse failures are left alone, the same bytes would
// just fail again.
type Sweeper struct {
	store     SweepStore
	enqueuer  TaskEnqueuer
	scheduler *gocron.Scheduler
}

func NewSweeper(store SweepStore, enqueuer TaskEnqueuer) *Sweeper {
	s := gocron.NewScheduler(time.UTC)
	s.TagsUnique()
	return &Sweeper{
		store:     store,
		enqueuer:  enqueuer,
		scheduler: s,
	}
}

// Start schedules the sweep on cronExpr and runs the scheduler in the
// background.
func (s *Sweeper) Start(cronExpr string) error {
	_, err := s.scheduler.Cron(cronExpr).Tag("ingest-sweep").Do(func() {
		if err := s.Sweep(context.Background()); err != nil {
			logger.Error("Ingestion sweep failed", "error", err)
		}
	})
	if err != nil {
		return err
	}
	s.scheduler.StartAsync()
	logger.Info("Ingestion sweeper started", "cron", cronExpr)
	return nil
}

func (s *Sweeper) Stop() {
	s.scheduler.Stop()
}

// Sweep reclaims stale claims first so their documents become sweepable in
// the same pass, then enqueues one ingest task per sweepable document and
// prunes settled generations.
func (s *Sweeper) Sweep(ctx context.Context) error {
	reclaimed, err := s.store.ReclaimAbandoned(ctx, abandonedAfter)
	if err != nil {
		return err
	}
	if reclaimed > 0 {
		logger.Warn("Reclaimed abandoned ingestion runs", "count", reclaimed)
	}

	docs, err := s.store.ListDocuments(ctx)
	if err != nil {
		return err
	}

	enqueued := 0
	for _, doc := range docs {
		if sweepable(&doc) {
			task, err := queue.NewIngestTask(doc.FDADocumentID, false)
			if err != nil {
				return err
			}
			if _, err := s.enqueuer.EnqueueContext(ctx, task); err != nil {
				logger.Error("Failed to enqueue sweep ingestion", "fda_document_id", doc.FDADocumentID, "error", err)
				continue
			}
			enqueued++
			continue
		}

		if doc.Queryable() && time.Since(doc.UpdatedAt) > pruneAfter {
			if err := s.store.PruneGenerations(ctx, doc.FDADocumentID, doc.ActiveGeneration); err != nil {
				logger.Error("Failed to prune stale chunk generations", "fda_document_id", doc.FDADocumentID, "error", err)
			}
		}
	}

	if enqueued > 0 {
		logger.Info("Ingestion sweep enqueued documents", "count", enqueued)
	}
	return nil
}

func sweepable(doc *models.SourceDocument) bool {
	if doc.Status == models.StatusNotStarted {
		return true
	}
	if doc.Status == models.StatusFailed && doc.ErrorKind != models.ErrorKindParse {
		return true
	}
	return false
}
