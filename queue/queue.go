// ABOUTME: Offline mutation queue replayed in enqueue order once the sheet is reachable
// ABOUTME: A mutation leaves the queue only after a successful replay; failures stay in place
package queue

import (
	"context"
	"crypto/rand"
	"database/sql"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/oklog/ulid/v2"

	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/models"
)

// Replayer submits one queued mutation to the sheet.
type Replayer interface {
	Replay(ctx context.Context, m models.Mutation) error
}

// ReplayFunc adapts a function to Replayer.
type ReplayFunc func(ctx context.Context, m models.Mutation) error

func (f ReplayFunc) Replay(ctx context.Context, m models.Mutation) error {
	return f(ctx, m)
}

// DrainResult reports one drain pass.
type DrainResult struct {
	Succeeded int
	Failed    int
	Remaining int
}

// Queue is the durable offline queue. Drains are serialized.
type Queue struct {
	db     *sql.DB
	repo   *db.QueueRepository
	logger *log.Logger

	drainMu sync.Mutex

	idMu    sync.Mutex
	entropy *ulid.MonotonicEntropy
}

// New creates a queue backed by the offline_queue table of database.
func New(database *sql.DB, logger *log.Logger) *Queue {
	if logger == nil {
		logger = log.Default().WithPrefix("queue")
	}
	return &Queue{
		db:      database,
		repo:    db.NewQueueRepository(database),
		logger:  logger,
		entropy: ulid.Monotonic(rand.Reader, 0),
	}
}

func (q *Queue) newID() string {
	q.idMu.Lock()
	defer q.idMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(time.Now()), q.entropy).String()
}

// Enqueue appends m to the back of the queue and returns it with its id set.
func (q *Queue) Enqueue(ctx context.Context, m models.Mutation) (models.Mutation, error) {
	if m.ID == "" {
		m.ID = q.newID()
	}
	m.Attempts = 0
	m.LastError = ""
	if err := q.repo.Append(ctx, &m); err != nil {
		return models.Mutation{}, err
	}
	q.logger.Info("queued mutation", "id", m.ID, "mutation", m.String())
	return m, nil
}

// Pending returns queued mutations in replay order.
func (q *Queue) Pending(ctx context.Context) ([]models.Mutation, error) {
	return q.repo.List(ctx)
}

// Len returns the number of queued mutations.
func (q *Queue) Len(ctx context.Context) (int, error) {
	return q.repo.Count(ctx)
}

// Drain replays every queued mutation in order. A mutation that fails is
// kept with its attempt count bumped and the pass moves on to the next one,
// so a single bad row never blocks the rest. Concurrent calls wait for the
// running pass to finish.
func (q *Queue) Drain(ctx context.Context, r Replayer) (DrainResult, error) {
	q.drainMu.Lock()
	defer q.drainMu.Unlock()

	pending, err := q.repo.List(ctx)
	if err != nil {
		return DrainResult{}, err
	}
	if len(pending) == 0 {
		return DrainResult{}, nil
	}

	q.recordState(models.SyncStatusSyncing, "")

	var res DrainResult
	var lastErr error
	for _, m := range pending {
		if ctx.Err() != nil {
			break
		}
		if err := r.Replay(ctx, m); err != nil {
			res.Failed++
			lastErr = err
			q.logger.Warn("replay failed", "id", m.ID, "mutation", m.String(), "attempts", m.Attempts+1, "err", err)
			if rerr := q.repo.RecordFailure(ctx, m.ID, err.Error()); rerr != nil {
				q.logger.Error("failed to record replay failure", "id", m.ID, "err", rerr)
			}
			continue
		}
		if err := q.repo.Delete(ctx, m.ID); err != nil {
			// The write landed; a leftover row would replay it twice.
			return res, fmt.Errorf("failed to remove replayed mutation %s: %w", m.ID, err)
		}
		res.Succeeded++
	}

	remaining, err := q.repo.Count(ctx)
	if err != nil {
		return res, err
	}
	res.Remaining = remaining

	if lastErr != nil {
		q.recordState(models.SyncStatusError, lastErr.Error())
	} else {
		q.recordState(models.SyncStatusIdle, "")
	}
	q.logger.Info("drained queue", "succeeded", res.Succeeded, "failed", res.Failed, "remaining", res.Remaining)
	return res, nil
}

// State returns the last recorded drain state, or nil if none was recorded.
func (q *Queue) State() (*models.SyncState, error) {
	return db.GetSyncState(q.db, db.ServiceQueue)
}

func (q *Queue) recordState(status, msg string) {
	var err error
	if status == models.SyncStatusIdle {
		err = db.MarkSyncSuccess(q.db, db.ServiceQueue)
	} else {
		err = db.UpdateSyncStatus(q.db, db.ServiceQueue, status, msg)
	}
	if err != nil {
		q.logger.Warn("failed to record queue state", "status", status, "err", err)
	}
}
