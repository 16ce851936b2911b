// ABOUTME: Tests for the offline mutation queue
// ABOUTME: Verifies ordering, failure retention and serialized drains
package queue

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/models"
)

func newTestQueue(t *testing.T) *Queue {
	t.Helper()
	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "queue.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return New(database, nil)
}

func appendRow(value string) models.Mutation {
	return models.NewAppendMutation("Blackboard", []string{value})
}

// recorder replays mutations, failing those whose first cell is in fail.
type recorder struct {
	mu    sync.Mutex
	fail  map[string]bool
	calls []string
}

func (r *recorder) Replay(_ context.Context, m models.Mutation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls = append(r.calls, m.Row[0])
	if r.fail[m.Row[0]] {
		return errors.New("sheet unavailable")
	}
	return nil
}

func TestEnqueueAssignsIDsInOrder(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()

	first, err := q.Enqueue(ctx, appendRow("one"))
	require.NoError(t, err)
	second, err := q.Enqueue(ctx, appendRow("two"))
	require.NoError(t, err)

	assert.Len(t, first.ID, 26)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Less(t, first.ID, second.ID, "ids sort in enqueue order")

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestEnqueueRejectsInvalidMutation(t *testing.T) {
	q := newTestQueue(t)
	_, err := q.Enqueue(context.Background(), models.Mutation{Kind: models.MutationAppend})
	assert.ErrorIs(t, err, db.ErrInvalidMutation)
}

func TestDrainKeepsOnlyFailedMutation(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	for _, v := range []string{"one", "two", "three"} {
		_, err := q.Enqueue(ctx, appendRow(v))
		require.NoError(t, err)
	}

	r := &recorder{fail: map[string]bool{"two": true}}
	res, err := q.Drain(ctx, r)
	require.NoError(t, err)

	assert.Equal(t, []string{"one", "two", "three"}, r.calls, "each mutation submitted once, in order")
	assert.Equal(t, DrainResult{Succeeded: 2, Failed: 1, Remaining: 1}, res)

	pending, err := q.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "two", pending[0].Row[0])
	assert.Equal(t, 1, pending[0].Attempts)
	assert.Equal(t, "sheet unavailable", pending[0].LastError)

	state, err := q.State()
	require.NoError(t, err)
	require.NotNil(t, state)
	assert.Equal(t, models.SyncStatusError, state.Status)
	assert.Equal(t, "sheet unavailable", state.ErrorMessage)
}

func TestDrainRetriesOnNextPass(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, appendRow("one"))
	require.NoError(t, err)

	_, err = q.Drain(ctx, &recorder{fail: map[string]bool{"one": true}})
	require.NoError(t, err)

	r := &recorder{}
	res, err := q.Drain(ctx, r)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{Succeeded: 1, Remaining: 0}, res)
	assert.Equal(t, []string{"one"}, r.calls)

	state, err := q.State()
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, state.Status)
	assert.NotNil(t, state.LastSyncTime)
}

func TestDrainEmptyQueue(t *testing.T) {
	q := newTestQueue(t)
	r := &recorder{}
	res, err := q.Drain(context.Background(), r)
	require.NoError(t, err)
	assert.Equal(t, DrainResult{}, res)
	assert.Empty(t, r.calls)
}

func TestConcurrentDrainsReplayOnce(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	for _, v := range []string{"a", "b", "c", "d"} {
		_, err := q.Enqueue(ctx, appendRow(v))
		require.NoError(t, err)
	}

	r := &recorder{}
	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := q.Drain(ctx, r)
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, []string{"a", "b", "c", "d"}, r.calls)
	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestReplayFunc(t *testing.T) {
	q := newTestQueue(t)
	ctx := context.Background()
	_, err := q.Enqueue(ctx, models.NewUpdateMutation("MASTER DATA", models.ByTripID("T1"), map[string]string{"status": "Booked"}))
	require.NoError(t, err)

	var got models.Mutation
	res, err := q.Drain(ctx, ReplayFunc(func(_ context.Context, m models.Mutation) error {
		got = m
		return nil
	}))
	require.NoError(t, err)
	assert.Equal(t, 1, res.Succeeded)
	require.NotNil(t, got.Identity)
	assert.Equal(t, "T1", got.Identity.TripID)
	assert.Equal(t, "Booked", got.Changes["status"])
}
