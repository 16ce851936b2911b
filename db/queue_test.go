// ABOUTME: Tests for the offline queue repository
// ABOUTME: Verifies enqueue order, payload round trip, failure bookkeeping and deletion
package db

import (
	"context"
	"testing"

	"github.com/harperreed/leadsheet/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueueRepositoryOrderAndPayload(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(setupTestDB(t))

	first := models.NewAppendMutation("MASTER DATA", []string{"d1", "", "Asha"})
	first.ID = "01-first"
	second := models.NewUpdateMutation("MASTER DATA", models.ByDateAndName("d1", "Asha"), map[string]string{"status": "Hot"})
	second.ID = "02-second"
	third := models.NewAppendMutation("Blackboard", []string{"t", "Jane", "hi"})
	third.ID = "00-third"

	for _, m := range []*models.Mutation{&first, &second, &third} {
		require.NoError(t, repo.Append(ctx, m))
		assert.False(t, m.EnqueuedAt.IsZero())
	}

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 3)

	// seq order, not id order
	assert.Equal(t, []string{"01-first", "02-second", "00-third"}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, models.MutationAppend, list[0].Kind)
	assert.Equal(t, []string{"d1", "", "Asha"}, list[0].Row)
	assert.Equal(t, models.MutationUpdate, list[1].Kind)
	require.NotNil(t, list[1].Identity)
	assert.Equal(t, models.ByDateAndName("d1", "Asha"), *list[1].Identity)
	assert.Equal(t, map[string]string{"status": "Hot"}, list[1].Changes)
	assert.Equal(t, "Blackboard", list[2].TargetSheet)

	n, err := repo.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}

func TestQueueRepositoryFailureKeepsPosition(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(setupTestDB(t))

	ids := []string{"a", "b", "c"}
	for _, id := range ids {
		m := models.NewAppendMutation("MASTER DATA", []string{id})
		m.ID = id
		require.NoError(t, repo.Append(ctx, &m))
	}

	require.NoError(t, repo.RecordFailure(ctx, "b", "503 unavailable"))
	require.NoError(t, repo.Delete(ctx, "a"))
	require.NoError(t, repo.Delete(ctx, "c"))

	list, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "b", list[0].ID)
	assert.Equal(t, 1, list[0].Attempts)
	assert.Equal(t, "503 unavailable", list[0].LastError)

	assert.ErrorIs(t, repo.Delete(ctx, "a"), ErrMutationNotFound)
	assert.ErrorIs(t, repo.RecordFailure(ctx, "zzz", "x"), ErrMutationNotFound)
}

func TestQueueRepositoryRejectsInvalid(t *testing.T) {
	ctx := context.Background()
	repo := NewQueueRepository(setupTestDB(t))

	assert.ErrorIs(t, repo.Append(ctx, nil), ErrInvalidMutation)

	noID := models.NewAppendMutation("MASTER DATA", []string{"x"})
	assert.ErrorIs(t, repo.Append(ctx, &noID), ErrInvalidMutation)

	empty := models.NewAppendMutation("MASTER DATA", nil)
	empty.ID = "e"
	assert.ErrorIs(t, repo.Append(ctx, &empty), ErrInvalidMutation)
}
