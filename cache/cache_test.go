// ABOUTME: Tests for the lead snapshot cache
// ABOUTME: Covers the freshness boundary, tier hydration and stale write rejection
package cache

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/store"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func newTestCache(t *testing.T) (*Cache, *fakeClock, *store.MemoryKV, *store.MemoryKV) {
	t.Helper()
	clock := &fakeClock{t: time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)}
	secure := store.NewMemoryKV()
	plain := store.NewMemoryKV()
	c := New(Options{Secure: secure, Plain: plain, Now: clock.Now})
	return c, clock, secure, plain
}

func leads(names ...string) []models.Lead {
	out := make([]models.Lead, 0, len(names))
	for _, n := range names {
		out = append(out, models.Lead{TravellerName: n, DateAndTime: "01/04/2025 10:00:00"})
	}
	return out
}

func TestEmptyCacheIsInvalid(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	res := c.Get()
	assert.False(t, res.IsValid)
	assert.Empty(t, res.Leads)
}

func TestFreshnessBoundary(t *testing.T) {
	tests := []struct {
		name  string
		age   time.Duration
		valid bool
	}{
		{"just written", 0, true},
		{"one millisecond before expiry", 299999 * time.Millisecond, true},
		{"exactly at expiry", 300000 * time.Millisecond, false},
		{"one millisecond after expiry", 300001 * time.Millisecond, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, clock, _, _ := newTestCache(t)
			c.Set(leads("Asha"))
			clock.Advance(tt.age)

			res := c.Get()
			assert.Equal(t, tt.valid, res.IsValid)
			assert.Len(t, res.Leads, 1, "expired snapshots are still returned")
		})
	}
}

func TestEmptySnapshotNeverValid(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	c.Set(nil)

	res := c.Get()
	assert.False(t, res.IsValid)
	assert.NotNil(t, res.Leads)
	assert.Empty(t, res.Leads)
}

func TestSetWritesEveryTier(t *testing.T) {
	c, _, secure, plain := newTestCache(t)
	c.Set(leads("Asha", "Ravi"))

	for name, kv := range map[string]*store.MemoryKV{"secure": secure, "plain": plain} {
		var snap Snapshot
		ok, err := store.GetJSON(kv, SnapshotKey, &snap)
		require.NoError(t, err)
		require.True(t, ok, name)
		assert.Len(t, snap.Leads, 2, name)
	}
}

func TestHydratesFromNewestTier(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)}
	secure := store.NewMemoryKV()
	plain := store.NewMemoryKV()

	older := Snapshot{Leads: leads("Old"), FetchedAtEpochMillis: clock.t.Add(-2 * time.Minute).UnixMilli()}
	newer := Snapshot{Leads: leads("New"), FetchedAtEpochMillis: clock.t.Add(-1 * time.Minute).UnixMilli()}
	require.NoError(t, store.SetJSON(secure, SnapshotKey, older))
	require.NoError(t, store.SetJSON(plain, SnapshotKey, newer))

	c := New(Options{Secure: secure, Plain: plain, Now: clock.Now})
	res := c.Get()
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "New", res.Leads[0].TravellerName)
	assert.True(t, res.IsValid)
	assert.Equal(t, newer.FetchedAtEpochMillis, res.FetchedAt.UnixMilli())
}

func TestStaleSetFetchedIgnored(t *testing.T) {
	c, clock, _, plain := newTestCache(t)

	backgroundStart := clock.Now()
	clock.Advance(time.Second)
	foregroundStart := clock.Now()

	assert.True(t, c.SetFetched(leads("Foreground"), foregroundStart))
	assert.False(t, c.SetFetched(leads("Background"), backgroundStart))

	res := c.Get()
	require.Len(t, res.Leads, 1)
	assert.Equal(t, "Foreground", res.Leads[0].TravellerName)

	var snap Snapshot
	ok, err := store.GetJSON(plain, SnapshotKey, &snap)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Foreground", snap.Leads[0].TravellerName)
}

func TestStaleWriteLosesToPersistedSnapshot(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)}
	plain := store.NewMemoryKV()
	require.NoError(t, store.SetJSON(plain, SnapshotKey, Snapshot{Leads: leads("Persisted"), FetchedAtEpochMillis: clock.t.UnixMilli()}))

	c := New(Options{Plain: plain, Now: clock.Now})
	assert.False(t, c.SetFetched(leads("Older"), clock.t.Add(-time.Second)))
	assert.Equal(t, "Persisted", c.Get().Leads[0].TravellerName)
}

func TestInvalidateClearsEveryTier(t *testing.T) {
	c, _, secure, plain := newTestCache(t)
	c.Set(leads("Asha"))

	c.Invalidate()

	res := c.Get()
	assert.False(t, res.IsValid)
	assert.Empty(t, res.Leads)
	assert.Equal(t, 0, secure.Len())
	assert.Equal(t, 0, plain.Len())
}

func TestGetReturnsCopy(t *testing.T) {
	c, _, _, _ := newTestCache(t)
	c.Set(leads("Asha"))

	res := c.Get()
	res.Leads[0].TravellerName = "Changed"
	assert.Equal(t, "Asha", c.Get().Leads[0].TravellerName)
}

func TestCustomFreshness(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 4, 3, 10, 0, 0, 0, time.UTC)}
	c := New(Options{Freshness: time.Minute, Now: clock.Now})
	c.Set(leads("Asha"))

	clock.Advance(59 * time.Second)
	assert.True(t, c.Get().IsValid)
	clock.Advance(time.Second)
	assert.False(t, c.Get().IsValid)
}
