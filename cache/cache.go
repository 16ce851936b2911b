// ABOUTME: Lead snapshot cache with a freshness window and three persistence tiers
// ABOUTME: Memory, the encrypted store and the plain store are all written; reads hydrate from the newest
package cache

import (
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/store"
)

// DefaultFreshness is how long a snapshot is served without refetching.
const DefaultFreshness = 5 * time.Minute

// SnapshotKey is the KV key snapshots are stored under.
const SnapshotKey = "leads_snapshot"

// Snapshot is a whole lead collection and the time its fetch started.
type Snapshot struct {
	Leads                []models.Lead `json:"leads"`
	FetchedAtEpochMillis int64         `json:"fetchedAtEpochMillis"`
}

// FetchedAt returns the fetch time.
func (s Snapshot) FetchedAt() time.Time {
	return time.UnixMilli(s.FetchedAtEpochMillis)
}

// Result is what Get returns.
type Result struct {
	Leads     []models.Lead
	IsValid   bool
	FetchedAt time.Time
}

// Options configures a Cache. Nil tiers are skipped.
type Options struct {
	Secure    store.KV
	Plain     store.KV
	Freshness time.Duration
	Now       func() time.Time
	Logger    *log.Logger
}

type tier struct {
	name string
	kv   store.KV
}

// Cache is safe for concurrent use.
type Cache struct {
	mu        sync.Mutex
	mem       *Snapshot
	tiers     []tier
	freshness time.Duration
	now       func() time.Time
	logger    *log.Logger
}

// New creates a cache.
func New(opts Options) *Cache {
	c := &Cache{
		freshness: opts.Freshness,
		now:       opts.Now,
		logger:    opts.Logger,
	}
	if c.freshness <= 0 {
		c.freshness = DefaultFreshness
	}
	if c.now == nil {
		c.now = time.Now
	}
	if c.logger == nil {
		c.logger = log.Default().WithPrefix("cache")
	}
	if opts.Secure != nil {
		c.tiers = append(c.tiers, tier{name: "secure", kv: opts.Secure})
	}
	if opts.Plain != nil {
		c.tiers = append(c.tiers, tier{name: "plain", kv: opts.Plain})
	}
	return c
}

// Get returns the current snapshot. When memory holds nothing valid the
// snapshot with the newest fetch time across all tiers is loaded.
func (c *Cache) Get() Result {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.mem == nil || !c.valid(*c.mem) {
		if newest := c.newestLocked(); newest != nil {
			c.mem = newest
		}
	}
	if c.mem == nil {
		return Result{}
	}
	return Result{
		Leads:     copyLeads(c.mem.Leads),
		IsValid:   c.valid(*c.mem),
		FetchedAt: c.mem.FetchedAt(),
	}
}

// Set replaces the snapshot with leads fetched now.
func (c *Cache) Set(leads []models.Lead) {
	c.SetFetched(leads, c.now())
}

// SetFetched replaces the snapshot with leads whose fetch started at
// fetchedAt. A snapshot older than the one already held is dropped, so a
// slow background refresh cannot overwrite a newer foreground fetch. It
// reports whether the snapshot was stored.
func (c *Cache) SetFetched(leads []models.Lead, fetchedAt time.Time) bool {
	snap := Snapshot{Leads: copyLeads(leads), FetchedAtEpochMillis: fetchedAt.UnixMilli()}

	c.mu.Lock()
	defer c.mu.Unlock()

	if current := c.newestLocked(); current != nil && current.FetchedAtEpochMillis > snap.FetchedAtEpochMillis {
		c.logger.Debug("dropping stale snapshot", "fetched_at", fetchedAt, "held", current.FetchedAt())
		if c.mem == nil {
			c.mem = current
		}
		return false
	}

	c.mem = &snap
	for _, t := range c.tiers {
		if err := store.SetJSON(t.kv, SnapshotKey, snap); err != nil {
			c.logger.Warn("failed to persist snapshot", "tier", t.name, "err", err)
		}
	}
	return true
}

// Invalidate discards the snapshot in every tier.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.mem = nil
	for _, t := range c.tiers {
		if err := t.kv.Remove(SnapshotKey); err != nil {
			c.logger.Warn("failed to remove snapshot", "tier", t.name, "err", err)
		}
	}
}

// valid holds for a non-empty snapshot younger than the freshness window.
func (c *Cache) valid(s Snapshot) bool {
	if len(s.Leads) == 0 {
		return false
	}
	age := c.now().UnixMilli() - s.FetchedAtEpochMillis
	return age < c.freshness.Milliseconds()
}

// newestLocked returns the snapshot with the greatest fetch time among
// memory and the persisted tiers.
func (c *Cache) newestLocked() *Snapshot {
	newest := c.mem
	for _, t := range c.tiers {
		var s Snapshot
		ok, err := store.GetJSON(t.kv, SnapshotKey, &s)
		if err != nil {
			c.logger.Warn("failed to load snapshot", "tier", t.name, "err", err)
			continue
		}
		if !ok {
			continue
		}
		if newest == nil || s.FetchedAtEpochMillis > newest.FetchedAtEpochMillis {
			snap := s
			newest = &snap
		}
	}
	return newest
}

func copyLeads(leads []models.Lead) []models.Lead {
	if leads == nil {
		return []models.Lead{}
	}
	out := make([]models.Lead, len(leads))
	copy(out, leads)
	return out
}
