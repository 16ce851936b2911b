// ABOUTME: Polls leads, compares them with the watermark and writes notification rows
// ABOUTME: Assignment, booking and new-lead rules fire on transitions; trip reminders repeat
package notify

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/store"
)

// DefaultInterval is the poll interval.
const DefaultInterval = 60 * time.Second

// reminderWindowDays covers today, tomorrow and the day after.
const reminderWindowDays = 2

// Source supplies leads and users and accepts new notifications.
type Source interface {
	// CachedLeads returns the cached lead snapshot, fetching only when
	// nothing usable is cached.
	CachedLeads(ctx context.Context) ([]models.Lead, error)
	FetchUsers(ctx context.Context) ([]models.User, error)
	AppendNotification(ctx context.Context, n models.Notification) error
}

// Options configures a Differ.
type Options struct {
	Source   Source
	Store    store.KV
	DB       *sql.DB
	Interval time.Duration
	Location *time.Location
	Now      func() time.Time
	Logger   *log.Logger
}

// Summary reports one cycle.
type Summary struct {
	Leads   int
	Emitted int
	Failed  int
}

// Differ runs notification cycles. Cycles never overlap.
type Differ struct {
	source   Source
	kv       store.KV
	db       *sql.DB
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger

	mu sync.Mutex
}

// New creates a Differ.
func New(opts Options) *Differ {
	d := &Differ{
		source:   opts.Source,
		kv:       opts.Store,
		db:       opts.DB,
		interval: opts.Interval,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if d.interval <= 0 {
		d.interval = DefaultInterval
	}
	if d.loc == nil {
		d.loc = time.Local
	}
	if d.now == nil {
		d.now = time.Now
	}
	if d.logger == nil {
		d.logger = log.Default().WithPrefix("notify")
	}
	if d.kv == nil {
		d.kv = store.NewMemoryKV()
	}
	return d
}

// Run executes a cycle immediately and then on every tick until ctx ends.
func (d *Differ) Run(ctx context.Context) {
	ticker := time.NewTicker(d.interval)
	defer ticker.Stop()

	for {
		if _, err := d.RunCycle(ctx); err != nil && ctx.Err() == nil {
			d.logger.Warn("notification cycle failed", "err", err)
		}
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// RunCycle evaluates every lead once. A failed emission is logged and the
// cycle continues; the watermark is saved in full after all leads are seen.
func (d *Differ) RunCycle(ctx context.Context) (Summary, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	d.recordState(models.SyncStatusSyncing, "")

	summary, err := d.cycle(ctx)
	if err != nil {
		d.recordState(models.SyncStatusError, err.Error())
		return summary, err
	}
	if summary.Failed > 0 {
		d.recordState(models.SyncStatusError, fmt.Sprintf("%d notifications failed", summary.Failed))
	} else {
		d.recordState(models.SyncStatusIdle, "")
	}
	return summary, nil
}

func (d *Differ) cycle(ctx context.Context) (Summary, error) {
	var summary Summary

	leads, err := d.source.CachedLeads(ctx)
	if err != nil {
		return summary, fmt.Errorf("failed to load leads: %w", err)
	}
	summary.Leads = len(leads)

	users, err := d.source.FetchUsers(ctx)
	haveDirectory := err == nil
	if err != nil {
		d.logger.Warn("failed to fetch users, continuing without a directory", "err", err)
		users = nil
	}
	dir := NewDirectory(users)

	wm, err := LoadWatermark(d.kv)
	if err != nil {
		return summary, err
	}

	now := d.now()
	for _, lead := range leads {
		key := models.WatermarkKey(lead)
		if key == "|" {
			continue
		}
		prev, seen := wm[key]
		for _, n := range d.evaluate(lead, prev, seen, dir, now) {
			if err := d.source.AppendNotification(ctx, n); err != nil {
				summary.Failed++
				d.logger.Error("failed to write notification", "category", n.Category, "lead", key, "recipient", n.RecipientEmail, "err", err)
				continue
			}
			summary.Emitted++
		}
		if !seen && !lead.Assigned() && !haveDirectory {
			// Leave it unseen so the new-lead rule fires once admins are known.
			continue
		}
		wm[key] = observe(lead)
	}

	if err := SaveWatermark(d.kv, wm); err != nil {
		return summary, err
	}
	d.logger.Debug("notification cycle done", "leads", summary.Leads, "emitted", summary.Emitted, "failed", summary.Failed)
	return summary, nil
}

// evaluate applies the rules to one lead and returns the notifications to
// write.
func (d *Differ) evaluate(lead models.Lead, prev Observation, seen bool, dir *Directory, now time.Time) []models.Notification {
	var out []models.Notification
	name := leadLabel(lead)

	if !seen && !lead.Assigned() {
		admins := dir.AdminEmails()
		if len(admins) == 0 {
			d.logger.Warn("new unassigned lead but no admins to notify", "lead", name)
		}
		for _, email := range admins {
			out = append(out, d.notification(now, models.CategoryNewLead, "New unassigned lead",
				fmt.Sprintf("%s%s is waiting for a consultant", name, destinationSuffix(lead)), email))
		}
	}

	if seen && models.IsUnassigned(prev.Consultant) && lead.Assigned() {
		out = append(out, d.notification(now, models.CategoryLeadAssigned, "Lead assigned",
			fmt.Sprintf("%s has been assigned to %s", name, strings.TrimSpace(lead.Consultant)), ""))
	}

	if models.IsBooked(lead.Status) {
		if days, ok := d.daysUntilTravel(lead, now); ok && days >= 0 && days <= reminderWindowDays {
			for _, email := range reminderRecipients(lead, dir) {
				out = append(out, d.notification(now, models.CategoryTripReminder, "Upcoming trip",
					fmt.Sprintf("%s travels %s%s", name, dayPhrase(days), destinationSuffix(lead)), email))
			}
		}
	}

	if seen && !models.IsBooked(prev.Status) && models.IsBooked(lead.Status) {
		out = append(out, d.notification(now, models.CategoryLeadBooked, "Lead booked",
			fmt.Sprintf("%s is booked%s", name, destinationSuffix(lead)), ""))
	}

	return out
}

func (d *Differ) daysUntilTravel(lead models.Lead, now time.Time) (int, bool) {
	if strings.TrimSpace(lead.TravelDate) == "" {
		return 0, false
	}
	t, err := models.ParseSheetDate(lead.TravelDate, d.loc)
	if err != nil {
		d.logger.Debug("unparseable travel date", "lead", leadLabel(lead), "value", lead.TravelDate)
		return 0, false
	}
	return models.DaysFromToday(t, now, d.loc), true
}

func (d *Differ) notification(now time.Time, cat models.NotificationCategory, title, message, recipient string) models.Notification {
	return models.Notification{
		ID:             uuid.NewString(),
		Title:          title,
		Message:        message,
		Category:       cat,
		CreatedAt:      models.FormatSheetTime(now.In(d.loc)),
		RecipientEmail: recipient,
	}
}

func (d *Differ) recordState(status, msg string) {
	if d.db == nil {
		return
	}
	var err error
	if status == models.SyncStatusIdle {
		err = db.MarkSyncSuccess(d.db, db.ServiceNotifications)
	} else {
		err = db.UpdateSyncStatus(d.db, db.ServiceNotifications, status, msg)
	}
	if err != nil {
		d.logger.Warn("failed to record notification state", "err", err)
	}
}

// reminderRecipients is the consultant's email, when resolvable, followed by
// the admins, each at most once.
func reminderRecipients(lead models.Lead, dir *Directory) []string {
	var out []string
	seen := make(map[string]bool)
	add := func(email string) {
		k := normalizeEmail(email)
		if k == "" || seen[k] {
			return
		}
		seen[k] = true
		out = append(out, email)
	}
	if lead.Assigned() {
		if email, ok := dir.EmailFor(lead.Consultant); ok {
			add(email)
		}
	}
	for _, email := range dir.AdminEmails() {
		add(email)
	}
	return out
}

func leadLabel(l models.Lead) string {
	if name := strings.TrimSpace(l.TravellerName); name != "" {
		return name
	}
	if id := strings.TrimSpace(l.TripID); id != "" {
		return "Trip " + id
	}
	return "A lead"
}

func destinationSuffix(l models.Lead) string {
	if dest := strings.TrimSpace(l.Destination); dest != "" {
		return " (" + dest + ")"
	}
	return ""
}

func dayPhrase(days int) string {
	switch days {
	case 0:
		return "today"
	case 1:
		return "tomorrow"
	default:
		return fmt.Sprintf("in %d days", days)
	}
}
