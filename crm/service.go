// ABOUTME: CRM operations over the lead sheet: cached reads, queued writes, notifications
// ABOUTME: Built once with explicit dependencies and torn down with Close
package crm

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadsheet/cache"
	"github.com/harperreed/leadsheet/connectivity"
	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/queue"
	"github.com/harperreed/leadsheet/rowmap"
	"github.com/harperreed/leadsheet/transport"
)

// DefaultRefreshInterval is the background cache refresh interval.
const DefaultRefreshInterval = 30 * time.Second

// Sheets is the transport the service writes through.
type Sheets interface {
	ReadRows(ctx context.Context, sheet string) ([][]string, error)
	AppendRow(ctx context.Context, sheet string, row []string) error
	BatchUpdateCells(ctx context.Context, sheet string, cells []transport.Cell) error
}

// Options configures a Service. Sheets, Cache and Queue are required.
type Options struct {
	Sheets          Sheets
	Layouts         *rowmap.Layouts
	Cache           *cache.Cache
	Queue           *queue.Queue
	Monitor         *connectivity.Monitor
	DB              *sql.DB
	RefreshInterval time.Duration
	Location        *time.Location
	Now             func() time.Time
	Logger          *log.Logger
}

// Service is safe for concurrent use.
type Service struct {
	sheets   Sheets
	layouts  rowmap.Layouts
	cache    *cache.Cache
	queue    *queue.Queue
	monitor  *connectivity.Monitor
	db       *sql.DB
	interval time.Duration
	loc      *time.Location
	now      func() time.Time
	logger   *log.Logger

	closed  atomic.Bool
	mu      sync.Mutex
	started bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

// New creates a Service.
func New(opts Options) (*Service, error) {
	if opts.Sheets == nil || opts.Cache == nil || opts.Queue == nil {
		return nil, errors.New("crm: sheets, cache and queue are required")
	}
	s := &Service{
		sheets:   opts.Sheets,
		cache:    opts.Cache,
		queue:    opts.Queue,
		monitor:  opts.Monitor,
		db:       opts.DB,
		interval: opts.RefreshInterval,
		loc:      opts.Location,
		now:      opts.Now,
		logger:   opts.Logger,
	}
	if opts.Layouts != nil {
		s.layouts = *opts.Layouts
	} else {
		s.layouts = rowmap.DefaultLayouts()
	}
	if s.interval <= 0 {
		s.interval = DefaultRefreshInterval
	}
	if s.loc == nil {
		s.loc = time.Local
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.logger == nil {
		s.logger = log.Default().WithPrefix("crm")
	}
	return s, nil
}

// Layouts returns the worksheet layouts in use.
func (s *Service) Layouts() rowmap.Layouts {
	return s.layouts
}

func (s *Service) sheet(kind rowmap.Kind) string {
	return s.layouts.Sheet(kind)
}

func (s *Service) timestamp() string {
	return models.FormatSheetTime(s.now().In(s.loc))
}

// FetchLeads returns leads from the cache while it is valid; otherwise, or
// when force is set, it reads the sheet and refreshes the cache.
func (s *Service) FetchLeads(ctx context.Context, force bool) ([]models.Lead, error) {
	if s.closed.Load() {
		return nil, ErrClosed
	}
	if !force {
		if res := s.cache.Get(); res.IsValid {
			return res.Leads, nil
		}
	}
	return s.fetchLeads(ctx)
}

func (s *Service) fetchLeads(ctx context.Context) ([]models.Lead, error) {
	fetchStart := s.now()
	rows, err := s.sheets.ReadRows(ctx, s.sheet(rowmap.KindLeads))
	if err != nil {
		s.recordState(models.SyncStatusError, err.Error())
		return nil, fmt.Errorf("failed to fetch leads: %w", err)
	}
	leads := rowmap.ParseLeads(s.layouts, rows)

	// A result arriving after Close must not be applied.
	if s.closed.Load() {
		return leads, nil
	}
	s.cache.SetFetched(leads, fetchStart)
	s.recordState(models.SyncStatusIdle, "")
	return leads, nil
}

// CachedLeads returns the cached snapshot when it is valid and fetches
// otherwise. A failed fetch falls back to a stale snapshot if one exists.
func (s *Service) CachedLeads(ctx context.Context) ([]models.Lead, error) {
	res := s.cache.Get()
	if res.IsValid {
		return res.Leads, nil
	}
	leads, err := s.FetchLeads(ctx, true)
	if err != nil && len(res.Leads) > 0 {
		s.logger.Warn("using stale leads", "fetched_at", res.FetchedAt, "err", err)
		return res.Leads, nil
	}
	return leads, err
}

// RefreshSilently forces a fetch and logs any failure. It reports whether
// the sheet answered.
func (s *Service) RefreshSilently(ctx context.Context) bool {
	if _, err := s.FetchLeads(ctx, true); err != nil {
		if !errors.Is(err, ErrClosed) && ctx.Err() == nil {
			s.logger.Warn("background refresh failed", "err", err)
		}
		return false
	}
	return true
}

// AppendLead appends lead as a new row. Blank creation and update times
// are filled in.
func (s *Service) AppendLead(ctx context.Context, lead models.Lead) (models.Lead, error) {
	if s.closed.Load() {
		return lead, ErrClosed
	}
	ts := s.timestamp()
	if strings.TrimSpace(lead.DateAndTime) == "" {
		lead.DateAndTime = ts
	}
	if strings.TrimSpace(lead.LastUpdated) == "" {
		lead.LastUpdated = ts
	}
	if strings.TrimSpace(lead.TravellerName) == "" && strings.TrimSpace(lead.TripID) == "" {
		return lead, errors.New("a lead needs a traveller name or a trip id")
	}

	sheet := s.sheet(rowmap.KindLeads)
	row := rowmap.LeadRow(s.layouts, lead)
	if err := s.sheets.AppendRow(ctx, sheet, row); err != nil {
		return lead, s.writeFailed(ctx, "add lead", models.NewAppendMutation(sheet, row), err)
	}
	s.cache.Invalidate()
	s.logger.Info("added lead", "lead", lead.Identity())
	return lead, nil
}

// UpdateLead writes changes (field name to value) to the row matching id.
// The last-updated column is stamped unless changes set it.
func (s *Service) UpdateLead(ctx context.Context, id models.Identity, changes map[string]string) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if err := id.Validate(); err != nil {
		return err
	}
	if len(changes) == 0 {
		return errors.New("no changes to write")
	}
	stamped := make(map[string]string, len(changes)+1)
	for k, v := range changes {
		stamped[k] = v
	}
	if _, ok := stamped[rowmap.FieldLastUpdated]; !ok {
		stamped[rowmap.FieldLastUpdated] = s.timestamp()
	}
	if _, err := rowmap.LeadChangeColumns(s.layouts, stamped); err != nil {
		return err
	}

	sheet := s.sheet(rowmap.KindLeads)
	if err := s.applyUpdate(ctx, sheet, id, stamped); err != nil {
		return s.writeFailed(ctx, "update lead", models.NewUpdateMutation(sheet, id, stamped), err)
	}
	s.cache.Invalidate()
	s.logger.Info("updated lead", "lead", id, "fields", len(stamped))
	return nil
}

// AssignConsultant sets the consultant of the lead matching id.
func (s *Service) AssignConsultant(ctx context.Context, id models.Identity, consultant string) error {
	return s.UpdateLead(ctx, id, map[string]string{rowmap.FieldConsultant: strings.TrimSpace(consultant)})
}

// SetPriority sets the priority of the lead matching id.
func (s *Service) SetPriority(ctx context.Context, id models.Identity, priority string) error {
	if !models.ValidPriority(priority) {
		return fmt.Errorf("invalid priority %q (want high, medium or low)", priority)
	}
	return s.UpdateLead(ctx, id, map[string]string{rowmap.FieldPriority: string(models.ParsePriority(priority))})
}

// SetStatus sets the status text of the lead matching id.
func (s *Service) SetStatus(ctx context.Context, id models.Identity, status string) error {
	return s.UpdateLead(ctx, id, map[string]string{rowmap.FieldStatus: strings.TrimSpace(status)})
}

// applyUpdate locates the row for id and writes every change as a single
// cell in one batch.
func (s *Service) applyUpdate(ctx context.Context, sheet string, id models.Identity, changes map[string]string) error {
	cols, err := rowmap.LeadChangeColumns(s.layouts, changes)
	if err != nil {
		return err
	}
	rows, err := s.sheets.ReadRows(ctx, sheet)
	if err != nil {
		return err
	}
	rowNumber, _, ok := rowmap.LocateLead(s.layouts, rows, id)
	if !ok {
		return &NotFoundError{Identity: id}
	}
	cells := make([]transport.Cell, 0, len(cols))
	for col, value := range cols {
		cells = append(cells, transport.Cell{Row: rowNumber, Column: col, Value: value})
	}
	return s.sheets.BatchUpdateCells(ctx, sheet, cells)
}

// PostBlackboard appends a message to the blackboard and announces it.
func (s *Service) PostBlackboard(ctx context.Context, author, message string) (models.BlackboardPost, error) {
	if s.closed.Load() {
		return models.BlackboardPost{}, ErrClosed
	}
	post := models.BlackboardPost{PostedAt: s.timestamp(), Author: strings.TrimSpace(author), Message: strings.TrimSpace(message)}
	if post.Message == "" {
		return post, errors.New("message is empty")
	}

	sheet := s.sheet(rowmap.KindBlackboard)
	row := rowmap.BlackboardRow(s.layouts, post)
	if err := s.sheets.AppendRow(ctx, sheet, row); err != nil {
		return post, s.writeFailed(ctx, "post to blackboard", models.NewAppendMutation(sheet, row), err)
	}

	title := "Blackboard"
	if post.Author != "" {
		title = "Blackboard: " + post.Author
	}
	if err := s.AppendNotification(ctx, models.Notification{
		Title:     title,
		Message:   post.Message,
		Category:  models.CategoryBlackboard,
		CreatedAt: post.PostedAt,
	}); err != nil {
		s.logger.Warn("failed to announce blackboard post", "err", err)
	}
	return post, nil
}

// FetchBlackboard returns blackboard posts in sheet order.
func (s *Service) FetchBlackboard(ctx context.Context) ([]models.BlackboardPost, error) {
	rows, err := s.sheets.ReadRows(ctx, s.sheet(rowmap.KindBlackboard))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch blackboard: %w", err)
	}
	return rowmap.ParseBlackboard(s.layouts, rows), nil
}

// FetchUsers returns the Users worksheet.
func (s *Service) FetchUsers(ctx context.Context) ([]models.User, error) {
	rows, err := s.sheets.ReadRows(ctx, s.sheet(rowmap.KindUsers))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch users: %w", err)
	}
	return rowmap.ParseUsers(s.layouts, rows), nil
}

// FetchNotifications returns notifications visible to recipient (all of
// them when recipient is empty), optionally only unread ones.
func (s *Service) FetchNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]models.Notification, error) {
	rows, err := s.sheets.ReadRows(ctx, s.sheet(rowmap.KindNotifications))
	if err != nil {
		return nil, fmt.Errorf("failed to fetch notifications: %w", err)
	}
	all := rowmap.ParseNotifications(s.layouts, rows)
	out := make([]models.Notification, 0, len(all))
	for _, n := range all {
		if recipient != "" && !n.VisibleTo(recipient) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, nil
}

// MarkNotificationRead sets the read flag on the notification at rowNumber,
// the sheet row it was read from.
func (s *Service) MarkNotificationRead(ctx context.Context, rowNumber int) error {
	if s.closed.Load() {
		return ErrClosed
	}
	if rowNumber < 2 {
		return fmt.Errorf("invalid notification row %d", rowNumber)
	}
	cell := transport.Cell{Row: rowNumber, Column: rowmap.NotificationReadColumn(s.layouts), Value: "TRUE"}
	if err := s.sheets.BatchUpdateCells(ctx, s.sheet(rowmap.KindNotifications), []transport.Cell{cell}); err != nil {
		return &WriteError{Op: "mark notification read", Err: err}
	}
	return nil
}

// AppendNotification writes one notification row. Failures are returned,
// not queued.
func (s *Service) AppendNotification(ctx context.Context, n models.Notification) error {
	if n.CreatedAt == "" {
		n.CreatedAt = s.timestamp()
	}
	row := rowmap.NotificationRow(s.layouts, n)
	if err := s.sheets.AppendRow(ctx, s.sheet(rowmap.KindNotifications), row); err != nil {
		return fmt.Errorf("failed to append notification: %w", err)
	}
	return nil
}

// ReplayMutation submits a queued mutation without queueing it again.
func (s *Service) ReplayMutation(ctx context.Context, m models.Mutation) error {
	var err error
	switch m.Kind {
	case models.MutationAppend:
		err = s.sheets.AppendRow(ctx, m.TargetSheet, m.Row)
	case models.MutationUpdate:
		if m.Identity == nil {
			return errors.New("update mutation has no identity")
		}
		err = s.applyUpdate(ctx, m.TargetSheet, *m.Identity, m.Changes)
	default:
		return fmt.Errorf("unknown mutation kind %q", m.Kind)
	}
	if err != nil {
		return err
	}
	if m.TargetSheet == s.sheet(rowmap.KindLeads) {
		s.cache.Invalidate()
	}
	return nil
}

// DrainQueue replays queued writes.
func (s *Service) DrainQueue(ctx context.Context) (queue.DrainResult, error) {
	return s.queue.Drain(ctx, queue.ReplayFunc(s.ReplayMutation))
}

// QueueLength returns the number of queued writes.
func (s *Service) QueueLength(ctx context.Context) (int, error) {
	return s.queue.Len(ctx)
}

// PendingWrites returns queued writes in replay order.
func (s *Service) PendingWrites(ctx context.Context) ([]models.Mutation, error) {
	return s.queue.Pending(ctx)
}

// Online reports the connectivity monitor's view; true without a monitor.
func (s *Service) Online() bool {
	if s.monitor == nil {
		return true
	}
	return s.monitor.Online()
}

// StartBackground starts the periodic cache refresh and, with a monitor,
// drains the queue on every reconnect. Later calls do nothing.
func (s *Service) StartBackground(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started || s.closed.Load() {
		return
	}
	s.started = true
	ctx, s.cancel = context.WithCancel(ctx)

	if s.monitor != nil {
		s.monitor.Subscribe(func() {
			if s.closed.Load() {
				return
			}
			if _, err := s.DrainQueue(ctx); err != nil {
				s.logger.Warn("queue drain failed", "err", err)
			}
		})
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.refreshLoop(ctx)
	}()
}

func (s *Service) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.refreshAndReplay(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.refreshAndReplay(ctx)
		}
	}
}

// refreshAndReplay refreshes the cache and, once the sheet has answered,
// replays any writes still queued.
func (s *Service) refreshAndReplay(ctx context.Context) {
	if !s.RefreshSilently(ctx) {
		return
	}
	n, err := s.queue.Len(ctx)
	if err != nil || n == 0 {
		return
	}
	if _, err := s.DrainQueue(ctx); err != nil && ctx.Err() == nil {
		s.logger.Warn("queue drain failed", "err", err)
	}
}

// Close stops background work. Results that arrive afterwards are dropped.
func (s *Service) Close() {
	if !s.closed.CompareAndSwap(false, true) {
		return
	}
	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	s.wg.Wait()
}

// writeFailed queues m and wraps err for the caller. An unreachable sheet
// also marks the monitor offline so the next good probe replays the queue.
func (s *Service) writeFailed(ctx context.Context, op string, m models.Mutation, err error) error {
	if s.monitor != nil && transport.IsUnreachable(err) {
		s.monitor.SetOnline(false)
	}
	werr := &WriteError{Op: op, Err: err}
	queued, qerr := s.queue.Enqueue(ctx, m)
	if qerr != nil {
		s.logger.Error("failed to queue write", "op", op, "err", qerr)
		return werr
	}
	werr.Queued = true
	s.logger.Warn("write failed, queued for replay", "op", op, "id", queued.ID, "err", err)
	return werr
}

func (s *Service) recordState(status, msg string) {
	if s.db == nil {
		return
	}
	var err error
	if status == models.SyncStatusIdle {
		err = db.MarkSyncSuccess(s.db, db.ServiceLeads)
	} else {
		err = db.UpdateSyncStatus(s.db, db.ServiceLeads, status, msg)
	}
	if err != nil {
		s.logger.Warn("failed to record lead sync state", "err", err)
	}
}

// SyncStates returns the recorded state of every background job.
func (s *Service) SyncStates() ([]models.SyncState, error) {
	if s.db == nil {
		return nil, nil
	}
	return db.GetAllSyncStates(s.db)
}
