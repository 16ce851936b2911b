// ABOUTME: Terminal dashboard using bubbletea
// ABOUTME: Shows leads and notifications with a status bar for queue length and connectivity
package tui

import (
	"context"
	"time"

	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/queue"
)

// Source is what the dashboard reads from; crm.Service implements it.
type Source interface {
	FetchLeads(ctx context.Context, force bool) ([]models.Lead, error)
	FetchNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]models.Notification, error)
	QueueLength(ctx context.Context) (int, error)
	DrainQueue(ctx context.Context) (queue.DrainResult, error)
	Online() bool
}

// ViewMode selects the visible table.
type ViewMode int

const (
	ViewLeads ViewMode = iota
	ViewNotifications
)

// statusInterval is how often the status bar is refreshed.
const statusInterval = 5 * time.Second

// requestTimeout bounds each background request.
const requestTimeout = 30 * time.Second

type leadsMsg struct {
	leads []models.Lead
	err   error
}

type notificationsMsg struct {
	list []models.Notification
	err  error
}

type statusMsg struct {
	queueLen int
	online   bool
	err      error
}

type drainedMsg struct {
	res queue.DrainResult
	err error
}

type tickMsg time.Time

// Model is the main bubbletea model.
type Model struct {
	src       Source
	recipient string
	viewMode  ViewMode

	leads         []models.Lead
	notifications []models.Notification
	leadTable     table.Model
	noteTable     table.Model

	queueLen int
	online   bool
	loading  bool
	message  string
	err      error

	width  int
	height int
}

// NewModel creates a dashboard over src. recipient filters notifications.
func NewModel(src Source, recipient string) Model {
	m := Model{
		src:       src,
		recipient: recipient,
		viewMode:  ViewLeads,
		width:     100,
		height:    24,
		loading:   true,
	}
	m.leadTable = newTable(leadColumns(m.width), m.tableHeight())
	m.noteTable = newTable(notificationColumns(m.width), m.tableHeight())
	return m
}

func newTable(cols []table.Column, height int) table.Model {
	t := table.New(
		table.WithColumns(cols),
		table.WithFocused(true),
		table.WithHeight(height),
	)
	t.SetStyles(tableStyles())
	return t
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(m.fetchLeads(false), m.fetchNotifications(), m.fetchStatus(), tick())
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKeyPress(msg)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.leadTable.SetColumns(leadColumns(m.width))
		m.noteTable.SetColumns(notificationColumns(m.width))
		m.leadTable.SetHeight(m.tableHeight())
		m.noteTable.SetHeight(m.tableHeight())
		return m, nil

	case leadsMsg:
		m.loading = false
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.err = nil
		m.leads = msg.leads
		m.leadTable.SetRows(leadRows(msg.leads))
		return m, nil

	case notificationsMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, nil
		}
		m.notifications = msg.list
		m.noteTable.SetRows(notificationRows(msg.list))
		return m, nil

	case statusMsg:
		m.online = msg.online
		if msg.err == nil {
			m.queueLen = msg.queueLen
		}
		return m, nil

	case drainedMsg:
		if msg.err != nil {
			m.err = msg.err
			return m, m.fetchStatus()
		}
		m.message = drainMessage(msg.res)
		return m, tea.Batch(m.fetchStatus(), m.fetchLeads(true))

	case tickMsg:
		return m, tea.Batch(m.fetchStatus(), tick())
	}
	return m, nil
}

func (m Model) handleKeyPress(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit
	case "tab":
		if m.viewMode == ViewLeads {
			m.viewMode = ViewNotifications
		} else {
			m.viewMode = ViewLeads
		}
		return m, nil
	case "r":
		m.loading = true
		m.message = ""
		return m, tea.Batch(m.fetchLeads(true), m.fetchNotifications(), m.fetchStatus())
	case "d":
		m.message = "Replaying queued writes..."
		return m, m.drain()
	}

	var cmd tea.Cmd
	if m.viewMode == ViewLeads {
		m.leadTable, cmd = m.leadTable.Update(msg)
	} else {
		m.noteTable, cmd = m.noteTable.Update(msg)
	}
	return m, cmd
}

func (m Model) tableHeight() int {
	h := m.height - 8
	if h < 3 {
		h = 3
	}
	return h
}

func (m Model) fetchLeads(force bool) tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		leads, err := src.FetchLeads(ctx, force)
		return leadsMsg{leads: leads, err: err}
	}
}

func (m Model) fetchNotifications() tea.Cmd {
	src, recipient := m.src, m.recipient
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list, err := src.FetchNotifications(ctx, recipient, false)
		return notificationsMsg{list: list, err: err}
	}
}

func (m Model) fetchStatus() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		n, err := src.QueueLength(ctx)
		return statusMsg{queueLen: n, online: src.Online(), err: err}
	}
}

func (m Model) drain() tea.Cmd {
	src := m.src
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
		defer cancel()
		res, err := src.DrainQueue(ctx)
		return drainedMsg{res: res, err: err}
	}
}

func tick() tea.Cmd {
	return tea.Tick(statusInterval, func(t time.Time) tea.Msg {
		return tickMsg(t)
	})
}
