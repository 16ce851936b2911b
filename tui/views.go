// ABOUTME: Rendering for the dashboard views
// ABOUTME: Tab bar, lead and notification tables and the status bar
package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/queue"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170"))

	tabActiveStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("170")).
			Background(lipgloss.Color("235")).
			Padding(0, 2)

	tabInactiveStyle = lipgloss.NewStyle().
				Foreground(lipgloss.Color("240")).
				Padding(0, 2)

	helpStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240"))

	onlineStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	offlineStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("203"))
	noticeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

func tableStyles() table.Styles {
	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Selected.
		Foreground(lipgloss.Color("229")).
		Background(lipgloss.Color("57"))
	return s
}

func (m Model) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("leadsheet"))
	b.WriteString("  ")
	b.WriteString(m.renderTabs())
	b.WriteString("\n\n")

	switch {
	case m.loading && len(m.leads) == 0 && m.viewMode == ViewLeads:
		b.WriteString("Loading leads...\n")
	case m.viewMode == ViewLeads:
		b.WriteString(m.leadTable.View())
		b.WriteString("\n")
	default:
		b.WriteString(m.noteTable.View())
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(m.renderStatusBar())
	b.WriteString("\n")
	b.WriteString(helpStyle.Render("tab: switch view • r: refresh • d: replay queue • ↑/↓: move • q: quit"))
	return b.String()
}

func (m Model) renderTabs() string {
	tabs := []struct {
		mode  ViewMode
		label string
	}{
		{ViewLeads, fmt.Sprintf("Leads (%d)", len(m.leads))},
		{ViewNotifications, fmt.Sprintf("Notifications (%d)", unreadCount(m.notifications))},
	}
	rendered := make([]string, 0, len(tabs))
	for _, t := range tabs {
		if t.mode == m.viewMode {
			rendered = append(rendered, tabActiveStyle.Render(t.label))
		} else {
			rendered = append(rendered, tabInactiveStyle.Render(t.label))
		}
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, rendered...)
}

func (m Model) renderStatusBar() string {
	var parts []string
	if m.online {
		parts = append(parts, onlineStyle.Render("● online"))
	} else {
		parts = append(parts, offlineStyle.Render("● offline"))
	}
	if m.queueLen == 0 {
		parts = append(parts, "queue empty")
	} else {
		parts = append(parts, noticeStyle.Render(fmt.Sprintf("%d queued write(s)", m.queueLen)))
	}
	if m.message != "" {
		parts = append(parts, m.message)
	}
	if m.err != nil {
		parts = append(parts, errorStyle.Render("error: "+m.err.Error()))
	}
	return strings.Join(parts, "  │  ")
}

func leadColumns(width int) []table.Column {
	name := 20
	if width > 120 {
		name = 28
	}
	return []table.Column{
		{Title: "Created", Width: 19},
		{Title: "Trip", Width: 10},
		{Title: "Traveller", Width: name},
		{Title: "Destination", Width: 14},
		{Title: "Travel", Width: 11},
		{Title: "Status", Width: 14},
		{Title: "Consultant", Width: 16},
		{Title: "Pri", Width: 6},
	}
}

func leadRows(leads []models.Lead) []table.Row {
	rows := make([]table.Row, 0, len(leads))
	for _, l := range leads {
		consultant := l.Consultant
		if !l.Assigned() {
			consultant = "-"
		}
		rows = append(rows, table.Row{
			l.DateAndTime,
			l.TripID,
			l.TravellerName,
			l.Destination,
			l.TravelDate,
			l.Status,
			consultant,
			string(l.PriorityLevel()),
		})
	}
	return rows
}

func notificationColumns(width int) []table.Column {
	msg := 40
	if width > 120 {
		msg = 60
	}
	return []table.Column{
		{Title: "", Width: 1},
		{Title: "Created", Width: 19},
		{Title: "Category", Width: 14},
		{Title: "Title", Width: 24},
		{Title: "Message", Width: msg},
	}
}

func notificationRows(list []models.Notification) []table.Row {
	rows := make([]table.Row, 0, len(list))
	for i := len(list) - 1; i >= 0; i-- {
		n := list[i]
		mark := "•"
		if n.Read {
			mark = " "
		}
		rows = append(rows, table.Row{mark, n.CreatedAt, string(n.Category), n.Title, n.Message})
	}
	return rows
}

func unreadCount(list []models.Notification) int {
	n := 0
	for _, x := range list {
		if !x.Read {
			n++
		}
	}
	return n
}

func drainMessage(res queue.DrainResult) string {
	switch {
	case res.Succeeded == 0 && res.Failed == 0:
		return "Queue is empty"
	case res.Failed == 0:
		return fmt.Sprintf("Replayed %d write(s)", res.Succeeded)
	default:
		return fmt.Sprintf("Replayed %d, %d failed, %d still queued", res.Succeeded, res.Failed, res.Remaining)
	}
}
