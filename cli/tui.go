// ABOUTME: TUI subcommand
// ABOUTME: Runs the dashboard with background refresh and queue replay while it is open
package cli

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/harperreed/leadsheet/tui"
)

// TUICommand runs the dashboard until the user quits. The caller should
// route logs away from the terminal first.
func TUICommand(app *App) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.CRM.StartBackground(ctx)
	go app.Monitor.Run(ctx)

	p := tea.NewProgram(tui.NewModel(app.CRM, app.Config.UserEmail), tea.WithAltScreen())
	_, err := p.Run()
	return err
}
