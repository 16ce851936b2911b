// ABOUTME: Offline queue CLI commands
// ABOUTME: Shows pending writes with background job status and replays them on demand
package cli

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"
)

// QueueCommand routes "queue <subcommand>".
func QueueCommand(app *App, args []string) error {
	if len(args) == 0 {
		return QueueStatusCommand(app, nil)
	}
	switch args[0] {
	case "status":
		return QueueStatusCommand(app, args[1:])
	case "drain":
		return DrainQueueCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown queue command: %s", args[0])
	}
}

// QueueStatusCommand prints queued writes and the last sync of each job.
func QueueStatusCommand(app *App, _ []string) error {
	ctx := context.Background()

	pending, err := app.CRM.PendingWrites(ctx)
	if err != nil {
		return err
	}

	fmt.Println("Background jobs:")
	states, err := app.CRM.SyncStates()
	if err != nil {
		return err
	}
	if len(states) == 0 {
		fmt.Println("  (none have run yet)")
	}
	for _, st := range states {
		icon := "✓"
		switch st.Status {
		case "error":
			icon = "✗"
		case "syncing":
			icon = "⟳"
		}
		last := "never"
		if st.LastSyncTime != nil {
			last = formatTimeSince(*st.LastSyncTime)
		}
		fmt.Printf("  %s %-14s last success %s\n", icon, st.Service, last)
		if st.ErrorMessage != "" {
			fmt.Printf("    error: %s\n", st.ErrorMessage)
		}
	}

	fmt.Println()
	if len(pending) == 0 {
		fmt.Println("✓ No pending writes")
		return nil
	}

	fmt.Printf("%d pending write(s):\n", len(pending))
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "  ID\tKIND\tSHEET\tTARGET\tATTEMPTS\tQUEUED\tLAST ERROR")
	for _, m := range pending {
		target := "-"
		if m.Identity != nil {
			target = m.Identity.String()
		}
		_, _ = fmt.Fprintf(w, "  %s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			m.ID, m.Kind, m.TargetSheet, target, m.Attempts, formatTimeSince(m.EnqueuedAt), dash(m.LastError))
	}
	_ = w.Flush()
	return nil
}

// DrainQueueCommand replays queued writes once.
func DrainQueueCommand(app *App, _ []string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	res, err := app.CRM.DrainQueue(ctx)
	if err != nil {
		return err
	}
	switch {
	case res.Succeeded == 0 && res.Failed == 0:
		fmt.Println("✓ Queue is empty")
	case res.Failed == 0:
		fmt.Printf("✓ Replayed %d write(s)\n", res.Succeeded)
	default:
		fmt.Printf("⚠ Replayed %d write(s), %d failed, %d still queued\n", res.Succeeded, res.Failed, res.Remaining)
	}
	return nil
}

func formatTimeSince(t time.Time) string {
	d := time.Since(t)
	switch {
	case d < time.Minute:
		return "just now"
	case d < time.Hour:
		return fmt.Sprintf("%d minutes ago", int(d.Minutes()))
	case d < 24*time.Hour:
		return fmt.Sprintf("%d hours ago", int(d.Hours()))
	default:
		return fmt.Sprintf("%d days ago", int(d.Hours()/24))
	}
}
