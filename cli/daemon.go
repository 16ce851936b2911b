// ABOUTME: Daemon command running the background jobs until interrupted
// ABOUTME: Cache refresh with queue replay on reconnect, the notification differ and the connectivity monitor
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
)

// Daemon jobs.
const (
	JobRefresh = "refresh"
	JobNotify  = "notify"
	JobMonitor = "monitor"
)

var allJobs = []string{JobRefresh, JobNotify, JobMonitor}

// DaemonCommand runs the selected jobs until SIGINT or SIGTERM.
func DaemonCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("daemon", flag.ExitOnError)
	jobsFlag := fs.String("jobs", "all", "Jobs to run: all or a comma list of refresh, notify, monitor")
	_ = fs.Parse(args)

	jobs := parseJobs(*jobsFlag)
	if len(jobs) == 0 {
		return fmt.Errorf("no valid jobs in %q", *jobsFlag)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	fmt.Printf("Starting daemon (%s)\n", strings.Join(jobs, ", "))
	fmt.Printf("  refresh every %s, notifications every %s, probe every %s\n",
		app.Config.RefreshInterval, app.Config.NotifyInterval, app.Config.ProbeInterval)
	fmt.Println("Press Ctrl+C to stop")

	runDaemon(ctx, app, jobs)

	fmt.Println("\n✓ Daemon stopped")
	return nil
}

// runDaemon starts jobs and blocks until ctx ends and every job returned.
func runDaemon(ctx context.Context, app *App, jobs []string) {
	var wg sync.WaitGroup
	for _, job := range jobs {
		switch job {
		case JobRefresh:
			app.CRM.StartBackground(ctx)
		case JobNotify:
			differ := app.Differ()
			wg.Add(1)
			go func() {
				defer wg.Done()
				differ.Run(ctx)
			}()
		case JobMonitor:
			wg.Add(1)
			go func() {
				defer wg.Done()
				app.Monitor.Run(ctx)
			}()
		}
	}

	<-ctx.Done()
	app.CRM.Close()
	wg.Wait()
}

// parseJobs returns the known jobs named in s, in the order given.
func parseJobs(s string) []string {
	if strings.TrimSpace(s) == "all" {
		return append([]string(nil), allJobs...)
	}
	jobs := []string{}
	seen := make(map[string]bool)
	for _, part := range strings.Split(s, ",") {
		job := strings.ToLower(strings.TrimSpace(part))
		if seen[job] {
			continue
		}
		for _, known := range allJobs {
			if job == known {
				jobs = append(jobs, job)
				seen[job] = true
			}
		}
	}
	return jobs
}
