// ABOUTME: serve-twin command running the local fake Sheets API
// ABOUTME: Seeds header rows so a development setup can point sheets_endpoint at it
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/rowmap"
	"github.com/harperreed/leadsheet/twin"
)

// ServeTwinCommand serves the Sheets twin until interrupted. It needs no
// local state, so it does not take an App.
func ServeTwinCommand(logger *log.Logger, args []string) error {
	fs := flag.NewFlagSet("serve-twin", flag.ExitOnError)
	addr := fs.String("addr", "127.0.0.1:8089", "Listen address")
	spreadsheet := fs.String("spreadsheet", "twin-spreadsheet", "Spreadsheet ID to answer to")
	apiKey := fs.String("api-key", "twin-key", "API key accepted for reads")
	admin := fs.String("admin", "", "Seed a Users row for this admin email")
	_ = fs.Parse(args)

	tw := twin.New(twin.Options{SpreadsheetID: *spreadsheet, APIKey: *apiKey, Logger: logger.WithPrefix("twin")})
	seedTwin(tw, *admin)

	srv := &http.Server{
		Addr:              *addr,
		Handler:           tw.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errc := make(chan error, 1)
	go func() {
		errc <- srv.ListenAndServe()
	}()

	fmt.Printf("✓ Sheets twin listening on http://%s (spreadsheet %s)\n", *addr, *spreadsheet)
	fmt.Printf("  export LEADSHEET_SHEETS_ENDPOINT=http://%s\n", *addr)

	select {
	case err := <-errc:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

// seedTwin creates every default worksheet with a header row.
func seedTwin(tw *twin.Twin, admin string) {
	ls := rowmap.DefaultLayouts()
	for _, kind := range rowmap.Kinds {
		layout := ls.Get(kind)
		tw.Seed(layout.Sheet, [][]string{headerRow(layout)})
	}
	if admin != "" {
		users := ls.Get(rowmap.KindUsers)
		tw.Seed(users.Sheet, [][]string{
			headerRow(users),
			rowmap.UserRow(ls, models.User{Name: "Admin", Email: admin, Role: "Admin", Status: "Active"}),
		})
	}
}

func headerRow(layout rowmap.Layout) []string {
	row := make([]string, layout.Width())
	for _, field := range layout.Fields() {
		col, _ := layout.Column(field)
		row[col] = field
	}
	return row
}
