// ABOUTME: Wires configuration, local stores and the Sheets transport into one App
// ABOUTME: Every subcommand builds its dependencies through NewApp and releases them with Close
package cli

import (
	"database/sql"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadsheet/cache"
	"github.com/harperreed/leadsheet/config"
	"github.com/harperreed/leadsheet/connectivity"
	"github.com/harperreed/leadsheet/creds"
	"github.com/harperreed/leadsheet/crm"
	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/notify"
	"github.com/harperreed/leadsheet/queue"
	"github.com/harperreed/leadsheet/rowmap"
	"github.com/harperreed/leadsheet/securestore"
	"github.com/harperreed/leadsheet/transport"
)

// App holds the long-lived dependencies of a command.
type App struct {
	Config      *config.Config
	Logger      *log.Logger
	DB          *sql.DB
	Secure      *securestore.Store
	Provider    *creds.Provider
	Credentials *creds.Credentials
	Layouts     rowmap.Layouts
	Sheets      *transport.Client
	Cache       *cache.Cache
	Queue       *queue.Queue
	Monitor     *connectivity.Monitor
	CRM         *crm.Service
}

// NewLogger builds the process logger and makes it the default so packages
// that fall back to log.Default share its level and output.
func NewLogger(w io.Writer, level string) *log.Logger {
	logger := log.NewWithOptions(w, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.Kitchen,
		Prefix:          "leadsheet",
	})
	lvl, err := log.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		logger.Warn("unknown log level, using info", "level", level)
		lvl = log.InfoLevel
	}
	logger.SetLevel(lvl)
	log.SetDefault(logger)
	return logger
}

// NewApp opens the local database and secure store and builds the service
// graph. Missing credentials are not an error: reads and writes fail later
// with a credentials-missing error.
func NewApp(cfg *config.Config, logger *log.Logger) (*App, error) {
	if logger == nil {
		logger = NewLogger(os.Stderr, cfg.LogLevel)
	}
	app := &App{Config: cfg, Logger: logger}

	database, err := db.OpenDatabase(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	app.DB = database

	secure, err := securestore.Open(securestore.Options{
		Dir:        cfg.StoreDir,
		KeyFile:    cfg.StoreKeyFile,
		Passphrase: cfg.StorePassphrase,
		Logger:     logger.WithPrefix("securestore"),
	})
	if err != nil {
		_ = database.Close()
		return nil, fmt.Errorf("failed to open secure store: %w", err)
	}
	app.Secure = secure

	app.Provider = creds.NewProvider(creds.ProviderOptions{
		DotenvFile: cfg.DotenvFile,
		Secure:     secure,
		UseEnv:     true,
		Logger:     logger.WithPrefix("creds"),
	})
	if c, ok := app.Provider.Credentials(); ok {
		app.Credentials = c
	} else {
		logger.Debug("no credentials configured")
	}

	app.Layouts, err = layoutsFor(cfg, app.Credentials)
	if err != nil {
		_ = app.Close()
		return nil, err
	}

	opts := transport.Options{
		Endpoint: cfg.SheetsEndpoint,
		Keys:     app.Provider,
		Aliases:  app.Layouts.Aliases(),
		Logger:   logger.WithPrefix("transport"),
	}
	if app.Credentials != nil {
		opts.SpreadsheetID = app.Credentials.SpreadsheetID
		opts.APIKey = app.Credentials.APIKey
	}
	app.Sheets = transport.New(opts)

	app.Cache = cache.New(cache.Options{
		Secure:    secure,
		Plain:     db.NewKVStore(database),
		Freshness: cfg.CacheFreshness.D(),
		Logger:    logger.WithPrefix("cache"),
	})
	app.Queue = queue.New(database, logger.WithPrefix("queue"))
	app.Monitor = connectivity.New(connectivity.Options{
		Probe:    connectivity.HTTPProbe(&http.Client{Timeout: 10 * time.Second}, cfg.SheetsEndpoint),
		Interval: cfg.ProbeInterval.D(),
		Logger:   logger.WithPrefix("connectivity"),
	})

	layouts := app.Layouts
	app.CRM, err = crm.New(crm.Options{
		Sheets:          app.Sheets,
		Layouts:         &layouts,
		Cache:           app.Cache,
		Queue:           app.Queue,
		Monitor:         app.Monitor,
		DB:              database,
		RefreshInterval: cfg.RefreshInterval.D(),
		Location:        cfg.Location(),
		Logger:          logger.WithPrefix("crm"),
	})
	if err != nil {
		_ = app.Close()
		return nil, err
	}
	return app, nil
}

// layoutsFor applies the layout file and then fills gaps from the worksheet
// names and column mappings that came with the credentials.
func layoutsFor(cfg *config.Config, c *creds.Credentials) (rowmap.Layouts, error) {
	if c == nil || (len(c.WorksheetNames) == 0 && len(c.ColumnMappings) == 0) {
		return cfg.Layouts()
	}
	o, err := rowmap.ReadOverrides(cfg.LayoutFile)
	if err != nil {
		return rowmap.Layouts{}, err
	}
	ls, err := rowmap.NewLayouts(o.Merge(c.WorksheetNames, c.ColumnMappings))
	if err != nil {
		return rowmap.Layouts{}, fmt.Errorf("invalid worksheet layout: %w", err)
	}
	return ls, nil
}

// Differ builds the notification differ over the app's service.
func (a *App) Differ() *notify.Differ {
	return notify.New(notify.Options{
		Source:   a.CRM,
		Store:    db.NewKVStore(a.DB),
		DB:       a.DB,
		Interval: a.Config.NotifyInterval.D(),
		Location: a.Config.Location(),
		Logger:   a.Logger.WithPrefix("notify"),
	})
}

// Close stops background work and closes the stores.
func (a *App) Close() error {
	if a.CRM != nil {
		a.CRM.Close()
	}
	var firstErr error
	if a.Secure != nil {
		if err := a.Secure.Close(); err != nil {
			firstErr = err
		}
	}
	if a.DB != nil {
		if err := a.DB.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
