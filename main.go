// ABOUTME: Entry point for the leadsheet CLI, daemon, MCP server and dashboard
// ABOUTME: Parses global flags, loads configuration and routes to a subcommand
package main

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"

	"github.com/charmbracelet/log"

	"github.com/harperreed/leadsheet/cli"
	"github.com/harperreed/leadsheet/config"
)

const version = "0.2.0"

func main() {
	// Global flags
	showVersion := flag.Bool("version", false, "Show version and exit")
	configPath := flag.String("config", "", "Config file (default: ~/.config/leadsheet/config.json)")
	dbPath := flag.String("db-path", "", "Database path (default: ~/.local/share/leadsheet/leadsheet.db)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")

	// Parse global flags but don't fail on unknown (for subcommands)
	_ = flag.CommandLine.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("leadsheet version %s\n", version)
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(0)
	}

	command := args[0]
	commandArgs := args[1:]

	if command == "help" {
		printUsage()
		return
	}

	path := *configPath
	if path == "" {
		path = config.ConfigPath()
	}
	cfg, err := config.LoadFrom(path)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *dbPath != "" {
		cfg.DBPath = *dbPath
	}
	if *logLevel != "" {
		cfg.LogLevel = *logLevel
	}

	// The twin keeps no local state.
	if command == "serve-twin" {
		logger := cli.NewLogger(os.Stderr, cfg.LogLevel)
		if err := cli.ServeTwinCommand(logger, commandArgs); err != nil {
			log.Fatalf("Error: %v", err)
		}
		return
	}

	logOut := os.Stderr
	if command == "tui" {
		// Logs would tear the alternate screen.
		f, err := openLogFile(filepath.Join(config.DataDir(), "tui.log"))
		if err != nil {
			log.Fatalf("Failed to open log file: %v", err)
		}
		defer func() { _ = f.Close() }()
		logOut = f
	}

	app, err := cli.NewApp(cfg, cli.NewLogger(logOut, cfg.LogLevel))
	if err != nil {
		log.Fatalf("Failed to start: %v", err)
	}

	if err := run(app, command, commandArgs); err != nil {
		_ = app.Close()
		log.Fatalf("Error: %v", err)
	}
	if err := app.Close(); err != nil {
		log.Warn("failed to close local stores", "err", err)
	}
}

func run(app *cli.App, command string, args []string) error {
	switch command {
	case "leads":
		return cli.LeadsCommand(app, args)
	case "blackboard":
		return cli.BlackboardCommand(app, args)
	case "notifications":
		return cli.NotificationsCommand(app, args)
	case "queue":
		return cli.QueueCommand(app, args)
	case "creds":
		return cli.CredsCommand(app, args)
	case "daemon":
		return cli.DaemonCommand(app, args)
	case "mcp":
		return cli.MCPCommand(app, version)
	case "tui":
		return cli.TUICommand(app)
	default:
		printUsage()
		return fmt.Errorf("unknown command: %s", command)
	}
}

func openLogFile(path string) (*os.File, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0600)
}

func printUsage() {
	fmt.Printf(`leadsheet v%s - Lead CRM backed by a Google Sheet

USAGE:
  leadsheet [global flags] <command> [subcommand] [flags]

GLOBAL FLAGS:
  --version              Show version and exit
  --config <path>        Config file (default: ~/.config/leadsheet/config.json)
  --db-path <path>       Database path (default: ~/.local/share/leadsheet/leadsheet.db)
  --log-level <level>    debug, info, warn or error

COMMANDS:
  leads                  Read and edit leads
  blackboard             Team message board
  notifications          Notifications for a user
  queue                  Writes waiting to be replayed
  creds                  Credential setup
  daemon                 Background refresh, notifications and queue replay
  mcp                    Start MCP server on stdio
  tui                    Interactive dashboard
  serve-twin             Local fake Sheets API for development

LEAD COMMANDS:
  leadsheet leads list          List leads
    --force                       Bypass the local cache
    --query <text>                Match name, trip ID or destination
    --consultant <name>           Filter by consultant ('unassigned' for none)
    --limit <n>                   Max results (default: 50)

  leadsheet leads add           Add a lead
    --name <name>                 Traveller name (required unless --trip)
    --trip <id>                   Trip ID
    --destination, --travel-date, --phone, --email, --nights, --adults,
    --budget, --source, --consultant, --priority, --remarks

  Leads are identified by --trip <id>, or by --date <created> with --name <name>:

  leadsheet leads update [id flags] field=value...   Write fields
  leadsheet leads assign [id flags] --to <name>      Assign a consultant
  leadsheet leads priority [id flags] --set <p>      high, medium or low
  leadsheet leads status [id flags] --set <text>     Set status text

BLACKBOARD AND NOTIFICATIONS:
  leadsheet blackboard post [--author <name>] <message...>
  leadsheet blackboard list [--limit <n>]
  leadsheet notifications list [--for <email>] [--unread]
  leadsheet notifications read <row> [row...]

QUEUE:
  leadsheet queue status        Pending writes and background job state
  leadsheet queue drain         Replay pending writes now

CREDENTIALS:
  leadsheet creds import        Store credentials in the encrypted device store
    --spreadsheet <id>            Spreadsheet ID (required)
    --service-account <file>      Service account JSON key (enables writes)
    --api-key <key>               API key (read-only)
    --ask-api-key                 Prompt for the API key
    --worksheets <names>          leads,users,notifications,blackboard
  leadsheet creds status [--verify]
  leadsheet creds clear

DAEMON:
  leadsheet daemon [--jobs all|refresh,notify,monitor]

EXAMPLES:
  # Import a service account and check it works
  leadsheet creds import --spreadsheet 1AbC... --service-account key.json
  leadsheet creds status --verify

  # Add a lead and assign it
  leadsheet leads add --name "Asha Rao" --destination Goa --travel-date 12/05/2025
  leadsheet leads assign --date "03/04/2025 09:30:00" --name "Asha Rao" --to "Jane Doe"

  # Run everything in the background
  leadsheet daemon

`, version)
}
