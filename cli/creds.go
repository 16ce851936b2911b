// ABOUTME: Credential CLI commands
// ABOUTME: Imports service account and API keys into the encrypted store and reports what is configured
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"golang.org/x/term"

	"github.com/harperreed/leadsheet/auth"
	"github.com/harperreed/leadsheet/creds"
	"github.com/harperreed/leadsheet/rowmap"
)

// CredsCommand routes "creds <subcommand>".
func CredsCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadsheet creds <import|status|clear> [flags]")
	}
	switch args[0] {
	case "import":
		return ImportCredsCommand(app, args[1:])
	case "status":
		return CredsStatusCommand(app, args[1:])
	case "clear":
		return ClearCredsCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown creds command: %s", args[0])
	}
}

// ImportCredsCommand stores credentials in the encrypted device store.
func ImportCredsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("creds import", flag.ExitOnError)
	spreadsheet := fs.String("spreadsheet", "", "Spreadsheet ID (required)")
	keyFile := fs.String("service-account", "", "Path to a service account JSON key")
	apiKey := fs.String("api-key", "", "API key for read-only access")
	askKey := fs.Bool("ask-api-key", false, "Prompt for the API key without echoing it")
	worksheets := fs.String("worksheets", "", "Comma-separated worksheet names: leads,users,notifications,blackboard")
	_ = fs.Parse(args)

	if strings.TrimSpace(*spreadsheet) == "" {
		return fmt.Errorf("--spreadsheet is required")
	}

	c := &creds.Credentials{SpreadsheetID: strings.TrimSpace(*spreadsheet), APIKey: strings.TrimSpace(*apiKey)}

	if *askKey {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("--ask-api-key needs an interactive terminal")
		}
		fmt.Print("API key: ")
		raw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read API key: %w", err)
		}
		c.APIKey = strings.TrimSpace(string(raw))
	}

	if *keyFile != "" {
		data, err := os.ReadFile(*keyFile)
		if err != nil {
			return fmt.Errorf("failed to read service account key: %w", err)
		}
		key, err := creds.ParseServiceAccountKey(data)
		if err != nil {
			return err
		}
		c.ServiceAccountKey = key
	}

	for _, name := range strings.Split(*worksheets, ",") {
		if name = strings.TrimSpace(name); name != "" {
			c.WorksheetNames = append(c.WorksheetNames, name)
		}
	}

	if !c.CanRead() {
		return fmt.Errorf("an API key or a service account key is required")
	}
	if creds.IsPlaceholder(c.APIKey) {
		return fmt.Errorf("the API key looks like a placeholder")
	}

	if err := app.Provider.Save(c); err != nil {
		return fmt.Errorf("failed to save credentials: %w", err)
	}

	fmt.Printf("✓ Saved credentials for spreadsheet %s\n", c.SpreadsheetID)
	if c.CanWrite() {
		fmt.Printf("  Writes as: %s\n", c.ServiceAccountKey.ClientEmail)
	} else {
		fmt.Println("  Read-only: add --service-account to enable writes")
	}
	return nil
}

// CredsStatusCommand reports configured credentials and optionally checks
// them against the sheet.
func CredsStatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("creds status", flag.ExitOnError)
	verify := fs.Bool("verify", false, "Mint a token and read the Users worksheet")
	_ = fs.Parse(args)

	c := app.Credentials
	if c == nil {
		fmt.Println("✗ No credentials configured")
		fmt.Println("  Run 'leadsheet creds import --spreadsheet ID --service-account key.json'")
		return nil
	}

	fmt.Printf("Spreadsheet: %s\n", c.SpreadsheetID)
	fmt.Printf("Worksheets:  %s\n", strings.Join(app.Layouts.SheetNames(), ", "))
	if c.APIKey != "" {
		fmt.Println("✓ API key (read)")
	} else {
		fmt.Println("✗ API key")
	}
	if c.CanWrite() {
		fmt.Printf("✓ Service account (read/write): %s\n", c.ServiceAccountKey.ClientEmail)
	} else {
		fmt.Println("✗ Service account: writes will be queued until one is imported")
	}

	if !*verify {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if c.CanWrite() {
		tok, err := auth.NewMinter(nil).Mint(ctx, c.ServiceAccountKey)
		if err != nil {
			fmt.Printf("✗ Token exchange failed: %v\n", err)
		} else {
			fmt.Printf("✓ Token minted, expires %s\n", tok.Expiry().Format(time.RFC3339))
		}
	}

	rows, err := app.Sheets.ReadRows(ctx, app.Layouts.Sheet(rowmap.KindUsers))
	if err != nil {
		fmt.Printf("✗ Read failed: %v\n", err)
		return nil
	}
	fmt.Printf("✓ Read %d user row(s)\n", len(rowmap.DataRows(rows)))
	return nil
}

// ClearCredsCommand removes stored credentials.
func ClearCredsCommand(app *App, _ []string) error {
	if err := app.Provider.Clear(); err != nil {
		return fmt.Errorf("failed to clear credentials: %w", err)
	}
	fmt.Println("✓ Stored credentials removed")
	return nil
}
