// ABOUTME: Lead CLI commands
// ABOUTME: list, add, update, assign, priority and status against the leads worksheet
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/harperreed/leadsheet/crm"
	"github.com/harperreed/leadsheet/models"
)

// LeadsCommand routes "leads <subcommand>".
func LeadsCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadsheet leads <list|add|update|assign|priority|status> [flags]")
	}
	sub, rest := args[0], args[1:]
	switch sub {
	case "list", "ls":
		return ListLeadsCommand(app, rest)
	case "add":
		return AddLeadCommand(app, rest)
	case "update":
		return UpdateLeadCommand(app, rest)
	case "assign":
		return AssignLeadCommand(app, rest)
	case "priority":
		return SetPriorityCommand(app, rest)
	case "status":
		return SetStatusCommand(app, rest)
	default:
		return fmt.Errorf("unknown leads command: %s", sub)
	}
}

// ListLeadsCommand prints leads from the cache or the sheet.
func ListLeadsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads list", flag.ExitOnError)
	force := fs.Bool("force", false, "Bypass the local cache")
	query := fs.String("query", "", "Filter by name, trip ID or destination")
	consultant := fs.String("consultant", "", "Filter by consultant ('unassigned' for none)")
	limit := fs.Int("limit", 50, "Maximum results")
	_ = fs.Parse(args)

	leads, err := app.CRM.FetchLeads(context.Background(), *force)
	if err != nil {
		return fmt.Errorf("failed to fetch leads: %w", err)
	}

	q := strings.ToLower(strings.TrimSpace(*query))
	var shown []models.Lead
	for _, l := range leads {
		if q != "" && !strings.Contains(strings.ToLower(l.TravellerName+" "+l.TripID+" "+l.Destination), q) {
			continue
		}
		if c := strings.TrimSpace(*consultant); c != "" {
			if strings.EqualFold(c, "unassigned") {
				if l.Assigned() {
					continue
				}
			} else if !strings.EqualFold(strings.TrimSpace(l.Consultant), c) {
				continue
			}
		}
		shown = append(shown, l)
		if *limit > 0 && len(shown) >= *limit {
			break
		}
	}

	if len(shown) == 0 {
		fmt.Println("No leads found")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "DATE\tTRIP\tTRAVELLER\tDESTINATION\tTRAVEL\tSTATUS\tCONSULTANT\tPRIORITY")
	_, _ = fmt.Fprintln(w, "----\t----\t---------\t-----------\t------\t------\t----------\t--------")
	for _, l := range shown {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			l.DateAndTime, dash(l.TripID), l.TravellerName, dash(l.Destination),
			dash(l.TravelDate), dash(l.Status), dash(l.Consultant), l.PriorityLevel())
	}
	_ = w.Flush()
	fmt.Printf("\n%d of %d leads\n", len(shown), len(leads))
	return nil
}

// AddLeadCommand appends a new lead.
func AddLeadCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads add", flag.ExitOnError)
	name := fs.String("name", "", "Traveller name (required unless --trip is set)")
	trip := fs.String("trip", "", "Trip ID")
	phone := fs.String("phone", "", "Phone number")
	email := fs.String("email", "", "Email address")
	destination := fs.String("destination", "", "Destination")
	travel := fs.String("travel-date", "", "Travel date, e.g. 03/04/2025")
	nights := fs.String("nights", "", "Number of nights")
	adults := fs.String("adults", "", "Number of adults")
	budget := fs.String("budget", "", "Budget")
	source := fs.String("source", "", "Lead source")
	consultant := fs.String("consultant", "", "Assigned consultant")
	priority := fs.String("priority", "", "high, medium or low")
	remarks := fs.String("remarks", "", "Remarks")
	_ = fs.Parse(args)

	if strings.TrimSpace(*name) == "" && strings.TrimSpace(*trip) == "" {
		return fmt.Errorf("--name or --trip is required")
	}
	if *priority != "" && !models.ValidPriority(*priority) {
		return fmt.Errorf("invalid --priority %q (want high, medium or low)", *priority)
	}

	lead := models.Lead{
		TravellerName: strings.TrimSpace(*name),
		TripID:        strings.TrimSpace(*trip),
		Phone:         *phone,
		Email:         *email,
		Destination:   *destination,
		TravelDate:    *travel,
		Nights:        *nights,
		Adults:        *adults,
		Budget:        *budget,
		Source:        *source,
		Status:        "New",
		Consultant:    *consultant,
		Remarks:       *remarks,
	}
	if *priority != "" {
		lead.Priority = string(models.ParsePriority(*priority))
	}

	saved, err := app.CRM.AppendLead(context.Background(), lead)
	return reportWrite(err, fmt.Sprintf("Added lead: %s (%s)", leadName(saved), saved.DateAndTime))
}

// leadFlags registers the flags that identify one lead.
type leadFlags struct {
	trip *string
	date *string
	name *string
}

func addLeadFlags(fs *flag.FlagSet) leadFlags {
	return leadFlags{
		trip: fs.String("trip", "", "Trip ID of the lead"),
		date: fs.String("date", "", "Creation timestamp as shown by 'leads list' (with --name)"),
		name: fs.String("name", "", "Traveller name (with --date)"),
	}
}

func (f leadFlags) identity() (models.Identity, error) {
	var id models.Identity
	if strings.TrimSpace(*f.trip) != "" {
		id = models.ByTripID(*f.trip)
	} else {
		id = models.ByDateAndName(*f.date, *f.name)
	}
	if err := id.Validate(); err != nil {
		return models.Identity{}, fmt.Errorf("--trip or --date with --name is required")
	}
	return id, nil
}

// UpdateLeadCommand writes field=value pairs to one lead.
func UpdateLeadCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads update", flag.ExitOnError)
	lf := addLeadFlags(fs)
	_ = fs.Parse(args)

	id, err := lf.identity()
	if err != nil {
		return err
	}
	changes, err := parseChanges(fs.Args())
	if err != nil {
		return err
	}

	err = app.CRM.UpdateLead(context.Background(), id, changes)
	return reportWrite(err, fmt.Sprintf("Updated %d field(s) on %s", len(changes), id))
}

// parseChanges reads field=value arguments.
func parseChanges(args []string) (map[string]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("at least one field=value pair is required")
	}
	changes := make(map[string]string, len(args))
	for _, arg := range args {
		field, value, ok := strings.Cut(arg, "=")
		field = strings.TrimSpace(field)
		if !ok || field == "" {
			return nil, fmt.Errorf("invalid change %q (want field=value)", arg)
		}
		changes[field] = value
	}
	return changes, nil
}

// AssignLeadCommand sets a lead's consultant.
func AssignLeadCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads assign", flag.ExitOnError)
	lf := addLeadFlags(fs)
	consultant := fs.String("to", "", "Consultant name (required)")
	_ = fs.Parse(args)

	id, err := lf.identity()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*consultant) == "" {
		return fmt.Errorf("--to is required")
	}

	err = app.CRM.AssignConsultant(context.Background(), id, *consultant)
	return reportWrite(err, fmt.Sprintf("Assigned %s to %s", id, *consultant))
}

// SetPriorityCommand sets a lead's priority.
func SetPriorityCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads priority", flag.ExitOnError)
	lf := addLeadFlags(fs)
	priority := fs.String("set", "", "high, medium or low (required)")
	_ = fs.Parse(args)

	id, err := lf.identity()
	if err != nil {
		return err
	}
	if !models.ValidPriority(*priority) {
		return fmt.Errorf("--set must be high, medium or low")
	}

	err = app.CRM.SetPriority(context.Background(), id, *priority)
	return reportWrite(err, fmt.Sprintf("Priority of %s set to %s", id, models.ParsePriority(*priority)))
}

// SetStatusCommand sets a lead's status text.
func SetStatusCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("leads status", flag.ExitOnError)
	lf := addLeadFlags(fs)
	status := fs.String("set", "", "New status text (required)")
	_ = fs.Parse(args)

	id, err := lf.identity()
	if err != nil {
		return err
	}
	if strings.TrimSpace(*status) == "" {
		return fmt.Errorf("--set is required")
	}

	err = app.CRM.SetStatus(context.Background(), id, *status)
	return reportWrite(err, fmt.Sprintf("Status of %s set to %s", id, *status))
}

// reportWrite prints the outcome of a write. A queued write is reported as
// a warning, not a failure.
func reportWrite(err error, done string) error {
	if err == nil {
		fmt.Printf("✓ %s\n", done)
		return nil
	}
	var we *crm.WriteError
	if errors.As(err, &we) {
		if we.Queued {
			fmt.Printf("⚠ %s\n", we.UserMessage())
			return nil
		}
		return errors.New(we.UserMessage())
	}
	return err
}

func leadName(l models.Lead) string {
	if l.TravellerName != "" {
		return l.TravellerName
	}
	return l.TripID
}

func dash(s string) string {
	if strings.TrimSpace(s) == "" {
		return "-"
	}
	return s
}
