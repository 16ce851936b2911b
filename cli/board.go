// ABOUTME: Blackboard and notification CLI commands
// ABOUTME: Posts and lists blackboard messages, lists notifications and marks them read
package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"
)

// BlackboardCommand routes "blackboard <subcommand>".
func BlackboardCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadsheet blackboard <post|list> [flags]")
	}
	switch args[0] {
	case "post":
		return PostBlackboardCommand(app, args[1:])
	case "list", "ls":
		return ListBlackboardCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown blackboard command: %s", args[0])
	}
}

// PostBlackboardCommand posts a message; the message is the remaining args.
func PostBlackboardCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("blackboard post", flag.ExitOnError)
	author := fs.String("author", "", "Name shown with the post")
	_ = fs.Parse(args)

	message := strings.TrimSpace(strings.Join(fs.Args(), " "))
	if message == "" {
		return fmt.Errorf("a message is required")
	}
	if *author == "" {
		*author = app.Config.UserEmail
	}

	_, err := app.CRM.PostBlackboard(context.Background(), *author, message)
	return reportWrite(err, "Posted to blackboard")
}

// ListBlackboardCommand prints the most recent posts.
func ListBlackboardCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("blackboard list", flag.ExitOnError)
	limit := fs.Int("limit", 20, "Number of recent posts")
	_ = fs.Parse(args)

	posts, err := app.CRM.FetchBlackboard(context.Background())
	if err != nil {
		return err
	}
	if len(posts) == 0 {
		fmt.Println("The blackboard is empty")
		return nil
	}
	if *limit > 0 && len(posts) > *limit {
		posts = posts[len(posts)-*limit:]
	}

	for _, p := range posts {
		fmt.Printf("[%s] %s: %s\n", p.PostedAt, dash(p.Author), p.Message)
	}
	return nil
}

// NotificationsCommand routes "notifications <subcommand>".
func NotificationsCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadsheet notifications <list|read> [flags]")
	}
	switch args[0] {
	case "list", "ls":
		return ListNotificationsCommand(app, args[1:])
	case "read":
		return MarkNotificationReadCommand(app, args[1:])
	default:
		return fmt.Errorf("unknown notifications command: %s", args[0])
	}
}

// ListNotificationsCommand prints notifications visible to a user.
func ListNotificationsCommand(app *App, args []string) error {
	fs := flag.NewFlagSet("notifications list", flag.ExitOnError)
	recipient := fs.String("for", "", "Recipient email (defaults to user_email from config)")
	unread := fs.Bool("unread", false, "Only unread notifications")
	_ = fs.Parse(args)

	who := strings.TrimSpace(*recipient)
	if who == "" {
		who = app.Config.UserEmail
	}

	list, err := app.CRM.FetchNotifications(context.Background(), who, *unread)
	if err != nil {
		return err
	}
	if len(list) == 0 {
		fmt.Println("No notifications")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ROW\t \tCREATED\tCATEGORY\tTITLE\tMESSAGE")
	for _, n := range list {
		mark := "•"
		if n.Read {
			mark = " "
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\n", n.RowNumber, mark, n.CreatedAt, n.Category, n.Title, n.Message)
	}
	_ = w.Flush()
	return nil
}

// MarkNotificationReadCommand marks notifications read by row number.
func MarkNotificationReadCommand(app *App, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("usage: leadsheet notifications read <row> [row...]")
	}
	for _, arg := range args {
		row, err := strconv.Atoi(arg)
		if err != nil {
			return fmt.Errorf("invalid row number %q", arg)
		}
		if err := reportWrite(app.CRM.MarkNotificationRead(context.Background(), row), fmt.Sprintf("Marked row %d read", row)); err != nil {
			return err
		}
	}
	return nil
}
