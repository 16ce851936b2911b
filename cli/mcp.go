// ABOUTME: MCP server subcommand
// ABOUTME: Exposes lead, blackboard, notification and queue tools over stdio
package cli

import (
	"context"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsheet/handlers"
)

// NewMCPServer registers every tool against c. recipient is the default
// notification recipient.
func NewMCPServer(c handlers.CRM, version, recipient string) *mcp.Server {
	leadHandlers := handlers.NewLeadHandlers(c)
	boardHandlers := handlers.NewBoardHandlers(c, recipient)
	queueHandlers := handlers.NewQueueHandlers(c)

	server := mcp.NewServer(&mcp.Implementation{
		Name:    "leadsheet",
		Version: version,
	}, nil)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_leads",
		Description: "List leads from the sheet, optionally filtered by text, consultant or status",
	}, leadHandlers.FetchLeads)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "add_lead",
		Description: "Add a new lead row. Queued for retry if the sheet is unreachable",
	}, leadHandlers.AddLead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "update_lead",
		Description: "Update fields of a lead identified by trip ID or by creation time and name",
	}, leadHandlers.UpdateLead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "assign_consultant",
		Description: "Assign a consultant to a lead",
	}, leadHandlers.AssignConsultant)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_priority",
		Description: "Set a lead's priority to high, medium or low",
	}, leadHandlers.SetPriority)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "set_status",
		Description: "Set a lead's status text",
	}, leadHandlers.SetStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "post_blackboard",
		Description: "Post a message to the team blackboard",
	}, boardHandlers.PostBlackboard)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_blackboard",
		Description: "Read recent blackboard posts",
	}, boardHandlers.FetchBlackboard)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "fetch_notifications",
		Description: "List notifications for a user, optionally only unread ones",
	}, boardHandlers.FetchNotifications)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "mark_notification_read",
		Description: "Mark a notification read by its sheet row number",
	}, boardHandlers.MarkNotificationRead)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "queue_status",
		Description: "Show writes waiting in the offline queue and whether the sheet is reachable",
	}, queueHandlers.QueueStatus)

	mcp.AddTool(server, &mcp.Tool{
		Name:        "drain_queue",
		Description: "Replay queued writes now",
	}, queueHandlers.DrainQueue)

	return server
}

// MCPCommand starts the MCP server on stdio. Background refresh and queue
// replay run for as long as the server does.
func MCPCommand(app *App, version string) error {
	app.Logger.Info("starting MCP server")

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	app.CRM.StartBackground(ctx)
	go app.Monitor.Run(ctx)

	server := NewMCPServer(app.CRM, version, app.Config.UserEmail)
	return server.Run(ctx, &mcp.StdioTransport{})
}
