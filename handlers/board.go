// ABOUTME: Blackboard and notification MCP tool handlers
// ABOUTME: Implements post_blackboard, fetch_blackboard, fetch_notifications and mark_notification_read
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsheet/models"
)

type BoardHandlers struct {
	crm CRM
	// defaultRecipient is used when fetch_notifications names no recipient.
	defaultRecipient string
}

func NewBoardHandlers(c CRM, defaultRecipient string) *BoardHandlers {
	return &BoardHandlers{crm: c, defaultRecipient: defaultRecipient}
}

type PostBlackboardInput struct {
	Author  string `json:"author,omitempty" jsonschema:"Name shown with the post"`
	Message string `json:"message" jsonschema:"Message text (required)"`
}

type PostBlackboardOutput struct {
	Success bool                  `json:"success"`
	Queued  bool                  `json:"queued,omitempty"`
	Message string                `json:"message"`
	Post    models.BlackboardPost `json:"post"`
}

func (h *BoardHandlers) PostBlackboard(ctx context.Context, _ *mcp.CallToolRequest, input PostBlackboardInput) (*mcp.CallToolResult, PostBlackboardOutput, error) {
	if strings.TrimSpace(input.Message) == "" {
		return nil, PostBlackboardOutput{}, fmt.Errorf("message is required")
	}
	post, err := h.crm.PostBlackboard(ctx, input.Author, input.Message)
	res, err := writeResult(err, "Posted to blackboard")
	if err != nil {
		return nil, PostBlackboardOutput{}, err
	}
	return nil, PostBlackboardOutput{Success: res.Success, Queued: res.Queued, Message: res.Message, Post: post}, nil
}

type FetchBlackboardInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Return only the most recent posts (default all)"`
}

type FetchBlackboardOutput struct {
	Posts []models.BlackboardPost `json:"posts"`
	Count int                     `json:"count"`
}

func (h *BoardHandlers) FetchBlackboard(ctx context.Context, _ *mcp.CallToolRequest, input FetchBlackboardInput) (*mcp.CallToolResult, FetchBlackboardOutput, error) {
	posts, err := h.crm.FetchBlackboard(ctx)
	if err != nil {
		return nil, FetchBlackboardOutput{}, err
	}
	if input.Limit > 0 && len(posts) > input.Limit {
		posts = posts[len(posts)-input.Limit:]
	}
	if posts == nil {
		posts = []models.BlackboardPost{}
	}
	return nil, FetchBlackboardOutput{Posts: posts, Count: len(posts)}, nil
}

type FetchNotificationsInput struct {
	Recipient  string `json:"recipient,omitempty" jsonschema:"Email whose notifications to list (defaults to the configured user)"`
	UnreadOnly bool   `json:"unread_only,omitempty" jsonschema:"Only unread notifications"`
}

type FetchNotificationsOutput struct {
	Notifications []models.Notification `json:"notifications"`
	Count         int                   `json:"count"`
	Unread        int                   `json:"unread"`
}

func (h *BoardHandlers) FetchNotifications(ctx context.Context, _ *mcp.CallToolRequest, input FetchNotificationsInput) (*mcp.CallToolResult, FetchNotificationsOutput, error) {
	recipient := strings.TrimSpace(input.Recipient)
	if recipient == "" {
		recipient = h.defaultRecipient
	}
	list, err := h.crm.FetchNotifications(ctx, recipient, input.UnreadOnly)
	if err != nil {
		return nil, FetchNotificationsOutput{}, err
	}
	out := FetchNotificationsOutput{Notifications: list, Count: len(list)}
	if out.Notifications == nil {
		out.Notifications = []models.Notification{}
	}
	for _, n := range list {
		if !n.Read {
			out.Unread++
		}
	}
	return nil, out, nil
}

type MarkNotificationReadInput struct {
	RowNumber int `json:"row_number" jsonschema:"Sheet row number reported by fetch_notifications"`
}

func (h *BoardHandlers) MarkNotificationRead(ctx context.Context, _ *mcp.CallToolRequest, input MarkNotificationReadInput) (*mcp.CallToolResult, WriteOutput, error) {
	if input.RowNumber < 2 {
		return nil, WriteOutput{}, fmt.Errorf("row_number must be 2 or greater")
	}
	out, err := writeResult(h.crm.MarkNotificationRead(ctx, input.RowNumber), "Notification marked read")
	return nil, out, err
}
