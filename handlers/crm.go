// ABOUTME: Shared plumbing for the MCP tool handlers
// ABOUTME: Declares the CRM operations the tools call and maps write errors to tool output
package handlers

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/harperreed/leadsheet/crm"
	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/queue"
)

// CRM is the subset of crm.Service the tools use.
type CRM interface {
	FetchLeads(ctx context.Context, force bool) ([]models.Lead, error)
	AppendLead(ctx context.Context, lead models.Lead) (models.Lead, error)
	UpdateLead(ctx context.Context, id models.Identity, changes map[string]string) error
	AssignConsultant(ctx context.Context, id models.Identity, consultant string) error
	SetPriority(ctx context.Context, id models.Identity, priority string) error
	SetStatus(ctx context.Context, id models.Identity, status string) error
	PostBlackboard(ctx context.Context, author, message string) (models.BlackboardPost, error)
	FetchBlackboard(ctx context.Context) ([]models.BlackboardPost, error)
	FetchNotifications(ctx context.Context, recipient string, unreadOnly bool) ([]models.Notification, error)
	MarkNotificationRead(ctx context.Context, rowNumber int) error
	PendingWrites(ctx context.Context) ([]models.Mutation, error)
	DrainQueue(ctx context.Context) (queue.DrainResult, error)
	Online() bool
}

var _ CRM = (*crm.Service)(nil)

// leadIdentity names a lead either by trip id or by creation time plus name.
func leadIdentity(tripID, dateAndTime, travellerName string) (models.Identity, error) {
	var id models.Identity
	if strings.TrimSpace(tripID) != "" {
		id = models.ByTripID(tripID)
	} else {
		id = models.ByDateAndName(dateAndTime, travellerName)
	}
	if err := id.Validate(); err != nil {
		return models.Identity{}, fmt.Errorf("trip_id or date_and_time with traveller_name is required: %w", err)
	}
	return id, nil
}

// WriteOutput reports the outcome of a sheet write.
type WriteOutput struct {
	Success bool   `json:"success"`
	Queued  bool   `json:"queued,omitempty"`
	Message string `json:"message"`
}

// writeResult turns a write error into tool output. A write that failed but
// was queued is not a tool error: the change will be replayed later.
func writeResult(err error, done string) (WriteOutput, error) {
	if err == nil {
		return WriteOutput{Success: true, Message: done}, nil
	}
	var we *crm.WriteError
	if errors.As(err, &we) {
		if we.Queued {
			return WriteOutput{Queued: true, Message: we.UserMessage()}, nil
		}
		return WriteOutput{}, errors.New(we.UserMessage())
	}
	return WriteOutput{}, err
}
