// ABOUTME: Offline queue MCP tool handlers
// ABOUTME: Implements queue_status and drain_queue
package handlers

import (
	"context"
	"fmt"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

type QueueHandlers struct {
	crm CRM
}

func NewQueueHandlers(c CRM) *QueueHandlers {
	return &QueueHandlers{crm: c}
}

type QueueStatusInput struct{}

type PendingWrite struct {
	ID         string `json:"id"`
	Kind       string `json:"kind"`
	Sheet      string `json:"sheet"`
	Target     string `json:"target,omitempty"`
	Attempts   int    `json:"attempts"`
	LastError  string `json:"last_error,omitempty"`
	EnqueuedAt string `json:"enqueued_at"`
}

type QueueStatusOutput struct {
	Online  bool           `json:"online"`
	Length  int            `json:"length"`
	Pending []PendingWrite `json:"pending"`
}

func (h *QueueHandlers) QueueStatus(ctx context.Context, _ *mcp.CallToolRequest, _ QueueStatusInput) (*mcp.CallToolResult, QueueStatusOutput, error) {
	pending, err := h.crm.PendingWrites(ctx)
	if err != nil {
		return nil, QueueStatusOutput{}, fmt.Errorf("failed to read queue: %w", err)
	}
	out := QueueStatusOutput{Online: h.crm.Online(), Length: len(pending), Pending: make([]PendingWrite, 0, len(pending))}
	for _, m := range pending {
		w := PendingWrite{
			ID:         m.ID,
			Kind:       string(m.Kind),
			Sheet:      m.TargetSheet,
			Attempts:   m.Attempts,
			LastError:  m.LastError,
			EnqueuedAt: m.EnqueuedAt.Format(time.RFC3339),
		}
		if m.Identity != nil {
			w.Target = m.Identity.String()
		}
		out.Pending = append(out.Pending, w)
	}
	return nil, out, nil
}

type DrainQueueInput struct{}

type DrainQueueOutput struct {
	Succeeded int `json:"succeeded"`
	Failed    int `json:"failed"`
	Remaining int `json:"remaining"`
}

func (h *QueueHandlers) DrainQueue(ctx context.Context, _ *mcp.CallToolRequest, _ DrainQueueInput) (*mcp.CallToolResult, DrainQueueOutput, error) {
	res, err := h.crm.DrainQueue(ctx)
	if err != nil {
		return nil, DrainQueueOutput{}, fmt.Errorf("failed to drain queue: %w", err)
	}
	return nil, DrainQueueOutput{Succeeded: res.Succeeded, Failed: res.Failed, Remaining: res.Remaining}, nil
}
