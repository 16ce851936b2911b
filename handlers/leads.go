// ABOUTME: Lead MCP tool handlers
// ABOUTME: Implements fetch_leads, add_lead, update_lead and the assign/priority/status shortcuts
package handlers

import (
	"context"
	"fmt"
	"strings"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/harperreed/leadsheet/models"
)

type LeadHandlers struct {
	crm CRM
}

func NewLeadHandlers(c CRM) *LeadHandlers {
	return &LeadHandlers{crm: c}
}

type FetchLeadsInput struct {
	Force      bool   `json:"force,omitempty" jsonschema:"Bypass the local cache and read the sheet"`
	Query      string `json:"query,omitempty" jsonschema:"Case-insensitive match on traveller name, trip ID or destination"`
	Consultant string `json:"consultant,omitempty" jsonschema:"Only leads assigned to this consultant; use 'unassigned' for leads without one"`
	Status     string `json:"status,omitempty" jsonschema:"Only leads in this pipeline stage (e.g. new, hot, booked)"`
	Limit      int    `json:"limit,omitempty" jsonschema:"Maximum number of results (default 50)"`
}

type FetchLeadsOutput struct {
	Leads []models.Lead `json:"leads"`
	Count int           `json:"count"`
	Total int           `json:"total"`
}

func (h *LeadHandlers) FetchLeads(ctx context.Context, _ *mcp.CallToolRequest, input FetchLeadsInput) (*mcp.CallToolResult, FetchLeadsOutput, error) {
	leads, err := h.crm.FetchLeads(ctx, input.Force)
	if err != nil {
		return nil, FetchLeadsOutput{}, fmt.Errorf("failed to fetch leads: %w", err)
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 50
	}

	out := FetchLeadsOutput{Leads: []models.Lead{}, Total: len(leads)}
	for _, lead := range leads {
		if !matchLead(lead, input) {
			continue
		}
		if len(out.Leads) >= limit {
			break
		}
		out.Leads = append(out.Leads, lead)
	}
	out.Count = len(out.Leads)
	return nil, out, nil
}

// matchLead applies the optional fetch_leads filters.
func matchLead(lead models.Lead, f FetchLeadsInput) bool {
	if q := strings.ToLower(strings.TrimSpace(f.Query)); q != "" {
		hay := strings.ToLower(lead.TravellerName + " " + lead.TripID + " " + lead.Destination)
		if !strings.Contains(hay, q) {
			return false
		}
	}
	if c := strings.TrimSpace(f.Consultant); c != "" {
		if strings.EqualFold(c, "unassigned") {
			if lead.Assigned() {
				return false
			}
		} else if !strings.EqualFold(strings.TrimSpace(lead.Consultant), c) {
			return false
		}
	}
	if s := strings.TrimSpace(f.Status); s != "" {
		if lead.Stage() != models.CanonicalStatus(s) {
			return false
		}
	}
	return true
}

type AddLeadInput struct {
	TravellerName string `json:"traveller_name" jsonschema:"Traveller name (required unless trip_id is given)"`
	TripID        string `json:"trip_id,omitempty" jsonschema:"Trip ID"`
	Phone         string `json:"phone,omitempty" jsonschema:"Phone number"`
	Email         string `json:"email,omitempty" jsonschema:"Email address"`
	Destination   string `json:"destination,omitempty" jsonschema:"Destination"`
	TravelDate    string `json:"travel_date,omitempty" jsonschema:"Travel date, e.g. 03/04/2025"`
	Nights        string `json:"nights,omitempty" jsonschema:"Number of nights"`
	Adults        string `json:"adults,omitempty" jsonschema:"Number of adults"`
	Budget        string `json:"budget,omitempty" jsonschema:"Budget"`
	Source        string `json:"source,omitempty" jsonschema:"Lead source"`
	Status        string `json:"status,omitempty" jsonschema:"Initial status (default New)"`
	Consultant    string `json:"consultant,omitempty" jsonschema:"Assigned consultant"`
	Priority      string `json:"priority,omitempty" jsonschema:"high, medium or low"`
	Remarks       string `json:"remarks,omitempty" jsonschema:"Remarks"`
}

type AddLeadOutput struct {
	Success bool        `json:"success"`
	Queued  bool        `json:"queued,omitempty"`
	Message string      `json:"message"`
	Lead    models.Lead `json:"lead"`
}

func (h *LeadHandlers) AddLead(ctx context.Context, _ *mcp.CallToolRequest, input AddLeadInput) (*mcp.CallToolResult, AddLeadOutput, error) {
	if strings.TrimSpace(input.TravellerName) == "" && strings.TrimSpace(input.TripID) == "" {
		return nil, AddLeadOutput{}, fmt.Errorf("traveller_name or trip_id is required")
	}
	if input.Priority != "" && !models.ValidPriority(input.Priority) {
		return nil, AddLeadOutput{}, fmt.Errorf("invalid priority %q (want high, medium or low)", input.Priority)
	}

	lead := models.Lead{
		TravellerName: strings.TrimSpace(input.TravellerName),
		TripID:        strings.TrimSpace(input.TripID),
		Phone:         input.Phone,
		Email:         input.Email,
		Destination:   input.Destination,
		TravelDate:    input.TravelDate,
		Nights:        input.Nights,
		Adults:        input.Adults,
		Budget:        input.Budget,
		Source:        input.Source,
		Status:        input.Status,
		Consultant:    input.Consultant,
		Remarks:       input.Remarks,
	}
	if lead.Status == "" {
		lead.Status = "New"
	}
	if input.Priority != "" {
		lead.Priority = string(models.ParsePriority(input.Priority))
	}

	saved, err := h.crm.AppendLead(ctx, lead)
	res, err := writeResult(err, "Lead added")
	if err != nil {
		return nil, AddLeadOutput{}, err
	}
	return nil, AddLeadOutput{Success: res.Success, Queued: res.Queued, Message: res.Message, Lead: saved}, nil
}

type UpdateLeadInput struct {
	TripID        string `json:"trip_id,omitempty" jsonschema:"Trip ID of the lead (preferred when the lead has one)"`
	DateAndTime   string `json:"date_and_time,omitempty" jsonschema:"Creation timestamp exactly as shown in the sheet (used with traveller_name)"`
	TravellerName string `json:"traveller_name,omitempty" jsonschema:"Traveller name (used with date_and_time)"`
	Changes map[string]string `json:"changes" jsonschema:"Field name to new value, e.g. {\"status\": \"Hot\", \"remarks\": \"called back\"}"`
}

func (h *LeadHandlers) UpdateLead(ctx context.Context, _ *mcp.CallToolRequest, input UpdateLeadInput) (*mcp.CallToolResult, WriteOutput, error) {
	id, err := leadIdentity(input.TripID, input.DateAndTime, input.TravellerName)
	if err != nil {
		return nil, WriteOutput{}, err
	}
	if len(input.Changes) == 0 {
		return nil, WriteOutput{}, fmt.Errorf("changes is required")
	}
	out, err := writeResult(h.crm.UpdateLead(ctx, id, input.Changes), "Lead updated")
	return nil, out, err
}

type AssignConsultantInput struct {
	TripID        string `json:"trip_id,omitempty" jsonschema:"Trip ID of the lead (preferred when the lead has one)"`
	DateAndTime   string `json:"date_and_time,omitempty" jsonschema:"Creation timestamp exactly as shown in the sheet (used with traveller_name)"`
	TravellerName string `json:"traveller_name,omitempty" jsonschema:"Traveller name (used with date_and_time)"`
	Consultant string `json:"consultant" jsonschema:"Consultant name as listed on the Users sheet"`
}

func (h *LeadHandlers) AssignConsultant(ctx context.Context, _ *mcp.CallToolRequest, input AssignConsultantInput) (*mcp.CallToolResult, WriteOutput, error) {
	id, err := leadIdentity(input.TripID, input.DateAndTime, input.TravellerName)
	if err != nil {
		return nil, WriteOutput{}, err
	}
	if strings.TrimSpace(input.Consultant) == "" {
		return nil, WriteOutput{}, fmt.Errorf("consultant is required")
	}
	out, err := writeResult(h.crm.AssignConsultant(ctx, id, input.Consultant), "Consultant assigned")
	return nil, out, err
}

type SetPriorityInput struct {
	TripID        string `json:"trip_id,omitempty" jsonschema:"Trip ID of the lead (preferred when the lead has one)"`
	DateAndTime   string `json:"date_and_time,omitempty" jsonschema:"Creation timestamp exactly as shown in the sheet (used with traveller_name)"`
	TravellerName string `json:"traveller_name,omitempty" jsonschema:"Traveller name (used with date_and_time)"`
	Priority string `json:"priority" jsonschema:"high, medium or low"`
}

func (h *LeadHandlers) SetPriority(ctx context.Context, _ *mcp.CallToolRequest, input SetPriorityInput) (*mcp.CallToolResult, WriteOutput, error) {
	id, err := leadIdentity(input.TripID, input.DateAndTime, input.TravellerName)
	if err != nil {
		return nil, WriteOutput{}, err
	}
	if !models.ValidPriority(input.Priority) {
		return nil, WriteOutput{}, fmt.Errorf("invalid priority %q (want high, medium or low)", input.Priority)
	}
	out, err := writeResult(h.crm.SetPriority(ctx, id, input.Priority), "Priority set")
	return nil, out, err
}

type SetStatusInput struct {
	TripID        string `json:"trip_id,omitempty" jsonschema:"Trip ID of the lead (preferred when the lead has one)"`
	DateAndTime   string `json:"date_and_time,omitempty" jsonschema:"Creation timestamp exactly as shown in the sheet (used with traveller_name)"`
	TravellerName string `json:"traveller_name,omitempty" jsonschema:"Traveller name (used with date_and_time)"`
	Status string `json:"status" jsonschema:"New status text, e.g. Hot, Quotation sent, Booked"`
}

func (h *LeadHandlers) SetStatus(ctx context.Context, _ *mcp.CallToolRequest, input SetStatusInput) (*mcp.CallToolResult, WriteOutput, error) {
	id, err := leadIdentity(input.TripID, input.DateAndTime, input.TravellerName)
	if err != nil {
		return nil, WriteOutput{}, err
	}
	if strings.TrimSpace(input.Status) == "" {
		return nil, WriteOutput{}, fmt.Errorf("status is required")
	}
	out, err := writeResult(h.crm.SetStatus(ctx, id, input.Status), "Status set")
	return nil, out, err
}
