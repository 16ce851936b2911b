// ABOUTME: Lead pipeline status and priority taxonomies
// ABOUTME: All free-text matching of sheet status cells happens here and nowhere else
package models

import "strings"

// Status is a canonical lead pipeline stage.
type Status string

const (
	StatusNew           Status = "new"
	StatusContacted     Status = "contacted"
	StatusFollowUp      Status = "follow_up"
	StatusHot           Status = "hot"
	StatusWarm          Status = "warm"
	StatusCold          Status = "cold"
	StatusQuotationSent Status = "quotation_sent"
	StatusNegotiation   Status = "negotiation"
	StatusBooked        Status = "booked"
	StatusCompleted     Status = "completed"
	StatusCancelled     Status = "cancelled"
	StatusLost          Status = "lost"
	StatusUnknown       Status = "unknown"
)

// statusRule maps a set of substrings to a stage. Order matters: the first
// rule with a matching needle wins, so negative phrases ("not booked",
// "booking cancelled") are listed before the positive ones they contain.
type statusRule struct {
	status  Status
	needles []string
}

var statusRules = []statusRule{
	{StatusCancelled, []string{"cancel"}},
	{StatusLost, []string{"not booked", "not interested", "lost", "dead", "junk"}},
	{StatusCompleted, []string{"complete", "travelled", "trip done"}},
	{StatusBooked, []string{"booked", "confirmed"}},
	{StatusQuotationSent, []string{"quot"}},
	{StatusNegotiation, []string{"negotiat"}},
	{StatusFollowUp, []string{"follow"}},
	{StatusHot, []string{"hot"}},
	{StatusWarm, []string{"warm"}},
	{StatusCold, []string{"cold"}},
	{StatusContacted, []string{"contact", "call"}},
	{StatusNew, []string{"new", "fresh", "open"}},
}

// CanonicalStatus maps raw status cell text to a Status. Blank cells are new
// leads; text that matches nothing is StatusUnknown.
func CanonicalStatus(raw string) Status {
	s := strings.ToLower(strings.TrimSpace(raw))
	if s == "" {
		return StatusNew
	}
	for _, rule := range statusRules {
		for _, needle := range rule.needles {
			if strings.Contains(s, needle) {
				return rule.status
			}
		}
	}
	return StatusUnknown
}

// IsBooked reports whether raw status text indicates a booked lead.
func IsBooked(raw string) bool {
	return CanonicalStatus(raw) == StatusBooked
}

// Priority is a canonical lead priority.
type Priority string

const (
	PriorityHigh   Priority = "high"
	PriorityMedium Priority = "medium"
	PriorityLow    Priority = "low"
)

// ParsePriority maps raw priority text to a Priority. Blank or unrecognised
// text is medium.
func ParsePriority(raw string) Priority {
	s := strings.ToLower(strings.TrimSpace(raw))
	switch {
	case strings.HasPrefix(s, "high"), s == "h", s == "urgent":
		return PriorityHigh
	case strings.HasPrefix(s, "low"), s == "l":
		return PriorityLow
	default:
		return PriorityMedium
	}
}

// ValidPriority reports whether raw names one of the three priorities exactly.
func ValidPriority(raw string) bool {
	switch Priority(strings.ToLower(strings.TrimSpace(raw))) {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}

// IsUnassigned reports whether a consultant cell holds no real assignee.
func IsUnassigned(consultant string) bool {
	switch strings.ToLower(strings.TrimSpace(consultant)) {
	case "", "unassigned", "not assigned", "none", "-", "n/a", "na":
		return true
	}
	return false
}
