// ABOUTME: Data models for sheet-backed CRM records
// ABOUTME: Defines Lead, User, Notification, BlackboardPost and their enumerations
package models

import (
	"strings"
	"time"
)

// Lead is one row of the leads worksheet. Every field is kept as the raw
// cell text so a row survives a read/write round trip unchanged; typed views
// are exposed through methods.
type Lead struct {
	DateAndTime   string `json:"date_and_time"`
	TripID        string `json:"trip_id"`
	TravellerName string `json:"traveller_name"`
	Phone         string `json:"phone"`
	Email         string `json:"email"`
	Destination   string `json:"destination"`
	TravelDate    string `json:"travel_date"`
	Nights        string `json:"nights"`
	Adults        string `json:"adults"`
	Children      string `json:"children"`
	Infants       string `json:"infants"`
	HotelCategory string `json:"hotel_category"`
	MealPlan      string `json:"meal_plan"`
	Budget        string `json:"budget"`
	Status        string `json:"status"`
	Consultant    string `json:"consultant"`
	Priority      string `json:"priority"`
	Source        string `json:"source"`
	FollowUpDate  string `json:"follow_up_date"`
	Remarks       string `json:"remarks"`
	Notes         string `json:"notes"`
	Pickup        string `json:"pickup"`
	Drop          string `json:"drop"`
	Vehicle       string `json:"vehicle"`
	Quotation     string `json:"quotation"`
	QuotedAmount  string `json:"quoted_amount"`
	AdvancePaid   string `json:"advance_paid"`
	BalanceDue    string `json:"balance_due"`
	PaymentStatus string `json:"payment_status"`
	InvoiceNumber string `json:"invoice_number"`
	BookedOn      string `json:"booked_on"`
	CancelReason  string `json:"cancel_reason"`
	Feedback      string `json:"feedback"`
	Rating        string `json:"rating"`
	Referral      string `json:"referral"`
	AltPhone      string `json:"alt_phone"`
	City          string `json:"city"`
	LastUpdated   string `json:"last_updated"`
}

// Stage returns the canonical pipeline stage for the raw status text.
func (l Lead) Stage() Status {
	return CanonicalStatus(l.Status)
}

// PriorityLevel returns the canonical priority for the raw priority text.
func (l Lead) PriorityLevel() Priority {
	return ParsePriority(l.Priority)
}

// Assigned reports whether the lead has a real consultant.
func (l Lead) Assigned() bool {
	return !IsUnassigned(l.Consultant)
}

// Identity returns the identity used to match this lead against sheet rows.
func (l Lead) Identity() Identity {
	return IdentityOf(l)
}

// User is one row of the Users worksheet.
type User struct {
	Name   string `json:"name"`
	Email  string `json:"email"`
	Role   string `json:"role"`
	Team   string `json:"team"`
	Status string `json:"status"`
}

// IsAdmin reports whether the user holds the admin role.
func (u User) IsAdmin() bool {
	return strings.EqualFold(strings.TrimSpace(u.Role), RoleAdmin)
}

// User roles.
const (
	RoleAdmin      = "admin"
	RoleConsultant = "consultant"
)

// NotificationCategory enumerates the kinds of rows written to the
// Notification worksheet.
type NotificationCategory string

const (
	CategoryNewLead      NotificationCategory = "newLead"
	CategoryLeadAssigned NotificationCategory = "leadAssigned"
	CategoryTripReminder NotificationCategory = "tripReminder"
	CategoryLeadBooked   NotificationCategory = "leadBooked"
	CategoryBlackboard   NotificationCategory = "blackboard"
	CategoryGeneral      NotificationCategory = "general"
)

// ParseCategory maps sheet text to a category, defaulting to general.
func ParseCategory(raw string) NotificationCategory {
	switch c := NotificationCategory(strings.TrimSpace(raw)); c {
	case CategoryNewLead, CategoryLeadAssigned, CategoryTripReminder, CategoryLeadBooked, CategoryBlackboard:
		return c
	default:
		return CategoryGeneral
	}
}

// Notification is one row of the Notification worksheet. RowNumber is the
// 1-based sheet row the record was read from, so "mark read" can target the
// exact cell without re-scanning.
type Notification struct {
	ID             string               `json:"id"`
	Title          string               `json:"title"`
	Message        string               `json:"message"`
	Category       NotificationCategory `json:"category"`
	CreatedAt      string               `json:"created_at"`
	Read           bool                 `json:"read"`
	RecipientEmail string               `json:"recipient_email,omitempty"`
	RowNumber      int                  `json:"row_number,omitempty"`
}

// IsBroadcast reports whether the notification targets every user.
func (n Notification) IsBroadcast() bool {
	return strings.TrimSpace(n.RecipientEmail) == ""
}

// VisibleTo reports whether the notification should be shown to email.
func (n Notification) VisibleTo(email string) bool {
	return n.IsBroadcast() || strings.EqualFold(strings.TrimSpace(n.RecipientEmail), strings.TrimSpace(email))
}

// BlackboardPost is one row of the Blackboard worksheet.
type BlackboardPost struct {
	PostedAt  string `json:"posted_at"`
	Author    string `json:"author"`
	Message   string `json:"message"`
	RowNumber int    `json:"row_number,omitempty"`
}

// Sheet timestamp layout used when this module writes dates.
const SheetTimestampLayout = "02/01/2006 15:04:05"

// FormatSheetTime formats t the way timestamps are written to the sheet.
func FormatSheetTime(t time.Time) string {
	return t.Format(SheetTimestampLayout)
}

// Sync status constants.
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

type SyncState struct {
	Service      string     `json:"service"`
	LastSyncTime *time.Time `json:"last_sync_time,omitempty"`
	Status       string     `json:"status"`
	ErrorMessage string     `json:"error_message,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}
