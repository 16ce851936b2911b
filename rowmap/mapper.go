// ABOUTME: Translates raw worksheet rows to typed records and back
// ABOUTME: Drops the header row, maps missing cells to "" and keeps sheet row numbers
package rowmap

import (
	"fmt"
	"strings"

	"github.com/harperreed/leadsheet/models"
)

// Row is one free-form data row with its 1-based sheet row number.
type Row struct {
	Number int
	Cells  []string
}

// Cell returns the cell at column, or "" when the row is short.
func (r Row) Cell(column int) string {
	return cellAt(r.Cells, column)
}

// DataRows drops the header row. A single-row result has no data rows.
func DataRows(raw [][]string) [][]string {
	if len(raw) <= 1 {
		return nil
	}
	return raw[1:]
}

// ParseRows maps raw rows to free-form rows. Row numbers start at 2 because
// row 1 is the header.
func ParseRows(raw [][]string) []Row {
	data := DataRows(raw)
	rows := make([]Row, 0, len(data))
	for i, cells := range data {
		cp := make([]string, len(cells))
		copy(cp, cells)
		rows = append(rows, Row{Number: i + 2, Cells: cp})
	}
	return rows
}

// ParseLeads maps raw leads worksheet rows to leads.
func ParseLeads(ls Layouts, raw [][]string) []models.Lead {
	layout := ls.Get(KindLeads)
	data := DataRows(raw)
	leads := make([]models.Lead, 0, len(data))
	for _, cells := range data {
		leads = append(leads, leadFromCells(layout, cells))
	}
	return leads
}

// LocateLead finds the first data row matching id and returns its sheet row
// number.
func LocateLead(ls Layouts, raw [][]string, id models.Identity) (int, models.Lead, bool) {
	layout := ls.Get(KindLeads)
	for i, cells := range DataRows(raw) {
		lead := leadFromCells(layout, cells)
		if id.Matches(lead) {
			return i + 2, lead, true
		}
	}
	return 0, models.Lead{}, false
}

// LeadRow renders lead as a full row in layout order.
func LeadRow(ls Layouts, lead models.Lead) []string {
	layout := ls.Get(KindLeads)
	row := make([]string, layout.Width())
	for field, ptr := range leadFields(&lead) {
		if col, ok := layout.Column(field); ok {
			row[col] = *ptr
		}
	}
	return row
}

// LeadChangeColumns resolves lead field changes to column indexes. Unknown
// fields are rejected so a typo never writes to the wrong column.
func LeadChangeColumns(ls Layouts, changes map[string]string) (map[int]string, error) {
	layout := ls.Get(KindLeads)
	cols := make(map[int]string, len(changes))
	for field, value := range changes {
		col, ok := layout.Column(field)
		if !ok {
			return nil, fmt.Errorf("unknown lead field %q", field)
		}
		cols[col] = value
	}
	return cols, nil
}

// ApplyLeadChanges returns lead with changes applied by field name. Unknown
// fields are ignored.
func ApplyLeadChanges(lead models.Lead, changes map[string]string) models.Lead {
	fields := leadFields(&lead)
	for field, value := range changes {
		if ptr, ok := fields[field]; ok {
			*ptr = value
		}
	}
	return lead
}

// ParseUsers maps raw Users worksheet rows to users.
func ParseUsers(ls Layouts, raw [][]string) []models.User {
	layout := ls.Get(KindUsers)
	data := DataRows(raw)
	users := make([]models.User, 0, len(data))
	for _, cells := range data {
		get := getter(layout, cells)
		users = append(users, models.User{
			Name:   get(FieldName),
			Email:  get(FieldEmail),
			Role:   get(FieldRole),
			Team:   get(FieldTeam),
			Status: get(FieldStatus),
		})
	}
	return users
}

// UserRow renders u in the Users layout.
func UserRow(ls Layouts, u models.User) []string {
	layout := ls.Get(KindUsers)
	return render(layout, map[string]string{
		FieldName:   u.Name,
		FieldEmail:  u.Email,
		FieldRole:   u.Role,
		FieldTeam:   u.Team,
		FieldStatus: u.Status,
	})
}

// ParseNotifications maps raw Notification worksheet rows to notifications,
// keeping each record's sheet row number.
func ParseNotifications(ls Layouts, raw [][]string) []models.Notification {
	layout := ls.Get(KindNotifications)
	data := DataRows(raw)
	out := make([]models.Notification, 0, len(data))
	for i, cells := range data {
		get := getter(layout, cells)
		out = append(out, models.Notification{
			ID:             get(FieldID),
			Title:          get(FieldTitle),
			Message:        get(FieldMessage),
			Category:       models.ParseCategory(get(FieldCategory)),
			CreatedAt:      get(FieldCreatedAt),
			Read:           parseBool(get(FieldRead)),
			RecipientEmail: get(FieldRecipient),
			RowNumber:      i + 2,
		})
	}
	return out
}

// NotificationRow renders n in the Notification layout.
func NotificationRow(ls Layouts, n models.Notification) []string {
	layout := ls.Get(KindNotifications)
	return render(layout, map[string]string{
		FieldID:        n.ID,
		FieldTitle:     n.Title,
		FieldMessage:   n.Message,
		FieldCategory:  string(n.Category),
		FieldCreatedAt: n.CreatedAt,
		FieldRead:      formatBool(n.Read),
		FieldRecipient: n.RecipientEmail,
	})
}

// NotificationReadColumn is the column holding the read flag.
func NotificationReadColumn(ls Layouts) int {
	col, _ := ls.Get(KindNotifications).Column(FieldRead)
	return col
}

// ParseBlackboard maps raw Blackboard worksheet rows to posts.
func ParseBlackboard(ls Layouts, raw [][]string) []models.BlackboardPost {
	layout := ls.Get(KindBlackboard)
	data := DataRows(raw)
	posts := make([]models.BlackboardPost, 0, len(data))
	for i, cells := range data {
		get := getter(layout, cells)
		posts = append(posts, models.BlackboardPost{
			PostedAt:  get(FieldPostedAt),
			Author:    get(FieldAuthor),
			Message:   get(FieldMessage),
			RowNumber: i + 2,
		})
	}
	return posts
}

// BlackboardRow renders p in the Blackboard layout.
func BlackboardRow(ls Layouts, p models.BlackboardPost) []string {
	layout := ls.Get(KindBlackboard)
	return render(layout, map[string]string{
		FieldPostedAt: p.PostedAt,
		FieldAuthor:   p.Author,
		FieldMessage:  p.Message,
	})
}

func leadFromCells(layout Layout, cells []string) models.Lead {
	var lead models.Lead
	for field, ptr := range leadFields(&lead) {
		if col, ok := layout.Column(field); ok {
			*ptr = cellAt(cells, col)
		}
	}
	return lead
}

// leadFields is the single field-name to struct-field table for leads.
func leadFields(l *models.Lead) map[string]*string {
	return map[string]*string{
		FieldDateAndTime:   &l.DateAndTime,
		FieldTripID:        &l.TripID,
		FieldTravellerName: &l.TravellerName,
		FieldPhone:         &l.Phone,
		FieldEmail:         &l.Email,
		FieldDestination:   &l.Destination,
		FieldTravelDate:    &l.TravelDate,
		FieldNights:        &l.Nights,
		FieldAdults:        &l.Adults,
		FieldChildren:      &l.Children,
		FieldInfants:       &l.Infants,
		FieldHotelCategory: &l.HotelCategory,
		FieldMealPlan:      &l.MealPlan,
		FieldBudget:        &l.Budget,
		FieldStatus:        &l.Status,
		FieldConsultant:    &l.Consultant,
		FieldPriority:      &l.Priority,
		FieldSource:        &l.Source,
		FieldFollowUpDate:  &l.FollowUpDate,
		FieldRemarks:       &l.Remarks,
		FieldNotes:         &l.Notes,
		FieldPickup:        &l.Pickup,
		FieldDrop:          &l.Drop,
		FieldVehicle:       &l.Vehicle,
		FieldQuotation:     &l.Quotation,
		FieldQuotedAmount:  &l.QuotedAmount,
		FieldAdvancePaid:   &l.AdvancePaid,
		FieldBalanceDue:    &l.BalanceDue,
		FieldPaymentStatus: &l.PaymentStatus,
		FieldInvoiceNumber: &l.InvoiceNumber,
		FieldBookedOn:      &l.BookedOn,
		FieldCancelReason:  &l.CancelReason,
		FieldFeedback:      &l.Feedback,
		FieldRating:        &l.Rating,
		FieldReferral:      &l.Referral,
		FieldAltPhone:      &l.AltPhone,
		FieldCity:          &l.City,
		FieldLastUpdated:   &l.LastUpdated,
	}
}

func getter(layout Layout, cells []string) func(string) string {
	return func(field string) string {
		col, ok := layout.Column(field)
		if !ok {
			return ""
		}
		return cellAt(cells, col)
	}
}

func render(layout Layout, values map[string]string) []string {
	row := make([]string, layout.Width())
	for field, v := range values {
		if col, ok := layout.Column(field); ok {
			row[col] = v
		}
	}
	return row
}

func cellAt(cells []string, col int) string {
	if col < 0 || col >= len(cells) {
		return ""
	}
	return cells[col]
}

func parseBool(s string) bool {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "true", "yes", "y", "1", "read":
		return true
	}
	return false
}

func formatBool(b bool) string {
	if b {
		return "TRUE"
	}
	return "FALSE"
}
