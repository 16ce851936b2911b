// ABOUTME: Worksheet layouts mapping logical field names to column letters
// ABOUTME: Holds the legacy lead (A-AL) and user (C/D/E/M/N) layouts and validates overrides
package rowmap

import (
	"fmt"
	"sort"
	"strings"
)

// Kind names a logical worksheet.
type Kind string

const (
	KindLeads         Kind = "leads"
	KindUsers         Kind = "users"
	KindNotifications Kind = "notifications"
	KindBlackboard    Kind = "blackboard"
)

// Kinds lists every logical worksheet in a stable order.
var Kinds = []Kind{KindLeads, KindUsers, KindNotifications, KindBlackboard}

// Default worksheet names.
const (
	SheetLeads         = "MASTER DATA"
	SheetUsers         = "Users"
	SheetNotifications = "Notification"
	SheetBlackboard    = "Blackboard"
)

// Lead field names.
const (
	FieldDateAndTime   = "dateAndTime"
	FieldTripID        = "tripId"
	FieldTravellerName = "travellerName"
	FieldPhone         = "phone"
	FieldEmail         = "email"
	FieldDestination   = "destination"
	FieldTravelDate    = "travelDate"
	FieldNights        = "nights"
	FieldAdults        = "adults"
	FieldChildren      = "children"
	FieldInfants       = "infants"
	FieldHotelCategory = "hotelCategory"
	FieldMealPlan      = "mealPlan"
	FieldBudget        = "budget"
	FieldStatus        = "status"
	FieldConsultant    = "consultant"
	FieldPriority      = "priority"
	FieldSource        = "source"
	FieldFollowUpDate  = "followUpDate"
	FieldRemarks       = "remarks"
	FieldNotes         = "notes"
	FieldPickup        = "pickup"
	FieldDrop          = "drop"
	FieldVehicle       = "vehicle"
	FieldQuotation     = "quotation"
	FieldQuotedAmount  = "quotedAmount"
	FieldAdvancePaid   = "advancePaid"
	FieldBalanceDue    = "balanceDue"
	FieldPaymentStatus = "paymentStatus"
	FieldInvoiceNumber = "invoiceNumber"
	FieldBookedOn      = "bookedOn"
	FieldCancelReason  = "cancelReason"
	FieldFeedback      = "feedback"
	FieldRating        = "rating"
	FieldReferral      = "referral"
	FieldAltPhone      = "altPhone"
	FieldCity          = "city"
	FieldLastUpdated   = "lastUpdated"
)

// User, notification and blackboard field names.
const (
	FieldName      = "name"
	FieldRole      = "role"
	FieldTeam      = "team"
	FieldID        = "id"
	FieldTitle     = "title"
	FieldMessage   = "message"
	FieldCategory  = "category"
	FieldCreatedAt = "createdAt"
	FieldRead      = "read"
	FieldRecipient = "recipientEmail"
	FieldPostedAt  = "postedAt"
	FieldAuthor    = "author"
)

// legacyLeadFields is the leads worksheet layout, columns A through AL in
// order. It must not be reordered: existing sheets depend on it.
var legacyLeadFields = []string{
	FieldDateAndTime, FieldTripID, FieldTravellerName, FieldPhone, FieldEmail,
	FieldDestination, FieldTravelDate, FieldNights, FieldAdults, FieldChildren,
	FieldInfants, FieldHotelCategory, FieldMealPlan, FieldBudget, FieldStatus,
	FieldConsultant, FieldPriority, FieldSource, FieldFollowUpDate, FieldRemarks,
	FieldNotes, FieldPickup, FieldDrop, FieldVehicle, FieldQuotation,
	FieldQuotedAmount, FieldAdvancePaid, FieldBalanceDue, FieldPaymentStatus, FieldInvoiceNumber,
	FieldBookedOn, FieldCancelReason, FieldFeedback, FieldRating, FieldReferral,
	FieldAltPhone, FieldCity, FieldLastUpdated,
}

// legacyUserColumns is the Users worksheet layout.
var legacyUserColumns = map[string]string{
	FieldName:   "C",
	FieldEmail:  "D",
	FieldRole:   "E",
	FieldTeam:   "M",
	FieldStatus: "N",
}

var notificationFields = []string{
	FieldID, FieldTitle, FieldMessage, FieldCategory, FieldCreatedAt, FieldRead, FieldRecipient,
}

var blackboardFields = []string{FieldPostedAt, FieldAuthor, FieldMessage}

// Layout maps the fields of one worksheet kind to zero-based column indexes.
type Layout struct {
	Kind    Kind
	Sheet   string
	columns map[string]int
}

// Column returns the zero-based column of field.
func (l Layout) Column(field string) (int, bool) {
	c, ok := l.columns[field]
	return c, ok
}

// Fields returns the layout's field names ordered by column.
func (l Layout) Fields() []string {
	fields := make([]string, 0, len(l.columns))
	for f := range l.columns {
		fields = append(fields, f)
	}
	sort.Slice(fields, func(i, j int) bool { return l.columns[fields[i]] < l.columns[fields[j]] })
	return fields
}

// Width is the number of cells a full row of this layout spans.
func (l Layout) Width() int {
	w := 0
	for _, c := range l.columns {
		if c+1 > w {
			w = c + 1
		}
	}
	return w
}

// Layouts holds one validated Layout per worksheet kind.
type Layouts struct {
	byKind map[Kind]Layout
}

// Get returns the layout for kind. Unknown kinds return an empty layout.
func (ls Layouts) Get(kind Kind) Layout {
	return ls.byKind[kind]
}

// Sheet returns the worksheet name configured for kind.
func (ls Layouts) Sheet(kind Kind) string {
	return ls.byKind[kind].Sheet
}

// SheetNames returns worksheet names in Kinds order.
func (ls Layouts) SheetNames() []string {
	names := make([]string, 0, len(Kinds))
	for _, k := range Kinds {
		names = append(names, ls.byKind[k].Sheet)
	}
	return names
}

// Overrides customises worksheet names and columns. Column keys are
// "kind.field" (for example "leads.status") and values are column letters.
type Overrides struct {
	Sheets  map[Kind]string   `yaml:"sheets" json:"sheets"`
	Columns map[string]string `yaml:"columns" json:"columns"`
}

// Merge returns o with gaps filled from credential settings. worksheets are
// matched to Kinds by position; column keys without a kind prefix refer to
// the leads worksheet. Entries already present in o win.
func (o Overrides) Merge(worksheets []string, columns map[string]string) Overrides {
	out := Overrides{
		Sheets:  make(map[Kind]string, len(o.Sheets)+len(worksheets)),
		Columns: make(map[string]string, len(o.Columns)+len(columns)),
	}
	for k, v := range o.Sheets {
		out.Sheets[k] = v
	}
	for k, v := range o.Columns {
		out.Columns[k] = v
	}
	for i, name := range worksheets {
		if i >= len(Kinds) || strings.TrimSpace(name) == "" {
			continue
		}
		if _, set := out.Sheets[Kinds[i]]; !set {
			out.Sheets[Kinds[i]] = name
		}
	}
	for key, letter := range columns {
		if !strings.Contains(key, ".") {
			key = string(KindLeads) + "." + key
		}
		if _, set := out.Columns[key]; !set {
			out.Columns[key] = letter
		}
	}
	return out
}

// DefaultLayouts returns the legacy layouts with no overrides.
func DefaultLayouts() Layouts {
	ls, err := NewLayouts(Overrides{})
	if err != nil {
		panic(fmt.Sprintf("default layouts invalid: %v", err))
	}
	return ls
}

// NewLayouts builds the layouts and validates overrides once: unknown kinds
// or fields, malformed letters and two fields sharing a column are errors.
func NewLayouts(o Overrides) (Layouts, error) {
	ls := Layouts{byKind: map[Kind]Layout{
		KindLeads:         positional(KindLeads, SheetLeads, legacyLeadFields),
		KindUsers:         lettered(KindUsers, SheetUsers, legacyUserColumns),
		KindNotifications: positional(KindNotifications, SheetNotifications, notificationFields),
		KindBlackboard:    positional(KindBlackboard, SheetBlackboard, blackboardFields),
	}}

	for kind, sheet := range o.Sheets {
		l, ok := ls.byKind[kind]
		if !ok {
			return Layouts{}, fmt.Errorf("unknown worksheet kind %q", kind)
		}
		if strings.TrimSpace(sheet) == "" {
			return Layouts{}, fmt.Errorf("worksheet name for %q is empty", kind)
		}
		l.Sheet = strings.TrimSpace(sheet)
		ls.byKind[kind] = l
	}

	for key, letter := range o.Columns {
		kindName, field, ok := strings.Cut(key, ".")
		if !ok {
			return Layouts{}, fmt.Errorf("column mapping %q must look like kind.field", key)
		}
		l, ok := ls.byKind[Kind(kindName)]
		if !ok {
			return Layouts{}, fmt.Errorf("column mapping %q: unknown worksheet kind %q", key, kindName)
		}
		if _, ok := l.columns[field]; !ok {
			return Layouts{}, fmt.Errorf("column mapping %q: unknown field %q", key, field)
		}
		idx, err := LetterToIndex(letter)
		if err != nil {
			return Layouts{}, fmt.Errorf("column mapping %q: %w", key, err)
		}
		l.columns[field] = idx
	}

	for _, kind := range Kinds {
		l := ls.byKind[kind]
		seen := make(map[int]string, len(l.columns))
		for _, field := range l.Fields() {
			col := l.columns[field]
			if other, dup := seen[col]; dup {
				return Layouts{}, fmt.Errorf("%s layout maps both %q and %q to column %s", kind, other, field, IndexToLetter(col))
			}
			seen[col] = field
		}
	}

	return ls, nil
}

func positional(kind Kind, sheet string, fields []string) Layout {
	cols := make(map[string]int, len(fields))
	for i, f := range fields {
		cols[f] = i
	}
	return Layout{Kind: kind, Sheet: sheet, columns: cols}
}

func lettered(kind Kind, sheet string, letters map[string]string) Layout {
	cols := make(map[string]int, len(letters))
	for f, letter := range letters {
		idx, err := LetterToIndex(letter)
		if err != nil {
			panic(err)
		}
		cols[f] = idx
	}
	return Layout{Kind: kind, Sheet: sheet, columns: cols}
}

// Aliases maps lowercase alias names to the configured worksheet names.
func (ls Layouts) Aliases() map[string]string {
	return map[string]string{
		"users":         ls.Sheet(KindUsers),
		"blackboard":    ls.Sheet(KindBlackboard),
		"notification":  ls.Sheet(KindNotifications),
		"notifications": ls.Sheet(KindNotifications),
		"leads":         ls.Sheet(KindLeads),
		"master data":   ls.Sheet(KindLeads),
	}
}
