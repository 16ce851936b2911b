// ABOUTME: Tests for CRM data models
// ABOUTME: Validates status canonicalization, identities, date parsing and mutations
package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalStatus(t *testing.T) {
	tests := []struct {
		raw  string
		want Status
	}{
		{"", StatusNew},
		{"New Lead", StatusNew},
		{"Booked", StatusBooked},
		{"  BOOKED - advance received ", StatusBooked},
		{"Confirmed", StatusBooked},
		{"Not Booked", StatusLost},
		{"Booking Cancelled", StatusCancelled},
		{"Trip Completed", StatusCompleted},
		{"Quotation sent", StatusQuotationSent},
		{"Follow up", StatusFollowUp},
		{"Hot", StatusHot},
		{"warm", StatusWarm},
		{"Cold", StatusCold},
		{"Contacted", StatusContacted},
		{"Not interested", StatusLost},
		{"???", StatusUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			assert.Equal(t, tt.want, CanonicalStatus(tt.raw))
		})
	}
}

func TestIsBooked(t *testing.T) {
	assert.True(t, IsBooked("booked"))
	assert.False(t, IsBooked("not booked"))
	assert.False(t, IsBooked("booking cancelled"))
	assert.False(t, IsBooked(""))
}

func TestParsePriority(t *testing.T) {
	assert.Equal(t, PriorityHigh, ParsePriority("High"))
	assert.Equal(t, PriorityLow, ParsePriority(" low "))
	assert.Equal(t, PriorityMedium, ParsePriority("Medium"))
	assert.Equal(t, PriorityMedium, ParsePriority(""))
	assert.True(t, ValidPriority("HIGH"))
	assert.False(t, ValidPriority("urgent-ish"))
}

func TestIsUnassigned(t *testing.T) {
	for _, c := range []string{"", "  ", "Unassigned", "none", "-"} {
		assert.True(t, IsUnassigned(c), "expected %q to be unassigned", c)
	}
	assert.False(t, IsUnassigned("Jane"))
}

func TestIdentityOf(t *testing.T) {
	withTrip := Lead{TripID: " TRIP-9 ", DateAndTime: "01/02/2025 10:00:00", TravellerName: "Asha"}
	id := IdentityOf(withTrip)
	assert.Equal(t, IdentityByTripID, id.Kind)
	assert.Equal(t, "TRIP-9", id.TripID)

	noTrip := Lead{DateAndTime: "01/02/2025 10:00:00", TravellerName: "Asha"}
	id = IdentityOf(noTrip)
	assert.Equal(t, IdentityByDateAndName, id.Kind)
	assert.Equal(t, "01/02/2025 10:00:00", id.DateAndTime)
	assert.Equal(t, "Asha", id.TravellerName)
}

func TestIdentityMatchesOnlyItsVariant(t *testing.T) {
	row := Lead{TripID: "T1", DateAndTime: "d1", TravellerName: "Asha Rao"}

	assert.True(t, ByTripID("T1").Matches(row))
	assert.False(t, ByTripID("T2").Matches(row))
	assert.True(t, ByDateAndName("d1", "asha rao").Matches(row))
	assert.False(t, ByDateAndName("d2", "Asha Rao").Matches(row))

	blank := Lead{DateAndTime: "d1", TravellerName: "Asha Rao"}
	assert.False(t, ByTripID("").Matches(blank), "empty trip id must never match blank rows")
}

func TestIdentityValidate(t *testing.T) {
	assert.NoError(t, ByTripID("T1").Validate())
	assert.Error(t, ByTripID("").Validate())
	assert.Error(t, ByDateAndName("d1", "").Validate())
	assert.Error(t, Identity{Kind: "other"}.Validate())
}

func TestWatermarkKey(t *testing.T) {
	l := Lead{DateAndTime: " 01/02/2025 ", TravellerName: " Asha RAO "}
	assert.Equal(t, "01/02/2025|asha rao", WatermarkKey(l))
}

func TestParseSheetDate(t *testing.T) {
	loc := time.UTC
	tests := []struct {
		raw  string
		want time.Time
	}{
		{"2025-04-03", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"03/04/2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"3/4/2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"04/23/2025", time.Date(2025, 4, 23, 0, 0, 0, 0, loc)},
		{"03-04-2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"3 Apr 2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"3rd April 2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"Apr 3, 2025", time.Date(2025, 4, 3, 0, 0, 0, 0, loc)},
		{"03/04/2025 14:30:00", time.Date(2025, 4, 3, 14, 30, 0, 0, loc)},
		{"45000", time.Date(2023, 3, 15, 0, 0, 0, 0, loc)},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got, err := ParseSheetDate(tt.raw, loc)
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "want %s got %s", tt.want, got)
		})
	}

	for _, bad := range []string{"", "soon", "12", "next week"} {
		_, err := ParseSheetDate(bad, loc)
		assert.Error(t, err, "expected %q to fail", bad)
	}
}

func TestDaysFromToday(t *testing.T) {
	loc := time.UTC
	now := time.Date(2025, 4, 3, 23, 59, 0, 0, loc)

	assert.Equal(t, 0, DaysFromToday(time.Date(2025, 4, 3, 0, 0, 0, 0, loc), now, loc))
	assert.Equal(t, 1, DaysFromToday(time.Date(2025, 4, 4, 0, 0, 0, 0, loc), now, loc))
	assert.Equal(t, 2, DaysFromToday(time.Date(2025, 4, 5, 12, 0, 0, 0, loc), now, loc))
	assert.Equal(t, -1, DaysFromToday(time.Date(2025, 4, 2, 0, 0, 0, 0, loc), now, loc))
}

func TestMutationValidate(t *testing.T) {
	assert.NoError(t, NewAppendMutation("MASTER DATA", []string{"a"}).Validate())
	assert.Error(t, NewAppendMutation("MASTER DATA", nil).Validate())
	assert.NoError(t, NewUpdateMutation("MASTER DATA", ByTripID("T1"), map[string]string{"status": "Booked"}).Validate())
	assert.Error(t, NewUpdateMutation("MASTER DATA", ByTripID("T1"), nil).Validate())
	assert.Error(t, Mutation{Kind: MutationAppend, Row: []string{"a"}}.Validate())
}

func TestNewMutationCopiesInputs(t *testing.T) {
	row := []string{"a", "b"}
	m := NewAppendMutation("Users", row)
	row[0] = "changed"
	assert.Equal(t, "a", m.Row[0])

	changes := map[string]string{"status": "Hot"}
	u := NewUpdateMutation("MASTER DATA", ByTripID("T1"), changes)
	changes["status"] = "Cold"
	assert.Equal(t, "Hot", u.Changes["status"])
}

func TestNotificationVisibleTo(t *testing.T) {
	broadcast := Notification{}
	direct := Notification{RecipientEmail: "Jane@Example.com"}

	assert.True(t, broadcast.VisibleTo("anyone@example.com"))
	assert.True(t, direct.VisibleTo("jane@example.com"))
	assert.False(t, direct.VisibleTo("bob@example.com"))
}

func TestParseCategory(t *testing.T) {
	assert.Equal(t, CategoryLeadAssigned, ParseCategory("leadAssigned"))
	assert.Equal(t, CategoryGeneral, ParseCategory("something"))
}
