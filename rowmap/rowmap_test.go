// ABOUTME: Tests for column letters, layouts and row mapping
// ABOUTME: Covers letter round-trips, header dropping, legacy layouts and overrides
package rowmap

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/harperreed/leadsheet/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexToLetterKnownValues(t *testing.T) {
	tests := []struct {
		index int
		want  string
	}{
		{0, "A"},
		{1, "B"},
		{25, "Z"},
		{26, "AA"},
		{27, "AB"},
		{37, "AL"},
		{701, "ZZ"},
		{702, "AAA"},
	}

	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			assert.Equal(t, tt.want, IndexToLetter(tt.index))
		})
	}
	assert.Equal(t, "", IndexToLetter(-1))
}

func TestLetterRoundTrip(t *testing.T) {
	for i := 0; i <= 701; i++ {
		got, err := LetterToIndex(IndexToLetter(i))
		require.NoError(t, err)
		require.Equal(t, i, got, "round trip of %d", i)
	}
}

func TestLetterToIndexRejectsBadInput(t *testing.T) {
	for _, bad := range []string{"", " ", "A1", "Ä", "-"} {
		_, err := LetterToIndex(bad)
		assert.Error(t, err, "expected %q to fail", bad)
	}
	idx, err := LetterToIndex("ab")
	require.NoError(t, err)
	assert.Equal(t, 27, idx)
}

func TestA1(t *testing.T) {
	assert.Equal(t, "MASTER DATA!O5", A1("MASTER DATA", 5, 14))
}

func TestHeaderRowDropping(t *testing.T) {
	ls := DefaultLayouts()

	assert.Empty(t, ParseLeads(ls, nil))
	assert.Empty(t, ParseLeads(ls, [][]string{{"Date", "Trip ID", "Name"}}))

	raw := [][]string{
		{"Date", "Trip ID", "Name"},
		{"01/02/2025 10:00:00", "T1", "Asha"},
		{"02/02/2025 11:00:00", "", "Ravi"},
		{"03/02/2025 12:00:00", "T3", "Meera"},
	}
	leads := ParseLeads(ls, raw)
	require.Len(t, leads, 3)
	assert.Equal(t, "T1", leads[0].TripID)
	assert.Equal(t, "Asha", leads[0].TravellerName)
	assert.Equal(t, "Ravi", leads[1].TravellerName)

	rows := ParseRows(raw)
	require.Len(t, rows, 3)
	assert.Equal(t, 2, rows[0].Number)
	assert.Equal(t, "T1", rows[0].Cell(1))
	assert.Equal(t, "", rows[0].Cell(20))
}

func TestMissingCellsAreEmpty(t *testing.T) {
	ls := DefaultLayouts()
	leads := ParseLeads(ls, [][]string{{"h"}, {"01/02/2025"}})
	require.Len(t, leads, 1)
	assert.Equal(t, "01/02/2025", leads[0].DateAndTime)
	assert.Equal(t, "", leads[0].LastUpdated)
	assert.Equal(t, "", leads[0].Consultant)
}

func TestLegacyLeadLayout(t *testing.T) {
	ls := DefaultLayouts()
	layout := ls.Get(KindLeads)

	assert.Equal(t, "MASTER DATA", layout.Sheet)
	assert.Equal(t, 38, layout.Width())

	checks := map[string]string{
		FieldDateAndTime:   "A",
		FieldTripID:        "B",
		FieldTravellerName: "C",
		FieldStatus:        "O",
		FieldConsultant:    "P",
		FieldPriority:      "Q",
		FieldLastUpdated:   "AL",
	}
	for field, letter := range checks {
		col, ok := layout.Column(field)
		require.True(t, ok, field)
		assert.Equal(t, letter, IndexToLetter(col), field)
	}
}

func TestLegacyUserLayout(t *testing.T) {
	ls := DefaultLayouts()
	row := make([]string, 14)
	row[2] = "Jane"
	row[3] = "jane@example.com"
	row[4] = "Admin"
	row[12] = "North"
	row[13] = "Active"

	users := ParseUsers(ls, [][]string{make([]string, 14), row})
	require.Len(t, users, 1)
	assert.Equal(t, models.User{Name: "Jane", Email: "jane@example.com", Role: "Admin", Team: "North", Status: "Active"}, users[0])
	assert.True(t, users[0].IsAdmin())
	assert.Equal(t, row, UserRow(ls, users[0]))
}

func TestLeadRowRoundTrip(t *testing.T) {
	ls := DefaultLayouts()
	lead := models.Lead{
		DateAndTime:   "01/02/2025 10:00:00",
		TripID:        "T9",
		TravellerName: "Asha",
		Status:        "Booked",
		Consultant:    "Jane",
		LastUpdated:   "now",
	}
	row := LeadRow(ls, lead)
	require.Len(t, row, 38)
	assert.Equal(t, "Booked", row[14])
	assert.Equal(t, "now", row[37])

	parsed := ParseLeads(ls, [][]string{{"header"}, row})
	require.Len(t, parsed, 1)
	assert.Equal(t, lead, parsed[0])
}

func TestLocateLead(t *testing.T) {
	ls := DefaultLayouts()
	raw := [][]string{
		{"header"},
		LeadRow(ls, models.Lead{DateAndTime: "d1", TravellerName: "Asha"}),
		LeadRow(ls, models.Lead{DateAndTime: "d2", TripID: "T2", TravellerName: "Ravi"}),
	}

	row, lead, ok := LocateLead(ls, raw, models.ByTripID("T2"))
	require.True(t, ok)
	assert.Equal(t, 3, row)
	assert.Equal(t, "Ravi", lead.TravellerName)

	row, _, ok = LocateLead(ls, raw, models.ByDateAndName("d1", "ASHA"))
	require.True(t, ok)
	assert.Equal(t, 2, row)

	_, _, ok = LocateLead(ls, raw, models.ByTripID("missing"))
	assert.False(t, ok)
}

func TestLeadChangeColumns(t *testing.T) {
	ls := DefaultLayouts()
	cols, err := LeadChangeColumns(ls, map[string]string{FieldConsultant: "Jane", FieldPriority: "high"})
	require.NoError(t, err)
	assert.Equal(t, map[int]string{15: "Jane", 16: "high"}, cols)

	_, err = LeadChangeColumns(ls, map[string]string{"bogus": "x"})
	assert.Error(t, err)
}

func TestApplyLeadChanges(t *testing.T) {
	lead := ApplyLeadChanges(models.Lead{Status: "New"}, map[string]string{FieldStatus: "Hot", "bogus": "x"})
	assert.Equal(t, "Hot", lead.Status)
}

func TestNotificationMapping(t *testing.T) {
	ls := DefaultLayouts()
	n := models.Notification{
		ID:             "n1",
		Title:          "Lead assigned",
		Message:        "Asha assigned to Jane",
		Category:       models.CategoryLeadAssigned,
		CreatedAt:      "01/02/2025 10:00:00",
		RecipientEmail: "jane@example.com",
	}
	row := NotificationRow(ls, n)
	assert.Equal(t, []string{"n1", "Lead assigned", "Asha assigned to Jane", "leadAssigned", "01/02/2025 10:00:00", "FALSE", "jane@example.com"}, row)

	read := append([]string(nil), row...)
	read[5] = "TRUE"
	parsed := ParseNotifications(ls, [][]string{{"header"}, row, read})
	require.Len(t, parsed, 2)
	assert.Equal(t, 2, parsed[0].RowNumber)
	assert.False(t, parsed[0].Read)
	assert.Equal(t, 3, parsed[1].RowNumber)
	assert.True(t, parsed[1].Read)
	assert.Equal(t, 5, NotificationReadColumn(ls))
}

func TestBlackboardMapping(t *testing.T) {
	ls := DefaultLayouts()
	p := models.BlackboardPost{PostedAt: "t", Author: "Jane", Message: "hello"}
	posts := ParseBlackboard(ls, [][]string{{"h"}, BlackboardRow(ls, p)})
	require.Len(t, posts, 1)
	assert.Equal(t, "hello", posts[0].Message)
	assert.Equal(t, 2, posts[0].RowNumber)
}

func TestNewLayoutsOverrides(t *testing.T) {
	ls, err := NewLayouts(Overrides{
		Sheets:  map[Kind]string{KindLeads: "Leads 2025"},
		Columns: map[string]string{"users.email": "F", "users.role": "g"},
	})
	require.NoError(t, err)
	assert.Equal(t, "Leads 2025", ls.Sheet(KindLeads))
	assert.Equal(t, "Leads 2025", ls.Aliases()["master data"])
	col, _ := ls.Get(KindUsers).Column(FieldRole)
	assert.Equal(t, 6, col)

	// defaults are untouched by a previous override
	col, _ = DefaultLayouts().Get(KindUsers).Column(FieldRole)
	assert.Equal(t, 4, col)
}

func TestNewLayoutsRejectsInvalid(t *testing.T) {
	tests := []struct {
		name string
		o    Overrides
	}{
		{"unknown kind", Overrides{Sheets: map[Kind]string{"orders": "Orders"}}},
		{"empty sheet", Overrides{Sheets: map[Kind]string{KindUsers: " "}}},
		{"malformed key", Overrides{Columns: map[string]string{"status": "A"}}},
		{"unknown field", Overrides{Columns: map[string]string{"leads.shoeSize": "A"}}},
		{"bad letter", Overrides{Columns: map[string]string{"leads.status": "1"}}},
		{"duplicate column", Overrides{Columns: map[string]string{"users.email": "C"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewLayouts(tt.o)
			assert.Error(t, err)
		})
	}
}

func TestLoadLayouts(t *testing.T) {
	ls, err := LoadLayouts("")
	require.NoError(t, err)
	assert.Equal(t, "Users", ls.Sheet(KindUsers))

	path := filepath.Join(t.TempDir(), "layout.yaml")
	content := "sheets:\n  users: Team\ncolumns:\n  users.team: P\n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))

	ls, err = LoadLayouts(path)
	require.NoError(t, err)
	assert.Equal(t, "Team", ls.Sheet(KindUsers))
	col, _ := ls.Get(KindUsers).Column(FieldTeam)
	assert.Equal(t, 15, col)

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("columns:\n  users.team: C\n"), 0600))
	_, err = LoadLayouts(bad)
	assert.Error(t, err)
}

func TestOverridesMerge(t *testing.T) {
	file := Overrides{
		Sheets:  map[Kind]string{KindUsers: "Team"},
		Columns: map[string]string{"leads.status": "P"},
	}
	merged := file.Merge(
		[]string{"Leads 2025", "Staff", "", "Board", "Extra"},
		map[string]string{"status": "Z", "consultant": "O", "users.team": "Q"},
	)

	assert.Equal(t, map[Kind]string{
		KindLeads:      "Leads 2025",
		KindUsers:      "Team",
		KindBlackboard: "Board",
	}, merged.Sheets)
	assert.Equal(t, map[string]string{
		"leads.status":     "P",
		"leads.consultant": "O",
		"users.team":       "Q",
	}, merged.Columns)
	assert.Len(t, file.Columns, 1, "receiver must not be modified")

	ls, err := NewLayouts(merged)
	require.NoError(t, err)
	col, _ := ls.Get(KindLeads).Column(FieldStatus)
	assert.Equal(t, 15, col)
}
