// ABOUTME: Tests for the MCP tool handlers
// ABOUTME: Uses an in-memory CRM fake to check filtering, validation and queued-write reporting
package handlers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsheet/crm"
	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/queue"
)

type fakeCRM struct {
	leads         []models.Lead
	posts         []models.BlackboardPost
	notifications []models.Notification
	pending       []models.Mutation
	online        bool

	writeErr error
	fetchErr error

	appended    []models.Lead
	updates     map[string]map[string]string
	priorities  map[string]string
	statuses    map[string]string
	consultants map[string]string
	readRows    []int
	recipient   string
	drains      int
}

func newFakeCRM() *fakeCRM {
	return &fakeCRM{
		online:      true,
		updates:     make(map[string]map[string]string),
		priorities:  make(map[string]string),
		statuses:    make(map[string]string),
		consultants: make(map[string]string),
	}
}

func (f *fakeCRM) FetchLeads(_ context.Context, _ bool) ([]models.Lead, error) {
	return f.leads, f.fetchErr
}

func (f *fakeCRM) AppendLead(_ context.Context, lead models.Lead) (models.Lead, error) {
	if lead.DateAndTime == "" {
		lead.DateAndTime = "03/04/2025 09:30:00"
	}
	f.appended = append(f.appended, lead)
	return lead, f.writeErr
}

func (f *fakeCRM) UpdateLead(_ context.Context, id models.Identity, changes map[string]string) error {
	f.updates[id.String()] = changes
	return f.writeErr
}

func (f *fakeCRM) AssignConsultant(_ context.Context, id models.Identity, consultant string) error {
	f.consultants[id.String()] = consultant
	return f.writeErr
}

func (f *fakeCRM) SetPriority(_ context.Context, id models.Identity, priority string) error {
	f.priorities[id.String()] = priority
	return f.writeErr
}

func (f *fakeCRM) SetStatus(_ context.Context, id models.Identity, status string) error {
	f.statuses[id.String()] = status
	return f.writeErr
}

func (f *fakeCRM) PostBlackboard(_ context.Context, author, message string) (models.BlackboardPost, error) {
	p := models.BlackboardPost{Author: author, Message: message, PostedAt: "now"}
	f.posts = append(f.posts, p)
	return p, f.writeErr
}

func (f *fakeCRM) FetchBlackboard(context.Context) ([]models.BlackboardPost, error) {
	return f.posts, f.fetchErr
}

func (f *fakeCRM) FetchNotifications(_ context.Context, recipient string, unreadOnly bool) ([]models.Notification, error) {
	f.recipient = recipient
	var out []models.Notification
	for _, n := range f.notifications {
		if recipient != "" && !n.VisibleTo(recipient) {
			continue
		}
		if unreadOnly && n.Read {
			continue
		}
		out = append(out, n)
	}
	return out, f.fetchErr
}

func (f *fakeCRM) MarkNotificationRead(_ context.Context, rowNumber int) error {
	f.readRows = append(f.readRows, rowNumber)
	return f.writeErr
}

func (f *fakeCRM) PendingWrites(context.Context) ([]models.Mutation, error) {
	return f.pending, nil
}

func (f *fakeCRM) DrainQueue(context.Context) (queue.DrainResult, error) {
	f.drains++
	return queue.DrainResult{Succeeded: len(f.pending)}, nil
}

func (f *fakeCRM) Online() bool {
	return f.online
}

func sampleLeads() []models.Lead {
	return []models.Lead{
		{TripID: "T1", TravellerName: "Asha Rao", Destination: "Goa", Status: "New", Consultant: ""},
		{TripID: "T2", TravellerName: "Ravi Kumar", Destination: "Manali", Status: "Hot", Consultant: "Jane Doe"},
		{TripID: "T3", TravellerName: "Meera", Destination: "Goa", Status: "Booked", Consultant: "jane doe"},
		{TripID: "T4", TravellerName: "Kiran", Destination: "Ooty", Status: "Hot", Consultant: "Unassigned"},
	}
}

func TestFetchLeadsFilters(t *testing.T) {
	fake := newFakeCRM()
	fake.leads = sampleLeads()
	h := NewLeadHandlers(fake)

	tests := []struct {
		name  string
		input FetchLeadsInput
		want  []string
	}{
		{"all", FetchLeadsInput{}, []string{"T1", "T2", "T3", "T4"}},
		{"query matches destination", FetchLeadsInput{Query: "goa"}, []string{"T1", "T3"}},
		{"query matches trip id", FetchLeadsInput{Query: "t2"}, []string{"T2"}},
		{"consultant is case-insensitive", FetchLeadsInput{Consultant: "JANE DOE"}, []string{"T2", "T3"}},
		{"unassigned includes marker", FetchLeadsInput{Consultant: "unassigned"}, []string{"T1", "T4"}},
		{"status by stage", FetchLeadsInput{Status: "hot"}, []string{"T2", "T4"}},
		{"limit", FetchLeadsInput{Limit: 2}, []string{"T1", "T2"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, out, err := h.FetchLeads(context.Background(), nil, tt.input)
			require.NoError(t, err)
			var got []string
			for _, l := range out.Leads {
				got = append(got, l.TripID)
			}
			assert.Equal(t, tt.want, got)
			assert.Equal(t, len(tt.want), out.Count)
			assert.Equal(t, 4, out.Total)
		})
	}
}

func TestFetchLeadsError(t *testing.T) {
	fake := newFakeCRM()
	fake.fetchErr = errors.New("offline")
	_, _, err := NewLeadHandlers(fake).FetchLeads(context.Background(), nil, FetchLeadsInput{})
	assert.ErrorContains(t, err, "offline")
}

func TestAddLead(t *testing.T) {
	fake := newFakeCRM()
	h := NewLeadHandlers(fake)

	_, _, err := h.AddLead(context.Background(), nil, AddLeadInput{})
	assert.Error(t, err)
	_, _, err = h.AddLead(context.Background(), nil, AddLeadInput{TravellerName: "Asha", Priority: "urgent-ish"})
	assert.Error(t, err)
	assert.Empty(t, fake.appended)

	_, out, err := h.AddLead(context.Background(), nil, AddLeadInput{TravellerName: " Asha ", Destination: "Goa", Priority: "HIGH"})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, "Asha", out.Lead.TravellerName)
	assert.Equal(t, "03/04/2025 09:30:00", out.Lead.DateAndTime)
	require.Len(t, fake.appended, 1)
	assert.Equal(t, "New", fake.appended[0].Status)
	assert.Equal(t, "high", fake.appended[0].Priority)
}

func TestAddLeadQueuedIsNotAToolError(t *testing.T) {
	fake := newFakeCRM()
	fake.writeErr = &crm.WriteError{Op: "add lead", Err: errors.New("connection refused"), Queued: true}
	h := NewLeadHandlers(fake)

	_, out, err := h.AddLead(context.Background(), nil, AddLeadInput{TravellerName: "Asha"})
	require.NoError(t, err)
	assert.False(t, out.Success)
	assert.True(t, out.Queued)
	assert.Contains(t, out.Message, "will be retried")
}

func TestWriteResult(t *testing.T) {
	out, err := writeResult(nil, "done")
	require.NoError(t, err)
	assert.Equal(t, WriteOutput{Success: true, Message: "done"}, out)

	_, err = writeResult(&crm.WriteError{Op: "mark notification read", Err: errors.New("boom")}, "done")
	assert.EqualError(t, err, "Could not mark notification read: boom")

	plain := errors.New("invalid")
	_, err = writeResult(plain, "done")
	assert.Equal(t, plain, err)
}

func TestLeadIdentity(t *testing.T) {
	id, err := leadIdentity(" T9 ", "d", "n")
	require.NoError(t, err)
	assert.Equal(t, models.ByTripID("T9"), id)

	id, err = leadIdentity("", "01/02/2025 10:00:00", "Asha")
	require.NoError(t, err)
	assert.Equal(t, models.IdentityByDateAndName, id.Kind)

	_, err = leadIdentity("", "01/02/2025 10:00:00", "")
	assert.Error(t, err)
	_, err = leadIdentity("", "", "")
	assert.Error(t, err)
}

func TestUpdateTools(t *testing.T) {
	fake := newFakeCRM()
	h := NewLeadHandlers(fake)
	ctx := context.Background()
	key := models.ByTripID("T1").String()

	_, _, err := h.UpdateLead(ctx, nil, UpdateLeadInput{TripID: "T1"})
	assert.Error(t, err, "empty changes")

	_, out, err := h.UpdateLead(ctx, nil, UpdateLeadInput{TripID: "T1", Changes: map[string]string{"remarks": "called"}})
	require.NoError(t, err)
	assert.True(t, out.Success)
	assert.Equal(t, map[string]string{"remarks": "called"}, fake.updates[key])

	_, _, err = h.AssignConsultant(ctx, nil, AssignConsultantInput{TripID: "T1", Consultant: " "})
	assert.Error(t, err)
	_, _, err = h.AssignConsultant(ctx, nil, AssignConsultantInput{TripID: "T1", Consultant: "Jane Doe"})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", fake.consultants[key])

	_, _, err = h.SetPriority(ctx, nil, SetPriorityInput{TripID: "T1", Priority: "soon"})
	assert.Error(t, err)
	_, _, err = h.SetPriority(ctx, nil, SetPriorityInput{TripID: "T1", Priority: "Low"})
	require.NoError(t, err)
	assert.Equal(t, "Low", fake.priorities[key])

	_, _, err = h.SetStatus(ctx, nil, SetStatusInput{TripID: "T1", Status: "Booked"})
	require.NoError(t, err)
	assert.Equal(t, "Booked", fake.statuses[key])

	_, _, err = h.SetStatus(ctx, nil, SetStatusInput{Status: "Booked"})
	assert.Error(t, err, "missing identity")
}

func TestBlackboardTools(t *testing.T) {
	fake := newFakeCRM()
	h := NewBoardHandlers(fake, "")
	ctx := context.Background()

	_, _, err := h.PostBlackboard(ctx, nil, PostBlackboardInput{Message: "  "})
	assert.Error(t, err)

	for _, msg := range []string{"one", "two", "three"} {
		_, out, err := h.PostBlackboard(ctx, nil, PostBlackboardInput{Author: "Jane", Message: msg})
		require.NoError(t, err)
		assert.Equal(t, msg, out.Post.Message)
	}

	_, out, err := h.FetchBlackboard(ctx, nil, FetchBlackboardInput{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, out.Count)
	assert.Equal(t, "two", out.Posts[0].Message)
	assert.Equal(t, "three", out.Posts[1].Message)
}

func TestNotificationTools(t *testing.T) {
	fake := newFakeCRM()
	fake.notifications = []models.Notification{
		{ID: "1", Title: "broadcast", RowNumber: 2},
		{ID: "2", Title: "for jane", RecipientEmail: "jane@example.com", RowNumber: 3},
		{ID: "3", Title: "for bob", RecipientEmail: "bob@example.com", RowNumber: 4},
		{ID: "4", Title: "read", RecipientEmail: "jane@example.com", Read: true, RowNumber: 5},
	}
	h := NewBoardHandlers(fake, "jane@example.com")
	ctx := context.Background()

	_, out, err := h.FetchNotifications(ctx, nil, FetchNotificationsInput{})
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", fake.recipient)
	assert.Equal(t, 3, out.Count)
	assert.Equal(t, 2, out.Unread)

	_, out, err = h.FetchNotifications(ctx, nil, FetchNotificationsInput{Recipient: "bob@example.com", UnreadOnly: true})
	require.NoError(t, err)
	assert.Equal(t, 2, out.Count)

	_, _, err = h.MarkNotificationRead(ctx, nil, MarkNotificationReadInput{RowNumber: 1})
	assert.Error(t, err)
	_, res, err := h.MarkNotificationRead(ctx, nil, MarkNotificationReadInput{RowNumber: 3})
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, []int{3}, fake.readRows)
}

func TestQueueTools(t *testing.T) {
	fake := newFakeCRM()
	fake.online = false
	id := models.ByTripID("T1")
	fake.pending = []models.Mutation{
		{ID: "01A", Kind: models.MutationAppend, TargetSheet: "MASTER DATA", Row: []string{"x"}, EnqueuedAt: time.Date(2025, 4, 3, 9, 0, 0, 0, time.UTC)},
		{ID: "01B", Kind: models.MutationUpdate, TargetSheet: "MASTER DATA", Identity: &id, Attempts: 2, LastError: "offline"},
	}
	h := NewQueueHandlers(fake)
	ctx := context.Background()

	_, status, err := h.QueueStatus(ctx, nil, QueueStatusInput{})
	require.NoError(t, err)
	assert.False(t, status.Online)
	assert.Equal(t, 2, status.Length)
	assert.Equal(t, "2025-04-03T09:00:00Z", status.Pending[0].EnqueuedAt)
	assert.Equal(t, "", status.Pending[0].Target)
	assert.Equal(t, id.String(), status.Pending[1].Target)
	assert.Equal(t, 2, status.Pending[1].Attempts)

	_, drained, err := h.DrainQueue(ctx, nil, DrainQueueInput{})
	require.NoError(t, err)
	assert.Equal(t, 2, drained.Succeeded)
	assert.Equal(t, 1, fake.drains)
}
