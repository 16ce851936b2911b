// ABOUTME: End-to-end test through the real transport against the Sheets twin
// ABOUTME: Offline append is queued, replayed on reconnect, then visible to a forced fetch
package crm

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/pem"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harperreed/leadsheet/auth"
	"github.com/harperreed/leadsheet/cache"
	"github.com/harperreed/leadsheet/connectivity"
	"github.com/harperreed/leadsheet/creds"
	"github.com/harperreed/leadsheet/db"
	"github.com/harperreed/leadsheet/models"
	"github.com/harperreed/leadsheet/notify"
	"github.com/harperreed/leadsheet/queue"
	"github.com/harperreed/leadsheet/rowmap"
	"github.com/harperreed/leadsheet/transport"
	"github.com/harperreed/leadsheet/twin"
)

type staticKeys struct{ key *creds.ServiceAccountKey }

func (s staticKeys) ServiceAccountKey() (*creds.ServiceAccountKey, bool) {
	return s.key, s.key != nil
}

type e2e struct {
	twin    *twin.Twin
	svc     *Service
	monitor *connectivity.Monitor
	kv      *db.KVStore
}

func newE2E(t *testing.T) *e2e {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	require.NoError(t, err)

	tw := twin.New(twin.Options{SpreadsheetID: "e2e", APIKey: "read-key", PublicKey: &priv.PublicKey})
	srv := httptest.NewServer(tw.Router())
	t.Cleanup(srv.Close)

	tw.Seed(rowmap.SheetLeads, [][]string{{"Date", "Trip ID", "Name"}})
	tw.Seed(rowmap.SheetUsers, [][]string{
		{"", "", "Name", "Email", "Role"},
		{"", "", "Admin One", "admin@example.com", "Admin"},
		{"", "", "Jane Doe", "jane@example.com", "Consultant"},
	})
	tw.Seed(rowmap.SheetNotifications, [][]string{{"id", "title", "message", "category", "createdAt", "read", "recipient"}})
	tw.Seed(rowmap.SheetBlackboard, [][]string{{"postedAt", "author", "message"}})

	key := &creds.ServiceAccountKey{
		ClientEmail:   "bot@project.iam.gserviceaccount.com",
		PrivateKeyPEM: string(pem.EncodeToMemory(&pem.Block{Type: "PRIVATE KEY", Bytes: der})),
		PrivateKeyID:  "kid",
		TokenURI:      srv.URL + "/token",
	}
	client := transport.New(transport.Options{
		Endpoint:      srv.URL,
		SpreadsheetID: "e2e",
		APIKey:        "read-key",
		Keys:          staticKeys{key: key},
		Minter:        auth.NewMinter(srv.Client()),
	})

	database, err := db.OpenDatabase(filepath.Join(t.TempDir(), "e2e.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	kv := db.NewKVStore(database)
	monitor := connectivity.New(connectivity.Options{Probe: connectivity.HTTPProbe(srv.Client(), srv.URL+"/v4/spreadsheets/e2e/values/Users?key=read-key")})
	svc, err := New(Options{
		Sheets:   client,
		Cache:    cache.New(cache.Options{Plain: kv}),
		Queue:    queue.New(database, nil),
		Monitor:  monitor,
		DB:       database,
		Location: time.UTC,
	})
	require.NoError(t, err)
	t.Cleanup(svc.Close)

	return &e2e{twin: tw, svc: svc, monitor: monitor, kv: kv}
}

func TestEndToEndOfflineAppend(t *testing.T) {
	e := newE2E(t)
	ctx := context.Background()

	leads, err := e.svc.FetchLeads(ctx, true)
	require.NoError(t, err)
	assert.Empty(t, leads)

	e.twin.SetOffline(true)
	assert.False(t, e.monitor.Check(ctx))

	_, err = e.svc.AppendLead(ctx, models.Lead{TravellerName: "Asha", Destination: "Goa"})
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Queued)
	n, err := e.svc.QueueLength(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	drained := make(chan struct{}, 1)
	e.monitor.Subscribe(func() { drained <- struct{}{} })
	e.svc.StartBackground(ctx)

	e.twin.SetOffline(false)
	assert.True(t, e.monitor.Check(ctx))

	require.Eventually(t, func() bool {
		n, err := e.svc.QueueLength(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)
	<-drained

	leads, err = e.svc.FetchLeads(ctx, true)
	require.NoError(t, err)
	require.Len(t, leads, 1)
	assert.Equal(t, "Asha", leads[0].TravellerName)
}

func TestEndToEndShortOutageIsReplayed(t *testing.T) {
	e := newE2E(t)
	ctx := context.Background()

	_, err := e.svc.FetchLeads(ctx, true)
	require.NoError(t, err)
	require.True(t, e.monitor.Check(ctx))
	e.svc.StartBackground(ctx)

	// The outage starts and ends between two probes.
	e.twin.SetOffline(true)
	_, err = e.svc.AppendLead(ctx, models.Lead{TravellerName: "Asha", Destination: "Goa"})
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Queued)
	assert.False(t, e.monitor.Online(), "a failed write marks the sheet unreachable")
	e.twin.SetOffline(false)

	assert.True(t, e.monitor.Check(ctx))
	require.Eventually(t, func() bool {
		n, err := e.svc.QueueLength(ctx)
		return err == nil && n == 0
	}, 5*time.Second, 20*time.Millisecond)

	require.Len(t, e.twin.Rows(rowmap.SheetLeads), 2)
}

func TestEndToEndUpdateAndNotify(t *testing.T) {
	e := newE2E(t)
	ctx := context.Background()

	_, err := e.svc.AppendLead(ctx, models.Lead{TravellerName: "Ravi", TripID: "T7", Destination: "Manali"})
	require.NoError(t, err)

	differ := notify.New(notify.Options{Source: e.svc, Store: e.kv, Location: time.UTC})
	summary, err := differ.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted, "new unassigned lead goes to the admin")

	require.NoError(t, e.svc.AssignConsultant(ctx, models.ByTripID("T7"), "Jane Doe"))
	summary, err = differ.RunCycle(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, summary.Emitted, "assignment is announced once")

	notes, err := e.svc.FetchNotifications(ctx, "jane@example.com", true)
	require.NoError(t, err)
	require.Len(t, notes, 1)
	assert.Equal(t, models.CategoryLeadAssigned, notes[0].Category)

	require.NoError(t, e.svc.MarkNotificationRead(ctx, notes[0].RowNumber))
	notes, err = e.svc.FetchNotifications(ctx, "jane@example.com", true)
	require.NoError(t, err)
	assert.Empty(t, notes)

	rows := e.twin.Rows(rowmap.SheetLeads)
	require.Len(t, rows, 2)
	assert.Equal(t, "Jane Doe", rows[1][15])
}

func TestEndToEndProtectedSheet(t *testing.T) {
	e := newE2E(t)
	e.twin.Protect(rowmap.SheetLeads, true)

	_, err := e.svc.AppendLead(context.Background(), models.Lead{TravellerName: "Asha"})
	var werr *WriteError
	require.ErrorAs(t, err, &werr)
	assert.True(t, werr.Protected())
	assert.Contains(t, werr.UserMessage(), "protected")
}
