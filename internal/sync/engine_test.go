package sync

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	gmux "github.com/gorilla/mux"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/device-services/dsc/internal/config"
	"github.com/device-services/dsc/internal/record"
	"github.com/device-services/dsc/internal/telemetry"
)

type noopAudit struct{}

func (noopAudit) LogDetailedAction(ctx context.Context, action, subject string, params map[string]interface{}, err error, latency time.Duration) {
}

// fakeServer is a scriptable sync backend.
type fakeServer struct {
	mu        sync.Mutex
	pushes    []PushRequest
	pushCalls int
	pullCalls int
	idMap     map[string]string
	records   []WireRecord
	deleted   []string
	failPush  int    // fail this many pushes with 500
	pushCode  int    // non-zero: always answer pushes with this status
	onPush    func() // runs while a push is being handled
}

func (f *fakeServer) handler() http.Handler {
	router := gmux.NewRouter()
	router.HandleFunc("/sources/{source}/push", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pushCalls++

		if f.pushCode != 0 {
			http.Error(w, "rejected", f.pushCode)
			return
		}
		if f.failPush > 0 {
			f.failPush--
			http.Error(w, "transient", http.StatusInternalServerError)
			return
		}

		var req PushRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		f.pushes = append(f.pushes, req)

		if f.onPush != nil {
			f.onPush()
		}

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PushResponse{IDMap: f.idMap})
	}).Methods(http.MethodPost)
	router.HandleFunc("/sources/{source}/records", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		defer f.mu.Unlock()
		f.pullCalls++

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(PullResponse{Records: f.records, Deleted: f.deleted})
	}).Methods(http.MethodGet)
	return router
}

func newTestEngine(t *testing.T, server *fakeServer, sources ...string) (*Engine, *record.Store) {
	t.Helper()

	srv := httptest.NewServer(server.handler())
	t.Cleanup(srv.Close)

	hub := telemetry.NewHub(config.TelemetryConfig{
		EventBufferSize:   10,
		HeartbeatInterval: time.Minute,
	})
	t.Cleanup(hub.Stop)

	store := record.NewStore(sources...)
	client := NewClient(srv.URL, 5*time.Second)
	cfg := config.SyncConfig{
		BaseURL:     srv.URL,
		Sources:     sources,
		Interval:    time.Minute,
		Attempts:    3,
		HTTPTimeout: 5 * time.Second,
	}

	return NewEngine(store, client, hub, noopAudit{}, cfg, zap.NewNop()), store
}

func TestSyncSourcePushThenPull(t *testing.T) {
	server := &fakeServer{}
	engine, store := newTestEngine(t, server, "contacts")
	col := store.Source("contacts")

	// One created record, one committed-then-edited record, one tombstone.
	created := col.Create(map[string]string{"name": "Alice"})
	edited := col.Upsert("srv-1", map[string]string{"name": "Bob"})
	edited.Set("phone", "555-0100")
	doomed := col.Upsert("srv-2", map[string]string{"name": "Carol"})
	require.NoError(t, col.Delete(doomed.ID()))

	server.idMap = map[string]string{created.ID(): "srv-9"}
	server.records = []WireRecord{
		{ID: "srv-9", Fields: map[string]string{"name": "Alice"}},
		{ID: "srv-1", Fields: map[string]string{"name": "Bob", "phone": "555-0100"}},
		{ID: "srv-3", Fields: map[string]string{"name": "Dave"}},
	}

	stats, err := engine.SyncSource(context.Background(), "contacts")
	require.NoError(t, err)

	assert.Equal(t, 3, stats.Pushed)
	assert.Equal(t, 3, stats.Pulled)

	// Push request carried the right change sets.
	require.Len(t, server.pushes, 1)
	push := server.pushes[0]
	require.Len(t, push.Created, 1)
	assert.Equal(t, "Alice", push.Created[0].Fields["name"])
	require.Len(t, push.Updated, 1)
	assert.Equal(t, "srv-1", push.Updated[0].ID)
	assert.Equal(t, []string{"srv-2"}, push.Deleted)

	// Created record adopted the server ID and everything is clean.
	assert.Equal(t, "srv-9", created.ID())
	assert.Empty(t, col.Dirty())
	assert.Empty(t, col.Tombstones())

	// Pull added the new server record.
	_, ok := col.Get("srv-3")
	assert.True(t, ok)
	assert.Equal(t, 3, col.Len())
}

func TestSyncSourceNothingToPushSkipsPush(t *testing.T) {
	server := &fakeServer{
		records: []WireRecord{{ID: "srv-1", Fields: map[string]string{"name": "Alice"}}},
	}
	engine, _ := newTestEngine(t, server, "contacts")

	stats, err := engine.SyncSource(context.Background(), "contacts")
	require.NoError(t, err)

	assert.Equal(t, 0, stats.Pushed)
	assert.Equal(t, 1, stats.Pulled)
	assert.Equal(t, 0, server.pushCalls)
	assert.Equal(t, 1, server.pullCalls)
}

func TestSyncSourceRetriesTransientFailures(t *testing.T) {
	server := &fakeServer{failPush: 2}
	engine, store := newTestEngine(t, server, "contacts")
	store.Source("contacts").Create(map[string]string{"name": "Alice"})

	stats, err := engine.SyncSource(context.Background(), "contacts")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Pushed)
	assert.Equal(t, 3, server.pushCalls)
}

func TestSyncSourceKeepsEditsMadeDuringPush(t *testing.T) {
	server := &fakeServer{
		records: []WireRecord{
			{ID: "srv-1", Fields: map[string]string{"name": "Alicia"}},
			{ID: "srv-2", Fields: map[string]string{"name": "Bob", "phone": "555-0100"}},
		},
	}
	engine, store := newTestEngine(t, server, "contacts")
	col := store.Source("contacts")

	edited := col.Upsert("srv-1", map[string]string{"name": "Alice"})
	edited.Set("name", "Alicia")
	bystander := col.Upsert("srv-2", map[string]string{"name": "Bob", "phone": "555-0100"})

	// A write lands on a clean record while the push is on the wire. It was
	// not part of the uploaded snapshot, so it must stay dirty and must not
	// be clobbered by the stale server value in the pull.
	server.onPush = func() {
		bystander.Set("phone", "555-0199")
	}

	_, err := engine.SyncSource(context.Background(), "contacts")
	require.NoError(t, err)

	assert.True(t, bystander.Dirty())
	phone, _ := bystander.Get("phone")
	assert.Equal(t, "555-0199", phone)

	// The pushed record was committed; the in-flight edit waits for the
	// next run.
	assert.False(t, edited.Dirty())
	dirty := col.Dirty()
	require.Len(t, dirty, 1)
	assert.Equal(t, "srv-2", dirty[0].ID())
}

func TestSyncSourceClientErrorNotRetried(t *testing.T) {
	server := &fakeServer{pushCode: http.StatusBadRequest}
	engine, store := newTestEngine(t, server, "contacts")
	col := store.Source("contacts")
	rec := col.Create(map[string]string{"name": "Alice"})

	_, err := engine.SyncSource(context.Background(), "contacts")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "push failed")
	assert.Equal(t, 1, server.pushCalls)

	// The record stays dirty for the next run.
	assert.True(t, rec.Dirty())
}

func TestSyncSourceUnknownSource(t *testing.T) {
	engine, _ := newTestEngine(t, &fakeServer{}, "contacts")

	_, err := engine.SyncSource(context.Background(), "orders")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown sync source")
}

func TestSyncSourcePullRemovesServerDeleted(t *testing.T) {
	server := &fakeServer{deleted: []string{"srv-1"}}
	engine, store := newTestEngine(t, server, "contacts")
	col := store.Source("contacts")
	col.Upsert("srv-1", map[string]string{"name": "Alice"})

	stats, err := engine.SyncSource(context.Background(), "contacts")
	require.NoError(t, err)

	assert.Equal(t, 1, stats.Removed)
	assert.Equal(t, 0, col.Len())
}

func TestSyncAllContinuesPastFaults(t *testing.T) {
	server := &fakeServer{}
	engine, store := newTestEngine(t, server, "contacts", "orders")

	// Both sources are clean; both pulls succeed.
	store.Source("contacts")
	store.Source("orders")

	results := engine.SyncAll(context.Background())
	assert.Len(t, results, 2)
}

func TestRetryable(t *testing.T) {
	assert.True(t, Retryable(&HTTPError{StatusCode: 500}))
	assert.True(t, Retryable(&HTTPError{StatusCode: 503}))
	assert.False(t, Retryable(&HTTPError{StatusCode: 400}))
	assert.False(t, Retryable(&HTTPError{StatusCode: 404}))
	assert.True(t, Retryable(fmt.Errorf("dial tcp: connection refused")))
	assert.False(t, Retryable(fmt.Errorf("wrapped: %w", &HTTPError{StatusCode: 422})))
}
