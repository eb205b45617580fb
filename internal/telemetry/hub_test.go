package telemetry

import (
	"bufio"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/device-services/dsc/internal/config"
)

func testTelemetryConfig() config.TelemetryConfig {
	return config.TelemetryConfig{
		EventBufferSize:   10,
		HeartbeatInterval: time.Minute,
		HeartbeatJitter:   time.Second,
	}
}

// sseEvent is a decoded server-sent event used by the test reader.
type sseEvent struct {
	ID   string
	Type string
	Data string
}

// readEvent reads the next complete SSE event from the stream.
func readEvent(t *testing.T, reader *bufio.Reader) sseEvent {
	t.Helper()

	var ev sseEvent
	for {
		line, err := reader.ReadString('\n')
		require.NoError(t, err)
		line = strings.TrimRight(line, "\n")

		switch {
		case line == "":
			if ev.Type != "" || ev.Data != "" {
				return ev
			}
		case strings.HasPrefix(line, "id: "):
			ev.ID = strings.TrimPrefix(line, "id: ")
		case strings.HasPrefix(line, "event: "):
			ev.Type = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			ev.Data = strings.TrimPrefix(line, "data: ")
		}
	}
}

func newHubServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()

	hub := NewHub(testTelemetryConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Subscribe(r.Context(), w, r)
	}))

	t.Cleanup(func() {
		srv.Close()
		hub.Stop()
	})

	return hub, srv
}

func TestSubscribeSendsReadyEvent(t *testing.T) {
	_, srv := newHubServer(t)

	resp, err := http.Get(srv.URL + "?stream=geoloc")
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, "text/event-stream; charset=utf-8", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	ev := readEvent(t, reader)
	assert.Equal(t, EventReady, ev.Type)
	assert.Contains(t, ev.Data, `"stream":"geoloc"`)
}

func TestPublishDeliversToSubscriber(t *testing.T) {
	hub, srv := newHubServer(t)

	resp, err := http.Get(srv.URL + "?stream=geoloc")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader) // ready

	require.NoError(t, hub.PublishStream(StreamGeoloc, Event{
		Type: EventPosition,
		Data: map[string]interface{}{"latitude": 52.52, "longitude": 13.405},
	}))

	ev := readEvent(t, reader)
	assert.Equal(t, EventPosition, ev.Type)
	assert.Contains(t, ev.Data, `"latitude":52.52`)
	assert.NotEmpty(t, ev.ID)
}

func TestStreamFilteringSkipsOtherStreams(t *testing.T) {
	hub, srv := newHubServer(t)

	resp, err := http.Get(srv.URL + "?stream=geoloc")
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader) // ready

	// A sync event must not reach a geoloc subscriber; the next event the
	// client sees is the geoloc one published afterwards.
	require.NoError(t, hub.PublishStream(StreamSync, Event{
		Type: EventSyncStarted,
		Data: map[string]interface{}{"source": "contacts"},
	}))
	require.NoError(t, hub.PublishStream(StreamGeoloc, Event{
		Type: EventWatchStarted,
		Data: map[string]interface{}{"watchId": "w1"},
	}))

	ev := readEvent(t, reader)
	assert.Equal(t, EventWatchStarted, ev.Type)
}

func TestLastEventIDReplay(t *testing.T) {
	hub, srv := newHubServer(t)

	for i := 0; i < 3; i++ {
		require.NoError(t, hub.PublishStream(StreamGeoloc, Event{
			Type: EventPosition,
			Data: map[string]interface{}{"seq": i},
		}))
	}

	req, err := http.NewRequest(http.MethodGet, srv.URL+"?stream=geoloc", nil)
	require.NoError(t, err)
	req.Header.Set("Last-Event-ID", "1")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader) // ready

	first := readEvent(t, reader)
	second := readEvent(t, reader)
	assert.Equal(t, "2", first.ID)
	assert.Equal(t, "3", second.ID)
	assert.Contains(t, first.Data, `"seq":1`)
	assert.Contains(t, second.Data, `"seq":2`)
}

func TestEventBufferEviction(t *testing.T) {
	buf := NewEventBuffer(3)

	for i := 0; i < 5; i++ {
		buf.AddEvent(Event{Type: EventPosition, Data: map[string]interface{}{"seq": i}})
	}

	assert.Equal(t, 3, buf.GetSize())
	assert.Equal(t, 3, buf.GetCapacity())

	events := buf.GetEventsAfter(0)
	require.Len(t, events, 3)
	assert.Equal(t, int64(3), events[0].ID)
	assert.Equal(t, int64(5), events[2].ID)
}

func TestEventBufferGetEventsAfter(t *testing.T) {
	buf := NewEventBuffer(10)

	for i := 0; i < 4; i++ {
		buf.AddEvent(Event{Type: EventRecordChanged})
	}

	assert.Len(t, buf.GetEventsAfter(2), 2)
	assert.Empty(t, buf.GetEventsAfter(4))
}

func TestEventIDsMonotonicPerStream(t *testing.T) {
	hub := NewHub(testTelemetryConfig())
	defer hub.Stop()

	require.NoError(t, hub.PublishStream(StreamGeoloc, Event{Type: EventPosition, Data: map[string]interface{}{}}))
	require.NoError(t, hub.PublishStream(StreamGeoloc, Event{Type: EventPosition, Data: map[string]interface{}{}}))
	require.NoError(t, hub.PublishStream(StreamSync, Event{Type: EventSyncStarted, Data: map[string]interface{}{}}))

	geoloc := hub.buffers[StreamGeoloc].GetEventsAfter(0)
	syncEvents := hub.buffers[StreamSync].GetEventsAfter(0)

	require.Len(t, geoloc, 2)
	assert.Equal(t, int64(1), geoloc[0].ID)
	assert.Equal(t, int64(2), geoloc[1].ID)
	require.Len(t, syncEvents, 1)
	assert.Equal(t, int64(1), syncEvents[0].ID)
}

func TestStopTerminatesSubscribers(t *testing.T) {
	hub := NewHub(testTelemetryConfig())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = hub.Subscribe(r.Context(), w, r)
	}))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	reader := bufio.NewReader(resp.Body)
	readEvent(t, reader) // ready

	hub.Stop()

	// The server closes the stream; reads eventually fail.
	deadline := time.After(5 * time.Second)
	done := make(chan struct{})
	go func() {
		for {
			if _, err := reader.ReadString('\n'); err != nil {
				close(done)
				return
			}
		}
	}()

	select {
	case <-done:
	case <-deadline:
		t.Fatal("subscriber stream not closed after Stop")
	}
}
