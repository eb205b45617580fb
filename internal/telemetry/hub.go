package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/device-services/dsc/internal/config"
)

// Event represents a device-services event with SSE formatting.
type Event struct {
	ID     int64                  `json:"id,omitempty"`
	Type   string                 `json:"type"`
	Data   map[string]interface{} `json:"data"`
	Stream string                 `json:"stream,omitempty"`
}

// Event types published on the hub.
const (
	EventReady         = "ready"
	EventHeartbeat     = "heartbeat"
	EventPosition      = "position"
	EventPositionError = "positionError"
	EventWatchStarted  = "watchStarted"
	EventWatchStopped  = "watchStopped"
	EventRecordChanged = "recordChanged"
	EventSyncStarted   = "syncStarted"
	EventSyncCompleted = "syncCompleted"
	EventSyncFault     = "syncFault"
)

// Stream names used by the container.
const (
	StreamGeoloc = "geoloc"
	StreamSync   = "sync"
	StreamData   = "data"
)

// Client represents an SSE client connection.
type Client struct {
	ID      string
	Writer  http.ResponseWriter
	Request *http.Request
	Context context.Context
	Cancel  context.CancelFunc
	LastID  int64
	Stream  string
	Events  chan Event
	once    sync.Once
	mu      sync.Mutex // Protect Writer access
}

// Hub manages SSE event distribution with per-stream buffering.
//
// LOCK ORDERING:
// 1. h.mu (Hub's RWMutex) - protects clients, streamIDs, buffers maps
// 2. EventBuffer.mu (per-buffer mutex) - protects individual buffer state
// 3. Client.once (sync.Once) - ensures single channel close
type Hub struct {
	mu        sync.RWMutex
	clients   map[string]*Client
	streamIDs map[string]*int64 // Monotonic event IDs per stream

	// Per-stream event ring buffers
	buffers map[string]*EventBuffer

	config config.TelemetryConfig

	heartbeatTicker *time.Ticker
	stopHeartbeat   chan struct{}

	done chan struct{}
	wg   sync.WaitGroup
}

// EventBuffer maintains a bounded buffer of events for a single stream.
type EventBuffer struct {
	mu       sync.RWMutex
	events   []Event
	capacity int
	nextID   int64
	created  time.Time
}

// NewHub creates a new event hub with the given telemetry configuration.
func NewHub(cfg config.TelemetryConfig) *Hub {
	return &Hub{
		clients:   make(map[string]*Client),
		streamIDs: make(map[string]*int64),
		buffers:   make(map[string]*EventBuffer),
		config:    cfg,
		done:      make(chan struct{}),
	}
}

// Subscribe handles an SSE client subscription with Last-Event-ID resume
// support. It blocks until the client disconnects or the hub stops. A
// "stream" query parameter restricts delivery to events of that stream.
func (h *Hub) Subscribe(ctx context.Context, w http.ResponseWriter, r *http.Request) error {
	w.Header().Set("Content-Type", "text/event-stream; charset=utf-8")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Headers", "Cache-Control")

	clientCtx, cancel := context.WithCancel(ctx)

	clientID := uuid.NewString()

	// Parse Last-Event-ID header for resume
	lastEventID := int64(0)
	if lastIDStr := r.Header.Get("Last-Event-ID"); lastIDStr != "" {
		if id, err := strconv.ParseInt(lastIDStr, 10, 64); err == nil {
			lastEventID = id
		}
	}

	stream := r.URL.Query().Get("stream")

	client := &Client{
		ID:      clientID,
		Writer:  w,
		Request: r,
		Context: clientCtx,
		Cancel:  cancel,
		LastID:  lastEventID,
		Stream:  stream,
		Events:  make(chan Event, 100),
	}

	h.mu.Lock()
	h.clients[clientID] = client
	h.mu.Unlock()

	if err := h.sendReadyEvent(client); err != nil {
		h.unregisterClient(clientID)
		return fmt.Errorf("failed to send ready event: %w", err)
	}

	// Replay buffered events if Last-Event-ID provided
	if lastEventID > 0 {
		if err := h.replayEvents(client, lastEventID); err != nil {
			h.unregisterClient(clientID)
			return fmt.Errorf("failed to replay events: %w", err)
		}
	}

	// Start heartbeat with the first client
	h.mu.Lock()
	if len(h.clients) == 1 && h.heartbeatTicker == nil {
		h.startHeartbeat()
	}
	h.mu.Unlock()

	h.handleClient(client)

	return nil
}

// Publish publishes an event to all connected clients. Events carrying a
// stream are buffered for Last-Event-ID replay.
func (h *Hub) Publish(event Event) error {
	if event.ID == 0 {
		event.ID = h.getNextEventID(event.Stream)
	}

	if event.Stream != "" {
		h.bufferEvent(event)
	}

	h.mu.RLock()
	clients := make([]*Client, 0, len(h.clients))
	for _, client := range h.clients {
		clients = append(clients, client)
	}
	h.mu.RUnlock()

	// Send to all clients without holding the lock
	for _, client := range clients {
		if client.Stream != "" && event.Stream != "" && client.Stream != event.Stream {
			continue
		}
		select {
		case <-client.Context.Done():
			continue
		case <-h.done:
			return nil
		case client.Events <- event:
		case <-time.After(100 * time.Millisecond):
			// Drop event if client is slow to prevent blocking
		}
	}

	return nil
}

// PublishStream publishes an event on a specific stream.
func (h *Hub) PublishStream(stream string, event Event) error {
	event.Stream = stream
	return h.Publish(event)
}

// sendReadyEvent sends the initial ready event to a client.
func (h *Hub) sendReadyEvent(client *Client) error {
	readyEvent := Event{
		ID:   h.getNextEventID(client.Stream),
		Type: EventReady,
		Data: map[string]interface{}{
			"stream": client.Stream,
			"ts":     time.Now().UTC().Format(time.RFC3339),
		},
	}

	return h.sendEventToClient(client, readyEvent)
}

// replayEvents replays buffered events for a client based on Last-Event-ID.
func (h *Hub) replayEvents(client *Client, lastEventID int64) error {
	h.mu.RLock()
	buffer, exists := h.buffers[client.Stream]
	h.mu.RUnlock()

	if !exists {
		return nil // No buffer for this stream
	}

	for _, event := range buffer.GetEventsAfter(lastEventID) {
		if err := h.sendEventToClient(client, event); err != nil {
			return err
		}
	}

	return nil
}

// sendEventToClient sends a single event to a client via SSE.
func (h *Hub) sendEventToClient(client *Client, event Event) error {
	client.mu.Lock()
	defer client.mu.Unlock()

	if event.ID > 0 {
		if _, err := fmt.Fprintf(client.Writer, "id: %d\n", event.ID); err != nil {
			return fmt.Errorf("failed to write event ID: %w", err)
		}
	}
	if _, err := fmt.Fprintf(client.Writer, "event: %s\n", event.Type); err != nil {
		return fmt.Errorf("failed to write event type: %w", err)
	}

	data, err := json.Marshal(event.Data)
	if err != nil {
		return fmt.Errorf("failed to marshal event data: %w", err)
	}

	if _, err := fmt.Fprintf(client.Writer, "data: %s\n\n", string(data)); err != nil {
		return fmt.Errorf("failed to write event data: %w", err)
	}

	if flusher, ok := client.Writer.(http.Flusher); ok {
		flusher.Flush()
	}

	return nil
}

// handleClient manages a client connection and event delivery.
func (h *Hub) handleClient(client *Client) {
	defer func() {
		client.once.Do(func() {
			close(client.Events)
		})
		h.unregisterClient(client.ID)
	}()

	for {
		select {
		case <-client.Context.Done():
			return
		case <-h.done:
			return
		case event, ok := <-client.Events:
			if !ok {
				return
			}
			if err := h.sendEventToClient(client, event); err != nil {
				return
			}
		}
	}
}

// unregisterClient removes a client from the hub.
func (h *Hub) unregisterClient(clientID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if client, exists := h.clients[clientID]; exists {
		client.Cancel()
		// The channel is closed by handleClient on exit to avoid racing
		// with a concurrent Publish.
		delete(h.clients, clientID)

		// Stop heartbeat once no clients remain
		if len(h.clients) == 0 && h.heartbeatTicker != nil {
			h.heartbeatTicker.Stop()
			h.heartbeatTicker = nil
			if h.stopHeartbeat != nil {
				close(h.stopHeartbeat)
				h.stopHeartbeat = nil
			}
		}
	}
}

// getNextEventID returns the next monotonic event ID for a stream.
func (h *Hub) getNextEventID(stream string) int64 {
	if stream == "" {
		stream = "global"
	}

	h.mu.RLock()
	counter, exists := h.streamIDs[stream]
	h.mu.RUnlock()

	if exists {
		return atomic.AddInt64(counter, 1)
	}

	h.mu.Lock()
	// Another goroutine may have created the counter meanwhile
	counter, exists = h.streamIDs[stream]
	if !exists {
		var initial int64
		counter = &initial
		h.streamIDs[stream] = counter
	}
	h.mu.Unlock()

	return atomic.AddInt64(counter, 1)
}

// bufferEvent adds an event to the per-stream buffer. Buffers are never
// removed from h.buffers, so a reference stays valid after h.mu is released.
func (h *Hub) bufferEvent(event Event) {
	if event.Stream == "" {
		return
	}

	h.mu.Lock()
	buffer, exists := h.buffers[event.Stream]
	if !exists {
		buffer = NewEventBuffer(h.config.EventBufferSize)
		h.buffers[event.Stream] = buffer
	}
	h.mu.Unlock()

	buffer.AddEvent(event)
}

// startHeartbeat starts the heartbeat ticker.
// Caller must hold h.mu and have verified h.heartbeatTicker == nil.
func (h *Hub) startHeartbeat() {
	interval := h.config.HeartbeatInterval
	jitter := h.config.HeartbeatJitter

	// Add jitter to prevent thundering herd
	actualInterval := interval + time.Duration(float64(jitter)*0.5)

	h.heartbeatTicker = time.NewTicker(actualInterval)
	h.stopHeartbeat = make(chan struct{})

	ticker := h.heartbeatTicker
	stopChan := h.stopHeartbeat

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()

		for {
			select {
			case <-ticker.C:
				h.sendHeartbeat()
			case <-stopChan:
				return
			case <-h.done:
				return
			}
		}
	}()
}

// sendHeartbeat sends a heartbeat event to all clients.
func (h *Hub) sendHeartbeat() {
	_ = h.Publish(Event{
		Type: EventHeartbeat,
		Data: map[string]interface{}{
			"ts": time.Now().UTC().Format(time.RFC3339),
		},
	})
}

// Stop stops the event hub and cleans up resources.
func (h *Hub) Stop() {
	close(h.done)

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
	}
	if h.heartbeatTicker != nil {
		h.heartbeatTicker.Stop()
		h.heartbeatTicker = nil
	}
	if h.stopHeartbeat != nil {
		close(h.stopHeartbeat)
		h.stopHeartbeat = nil
	}
	h.mu.Unlock()

	// Wait for goroutines with a timeout; a slow client writer must not
	// hold up shutdown forever.
	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
	}

	h.mu.Lock()
	for _, client := range h.clients {
		client.Cancel()
		client.once.Do(func() {
			close(client.Events)
		})
	}
	h.clients = make(map[string]*Client)
	h.mu.Unlock()
}

// NewEventBuffer creates a new event buffer with the specified capacity.
func NewEventBuffer(capacity int) *EventBuffer {
	return &EventBuffer{
		events:   make([]Event, 0, capacity),
		capacity: capacity,
		nextID:   1,
		created:  time.Now(),
	}
}

// AddEvent adds an event to the buffer, evicting the oldest at capacity.
func (b *EventBuffer) AddEvent(event Event) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if event.ID == 0 {
		event.ID = b.nextID
		b.nextID++
	}

	b.events = append(b.events, event)

	if len(b.events) > b.capacity {
		b.events = b.events[1:]
	}
}

// GetEventsAfter returns events with IDs greater than lastID.
func (b *EventBuffer) GetEventsAfter(lastID int64) []Event {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var result []Event
	for _, event := range b.events {
		if event.ID > lastID {
			result = append(result, event)
		}
	}

	return result
}

// GetCapacity returns the buffer capacity.
func (b *EventBuffer) GetCapacity() int {
	return b.capacity
}

// GetSize returns the current buffer size.
func (b *EventBuffer) GetSize() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.events)
}
