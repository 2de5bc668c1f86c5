// Package sse streams note store changes to HTTP clients as Server-Sent
// Events.
package sse

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

// Event types sent on the stream besides note.<kind>.
const (
	TypeGraphUpdated = "graph.updated"
	TypeVaultScanned = "vault.scanned"
)

const (
	defaultGraphEvery = 2 * time.Second
	defaultKeepAlive  = 30 * time.Second
	clientBuffer      = 64
)

// Event is one message on the stream. Data is sent as JSON.
type Event struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

// Broker fans events out to subscribed clients. A client whose buffer is
// full misses the event.
type Broker struct {
	graphEvery time.Duration
	keepAlive  time.Duration
	logger     *slog.Logger

	mu        sync.Mutex
	clients   map[chan []byte]struct{}
	lastGraph time.Time
	closed    bool
}

// Option configures a Broker.
type Option func(*Broker)

// WithKeepAlive sets how often idle streams get a ": ping" comment.
func WithKeepAlive(d time.Duration) Option {
	return func(b *Broker) {
		if d > 0 {
			b.keepAlive = d
		}
	}
}

// WithLogger sets the logger used for events that cannot be encoded.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Broker) { b.logger = logger }
}

// NewBroker returns a broker that sends graph.updated at most once per
// graphEvery.
func NewBroker(graphEvery time.Duration, opts ...Option) *Broker {
	if graphEvery <= 0 {
		graphEvery = defaultGraphEvery
	}
	b := &Broker{
		graphEvery: graphEvery,
		keepAlive:  defaultKeepAlive,
		logger:     slog.Default(),
		clients:    make(map[chan []byte]struct{}),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Subscribe registers a client. The channel is closed by Unsubscribe or
// Close; after Close it comes back already closed.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, clientBuffer)
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return ch
	}
	b.clients[ch] = struct{}{}
	return ch
}

// Unsubscribe drops a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.clients[ch]; ok {
		delete(b.clients, ch)
		close(ch)
	}
}

// ClientCount reports the number of subscribed clients.
func (b *Broker) ClientCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.clients)
}

// Close disconnects every client. Later calls do nothing.
func (b *Broker) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for ch := range b.clients {
		close(ch)
	}
	clear(b.clients)
}

// Publish sends event to every client.
func (b *Broker) Publish(event Event) {
	frame, ok := b.frame(event)
	if !ok {
		return
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(frame)
}

// PublishNoteEvent sends note.<kind> with the note id, then graph.updated
// unless one went out within the throttle window. It fits
// noteservice.EventCallback.
func (b *Broker) PublishNoteEvent(kind, id string) {
	note, ok := b.frame(Event{Type: "note." + kind, Data: map[string]string{"id": id}})
	if !ok {
		return
	}
	graph, _ := b.frame(Event{Type: TypeGraphUpdated, Data: struct{}{}})

	b.mu.Lock()
	defer b.mu.Unlock()
	b.sendLocked(note)
	if now := time.Now(); now.Sub(b.lastGraph) >= b.graphEvery {
		b.lastGraph = now
		b.sendLocked(graph)
	}
}

func (b *Broker) sendLocked(frame []byte) {
	if b.closed {
		return
	}
	for ch := range b.clients {
		select {
		case ch <- frame:
		default:
		}
	}
}

// frame renders an event in the text/event-stream wire format.
func (b *Broker) frame(event Event) ([]byte, bool) {
	data, err := json.Marshal(event.Data)
	if err != nil {
		b.logger.Warn("sse: event not encoded",
			slog.String("type", event.Type), slog.String("error", err.Error()))
		return nil, false
	}
	return fmt.Appendf(nil, "event: %s\ndata: %s\n\n", event.Type, data), true
}

// ServeHTTP streams events to one client until it disconnects or the broker
// closes.
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	h := w.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ping := time.NewTicker(b.keepAlive)
	defer ping.Stop()

	for {
		var msg []byte
		select {
		case <-r.Context().Done():
			return
		case <-ping.C:
			msg = []byte(": ping\n\n")
		case frame, open := <-ch:
			if !open {
				return
			}
			msg = frame
		}
		if _, err := w.Write(msg); err != nil {
			return
		}
		flusher.Flush()
	}
}
