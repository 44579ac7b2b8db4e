// Package sse implements a Server-Sent Events broker that streams import
// progress to operators.
package sse

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"
	"time"
)

// Event represents an SSE event to broadcast.
type Event struct {
	Type string      `json:"type"`
	Data interface{} `json:"data"`
}

// ImportEvent is the payload of an import.* event.
type ImportEvent struct {
	File   string `json:"file"`
	Pages  int    `json:"pages,omitempty"`
	Blocks int    `json:"blocks,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// SessionStats tallies the import outcomes seen since the broker started.
type SessionStats struct {
	Imported int `json:"imported"`
	Skipped  int `json:"skipped"`
	Removed  int `json:"removed"`
}

func (s *SessionStats) count(kind string) bool {
	switch kind {
	case "imported":
		s.Imported++
	case "skipped":
		s.Skipped++
	case "removed":
		s.Removed++
	default:
		return false
	}
	return true
}

type importEventReq struct {
	kind string
	ev   ImportEvent
}

// Broker manages SSE client connections and broadcasts events.
//
// A single event loop owns the clients, the session tallies and the throttle
// state. Public methods reach it through channels.
type Broker struct {
	sessionMin time.Duration

	subscribeCh   chan chan []byte
	unsubscribeCh chan chan []byte
	publishCh     chan Event
	importEventCh chan importEventReq
	countReqCh    chan chan int

	stopCh  chan struct{}
	stopped chan struct{}
	closed  atomic.Bool
}

// NewBroker creates a new SSE broker. session.updated events carry the
// session tallies and tell clients to refetch schemas and the ignored log.
// They are sent at most once per sessionThrottle; an update suppressed by the
// throttle is sent when the window closes, so the last tallies always arrive.
// A new subscriber first receives a session.snapshot event.
func NewBroker(sessionThrottle time.Duration) *Broker {
	if sessionThrottle <= 0 {
		sessionThrottle = 2 * time.Second
	}

	b := &Broker{
		sessionMin:    sessionThrottle,
		subscribeCh:   make(chan chan []byte),
		unsubscribeCh: make(chan chan []byte),
		publishCh:     make(chan Event, 256),
		importEventCh: make(chan importEventReq, 256),
		countReqCh:    make(chan chan int),
		stopCh:        make(chan struct{}),
		stopped:       make(chan struct{}),
	}

	go b.run()
	return b
}

func (b *Broker) run() {
	defer close(b.stopped)

	clients := make(map[chan []byte]struct{})
	var (
		stats       SessionStats
		lastSession time.Time
		timer       *time.Timer
		pending     <-chan time.Time
	)

	encode := func(event Event) []byte {
		payload, err := json.Marshal(event.Data)
		if err != nil {
			return nil
		}
		return []byte(fmt.Sprintf("event: %s\ndata: %s\n\n", event.Type, payload))
	}

	send := func(ch chan []byte, raw []byte) {
		select {
		case ch <- raw:
		default:
			// Client buffer full; skip to avoid blocking broker loop.
		}
	}

	broadcast := func(event Event) {
		raw := encode(event)
		if raw == nil {
			return
		}
		for ch := range clients {
			send(ch, raw)
		}
	}

	sessionUpdated := func() {
		lastSession = time.Now()
		broadcast(Event{Type: "session.updated", Data: stats})
	}

	for {
		select {
		case <-b.stopCh:
			if timer != nil {
				timer.Stop()
			}
			for ch := range clients {
				close(ch)
			}
			return

		case ch := <-b.subscribeCh:
			clients[ch] = struct{}{}
			if raw := encode(Event{Type: "session.snapshot", Data: stats}); raw != nil {
				send(ch, raw)
			}

		case ch := <-b.unsubscribeCh:
			if _, ok := clients[ch]; ok {
				delete(clients, ch)
				close(ch)
			}

		case event := <-b.publishCh:
			broadcast(event)

		case req := <-b.importEventCh:
			if !stats.count(req.kind) {
				continue
			}
			broadcast(Event{Type: "import." + req.kind, Data: req.ev})

			since := time.Since(lastSession)
			switch {
			case since >= b.sessionMin:
				sessionUpdated()
			case pending == nil:
				timer = time.NewTimer(b.sessionMin - since)
				pending = timer.C
			}

		case <-pending:
			pending = nil
			sessionUpdated()

		case resp := <-b.countReqCh:
			resp <- len(clients)
		}
	}
}

// Close gracefully stops broker loop and closes all client channels.
func (b *Broker) Close() {
	if b.closed.CompareAndSwap(false, true) {
		close(b.stopCh)
	}
	<-b.stopped
}

// Subscribe adds a new client and returns its channel.
func (b *Broker) Subscribe() chan []byte {
	ch := make(chan []byte, 64)
	if b.closed.Load() {
		close(ch)
		return ch
	}

	select {
	case b.subscribeCh <- ch:
	case <-b.stopped:
		close(ch)
	}

	return ch
}

// Unsubscribe removes a client and closes its channel.
func (b *Broker) Unsubscribe(ch chan []byte) {
	if b.closed.Load() {
		return
	}
	select {
	case b.unsubscribeCh <- ch:
	case <-b.stopped:
	}
}

// ClientCount returns the number of connected clients.
func (b *Broker) ClientCount() int {
	if b.closed.Load() {
		return 0
	}

	resp := make(chan int, 1)
	select {
	case b.countReqCh <- resp:
	case <-b.stopped:
		return 0
	}

	select {
	case n := <-resp:
		return n
	case <-b.stopped:
		return 0
	}
}

// Publish sends an event to all connected clients.
func (b *Broker) Publish(event Event) {
	if b.closed.Load() {
		return
	}
	select {
	case b.publishCh <- event:
	case <-b.stopped:
	}
}

// PublishImportEvent publishes an import outcome and counts it in the session
// tallies. kind is "imported", "skipped" or "removed"; other kinds are
// dropped.
func (b *Broker) PublishImportEvent(kind string, ev ImportEvent) {
	if b.closed.Load() {
		return
	}
	select {
	case b.importEventCh <- importEventReq{kind: kind, ev: ev}:
	case <-b.stopped:
	}
}

// ServeHTTP is the SSE endpoint handler (GET /api/events).
func (b *Broker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ch := b.Subscribe()
	defer b.Unsubscribe(ch)

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, ok := <-ch:
			if !ok {
				return
			}
			_, _ = w.Write(msg)
			flusher.Flush()
		}
	}
}
