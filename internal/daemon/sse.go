package daemon

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/google/uuid"
)

// Event names are the full §4.9.2 catalogue the /api/events stream
// emits. Every other package that wants to publish an SSE message
// imports one of these rather than writing the string literal inline.
const (
	EventConnected            = "connected"
	EventHeartbeat            = "heartbeat"
	EventGitStatus            = "gitStatus"
	EventCountdown            = "countdown"
	EventFetchStatus          = "fetchStatus"
	EventFetchCompleted       = "fetchCompleted"
	EventDataUpdated          = "dataUpdated"
	EventAggregatesUpdated    = "aggregatesUpdated"
	EventStatusesUpdated      = "statusesUpdated"
	EventTakersUpdated        = "takersUpdated"
	EventConfigurationUpdated = "configurationUpdated"
	EventRebuildStarted       = "rebuildStarted"
	EventRebuildProgress      = "rebuildProgress"
	EventRebuildCompleted     = "rebuildCompleted"
	EventRebuildFailed        = "rebuildFailed"
	EventPortChanging         = "portChanging"
)

// sseMessage is one server-sent event; Event is always one of the
// constants above.
type sseMessage struct {
	Event string
	Data  interface{}
}

type subscriber struct {
	id string
	ch chan sseMessage
}

// broadcaster fans out sseMessages to every connected SSE client. It
// replaces the teacher's module-level subscriber slice with an
// instance owned by *Daemon (Design Note §9).
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]*subscriber
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]*subscriber)}
}

func (b *broadcaster) subscribe() *subscriber {
	sub := &subscriber{id: uuid.NewString(), ch: make(chan sseMessage, 32)}
	b.mu.Lock()
	b.subs[sub.id] = sub
	b.mu.Unlock()
	return sub
}

func (b *broadcaster) unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if sub, ok := b.subs[id]; ok {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (b *broadcaster) publish(msg sseMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, sub := range b.subs {
		select {
		case sub.ch <- msg:
		default:
			// Slow subscriber: drop rather than block the publisher: a
			// missed intermediate event is superseded by the next full
			// dataUpdated broadcast anyway.
		}
	}
}

func (b *broadcaster) count() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

func (b *broadcaster) closeAll() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for id, sub := range b.subs {
		close(sub.ch)
		delete(b.subs, id)
	}
}

func (d *Daemon) handleEvents(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	sub := d.broadcaster.subscribe()
	defer d.broadcaster.unsubscribe(sub.id)
	if d.metrics != nil {
		d.metrics.SSESubscribers.Inc()
		defer d.metrics.SSESubscribers.Dec()
	}
	d.touch()

	connectedData, _ := json.Marshal(map[string]int{"port": d.Port()})
	fmt.Fprintf(w, "event: %s\ndata: %s\n\n", EventConnected, connectedData)
	flusher.Flush()

	ctx := r.Context()
	for {
		select {
		case <-ctx.Done():
			return
		case msg, open := <-sub.ch:
			if !open {
				return
			}
			data, err := json.Marshal(msg.Data)
			if err != nil {
				continue
			}
			fmt.Fprintf(w, "event: %s\ndata: %s\n\n", msg.Event, data)
			flusher.Flush()
		}
	}
}
