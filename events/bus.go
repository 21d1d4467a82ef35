// Package events implements an in-process broadcaster feeding long-lived
// SSE and WebSocket consumers.
package events

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Queue depth per subscriber. When full, the oldest buffered envelope is
// dropped so slow consumers see the latest state rather than a backlog.
const subscriberBuffer = 32

// Envelope is one serialized event ready for delivery.
type Envelope struct {
	Name string
	Data []byte
}

// SSE renders the envelope in text/event-stream framing.
func (e Envelope) SSE() string {
	return fmt.Sprintf("event: %s\ndata: %s\n\n", e.Name, e.Data)
}

// Subscriber is one registered consumer. Receive from C with a timeout; never
// hold it across other bus calls.
type Subscriber struct {
	C chan Envelope
}

// Bus fans events out to all current subscribers. Publish never blocks on a
// slow consumer.
type Bus struct {
	mu   sync.Mutex
	subs map[*Subscriber]struct{}
}

func NewBus() *Bus {
	return &Bus{subs: make(map[*Subscriber]struct{})}
}

// Subscribe registers a new consumer queue. Events published before this call
// are not replayed.
func (b *Bus) Subscribe() *Subscriber {
	sub := &Subscriber{C: make(chan Envelope, subscriberBuffer)}
	b.mu.Lock()
	b.subs[sub] = struct{}{}
	b.mu.Unlock()
	return sub
}

// Unsubscribe removes the consumer. Safe to call more than once.
func (b *Bus) Unsubscribe(sub *Subscriber) {
	b.mu.Lock()
	delete(b.subs, sub)
	b.mu.Unlock()
}

// Publish serializes the payload once and delivers it to every current
// subscriber. Delivery happens outside the registry lock.
func (b *Bus) Publish(name string, payload any) {
	data, err := json.Marshal(payload)
	if err != nil {
		slog.Error("Failed to marshal event payload", "event", name, "error", err)
		return
	}
	env := Envelope{Name: name, Data: data}

	b.mu.Lock()
	subs := make([]*Subscriber, 0, len(b.subs))
	for sub := range b.subs {
		subs = append(subs, sub)
	}
	b.mu.Unlock()

	for _, sub := range subs {
		select {
		case sub.C <- env:
		default:
			// Queue full: evict the oldest entry to make room.
			select {
			case <-sub.C:
			default:
			}
			select {
			case sub.C <- env:
			default:
			}
		}
	}
}

// SubscriberCount reports the current registry size.
func (b *Bus) SubscriberCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// Ping builds the keepalive envelope sent on idle streams.
func Ping() Envelope {
	data, _ := json.Marshal(map[string]any{"at": float64(time.Now().UnixMilli()) / 1000})
	return Envelope{Name: "ping", Data: data}
}

// Connected builds the greeting envelope sent when a stream opens.
func Connected() Envelope {
	data, _ := json.Marshal(map[string]any{"ok": true, "at": float64(time.Now().UnixMilli()) / 1000})
	return Envelope{Name: "connected", Data: data}
}
