// Package sse fans confirmed state changes out to Server-Sent-Events
// clients. Each subscriber has a bounded queue so a slow client never
// blocks the sampling loop; when the queue is full the oldest event is
// dropped.
package sse

import (
	"fmt"
	"io"
	"sync"

	"github.com/eapache/queue"

	"github.com/sweeney/gpio-monitor/internal/logic"
)

// DefaultQueueSize is the per-subscriber queue bound.
const DefaultQueueSize = 64

// Subscriber is one connected client.
type Subscriber struct {
	mu      sync.Mutex
	q       *queue.Queue
	max     int
	dropped int
	closed  bool
	ready   chan struct{}
}

func newSubscriber(max int) *Subscriber {
	return &Subscriber{
		q:     queue.New(),
		max:   max,
		ready: make(chan struct{}, 1),
	}
}

// push queues an event and reports whether the subscriber is still open.
func (s *Subscriber) push(e logic.Event) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	if s.q.Length() >= s.max {
		s.q.Remove()
		s.dropped++
	}
	s.q.Add(e)
	s.mu.Unlock()

	select {
	case s.ready <- struct{}{}:
	default:
	}
	return true
}

// Ready is signalled when events may be waiting.
func (s *Subscriber) Ready() <-chan struct{} {
	return s.ready
}

// Drain removes and returns every queued event, oldest first.
func (s *Subscriber) Drain() []logic.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.q.Length()
	if n == 0 {
		return nil
	}
	out := make([]logic.Event, 0, n)
	for s.q.Length() > 0 {
		out = append(out, s.q.Remove().(logic.Event))
	}
	return out
}

// Dropped returns the number of events lost to queue overflow.
func (s *Subscriber) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

// Close marks the subscriber as gone. The broker prunes it on the next
// publish.
func (s *Subscriber) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
}

// Broker distributes events to subscribers.
type Broker struct {
	mu        sync.Mutex
	subs      map[*Subscriber]struct{}
	queueSize int
}

// NewBroker creates a Broker. A queueSize <= 0 selects DefaultQueueSize.
func NewBroker(queueSize int) *Broker {
	if queueSize <= 0 {
		queueSize = DefaultQueueSize
	}
	return &Broker{
		subs:      make(map[*Subscriber]struct{}),
		queueSize: queueSize,
	}
}

// Subscribe registers a new client.
func (b *Broker) Subscribe() *Subscriber {
	s := newSubscriber(b.queueSize)
	b.mu.Lock()
	b.subs[s] = struct{}{}
	b.mu.Unlock()
	return s
}

// Unsubscribe closes and removes a client.
func (b *Broker) Unsubscribe(s *Subscriber) {
	s.Close()
	b.mu.Lock()
	delete(b.subs, s)
	b.mu.Unlock()
}

// Publish queues the event for every open subscriber and prunes closed
// ones. It never blocks on a client.
func (b *Broker) Publish(e logic.Event) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	for s := range b.subs {
		if !s.push(e) {
			delete(b.subs, s)
		}
	}
	return nil
}

// Len returns the number of registered subscribers.
func (b *Broker) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// WriteEvent writes one SSE frame.
func WriteEvent(w io.Writer, name string, data []byte) error {
	_, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", name, data)
	return err
}

// WriteComment writes an SSE comment line, used as a keep-alive.
func WriteComment(w io.Writer, text string) error {
	_, err := fmt.Fprintf(w, ": %s\n\n", text)
	return err
}
