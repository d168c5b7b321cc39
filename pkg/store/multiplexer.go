package store

import (
	"sync"

	log "github.com/sirupsen/logrus"
)

// Payload is the marshalled flag state pushed to subscribers after a
// snapshot swap.
type Payload struct {
	Version uint64
	Flags   string
}

// Multiplexer abstracts subscription handling for snapshot changes.
// Subscribers that cannot keep up are skipped, never blocked on: a
// stalled dashboard stream must not delay a configuration swap.
type Multiplexer struct {
	mu   sync.RWMutex
	subs map[any]subscription
}

type subscription struct {
	id      any
	channel chan Payload
}

// NewMux creates a new snapshot-change multiplexer.
func NewMux() *Multiplexer {
	return &Multiplexer{
		subs: map[any]subscription{},
	}
}

// Register a subscription under id. The returned channel is buffered;
// payloads published while the buffer is full are dropped for that
// subscriber.
func (m *Multiplexer) Register(id any) <-chan Payload {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub := subscription{id: id, channel: make(chan Payload, 1)}
	m.subs[id] = sub
	return sub.channel
}

// Unregister a subscription.
func (m *Multiplexer) Unregister(id any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.subs, id)
}

// Publish pushes a payload to all subscriptions.
func (m *Multiplexer) Publish(p Payload) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, sub := range m.subs {
		select {
		case sub.channel <- p:
		default:
			log.Debugf("subscriber %v lagging, dropping snapshot v%d notification", sub.id, p.Version)
		}
	}
}
