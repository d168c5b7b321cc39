package store

import (
	"encoding/json"
	"sync/atomic"

	log "github.com/sirupsen/logrus"
)

// Store holds the active snapshot behind an atomically swappable
// reference. Readers never take a lock and never observe a mix of two
// snapshots: Current hands out whichever whole snapshot was active at
// the moment of the call.
type Store struct {
	current atomic.Pointer[Snapshot]
	mux     *Multiplexer
}

// New returns a store seeded with an empty version-0 snapshot, so
// Current is non-nil before the first refresh completes.
func New() *Store {
	s := &Store{mux: NewMux()}
	s.current.Store(NewSnapshot(0, nil))
	return s
}

// Current returns the active snapshot.
func (s *Store) Current() *Snapshot {
	return s.current.Load()
}

// Swap atomically replaces the active snapshot and publishes the change
// to subscribers. Only the refresh manager calls this.
func (s *Store) Swap(snapshot *Snapshot) {
	s.current.Store(snapshot)

	flags, err := json.Marshal(snapshot.Definitions)
	if err != nil {
		log.Errorf("unable to marshal snapshot v%d for subscribers: %v", snapshot.Version, err)
		return
	}
	s.mux.Publish(Payload{Version: snapshot.Version, Flags: string(flags)})
}

// Subscribe registers for snapshot-change payloads. See Multiplexer.
func (s *Store) Subscribe(id any) <-chan Payload {
	return s.mux.Register(id)
}

// Unsubscribe removes a subscription.
func (s *Store) Unsubscribe(id any) {
	s.mux.Unregister(id)
}
