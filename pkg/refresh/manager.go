// Package refresh owns the fetch-validate-swap cycle that keeps the
// flag store current. It is the only part of the engine that performs
// I/O; evaluation never waits on it.
package refresh

import (
	"context"
	"fmt"
	"os"
	gosync "sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/robfig/cron"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"

	"github.com/gigboard/flagcore/pkg/model"
	"github.com/gigboard/flagcore/pkg/store"
	"github.com/gigboard/flagcore/pkg/sync"
)

// Result is the outcome of a single refresh attempt. Version is the
// active snapshot version after the attempt: unchanged on failure, the
// new snapshot's version on success.
type Result struct {
	Success bool
	Version uint64
	Dropped []model.ValidationError
	Err     error
}

// Manager fetches definitions from the authority, validates them into a
// snapshot and swaps it into the store. A failed cycle never touches
// the active snapshot.
type Manager struct {
	store     *store.Store
	syncer    sync.ISync
	interval  time.Duration
	cachePath string

	group singleflight.Group
	bo    *backoff.ExponentialBackOff

	mu         gosync.Mutex
	retryTimer *time.Timer
	runCtx     context.Context
}

// Config carries the manager's tunables.
type Config struct {
	// Interval between scheduled refreshes.
	Interval time.Duration
	// CachePath, when set, is a file the last successfully fetched
	// payload is written to, and loaded from at startup when the
	// authority is unreachable. The cached payload goes through the
	// same validation as a live fetch.
	CachePath string
}

func NewManager(s *store.Store, syncer sync.ISync, cfg Config) *Manager {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry until the next scheduled cycle succeeds

	return &Manager{
		store:     s,
		syncer:    syncer,
		interval:  cfg.Interval,
		cachePath: cfg.CachePath,
		bo:        bo,
	}
}

// Refresh triggers one load cycle and returns its outcome. Concurrent
// callers coalesce into the in-flight attempt and all receive its
// result; the authority is never fetched twice at once.
func (m *Manager) Refresh(ctx context.Context) Result {
	v, _, _ := m.group.Do("refresh", func() (interface{}, error) {
		return m.load(ctx), nil
	})
	return v.(Result)
}

// load runs one fetch-validate-swap cycle.
func (m *Manager) load(ctx context.Context) Result {
	current := m.store.Current()

	raw, err := m.syncer.Fetch(ctx)
	if err == sync.ErrNotModified {
		log.Debugf("definitions unchanged, keeping snapshot v%d", current.Version)
		m.bo.Reset()
		return Result{Success: true, Version: current.Version}
	}
	if err != nil {
		return m.fail(ctx, current, &model.ConfigFetchError{Source: m.syncer.Source(), Err: err})
	}
	if ctx.Err() != nil {
		// cancelled mid-fetch: never swap a partial result
		m.rejectPayload()
		return m.fail(ctx, current, &model.ConfigFetchError{Source: m.syncer.Source(), Err: ctx.Err()})
	}

	defs, dropped, err := model.ParseDefinitions(raw)
	if err != nil {
		m.rejectPayload()
		return m.fail(ctx, current, &model.ConfigFetchError{Source: m.syncer.Source(), Err: err})
	}
	for _, d := range dropped {
		log.Warnf("dropping definition: %v", d)
	}

	if len(defs) == 0 && current.Len() > 0 {
		m.rejectPayload()
		err := fmt.Errorf("authority returned zero valid definitions, %d currently active", current.Len())
		return m.fail(ctx, current, &model.ConfigFetchError{Source: m.syncer.Source(), Err: err})
	}

	snapshot := store.NewSnapshot(current.Version+1, defs)
	m.store.Swap(snapshot)
	m.acceptPayload()
	m.writeCache(raw)
	m.bo.Reset()

	log.Infof("snapshot v%d active: %d definitions, %d dropped", snapshot.Version, snapshot.Len(), len(dropped))
	return Result{Success: true, Version: snapshot.Version, Dropped: dropped}
}

func (m *Manager) fail(ctx context.Context, current *store.Snapshot, err error) Result {
	log.Errorf("refresh failed, keeping snapshot v%d: %v", current.Version, err)
	m.scheduleRetry(ctx)
	return Result{Success: false, Version: current.Version, Err: err}
}

// acceptPayload confirms the last fetched payload with the syncer once
// it has been swapped in.
func (m *Manager) acceptPayload() {
	if a, ok := m.syncer.(sync.Acknowledger); ok {
		a.Accept()
	}
}

// rejectPayload tells the syncer the last fetched payload was dropped,
// so it must not be shadowed by a not-modified answer next time.
func (m *Manager) rejectPayload() {
	if a, ok := m.syncer.(sync.Acknowledger); ok {
		a.Reject()
	}
}

// scheduleRetry arms a one-shot backoff retry. A newer failure rearms
// the timer; success resets the backoff. Retries are scoped to the
// manager's lifecycle context once Start has run: a failure surfaced
// through a short-lived request context must still be retried after
// that request is gone.
func (m *Manager) scheduleRetry(ctx context.Context) {
	m.mu.Lock()
	if m.runCtx != nil {
		ctx = m.runCtx
	}
	m.mu.Unlock()
	if ctx.Err() != nil {
		return
	}
	delay := m.bo.NextBackOff()

	m.mu.Lock()
	defer m.mu.Unlock()
	if m.retryTimer != nil {
		m.retryTimer.Stop()
	}
	m.retryTimer = time.AfterFunc(delay, func() {
		if ctx.Err() != nil {
			return
		}
		log.Debugf("retrying refresh after %s", delay)
		m.Refresh(ctx)
	})
}

// Start runs the periodic schedule and the authority's change signal
// until ctx is done. It returns immediately; shutdown stops the
// schedule, the watcher and any armed retry without leaking goroutines.
func (m *Manager) Start(ctx context.Context) {
	m.mu.Lock()
	m.runCtx = ctx
	m.mu.Unlock()

	c := cron.New()
	if err := c.AddFunc(fmt.Sprintf("@every %s", m.interval), func() {
		m.Refresh(ctx)
	}); err != nil {
		log.Errorf("unable to schedule refresh every %s: %v", m.interval, err)
		return
	}
	c.Start()

	changed := make(chan struct{}, 1)
	go m.syncer.Notify(ctx, changed)

	go func() {
		defer c.Stop()
		for {
			select {
			case <-ctx.Done():
				m.mu.Lock()
				if m.retryTimer != nil {
					m.retryTimer.Stop()
				}
				m.mu.Unlock()
				return
			case <-changed:
				m.Refresh(ctx)
			}
		}
	}()
}

// InitialLoad blocks until a snapshot is active: first against the
// authority, then against the local cache when the authority is
// unreachable. It must complete before evaluations are served.
func (m *Manager) InitialLoad(ctx context.Context) error {
	result := m.Refresh(ctx)
	if result.Success {
		return nil
	}
	if m.cachePath == "" {
		return result.Err
	}

	raw, err := os.ReadFile(m.cachePath)
	if err != nil {
		return fmt.Errorf("authority unreachable and cache unusable: %w", result.Err)
	}

	defs, dropped, err := model.ParseDefinitions(raw)
	if err != nil {
		return fmt.Errorf("authority unreachable and cache unusable: %w", err)
	}
	for _, d := range dropped {
		log.Warnf("dropping cached definition: %v", d)
	}

	snapshot := store.NewSnapshot(m.store.Current().Version+1, defs)
	m.store.Swap(snapshot)
	log.Warnf("authority unreachable, serving cached snapshot v%d (%d definitions)", snapshot.Version, snapshot.Len())
	return nil
}

func (m *Manager) writeCache(raw []byte) {
	if m.cachePath == "" {
		return
	}
	if err := os.WriteFile(m.cachePath, raw, 0o600); err != nil {
		log.Errorf("unable to cache definitions to %s: %v", m.cachePath, err)
	}
}
