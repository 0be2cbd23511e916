// Package scheduler drives background sync: it watches connectivity and
// fires a retry pass on every offline-to-online transition, and polls sync
// state for status observers.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/logging"
	enginesync "github.com/cinthia199589/aquagold-resistencias-app-sub000/internal/sync"
)

const (
	// DefaultProbeInterval is how often connectivity is checked.
	DefaultProbeInterval = 15 * time.Second

	// DefaultStatusInterval is how often sync state is pushed to observers.
	DefaultStatusInterval = 5 * time.Second
)

// Engine is the part of the sync engine the scheduler drives.
type Engine interface {
	ResumeSync(ctx context.Context) (enginesync.ResumeResult, error)
	ReconcileDetached()
	Status() enginesync.Status
}

// Prober reports whether the remote side is currently reachable.
type Prober interface {
	Online(ctx context.Context) bool
}

// ProbeFunc adapts a function to the Prober interface.
type ProbeFunc func(ctx context.Context) bool

// Online implements Prober.
func (f ProbeFunc) Online(ctx context.Context) bool { return f(ctx) }

// StatusObserver receives periodic sync-state snapshots, typically to feed
// a UI badge.
type StatusObserver interface {
	SyncStatus(status enginesync.Status)
}

// Config holds scheduler configuration.
type Config struct {
	ProbeInterval  time.Duration
	StatusInterval time.Duration
}

// Scheduler runs the connectivity watch loop and the status poll loop.
type Scheduler struct {
	engine   Engine
	prober   Prober
	observer StatusObserver // may be nil
	config   Config

	mu      sync.Mutex
	online  bool
	running bool
	trigger chan struct{}
	stopCh  chan struct{}
	wg      sync.WaitGroup
}

// New creates a Scheduler. observer may be nil when nothing consumes status
// updates.
func New(engine Engine, prober Prober, observer StatusObserver, cfg Config) *Scheduler {
	if cfg.ProbeInterval <= 0 {
		cfg.ProbeInterval = DefaultProbeInterval
	}
	if cfg.StatusInterval <= 0 {
		cfg.StatusInterval = DefaultStatusInterval
	}
	return &Scheduler{
		engine:   engine,
		prober:   prober,
		observer: observer,
		config:   cfg,
		trigger:  make(chan struct{}, 1),
	}
}

// Start launches the background loops. Calling Start on a running scheduler
// is a no-op.
func (s *Scheduler) Start() {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.stopCh = make(chan struct{})
	s.mu.Unlock()

	s.wg.Add(2)
	go s.connectivityLoop()
	go s.statusLoop()

	logging.Info("sync scheduler started", logging.Fields{
		"probe_interval":  s.config.ProbeInterval.String(),
		"status_interval": s.config.StatusInterval.String(),
	})
}

// Stop halts the background loops and waits for them to exit.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopCh)
	s.mu.Unlock()

	s.wg.Wait()
	logging.Info("sync scheduler stopped")
}

// TriggerRetry requests an immediate retry pass, coalescing with any
// request already queued.
func (s *Scheduler) TriggerRetry() {
	select {
	case s.trigger <- struct{}{}:
	default:
	}
}

// Online reports the last observed connectivity state.
func (s *Scheduler) Online() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.online
}

// connectivityLoop probes the remote side on an interval. An
// offline-to-online transition fires a retry pass; so does TriggerRetry.
func (s *Scheduler) connectivityLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.config.ProbeInterval)
	defer ticker.Stop()

	// initial probe so the first transition is detected promptly
	s.probe()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.probe()
		case <-s.trigger:
			s.resume()
		}
	}
}

func (s *Scheduler) probe() {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.ProbeInterval)
	defer cancel()

	online := s.prober.Online(ctx)

	s.mu.Lock()
	wasOnline := s.online
	s.online = online
	s.mu.Unlock()

	if online && !wasOnline {
		logging.Info("connectivity restored, resuming sync")
		s.resume()
		s.engine.ReconcileDetached()
	} else if !online && wasOnline {
		logging.Warn("connectivity lost, writes will queue locally")
	}
}

func (s *Scheduler) resume() {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	result, err := s.engine.ResumeSync(ctx)
	if err != nil {
		logging.Error("resume sync pass failed", err)
		return
	}

	if result.RecordsSynced > 0 || result.Drain.Succeeded > 0 ||
		result.Drain.Retained > 0 || result.Drain.Discarded > 0 {
		logging.Info("resume sync pass completed", logging.Fields{
			"records_synced": result.RecordsSynced,
			"ops_succeeded":  result.Drain.Succeeded,
			"ops_retained":   result.Drain.Retained,
			"ops_discarded":  result.Drain.Discarded,
		})
	}
}

// statusLoop pushes sync-state snapshots to the observer on an interval.
func (s *Scheduler) statusLoop() {
	defer s.wg.Done()

	if s.observer == nil {
		return
	}

	ticker := time.NewTicker(s.config.StatusInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.observer.SyncStatus(s.engine.Status())
		}
	}
}
