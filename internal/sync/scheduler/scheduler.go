// Package scheduler drives the sync engine from its three triggers: the
// offline-to-online transition, a periodic tick while online, and the
// user's manual "sync now" action. It also refreshes the pending-count
// badge for the driver UI.
package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fleetmove/fieldsync/internal/connectivity"
	"github.com/fleetmove/fieldsync/internal/logging"
	"github.com/fleetmove/fieldsync/internal/queue"
	syncpkg "github.com/fleetmove/fieldsync/internal/sync"
)

// Config holds scheduler intervals.
type Config struct {
	SyncInterval  time.Duration // periodic sync while online (default: 15 minutes)
	BadgeInterval time.Duration // pending-count refresh for UI badges (default: 5 seconds)
}

// DefaultConfig returns the default scheduler configuration.
func DefaultConfig() *Config {
	return &Config{
		SyncInterval:  15 * time.Minute,
		BadgeInterval: 5 * time.Second,
	}
}

// Scheduler owns the background goroutines around the sync engine. It is
// constructed explicitly and injected where needed; Start and Stop bound
// its lifecycle.
type Scheduler struct {
	engine   *syncpkg.Engine
	store    *queue.Store
	monitor  *connectivity.Monitor
	onCounts func(queue.Counts)
	onPass   func(*syncpkg.PassResult)

	syncInterval  time.Duration
	badgeInterval time.Duration

	triggerCh chan struct{}
	stopCh    chan struct{}
	wg        sync.WaitGroup
	mu        sync.Mutex
	isRunning bool
	log       *logrus.Entry
}

// NewScheduler creates a Scheduler. onCounts receives fresh pending counts
// on every badge tick and onPass every finished pass summary; both may be
// nil.
func NewScheduler(engine *syncpkg.Engine, store *queue.Store, monitor *connectivity.Monitor, cfg *Config, onCounts func(queue.Counts), onPass func(*syncpkg.PassResult)) *Scheduler {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Scheduler{
		engine:        engine,
		store:         store,
		monitor:       monitor,
		onCounts:      onCounts,
		onPass:        onPass,
		syncInterval:  cfg.SyncInterval,
		badgeInterval: cfg.BadgeInterval,
		triggerCh:     make(chan struct{}, 1),
		log:           logging.WithComponent("scheduler"),
	}
}

// Start launches the background loops. Calling Start twice is a no-op. A
// stopped scheduler can be started again.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	// A fresh channel per run so the loops of a restart are not killed
	// by the previous Stop.
	s.stopCh = make(chan struct{})
	stop := s.stopCh
	s.mu.Unlock()

	s.wg.Add(2)
	go s.syncLoop(ctx, stop)
	go s.badgeLoop(ctx, stop)

	s.log.Info("sync scheduler started")
}

// Stop shuts the loops down and waits for them. Calling Stop twice is a
// no-op.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = false
	stop := s.stopCh
	s.mu.Unlock()

	close(stop)
	s.wg.Wait()
	s.log.Info("sync scheduler stopped")
}

// TriggerSync requests a pass now (the manual "sync now" action). If a
// pass is already running the engine ignores the extra request.
func (s *Scheduler) TriggerSync() {
	select {
	case s.triggerCh <- struct{}{}:
	default:
		// A trigger is already queued.
	}
}

// syncLoop runs passes off the three triggers. Passes execute on this
// goroutine, so triggers arriving mid-pass coalesce into at most one
// queued request.
func (s *Scheduler) syncLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	unsub, transitions := s.monitor.Subscribe()
	defer unsub()

	ticker := time.NewTicker(s.syncInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case t, ok := <-transitions:
			if !ok {
				return
			}
			if t.Online {
				s.log.Info("online transition, starting sync pass")
				s.runPass(ctx)
			}
		case <-s.triggerCh:
			s.runPass(ctx)
		case <-ticker.C:
			if s.monitor.IsOnline() {
				s.runPass(ctx)
			}
		}
	}
}

// runPass executes a pass and reports the result. The engine returns nil
// when another pass is already in flight; that is not reported.
func (s *Scheduler) runPass(ctx context.Context) {
	result := s.engine.SyncAll(ctx)
	if result != nil && s.onPass != nil {
		s.onPass(result)
	}
}

// badgeLoop periodically refreshes pending counts. The UI also polls over
// HTTP; this push keeps websocket clients current between polls.
func (s *Scheduler) badgeLoop(ctx context.Context, stop <-chan struct{}) {
	defer s.wg.Done()

	ticker := time.NewTicker(s.badgeInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			counts, err := s.store.Counts()
			if err != nil {
				s.log.WithError(err).Warn("failed to refresh pending counts")
				continue
			}
			if s.onCounts != nil {
				s.onCounts(counts)
			}
		}
	}
}
