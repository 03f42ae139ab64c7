package sync

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/agroplanner/opscenter-sync/internal/logger"
	"github.com/agroplanner/opscenter-sync/internal/models"
	"github.com/agroplanner/opscenter-sync/internal/store"
)

// Status is a point-in-time snapshot of the scheduler's state
type Status struct {
	Running       bool            `json:"running"`
	Interval      time.Duration   `json:"-"`
	IntervalSecs  float64         `json:"interval_seconds"`
	TicksExecuted uint64          `json:"ticks_executed"`
	TicksSkipped  uint64          `json:"ticks_skipped"`
	LastRun       *models.SyncRun `json:"last_run,omitempty"`
}

// Scheduler drives periodic sync ticks. A tick is skipped, not queued, when
// the previous tick is still running; the interval can be changed at runtime
// and takes effect at the next scheduling decision.
type Scheduler struct {
	manager Manager
	store   store.Store

	mu       sync.Mutex
	interval time.Duration
	lastRun  *models.SyncRun

	tickRunning atomic.Bool
	running     atomic.Bool
	executed    atomic.Uint64
	skipped     atomic.Uint64

	cancelFunc context.CancelFunc
	done       chan struct{}
	tickWG     sync.WaitGroup
}

// NewScheduler creates a scheduler with injected dependencies
func NewScheduler(manager Manager, st store.Store, interval time.Duration) *Scheduler {
	return &Scheduler{
		manager:  manager,
		store:    st,
		interval: interval,
	}
}

// Start begins the scheduling loop. It blocks until the context is cancelled
// or Stop is called. An initial tick runs immediately on start. A stopped
// scheduler may be started again.
func (s *Scheduler) Start(ctx context.Context) error {
	if !s.running.CompareAndSwap(false, true) {
		return fmt.Errorf("scheduler already started")
	}

	schedCtx, cancel := context.WithCancel(ctx)

	// A fresh done channel per run makes the scheduler restartable after Stop
	done := make(chan struct{})
	s.mu.Lock()
	s.cancelFunc = cancel
	s.done = done
	s.mu.Unlock()

	defer func() {
		// running is cleared before done is closed so a caller unblocked
		// from Stop can start the scheduler again right away
		s.running.Store(false)
		close(done)
		logger.Info("Sync scheduler shutting down")
	}()

	logger.Infof("Starting sync scheduler (interval %s)", s.Interval())

	ticker := time.NewTicker(s.Interval())
	defer ticker.Stop()

	// Initial sync on startup
	s.tick(schedCtx)

	for {
		select {
		case <-ticker.C:
			s.tick(schedCtx)

			// Re-read the interval so runtime reconfiguration takes effect
			// at the next scheduling decision
			ticker.Reset(s.Interval())
		case <-schedCtx.Done():
			// An in-flight tick is allowed to finish rather than being
			// aborted mid-commit
			s.tickWG.Wait()
			return nil
		}
	}
}

// Stop gracefully stops the scheduler, waiting for any in-flight tick
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel := s.cancelFunc
	done := s.done
	s.mu.Unlock()

	if cancel != nil {
		logger.Info("Stopping sync scheduler")
		cancel()
		<-done
	}
}

// SetInterval changes the polling interval. The new value takes effect at the
// next scheduling decision and never interrupts a tick in progress.
func (s *Scheduler) SetInterval(interval time.Duration) error {
	if interval <= 0 {
		return fmt.Errorf("interval must be positive, got %s", interval)
	}

	s.mu.Lock()
	s.interval = interval
	s.mu.Unlock()

	logger.Infof("Sync interval changed to %s", interval)
	return nil
}

// Interval returns the currently configured polling interval
func (s *Scheduler) Interval() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.interval
}

// LastRun returns the outcome of the most recently completed tick, or nil
// when no tick has completed yet
func (s *Scheduler) LastRun() *models.SyncRun {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastRun
}

// GetStatus returns a snapshot of the scheduler's state
func (s *Scheduler) GetStatus() Status {
	interval := s.Interval()
	return Status{
		Running:       s.running.Load(),
		Interval:      interval,
		IntervalSecs:  interval.Seconds(),
		TicksExecuted: s.executed.Load(),
		TicksSkipped:  s.skipped.Load(),
		LastRun:       s.LastRun(),
	}
}

// tick runs one sync in the background. If the previous tick is still
// running, this firing is skipped rather than queued, so slow upstream
// responses never pile up concurrent upsert storms against the store.
func (s *Scheduler) tick(ctx context.Context) {
	if !s.tickRunning.CompareAndSwap(false, true) {
		s.skipped.Add(1)
		logger.Warn("Previous sync still running, skipping this tick")
		return
	}

	// Detach from the loop's cancellation so Stop lets the tick finish
	// instead of aborting it mid-commit
	tickCtx := context.WithoutCancel(ctx)

	s.tickWG.Add(1)
	go func() {
		defer s.tickWG.Done()
		defer s.tickRunning.Store(false)

		run := s.manager.PerformSync(tickCtx)
		s.executed.Add(1)

		// Ticks never overlap, so runs are recorded in strict tick order
		if err := s.store.RecordSyncRun(tickCtx, run); err != nil {
			logger.Errorf("Failed to record sync run: %v", err)
		}

		s.mu.Lock()
		s.lastRun = run
		s.mu.Unlock()

		if run.Succeeded() {
			logger.Infow("Sync completed",
				"machines", run.MachinesSynced,
				"fields", run.FieldsSynced,
				"duration", run.CompletedAt.Sub(run.StartedAt).String())
		} else {
			logger.Errorw("Sync completed with errors",
				"machines", run.MachinesSynced,
				"fields", run.FieldsSynced,
				"machines_error", run.MachinesError,
				"fields_error", run.FieldsError)
		}
	}()
}
