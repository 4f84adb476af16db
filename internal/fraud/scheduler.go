package fraud

import (
	"context" // Lifecycle
	"errors"  // Sentinel errors
	"sync"    // Guarding state
	"time"    // Ticker

	"github.com/sirupsen/logrus" // Structured logging
)

// Scheduler errors
var (
	ErrScanInProgress = errors.New("fraud scan already in progress")
	ErrAlreadyStarted = errors.New("scheduler already started")
)

// Lock names under the locker's prefix
const (
	runLockKey  = "run"  // Held while a scan runs, on any instance
	slotLockKey = "slot" // Held for one interval by the instance that ran the scheduled scan
)

const runLockTTL = 30 * time.Second // Refreshed every third of it while a scan runs

// Scheduler runs the scanner periodically. It is created and owned by the
// process's composition root and only runs between Start and Stop.
type Scheduler struct {
	scanner  *Scanner
	interval time.Duration
	locker   Locker
	log      logrus.FieldLogger
	runTTL   time.Duration

	run sync.Mutex // Held for the duration of a scan

	mu     sync.Mutex
	last   *Summary
	cancel context.CancelFunc
	done   chan struct{}
}

// NewScheduler creates a scheduler. locker may be nil for a single instance.
func NewScheduler(scanner *Scanner, interval time.Duration, locker Locker, log logrus.FieldLogger) *Scheduler {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if log == nil {
		log = logrus.StandardLogger()
	}
	return &Scheduler{scanner: scanner, interval: interval, locker: locker, log: log, runTTL: runLockTTL}
}

// Start launches the periodic scan in the background
func (s *Scheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.cancel != nil {
		return ErrAlreadyStarted
	}
	ctx, cancel := context.WithCancel(ctx)
	s.cancel = cancel
	s.done = make(chan struct{})
	go s.loop(ctx, s.done)
	s.log.WithField("interval", s.interval.String()).Info("Fraud scan scheduler started")
	return nil
}

// Stop cancels the schedule and waits for an in-flight scan to return
func (s *Scheduler) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.cancel, s.done = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
	s.log.Info("Fraud scan scheduler stopped")
}

func (s *Scheduler) loop(ctx context.Context, done chan struct{}) {
	defer close(done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// tick runs the scheduled scan unless another instance already ran it in the
// current interval. The slot is kept until it expires after a successful scan
// and released after a failed one so another instance can retry.
func (s *Scheduler) tick(ctx context.Context) {
	var slot Lock
	if s.locker != nil {
		var err error
		if slot, err = s.locker.Acquire(ctx, slotLockKey, s.interval-s.interval/10); err != nil {
			s.log.WithError(err).Error("Fraud scan slot unavailable")
			return
		}
		if slot == nil {
			s.log.Debug("Fraud scan already ran this interval")
			return
		}
	}

	_, err := s.RunNow(ctx)
	if err == nil {
		return
	}
	if slot != nil {
		_ = slot.Release(context.Background())
	}
	if !errors.Is(err, ErrScanInProgress) && ctx.Err() == nil {
		s.log.WithError(err).Error("Fraud scan failed")
	}
}

// RunNow runs one scan immediately. It fails with ErrScanInProgress when a
// scan is already running here or, with a locker, on another instance.
func (s *Scheduler) RunNow(ctx context.Context) (Summary, error) {
	if !s.run.TryLock() {
		return Summary{}, ErrScanInProgress
	}
	defer s.run.Unlock()

	if s.locker != nil {
		lock, err := s.locker.Acquire(ctx, runLockKey, s.runTTL)
		if err != nil {
			return Summary{}, err
		}
		if lock == nil {
			return Summary{}, ErrScanInProgress
		}
		stop := s.keepAlive(lock)
		defer func() {
			stop()
			_ = lock.Release(context.Background())
		}()
	}

	summary, err := s.scanner.Scan(ctx)
	if err != nil {
		return summary, err
	}
	s.mu.Lock()
	s.last = &summary
	s.mu.Unlock()
	return summary, nil
}

// keepAlive refreshes lock until the returned func is called
func (s *Scheduler) keepAlive(lock Lock) func() {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		ticker := time.NewTicker(s.runTTL / 3)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if err := lock.Refresh(ctx, s.runTTL); err != nil && ctx.Err() == nil {
					s.log.WithError(err).Warn("Could not refresh fraud scan lock")
				}
			}
		}
	}()
	return func() {
		cancel()
		<-done
	}
}

// LastSummary returns the summary of the latest successful scan
func (s *Scheduler) LastSummary() (Summary, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return Summary{}, false
	}
	return *s.last, true
}
