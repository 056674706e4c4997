package scheduler

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

var (
	// ErrRunInProgress is returned when a run is requested while one is active.
	ErrRunInProgress = errors.New("run already in progress")
	// ErrLockHeld is returned when another instance holds the job lock.
	ErrLockHeld = errors.New("job lock held by another instance")
)

// Job is a unit of periodic work.
type Job interface {
	Name() string
	Run(ctx context.Context) error
}

// Config holds configuration for the scheduler.
type Config struct {
	// Interval between runs. Default: 15 minutes.
	Interval time.Duration
	// RunOnStart triggers a run as soon as the scheduler starts.
	RunOnStart bool
	// RunTimeout bounds a single run. Default: 10 minutes.
	RunTimeout time.Duration
	// LockTTL is the lease duration when a Locker is configured. It should
	// exceed RunTimeout.
	LockTTL time.Duration
}

// RunStatus describes the outcome of the last completed run.
type RunStatus struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Err       string        `json:"error,omitempty"`
}

// Scheduler runs a job on a fixed interval, never overlapping itself.
type Scheduler struct {
	config Config
	job    Job
	locker Locker
	logger zerolog.Logger

	runMu sync.Mutex // held for the duration of a run

	mu      sync.Mutex
	running bool
	stopCh  chan struct{}
	last    *RunStatus
}

// New creates a scheduler for job. locker may be nil for single-instance setups.
func New(cfg Config, job Job, locker Locker, logger *zerolog.Logger) *Scheduler {
	if cfg.Interval <= 0 {
		cfg.Interval = 15 * time.Minute
	}
	if cfg.RunTimeout <= 0 {
		cfg.RunTimeout = 10 * time.Minute
	}
	if cfg.LockTTL <= 0 {
		cfg.LockTTL = cfg.RunTimeout + time.Minute
	}

	return &Scheduler{
		config: cfg,
		job:    job,
		locker: locker,
		logger: logger.With().Str("component", "scheduler").Str("job", job.Name()).Logger(),
		stopCh: make(chan struct{}),
	}
}

// Start begins the scheduler loop and blocks until ctx is done or Stop is called.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return
	}
	s.running = true
	s.mu.Unlock()

	s.logger.Info().
		Dur("interval", s.config.Interval).
		Bool("run_on_start", s.config.RunOnStart).
		Bool("distributed_lock", s.locker != nil).
		Msg("Scheduler started")

	if s.config.RunOnStart {
		s.tick(ctx)
	}

	ticker := time.NewTicker(s.config.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("Scheduler stopped by context")
			return
		case <-s.stopCh:
			s.logger.Info().Msg("Scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

// Stop stops the scheduler loop. A run in progress finishes on its own.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if s.running {
		s.running = false
		close(s.stopCh)
	}
	s.mu.Unlock()
}

// IsRunning returns whether the scheduler loop is active.
func (s *Scheduler) IsRunning() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// LastRun returns the status of the last completed run, or nil before the first.
func (s *Scheduler) LastRun() *RunStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.last == nil {
		return nil
	}
	status := *s.last
	return &status
}

// RunNow forces an immediate run. It fails with ErrRunInProgress or ErrLockHeld
// instead of waiting.
func (s *Scheduler) RunNow(ctx context.Context) error {
	s.logger.Info().Msg("Manual run triggered")
	return s.runOnce(ctx)
}

func (s *Scheduler) tick(ctx context.Context) {
	err := s.runOnce(ctx)
	switch {
	case errors.Is(err, ErrRunInProgress):
		s.logger.Debug().Msg("Previous run still in progress, skipping tick")
	case errors.Is(err, ErrLockHeld):
		s.logger.Debug().Msg("Another instance holds the lock, skipping tick")
	case err != nil:
		s.logger.Error().Err(err).Msg("Scheduled run failed")
	}
}

func (s *Scheduler) runOnce(ctx context.Context) error {
	if !s.runMu.TryLock() {
		return ErrRunInProgress
	}
	defer s.runMu.Unlock()

	runCtx, cancel := context.WithTimeout(ctx, s.config.RunTimeout)
	defer cancel()

	if s.locker != nil {
		token, ok, err := s.locker.TryLock(runCtx, s.job.Name(), s.config.LockTTL)
		if err != nil {
			return err
		}
		if !ok {
			return ErrLockHeld
		}
		defer func() {
			// The run context may already be expired.
			unlockCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
			defer cancel()
			if err := s.locker.Unlock(unlockCtx, s.job.Name(), token); err != nil {
				s.logger.Warn().Err(err).Msg("Failed to release job lock")
			}
		}()
	}

	started := time.Now()
	err := s.job.Run(runCtx)

	status := &RunStatus{StartedAt: started, Duration: time.Since(started)}
	if err != nil {
		status.Err = err.Error()
	}
	s.mu.Lock()
	s.last = status
	s.mu.Unlock()

	return err
}
