package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Ning0612/restoredrill/internal/domain"
	"github.com/Ning0612/restoredrill/internal/logger"
)

// IntervalScheduler runs the first drill immediately, then waits Interval
// after each drill before starting the next. Drills never overlap.
type IntervalScheduler struct {
	config Config
	runner Runner
	log    logger.Logger

	mu          sync.RWMutex
	running     bool
	stopped     bool
	stopOnce    sync.Once
	closeOnce   sync.Once
	stopChan    chan struct{}
	stoppedChan chan struct{}

	stats struct {
		lastRunTime time.Time
		nextRunTime time.Time
		totalRuns   int
		passedRuns  int
		failedRuns  int
		erroredRuns int
		lastError   string
	}
}

// NewIntervalScheduler creates a new interval-based scheduler
func NewIntervalScheduler(config Config, runner Runner) (*IntervalScheduler, error) {
	if config.Interval < 0 {
		return nil, fmt.Errorf("interval cannot be negative, got %v", config.Interval)
	}
	if config.MaxRuns < 0 {
		return nil, fmt.Errorf("max runs cannot be negative, got %d", config.MaxRuns)
	}
	if runner == nil {
		return nil, fmt.Errorf("drill runner cannot be nil")
	}

	return &IntervalScheduler{
		config:      config,
		runner:      runner,
		log:         logger.With("component", "scheduler"),
		stopChan:    make(chan struct{}),
		stoppedChan: make(chan struct{}),
	}, nil
}

// Start begins the scheduling loop
func (s *IntervalScheduler) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.running {
		return fmt.Errorf("scheduler is already running")
	}
	if s.stopped {
		return fmt.Errorf("scheduler cannot be restarted after stop")
	}

	s.running = true
	s.stats.nextRunTime = time.Now()

	go s.run(ctx)
	return nil
}

func (s *IntervalScheduler) run(ctx context.Context) {
	defer s.closeOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		s.running = false
		s.mu.Unlock()
		close(s.stoppedChan)
	})

	timer := time.NewTimer(0)
	defer timer.Stop()

	for iteration := 0; ; iteration++ {
		select {
		case <-ctx.Done():
			return
		case <-s.stopChan:
			return
		case <-timer.C:
		}

		err := s.executeDrill(ctx, iteration)
		if s.config.MaxRuns > 0 && iteration+1 >= s.config.MaxRuns {
			s.log.Info("run budget spent", "runs", iteration+1)
			return
		}
		if err != nil && !errors.Is(err, domain.ErrMismatch) {
			s.log.Error("stopping after errored drill", "iteration", iteration, "error", err)
			return
		}
		if s.config.StopOnFailure && errors.Is(err, domain.ErrMismatch) {
			s.log.Warn("stopping after failed drill", "iteration", iteration)
			return
		}

		s.mu.Lock()
		s.stats.nextRunTime = time.Now().Add(s.config.Interval)
		s.mu.Unlock()
		timer.Reset(s.config.Interval)
	}
}

func (s *IntervalScheduler) executeDrill(ctx context.Context, iteration int) error {
	s.mu.Lock()
	s.stats.lastRunTime = time.Now()
	s.stats.totalRuns++
	s.mu.Unlock()

	err := s.runner.RunDrill(ctx, iteration)

	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case err == nil:
		s.stats.passedRuns++
		s.stats.lastError = ""
	case errors.Is(err, domain.ErrMismatch):
		s.stats.failedRuns++
		s.stats.lastError = err.Error()
	default:
		s.stats.erroredRuns++
		s.stats.lastError = err.Error()
	}
	if err != nil {
		s.log.Warn("drill did not pass", "iteration", iteration, "error", err)
	}
	return err
}

// Stop gracefully stops the scheduler
func (s *IntervalScheduler) Stop() error {
	s.mu.RLock()
	if !s.running {
		s.mu.RUnlock()
		return fmt.Errorf("scheduler is not running")
	}
	s.mu.RUnlock()

	s.stopOnce.Do(func() {
		close(s.stopChan)
	})
	<-s.stoppedChan

	s.mu.Lock()
	s.stopped = true
	s.mu.Unlock()
	return nil
}

// Done is closed when the loop exits for any reason
func (s *IntervalScheduler) Done() <-chan struct{} {
	return s.stoppedChan
}

// Status returns the current scheduler status
func (s *IntervalScheduler) Status() *Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return &Status{
		Running:     s.running,
		LastRunTime: s.stats.lastRunTime,
		NextRunTime: s.stats.nextRunTime,
		TotalRuns:   s.stats.totalRuns,
		PassedRuns:  s.stats.passedRuns,
		FailedRuns:  s.stats.failedRuns,
		ErroredRuns: s.stats.erroredRuns,
		LastError:   s.stats.lastError,
	}
}
