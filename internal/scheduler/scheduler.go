// Package scheduler repeats drills on a fixed interval for soak testing.
package scheduler

import (
	"context"
	"time"
)

// Scheduler runs drills until stopped or its run budget is spent
type Scheduler interface {
	// Start begins the scheduling loop
	Start(ctx context.Context) error

	// Stop gracefully stops the scheduler, waiting for a running drill
	Stop() error

	// Done is closed when the loop has exited
	Done() <-chan struct{}

	// Status returns the current scheduler status
	Status() *Status
}

// Status represents the current state of a scheduler
type Status struct {
	Running     bool
	LastRunTime time.Time
	NextRunTime time.Time
	TotalRuns   int
	PassedRuns  int
	// FailedRuns counts drills that found a restore mismatch
	FailedRuns int
	// ErroredRuns counts drills that could not complete
	ErroredRuns int
	LastError   string
}

// Config contains scheduler configuration
type Config struct {
	// Interval is the pause between the end of one drill and the start of the next
	Interval time.Duration

	// MaxRuns stops the loop after that many drills (0 = unlimited)
	MaxRuns int

	// StopOnFailure stops the loop at the first mismatch.
	// An errored drill always stops it.
	StopOnFailure bool
}

// Runner executes one drill. A returned error matching domain.ErrMismatch
// counts as a failed drill; any other error as an errored one, which ends
// the loop.
type Runner interface {
	RunDrill(ctx context.Context, iteration int) error
}

// RunnerFunc adapts a function to Runner
type RunnerFunc func(ctx context.Context, iteration int) error

// RunDrill calls f
func (f RunnerFunc) RunDrill(ctx context.Context, iteration int) error {
	return f(ctx, iteration)
}
