package workerutil

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"time"
)

const (
	// defaultInitialBackoff is the delay before the first restart after a panic.
	// Doubles on each subsequent attempt up to defaultMaxBackoff.
	defaultInitialBackoff = 100 * time.Millisecond

	// defaultMaxBackoff caps the delay between restart attempts.
	defaultMaxBackoff = 5 * time.Second

	// defaultMaxRetries limits the number of runs before the task is given up.
	// With the defaults above, 10 runs span roughly 30 seconds.
	defaultMaxRetries = 10
)

// ErrGaveUp is returned by Run when a task panicked on every allowed attempt.
type ErrGaveUp struct {
	Task     string
	Attempts int
}

func (e *ErrGaveUp) Error() string {
	return fmt.Sprintf("task %s panicked %d times, giving up", e.Task, e.Attempts)
}

// Options configures Run. Zero values select the defaults.
//
//   - InitialBackoff / MaxBackoff: 0 or negative means default.
//   - MaxRetries: 0 or negative means default; 1 means "run once, never restart".
//   - Logger: nil means slog.Default().
type Options struct {
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	MaxRetries     int

	// OnPanic is called after each recovered panic, before the backoff wait.
	// attempt is 1-based. May be nil.
	OnPanic func(task string, attempt int, recovered any)

	Logger *slog.Logger
}

func (opts Options) withDefaults() Options {
	if opts.InitialBackoff <= 0 {
		opts.InitialBackoff = defaultInitialBackoff
	}
	if opts.MaxBackoff <= 0 {
		opts.MaxBackoff = defaultMaxBackoff
	}
	if opts.MaxRetries <= 0 {
		opts.MaxRetries = defaultMaxRetries
	}
	// Keep the backoff sequence non-decreasing.
	if opts.MaxBackoff < opts.InitialBackoff {
		opts.MaxBackoff = opts.InitialBackoff
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	return opts
}

// Run executes fn until it returns, restarting it with exponential backoff
// whenever it panics. It blocks, so it composes with errgroup:
//
//	g.Go(func() error { return workerutil.Run(ctx, "serial", rec.Run, opts) })
//
// Return values:
//   - fn returned (nil or error): that value, without restart.
//   - ctx canceled while waiting to restart: nil.
//   - every attempt panicked: *ErrGaveUp.
func Run(ctx context.Context, task string, fn func(ctx context.Context) error, opts Options) error {
	opts = opts.withDefaults()
	logger := opts.Logger.With("task", task)

	delay := opts.InitialBackoff

	for attempt := 1; attempt <= opts.MaxRetries; attempt++ {
		res := runOnce(ctx, fn)
		if !res.panicked {
			return res.err
		}

		logger.Error("task panicked",
			"attempt", attempt,
			"panic", res.recovered,
			"stack", res.stack,
		)

		if ctx.Err() != nil {
			return nil
		}
		if opts.OnPanic != nil {
			opts.OnPanic(task, attempt, res.recovered)
		}

		// No next run after the last attempt, so don't wait for nothing.
		if attempt == opts.MaxRetries {
			break
		}

		logger.Warn("restarting task", "delay", delay, "attempt", attempt+1)

		timer := time.NewTimer(delay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil
		case <-timer.C:
		}

		delay = nextBackoff(delay, opts.MaxBackoff)
	}

	logger.Error("task exceeded max retries", "max_retries", opts.MaxRetries)
	return &ErrGaveUp{Task: task, Attempts: opts.MaxRetries}
}

type runResult struct {
	err       error
	recovered any
	stack     string
	panicked  bool
}

func runOnce(ctx context.Context, fn func(ctx context.Context) error) (res runResult) {
	defer func() {
		if r := recover(); r != nil {
			res = runResult{recovered: r, stack: string(debug.Stack()), panicked: true}
		}
	}()
	return runResult{err: fn(ctx)}
}

// nextBackoff doubles current, capped at maxBackoff. Overflow wraps to maxBackoff.
func nextBackoff(current, maxBackoff time.Duration) time.Duration {
	if current <= 0 {
		return defaultInitialBackoff
	}
	if current >= maxBackoff {
		return maxBackoff
	}
	next := current * 2
	if next > maxBackoff || next < current {
		return maxBackoff
	}
	return next
}
