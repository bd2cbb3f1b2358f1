// Package executor provides the concurrency-bounded job executor wrapped
// around batches of external-service calls. A weighted semaphore admits at
// most C jobs to the underlying service; each job retries retryable
// failures with exponential backoff under a hard per-job timeout. Batch
// results always come back in input order.
package executor

import (
	"context"
	"fmt"
	"time"

	"golang.org/x/sync/semaphore"

	"sceneforge/internal/logging"
	"sceneforge/internal/types"
)

// Config mirrors config.ExecutorConfig without importing it, keeping this
// package dependency-light.
type Config struct {
	Capacity      int
	MaxRetries    int
	RetryDelay    time.Duration
	PerJobTimeout time.Duration
	PollInterval  time.Duration
	PollErrorMax  int
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		Capacity:      2,
		MaxRetries:    3,
		RetryDelay:    time.Second,
		PerJobTimeout: 120 * time.Second,
		PollInterval:  2 * time.Second,
		PollErrorMax:  3,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.Capacity <= 0 {
		c.Capacity = d.Capacity
	}
	if c.MaxRetries < 0 {
		c.MaxRetries = d.MaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = d.RetryDelay
	}
	if c.PerJobTimeout <= 0 {
		c.PerJobTimeout = d.PerJobTimeout
	}
	if c.PollInterval <= 0 {
		c.PollInterval = d.PollInterval
	}
	if c.PollErrorMax <= 0 {
		c.PollErrorMax = d.PollErrorMax
	}
	return c
}

// Executor admits jobs against one external capacity-bounded service.
// Pipelines sharing a client instance share its executor, and therefore its
// admission control.
type Executor struct {
	name string
	sem  *semaphore.Weighted
	cfg  Config
}

// New creates an executor named for the service it guards.
func New(name string, cfg Config) *Executor {
	cfg = cfg.withDefaults()
	return &Executor{
		name: name,
		sem:  semaphore.NewWeighted(int64(cfg.Capacity)),
		cfg:  cfg,
	}
}

// Result is one batch element outcome. Elapsed covers all attempts
// including backoff sleeps.
type Result[T any] struct {
	Success       bool
	Value         T
	Err           error
	Elapsed       float64 // seconds
	Attempts      int
	UpstreamJobID string
}

// Job is a unit of work against the underlying service. The returned job id
// (may be empty) identifies the upstream job for diagnostics.
type Job[T any] func(ctx context.Context) (value T, upstreamJobID string, err error)

// Submit admits one job, blocking until a semaphore slot frees, and runs it
// with retry-with-backoff. Cancellation during admission returns
// immediately; cancellation mid-job surfaces after the current attempt.
func Submit[T any](ctx context.Context, ex *Executor, job Job[T]) Result[T] {
	start := time.Now()

	if err := ex.sem.Acquire(ctx, 1); err != nil {
		return Result[T]{
			Err:     types.WrapError(types.ErrInternal, ex.name, fmt.Errorf("admission cancelled: %w", err)),
			Elapsed: time.Since(start).Seconds(),
		}
	}
	defer ex.sem.Release(1)

	res := runWithRetry(ctx, ex, job)
	res.Elapsed = time.Since(start).Seconds()
	return res
}

func runWithRetry[T any](ctx context.Context, ex *Executor, job Job[T]) Result[T] {
	var res Result[T]
	delay := ex.cfg.RetryDelay

	for attempt := 0; attempt <= ex.cfg.MaxRetries; attempt++ {
		res.Attempts = attempt + 1

		jobCtx, cancel := context.WithTimeout(ctx, ex.cfg.PerJobTimeout)
		value, jobID, err := job(jobCtx)
		cancel()
		if jobID != "" {
			res.UpstreamJobID = jobID
		}

		if err == nil {
			res.Success = true
			res.Value = value
			res.Err = nil
			return res
		}
		res.Err = err

		if ctx.Err() != nil {
			// Outer cancellation: surface after the attempt completes.
			logging.ExecutorDebug("%s: job cancelled after attempt %d", ex.name, attempt+1)
			return res
		}
		if !types.IsRetryable(err) {
			logging.ExecutorDebug("%s: non-retryable failure on attempt %d: %v", ex.name, attempt+1, err)
			return res
		}
		if attempt == ex.cfg.MaxRetries {
			break
		}

		logging.Executor("%s: attempt %d failed (%v), retrying in %v", ex.name, attempt+1, err, delay)
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return res
		}
		delay *= 2
	}
	return res
}

// RunBatch executes the jobs with bounded concurrency. Admission is FIFO:
// job i acquires its slot before job i+1. The output slice has exactly
// len(jobs) elements and outputs[i] corresponds to jobs[i] regardless of
// completion order.
func RunBatch[T any](ctx context.Context, ex *Executor, jobs []Job[T]) []Result[T] {
	results := make([]Result[T], len(jobs))
	done := make(chan int, len(jobs))
	starts := make([]time.Time, len(jobs))

	launched := 0
	for i, job := range jobs {
		starts[i] = time.Now()
		if err := ex.sem.Acquire(ctx, 1); err != nil {
			// Cancellation aborts admission queueing immediately; remaining
			// jobs get a cancellation result.
			for j := i; j < len(jobs); j++ {
				results[j] = Result[T]{
					Err: types.WrapError(types.ErrInternal, ex.name,
						fmt.Errorf("batch cancelled before admission: %w", err)),
				}
			}
			break
		}
		launched++
		go func(idx int, j Job[T]) {
			defer ex.sem.Release(1)
			r := runWithRetry(ctx, ex, j)
			r.Elapsed = time.Since(starts[idx]).Seconds()
			results[idx] = r
			done <- idx
		}(i, job)
	}

	for n := 0; n < launched; n++ {
		<-done
	}
	logging.ExecutorDebug("%s: batch of %d complete (%d launched)", ex.name, len(jobs), launched)
	return results
}

// Poll invokes check at a bounded rate until it reports done, the per-job
// deadline passes, or PollErrorMax consecutive check errors accumulate, in
// which case the poll itself is surfaced as a retryable failure.
func (ex *Executor) Poll(ctx context.Context, check func(ctx context.Context) (done bool, err error)) error {
	consecutive := 0
	ticker := time.NewTicker(ex.cfg.PollInterval)
	defer ticker.Stop()

	for {
		done, err := check(ctx)
		if err != nil {
			consecutive++
			if consecutive >= ex.cfg.PollErrorMax {
				return types.WrapError(types.ErrUpstreamTransport, ex.name,
					fmt.Errorf("%d consecutive poll errors, last: %w", consecutive, err))
			}
		} else {
			consecutive = 0
			if done {
				return nil
			}
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return types.WrapError(types.ErrUpstreamTransport, ex.name,
				fmt.Errorf("poll aborted: %w", ctx.Err()))
		}
	}
}
