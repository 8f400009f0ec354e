package loadtest

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/pithecene-io/docbench/log"
	"github.com/pithecene-io/docbench/metrics"
	"github.com/pithecene-io/docbench/wire"
)

// Poll defaults.
const (
	DefaultPollInterval = 100 * time.Millisecond
	DefaultPollTimeout  = 5 * time.Minute
)

var (
	// ErrConvergenceTimeout is returned when the poll deadline passes first.
	ErrConvergenceTimeout = errors.New("index did not converge before deadline")
	// ErrCancelled is returned when polling is cancelled.
	ErrCancelled = errors.New("cancelled")
)

// StatusReader reports the server's indexed document count.
type StatusReader interface {
	Status(ctx context.Context) (uint64, error)
}

// PollResult summarizes a convergence wait.
type PollResult struct {
	Polls       int64
	FailedPolls int64
	// LastCount is the most recent successfully observed count.
	LastCount uint64
	// Observed reports whether any poll returned a count.
	Observed bool
	// LastErr is the most recent poll failure, if any.
	LastErr error
	Elapsed time.Duration
}

// Poller waits for the server count to reach a target.
type Poller struct {
	// Interval is the pause between polls. Zero means DefaultPollInterval.
	Interval time.Duration
	// Timeout bounds the whole wait. Zero means no deadline.
	Timeout time.Duration

	status    StatusReader
	logger    *log.Logger
	collector *metrics.Collector
}

// NewPoller creates a poller over status. logger and collector may be nil.
func NewPoller(status StatusReader, interval, timeout time.Duration, logger *log.Logger, collector *metrics.Collector) *Poller {
	if logger == nil {
		logger = log.NewNop()
	}
	return &Poller{
		Interval:  interval,
		Timeout:   timeout,
		status:    status,
		logger:    logger,
		collector: collector,
	}
}

// Wait polls until the observed count is at least target.
//
// A failed poll is logged and counted, and polling continues. Returns
// ErrConvergenceTimeout when the deadline passes, wrapping the last poll
// error if there was one, and ErrCancelled when ctx is done.
func (p *Poller) Wait(ctx context.Context, target uint64) (PollResult, error) {
	interval := p.Interval
	if interval <= 0 {
		interval = DefaultPollInterval
	}

	start := time.Now()
	var res PollResult

	pollCtx := ctx
	if p.Timeout > 0 {
		var cancel context.CancelFunc
		pollCtx, cancel = context.WithTimeout(ctx, p.Timeout)
		defer cancel()
	}

	timer := time.NewTimer(interval)
	defer timer.Stop()

	for {
		count, err := p.status.Status(pollCtx)
		res.Polls++
		// A poll cut short by the deadline or cancellation is not a failure.
		p.collector.IncPoll(err != nil && pollCtx.Err() == nil)

		if err == nil {
			res.LastCount = count
			res.Observed = true
			if count >= target {
				res.Elapsed = time.Since(start)
				p.logger.Debug("index converged", map[string]any{
					"count": count, "target": target, "polls": res.Polls,
				})
				return res, nil
			}
		} else if pollCtx.Err() == nil {
			res.FailedPolls++
			res.LastErr = err
			p.logger.Warn("status poll failed", map[string]any{
				"error": err.Error(), "kind": kindName(err), "poll": res.Polls,
			})
		}

		if pollCtx.Err() != nil {
			return p.stopped(ctx, res, start, target)
		}

		select {
		case <-pollCtx.Done():
			return p.stopped(ctx, res, start, target)
		case <-timer.C:
		}
		timer.Reset(interval)
	}
}

func (p *Poller) stopped(ctx context.Context, res PollResult, start time.Time, target uint64) (PollResult, error) {
	res.Elapsed = time.Since(start)
	if ctx.Err() != nil {
		return res, fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}
	if res.LastErr != nil {
		return res, fmt.Errorf("%w: observed %d of %d: last poll: %w", ErrConvergenceTimeout, res.LastCount, target, res.LastErr)
	}
	return res, fmt.Errorf("%w: observed %d of %d", ErrConvergenceTimeout, res.LastCount, target)
}

func kindName(err error) string {
	if k, ok := wire.KindOf(err); ok {
		return k.String()
	}
	return "unknown"
}
