package loadtest

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/pithecene-io/docbench/codec"
	"github.com/pithecene-io/docbench/log"
	"github.com/pithecene-io/docbench/metrics"
	"github.com/pithecene-io/docbench/report"
)

// ErrNoUploadsSucceeded is returned when every attempted upload failed.
var ErrNoUploadsSucceeded = errors.New("no uploads succeeded")

// TargetMode selects how the convergence target is computed.
type TargetMode string

const (
	// TargetSucceeded waits for initial count plus accepted uploads.
	TargetSucceeded TargetMode = "succeeded"
	// TargetSubmitted waits for initial count plus every file submitted,
	// which never converges if an upload failed.
	TargetSubmitted TargetMode = "submitted"
)

// ParseTargetMode parses a target mode name. Empty means TargetSucceeded.
func ParseTargetMode(s string) (TargetMode, error) {
	switch TargetMode(s) {
	case "", TargetSucceeded:
		return TargetSucceeded, nil
	case TargetSubmitted:
		return TargetSubmitted, nil
	default:
		return "", fmt.Errorf("invalid target mode %q (must be %s or %s)", s, TargetSucceeded, TargetSubmitted)
	}
}

// Config configures a load test run.
type Config struct {
	// Threads is the requested number of upload workers.
	Threads int
	// PollInterval is the pause between STATUS polls.
	PollInterval time.Duration
	// PollTimeout bounds the convergence wait. Zero means no deadline.
	PollTimeout time.Duration
	Target      TargetMode
	// Server labels the report and log entries.
	Server string
	// RunID identifies the run. Empty means a fresh UUID.
	RunID string
}

// Client is the subset of the command codec a load test needs.
type Client interface {
	Upload(ctx context.Context, path string) error
	Status(ctx context.Context) (uint64, error)
}

// ChunkResult is one worker's account of a chunk.
type ChunkResult struct {
	Index       int
	Files       int
	Succeeded   int64
	Failed      int64
	Skipped     int64
	FailedFiles []report.FailedFile
}

// Orchestrator runs load tests.
type Orchestrator struct {
	cfg       Config
	client    Client
	logger    *log.Logger
	collector *metrics.Collector
	now       func() time.Time
}

// NewOrchestrator creates an orchestrator. logger and collector may be nil.
func NewOrchestrator(cfg Config, client Client, logger *log.Logger, collector *metrics.Collector) *Orchestrator {
	if logger == nil {
		logger = log.NewNop()
	}
	if cfg.Target == "" {
		cfg.Target = TargetSucceeded
	}
	return &Orchestrator{
		cfg:       cfg,
		client:    client,
		logger:    logger,
		collector: collector,
		now:       time.Now,
	}
}

// Run uploads files concurrently, then waits for the server to index them.
//
// Invalid input (no files, threads < 1) returns a nil report. Every other
// path returns a report: the error is nil for success and degraded runs and
// describes the failure otherwise.
func (o *Orchestrator) Run(ctx context.Context, files []string) (*report.RunReport, error) {
	plan, err := NewPlan(files, o.cfg.Threads)
	if err != nil {
		return nil, err
	}

	runID := o.cfg.RunID
	if runID == "" {
		runID = uuid.New().String()
	}
	o.collector.SetRunID(runID)
	logger := o.logger.WithRun(log.RunContext{RunID: runID})

	rep := &report.RunReport{
		RunID:            runID,
		Server:           o.cfg.Server,
		StartedAt:        o.now().UTC(),
		RequestedThreads: plan.Requested,
		Workers:          plan.Workers(),
		Chunks:           len(plan.Chunks),
		ChunkSize:        plan.ChunkSize,
		TargetMode:       string(o.cfg.Target),
		FilesSubmitted:   int64(len(files)),
	}

	logger.Info("load test starting", map[string]any{
		"files":   len(files),
		"threads": plan.Threads,
		"workers": rep.Workers,
		"chunks":  rep.Chunks,
	})

	initial, err := o.client.Status(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return o.finish(rep, report.OutcomeCancelled, "cancelled before upload"), fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
		}
		o.finish(rep, report.OutcomeError, "initial status failed: "+err.Error())
		return rep, fmt.Errorf("initial status: %w", err)
	}
	rep.InitialCount = initial

	t0 := o.now()
	chunks := make(chan Chunk, len(plan.Chunks))
	for _, c := range plan.Chunks {
		chunks <- c
	}
	close(chunks)
	results := make(chan ChunkResult, len(plan.Chunks))

	var wg sync.WaitGroup
	for range rep.Workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.worker(ctx, logger, chunks, results)
		}()
	}
	t1 := o.now()

	wg.Wait()
	close(results)
	t2 := o.now()

	o.merge(rep, results)
	rep.Phases.Spawn = t1.Sub(t0)
	rep.Phases.Upload = t2.Sub(t1)

	logger.Info("uploads finished", map[string]any{
		"succeeded": rep.FilesSucceeded,
		"failed":    rep.FilesFailed,
		"skipped":   rep.FilesSkipped,
		"upload_ms": rep.Phases.Upload.Milliseconds(),
	})

	if ctx.Err() != nil {
		return o.finish(rep, report.OutcomeCancelled, "cancelled during upload"), fmt.Errorf("%w: %w", ErrCancelled, ctx.Err())
	}

	if rep.FilesSucceeded == 0 && rep.FilesFailed > 0 {
		// Nothing was indexed, so convergence would be measured against the
		// initial count alone.
		rep.TargetCount = initial
		rep.FinalCount = initial
		o.finish(rep, report.OutcomeError, fmt.Sprintf("all %d uploads failed", rep.FilesFailed))
		logger.Error("load test failed", map[string]any{"failed": rep.FilesFailed})
		return rep, fmt.Errorf("%w: %d of %d failed", ErrNoUploadsSucceeded, rep.FilesFailed, rep.FilesSubmitted)
	}

	expected := rep.FilesSucceeded
	if o.cfg.Target == TargetSubmitted {
		expected = rep.FilesSubmitted
	}
	rep.TargetCount = initial + uint64(expected)

	poller := NewPoller(o.client, o.cfg.PollInterval, o.cfg.PollTimeout, logger, o.collector)
	pr, werr := poller.Wait(ctx, rep.TargetCount)
	t3 := o.now()

	rep.Phases.Convergence = t3.Sub(t2)
	rep.Polls = pr.Polls
	rep.FailedPolls = pr.FailedPolls
	rep.FinalCount = pr.LastCount

	switch {
	case werr == nil && rep.FilesFailed == 0:
		o.finish(rep, report.OutcomeSuccess, "all uploads indexed")
	case werr == nil:
		o.finish(rep, report.OutcomeDegraded, fmt.Sprintf("%d of %d uploads failed", rep.FilesFailed, rep.FilesSubmitted))
	case errors.Is(werr, ErrCancelled):
		o.finish(rep, report.OutcomeCancelled, "cancelled during convergence")
	default:
		o.finish(rep, report.OutcomeTimeout, werr.Error())
	}

	logger.Info("load test finished", map[string]any{
		"outcome":        rep.Outcome,
		"final_count":    rep.FinalCount,
		"target_count":   rep.TargetCount,
		"convergence_ms": rep.Phases.Convergence.Milliseconds(),
	})

	return rep, werr
}

func (o *Orchestrator) worker(ctx context.Context, logger *log.Logger, chunks <-chan Chunk, results chan<- ChunkResult) {
	for chunk := range chunks {
		res := ChunkResult{Index: chunk.Index, Files: len(chunk.Files)}
		for i, path := range chunk.Files {
			if ctx.Err() != nil {
				res.Skipped += int64(len(chunk.Files) - i)
				break
			}
			err := o.client.Upload(ctx, path)
			if err == nil {
				res.Succeeded++
				o.collector.IncUploadSucceeded()
				continue
			}
			if ctx.Err() != nil {
				// The in-flight upload was aborted; its outcome is unknown.
				res.Skipped += int64(len(chunk.Files) - i)
				break
			}
			res.Failed++
			o.collector.IncUploadFailed()
			kind := FailureKind(err)
			res.FailedFiles = append(res.FailedFiles, report.FailedFile{Path: path, Kind: kind, Error: err.Error()})
			logger.Warn("upload failed", map[string]any{
				"file":  path,
				"kind":  kind,
				"error": err.Error(),
				"chunk": chunk.Index,
			})
		}
		o.collector.AddUploadsSkipped(res.Skipped)
		results <- res
	}
}

func (o *Orchestrator) merge(rep *report.RunReport, results <-chan ChunkResult) {
	all := make([]ChunkResult, 0, rep.Chunks)
	for r := range results {
		all = append(all, r)
	}
	slices.SortFunc(all, func(a, b ChunkResult) int { return a.Index - b.Index })

	for _, r := range all {
		rep.FilesSucceeded += r.Succeeded
		rep.FilesFailed += r.Failed
		rep.FilesSkipped += r.Skipped
		rep.FailedFiles = append(rep.FailedFiles, r.FailedFiles...)
	}
}

func (o *Orchestrator) finish(rep *report.RunReport, outcome report.Outcome, message string) *report.RunReport {
	rep.Outcome = outcome
	rep.Message = message
	rep.FinishedAt = o.now().UTC()
	if o.collector != nil {
		snap := o.collector.Snapshot()
		rep.Metrics = &snap
	}
	return rep
}

// FailureKind names the failure class of an upload error.
func FailureKind(err error) string {
	var statusErr *codec.StatusError
	switch {
	case errors.Is(err, codec.ErrFileNotFound):
		return "file_not_found"
	case errors.As(err, &statusErr):
		return "unexpected_status"
	default:
		return kindName(err)
	}
}
