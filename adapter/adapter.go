// Package adapter defines the notification boundary for finished load tests.
//
// Adapters publish a completion event to a downstream system once a run
// report has been written. Publishing is best effort: a failed publish is
// logged by the caller and never changes the run outcome.
package adapter

import (
	"context"
	"fmt"
	"time"

	"github.com/pithecene-io/docbench/report"
)

// EventVersion is the version of the LoadTestCompletedEvent shape.
const EventVersion = "1"

// EventType is the event_type of every completion event.
const EventType = "loadtest_completed"

// LoadTestCompletedEvent is the payload published when a run finishes.
type LoadTestCompletedEvent struct {
	EventVersion   string `json:"event_version"`
	EventType      string `json:"event_type"`
	RunID          string `json:"run_id"`
	Server         string `json:"server"`
	Outcome        string `json:"outcome"`
	Message        string `json:"message,omitempty"`
	Timestamp      string `json:"timestamp"` // RFC 3339
	FilesSubmitted int64  `json:"files_submitted"`
	FilesSucceeded int64  `json:"files_succeeded"`
	FilesFailed    int64  `json:"files_failed"`
	TargetCount    uint64 `json:"target_count"`
	FinalCount     uint64 `json:"final_count"`
	SpawnMs        int64  `json:"spawn_ms"`
	UploadMs       int64  `json:"upload_ms"`
	ConvergenceMs  int64  `json:"convergence_ms"`
	DurationMs     int64  `json:"duration_ms"`
	StoragePath    string `json:"storage_path,omitempty"`
}

// FromReport builds the completion event for rep.
// storagePath names where the report was persisted and may be empty.
func FromReport(rep *report.RunReport, storagePath string) *LoadTestCompletedEvent {
	finished := rep.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	return &LoadTestCompletedEvent{
		EventVersion:   EventVersion,
		EventType:      EventType,
		RunID:          rep.RunID,
		Server:         rep.Server,
		Outcome:        string(rep.Outcome),
		Message:        rep.Message,
		Timestamp:      finished.UTC().Format(time.RFC3339),
		FilesSubmitted: rep.FilesSubmitted,
		FilesSucceeded: rep.FilesSucceeded,
		FilesFailed:    rep.FilesFailed,
		TargetCount:    rep.TargetCount,
		FinalCount:     rep.FinalCount,
		SpawnMs:        rep.Phases.Spawn.Milliseconds(),
		UploadMs:       rep.Phases.Upload.Milliseconds(),
		ConvergenceMs:  rep.Phases.Convergence.Milliseconds(),
		DurationMs:     rep.Phases.Total().Milliseconds(),
		StoragePath:    storagePath,
	}
}

// Adapter publishes completion events to a downstream system.
type Adapter interface {
	// Publish sends a completion event. Must respect context cancellation.
	Publish(ctx context.Context, event *LoadTestCompletedEvent) error

	// Close releases adapter resources.
	Close() error
}

// BaseBackoff is the delay before the first retry. It doubles per attempt.
const BaseBackoff = 500 * time.Millisecond

// Retry runs op up to 1+retries times with exponential backoff between
// attempts. It stops early when ctx is done or when permanent reports the
// error as not worth retrying. name prefixes the returned error.
func Retry(ctx context.Context, name string, retries int, op func(context.Context) error, permanent func(error) bool) error {
	var lastErr error
	attempts := 1 + retries

	for i := range attempts {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%s: context canceled: %w", name, err)
		}

		if i > 0 {
			backoff := time.Duration(1<<uint(i-1)) * BaseBackoff
			select {
			case <-ctx.Done():
				return fmt.Errorf("%s: context canceled during backoff: %w", name, ctx.Err())
			case <-time.After(backoff):
			}
		}

		lastErr = op(ctx)
		if lastErr == nil {
			return nil
		}
		if permanent != nil && permanent(lastErr) {
			return fmt.Errorf("%s: non-retriable error: %w", name, lastErr)
		}
	}

	return fmt.Errorf("%s: failed after %d attempts: %w", name, attempts, lastErr)
}
