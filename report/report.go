// Package report defines the load test run report and its file encodings.
package report

import (
	"time"

	"github.com/pithecene-io/docbench/metrics"
)

// Outcome is the terminal classification of a load test run.
type Outcome string

const (
	// OutcomeSuccess means every upload succeeded and the index converged.
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded means the index converged but some uploads failed.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeTimeout means the poll deadline passed before convergence.
	OutcomeTimeout Outcome = "timeout"
	// OutcomeCancelled means the run was cancelled.
	OutcomeCancelled Outcome = "cancelled"
	// OutcomeError means the run could not start or measure the server, or
	// no upload succeeded.
	OutcomeError Outcome = "error"
)

// ExitCode maps an outcome to a process exit status.
func (o Outcome) ExitCode() int {
	switch o {
	case OutcomeSuccess, OutcomeDegraded:
		return 0
	default:
		return 1
	}
}

// Phases holds the three timed phases of a run.
type Phases struct {
	// Spawn is t1-t0: scheduling the upload workers.
	Spawn time.Duration `json:"spawn_ns" yaml:"spawn"`
	// Upload is t2-t1: until every worker has finished.
	Upload time.Duration `json:"upload_ns" yaml:"upload"`
	// Convergence is t3-t2: until the server count reached the target.
	Convergence time.Duration `json:"convergence_ns" yaml:"convergence"`
}

// Total returns the sum of all phases.
func (p Phases) Total() time.Duration {
	return p.Spawn + p.Upload + p.Convergence
}

// FailedFile records one upload that did not succeed.
type FailedFile struct {
	Path  string `json:"path" yaml:"path"`
	Kind  string `json:"kind" yaml:"kind"`
	Error string `json:"error" yaml:"error"`
}

// RunReport is the record of one load test run.
type RunReport struct {
	RunID      string    `json:"run_id" yaml:"run_id"`
	Server     string    `json:"server" yaml:"server"`
	StartedAt  time.Time `json:"started_at" yaml:"started_at"`
	FinishedAt time.Time `json:"finished_at" yaml:"finished_at"`

	RequestedThreads int    `json:"requested_threads" yaml:"requested_threads"`
	Workers          int    `json:"workers" yaml:"workers"`
	Chunks           int    `json:"chunks" yaml:"chunks"`
	ChunkSize        int    `json:"chunk_size" yaml:"chunk_size"`
	TargetMode       string `json:"target_mode" yaml:"target_mode"`

	FilesSubmitted int64        `json:"files_submitted" yaml:"files_submitted"`
	FilesSucceeded int64        `json:"files_succeeded" yaml:"files_succeeded"`
	FilesFailed    int64        `json:"files_failed" yaml:"files_failed"`
	FilesSkipped   int64        `json:"files_skipped" yaml:"files_skipped"`
	FailedFiles    []FailedFile `json:"failed_files,omitempty" yaml:"failed_files,omitempty"`

	InitialCount uint64 `json:"initial_count" yaml:"initial_count"`
	TargetCount  uint64 `json:"target_count" yaml:"target_count"`
	FinalCount   uint64 `json:"final_count" yaml:"final_count"`
	Polls        int64  `json:"polls" yaml:"polls"`
	FailedPolls  int64  `json:"failed_polls" yaml:"failed_polls"`

	Phases Phases `json:"phases" yaml:"phases"`

	Outcome Outcome           `json:"outcome" yaml:"outcome"`
	Message string            `json:"message" yaml:"message"`
	Metrics *metrics.Snapshot `json:"metrics,omitempty" yaml:"metrics,omitempty"`
}

// UploadRate returns accepted uploads per second over the upload phase.
func (r *RunReport) UploadRate() float64 {
	if r.Phases.Upload <= 0 {
		return 0
	}
	return float64(r.FilesSucceeded) / r.Phases.Upload.Seconds()
}
