// Package metrics provides per-run metrics collection for load tests.
//
// The Collector accumulates counters during a single run. It is a leaf package
// with no internal dependencies. Failure kinds are string-typed so the package
// stays free of the wire package.
package metrics

import "sync"

// Snapshot is an immutable point-in-time view of all run metrics.
// Returned by Collector.Snapshot(). Safe to read concurrently after creation.
type Snapshot struct {
	// Protocol calls
	Calls          int64            `json:"calls" yaml:"calls"`
	CallsByCommand map[string]int64 `json:"calls_by_command" yaml:"calls_by_command"`
	CallFailures   int64            `json:"call_failures" yaml:"call_failures"`
	FailuresByKind map[string]int64 `json:"failures_by_kind" yaml:"failures_by_kind"`
	BytesSent      int64            `json:"bytes_sent" yaml:"bytes_sent"`
	BytesReceived  int64            `json:"bytes_received" yaml:"bytes_received"`

	// Uploads
	UploadsSucceeded int64 `json:"uploads_succeeded" yaml:"uploads_succeeded"`
	UploadsFailed    int64 `json:"uploads_failed" yaml:"uploads_failed"`
	UploadsSkipped   int64 `json:"uploads_skipped" yaml:"uploads_skipped"`

	// Convergence
	Polls        int64 `json:"polls" yaml:"polls"`
	PollFailures int64 `json:"poll_failures" yaml:"poll_failures"`

	// Dimensions (informational, set at construction)
	Server string `json:"server" yaml:"server"`
	RunID  string `json:"run_id" yaml:"run_id"`
}

// Collector accumulates metrics during a single run.
// Thread-safe via sync.Mutex. All methods are nil-receiver safe.
type Collector struct {
	mu sync.Mutex

	calls          int64
	callsByCommand map[string]int64
	callFailures   int64
	failuresByKind map[string]int64
	bytesSent      int64
	bytesReceived  int64

	uploadsSucceeded int64
	uploadsFailed    int64
	uploadsSkipped   int64

	polls        int64
	pollFailures int64

	server string
	runID  string
}

// NewCollector creates a Collector labelled with the target server and run id.
func NewCollector(server, runID string) *Collector {
	return &Collector{
		callsByCommand: make(map[string]int64),
		failuresByKind: make(map[string]int64),
		server:         server,
		runID:          runID,
	}
}

// SetRunID sets the run id dimension once it is known.
func (c *Collector) SetRunID(runID string) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.runID = runID
	c.mu.Unlock()
}

// --- Protocol calls ---

// RecordCall records one protocol exchange for command.
// An empty failureKind marks the call as successful.
func (c *Collector) RecordCall(command, failureKind string, sent, received int64) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.calls++
	c.callsByCommand[command]++
	if failureKind != "" {
		c.callFailures++
		c.failuresByKind[failureKind]++
	}
	c.bytesSent += sent
	c.bytesReceived += received
	c.mu.Unlock()
}

// --- Uploads ---

// IncUploadSucceeded records an accepted upload.
func (c *Collector) IncUploadSucceeded() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsSucceeded++
	c.mu.Unlock()
}

// IncUploadFailed records a rejected or failed upload.
func (c *Collector) IncUploadFailed() {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.uploadsFailed++
	c.mu.Unlock()
}

// AddUploadsSkipped records n uploads never attempted due to cancellation.
func (c *Collector) AddUploadsSkipped(n int64) {
	if c == nil || n <= 0 {
		return
	}
	c.mu.Lock()
	c.uploadsSkipped += n
	c.mu.Unlock()
}

// --- Convergence ---

// IncPoll records a STATUS poll. failed marks a poll that got no count.
func (c *Collector) IncPoll(failed bool) {
	if c == nil {
		return
	}
	c.mu.Lock()
	c.polls++
	if failed {
		c.pollFailures++
	}
	c.mu.Unlock()
}

// --- Snapshot ---

// Snapshot returns an immutable point-in-time view of all metrics.
// The returned Snapshot is safe to read concurrently; the Collector can
// continue to be mutated independently.
func (c *Collector) Snapshot() Snapshot {
	if c == nil {
		return Snapshot{}
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	byCommand := make(map[string]int64, len(c.callsByCommand))
	for k, v := range c.callsByCommand {
		byCommand[k] = v
	}
	byKind := make(map[string]int64, len(c.failuresByKind))
	for k, v := range c.failuresByKind {
		byKind[k] = v
	}

	return Snapshot{
		Calls:          c.calls,
		CallsByCommand: byCommand,
		CallFailures:   c.callFailures,
		FailuresByKind: byKind,
		BytesSent:      c.bytesSent,
		BytesReceived:  c.bytesReceived,

		UploadsSucceeded: c.uploadsSucceeded,
		UploadsFailed:    c.uploadsFailed,
		UploadsSkipped:   c.uploadsSkipped,

		Polls:        c.polls,
		PollFailures: c.pollFailures,

		Server: c.server,
		RunID:  c.runID,
	}
}
