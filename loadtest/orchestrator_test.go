package loadtest_test

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/docbench/codec"
	"github.com/pithecene-io/docbench/loadtest"
	"github.com/pithecene-io/docbench/metrics"
	"github.com/pithecene-io/docbench/report"
	"github.com/pithecene-io/docbench/wire"
	"github.com/pithecene-io/docbench/wire/wiretest"
)

func writeDataset(t *testing.T, n int) []string {
	t.Helper()
	dir := t.TempDir()
	files := make([]string, n)
	for i := range n {
		path := filepath.Join(dir, fmt.Sprintf("doc_%04d.txt", i))
		if err := os.WriteFile(path, []byte(fmt.Sprintf("document number %d", i)), 0o644); err != nil {
			t.Fatalf("write dataset: %v", err)
		}
		files[i] = path
	}
	return files
}

func newClient(t *testing.T, srv *wiretest.Server, collector *metrics.Collector) *codec.Codec {
	t.Helper()
	client, err := wire.NewClient(srv.ClientConfig())
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return codec.New(wire.NewInstrumentedCaller(client, collector))
}

func TestRun_ThousandFilesFiveThreads(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{IndexDelay: 50 * time.Millisecond})
	srv.Seed([]byte("pre-existing one"), []byte("pre-existing two"))
	collector := metrics.NewCollector(srv.Addr(), "")
	files := writeDataset(t, 1000)

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      5,
		PollInterval: 10 * time.Millisecond,
		PollTimeout:  30 * time.Second,
		Server:       srv.Addr(),
	}, newClient(t, srv, collector), nil, collector)

	rep, err := o.Run(t.Context(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if rep.Outcome != report.OutcomeSuccess {
		t.Errorf("Outcome = %s, want success (%s)", rep.Outcome, rep.Message)
	}
	if rep.Chunks != 5 || rep.ChunkSize != 200 || rep.Workers != 5 {
		t.Errorf("plan = %d chunks of %d on %d workers, want 5 of 200 on 5", rep.Chunks, rep.ChunkSize, rep.Workers)
	}
	if rep.InitialCount != 2 {
		t.Errorf("InitialCount = %d, want 2", rep.InitialCount)
	}
	if rep.TargetCount != 1002 {
		t.Errorf("TargetCount = %d, want 1002", rep.TargetCount)
	}
	if rep.FinalCount < 1002 {
		t.Errorf("FinalCount = %d, want >= 1002", rep.FinalCount)
	}
	if rep.FilesSucceeded != 1000 || rep.FilesFailed != 0 || rep.FilesSkipped != 0 {
		t.Errorf("files = %d/%d/%d, want 1000/0/0", rep.FilesSucceeded, rep.FilesFailed, rep.FilesSkipped)
	}
	if rep.Phases.Upload <= 0 || rep.Phases.Convergence < 0 || rep.Phases.Spawn < 0 {
		t.Errorf("Phases = %+v, want non-negative with positive upload", rep.Phases)
	}
	if rep.RunID == "" {
		t.Error("RunID is empty, want generated id")
	}
	if rep.Metrics == nil || rep.Metrics.CallsByCommand[wire.CommandUpload] != 1000 {
		t.Errorf("Metrics = %+v, want 1000 UPLOAD calls", rep.Metrics)
	}
	if got := srv.Connections(); got < 1001 {
		t.Errorf("Connections() = %d, want one per call", got)
	}
}

func TestRun_FailedUploadsDegrade(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	srv.FailNext(wire.CommandUpload, 3)
	files := writeDataset(t, 20)

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      4,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  10 * time.Second,
	}, newClient(t, srv, nil), nil, nil)

	rep, err := o.Run(t.Context(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.Outcome != report.OutcomeDegraded {
		t.Errorf("Outcome = %s, want degraded", rep.Outcome)
	}
	if rep.FilesFailed != 3 || rep.FilesSucceeded != 17 {
		t.Errorf("files failed/succeeded = %d/%d, want 3/17", rep.FilesFailed, rep.FilesSucceeded)
	}
	if len(rep.FailedFiles) != 3 {
		t.Fatalf("FailedFiles = %d entries, want 3", len(rep.FailedFiles))
	}
	for _, f := range rep.FailedFiles {
		if f.Kind != "server" {
			t.Errorf("FailedFile kind = %q, want server", f.Kind)
		}
	}
	if rep.TargetCount != 17 {
		t.Errorf("TargetCount = %d, want 17", rep.TargetCount)
	}
	if rep.Outcome.ExitCode() != 0 {
		t.Errorf("ExitCode() = %d, want 0", rep.Outcome.ExitCode())
	}
}

func TestRun_AllUploadsFailed(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	srv.Seed([]byte("pre-existing"))
	files := writeDataset(t, 10)
	srv.FailNext(wire.CommandUpload, len(files))
	collector := metrics.NewCollector(srv.Addr(), "")

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      2,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  10 * time.Second,
	}, newClient(t, srv, collector), nil, collector)

	rep, err := o.Run(t.Context(), files)
	if !errors.Is(err, loadtest.ErrNoUploadsSucceeded) {
		t.Fatalf("Run() error = %v, want ErrNoUploadsSucceeded", err)
	}
	if rep.Outcome != report.OutcomeError {
		t.Errorf("Outcome = %s, want error", rep.Outcome)
	}
	if rep.Outcome.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", rep.Outcome.ExitCode())
	}
	if rep.FilesSucceeded != 0 || rep.FilesFailed != 10 {
		t.Errorf("files succeeded/failed = %d/%d, want 0/10", rep.FilesSucceeded, rep.FilesFailed)
	}
	if rep.Polls != 0 || rep.Phases.Convergence != 0 {
		t.Errorf("Polls = %d, Convergence = %v, want no convergence phase", rep.Polls, rep.Phases.Convergence)
	}
	if got := rep.Metrics.CallsByCommand[wire.CommandStatus]; got != 1 {
		t.Errorf("STATUS calls = %d, want only the initial one", got)
	}
}

func TestRun_SubmittedTargetTimesOut(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	srv.FailNext(wire.CommandUpload, 1)
	files := writeDataset(t, 6)

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      2,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  100 * time.Millisecond,
		Target:       loadtest.TargetSubmitted,
	}, newClient(t, srv, nil), nil, nil)

	rep, err := o.Run(t.Context(), files)
	if !errors.Is(err, loadtest.ErrConvergenceTimeout) {
		t.Fatalf("Run() error = %v, want ErrConvergenceTimeout", err)
	}
	if rep.Outcome != report.OutcomeTimeout {
		t.Errorf("Outcome = %s, want timeout", rep.Outcome)
	}
	if rep.TargetCount != 6 || rep.FinalCount != 5 {
		t.Errorf("target/final = %d/%d, want 6/5", rep.TargetCount, rep.FinalCount)
	}
	if rep.Outcome.ExitCode() != 1 {
		t.Errorf("ExitCode() = %d, want 1", rep.Outcome.ExitCode())
	}
}

func TestRun_FrozenCountTimesOut(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	srv.Freeze()
	files := writeDataset(t, 4)

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      2,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  80 * time.Millisecond,
	}, newClient(t, srv, nil), nil, nil)

	rep, err := o.Run(t.Context(), files)
	if !errors.Is(err, loadtest.ErrConvergenceTimeout) {
		t.Fatalf("Run() error = %v, want ErrConvergenceTimeout", err)
	}
	if rep.FilesSucceeded != 4 {
		t.Errorf("FilesSucceeded = %d, want 4", rep.FilesSucceeded)
	}
	if rep.FinalCount != 0 {
		t.Errorf("FinalCount = %d, want 0", rep.FinalCount)
	}
}

func TestRun_InitialStatusFailure(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	srv.FailNext(wire.CommandStatus, 1)
	files := writeDataset(t, 3)

	o := loadtest.NewOrchestrator(loadtest.Config{Threads: 1}, newClient(t, srv, nil), nil, nil)

	rep, err := o.Run(t.Context(), files)
	if !wire.IsServerError(err) {
		t.Fatalf("Run() error = %v, want server error", err)
	}
	if rep.Outcome != report.OutcomeError {
		t.Errorf("Outcome = %s, want error", rep.Outcome)
	}
	if rep.FilesSucceeded != 0 {
		t.Errorf("FilesSucceeded = %d, want 0 (no uploads before initial status)", rep.FilesSucceeded)
	}
}

func TestRun_InvalidInput(t *testing.T) {
	o := loadtest.NewOrchestrator(loadtest.Config{Threads: 0}, nil, nil, nil)
	if _, err := o.Run(t.Context(), []string{"/a"}); !errors.Is(err, loadtest.ErrInvalidThreads) {
		t.Errorf("Run(threads=0) error = %v, want ErrInvalidThreads", err)
	}

	o = loadtest.NewOrchestrator(loadtest.Config{Threads: 2}, nil, nil, nil)
	if _, err := o.Run(t.Context(), nil); !errors.Is(err, loadtest.ErrNoFiles) {
		t.Errorf("Run(nil) error = %v, want ErrNoFiles", err)
	}
}

func TestRun_MissingFileIsolated(t *testing.T) {
	srv := wiretest.NewServer(t, wiretest.Options{})
	files := writeDataset(t, 5)
	files[2] = filepath.Join(t.TempDir(), "vanished.txt")

	o := loadtest.NewOrchestrator(loadtest.Config{
		Threads:      1,
		PollInterval: 5 * time.Millisecond,
		PollTimeout:  5 * time.Second,
	}, newClient(t, srv, nil), nil, nil)

	rep, err := o.Run(t.Context(), files)
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if rep.FilesSucceeded != 4 || rep.FilesFailed != 1 {
		t.Errorf("succeeded/failed = %d/%d, want 4/1", rep.FilesSucceeded, rep.FilesFailed)
	}
	if len(rep.FailedFiles) != 1 || rep.FailedFiles[0].Kind != "file_not_found" {
		t.Errorf("FailedFiles = %+v, want one file_not_found", rep.FailedFiles)
	}
}

// blockingClient accepts a few uploads, then blocks until cancelled.
type blockingClient struct {
	accepted atomic.Int64
	limit    int64
}

func (c *blockingClient) Upload(ctx context.Context, _ string) error {
	if c.accepted.Add(1) <= c.limit {
		return nil
	}
	<-ctx.Done()
	return ctx.Err()
}

func (c *blockingClient) Status(context.Context) (uint64, error) {
	return 0, nil
}

func TestRun_CancelledDuringUpload(t *testing.T) {
	client := &blockingClient{limit: 3}
	files := make([]string, 40)
	for i := range files {
		files[i] = fmt.Sprintf("/data/%d.txt", i)
	}

	ctx, cancel := context.WithCancel(t.Context())
	time.AfterFunc(50*time.Millisecond, cancel)

	o := loadtest.NewOrchestrator(loadtest.Config{Threads: 4}, client, nil, nil)
	rep, err := o.Run(ctx, files)
	if !errors.Is(err, loadtest.ErrCancelled) {
		t.Fatalf("Run() error = %v, want ErrCancelled", err)
	}
	if rep.Outcome != report.OutcomeCancelled {
		t.Errorf("Outcome = %s, want cancelled", rep.Outcome)
	}
	if got := rep.FilesSucceeded + rep.FilesFailed + rep.FilesSkipped; got != 40 {
		t.Errorf("accounted files = %d, want 40", got)
	}
	if rep.FilesSucceeded != 3 {
		t.Errorf("FilesSucceeded = %d, want 3", rep.FilesSucceeded)
	}
}

func TestParseTargetMode(t *testing.T) {
	tests := []struct {
		in      string
		want    loadtest.TargetMode
		wantErr bool
	}{
		{in: "", want: loadtest.TargetSucceeded},
		{in: "succeeded", want: loadtest.TargetSucceeded},
		{in: "submitted", want: loadtest.TargetSubmitted},
		{in: "all", wantErr: true},
	}
	for _, tt := range tests {
		got, err := loadtest.ParseTargetMode(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("ParseTargetMode(%q) error = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseTargetMode(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestFailureKind(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"missing file", fmt.Errorf("%w: gone.txt", codec.ErrFileNotFound), "file_not_found"},
		{"unexpected status", &codec.StatusError{Command: wire.CommandUpload, Status: "DELETED"}, "unexpected_status"},
		{"server", &wire.Error{Kind: wire.KindServer, Op: wire.CommandUpload}, "server"},
		{"source", &wire.Error{Kind: wire.KindSource, Op: wire.CommandUpload, Err: wire.ErrShortSource}, "source"},
		{"connection", &wire.Error{Kind: wire.KindConnection, Op: "dial"}, "connection"},
		{"other", errors.New("odd"), "unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := loadtest.FailureKind(tt.err); got != tt.want {
				t.Errorf("FailureKind(%v) = %q, want %q", tt.err, got, tt.want)
			}
		})
	}
}
