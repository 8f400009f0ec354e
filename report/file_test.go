package report

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/pithecene-io/docbench/metrics"
)

func sampleReport() *RunReport {
	snap := metrics.NewCollector("127.0.0.1:7878", "run-1").Snapshot()
	snap.Calls = 1003
	snap.CallsByCommand = map[string]int64{"UPLOAD": 1000, "STATUS": 3}
	return &RunReport{
		RunID:            "run-1",
		Server:           "127.0.0.1:7878",
		StartedAt:        time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		FinishedAt:       time.Date(2026, 3, 1, 12, 0, 9, 0, time.UTC),
		RequestedThreads: 5,
		Workers:          5,
		Chunks:           5,
		ChunkSize:        200,
		TargetMode:       "succeeded",
		FilesSubmitted:   1000,
		FilesSucceeded:   998,
		FilesFailed:      2,
		FailedFiles: []FailedFile{
			{Path: "/data/a.txt", Kind: "server", Error: "server reported an error"},
		},
		InitialCount: 10,
		TargetCount:  1008,
		FinalCount:   1008,
		Polls:        3,
		Phases: Phases{
			Spawn:       2 * time.Millisecond,
			Upload:      4 * time.Second,
			Convergence: 300 * time.Millisecond,
		},
		Outcome: OutcomeDegraded,
		Message: "2 uploads failed",
		Metrics: &snap,
	}
}

func TestWriteReadFile(t *testing.T) {
	tests := []string{"report.json", "report.msgpack", "report.json.zst", "report.mpk.zst"}

	for _, name := range tests {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), name)
			want := sampleReport()

			if err := WriteFile(want, path); err != nil {
				t.Fatalf("WriteFile() error = %v", err)
			}
			got, err := ReadFile(path)
			if err != nil {
				t.Fatalf("ReadFile() error = %v", err)
			}

			if got.RunID != want.RunID || got.Outcome != want.Outcome {
				t.Errorf("identity = %s/%s, want %s/%s", got.RunID, got.Outcome, want.RunID, want.Outcome)
			}
			if !got.StartedAt.Equal(want.StartedAt) {
				t.Errorf("StartedAt = %v, want %v", got.StartedAt, want.StartedAt)
			}
			if got.Phases != want.Phases {
				t.Errorf("Phases = %+v, want %+v", got.Phases, want.Phases)
			}
			if got.TargetCount != 1008 || got.FilesFailed != 2 {
				t.Errorf("counts = %d/%d, want 1008/2", got.TargetCount, got.FilesFailed)
			}
			if len(got.FailedFiles) != 1 || got.FailedFiles[0].Path != "/data/a.txt" {
				t.Errorf("FailedFiles = %+v", got.FailedFiles)
			}
			if got.Metrics == nil || got.Metrics.CallsByCommand["UPLOAD"] != 1000 {
				t.Errorf("Metrics = %+v, want UPLOAD calls 1000", got.Metrics)
			}
		})
	}
}

func TestWriteFile_CompressionShrinksJSON(t *testing.T) {
	dir := t.TempDir()
	r := sampleReport()
	for range 200 {
		r.FailedFiles = append(r.FailedFiles, FailedFile{Path: "/data/file.txt", Kind: "connection", Error: "dial refused"})
	}

	plain := filepath.Join(dir, "r.json")
	packed := filepath.Join(dir, "r.json.zst")
	if err := WriteFile(r, plain); err != nil {
		t.Fatalf("WriteFile(plain) error = %v", err)
	}
	if err := WriteFile(r, packed); err != nil {
		t.Fatalf("WriteFile(packed) error = %v", err)
	}

	ps, err := os.Stat(plain)
	if err != nil {
		t.Fatal(err)
	}
	zs, err := os.Stat(packed)
	if err != nil {
		t.Fatal(err)
	}
	if zs.Size() >= ps.Size() {
		t.Errorf("compressed size %d >= plain size %d", zs.Size(), ps.Size())
	}
}

func TestWriteFile_EmptyPath(t *testing.T) {
	if err := WriteFile(sampleReport(), ""); err == nil {
		t.Fatal("WriteFile(\"\") error = nil, want error")
	}
}

func TestReadFile_Corrupt(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json.zst")
	if err := os.WriteFile(path, []byte("not a valid zstd stream"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := ReadFile(path); err == nil {
		t.Fatal("ReadFile() error = nil, want error")
	}
}

func TestFormatForPath(t *testing.T) {
	tests := []struct {
		path       string
		format     Format
		compressed bool
	}{
		{"r.json", FormatJSON, false},
		{"r.JSON", FormatJSON, false},
		{"r.msgpack", FormatMsgpack, false},
		{"r.mpk.zst", FormatMsgpack, true},
		{"r.zst", FormatJSON, true},
		{"report", FormatJSON, false},
	}
	for _, tt := range tests {
		t.Run(tt.path, func(t *testing.T) {
			format, compressed := FormatForPath(tt.path)
			if format != tt.format || compressed != tt.compressed {
				t.Errorf("FormatForPath() = %s/%v, want %s/%v", format, compressed, tt.format, tt.compressed)
			}
		})
	}
}

func TestOutcome_ExitCode(t *testing.T) {
	tests := []struct {
		outcome Outcome
		want    int
	}{
		{OutcomeSuccess, 0},
		{OutcomeDegraded, 0},
		{OutcomeTimeout, 1},
		{OutcomeCancelled, 1},
		{OutcomeError, 1},
	}
	for _, tt := range tests {
		if got := tt.outcome.ExitCode(); got != tt.want {
			t.Errorf("%s.ExitCode() = %d, want %d", tt.outcome, got, tt.want)
		}
	}
}

func TestUploadRate(t *testing.T) {
	r := &RunReport{FilesSucceeded: 500, Phases: Phases{Upload: 2 * time.Second}}
	if got := r.UploadRate(); got != 250 {
		t.Errorf("UploadRate() = %v, want 250", got)
	}
	if got := (&RunReport{FilesSucceeded: 5}).UploadRate(); got != 0 {
		t.Errorf("UploadRate() with zero phase = %v, want 0", got)
	}
}
