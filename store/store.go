// Package store persists load test reports in a Lode dataset.
//
// Reports are written one record per snapshot with Hive partitions
// server/day/run_id, on the local filesystem or S3.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/docbench/report"
)

// DefaultDataset is the dataset id used when none is configured.
const DefaultDataset = "docbench"

// RecordKindReport marks load test report records.
const RecordKindReport = "loadtest_report"

// ErrNoReports is returned when no report matches a query.
var ErrNoReports = errors.New("no reports found")

var partitionKeys = []string{"server", "day", "run_id"}

// Store reads and writes run reports.
type Store struct {
	dataset lode.Dataset
	name    string
}

// NewFS creates a store rooted at a local directory, creating it if needed.
func NewFS(dataset, root string) (*Store, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, wrap("init", root, err)
	}
	return NewWithFactory(dataset, lode.NewFSFactory(root))
}

// NewWithFactory creates a store over a custom store factory.
// Use a shared lode.NewMemory() store for testing.
func NewWithFactory(dataset string, factory lode.StoreFactory) (*Store, error) {
	if dataset == "" {
		dataset = DefaultDataset
	}
	ds, err := lode.NewDataset(
		lode.DatasetID(dataset),
		factory,
		lode.WithHiveLayout(partitionKeys...),
		lode.WithCodec(lode.NewJSONLCodec()),
	)
	if err != nil {
		return nil, wrap("init", dataset, err)
	}
	return &Store{dataset: ds, name: dataset}, nil
}

// Dataset returns the dataset id.
func (s *Store) Dataset() string {
	return s.name
}

// Write persists rep as a new snapshot.
func (s *Store) Write(ctx context.Context, rep *report.RunReport) error {
	if rep == nil || rep.RunID == "" {
		return errors.New("report must have a run id")
	}
	record, err := toRecord(rep)
	if err != nil {
		return err
	}
	if _, err := s.dataset.Write(ctx, []any{record}, lode.Metadata{}); err != nil {
		return wrap("write", s.name+"/"+rep.RunID, err)
	}
	return nil
}

// Latest returns the most recently written report, optionally restricted to
// one server address.
func (s *Store) Latest(ctx context.Context, server string) (*report.RunReport, error) {
	reports, err := s.query(ctx, server, 1)
	if err != nil {
		return nil, err
	}
	if len(reports) == 0 {
		return nil, ErrNoReports
	}
	return reports[0], nil
}

// List returns reports newest first, optionally restricted to one server.
// A limit of zero or less returns all of them.
func (s *Store) List(ctx context.Context, server string, limit int) ([]*report.RunReport, error) {
	return s.query(ctx, server, limit)
}

func (s *Store) query(ctx context.Context, server string, limit int) ([]*report.RunReport, error) {
	snapshots, err := s.dataset.Snapshots(ctx)
	if err != nil {
		return nil, wrap("read", s.name+"/snapshots", err)
	}

	partition := ""
	if server != "" {
		partition = PartitionValue(server)
	}

	var out []*report.RunReport
	seen := make(map[string]struct{})
	// Snapshots are ordered by creation time.
	for i := len(snapshots) - 1; i >= 0; i-- {
		snap := snapshots[i]
		if partition != "" && !snapshotInPartition(snap, "server", partition) {
			continue
		}

		data, err := s.dataset.Read(ctx, snap.ID)
		if err != nil {
			return nil, wrap("read", fmt.Sprintf("%s/snapshot/%s", s.name, snap.ID), err)
		}
		for _, item := range data {
			record, ok := item.(map[string]any)
			if !ok || record["record_kind"] != RecordKindReport {
				continue
			}
			if partition != "" && record["server"] != partition {
				continue
			}
			rep, err := fromRecord(record)
			if err != nil {
				return nil, err
			}
			// A rewritten run keeps only its newest report.
			if _, dup := seen[rep.RunID]; dup {
				continue
			}
			seen[rep.RunID] = struct{}{}
			out = append(out, rep)
			if limit > 0 && len(out) >= limit {
				return out, nil
			}
		}
	}
	return out, nil
}

// PartitionValue turns a server address into a path-safe partition value.
func PartitionValue(server string) string {
	return strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '.', r == '-':
			return r
		default:
			return '_'
		}
	}, server)
}

func toRecord(rep *report.RunReport) (map[string]any, error) {
	data, err := json.Marshal(rep)
	if err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}
	var body map[string]any
	if err := json.Unmarshal(data, &body); err != nil {
		return nil, fmt.Errorf("encode report: %w", err)
	}

	started := rep.StartedAt
	if started.IsZero() {
		started = time.Now()
	}
	return map[string]any{
		"record_kind": RecordKindReport,
		"server":      PartitionValue(rep.Server),
		"day":         started.UTC().Format("2006-01-02"),
		"run_id":      rep.RunID,
		"outcome":     string(rep.Outcome),
		"report":      body,
	}, nil
}

func fromRecord(record map[string]any) (*report.RunReport, error) {
	body, ok := record["report"]
	if !ok {
		return nil, fmt.Errorf("record %v has no report body", record["run_id"])
	}
	data, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("decode report record: %w", err)
	}
	var rep report.RunReport
	if err := json.Unmarshal(data, &rep); err != nil {
		return nil, fmt.Errorf("decode report record: %w", err)
	}
	return &rep, nil
}

// snapshotInPartition checks if a Hive-partitioned snapshot has a file under
// an exact key=value segment, so run-1 does not match run-10.
func snapshotInPartition(snap *lode.DatasetSnapshot, key, value string) bool {
	segment := key + "=" + value
	for _, f := range snap.Manifest.Files {
		for _, part := range strings.Split(f.Path, "/") {
			if part == segment {
				return true
			}
		}
	}
	return false
}
