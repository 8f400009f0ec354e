// Package loadtest drives concurrent uploads against a document server and
// measures how long its index takes to catch up.
package loadtest

import (
	"errors"
	"fmt"
)

var (
	// ErrNoFiles is returned when a run has nothing to upload.
	ErrNoFiles = errors.New("no files to upload")
	// ErrInvalidThreads is returned for a thread count below one.
	ErrInvalidThreads = errors.New("thread count must be at least 1")
)

// Chunk is a contiguous slice of the file list handled by one worker.
type Chunk struct {
	Index int
	Files []string
}

// Plan is the partition of a file list into chunks.
type Plan struct {
	// Requested is the thread count asked for.
	Requested int
	// Threads is the thread count after clamping to the file count.
	Threads int
	// ChunkSize is floor(files / threads); only the last chunk may be larger.
	ChunkSize int
	Chunks    []Chunk
}

// NewPlan partitions files for threads workers.
//
// The thread count is clamped to len(files). The chunk size is floor(L/T), the
// chunk count floor(L/size), and the last chunk absorbs the remainder. Chunks are
// ordered, disjoint and together cover files exactly once.
func NewPlan(files []string, threads int) (*Plan, error) {
	if threads < 1 {
		return nil, fmt.Errorf("%w: got %d", ErrInvalidThreads, threads)
	}
	if len(files) == 0 {
		return nil, ErrNoFiles
	}

	total := len(files)
	clamped := min(threads, total)
	size := total / clamped
	n := total / size

	chunks := make([]Chunk, n)
	for i := range n {
		start := i * size
		end := start + size
		if i == n-1 {
			end = total
		}
		chunks[i] = Chunk{Index: i, Files: files[start:end]}
	}

	return &Plan{
		Requested: threads,
		Threads:   clamped,
		ChunkSize: size,
		Chunks:    chunks,
	}, nil
}

// Workers returns the number of concurrent upload workers for the plan.
func (p *Plan) Workers() int {
	return min(p.Threads, len(p.Chunks))
}

// Files returns the number of files covered by the plan.
func (p *Plan) Files() int {
	n := 0
	for _, c := range p.Chunks {
		n += len(c.Files)
	}
	return n
}
