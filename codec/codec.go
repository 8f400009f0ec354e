// Package codec maps document server commands onto protocol frames and
// interprets their responses.
//
// Each operation performs exactly one protocol call. Failures carry the
// wire error kinds, plus the codec sentinels for logical outcomes:
//
//	ErrFileNotFound  local upload source missing, no I/O performed
//	ErrNotFound      server has no matching document
//	*StatusError     server answered with an unexpected status token
package codec

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/pithecene-io/docbench/iox"
	"github.com/pithecene-io/docbench/wire"
)

// Status tokens.
const (
	StatusSuccess = "SUCCESS"
	StatusDeleted = "DELETED"
	StatusMissing = "MISSING"
)

var (
	// ErrFileNotFound indicates the upload source is missing or not a regular file.
	ErrFileNotFound = errors.New("file not found")
	// ErrNotFound indicates the server holds no matching document.
	ErrNotFound = errors.New("document not found")
)

// StatusError is a response with a status token the command does not expect.
type StatusError struct {
	Command string
	Status  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %q", e.Command, e.Status)
}

// Codec issues typed commands over a wire.Caller.
// It holds no state beyond the caller and is safe for concurrent use.
type Codec struct {
	caller wire.Caller
}

// New creates a codec over caller.
func New(caller wire.Caller) *Codec {
	return &Codec{caller: caller}
}

// Upload streams the file at path to the server.
func (c *Codec) Upload(ctx context.Context, path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, path, err)
	}
	if !info.Mode().IsRegular() {
		return fmt.Errorf("%w: %s is not a regular file", ErrFileNotFound, path)
	}

	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrFileNotFound, path, err)
	}
	defer iox.DiscardClose(f)

	frame := wire.NewFrame(wire.CommandUpload).SectionFrom(f, info.Size())
	resp, err := c.caller.Call(ctx, frame, wire.ReadBounded)
	if err != nil {
		return err
	}
	return expect(wire.CommandUpload, resp, StatusSuccess)
}

// UploadBytes uploads an in-memory document.
func (c *Codec) UploadBytes(ctx context.Context, data []byte) error {
	resp, err := c.caller.Call(ctx, wire.NewFrame(wire.CommandUpload).Section(data), wire.ReadBounded)
	if err != nil {
		return err
	}
	return expect(wire.CommandUpload, resp, StatusSuccess)
}

// Search returns the ids of documents containing term, in server order.
func (c *Codec) Search(ctx context.Context, term string) ([]uint64, error) {
	resp, err := c.caller.Call(ctx, wire.NewFrame(wire.CommandSearch).Section([]byte(term)), wire.ReadDrain)
	if err != nil {
		return nil, err
	}
	if err := expect(wire.CommandSearch, resp, StatusSuccess); err != nil {
		return nil, err
	}
	return ParseIDList(resp.Payload)
}

// ParseIDList parses a comma-separated list of decimal document ids.
// An empty list yields ErrNotFound.
func ParseIDList(payload []byte) ([]uint64, error) {
	text := strings.TrimSpace(string(payload))
	if text == "" {
		return nil, ErrNotFound
	}
	fields := strings.Split(text, ",")
	ids := make([]uint64, 0, len(fields))
	for _, field := range fields {
		id, err := strconv.ParseUint(strings.TrimSpace(field), 10, 64)
		if err != nil {
			return nil, wire.ProtocolViolation(wire.CommandSearch, "invalid document id %q", field)
		}
		ids = append(ids, id)
	}
	return ids, nil
}

// Delete removes document id. A missing document yields ErrNotFound.
func (c *Codec) Delete(ctx context.Context, id uint64) error {
	resp, err := c.caller.Call(ctx, wire.NewFrame(wire.CommandDelete).Uint64(id), wire.ReadBounded)
	if err != nil {
		return err
	}
	switch resp.Status {
	case StatusDeleted:
		return nil
	case StatusMissing:
		return fmt.Errorf("delete %d: %w", id, ErrNotFound)
	default:
		return &StatusError{Command: wire.CommandDelete, Status: resp.Status}
	}
}

// Fetch returns the content of document id.
// An empty payload is indistinguishable from a missing document and yields
// ErrNotFound.
func (c *Codec) Fetch(ctx context.Context, id uint64) ([]byte, error) {
	resp, err := c.caller.Call(ctx, wire.NewFrame(wire.CommandImport).Uint64(id), wire.ReadDrain)
	if err != nil {
		return nil, err
	}
	if err := expect(wire.CommandImport, resp, StatusSuccess); err != nil {
		return nil, err
	}
	if len(resp.Payload) == 0 {
		return nil, fmt.Errorf("import %d: %w", id, ErrNotFound)
	}
	return resp.Payload, nil
}

// DocumentFileName is the default local name for a downloaded document.
func DocumentFileName(id uint64) string {
	return fmt.Sprintf("document_%d.txt", id)
}

// Download fetches document id and writes it to path. An empty path means
// DocumentFileName(id) in the working directory. The file is written to a
// temporary sibling and renamed into place, so a failed download leaves no
// partial file behind. Returns the written path.
func (c *Codec) Download(ctx context.Context, id uint64, path string) (string, error) {
	if path == "" {
		path = DocumentFileName(id)
	}
	data, err := c.Fetch(ctx, id)
	if err != nil {
		return "", err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".download-*")
	if err != nil {
		return "", fmt.Errorf("create temp file: %w", err)
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("write %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("close %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		_ = os.Remove(tmpName)
		return "", fmt.Errorf("rename to %s: %w", path, err)
	}
	return path, nil
}

// Status returns the number of indexed documents.
func (c *Codec) Status(ctx context.Context) (uint64, error) {
	resp, err := c.caller.Call(ctx, wire.NewFrame(wire.CommandStatus), wire.ReadDrain)
	if err != nil {
		return 0, err
	}
	if err := expect(wire.CommandStatus, resp, StatusSuccess); err != nil {
		return 0, err
	}
	if len(resp.Payload) != 8 {
		return 0, wire.ProtocolViolation(wire.CommandStatus, "count payload is %d bytes, want 8", len(resp.Payload))
	}
	return binary.BigEndian.Uint64(resp.Payload), nil
}

func expect(command string, resp *wire.Response, status string) error {
	if resp.Status != status {
		return &StatusError{Command: command, Status: resp.Status}
	}
	return nil
}
