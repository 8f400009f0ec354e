package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/vmihailenco/msgpack/v5"
)

// Format is a report file encoding.
type Format string

const (
	FormatJSON    Format = "json"
	FormatMsgpack Format = "msgpack"
)

// compressedSuffix marks zstd-compressed report files.
const compressedSuffix = ".zst"

// FormatForPath derives the encoding from a file name: ".msgpack" or ".mpk"
// select msgpack, anything else JSON. A trailing ".zst" adds zstd compression.
func FormatForPath(path string) (Format, bool) {
	compressed := strings.HasSuffix(path, compressedSuffix)
	base := strings.TrimSuffix(path, compressedSuffix)
	switch strings.ToLower(filepath.Ext(base)) {
	case ".msgpack", ".mpk":
		return FormatMsgpack, compressed
	default:
		return FormatJSON, compressed
	}
}

// Encode serializes r in the given format.
// Msgpack uses the json field names so both encodings share one schema.
func Encode(r *RunReport, format Format) ([]byte, error) {
	switch format {
	case FormatJSON:
		data, err := json.MarshalIndent(r, "", "  ")
		if err != nil {
			return nil, fmt.Errorf("failed to marshal report: %w", err)
		}
		return append(data, '\n'), nil
	case FormatMsgpack:
		var buf bytes.Buffer
		enc := msgpack.NewEncoder(&buf)
		enc.SetCustomStructTag("json")
		if err := enc.Encode(r); err != nil {
			return nil, fmt.Errorf("failed to marshal report: %w", err)
		}
		return buf.Bytes(), nil
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
}

// Decode parses a report in the given format.
func Decode(data []byte, format Format) (*RunReport, error) {
	var r RunReport
	switch format {
	case FormatJSON:
		if err := json.Unmarshal(data, &r); err != nil {
			return nil, fmt.Errorf("failed to parse report: %w", err)
		}
	case FormatMsgpack:
		dec := msgpack.NewDecoder(bytes.NewReader(data))
		dec.SetCustomStructTag("json")
		if err := dec.Decode(&r); err != nil {
			return nil, fmt.Errorf("failed to parse report: %w", err)
		}
	default:
		return nil, fmt.Errorf("unknown report format %q", format)
	}
	return &r, nil
}

// WriteFile writes the report to path, choosing the encoding from the name.
// If path is "-", JSON is written to stdout.
func WriteFile(r *RunReport, path string) error {
	if path == "" {
		return errors.New("report path must not be empty")
	}
	if path == "-" {
		return WriteTo(r, os.Stdout)
	}

	format, compressed := FormatForPath(path)
	data, err := Encode(r, format)
	if err != nil {
		return err
	}
	if compressed {
		data, err = compress(data)
		if err != nil {
			return err
		}
	}

	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write report to %s: %w", path, err)
	}
	return nil
}

// WriteTo writes report JSON to w.
func WriteTo(r *RunReport, w io.Writer) error {
	data, err := Encode(r, FormatJSON)
	if err != nil {
		return err
	}
	_, err = w.Write(data)
	return err
}

// ReadFile reads a report written by WriteFile.
func ReadFile(path string) (*RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read report %s: %w", path, err)
	}
	format, compressed := FormatForPath(path)
	if compressed {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
	}
	return Decode(data, format)
}

func compress(data []byte) ([]byte, error) {
	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd encoder: %w", err)
	}
	defer func() { _ = enc.Close() }()
	return enc.EncodeAll(data, make([]byte, 0, len(data)/2)), nil
}

func decompress(data []byte) ([]byte, error) {
	dec, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("zstd decoder: %w", err)
	}
	defer dec.Close()
	out, err := dec.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to decompress report: %w", err)
	}
	return out, nil
}
