// Package wire implements the document server's TCP protocol.
//
// A request frame is the raw command name followed by payload parts. A
// response is a fixed-width status token followed by a command-specific
// trailing payload. Every call owns exactly one connection.
package wire

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

// Protocol constants.
const (
	// LengthPrefixSize is the size of a section length prefix in bytes.
	LengthPrefixSize = 8
	// DefaultStatusWidth is the width of the leading status token.
	DefaultStatusWidth = 7
	// DefaultBufferSize is the receive buffer size for bounded reads.
	DefaultBufferSize = 8192
	// DefaultErrorMarker is the status token signalling a server-side failure.
	DefaultErrorMarker = "*ERROR*"
)

// Command names understood by the server.
const (
	CommandUpload = "UPLOAD"
	CommandSearch = "SEARCH"
	CommandDelete = "DELETE"
	CommandImport = "IMPORT"
	CommandStatus = "STATUS"
)

// ErrShortSource is returned when a streamed section yields fewer bytes
// than its declared length.
var ErrShortSource = errors.New("section source shorter than declared length")

type partKind int

const (
	partSection partKind = iota
	partFixed
	partRaw
)

type part struct {
	kind   partKind
	data   []byte
	reader io.Reader
	size   int64
}

// Frame is an outgoing request: the command name followed by parts.
// A frame holding a streamed section is single-use.
type Frame struct {
	Name  string
	parts []part
}

// NewFrame starts a frame for the named command.
func NewFrame(name string) *Frame {
	return &Frame{Name: name}
}

// Section appends a length-prefixed section.
func (f *Frame) Section(data []byte) *Frame {
	f.parts = append(f.parts, part{kind: partSection, data: data, size: int64(len(data))})
	return f
}

// SectionFrom appends a length-prefixed section streamed from r.
// Exactly size bytes are copied from r when the frame is written.
func (f *Frame) SectionFrom(r io.Reader, size int64) *Frame {
	f.parts = append(f.parts, part{kind: partSection, reader: r, size: size})
	return f
}

// Uint64 appends a fixed 8-byte big-endian value, such as a document id.
func (f *Frame) Uint64(v uint64) *Frame {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], v)
	f.parts = append(f.parts, part{kind: partFixed, data: buf[:], size: 8})
	return f
}

// Raw appends bytes verbatim, with no length prefix.
func (f *Frame) Raw(data []byte) *Frame {
	f.parts = append(f.parts, part{kind: partRaw, data: data, size: int64(len(data))})
	return f
}

// Size returns the encoded size of the frame in bytes.
func (f *Frame) Size() int64 {
	n := int64(len(f.Name))
	for _, p := range f.parts {
		if p.kind == partSection {
			n += LengthPrefixSize
		}
		n += p.size
	}
	return n
}

// WriteTo encodes the frame into w.
// Source read failures on streamed sections wrap ErrShortSource.
func (f *Frame) WriteTo(w io.Writer) (int64, error) {
	var written int64

	n, err := io.WriteString(w, f.Name)
	written += int64(n)
	if err != nil {
		return written, err
	}

	for _, p := range f.parts {
		if p.kind == partSection {
			var prefix [LengthPrefixSize]byte
			binary.BigEndian.PutUint64(prefix[:], uint64(p.size))
			n, err := w.Write(prefix[:])
			written += int64(n)
			if err != nil {
				return written, err
			}
		}

		if p.reader == nil {
			n, err := w.Write(p.data)
			written += int64(n)
			if err != nil {
				return written, err
			}
			continue
		}

		copied, err := copySection(w, p.reader, p.size)
		written += copied
		if err != nil {
			return written, err
		}
	}

	return written, nil
}

// copySection copies exactly size bytes from r into w, separating source
// failures from destination failures.
func copySection(w io.Writer, r io.Reader, size int64) (int64, error) {
	var written int64
	buf := make([]byte, 32*1024)
	for written < size {
		chunk := buf
		if remaining := size - written; remaining < int64(len(chunk)) {
			chunk = chunk[:remaining]
		}
		n, rerr := r.Read(chunk)
		if n > 0 {
			m, werr := w.Write(chunk[:n])
			written += int64(m)
			if werr != nil {
				return written, werr
			}
		}
		if rerr == io.EOF {
			if written < size {
				return written, fmt.Errorf("%w: got %d of %d bytes", ErrShortSource, written, size)
			}
			break
		}
		if rerr != nil {
			return written, fmt.Errorf("%w: %v", ErrShortSource, rerr)
		}
	}
	return written, nil
}
