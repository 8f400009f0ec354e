// Package wiretest provides an in-process document server for tests.
//
// The server speaks the same protocol as the real indexing server: it reads
// the whole request, writes one response and closes the connection. Uploaded
// documents get sequential ids starting at zero and become visible to STATUS
// and SEARCH after an optional indexing delay.
package wiretest

import (
	"encoding/binary"
	"errors"
	"io"
	"net"
	"regexp"
	"slices"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/pithecene-io/docbench/iox"
	"github.com/pithecene-io/docbench/wire"
)

// MaxSection caps the size of a request section the fake will accept.
const MaxSection = 64 << 20

var tokenPattern = regexp.MustCompile(`[\w'-]+|[[:punct:]]+`)

// Tokenize splits text the way the server's inverted index does.
func Tokenize(text string) []string {
	return tokenPattern.FindAllString(text, -1)
}

// Options configures a fake server.
type Options struct {
	// IndexDelay is how long an upload takes to become visible.
	IndexDelay time.Duration
}

type document struct {
	content   []byte
	visibleAt time.Time
}

type injection struct {
	remaining int
	raw       []byte
}

// Server is a fake document server bound to a loopback port.
type Server struct {
	listener net.Listener
	opts     Options

	mu         sync.Mutex
	docs       map[uint64]*document
	nextID     uint64
	frozen     bool
	frozenAt   uint64
	injections map[string]*injection

	connections atomic.Int64
	wg          sync.WaitGroup
}

// NewServer starts a fake server and registers its shutdown with t.Cleanup.
func NewServer(t testing.TB, opts Options) *Server {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	s := &Server{
		listener:   ln,
		opts:       opts,
		docs:       make(map[uint64]*document),
		injections: make(map[string]*injection),
	}
	s.wg.Add(1)
	go s.serve()
	t.Cleanup(s.Close)
	return s
}

// Addr returns the host:port the server listens on.
func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

// ClientConfig returns a default client configuration pointed at the server.
func (s *Server) ClientConfig() wire.Config {
	cfg := wire.DefaultConfig()
	cfg.Addr = s.Addr()
	cfg.DialTimeout = 2 * time.Second
	cfg.IOTimeout = 10 * time.Second
	return cfg
}

// Close stops accepting connections and waits for in-flight handlers.
func (s *Server) Close() {
	_ = s.listener.Close()
	s.wg.Wait()
}

// Connections returns the number of accepted connections.
func (s *Server) Connections() int64 {
	return s.connections.Load()
}

// Seed stores documents as immediately visible and returns their ids.
func (s *Server) Seed(contents ...[]byte) []uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	ids := make([]uint64, 0, len(contents))
	for _, c := range contents {
		ids = append(ids, s.addLocked(c, time.Time{}))
	}
	return ids
}

// Document returns the stored content for id.
func (s *Server) Document(id uint64) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.docs[id]
	if !ok {
		return nil, false
	}
	return slices.Clone(d.content), true
}

// Freeze pins the STATUS count at its current value until Unfreeze.
func (s *Server) Freeze() {
	s.mu.Lock()
	s.frozenAt = s.visibleCountLocked(time.Now())
	s.frozen = true
	s.mu.Unlock()
}

// Unfreeze resumes live STATUS counts.
func (s *Server) Unfreeze() {
	s.mu.Lock()
	s.frozen = false
	s.mu.Unlock()
}

// FailNext makes the next n requests for command answer with the error marker.
func (s *Server) FailNext(command string, n int) {
	s.Inject(command, n, []byte(wire.DefaultErrorMarker))
}

// Inject makes the next n requests for command answer with raw bytes
// instead of being handled.
func (s *Server) Inject(command string, n int, raw []byte) {
	s.mu.Lock()
	s.injections[command] = &injection{remaining: n, raw: slices.Clone(raw)}
	s.mu.Unlock()
}

func (s *Server) serve() {
	defer s.wg.Done()
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			return
		}
		s.connections.Add(1)
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			defer iox.DiscardClose(conn)
			s.handle(conn)
		}()
	}
}

func (s *Server) handle(conn net.Conn) {
	_ = conn.SetDeadline(time.Now().Add(30 * time.Second))

	var name [6]byte
	if _, err := io.ReadFull(conn, name[:]); err != nil {
		return
	}
	command := string(name[:])

	var (
		section []byte
		id      uint64
		err     error
	)
	switch command {
	case wire.CommandUpload, wire.CommandSearch:
		section, err = readSection(conn)
	case wire.CommandDelete, wire.CommandImport:
		id, err = readUint64(conn)
	case wire.CommandStatus:
	default:
		return
	}
	if err != nil {
		return
	}

	if raw, ok := s.takeInjection(command); ok {
		_, _ = conn.Write(raw)
		return
	}

	_, _ = conn.Write(s.respond(command, section, id))
}

func (s *Server) respond(command string, section []byte, id uint64) []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()

	switch command {
	case wire.CommandUpload:
		s.addLocked(section, now.Add(s.opts.IndexDelay))
		return []byte("SUCCESS")

	case wire.CommandSearch:
		ids := s.searchLocked(string(section), now)
		parts := make([]string, len(ids))
		for i, id := range ids {
			parts[i] = strconv.FormatUint(id, 10)
		}
		return append([]byte("SUCCESS"), strings.Join(parts, ",")...)

	case wire.CommandDelete:
		if _, ok := s.docs[id]; !ok {
			return []byte("MISSING")
		}
		delete(s.docs, id)
		return []byte("DELETED")

	case wire.CommandImport:
		resp := []byte("SUCCESS")
		if d, ok := s.docs[id]; ok {
			resp = append(resp, d.content...)
		}
		return resp

	default:
		count := s.visibleCountLocked(now)
		if s.frozen {
			count = s.frozenAt
		}
		resp := []byte("SUCCESS")
		return binary.BigEndian.AppendUint64(resp, count)
	}
}

func (s *Server) addLocked(content []byte, visibleAt time.Time) uint64 {
	id := s.nextID
	s.nextID++
	s.docs[id] = &document{content: slices.Clone(content), visibleAt: visibleAt}
	return id
}

func (s *Server) visibleCountLocked(now time.Time) uint64 {
	var n uint64
	for _, d := range s.docs {
		if !d.visibleAt.After(now) {
			n++
		}
	}
	return n
}

func (s *Server) searchLocked(query string, now time.Time) []uint64 {
	terms := Tokenize(query)
	var ids []uint64
	for id, d := range s.docs {
		if d.visibleAt.After(now) {
			continue
		}
		tokens := Tokenize(string(d.content))
		for _, term := range terms {
			if slices.Contains(tokens, term) {
				ids = append(ids, id)
				break
			}
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *Server) takeInjection(command string) ([]byte, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	inj, ok := s.injections[command]
	if !ok || inj.remaining <= 0 {
		return nil, false
	}
	inj.remaining--
	if inj.remaining == 0 {
		delete(s.injections, command)
	}
	return inj.raw, true
}

func readUint64(r io.Reader) (uint64, error) {
	var buf [8]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint64(buf[:]), nil
}

func readSection(r io.Reader) ([]byte, error) {
	size, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	if size > MaxSection {
		return nil, errors.New("section too large")
	}
	buf := make([]byte, size)
	if _, err := io.ReadFull(r, buf); err != nil {
		return nil, err
	}
	return buf, nil
}
