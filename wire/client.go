package wire

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"github.com/pithecene-io/docbench/iox"
)

// DefaultAddr is the server address used when none is configured.
const DefaultAddr = "127.0.0.1:7878"

// ReadMode selects how a response is received.
type ReadMode int

const (
	// ReadDrain reads until the server closes the connection.
	ReadDrain ReadMode = iota
	// ReadBounded performs a single receive into the call buffer.
	// Only safe for responses with a statically bounded size.
	ReadBounded
)

// Config holds client connection parameters.
type Config struct {
	// Addr is the server host:port.
	Addr string
	// DialTimeout bounds connection establishment. Zero means no limit.
	DialTimeout time.Duration
	// IOTimeout bounds the whole exchange after dialing. Zero means no limit.
	IOTimeout time.Duration
	// BufferSize is the write buffer and bounded-read buffer size.
	BufferSize int
	// StatusWidth is the width of the leading status token.
	StatusWidth int
	// ErrorMarker is the status token signalling a server failure.
	ErrorMarker string
}

// DefaultConfig returns the default client configuration.
func DefaultConfig() Config {
	return Config{
		Addr:        DefaultAddr,
		DialTimeout: 5 * time.Second,
		BufferSize:  DefaultBufferSize,
		StatusWidth: DefaultStatusWidth,
		ErrorMarker: DefaultErrorMarker,
	}
}

// Validate checks the configuration for consistency.
func (c Config) Validate() error {
	if c.Addr == "" {
		return errors.New("server address is required")
	}
	if c.StatusWidth <= 0 {
		return fmt.Errorf("status width must be positive, got %d", c.StatusWidth)
	}
	if c.BufferSize < c.StatusWidth {
		return fmt.Errorf("buffer size %d is smaller than status width %d", c.BufferSize, c.StatusWidth)
	}
	if len(c.ErrorMarker) != c.StatusWidth {
		return fmt.Errorf("error marker %q does not match status width %d", c.ErrorMarker, c.StatusWidth)
	}
	if c.DialTimeout < 0 || c.IOTimeout < 0 {
		return errors.New("timeouts must not be negative")
	}
	return nil
}

// Response is a parsed server response.
type Response struct {
	// Status is the leading status token.
	Status string
	// Payload is everything after the status token.
	Payload []byte
	// BytesSent is the encoded request size.
	BytesSent int64
}

// Caller performs a single request/response exchange.
type Caller interface {
	Call(ctx context.Context, frame *Frame, mode ReadMode) (*Response, error)
}

// Client is a connection-per-call protocol client.
// It holds no connection state and is safe for concurrent use.
type Client struct {
	cfg    Config
	dialer net.Dialer
}

// NewClient creates a client from cfg.
func NewClient(cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid client config: %w", err)
	}
	return &Client{
		cfg:    cfg,
		dialer: net.Dialer{Timeout: cfg.DialTimeout},
	}, nil
}

// Config returns the client configuration.
func (c *Client) Config() Config {
	return c.cfg
}

// Call opens a connection, sends frame, and reads the response using mode.
// The connection is closed before Call returns.
func (c *Client) Call(ctx context.Context, frame *Frame, mode ReadMode) (*Response, error) {
	op := frame.Name

	conn, err := c.dialer.DialContext(ctx, "tcp", c.cfg.Addr)
	if err != nil {
		return nil, c.transportError(ctx, op, "dial "+c.cfg.Addr, err)
	}
	defer iox.DiscardClose(conn)

	stop := iox.CloseOnDone(ctx, conn)
	defer stop()

	if c.cfg.IOTimeout > 0 {
		if err := conn.SetDeadline(time.Now().Add(c.cfg.IOTimeout)); err != nil {
			return nil, c.transportError(ctx, op, "set deadline", err)
		}
	}

	w := bufio.NewWriterSize(conn, c.cfg.BufferSize)
	sent, err := frame.WriteTo(w)
	if err == nil {
		err = w.Flush()
	}
	if err != nil {
		if errors.Is(err, ErrShortSource) {
			return nil, &Error{Kind: KindSource, Op: op, Msg: "read request source", Err: err}
		}
		return nil, c.transportError(ctx, op, "send", err)
	}

	raw, err := c.receive(conn, mode)
	if err != nil {
		return nil, c.transportError(ctx, op, "receive", err)
	}

	resp, err := c.parse(op, raw)
	if err != nil {
		return nil, err
	}
	resp.BytesSent = sent
	return resp, nil
}

func (c *Client) receive(conn net.Conn, mode ReadMode) ([]byte, error) {
	if mode == ReadBounded {
		buf := make([]byte, c.cfg.BufferSize)
		n, err := io.ReadAtLeast(conn, buf, c.cfg.StatusWidth)
		if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, err
		}
		return buf[:n], nil
	}
	return io.ReadAll(conn)
}

func (c *Client) parse(op string, raw []byte) (*Response, error) {
	if len(raw) < c.cfg.StatusWidth {
		return nil, ProtocolViolation(op, "response of %d bytes is shorter than status width %d", len(raw), c.cfg.StatusWidth)
	}
	status := string(raw[:c.cfg.StatusWidth])
	if status == c.cfg.ErrorMarker {
		return nil, &Error{Kind: KindServer, Op: op, Msg: "server reported an error"}
	}
	return &Response{Status: status, Payload: raw[c.cfg.StatusWidth:]}, nil
}

// transportError builds a KindConnection error, surfacing cancellation as
// the context error so callers can test it with errors.Is.
func (c *Client) transportError(ctx context.Context, op, msg string, err error) error {
	if ctxErr := ctx.Err(); ctxErr != nil {
		return &Error{Kind: KindConnection, Op: op, Msg: msg, Err: ctxErr}
	}
	return &Error{Kind: KindConnection, Op: op, Msg: msg, Err: err}
}
