package wire

import (
	"context"

	"github.com/pithecene-io/docbench/metrics"
)

// InstrumentedCaller wraps a Caller and records every exchange into a
// metrics.Collector. A nil collector records nothing.
type InstrumentedCaller struct {
	next      Caller
	collector *metrics.Collector
}

// NewInstrumentedCaller wraps next.
func NewInstrumentedCaller(next Caller, collector *metrics.Collector) *InstrumentedCaller {
	return &InstrumentedCaller{next: next, collector: collector}
}

// Call delegates to the wrapped Caller and records the result.
func (c *InstrumentedCaller) Call(ctx context.Context, frame *Frame, mode ReadMode) (*Response, error) {
	resp, err := c.next.Call(ctx, frame, mode)
	if err != nil {
		kind := "unknown"
		if k, ok := KindOf(err); ok {
			kind = k.String()
		}
		c.collector.RecordCall(frame.Name, kind, 0, 0)
		return nil, err
	}
	received := int64(len(resp.Status) + len(resp.Payload))
	c.collector.RecordCall(frame.Name, "", resp.BytesSent, received)
	return resp, nil
}
