// Package iox provides I/O helpers for resource cleanup.
package iox

import (
	"context"
	"io"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(conn)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(listener))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// CloseOnDone closes c as soon as ctx is done, unblocking any goroutine
// parked in a Read or Write on it. The returned stop function detaches the
// watcher and must be called once the caller is finished with c:
//
//	stop := iox.CloseOnDone(ctx, conn)
//	defer stop()
func CloseOnDone(ctx context.Context, c io.Closer) (stop func()) {
	if ctx.Done() == nil {
		return func() {}
	}
	detach := context.AfterFunc(ctx, func() { _ = c.Close() })
	return func() { detach() }
}
