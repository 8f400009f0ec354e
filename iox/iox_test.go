package iox

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"
)

type spyCloser struct{ closed atomic.Bool }

func (s *spyCloser) Close() error { s.closed.Store(true); return errors.New("ignored") }

func TestDiscardClose(t *testing.T) {
	s := &spyCloser{}
	DiscardClose(s)
	if !s.closed.Load() {
		t.Fatal("Close was not called")
	}
}

func TestCloseFunc(t *testing.T) {
	s := &spyCloser{}
	fn := CloseFunc(s)
	if s.closed.Load() {
		t.Fatal("Close called before invoking returned func")
	}
	fn()
	if !s.closed.Load() {
		t.Fatal("Close was not called")
	}
}

func TestCloseOnDone_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := &spyCloser{}
	stop := CloseOnDone(ctx, s)
	defer stop()

	cancel()
	deadline := time.Now().Add(2 * time.Second)
	for !s.closed.Load() {
		if time.Now().After(deadline) {
			t.Fatal("Close was not called after cancel")
		}
		time.Sleep(time.Millisecond)
	}
}

func TestCloseOnDone_StopDetaches(t *testing.T) {
	ctx, cancel := context.WithCancel(t.Context())
	s := &spyCloser{}
	stop := CloseOnDone(ctx, s)
	stop()
	cancel()

	time.Sleep(20 * time.Millisecond)
	if s.closed.Load() {
		t.Fatal("Close called after stop")
	}
}

func TestCloseOnDone_BackgroundIsNoop(t *testing.T) {
	s := &spyCloser{}
	stop := CloseOnDone(context.Background(), s)
	stop()
	if s.closed.Load() {
		t.Fatal("Close called for a context that is never done")
	}
}
