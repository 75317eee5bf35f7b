package webmod

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
)

// FrameWriter delivers stream frames to the client. Implementations flush
// each frame.
type FrameWriter interface {
	WriteFrame(frame []byte) error
}

// Stream is the producer side of a streamed response. Frames queue without
// bound until the transport writes them. A stream closes with its
// connection, or on its own when its request is cancelled; several streams
// can share one multiplexed connection.
type Stream struct {
	conn   *ConnectionContext
	closed atomic.Bool

	mu           sync.Mutex
	frames       [][]byte
	consumerGone bool
	notify       chan struct{}
}

func newStream(conn *ConnectionContext) *Stream {
	return &Stream{conn: conn, notify: make(chan struct{}, 1)}
}

// SendBytes queues a raw frame. It fails with ErrStreamClosed once the
// connection has closed and with ErrStreamSend when nothing drains the
// stream any more.
func (s *Stream) SendBytes(b []byte) error {
	if s.IsClosed() {
		return ErrStreamClosed
	}
	s.mu.Lock()
	if s.consumerGone {
		s.mu.Unlock()
		return ErrStreamSend
	}
	s.frames = append(s.frames, append([]byte(nil), b...))
	s.mu.Unlock()

	select {
	case s.notify <- struct{}{}:
	default:
	}
	return nil
}

// SendEvent queues e as a server-sent event frame.
func (s *Stream) SendEvent(e Event) error {
	return s.SendBytes(FormatEvent(e))
}

// IsClosed reports whether the stream or its connection has closed.
func (s *Stream) IsClosed() bool {
	return s.closed.Load() || s.conn.IsClosed()
}

func (s *Stream) take() [][]byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	frames := s.frames
	s.frames = nil
	return frames
}

func (s *Stream) detach() {
	s.mu.Lock()
	s.consumerGone = true
	s.frames = nil
	s.mu.Unlock()
}

// write hands queued frames to w, stopping as soon as the connection closes.
func (s *Stream) write(w FrameWriter) error {
	for _, frame := range s.take() {
		if s.IsClosed() {
			return ErrStreamClosed
		}
		if err := w.WriteFrame(frame); err != nil {
			return err
		}
	}
	return nil
}

// PumpStream runs fn and copies its frames to w until fn returns, ctx is
// cancelled, a write fails or the connection closes. When pumping stops
// early the stream is marked closed, the producer's context is cancelled
// and later sends fail. The connection itself is left alone: other
// requests may still be using it.
//
// The returned error is the producer's error, or the reason pumping
// stopped early.
func PumpStream(ctx context.Context, conn *ConnectionContext, fn StreamFunc, w FrameWriter) error {
	if conn == nil {
		conn = NewConnectionContext("", nil)
	}
	end := conn.begin()
	defer end()

	s := newStream(conn)
	producerCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	done := make(chan error, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- fmt.Errorf("stream producer panicked: %v", r)
			}
		}()
		done <- fn(producerCtx, s)
	}()

	abort := func(reason error) error {
		s.closed.Store(true)
		s.detach()
		cancel()
		return reason
	}

	for {
		if err := s.write(w); err != nil {
			return abort(err)
		}
		select {
		case <-ctx.Done():
			return abort(ctx.Err())
		case <-conn.Done():
			return abort(ErrStreamClosed)
		case err := <-done:
			if ctx.Err() != nil {
				return abort(ctx.Err())
			}
			if werr := s.write(w); werr != nil {
				return abort(werr)
			}
			s.detach()
			return err
		case <-s.notify:
		}
	}
}
