// Package broadcast delivers published snapshots to push subscribers.
//
// Every subscriber owns a bounded data queue drained by its own writer goroutine, so
// the broadcaster only ever performs non-blocking enqueues. When a queue is full the
// oldest pending payload is dropped. A subscriber that keeps dropping payloads, or
// whose connection fails a write, is disconnected.
package broadcast

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
)

// controlQueueSize bounds pending command replies per subscriber.
const controlQueueSize = 4

// Close reasons reported to the remote side.
const (
	ReasonShutdown    = "server shutdown"
	ReasonSlow        = "subscriber too slow"
	ReasonWriteFailed = "write failed"
	ReasonGone        = "connection closed"
)

// Conn is the transport of one subscriber. Write and Close may be called concurrently.
type Conn interface {
	Write(ctx context.Context, payload []byte) error
	Close(reason string) error
}

// Subscriber is one live push connection.
type Subscriber struct {
	id     uuid.UUID
	conn   Conn
	logger *zap.SugaredLogger

	queue   chan []byte
	control chan []byte

	writeTimeout time.Duration
	maxFailures  int64
	failures     atomic.Int64
	delivered    atomic.Int64

	done      chan struct{}
	closeOnce sync.Once
	onClose   func(*Subscriber)
	writer    sync.WaitGroup
}

func newSubscriber(conn Conn, opts Options, logger *zap.SugaredLogger, onClose func(*Subscriber)) *Subscriber {
	s := &Subscriber{
		id:           uuid.New(),
		conn:         conn,
		logger:       logger,
		queue:        make(chan []byte, opts.QueueSize),
		control:      make(chan []byte, controlQueueSize),
		writeTimeout: opts.WriteTimeout,
		maxFailures:  int64(opts.MaxFailures),
		done:         make(chan struct{}),
		onClose:      onClose,
	}
	s.writer.Add(1)
	go s.run()
	return s
}

// ID returns the subscriber id.
func (s *Subscriber) ID() uuid.UUID {
	return s.id
}

// Done is closed once the subscriber is disconnected.
func (s *Subscriber) Done() <-chan struct{} {
	return s.done
}

// Delivered returns the number of messages written so far, replies included.
func (s *Subscriber) Delivered() int64 {
	return s.delivered.Load()
}

// Enqueue queues a broadcast payload without blocking. When the queue is full the
// oldest pending payload is dropped; too many consecutive drops disconnect the subscriber.
func (s *Subscriber) Enqueue(payload []byte) error {
	for {
		select {
		case <-s.done:
			return internalerrors.ErrSubscriberClosed
		default:
		}

		select {
		case s.queue <- payload:
			return nil
		default:
		}

		select {
		case <-s.queue:
			if s.failures.Add(1) > s.maxFailures {
				s.Close(ReasonSlow)
				return fmt.Errorf("%w: %s", internalerrors.ErrSubscriberTooSlow, s.id)
			}
		default:
		}
	}
}

// SendControl queues an out-of-band reply, waiting for room in the control queue.
// It never touches the data queue, so the wait only slows this subscriber's commands.
func (s *Subscriber) SendControl(ctx context.Context, payload []byte) error {
	select {
	case <-s.done:
		return internalerrors.ErrSubscriberClosed
	default:
	}
	select {
	case s.control <- payload:
		return nil
	case <-s.done:
		return internalerrors.ErrSubscriberClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close disconnects the subscriber without waiting for the transport to finish its
// close handshake. It is safe to call more than once.
func (s *Subscriber) Close(reason string) {
	s.closeOnce.Do(func() {
		// Counted before done is closed so Wait after Done covers the transport close
		s.writer.Add(1)
		close(s.done)
		if s.onClose != nil {
			s.onClose(s)
		}
		go func() {
			defer s.writer.Done()
			if err := s.conn.Close(reason); err != nil {
				s.logger.Debugw("subscriber close", "id", s.id, "error", err)
			}
		}()
	})
}

// Wait blocks until the writer goroutine has exited and the transport is closed.
func (s *Subscriber) Wait() {
	s.writer.Wait()
}

func (s *Subscriber) run() {
	defer s.writer.Done()
	for {
		// Replies go out ahead of queued broadcasts
		select {
		case <-s.done:
			return
		case msg := <-s.control:
			if !s.write(msg) {
				return
			}
			continue
		default:
		}

		select {
		case <-s.done:
			return
		case msg := <-s.control:
			if !s.write(msg) {
				return
			}
		case msg := <-s.queue:
			if !s.write(msg) {
				return
			}
			s.failures.Store(0)
		}
	}
}

func (s *Subscriber) write(msg []byte) bool {
	ctx, cancel := context.WithTimeout(context.Background(), s.writeTimeout)
	defer cancel()

	if err := s.conn.Write(ctx, msg); err != nil {
		s.logger.Debugw("subscriber write failed", "id", s.id, "error", err)
		s.Close(ReasonWriteFailed)
		return false
	}
	s.delivered.Add(1)
	return true
}
