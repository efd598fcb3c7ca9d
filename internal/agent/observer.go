package agent

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/coder/websocket"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Observer follows the push stream of one agent.
type Observer struct {
	url       string
	ping      time.Duration
	delays    []time.Duration
	onSummary func(Summary)
	logger    *zap.SugaredLogger
}

// NewObserver creates an observer for cfg. onSummary, when not nil, is called with every
// snapshot received.
func NewObserver(cfg *ObserverConfig, onSummary func(Summary), logger *zap.SugaredLogger) *Observer {
	return &Observer{
		url:       cfg.StreamURL(),
		ping:      cfg.Ping(),
		delays:    []time.Duration{1 * time.Second, 3 * time.Second, 5 * time.Second},
		onSummary: onSummary,
		logger:    logger,
	}
}

// Run connects and follows the stream until ctx is done or the agent closes it.
// A shutdown of the agent is not an error.
func (o *Observer) Run(ctx context.Context) error {
	conn, err := o.connect(ctx)
	if err != nil {
		return err
	}
	defer conn.CloseNow()

	if err := conn.Write(ctx, websocket.MessageText, []byte("snapshot")); err != nil {
		return fmt.Errorf("request snapshot: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return o.read(gctx, conn)
	})
	if o.ping > 0 {
		g.Go(func() error {
			return o.pingLoop(gctx, conn)
		})
	}
	err = g.Wait()
	if ctx.Err() != nil {
		conn.Close(websocket.StatusNormalClosure, "observer stopped")
		return nil
	}
	switch websocket.CloseStatus(err) {
	case websocket.StatusGoingAway, websocket.StatusNormalClosure:
		o.logger.Infow("stream closed by agent", "error", err)
		return nil
	}
	return err
}

func (o *Observer) connect(ctx context.Context) (*websocket.Conn, error) {
	var lastErr error
	for attempt := 0; attempt <= len(o.delays); attempt++ {
		if attempt > 0 {
			delay := o.delays[attempt-1]
			o.logger.Infow("retrying connection", "attempt", attempt, "delay", delay)
			select {
			case <-ctx.Done():
				return nil, ctx.Err()
			case <-time.After(delay):
			}
		}

		conn, _, err := websocket.Dial(ctx, o.url, nil)
		if err == nil {
			o.logger.Infow("connected", "url", o.url)
			return conn, nil
		}
		lastErr = fmt.Errorf("dial %s: %w", o.url, err)
		if !isRetryableError(err) {
			return nil, lastErr
		}
	}
	return nil, fmt.Errorf("failed to connect after %d attempts: %w", len(o.delays)+1, lastErr)
}

func (o *Observer) read(ctx context.Context, conn *websocket.Conn) error {
	for {
		typ, msg, err := conn.Read(ctx)
		if err != nil {
			return err
		}
		if typ != websocket.MessageText {
			continue
		}
		o.handle(msg)
	}
}

func (o *Observer) handle(msg []byte) {
	switch Classify(msg) {
	case KindSnapshot:
		summary, err := Summarize(msg)
		if err != nil {
			o.logger.Warnw("unreadable snapshot", "error", err)
			return
		}
		o.logger.Info(summary.String())
		if o.onSummary != nil {
			o.onSummary(summary)
		}
	case KindPong:
		o.logger.Debug("pong")
	case KindNoData:
		o.logger.Info("agent has no data yet")
	default:
		o.logger.Warnw("unexpected message", "size", len(msg))
	}
}

func (o *Observer) pingLoop(ctx context.Context, conn *websocket.Conn) error {
	ticker := time.NewTicker(o.ping)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			// A broken connection surfaces in the read loop.
			if err := conn.Write(ctx, websocket.MessageText, []byte("ping")); err != nil {
				o.logger.Debugw("send ping", "error", err)
				return nil
			}
		}
	}
}

func isRetryableError(err error) bool {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return false
	}

	// Check any network errors
	errStr := err.Error()
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "timeout") ||
		strings.Contains(errStr, "network is unreachable") ||
		strings.Contains(errStr, "no such host") ||
		strings.Contains(errStr, "connection reset by peer") {
		return true
	}

	return false
}
