package broadcast

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/config"
	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// Commands accepted from subscribers and the fixed liveness reply.
const (
	CommandPing     = "ping"
	CommandSnapshot = "snapshot"
	ReplyPong       = "pong"
)

var noDataPayload, _ = json.Marshal(models.NoData{Status: models.NoDataStatus})

// NoDataPayload returns the document sent while no snapshot exists.
func NoDataPayload() []byte {
	return append([]byte(nil), noDataPayload...)
}

// PayloadSource returns the latest serialized snapshot.
type PayloadSource interface {
	LatestPayload(ctx context.Context) ([]byte, error)
}

// Options tunes every subscriber of a registry.
type Options struct {
	QueueSize       int
	MaxFailures     int
	WriteTimeout    time.Duration
	WelcomeSnapshot bool
}

// OptionsFromConfig extracts the delivery options of cfg.
func OptionsFromConfig(cfg *config.AgentConfig) Options {
	return Options{
		QueueSize:       cfg.QueueSize,
		MaxFailures:     cfg.MaxFailures,
		WriteTimeout:    cfg.WriteTimeout,
		WelcomeSnapshot: cfg.WelcomeSnapshot,
	}
}

// Registry holds the connected subscribers.
type Registry struct {
	logger *zap.SugaredLogger
	source PayloadSource
	opts   Options

	mu     sync.RWMutex
	subs   map[uuid.UUID]*Subscriber
	closed bool
}

// NewRegistry creates an empty registry. source answers snapshot commands.
func NewRegistry(source PayloadSource, opts Options, logger *zap.SugaredLogger) *Registry {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	return &Registry{
		logger: logger,
		source: source,
		opts:   opts,
		subs:   make(map[uuid.UUID]*Subscriber),
	}
}

// Add registers a subscriber for conn. It fails with ErrRegistryClosed after CloseAll.
// When enabled, the latest snapshot is queued as a welcome message.
func (r *Registry) Add(ctx context.Context, conn Conn) (*Subscriber, error) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil, internalerrors.ErrRegistryClosed
	}
	sub := newSubscriber(conn, r.opts, r.logger, func(s *Subscriber) {
		r.Remove(s.ID())
	})
	r.subs[sub.ID()] = sub
	r.mu.Unlock()

	r.logger.Debugw("subscriber connected", "id", sub.ID())

	if r.opts.WelcomeSnapshot {
		if payload, err := r.source.LatestPayload(ctx); err == nil {
			_ = sub.SendControl(ctx, payload)
		}
	}
	return sub, nil
}

// Remove unregisters the subscriber with the given id.
func (r *Registry) Remove(id uuid.UUID) {
	r.mu.Lock()
	_, ok := r.subs[id]
	delete(r.subs, id)
	r.mu.Unlock()
	if ok {
		r.logger.Debugw("subscriber removed", "id", id)
	}
}

// Size returns the number of registered subscribers.
func (r *Registry) Size() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.subs)
}

// Broadcast hands payload to every subscriber registered at call time and returns the
// number of successful enqueues. Subscribers removed concurrently do not affect the others.
func (r *Registry) Broadcast(payload []byte) int {
	r.mu.RLock()
	subs := make([]*Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	r.mu.RUnlock()

	queued := 0
	for _, sub := range subs {
		if err := sub.Enqueue(payload); err != nil {
			if errors.Is(err, internalerrors.ErrSubscriberTooSlow) {
				r.logger.Infow("slow subscriber disconnected", "id", sub.ID())
			}
			continue
		}
		queued++
	}
	return queued
}

// HandleCommand processes one inbound text command for sub. Unknown commands are ignored.
func (r *Registry) HandleCommand(ctx context.Context, sub *Subscriber, command string) error {
	switch strings.ToLower(strings.TrimSpace(command)) {
	case CommandPing:
		return sub.SendControl(ctx, []byte(ReplyPong))
	case CommandSnapshot:
		payload, err := r.source.LatestPayload(ctx)
		if err != nil {
			if !errors.Is(err, internalerrors.ErrSnapshotUnavailable) {
				r.logger.Warnw("latest snapshot unreadable", "error", err)
			}
			payload = NoDataPayload()
		}
		return sub.SendControl(ctx, payload)
	default:
		r.logger.Debugw("unknown command ignored", "id", sub.ID(), "command", command)
		return nil
	}
}

// CloseAll disconnects every subscriber, waits for their writers and rejects later Adds.
func (r *Registry) CloseAll() {
	r.mu.Lock()
	r.closed = true
	subs := make([]*Subscriber, 0, len(r.subs))
	for _, sub := range r.subs {
		subs = append(subs, sub)
	}
	clear(r.subs)
	r.mu.Unlock()

	for _, sub := range subs {
		sub.Close(ReasonShutdown)
	}
	for _, sub := range subs {
		sub.Wait()
	}
}
