// Package gcwatch reports completed garbage collection cycles of the host process.
//
// A sentinel object with a finalizer is kept permanently unreachable. Every time the
// collector frees it the finalizer goroutine wakes up, reads the GC statistics, emits one
// event per cycle completed since the previous wake-up and arms a fresh sentinel.
package gcwatch

import (
	"runtime"
	"runtime/debug"
	"runtime/metrics"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	models "github.com/Schera-ole/eidolon/internal/model"
)

const (
	// CollectorName is the gcName carried by every event.
	CollectorName = "go-concurrent-mark-sweep"

	ActionEndOfCycle = "end of GC cycle"

	CauseForced     = "forced"
	CauseHeapTarget = "heap target"

	forcedCyclesMetric = "/gc/cycles/forced:gc-cycles"
)

// Handler receives GC events on the runtime finalizer goroutine. It must return quickly.
type Handler func(models.GcEvent)

// sentinel is large enough to skip the tiny allocator, whose blocks are freed in batches.
type sentinel struct {
	gen uint64
	_   [16]byte
}

// Watcher turns GC cycles into GcEvent values.
type Watcher struct {
	logger  *zap.SugaredLogger
	handler Handler
	include map[string]struct{}

	// gen identifies the armed sentinel chain; bumping it orphans the current chain
	gen    atomic.Uint64
	active atomic.Bool

	mu         sync.Mutex
	lastNumGC  int64
	lastForced uint64
	forced     []metrics.Sample
}

// New creates a stopped watcher. includeNames restricts emitted events to the given
// collector names; empty means everything.
func New(handler Handler, logger *zap.SugaredLogger, includeNames []string) *Watcher {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	w := &Watcher{
		logger:  logger,
		handler: handler,
		forced:  []metrics.Sample{{Name: forcedCyclesMetric}},
	}
	if len(includeNames) > 0 {
		w.include = make(map[string]struct{}, len(includeNames))
		for _, name := range includeNames {
			w.include[name] = struct{}{}
		}
	}
	return w
}

// Start arms the watcher. Cycles completed before Start are not reported.
// Calling Start on a running watcher does nothing.
func (w *Watcher) Start() {
	if !w.active.CompareAndSwap(false, true) {
		return
	}

	var stats debug.GCStats
	debug.ReadGCStats(&stats)

	w.mu.Lock()
	w.lastNumGC = stats.NumGC
	w.lastForced = w.readForced()
	w.mu.Unlock()

	if _, ok := w.include[CollectorName]; len(w.include) > 0 && !ok {
		w.logger.Infow("gc events filtered out by allow-list", "collector", CollectorName)
	}
	w.arm(w.gen.Add(1))
}

// Stop disarms the watcher. A sentinel still pending is collected without re-arming.
func (w *Watcher) Stop() {
	if w.active.CompareAndSwap(true, false) {
		w.gen.Add(1)
	}
}

// Running reports whether the watcher is armed.
func (w *Watcher) Running() bool {
	return w.active.Load()
}

func (w *Watcher) arm(gen uint64) {
	runtime.SetFinalizer(&sentinel{gen: gen}, w.onCollected)
}

func (w *Watcher) onCollected(s *sentinel) {
	if !w.active.Load() || s.gen != w.gen.Load() {
		return
	}
	defer w.arm(s.gen)
	defer func() {
		if r := recover(); r != nil {
			w.logger.Errorw("gc event handler panicked", "panic", r)
		}
	}()
	w.collect()
}

func (w *Watcher) collect() {
	var stats debug.GCStats
	debug.ReadGCStats(&stats)

	w.mu.Lock()
	cycles := stats.NumGC - w.lastNumGC
	forced := w.readForced()
	forcedDelta := int64(0)
	if forced > w.lastForced {
		forcedDelta = int64(forced - w.lastForced)
	}
	w.lastNumGC = stats.NumGC
	w.lastForced = forced
	w.mu.Unlock()

	for _, event := range eventsFor(&stats, cycles, forcedDelta) {
		if !w.accepts(event.GcName) {
			continue
		}
		w.handler(event)
	}
}

func (w *Watcher) accepts(name string) bool {
	if len(w.include) == 0 {
		return true
	}
	_, ok := w.include[name]
	return ok
}

// readForced must be called with mu held.
func (w *Watcher) readForced() uint64 {
	metrics.Read(w.forced)
	if w.forced[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return w.forced[0].Value.Uint64()
}

// eventsFor builds events for the newest cycles recorded in stats, oldest first.
// The newest forced cycles are attributed to explicit collection requests.
func eventsFor(stats *debug.GCStats, cycles, forced int64) []models.GcEvent {
	n := int(cycles)
	if n > len(stats.Pause) {
		n = len(stats.Pause)
	}
	if n > len(stats.PauseEnd) {
		n = len(stats.PauseEnd)
	}
	if n <= 0 {
		return nil
	}

	events := make([]models.GcEvent, 0, n)
	for i := n - 1; i >= 0; i-- {
		pause := stats.Pause[i]
		cause := CauseHeapTarget
		if int64(i) < forced {
			cause = CauseForced
		}
		events = append(events, models.GcEvent{
			GcName:          CollectorName,
			GcAction:        ActionEndOfCycle,
			GcCause:         cause,
			StartTimeMillis: stats.PauseEnd[i].Add(-pause).UnixMilli(),
			DurationMillis:  durationMillis(pause),
		})
	}
	return events
}

// durationMillis rounds sub-millisecond pauses up so a recorded cycle never reports zero.
func durationMillis(d time.Duration) int64 {
	if d <= 0 {
		return 0
	}
	return int64((d + time.Millisecond - 1) / time.Millisecond)
}
