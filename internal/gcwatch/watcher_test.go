package gcwatch

import (
	"runtime"
	"runtime/debug"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	models "github.com/Schera-ole/eidolon/internal/model"
)

type recorder struct {
	mu     sync.Mutex
	events []models.GcEvent
}

func (r *recorder) record(e models.GcEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

func (r *recorder) copy() []models.GcEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]models.GcEvent(nil), r.events...)
}

func TestWatcher_ReportsCycles(t *testing.T) {
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	rec := &recorder{}
	w := New(rec.record, logger.Sugar(), nil)
	w.Start()
	defer w.Stop()
	assert.True(t, w.Running())

	// Each forced cycle frees the armed sentinel
	require.Eventually(t, func() bool {
		runtime.GC()
		return rec.len() >= 2
	}, 5*time.Second, 20*time.Millisecond)

	events := rec.copy()
	for i, e := range events {
		assert.Equal(t, CollectorName, e.GcName)
		assert.Equal(t, ActionEndOfCycle, e.GcAction)
		assert.NotEmpty(t, e.GcCause)
		assert.Positive(t, e.StartTimeMillis)
		assert.GreaterOrEqual(t, e.DurationMillis, int64(0))
		if i > 0 {
			assert.GreaterOrEqual(t, e.StartTimeMillis, events[i-1].StartTimeMillis)
		}
	}
}

func TestWatcher_StopDisarms(t *testing.T) {
	rec := &recorder{}
	w := New(rec.record, nil, nil)
	w.Start()

	require.Eventually(t, func() bool {
		runtime.GC()
		return rec.len() >= 1
	}, 5*time.Second, 20*time.Millisecond)

	w.Stop()
	assert.False(t, w.Running())

	// Let the orphaned sentinel drain, then make sure nothing else arrives
	runtime.GC()
	time.Sleep(50 * time.Millisecond)
	before := rec.len()
	for i := 0; i < 3; i++ {
		runtime.GC()
	}
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, rec.len())
}

func TestWatcher_AllowList(t *testing.T) {
	rec := &recorder{}
	w := New(rec.record, nil, []string{"some-other-collector"})
	w.Start()
	defer w.Stop()

	for i := 0; i < 3; i++ {
		runtime.GC()
		time.Sleep(10 * time.Millisecond)
	}
	assert.Equal(t, 0, rec.len())
}

func TestWatcher_StartTwice(t *testing.T) {
	rec := &recorder{}
	w := New(rec.record, nil, nil)
	w.Start()
	gen := w.gen.Load()
	w.Start()
	assert.Equal(t, gen, w.gen.Load())
	w.Stop()
	w.Stop()
	assert.False(t, w.Running())
}

func TestWatcher_HandlerPanicKeepsWatching(t *testing.T) {
	var mu sync.Mutex
	calls := 0
	w := New(func(models.GcEvent) {
		mu.Lock()
		calls++
		mu.Unlock()
		panic("boom")
	}, nil, nil)
	w.Start()
	defer w.Stop()

	require.Eventually(t, func() bool {
		runtime.GC()
		mu.Lock()
		defer mu.Unlock()
		return calls >= 2
	}, 5*time.Second, 20*time.Millisecond)
}

func TestEventsFor(t *testing.T) {
	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	stats := &debug.GCStats{
		NumGC: 10,
		// Most recent first
		Pause:    []time.Duration{3 * time.Millisecond, 200 * time.Microsecond, 2 * time.Millisecond},
		PauseEnd: []time.Time{base.Add(2 * time.Second), base.Add(time.Second), base},
	}

	events := eventsFor(stats, 3, 1)
	require.Len(t, events, 3)

	// Oldest first
	assert.Equal(t, base.Add(-2*time.Millisecond).UnixMilli(), events[0].StartTimeMillis)
	assert.Equal(t, int64(2), events[0].DurationMillis)
	assert.Equal(t, CauseHeapTarget, events[0].GcCause)

	assert.Equal(t, int64(1), events[1].DurationMillis)
	assert.Equal(t, CauseHeapTarget, events[1].GcCause)

	assert.Equal(t, int64(3), events[2].DurationMillis)
	assert.Equal(t, CauseForced, events[2].GcCause)
}

func TestEventsFor_Bounds(t *testing.T) {
	stats := &debug.GCStats{
		Pause:    []time.Duration{time.Millisecond},
		PauseEnd: []time.Time{time.Now()},
	}
	assert.Empty(t, eventsFor(stats, 0, 0))
	assert.Empty(t, eventsFor(stats, -2, 0))
	assert.Len(t, eventsFor(stats, 40, 0), 1)
}
