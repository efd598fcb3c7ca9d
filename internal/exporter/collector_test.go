package exporter

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

type stubSource struct {
	snapshot *models.MetricsSnapshot
}

func (s *stubSource) Latest(ctx context.Context) (*models.MetricsSnapshot, error) {
	if s.snapshot == nil {
		return nil, internalerrors.ErrSnapshotUnavailable
	}
	return s.snapshot, nil
}

func testSnapshot() *models.MetricsSnapshot {
	return &models.MetricsSnapshot{
		TimestampMillis: 1_700_000_000_000,
		Heap: models.HeapMetrics{
			Used:      1024,
			Committed: 4096,
			Max:       models.Int64(1 << 30),
			Pools: []models.MemoryPool{
				{
					Name:            "heap-objects",
					Kind:            models.PoolHeap,
					Usage:           models.MemoryPoolUsage{Used: 1024, Committed: 4096},
					CollectionUsage: &models.MemoryPoolUsage{Used: 512, Committed: 4096},
				},
				{Name: "stacks", Kind: models.PoolNonHeap, Usage: models.MemoryPoolUsage{Used: 64, Committed: 64}},
			},
		},
		Threads: models.ThreadMetrics{
			ThreadCount:             3,
			PeakThreadCount:         5,
			TotalStartedThreadCount: 12,
			StateCounts:             map[string]int64{models.StateRunnable: 1, models.StateWaiting: 2},
		},
		Classes:        models.ClassMetrics{LoadedClassCount: 20, TotalLoadedClassCount: 20},
		StringTable:    &models.StringTableMetrics{Available: false},
		RecentGcEvents: []models.GcEvent{{GcName: "go", DurationMillis: 250}},
	}
}

func scrape(t *testing.T, reg *prometheus.Registry) string {
	t.Helper()
	logger, err := zap.NewDevelopment()
	require.NoError(t, err)

	srv := httptest.NewServer(Handler(reg, logger.Sugar()))
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return string(body)
}

func TestCollector_Exposition(t *testing.T) {
	reg := NewRegistry(NewCollector(&stubSource{snapshot: testSnapshot()}, nil))

	body := scrape(t, reg)

	assert.Contains(t, body, "eidolon_heap_used_bytes 1024")
	assert.Contains(t, body, "eidolon_heap_committed_bytes 4096")
	assert.Contains(t, body, `eidolon_memory_pool_used_bytes{kind="HEAP",pool="heap-objects"} 1024`)
	assert.Contains(t, body, `eidolon_memory_pool_collection_used_bytes{kind="HEAP",pool="heap-objects"} 512`)
	assert.NotContains(t, body, `eidolon_memory_pool_collection_used_bytes{kind="NON_HEAP"`)
	assert.Contains(t, body, `eidolon_threads_state{state="WAITING"} 2`)
	assert.Contains(t, body, `eidolon_threads_state{state="BLOCKED"} 0`)
	assert.Contains(t, body, "eidolon_threads_started_total 12")
	assert.Contains(t, body, "eidolon_modules_loaded 20")
	assert.Contains(t, body, "eidolon_string_table_available 0")
	assert.Contains(t, body, "eidolon_gc_last_duration_seconds 0.25")
	assert.Contains(t, body, "eidolon_gc_events_retained 1")
}

func TestCollector_NoSnapshotYet(t *testing.T) {
	reg := NewRegistry(NewCollector(&stubSource{}, nil))

	body := scrape(t, reg)
	assert.False(t, strings.Contains(body, "eidolon_heap_used_bytes"))
}

func TestNewRegistry_Independent(t *testing.T) {
	// Two agents in one process each get their own registry
	first := NewRegistry(NewCollector(&stubSource{}, nil))
	second := NewRegistry(NewCollector(&stubSource{}, nil))
	assert.NotSame(t, first, second)
}
