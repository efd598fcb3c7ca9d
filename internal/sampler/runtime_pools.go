package sampler

import (
	"fmt"
	"math"
	"runtime/metrics"
	"sync"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// Memory pool names reported by RuntimePools.
const (
	PoolHeapObjects     = "heap-objects"
	PoolHeapFree        = "heap-free"
	PoolStacks          = "stacks"
	PoolRuntimeMetadata = "runtime-metadata"
	PoolProfiling       = "profiling-buckets"
	PoolOther           = "other"
)

const (
	heapLiveMetric = "/gc/heap/live:bytes"
	memLimitMetric = "/gc/gomemlimit:bytes"
	heapGoalMetric = "/gc/heap/goal:bytes"
	classesPrefix  = "/memory/classes/"
)

// runtimePool maps one pool onto a group of runtime/metrics memory classes.
// used sums the in-use classes, committed adds the retained-but-free ones.
type runtimePool struct {
	name     string
	kind     models.PoolKind
	used     []string
	reserved []string
	live     bool
	limit    HeapLimitReader

	// mu guards samples, which metrics.Read fills in place
	mu      sync.Mutex
	samples []metrics.Sample
}

func newRuntimePool(name string, kind models.PoolKind, used, reserved []string) *runtimePool {
	p := &runtimePool{name: name, kind: kind, used: used, reserved: reserved}
	for _, class := range append(append([]string(nil), used...), reserved...) {
		p.samples = append(p.samples, metrics.Sample{Name: classesPrefix + class})
	}
	return p
}

func (p *runtimePool) withCollectionUsage() *runtimePool {
	p.live = true
	p.samples = append(p.samples, metrics.Sample{Name: heapLiveMetric})
	return p
}

func (p *runtimePool) withLimit(limit HeapLimitReader) *runtimePool {
	p.limit = limit
	return p
}

func (p *runtimePool) Name() string {
	return p.name
}

func (p *runtimePool) Kind() models.PoolKind {
	return p.kind
}

func (p *runtimePool) Read() (PoolReading, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	metrics.Read(p.samples)

	var used, reserved int64
	for i, sample := range p.samples {
		if sample.Value.Kind() != metrics.KindUint64 {
			return PoolReading{}, fmt.Errorf("%w: %s: metric %s not supported", internalerrors.ErrPoolUnreadable, p.name, sample.Name)
		}
		v := clampUint64(sample.Value.Uint64())
		switch {
		case i < len(p.used):
			used += v
		case i < len(p.used)+len(p.reserved):
			reserved += v
		}
	}

	reading := PoolReading{
		Usage: models.MemoryPoolUsage{
			Used:      used,
			Committed: used + reserved,
		},
	}
	if p.limit != nil {
		if limit, ok := p.limit.HeapLimit(); ok {
			reading.Usage.Max = models.Int64(limit)
		}
	}
	if p.live {
		live := clampUint64(p.samples[len(p.samples)-1].Value.Uint64())
		reading.CollectionUsage = &models.MemoryPoolUsage{
			Used:      live,
			Committed: reading.Usage.Committed,
			Max:       reading.Usage.Max,
		}
	}
	return reading, nil
}

// RuntimePools returns the pools of the Go runtime, heap pools first.
func RuntimePools(limit HeapLimitReader) []PoolReader {
	return []PoolReader{
		newRuntimePool(PoolHeapObjects, models.PoolHeap,
			[]string{"heap/objects:bytes"},
			[]string{"heap/unused:bytes"},
		).withCollectionUsage().withLimit(limit),
		newRuntimePool(PoolHeapFree, models.PoolHeap,
			nil,
			[]string{"heap/free:bytes"},
		),
		newRuntimePool(PoolStacks, models.PoolNonHeap,
			[]string{"heap/stacks:bytes", "os-stacks:bytes"},
			nil,
		),
		newRuntimePool(PoolRuntimeMetadata, models.PoolNonHeap,
			[]string{"metadata/mcache/inuse:bytes", "metadata/mspan/inuse:bytes", "metadata/other:bytes"},
			[]string{"metadata/mcache/free:bytes", "metadata/mspan/free:bytes"},
		),
		newRuntimePool(PoolProfiling, models.PoolNonHeap,
			[]string{"profiling/buckets:bytes"},
			nil,
		),
		newRuntimePool(PoolOther, models.PoolNonHeap,
			[]string{"other:bytes"},
			nil,
		),
	}
}

// MemoryLimit reads the soft memory limit set through GOMEMLIMIT or debug.SetMemoryLimit.
type MemoryLimit struct{}

// HeapLimit reports the limit; ok is false when no limit is configured.
func (MemoryLimit) HeapLimit() (int64, bool) {
	sample := []metrics.Sample{{Name: memLimitMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0, false
	}
	v := sample[0].Value.Uint64()
	if v >= math.MaxInt64 {
		return 0, false
	}
	return int64(v), true
}

// HeapGoal reads the heap size the collector currently aims for; zero when unknown.
func HeapGoal() int64 {
	sample := []metrics.Sample{{Name: heapGoalMetric}}
	metrics.Read(sample)
	if sample[0].Value.Kind() != metrics.KindUint64 {
		return 0
	}
	return clampUint64(sample[0].Value.Uint64())
}

func clampUint64(v uint64) int64 {
	if v > math.MaxInt64 {
		return math.MaxInt64
	}
	return int64(v)
}
