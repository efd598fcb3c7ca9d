package history

import (
	"fmt"
	"sync"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/Schera-ole/eidolon/internal/model"
)

func TestNewRing(t *testing.T) {
	r := NewRing[int](4)
	assert.Equal(t, 4, r.Cap())
	assert.Equal(t, 0, r.Len())
	assert.NotNil(t, r.Snapshot())
	assert.Empty(t, r.Snapshot())

	// Negative capacity behaves like zero
	assert.Equal(t, 0, NewRing[int](-3).Cap())
}

func TestRing_EvictsOldest(t *testing.T) {
	r := NewRing[string](5)
	for i := 1; i <= 7; i++ {
		r.Append(fmt.Sprintf("e%d", i))
	}
	assert.Equal(t, []string{"e3", "e4", "e5", "e6", "e7"}, r.Snapshot())
	assert.Equal(t, 5, r.Len())
}

func TestRing_ZeroCapacity(t *testing.T) {
	r := NewRing[int](0)
	for i := 0; i < 10; i++ {
		r.Append(i)
	}
	assert.Empty(t, r.Snapshot())
	assert.Equal(t, 0, r.Len())
}

func TestRing_SnapshotIsIndependent(t *testing.T) {
	r := NewRing[int](3)
	r.Append(1)
	r.Append(2)

	snap := r.Snapshot()
	snap[0] = 100
	r.Append(3)

	assert.Equal(t, []int{1, 2, 3}, r.Snapshot())
	assert.Equal(t, []int{100, 2}, snap)
}

func TestRing_Reset(t *testing.T) {
	r := NewRing[int](2)
	r.Append(1)
	r.Append(2)
	r.Reset()
	assert.Empty(t, r.Snapshot())

	r.Append(3)
	assert.Equal(t, []int{3}, r.Snapshot())
}

func TestRing_ConcurrentAppendAndSnapshot(t *testing.T) {
	const (
		producers = 8
		perWorker = 500
		capacity  = 64
	)
	r := NewRing[models.GcEvent](capacity)

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				// Every field is derived from the same value so a torn copy is detectable
				v := int64(p*perWorker + i)
				r.Append(models.GcEvent{
					GcName:          fmt.Sprintf("gc-%d", v),
					GcAction:        fmt.Sprintf("action-%d", v),
					GcCause:         fmt.Sprintf("cause-%d", v),
					StartTimeMillis: v,
					DurationMillis:  v,
				})
			}
		}(p)
	}

	done := make(chan struct{})
	go func() {
		wg.Wait()
		close(done)
	}()

	for {
		for _, e := range r.Snapshot() {
			v := e.StartTimeMillis
			require.Equal(t, v, e.DurationMillis)
			require.Equal(t, fmt.Sprintf("gc-%d", v), e.GcName)
			require.Equal(t, fmt.Sprintf("action-%d", v), e.GcAction)
			require.Equal(t, fmt.Sprintf("cause-%d", v), e.GcCause)
		}
		select {
		case <-done:
			assert.Equal(t, capacity, r.Len())
			return
		default:
		}
	}
}

func TestRing_PerProducerOrderPreserved(t *testing.T) {
	r := NewRing[int](1000)
	var wg sync.WaitGroup
	for p := 0; p < 4; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < 250; i++ {
				r.Append(p*1000 + i)
			}
		}(p)
	}
	wg.Wait()

	snap := r.Snapshot()
	require.Len(t, snap, 1000)
	last := map[int]int{0: -1, 1: -1, 2: -1, 3: -1}
	for _, v := range snap {
		p, i := v/1000, v%1000
		assert.Greater(t, i, last[p], "producer %d out of order", p)
		last[p] = i
	}
}

// TestRing_KeepsLastC_PropertyBased verifies that after any sequence of appends the
// ring holds exactly the last min(n, capacity) values in arrival order.
func TestRing_KeepsLastC_PropertyBased(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 200
	properties := gopter.NewProperties(parameters)

	properties.Property("snapshot equals the tail of the input", prop.ForAll(
		func(capacity int, values []int) bool {
			r := NewRing[int](capacity)
			for _, v := range values {
				r.Append(v)
			}
			want := values
			if len(want) > capacity {
				want = want[len(want)-capacity:]
			}
			got := r.Snapshot()
			if len(got) != len(want) {
				return false
			}
			for i := range got {
				if got[i] != want[i] {
					return false
				}
			}
			return true
		},
		gen.IntRange(0, 32),
		gen.SliceOf(gen.Int()),
	))

	properties.TestingRun(t)
}
