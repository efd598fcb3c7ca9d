package sampler

import (
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	models "github.com/Schera-ole/eidolon/internal/model"
)

const sampleDump = `goroutine 1 [running]:
main.main()
	/src/app/main.go:12 +0x1d

goroutine 18 [chan receive, 3 minutes]:
github.com/acme/app/worker.(*Pool).run(0xc0000a2000)
	/src/app/worker/pool.go:40 +0x85
created by github.com/acme/app/worker.New in goroutine 1
	/src/app/worker/pool.go:22 +0x1a5

goroutine 7 gp=0xc000007a40 m=nil [sleep]:
time.Sleep(0x3b9aca00)
	/usr/local/go/src/runtime/time.go:300 +0xf2
created by main.tick
	/src/app/main.go:30 +0x25

goroutine 33 [sync.Mutex.Lock, locked to thread]:
sync.(*Mutex).Lock(...)
	/usr/local/go/src/sync/mutex.go:90
`

func TestParseGoroutineDump(t *testing.T) {
	reading, err := ParseGoroutineDump([]byte(sampleDump))
	require.NoError(t, err)
	require.Len(t, reading.Goroutines, 4)

	assert.Equal(t, Goroutine{ID: 1, WaitReason: "running"}, reading.Goroutines[0])
	assert.Equal(t, Goroutine{
		ID:          18,
		WaitReason:  "chan receive",
		WaitMinutes: 3,
		CreatedBy:   "github.com/acme/app/worker.New",
	}, reading.Goroutines[1])
	assert.Equal(t, Goroutine{ID: 7, WaitReason: "sleep", CreatedBy: "main.tick"}, reading.Goroutines[2])
	assert.Equal(t, Goroutine{ID: 33, WaitReason: "sync.Mutex.Lock"}, reading.Goroutines[3])
}

func TestParseGoroutineDump_Empty(t *testing.T) {
	reading, err := ParseGoroutineDump(nil)
	require.NoError(t, err)
	assert.Empty(t, reading.Goroutines)
}

func TestStateOf(t *testing.T) {
	tests := []struct {
		reason string
		want   string
	}{
		{"running", models.StateRunnable},
		{"runnable", models.StateRunnable},
		{"syscall", models.StateRunnable},
		{"garbage collection", models.StateRunnable},
		{"idle", models.StateNew},
		{"dead", models.StateTerminated},
		{"sleep", models.StateTimedWaiting},
		{"semacquire", models.StateBlocked},
		{"sync.RWMutex.RLock", models.StateBlocked},
		{"chan receive", models.StateWaiting},
		{"select", models.StateWaiting},
		{"IO wait", models.StateWaiting},
	}
	for _, tt := range tests {
		t.Run(tt.reason, func(t *testing.T) {
			assert.Equal(t, tt.want, StateOf(tt.reason))
		})
	}
}

func TestGoroutineDump_ReadsCurrentProcess(t *testing.T) {
	dump := NewGoroutineDump()

	// Twice, so the second read reuses a pooled buffer
	for i := 0; i < 2; i++ {
		reading, err := dump.ReadThreads()
		require.NoError(t, err)
		require.NotEmpty(t, reading.Goroutines)

		running := 0
		for _, g := range reading.Goroutines {
			assert.Positive(t, g.ID)
			if g.WaitReason == "running" {
				running++
			}
		}
		assert.GreaterOrEqual(t, running, 1)
	}
}

func TestBuildModules(t *testing.T) {
	modules := &BuildModules{}
	first, err := modules.ReadClasses()
	require.NoError(t, err)
	assert.Positive(t, first.LoadedClassCount)
	assert.Equal(t, first.LoadedClassCount, first.TotalLoadedClassCount)

	second, err := modules.ReadClasses()
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestRuntimePools(t *testing.T) {
	// Live heap is only known after a completed cycle
	runtime.GC()
	pools := RuntimePools(MemoryLimit{})
	require.Len(t, pools, 6)

	for _, p := range pools {
		reading, err := p.Read()
		require.NoError(t, err, p.Name())
		assert.GreaterOrEqual(t, reading.Usage.Committed, reading.Usage.Used, p.Name())
	}

	objects, err := pools[0].Read()
	require.NoError(t, err)
	assert.Equal(t, PoolHeapObjects, pools[0].Name())
	assert.Equal(t, models.PoolHeap, pools[0].Kind())
	require.NotNil(t, objects.CollectionUsage)
	assert.Positive(t, objects.CollectionUsage.Used)
}

func TestInternTable_Unsupported(t *testing.T) {
	table := &InternTable{}
	if err := table.Probe(); err != nil {
		_, readErr := table.Read()
		assert.Error(t, readErr)
		return
	}
	m, err := table.Read()
	require.NoError(t, err)
	assert.True(t, m.Available)
}
