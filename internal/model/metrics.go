// Package models defines the data structures used throughout the introspection agent.
//
// Every value reachable from a MetricsSnapshot is treated as immutable once the
// snapshot has been published: readers must copy before modifying.
package models

// PoolKind classifies a memory pool.
type PoolKind string

const (
	// PoolHeap marks memory managed by the garbage collector.
	PoolHeap PoolKind = "HEAP"

	// PoolNonHeap marks runtime memory outside the collected heap.
	PoolNonHeap PoolKind = "NON_HEAP"
)

// Thread state names used as keys of ThreadMetrics.StateCounts.
const (
	StateNew          = "NEW"
	StateRunnable     = "RUNNABLE"
	StateBlocked      = "BLOCKED"
	StateWaiting      = "WAITING"
	StateTimedWaiting = "TIMED_WAITING"
	StateTerminated   = "TERMINATED"
)

// ThreadStates lists every state that appears in StateCounts, in a stable order.
var ThreadStates = []string{
	StateNew,
	StateRunnable,
	StateBlocked,
	StateWaiting,
	StateTimedWaiting,
	StateTerminated,
}

// MemoryPoolUsage describes the usage of one memory region.
type MemoryPoolUsage struct {
	// Init is the initial size of the region, null when unknown
	Init *int64 `json:"init"`

	// Used is the number of bytes in use
	Used int64 `json:"used"`

	// Committed is the number of bytes obtained from the OS for this region
	Committed int64 `json:"committed"`

	// Max is the upper bound of the region, null when unbounded
	Max *int64 `json:"max"`
}

// MemoryPool is one independently tracked memory region.
type MemoryPool struct {
	Name  string          `json:"name"`
	Kind  PoolKind        `json:"kind"`
	Usage MemoryPoolUsage `json:"usage"`

	// CollectionUsage is the usage measured by the most recent collection,
	// omitted for pools that do not track it
	CollectionUsage *MemoryPoolUsage `json:"collectionUsage,omitempty"`
}

// HeapMetrics aggregates the heap pools.
type HeapMetrics struct {
	Used      int64        `json:"used"`
	Committed int64        `json:"committed"`
	Max       *int64       `json:"max,omitempty"`
	Pools     []MemoryPool `json:"pools"`
}

// ThreadMetrics summarizes the goroutines of the process.
type ThreadMetrics struct {
	ThreadCount             int64            `json:"threadCount"`
	DaemonThreadCount       int64            `json:"daemonThreadCount"`
	PeakThreadCount         int64            `json:"peakThreadCount"`
	TotalStartedThreadCount int64            `json:"totalStartedThreadCount"`
	StateCounts             map[string]int64 `json:"stateCounts"`
}

// ClassMetrics reports loaded code units.
type ClassMetrics struct {
	LoadedClassCount      int64 `json:"loadedClassCount"`
	TotalLoadedClassCount int64 `json:"totalLoadedClassCount"`
	UnloadedClassCount    int64 `json:"unloadedClassCount"`
}

// StringTableMetrics is the optional interned string table diagnostic.
type StringTableMetrics struct {
	Available        bool   `json:"available"`
	TableSize        *int64 `json:"tableSize,omitempty"`
	BucketCount      *int64 `json:"bucketCount,omitempty"`
	EntryCount       *int64 `json:"entryCount,omitempty"`
	TotalMemoryBytes *int64 `json:"totalMemoryBytes,omitempty"`
}

// GcEvent records one completed garbage collection cycle.
type GcEvent struct {
	GcName          string `json:"gcName"`
	GcAction        string `json:"gcAction"`
	GcCause         string `json:"gcCause"`
	StartTimeMillis int64  `json:"startTimeMillis"`
	DurationMillis  int64  `json:"durationMillis"`
}

// MetricsSnapshot is one point-in-time measurement of the runtime.
type MetricsSnapshot struct {
	TimestampMillis int64               `json:"timestampMillis"`
	Heap            HeapMetrics         `json:"heap"`
	Threads         ThreadMetrics       `json:"threads"`
	Classes         ClassMetrics        `json:"classes"`
	StringTable     *StringTableMetrics `json:"stringTable,omitempty"`
	RecentGcEvents  []GcEvent           `json:"recentGcEvents"`
}

// RuntimeInfo is startup metadata about the process and the agent configuration.
// It is captured once and never changes afterwards.
type RuntimeInfo struct {
	GoVersion      string   `json:"goVersion"`
	GOOS           string   `json:"goos"`
	GOARCH         string   `json:"goarch"`
	Compiler       string   `json:"compiler"`
	PID            int      `json:"pid"`
	NumCPU         int      `json:"numCPU"`
	GOMAXPROCS     int      `json:"gomaxprocs"`
	GcCollectors   []string `json:"gcCollectors"`
	InputArguments []string `json:"inputArguments"`

	HeapInit           *int64 `json:"heapInit,omitempty"`
	HeapMax            *int64 `json:"heapMax,omitempty"`
	ProcessStartMillis *int64 `json:"processStartMillis,omitempty"`
	SystemMemoryTotal  *int64 `json:"systemMemoryTotal,omitempty"`
	HostCPUs           *int64 `json:"hostCPUs,omitempty"`

	Host                    string `json:"host"`
	Port                    int    `json:"port"`
	ContextPath             string `json:"contextPath"`
	WebsocketEnabled        bool   `json:"websocketEnabled"`
	WebsocketIntervalMillis int64  `json:"websocketIntervalMillis"`
	GcEventBufferSize       int    `json:"gcEventBufferSize"`
	CollectStringTable      bool   `json:"collectStringTable"`
}

// NoData is the document returned while no snapshot has been assembled yet.
type NoData struct {
	Status string `json:"status"`
}

// NoDataStatus is the status value carried by NoData.
const NoDataStatus = "no data yet"

// Int64 returns a pointer to v. Used for the nullable and optional numeric fields.
func Int64(v int64) *int64 {
	return &v
}
