// Package exporter exposes the latest snapshot in the Prometheus text format.
//
// The collector never samples on its own: every scrape renders whatever snapshot was
// published last, and renders nothing before the first one.
package exporter

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	models "github.com/Schera-ole/eidolon/internal/model"
)

const namespace = "eidolon"

// SnapshotSource returns the latest published snapshot.
type SnapshotSource interface {
	Latest(ctx context.Context) (*models.MetricsSnapshot, error)
}

// Collector implements prometheus.Collector over a SnapshotSource.
type Collector struct {
	source SnapshotSource
	logger *zap.SugaredLogger

	heapUsed      *prometheus.Desc
	heapCommitted *prometheus.Desc
	heapMax       *prometheus.Desc

	poolUsed           *prometheus.Desc
	poolCommitted      *prometheus.Desc
	poolCollectionUsed *prometheus.Desc

	threads        *prometheus.Desc
	daemonThreads  *prometheus.Desc
	peakThreads    *prometheus.Desc
	startedThreads *prometheus.Desc
	threadStates   *prometheus.Desc

	classesLoaded   *prometheus.Desc
	classesTotal    *prometheus.Desc
	classesUnloaded *prometheus.Desc

	stringTableAvailable *prometheus.Desc
	stringTableEntries   *prometheus.Desc

	gcEventsRetained *prometheus.Desc
	gcLastDuration   *prometheus.Desc
	snapshotTime     *prometheus.Desc
}

// NewCollector creates a collector reading from source.
func NewCollector(source SnapshotSource, logger *zap.SugaredLogger) *Collector {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	desc := func(subsystem, name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(namespace, subsystem, name), help, labels, nil)
	}
	return &Collector{
		source: source,
		logger: logger,

		heapUsed:      desc("heap", "used_bytes", "Bytes in use across heap pools."),
		heapCommitted: desc("heap", "committed_bytes", "Bytes committed across heap pools."),
		heapMax:       desc("heap", "max_bytes", "Configured heap ceiling."),

		poolUsed:           desc("memory_pool", "used_bytes", "Bytes in use per memory pool.", "pool", "kind"),
		poolCommitted:      desc("memory_pool", "committed_bytes", "Bytes committed per memory pool.", "pool", "kind"),
		poolCollectionUsed: desc("memory_pool", "collection_used_bytes", "Bytes in use after the last collection.", "pool", "kind"),

		threads:        desc("threads", "live", "Live goroutines."),
		daemonThreads:  desc("threads", "parked", "Goroutines parked for at least a minute."),
		peakThreads:    desc("threads", "peak", "Highest live goroutine count observed."),
		startedThreads: desc("threads", "started_total", "Goroutines started since process start."),
		threadStates:   desc("threads", "state", "Goroutines per state.", "state"),

		classesLoaded:   desc("modules", "loaded", "Modules linked into the binary."),
		classesTotal:    desc("modules", "loaded_total", "Modules loaded since process start."),
		classesUnloaded: desc("modules", "unloaded_total", "Modules unloaded since process start."),

		stringTableAvailable: desc("string_table", "available", "Whether the string table diagnostic is available."),
		stringTableEntries:   desc("string_table", "entries", "Entries of the string table."),

		gcEventsRetained: desc("gc", "events_retained", "GC events in the history window."),
		gcLastDuration:   desc("gc", "last_duration_seconds", "Duration of the most recent GC event."),
		snapshotTime:     desc("snapshot", "timestamp_seconds", "Time the latest snapshot was assembled."),
	}
}

// Describe implements prometheus.Collector.
func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.heapUsed, c.heapCommitted, c.heapMax,
		c.poolUsed, c.poolCommitted, c.poolCollectionUsed,
		c.threads, c.daemonThreads, c.peakThreads, c.startedThreads, c.threadStates,
		c.classesLoaded, c.classesTotal, c.classesUnloaded,
		c.stringTableAvailable, c.stringTableEntries,
		c.gcEventsRetained, c.gcLastDuration, c.snapshotTime,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector.
func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	snapshot, err := c.source.Latest(context.Background())
	if err != nil {
		c.logger.Debugw("nothing to export", "error", err)
		return
	}

	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v float64) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, v)
	}

	heap := snapshot.Heap
	gauge(c.heapUsed, float64(heap.Used))
	gauge(c.heapCommitted, float64(heap.Committed))
	if heap.Max != nil {
		gauge(c.heapMax, float64(*heap.Max))
	}
	for _, pool := range heap.Pools {
		kind := string(pool.Kind)
		gauge(c.poolUsed, float64(pool.Usage.Used), pool.Name, kind)
		gauge(c.poolCommitted, float64(pool.Usage.Committed), pool.Name, kind)
		if pool.CollectionUsage != nil {
			gauge(c.poolCollectionUsed, float64(pool.CollectionUsage.Used), pool.Name, kind)
		}
	}

	threads := snapshot.Threads
	gauge(c.threads, float64(threads.ThreadCount))
	gauge(c.daemonThreads, float64(threads.DaemonThreadCount))
	gauge(c.peakThreads, float64(threads.PeakThreadCount))
	counter(c.startedThreads, float64(threads.TotalStartedThreadCount))
	for _, state := range models.ThreadStates {
		gauge(c.threadStates, float64(threads.StateCounts[state]), state)
	}

	gauge(c.classesLoaded, float64(snapshot.Classes.LoadedClassCount))
	counter(c.classesTotal, float64(snapshot.Classes.TotalLoadedClassCount))
	counter(c.classesUnloaded, float64(snapshot.Classes.UnloadedClassCount))

	if st := snapshot.StringTable; st != nil {
		available := 0.0
		if st.Available {
			available = 1
		}
		gauge(c.stringTableAvailable, available)
		if st.EntryCount != nil {
			gauge(c.stringTableEntries, float64(*st.EntryCount))
		}
	}

	events := snapshot.RecentGcEvents
	gauge(c.gcEventsRetained, float64(len(events)))
	if len(events) > 0 {
		gauge(c.gcLastDuration, float64(events[len(events)-1].DurationMillis)/1000)
	}
	gauge(c.snapshotTime, float64(snapshot.TimestampMillis)/1000)
}

// NewRegistry creates a registry owned by one agent, holding the snapshot collector
// and the standard process collector.
func NewRegistry(c *Collector) *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(c)
	reg.MustRegister(collectors.NewProcessCollector(collectors.ProcessCollectorOpts{Namespace: namespace}))
	return reg
}

// Handler serves reg in the exposition format. Compression is left to the router middleware.
func Handler(reg *prometheus.Registry, logger *zap.SugaredLogger) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{
		ErrorLog:           zap.NewStdLog(logger.Desugar()),
		ErrorHandling:      promhttp.ContinueOnError,
		DisableCompression: true,
	})
}
