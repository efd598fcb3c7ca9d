// Package sampler reads the instantaneous state of the host runtime.
//
// Every source is an interface so a failing or slow reader can be injected in tests.
// Sampling is best effort: a failing memory pool is left out of the reading, thread and
// class counters fall back to zero, and the string table diagnostic degrades to
// "unavailable" once and for all.
package sampler

import (
	"errors"
	"strings"
	"sync"

	"go.uber.org/zap"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// PoolReading is one read of a memory pool.
type PoolReading struct {
	Usage           models.MemoryPoolUsage
	CollectionUsage *models.MemoryPoolUsage
}

// PoolReader reads one memory pool.
type PoolReader interface {
	Name() string
	Kind() models.PoolKind
	Read() (PoolReading, error)
}

// Goroutine is one entry of a goroutine dump.
type Goroutine struct {
	ID          int64
	WaitReason  string
	WaitMinutes int64
	CreatedBy   string
}

// ThreadReading lists the goroutines alive at read time.
type ThreadReading struct {
	Goroutines []Goroutine
}

// ThreadReader enumerates live goroutines.
type ThreadReader interface {
	ReadThreads() (ThreadReading, error)
}

// ClassReader reads the loaded code unit counters.
type ClassReader interface {
	ReadClasses() (models.ClassMetrics, error)
}

// StringTableProbe is the optional string table diagnostic. Probe is called at most once.
type StringTableProbe interface {
	Probe() error
	Read() (models.StringTableMetrics, error)
}

// HeapLimitReader reports the configured heap ceiling, if any.
type HeapLimitReader interface {
	HeapLimit() (int64, bool)
}

// Reading is the result of one full sampling pass.
type Reading struct {
	Heap        models.HeapMetrics
	Threads     models.ThreadMetrics
	Classes     models.ClassMetrics
	StringTable models.StringTableMetrics
}

// Sources groups the readers a Sampler draws from.
type Sources struct {
	Pools       []PoolReader
	Threads     ThreadReader
	Classes     ClassReader
	StringTable StringTableProbe
	HeapLimit   HeapLimitReader
}

// Options tunes a Sampler.
type Options struct {
	CollectStringTable bool

	// Allow-lists, empty means no filtering
	IncludeMemoryPools        []string
	IncludeThreadNamePrefixes []string
}

// Sampler combines the sources into readings.
//
// Methods are safe for concurrent use. Every pass, full or partial, holds the pass lock,
// so sources are never read by two passes at once.
type Sampler struct {
	logger  *zap.SugaredLogger
	sources Sources
	opts    Options
	pools   map[string]struct{}

	pass sync.Mutex

	mu           sync.Mutex
	peakThreads  int64
	totalStarted int64
	classTotal   int64
	classUnload  int64

	probeOnce   sync.Once
	stringTable struct {
		sync.Mutex
		unavailable bool
	}
}

// New creates a Sampler. Nil sources are treated as absent.
func New(sources Sources, opts Options, logger *zap.SugaredLogger) *Sampler {
	if logger == nil {
		logger = zap.NewNop().Sugar()
	}
	s := &Sampler{
		logger:  logger,
		sources: sources,
		opts:    opts,
	}
	if len(opts.IncludeMemoryPools) > 0 {
		s.pools = make(map[string]struct{}, len(opts.IncludeMemoryPools))
		for _, name := range opts.IncludeMemoryPools {
			s.pools[name] = struct{}{}
		}
	}
	return s
}

// Sample performs one full pass.
func (s *Sampler) Sample() Reading {
	s.pass.Lock()
	defer s.pass.Unlock()
	return Reading{
		Heap:        s.sampleHeap(),
		Threads:     s.sampleThreads(),
		Classes:     s.sampleClasses(),
		StringTable: s.sampleStringTable(),
	}
}

// SampleHeap reads every pool independently. Pools that fail are omitted and
// do not contribute to the aggregates.
func (s *Sampler) SampleHeap() models.HeapMetrics {
	s.pass.Lock()
	defer s.pass.Unlock()
	return s.sampleHeap()
}

func (s *Sampler) sampleHeap() models.HeapMetrics {
	heap := models.HeapMetrics{Pools: make([]models.MemoryPool, 0, len(s.sources.Pools))}

	for _, reader := range s.sources.Pools {
		name := reader.Name()
		if s.pools != nil {
			if _, ok := s.pools[name]; !ok {
				continue
			}
		}
		reading, err := reader.Read()
		if err != nil {
			s.logger.Debugw("memory pool skipped", "pool", name, "error", err)
			continue
		}
		pool := models.MemoryPool{
			Name:            name,
			Kind:            reader.Kind(),
			Usage:           reading.Usage,
			CollectionUsage: reading.CollectionUsage,
		}
		heap.Pools = append(heap.Pools, pool)
		if pool.Kind == models.PoolHeap {
			heap.Used += pool.Usage.Used
			heap.Committed += pool.Usage.Committed
		}
	}

	if s.sources.HeapLimit != nil {
		if limit, ok := s.sources.HeapLimit.HeapLimit(); ok {
			heap.Max = models.Int64(limit)
		}
	}
	return heap
}

// SampleThreads counts goroutines by state. It never fails: when the dump is
// unavailable every counter except the cumulative ones is zero.
func (s *Sampler) SampleThreads() models.ThreadMetrics {
	s.pass.Lock()
	defer s.pass.Unlock()
	return s.sampleThreads()
}

func (s *Sampler) sampleThreads() models.ThreadMetrics {
	threads := models.ThreadMetrics{StateCounts: make(map[string]int64, len(models.ThreadStates))}
	for _, state := range models.ThreadStates {
		threads.StateCounts[state] = 0
	}

	var goroutines []Goroutine
	if s.sources.Threads != nil {
		reading, err := s.sources.Threads.ReadThreads()
		if err != nil {
			s.logger.Debugw("goroutine dump unavailable", "error", err)
		} else {
			goroutines = reading.Goroutines
		}
	}

	var live, maxID int64
	for _, g := range goroutines {
		if g.ID > maxID {
			maxID = g.ID
		}
		if g.WaitReason != "dead" {
			live++
		}
		if !s.includeGoroutine(g) {
			continue
		}
		threads.ThreadCount++
		threads.StateCounts[StateOf(g.WaitReason)]++
		if g.WaitMinutes >= 1 {
			threads.DaemonThreadCount++
		}
	}

	s.mu.Lock()
	if live > s.peakThreads {
		s.peakThreads = live
	}
	if maxID > s.totalStarted {
		s.totalStarted = maxID
	}
	threads.PeakThreadCount = s.peakThreads
	threads.TotalStartedThreadCount = s.totalStarted
	s.mu.Unlock()

	return threads
}

func (s *Sampler) includeGoroutine(g Goroutine) bool {
	if len(s.opts.IncludeThreadNamePrefixes) == 0 {
		return true
	}
	for _, prefix := range s.opts.IncludeThreadNamePrefixes {
		if strings.HasPrefix(g.CreatedBy, prefix) {
			return true
		}
	}
	return false
}

// SampleClasses reads the class counters, keeping the cumulative ones from going backwards.
func (s *Sampler) SampleClasses() models.ClassMetrics {
	s.pass.Lock()
	defer s.pass.Unlock()
	return s.sampleClasses()
}

func (s *Sampler) sampleClasses() models.ClassMetrics {
	var classes models.ClassMetrics
	if s.sources.Classes != nil {
		c, err := s.sources.Classes.ReadClasses()
		if err != nil {
			s.logger.Debugw("class counters unavailable", "error", err)
		} else {
			classes = c
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if classes.TotalLoadedClassCount < s.classTotal {
		classes.TotalLoadedClassCount = s.classTotal
	}
	if classes.UnloadedClassCount < s.classUnload {
		classes.UnloadedClassCount = s.classUnload
	}
	s.classTotal = classes.TotalLoadedClassCount
	s.classUnload = classes.UnloadedClassCount
	return classes
}

// SampleStringTable returns the diagnostic, or {available:false} when it is disabled,
// unsupported or has failed before.
func (s *Sampler) SampleStringTable() models.StringTableMetrics {
	s.pass.Lock()
	defer s.pass.Unlock()
	return s.sampleStringTable()
}

func (s *Sampler) sampleStringTable() models.StringTableMetrics {
	unavailable := models.StringTableMetrics{Available: false}
	if !s.opts.CollectStringTable || s.sources.StringTable == nil {
		return unavailable
	}

	s.probeOnce.Do(func() {
		if err := s.sources.StringTable.Probe(); err != nil {
			s.markStringTableUnavailable(err)
		}
	})

	s.stringTable.Lock()
	defer s.stringTable.Unlock()
	if s.stringTable.unavailable {
		return unavailable
	}
	metrics, err := s.sources.StringTable.Read()
	if err != nil || !metrics.Available {
		if err == nil {
			err = internalerrors.ErrStringTableUnsupported
		}
		s.stringTable.unavailable = true
		s.logger.Infow("string table diagnostic disabled", "error", err)
		return unavailable
	}
	return metrics
}

func (s *Sampler) markStringTableUnavailable(err error) {
	s.stringTable.Lock()
	defer s.stringTable.Unlock()
	s.stringTable.unavailable = true
	if errors.Is(err, internalerrors.ErrStringTableUnsupported) {
		s.logger.Infow("string table diagnostic not supported by this runtime")
		return
	}
	s.logger.Infow("string table diagnostic disabled", "error", err)
}

// RuntimeSources returns readers backed by the Go runtime of the current process.
func RuntimeSources() Sources {
	limit := MemoryLimit{}
	return Sources{
		Pools:       RuntimePools(limit),
		Threads:     NewGoroutineDump(),
		Classes:     &BuildModules{},
		StringTable: &InternTable{},
		HeapLimit:   limit,
	}
}
