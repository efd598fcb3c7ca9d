package sampler

import (
	"bufio"
	"bytes"
	"fmt"
	"regexp"
	"runtime/pprof"
	"strconv"
	"strings"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
	"github.com/Schera-ole/eidolon/internal/pool"
)

// headerRe matches "goroutine 7 [chan receive]:" and the traceback=system variant
// that puts scheduler details between the id and the bracket.
var headerRe = regexp.MustCompile(`^goroutine (\d+)(?: [^\[]*)? \[([^\]]*)\]:$`)

// StateOf maps a goroutine wait reason onto the fixed thread state enumeration.
func StateOf(waitReason string) string {
	switch waitReason {
	case "running", "runnable", "syscall", "preempted", "copystack", "garbage collection":
		return models.StateRunnable
	case "idle":
		return models.StateNew
	case "dead":
		return models.StateTerminated
	case "sleep":
		return models.StateTimedWaiting
	case "semacquire", "sync.Mutex.Lock", "sync.RWMutex.Lock", "sync.RWMutex.RLock":
		return models.StateBlocked
	default:
		return models.StateWaiting
	}
}

// GoroutineDump reads goroutines from the runtime's full goroutine profile.
type GoroutineDump struct {
	buffers *pool.Pool[*bytes.Buffer]
}

// NewGoroutineDump creates a dump reader that reuses its scratch buffers.
func NewGoroutineDump() *GoroutineDump {
	return &GoroutineDump{
		buffers: pool.New(func() *bytes.Buffer { return new(bytes.Buffer) }),
	}
}

// ReadThreads takes one dump and parses it.
func (d *GoroutineDump) ReadThreads() (ThreadReading, error) {
	profile := pprof.Lookup("goroutine")
	if profile == nil {
		return ThreadReading{}, internalerrors.ErrThreadDumpUnavailable
	}

	buf := d.buffers.Get()
	defer d.buffers.Put(buf)

	if err := profile.WriteTo(buf, 2); err != nil {
		return ThreadReading{}, fmt.Errorf("%w: %w", internalerrors.ErrThreadDumpUnavailable, err)
	}
	return ParseGoroutineDump(buf.Bytes())
}

// ParseGoroutineDump parses the text produced by the goroutine profile at debug level 2.
// Stack frames are skipped except for the "created by" line.
func ParseGoroutineDump(dump []byte) (ThreadReading, error) {
	var (
		reading ThreadReading
		current *Goroutine
	)
	scanner := bufio.NewScanner(bytes.NewReader(dump))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := scanner.Text()
		if m := headerRe.FindStringSubmatch(line); m != nil {
			id, err := strconv.ParseInt(m[1], 10, 64)
			if err != nil {
				return ThreadReading{}, fmt.Errorf("bad goroutine id %q: %w", m[1], err)
			}
			reading.Goroutines = append(reading.Goroutines, parseHeader(id, m[2]))
			current = &reading.Goroutines[len(reading.Goroutines)-1]
			continue
		}
		if current != nil && strings.HasPrefix(line, "created by ") {
			current.CreatedBy = creator(line)
		}
	}
	if err := scanner.Err(); err != nil {
		return ThreadReading{}, fmt.Errorf("scan goroutine dump: %w", err)
	}
	return reading, nil
}

// parseHeader splits "chan receive, 3 minutes, locked to thread" into its parts.
func parseHeader(id int64, bracket string) Goroutine {
	g := Goroutine{ID: id}
	parts := strings.Split(bracket, ", ")
	g.WaitReason = parts[0]
	for _, part := range parts[1:] {
		if minutes, ok := strings.CutSuffix(part, " minutes"); ok {
			if n, err := strconv.ParseInt(minutes, 10, 64); err == nil {
				g.WaitMinutes = n
			}
		}
	}
	return g
}

// creator returns the function of a "created by pkg.fn in goroutine 7" line.
func creator(line string) string {
	fn := strings.TrimPrefix(line, "created by ")
	if i := strings.Index(fn, " in goroutine "); i >= 0 {
		fn = fn[:i]
	}
	return fn
}
