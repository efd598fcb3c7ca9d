// Package agent implements the remote observer: a websocket client that follows the
// push stream of a running agent and summarizes every snapshot it receives.
package agent

import (
	"fmt"

	"github.com/tidwall/gjson"
)

// Summary is the condensed view of one pushed snapshot.
type Summary struct {
	// TimestampMillis of the snapshot
	TimestampMillis int64

	// HeapUsed and HeapCommitted in bytes
	HeapUsed      int64
	HeapCommitted int64

	// Threads is the live goroutine count
	Threads int64

	// GcEvents is the number of events in the history window
	GcEvents int

	// LastGcMillis is the duration of the most recent GC event, -1 when there is none
	LastGcMillis int64
}

// String formats the summary as one log line.
func (s Summary) String() string {
	return fmt.Sprintf("ts=%d heap=%d/%d threads=%d gc_events=%d last_gc_ms=%d",
		s.TimestampMillis, s.HeapUsed, s.HeapCommitted, s.Threads, s.GcEvents, s.LastGcMillis)
}

var (
	// SummaryPaths lists the snapshot fields read for a Summary.
	SummaryPaths = []string{
		"timestampMillis",
		"heap.used",
		"heap.committed",
		"threads.threadCount",
		"recentGcEvents.#",
		"recentGcEvents|@reverse|0.durationMillis",
	}
)

// Message kinds received on the stream.
const (
	KindSnapshot = "snapshot"
	KindNoData   = "no-data"
	KindPong     = "pong"
	KindUnknown  = "unknown"
)

// Classify tells the kind of a received text message.
func Classify(msg []byte) string {
	if string(msg) == "pong" {
		return KindPong
	}
	if !gjson.ValidBytes(msg) {
		return KindUnknown
	}
	if gjson.GetBytes(msg, "status").Exists() {
		return KindNoData
	}
	if gjson.GetBytes(msg, "timestampMillis").Exists() {
		return KindSnapshot
	}
	return KindUnknown
}

// Summarize extracts a Summary from a serialized snapshot.
func Summarize(payload []byte) (Summary, error) {
	if !gjson.ValidBytes(payload) {
		return Summary{}, fmt.Errorf("payload is not valid JSON")
	}
	values := gjson.GetManyBytes(payload, SummaryPaths...)
	if !values[0].Exists() {
		return Summary{}, fmt.Errorf("payload has no timestampMillis")
	}
	summary := Summary{
		TimestampMillis: values[0].Int(),
		HeapUsed:        values[1].Int(),
		HeapCommitted:   values[2].Int(),
		Threads:         values[3].Int(),
		GcEvents:        int(values[4].Int()),
		LastGcMillis:    -1,
	}
	if values[5].Exists() {
		summary.LastGcMillis = values[5].Int()
	}
	return summary, nil
}
