package sampler

import (
	"fmt"
	"runtime/metrics"
	"strings"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// internPrefixes are the metric namespaces a runtime would use to publish
// statistics of its interned value table.
var internPrefixes = []string{"/unique/", "/intern/"}

// InternTable looks for interning statistics among the published runtime metrics.
// Current toolchains publish none, in which case Probe reports the diagnostic as unsupported.
type InternTable struct {
	samples []metrics.Sample
}

// Probe records the matching metrics. It fails with ErrStringTableUnsupported when none exist.
func (t *InternTable) Probe() error {
	t.samples = t.samples[:0]
	for _, desc := range metrics.All() {
		if desc.Kind != metrics.KindUint64 {
			continue
		}
		for _, prefix := range internPrefixes {
			if strings.HasPrefix(desc.Name, prefix) {
				t.samples = append(t.samples, metrics.Sample{Name: desc.Name})
				break
			}
		}
	}
	if len(t.samples) == 0 {
		return internalerrors.ErrStringTableUnsupported
	}
	return nil
}

// Read maps the probed metrics onto the diagnostic fields by their unit and name.
func (t *InternTable) Read() (models.StringTableMetrics, error) {
	if len(t.samples) == 0 {
		return models.StringTableMetrics{}, internalerrors.ErrStringTableUnsupported
	}
	metrics.Read(t.samples)

	out := models.StringTableMetrics{Available: true}
	for _, sample := range t.samples {
		if sample.Value.Kind() != metrics.KindUint64 {
			return models.StringTableMetrics{}, fmt.Errorf("%w: %s vanished", internalerrors.ErrStringTableUnsupported, sample.Name)
		}
		v := models.Int64(clampUint64(sample.Value.Uint64()))
		switch {
		case strings.HasSuffix(sample.Name, ":bytes"):
			out.TotalMemoryBytes = v
		case strings.Contains(sample.Name, "bucket"):
			out.BucketCount = v
		case strings.Contains(sample.Name, "entries"), strings.Contains(sample.Name, "handles"):
			out.EntryCount = v
		case strings.Contains(sample.Name, "size"):
			out.TableSize = v
		}
	}
	return out, nil
}
