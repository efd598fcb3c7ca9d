package sampler

import (
	"runtime/debug"
	"sync"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
	models "github.com/Schera-ole/eidolon/internal/model"
)

// BuildModules counts the modules linked into the binary. A Go binary never loads or
// unloads code after start, so the counters are fixed for the process lifetime.
type BuildModules struct {
	once    sync.Once
	classes models.ClassMetrics
	err     error
}

// ReadClasses returns the module counters read from the embedded build information.
func (b *BuildModules) ReadClasses() (models.ClassMetrics, error) {
	b.once.Do(func() {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			b.err = internalerrors.ErrBuildInfoUnavailable
			return
		}
		b.classes = countModules(info)
	})
	return b.classes, b.err
}

func countModules(info *debug.BuildInfo) models.ClassMetrics {
	loaded := int64(1)
	for _, dep := range info.Deps {
		if dep != nil {
			loaded++
		}
	}
	return models.ClassMetrics{
		LoadedClassCount:      loaded,
		TotalLoadedClassCount: loaded,
	}
}
