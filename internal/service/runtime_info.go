package service

import (
	"os"
	"runtime"

	"github.com/shirou/gopsutil/v4/cpu"
	"github.com/shirou/gopsutil/v4/mem"
	"github.com/shirou/gopsutil/v4/process"
	"go.uber.org/zap"

	"github.com/Schera-ole/eidolon/internal/config"
	"github.com/Schera-ole/eidolon/internal/gcwatch"
	models "github.com/Schera-ole/eidolon/internal/model"
	"github.com/Schera-ole/eidolon/internal/sampler"
)

// NewRuntimeInfo captures process and configuration metadata. Facts the host does not
// expose are left empty rather than failing.
func NewRuntimeInfo(cfg *config.AgentConfig, logger *zap.SugaredLogger) models.RuntimeInfo {
	info := models.RuntimeInfo{
		GoVersion:      runtime.Version(),
		GOOS:           runtime.GOOS,
		GOARCH:         runtime.GOARCH,
		Compiler:       runtime.Compiler,
		PID:            os.Getpid(),
		NumCPU:         runtime.NumCPU(),
		GOMAXPROCS:     runtime.GOMAXPROCS(0),
		GcCollectors:   []string{gcwatch.CollectorName},
		InputArguments: append([]string{}, os.Args[1:]...),

		Host:                    cfg.Host,
		Port:                    cfg.Port,
		ContextPath:             cfg.ContextPath,
		WebsocketEnabled:        cfg.WebsocketEnabled,
		WebsocketIntervalMillis: cfg.Interval.Milliseconds(),
		GcEventBufferSize:       cfg.GcEventBufferSize,
		CollectStringTable:      cfg.CollectStringTable,
	}

	if goal := sampler.HeapGoal(); goal > 0 {
		info.HeapInit = models.Int64(goal)
	}
	if limit, ok := (sampler.MemoryLimit{}).HeapLimit(); ok {
		info.HeapMax = models.Int64(limit)
	}

	proc, err := process.NewProcess(int32(info.PID))
	if err != nil {
		logger.Debugw("process info unavailable", "error", err)
	} else if created, err := proc.CreateTime(); err != nil {
		logger.Debugw("process start time unavailable", "error", err)
	} else {
		info.ProcessStartMillis = models.Int64(created)
	}

	if memory, err := mem.VirtualMemory(); err != nil {
		logger.Debugw("system memory unavailable", "error", err)
	} else {
		info.SystemMemoryTotal = models.Int64(int64(memory.Total))
	}

	if counts, err := cpu.Counts(true); err != nil {
		logger.Debugw("cpu count unavailable", "error", err)
	} else {
		info.HostCPUs = models.Int64(int64(counts))
	}
	return info
}
