package errors

import "errors"

var (
	// Snapshot errors
	ErrSnapshotUnavailable = errors.New("no snapshot assembled yet")
	ErrSamplingTimeout     = errors.New("sampling pass timed out")

	// Sampler source errors
	ErrPoolUnreadable         = errors.New("memory pool unreadable")
	ErrStringTableUnsupported = errors.New("string table diagnostic unsupported")
	ErrThreadDumpUnavailable  = errors.New("goroutine dump unavailable")
	ErrBuildInfoUnavailable   = errors.New("build info unavailable")

	// Delivery errors
	ErrRegistryClosed    = errors.New("subscriber registry closed")
	ErrSubscriberClosed  = errors.New("subscriber closed")
	ErrSubscriberTooSlow = errors.New("subscriber too slow")

	// Agent lifecycle errors
	ErrAgentRunning  = errors.New("agent already running")
	ErrAgentStopped  = errors.New("agent stopped")
	ErrInvalidConfig = errors.New("invalid configuration")
)
