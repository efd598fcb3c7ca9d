// Package config provides configuration for the introspection agent.
package config

import "time"

// Defaults applied by DefaultConfig.
const (
	DefaultHost              = "0.0.0.0"
	DefaultPort              = 7090
	DefaultContextPath       = "/eidolon"
	DefaultInterval          = time.Second
	DefaultGcEventBufferSize = 1024
	DefaultQueueSize         = 16
	DefaultMaxFailures       = 8
	DefaultWriteTimeout      = 5 * time.Second
	DefaultLogLevel          = "info"

	// maxSampleTimeout caps the derived soft timeout of one sampling pass.
	maxSampleTimeout = 5 * time.Second
)

// EnvPrefix is prepended to every environment variable read by LoadConfig.
const EnvPrefix = "EIDOLON_"
