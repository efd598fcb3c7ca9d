package config

import (
	"errors"
	"flag"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// envOverride maps one EIDOLON_* variable to the flag it shadows.
type envOverride struct {
	envKey string
	flag   string
	apply  func(*AgentConfig, string) error
}

var envOverrides = []envOverride{
	{"ENABLED", "enabled", func(c *AgentConfig, v string) error { return parseBool(v, &c.Enabled) }},
	{"HOST", "host", func(c *AgentConfig, v string) error { c.Host = v; return nil }},
	{"PORT", "port", func(c *AgentConfig, v string) error { return parseInt(v, &c.Port) }},
	{"CONTEXT_PATH", "c", func(c *AgentConfig, v string) error { c.ContextPath = v; return nil }},
	{"WEBSOCKET_ENABLED", "ws", func(c *AgentConfig, v string) error { return parseBool(v, &c.WebsocketEnabled) }},
	{"WEBSOCKET_INTERVAL", "i", func(c *AgentConfig, v string) error { return parseMillisOrDuration(v, &c.Interval) }},
	{"GC_BUFFER_SIZE", "b", func(c *AgentConfig, v string) error { return parseInt(v, &c.GcEventBufferSize) }},
	{"COLLECT_STRING_TABLE", "s", func(c *AgentConfig, v string) error { return parseBool(v, &c.CollectStringTable) }},
	{"SAMPLE_TIMEOUT", "t", func(c *AgentConfig, v string) error { return parseMillisOrDuration(v, &c.SampleTimeout) }},
	{"QUEUE_SIZE", "q", func(c *AgentConfig, v string) error { return parseInt(v, &c.QueueSize) }},
	{"MAX_FAILURES", "f", func(c *AgentConfig, v string) error { return parseInt(v, &c.MaxFailures) }},
	{"LOG_LEVEL", "l", func(c *AgentConfig, v string) error { c.LogLevel = v; return nil }},
	{"MEMORY_POOLS", "pools", func(c *AgentConfig, v string) error { c.IncludeMemoryPools = splitList(v); return nil }},
	{"GC_NAMES", "gc-names", func(c *AgentConfig, v string) error { c.IncludeGcNames = splitList(v); return nil }},
	{"THREAD_PREFIXES", "thread-prefixes", func(c *AgentConfig, v string) error {
		c.IncludeThreadNamePrefixes = splitList(v)
		return nil
	}},
}

// applyEnvOverrides gives command-line flags priority over the environment.
func applyEnvOverrides(config *AgentConfig, flags *flag.FlagSet) error {
	for _, o := range envOverrides {
		if isFlagSet(flags, o.flag) {
			continue
		}
		if val := os.Getenv(EnvPrefix + o.envKey); val != "" {
			if err := o.apply(config, val); err != nil {
				return fmt.Errorf("invalid %s%s value %q: %w", EnvPrefix, o.envKey, val, err)
			}
		}
	}
	return nil
}

func isFlagSet(flags *flag.FlagSet, name string) bool {
	found := false
	flags.Visit(func(f *flag.Flag) {
		if f.Name == name {
			found = true
		}
	})
	return found
}

// loadDotEnv loads ./.env without overriding variables that are already set.
func loadDotEnv() {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "eidolon: ignoring .env: %v\n", err)
	}
}

func parseBool(v string, dst *bool) error {
	switch strings.ToLower(v) {
	case "true", "1", "yes":
		*dst = true
	case "false", "0", "no":
		*dst = false
	default:
		return fmt.Errorf("not a boolean")
	}
	return nil
}

func parseInt(v string, dst *int) error {
	n, err := strconv.Atoi(v)
	if err != nil {
		return err
	}
	*dst = n
	return nil
}

// parseMillisOrDuration accepts a bare integer as milliseconds or any
// time.ParseDuration string.
func parseMillisOrDuration(v string, dst *time.Duration) error {
	if ms, err := strconv.ParseInt(v, 10, 64); err == nil {
		*dst = time.Duration(ms) * time.Millisecond
		return nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return err
	}
	*dst = d
	return nil
}
