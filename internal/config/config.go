package config

import (
	"flag"
	"fmt"
	"strings"
	"time"

	internalerrors "github.com/Schera-ole/eidolon/internal/errors"
)

// AgentConfig holds every tunable of the agent.
type AgentConfig struct {
	Enabled     bool
	Host        string
	Port        int
	ContextPath string

	WebsocketEnabled   bool
	Interval           time.Duration
	GcEventBufferSize  int
	CollectStringTable bool

	// SampleTimeout bounds one sampling pass; zero derives it from Interval
	SampleTimeout time.Duration

	// QueueSize is the number of payloads buffered per subscriber
	QueueSize int

	// MaxFailures is the number of consecutive dropped payloads after which a subscriber is disconnected
	MaxFailures int

	WriteTimeout    time.Duration
	WelcomeSnapshot bool
	LogLevel        string

	// Allow-lists, empty means no filtering
	IncludeMemoryPools        []string
	IncludeGcNames            []string
	IncludeThreadNamePrefixes []string
}

// DefaultConfig returns the configuration used when nothing is overridden.
func DefaultConfig() *AgentConfig {
	return &AgentConfig{
		Enabled:            true,
		Host:               DefaultHost,
		Port:               DefaultPort,
		ContextPath:        DefaultContextPath,
		WebsocketEnabled:   true,
		Interval:           DefaultInterval,
		GcEventBufferSize:  DefaultGcEventBufferSize,
		CollectStringTable: false,
		QueueSize:          DefaultQueueSize,
		MaxFailures:        DefaultMaxFailures,
		WriteTimeout:       DefaultWriteTimeout,
		WelcomeSnapshot:    true,
		LogLevel:           DefaultLogLevel,
	}
}

// Option mutates a configuration.
type Option func(*AgentConfig)

// NewAgentConfig builds a configuration from the defaults and the given options.
func NewAgentConfig(opts ...Option) *AgentConfig {
	config := DefaultConfig()
	for _, opt := range opts {
		opt(config)
	}
	config.ContextPath = NormalizeContextPath(config.ContextPath)
	return config
}

func WithEnabled(v bool) Option {
	return func(c *AgentConfig) { c.Enabled = v }
}

func WithHost(v string) Option {
	return func(c *AgentConfig) { c.Host = v }
}

func WithPort(v int) Option {
	return func(c *AgentConfig) { c.Port = v }
}

func WithContextPath(v string) Option {
	return func(c *AgentConfig) { c.ContextPath = v }
}

func WithWebsocket(v bool) Option {
	return func(c *AgentConfig) { c.WebsocketEnabled = v }
}

func WithInterval(v time.Duration) Option {
	return func(c *AgentConfig) { c.Interval = v }
}

func WithGcEventBufferSize(v int) Option {
	return func(c *AgentConfig) { c.GcEventBufferSize = v }
}

func WithStringTable(v bool) Option {
	return func(c *AgentConfig) { c.CollectStringTable = v }
}

func WithSampleTimeout(v time.Duration) Option {
	return func(c *AgentConfig) { c.SampleTimeout = v }
}

func WithQueueSize(v int) Option {
	return func(c *AgentConfig) { c.QueueSize = v }
}

func WithMaxFailures(v int) Option {
	return func(c *AgentConfig) { c.MaxFailures = v }
}

func WithWriteTimeout(v time.Duration) Option {
	return func(c *AgentConfig) { c.WriteTimeout = v }
}

func WithWelcomeSnapshot(v bool) Option {
	return func(c *AgentConfig) { c.WelcomeSnapshot = v }
}

func WithLogLevel(v string) Option {
	return func(c *AgentConfig) { c.LogLevel = v }
}

func WithMemoryPools(names ...string) Option {
	return func(c *AgentConfig) { c.IncludeMemoryPools = names }
}

func WithGcNames(names ...string) Option {
	return func(c *AgentConfig) { c.IncludeGcNames = names }
}

func WithThreadNamePrefixes(prefixes ...string) Option {
	return func(c *AgentConfig) { c.IncludeThreadNamePrefixes = prefixes }
}

// Address returns host:port for the HTTP listener.
func (c *AgentConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// EffectiveSampleTimeout returns SampleTimeout, or half the interval capped at five seconds when unset.
func (c *AgentConfig) EffectiveSampleTimeout() time.Duration {
	if c.SampleTimeout > 0 {
		return c.SampleTimeout
	}
	timeout := c.Interval / 2
	if timeout <= 0 {
		timeout = time.Millisecond
	}
	if timeout > maxSampleTimeout {
		timeout = maxSampleTimeout
	}
	return timeout
}

// Validate reports the first out-of-range value.
func (c *AgentConfig) Validate() error {
	switch {
	case c.Interval <= 0:
		return fmt.Errorf("%w: interval must be positive, got %s", internalerrors.ErrInvalidConfig, c.Interval)
	case c.GcEventBufferSize < 0:
		return fmt.Errorf("%w: gc event buffer size must not be negative, got %d", internalerrors.ErrInvalidConfig, c.GcEventBufferSize)
	case c.Port < 0 || c.Port > 65535:
		return fmt.Errorf("%w: port out of range: %d", internalerrors.ErrInvalidConfig, c.Port)
	case c.QueueSize < 1:
		return fmt.Errorf("%w: queue size must be at least 1, got %d", internalerrors.ErrInvalidConfig, c.QueueSize)
	case c.MaxFailures < 1:
		return fmt.Errorf("%w: max failures must be at least 1, got %d", internalerrors.ErrInvalidConfig, c.MaxFailures)
	case c.SampleTimeout < 0:
		return fmt.Errorf("%w: sample timeout must not be negative", internalerrors.ErrInvalidConfig)
	case c.WriteTimeout <= 0:
		return fmt.Errorf("%w: write timeout must be positive", internalerrors.ErrInvalidConfig)
	case strings.ContainsAny(c.ContextPath, "*{} \t\n?#"):
		return fmt.Errorf("%w: context path must be a plain path, got %q", internalerrors.ErrInvalidConfig, c.ContextPath)
	}
	return nil
}

// NormalizeContextPath returns "/" for empty input, otherwise a path with one
// leading slash and no trailing slash.
func NormalizeContextPath(cp string) string {
	if cp == "" || cp == "/" {
		return "/"
	}
	if !strings.HasPrefix(cp, "/") {
		cp = "/" + cp
	}
	if cp = strings.TrimRight(cp, "/"); cp == "" {
		return "/"
	}
	return cp
}

// LoadConfig parses command-line arguments, then applies EIDOLON_* environment
// variables for flags that were not set explicitly. A .env file in the working
// directory is loaded first when present.
func LoadConfig(args []string) (*AgentConfig, error) {
	loadDotEnv()

	config := DefaultConfig()
	flags := flag.NewFlagSet("eidolon", flag.ContinueOnError)

	flags.BoolVar(&config.Enabled, "enabled", config.Enabled, "enable the agent")
	flags.StringVar(&config.Host, "host", config.Host, "listen host")
	flags.IntVar(&config.Port, "port", config.Port, "listen port")
	flags.StringVar(&config.ContextPath, "c", config.ContextPath, "context path all endpoints are mounted under")
	flags.BoolVar(&config.WebsocketEnabled, "ws", config.WebsocketEnabled, "enable the websocket push stream")
	flags.DurationVar(&config.Interval, "i", config.Interval, "broadcast interval")
	flags.IntVar(&config.GcEventBufferSize, "b", config.GcEventBufferSize, "gc event history capacity")
	flags.BoolVar(&config.CollectStringTable, "s", config.CollectStringTable, "collect the string table diagnostic")
	flags.DurationVar(&config.SampleTimeout, "t", config.SampleTimeout, "soft timeout of one sampling pass")
	flags.IntVar(&config.QueueSize, "q", config.QueueSize, "per-subscriber queue size")
	flags.IntVar(&config.MaxFailures, "f", config.MaxFailures, "consecutive drops before a subscriber is disconnected")
	flags.StringVar(&config.LogLevel, "l", config.LogLevel, "log level")
	pools := flags.String("pools", "", "comma separated memory pool allow-list")
	gcNames := flags.String("gc-names", "", "comma separated gc name allow-list")
	threadPrefixes := flags.String("thread-prefixes", "", "comma separated goroutine creator prefix allow-list")

	if err := flags.Parse(args); err != nil {
		return nil, err
	}
	config.IncludeMemoryPools = splitList(*pools)
	config.IncludeGcNames = splitList(*gcNames)
	config.IncludeThreadNamePrefixes = splitList(*threadPrefixes)

	if err := applyEnvOverrides(config, flags); err != nil {
		return nil, err
	}
	config.ContextPath = NormalizeContextPath(config.ContextPath)

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
