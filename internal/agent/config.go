package agent

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/Schera-ole/eidolon/internal/config"
)

// ObserverConfig configures the remote observer.
type ObserverConfig struct {
	Address      string
	ContextPath  string
	PingInterval int
	LogLevel     string
}

// Ping returns the ping period, zero when pings are disabled.
func (c *ObserverConfig) Ping() time.Duration {
	return time.Duration(c.PingInterval) * time.Second
}

// StreamURL is the websocket endpoint of the observed agent.
func (c *ObserverConfig) StreamURL() string {
	path := c.ContextPath
	if path == "/" {
		path = ""
	}
	return "ws://" + c.Address + path + "/ws/metrics"
}

// NewObserverConfig parses args; environment variables override flags.
func NewObserverConfig(args []string) (*ObserverConfig, error) {
	flags := flag.NewFlagSet("agent", flag.ContinueOnError)
	address := flags.String("a", "localhost:7090", "Address of the observed agent")
	contextPath := flags.String("c", config.DefaultContextPath, "Context path of the observed agent")
	pingInterval := flags.Int("p", 10, "Ping period in seconds, 0 disables pings")
	logLevel := flags.String("l", "info", "Log level")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	envIntVars := map[string]*int{
		"PING_INTERVAL": pingInterval,
	}

	envStrVars := map[string]*string{
		"ADDRESS":      address,
		"CONTEXT_PATH": contextPath,
		"LOG_LEVEL":    logLevel,
	}

	for envVar, flag := range envIntVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			interval, err := strconv.Atoi(envValue)
			if err != nil {
				return nil, fmt.Errorf("invalid %s value %q: %w", envVar, envValue, err)
			}
			*flag = interval
		}
	}

	for envVar, flag := range envStrVars {
		if envValue := os.Getenv(envVar); envValue != "" {
			*flag = envValue
		}
	}

	if *pingInterval < 0 {
		return nil, fmt.Errorf("ping interval must not be negative: %d", *pingInterval)
	}

	return &ObserverConfig{
		Address:      *address,
		ContextPath:  config.NormalizeContextPath(*contextPath),
		PingInterval: *pingInterval,
		LogLevel:     *logLevel,
	}, nil
}
