// Package config loads the settings of the rstdemo binary. Values are layered
// in order of priority: defaults, an optional YAML file and RSTDEMO_
// environment variables; command line flags are applied on top by the
// caller.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"

	"github.com/capatazlib/go-rst/rst"
)

// EnvPrefix is the prefix of the environment variables read by Load
const EnvPrefix = "RSTDEMO_"

// PathEnvVar is the environment variable that points to the config file when
// no explicit path is given
const PathEnvVar = EnvPrefix + "CONFIG"

// Config contains all the settings of the demo binary
type Config struct {
	Log        LogConfig        `koanf:"log"`
	HTTP       HTTPConfig       `koanf:"http"`
	Supervisor SupervisorConfig `koanf:"supervisor"`
	Listen     ListenConfig     `koanf:"listen"`
	Sabotage   SabotageConfig   `koanf:"sabotage"`
}

// LogConfig configures the logrus logger
type LogConfig struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// HTTPConfig configures the status/events server; an empty address disables
// it
type HTTPConfig struct {
	Addr string `koanf:"addr"`
}

// SupervisorConfig contains the settings shared by every supervisor the demo
// builds
type SupervisorConfig struct {
	ChannelCapacity  int           `koanf:"channel_capacity"`
	MaxAttempts      uint32        `koanf:"max_attempts"`
	RestartWindow    time.Duration `koanf:"restart_window"`
	Backoff          time.Duration `koanf:"backoff"`
	MaxBackoff       time.Duration `koanf:"max_backoff"`
	ReliableNotifier bool          `koanf:"reliable_notifier"`
}

// ListenConfig configures the TCP accept source
type ListenConfig struct {
	Addr string `koanf:"addr"`
}

// SabotageConfig enables the fault injection API
type SabotageConfig struct {
	Enabled bool `koanf:"enabled"`
}

// Default returns the configuration used when nothing else is specified
func Default() *Config {
	policy := rst.DefaultRestartPolicy()
	return &Config{
		Log: LogConfig{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTPConfig{
			Addr: "127.0.0.1:8080",
		},
		Supervisor: SupervisorConfig{
			ChannelCapacity:  64,
			MaxAttempts:      policy.MaxAttempts,
			RestartWindow:    policy.Window,
			Backoff:          policy.Backoff,
			MaxBackoff:       policy.MaxBackoff,
			ReliableNotifier: true,
		},
		Listen: ListenConfig{
			Addr: "127.0.0.1:9000",
		},
	}
}

// Load reads the configuration; when path is empty the file pointed by
// RSTDEMO_CONFIG is used, if any.
func Load(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("failed to load defaults: %w", err)
	}

	if path == "" {
		path = os.Getenv(PathEnvVar)
	}
	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(EnvPrefix, ".", envTransformFunc), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment variables: %w", err)
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal configuration: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// envTransformFunc maps RSTDEMO_SUPERVISOR_MAX_ATTEMPTS to
// supervisor.max_attempts; only the first underscore separates the section.
func envTransformFunc(key string) string {
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	return strings.Replace(key, "_", ".", 1)
}

// Validate checks the configuration values are usable
func (c *Config) Validate() error {
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}
	if c.Supervisor.ChannelCapacity <= 0 {
		return fmt.Errorf("supervisor.channel_capacity must be positive, got %d", c.Supervisor.ChannelCapacity)
	}
	if c.Supervisor.RestartWindow < 0 || c.Supervisor.Backoff < 0 || c.Supervisor.MaxBackoff < 0 {
		return fmt.Errorf("supervisor durations must not be negative")
	}
	if c.Listen.Addr == "" {
		return fmt.Errorf("listen.addr is required")
	}
	return nil
}

// RestartPolicy returns the restart policy built from the supervisor settings
func (c *Config) RestartPolicy() rst.RestartPolicy {
	return rst.RestartPolicy{
		MaxAttempts: c.Supervisor.MaxAttempts,
		Window:      c.Supervisor.RestartWindow,
		Backoff:     c.Supervisor.Backoff,
		MaxBackoff:  c.Supervisor.MaxBackoff,
	}
}

// SupervisorOpts returns the options every demo supervisor is built with
func (c *Config) SupervisorOpts() []rst.Opt {
	return []rst.Opt{
		rst.WithChannelCapacity(c.Supervisor.ChannelCapacity),
		rst.WithRestartPolicy(c.RestartPolicy()),
	}
}
