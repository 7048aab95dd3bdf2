package domovoy

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/golobby/cast"
	"gopkg.in/yaml.v3"
)

// Config is the runtime's top-level configuration. Files may be YAML or
// TOML, chosen by extension, and individual values can be overridden
// through DOMOVOY_* environment variables.
type Config struct {
	// AppsPath is the directory watched for load-unit source changes.
	// Empty disables filesystem watching; reloads then come only from
	// explicit triggers.
	AppsPath string `yaml:"apps_path" toml:"apps_path" json:"appsPath"`

	// ListenAddr is the status API bind address.
	ListenAddr string `yaml:"listen_addr" toml:"listen_addr" json:"listenAddr"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `yaml:"log_level" toml:"log_level" json:"logLevel"`

	Location  LocationConfig  `yaml:"location" toml:"location" json:"location"`
	Scheduler SchedulerConfig `yaml:"scheduler" toml:"scheduler" json:"scheduler"`
	Reload    ReloadConfig    `yaml:"reload" toml:"reload" json:"reload"`
}

// LocationConfig places the installation for sun-event computation.
type LocationConfig struct {
	Latitude  float64 `yaml:"latitude" toml:"latitude" json:"latitude"`
	Longitude float64 `yaml:"longitude" toml:"longitude" json:"longitude"`
	Elevation float64 `yaml:"elevation" toml:"elevation" json:"elevation"`
}

// SchedulerConfig tunes the callback core.
type SchedulerConfig struct {
	TickInterval Duration `yaml:"tick_interval" toml:"tick_interval" json:"tickInterval"`
	Workers      int      `yaml:"workers" toml:"workers" json:"workers"`
	QueueSize    int      `yaml:"queue_size" toml:"queue_size" json:"queueSize"`
}

// ReloadConfig tunes the hot-reload tracker.
type ReloadConfig struct {
	Debounce Duration `yaml:"debounce" toml:"debounce" json:"debounce"`
}

// Duration is a time.Duration that (un)marshals as a string like "500ms"
// in YAML, TOML, and JSON config files.
type Duration time.Duration

// Std returns the value as a time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

func (d Duration) String() string { return time.Duration(d).String() }

// UnmarshalText implements encoding.TextUnmarshaler; both the YAML and
// TOML decoders route string scalars through it.
func (d *Duration) UnmarshalText(b []byte) error {
	parsed, err := time.ParseDuration(string(b))
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// MarshalText implements encoding.TextMarshaler.
func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// DefaultConfig returns the configuration used when no file is given.
func DefaultConfig() Config {
	return Config{
		AppsPath:   "apps",
		ListenAddr: ":8124",
		LogLevel:   "info",
		Scheduler: SchedulerConfig{
			TickInterval: Duration(250 * time.Millisecond),
			Workers:      8,
			QueueSize:    256,
		},
		Reload: ReloadConfig{
			Debounce: Duration(500 * time.Millisecond),
		},
	}
}

// LoadConfig reads a configuration file on top of the defaults and applies
// environment overrides. An empty path loads defaults plus environment
// only.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, fmt.Errorf("reading config %s: %w", path, err)
		}
		switch strings.ToLower(filepath.Ext(path)) {
		case ".yaml", ".yml":
			if err := yaml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		case ".toml":
			if err := toml.Unmarshal(data, &cfg); err != nil {
				return cfg, fmt.Errorf("parsing config %s: %w", path, err)
			}
		default:
			return cfg, fmt.Errorf("config %s: unsupported extension %q", path, filepath.Ext(path))
		}
	}

	if err := applyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// applyEnv overlays DOMOVOY_* environment variables onto the loaded
// configuration. Values are cast to the field's type, so malformed numbers
// surface as errors instead of zero values.
func applyEnv(cfg *Config) error {
	for _, ov := range []struct {
		env string
		set func(string) error
	}{
		{"DOMOVOY_APPS_PATH", func(v string) error { cfg.AppsPath = v; return nil }},
		{"DOMOVOY_LISTEN_ADDR", func(v string) error { cfg.ListenAddr = v; return nil }},
		{"DOMOVOY_LOG_LEVEL", func(v string) error { cfg.LogLevel = v; return nil }},
		{"DOMOVOY_LATITUDE", castFloat(&cfg.Location.Latitude)},
		{"DOMOVOY_LONGITUDE", castFloat(&cfg.Location.Longitude)},
		{"DOMOVOY_ELEVATION", castFloat(&cfg.Location.Elevation)},
		{"DOMOVOY_SCHEDULER_WORKERS", castInt(&cfg.Scheduler.Workers)},
		{"DOMOVOY_SCHEDULER_QUEUE_SIZE", castInt(&cfg.Scheduler.QueueSize)},
		{"DOMOVOY_SCHEDULER_TICK_INTERVAL", castDuration(&cfg.Scheduler.TickInterval)},
		{"DOMOVOY_RELOAD_DEBOUNCE", castDuration(&cfg.Reload.Debounce)},
	} {
		if v, ok := os.LookupEnv(ov.env); ok {
			if err := ov.set(v); err != nil {
				return fmt.Errorf("environment override %s: %w", ov.env, err)
			}
		}
	}
	return nil
}

func castFloat(dst *float64) func(string) error {
	return func(v string) error {
		out, err := cast.FromType(v, reflect.TypeOf(float64(0)))
		if err != nil {
			return err
		}
		*dst = out.(float64)
		return nil
	}
}

func castInt(dst *int) func(string) error {
	return func(v string) error {
		out, err := cast.FromType(v, reflect.TypeOf(int(0)))
		if err != nil {
			return err
		}
		*dst = out.(int)
		return nil
	}
}

func castDuration(dst *Duration) func(string) error {
	return func(v string) error {
		d, err := time.ParseDuration(v)
		if err != nil {
			return err
		}
		*dst = Duration(d)
		return nil
	}
}

// SlogLevel maps the configured log level onto its slog value. Unknown
// names fall back to info.
func (c Config) SlogLevel() slog.Level {
	switch strings.ToLower(c.LogLevel) {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
