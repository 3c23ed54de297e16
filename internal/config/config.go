// Package config loads the cardlock configuration from a YAML file,
// CARDLOCK_* environment variables and command-line flags, in increasing
// order of precedence.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/goccy/go-yaml"
	"github.com/pion/logging"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// FileName is the configuration file name searched for without --config.
const FileName = "cardlock.yaml"

// EnvPrefix prefixes environment overrides, e.g. CARDLOCK_STORE_PATH.
const EnvPrefix = "CARDLOCK"

// ErrInvalid is wrapped by Validate errors.
var ErrInvalid = errors.New("config: invalid")

// Config is the complete cardlock configuration.
type Config struct {
	Store    StoreConfig  `mapstructure:"store" yaml:"store"`
	Reader   ReaderConfig `mapstructure:"reader" yaml:"reader"`
	Door     DoorConfig   `mapstructure:"door" yaml:"door"`
	Audit    AuditConfig  `mapstructure:"audit" yaml:"audit"`
	Log      LogConfig    `mapstructure:"log" yaml:"log"`
	Language string       `mapstructure:"language" yaml:"language"`
}

// StoreConfig locates the credential storage image.
type StoreConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
	Size int    `mapstructure:"size" yaml:"size"`
	Sync bool   `mapstructure:"sync" yaml:"sync"`
}

// ReaderConfig selects the card reader link. An empty address reads hex
// credentials from standard input.
type ReaderConfig struct {
	Address   string        `mapstructure:"address" yaml:"address"`
	Dial      time.Duration `mapstructure:"dial_timeout" yaml:"dial_timeout"`
	QueueSize int           `mapstructure:"queue_size" yaml:"queue_size"`
}

// DoorConfig holds the controller timings.
type DoorConfig struct {
	GrantDuration           time.Duration `mapstructure:"grant_duration" yaml:"grant_duration"`
	FeedbackHold            time.Duration `mapstructure:"feedback_hold" yaml:"feedback_hold"`
	PollInterval            time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
	FullWipeWindow          time.Duration `mapstructure:"full_wipe_window" yaml:"full_wipe_window"`
	ResetProvisioningWindow time.Duration `mapstructure:"reset_provisioning_window" yaml:"reset_provisioning_window"`
	HaltInterval            time.Duration `mapstructure:"halt_interval" yaml:"halt_interval"`
	BlinkPeriod             time.Duration `mapstructure:"blink_period" yaml:"blink_period"`
}

// AuditConfig configures the event journal.
type AuditConfig struct {
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
	Path    string `mapstructure:"path" yaml:"path"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level string `mapstructure:"level" yaml:"level"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Store: StoreConfig{
			Path: "cardlock.nv",
			Size: 1024,
		},
		Reader: ReaderConfig{
			Dial:      5 * time.Second,
			QueueSize: 16,
		},
		Door: DoorConfig{
			GrantDuration:           3 * time.Second,
			FeedbackHold:            time.Second,
			PollInterval:            50 * time.Millisecond,
			FullWipeWindow:          10 * time.Second,
			ResetProvisioningWindow: 5 * time.Second,
			HaltInterval:            time.Second,
			BlinkPeriod:             500 * time.Millisecond,
		},
		Audit: AuditConfig{
			Enabled: true,
			Path:    "cardlock-audit.db",
		},
		Log: LogConfig{
			Level: "info",
		},
		Language: "en",
	}
}

// defaults flattens Default into viper keys.
func defaults() map[string]any {
	d := Default()
	return map[string]any{
		"store.path":                     d.Store.Path,
		"store.size":                     d.Store.Size,
		"store.sync":                     d.Store.Sync,
		"reader.address":                 d.Reader.Address,
		"reader.dial_timeout":            d.Reader.Dial,
		"reader.queue_size":              d.Reader.QueueSize,
		"door.grant_duration":            d.Door.GrantDuration,
		"door.feedback_hold":             d.Door.FeedbackHold,
		"door.poll_interval":             d.Door.PollInterval,
		"door.full_wipe_window":          d.Door.FullWipeWindow,
		"door.reset_provisioning_window": d.Door.ResetProvisioningWindow,
		"door.halt_interval":             d.Door.HaltInterval,
		"door.blink_period":              d.Door.BlinkPeriod,
		"audit.enabled":                  d.Audit.Enabled,
		"audit.path":                     d.Audit.Path,
		"log.level":                      d.Log.Level,
		"language":                       d.Language,
	}
}

// FlagKeys maps command-line flag names to configuration keys.
var FlagKeys = map[string]string{
	"store":     "store.path",
	"reader":    "reader.address",
	"log-level": "log.level",
	"lang":      "language",
	"audit-db":  "audit.path",
}

// Load reads the configuration. If file is empty, cardlock.yaml is looked
// up in the user config directory and the working directory; a missing
// file is not an error. Flags that were set override every other source,
// and a set --no-audit flag disables the journal.
func Load(file string, flags *pflag.FlagSet) (Config, error) {
	var c Config
	v := viper.New()

	for key, value := range defaults() {
		v.SetDefault(key, value)
	}

	v.SetConfigType("yaml")
	if file != "" {
		v.SetConfigFile(file)
	} else {
		v.SetConfigName(strings.TrimSuffix(FileName, filepath.Ext(FileName)))
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "cardlock"))
		}
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if file != "" || !errors.As(err, &notFound) {
			return c, fmt.Errorf("config: read: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if flags != nil {
		for name, key := range FlagKeys {
			f := flags.Lookup(name)
			if f == nil {
				continue
			}
			if err := v.BindPFlag(key, f); err != nil {
				return c, fmt.Errorf("config: bind --%s: %w", name, err)
			}
		}
		if f := flags.Lookup("no-audit"); f != nil && f.Changed {
			v.Set("audit.enabled", false)
		}
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, fmt.Errorf("config: decode: %w", err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	if c.Store.Path == "" {
		return fmt.Errorf("%w: store.path is empty", ErrInvalid)
	}
	if c.Store.Size < 10 {
		return fmt.Errorf("%w: store.size %d is too small", ErrInvalid, c.Store.Size)
	}
	durations := map[string]time.Duration{
		"door.grant_duration":            c.Door.GrantDuration,
		"door.feedback_hold":             c.Door.FeedbackHold,
		"door.poll_interval":             c.Door.PollInterval,
		"door.full_wipe_window":          c.Door.FullWipeWindow,
		"door.reset_provisioning_window": c.Door.ResetProvisioningWindow,
		"door.halt_interval":             c.Door.HaltInterval,
		"door.blink_period":              c.Door.BlinkPeriod,
		"reader.dial_timeout":            c.Reader.Dial,
	}
	for key, d := range durations {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalid, key)
		}
	}
	if _, err := ParseLevel(c.Log.Level); err != nil {
		return err
	}
	if c.Audit.Enabled && c.Audit.Path == "" {
		return fmt.Errorf("%w: audit.path is empty", ErrInvalid)
	}
	return nil
}

// ParseLevel converts a level name into a pion log level.
func ParseLevel(s string) (logging.LogLevel, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "disabled", "off":
		return logging.LogLevelDisabled, nil
	case "error":
		return logging.LogLevelError, nil
	case "warn", "warning":
		return logging.LogLevelWarn, nil
	case "info", "":
		return logging.LogLevelInfo, nil
	case "debug":
		return logging.LogLevelDebug, nil
	case "trace":
		return logging.LogLevelTrace, nil
	default:
		return logging.LogLevelDisabled, fmt.Errorf("%w: log level %q", ErrInvalid, s)
	}
}

// LoggerFactory builds the pion logger factory for the configured level.
func (c *Config) LoggerFactory() logging.LoggerFactory {
	level, err := ParseLevel(c.Log.Level)
	if err != nil {
		level = logging.LogLevelInfo
	}
	f := logging.NewDefaultLoggerFactory()
	f.DefaultLogLevel = level
	return f
}

// Write stores c as YAML at path, creating parent directories.
func Write(path string, c Config) error {
	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("config: encode: %w", err)
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: create %s: %w", dir, err)
		}
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("config: write: %w", err)
	}
	return nil
}
