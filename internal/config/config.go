// Package config loads timetray settings from the TOML config file and the
// TIMETRAY_* environment.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/kelseyhightower/envconfig"
)

// EnvPrefix prefixes every environment override, e.g. TIMETRAY_DATA_FILE.
const EnvPrefix = "TIMETRAY"

// Config holds all timetray configuration.
type Config struct {
	General    GeneralConfig    `toml:"general"`
	Daemon     DaemonConfig     `toml:"daemon"`
	Log        LogConfig        `toml:"log"`
	Appearance AppearanceConfig `toml:"appearance"`
}

// GeneralConfig holds the data location and report preferences.
type GeneralConfig struct {
	DataFile          string  `toml:"data_file,omitempty"`
	MaxWeeks          int     `toml:"max_weeks"`
	WeeklyTargetHours float64 `toml:"weekly_target_hours,omitempty"`
}

// DaemonConfig holds daemon listen and polling settings.
type DaemonConfig struct {
	Addr            string `toml:"addr"`
	PollIntervalSec int    `toml:"poll_interval_sec"`
	EventsBuffer    int    `toml:"events_buffer"`
}

// LogConfig holds the log level.
type LogConfig struct {
	Level string `toml:"level"`
}

// AppearanceConfig holds theme settings.
type AppearanceConfig struct {
	Theme string `toml:"theme"`
}

// envOverrides mirrors the settings that may come from the environment.
// Unset variables leave the pointers nil.
type envOverrides struct {
	DataFile          *string        `envconfig:"DATA_FILE"`
	MaxWeeks          *int           `envconfig:"MAX_WEEKS"`
	WeeklyTargetHours *float64       `envconfig:"WEEKLY_TARGET_HOURS"`
	Addr              *string        `envconfig:"ADDR"`
	PollInterval      *time.Duration `envconfig:"POLL_INTERVAL"`
	LogLevel          *string        `envconfig:"LOG_LEVEL"`
	Theme             *string        `envconfig:"THEME"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		General: GeneralConfig{
			MaxWeeks: 20,
		},
		Daemon: DaemonConfig{
			Addr:            "127.0.0.1:8788",
			PollIntervalSec: 30,
			EventsBuffer:    200,
		},
		Log: LogConfig{
			Level: "info",
		},
		Appearance: AppearanceConfig{
			Theme: "flexoki-dark",
		},
	}
}

// ConfigDir returns the XDG-compliant config directory.
func ConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "timetray")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "timetray")
}

// ConfigPath returns the full path to the config file.
func ConfigPath() string {
	return filepath.Join(ConfigDir(), "config.toml")
}

// DataDir returns the XDG-compliant data directory.
func DataDir() string {
	if xdg := os.Getenv("XDG_DATA_HOME"); xdg != "" {
		return filepath.Join(xdg, "timetray")
	}
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".local", "share", "timetray")
}

// DefaultDataFile returns the interval log location used when none is
// configured.
func DefaultDataFile() string {
	return filepath.Join(DataDir(), "times.txt")
}

// Load reads the config file and applies environment overrides, returning
// defaults if the file doesn't exist.
func Load() (Config, error) {
	cfg, err := LoadFile(ConfigPath())
	if err != nil {
		return cfg, err
	}
	if err := ApplyEnv(&cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// LoadFile reads a config file on top of the defaults. A missing file is not
// an error.
func LoadFile(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path) //nolint:gosec // user config path
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return cfg, nil
		}
		return cfg, fmt.Errorf("reading config: %w", err)
	}

	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parsing config: %w", err)
	}

	return cfg, cfg.Validate()
}

// ApplyEnv overlays TIMETRAY_* environment variables onto cfg.
func ApplyEnv(cfg *Config) error {
	var env envOverrides
	if err := envconfig.Process(EnvPrefix, &env); err != nil {
		return fmt.Errorf("loading environment: %w", err)
	}

	if env.DataFile != nil {
		cfg.General.DataFile = *env.DataFile
	}
	if env.MaxWeeks != nil {
		cfg.General.MaxWeeks = *env.MaxWeeks
	}
	if env.WeeklyTargetHours != nil {
		cfg.General.WeeklyTargetHours = *env.WeeklyTargetHours
	}
	if env.Addr != nil {
		cfg.Daemon.Addr = *env.Addr
	}
	if env.PollInterval != nil {
		cfg.Daemon.PollIntervalSec = int(env.PollInterval.Seconds())
	}
	if env.LogLevel != nil {
		cfg.Log.Level = *env.LogLevel
	}
	if env.Theme != nil {
		cfg.Appearance.Theme = *env.Theme
	}
	return cfg.Validate()
}

// Validate rejects settings no component can work with.
func (c Config) Validate() error {
	if c.General.MaxWeeks < 0 {
		return fmt.Errorf("max_weeks must not be negative, got %d", c.General.MaxWeeks)
	}
	if c.General.WeeklyTargetHours < 0 {
		return fmt.Errorf("weekly_target_hours must not be negative, got %g", c.General.WeeklyTargetHours)
	}
	if c.Daemon.PollIntervalSec < 0 {
		return fmt.Errorf("poll_interval_sec must not be negative, got %d", c.Daemon.PollIntervalSec)
	}
	return nil
}

// DataFilePath returns the configured interval log, or the default location.
func (c Config) DataFilePath() string {
	if c.General.DataFile != "" {
		return c.General.DataFile
	}
	return DefaultDataFile()
}

// PollInterval returns the daemon poll period.
func (c Config) PollInterval() time.Duration {
	return time.Duration(c.Daemon.PollIntervalSec) * time.Second
}

// WeeklyTarget returns the weekly target as a duration, zero when unset.
func (c Config) WeeklyTarget() time.Duration {
	return time.Duration(c.General.WeeklyTargetHours * float64(time.Hour))
}

// Save writes the config to the default path.
func Save(cfg Config) error {
	return SaveFile(ConfigPath(), cfg)
}

// SaveFile writes the config to path, creating its directory.
func SaveFile(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("creating config dir: %w", err)
	}

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600) //nolint:gosec // user config path
	if err != nil {
		return fmt.Errorf("creating config file: %w", err)
	}
	defer func() { _ = f.Close() }()

	enc := toml.NewEncoder(f)
	return enc.Encode(cfg)
}

// Exists returns true if a config file exists on disk.
func Exists() bool {
	_, err := os.Stat(ConfigPath())
	return err == nil
}
