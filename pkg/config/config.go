package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

const (
	// DefaultStatsFileName is created under the user's home directory when no
	// explicit stats file is configured.
	DefaultStatsFileName = ".workstats-stats"
	// DefaultEventLogPath is relative to the working directory.
	DefaultEventLogPath = "stats.db"
)

// Environment variables read by LoadFromEnv.
const (
	EnvNoStatsFile = "WORKSTATS_NO_STATS_FILE"
	EnvStatsFile   = "WORKSTATS_STATS_FILE"
	EnvEventLog    = "WORKSTATS_EVENT_LOG"
	EnvCores       = "WORKSTATS_CORES"
)

var (
	ErrInvalidConfig = errors.New("invalid configuration")
	ErrNoStatsPath   = errors.New("could not resolve stats file path")
)

// HomeDirFunc resolves the current user's home directory.
type HomeDirFunc func() (string, error)

type Config struct {
	// SuppressPersistence disables both the stats file and the event log.
	SuppressPersistence bool `json:"no_stats_file"`

	// StatsFile overrides the default snapshot location.
	StatsFile string `json:"stats_file,omitempty"`

	// EventLogPath is the SQLite file receiving one row per batch. It is
	// independent of StatsFile.
	EventLogPath string `json:"event_log"`

	// Cores is the number of worker cores. Retained for reporting only.
	Cores int `json:"cores"`
}

// NewDefaultConfig creates a Config with persistence enabled, the default
// event log path and a single core.
func NewDefaultConfig() *Config {
	return &Config{
		EventLogPath: DefaultEventLogPath,
		Cores:        1,
	}
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.Cores <= 0 {
		return fmt.Errorf("%w: cores must be positive, got %d", ErrInvalidConfig, c.Cores)
	}

	if c.SuppressPersistence {
		return nil
	}

	if strings.TrimSpace(c.EventLogPath) == "" {
		return fmt.Errorf("%w: event log path not specified", ErrInvalidConfig)
	}

	return nil
}

// ResolveStatsFile returns the explicit stats file if set, otherwise the
// default file name joined to the directory returned by home.
func (c *Config) ResolveStatsFile(home HomeDirFunc) (string, error) {
	if c.StatsFile != "" {
		return c.StatsFile, nil
	}

	if home == nil {
		return "", ErrNoStatsPath
	}

	dir, err := home()
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrNoStatsPath, err)
	}
	if dir == "" {
		return "", ErrNoStatsPath
	}

	return filepath.Join(dir, DefaultStatsFileName), nil
}

// LoadFromEnv overrides fields from WORKSTATS_* environment variables.
// Unparseable values are ignored.
func (c *Config) LoadFromEnv() {
	if val := os.Getenv(EnvNoStatsFile); val != "" {
		if suppress, err := strconv.ParseBool(val); err == nil {
			c.SuppressPersistence = suppress
		}
	}

	if val := os.Getenv(EnvStatsFile); val != "" {
		c.StatsFile = val
	}

	if val := os.Getenv(EnvEventLog); val != "" {
		c.EventLogPath = val
	}

	if val := os.Getenv(EnvCores); val != "" {
		if cores, err := strconv.Atoi(val); err == nil {
			c.Cores = cores
		}
	}
}

// LoadConfigFile reads a JSON configuration file on top of the defaults.
func LoadConfigFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	cfg := NewDefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}
