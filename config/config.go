// Package config loads the dispatch configuration with Viper.
//
// Precedence, lowest to highest: built-in defaults, /etc/dispatch,
// ~/.dispatch, a dispatch.toml found by walking up from the working
// directory, then DISPATCH_* environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/fieldops/dispatch/cascade"
	"github.com/fieldops/dispatch/limbo"
	"github.com/fieldops/dispatch/negotiate"
)

// Config is the full dispatch configuration tree.
type Config struct {
	Database   DatabaseConfig   `mapstructure:"database"`
	Scheduling SchedulingConfig `mapstructure:"scheduling"`
	Limbo      LimboConfig      `mapstructure:"limbo"`
	Cascade    CascadeConfig    `mapstructure:"cascade"`
	Log        LogConfig        `mapstructure:"log"`
}

// DatabaseConfig configures the SQLite job store.
type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// SchedulingConfig configures the negotiation protocol.
type SchedulingConfig struct {
	// HorizonMonths is how far ahead a time may be proposed (default: 6).
	HorizonMonths int `mapstructure:"horizon_months"`
	// DefaultTimezone is the fallback IANA zone when neither the job nor
	// the provider carries one. Empty means no fallback.
	DefaultTimezone string `mapstructure:"default_timezone"`
}

// LimboConfig configures staleness detection dwell times, in hours.
// Values <= 0 fall back to the built-in thresholds.
type LimboConfig struct {
	CancellationPendingHours int `mapstructure:"cancellation_pending_hours"`
	CompletionPendingHours   int `mapstructure:"completion_pending_hours"`
	RevisionPendingHours     int `mapstructure:"revision_pending_hours"`
	HomeownerUnlinkedHours   int `mapstructure:"homeowner_unlinked_hours"`
	UnscheduledHours         int `mapstructure:"unscheduled_hours"`
	PastDueGraceHours        int `mapstructure:"past_due_grace_hours"`
}

// CascadeConfig configures cancellation impact analysis.
type CascadeConfig struct {
	// TravelBufferMinutes is the same-day adjacency window (default: 120).
	TravelBufferMinutes int `mapstructure:"travel_buffer_minutes"`
}

// LogConfig configures logger output.
type LogConfig struct {
	// JSON switches from the console encoder to structured JSON output.
	JSON bool `mapstructure:"json"`
}

var globalConfig *Config
var viperInstance *viper.Viper

// Load reads the dispatch configuration using Viper.
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	v := initViper()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	globalConfig = &config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access.
func GetViper() *viper.Viper {
	return initViper()
}

// LoadFromFile loads configuration from a specific file path.
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config from %s: %w", configPath, err)
	}

	return &config, nil
}

// Reset clears the cached configuration (useful for testing).
func Reset() {
	globalConfig = nil
	viperInstance = nil
}

// SetDefaults configures default values for all configuration options.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("database.path", "dispatch.db")

	v.SetDefault("scheduling.horizon_months", negotiate.DefaultHorizonMonths)
	v.SetDefault("scheduling.default_timezone", "")

	defaults := limbo.DefaultThresholds()
	v.SetDefault("limbo.cancellation_pending_hours", int(defaults.CancellationPending.Hours()))
	v.SetDefault("limbo.completion_pending_hours", int(defaults.CompletionPending.Hours()))
	v.SetDefault("limbo.revision_pending_hours", int(defaults.RevisionPending.Hours()))
	v.SetDefault("limbo.homeowner_unlinked_hours", int(defaults.HomeownerUnlinked.Hours()))
	v.SetDefault("limbo.unscheduled_hours", int(defaults.Unscheduled.Hours()))
	v.SetDefault("limbo.past_due_grace_hours", int(defaults.PastDueGrace.Hours()))

	v.SetDefault("cascade.travel_buffer_minutes", int(cascade.DefaultTravelBuffer.Minutes()))

	v.SetDefault("log.json", false)
}

// Thresholds converts the configured dwell times to detector thresholds.
// Any non-positive value keeps its built-in default.
func (c LimboConfig) Thresholds() limbo.Thresholds {
	t := limbo.DefaultThresholds()
	if c.CancellationPendingHours > 0 {
		t.CancellationPending = time.Duration(c.CancellationPendingHours) * time.Hour
	}
	if c.CompletionPendingHours > 0 {
		t.CompletionPending = time.Duration(c.CompletionPendingHours) * time.Hour
	}
	if c.RevisionPendingHours > 0 {
		t.RevisionPending = time.Duration(c.RevisionPendingHours) * time.Hour
	}
	if c.HomeownerUnlinkedHours > 0 {
		t.HomeownerUnlinked = time.Duration(c.HomeownerUnlinkedHours) * time.Hour
	}
	if c.UnscheduledHours > 0 {
		t.Unscheduled = time.Duration(c.UnscheduledHours) * time.Hour
	}
	if c.PastDueGraceHours > 0 {
		t.PastDueGrace = time.Duration(c.PastDueGraceHours) * time.Hour
	}
	return t
}

// TravelBuffer converts the configured adjacency window to a duration.
func (c CascadeConfig) TravelBuffer() time.Duration {
	if c.TravelBufferMinutes <= 0 {
		return cascade.DefaultTravelBuffer
	}
	return time.Duration(c.TravelBufferMinutes) * time.Minute
}

// initViper initializes Viper with configuration sources and defaults.
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix("DISPATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// findProjectConfig searches for dispatch.toml by walking up the
// directory tree. Returns an empty string if none found.
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		path := filepath.Join(dir, "dispatch.toml")
		if _, err := os.Stat(path); err == nil {
			return path
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

// mergeConfigFiles merges configuration files in precedence order:
// system < user < project. Environment variables still win overall.
func mergeConfigFiles(v *viper.Viper) {
	homeDir, _ := os.UserHomeDir()

	configPaths := []string{
		"/etc/dispatch/config.toml",
		filepath.Join(homeDir, ".dispatch", "config.toml"),
	}
	if projectConfig := findProjectConfig(); projectConfig != "" {
		configPaths = append(configPaths, projectConfig)
	}

	for _, configPath := range configPaths {
		if _, err := os.Stat(configPath); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(configPath)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}
		for key, value := range tempViper.AllSettings() {
			v.Set(key, value)
		}
	}
}
