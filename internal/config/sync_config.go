package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/xelth-com/colocacion/internal/logger"
)

// SyncConfig holds ERP synchronization configuration
type SyncConfig struct {
	Enabled         bool          `envconfig:"SYNC_ENABLED" default:"true"`
	OnStartup       bool          `envconfig:"SYNC_ON_STARTUP" default:"true"`
	DefaultStrategy string        `envconfig:"SYNC_CONFLICT_STRATEGY" default:"timestamp"` // erp_wins, local_wins, timestamp, manual
	Interval        time.Duration `envconfig:"SYNC_INTERVAL" default:"15m"`
	MaxItems        int           `envconfig:"SYNC_MAX_ITEMS" default:"100"`
	Freshness       time.Duration `envconfig:"SYNC_FRESHNESS" default:"1h"`
	ItemDelay       time.Duration `envconfig:"SYNC_ITEM_DELAY" default:"100ms"`
	LockTTL         time.Duration `envconfig:"SYNC_LOCK_TTL" default:"30s"`
	ConflictTTL     time.Duration `envconfig:"SYNC_CONFLICT_TTL" default:"24h"`
	// How long a "keep local" decision suppresses the same ERP value
	DecisionTTL time.Duration `envconfig:"SYNC_DECISION_TTL" default:"720h"`

	// Path to a JSON file overriding the values above
	FilePath string `envconfig:"SYNC_CONFIG_PATH"`
}

// syncConfigFile is the on-disk shape; durations are given in seconds/milliseconds
type syncConfigFile struct {
	Enabled           *bool   `json:"enabled"`
	OnStartup         *bool   `json:"on_startup"`
	DefaultStrategy   *string `json:"default_strategy"`
	IntervalSeconds   *int    `json:"interval_seconds"`
	MaxItems          *int    `json:"max_items"`
	FreshnessSeconds  *int    `json:"freshness_seconds"`
	ItemDelayMillis   *int    `json:"item_delay_ms"`
	LockTTLSeconds    *int    `json:"lock_ttl_seconds"`
	ConflictTTLMinute *int    `json:"conflict_ttl_minutes"`
	DecisionTTLHours  *int    `json:"decision_ttl_hours"`
}

// applyFile overlays SYNC_CONFIG_PATH onto the env-derived values
func (c *SyncConfig) applyFile() error {
	if c.FilePath == "" {
		return nil
	}

	data, err := os.ReadFile(c.FilePath)
	if err != nil {
		return fmt.Errorf("failed to read sync config %s: %w", c.FilePath, err)
	}

	var f syncConfigFile
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("failed to parse sync config %s: %w", c.FilePath, err)
	}

	if f.Enabled != nil {
		c.Enabled = *f.Enabled
	}
	if f.OnStartup != nil {
		c.OnStartup = *f.OnStartup
	}
	if f.DefaultStrategy != nil {
		c.DefaultStrategy = *f.DefaultStrategy
	}
	if f.IntervalSeconds != nil {
		c.Interval = time.Duration(*f.IntervalSeconds) * time.Second
	}
	if f.MaxItems != nil {
		c.MaxItems = *f.MaxItems
	}
	if f.FreshnessSeconds != nil {
		c.Freshness = time.Duration(*f.FreshnessSeconds) * time.Second
	}
	if f.ItemDelayMillis != nil {
		c.ItemDelay = time.Duration(*f.ItemDelayMillis) * time.Millisecond
	}
	if f.LockTTLSeconds != nil {
		c.LockTTL = time.Duration(*f.LockTTLSeconds) * time.Second
	}
	if f.ConflictTTLMinute != nil {
		c.ConflictTTL = time.Duration(*f.ConflictTTLMinute) * time.Minute
	}
	if f.DecisionTTLHours != nil {
		c.DecisionTTL = time.Duration(*f.DecisionTTLHours) * time.Hour
	}

	logger.Logger.Info().Str("path", c.FilePath).Msg("📄 Sync config loaded from file")
	return nil
}

func (c *SyncConfig) validate() error {
	switch c.DefaultStrategy {
	case "erp_wins", "local_wins", "timestamp", "manual":
	default:
		return fmt.Errorf("invalid SYNC_CONFLICT_STRATEGY %q", c.DefaultStrategy)
	}
	if c.MaxItems <= 0 {
		return fmt.Errorf("SYNC_MAX_ITEMS must be positive, got %d", c.MaxItems)
	}
	if c.Interval <= 0 {
		c.Interval = 15 * time.Minute
	}
	if c.DecisionTTL <= 0 {
		c.DecisionTTL = 720 * time.Hour
	}
	return nil
}
