package kernel

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	yaml "github.com/goccy/go-yaml"
)

// Config mirrors config.yml
type Config struct {
	TickMS         int    `yaml:"tick_ms"`         // 10 (by default), clock interrupt period of the simulator
	PriorityLevels int    `yaml:"priority_levels"` // 256 (by default), 0 is the highest priority
	WorkQueueSize  int    `yaml:"work_queue_size"` // 64 (by default), deferred jobs before the kernel panics
	LogLevel       string `yaml:"log_level"`       // info (by default)
	TraceCSV       string `yaml:"trace_csv"`       // empty = no CSV trace
}

// DefaultConfig is used when no config file is found.
func DefaultConfig() Config {
	return Config{
		TickMS:         10,
		PriorityLevels: 256,
		WorkQueueSize:  64,
		LogLevel:       "info",
	}
}

// Load reads YAML and overrides defaults; empty path or a missing file = defaults only.
// The priority level count is not clamped: New rejects a bad one.
func Load(path string) (Config, error) {
	cfg := DefaultConfig()

	if path == "" {
		return cfg, nil
	}
	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return cfg, nil
	}
	if err != nil {
		return cfg, fmt.Errorf("read config %s: %w", path, err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config %s: %w", path, err)
	}

	// sanity clamps
	if cfg.TickMS <= 0 {
		cfg.TickMS = 10
	}
	if cfg.WorkQueueSize <= 0 {
		cfg.WorkQueueSize = 64
	}
	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return cfg, nil
}
