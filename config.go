package taskcache

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/tailscale/hujson"
	"go.uber.org/zap"
)

// Config bundles every knob that influences cache behavior. Fields are
// immutable once a Cache is constructed; mutate by rebuilding with New.
type Config struct {
	MaxMemorySize       uint64        `json:"max_memory_size"` //nolint:tagliatelle
	MaxDiskSize         uint64        `json:"max_disk_size"`   //nolint:tagliatelle
	MaxSizeBytes        uint64        `json:"max_size_bytes"`  //nolint:tagliatelle
	InlineThreshold     int           `json:"inline_threshold"`
	EvictionPolicy      string        `json:"eviction_policy"` //nolint:tagliatelle
	CompressionEnabled  bool          `json:"compression_enabled"`
	CompressionLevel    int           `json:"compression_level"`
	CompressionMinSize  int64         `json:"compression_min_size"` //nolint:tagliatelle
	CleanupInterval     time.Duration `json:"-"`
	ReadPermits         int64         `json:"read_permits"`
	WritePermits        int64         `json:"write_permits"`
	MemTierCapacity     int           `json:"-"`
	OrphanScanBatchSize int           `json:"-"`

	logger   *zap.Logger
	registry prometheus.Registerer
}

// DefaultConfig returns the documented defaults: a 1 GiB memory budget,
// 10 GiB disk quota, LRU eviction, and zstd compression at or above 1 KiB.
func DefaultConfig() Config {
	return Config{
		MaxMemorySize:       1 << 30,
		MaxDiskSize:         10 << 30,
		MaxSizeBytes:        0,
		InlineThreshold:     1024,
		EvictionPolicy:      "lru",
		CompressionEnabled:  true,
		CompressionLevel:    3,
		CompressionMinSize:  1024,
		CleanupInterval:     60 * time.Second,
		ReadPermits:         200,
		WritePermits:        50,
		MemTierCapacity:     256,
		OrphanScanBatchSize: 50,
		logger:              zap.NewNop(),
	}
}

// Option mutates a Config during New. Options are applied after any
// cache.json5 file under baseDir is merged in, so they take precedence
// over the file, the same defaults-then-file-then-overrides order a CLI
// flag would take over a config file.
type Option func(*Config)

// WithMaxMemorySize overrides the in-memory byte budget.
func WithMaxMemorySize(bytes uint64) Option {
	return func(c *Config) { c.MaxMemorySize = bytes }
}

// WithMaxDiskSize overrides the on-disk quota enforced by the resource manager.
func WithMaxDiskSize(bytes uint64) Option {
	return func(c *Config) { c.MaxDiskSize = bytes }
}

// WithEvictionPolicy selects "lru", "lfu", or "arc".
func WithEvictionPolicy(name string) Option {
	return func(c *Config) { c.EvictionPolicy = name }
}

// WithCompression toggles zstd compression and its level/threshold.
func WithCompression(enabled bool, level int, minSize int64) Option {
	return func(c *Config) {
		c.CompressionEnabled = enabled
		c.CompressionLevel = level
		c.CompressionMinSize = minSize
	}
}

// WithCleanupInterval overrides the background cleanup cadence.
func WithCleanupInterval(d time.Duration) Option {
	return func(c *Config) { c.CleanupInterval = d }
}

// WithPermits overrides the read/write I/O concurrency limits.
func WithPermits(read, write int64) Option {
	return func(c *Config) {
		c.ReadPermits = read
		c.WritePermits = write
	}
}

// WithLogger plugs an external zap.Logger. The cache logs WAL recovery and
// rotations, the eviction policy selected at open, entries evicted for
// corruption or read failures, an eviction policy with no victims while
// over budget, and (at debug level) each demotion out of the memory tier.
func WithLogger(l *zap.Logger) Option {
	return func(c *Config) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithInlineThreshold overrides the fast-path size cutoff.
func WithInlineThreshold(bytes int) Option {
	return func(c *Config) { c.InlineThreshold = bytes }
}

// WithPrometheus registers the cache's C11 metrics against reg. Metrics
// are unregistered (not exposed) if this option is never passed.
func WithPrometheus(reg prometheus.Registerer) Option {
	return func(c *Config) { c.registry = reg }
}

// configFileName is the optional on-disk tuning file, parsed as JWCC
// (JSON-with-comments).
const configFileName = "cache.json5"

// loadConfigFile merges baseDir/cache.json5 onto cfg if the file exists.
// A missing file is not an error; a malformed one is.
func loadConfigFile(baseDir string, cfg Config) (Config, error) {
	path := filepath.Join(baseDir, configFileName)

	data, err := os.ReadFile(path) //nolint:gosec
	if err != nil {
		if os.IsNotExist(err) {
			return cfg, nil
		}

		return cfg, fmt.Errorf("taskcache: read %s: %w", path, err)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return cfg, fmt.Errorf("taskcache: invalid JSONC in %s: %w", path, err)
	}

	var overlay fileConfig
	if err := json.Unmarshal(standardized, &overlay); err != nil {
		return cfg, fmt.Errorf("taskcache: invalid JSON in %s: %w", path, err)
	}

	return overlay.applyTo(cfg), nil
}

// fileConfig mirrors Config's JSON-tagged fields as pointers, so the merge
// can distinguish "absent" from "explicitly zero".
type fileConfig struct {
	MaxMemorySize      *uint64 `json:"max_memory_size"` //nolint:tagliatelle
	MaxDiskSize        *uint64 `json:"max_disk_size"`   //nolint:tagliatelle
	MaxSizeBytes       *uint64 `json:"max_size_bytes"`  //nolint:tagliatelle
	InlineThreshold    *int    `json:"inline_threshold"`
	EvictionPolicy     *string `json:"eviction_policy"` //nolint:tagliatelle
	CompressionEnabled *bool   `json:"compression_enabled"`
	CompressionLevel   *int    `json:"compression_level"`
	CompressionMinSize *int64  `json:"compression_min_size"` //nolint:tagliatelle
	ReadPermits        *int64  `json:"read_permits"`
	WritePermits       *int64  `json:"write_permits"`
}

func (f fileConfig) applyTo(cfg Config) Config {
	if f.MaxMemorySize != nil {
		cfg.MaxMemorySize = *f.MaxMemorySize
	}

	if f.MaxDiskSize != nil {
		cfg.MaxDiskSize = *f.MaxDiskSize
	}

	if f.MaxSizeBytes != nil {
		cfg.MaxSizeBytes = *f.MaxSizeBytes
	}

	if f.InlineThreshold != nil {
		cfg.InlineThreshold = *f.InlineThreshold
	}

	if f.EvictionPolicy != nil {
		cfg.EvictionPolicy = *f.EvictionPolicy
	}

	if f.CompressionEnabled != nil {
		cfg.CompressionEnabled = *f.CompressionEnabled
	}

	if f.CompressionLevel != nil {
		cfg.CompressionLevel = *f.CompressionLevel
	}

	if f.CompressionMinSize != nil {
		cfg.CompressionMinSize = *f.CompressionMinSize
	}

	if f.ReadPermits != nil {
		cfg.ReadPermits = *f.ReadPermits
	}

	if f.WritePermits != nil {
		cfg.WritePermits = *f.WritePermits
	}

	return cfg
}

func validateConfig(cfg Config) error {
	if cfg.InlineThreshold < 0 {
		return fmt.Errorf("taskcache: inline_threshold must be >= 0")
	}

	switch cfg.EvictionPolicy {
	case "lru", "lfu", "arc":
	default:
		return fmt.Errorf("taskcache: unknown eviction_policy %q", cfg.EvictionPolicy)
	}

	if cfg.ReadPermits <= 0 || cfg.WritePermits <= 0 {
		return fmt.Errorf("taskcache: read_permits and write_permits must be > 0")
	}

	return nil
}
