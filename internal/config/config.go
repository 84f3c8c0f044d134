// Package config loads extractor settings from defaults, an optional YAML
// file, KBX_* environment variables and command-line flags.
package config

import (
	"math"
	"path/filepath"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/dustin/go-humanize"

	"github.com/yourorg/kb-extract/internal/resolve"
	"github.com/yourorg/kb-extract/internal/rules"
	"github.com/yourorg/kb-extract/internal/writer"
)

// Config is the full extractor configuration.
// Field tags use mapstructure for viper unmarshalling.
type Config struct {
	EntityTypes   []string `mapstructure:"entity_types"`
	Lang          string   `mapstructure:"lang"`
	Format        string   `mapstructure:"format"`
	OutputDir     string   `mapstructure:"output_dir"`
	ProcessImages bool     `mapstructure:"process_images"`
	// Workers <= 0 means one per CPU.
	Workers     int    `mapstructure:"workers"`
	BatchSize   int    `mapstructure:"batch_size"`
	MaxLineSize string `mapstructure:"max_line_size"`
	PublishURI  string `mapstructure:"publish_uri"`
	Cleanup     bool   `mapstructure:"cleanup"`
	MetricsAddr string `mapstructure:"metrics_addr"`

	Cache    CacheConfig    `mapstructure:"cache"`
	Resolver ResolverConfig `mapstructure:"resolver"`
	Images   ImagesConfig   `mapstructure:"images"`
	Log      LogConfig      `mapstructure:"log"`
}

// CacheConfig locates the durable label cache.
type CacheConfig struct {
	// Path defaults to <output_dir>/label_cache.
	Path string `mapstructure:"path"`
}

// ResolverConfig controls identifier label lookups.
type ResolverConfig struct {
	Enabled   bool          `mapstructure:"enabled"`
	Endpoint  string        `mapstructure:"endpoint"`
	BatchSize int           `mapstructure:"batch_size"`
	Timeout   time.Duration `mapstructure:"timeout"`
	// Rate is requests per second; 0 disables limiting.
	Rate float64 `mapstructure:"rate"`
}

// ImagesConfig controls thumbnail construction and fetching.
type ImagesConfig struct {
	Width   int           `mapstructure:"width"`
	Timeout time.Duration `mapstructure:"timeout"`
	Rate    float64       `mapstructure:"rate"`
}

// LogConfig controls the zap logger.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	File       string `mapstructure:"file"`
	MaxSizeMB  int    `mapstructure:"max_size_mb"`
	MaxBackups int    `mapstructure:"max_backups"`
}

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// Validate checks Config invariants and returns the first error found.
func (c *Config) Validate() error {
	if len(c.EntityTypes) == 0 {
		return errors.Wrap(ErrInvalid, "entity_types must not be empty")
	}
	tbl := rules.Default()
	for _, typ := range c.EntityTypes {
		if !tbl.Has(typ) {
			return errors.WithHintf(errors.Wrapf(ErrInvalid, "unknown entity type %q", typ), "known types: %v", tbl.Types())
		}
	}
	if c.Lang == "" {
		return errors.Wrap(ErrInvalid, "lang must not be empty")
	}
	if _, err := writer.ParseFormat(c.Format); err != nil {
		return errors.Wrapf(ErrInvalid, "format: %v", err)
	}
	if c.OutputDir == "" {
		return errors.Wrap(ErrInvalid, "output_dir must not be empty")
	}
	if c.BatchSize <= 0 {
		return errors.Wrap(ErrInvalid, "batch_size must be positive")
	}
	if _, err := c.MaxLineBytes(); err != nil {
		return err
	}
	if c.Resolver.BatchSize <= 0 || c.Resolver.BatchSize > resolve.MaxBatch {
		return errors.Wrapf(ErrInvalid, "resolver.batch_size must be between 1 and %d", resolve.MaxBatch)
	}
	if c.Resolver.Rate < 0 || c.Images.Rate < 0 {
		return errors.Wrap(ErrInvalid, "rates must be non-negative")
	}
	if c.Images.Width <= 0 {
		return errors.Wrap(ErrInvalid, "images.width must be positive")
	}
	return nil
}

// OutputFormat returns the parsed output encoding.
func (c *Config) OutputFormat() writer.Format {
	f, _ := writer.ParseFormat(c.Format)
	return f
}

// MaxLineBytes parses max_line_size; "" or "0" means unlimited.
func (c *Config) MaxLineBytes() (int, error) {
	if c.MaxLineSize == "" {
		return 0, nil
	}
	n, err := humanize.ParseBytes(c.MaxLineSize)
	if err != nil {
		return 0, errors.Wrapf(ErrInvalid, "max_line_size %q: %v", c.MaxLineSize, err)
	}
	if n > math.MaxInt {
		return 0, errors.Wrapf(ErrInvalid, "max_line_size %q is too large", c.MaxLineSize)
	}
	return int(n), nil
}

// CachePath returns the label cache directory.
func (c *Config) CachePath() string {
	if c.Cache.Path != "" {
		return c.Cache.Path
	}
	return filepath.Join(c.OutputDir, "label_cache")
}
