// Package config loads alignment and conversion settings from an optional
// YAML file, PHOTOSYNC_* environment variables and built-in defaults.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/penwyp/go-photometry-sync/internal/core/assembler"
	"github.com/penwyp/go-photometry-sync/internal/core/interleave"
	"github.com/spf13/viper"
)

const (
	EnvPrefix  = "PHOTOSYNC"
	configName = "photometry-sync"
	AppDir     = "~/.go-photometry-sync"
)

// Config is the resolved configuration.
type Config struct {
	Alignment  AlignmentConfig  `mapstructure:"alignment"`
	Conversion ConversionConfig `mapstructure:"conversion"`
	Batch      BatchConfig      `mapstructure:"batch"`
	Output     OutputConfig     `mapstructure:"output"`
	Ledger     LedgerConfig     `mapstructure:"ledger"`

	// File is the config file that was read, empty when defaults only.
	File string `mapstructure:"-"`
}

// AlignmentConfig tunes TTL extraction, windowing and deinterleaving.
type AlignmentConfig struct {
	EdgeThreshold    float64 `mapstructure:"edge_threshold"`
	RateTolerance    float64 `mapstructure:"rate_tolerance"`
	GapTolerance     float64 `mapstructure:"gap_tolerance"`
	DropTolerance    float64 `mapstructure:"drop_tolerance"`
	MinOverlapFrames int     `mapstructure:"min_overlap_frames"`
	Parity           string  `mapstructure:"parity"`
}

// ConversionConfig holds per-session conversion settings.
type ConversionConfig struct {
	StubFrames        int      `mapstructure:"stub_frames"`
	SamplingFrequency float64  `mapstructure:"sampling_frequency"`
	Timezone          string   `mapstructure:"timezone"`
	TTLStreams        []string `mapstructure:"ttl_streams"`
	RawBehavior       []string `mapstructure:"raw_behavior"`
	FiberTable        string   `mapstructure:"fiber_table"`
	MetadataFile      string   `mapstructure:"metadata_file"`
}

// BatchConfig controls the batch driver.
type BatchConfig struct {
	Concurrency   int           `mapstructure:"concurrency"`
	WatchDebounce time.Duration `mapstructure:"watch_debounce"`
}

// OutputConfig controls container writing.
type OutputConfig struct {
	WriteRetries  int           `mapstructure:"write_retries"`
	RetryInterval time.Duration `mapstructure:"retry_interval"`
	WriteReport   bool          `mapstructure:"write_report"`
}

// LedgerConfig locates the run history database.
type LedgerConfig struct {
	Path    string `mapstructure:"path"`
	Enabled bool   `mapstructure:"enabled"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("alignment.edge_threshold", 0.5)
	v.SetDefault("alignment.rate_tolerance", 0.10)
	v.SetDefault("alignment.gap_tolerance", 0.5)
	v.SetDefault("alignment.drop_tolerance", 0.5)
	v.SetDefault("alignment.min_overlap_frames", 0)
	v.SetDefault("alignment.parity", "even")

	v.SetDefault("conversion.stub_frames", 100)
	v.SetDefault("conversion.sampling_frequency", 18.0)
	v.SetDefault("conversion.timezone", "America/New_York")
	v.SetDefault("conversion.ttl_streams", []string{"ttlIn1", "ttlIn2"})
	v.SetDefault("conversion.raw_behavior", []string{})
	v.SetDefault("conversion.fiber_table", "fiber_table.csv")
	v.SetDefault("conversion.metadata_file", "")

	v.SetDefault("batch.concurrency", 1)
	v.SetDefault("batch.watch_debounce", 2*time.Second)

	v.SetDefault("output.write_retries", 3)
	v.SetDefault("output.retry_interval", 200*time.Millisecond)
	v.SetDefault("output.write_report", true)

	v.SetDefault("ledger.path", filepath.Join(AppDir, "ledger.db"))
	v.SetDefault("ledger.enabled", true)
}

// Load reads path when given, otherwise searches ./photometry-sync.yaml
// and ~/.go-photometry-sync/config.yaml. A missing search-path file is not
// an error; a missing explicit file is.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path == "" {
		path = searchConfig()
	}
	if path != "" {
		v.SetConfigFile(ExpandPath(path))
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	cfg.File = v.ConfigFileUsed()
	cfg.Ledger.Path = ExpandPath(cfg.Ledger.Path)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges.
func (c *Config) Validate() error {
	a := c.Alignment
	if a.RateTolerance <= 0 || a.GapTolerance <= 0 || a.DropTolerance <= 0 {
		return fmt.Errorf("alignment tolerances must be positive")
	}
	if a.MinOverlapFrames < 0 {
		return fmt.Errorf("alignment.min_overlap_frames must not be negative")
	}
	if _, err := interleave.ParseParity(a.Parity); err != nil {
		return err
	}
	if c.Conversion.StubFrames <= 0 {
		return fmt.Errorf("conversion.stub_frames must be positive")
	}
	if c.Conversion.SamplingFrequency < 0 {
		return fmt.Errorf("conversion.sampling_frequency must not be negative")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	if c.Batch.Concurrency < 1 {
		return fmt.Errorf("batch.concurrency must be at least 1")
	}
	if c.Output.WriteRetries < 0 {
		return fmt.Errorf("output.write_retries must not be negative")
	}
	return nil
}

// Location resolves the lab timezone.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Conversion.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid conversion.timezone %q: %w", c.Conversion.Timezone, err)
	}
	return loc, nil
}

// AssemblerOptions maps the alignment section onto assembler options.
// rate is the declared per-channel frame rate, zero to infer it.
func (c *Config) AssemblerOptions(rate float64, stub bool) assembler.Options {
	opts := assembler.DefaultOptions()
	opts.Timebase.Threshold = c.Alignment.EdgeThreshold
	opts.Timebase.RateTolerance = c.Alignment.RateTolerance
	opts.Timebase.GapTolerance = c.Alignment.GapTolerance
	opts.Timebase.ExpectedRate = rate
	opts.Interleave.DropTolerance = c.Alignment.DropTolerance
	// Validate has already accepted the parity string.
	opts.Interleave.Parity, _ = interleave.ParseParity(c.Alignment.Parity)
	opts.MinOverlapFrames = c.Alignment.MinOverlapFrames
	if stub {
		opts.StubFrames = c.Conversion.StubFrames
	}
	return opts
}

// SearchPaths lists the config files tried, in order, when no path is given.
func SearchPaths() []string {
	return []string{
		configName + ".yaml",
		filepath.Join(AppDir, "config.yaml"),
	}
}

func searchConfig() string {
	for _, candidate := range SearchPaths() {
		if _, err := os.Stat(ExpandPath(candidate)); err == nil {
			return candidate
		}
	}
	return ""
}

// ExpandPath resolves a leading ~/ and makes path absolute.
func ExpandPath(path string) string {
	if strings.HasPrefix(path, "~/") || path == "~" {
		home, _ := os.UserHomeDir()
		path = filepath.Join(home, strings.TrimPrefix(path[1:], "/"))
	}
	absPath, err := filepath.Abs(path)
	if err != nil {
		return path
	}
	return absPath
}
