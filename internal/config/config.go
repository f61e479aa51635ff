package config

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/viper"

	"github.com/jonasyr/HashSmith-sub000/internal/hasher"
)

// Config represents the hashing run configuration
type Config struct {
	// Hashing settings
	Algorithm      string `mapstructure:"algorithm"`       // md5, sha1, sha256, sha512, blake2b, blake3
	Workers        int    `mapstructure:"workers"`         // worker goroutine ceiling
	BaseChunkSize  int    `mapstructure:"base_chunk_size"` // chunk size before workload adaptation
	MinChunkSize   int    `mapstructure:"min_chunk_size"`  // lower chunk bound
	MaxChunkSize   int    `mapstructure:"max_chunk_size"`  // upper chunk bound
	MaxAttempts    int    `mapstructure:"max_attempts"`    // attempts per file for transient failures
	TimeoutSeconds int    `mapstructure:"timeout_seconds"` // per-attempt I/O deadline

	// Mode flags
	Resume          bool `mapstructure:"resume"`           // skip files already recorded as hashed
	FixErrors       bool `mapstructure:"fix_errors"`       // re-attempt only recorded failures
	Strict          bool `mapstructure:"strict"`           // integrity/discovery problems are fatal
	VerifyIntegrity bool `mapstructure:"verify_integrity"` // snapshot files before and after reading
	IncludeHidden   bool `mapstructure:"include_hidden"`   // hash hidden files
	IncludeSymlinks bool `mapstructure:"include_symlinks"` // hash symlink targets

	// Discovery settings
	Exclude []string `mapstructure:"exclude"` // glob patterns excluded from the scan

	// Output settings
	LogFile      string `mapstructure:"log_file"`      // state log path (default <root>.hashlog)
	ReportFile   string `mapstructure:"report_file"`   // optional run-report export path
	ReportFormat string `mapstructure:"report_format"` // text, json, yaml

	// Circuit breaker settings
	BreakerThreshold       int `mapstructure:"breaker_threshold"`        // consecutive failures before opening
	BreakerCooldownSeconds int `mapstructure:"breaker_cooldown_seconds"` // seconds the breaker stays open
}

// LoadConfig loads configuration from defaults, an optional YAML config
// file, and HASHSMITH_* environment variables, in ascending precedence.
// CLI flags override the result field-by-field in cmd.
func LoadConfig(configFile string) (*Config, error) {
	v := viper.New()

	// Set defaults
	v.SetDefault("algorithm", "sha256")
	v.SetDefault("workers", runtime.NumCPU()*2)
	v.SetDefault("base_chunk_size", 100)
	v.SetDefault("min_chunk_size", 10)
	v.SetDefault("max_chunk_size", 1000)
	v.SetDefault("max_attempts", 3)
	v.SetDefault("timeout_seconds", 30)
	v.SetDefault("resume", false)
	v.SetDefault("fix_errors", false)
	v.SetDefault("strict", false)
	v.SetDefault("verify_integrity", false)
	v.SetDefault("include_hidden", false)
	v.SetDefault("include_symlinks", false)
	v.SetDefault("exclude", []string{})
	v.SetDefault("report_format", "text")
	v.SetDefault("breaker_threshold", 10)
	v.SetDefault("breaker_cooldown_seconds", 30)

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	}

	// Read environment variables
	v.SetEnvPrefix("HASHSMITH")
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}

// Validate checks field ranges and mode compatibility.
func (c *Config) Validate() error {
	if !hasher.Supported(c.Algorithm) {
		return fmt.Errorf("unsupported algorithm %q", c.Algorithm)
	}
	if c.Workers <= 0 {
		return fmt.Errorf("workers must be positive, got %d", c.Workers)
	}
	if c.MinChunkSize <= 0 || c.MaxChunkSize < c.MinChunkSize {
		return fmt.Errorf("invalid chunk bounds [%d, %d]", c.MinChunkSize, c.MaxChunkSize)
	}
	if c.BaseChunkSize < c.MinChunkSize || c.BaseChunkSize > c.MaxChunkSize {
		return fmt.Errorf("base chunk size %d outside bounds [%d, %d]",
			c.BaseChunkSize, c.MinChunkSize, c.MaxChunkSize)
	}
	if c.MaxAttempts <= 0 {
		return fmt.Errorf("max attempts must be positive, got %d", c.MaxAttempts)
	}
	if c.Resume && c.FixErrors {
		return fmt.Errorf("resume and fix-errors are mutually exclusive")
	}
	if c.FixErrors || c.Resume {
		if c.LogFile == "" {
			return fmt.Errorf("resume and fix-errors require an existing log file")
		}
		if _, err := os.Stat(c.LogFile); err != nil {
			return fmt.Errorf("log file %s: %w", c.LogFile, err)
		}
	}
	return nil
}
