package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v2"

	"github.com/objstream/objstream/pkg/types"
)

// Configuration represents the complete client configuration.
type Configuration struct {
	Read       ReadConfig       `yaml:"read"`
	Transport  TransportConfig  `yaml:"transport"`
	Network    NetworkConfig    `yaml:"network"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
}

// ReadConfig holds the default read-channel tuning applied when a caller
// opens a channel without explicit options.
type ReadConfig struct {
	AccessPattern       string        `yaml:"access_pattern"`
	InPlaceSeekLimit    string        `yaml:"in_place_seek_limit"`
	MinRangeRequestSize string        `yaml:"min_range_request_size"`
	ChecksumsEnabled    bool          `yaml:"checksums_enabled"`
	FetchTimeout        time.Duration `yaml:"fetch_timeout"`
}

// TransportConfig holds settings for the S3 transport.
type TransportConfig struct {
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	SessionToken    string `yaml:"session_token"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	PoolSize        int    `yaml:"pool_size"`
	ChunkSize       string `yaml:"chunk_size"`
}

// NetworkConfig groups timeout, retry and circuit breaker settings.
type NetworkConfig struct {
	Timeouts TimeoutConfig `yaml:"timeouts"`
	Retry    RetryConfig   `yaml:"retry"`
	Breaker  BreakerConfig `yaml:"circuit_breaker"`
}

// TimeoutConfig holds per-operation deadlines.
type TimeoutConfig struct {
	Connect time.Duration `yaml:"connect"`
	Fetch   time.Duration `yaml:"fetch"`
	Write   time.Duration `yaml:"write"`
}

// RetryConfig holds retry settings for the range fetcher.
type RetryConfig struct {
	MaxAttempts  int           `yaml:"max_attempts"`
	InitialDelay time.Duration `yaml:"initial_delay"`
	MaxDelay     time.Duration `yaml:"max_delay"`
}

// BreakerConfig holds circuit breaker settings for the transport.
type BreakerConfig struct {
	Enabled          bool          `yaml:"enabled"`
	FailureThreshold int           `yaml:"failure_threshold"`
	Interval         time.Duration `yaml:"interval"`
	Timeout          time.Duration `yaml:"timeout"`
}

// MonitoringConfig holds observability settings.
type MonitoringConfig struct {
	LogLevel string        `yaml:"log_level"`
	Metrics  MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus exposition settings.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Port      int    `yaml:"port"`
	Path      string `yaml:"path"`
	Namespace string `yaml:"namespace"`
}

// NewDefault returns a configuration with sensible defaults.
func NewDefault() *Configuration {
	return &Configuration{
		Read: ReadConfig{
			AccessPattern:       "auto",
			InPlaceSeekLimit:    "8KiB",
			MinRangeRequestSize: "2KiB",
			ChecksumsEnabled:    true,
			FetchTimeout:        30 * time.Second,
		},
		Transport: TransportConfig{
			Region:    "us-east-1",
			PoolSize:  4,
			ChunkSize: "64KiB",
		},
		Network: NetworkConfig{
			Timeouts: TimeoutConfig{
				Connect: 10 * time.Second,
				Fetch:   30 * time.Second,
				Write:   120 * time.Second,
			},
			Retry: RetryConfig{
				MaxAttempts:  4,
				InitialDelay: 100 * time.Millisecond,
				MaxDelay:     10 * time.Second,
			},
			Breaker: BreakerConfig{
				Enabled:          true,
				FailureThreshold: 5,
				Interval:         60 * time.Second,
				Timeout:          30 * time.Second,
			},
		},
		Monitoring: MonitoringConfig{
			LogLevel: "INFO",
			Metrics: MetricsConfig{
				Enabled:   false,
				Port:      9090,
				Path:      "/metrics",
				Namespace: "objstream",
			},
		},
	}
}

// LoadFromFile loads configuration from a YAML file.
func (c *Configuration) LoadFromFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// LoadFromEnv loads configuration overrides from OBJSTREAM_* environment
// variables.
func (c *Configuration) LoadFromEnv() error {
	if val := os.Getenv("OBJSTREAM_LOG_LEVEL"); val != "" {
		c.Monitoring.LogLevel = val
	}
	if val := os.Getenv("OBJSTREAM_METRICS_PORT"); val != "" {
		if port, err := strconv.Atoi(val); err == nil {
			c.Monitoring.Metrics.Port = port
		}
	}
	if val := os.Getenv("OBJSTREAM_ACCESS_PATTERN"); val != "" {
		c.Read.AccessPattern = val
	}
	if val := os.Getenv("OBJSTREAM_IN_PLACE_SEEK_LIMIT"); val != "" {
		c.Read.InPlaceSeekLimit = val
	}
	if val := os.Getenv("OBJSTREAM_MIN_RANGE_REQUEST_SIZE"); val != "" {
		c.Read.MinRangeRequestSize = val
	}
	if val := os.Getenv("OBJSTREAM_CHECKSUMS_ENABLED"); val != "" {
		c.Read.ChecksumsEnabled = strings.EqualFold(val, "true")
	}
	if val := os.Getenv("OBJSTREAM_REGION"); val != "" {
		c.Transport.Region = val
	}
	if val := os.Getenv("OBJSTREAM_ENDPOINT"); val != "" {
		c.Transport.Endpoint = val
	}
	if val := os.Getenv("OBJSTREAM_POOL_SIZE"); val != "" {
		if n, err := strconv.Atoi(val); err == nil {
			c.Transport.PoolSize = n
		}
	}
	return nil
}

// Validate validates the configuration.
func (c *Configuration) Validate() error {
	if _, err := types.ParseAccessPattern(c.Read.AccessPattern); err != nil {
		return fmt.Errorf("invalid access_pattern: %w", err)
	}
	if _, err := ParseSize(c.Read.InPlaceSeekLimit); err != nil {
		return fmt.Errorf("invalid in_place_seek_limit: %w", err)
	}
	if _, err := ParseSize(c.Read.MinRangeRequestSize); err != nil {
		return fmt.Errorf("invalid min_range_request_size: %w", err)
	}
	if c.Transport.PoolSize <= 0 {
		return fmt.Errorf("pool_size must be greater than 0")
	}
	if c.Network.Retry.MaxAttempts <= 0 {
		return fmt.Errorf("retry max_attempts must be greater than 0")
	}

	validLogLevels := []string{"DEBUG", "INFO", "WARN", "ERROR"}
	valid := false
	for _, level := range validLogLevels {
		if strings.EqualFold(c.Monitoring.LogLevel, level) {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid log_level: %s (must be one of: %s)",
			c.Monitoring.LogLevel, strings.Join(validLogLevels, ", "))
	}
	return nil
}

// ReadOptions converts the read section into normalized channel options.
func (c *Configuration) ReadOptions() (types.ReadOptions, error) {
	pattern, err := types.ParseAccessPattern(c.Read.AccessPattern)
	if err != nil {
		return types.ReadOptions{}, err
	}
	skipLimit, err := ParseSize(c.Read.InPlaceSeekLimit)
	if err != nil {
		return types.ReadOptions{}, fmt.Errorf("in_place_seek_limit: %w", err)
	}
	minRange, err := ParseSize(c.Read.MinRangeRequestSize)
	if err != nil {
		return types.ReadOptions{}, fmt.Errorf("min_range_request_size: %w", err)
	}
	opts := types.ReadOptions{
		Pattern:             pattern,
		InPlaceSeekLimit:    skipLimit,
		MinRangeRequestSize: minRange,
		ChecksumsEnabled:    c.Read.ChecksumsEnabled,
		FetchTimeout:        c.Read.FetchTimeout,
	}
	return opts.Normalize(), nil
}

// ParseSize parses a human-readable size string like "512", "8KiB", "4MB".
// Decimal (KB, MB, GB) and binary (KiB, MiB, GiB) suffixes are supported.
func ParseSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}

	units := []struct {
		suffix string
		factor int64
	}{
		{"GiB", 1 << 30},
		{"MiB", 1 << 20},
		{"KiB", 1 << 10},
		{"GB", 1e9},
		{"MB", 1e6},
		{"KB", 1e3},
		{"B", 1},
	}

	for _, u := range units {
		if strings.HasSuffix(s, u.suffix) {
			num := strings.TrimSpace(strings.TrimSuffix(s, u.suffix))
			n, err := strconv.ParseInt(num, 10, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			return n * u.factor, nil
		}
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}
