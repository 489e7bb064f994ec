package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/objstream/objstream/pkg/types"
)

func TestNewDefaultValidates(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config should validate: %v", err)
	}
}

func TestDefaultReadOptions(t *testing.T) {
	cfg := NewDefault()
	opts, err := cfg.ReadOptions()
	if err != nil {
		t.Fatalf("ReadOptions: %v", err)
	}
	if opts.Pattern != types.PatternAuto {
		t.Errorf("Pattern = %v, want auto", opts.Pattern)
	}
	if opts.InPlaceSeekLimit != 8*1024 {
		t.Errorf("InPlaceSeekLimit = %d, want 8192", opts.InPlaceSeekLimit)
	}
	if opts.MinRangeRequestSize != 2*1024 {
		t.Errorf("MinRangeRequestSize = %d, want 2048", opts.MinRangeRequestSize)
	}
	if !opts.ChecksumsEnabled {
		t.Error("expected checksums enabled by default")
	}
	if opts.FetchTimeout != 30*time.Second {
		t.Errorf("FetchTimeout = %v, want 30s", opts.FetchTimeout)
	}
}

func TestLoadFromFile(t *testing.T) {
	content := `
read:
  access_pattern: random
  in_place_seek_limit: 4KiB
  min_range_request_size: 1KiB
  checksums_enabled: false
transport:
  region: eu-west-1
  pool_size: 8
network:
  retry:
    max_attempts: 2
monitoring:
  log_level: DEBUG
`
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}

	cfg := NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		t.Fatalf("LoadFromFile: %v", err)
	}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("Validate: %v", err)
	}

	opts, err := cfg.ReadOptions()
	if err != nil {
		t.Fatalf("ReadOptions: %v", err)
	}
	if opts.Pattern != types.PatternRandom {
		t.Errorf("Pattern = %v, want random", opts.Pattern)
	}
	if opts.InPlaceSeekLimit != 4096 {
		t.Errorf("InPlaceSeekLimit = %d, want 4096", opts.InPlaceSeekLimit)
	}
	if opts.ChecksumsEnabled {
		t.Error("expected checksums disabled")
	}
	if cfg.Transport.Region != "eu-west-1" {
		t.Errorf("Region = %q, want eu-west-1", cfg.Transport.Region)
	}
	if cfg.Network.Retry.MaxAttempts != 2 {
		t.Errorf("MaxAttempts = %d, want 2", cfg.Network.Retry.MaxAttempts)
	}
}

func TestLoadFromFileMissing(t *testing.T) {
	cfg := NewDefault()
	if err := cfg.LoadFromFile("/nonexistent/config.yaml"); err == nil {
		t.Error("expected error for missing file")
	}
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("OBJSTREAM_ACCESS_PATTERN", "sequential")
	t.Setenv("OBJSTREAM_IN_PLACE_SEEK_LIMIT", "16KiB")
	t.Setenv("OBJSTREAM_CHECKSUMS_ENABLED", "false")
	t.Setenv("OBJSTREAM_REGION", "ap-south-1")
	t.Setenv("OBJSTREAM_POOL_SIZE", "16")

	cfg := NewDefault()
	if err := cfg.LoadFromEnv(); err != nil {
		t.Fatalf("LoadFromEnv: %v", err)
	}
	if cfg.Read.AccessPattern != "sequential" {
		t.Errorf("AccessPattern = %q", cfg.Read.AccessPattern)
	}
	if cfg.Read.InPlaceSeekLimit != "16KiB" {
		t.Errorf("InPlaceSeekLimit = %q", cfg.Read.InPlaceSeekLimit)
	}
	if cfg.Read.ChecksumsEnabled {
		t.Error("expected checksums disabled")
	}
	if cfg.Transport.Region != "ap-south-1" {
		t.Errorf("Region = %q", cfg.Transport.Region)
	}
	if cfg.Transport.PoolSize != 16 {
		t.Errorf("PoolSize = %d", cfg.Transport.PoolSize)
	}
}

func TestValidateRejectsBadValues(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Configuration)
	}{
		{"bad pattern", func(c *Configuration) { c.Read.AccessPattern = "chaotic" }},
		{"bad size", func(c *Configuration) { c.Read.InPlaceSeekLimit = "lots" }},
		{"zero pool", func(c *Configuration) { c.Transport.PoolSize = 0 }},
		{"zero attempts", func(c *Configuration) { c.Network.Retry.MaxAttempts = 0 }},
		{"bad log level", func(c *Configuration) { c.Monitoring.LogLevel = "LOUD" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := NewDefault()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		input   string
		want    int64
		wantErr bool
	}{
		{"512", 512, false},
		{"512B", 512, false},
		{"8KiB", 8192, false},
		{"4MiB", 4 * 1024 * 1024, false},
		{"1GiB", 1 << 30, false},
		{"4KB", 4000, false},
		{"2MB", 2000000, false},
		{"8 KiB", 8192, false},
		{"", 0, false},
		{"abc", 0, true},
		{"12Q", 0, true},
	}
	for _, tt := range tests {
		got, err := ParseSize(tt.input)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseSize(%q): expected error", tt.input)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseSize(%q): %v", tt.input, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseSize(%q) = %d, want %d", tt.input, got, tt.want)
		}
	}
}
