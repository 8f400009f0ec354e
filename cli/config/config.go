package config

import (
	"fmt"
	"time"
)

// Config represents a docbench.yaml configuration file.
// All values are optional and act as defaults for command flags.
// CLI flags always override config values.
type Config struct {
	Server   ServerConfig   `yaml:"server"`
	LoadTest LoadTestConfig `yaml:"loadtest"`
	Storage  StorageConfig  `yaml:"storage"`
	Adapter  AdapterConfig  `yaml:"adapter"`
}

// ServerConfig holds connection defaults for the indexing server.
type ServerConfig struct {
	Host        string   `yaml:"host"`
	Port        int      `yaml:"port"`
	DialTimeout Duration `yaml:"dial_timeout"`
	IOTimeout   Duration `yaml:"io_timeout"`
	BufferSize  int      `yaml:"buffer_size"`
	StatusWidth int      `yaml:"status_width"`
	ErrorMarker string   `yaml:"error_marker"`
}

// LoadTestConfig holds load test defaults.
type LoadTestConfig struct {
	Threads        int      `yaml:"threads"`
	MaxDatasetSize int      `yaml:"max_dataset_size"`
	PollInterval   Duration `yaml:"poll_interval"`
	// PollTimeout is a pointer so an explicit 0 (no deadline) is distinct
	// from an omitted value.
	PollTimeout *Duration `yaml:"poll_timeout,omitempty"`
	Target      string    `yaml:"target"`
}

// StorageConfig holds report store defaults from the config file.
type StorageConfig struct {
	Dataset     string `yaml:"dataset"`
	Backend     string `yaml:"backend"`
	Path        string `yaml:"path"`
	Region      string `yaml:"region"`
	Endpoint    string `yaml:"endpoint"`
	S3PathStyle bool   `yaml:"s3_path_style"`
}

// AdapterConfig holds notification adapter defaults from the config file.
type AdapterConfig struct {
	Type    string            `yaml:"type"`
	URL     string            `yaml:"url"`
	Channel string            `yaml:"channel,omitempty"`
	Headers map[string]string `yaml:"headers,omitempty"`
	Timeout Duration          `yaml:"timeout,omitempty"`
	Retries *int              `yaml:"retries,omitempty"`
}

// Duration wraps time.Duration for YAML string parsing (e.g. "100ms", "5m").
type Duration struct {
	time.Duration
}

// UnmarshalYAML parses a duration string like "10s" or "5m30s".
func (d *Duration) UnmarshalYAML(unmarshal func(any) error) error {
	var s string
	if err := unmarshal(&s); err != nil {
		return err
	}
	if s == "" {
		return nil
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	if parsed < 0 {
		return fmt.Errorf("invalid duration %q: must not be negative", s)
	}
	d.Duration = parsed
	return nil
}

// Validate checks values that cannot be corrected by defaults.
func (c *Config) Validate() error {
	if c.Server.Port < 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	if c.LoadTest.Threads < 0 {
		return fmt.Errorf("loadtest.threads must be >= 0, got %d", c.LoadTest.Threads)
	}
	if c.LoadTest.MaxDatasetSize < 0 {
		return fmt.Errorf("loadtest.max_dataset_size must be >= 0, got %d", c.LoadTest.MaxDatasetSize)
	}
	switch c.LoadTest.Target {
	case "", "succeeded", "submitted":
	default:
		return fmt.Errorf("loadtest.target must be succeeded or submitted, got %q", c.LoadTest.Target)
	}
	switch c.Storage.Backend {
	case "", "fs", "s3":
	default:
		return fmt.Errorf("storage.backend must be fs or s3, got %q", c.Storage.Backend)
	}
	switch c.Adapter.Type {
	case "", "redis", "webhook":
	default:
		return fmt.Errorf("adapter.type must be redis or webhook, got %q", c.Adapter.Type)
	}
	if c.Adapter.Retries != nil && *c.Adapter.Retries < 0 {
		return fmt.Errorf("adapter.retries must be >= 0, got %d", *c.Adapter.Retries)
	}
	return nil
}
