package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config represents the complete service configuration
type Config struct {
	Master     MasterConfig  `yaml:"master"`
	Talkgroups []string      `yaml:"talkgroups"`
	Rdio       RdioConfig    `yaml:"rdio"`
	Export     ExportConfig  `yaml:"export"`
	Peer       PeerConfig    `yaml:"peer"`
	HTTP       HTTPConfig    `yaml:"http"`
	Logging    LoggingConfig `yaml:"logging"`
}

// MasterConfig describes the WhackerLink master this bridge peers with
type MasterConfig struct {
	Address string `yaml:"address"`
	Port    int    `yaml:"port"`
	AuthKey string `yaml:"auth_key"` // empty: no AUTH message is sent
	RadioID string `yaml:"radio_id"` // source id used for talkgroup affiliations
}

// RdioConfig contains the Rdio Scanner ingestion API configuration
type RdioConfig struct {
	Endpoint    string `yaml:"endpoint"` // base URL, /api/call-upload is appended
	APIKey      string `yaml:"api_key"`
	SystemID    string `yaml:"system_id"`
	SystemLabel string `yaml:"system_label"` // empty: use the call's channel label
	Timeout     int    `yaml:"timeout"`      // seconds
}

// ExportConfig controls the finalized-call export workers
type ExportConfig struct {
	Workers        int    `yaml:"workers"`
	QueueSize      int    `yaml:"queue_size"`
	EnqueueTimeout int    `yaml:"enqueue_timeout"` // seconds; 0 drops at once when the queue is full
	SpoolDir       string `yaml:"spool_dir"`       // empty: recordings stay in memory
	KeepFailed     bool   `yaml:"keep_failed"`
	MaxAttempts    int    `yaml:"max_attempts"`
	RetryBackoff   int    `yaml:"retry_backoff"` // seconds, doubled per attempt
}

// PeerConfig controls reconnection to the master
type PeerConfig struct {
	ReconnectMin int `yaml:"reconnect_min"` // seconds
	ReconnectMax int `yaml:"reconnect_max"` // seconds
}

// HTTPConfig contains monitoring HTTP server configuration
type HTTPConfig struct {
	Port    int    `yaml:"port"`
	Address string `yaml:"address"`
	Enabled bool   `yaml:"enabled"`
}

// LoggingConfig contains logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads and parses the configuration file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", path, err)
	}

	config.ApplyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ApplyDefaults fills optional settings that were left empty
func (c *Config) ApplyDefaults() {
	if c.Rdio.SystemID == "" {
		c.Rdio.SystemID = "1"
	}
	if c.Rdio.Timeout == 0 {
		c.Rdio.Timeout = 30
	}
	if c.Export.Workers == 0 {
		c.Export.Workers = 2
	}
	if c.Export.QueueSize == 0 {
		c.Export.QueueSize = 64
	}
	if c.Export.MaxAttempts == 0 {
		c.Export.MaxAttempts = 1
	}
	if c.Export.RetryBackoff == 0 {
		c.Export.RetryBackoff = 2
	}
	if c.Peer.ReconnectMin == 0 {
		c.Peer.ReconnectMin = 1
	}
	if c.Peer.ReconnectMax == 0 {
		c.Peer.ReconnectMax = 30
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Logging.Format == "" {
		c.Logging.Format = "text"
	}
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	if err := c.Master.Validate(); err != nil {
		return fmt.Errorf("master config: %w", err)
	}

	for i, tg := range c.Talkgroups {
		if strings.TrimSpace(tg) == "" {
			return fmt.Errorf("talkgroups[%d] cannot be empty", i)
		}
	}

	if err := c.Rdio.Validate(); err != nil {
		return fmt.Errorf("rdio config: %w", err)
	}

	if err := c.Export.Validate(); err != nil {
		return fmt.Errorf("export config: %w", err)
	}

	if err := c.Peer.Validate(); err != nil {
		return fmt.Errorf("peer config: %w", err)
	}

	if err := c.HTTP.Validate(); err != nil {
		return fmt.Errorf("http config: %w", err)
	}

	if err := c.Logging.Validate(); err != nil {
		return fmt.Errorf("logging config: %w", err)
	}

	return nil
}

// Validate validates master configuration
func (m *MasterConfig) Validate() error {
	if m.Address == "" {
		return fmt.Errorf("address cannot be empty")
	}

	if m.Port < 1 || m.Port > 65535 {
		return fmt.Errorf("port must be between 1 and 65535, got %d", m.Port)
	}

	if m.RadioID == "" {
		return fmt.Errorf("radio_id cannot be empty")
	}

	return nil
}

// Validate validates ingestion API configuration
func (r *RdioConfig) Validate() error {
	if r.Endpoint == "" {
		return fmt.Errorf("endpoint cannot be empty")
	}

	if !strings.HasPrefix(r.Endpoint, "http://") && !strings.HasPrefix(r.Endpoint, "https://") {
		return fmt.Errorf("endpoint must be an http(s) URL, got '%s'", r.Endpoint)
	}

	if r.APIKey == "" {
		return fmt.Errorf("api_key cannot be empty")
	}

	if r.Timeout < 1 {
		return fmt.Errorf("timeout must be at least 1 second, got %d", r.Timeout)
	}

	return nil
}

// Validate validates export configuration
func (e *ExportConfig) Validate() error {
	if e.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", e.Workers)
	}

	if e.QueueSize < 1 {
		return fmt.Errorf("queue_size must be at least 1, got %d", e.QueueSize)
	}

	if e.EnqueueTimeout < 0 {
		return fmt.Errorf("enqueue_timeout cannot be negative, got %d", e.EnqueueTimeout)
	}

	if e.MaxAttempts < 1 {
		return fmt.Errorf("max_attempts must be at least 1, got %d", e.MaxAttempts)
	}

	if e.RetryBackoff < 0 {
		return fmt.Errorf("retry_backoff cannot be negative, got %d", e.RetryBackoff)
	}

	if e.KeepFailed && e.SpoolDir == "" {
		return fmt.Errorf("keep_failed requires spool_dir")
	}

	return nil
}

// Validate validates reconnection settings
func (p *PeerConfig) Validate() error {
	if p.ReconnectMin < 1 {
		return fmt.Errorf("reconnect_min must be at least 1 second, got %d", p.ReconnectMin)
	}

	if p.ReconnectMax < p.ReconnectMin {
		return fmt.Errorf("reconnect_max (%d) must not be less than reconnect_min (%d)",
			p.ReconnectMax, p.ReconnectMin)
	}

	return nil
}

// Validate validates HTTP configuration
func (h *HTTPConfig) Validate() error {
	if h.Enabled {
		if h.Port < 1 || h.Port > 65535 {
			return fmt.Errorf("http port must be between 1 and 65535, got %d", h.Port)
		}

		if h.Address == "" {
			return fmt.Errorf("http address cannot be empty when HTTP is enabled")
		}
	}

	return nil
}

// Validate validates logging configuration
func (l *LoggingConfig) Validate() error {
	validLevels := map[string]bool{
		"debug": true, "info": true, "warn": true, "error": true,
	}
	if !validLevels[l.Level] {
		return fmt.Errorf("level must be one of [debug, info, warn, error], got '%s'", l.Level)
	}

	validFormats := map[string]bool{"json": true, "text": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("format must be 'json' or 'text', got '%s'", l.Format)
	}

	// Output may be stdout, stderr, empty or a file path

	return nil
}

// GetTimeoutDuration returns the upload timeout as a time.Duration
func (r *RdioConfig) GetTimeoutDuration() time.Duration {
	return time.Duration(r.Timeout) * time.Second
}

// GetEnqueueTimeoutDuration returns how long a finalized call may wait for queue space
func (e *ExportConfig) GetEnqueueTimeoutDuration() time.Duration {
	return time.Duration(e.EnqueueTimeout) * time.Second
}

// GetRetryBackoffDuration returns the initial delay between delivery attempts
func (e *ExportConfig) GetRetryBackoffDuration() time.Duration {
	return time.Duration(e.RetryBackoff) * time.Second
}

// GetReconnectMinDuration returns the initial reconnect delay
func (p *PeerConfig) GetReconnectMinDuration() time.Duration {
	return time.Duration(p.ReconnectMin) * time.Second
}

// GetReconnectMaxDuration returns the reconnect delay cap
func (p *PeerConfig) GetReconnectMaxDuration() time.Duration {
	return time.Duration(p.ReconnectMax) * time.Second
}
