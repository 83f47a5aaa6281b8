// Package config provides configuration loading and validation for the radio call archiver.
// It handles YAML-based configuration with per-section validation and defaults, and is
// passed explicitly into each component at construction time.
package config
