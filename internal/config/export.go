// Package config loads bag export settings from JSON files.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/banshee-data/bagtopcd/internal/pointcloud"
)

// Defaults applied when a field is absent.
const (
	DefaultPacingDelay = time.Millisecond
	DefaultEncoding    = pointcloud.Binary
)

// maxPacingDelay caps the per-batch relay wait; replay is not real-time.
const maxPacingDelay = time.Second

// ExportConfig holds the optional settings of a replay. Pointer fields
// distinguish "absent" from zero values so command-line flags can override
// only what the operator set.
type ExportConfig struct {
	Format       *string `json:"format,omitempty"`        // ascii, binary, binary_compressed
	PacingDelay  *string `json:"pacing_delay,omitempty"`  // duration string like "1ms"
	ManifestPath *string `json:"manifest_path,omitempty"` // SQLite manifest, empty disables
	Verbose      *bool   `json:"verbose,omitempty"`
}

// Helper functions to create pointers
func ptrString(v string) *string { return &v }
func ptrBool(v bool) *bool       { return &v }

// EmptyExportConfig returns an ExportConfig with all fields set to nil.
func EmptyExportConfig() *ExportConfig {
	return &ExportConfig{}
}

// LoadExportConfig loads an ExportConfig from a JSON file.
// The file must have a .json extension and be at most 1MB.
func LoadExportConfig(path string) (*ExportConfig, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".json" {
		return nil, fmt.Errorf("config file must have .json extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	const maxFileSize = 1 * 1024 * 1024 // 1MB
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := EmptyExportConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// Validate checks that the configuration values are valid.
func (c *ExportConfig) Validate() error {
	if c.Format != nil {
		if _, err := pointcloud.ParseEncoding(*c.Format); err != nil {
			return err
		}
	}

	if c.PacingDelay != nil && *c.PacingDelay != "" {
		d, err := time.ParseDuration(*c.PacingDelay)
		if err != nil {
			return fmt.Errorf("invalid pacing_delay '%s': %w", *c.PacingDelay, err)
		}
		if d < 0 || d > maxPacingDelay {
			return fmt.Errorf("pacing_delay must be between 0 and %s, got %s", maxPacingDelay, d)
		}
	}

	return nil
}

// Merge overlays every field set in o onto c.
func (c *ExportConfig) Merge(o *ExportConfig) {
	if o == nil {
		return
	}
	if o.Format != nil {
		c.Format = ptrString(*o.Format)
	}
	if o.PacingDelay != nil {
		c.PacingDelay = ptrString(*o.PacingDelay)
	}
	if o.ManifestPath != nil {
		c.ManifestPath = ptrString(*o.ManifestPath)
	}
	if o.Verbose != nil {
		c.Verbose = ptrBool(*o.Verbose)
	}
}

// GetEncoding returns the PCD encoding or the default.
func (c *ExportConfig) GetEncoding() pointcloud.Encoding {
	if c.Format == nil || *c.Format == "" {
		return DefaultEncoding
	}
	enc, err := pointcloud.ParseEncoding(*c.Format)
	if err != nil {
		return DefaultEncoding // default on parse error
	}
	return enc
}

// GetPacingDelay parses and returns the PacingDelay as a time.Duration.
func (c *ExportConfig) GetPacingDelay() time.Duration {
	if c.PacingDelay == nil || *c.PacingDelay == "" {
		return DefaultPacingDelay
	}
	d, err := time.ParseDuration(*c.PacingDelay)
	if err != nil {
		return DefaultPacingDelay // default on parse error
	}
	return d
}

// GetManifestPath returns the manifest database path, empty when disabled.
func (c *ExportConfig) GetManifestPath() string {
	if c.ManifestPath == nil {
		return ""
	}
	return *c.ManifestPath
}

// GetVerbose returns the verbose value or the default.
func (c *ExportConfig) GetVerbose() bool {
	if c.Verbose == nil {
		return false
	}
	return *c.Verbose
}
