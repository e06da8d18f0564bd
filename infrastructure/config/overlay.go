package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Overlay is the YAML file layered over the environment. Only keys present
// in the file override.
type Overlay struct {
	LogLevel          *string        `yaml:"log_level"`
	BackendKind       *string        `yaml:"backend_kind"`
	BackendTimeout    *time.Duration `yaml:"backend_timeout"`
	ExtractionTimeout *time.Duration `yaml:"extraction_timeout"`
	HistoryWindow     *int           `yaml:"history_window"`
	RateLimit         *struct {
		Requests int           `yaml:"requests"`
		Window   time.Duration `yaml:"window"`
	} `yaml:"rate_limit"`
	EnableCORS    *bool `yaml:"enable_cors"`
	EnableMetrics *bool `yaml:"enable_metrics"`
}

// ReadOverlay parses a YAML overlay file
func ReadOverlay(path string) (*Overlay, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var overlay Overlay
	if err := yaml.Unmarshal(data, &overlay); err != nil {
		return nil, fmt.Errorf("parse config file %s: %w", path, err)
	}
	return &overlay, nil
}

// Apply copies the keys present in the overlay onto cfg
func (o *Overlay) Apply(cfg *Config) {
	if o.LogLevel != nil {
		cfg.LogLevel = *o.LogLevel
	}
	if o.BackendKind != nil {
		cfg.BackendKind = *o.BackendKind
	}
	if o.BackendTimeout != nil {
		cfg.BackendTimeout = *o.BackendTimeout
	}
	if o.ExtractionTimeout != nil {
		cfg.ExtractionTimeout = *o.ExtractionTimeout
	}
	if o.HistoryWindow != nil {
		cfg.HistoryWindow = *o.HistoryWindow
	}
	if o.RateLimit != nil {
		cfg.RateLimitRequests = o.RateLimit.Requests
		cfg.RateLimitWindow = o.RateLimit.Window
	}
	if o.EnableCORS != nil {
		cfg.EnableCORS = *o.EnableCORS
	}
	if o.EnableMetrics != nil {
		cfg.EnableMetrics = *o.EnableMetrics
	}
}
