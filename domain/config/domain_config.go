package config

import (
	"fmt"
	"time"
)

// DomainConfig holds all configurable business rules and constraints
type DomainConfig struct {
	// Message constraints
	MaxMessageLength int
	HistoryWindow    int

	// Profile constraints
	MaxCategories        int
	MaxFactsPerCategory  int
	MaxFactLength        int
	ExtractionCategories []string

	// Time constraints
	LockTTL         time.Duration
	LockWaitTimeout time.Duration
	ProfileCacheTTL time.Duration

	// Fallback text sent as the terminal error frame
	FallbackMessage string
}

// DefaultDomainConfig returns the default domain configuration
func DefaultDomainConfig() *DomainConfig {
	return &DomainConfig{
		MaxMessageLength: 8000,
		HistoryWindow:    20,

		MaxCategories:       20,
		MaxFactsPerCategory: 50,
		MaxFactLength:       300,
		ExtractionCategories: []string{
			"personal_info",
			"goals",
			"preferences",
			"challenges",
			"support_needs",
		},

		LockTTL:         30 * time.Second,
		LockWaitTimeout: 10 * time.Second,
		ProfileCacheTTL: 5 * time.Minute,

		FallbackMessage: "I apologize, but I'm having trouble connecting to my knowledge base. Please try again later.",
	}
}

// ProductionDomainConfig returns production-specific configuration
func ProductionDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.MaxMessageLength = 4000
	config.MaxFactsPerCategory = 30
	return config
}

// DevelopmentDomainConfig returns development-specific configuration
func DevelopmentDomainConfig() *DomainConfig {
	config := DefaultDomainConfig()
	config.MaxMessageLength = 32000
	config.ProfileCacheTTL = 10 * time.Second
	return config
}

// LoadDomainConfig loads domain configuration based on environment
func LoadDomainConfig(environment string) *DomainConfig {
	switch environment {
	case "production":
		return ProductionDomainConfig()
	case "development":
		return DevelopmentDomainConfig()
	default:
		return DefaultDomainConfig()
	}
}

// Validate checks if the configuration is valid
func (c *DomainConfig) Validate() error {
	if c.MaxMessageLength <= 0 {
		return fmt.Errorf("max message length must be positive")
	}
	if c.MaxFactsPerCategory <= 0 || c.MaxCategories <= 0 {
		return fmt.Errorf("profile limits must be positive")
	}
	if c.HistoryWindow < 0 {
		return fmt.Errorf("history window cannot be negative")
	}
	return nil
}
