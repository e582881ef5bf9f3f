package core

import (
	"fmt"
	"strings"
)

type RetryConfig struct {
	MaxRetries           int   `koanf:"max_retries" mapstructure:"max_retries"`
	DefaultDelaysSeconds []int `koanf:"default_delays_seconds" mapstructure:"default_delays_seconds"`
}

type SchedulerConfig struct {
	IntervalSeconds int `koanf:"interval_seconds" mapstructure:"interval_seconds"`
	BatchSize       int `koanf:"batch_size" mapstructure:"batch_size"`
}

type DispatchConfig struct {
	MaxConcurrentDeliveries int `koanf:"max_concurrent_deliveries" mapstructure:"max_concurrent_deliveries"`
}

type Config struct {
	ServiceName             string          `koanf:"service_name" mapstructure:"service_name"`
	Source                  string          `koanf:"source" mapstructure:"source"`
	EnvelopeVersion         string          `koanf:"envelope_version" mapstructure:"envelope_version"`
	UserAgent               string          `koanf:"user_agent" mapstructure:"user_agent"`
	SignatureHeader         string          `koanf:"signature_header" mapstructure:"signature_header"`
	CircuitBreakerThreshold int             `koanf:"circuit_breaker_threshold" mapstructure:"circuit_breaker_threshold"`
	DefaultTimeoutSeconds   int             `koanf:"default_timeout_seconds" mapstructure:"default_timeout_seconds"`
	Retry                   RetryConfig     `koanf:"retry" mapstructure:"retry"`
	Scheduler               SchedulerConfig `koanf:"scheduler" mapstructure:"scheduler"`
	Dispatch                DispatchConfig  `koanf:"dispatch" mapstructure:"dispatch"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName:             "integrations",
		Source:                  "garagereg",
		EnvelopeVersion:         "2.0",
		UserAgent:               "garagereg-integrations/2.0",
		SignatureHeader:         "X-GarageReg-Signature",
		CircuitBreakerThreshold: 5,
		DefaultTimeoutSeconds:   30,
		Retry: RetryConfig{
			MaxRetries:           3,
			DefaultDelaysSeconds: []int{60, 300, 900},
		},
		Scheduler: SchedulerConfig{
			IntervalSeconds: 30,
			BatchSize:       50,
		},
		Dispatch: DispatchConfig{
			MaxConcurrentDeliveries: 16,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if strings.TrimSpace(c.Source) == "" {
		return fmt.Errorf("core: source is required")
	}
	if strings.TrimSpace(c.EnvelopeVersion) == "" {
		return fmt.Errorf("core: envelope_version is required")
	}
	if c.CircuitBreakerThreshold < 1 {
		return fmt.Errorf("core: circuit_breaker_threshold must be positive")
	}
	if c.DefaultTimeoutSeconds < 1 {
		return fmt.Errorf("core: default_timeout_seconds must be positive")
	}
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("core: retry.max_retries must not be negative")
	}
	if c.Scheduler.IntervalSeconds < 1 {
		return fmt.Errorf("core: scheduler.interval_seconds must be positive")
	}
	if c.Scheduler.BatchSize < 1 {
		return fmt.Errorf("core: scheduler.batch_size must be positive")
	}
	if c.Dispatch.MaxConcurrentDeliveries < 1 {
		return fmt.Errorf("core: dispatch.max_concurrent_deliveries must be positive")
	}
	return nil
}
