package config

import (
	"fmt"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateWorkflow(); err != nil {
		return err
	}
	if err := c.validateRetry(); err != nil {
		return err
	}
	if err := c.validateVendors(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validateWorkflow() error {
	if c.Workflow.QueuePollInterval <= 0 {
		return fmt.Errorf("workflow.queue_poll_interval must be positive, got %d", c.Workflow.QueuePollInterval)
	}
	if c.Workflow.VendorCallTimeout <= 0 {
		return fmt.Errorf("workflow.vendor_call_timeout must be positive, got %d", c.Workflow.VendorCallTimeout)
	}
	return nil
}

func (c *Config) validateRetry() error {
	if c.Retry.MaxRetries < 0 {
		return fmt.Errorf("retry.max_retries must not be negative, got %d", c.Retry.MaxRetries)
	}
	if c.Retry.BackoffCapSeconds < c.Retry.BackoffBaseSeconds {
		return fmt.Errorf("retry.backoff_cap_seconds (%d) must not be below retry.backoff_base_seconds (%d)",
			c.Retry.BackoffCapSeconds, c.Retry.BackoffBaseSeconds)
	}
	return nil
}

func (c *Config) validateVendors() error {
	type capability struct {
		name    string
		vendors []Vendor
	}
	capabilities := []capability{
		{"scan", []Vendor{c.Vendors.ClamAV, c.Vendors.VirusTotal}},
		{"ocr", []Vendor{c.Vendors.Tesseract, c.Vendors.CloudVision}},
		{"asr", []Vendor{c.Vendors.WhisperCPP, c.Vendors.Deepgram}},
		{"index", []Vendor{c.Vendors.Meilisearch, c.Vendors.Typesense}},
	}
	for _, cap := range capabilities {
		enabled := 0
		for _, vendor := range cap.vendors {
			if !vendor.Enabled {
				continue
			}
			enabled++
			if strings.TrimSpace(vendor.BaseURL) == "" {
				return fmt.Errorf("vendors: enabled %s vendor is missing base_url", cap.name)
			}
		}
		if enabled == 0 {
			return fmt.Errorf("vendors: at least one %s vendor must be enabled", cap.name)
		}
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level must be debug, info, warn, or error, got %q", c.Logging.Level)
	}
	return nil
}
