package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeWorkflow()
	c.normalizeRetry()
	c.normalizeHealth()
	c.normalizeMetrics()
	c.normalizeVendors()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.DataDir) == "" {
		c.Paths.DataDir = defaultDataDir
	}
	if c.Paths.DataDir, err = expandPath(c.Paths.DataDir); err != nil {
		return fmt.Errorf("paths.data_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LogDir) == "" {
		c.Paths.LogDir = defaultLogDir
	}
	if c.Paths.LogDir, err = expandPath(c.Paths.LogDir); err != nil {
		return fmt.Errorf("paths.log_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.LockFilePath) == "" {
		c.Paths.LockFilePath = defaultLockFilePath
	}
	if c.Paths.LockFilePath, err = expandPath(c.Paths.LockFilePath); err != nil {
		return fmt.Errorf("paths.lock_file_path: %w", err)
	}
	if path := strings.TrimSpace(c.Paths.StageGraphPath); path != "" {
		if c.Paths.StageGraphPath, err = expandPath(path); err != nil {
			return fmt.Errorf("paths.stage_graph_path: %w", err)
		}
	}
	c.Paths.APIBind = strings.TrimSpace(c.Paths.APIBind)
	if c.Paths.APIBind == "" {
		c.Paths.APIBind = defaultAPIBind
	}
	c.Paths.APIToken = strings.TrimSpace(c.Paths.APIToken)
	return nil
}

func (c *Config) normalizeWorkflow() {
	if c.Workflow.QueuePollInterval <= 0 {
		c.Workflow.QueuePollInterval = defaultQueuePollInterval
	}
	if c.Workflow.ErrorRetryInterval <= 0 {
		c.Workflow.ErrorRetryInterval = defaultErrorRetryInterval
	}
	if c.Workflow.VendorCallTimeout <= 0 {
		c.Workflow.VendorCallTimeout = defaultVendorCallTimeout
	}
}

func (c *Config) normalizeRetry() {
	if c.Retry.MaxRetries < 0 {
		c.Retry.MaxRetries = defaultMaxRetries
	}
	if c.Retry.BackoffBaseSeconds <= 0 {
		c.Retry.BackoffBaseSeconds = defaultBackoffBaseSeconds
	}
	if c.Retry.BackoffCapSeconds <= 0 {
		c.Retry.BackoffCapSeconds = defaultBackoffCapSeconds
	}
}

func (c *Config) normalizeHealth() {
	if c.Health.ProbeInterval <= 0 {
		c.Health.ProbeInterval = defaultProbeInterval
	}
	if c.Health.ProbeTimeout <= 0 {
		c.Health.ProbeTimeout = defaultProbeTimeout
	}
}

func (c *Config) normalizeMetrics() {
	if c.Metrics.AggregationInterval <= 0 {
		c.Metrics.AggregationInterval = defaultAggInterval
	}
	if c.Metrics.RollupWindowDays <= 0 {
		c.Metrics.RollupWindowDays = defaultRollupWindowDays
	}
}

// normalizeVendors fills API keys from the environment so credentials can live
// in .env files rather than the config on disk.
func (c *Config) normalizeVendors() {
	fromEnv := func(v *Vendor, envKey string) {
		v.BaseURL = strings.TrimSpace(v.BaseURL)
		v.APIKey = strings.TrimSpace(v.APIKey)
		if v.APIKey == "" {
			if value, ok := os.LookupEnv(envKey); ok {
				v.APIKey = strings.TrimSpace(value)
			}
		}
		if v.TimeoutSeconds <= 0 {
			v.TimeoutSeconds = defaultVendorTimeout
		}
	}
	fromEnv(&c.Vendors.ClamAV, "LIFESCRIBE_CLAMAV_API_KEY")
	fromEnv(&c.Vendors.VirusTotal, "LIFESCRIBE_VIRUSTOTAL_API_KEY")
	fromEnv(&c.Vendors.Tesseract, "LIFESCRIBE_TESSERACT_API_KEY")
	fromEnv(&c.Vendors.CloudVision, "LIFESCRIBE_CLOUDVISION_API_KEY")
	fromEnv(&c.Vendors.WhisperCPP, "LIFESCRIBE_WHISPERCPP_API_KEY")
	fromEnv(&c.Vendors.Deepgram, "LIFESCRIBE_DEEPGRAM_API_KEY")
	fromEnv(&c.Vendors.Meilisearch, "LIFESCRIBE_MEILISEARCH_API_KEY")
	fromEnv(&c.Vendors.Typesense, "LIFESCRIBE_TYPESENSE_API_KEY")
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}
