package config

const (
	defaultDataDir            = "~/.local/share/lifescribe"
	defaultLogDir             = "~/.local/share/lifescribe/logs"
	defaultLockFilePath       = "~/.local/share/lifescribe/lifescribed.lock"
	defaultAPIBind            = "127.0.0.1:7510"
	defaultLogFormat          = "console"
	defaultLogLevel           = "info"
	defaultQueuePollInterval  = 2
	defaultErrorRetryInterval = 10
	defaultVendorCallTimeout  = 120
	defaultMaxRetries         = 3
	defaultBackoffBaseSeconds = 5
	defaultBackoffCapSeconds  = 300
	defaultProbeInterval      = 30
	defaultProbeTimeout       = 5
	defaultAggInterval        = 60
	defaultRollupWindowDays   = 7
	defaultVendorTimeout      = 60
	defaultNotifyDedupWindow  = 600
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			DataDir:      defaultDataDir,
			LogDir:       defaultLogDir,
			LockFilePath: defaultLockFilePath,
			APIBind:      defaultAPIBind,
		},
		Workers: Workers{
			Upload:    2,
			VirusScan: 2,
			OCR:       2,
			ASR:       1,
			Index:     2,
		},
		Workflow: Workflow{
			QueuePollInterval:  defaultQueuePollInterval,
			ErrorRetryInterval: defaultErrorRetryInterval,
			VendorCallTimeout:  defaultVendorCallTimeout,
		},
		Retry: Retry{
			MaxRetries:         defaultMaxRetries,
			BackoffBaseSeconds: defaultBackoffBaseSeconds,
			BackoffCapSeconds:  defaultBackoffCapSeconds,
		},
		Health: Health{
			ProbeInterval: defaultProbeInterval,
			ProbeTimeout:  defaultProbeTimeout,
		},
		Metrics: Metrics{
			AggregationInterval: defaultAggInterval,
			RollupWindowDays:    defaultRollupWindowDays,
		},
		Vendors: Vendors{
			ClamAV:      Vendor{Enabled: true, BaseURL: "http://127.0.0.1:3310", TimeoutSeconds: defaultVendorTimeout},
			VirusTotal:  Vendor{BaseURL: "https://www.virustotal.com/api/v3", TimeoutSeconds: defaultVendorTimeout},
			Tesseract:   Vendor{Enabled: true, BaseURL: "http://127.0.0.1:8884", TimeoutSeconds: defaultVendorTimeout},
			CloudVision: Vendor{BaseURL: "https://vision.googleapis.com/v1", TimeoutSeconds: defaultVendorTimeout},
			WhisperCPP:  Vendor{Enabled: true, BaseURL: "http://127.0.0.1:8080", TimeoutSeconds: 300},
			Deepgram:    Vendor{BaseURL: "https://api.deepgram.com/v1", TimeoutSeconds: 300},
			Meilisearch: Vendor{Enabled: true, BaseURL: "http://127.0.0.1:7700", TimeoutSeconds: defaultVendorTimeout},
			Typesense:   Vendor{BaseURL: "http://127.0.0.1:8108", TimeoutSeconds: defaultVendorTimeout},
		},
		Notifications: Notifications{
			RequestTimeout:    10,
			RetryExhausted:    true,
			VendorDown:        true,
			MediaCompleted:    false,
			Errors:            true,
			DedupWindowSecond: defaultNotifyDedupWindow,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
