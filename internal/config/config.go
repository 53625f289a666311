package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains directory and bind address configuration.
type Paths struct {
	DataDir        string `toml:"data_dir"`
	LogDir         string `toml:"log_dir"`
	StageGraphPath string `toml:"stage_graph_path"`
	APIBind        string `toml:"api_bind"`
	APIToken       string `toml:"api_token"`
	LockFilePath   string `toml:"lock_file_path"`
}

// Workers contains per-stage worker pool sizes.
type Workers struct {
	Upload    int `toml:"upload"`
	VirusScan int `toml:"virus_scan"`
	OCR       int `toml:"ocr"`
	ASR       int `toml:"asr"`
	Index     int `toml:"index"`
}

// Workflow contains polling intervals and vendor call bounds.
type Workflow struct {
	QueuePollInterval  int `toml:"queue_poll_interval"`
	ErrorRetryInterval int `toml:"error_retry_interval"`
	VendorCallTimeout  int `toml:"vendor_call_timeout"`
}

// Retry contains the retry budget and backoff curve.
type Retry struct {
	MaxRetries         int `toml:"max_retries"`
	BackoffBaseSeconds int `toml:"backoff_base_seconds"`
	BackoffCapSeconds  int `toml:"backoff_cap_seconds"`
}

// Health contains vendor health monitor settings.
type Health struct {
	ProbeInterval int `toml:"probe_interval"`
	ProbeTimeout  int `toml:"probe_timeout"`
}

// Metrics contains rollup aggregation settings.
type Metrics struct {
	AggregationInterval int `toml:"aggregation_interval"`
	RollupWindowDays    int `toml:"rollup_window_days"`
}

// Vendor contains connection settings for one vendor adapter.
type Vendor struct {
	Enabled        bool   `toml:"enabled"`
	BaseURL        string `toml:"base_url"`
	APIKey         string `toml:"api_key"`
	TimeoutSeconds int    `toml:"timeout_seconds"`
}

// Vendors contains per-vendor adapter configuration, grouped by capability.
type Vendors struct {
	ClamAV      Vendor `toml:"clamav"`
	VirusTotal  Vendor `toml:"virustotal"`
	Tesseract   Vendor `toml:"tesseract"`
	CloudVision Vendor `toml:"cloudvision"`
	WhisperCPP  Vendor `toml:"whispercpp"`
	Deepgram    Vendor `toml:"deepgram"`
	Meilisearch Vendor `toml:"meilisearch"`
	Typesense   Vendor `toml:"typesense"`
}

// Notifications contains configuration for ntfy push notifications.
type Notifications struct {
	NtfyTopic         string `toml:"ntfy_topic"`
	RequestTimeout    int    `toml:"request_timeout"`
	RetryExhausted    bool   `toml:"retry_exhausted"`
	VendorDown        bool   `toml:"vendor_down"`
	MediaCompleted    bool   `toml:"media_completed"`
	Errors            bool   `toml:"errors"`
	DedupWindowSecond int    `toml:"dedup_window_seconds"`
}

// Logging contains configuration for log output.
type Logging struct {
	Format string `toml:"format"`
	Level  string `toml:"level"`
}

// Config encapsulates all configuration values for the pipeline daemon.
//
// Configuration sections by subsystem:
//   - Paths: data/log directories, stage graph file, API bind address
//   - Workers: per-stage worker pool sizes
//   - Workflow: polling intervals and vendor call timeout
//   - Retry: retry budget and backoff curve
//   - Health: vendor probe interval and timeout
//   - Metrics: rollup aggregation schedule
//   - Vendors: per-vendor endpoints, credentials, and timeouts
//   - Notifications: ntfy push notification settings
//   - Logging: log format and level
type Config struct {
	Paths         Paths         `toml:"paths"`
	Workers       Workers       `toml:"workers"`
	Workflow      Workflow      `toml:"workflow"`
	Retry         Retry         `toml:"retry"`
	Health        Health        `toml:"health"`
	Metrics       Metrics       `toml:"metrics"`
	Vendors       Vendors       `toml:"vendors"`
	Notifications Notifications `toml:"notifications"`
	Logging       Logging       `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath("~/.config/lifescribe/config.toml")
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, fmt.Errorf("open config: %w", err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, fmt.Errorf("parse config: %w", err)
		}
	}

	if err := cfg.normalize(); err != nil {
		return nil, "", false, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := DefaultConfigPath()
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs("lifescribe.toml")
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates required directories for daemon operation.
func (c *Config) EnsureDirectories() error {
	for _, dir := range []string{c.Paths.DataDir, c.Paths.LogDir} {
		if strings.TrimSpace(dir) == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}
	return nil
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// WorkerCount returns the configured pool size for a stage name, defaulting to 1.
func (c *Config) WorkerCount(stage string) int {
	var count int
	switch stage {
	case "upload":
		count = c.Workers.Upload
	case "virus_scan":
		count = c.Workers.VirusScan
	case "ocr":
		count = c.Workers.OCR
	case "asr":
		count = c.Workers.ASR
	case "index":
		count = c.Workers.Index
	}
	if count <= 0 {
		return 1
	}
	return count
}
