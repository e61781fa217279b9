// Package config provides application configuration management.
package config

import (
	"cmp"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"regexp"
	"sync"

	"github.com/voicepage/kwsbench/internal/types"
	"github.com/voicepage/kwsbench/internal/util"
)

// Configuration defaults are used when values are not specified.
const (
	DefaultPort             = 8787
	DefaultToolsDir         = "tools/kws"
	DefaultPython           = "python3"
	DefaultTrainScript      = "train.py"
	DefaultToleranceMs      = types.DefaultToleranceMs
	DefaultThreshold        = types.DefaultThreshold
	DefaultWorkers          = 4
	DefaultMaxPositiveClips = 50
	DefaultJobHistoryFile   = "jobs.json"
	DefaultEventLogFile     = "events.jsonl"
)

// keywordPattern restricts keywords to names safe in file paths and shell
// arguments.
var keywordPattern = regexp.MustCompile(`^[a-z0-9_]+$`)

// ValidKeyword reports whether a keyword is a safe dataset/model name.
func ValidKeyword(keyword string) bool {
	return keyword != "" && len(keyword) <= 64 && keywordPattern.MatchString(keyword)
}

// SystemConfig holds system-level settings that require restart.
type SystemConfig struct {
	Port        int    `json:"port"`         // HTTP server port
	APIKey      string `json:"api_key"`      // API key for mutating endpoints
	Python      string `json:"python"`       // Python interpreter for the trainer (empty = python3)
	TrainScript string `json:"train_script"` // Trainer entry point relative to the tools dir
}

// PathsConfig holds the training workspace layout. Relative paths are
// resolved against the tools dir.
type PathsConfig struct {
	ToolsDir   string `json:"tools_dir"`   // Training workspace root
	ModelsDir  string `json:"models_dir"`  // Exported ONNX models
	ConfigsDir string `json:"configs_dir"` // Trainer YAML configs
	DataDir    string `json:"data_dir"`    // Shared augmentation data
	OutputDir  string `json:"output_dir"`  // Per-keyword generated datasets
	LogsDir    string `json:"logs_dir"`    // Trainer logs
}

// EvaluationConfig holds detection evaluation parameters.
type EvaluationConfig struct {
	ToleranceMs      float64 `json:"tolerance_ms"`       // Match window around annotations
	Threshold        float64 `json:"threshold"`          // Default detection threshold
	Workers          int     `json:"workers"`            // Parallel clips per evaluation
	MaxPositiveClips int     `json:"max_positive_clips"` // Positive clips per quick eval
}

// WebhookConfig holds webhook notification settings.
type WebhookConfig struct {
	URL string `json:"url"` // Webhook URL for job and evaluation alerts
}

// LogConfig holds log file notification settings.
type LogConfig struct {
	Path string `json:"path"` // Log file path for notification events
}

// EmailConfig holds Microsoft Graph email notification settings.
type EmailConfig struct {
	TenantID     string `json:"tenant_id"`     // Azure AD tenant ID
	ClientID     string `json:"client_id"`     // App registration client ID
	ClientSecret string `json:"client_secret"` // App registration client secret
	FromAddress  string `json:"from_address"`  // Shared mailbox sender address
	Recipients   string `json:"recipients"`    // Comma-separated recipient addresses
}

// NotificationsConfig holds all notification channel settings.
type NotificationsConfig struct {
	Webhook WebhookConfig `json:"webhook"` // Webhook settings
	Log     LogConfig     `json:"log"`     // Log file settings
	Email   EmailConfig   `json:"email"`   // Email settings
}

// ReportConfig holds S3 report export settings.
type ReportConfig struct {
	S3Endpoint        string `json:"s3_endpoint"`          // S3-compatible endpoint URL
	S3Bucket          string `json:"s3_bucket"`            // S3 bucket name
	S3AccessKeyID     string `json:"s3_access_key_id"`     // S3 access key ID
	S3SecretAccessKey string `json:"s3_secret_access_key"` // S3 secret access key
	S3Prefix          string `json:"s3_prefix"`            // Key prefix for uploaded reports
}

// Config holds all application configuration. It is safe for concurrent use.
type Config struct {
	System        SystemConfig        `json:"system"`
	Paths         PathsConfig         `json:"paths"`
	Evaluation    EvaluationConfig    `json:"evaluation"`
	Notifications NotificationsConfig `json:"notifications"`
	Report        ReportConfig        `json:"report"`

	mu       sync.RWMutex
	filePath string
}

// New creates a new Config with default values.
func New(filePath string) *Config {
	return &Config{
		System: SystemConfig{
			Port:        DefaultPort,
			Python:      DefaultPython,
			TrainScript: DefaultTrainScript,
		},
		Paths: PathsConfig{
			ToolsDir: DefaultToolsDir,
		},
		Evaluation: EvaluationConfig{
			ToleranceMs:      DefaultToleranceMs,
			Threshold:        DefaultThreshold,
			Workers:          DefaultWorkers,
			MaxPositiveClips: DefaultMaxPositiveClips,
		},
		filePath: filePath,
	}
}

// Load reads config from file, creating a default if none exists. A missing
// API key is generated on first load.
func (c *Config) Load() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, err := os.ReadFile(c.filePath)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to read config: %w", err)
	}
	if err == nil {
		if err := json.Unmarshal(data, c); err != nil {
			return util.WrapError("parse config", err)
		}
	}

	if err := c.applyDefaults(); err != nil {
		return err
	}
	if err := c.validate(); err != nil {
		return err
	}
	return c.saveLocked()
}

// validate checks all configuration fields for correctness.
func (c *Config) validate() error {
	if c.System.Port < 1 || c.System.Port > 65535 {
		return fmt.Errorf("invalid port %d: must be 1-65535", c.System.Port)
	}
	if c.Evaluation.ToleranceMs < 0 {
		return fmt.Errorf("invalid tolerance_ms %v: must be >= 0", c.Evaluation.ToleranceMs)
	}
	if c.Evaluation.Threshold < 0 || c.Evaluation.Threshold > 1 {
		return fmt.Errorf("invalid threshold %v: must be in [0,1]", c.Evaluation.Threshold)
	}
	if c.Evaluation.Workers < 1 {
		return fmt.Errorf("invalid workers %d: must be >= 1", c.Evaluation.Workers)
	}
	return nil
}

// applyDefaults sets default values for zero-value fields.
func (c *Config) applyDefaults() error {
	if c.System.Port == 0 {
		c.System.Port = DefaultPort
	}
	if c.System.Python == "" {
		c.System.Python = DefaultPython
	}
	if c.System.TrainScript == "" {
		c.System.TrainScript = DefaultTrainScript
	}
	if c.System.APIKey == "" {
		key, err := GenerateAPIKey()
		if err != nil {
			return util.WrapError("generate API key", err)
		}
		c.System.APIKey = key
	}
	if c.Paths.ToolsDir == "" {
		c.Paths.ToolsDir = DefaultToolsDir
	}
	if c.Evaluation.ToleranceMs == 0 {
		c.Evaluation.ToleranceMs = DefaultToleranceMs
	}
	if c.Evaluation.Threshold == 0 {
		c.Evaluation.Threshold = DefaultThreshold
	}
	if c.Evaluation.Workers == 0 {
		c.Evaluation.Workers = DefaultWorkers
	}
	if c.Evaluation.MaxPositiveClips == 0 {
		c.Evaluation.MaxPositiveClips = DefaultMaxPositiveClips
	}
	return nil
}

// saveLocked persists configuration. Caller must hold c.mu.
func (c *Config) saveLocked() error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return util.WrapError("marshal config", err)
	}

	dir := filepath.Dir(c.filePath)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return util.WrapError("create config directory", err)
	}

	if err := os.WriteFile(c.filePath, data, 0o600); err != nil {
		return util.WrapError("write config", err)
	}

	return nil
}

// --- Getters for individual settings ---

// APIKey returns the API key for mutating endpoints.
func (c *Config) APIKey() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.System.APIKey
}

// GraphConfig returns a copy of the current Graph/Email configuration.
func (c *Config) GraphConfig() types.GraphConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return types.GraphConfig{
		TenantID:     c.Notifications.Email.TenantID,
		ClientID:     c.Notifications.Email.ClientID,
		ClientSecret: c.Notifications.Email.ClientSecret,
		FromAddress:  c.Notifications.Email.FromAddress,
		Recipients:   c.Notifications.Email.Recipients,
	}
}

// --- Setters for individual settings ---

// SetWebhookURL updates the webhook URL and saves the configuration.
func (c *Config) SetWebhookURL(url string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Webhook.URL = url
	return c.saveLocked()
}

// SetLogPath updates the log file path and saves the configuration.
func (c *Config) SetLogPath(path string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Log.Path = path
	return c.saveLocked()
}

// SetGraphConfig updates all Microsoft Graph/Email configuration fields and saves.
func (c *Config) SetGraphConfig(tenantID, clientID, clientSecret, fromAddress, recipients string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Notifications.Email.TenantID = tenantID
	c.Notifications.Email.ClientID = clientID
	c.Notifications.Email.ClientSecret = clientSecret
	c.Notifications.Email.FromAddress = fromAddress
	c.Notifications.Email.Recipients = recipients
	return c.saveLocked()
}

// SetReportConfig updates the S3 report export settings and saves.
func (c *Config) SetReportConfig(report ReportConfig) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Report = report
	return c.saveLocked()
}

// SetAPIKey updates the API key and saves the configuration.
func (c *Config) SetAPIKey(key string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.System.APIKey = key
	return c.saveLocked()
}

// --- Snapshot for atomic reads ---

// Snapshot is a point-in-time copy of configuration values.
type Snapshot struct {
	// System
	Port        int
	APIKey      string
	Python      string
	TrainScript string

	// Paths, resolved against the tools dir
	ToolsDir   string
	ModelsDir  string
	ConfigsDir string
	DataDir    string
	OutputDir  string
	LogsDir    string

	// Evaluation
	ToleranceMs      float64
	Threshold        float64
	Workers          int
	MaxPositiveClips int

	// Notifications
	WebhookURL        string
	LogPath           string
	GraphTenantID     string
	GraphClientID     string
	GraphClientSecret string
	GraphFromAddress  string
	GraphRecipients   string

	// Report export
	S3Endpoint        string
	S3Bucket          string
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Prefix          string
}

// Snapshot returns a point-in-time copy of all configuration values.
func (c *Config) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	tools := c.Paths.ToolsDir

	return Snapshot{
		// System
		Port:        c.System.Port,
		APIKey:      c.System.APIKey,
		Python:      c.System.Python,
		TrainScript: c.System.TrainScript,

		// Paths (with layout defaults)
		ToolsDir:   tools,
		ModelsDir:  resolveDir(tools, c.Paths.ModelsDir, "models"),
		ConfigsDir: resolveDir(tools, c.Paths.ConfigsDir, "configs"),
		DataDir:    resolveDir(tools, c.Paths.DataDir, "data"),
		OutputDir:  resolveDir(tools, c.Paths.OutputDir, "output"),
		LogsDir:    resolveDir(tools, c.Paths.LogsDir, "logs"),

		// Evaluation (with defaults)
		ToleranceMs:      cmp.Or(c.Evaluation.ToleranceMs, DefaultToleranceMs),
		Threshold:        cmp.Or(c.Evaluation.Threshold, DefaultThreshold),
		Workers:          cmp.Or(c.Evaluation.Workers, DefaultWorkers),
		MaxPositiveClips: cmp.Or(c.Evaluation.MaxPositiveClips, DefaultMaxPositiveClips),

		// Notifications
		WebhookURL:        c.Notifications.Webhook.URL,
		LogPath:           c.Notifications.Log.Path,
		GraphTenantID:     c.Notifications.Email.TenantID,
		GraphClientID:     c.Notifications.Email.ClientID,
		GraphClientSecret: c.Notifications.Email.ClientSecret,
		GraphFromAddress:  c.Notifications.Email.FromAddress,
		GraphRecipients:   c.Notifications.Email.Recipients,

		// Report export
		S3Endpoint:        c.Report.S3Endpoint,
		S3Bucket:          c.Report.S3Bucket,
		S3AccessKeyID:     c.Report.S3AccessKeyID,
		S3SecretAccessKey: c.Report.S3SecretAccessKey,
		S3Prefix:          c.Report.S3Prefix,
	}
}

// resolveDir returns an explicit path as-is, or the conventional
// subdirectory of the tools dir.
func resolveDir(tools, explicit, conventional string) string {
	if explicit != "" {
		return explicit
	}
	return filepath.Join(tools, conventional)
}

// HasWebhook reports whether a webhook URL is configured.
func (s *Snapshot) HasWebhook() bool {
	return s.WebhookURL != ""
}

// HasGraph reports whether Microsoft Graph email notifications are configured.
func (s *Snapshot) HasGraph() bool {
	return s.GraphTenantID != "" && s.GraphClientID != "" && s.GraphClientSecret != "" &&
		s.GraphFromAddress != "" && s.GraphRecipients != ""
}

// HasLogPath reports whether a log path is configured.
func (s *Snapshot) HasLogPath() bool {
	return s.LogPath != ""
}

// HasS3 reports whether report export to S3 is configured.
func (s *Snapshot) HasS3() bool {
	return s.S3Bucket != "" && s.S3AccessKeyID != "" && s.S3SecretAccessKey != ""
}

// TrainScriptPath returns the trainer entry point resolved against the
// tools dir.
func (s *Snapshot) TrainScriptPath() string {
	if filepath.IsAbs(s.TrainScript) {
		return s.TrainScript
	}
	return filepath.Join(s.ToolsDir, s.TrainScript)
}

// --- Utility functions ---

// GenerateAPIKey generates a new random 32-character alphanumeric API key.
func GenerateAPIKey() (string, error) {
	const chars = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	const length = 32
	result := make([]byte, length)
	for i := range result {
		n, err := rand.Int(rand.Reader, big.NewInt(int64(len(chars))))
		if err != nil {
			return "", err
		}
		result[i] = chars[n.Int64()]
	}
	return string(result), nil
}
