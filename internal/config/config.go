// Package config provides configuration for the CRM export service.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/hussain-magshield/magshield-data-pipeline/internal/auth"
	exporterrors "github.com/hussain-magshield/magshield-data-pipeline/internal/errors"
	"github.com/hussain-magshield/magshield-data-pipeline/internal/mailreport"
)

// DefaultFile is loaded when no config path is given and it exists.
const DefaultFile = "env.yaml"

// Upload target names.
const (
	TargetGraph = "graph"
	TargetS3    = "s3"
	TargetLocal = "local"
)

// Config holds the configuration of the export service.
type Config struct {
	// DataDir is the base directory for the run log and default paths
	DataDir string `json:"data_dir" yaml:"data_dir"`

	// OutputDir receives the workbooks before upload
	OutputDir string `json:"output_dir" yaml:"output_dir"`

	// KeepFiles leaves workbooks in OutputDir after upload
	KeepFiles bool `json:"keep_files" yaml:"keep_files"`

	Log    LogConfig         `json:"log" yaml:"log"`
	HTTP   HTTPConfig        `json:"http" yaml:"http"`
	CRM    CRMConfig         `json:"crm" yaml:"crm"`
	Auth   auth.Config       `json:"auth" yaml:"auth"`
	Upload UploadConfig      `json:"upload" yaml:"upload"`
	Mail   mailreport.Config `json:"mail" yaml:"mail"`
	RunLog RunLogConfig      `json:"run_log" yaml:"run_log"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	// Level is one of debug, info, warn, error
	Level string `json:"level" yaml:"level"`
	// Format is json or text
	Format string `json:"format" yaml:"format"`
}

// HTTPConfig holds trigger server configuration.
type HTTPConfig struct {
	Addr         string        `json:"addr" yaml:"addr"`
	ReadTimeout  time.Duration `json:"read_timeout" yaml:"read_timeout"`
	WriteTimeout time.Duration `json:"write_timeout" yaml:"write_timeout"`
	IdleTimeout  time.Duration `json:"idle_timeout" yaml:"idle_timeout"`
}

// CRMConfig holds the CRM API settings.
type CRMConfig struct {
	BaseURL     string        `json:"base_url" yaml:"base_url"`
	APIKey      string        `json:"api_key" yaml:"api_key"`
	Timeout     time.Duration `json:"timeout" yaml:"timeout"`
	MaxAttempts int           `json:"max_attempts" yaml:"max_attempts"`
	PageSize    int           `json:"page_size" yaml:"page_size"`
	Workers     int           `json:"workers" yaml:"workers"`
	BatchSize   int           `json:"batch_size" yaml:"batch_size"`
}

// UploadConfig selects and configures upload destinations.
type UploadConfig struct {
	// Targets lists the destinations: graph, s3, local
	Targets    []string      `json:"targets" yaml:"targets"`
	ShareLinks []string      `json:"share_links" yaml:"share_links"`
	GraphURL   string        `json:"graph_url" yaml:"graph_url"`
	Timeout    time.Duration `json:"timeout" yaml:"timeout"`
	LocalPath  string        `json:"local_path" yaml:"local_path"`
	S3         S3Config      `json:"s3" yaml:"s3"`
}

// S3Config holds S3 destination configuration.
type S3Config struct {
	Bucket       string `json:"bucket" yaml:"bucket"`
	Region       string `json:"region" yaml:"region"`
	Endpoint     string `json:"endpoint" yaml:"endpoint"`
	UsePathStyle bool   `json:"use_path_style" yaml:"use_path_style"`
	Prefix       string `json:"prefix" yaml:"prefix"`
}

// RunLogConfig holds the run log location.
type RunLogConfig struct {
	Path string `json:"path" yaml:"path"`
}

// legacyEnv is the flat key layout of older env.yaml files.
type legacyEnv struct {
	APIKey       string `json:"INSIGHTLY_API_KEY" yaml:"INSIGHTLY_API_KEY"`
	ClientID     string `json:"CLIENT_ID" yaml:"CLIENT_ID"`
	ClientSecret string `json:"CLIENT_SECRET" yaml:"CLIENT_SECRET"`
	TenantID     string `json:"TENANT_ID" yaml:"TENANT_ID"`
	RefreshToken string `json:"REFRESH_TOKEN" yaml:"REFRESH_TOKEN"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		DataDir: "./data",
		Log: LogConfig{
			Level:  "info",
			Format: "json",
		},
		HTTP: HTTPConfig{
			Addr:         ":8080",
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Minute,
			IdleTimeout:  120 * time.Second,
		},
		CRM: CRMConfig{
			BaseURL:     "https://api.na1.insightly.com/v3.1",
			Timeout:     60 * time.Second,
			MaxAttempts: 5,
			PageSize:    500,
			Workers:     10,
			BatchSize:   80,
		},
		Auth: auth.Config{
			Mode: auth.ModeRefreshToken,
		},
		Upload: UploadConfig{
			Targets: []string{TargetGraph},
			Timeout: 120 * time.Second,
			S3: S3Config{
				Region: "us-east-1",
				Prefix: "exports/",
			},
		},
		Mail: mailreport.DefaultConfig(),
	}
}

// Resolve fills paths derived from DataDir.
func (c *Config) Resolve() {
	if c.DataDir == "" {
		c.DataDir = "./data"
	}
	if c.OutputDir == "" {
		c.OutputDir = filepath.Join(c.DataDir, "temp")
	}
	if c.Upload.LocalPath == "" {
		c.Upload.LocalPath = filepath.Join(c.DataDir, "uploads")
	}
	if c.RunLog.Path == "" {
		c.RunLog.Path = filepath.Join(c.DataDir, "runs.db")
	}
}

// HasTarget reports whether the named upload target is enabled.
func (c *Config) HasTarget(name string) bool {
	for _, t := range c.Upload.Targets {
		if strings.EqualFold(strings.TrimSpace(t), name) {
			return true
		}
	}
	return false
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.CRM.BaseURL == "" {
		return exporterrors.NewConfigError("crm.base_url is required")
	}
	if c.CRM.APIKey == "" {
		return exporterrors.NewConfigError("crm.api_key is required (or INSIGHTLY_API_KEY)")
	}
	if c.CRM.PageSize <= 0 || c.CRM.Workers <= 0 || c.CRM.BatchSize <= 0 {
		return exporterrors.NewConfigError(fmt.Sprintf("crm page_size, workers and batch_size must be positive, got %d/%d/%d",
			c.CRM.PageSize, c.CRM.Workers, c.CRM.BatchSize))
	}

	switch strings.ToLower(c.Log.Format) {
	case "json", "text":
	default:
		return exporterrors.NewConfigError(fmt.Sprintf("invalid log format: %s (must be json or text)", c.Log.Format))
	}

	if len(c.Upload.Targets) == 0 {
		return exporterrors.NewConfigError("upload.targets must name at least one destination")
	}
	for _, t := range c.Upload.Targets {
		switch strings.ToLower(strings.TrimSpace(t)) {
		case TargetGraph, TargetS3, TargetLocal:
		default:
			return exporterrors.NewConfigError(fmt.Sprintf("invalid upload target: %s (must be graph, s3 or local)", t))
		}
	}
	if c.HasTarget(TargetGraph) {
		if len(c.Upload.ShareLinks) == 0 {
			return exporterrors.NewConfigError("upload.share_links is required for the graph target")
		}
		if err := c.Auth.Validate(); err != nil {
			return exporterrors.Wrap(exporterrors.ErrCategoryConfig, exporterrors.CodeInvalidConfig, "graph target needs credentials", err)
		}
	}
	if c.HasTarget(TargetS3) && c.Upload.S3.Bucket == "" {
		return exporterrors.NewConfigError("upload.s3.bucket is required for the s3 target")
	}

	return nil
}

// Load builds the effective configuration: defaults, then the file at path
// (or DefaultFile when path is empty and it exists), then the environment.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()
	if path == "" {
		if _, err := os.Stat(DefaultFile); err == nil {
			path = DefaultFile
		}
	}
	if path != "" {
		var err error
		if cfg, err = LoadFromFile(path); err != nil {
			return nil, err
		}
	}
	LoadFromEnv(cfg)
	cfg.Resolve()
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML or JSON file over the
// defaults. Flat legacy keys such as INSIGHTLY_API_KEY are honored.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := DefaultConfig()
	var legacy legacyEnv

	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
		if err := yaml.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("failed to parse YAML config: %w", err)
		}
	case ".json":
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
		if err := json.Unmarshal(data, &legacy); err != nil {
			return nil, fmt.Errorf("failed to parse JSON config: %w", err)
		}
	default:
		return nil, fmt.Errorf("unsupported config file format: %s", ext)
	}

	legacy.apply(cfg)
	return cfg, nil
}

func (l legacyEnv) apply(cfg *Config) {
	setIf(&cfg.CRM.APIKey, l.APIKey)
	setIf(&cfg.Auth.ClientID, l.ClientID)
	setIf(&cfg.Auth.ClientSecret, l.ClientSecret)
	setIf(&cfg.Auth.TenantID, l.TenantID)
	setIf(&cfg.Auth.RefreshToken, l.RefreshToken)
}

func setIf(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// LoadFromEnv applies environment overrides. Variables use the CRMEXPORT_
// prefix; the credential names of the original deployment are also read.
func LoadFromEnv(cfg *Config) {
	legacyEnv{
		APIKey:       os.Getenv("INSIGHTLY_API_KEY"),
		ClientID:     os.Getenv("CLIENT_ID"),
		ClientSecret: os.Getenv("CLIENT_SECRET"),
		TenantID:     os.Getenv("TENANT_ID"),
		RefreshToken: os.Getenv("REFRESH_TOKEN"),
	}.apply(cfg)

	setIf(&cfg.DataDir, os.Getenv("CRMEXPORT_DATA_DIR"))
	setIf(&cfg.OutputDir, os.Getenv("CRMEXPORT_OUTPUT_DIR"))
	setIf(&cfg.Log.Level, os.Getenv("CRMEXPORT_LOG_LEVEL"))
	setIf(&cfg.Log.Format, os.Getenv("CRMEXPORT_LOG_FORMAT"))
	setIf(&cfg.HTTP.Addr, os.Getenv("CRMEXPORT_HTTP_ADDR"))

	// CRM configuration
	setIf(&cfg.CRM.BaseURL, os.Getenv("CRMEXPORT_CRM_BASE_URL"))
	setIf(&cfg.CRM.APIKey, os.Getenv("CRMEXPORT_CRM_API_KEY"))
	if v := os.Getenv("CRMEXPORT_CRM_TIMEOUT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.CRM.Timeout = d
		}
	}
	if v := os.Getenv("CRMEXPORT_CRM_WORKERS"); v != "" {
		fmt.Sscanf(v, "%d", &cfg.CRM.Workers)
	}

	// Auth configuration
	if v := os.Getenv("CRMEXPORT_AUTH_MODE"); v != "" {
		cfg.Auth.Mode = auth.Mode(v)
	}
	setIf(&cfg.Mail.Mailbox, os.Getenv("CRMEXPORT_MAILBOX"))

	// Upload configuration
	if v := os.Getenv("CRMEXPORT_UPLOAD_TARGETS"); v != "" {
		cfg.Upload.Targets = splitList(v)
	}
	if v := os.Getenv("CRMEXPORT_SHARE_LINKS"); v != "" {
		cfg.Upload.ShareLinks = splitList(v)
	}
	setIf(&cfg.Upload.LocalPath, os.Getenv("CRMEXPORT_LOCAL_PATH"))
	setIf(&cfg.Upload.S3.Bucket, os.Getenv("CRMEXPORT_S3_BUCKET"))
	setIf(&cfg.Upload.S3.Region, os.Getenv("CRMEXPORT_S3_REGION"))
	setIf(&cfg.Upload.S3.Endpoint, os.Getenv("CRMEXPORT_S3_ENDPOINT"))
	setIf(&cfg.RunLog.Path, os.Getenv("CRMEXPORT_RUN_LOG"))
	if v := os.Getenv("CRMEXPORT_KEEP_FILES"); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			cfg.KeepFiles = b
		}
	}
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// EnsureDirectories creates all required directories.
func (c *Config) EnsureDirectories() error {
	dirs := []string{
		c.DataDir,
		c.OutputDir,
		filepath.Dir(c.RunLog.Path),
	}
	if c.HasTarget(TargetLocal) {
		dirs = append(dirs, c.Upload.LocalPath)
	}

	for _, dir := range dirs {
		if dir == "" {
			continue
		}
		if err := os.MkdirAll(dir, 0755); err != nil {
			return fmt.Errorf("failed to create directory %s: %w", dir, err)
		}
	}
	return nil
}
