// Package config handles TOML configuration loading with environment variable substitution.
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/joho/godotenv"
)

// Config is the root configuration structure.
type Config struct {
	Server      ServerConfig      `toml:"server"`
	Auth        AuthConfig        `toml:"auth"`
	RateLimit   RateLimitConfig   `toml:"rate_limit"`
	Database    DatabaseConfig    `toml:"database"`
	Storage     StorageConfig     `toml:"storage"`
	YtDlp       YtDlpConfig       `toml:"ytdlp"`
	Browser     BrowserConfig     `toml:"browser"`
	Concurrency ConcurrencyConfig `toml:"concurrency"`
	Queue       QueueConfig       `toml:"queue"`
	Backends    BackendsConfig    `toml:"backends"`
}

type ServerConfig struct {
	Host      string `toml:"host"`
	Port      int    `toml:"port"`
	LogLevel  string `toml:"log_level"`
	LogFormat string `toml:"log_format"`
}

// Addr returns host:port for net.Listen.
func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type AuthConfig struct {
	Enabled bool     `toml:"enabled"`
	APIKeys []string `toml:"api_keys"`
}

type RateLimitConfig struct {
	Requests int           `toml:"requests"`
	Window   time.Duration `toml:"window"`
}

type DatabaseConfig struct {
	Path string `toml:"path"`
}

type StorageConfig struct {
	TempDir         string        `toml:"temp_dir"`
	MaxFileSizeMB   int64         `toml:"max_file_size_mb"`
	CleanupInterval time.Duration `toml:"cleanup_interval"`
	MaxFileAge      time.Duration `toml:"max_file_age"`
}

// MaxFileSize returns the size limit in bytes.
func (s StorageConfig) MaxFileSize() int64 {
	return s.MaxFileSizeMB << 20
}

type YtDlpConfig struct {
	Path            string        `toml:"path"`
	CookiesFile     string        `toml:"cookies_file"`
	Proxy           string        `toml:"proxy"`
	Timeout         time.Duration `toml:"timeout"`
	DownloadTimeout time.Duration `toml:"download_timeout"`
}

type BrowserConfig struct {
	// Headless is a pointer so an explicit false survives defaulting.
	Headless *bool         `toml:"headless"`
	Timeout  time.Duration `toml:"timeout"`
	ExecPath string        `toml:"exec_path"`
	Settle   time.Duration `toml:"settle"`
}

// IsHeadless reports the effective headless setting.
func (b BrowserConfig) IsHeadless() bool {
	return b.Headless == nil || *b.Headless
}

type ConcurrencyConfig struct {
	MaxJobs    int `toml:"max_jobs"`
	MaxUploads int `toml:"max_uploads"`
}

type QueueConfig struct {
	MaxAttempts   int           `toml:"max_attempts"`
	Backoff       time.Duration `toml:"backoff"`
	PollInterval  time.Duration `toml:"poll_interval"`
	KeepCompleted time.Duration `toml:"keep_completed"`
	KeepFailed    time.Duration `toml:"keep_failed"`
}

type BackendsConfig struct {
	Enabled    []string         `toml:"enabled"`
	Gofile     GofileConfig     `toml:"gofile"`
	Pixeldrain PixeldrainConfig `toml:"pixeldrain"`
	Fileio     FileioConfig     `toml:"fileio"`
	Catbox     CatboxConfig     `toml:"catbox"`
	Transfersh TransfershConfig `toml:"transfersh"`
}

type GofileConfig struct {
	APIKey   string `toml:"api_key"`
	FolderID string `toml:"folder_id"`
}

type PixeldrainConfig struct {
	APIKey string `toml:"api_key"`
}

type FileioConfig struct {
	Expiry string `toml:"expiry"`
}

type CatboxConfig struct {
	UserHash string `toml:"userhash"`
}

type TransfershConfig struct {
	URL     string `toml:"url"`
	MaxDays int    `toml:"max_days"`
}

// KnownBackends lists the backend names accepted in backends.enabled, in
// their default order.
var KnownBackends = []string{"gofile", "pixeldrain", "fileio", "catbox", "transfersh"}

// Load reads, parses and validates the configuration file.
func Load(path string) (*Config, error) {
	cfg, missing, err := load(path)
	if err != nil {
		return nil, err
	}

	cfgErr := &ConfigError{Path: path, Missing: missing, Errors: cfg.Validate()}
	if cfgErr.HasErrors() {
		return nil, cfgErr
	}
	return cfg, nil
}

// LoadWithoutValidation reads and parses the configuration file, applying
// defaults but skipping validation. Unresolved variables are left in place.
func LoadWithoutValidation(path string) (*Config, error) {
	cfg, _, err := load(path)
	return cfg, err
}

// LoadEnvFile loads KEY=VALUE pairs from a dotenv file into the process
// environment. Variables already set are not overridden and a missing file
// is not an error.
func LoadEnvFile(path string) error {
	if path == "" {
		return nil
	}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("loading env file: %w", err)
	}
	return nil
}

func load(path string) (*Config, []string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("reading config: %w", err)
	}

	content, missing := substituteEnvVars(string(data))

	var cfg Config
	if _, err := toml.Decode(content, &cfg); err != nil {
		return nil, nil, fmt.Errorf("parsing config: %w", err)
	}
	cfg.applyDefaults()

	return &cfg, missing, nil
}

func (c *Config) applyDefaults() {
	if c.Server.Host == "" {
		c.Server.Host = "0.0.0.0"
	}
	if c.Server.Port == 0 {
		c.Server.Port = 3000
	}
	if c.Server.LogLevel == "" {
		c.Server.LogLevel = "info"
	}
	if c.Server.LogFormat == "" {
		c.Server.LogFormat = "text"
	}

	if c.RateLimit.Requests == 0 {
		c.RateLimit.Requests = 100
	}
	if c.RateLimit.Window == 0 {
		c.RateLimit.Window = 15 * time.Minute
	}

	if c.Database.Path == "" {
		c.Database.Path = "./data/mediarelay.db"
	}

	if c.Storage.TempDir == "" {
		c.Storage.TempDir = "./tmp"
	}
	if c.Storage.MaxFileSizeMB == 0 {
		c.Storage.MaxFileSizeMB = 2048
	}
	if c.Storage.CleanupInterval == 0 {
		c.Storage.CleanupInterval = time.Hour
	}
	if c.Storage.MaxFileAge == 0 {
		c.Storage.MaxFileAge = time.Hour
	}

	if c.YtDlp.Path == "" {
		c.YtDlp.Path = "yt-dlp"
	}
	if c.YtDlp.Timeout == 0 {
		c.YtDlp.Timeout = 2 * time.Minute
	}
	if c.YtDlp.DownloadTimeout == 0 {
		c.YtDlp.DownloadTimeout = 10 * time.Minute
	}

	if c.Browser.Timeout == 0 {
		c.Browser.Timeout = 30 * time.Second
	}
	if c.Browser.Settle == 0 {
		c.Browser.Settle = 3 * time.Second
	}

	if c.Concurrency.MaxJobs == 0 {
		c.Concurrency.MaxJobs = 3
	}
	if c.Concurrency.MaxUploads == 0 {
		c.Concurrency.MaxUploads = 2
	}

	if c.Queue.MaxAttempts == 0 {
		c.Queue.MaxAttempts = 3
	}
	if c.Queue.Backoff == 0 {
		c.Queue.Backoff = 5 * time.Second
	}
	if c.Queue.PollInterval == 0 {
		c.Queue.PollInterval = time.Second
	}
	if c.Queue.KeepCompleted == 0 {
		c.Queue.KeepCompleted = time.Hour
	}
	if c.Queue.KeepFailed == 0 {
		c.Queue.KeepFailed = 24 * time.Hour
	}

	if c.Backends.Enabled == nil {
		c.Backends.Enabled = append([]string(nil), KnownBackends...)
	}
	if c.Backends.Fileio.Expiry == "" {
		c.Backends.Fileio.Expiry = "14d"
	}
	if c.Backends.Transfersh.URL == "" {
		c.Backends.Transfersh.URL = "https://transfer.sh"
	}
	if c.Backends.Transfersh.MaxDays == 0 {
		c.Backends.Transfersh.MaxDays = 14
	}
}

// envVarPattern matches ${VAR}, ${VAR:-default} and ${VAR:?message}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?:(:-|:\?)([^}]*))?\}`)

// substituteEnvVars replaces variable references with environment values.
// References that cannot be resolved are left unchanged and reported.
// Whole-line comments are copied through untouched.
func substituteEnvVars(content string) (string, []string) {
	var missing []string
	lines := strings.SplitAfter(content, "\n")
	for i, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines[i] = envVarPattern.ReplaceAllStringFunc(line, func(match string) string {
			parts := envVarPattern.FindStringSubmatch(match)
			name, op, arg := parts[1], parts[2], parts[3]
			value, ok := os.LookupEnv(name)

			switch op {
			case ":-":
				if value == "" {
					return arg
				}
				return value
			case ":?":
				if value == "" {
					missing = append(missing, name+": "+strings.TrimSpace(arg))
					return match
				}
				return value
			}

			if !ok {
				missing = append(missing, name)
				return match
			}
			return value
		})
	}
	return strings.Join(lines, ""), missing
}
