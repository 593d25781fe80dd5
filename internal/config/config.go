package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the config file used when neither --config nor
// DOCDESK_CONFIG is set.
const ConfigPath = "docdesk.yaml"

// Token store kinds.
const (
	TokenStoreMemory = "memory"
	TokenStoreFile   = "file"
	TokenStoreRedis  = "redis"
)

const (
	defaultAPIBaseURL     = "http://localhost:8000/api"
	defaultHealthURL      = "http://localhost:8000/health"
	defaultMaxFileSize    = 10 << 20
	defaultRequestTimeout = "30s"
)

var defaultAllowedFileTypes = []string{".pdf", ".doc", ".docx", ".txt", ".xlsx", ".xls"}

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	APIBaseURL       string   `yaml:"apiBaseURL"`
	HealthURL        string   `yaml:"healthURL"`
	LogLevel         string   `yaml:"logLevel"`
	TokenStore       string   `yaml:"tokenStore"`
	TokenFile        string   `yaml:"tokenFile"`
	RedisAddr        string   `yaml:"redisAddr"`
	RedisPassword    string   `yaml:"redisPassword"`
	RedisProfile     string   `yaml:"redisProfile"`
	MaxFileSize      int64    `yaml:"maxFileSize"`
	AllowedFileTypes []string `yaml:"allowedFileTypes"`
	RequestTimeout   string   `yaml:"requestTimeout"`
}

// Default returns the built-in configuration.
func Default() FileConfig {
	return FileConfig{
		APIBaseURL:       defaultAPIBaseURL,
		HealthURL:        defaultHealthURL,
		LogLevel:         "info",
		TokenStore:       TokenStoreFile,
		MaxFileSize:      defaultMaxFileSize,
		AllowedFileTypes: append([]string(nil), defaultAllowedFileTypes...),
		RequestTimeout:   defaultRequestTimeout,
	}
}

// Load reads config from path (defaults to DOCDESK_CONFIG, then
// docdesk.yaml). A missing file leaves the defaults in place; env
// overrides are applied last.
func Load(path string) (FileConfig, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("DOCDESK_CONFIG")
	}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	switch {
	case errors.Is(err, fs.ErrNotExist):
	case err != nil:
		return cfg, fmt.Errorf("read config: %w", err)
	default:
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return cfg, fmt.Errorf("parse config: %w", err)
		}
	}
	applyEnv(&cfg)
	cfg.TokenStore = strings.ToLower(strings.TrimSpace(cfg.TokenStore))
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func applyEnv(cfg *FileConfig) {
	if v := os.Getenv("DOCDESK_API_BASE_URL"); v != "" {
		cfg.APIBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCDESK_HEALTH_URL"); v != "" {
		cfg.HealthURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCDESK_LOG_LEVEL"); v != "" {
		cfg.LogLevel = v
	}
	if v := os.Getenv("DOCDESK_TOKEN_STORE"); v != "" {
		cfg.TokenStore = v
	}
	if v := os.Getenv("DOCDESK_TOKEN_FILE"); v != "" {
		cfg.TokenFile = strings.TrimSpace(v)
	}
	if v := os.Getenv("DOCDESK_REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("DOCDESK_REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("DOCDESK_MAX_FILE_SIZE"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxFileSize = n
		}
	}
	if v := os.Getenv("DOCDESK_ALLOWED_FILE_TYPES"); v != "" {
		cfg.AllowedFileTypes = splitCSV(v)
	}
	if v := os.Getenv("DOCDESK_REQUEST_TIMEOUT"); v != "" {
		cfg.RequestTimeout = strings.TrimSpace(v)
	}
}

func validateConfig(cfg FileConfig) error {
	if strings.TrimSpace(cfg.APIBaseURL) == "" {
		return errors.New("config: apiBaseURL is required (set in docdesk.yaml or DOCDESK_API_BASE_URL)")
	}
	if u, err := url.Parse(cfg.APIBaseURL); err != nil || u.Scheme == "" || u.Host == "" {
		return fmt.Errorf("config: apiBaseURL %q is not an absolute URL", cfg.APIBaseURL)
	}
	switch cfg.TokenStore {
	case TokenStoreMemory, TokenStoreFile:
	case TokenStoreRedis:
		if strings.TrimSpace(cfg.RedisAddr) == "" {
			return errors.New("config: redisAddr is required for the redis token store")
		}
	default:
		return fmt.Errorf("config: tokenStore must be memory, file or redis, got %q", cfg.TokenStore)
	}
	if cfg.MaxFileSize <= 0 {
		return errors.New("config: maxFileSize must be > 0")
	}
	if _, err := ParseRequestTimeout(cfg.RequestTimeout); err != nil {
		return err
	}
	return nil
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}

// ParseRequestTimeout parses the optional request timeout duration string.
func ParseRequestTimeout(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	dur, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("invalid requestTimeout duration: %w", err)
	}
	if dur < 0 {
		return 0, errors.New("config: requestTimeout must be >= 0")
	}
	return dur, nil
}
