package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// Session strategies.
const (
	SessionMemory = "memory"
	SessionRedis  = "redis"
	SessionJWT    = "jwt"
)

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port      string `yaml:"port"`
	LogLevel  string `yaml:"logLevel"`
	Namespace string `yaml:"namespace"`

	DataDir     string `yaml:"dataDir"`
	DatabaseURL string `yaml:"databaseURL"`

	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	SessionStrategy string `yaml:"sessionStrategy"`
	SessionTTL      string `yaml:"sessionTTL"`
	JWTSecret       string `yaml:"jwtSecret"`

	GeminiAPIKey  string `yaml:"geminiApiKey"`
	GeminiBaseURL string `yaml:"geminiBaseURL"`
	AnalysisModel string `yaml:"analysisModel"`
	ChatModel     string `yaml:"chatModel"`

	LoginRateLimitPerMinute int      `yaml:"loginRateLimitPerMinute"`
	MaxUploadBytes          int64    `yaml:"maxUploadBytes"`
	TrustedProxyCIDRs       []string `yaml:"trustedProxyCidrs"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`
}

// Load reads config from path (defaults to config.yaml) and applies
// environment overrides.
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if v := os.Getenv("AGROVISION_PORT"); v != "" {
		cfg.Port = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_LOG_LEVEL"); v != "" {
		cfg.LogLevel = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_NAMESPACE"); v != "" {
		cfg.Namespace = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_DATA_DIR"); v != "" {
		cfg.DataDir = strings.TrimSpace(v)
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("AGROVISION_SESSION_STRATEGY"); v != "" {
		cfg.SessionStrategy = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_SESSION_TTL"); v != "" {
		cfg.SessionTTL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("GEMINI_API_KEY"); v != "" {
		cfg.GeminiAPIKey = v
	}
	if v := os.Getenv("AGROVISION_GEMINI_BASE_URL"); v != "" {
		cfg.GeminiBaseURL = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_ANALYSIS_MODEL"); v != "" {
		cfg.AnalysisModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_CHAT_MODEL"); v != "" {
		cfg.ChatModel = strings.TrimSpace(v)
	}
	if v := os.Getenv("AGROVISION_LOGIN_RATE_LIMIT_PER_MINUTE"); v != "" {
		if n, err := strconv.Atoi(strings.TrimSpace(v)); err == nil {
			cfg.LoginRateLimitPerMinute = n
		}
	}
	if v := os.Getenv("AGROVISION_MAX_UPLOAD_BYTES"); v != "" {
		if n, err := strconv.ParseInt(strings.TrimSpace(v), 10, 64); err == nil {
			cfg.MaxUploadBytes = n
		}
	}
	if v := os.Getenv("AGROVISION_TRUSTED_PROXY_CIDRS"); v != "" {
		cfg.TrustedProxyCIDRs = splitCSV(v)
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.GeminiAPIKey) == "" {
		return errors.New("config: geminiApiKey is required (set in config.yaml or GEMINI_API_KEY)")
	}
	switch cfg.SessionStrategy {
	case "", SessionMemory, SessionRedis, SessionJWT:
	default:
		return fmt.Errorf("config: unknown sessionStrategy %q", cfg.SessionStrategy)
	}
	if cfg.SessionStrategy == SessionRedis && strings.TrimSpace(cfg.RedisAddr) == "" {
		return errors.New("config: redisAddr is required for redis sessions")
	}
	if cfg.SessionStrategy == SessionJWT && strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required for jwt sessions")
	}
	if cfg.LoginRateLimitPerMinute < 0 {
		return errors.New("config: loginRateLimitPerMinute must be >= 0")
	}
	if cfg.MaxUploadBytes < 0 {
		return errors.New("config: maxUploadBytes must be >= 0")
	}
	return nil
}

func splitCSV(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// ParseSessionTTL parses the optional session TTL duration string.
func ParseSessionTTL(ttl string) (time.Duration, error) {
	if ttl == "" {
		return 24 * time.Hour, nil
	}
	dur, err := time.ParseDuration(ttl)
	if err != nil {
		return 0, fmt.Errorf("invalid sessionTTL duration: %w", err)
	}
	return dur, nil
}
