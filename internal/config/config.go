package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port          string  `yaml:"port"`
	DatabaseURL   string  `yaml:"databaseURL"`
	RedisAddr     string  `yaml:"redisAddr"`
	OllamaBaseURL string  `yaml:"ollamaBaseURL"`
	Temperature   float64 `yaml:"temperature"`
	MaxTokens     int     `yaml:"maxTokens"`
	TimeoutSec    int     `yaml:"timeoutSec"`
	JWTSecret     string  `yaml:"jwtSecret"`
	LogLevel      string  `yaml:"logLevel"`

	AIResponseTTLSec  int `yaml:"aiResponseTTLSec"`
	ChatHistoryTTLSec int `yaml:"chatHistoryTTLSec"`
	ProfileTTLSec     int `yaml:"profileTTLSec"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{
		OllamaBaseURL:     "http://127.0.0.1:11434",
		Temperature:       0.7,
		MaxTokens:         256,
		TimeoutSec:        300,
		AIResponseTTLSec:  3600,
		ChatHistoryTTLSec: 600,
		ProfileTTLSec:     300,
		LogLevel:          "info",
	}
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
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("OLLAMA_BASE_URL"); v != "" {
		cfg.OllamaBaseURL = v
	}
	if v := os.Getenv("OLLAMA_TEMPERATURE"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			cfg.Temperature = f
		}
	}
	if v := os.Getenv("OLLAMA_MAX_TOKENS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxTokens = n
		}
	}
	if v := os.Getenv("JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Timeout returns the generation timeout as a duration.
func (c FileConfig) Timeout() time.Duration {
	return time.Duration(c.TimeoutSec) * time.Second
}

// AIResponseTTL returns the prompt-response cache lifetime.
func (c FileConfig) AIResponseTTL() time.Duration {
	return time.Duration(c.AIResponseTTLSec) * time.Second
}

// ChatHistoryTTL returns the per-user chat list cache lifetime.
func (c FileConfig) ChatHistoryTTL() time.Duration {
	return time.Duration(c.ChatHistoryTTLSec) * time.Second
}

// ProfileTTL returns the profile summary cache lifetime.
func (c FileConfig) ProfileTTL() time.Duration {
	return time.Duration(c.ProfileTTLSec) * time.Second
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml or PORT)")
	}
	if cfg.JWTSecret == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or JWT_SECRET)")
	}
	if cfg.OllamaBaseURL == "" {
		return errors.New("config: ollamaBaseURL is required (set in config.yaml)")
	}
	return nil
}
