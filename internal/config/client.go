package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Client holds the chat client configuration.
type Client struct {
	// Addr is the gateway's gRPC address.
	Addr     string `yaml:"addr"`
	Insecure bool   `yaml:"insecure"`

	GoogleClientID     string `yaml:"google_client_id"`
	GoogleClientSecret string `yaml:"google_client_secret"`

	// TokenCache keeps the Google refresh token between runs.
	TokenCache string `yaml:"token_cache"`
	LogFile    string `yaml:"log_file"`

	PageSize     int           `yaml:"page_size"`
	SendInterval time.Duration `yaml:"send_interval"`
}

// Dir is the per-user directory for config, cache and logs.
func Dir() string {
	base, err := os.UserConfigDir()
	if err != nil {
		base = "."
	}
	return filepath.Join(base, "feedchat")
}

// DefaultClientPath is where LoadClient looks when no path is given.
func DefaultClientPath() string {
	return filepath.Join(Dir(), "config.yaml")
}

func defaultClient() *Client {
	return &Client{
		Addr:         "localhost:50051",
		TokenCache:   filepath.Join(Dir(), "token.json"),
		LogFile:      filepath.Join(Dir(), "chat.log"),
		PageSize:     10,
		SendInterval: 500 * time.Millisecond,
	}
}

// LoadClient builds the client configuration: defaults, then the YAML file at
// path (a missing file is fine), then environment overrides.
func LoadClient(path string) (*Client, error) {
	loadDotEnv()

	cfg := defaultClient()
	if path == "" {
		path = DefaultClientPath()
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	case errors.Is(err, fs.ErrNotExist):
	default:
		return nil, fmt.Errorf("read %s: %w", path, err)
	}

	cfg.Addr = getEnv("CHAT_ADDR", cfg.Addr)
	cfg.Insecure = getEnvBool("CHAT_INSECURE", cfg.Insecure)
	cfg.GoogleClientID = getEnv("GOOGLE_CLIENT_ID", cfg.GoogleClientID)
	cfg.GoogleClientSecret = getEnv("GOOGLE_CLIENT_SECRET", cfg.GoogleClientSecret)
	cfg.LogFile = getEnv("CHAT_LOG_FILE", cfg.LogFile)

	if cfg.PageSize <= 0 {
		cfg.PageSize = 10
	}
	if cfg.SendInterval <= 0 {
		cfg.SendInterval = 500 * time.Millisecond
	}
	if cfg.GoogleClientID == "" {
		return nil, errors.New("google_client_id (or GOOGLE_CLIENT_ID) must be set")
	}
	return cfg, nil
}
