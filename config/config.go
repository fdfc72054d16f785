package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"runtime"
)

const (
	// AppDirectoryName is the per-user application data directory name.
	AppDirectoryName = "sentinel"
	// DefaultServerURL points at a locally running backend.
	DefaultServerURL = "http://127.0.0.1:8787"
	// DefaultChannel is the channel opened on startup.
	DefaultChannel = "general"
	// DefaultPollIntervalSeconds is the fixed delay between sync pulls.
	DefaultPollIntervalSeconds = 3
	// configFileName is the persisted configuration file.
	configFileName = "config.json"
)

// ClientConfig contains persistent local client settings.
type ClientConfig struct {
	ServerURL           string   `json:"server_url"`
	Token               string   `json:"token"`
	InitialChannel      string   `json:"initial_channel"`
	Channels            []string `json:"channels"`
	PollIntervalSeconds int      `json:"poll_interval_seconds"`
	ScanDelayMillis     int      `json:"scan_delay_millis"`
	AutoReply           bool     `json:"auto_reply"`
	ArchiveKeyPath      string   `json:"archive_key_path"`
}

// ResolveDataDir returns the OS-aware app data directory.
//
// If SENTINEL_DATA_DIR is set, its value is used as an explicit override.
func ResolveDataDir() (string, error) {
	if override := os.Getenv("SENTINEL_DATA_DIR"); override != "" {
		return override, nil
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve user home: %w", err)
	}

	switch runtime.GOOS {
	case "windows":
		base := os.Getenv("APPDATA")
		if base == "" {
			base = filepath.Join(home, "AppData", "Roaming")
		}
		return filepath.Join(base, AppDirectoryName), nil
	case "darwin":
		return filepath.Join(home, "Library", "Application Support", AppDirectoryName), nil
	default:
		base := os.Getenv("XDG_CONFIG_HOME")
		if base == "" {
			base = filepath.Join(home, ".config")
		}
		return filepath.Join(base, AppDirectoryName), nil
	}
}

// ConfigPath returns the full path to config.json for a data directory.
func ConfigPath(dataDir string) string {
	return filepath.Join(dataDir, configFileName)
}

// EnsureDataDirectories creates the app data directory layout if needed.
func EnsureDataDirectories(dataDir string) error {
	dirs := []string{
		dataDir,
		filepath.Join(dataDir, "keys"),
	}

	for _, dir := range dirs {
		if err := os.MkdirAll(dir, 0o700); err != nil {
			return fmt.Errorf("create directory %q: %w", dir, err)
		}
	}

	return nil
}

// Load reads and unmarshals config.json from disk.
func Load(path string) (*ClientConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg ClientConfig
	if err := json.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	return &cfg, nil
}

// Save marshals and writes config.json to disk.
func Save(path string, cfg *ClientConfig) error {
	raw, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}

	raw = append(raw, '\n')
	if err := os.WriteFile(path, raw, 0o600); err != nil {
		return fmt.Errorf("write config: %w", err)
	}

	return nil
}

// LoadOrCreate ensures directories and config exist, then returns both.
func LoadOrCreate() (*ClientConfig, string, error) {
	dataDir, err := ResolveDataDir()
	if err != nil {
		return nil, "", err
	}
	if err := EnsureDataDirectories(dataDir); err != nil {
		return nil, "", err
	}

	cfgPath := ConfigPath(dataDir)
	cfg, err := Load(cfgPath)
	if err != nil {
		if !errors.Is(err, fs.ErrNotExist) {
			return nil, "", err
		}

		cfg = defaultConfig(dataDir)
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}

		return cfg, cfgPath, nil
	}

	if normalizeDefaults(cfg, dataDir) {
		if err := Save(cfgPath, cfg); err != nil {
			return nil, "", err
		}
	}

	return cfg, cfgPath, nil
}

func defaultConfig(dataDir string) *ClientConfig {
	return &ClientConfig{
		ServerURL:           DefaultServerURL,
		InitialChannel:      DefaultChannel,
		Channels:            defaultChannels(),
		PollIntervalSeconds: DefaultPollIntervalSeconds,
		ScanDelayMillis:     1500,
		ArchiveKeyPath:      filepath.Join(dataDir, "keys", "archive_key.pem"),
	}
}

func defaultChannels() []string {
	return []string{DefaultChannel, "ops-planning", "intel-sharing"}
}

func normalizeDefaults(cfg *ClientConfig, dataDir string) bool {
	updated := false

	if cfg.ServerURL == "" {
		cfg.ServerURL = DefaultServerURL
		updated = true
	}

	if cfg.InitialChannel == "" {
		cfg.InitialChannel = DefaultChannel
		updated = true
	}

	if len(cfg.Channels) == 0 {
		cfg.Channels = defaultChannels()
		updated = true
	}

	if cfg.PollIntervalSeconds <= 0 {
		cfg.PollIntervalSeconds = DefaultPollIntervalSeconds
		updated = true
	}

	if cfg.ScanDelayMillis < 0 {
		cfg.ScanDelayMillis = 0
		updated = true
	}

	if cfg.ArchiveKeyPath == "" {
		cfg.ArchiveKeyPath = filepath.Join(dataDir, "keys", "archive_key.pem")
		updated = true
	}

	return updated
}
