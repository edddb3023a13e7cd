package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/BurntSushi/toml"
)

// Config represents the global ~/.driftchat/config.toml.
type Config struct {
	DefaultSession string `toml:"default_session"`

	Identity   IdentityConfig   `toml:"identity"`
	Remote     RemoteConfig     `toml:"remote"`
	Storage    StorageConfig    `toml:"storage"`
	Connection ConnectionConfig `toml:"connection"`
	Outbox     OutboxConfig     `toml:"outbox"`
	Delivery   DeliveryConfig   `toml:"delivery"`
	Typing     TypingConfig     `toml:"typing"`
	Log        LogConfig        `toml:"log"`
}

// IdentityConfig holds the display alias used for outgoing messages.
type IdentityConfig struct {
	Alias string `toml:"alias"`
}

// RemoteConfig selects and addresses the real-time store backend.
type RemoteConfig struct {
	Driver   string `toml:"driver"` // memory, redis
	Addr     string `toml:"addr"`
	Password string `toml:"password"`
	DB       int    `toml:"db"`
	Prefix   string `toml:"prefix"`
}

// StorageConfig selects the durable local storage for the outbox.
type StorageConfig struct {
	Driver string `toml:"driver"` // sqlite, pebble
}

// ConnectionConfig tunes probing and reconnect backoff.
type ConnectionConfig struct {
	BaseDelay     time.Duration `toml:"base_delay"`
	MaxDelay      time.Duration `toml:"max_delay"`
	MaxRetries    int           `toml:"max_retries"`
	ProbeInterval time.Duration `toml:"probe_interval"`
	ProbeTimeout  time.Duration `toml:"probe_timeout"`
	LinkPoll      time.Duration `toml:"link_poll"`
}

// OutboxConfig tunes offline replay.
type OutboxConfig struct {
	MaxRetries int           `toml:"max_retries"`
	DrainGap   time.Duration `toml:"drain_gap"`
}

// DeliveryConfig bounds outgoing messages.
type DeliveryConfig struct {
	MaxLength   int           `toml:"max_length"`
	SendTimeout time.Duration `toml:"send_timeout"`
}

// TypingConfig tunes the typing indicator.
type TypingConfig struct {
	Timeout       time.Duration `toml:"timeout"`
	Debounce      time.Duration `toml:"debounce"`
	Refresh       time.Duration `toml:"refresh"`
	SweepInterval time.Duration `toml:"sweep_interval"`
	StaleAfter    time.Duration `toml:"stale_after"`
}

// LogConfig controls logger verbosity.
type LogConfig struct {
	Level string `toml:"level"`
}

// Default returns a config with every tunable set.
func Default() *Config {
	return &Config{
		Remote: RemoteConfig{
			Driver: "memory",
			Addr:   "127.0.0.1:6379",
			Prefix: "driftchat",
		},
		Storage: StorageConfig{Driver: "sqlite"},
		Connection: ConnectionConfig{
			BaseDelay:     time.Second,
			MaxDelay:      30 * time.Second,
			MaxRetries:    10,
			ProbeInterval: 30 * time.Second,
			ProbeTimeout:  5 * time.Second,
			LinkPoll:      2 * time.Second,
		},
		Outbox: OutboxConfig{
			MaxRetries: 3,
			DrainGap:   100 * time.Millisecond,
		},
		Delivery: DeliveryConfig{
			MaxLength:   1000,
			SendTimeout: 10 * time.Second,
		},
		Typing: TypingConfig{
			Timeout:       3 * time.Second,
			Debounce:      300 * time.Millisecond,
			Refresh:       2 * time.Second,
			SweepInterval: 30 * time.Second,
			StaleAfter:    time.Minute,
		},
		Log: LogConfig{Level: "info"},
	}
}

// Load reads config from the given path on top of Default. Returns error if file missing.
func Load(path string) (*Config, error) {
	cfg := Default()
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadOrDefault is Load, falling back to Default when the file does not exist.
func LoadOrDefault(path string) (*Config, error) {
	cfg, err := Load(path)
	if errors.Is(err, fs.ErrNotExist) {
		return Default(), nil
	}
	return cfg, err
}

// Save writes config to the given path, creating parent dirs as needed.
func Save(path string, cfg *Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return err
	}
	encErr := toml.NewEncoder(f).Encode(cfg)
	if closeErr := f.Close(); closeErr != nil && encErr == nil {
		return closeErr
	}
	return encErr
}
