package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Config represents the persistent trickle configuration stored as
// config.toml in the .trickle/ directory.
type Config struct {
	Version     int               `toml:"version"`
	Client      ClientConfig      `toml:"client"`
	Stream      StreamConfig      `toml:"stream"`
	Storage     StorageConfig     `toml:"storage"`
	EventStream EventStreamConfig `toml:"eventstream"`
}

// ClientConfig holds the backend the CLI streams from. Target is a full URL
// (scheme + host + port); the paths are joined onto it.
type ClientConfig struct {
	Target     string `toml:"target,omitempty"`
	TextPath   string `toml:"text_path,omitempty"`
	TokensPath string `toml:"tokens_path,omitempty"`
	LLMPath    string `toml:"llm_path,omitempty"`
	ChatPath   string `toml:"chat_path,omitempty"`

	// Timeout bounds a whole stream, as a Go duration ("5m", "30s").
	Timeout string `toml:"timeout,omitempty"`
}

// TimeoutDuration parses Timeout. An empty value means no timeout.
func (c ClientConfig) TimeoutDuration() (time.Duration, error) {
	if c.Timeout == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(c.Timeout)
	if err != nil {
		return 0, fmt.Errorf("invalid value for client.timeout: %w", err)
	}
	return d, nil
}

// StreamConfig holds decoder limits.
type StreamConfig struct {
	MaxBuffer int `toml:"max_buffer,omitempty"`
}

// StorageConfig selects the transcript store. PostgresDSN wins over
// SQLitePath; with neither set the store lives in the .trickle/ directory.
type StorageConfig struct {
	SQLitePath  string `toml:"sqlite_path,omitempty"`
	PostgresDSN string `toml:"postgres_dsn,omitempty"`
}

// EventStreamConfig holds the Kafka publisher settings. Publishing is off
// while Brokers is empty.
type EventStreamConfig struct {
	// Brokers is a comma separated host:port list.
	Brokers string `toml:"brokers,omitempty"`
	Topic   string `toml:"topic,omitempty"`
}

// BrokerList splits Brokers into trimmed, non-empty addresses.
func (e EventStreamConfig) BrokerList() []string {
	var out []string
	for _, b := range strings.Split(e.Brokers, ",") {
		if b = strings.TrimSpace(b); b != "" {
			out = append(out, b)
		}
	}
	return out
}

// configKeyInfo maps a user-facing dotted key name to a getter and setter on *Config.
type configKeyInfo struct {
	get func(c *Config) string
	set func(c *Config, v string) error
}

// configKeys is the authoritative map of all supported config keys.
// Keys use dotted notation matching the TOML section structure.
var configKeys = map[string]configKeyInfo{
	"client.target": {
		get: func(c *Config) string { return c.Client.Target },
		set: func(c *Config, v string) error { c.Client.Target = v; return nil },
	},
	"client.text_path": {
		get: func(c *Config) string { return c.Client.TextPath },
		set: func(c *Config, v string) error { c.Client.TextPath = v; return nil },
	},
	"client.tokens_path": {
		get: func(c *Config) string { return c.Client.TokensPath },
		set: func(c *Config, v string) error { c.Client.TokensPath = v; return nil },
	},
	"client.llm_path": {
		get: func(c *Config) string { return c.Client.LLMPath },
		set: func(c *Config, v string) error { c.Client.LLMPath = v; return nil },
	},
	"client.chat_path": {
		get: func(c *Config) string { return c.Client.ChatPath },
		set: func(c *Config, v string) error { c.Client.ChatPath = v; return nil },
	},
	"client.timeout": {
		get: func(c *Config) string { return c.Client.Timeout },
		set: func(c *Config, v string) error {
			if _, err := time.ParseDuration(v); err != nil {
				return fmt.Errorf("invalid value for client.timeout: %w", err)
			}
			c.Client.Timeout = v
			return nil
		},
	},
	"stream.max_buffer": {
		get: func(c *Config) string {
			if c.Stream.MaxBuffer == 0 {
				return ""
			}
			return strconv.Itoa(c.Stream.MaxBuffer)
		},
		set: func(c *Config, v string) error {
			n, err := strconv.Atoi(v)
			if err != nil {
				return fmt.Errorf("invalid value for stream.max_buffer: %w", err)
			}
			if n < 0 {
				return fmt.Errorf("invalid value for stream.max_buffer: %d is negative", n)
			}
			c.Stream.MaxBuffer = n
			return nil
		},
	},
	"storage.sqlite_path": {
		get: func(c *Config) string { return c.Storage.SQLitePath },
		set: func(c *Config, v string) error { c.Storage.SQLitePath = v; return nil },
	},
	"storage.postgres_dsn": {
		get: func(c *Config) string { return c.Storage.PostgresDSN },
		set: func(c *Config, v string) error { c.Storage.PostgresDSN = v; return nil },
	},
	"eventstream.brokers": {
		get: func(c *Config) string { return c.EventStream.Brokers },
		set: func(c *Config, v string) error { c.EventStream.Brokers = v; return nil },
	},
	"eventstream.topic": {
		get: func(c *Config) string { return c.EventStream.Topic },
		set: func(c *Config, v string) error { c.EventStream.Topic = v; return nil },
	},
}
