package config

import (
	"github.com/papercomputeco/trickle/pkg/chat"
	"github.com/papercomputeco/trickle/pkg/sse"
	"github.com/papercomputeco/trickle/pkg/streaming"
)

const (
	defaultTarget  = "http://localhost:8080"
	defaultTimeout = "5m"
	defaultTopic   = "trickle.turns"
)

// NewDefaultConfig returns a Config with sane defaults for all fields.
// This is the single source of truth for default values.
func NewDefaultConfig() *Config {
	paths := streaming.DefaultPaths()

	return &Config{
		Version: CurrentV,
		Client: ClientConfig{
			Target:     defaultTarget,
			TextPath:   paths.Text,
			TokensPath: paths.Tokens,
			LLMPath:    paths.LLM,
			ChatPath:   chat.DefaultPath,
			Timeout:    defaultTimeout,
		},
		Stream: StreamConfig{
			MaxBuffer: sse.DefaultMaxBufferSize,
		},
		EventStream: EventStreamConfig{
			Topic: defaultTopic,
		},
	}
}
