// Package cmdutil wires resolved configuration into the clients, stores and
// publishers that trickle commands share.
package cmdutil

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/trickle/pkg/config"
	"github.com/papercomputeco/trickle/pkg/eventstream"
	"github.com/papercomputeco/trickle/pkg/eventstream/kafka"
	"github.com/papercomputeco/trickle/pkg/eventstream/nop"
	"github.com/papercomputeco/trickle/pkg/stream"
	"github.com/papercomputeco/trickle/pkg/transcript"
	"github.com/papercomputeco/trickle/pkg/transcript/postgres"
	"github.com/papercomputeco/trickle/pkg/transcript/sqlite"
	"github.com/papercomputeco/trickle/pkg/transport"
)

// Settings is the resolved configuration of one command invocation.
type Settings struct {
	Config   *config.Config
	Configer *config.Configer
}

// Load resolves configuration for cmd with the precedence
// flag > TRICKLE_ env > config.toml > defaults. Only the flags named by
// flagKeys are bound.
func Load(cmd *cobra.Command, flagKeys ...string) (*Settings, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	cfger, err := config.NewConfiger(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	return &Settings{Config: config.FromViper(v), Configer: cfger}, nil
}

// NewClient creates the transport client for the configured backend.
func (s *Settings) NewClient(l *zap.Logger) (*transport.Client, error) {
	timeout, err := s.Config.Client.TimeoutDuration()
	if err != nil {
		return nil, err
	}

	client, err := transport.New(transport.Config{
		BaseURL: s.Config.Client.Target,
		Timeout: timeout,
		Logger:  l,
	})
	if err != nil {
		return nil, fmt.Errorf("creating client for %s: %w", s.Config.Client.Target, err)
	}
	return client, nil
}

// SessionOptions returns the stream options every session of the command uses.
func (s *Settings) SessionOptions() []stream.Option {
	return []stream.Option{stream.WithMaxBufferSize(s.Config.Stream.MaxBuffer)}
}

// StoreLocation names the transcript store OpenStore will use.
func (s *Settings) StoreLocation() string {
	switch {
	case s.Config.Storage.PostgresDSN != "":
		return "postgres"
	case s.Config.Storage.SQLitePath != "":
		return s.Config.Storage.SQLitePath
	default:
		return s.Configer.DefaultSQLitePath()
	}
}

// OpenStore opens the configured transcript store: PostgreSQL when a DSN is
// set, otherwise SQLite at the configured or default path.
func (s *Settings) OpenStore(ctx context.Context) (transcript.Store, error) {
	if dsn := s.Config.Storage.PostgresDSN; dsn != "" {
		store, err := postgres.NewStore(ctx, dsn)
		if err != nil {
			return nil, fmt.Errorf("opening postgres store: %w", err)
		}
		return store, nil
	}

	path := s.StoreLocation()
	store, err := sqlite.NewStore(path)
	if err != nil {
		return nil, fmt.Errorf("opening sqlite store %s: %w", path, err)
	}
	return store, nil
}

// NewPublisher returns a Kafka publisher when brokers are configured and a
// no-op publisher otherwise.
func (s *Settings) NewPublisher(l *zap.Logger) (eventstream.Publisher, error) {
	brokers := s.Config.EventStream.BrokerList()
	if len(brokers) == 0 {
		return nop.NewPublisher(), nil
	}

	pub, err := kafka.NewPublisher(kafka.Config{
		Brokers: brokers,
		Topic:   s.Config.EventStream.Topic,
		Logger:  l,
	})
	if err != nil {
		return nil, fmt.Errorf("creating kafka publisher: %w", err)
	}
	return pub, nil
}

// SignalContext returns a context cancelled on SIGINT or SIGTERM.
func SignalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
}
