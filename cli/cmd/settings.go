package cmd

import (
	"context"
	"fmt"
	"net"
	"strconv"

	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/docbench/adapter"
	"github.com/pithecene-io/docbench/adapter/redis"
	"github.com/pithecene-io/docbench/adapter/webhook"
	"github.com/pithecene-io/docbench/cli/config"
	"github.com/pithecene-io/docbench/codec"
	"github.com/pithecene-io/docbench/log"
	"github.com/pithecene-io/docbench/metrics"
	"github.com/pithecene-io/docbench/store"
	"github.com/pithecene-io/docbench/wire"
)

// settings is the merged view of defaults, config file and flags.
// Precedence: defaults < config file < flags.
type settings struct {
	file   *config.Config
	wire   wire.Config
	logger *log.Logger
}

func loadSettings(c *cli.Context) (*settings, error) {
	file, err := config.LoadOptional(c.String(ConfigFlag.Name))
	if err != nil {
		return nil, err
	}

	wcfg, err := wireConfig(c, file.Server)
	if err != nil {
		return nil, err
	}

	level, err := log.ParseLevel(c.String(LogLevelFlag.Name))
	if err != nil {
		return nil, err
	}
	logger := log.NewLoggerWithWriter(log.RunContext{Server: wcfg.Addr}, level, c.App.ErrWriter)

	return &settings{file: file, wire: wcfg, logger: logger}, nil
}

func wireConfig(c *cli.Context, sc config.ServerConfig) (wire.Config, error) {
	cfg := wire.DefaultConfig()
	host, portStr, err := net.SplitHostPort(cfg.Addr)
	if err != nil {
		return cfg, err
	}
	port, _ := strconv.Atoi(portStr)

	if sc.Host != "" {
		host = sc.Host
	}
	if sc.Port != 0 {
		port = sc.Port
	}
	if c.IsSet(HostFlag.Name) {
		host = c.String(HostFlag.Name)
	}
	if c.IsSet(PortFlag.Name) {
		port = c.Int(PortFlag.Name)
	}
	cfg.Addr = net.JoinHostPort(host, strconv.Itoa(port))

	if sc.DialTimeout.Duration > 0 {
		cfg.DialTimeout = sc.DialTimeout.Duration
	}
	if sc.IOTimeout.Duration > 0 {
		cfg.IOTimeout = sc.IOTimeout.Duration
	}
	if sc.BufferSize > 0 {
		cfg.BufferSize = sc.BufferSize
	}
	if sc.StatusWidth > 0 {
		cfg.StatusWidth = sc.StatusWidth
	}
	if sc.ErrorMarker != "" {
		cfg.ErrorMarker = sc.ErrorMarker
	}

	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("invalid server config: %w", err)
	}
	return cfg, nil
}

// newCodec builds a command codec. A non-nil collector instruments every call.
func (s *settings) newCodec(collector *metrics.Collector) (*codec.Codec, error) {
	client, err := wire.NewClient(s.wire)
	if err != nil {
		return nil, err
	}
	if collector == nil {
		return codec.New(client), nil
	}
	return codec.New(wire.NewInstrumentedCaller(client, collector)), nil
}

// storeChoice holds the resolved report store configuration.
type storeChoice struct {
	backend  string // "fs" or "s3"
	path     string // fs: directory, s3: bucket/prefix
	dataset  string
	region   string
	endpoint string
	s3Path   bool
}

func storeFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "store-backend",
			Usage: "Report store backend: fs or s3",
		},
		&cli.StringFlag{
			Name:  "store-path",
			Usage: "Report store path (fs: directory, s3: bucket/prefix)",
		},
		&cli.StringFlag{
			Name:  "store-dataset",
			Usage: "Report dataset id",
		},
		&cli.StringFlag{
			Name:  "store-s3-region",
			Usage: "AWS region for the s3 backend (optional, uses default chain)",
		},
	}
}

func (s *settings) storeChoice(c *cli.Context) storeChoice {
	sc := s.file.Storage
	choice := storeChoice{
		backend:  sc.Backend,
		path:     sc.Path,
		dataset:  sc.Dataset,
		region:   sc.Region,
		endpoint: sc.Endpoint,
		s3Path:   sc.S3PathStyle,
	}
	if v := c.String("store-backend"); v != "" {
		choice.backend = v
	}
	if v := c.String("store-path"); v != "" {
		choice.path = v
	}
	if v := c.String("store-dataset"); v != "" {
		choice.dataset = v
	}
	if v := c.String("store-s3-region"); v != "" {
		choice.region = v
	}
	if choice.backend == "" {
		choice.backend = "fs"
	}
	return choice
}

// location describes where reports are persisted, for logs and events.
func (sc storeChoice) location() string {
	if sc.backend == "s3" {
		return "s3://" + sc.path
	}
	return "file://" + sc.path
}

// openStore opens the report store. It returns nil when no path is set.
func openStore(ctx context.Context, choice storeChoice) (*store.Store, error) {
	if choice.path == "" {
		return nil, nil
	}
	switch choice.backend {
	case "fs":
		return store.NewFS(choice.dataset, choice.path)
	case "s3":
		bucket, prefix := store.ParseS3Path(choice.path)
		return store.NewS3(ctx, choice.dataset, store.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       choice.region,
			Endpoint:     choice.endpoint,
			UsePathStyle: choice.s3Path,
		})
	default:
		return nil, fmt.Errorf("unknown store backend: %s (must be fs or s3)", choice.backend)
	}
}

func notifyFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:  "notify",
			Usage: "Publish a completion event: redis or webhook",
		},
		&cli.StringFlag{
			Name:  "notify-url",
			Usage: "Redis URL or webhook endpoint for --notify",
		},
		&cli.StringFlag{
			Name:  "notify-channel",
			Usage: "Redis channel for --notify redis",
		},
	}
}

// openAdapter builds the notification adapter. It returns nil when no
// adapter type is configured.
func (s *settings) openAdapter(c *cli.Context) (adapter.Adapter, error) {
	ac := s.file.Adapter
	if v := c.String("notify"); v != "" {
		ac.Type = v
	}
	if v := c.String("notify-url"); v != "" {
		ac.URL = v
	}
	if v := c.String("notify-channel"); v != "" {
		ac.Channel = v
	}

	switch ac.Type {
	case "":
		return nil, nil
	case "redis":
		retries := redis.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := redis.New(redis.Config{
			URL:     ac.URL,
			Channel: ac.Channel,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	case "webhook":
		retries := webhook.DefaultRetries
		if ac.Retries != nil {
			retries = *ac.Retries
		}
		a, err := webhook.New(webhook.Config{
			URL:     ac.URL,
			Headers: ac.Headers,
			Timeout: ac.Timeout.Duration,
			Retries: retries,
		})
		if err != nil {
			return nil, err
		}
		return a, nil
	default:
		return nil, fmt.Errorf("unknown adapter type: %s (must be redis or webhook)", ac.Type)
	}
}
