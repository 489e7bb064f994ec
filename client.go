package objstream

import (
	"context"
	"log/slog"
	"time"

	"github.com/objstream/objstream/internal/channel"
	"github.com/objstream/objstream/internal/config"
	"github.com/objstream/objstream/internal/fetch"
	"github.com/objstream/objstream/internal/metrics"
	"github.com/objstream/objstream/internal/transport"
	"github.com/objstream/objstream/pkg/errors"
	"github.com/objstream/objstream/pkg/retry"
	"github.com/objstream/objstream/pkg/types"
)

// Client opens read channels and performs the simple object operations.
// A client is safe for concurrent use; channels opened from it are
// independent.
type Client struct {
	store         types.Store
	fetchOpts     fetch.Options
	readDefaults  types.ReadOptions
	logger        *slog.Logger
	sink          types.MetricsSink
	metricsServer *metrics.Server
}

type settings struct {
	logger       *slog.Logger
	readDefaults types.ReadOptions
	retryConfig  retry.Config
	collector    *metrics.Collector
	metricsPort  int
	metricsPath  string
	interceptors []types.Interceptor
}

// Option customizes a client at construction time.
type Option func(*settings)

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(logger *slog.Logger) Option {
	return func(s *settings) { s.logger = logger }
}

// WithReadDefaults sets the ReadOptions applied when Open is called without
// explicit options.
func WithReadDefaults(opts ReadOptions) Option {
	return func(s *settings) { s.readDefaults = opts.Normalize() }
}

// WithRetry sets the retry behavior of the fetch layer.
func WithRetry(cfg retry.Config) Option {
	return func(s *settings) { s.retryConfig = cfg }
}

// WithMetrics attaches a Prometheus collector and, when port is non-zero,
// serves it on the given port at /metrics.
func WithMetrics(port int) Option {
	return func(s *settings) {
		s.collector = metrics.NewCollector("objstream")
		s.metricsPort = port
	}
}

// WithInterceptor registers a wire observer. Interceptors receive one event
// per outbound request and one per inbound message.
func WithInterceptor(in Interceptor) Option {
	return func(s *settings) { s.interceptors = append(s.interceptors, in) }
}

func newSettings(opts []Option) *settings {
	s := &settings{
		logger:       slog.Default(),
		readDefaults: types.DefaultReadOptions(),
		retryConfig:  retry.DefaultConfig(),
		metricsPath:  "/metrics",
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// interceptor combines the configured observers with logging and metrics.
func (s *settings) interceptor() types.Interceptor {
	ins := []types.Interceptor{&transport.LogInterceptor{Logger: s.logger}}
	if s.collector != nil {
		ins = append(ins, s.collector.Interceptor())
	}
	ins = append(ins, s.interceptors...)
	return transport.Combine(ins...)
}

func (s *settings) build(store types.Store) *Client {
	var sink types.MetricsSink
	if s.collector != nil {
		sink = s.collector
	}
	c := &Client{
		store: store,
		fetchOpts: fetch.Options{
			Checksums: s.readDefaults.ChecksumsEnabled,
			Timeout:   s.readDefaults.FetchTimeout,
			Retryer:   retry.New(s.retryConfig),
			Sink:      sink,
			Logger:    s.logger,
		},
		readDefaults: s.readDefaults,
		logger:       s.logger,
		sink:         sink,
	}
	if s.collector != nil && s.metricsPort > 0 {
		c.metricsServer = metrics.NewServer(s.collector, s.metricsPort, s.metricsPath)
		c.metricsServer.Start()
	}
	return c
}

// NewClient wraps an existing store. The store should already carry any
// interceptors it needs; options affecting the wire apply only to stores
// built by the other constructors.
func NewClient(store types.Store, opts ...Option) *Client {
	return newSettings(opts).build(store)
}

// NewMemoryClient returns a client backed by an in-memory store, useful in
// tests and examples.
func NewMemoryClient(opts ...Option) *Client {
	s := newSettings(opts)
	store := transport.NewMemory(transport.MemoryConfig{Interceptor: s.interceptor()})
	return s.build(store)
}

// S3Options configures the S3-compatible backend.
type S3Options struct {
	Region          string
	Endpoint        string
	AccessKeyID     string
	SecretAccessKey string
	SessionToken    string
	ForcePathStyle  bool

	// PoolSize is the number of pooled transport clients.
	PoolSize int
}

// NewS3Client returns a client backed by an S3-compatible store.
func NewS3Client(ctx context.Context, s3opts S3Options, opts ...Option) (*Client, error) {
	s := newSettings(opts)
	store, err := transport.NewS3(ctx, transport.S3Config{
		Region:          s3opts.Region,
		Endpoint:        s3opts.Endpoint,
		AccessKeyID:     s3opts.AccessKeyID,
		SecretAccessKey: s3opts.SecretAccessKey,
		SessionToken:    s3opts.SessionToken,
		ForcePathStyle:  s3opts.ForcePathStyle,
		PoolSize:        s3opts.PoolSize,
		Breaker:         transport.NewBreaker(transport.BreakerConfig{}),
		Interceptor:     s.interceptor(),
		Logger:          s.logger,
	})
	if err != nil {
		return nil, err
	}
	return s.build(store), nil
}

// NewClientFromConfigFile builds an S3-backed client from a YAML
// configuration file, with OBJSTREAM_* environment variables applied on
// top.
func NewClientFromConfigFile(ctx context.Context, path string, opts ...Option) (*Client, error) {
	cfg := config.NewDefault()
	if err := cfg.LoadFromFile(path); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "loading configuration", err)
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "loading environment overrides", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "validating configuration", err)
	}
	readDefaults, err := cfg.ReadOptions()
	if err != nil {
		return nil, errors.Wrap(errors.ErrCodeInvalidConfig, "resolving read options", err)
	}

	configured := []Option{
		WithReadDefaults(readDefaults),
		WithRetry(retry.Config{
			MaxAttempts:  cfg.Network.Retry.MaxAttempts,
			InitialDelay: cfg.Network.Retry.InitialDelay,
			MaxDelay:     cfg.Network.Retry.MaxDelay,
			Jitter:       true,
		}),
	}
	if cfg.Monitoring.Metrics.Enabled {
		configured = append(configured, WithMetrics(cfg.Monitoring.Metrics.Port))
	}
	configured = append(configured, opts...)

	return NewS3Client(ctx, S3Options{
		Region:          cfg.Transport.Region,
		Endpoint:        cfg.Transport.Endpoint,
		AccessKeyID:     cfg.Transport.AccessKeyID,
		SecretAccessKey: cfg.Transport.SecretAccessKey,
		SessionToken:    cfg.Transport.SessionToken,
		ForcePathStyle:  cfg.Transport.ForcePathStyle,
		PoolSize:        cfg.Transport.PoolSize,
	}, configured...)
}

// Open returns a read channel over the object, using the client's default
// read options.
func (c *Client) Open(ctx context.Context, bucket, name string) (ReadChannel, error) {
	return c.OpenWith(ctx, ObjectHandle{Bucket: bucket, Name: name}, c.readDefaults)
}

// OpenWith returns a read channel with explicit options. A handle carrying
// a non-zero generation pins the channel to that version; otherwise the
// channel pins the generation resolved at open time.
func (c *Client) OpenWith(ctx context.Context, h ObjectHandle, opts ReadOptions) (ReadChannel, error) {
	opts = opts.Normalize()
	fetchOpts := c.fetchOpts
	fetchOpts.Checksums = opts.ChecksumsEnabled
	fetchOpts.Timeout = opts.FetchTimeout
	fetcher := fetch.New(c.store, fetchOpts)
	return channel.Open(ctx, c.store, fetcher, h, opts, c.sink, c.logger)
}

// Stat resolves object metadata without opening a channel.
func (c *Client) Stat(ctx context.Context, bucket, name string) (*ObjectInfo, error) {
	return c.store.Resolve(ctx, ObjectHandle{Bucket: bucket, Name: name})
}

// Write creates or overwrites an object.
func (c *Client) Write(ctx context.Context, bucket, name string, data []byte) (*ObjectInfo, error) {
	return c.store.Put(ctx, ObjectHandle{Bucket: bucket, Name: name}, data)
}

// Delete removes an object. Deleting a missing object is not an error.
func (c *Client) Delete(ctx context.Context, bucket, name string) error {
	return c.store.Delete(ctx, ObjectHandle{Bucket: bucket, Name: name})
}

// List returns objects in the bucket matching prefix, up to limit entries;
// limit <= 0 means no limit.
func (c *Client) List(ctx context.Context, bucket, prefix string, limit int) ([]ObjectInfo, error) {
	return c.store.List(ctx, bucket, prefix, limit)
}

// Close releases client-owned resources such as the metrics server. Open
// channels are unaffected.
func (c *Client) Close() error {
	if c.metricsServer != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return c.metricsServer.Stop(ctx)
	}
	return nil
}
