package container

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/sqs"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"

	"scoregate/adapters/objectstore"
	"scoregate/adapters/postgres"
	"scoregate/adapters/queue"
	"scoregate/domain/core"
	"scoregate/internal"
	"scoregate/internal/api"
	"scoregate/internal/config"
	"scoregate/internal/errors"
	"scoregate/internal/pipeline"
	"scoregate/internal/scoring"
	"scoregate/internal/stats"
	"scoregate/internal/telemetry"
	"scoregate/ports"
)

// Queues are the three pipeline queues
type Queues struct {
	Leaderboard ports.Queue
	Originality ports.Queue
	Concordance ports.Queue
}

// Container holds all application dependencies and manages their lifecycle
type Container struct {
	Config *config.Config
	Log    *internal.Logger

	// Infrastructure
	DB      *sqlx.DB
	Metrics *telemetry.Metrics
	Store   ports.SubmissionStore
	Files   ports.FileStore
	Queues  Queues

	// Scoring
	Vectors     *scoring.CachedVectors
	Rounds      *scoring.RoundData
	Originality *scoring.OriginalityEngine
	Concordance *scoring.ConcordanceEngine

	Pipeline *pipeline.Pipeline
	Server   *api.Server

	closers []func() error
}

// New connects to the database and builds every component
func New(ctx context.Context, cfg *config.Config, log *internal.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	db, err := OpenDatabase(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}
	c, err := NewWithStore(ctx, cfg, log, postgres.NewSubmissionStore(db))
	if err != nil {
		db.Close()
		return nil, err
	}
	c.DB = db
	c.closers = append(c.closers, db.Close)
	return c, nil
}

// NewWithStore builds every component around an existing datastore
func NewWithStore(ctx context.Context, cfg *config.Config, log *internal.Logger, store ports.SubmissionStore) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config cannot be nil")
	}
	c := &Container{
		Config:  cfg,
		Log:     log,
		Metrics: telemetry.New(),
		Store:   store,
	}

	steps := []struct {
		name string
		fn   func(context.Context) error
	}{
		{"storage", c.initStorage},
		{"queues", c.initQueues},
		{"scoring", c.initScoring},
		{"pipeline", c.initPipeline},
	}
	for _, step := range steps {
		if err := step.fn(ctx); err != nil {
			c.Shutdown(context.Background())
			return nil, errors.Wrapf(err, "failed to initialize %s", step.name)
		}
	}

	log.Info("container initialized (storage=%s, queue=%s, originality workers=%d)",
		cfg.Storage.Driver, cfg.Queue.Driver, cfg.Workers.Originality)
	return c, nil
}

// OpenDatabase connects to postgres and verifies the connection
func OpenDatabase(ctx context.Context, cfg config.DatabaseConfig) (*sqlx.DB, error) {
	db, err := sqlx.ConnectContext(ctx, "postgres", cfg.URL)
	if err != nil {
		return nil, errors.DatabaseError("failed to connect to database", err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns)
	}
	return db, nil
}

func (c *Container) initStorage(ctx context.Context) error {
	sc := c.Config.Storage
	switch sc.Driver {
	case config.StorageFS:
		c.Files = objectstore.NewFSStore(sc.Root)
	case config.StorageS3:
		var loadOpts []func(*awsconfig.LoadOptions) error
		if sc.AccessKey != "" {
			loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
				credentials.NewStaticCredentialsProvider(sc.AccessKey, sc.SecretKey, "")))
		}
		store, err := objectstore.NewS3Store(ctx, objectstore.S3Config{
			Region:       sc.Region,
			UploadBucket: sc.UploadBucket,
			InputBucket:  sc.InputBucket,
			Endpoint:     sc.Endpoint,
			PathStyle:    sc.PathStyle,
			CacheDir:     sc.CacheDir,
		}, loadOpts, func(o *s3.Options) { o.RetryMaxAttempts = 5 })
		if err != nil {
			return errors.StorageError("failed to create s3 store", err)
		}
		c.Files = store
	default:
		return errors.ConfigInvalid("unknown storage driver " + sc.Driver)
	}
	return nil
}

func (c *Container) initQueues(ctx context.Context) error {
	queues, closeFn, err := OpenQueues(ctx, c.Config)
	if err != nil {
		return err
	}
	c.Queues = queues
	c.closers = append(c.closers, closeFn)
	return nil
}

// OpenQueues opens the three pipeline queues on the configured backend.
// The returned func releases the backend.
func OpenQueues(ctx context.Context, cfg *config.Config) (Queues, func() error, error) {
	qc := cfg.Queue
	switch qc.Driver {
	case config.QueueSQLite:
		broker, err := queue.OpenSQLite(ctx, qc.Path, queue.SQLiteOptions{Lease: qc.Lease})
		if err != nil {
			return Queues{}, nil, errors.QueueError("sqlite", err)
		}
		return Queues{
			Leaderboard: broker.Queue(ports.QueueLeaderboard),
			Originality: broker.Queue(ports.QueueOriginality),
			Concordance: broker.Queue(ports.QueueConcordance),
		}, broker.Close, nil
	case config.QueueSQS:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.Storage.Region))
		if err != nil {
			return Queues{}, nil, errors.QueueError("sqs", err)
		}
		client := sqs.NewFromConfig(awsCfg, func(o *sqs.Options) {
			o.RetryMaxAttempts = 5
			if qc.Endpoint != "" {
				o.BaseEndpoint = aws.String(qc.Endpoint)
			}
		})
		opts := queue.SQSOptions{VisibilityTimeout: qc.Lease}
		return Queues{
			Leaderboard: queue.NewSQSQueue(ports.QueueLeaderboard, qc.LeaderboardURL, client, opts),
			Originality: queue.NewSQSQueue(ports.QueueOriginality, qc.OriginalityURL, client, opts),
			Concordance: queue.NewSQSQueue(ports.QueueConcordance, qc.ConcordanceURL, client, opts),
		}, func() error { return nil }, nil
	default:
		return Queues{}, nil, errors.ConfigInvalid("unknown queue driver " + qc.Driver)
	}
}

func (c *Container) initScoring(ctx context.Context) error {
	cfg := c.Config
	var err error

	loader := scoring.NewLoader(c.Store, c.Files, c.Log)
	c.Vectors, err = scoring.NewCachedVectors(loader, cfg.Cache.Submissions, c.Metrics)
	if err != nil {
		return err
	}
	c.Rounds, err = scoring.NewRoundData(c.Files, cfg.Cache.Datasets, c.Metrics, c.Log)
	if err != nil {
		return err
	}

	c.Originality = scoring.NewOriginalityEngine(c.Vectors, OriginalityConfig(cfg), c.Log)
	c.Concordance, err = scoring.NewConcordanceEngine(c.Rounds, c.Vectors, ConcordanceConfig(cfg), cfg.Cache.Clusters, c.Metrics, c.Log)
	if err != nil {
		return err
	}
	c.Concordance.OnBuild = func(_ core.RoundKey, elapsed time.Duration) { c.Metrics.ClusterBuilt(elapsed) }
	return nil
}

func (c *Container) initPipeline(ctx context.Context) error {
	cfg := c.Config
	stages := &pipeline.Stages{
		Store:             c.Store,
		Vectors:           c.Vectors,
		Rounds:            c.Rounds,
		OriginalityEngine: c.Originality,
		ConcordanceEngine: c.Concordance,
		Consistency:       ConsistencyConfig(cfg),
		OriginalityQueue:  c.Queues.Originality,
		ConcordanceQueue:  c.Queues.Concordance,
		Verdicts:          c.Metrics,
		Log:               c.Log.Component("stages"),
	}
	c.Pipeline = pipeline.New(c.Queues.Leaderboard, stages, pipeline.Config{
		OriginalityWorkers: cfg.Workers.Originality,
		ItemTimeout:        cfg.Workers.ItemTimeout,
	}, c.Metrics, c.Log)

	c.Server = api.NewServer(c.Queues.Leaderboard, api.Options{
		Addr:     net.JoinHostPort("", cfg.Server.Port),
		APIKey:   cfg.Server.APIKey,
		Metrics:  c.Metrics.Handler(),
		LogLevel: internal.ParseLogLevel(cfg.Log.Level).SlogLevel(),
		JSON:     strings.EqualFold(cfg.Log.Format, "json"),
	})
	return nil
}

// OriginalityConfig maps configuration onto the originality engine settings
func OriginalityConfig(cfg *config.Config) scoring.OriginalityConfig {
	o := cfg.Originality
	return scoring.OriginalityConfig{
		ExactDupeThreshold: o.ExactDupeThreshold,
		SimilarThreshold:   o.SimilarThreshold,
		MaxSimilar:         o.MaxSimilar,
		CorrelationLimit:   o.CorrelationLimit,
	}
}

// ConcordanceConfig maps configuration onto the concordance engine settings
func ConcordanceConfig(cfg *config.Config) scoring.ConcordanceConfig {
	cc := cfg.Concordance
	return scoring.ConcordanceConfig{
		Threshold: cc.Threshold,
		Clusters: stats.KMeansConfig{
			K:         cc.Clusters,
			Seed:      cc.Seed,
			BatchSize: cc.BatchSize,
			MaxIter:   cc.MaxIter,
		},
		BuildTimeout: cc.BuildTimeout,
	}
}

// ConsistencyConfig maps configuration onto the consistency scorer settings
func ConsistencyConfig(cfg *config.Config) scoring.ConsistencyConfig {
	out := scoring.DefaultConsistencyConfig()
	out.Benchmark = cfg.Consistency.Benchmark
	out.EraCount = cfg.Consistency.EraCount
	if len(cfg.Consistency.Targets) > 0 {
		out.Targets = cfg.Consistency.Targets
	}
	return out
}

// Cleanup removes local file copies older than the configured age
func (c *Container) Cleanup(ctx context.Context) {
	removed, err := c.Files.Cleanup(ctx, c.Config.Housekeeping.CleanupMaxAge)
	if err != nil {
		c.Log.Error("cleanup failed: %v", err)
		return
	}
	c.Log.Info("cleanup removed %d local files", removed)
}

// Shutdown gracefully shuts down all components
func (c *Container) Shutdown(ctx context.Context) error {
	var first error
	if c.Server != nil {
		if err := c.Server.Shutdown(ctx); err != nil {
			first = err
		}
	}
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && first == nil {
			first = err
		}
	}
	c.closers = nil
	return first
}
