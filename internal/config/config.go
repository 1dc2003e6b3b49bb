package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"scoregate/internal/errors"
)

// Storage drivers
const (
	StorageFS = "fs"
	StorageS3 = "s3"
)

// Queue drivers
const (
	QueueSQLite = "sqlite"
	QueueSQS    = "sqs"
)

// Config represents the complete application configuration
type Config struct {
	Log          LogConfig
	Database     DatabaseConfig
	Server       ServerConfig
	Storage      StorageConfig
	Queue        QueueConfig
	Workers      WorkerConfig
	Originality  OriginalityConfig
	Concordance  ConcordanceConfig
	Consistency  ConsistencyConfig
	Cache        CacheConfig
	Housekeeping HousekeepingConfig
	Profiling    ProfilingConfig
}

// LogConfig selects the log level and output format
type LogConfig struct {
	Level  string
	Format string
}

// DatabaseConfig holds database connection settings
type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
}

// ServerConfig holds web server settings
type ServerConfig struct {
	Port   string
	APIKey string
}

// StorageConfig selects where uploads and round datasets are read from
type StorageConfig struct {
	Driver       string
	Root         string
	UploadBucket string
	InputBucket  string
	Region       string
	Endpoint     string
	PathStyle    bool
	CacheDir     string
	// AccessKey and SecretKey override the default AWS credential chain,
	// for MinIO and similar endpoints.
	AccessKey string
	SecretKey string
}

// QueueConfig selects the durable queue backend
type QueueConfig struct {
	Driver         string
	Path           string
	Lease          time.Duration
	LeaderboardURL string
	OriginalityURL string
	ConcordanceURL string
	Endpoint       string
}

// WorkerConfig sizes the worker pools
type WorkerConfig struct {
	Originality int
	ItemTimeout time.Duration
}

// OriginalityConfig holds the near-duplicate thresholds
type OriginalityConfig struct {
	ExactDupeThreshold float64
	SimilarThreshold   float64
	MaxSimilar         int
	CorrelationLimit   float64
}

// ConcordanceConfig holds the clustering and KS settings
type ConcordanceConfig struct {
	Threshold    float64
	Clusters     int
	Seed         int64
	BatchSize    int
	MaxIter      int
	BuildTimeout time.Duration
}

// ConsistencyConfig holds the per-era benchmark settings
type ConsistencyConfig struct {
	Benchmark float64
	EraCount  int
	// Targets maps tournament ids to target columns; empty means the built-in table.
	Targets []string
}

// CacheConfig holds cache capacities
type CacheConfig struct {
	Submissions int
	Datasets    int
	Clusters    int
}

// HousekeepingConfig controls local file cleanup
type HousekeepingConfig struct {
	CleanupInterval time.Duration
	CleanupMaxAge   time.Duration
}

// ProfilingConfig holds performance profiling settings
type ProfilingConfig struct {
	Port    string
	Enabled bool
}

// Load reads configuration from environment variables and validates it
func Load() (*Config, error) {
	config := Parse()
	if err := validateConfig(config); err != nil {
		return nil, errors.Wrap(err, "configuration validation failed")
	}
	return config, nil
}

// Parse reads configuration from environment variables without validating it.
// Command-line tools that need only part of the configuration use it directly.
func Parse() *Config {
	return &Config{
		Log: LogConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "INFO"),
			Format: getEnvOrDefault("LOG_FORMAT", "text"),
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: getEnvIntOrDefault("DB_MAX_OPEN_CONNS", 10),
		},
		Server: ServerConfig{
			Port:   getEnvOrDefault("PORT", "5151"),
			APIKey: os.Getenv("API_KEY"),
		},
		Storage: StorageConfig{
			Driver:       strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", StorageFS)),
			Root:         getEnvOrDefault("STORAGE_ROOT", "./data"),
			UploadBucket: os.Getenv("S3_UPLOAD_BUCKET"),
			InputBucket:  os.Getenv("S3_INPUT_DATA_BUCKET"),
			Region:       getEnvOrDefault("S3_REGION", "us-east-1"),
			Endpoint:     os.Getenv("S3_ENDPOINT"),
			PathStyle:    getEnvBoolOrDefault("S3_PATH_STYLE", false),
			CacheDir:     getEnvOrDefault("LOCAL_CACHE_DIR", "./cache"),
			AccessKey:    os.Getenv("S3_ACCESS_KEY_ID"),
			SecretKey:    os.Getenv("S3_SECRET_ACCESS_KEY"),
		},
		Queue: QueueConfig{
			Driver:         strings.ToLower(getEnvOrDefault("QUEUE_DRIVER", QueueSQLite)),
			Path:           getEnvOrDefault("QUEUE_PATH", "./queues/scoregate.db"),
			Lease:          getEnvDurationOrDefault("QUEUE_LEASE", 2*time.Hour),
			LeaderboardURL: os.Getenv("SQS_LEADERBOARD_URL"),
			OriginalityURL: os.Getenv("SQS_ORIGINALITY_URL"),
			ConcordanceURL: os.Getenv("SQS_CONCORDANCE_URL"),
			Endpoint:       os.Getenv("SQS_ENDPOINT"),
		},
		Workers: WorkerConfig{
			Originality: getEnvIntOrDefault("ORIGINALITY_WORKERS", 6),
			ItemTimeout: getEnvDurationOrDefault("ITEM_TIMEOUT", time.Hour),
		},
		Originality: OriginalityConfig{
			ExactDupeThreshold: getEnvFloatOrDefault("ORIGINALITY_EXACT_DUPE_THRESHOLD", 0.005),
			SimilarThreshold:   getEnvFloatOrDefault("ORIGINALITY_SIMILAR_THRESHOLD", 0.03),
			MaxSimilar:         getEnvIntOrDefault("ORIGINALITY_MAX_SIMILAR", 1),
			CorrelationLimit:   getEnvFloatOrDefault("ORIGINALITY_CORRELATION_LIMIT", 0.95),
		},
		Concordance: ConcordanceConfig{
			Threshold:    getEnvFloatOrDefault("CONCORDANCE_THRESHOLD", 0.12),
			Clusters:     getEnvIntOrDefault("CLUSTER_COUNT", 5),
			Seed:         int64(getEnvIntOrDefault("CLUSTER_SEED", 1337)),
			BatchSize:    getEnvIntOrDefault("CLUSTER_BATCH_SIZE", 100),
			MaxIter:      getEnvIntOrDefault("CLUSTER_MAX_ITER", 100),
			BuildTimeout: getEnvDurationOrDefault("CLUSTER_TIMEOUT", 30*time.Minute),
		},
		Consistency: ConsistencyConfig{
			Benchmark: getEnvFloatOrDefault("CONSISTENCY_BENCHMARK", 0.002),
			EraCount:  getEnvIntOrDefault("CONSISTENCY_ERA_COUNT", 12),
			Targets:   getEnvListOrDefault("TOURNAMENT_TARGETS", nil),
		},
		Cache: CacheConfig{
			Submissions: getEnvIntOrDefault("SUBMISSION_CACHE_SIZE", 2048),
			Datasets:    getEnvIntOrDefault("DATASET_CACHE_SIZE", 2),
			Clusters:    getEnvIntOrDefault("CLUSTER_CACHE_SIZE", 2),
		},
		Housekeeping: HousekeepingConfig{
			CleanupInterval: getEnvDurationOrDefault("CLEANUP_INTERVAL", 24*time.Hour),
			CleanupMaxAge:   getEnvDurationOrDefault("CLEANUP_MAX_AGE", 72*time.Hour),
		},
		Profiling: ProfilingConfig{
			Port:    getEnvOrDefault("PPROF_PORT", "6060"),
			Enabled: getEnvBoolOrDefault("PPROF_ENABLED", false),
		},
	}
}

func validateConfig(config *Config) error {
	if config.Database.URL == "" {
		return errors.ConfigInvalid("DATABASE_URL is required")
	}
	if config.Server.APIKey == "" {
		return errors.ConfigInvalid("API_KEY is required")
	}

	switch config.Storage.Driver {
	case StorageFS:
		if config.Storage.Root == "" {
			return errors.ConfigInvalid("STORAGE_ROOT is required for the fs storage driver")
		}
	case StorageS3:
		if config.Storage.UploadBucket == "" || config.Storage.InputBucket == "" {
			return errors.ConfigInvalid("S3_UPLOAD_BUCKET and S3_INPUT_DATA_BUCKET are required for the s3 storage driver")
		}
		if config.Storage.CacheDir == "" {
			return errors.ConfigInvalid("LOCAL_CACHE_DIR is required for the s3 storage driver")
		}
	default:
		return errors.ConfigInvalid("unknown STORAGE_DRIVER " + strconv.Quote(config.Storage.Driver))
	}

	switch config.Queue.Driver {
	case QueueSQLite:
		if config.Queue.Path == "" {
			return errors.ConfigInvalid("QUEUE_PATH is required for the sqlite queue driver")
		}
	case QueueSQS:
		q := config.Queue
		if q.LeaderboardURL == "" || q.OriginalityURL == "" || q.ConcordanceURL == "" {
			return errors.ConfigInvalid("SQS_LEADERBOARD_URL, SQS_ORIGINALITY_URL and SQS_CONCORDANCE_URL are required for the sqs queue driver")
		}
	default:
		return errors.ConfigInvalid("unknown QUEUE_DRIVER " + strconv.Quote(config.Queue.Driver))
	}

	if config.Workers.Originality < 1 {
		return errors.ConfigInvalid("ORIGINALITY_WORKERS must be at least 1")
	}

	o := config.Originality
	if o.ExactDupeThreshold <= 0 || o.SimilarThreshold <= 0 {
		return errors.ConfigInvalid("originality thresholds must be positive")
	}
	if o.ExactDupeThreshold > o.SimilarThreshold {
		return errors.ConfigInvalid("ORIGINALITY_EXACT_DUPE_THRESHOLD must not exceed ORIGINALITY_SIMILAR_THRESHOLD")
	}
	if o.MaxSimilar < 1 {
		return errors.ConfigInvalid("ORIGINALITY_MAX_SIMILAR must be at least 1")
	}
	if o.CorrelationLimit <= 0 || o.CorrelationLimit > 1 {
		return errors.ConfigInvalid("ORIGINALITY_CORRELATION_LIMIT must be in (0, 1]")
	}

	c := config.Concordance
	if c.Threshold <= 0 {
		return errors.ConfigInvalid("CONCORDANCE_THRESHOLD must be positive")
	}
	if c.Clusters < 1 || c.BatchSize < 1 || c.MaxIter < 1 {
		return errors.ConfigInvalid("CLUSTER_COUNT, CLUSTER_BATCH_SIZE and CLUSTER_MAX_ITER must be at least 1")
	}

	if config.Consistency.EraCount < 1 {
		return errors.ConfigInvalid("CONSISTENCY_ERA_COUNT must be at least 1")
	}
	if config.Cache.Submissions < 1 || config.Cache.Datasets < 1 || config.Cache.Clusters < 1 {
		return errors.ConfigInvalid("cache sizes must be at least 1")
	}
	return nil
}

// Helper functions for environment variable parsing
func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getEnvFloatOrDefault(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if floatValue, err := strconv.ParseFloat(value, 64); err == nil {
			return floatValue
		}
	}
	return defaultValue
}

func getEnvBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}

func getEnvDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getEnvListOrDefault(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	var out []string
	for _, part := range strings.Split(value, ",") {
		out = append(out, strings.TrimSpace(part))
	}
	return out
}
