package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Common contains Elasticsearch parameters shared by every service.
type Common struct {
	ElasticsearchAddr  string
	ElasticsearchIndex string
}

// Inference configures artifact loading and article extraction.
type Inference struct {
	ManifestPath     string
	ExpectedFeatures int
	MinWords         int
	ExtractTimeout   time.Duration
	ExtractMaxBytes  int64
	UserAgent        string
	RespectRobots    bool
}

// API describes HTTP-layer configuration. An empty ElasticsearchAddr disables verdict search.
type API struct {
	Common
	Inference
	BindAddr         string
	PredictTimeout   time.Duration
	ArtifactRetryMax time.Duration
	DefaultPage      int
	MaxPage          int
}

// Worker holds configuration for the Kafka -> classifier -> Elasticsearch worker.
type Worker struct {
	Common
	Inference
	KafkaBrokers   []string
	KafkaTopic     string
	KafkaConsumer  string
	DedupeCapacity int
	DedupeTTL      time.Duration
	BatchSize      int
	PredictTimeout time.Duration
}

// Retention configures the cleanup job.
type Retention struct {
	Common
	Schedule  string
	MaxAge    time.Duration
	BatchSize int
}

// LoadAPI builds an API config from environment variables.
func LoadAPI() (*API, error) {
	inf, err := loadInference()
	if err != nil {
		return nil, err
	}
	c := &API{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", ""),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "verdicts"),
		},
		Inference:        *inf,
		BindAddr:         getEnv("API_BIND_ADDR", "0.0.0.0:8080"),
		PredictTimeout:   getDuration("API_PREDICT_TIMEOUT", "20s"),
		ArtifactRetryMax: getDuration("API_ARTIFACT_RETRY_MAX", "30s"),
		DefaultPage:      getInt("API_PAGE_SIZE", 20),
		MaxPage:          getInt("API_MAX_PAGE_SIZE", 100),
	}

	if c.PredictTimeout <= c.ExtractTimeout {
		return nil, fmt.Errorf("API_PREDICT_TIMEOUT must exceed EXTRACT_TIMEOUT")
	}
	if c.ArtifactRetryMax <= 0 {
		return nil, fmt.Errorf("API_ARTIFACT_RETRY_MAX must be positive")
	}
	if c.DefaultPage <= 0 {
		return nil, fmt.Errorf("API_PAGE_SIZE must be positive")
	}
	if c.MaxPage <= 0 {
		return nil, fmt.Errorf("API_MAX_PAGE_SIZE must be positive")
	}
	if c.DefaultPage > c.MaxPage {
		return nil, fmt.Errorf("API_PAGE_SIZE cannot exceed API_MAX_PAGE_SIZE")
	}

	return c, nil
}

// LoadWorker builds a Worker config from environment variables.
func LoadWorker() (*Worker, error) {
	inf, err := loadInference()
	if err != nil {
		return nil, err
	}
	c := &Worker{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "verdicts"),
		},
		Inference:      *inf,
		KafkaBrokers:   splitAndTrim(getEnv("KAFKA_BROKERS", "kafka:9092")),
		KafkaTopic:     getEnv("KAFKA_TOPIC", "news_articles"),
		KafkaConsumer:  getEnv("KAFKA_CONSUMER_GROUP", "credibility-worker"),
		DedupeCapacity: getInt("WORKER_DEDUPE_CAPACITY", 20000),
		DedupeTTL:      getDuration("WORKER_DEDUPE_TTL", "24h"),
		BatchSize:      getInt("WORKER_BATCH_SIZE", 10),
		PredictTimeout: getDuration("WORKER_PREDICT_TIMEOUT", "30s"),
	}

	if len(c.KafkaBrokers) == 0 {
		return nil, fmt.Errorf("KAFKA_BROKERS must contain at least one broker")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("WORKER_BATCH_SIZE must be positive")
	}
	if c.DedupeCapacity <= 0 {
		return nil, fmt.Errorf("WORKER_DEDUPE_CAPACITY must be positive")
	}
	if c.PredictTimeout <= 0 {
		return nil, fmt.Errorf("WORKER_PREDICT_TIMEOUT must be positive")
	}

	return c, nil
}

// LoadRetention builds a Retention config from environment variables.
func LoadRetention() (*Retention, error) {
	c := &Retention{
		Common: Common{
			ElasticsearchAddr:  getEnv("ELASTICSEARCH_ADDR", "http://elasticsearch:9200"),
			ElasticsearchIndex: getEnv("ELASTICSEARCH_INDEX", "verdicts"),
		},
		Schedule:  getEnv("RETENTION_SCHEDULE", "@every 24h"),
		MaxAge:    getDuration("RETENTION_MAX_AGE", "720h"),
		BatchSize: getInt("RETENTION_BATCH_SIZE", 500),
	}

	if _, err := cron.ParseStandard(c.Schedule); err != nil {
		return nil, fmt.Errorf("RETENTION_SCHEDULE is not a valid cron spec: %w", err)
	}
	if c.MaxAge <= 0 {
		return nil, fmt.Errorf("RETENTION_MAX_AGE must be positive")
	}
	if c.BatchSize <= 0 {
		return nil, fmt.Errorf("RETENTION_BATCH_SIZE must be positive")
	}

	return c, nil
}

func loadInference() (*Inference, error) {
	c := &Inference{
		ManifestPath:     getEnv("ARTIFACT_MANIFEST", "artifacts/manifest.yaml"),
		ExpectedFeatures: getInt("ARTIFACT_FEATURES", 10000),
		MinWords:         getInt("PIPELINE_MIN_WORDS", 10),
		ExtractTimeout:   getDuration("EXTRACT_TIMEOUT", "10s"),
		ExtractMaxBytes:  int64(getInt("EXTRACT_MAX_BYTES", 5<<20)),
		UserAgent:        getEnv("EXTRACT_USER_AGENT", "Mozilla/5.0 (Windows NT 10.0; Win64; x64)"),
		RespectRobots:    getBool("EXTRACT_RESPECT_ROBOTS", false),
	}

	if c.ExpectedFeatures < 0 {
		return nil, fmt.Errorf("ARTIFACT_FEATURES cannot be negative")
	}
	if c.MinWords <= 0 {
		return nil, fmt.Errorf("PIPELINE_MIN_WORDS must be positive")
	}
	if c.ExtractTimeout <= 0 {
		return nil, fmt.Errorf("EXTRACT_TIMEOUT must be positive")
	}
	if c.ExtractMaxBytes <= 0 {
		return nil, fmt.Errorf("EXTRACT_MAX_BYTES must be positive")
	}

	return c, nil
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return fallback
}

func getInt(key string, fallback int) int {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getBool(key string, fallback bool) bool {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		if parsed, err := strconv.ParseBool(v); err == nil {
			return parsed
		}
	}
	return fallback
}

func getDuration(key, fallback string) time.Duration {
	d, err := time.ParseDuration(getEnv(key, fallback))
	if err != nil {
		fd, ferr := time.ParseDuration(fallback)
		if ferr != nil {
			panic(fmt.Sprintf("invalid fallback duration %q: %v", fallback, ferr))
		}
		return fd
	}
	return d
}

func splitAndTrim(raw string) []string {
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
