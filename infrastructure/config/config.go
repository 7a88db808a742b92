// Package config loads process configuration from environment variables,
// in the style of the teacher's infrastructure/config loader: one Load()
// entry point, explicit defaults, no remote config service.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds every tunable the core components read at startup.
type Config struct {
	// Identity / logging
	ServiceName string
	LogLevel    string
	LogFormat   string

	// Postgres
	DatabaseURL string

	// Redis (broker backbone)
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	// Broker tuning (spec.md §4.2, §6.1)
	BrokerExchange      string
	BrokerPrefetch      int
	BrokerMaxRedeliver  int
	BrokerMinBackoff    time.Duration
	BrokerMaxBackoff    time.Duration
	BrokerPublishTimeout time.Duration

	// Progress tracker (spec.md §4.4)
	CompletionThresholdPercentage int
	DefaultWatermarkTTL           time.Duration

	// Matcher engine (spec.md §4.6)
	RetrievalTopK     int
	SimDeepMin        float64
	InliersMin        float64
	MatchBestMin      float64
	MatchConsMin      int
	MatchAccept       float64
	WeightRGB         float64
	WeightGray        float64
	WeightDeep        float64
	WeightGeometric   float64
	GeometricTimeout  time.Duration
	VectorSearchTimeout time.Duration
	StorageTimeout      time.Duration
	KeypointBlobRoot    string

	// Watermark sweep (spec.md §4.4)
	WatermarkSweepInterval string

	// Ops surface
	HealthAddr string
}

// Load builds a Config from the environment, applying spec-mandated defaults.
func Load(serviceName string) *Config {
	return &Config{
		ServiceName: serviceName,
		LogLevel:    envOr("LOG_LEVEL", "info"),
		LogFormat:   envOr("LOG_FORMAT", "json"),

		DatabaseURL: envOr("DATABASE_URL", "postgres://localhost:5432/product_video_matching?sslmode=disable"),

		RedisAddr:     envOr("REDIS_ADDR", "localhost:6379"),
		RedisPassword: envOr("REDIS_PASSWORD", ""),
		RedisDB:       envInt("REDIS_DB", 0),

		BrokerExchange:       envOr("BROKER_EXCHANGE", "product_video_matching"),
		BrokerPrefetch:       envInt("BROKER_PREFETCH", 10),
		BrokerMaxRedeliver:   envInt("BROKER_MAX_REDELIVER", 5),
		BrokerMinBackoff:     envDuration("BROKER_MIN_BACKOFF", time.Second),
		BrokerMaxBackoff:     envDuration("BROKER_MAX_BACKOFF", 5*time.Minute),
		BrokerPublishTimeout: envDuration("BROKER_PUBLISH_TIMEOUT", 5*time.Second),

		CompletionThresholdPercentage: clampPercent(envInt("COMPLETION_THRESHOLD_PERCENTAGE", 90)),
		DefaultWatermarkTTL:           envDuration("DEFAULT_WATERMARK_TTL", 10*time.Minute),

		RetrievalTopK:       envInt("RETRIEVAL_TOPK", 20),
		SimDeepMin:          envFloat("SIM_DEEP_MIN", 0.82),
		InliersMin:          envFloat("INLIERS_MIN", 0.35),
		MatchBestMin:        envFloat("MATCH_BEST_MIN", 0.88),
		MatchConsMin:        envInt("MATCH_CONS_MIN", 2),
		MatchAccept:         envFloat("MATCH_ACCEPT", 0.80),
		WeightRGB:           envFloat("WEIGHT_RGB", 0.7),
		WeightGray:          envFloat("WEIGHT_GRAY", 0.3),
		WeightDeep:          envFloat("WEIGHT_DEEP", 0.6),
		WeightGeometric:     envFloat("WEIGHT_GEOMETRIC", 0.4),
		GeometricTimeout:    envDuration("GEOMETRIC_TIMEOUT", 2*time.Second),
		VectorSearchTimeout: envDuration("VECTOR_SEARCH_TIMEOUT", 5*time.Second),
		StorageTimeout:      envDuration("STORAGE_TIMEOUT", 10*time.Second),
		KeypointBlobRoot:    envOr("KEYPOINT_BLOB_ROOT", "/var/lib/product-video-matching/keypoints"),

		WatermarkSweepInterval: envOr("WATERMARK_SWEEP_INTERVAL", "30s"),

		HealthAddr: envOr("HEALTH_ADDR", ":8080"),
	}
}

// ClampPercentage clamps pct into [0,100], per spec.md §4.4.
func ClampPercentage(pct int) int { return clampPercent(pct) }

func clampPercent(pct int) int {
	if pct < 0 {
		return 0
	}
	if pct > 100 {
		return 100
	}
	return pct
}

func envOr(key, def string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return def
}

func envInt(key string, def int) int {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func envFloat(key string, def float64) float64 {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil {
			return f
		}
	}
	return def
}

func envDuration(key string, def time.Duration) time.Duration {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
