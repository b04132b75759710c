package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Port        string
	DatabaseURL string
	RedisURL    string

	KafkaBrokers []string
	KafkaTopic   string

	DefaultAvgMinutes  int
	EstimateWindowDays int
	EstimateMaxSamples int
	EstimateMinSamples int
	EstimateCacheTTL   time.Duration

	ReconcileInterval time.Duration
	OutboxInterval    time.Duration
	OutboxBatchSize   int

	RateLimitPerMinute       int
	RateLimitBurst           int
	TenantRateLimitPerMinute int
	TenantRateLimitBurst     int
}

func Load() Config {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}

	return Config{
		Port:        port,
		DatabaseURL: os.Getenv("DB_DSN"),
		RedisURL:    os.Getenv("REDIS_URL"),

		KafkaBrokers: readList("KAFKA_BROKERS"),
		KafkaTopic:   readString("KAFKA_TOPIC", "barberq.queue-events"),

		DefaultAvgMinutes:  readInt("DEFAULT_AVG_MINUTES", 30),
		EstimateWindowDays: readInt("ESTIMATE_WINDOW_DAYS", 14),
		EstimateMaxSamples: readInt("ESTIMATE_MAX_SAMPLES", 50),
		EstimateMinSamples: readInt("ESTIMATE_MIN_SAMPLES", 3),
		EstimateCacheTTL:   readDurationSeconds("ESTIMATE_CACHE_TTL_SECONDS", 30),

		ReconcileInterval: readDurationSeconds("RECONCILE_INTERVAL_SECONDS", 60),
		OutboxInterval:    readDurationSeconds("OUTBOX_INTERVAL_SECONDS", 1),
		OutboxBatchSize:   readInt("OUTBOX_BATCH_SIZE", 50),

		RateLimitPerMinute:       readInt("RATE_LIMIT_PER_MIN", 120),
		RateLimitBurst:           readInt("RATE_LIMIT_BURST", 30),
		TenantRateLimitPerMinute: readInt("TENANT_RATE_LIMIT_PER_MIN", 600),
		TenantRateLimitBurst:     readInt("TENANT_RATE_LIMIT_BURST", 120),
	}
}

func readString(key, fallback string) string {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	return raw
}

func readList(key string) []string {
	raw := os.Getenv(key)
	if raw == "" {
		return nil
	}
	var values []string
	for _, item := range strings.Split(raw, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			values = append(values, item)
		}
	}
	return values
}

func readDurationSeconds(key string, fallback int) time.Duration {
	value := readInt(key, fallback)
	if value <= 0 {
		return 0
	}
	return time.Duration(value) * time.Second
}

func readInt(key string, fallback int) int {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return value
}
