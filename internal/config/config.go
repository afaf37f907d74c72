package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds all application configuration
type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Kafka    KafkaConfig
	Redis    RedisConfig
	Review   ReviewConfig
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Port string
	Host string
}

// DatabaseConfig holds PostgreSQL configuration
type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

// KafkaConfig holds Kafka/Redpanda configuration
type KafkaConfig struct {
	Brokers         []string
	DetectionsTopic string
	ActivityTopic   string
	ConsumerGroup   string
}

// RedisConfig holds Redis configuration
type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

// ReviewConfig holds review/feed behavior settings
type ReviewConfig struct {
	MaxThreadDepth   int
	PageSize         int
	FeedCacheTTL     time.Duration
	MutationTimeout  time.Duration
	PresenceInterval time.Duration
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Server: ServerConfig{
			Port: getEnv("SERVER_PORT", "8082"),
			Host: getEnv("SERVER_HOST", "0.0.0.0"),
		},
		Database: DatabaseConfig{
			Host:     getEnv("DB_HOST", "postgres"),
			Port:     getEnv("DB_PORT", "5432"),
			User:     getEnv("DB_USER", "trader"),
			Password: getEnv("DB_PASSWORD", "trader5"),
			DBName:   getEnv("DB_NAME", "trading_platform"),
			SSLMode:  getEnv("DB_SSLMODE", "disable"),
		},
		Kafka: KafkaConfig{
			Brokers:         parseBrokers(getEnv("KAFKA_BROKERS", "localhost:19092")),
			DetectionsTopic: getEnv("KAFKA_DETECTIONS_TOPIC", "patterns.detections"),
			ActivityTopic:   getEnv("KAFKA_ACTIVITY_TOPIC", "review.activity"),
			ConsumerGroup:   getEnv("KAFKA_CONSUMER_GROUP", "pattern-review-service"),
		},
		Redis: RedisConfig{
			Host:     getEnv("REDIS_HOST", "localhost"),
			Port:     getEnv("REDIS_PORT", "6379"),
			Password: getEnv("REDIS_PASSWORD", ""),
			DB:       0,
		},
		Review: ReviewConfig{
			MaxThreadDepth:   getEnvInt("REVIEW_MAX_THREAD_DEPTH", 5),
			PageSize:         getEnvInt("REVIEW_PAGE_SIZE", 20),
			FeedCacheTTL:     getEnvDuration("REVIEW_FEED_CACHE_TTL", 5*time.Second),
			MutationTimeout:  getEnvDuration("REVIEW_MUTATION_TIMEOUT", 5*time.Second),
			PresenceInterval: getEnvDuration("REVIEW_PRESENCE_INTERVAL", 50*time.Millisecond),
		},
	}
}

// ConnectionString returns the PostgreSQL connection string
func (d *DatabaseConfig) ConnectionString() string {
	return "postgres://" + d.User + ":" + d.Password + "@" + d.Host + ":" + d.Port + "/" + d.DBName + "?sslmode=" + d.SSLMode
}

// Address returns the Redis address in host:port format
func (r *RedisConfig) Address() string {
	return r.Host + ":" + r.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

// parseBrokers splits a comma-separated broker list
func parseBrokers(brokers string) []string {
	parts := strings.Split(brokers, ",")
	result := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			result = append(result, trimmed)
		}
	}
	return result
}
