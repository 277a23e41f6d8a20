package config

import (
	"strings"
	"time"

	"github.com/jqb69/darkseek/pkg/config"
)

// Config holds everything the service binary wires together.
type Config struct {
	Port        string
	RedisURL    string
	DatabaseURL string

	KafkaBrokers []string
	KafkaGroupID string

	MaxResults     int
	MaxTurns       int
	MaxInputLength int

	CacheTTL   time.Duration
	RateWindow time.Duration
}

// Load reads service configuration from the environment. Kafka is
// optional; with no brokers configured the broker transport stays off.
func Load() Config {
	return Config{
		Port:        config.GetEnv("PORT", "8000"),
		RedisURL:    config.GetEnv("REDIS_URL", "redis://localhost:6379/0"),
		DatabaseURL: config.GetEnv("DATABASE_URL", ""),

		KafkaBrokers: splitBrokers(config.GetEnv("KAFKA_BROKERS", "")),
		KafkaGroupID: config.GetEnv("KAFKA_GROUP_ID", "darkseek"),

		MaxResults:     config.GetEnvInt("MAX_QUERY", 7),
		MaxTurns:       config.GetEnvInt("MAX_CHATS", 12),
		MaxInputLength: config.GetEnvInt("MAX_INPUT_LENGTH", 1000),

		CacheTTL:   config.GetEnvDuration("CACHE_TTL", time.Hour),
		RateWindow: config.GetEnvDuration("CHAT_WINDOW", time.Hour),
	}
}

func splitBrokers(raw string) []string {
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	brokers := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			brokers = append(brokers, trimmed)
		}
	}
	return brokers
}
