package config

import (
	"testing"
	"time"
)

func TestLoadDefaults(t *testing.T) {
	cfg := Load()
	if cfg.Port != "8000" {
		t.Fatalf("port = %q", cfg.Port)
	}
	if cfg.MaxResults != 7 || cfg.MaxTurns != 12 || cfg.MaxInputLength != 1000 {
		t.Fatalf("unexpected limits %+v", cfg)
	}
	if cfg.CacheTTL != time.Hour || cfg.RateWindow != time.Hour {
		t.Fatalf("unexpected windows %+v", cfg)
	}
	if cfg.KafkaBrokers != nil {
		t.Fatalf("brokers should default to none, got %v", cfg.KafkaBrokers)
	}
}

func TestLoadKafkaBrokers(t *testing.T) {
	t.Setenv("KAFKA_BROKERS", "broker1:9092, broker2:9092,")
	cfg := Load()
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[1] != "broker2:9092" {
		t.Fatalf("brokers = %v", cfg.KafkaBrokers)
	}
}
