// Package config loads engine configuration from an optional .env file
// and environment variables (SPEC_FULL.md §7 "Configuration"). Priority:
// explicit env var > .env file > default.
//
// Grounded on uhyunpark-hyperlicked/params/config.go's Default()+LoadFromEnv
// pattern, adapted from consensus timing knobs to matching-engine knobs.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every tunable the engine needs at startup.
type Config struct {
	DataDir string

	WALFlushInterval time.Duration
	WALQueueDepth    int

	MakerFeeBps int64
	TakerFeeBps int64

	BroadcastWorkers int
	TradeRingSize    int

	SnapshotInterval time.Duration
	SnapshotDir      string

	KafkaEnabled bool
	KafkaBrokers []string
	KafkaTopic   string
	KafkaOutboxDir string
}

// Default returns the configuration used when no env vars or .env file
// override it.
func Default() Config {
	return Config{
		DataDir:          "./data",
		WALFlushInterval: 250 * time.Millisecond,
		WALQueueDepth:    4096,
		MakerFeeBps:      10,
		TakerFeeBps:      20,
		BroadcastWorkers: 0, // 0 -> runtime.NumCPU, per spec.md §4.4
		TradeRingSize:    1000,
		SnapshotInterval: 30 * time.Second,
		SnapshotDir:      "./data/snapshot",
		KafkaEnabled:     false,
		KafkaTopic:       "matching-engine.market-data",
		KafkaOutboxDir:   "./data/kafka-outbox",
	}
}

// Load applies .env (if present) then environment variable overrides on
// top of Default().
func Load(envPath string) Config {
	cfg := Default()

	if envPath != "" {
		_ = godotenv.Load(envPath)
	} else {
		_ = godotenv.Load()
	}

	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.DataDir = v
	}
	if v := os.Getenv("WAL_FLUSH_INTERVAL_MS"); v != "" {
		if ms, err := strconv.Atoi(v); err == nil {
			cfg.WALFlushInterval = time.Duration(ms) * time.Millisecond
		}
	}
	if v := os.Getenv("WAL_QUEUE_DEPTH"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.WALQueueDepth = n
		}
	}
	if v := os.Getenv("MAKER_FEE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.MakerFeeBps = n
		}
	}
	if v := os.Getenv("TAKER_FEE_BPS"); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			cfg.TakerFeeBps = n
		}
	}
	if v := os.Getenv("BROADCAST_WORKERS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.BroadcastWorkers = n
		}
	}
	if v := os.Getenv("TRADE_RING_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.TradeRingSize = n
		}
	}
	if v := os.Getenv("SNAPSHOT_INTERVAL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.SnapshotInterval = time.Duration(n) * time.Second
		}
	}
	if v := os.Getenv("SNAPSHOT_DIR"); v != "" {
		cfg.SnapshotDir = v
	}
	if v := os.Getenv("KAFKA_ENABLED"); v != "" {
		cfg.KafkaEnabled = v == "true"
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.KafkaBrokers = splitCSV(v)
	}
	if v := os.Getenv("KAFKA_TOPIC"); v != "" {
		cfg.KafkaTopic = v
	}
	if v := os.Getenv("KAFKA_OUTBOX_DIR"); v != "" {
		cfg.KafkaOutboxDir = v
	}

	return cfg
}

func splitCSV(s string) []string {
	var out []string
	start := 0
	for i := 0; i <= len(s); i++ {
		if i == len(s) || s[i] == ',' {
			if i > start {
				out = append(out, s[start:i])
			}
			start = i + 1
		}
	}
	return out
}
