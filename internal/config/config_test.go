package config

import "testing"

func TestDefaultProducesSaneBaseline(t *testing.T) {
	cfg := Default()
	if cfg.DataDir == "" {
		t.Fatalf("expected non-empty data dir")
	}
	if cfg.MakerFeeBps >= cfg.TakerFeeBps {
		t.Fatalf("expected maker fee below taker fee, got maker=%d taker=%d", cfg.MakerFeeBps, cfg.TakerFeeBps)
	}
	if cfg.KafkaEnabled {
		t.Fatalf("expected kafka disabled by default")
	}
}

func TestLoadAppliesEnvOverrides(t *testing.T) {
	t.Setenv("MAKER_FEE_BPS", "5")
	t.Setenv("TAKER_FEE_BPS", "15")
	t.Setenv("KAFKA_ENABLED", "true")
	t.Setenv("KAFKA_BROKERS", "broker1:9092,broker2:9092")
	t.Setenv("TRADE_RING_SIZE", "42")

	cfg := Load("/nonexistent/path/to/.env")

	if cfg.MakerFeeBps != 5 || cfg.TakerFeeBps != 15 {
		t.Fatalf("expected fee overrides applied, got maker=%d taker=%d", cfg.MakerFeeBps, cfg.TakerFeeBps)
	}
	if !cfg.KafkaEnabled {
		t.Fatalf("expected kafka enabled override applied")
	}
	if len(cfg.KafkaBrokers) != 2 || cfg.KafkaBrokers[0] != "broker1:9092" || cfg.KafkaBrokers[1] != "broker2:9092" {
		t.Fatalf("expected two brokers parsed, got %v", cfg.KafkaBrokers)
	}
	if cfg.TradeRingSize != 42 {
		t.Fatalf("expected trade ring size override, got %d", cfg.TradeRingSize)
	}
}

func TestSplitCSVIgnoresEmptySegments(t *testing.T) {
	got := splitCSV("a,,b,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("expected [a b], got %v", got)
	}
}
