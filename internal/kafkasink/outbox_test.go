package kafkasink

import "testing"

func TestEncodeDecodeRecordRoundTrip(t *testing.T) {
	rec := outboxRecord{
		State:       stateSent,
		Retries:     3,
		LastAttempt: 1_700_000_000,
		Kind:        't',
		Payload:     []byte(`{"symbol":"BTC-USDT"}`),
	}
	decoded, err := decodeRecord(encodeRecord(rec))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.State != rec.State || decoded.Retries != rec.Retries || decoded.LastAttempt != rec.LastAttempt || decoded.Kind != rec.Kind {
		t.Fatalf("expected round-tripped header fields, got %+v", decoded)
	}
	if string(decoded.Payload) != string(rec.Payload) {
		t.Fatalf("expected round-tripped payload, got %s", decoded.Payload)
	}
}

func TestDecodeRecordRejectsTruncatedInput(t *testing.T) {
	if _, err := decodeRecord([]byte{1, 2, 3}); err == nil {
		t.Fatalf("expected error decoding truncated record")
	}
}

func TestKeyForRoundTripsThroughParseKey(t *testing.T) {
	key := keyFor(42)
	id, err := parseKey(key)
	if err != nil {
		t.Fatalf("parseKey: %v", err)
	}
	if id != 42 {
		t.Fatalf("expected 42, got %d", id)
	}
}

func TestKeyForPreservesLexicographicOrder(t *testing.T) {
	a := string(keyFor(5))
	b := string(keyFor(10))
	if !(a < b) {
		t.Fatalf("expected zero-padded keys to sort numerically: %q should be < %q", a, b)
	}
}
