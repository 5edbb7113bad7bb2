package snapshot

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/ngoyal88/matching-engine/internal/domain"
)

func TestSaveLoadRoundTrip(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snap"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	want := State{
		WALSeq:      7,
		CreatedUnix: 1234,
		Orders: map[string][]*domain.Order{
			"BTC-USDT": {{OrderID: "ORD-1", Symbol: "BTC-USDT", Quantity: 500000}},
		},
		StopOrders: map[string][]*domain.StopOrder{},
		OrderSeq:   1,
		TradeSeq:   0,
	}
	if err := store.Save(want); err != nil {
		t.Fatalf("save: %v", err)
	}

	got, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !ok {
		t.Fatalf("expected snapshot to be found")
	}
	if got.WALSeq != want.WALSeq || got.OrderSeq != want.OrderSeq {
		t.Fatalf("expected round-tripped seq fields, got %+v", got)
	}
	if len(got.Orders["BTC-USDT"]) != 1 || got.Orders["BTC-USDT"][0].OrderID != "ORD-1" {
		t.Fatalf("expected round-tripped resting order, got %+v", got.Orders)
	}
}

func TestLoadWithoutSaveReturnsNotOK(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snap"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	_, ok, err := store.Load()
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if ok {
		t.Fatalf("expected no snapshot present")
	}
}

type fixedSource struct{ state State }

func (f fixedSource) CaptureState() State { return f.state }

func TestSnapshotterPersistsOnTick(t *testing.T) {
	store, err := OpenStore(filepath.Join(t.TempDir(), "snap"), nil)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	defer store.Close()

	src := fixedSource{state: State{WALSeq: 3, OrderSeq: 1}}
	snapper := NewSnapshotter(store, src, 10*time.Millisecond, nil)
	snapper.Start()
	defer snapper.Stop()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok, _ := store.Load(); ok {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatalf("expected snapshotter to persist a state within deadline")
}
