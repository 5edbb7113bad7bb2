// Package kafkasink is the at-least-once Kafka ObserverSink. Every
// broadcast message is durably staged in a pebble-backed outbox before
// being handed to the Kafka producer, so a crash between "produced" and
// "acked" never silently drops a market-data event — on restart the
// outbox is rescanned and anything not yet ACKED is retried.
//
// Grounded on the teacher's infra/wal/exit/wal.go (pebble-backed
// NEW/SENT/ACKED state machine, binary key/value encoding, ScanByState)
// and jobs/broadcaster/broadcaster.go (ticker-driven replay loop against
// a sarama.SyncProducer). Adapted from a single order-outbox keyed by
// uint64 order id to a generic message outbox keyed by a monotonic
// sequence number, since this sink carries two message kinds (trade and
// orderbook-update), not one.
package kafkasink

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/IBM/sarama"
	"github.com/cockroachdb/pebble"
	"go.uber.org/zap"

	"github.com/ngoyal88/matching-engine/internal/broadcast"
)

type outboxState uint8

const (
	stateNew outboxState = iota
	stateSent
	stateAcked
)

type outboxRecord struct {
	State       outboxState
	Retries     uint32
	LastAttempt int64
	Kind        byte // 't' trade, 'b' book
	Payload     []byte
}

func encodeRecord(r outboxRecord) []byte {
	buf := make([]byte, 1+4+8+1+len(r.Payload))
	buf[0] = byte(r.State)
	binary.BigEndian.PutUint32(buf[1:5], r.Retries)
	binary.BigEndian.PutUint64(buf[5:13], uint64(r.LastAttempt))
	buf[13] = r.Kind
	copy(buf[14:], r.Payload)
	return buf
}

func decodeRecord(b []byte) (outboxRecord, error) {
	if len(b) < 14 {
		return outboxRecord{}, errors.New("kafkasink: truncated outbox record")
	}
	return outboxRecord{
		State:       outboxState(b[0]),
		Retries:     binary.BigEndian.Uint32(b[1:5]),
		LastAttempt: int64(binary.BigEndian.Uint64(b[5:13])),
		Kind:        b[13],
		Payload:     append([]byte(nil), b[14:]...),
	}, nil
}

func keyFor(seq uint64) []byte {
	return []byte(fmt.Sprintf("evt/%020d", seq))
}

func parseKey(b []byte) (uint64, error) {
	var id uint64
	_, err := fmt.Sscanf(string(bytes.TrimPrefix(b, []byte("evt/"))), "%d", &id)
	return id, err
}

// Sink implements broadcast.ObserverSink by staging every message in a
// durable outbox and shipping it to Kafka on a background replay loop.
type Sink struct {
	db       *pebble.DB
	producer sarama.SyncProducer
	topic    string
	logger   *zap.Logger
	seq      atomic.Uint64
	stop     chan struct{}
	done     chan struct{}
}

// Config configures the outbox directory, Kafka brokers/topic, and replay
// cadence.
type Config struct {
	OutboxDir     string
	Brokers       []string
	Topic         string
	ReplayEvery   time.Duration
	Logger        *zap.Logger
}

// Open opens (or creates) the outbox and connects a synchronous Kafka
// producer.
func Open(cfg Config) (*Sink, error) {
	if cfg.ReplayEvery <= 0 {
		cfg.ReplayEvery = 250 * time.Millisecond
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	db, err := pebble.Open(cfg.OutboxDir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("kafkasink: open outbox: %w", err)
	}

	pcfg := sarama.NewConfig()
	pcfg.Producer.Return.Successes = true
	pcfg.Producer.RequiredAcks = sarama.WaitForAll
	pcfg.Producer.Retry.Max = 5

	producer, err := sarama.NewSyncProducer(cfg.Brokers, pcfg)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("kafkasink: connect producer: %w", err)
	}

	s := &Sink{
		db:       db,
		producer: producer,
		topic:    cfg.Topic,
		logger:   cfg.Logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
	s.seq.Store(s.recoverHighWaterMark())
	go s.replayLoop(cfg.ReplayEvery)
	return s, nil
}

func (s *Sink) recoverHighWaterMark() uint64 {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: []byte("evt/~"),
	})
	if err != nil {
		return 0
	}
	defer iter.Close()
	var max uint64
	if iter.Last() && iter.Valid() {
		if id, err := parseKey(iter.Key()); err == nil {
			max = id
		}
	}
	return max
}

func (s *Sink) stage(kind byte, payload []byte) {
	seq := s.seq.Add(1)
	rec := outboxRecord{State: stateNew, Kind: kind, Payload: payload}
	if err := s.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync); err != nil {
		s.logger.Warn("kafkasink: failed to stage outbox record", zap.Error(err))
	}
}

// BroadcastTrade implements broadcast.ObserverSink.
func (s *Sink) BroadcastTrade(t broadcast.TradeEvent) {
	payload, err := json.Marshal(t)
	if err != nil {
		s.logger.Warn("kafkasink: marshal trade failed", zap.Error(err))
		return
	}
	s.stage('t', payload)
}

// BroadcastOrderbookUpdate implements broadcast.ObserverSink.
func (s *Sink) BroadcastOrderbookUpdate(b broadcast.OrderbookEvent) {
	payload, err := json.Marshal(b)
	if err != nil {
		s.logger.Warn("kafkasink: marshal orderbook update failed", zap.Error(err))
		return
	}
	s.stage('b', payload)
}

func (s *Sink) replayLoop(every time.Duration) {
	defer close(s.done)
	ticker := time.NewTicker(every)
	defer ticker.Stop()
	for {
		select {
		case <-s.stop:
			s.replayOnce()
			return
		case <-ticker.C:
			s.replayOnce()
		}
	}
}

func (s *Sink) replayOnce() {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte("evt/"),
		UpperBound: []byte("evt/~"),
	})
	if err != nil {
		s.logger.Warn("kafkasink: outbox scan failed", zap.Error(err))
		return
	}
	defer iter.Close()

	for iter.First(); iter.Valid(); iter.Next() {
		seq, err := parseKey(iter.Key())
		if err != nil {
			continue
		}
		rec, err := decodeRecord(iter.Value())
		if err != nil || rec.State == stateAcked {
			continue
		}

		msg := &sarama.ProducerMessage{Topic: s.topic, Value: sarama.ByteEncoder(rec.Payload)}
		if _, _, err := s.producer.SendMessage(msg); err != nil {
			rec.Retries++
			rec.LastAttempt = time.Now().UnixNano()
			_ = s.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
			continue // retry next tick
		}
		rec.State = stateAcked
		rec.LastAttempt = time.Now().UnixNano()
		_ = s.db.Set(keyFor(seq), encodeRecord(rec), pebble.Sync)
	}
}

// Close flushes a final replay pass and releases the producer and outbox.
func (s *Sink) Close() error {
	close(s.stop)
	<-s.done
	if err := s.producer.Close(); err != nil {
		s.db.Close()
		return err
	}
	return s.db.Close()
}
