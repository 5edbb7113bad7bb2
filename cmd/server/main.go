// Command server is the matching engine process: it wires config,
// logging, the WAL, the per-symbol engine, recovery, the broadcast
// pipeline and its sinks, and the HTTP/WebSocket listeners, then blocks
// until SIGINT/SIGTERM.
//
// Grounded on the teacher's cmd/server/main.go wiring order (WAL open →
// replay → service construction → background jobs → listen), adapted
// from its single gRPC listener to spec.md §6's two-port HTTP/WS
// contract and generalized replay/broadcast wiring.
package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/ngoyal88/matching-engine/internal/broadcast"
	"github.com/ngoyal88/matching-engine/internal/config"
	"github.com/ngoyal88/matching-engine/internal/domain"
	"github.com/ngoyal88/matching-engine/internal/engine"
	"github.com/ngoyal88/matching-engine/internal/httpapi"
	"github.com/ngoyal88/matching-engine/internal/kafkasink"
	"github.com/ngoyal88/matching-engine/internal/logging"
	"github.com/ngoyal88/matching-engine/internal/snapshot"
	"github.com/ngoyal88/matching-engine/internal/tradering"
	"github.com/ngoyal88/matching-engine/internal/wal"
	"github.com/ngoyal88/matching-engine/internal/wshub"
)

func main() {
	httpPort := positionalArg(1, "8080")
	wsPort := positionalArg(2, "9002")

	logger, err := logging.New()
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg := config.Load("")

	fees := domain.FeeSchedule{MakerBps: cfg.MakerFeeBps, TakerBps: cfg.TakerFeeBps}
	walPath := filepath.Join(cfg.DataDir, "wal.jsonl")

	log, err := wal.Open(wal.Config{
		Path:          walPath,
		QueueDepth:    cfg.WALQueueDepth,
		FlushInterval: cfg.WALFlushInterval,
		Logger:        logger,
	})
	if err != nil {
		logger.Fatal("failed to open wal", zap.Error(err))
	}

	hub := wshub.New(logger)
	sinks := []broadcast.ObserverSink{hub}

	var kSink *kafkasink.Sink
	if cfg.KafkaEnabled {
		kSink, err = kafkasink.Open(kafkasink.Config{
			OutboxDir: cfg.KafkaOutboxDir,
			Brokers:   cfg.KafkaBrokers,
			Topic:     cfg.KafkaTopic,
			Logger:    logger,
		})
		if err != nil {
			logger.Warn("kafka sink disabled: failed to start", zap.Error(err))
		} else {
			sinks = append(sinks, kSink)
		}
	}

	bq := broadcast.New(cfg.BroadcastWorkers, logger, sinks...)
	trades := tradering.NewRegistry(cfg.TradeRingSize)

	eng := engine.New(log, bq, fees, trades, logger)

	snapStore, err := snapshot.OpenStore(cfg.SnapshotDir, logger)
	if err != nil {
		logger.Warn("snapshot store disabled", zap.Error(err))
		snapStore = nil
	}

	if err := eng.Recover(walPath, snapStore); err != nil {
		logger.Error("wal replay failed, refusing to start", zap.Error(err))
		os.Exit(1)
	}

	var snapshotter *snapshot.Snapshotter
	if snapStore != nil {
		snapshotter = snapshot.NewSnapshotter(snapStore, eng, cfg.SnapshotInterval, logger)
		snapshotter.Start()
	}

	api := httpapi.New(eng, hub, logger)

	httpSrv := &http.Server{Addr: ":" + httpPort, Handler: api.Handler()}
	wsMux := http.NewServeMux()
	wsMux.HandleFunc("/ws", hub.ServeHTTP)
	wsSrv := &http.Server{Addr: ":" + wsPort, Handler: wsMux}

	go func() {
		logger.Info("http listening", zap.String("port", httpPort))
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server failed", zap.Error(err))
		}
	}()
	go func() {
		logger.Info("websocket listening", zap.String("port", wsPort))
		if err := wsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("websocket server failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = httpSrv.Shutdown(ctx)
	_ = wsSrv.Shutdown(ctx)

	if snapshotter != nil {
		snapshotter.Stop()
	}
	bq.Stop()
	if kSink != nil {
		_ = kSink.Close()
	}
	if snapStore != nil {
		_ = snapStore.Close()
	}
	log.Stop()

	os.Exit(0)
}

func positionalArg(i int, def string) string {
	if i < len(os.Args) {
		if _, err := strconv.Atoi(os.Args[i]); err == nil {
			return os.Args[i]
		}
	}
	return def
}
