package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/FenQiDian/point-set-client/internal/discovery"
	"github.com/FenQiDian/point-set-client/internal/metrics"
	"github.com/FenQiDian/point-set-client/internal/netchan"
	"github.com/FenQiDian/point-set-client/internal/transport"
	"github.com/FenQiDian/point-set-client/internal/worker"
)

// Helper implementations moved to dedicated files: version.go, config.go, logger.go, metrics_logger.go, simulate.go.

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("point-set-client %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	addr, room := cfg.addr, cfg.room
	if cfg.discover {
		rooms, err := discovery.Browse(ctx, 3*time.Second)
		if err != nil || len(rooms) == 0 {
			l.Error("discovery_failed", "error", err, "found", len(rooms))
			return
		}
		addr, room = rooms[0].Addr, rooms[0].RoomID
		l.Info("discovery_selected", "addr", addr, "room", room)
	}

	tr, err := transport.Dial(addr, uint32(cfg.conv))
	if err != nil {
		l.Error("transport_dial_error", "error", err)
		return
	}
	defer tr.Close()

	ch := netchan.New()
	w := worker.New(tr, uint32(cfg.conv), room, cfg.player, cfg.password, ch,
		worker.WithLogger(l),
		worker.WithConnectTimeout(cfg.connectTimeout),
		worker.WithStartTimeout(cfg.startTimeout),
		worker.WithUpdateTimeout(cfg.updateTimeout),
		worker.WithFinishTimeout(cfg.finishTimeout),
		worker.WithRunningLivenessCheck(cfg.runningLiveness),
	)

	wg.Add(1)
	go func() {
		defer wg.Done()
		defer cancel()
		w.Run()
	}()

	runSimulation(ctx, ch, uint32(cfg.conv), l, &wg)

	metrics.SetReadinessFunc(func() bool { return ctx.Err() == nil })
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	select {
	case s := <-sigCh:
		l.Info("shutdown_signal", "signal", s.String())
		cancel()
	case <-ctx.Done():
		l.Info("session_ended")
	}
	wg.Wait()
}
