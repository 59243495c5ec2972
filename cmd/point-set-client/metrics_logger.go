package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/FenQiDian/point-set-client/internal/metrics"
)

func startMetricsLogger(ctx context.Context, interval time.Duration, l *slog.Logger, wg *sync.WaitGroup) {
	if interval <= 0 {
		return
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		t := time.NewTicker(interval)
		defer t.Stop()
		for {
			select {
			case <-t.C:
				snap := metrics.Snap()
				l.Info("metrics_snapshot",
					"hash_tx", snap.HashTx,
					"command_tx", snap.CommandTx,
					"command_rx", snap.CommandRx,
					"control_rx", snap.ControlRx,
					"chan_dropped", snap.ChanDropped,
					"errors", snap.Errors,
					"malformed", snap.Malformed,
					"remote_convs", snap.RemoteConvs,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
