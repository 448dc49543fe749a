package main

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/shimamura/chattransport/internal/metrics"
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
					"recv", snap.Recv,
					"sent", snap.Sent,
					"handshake_failed", snap.HandshakeFailed,
					"malformed", snap.Malformed,
					"recv_queue_drops", snap.RecvQueueDrops,
					"send_queue_drops", snap.SendQueueDrops,
					"active_clients", snap.ActiveClients,
					"errors", snap.Errors,
				)
			case <-ctx.Done():
				return
			}
		}
	}()
}
