// Command chatserver is a reference binary wiring internal/chatserver into
// a runnable multi-client relay: every frame a client sends is broadcast
// to every client on the roster, the sender included. Application-level protocol structs (LOGIN,
// CHAT, ...) are deliberately not modeled here; that belongs to a real
// application built on top of this package.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/shimamura/chattransport/internal/chatserver"
	"github.com/shimamura/chattransport/internal/metrics"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("chatserver %s (commit %s, built %s)\n", version, commit, date)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel, cfg.logFile)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	var wg sync.WaitGroup
	startMetricsLogger(ctx, cfg.logMetricsEvery, l, &wg)

	var srv *chatserver.Server
	relay := func(clientID uint64, target string, body []byte) {
		l.Debug("frame_received", "client_id", clientID, "target", target, "len", len(body))
		srv.Broadcast(target, body)
	}
	srv = chatserver.New(
		chatserver.WithListenAddr(cfg.listenAddr),
		chatserver.WithLogger(l),
		chatserver.WithWorkerCount(cfg.workerCount),
		chatserver.WithRecvQueueCap(cfg.recvQueueCap),
		chatserver.WithSendQueueCap(cfg.sendQueueCap),
		chatserver.WithMaxFrameSize(cfg.maxFrameSize),
		chatserver.WithMaxClients(cfg.maxClients),
		chatserver.WithHandshakeTimeout(cfg.handshakeTO),
		chatserver.WithReadDeadline(cfg.clientReadTO),
		chatserver.WithStrategy(cfg.strategyCode()),
		chatserver.WithOnMessage(func(clientID uint64, target string, body []byte) { relay(clientID, target, body) }),
	)

	go func() {
		if err := srv.Run(ctx); err != nil {
			l.Error("tcp_server_error", "error", err)
			cancel()
		}
	}()

	go func() {
		if !cfg.mdnsEnable {
			return
		}
		select {
		case <-srv.Ready():
		case <-ctx.Done():
			return
		}
		addr := srv.Addr()
		var portNum int
		if _, p, err := net.SplitHostPort(addr); err == nil {
			if pn, perr := strconv.Atoi(p); perr == nil {
				portNum = pn
			}
		}
		if portNum == 0 {
			if idx := strings.LastIndex(addr, ":"); idx >= 0 {
				if pn, perr := strconv.Atoi(addr[idx+1:]); perr == nil {
					portNum = pn
				}
			}
		}
		cleanupMDNS, err := startMDNS(ctx, cfg, portNum)
		if err != nil {
			l.Warn("mdns_start_failed", "error", err)
			return
		}
		l.Info("mdns_started", "service", mdnsServiceType, "name", cfg.mdnsName, "port", portNum)
		go func() { <-ctx.Done(); cleanupMDNS() }()
	}()

	metrics.SetReadinessFunc(func() bool {
		select {
		case <-srv.Ready():
		default:
			return false
		}
		return ctx.Err() == nil
	})
	if cfg.metricsAddr != "" {
		metrics.InitBuildInfo(version, commit, date)
		srvHTTP := metrics.StartHTTP(cfg.metricsAddr)
		defer func() { _ = srvHTTP.Shutdown(context.Background()) }()
	}

	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	s := <-sigCh
	l.Info("shutdown_signal", "signal", s.String())
	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shCancel()
	_ = srv.Shutdown(shCtx)
	wg.Wait()
}
