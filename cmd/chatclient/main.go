// Command chatclient is a reference binary wiring internal/chatclient into
// a minimal line-oriented chat session: stdin lines are sent as CHAT
// frames, and received frames are printed to stdout.
package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/shimamura/chattransport/internal/chatclient"
)

func main() {
	cfg, showVersion := parseFlags()
	if showVersion {
		fmt.Printf("chatclient %s (commit %s)\n", version, commit)
		return
	}
	if cfg == nil {
		os.Exit(1)
	}
	l := setupLogger(cfg.logFormat, cfg.logLevel)

	addr := cfg.serverAddr
	if cfg.discover {
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		found, err := discoverServer(ctx, 5*time.Second)
		cancel()
		if err != nil {
			l.Error("discover_failed", "error", err)
			os.Exit(1)
		}
		addr = found
		l.Info("discovered_server", "addr", addr)
	}

	c := chatclient.New(
		chatclient.WithLogger(l),
		chatclient.WithHandshakeTimeout(cfg.handshakeTO),
		chatclient.WithOnMessage(func(target string, body []byte) {
			fmt.Printf("[%s] %s\n", target, body)
		}),
	)
	c.Connect(addr)
	defer c.Destroy()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			lines <- scanner.Text()
		}
	}()

	for {
		select {
		case line, ok := <-lines:
			if !ok {
				return
			}
			if _, err := c.Send("CHAT", []byte(line)); err != nil {
				l.Warn("send_failed", "error", err)
			}
		case s := <-sigCh:
			l.Info("shutdown_signal", "signal", s.String())
			return
		}
	}
}
