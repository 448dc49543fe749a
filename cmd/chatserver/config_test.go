package main

import (
	"os"
	"testing"
	"time"
)

func baseConfig() *appConfig {
	return &appConfig{
		listenAddr:   ":20000",
		logFormat:    "text",
		logLevel:     "info",
		workerCount:  4,
		recvQueueCap: 256,
		sendQueueCap: 256,
		maxFrameSize: 64 * 1024,
		maxClients:   0,
		handshakeTO:  time.Second,
		clientReadTO: time.Second,
		strategy:     "xor",
	}
}

func TestConfigValidate_OK(t *testing.T) {
	if err := baseConfig().validate(); err != nil {
		t.Fatalf("expected ok got %v", err)
	}
}

func TestConfigValidate_Errors(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*appConfig)
	}{
		{"badFormat", func(c *appConfig) { c.logFormat = "xx" }},
		{"badLevel", func(c *appConfig) { c.logLevel = "nope" }},
		{"badStrategy", func(c *appConfig) { c.strategy = "rot13" }},
		{"badWorkerCount", func(c *appConfig) { c.workerCount = 0 }},
		{"badRecvQueue", func(c *appConfig) { c.recvQueueCap = 0 }},
		{"badMaxFrame", func(c *appConfig) { c.maxFrameSize = 0 }},
		{"badHandshakeTO", func(c *appConfig) { c.handshakeTO = 0 }},
		{"badClientReadTO", func(c *appConfig) { c.clientReadTO = 0 }},
		{"badMaxClients", func(c *appConfig) { c.maxClients = -1 }},
	}
	for _, tc := range tests {
		base := baseConfig()
		tc.mod(base)
		if err := base.validate(); err == nil {
			t.Fatalf("%s: expected error", tc.name)
		}
	}
}

func TestStrategyCode(t *testing.T) {
	c := baseConfig()
	c.strategy = "none"
	if c.strategyCode() != 0 {
		t.Fatalf("none should map to 0")
	}
	c.strategy = "chacha20"
	if c.strategyCode() != 2 {
		t.Fatalf("chacha20 should map to 2")
	}
	c.strategy = "xor"
	if c.strategyCode() != 1 {
		t.Fatalf("xor should map to 1")
	}
}

func TestApplyEnvOverrides_Basic(t *testing.T) {
	base := baseConfig()
	os.Setenv("CHATSERVER_WORKER_COUNT", "8")
	os.Setenv("CHATSERVER_MDNS_ENABLE", "true")
	os.Setenv("CHATSERVER_HANDSHAKE_TIMEOUT", "500ms")
	t.Cleanup(func() {
		os.Unsetenv("CHATSERVER_WORKER_COUNT")
		os.Unsetenv("CHATSERVER_MDNS_ENABLE")
		os.Unsetenv("CHATSERVER_HANDSHAKE_TIMEOUT")
	})
	if err := applyEnvOverrides(base, map[string]struct{}{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if base.workerCount != 8 {
		t.Fatalf("expected workerCount override, got %d", base.workerCount)
	}
	if !base.mdnsEnable {
		t.Fatalf("expected mdnsEnable true")
	}
	if base.handshakeTO != 500*time.Millisecond {
		t.Fatalf("expected handshakeTO 500ms got %v", base.handshakeTO)
	}
}

func TestApplyEnvOverrides_FlagPrecedence(t *testing.T) {
	base := baseConfig()
	base.workerCount = 4
	os.Setenv("CHATSERVER_WORKER_COUNT", "99")
	t.Cleanup(func() { os.Unsetenv("CHATSERVER_WORKER_COUNT") })
	if err := applyEnvOverrides(base, map[string]struct{}{"worker-count": {}}); err != nil {
		t.Fatalf("err: %v", err)
	}
	if base.workerCount != 4 {
		t.Fatalf("expected workerCount unchanged at 4, got %d", base.workerCount)
	}
}

func TestApplyEnvOverrides_BadInt(t *testing.T) {
	base := baseConfig()
	os.Setenv("CHATSERVER_WORKER_COUNT", "notint")
	t.Cleanup(func() { os.Unsetenv("CHATSERVER_WORKER_COUNT") })
	if err := applyEnvOverrides(base, map[string]struct{}{}); err == nil {
		t.Fatalf("expected error for bad integer")
	}
}

func TestApplyFileOverrides(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	content := "listen_addr: \":30000\"\nworker_count: 6\nstrategy: \"none\"\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	base := baseConfig()
	if err := applyFileOverrides(base, map[string]struct{}{}, path); err != nil {
		t.Fatalf("applyFileOverrides: %v", err)
	}
	if base.listenAddr != ":30000" {
		t.Fatalf("expected listenAddr from file, got %s", base.listenAddr)
	}
	if base.workerCount != 6 {
		t.Fatalf("expected workerCount from file, got %d", base.workerCount)
	}
	if base.strategy != "none" {
		t.Fatalf("expected strategy from file, got %s", base.strategy)
	}
}

func TestApplyFileOverrides_FlagPrecedence(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/config.yaml"
	content := "worker_count: 6\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	base := baseConfig()
	base.workerCount = 4
	if err := applyFileOverrides(base, map[string]struct{}{"worker-count": {}}, path); err != nil {
		t.Fatalf("applyFileOverrides: %v", err)
	}
	if base.workerCount != 4 {
		t.Fatalf("expected flag to win over file, got %d", base.workerCount)
	}
}
