package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"
)

type appConfig struct {
	serverAddr  string
	discover    bool
	logFormat   string
	logLevel    string
	handshakeTO time.Duration
	strategy    string
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	server := flag.String("server", "", "Server address (host:port); required unless -discover is set")
	discover := flag.Bool("discover", false, "Discover the server via mDNS instead of -server")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Handshake read timeout")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.serverAddr = *server
	cfg.discover = *discover
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.handshakeTO = *handshakeTO

	if _, ok := setFlags["server"]; !ok {
		if v := strings.TrimSpace(os.Getenv("CHATCLIENT_SERVER")); v != "" {
			cfg.serverAddr = v
		}
	}
	if _, ok := setFlags["log-level"]; !ok {
		if v := strings.TrimSpace(os.Getenv("CHATCLIENT_LOG_LEVEL")); v != "" {
			cfg.logLevel = v
		}
	}

	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
	}
	if !c.discover && c.serverAddr == "" {
		return errors.New("-server is required unless -discover is set")
	}
	switch c.logFormat {
	case "text", "json":
	default:
		return fmt.Errorf("invalid log-format: %s", c.logFormat)
	}
	switch c.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log-level: %s", c.logLevel)
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	return nil
}
