package main

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	yaml "go.yaml.in/yaml/v2"
)

// appConfig holds the server's runtime settings, layered from defaults,
// an optional YAML config file, environment variables, and command-line
// flags, in increasing order of precedence.
type appConfig struct {
	listenAddr      string
	logFormat       string
	logLevel        string
	metricsAddr     string
	logMetricsEvery time.Duration
	workerCount     int
	recvQueueCap    int
	sendQueueCap    int
	maxFrameSize    int
	maxClients      int
	handshakeTO     time.Duration
	clientReadTO    time.Duration
	strategy        string
	mdnsEnable      bool
	mdnsName        string
	configFile      string
	logFile         string
}

// fileConfig is the subset of appConfig that may be set from a YAML file.
// Only fields with a non-zero value in the file override the built-in
// default; flags and env still take precedence over both, per
// applyEnvOverrides below.
type fileConfig struct {
	ListenAddr      string `yaml:"listen_addr"`
	LogFormat       string `yaml:"log_format"`
	LogLevel        string `yaml:"log_level"`
	MetricsAddr     string `yaml:"metrics_addr"`
	LogMetricsEvery string `yaml:"log_metrics_interval"`
	WorkerCount     int    `yaml:"worker_count"`
	RecvQueueCap    int    `yaml:"recv_queue_capacity"`
	SendQueueCap    int    `yaml:"send_queue_capacity"`
	MaxFrameSize    int    `yaml:"max_frame_size"`
	MaxClients      int    `yaml:"max_clients"`
	HandshakeTO     string `yaml:"handshake_timeout"`
	ClientReadTO    string `yaml:"client_read_timeout"`
	Strategy        string `yaml:"strategy"`
	MDNSEnable      bool   `yaml:"mdns_enable"`
	MDNSName        string `yaml:"mdns_name"`
}

func parseFlags() (*appConfig, bool) {
	cfg := &appConfig{}
	listen := flag.String("listen", ":20000", "TCP listen address")
	logFormat := flag.String("log-format", "text", "Log format: text|json")
	logLevel := flag.String("log-level", "info", "Log level: debug|info|warn|error")
	metricsAddr := flag.String("metrics-addr", "", "Metrics HTTP listen address (e.g., :9100); empty disables")
	logMetricsEvery := flag.Duration("log-metrics-interval", 0, "If >0, periodically log metrics counters (for non-Prometheus setups)")
	workerCount := flag.Int("worker-count", 4, "Recv-queue worker pool size")
	recvQueueCap := flag.Int("recv-queue-capacity", 256, "Recv queue capacity")
	sendQueueCap := flag.Int("send-queue-capacity", 256, "Send queue capacity")
	maxFrameSize := flag.Int("max-frame-size", 64*1024, "Maximum accepted frame size in bytes")
	maxClients := flag.Int("max-clients", 0, "Maximum simultaneous TCP clients (0 = unlimited)")
	handshakeTO := flag.Duration("handshake-timeout", 3*time.Second, "Client handshake timeout")
	clientReadTO := flag.Duration("client-read-timeout", 60*time.Second, "Per-connection read deadline")
	strategy := flag.String("strategy", "xor", "Cipher strategy offered at handshake: none|xor|chacha20")
	mdnsEnable := flag.Bool("mdns-enable", false, "Enable mDNS/Avahi advertisement")
	mdnsName := flag.String("mdns-name", "", "mDNS instance name (default chatserver-<hostname>)")
	configFile := flag.String("config", "", "Optional YAML config file; flags and env still take precedence")
	logFile := flag.String("log-file", "", "If set, write rotating logs to this path instead of stderr")
	showVersion := flag.Bool("version", false, "Print version and exit")
	flag.Parse()

	setFlags := map[string]struct{}{}
	flag.Visit(func(f *flag.Flag) { setFlags[f.Name] = struct{}{} })

	cfg.listenAddr = *listen
	cfg.logFormat = *logFormat
	cfg.logLevel = *logLevel
	cfg.metricsAddr = *metricsAddr
	cfg.logMetricsEvery = *logMetricsEvery
	cfg.workerCount = *workerCount
	cfg.recvQueueCap = *recvQueueCap
	cfg.sendQueueCap = *sendQueueCap
	cfg.maxFrameSize = *maxFrameSize
	cfg.maxClients = *maxClients
	cfg.handshakeTO = *handshakeTO
	cfg.clientReadTO = *clientReadTO
	cfg.strategy = *strategy
	cfg.mdnsEnable = *mdnsEnable
	cfg.mdnsName = *mdnsName
	cfg.configFile = *configFile
	cfg.logFile = *logFile

	if cfg.configFile != "" {
		if err := applyFileOverrides(cfg, setFlags, cfg.configFile); err != nil {
			fmt.Printf("config file error: %v\n", err)
			return nil, *showVersion
		}
	}
	if err := applyEnvOverrides(cfg, setFlags); err != nil {
		fmt.Printf("environment override error: %v\n", err)
		return nil, *showVersion
	}
	if err := cfg.validate(); err != nil {
		fmt.Printf("configuration error: %v\n", err)
		return nil, *showVersion
	}
	return cfg, *showVersion
}

// applyFileOverrides loads a YAML file and applies each field that was not
// explicitly set via flag. It runs before applyEnvOverrides so the final
// precedence is flag > env > file > built-in default.
func applyFileOverrides(c *appConfig, set map[string]struct{}, path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	if _, ok := set["listen"]; !ok && fc.ListenAddr != "" {
		c.listenAddr = fc.ListenAddr
	}
	if _, ok := set["log-format"]; !ok && fc.LogFormat != "" {
		c.logFormat = fc.LogFormat
	}
	if _, ok := set["log-level"]; !ok && fc.LogLevel != "" {
		c.logLevel = fc.LogLevel
	}
	if _, ok := set["metrics-addr"]; !ok && fc.MetricsAddr != "" {
		c.metricsAddr = fc.MetricsAddr
	}
	if _, ok := set["log-metrics-interval"]; !ok && fc.LogMetricsEvery != "" {
		if d, err := time.ParseDuration(fc.LogMetricsEvery); err == nil {
			c.logMetricsEvery = d
		}
	}
	if _, ok := set["worker-count"]; !ok && fc.WorkerCount > 0 {
		c.workerCount = fc.WorkerCount
	}
	if _, ok := set["recv-queue-capacity"]; !ok && fc.RecvQueueCap > 0 {
		c.recvQueueCap = fc.RecvQueueCap
	}
	if _, ok := set["send-queue-capacity"]; !ok && fc.SendQueueCap > 0 {
		c.sendQueueCap = fc.SendQueueCap
	}
	if _, ok := set["max-frame-size"]; !ok && fc.MaxFrameSize > 0 {
		c.maxFrameSize = fc.MaxFrameSize
	}
	if _, ok := set["max-clients"]; !ok && fc.MaxClients > 0 {
		c.maxClients = fc.MaxClients
	}
	if _, ok := set["handshake-timeout"]; !ok && fc.HandshakeTO != "" {
		if d, err := time.ParseDuration(fc.HandshakeTO); err == nil {
			c.handshakeTO = d
		}
	}
	if _, ok := set["client-read-timeout"]; !ok && fc.ClientReadTO != "" {
		if d, err := time.ParseDuration(fc.ClientReadTO); err == nil {
			c.clientReadTO = d
		}
	}
	if _, ok := set["strategy"]; !ok && fc.Strategy != "" {
		c.strategy = fc.Strategy
	}
	if _, ok := set["mdns-enable"]; !ok {
		c.mdnsEnable = fc.MDNSEnable
	}
	if _, ok := set["mdns-name"]; !ok && fc.MDNSName != "" {
		c.mdnsName = fc.MDNSName
	}
	return nil
}

func (c *appConfig) validate() error {
	if c == nil {
		return errors.New("nil config")
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
	switch c.strategy {
	case "none", "xor", "chacha20":
	default:
		return fmt.Errorf("invalid strategy: %s", c.strategy)
	}
	if c.workerCount <= 0 {
		return fmt.Errorf("worker-count must be > 0 (got %d)", c.workerCount)
	}
	if c.recvQueueCap <= 0 || c.sendQueueCap <= 0 {
		return fmt.Errorf("queue capacities must be > 0")
	}
	if c.maxFrameSize <= 0 {
		return fmt.Errorf("max-frame-size must be > 0")
	}
	if c.handshakeTO <= 0 {
		return fmt.Errorf("handshake-timeout must be > 0")
	}
	if c.clientReadTO <= 0 {
		return fmt.Errorf("client-read-timeout must be > 0")
	}
	if c.maxClients < 0 {
		return fmt.Errorf("max-clients must be >= 0")
	}
	return nil
}

// strategyCode maps the configured strategy name to its cipher registry
// code (internal/cipher).
func (c *appConfig) strategyCode() int32 {
	switch c.strategy {
	case "none":
		return 0
	case "chacha20":
		return 2
	default:
		return 1
	}
}

// applyEnvOverrides maps CHATSERVER_* environment variables to config
// fields unless a corresponding flag was explicitly set.
func applyEnvOverrides(c *appConfig, set map[string]struct{}) error {
	var firstErr error
	get := func(k string) (string, bool) { v, ok := os.LookupEnv(k); return strings.TrimSpace(v), ok }

	if _, ok := set["listen"]; !ok {
		if v, ok := get("CHATSERVER_LISTEN"); ok && v != "" {
			c.listenAddr = v
		}
	}
	if _, ok := set["log-format"]; !ok {
		if v, ok := get("CHATSERVER_LOG_FORMAT"); ok && v != "" {
			c.logFormat = v
		}
	}
	if _, ok := set["log-level"]; !ok {
		if v, ok := get("CHATSERVER_LOG_LEVEL"); ok && v != "" {
			c.logLevel = v
		}
	}
	if _, ok := set["metrics-addr"]; !ok {
		if v, ok := get("CHATSERVER_METRICS"); ok {
			c.metricsAddr = v
		}
	}
	if _, ok := set["worker-count"]; !ok {
		if v, ok := get("CHATSERVER_WORKER_COUNT"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n > 0 {
				c.workerCount = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHATSERVER_WORKER_COUNT: %w", err)
			}
		}
	}
	if _, ok := set["max-clients"]; !ok {
		if v, ok := get("CHATSERVER_MAX_CLIENTS"); ok && v != "" {
			if n, err := strconv.Atoi(v); err == nil && n >= 0 {
				c.maxClients = n
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHATSERVER_MAX_CLIENTS: %w", err)
			}
		}
	}
	if _, ok := set["handshake-timeout"]; !ok {
		if v, ok := get("CHATSERVER_HANDSHAKE_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.handshakeTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHATSERVER_HANDSHAKE_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["client-read-timeout"]; !ok {
		if v, ok := get("CHATSERVER_CLIENT_READ_TIMEOUT"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d > 0 {
				c.clientReadTO = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHATSERVER_CLIENT_READ_TIMEOUT: %w", err)
			}
		}
	}
	if _, ok := set["strategy"]; !ok {
		if v, ok := get("CHATSERVER_STRATEGY"); ok && v != "" {
			c.strategy = v
		}
	}
	if _, ok := set["mdns-enable"]; !ok {
		if v, ok := get("CHATSERVER_MDNS_ENABLE"); ok && v != "" {
			switch strings.ToLower(v) {
			case "1", "true", "yes", "on":
				c.mdnsEnable = true
			case "0", "false", "no", "off":
				c.mdnsEnable = false
			}
		}
	}
	if _, ok := set["mdns-name"]; !ok {
		if v, ok := get("CHATSERVER_MDNS_NAME"); ok && v != "" {
			c.mdnsName = v
		}
	}
	if _, ok := set["log-metrics-interval"]; !ok {
		if v, ok := get("CHATSERVER_LOG_METRICS_INTERVAL"); ok && v != "" {
			if d, err := time.ParseDuration(v); err == nil && d >= 0 {
				c.logMetricsEvery = d
			} else if err != nil && firstErr == nil {
				firstErr = fmt.Errorf("invalid CHATSERVER_LOG_METRICS_INTERVAL: %w", err)
			}
		}
	}
	return firstErr
}
