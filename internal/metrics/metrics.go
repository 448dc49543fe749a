// Package metrics exposes Prometheus counters and gauges for the transport.
// A local atomic-mirrored snapshot is kept alongside the promauto
// registrations for a periodic structured-logging fallback in deployments
// that don't scrape Prometheus.
package metrics

import (
	"net/http"
	"sync"
	"sync/atomic"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/shimamura/chattransport/internal/logging"
)

var (
	RecvFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_recv_frames_total",
		Help: "Total frames parsed from clients.",
	})
	SentFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_sent_frames_total",
		Help: "Total frames written to clients.",
	})
	HandshakeFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_handshake_failures_total",
		Help: "Total client connections that failed the handshake.",
	})
	MalformedFrames = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_malformed_frames_total",
		Help: "Total frames rejected for a checksum or length violation.",
	})
	RecvQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_recv_queue_drops_total",
		Help: "Total inbound tasks dropped because the receive queue was full.",
	})
	SendQueueDrops = promauto.NewCounter(prometheus.CounterOpts{
		Name: "chattransport_send_queue_drops_total",
		Help: "Total outbound tasks dropped because the send queue was full.",
	})
	ActiveClients = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattransport_active_clients",
		Help: "Current number of connected clients.",
	})
	BroadcastFanout = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattransport_broadcast_fanout",
		Help: "Number of clients targeted by the most recent broadcast.",
	})
	RecvQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattransport_recv_queue_depth",
		Help: "Most recently observed receive queue depth.",
	})
	SendQueueDepth = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "chattransport_send_queue_depth",
		Help: "Most recently observed send queue depth.",
	})
	BuildInfo = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "chattransport_build_info",
		Help: "Build metadata (value is always 1).",
	}, []string{"version", "commit", "date"})
	Errors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "chattransport_errors_total",
		Help: "Error counters by subsystem.",
	}, []string{"where"})

	readinessMu sync.RWMutex
	readinessFn func() bool
)

// Error label constants; stable values bound cardinality.
const (
	ErrListen     = "listen"
	ErrAccept     = "accept"
	ErrHandshake  = "handshake"
	ErrConnRead   = "conn_read"
	ErrConnWrite  = "conn_write"
	ErrDial       = "dial"
	ErrReconnect  = "reconnect"
)

// StartHTTP serves Prometheus metrics at /metrics and a readiness probe at
// /ready on addr.
func StartHTTP(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/ready", func(w http.ResponseWriter, r *http.Request) {
		if IsReady() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready\n"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("not ready\n"))
	})
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logging.L().Info("metrics_listen", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logging.L().Error("metrics_http_error", "error", err)
		}
	}()
	return srv
}

// Local mirrored counters so a deployment without Prometheus scraping can
// still log periodic snapshots (see cmd/*/metrics_logger.go).
var (
	localRecv       uint64
	localSent       uint64
	localHandshakeF uint64
	localMalformed  uint64
	localRecvDrops  uint64
	localSendDrops  uint64
	localErrors     uint64
	localClients    uint64
	localFanout     uint64
)

// Snapshot is a cheap copy of the local mirrored counters.
type Snapshot struct {
	Recv             uint64
	Sent             uint64
	HandshakeFailed  uint64
	Malformed        uint64
	RecvQueueDrops   uint64
	SendQueueDrops   uint64
	Errors           uint64
	ActiveClients    uint64
	BroadcastFanout  uint64
}

func Snap() Snapshot {
	return Snapshot{
		Recv:            atomic.LoadUint64(&localRecv),
		Sent:            atomic.LoadUint64(&localSent),
		HandshakeFailed: atomic.LoadUint64(&localHandshakeF),
		Malformed:       atomic.LoadUint64(&localMalformed),
		RecvQueueDrops:  atomic.LoadUint64(&localRecvDrops),
		SendQueueDrops:  atomic.LoadUint64(&localSendDrops),
		Errors:          atomic.LoadUint64(&localErrors),
		ActiveClients:   atomic.LoadUint64(&localClients),
		BroadcastFanout: atomic.LoadUint64(&localFanout),
	}
}

func IncRecv() { RecvFrames.Inc(); atomic.AddUint64(&localRecv, 1) }
func IncSent() { SentFrames.Inc(); atomic.AddUint64(&localSent, 1) }
func IncHandshakeFailure() {
	HandshakeFailures.Inc()
	atomic.AddUint64(&localHandshakeF, 1)
}
func IncMalformed() { MalformedFrames.Inc(); atomic.AddUint64(&localMalformed, 1) }
func IncRecvQueueDrop() {
	RecvQueueDrops.Inc()
	atomic.AddUint64(&localRecvDrops, 1)
}
func IncSendQueueDrop() {
	SendQueueDrops.Inc()
	atomic.AddUint64(&localSendDrops, 1)
}
func SetActiveClients(n int) {
	ActiveClients.Set(float64(n))
	atomic.StoreUint64(&localClients, uint64(n))
}
func SetBroadcastFanout(n int) {
	BroadcastFanout.Set(float64(n))
	atomic.StoreUint64(&localFanout, uint64(n))
}
func SetRecvQueueDepth(n int) { RecvQueueDepth.Set(float64(n)) }
func SetSendQueueDepth(n int) { SendQueueDepth.Set(float64(n)) }
func IncError(label string) {
	Errors.WithLabelValues(label).Inc()
	atomic.AddUint64(&localErrors, 1)
}

// InitBuildInfo sets the build info gauge and pre-registers the known error
// label series so the first real error doesn't pay first-touch registration
// latency.
func InitBuildInfo(version, commit, date string) {
	BuildInfo.WithLabelValues(version, commit, date).Set(1)
	for _, lbl := range []string{ErrListen, ErrAccept, ErrHandshake, ErrConnRead, ErrConnWrite, ErrDial, ErrReconnect} {
		Errors.WithLabelValues(lbl).Add(0)
	}
}

// SetReadinessFunc registers the function used by /ready and IsReady.
func SetReadinessFunc(fn func() bool) { readinessMu.Lock(); readinessFn = fn; readinessMu.Unlock() }

// IsReady invokes the registered readiness function, defaulting to true if
// none has been set yet (so /ready doesn't flap before startup wires it up).
func IsReady() bool {
	readinessMu.RLock()
	fn := readinessFn
	readinessMu.RUnlock()
	if fn == nil {
		return true
	}
	return fn()
}
