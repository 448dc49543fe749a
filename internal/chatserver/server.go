// Package chatserver implements the server half of the transport: an
// accept loop, a worker pool that parses inbound frames and invokes a user
// callback, and a single sender goroutine that serializes and writes
// unicast or broadcast frames.
package chatserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/shimamura/chattransport/internal/cipher"
	"github.com/shimamura/chattransport/internal/logging"
	"github.com/shimamura/chattransport/internal/metrics"
	"github.com/shimamura/chattransport/internal/queue"
	"github.com/shimamura/chattransport/internal/roster"
)

// OnMessage is invoked by a worker goroutine for every successfully parsed
// frame. Implementations that need to synchronize shared state must do
// their own locking when WorkerCount > 1, since only a single worker
// configuration avoids concurrent callback invocations.
type OnMessage func(clientID uint64, target string, body []byte)

const (
	defaultWorkerCount     = 4
	defaultRecvQueueCap    = 256
	defaultSendQueueCap    = 256
	defaultHandshakeTime   = 3 * time.Second
	defaultReadDeadline    = 60 * time.Second
	defaultMaxFrameSize    = 64 * 1024
)

// Server owns the TCP listener, the client roster, and the recv/send
// pipeline queues.
type Server struct {
	mu   sync.RWMutex
	addr string

	roster *roster.Roster

	recvQ *queue.Queue[RecvTask]
	sendQ *queue.Queue[SendTask]

	workerCount      int
	handshakeTimeout time.Duration
	readDeadline     time.Duration
	maxFrameSize     int
	maxClients       int

	strategyCode int32
	cipherMu     sync.RWMutex
	pair         cipher.Pair

	onMessage OnMessage

	listener  net.Listener
	readyOnce sync.Once
	readyCh   chan struct{}
	lastErrMu sync.Mutex
	lastErr   error
	errCh     chan error

	wg         sync.WaitGroup
	nextConnID uint64
	conns      sync.Map // uint64 -> net.Conn, for unicast/broadcast writes

	logger *slog.Logger
}

// Option configures a Server at construction time.
type Option func(*Server)

func WithListenAddr(a string) Option { return func(s *Server) { s.addr = a } }
func WithWorkerCount(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.workerCount = n
		}
	}
}
func WithRecvQueueCap(n int) Option { return func(s *Server) { s.recvQ = queue.New[RecvTask](n) } }
func WithSendQueueCap(n int) Option { return func(s *Server) { s.sendQ = queue.New[SendTask](n) } }
func WithHandshakeTimeout(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.handshakeTimeout = d
		}
	}
}
func WithReadDeadline(d time.Duration) Option {
	return func(s *Server) {
		if d > 0 {
			s.readDeadline = d
		}
	}
}
func WithMaxFrameSize(n int) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxFrameSize = n
		}
	}
}
func WithMaxClients(n int) Option { return func(s *Server) { s.maxClients = n } }
func WithStrategy(code int32) Option {
	return func(s *Server) {
		s.strategyCode = code
		s.pair = cipher.Lookup(code)
	}
}
func WithOnMessage(fn OnMessage) Option { return func(s *Server) { s.onMessage = fn } }
func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// New constructs a Server; strategy defaults to XOR both directions, so a
// client with no explicit configuration matches the server's handshake
// expectation out of the box.
func New(opts ...Option) *Server {
	s := &Server{
		roster:           roster.New(),
		workerCount:      defaultWorkerCount,
		handshakeTimeout: defaultHandshakeTime,
		readDeadline:     defaultReadDeadline,
		maxFrameSize:     defaultMaxFrameSize,
		strategyCode:     cipher.XOR,
		pair:             cipher.Lookup(cipher.XOR),
		readyCh:          make(chan struct{}),
		errCh:            make(chan error, 1),
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(s)
	}
	if s.recvQ == nil {
		s.recvQ = queue.New[RecvTask](defaultRecvQueueCap)
	}
	if s.sendQ == nil {
		s.sendQ = queue.New[SendTask](defaultSendQueueCap)
	}
	if s.addr == "" {
		s.addr = ":0"
	}
	return s
}

func (s *Server) Addr() string { s.mu.RLock(); defer s.mu.RUnlock(); return s.addr }
func (s *Server) setAddr(a string) { s.mu.Lock(); s.addr = a; s.mu.Unlock() }
func (s *Server) Ready() <-chan struct{} { return s.readyCh }
func (s *Server) Errors() <-chan error   { return s.errCh }
func (s *Server) ClientCount() int       { return s.roster.Count() }

func (s *Server) setError(err error) {
	if err == nil {
		return
	}
	s.lastErrMu.Lock()
	s.lastErr = err
	s.lastErrMu.Unlock()
	select {
	case s.errCh <- err:
	default:
	}
}
func (s *Server) LastError() error { s.lastErrMu.Lock(); defer s.lastErrMu.Unlock(); return s.lastErr }

// SetStrategy changes the cipher pair applied to frames parsed and
// serialized from this point on. It does not renegotiate already-connected
// clients; callers normally pair it with disconnecting the roster.
func (s *Server) SetStrategy(code int32) {
	s.cipherMu.Lock()
	s.strategyCode = code
	s.pair = cipher.Lookup(code)
	s.cipherMu.Unlock()
}

func (s *Server) currentPair() cipher.Pair {
	s.cipherMu.RLock()
	defer s.cipherMu.RUnlock()
	return s.pair
}

func (s *Server) currentStrategyCode() int32 {
	s.cipherMu.RLock()
	defer s.cipherMu.RUnlock()
	return s.strategyCode
}

// Run starts the worker pool, the sender goroutine, and the accept loop,
// blocking until ctx is cancelled or a fatal listener error occurs.
func (s *Server) Run(ctx context.Context) error {
	ln, err := listen(ctx, s.addr)
	if err != nil {
		wrap := fmt.Errorf("%w: %v", ErrListen, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}
	s.setAddr(ln.Addr().String())
	s.listener = ln
	s.readyOnce.Do(func() { close(s.readyCh) })
	s.logger.Info("tcp_listen", "addr", s.Addr())

	for i := 0; i < s.workerCount; i++ {
		s.wg.Add(1)
		go s.runWorker(ctx, i)
	}
	s.wg.Add(1)
	go s.runSender(ctx)

	go func() { <-ctx.Done(); _ = ln.Close() }()

	for {
		if err := s.acceptOnce(ctx, ln); err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				break
			}
			return err
		}
	}
	s.wg.Wait()
	return nil
}

func (s *Server) acceptOnce(ctx context.Context, ln net.Listener) error {
	conn, err := ln.Accept()
	if err != nil {
		select {
		case <-ctx.Done():
			return context.Canceled
		default:
		}
		if ne, ok := err.(net.Error); ok && ne.Timeout() {
			return nil
		}
		wrap := fmt.Errorf("%w: %v", ErrAccept, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		return wrap
	}

	connID := atomic.AddUint64(&s.nextConnID, 1)
	connLogger := s.logger.With("conn_id", connID, "remote", conn.RemoteAddr().String())

	if tcp, ok := conn.(*net.TCPConn); ok {
		_ = tcp.SetNoDelay(true)
		_ = tcp.SetKeepAlive(true)
		_ = tcp.SetKeepAlivePeriod(30 * time.Second)
	}

	if s.maxClients > 0 && s.roster.Count() >= s.maxClients {
		connLogger.Warn("client_reject_max", "max_clients", s.maxClients)
		_ = conn.Close()
		return nil
	}

	if err := sendHandshake(conn, s.handshakeTimeout, s.currentStrategyCode()); err != nil {
		wrap := fmt.Errorf("%w: %v", ErrHandshake, err)
		metrics.IncError(mapErrToMetric(wrap))
		s.setError(wrap)
		metrics.IncHandshakeFailure()
		connLogger.Warn("handshake_failed", "error", wrap)
		_ = conn.Close()
		return nil
	}

	s.conns.Store(connID, conn)
	s.roster.Add(&roster.Conn{ID: connID, Send: func(frame []byte) error {
		_, err := conn.Write(frame)
		return err
	}})
	metrics.SetActiveClients(s.roster.Count())
	connLogger.Info("client_connected")

	s.wg.Add(1)
	go s.runReader(ctx, connID, conn, connLogger)
	return nil
}

func (s *Server) dropClient(id uint64, conn net.Conn, logger *slog.Logger) {
	_ = conn.Close()
	s.conns.Delete(id)
	s.roster.Remove(id)
	metrics.SetActiveClients(s.roster.Count())
	logger.Info("client_disconnected")
}

// Shutdown closes the listener and every client connection, then waits for
// the connection readers, workers, and sender to exit. Context
// cancellation is this implementation's poison pill: it is what unblocks
// every blocking queue.Dequeue call, replacing the explicit per-worker
// sentinel enqueue the reference design describes.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	ln := s.listener
	s.listener = nil
	s.mu.Unlock()
	if ln != nil {
		_ = ln.Close()
	}
	s.conns.Range(func(_, v any) bool {
		_ = v.(net.Conn).Close()
		return true
	})
	s.roster.Clear()

	done := make(chan struct{})
	go func() { s.wg.Wait(); close(done) }()
	select {
	case <-ctx.Done():
		return fmt.Errorf("%w: %v", ErrShutdown, ctx.Err())
	case <-done:
		s.logger.Info("shutdown_complete")
		return nil
	}
}

// Broadcast enqueues body under target for delivery to every roster
// member.
func (s *Server) Broadcast(target string, body []byte) bool {
	if !s.sendQ.TryEnqueue(SendTask{Dest: Broadcast, Target: target, Body: body}) {
		metrics.IncSendQueueDrop()
		s.logger.Warn("send_queue_full_drop", "dest", "broadcast")
		return false
	}
	return true
}

// Unicast enqueues body under target for delivery to a single client.
func (s *Server) Unicast(clientID uint64, target string, body []byte) bool {
	if !s.sendQ.TryEnqueue(SendTask{Dest: Unicast, ClientID: clientID, Target: target, Body: body}) {
		metrics.IncSendQueueDrop()
		s.logger.Warn("send_queue_full_drop", "dest", "unicast", "client_id", clientID)
		return false
	}
	return true
}
