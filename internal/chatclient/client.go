// Package chatclient implements the reconnecting client half of the
// transport: a network goroutine that owns connect/handshake/receive-loop
// state, and a thread-safe Send callable from any goroutine.
package chatclient

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff"

	"github.com/shimamura/chattransport/internal/cipher"
	"github.com/shimamura/chattransport/internal/logging"
	"github.com/shimamura/chattransport/internal/metrics"
	"github.com/shimamura/chattransport/internal/wire"
)

// State is one of the three mutually exclusive client connection states.
type State int32

const (
	Disconnected State = iota
	Connecting
	Connected
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	default:
		return "unknown"
	}
}

// OnMessage is invoked from the network goroutine for every successfully
// parsed frame. It runs on the single network goroutine, so unlike the
// server's worker callback it never needs its own synchronization against
// concurrent deliveries.
type OnMessage func(target string, body []byte)

const (
	reconnectInterval = 1 * time.Second
	readTimeout       = 0 // blocking read
)

// Client is a reconnecting TCP session. The zero value is not usable; build
// one with New.
type Client struct {
	onMessage OnMessage

	handshakeTimeout time.Duration

	state atomic.Int32

	connMu sync.Mutex
	conn   net.Conn

	cipherMu sync.RWMutex
	pair     cipher.Pair

	running atomic.Bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	logger *slog.Logger
}

// Option configures a Client at construction time.
type Option func(*Client)

func WithOnMessage(fn OnMessage) Option { return func(c *Client) { c.onMessage = fn } }
func WithHandshakeTimeout(d time.Duration) Option {
	return func(c *Client) {
		if d > 0 {
			c.handshakeTimeout = d
		}
	}
}
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) {
		if l != nil {
			c.logger = l
		}
	}
}

// New builds a Client preset to strategy XOR in both directions, matching
// the server's default handshake expectation.
func New(opts ...Option) *Client {
	c := &Client{
		handshakeTimeout: 3 * time.Second,
		pair:             cipher.Lookup(cipher.XOR),
		logger:           logging.L(),
	}
	for _, o := range opts {
		o(c)
	}
	c.state.Store(int32(Disconnected))
	return c
}

func (c *Client) State() State { return State(c.state.Load()) }

// IsConnected reports whether the session is running and holds a live
// socket.
func (c *Client) IsConnected() bool {
	return c.running.Load() && c.State() == Connected
}

// SetStrategy replaces the cipher pair used by subsequent Send/receive
// operations. Not synchronized against in-flight frames: a frame already
// read or being written may use the prior strategy.
func (c *Client) SetStrategy(code int32) {
	c.cipherMu.Lock()
	c.pair = cipher.Lookup(code)
	c.cipherMu.Unlock()
}

func (c *Client) currentPair() cipher.Pair {
	c.cipherMu.RLock()
	defer c.cipherMu.RUnlock()
	return c.pair
}

// Connect records the target, marks the session running, and spawns the
// network goroutine. It returns immediately; use IsConnected to learn when
// the session is ready.
func (c *Client) Connect(addr string) {
	if c.running.Swap(true) {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.wg.Add(1)
	go c.networkLoop(ctx, addr)
}

// Disconnect clears running state, unblocks any in-progress read by
// shutting down the socket, and waits for the network goroutine to exit.
func (c *Client) Disconnect() {
	if !c.running.Swap(false) {
		return
	}
	if c.cancel != nil {
		c.cancel()
	}
	c.resetConnection()
	c.wg.Wait()
}

// Destroy disconnects if running and releases resources. Safe to call more
// than once.
func (c *Client) Destroy() {
	c.Disconnect()
}

// resetConnection closes the current socket, clears it, and re-arms the
// default cipher pair so the next handshake begins in a known state. It is
// idempotent.
func (c *Client) resetConnection() {
	c.connMu.Lock()
	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
	c.connMu.Unlock()
	c.cipherMu.Lock()
	c.pair = cipher.Lookup(cipher.XOR)
	c.cipherMu.Unlock()
	c.state.Store(int32(Disconnected))
}

func (c *Client) networkLoop(ctx context.Context, addr string) {
	defer c.wg.Done()
	b := backoff.NewConstantBackOff(reconnectInterval)
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.state.Store(int32(Connecting))
		conn, pair, err := connectAndHandshake(ctx, addr, c.handshakeTimeout)
		if err != nil {
			c.logger.Warn("connect_failed", "addr", addr, "error", err)
			metrics.IncError(metrics.ErrDial)
			c.state.Store(int32(Disconnected))
			select {
			case <-ctx.Done():
				return
			case <-time.After(b.NextBackOff()):
			}
			continue
		}
		c.connMu.Lock()
		c.conn = conn
		c.connMu.Unlock()
		c.cipherMu.Lock()
		c.pair = pair
		c.cipherMu.Unlock()
		c.state.Store(int32(Connected))
		c.logger.Info("connected", "addr", addr)

		c.receiveLoop(ctx)
		if ctx.Err() != nil {
			return
		}
		c.resetConnection()
	}
}

func connectAndHandshake(ctx context.Context, addr string, timeout time.Duration) (net.Conn, cipher.Pair, error) {
	d := net.Dialer{Timeout: timeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, cipher.Pair{}, fmt.Errorf("%w: %v", ErrDial, err)
	}
	pair, err := readHandshake(conn, timeout)
	if err != nil {
		_ = conn.Close()
		return nil, cipher.Pair{}, err
	}
	return conn, pair, nil
}

// receiveLoop performs blocking reads of full frames until a read, length,
// or parse error occurs, at which point it returns so networkLoop can reset
// to Disconnected and resynchronize the stream.
func (c *Client) receiveLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		c.connMu.Lock()
		conn := c.conn
		c.connMu.Unlock()
		if conn == nil {
			return
		}

		hdr := make([]byte, wire.HeaderSize)
		if _, err := readFull(conn, hdr); err != nil {
			c.logger.Debug("read_error", "error", err)
			metrics.IncError(metrics.ErrConnRead)
			return
		}
		total := binary.BigEndian.Uint32(hdr[:4])
		if int(total) < wire.MinFrameSize || int(total) > wire.DefaultBufSize {
			c.logger.Debug("bad_frame_length", "total", total)
			metrics.IncMalformed()
			return
		}
		rest := make([]byte, int(total)-wire.HeaderSize)
		if _, err := readFull(conn, rest); err != nil {
			c.logger.Debug("read_error", "error", err)
			metrics.IncError(metrics.ErrConnRead)
			return
		}

		full := append(hdr, rest...)
		fr, res := wire.Parse(full, c.currentPair().Decrypt)
		if res != wire.Success {
			c.logger.Debug("parse_error", "result", res.String())
			metrics.IncMalformed()
			return
		}
		metrics.IncRecv()
		if c.onMessage != nil {
			c.onMessage(wire.TargetString(fr.Target), fr.Body)
		}
	}
}

// Send serializes body under target with the current encrypt strategy and
// writes it once to the live socket. It is safe to call from any
// goroutine. Returns ErrNotConnected if the session has no live socket.
func (c *Client) Send(target string, body []byte) (int, error) {
	c.connMu.Lock()
	conn := c.conn
	c.connMu.Unlock()
	if conn == nil {
		return 0, ErrNotConnected
	}

	buf := make([]byte, wire.HeaderSize+len(body)+wire.ChecksumSize)
	n, err := wire.Serialize(buf, target, body, c.currentPair().Encrypt)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrConnWrite, err)
	}

	c.connMu.Lock()
	defer c.connMu.Unlock()
	if c.conn == nil {
		return 0, ErrNotConnected
	}
	written, err := c.conn.Write(buf[:n])
	if err != nil {
		metrics.IncError(metrics.ErrConnWrite)
		return written, fmt.Errorf("%w: %v", ErrConnWrite, err)
	}
	metrics.IncSent()
	return written, nil
}
