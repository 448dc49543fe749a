package chatserver

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"time"

	"github.com/shimamura/chattransport/internal/metrics"
	"github.com/shimamura/chattransport/internal/wire"
)

// runReader accumulates bytes off one connection, resyncs the wire
// accumulator across TCP reassembly boundaries, and pushes each parsed
// frame as a RecvTask.
func (s *Server) runReader(ctx context.Context, connID uint64, conn net.Conn, logger *slog.Logger) {
	defer s.wg.Done()
	defer s.dropClient(connID, conn, logger)

	acc := wire.NewAccumulator(nil) // handshake frame is plaintext and already consumed by sendHandshake
	buf := make([]byte, 4096)

	onFrame := func(fr wire.Frame) {
		metrics.IncRecv()
		body := make([]byte, len(fr.Body))
		copy(body, fr.Body)
		if !s.recvQ.TryEnqueue(RecvTask{ClientID: connID, Raw: encodeRaw(fr, body)}) {
			metrics.IncRecvQueueDrop()
			logger.Warn("recv_queue_full_drop")
		}
	}
	onError := func(res wire.ParseResult) {
		metrics.IncMalformed()
		logger.Debug("frame_rejected", "reason", res.String())
	}

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}
		_ = conn.SetReadDeadline(time.Now().Add(s.readDeadline))
		n, err := conn.Read(buf)
		if n > 0 {
			acc.SetStrategy(s.currentPair().Decrypt)
			acc.Feed(buf[:n], s.maxFrameSize, onFrame, onError)
		}
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, net.ErrClosed) {
				return
			}
			if ne, ok := err.(net.Error); ok && ne.Timeout() {
				continue
			}
			wrap := fmt.Errorf("%w: %v", ErrConnRead, err)
			metrics.IncError(mapErrToMetric(wrap))
			s.setError(wrap)
			return
		}
	}
}

// encodeRaw packs a parsed frame's target and body back into a single
// buffer so the RecvTask stays a flat owned byte slice; the worker pool
// re-splits target and body with splitRaw below.
func encodeRaw(fr wire.Frame, body []byte) []byte {
	out := make([]byte, wire.TargetSize+len(body))
	copy(out, fr.Target[:])
	copy(out[wire.TargetSize:], body)
	return out
}

func splitRaw(raw []byte) (target string, body []byte) {
	if len(raw) < wire.TargetSize {
		return "", nil
	}
	var tag [wire.TargetSize]byte
	copy(tag[:], raw[:wire.TargetSize])
	return wire.TargetString(tag), raw[wire.TargetSize:]
}
