package chatserver

import (
	"context"
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shimamura/chattransport/internal/cipher"
	"github.com/shimamura/chattransport/internal/wire"
)

// readHandshake reads and validates the plaintext SEC_ARG frame the server
// sends immediately after accept, returning the negotiated strategy code.
func readHandshake(t *testing.T, conn net.Conn) int32 {
	t.Helper()
	hdr := make([]byte, wire.HeaderSize)
	_, err := readFull(conn, hdr)
	require.NoError(t, err)
	total := binary.BigEndian.Uint32(hdr[:4])
	rest := make([]byte, int(total)-wire.HeaderSize)
	_, err = readFull(conn, rest)
	require.NoError(t, err)

	full := append(hdr, rest...)
	fr, res := wire.Parse(full, nil)
	require.Equal(t, wire.Success, res)
	require.Equal(t, "SEC_ARG", wire.TargetString(fr.Target))
	require.Len(t, fr.Body, 4)
	return int32(binary.LittleEndian.Uint32(fr.Body))
}

func readFull(conn net.Conn, buf []byte) (int, error) {
	total := 0
	for total < len(buf) {
		n, err := conn.Read(buf[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

func TestSmokeHandshakeAndEcho(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var mu sync.Mutex
	var gotTarget string
	var gotBody []byte
	done := make(chan struct{}, 1)

	srv := New(
		WithListenAddr(":0"),
		WithHandshakeTimeout(2*time.Second),
		WithStrategy(cipher.None),
		WithOnMessage(func(clientID uint64, target string, body []byte) {
			mu.Lock()
			gotTarget = target
			gotBody = append([]byte(nil), body...)
			mu.Unlock()
			done <- struct{}{}
		}),
	)

	go func() {
		if err := srv.Run(ctx); err != nil {
			t.Logf("Run returned: %v", err)
		}
	}()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatal("server did not become ready")
	}

	d := net.Dialer{Timeout: 1 * time.Second}
	conn, err := d.DialContext(ctx, "tcp", srv.Addr())
	require.NoError(t, err)
	defer conn.Close()

	strategy := readHandshake(t, conn)
	require.Equal(t, cipher.None, strategy)

	buf := make([]byte, wire.HeaderSize+5+wire.ChecksumSize)
	n, err := wire.Serialize(buf, "CHAT", []byte("hello"), nil)
	require.NoError(t, err)
	_, err = conn.Write(buf[:n])
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was never invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "CHAT", gotTarget)
	require.Equal(t, []byte("hello"), gotBody)
	require.Equal(t, 1, srv.ClientCount())
}

func TestShutdownUnblocksRun(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	srv := New(WithListenAddr(":0"))

	runDone := make(chan error, 1)
	go func() { runDone <- srv.Run(ctx) }()
	select {
	case <-srv.Ready():
	case <-time.After(1 * time.Second):
		t.Fatal("server did not become ready")
	}

	cancel()
	shCtx, shCancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer shCancel()
	require.NoError(t, srv.Shutdown(shCtx))

	select {
	case <-runDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}
