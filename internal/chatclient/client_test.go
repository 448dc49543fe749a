package chatclient

import (
	"encoding/binary"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/shimamura/chattransport/internal/cipher"
	"github.com/shimamura/chattransport/internal/wire"
)

func writeHandshake(t *testing.T, conn net.Conn, code int32) {
	t.Helper()
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(code))
	buf := make([]byte, wire.HeaderSize+4+wire.ChecksumSize)
	n, err := wire.Serialize(buf, "SEC_ARG", body, nil)
	require.NoError(t, err)
	_, err = conn.Write(buf[:n])
	require.NoError(t, err)
}

func TestConnectHandshakeAndReceive(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	accepted := make(chan net.Conn, 1)
	go func() {
		conn, err := ln.Accept()
		if err == nil {
			accepted <- conn
		}
	}()

	var mu sync.Mutex
	var gotTarget string
	var gotBody []byte
	done := make(chan struct{}, 1)

	c := New(WithOnMessage(func(target string, body []byte) {
		mu.Lock()
		gotTarget = target
		gotBody = append([]byte(nil), body...)
		mu.Unlock()
		done <- struct{}{}
	}))
	c.Connect(ln.Addr().String())
	defer c.Destroy()

	var srvConn net.Conn
	select {
	case srvConn = <-accepted:
	case <-time.After(2 * time.Second):
		t.Fatal("server never accepted")
	}
	defer srvConn.Close()

	writeHandshake(t, srvConn, cipher.None)

	require.Eventually(t, func() bool { return c.IsConnected() }, 2*time.Second, 10*time.Millisecond)

	buf := make([]byte, wire.HeaderSize+5+wire.ChecksumSize)
	n, err := wire.Serialize(buf, "CHAT", []byte("howdy"), nil)
	require.NoError(t, err)
	_, err = srvConn.Write(buf[:n])
	require.NoError(t, err)

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("callback was never invoked")
	}
	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, "CHAT", gotTarget)
	require.Equal(t, []byte("howdy"), gotBody)
}

func TestSendBeforeConnectReturnsNotConnected(t *testing.T) {
	c := New()
	_, err := c.Send("CHAT", []byte("x"))
	require.ErrorIs(t, err, ErrNotConnected)
}

func TestDisconnectIsIdempotent(t *testing.T) {
	c := New()
	c.Disconnect()
	c.Disconnect() // must not panic or block
}

func TestBadHandshakeKeepsDisconnected(t *testing.T) {
	ln, err := net.Listen("tcp", ":0")
	require.NoError(t, err)
	defer ln.Close()

	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		_, _ = conn.Write([]byte("not a frame"))
	}()

	c := New(WithHandshakeTimeout(200 * time.Millisecond))
	c.Connect(ln.Addr().String())
	defer c.Destroy()

	time.Sleep(300 * time.Millisecond)
	require.False(t, c.IsConnected())
}
