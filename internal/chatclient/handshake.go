package chatclient

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/shimamura/chattransport/internal/cipher"
	"github.com/shimamura/chattransport/internal/wire"
)

const secArgTarget = "SEC_ARG"

// readHandshake blocks for the server's initial plaintext SEC_ARG frame and
// resolves it to a cipher pair via the registry. Ill-formed handshakes
// (bad target, wrong length, parse failure) return an error so the caller
// closes the socket and stays Disconnected.
func readHandshake(conn net.Conn, timeout time.Duration) (cipher.Pair, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return cipher.Pair{}, fmt.Errorf("%w: set deadline: %v", ErrHandshake, err)
	}
	defer conn.SetReadDeadline(time.Time{})

	hdr := make([]byte, wire.HeaderSize)
	if _, err := readFull(conn, hdr); err != nil {
		return cipher.Pair{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}
	total := binary.BigEndian.Uint32(hdr[:4])
	if int(total) < wire.MinFrameSize || int(total) > wire.DefaultBufSize {
		return cipher.Pair{}, fmt.Errorf("%w: bad length %d", ErrHandshake, total)
	}
	rest := make([]byte, int(total)-wire.HeaderSize)
	if _, err := readFull(conn, rest); err != nil {
		return cipher.Pair{}, fmt.Errorf("%w: %v", ErrHandshake, err)
	}

	full := append(hdr, rest...)
	fr, res := wire.Parse(full, nil)
	if res != wire.Success {
		return cipher.Pair{}, fmt.Errorf("%w: parse result %v", ErrHandshake, res)
	}
	if wire.TargetString(fr.Target) != secArgTarget {
		return cipher.Pair{}, fmt.Errorf("%w: unexpected target %q", ErrHandshake, wire.TargetString(fr.Target))
	}
	if len(fr.Body) != 4 {
		return cipher.Pair{}, fmt.Errorf("%w: body length %d, want 4", ErrHandshake, len(fr.Body))
	}
	code := int32(binary.LittleEndian.Uint32(fr.Body))
	return cipher.Lookup(code), nil
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
