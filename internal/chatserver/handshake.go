package chatserver

import (
	"encoding/binary"
	"fmt"
	"net"
	"time"

	"github.com/shimamura/chattransport/internal/wire"
)

const secArgTarget = "SEC_ARG"

// sendHandshake writes the server's initial plaintext SEC_ARG frame,
// selecting the cipher strategy the client must use for the rest of the
// session. The handshake body is a 4-byte little-endian integer; the frame
// itself carries no cipher, so Serialize is called with no strategy.
func sendHandshake(conn net.Conn, timeout time.Duration, strategyCode int32) error {
	body := make([]byte, 4)
	binary.LittleEndian.PutUint32(body, uint32(strategyCode))

	buf := make([]byte, wire.HeaderSize+len(body)+wire.ChecksumSize)
	n, err := wire.Serialize(buf, secArgTarget, body, nil)
	if err != nil {
		return fmt.Errorf("encode handshake: %w", err)
	}
	if err := conn.SetWriteDeadline(time.Now().Add(timeout)); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}
	defer conn.SetWriteDeadline(time.Time{})
	if _, err := conn.Write(buf[:n]); err != nil {
		return fmt.Errorf("write handshake: %w", err)
	}
	return nil
}
