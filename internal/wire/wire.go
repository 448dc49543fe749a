// Package wire implements the framed wire format shared by the server and
// client halves of the transport: a big-endian length prefix, an 8-byte
// target tag, an opaque body, and a one-byte additive checksum.
package wire

import (
	"encoding/binary"
	"errors"
)

const (
	// HeaderSize is the number of bytes before the body: 4-byte length + 8-byte target.
	HeaderSize = 12
	// TargetSize is the fixed width of the target tag field.
	TargetSize = 8
	// ChecksumSize is the trailing checksum byte.
	ChecksumSize = 1
	// DefaultBufSize is the default read buffer size and the largest frame the
	// client accepts. The server's inbound limit is set separately
	// (chatserver.WithMaxFrameSize, 64 KiB by default) and is not bounded by it.
	DefaultBufSize = 4096

	// MinFrameSize is the smallest legal total_len: header + checksum, no body.
	MinFrameSize = HeaderSize + ChecksumSize
)

// ErrNilBuffer is returned when a required buffer argument is missing.
var ErrNilBuffer = errors.New("wire: nil buffer")

// ErrFrameTooLarge is returned by Serialize when the encoded frame would not
// fit in the caller's output buffer.
var ErrFrameTooLarge = errors.New("wire: frame exceeds buffer capacity")

// Strategy transforms a contiguous byte region in place. Used for both the
// encrypt and decrypt directions; a cipher that is its own inverse (like XOR)
// can use the same Strategy for both.
type Strategy func(body []byte)

// ParseResult classifies the outcome of Parse.
type ParseResult int

const (
	// Success indicates the frame parsed and its checksum verified.
	Success ParseResult = iota
	// TooShort indicates fewer than MinFrameSize bytes were supplied.
	TooShort
	// LengthMismatch indicates the encoded total_len did not match the supplied length.
	LengthMismatch
	// ChecksumFail indicates the trailing checksum byte did not match the computed sum.
	ChecksumFail
	// NullArgs indicates a required argument was missing.
	NullArgs
)

func (r ParseResult) String() string {
	switch r {
	case Success:
		return "Success"
	case TooShort:
		return "TooShort"
	case LengthMismatch:
		return "LengthMismatch"
	case ChecksumFail:
		return "ChecksumFail"
	case NullArgs:
		return "NullArgs"
	default:
		return "Unknown"
	}
}

// checksum sums bytes[0:n] mod 256.
func checksum(b []byte) byte {
	var sum byte
	for _, c := range b {
		sum += c
	}
	return sum
}

// Serialize writes a complete frame for target/body into out, returning the
// total number of bytes written. out must have capacity for
// HeaderSize+len(body)+ChecksumSize bytes or ErrFrameTooLarge is returned.
// If encrypt is non-nil it is applied in place to the body region only,
// after the body is copied and before the checksum is computed — the
// checksum therefore covers the ciphertext, matching what Parse observes on
// the wire.
func Serialize(out []byte, target string, body []byte, encrypt Strategy) (int, error) {
	total := HeaderSize + len(body) + ChecksumSize
	if out == nil {
		return 0, ErrNilBuffer
	}
	if total > len(out) {
		return 0, ErrFrameTooLarge
	}
	binary.BigEndian.PutUint32(out[0:4], uint32(total))
	var tgt [TargetSize]byte
	copy(tgt[:], target)
	copy(out[4:4+TargetSize], tgt[:])
	copy(out[HeaderSize:HeaderSize+len(body)], body)
	bodyRegion := out[HeaderSize : HeaderSize+len(body)]
	if encrypt != nil {
		encrypt(bodyRegion)
	}
	out[HeaderSize+len(body)] = checksum(out[:HeaderSize+len(body)])
	return total, nil
}

// Frame is the parsed, read-only view Parse hands back. Target and Body
// alias the caller's input buffer and are valid only until that buffer is
// reused or released.
type Frame struct {
	Target [TargetSize]byte
	Body   []byte
}

// Parse validates and decodes a single frame occupying the whole of in.
// On Success, Body aliases in and — if decrypt is non-nil — has already been
// decrypted in place.
func Parse(in []byte, decrypt Strategy) (Frame, ParseResult) {
	if in == nil {
		return Frame{}, NullArgs
	}
	if len(in) < MinFrameSize {
		return Frame{}, TooShort
	}
	total := int(binary.BigEndian.Uint32(in[0:4]))
	if total != len(in) {
		return Frame{}, LengthMismatch
	}
	bodyLen := total - HeaderSize - ChecksumSize
	want := checksum(in[:HeaderSize+bodyLen])
	got := in[HeaderSize+bodyLen]
	if want != got {
		return Frame{}, ChecksumFail
	}
	var fr Frame
	copy(fr.Target[:], in[4:4+TargetSize])
	fr.Body = in[HeaderSize : HeaderSize+bodyLen]
	if decrypt != nil && bodyLen > 0 {
		decrypt(fr.Body)
	}
	return fr, Success
}

// TargetString returns target trimmed of trailing NUL padding, for display.
func TargetString(target [TargetSize]byte) string {
	n := TargetSize
	for n > 0 && target[n-1] == 0 {
		n--
	}
	return string(target[:n])
}
