package wire

import (
	"bytes"
)

// largeBufferReclaimThreshold bounds idle buffer memory: once a drained
// accumulator's backing array grows past this size, replace it
// instead of letting it sit on a large-but-empty allocation forever.
const largeBufferReclaimThreshold = 64 * 1024

// Accumulator buffers bytes arriving from a stream (a TCP connection does
// not guarantee one Read equals one frame) and emits complete frames as they
// become available, carrying partial frames across calls. This replaces the
// reference implementation's "one recv = one frame" assumption, per the
// spec's length-prefixed-so-segmentation-is-deterministic requirement.
type Accumulator struct {
	buf     bytes.Buffer
	decrypt Strategy
}

// NewAccumulator returns an Accumulator that applies decrypt (if non-nil) to
// each frame's body in place as it is emitted.
func NewAccumulator(decrypt Strategy) *Accumulator {
	return &Accumulator{decrypt: decrypt}
}

// SetStrategy replaces the decrypt function applied to subsequently emitted frames.
func (a *Accumulator) SetStrategy(decrypt Strategy) { a.decrypt = decrypt }

// Feed appends newly read bytes and invokes onFrame for every complete frame
// now available, in order. A malformed length (too short header claim, or a
// total length outside [MinFrameSize, maxFrame]) advances one byte and
// retries; a checksum failure on an otherwise well-framed buffer is reported
// via onError and the frame is discarded (resync advances past it) so a
// single corrupt frame cannot wedge the stream.
func (a *Accumulator) Feed(data []byte, maxFrame int, onFrame func(Frame), onError func(ParseResult)) {
	a.buf.Write(data)
	for {
		raw := a.buf.Bytes()
		if len(raw) < 4 {
			return
		}
		total := int(beUint32(raw))
		if total < MinFrameSize || total > maxFrame {
			// Not a plausible length for this stream; resync by dropping one byte.
			if onError != nil {
				onError(LengthMismatch)
			}
			a.buf.Next(1)
			continue
		}
		if len(raw) < total {
			return // wait for more bytes
		}
		frameBytes := raw[:total]
		fr, res := Parse(frameBytes, a.decrypt)
		a.buf.Next(total)
		if res != Success {
			if onError != nil {
				onError(res)
			}
			continue
		}
		// Frame.Body currently aliases the consumed prefix of a.buf's backing
		// array, which Next() has just released for future writes to overwrite; copy it
		// out so the callback's view stays stable for its duration.
		body := make([]byte, len(fr.Body))
		copy(body, fr.Body)
		fr.Body = body
		onFrame(fr)
		if a.buf.Len() == 0 && cap(a.buf.Bytes()) > largeBufferReclaimThreshold {
			a.buf = bytes.Buffer{}
		}
	}
}

func beUint32(b []byte) uint32 {
	return uint32(b[0])<<24 | uint32(b[1])<<16 | uint32(b[2])<<8 | uint32(b[3])
}
