package protocol

import (
	"bytes"
	"fmt"
	"io"
)

// SLIP framing bytes (RFC 1055), as used by the Espressif loaders.
const (
	slipEnd    = 0xC0
	slipEsc    = 0xDB
	slipEscEnd = 0xDC
	slipEscEsc = 0xDD
)

// SlipEncode wraps payload in a SLIP frame: leading and trailing END bytes,
// with END and ESC occurrences in the payload escaped.
func SlipEncode(payload []byte) []byte {
	out := make([]byte, 0, len(payload)+2)
	out = append(out, slipEnd)
	for _, b := range payload {
		switch b {
		case slipEnd:
			out = append(out, slipEsc, slipEscEnd)
		case slipEsc:
			out = append(out, slipEsc, slipEscEsc)
		default:
			out = append(out, b)
		}
	}
	return append(out, slipEnd)
}

// SlipDecode unescapes the body of a single SLIP frame (delimiters already
// stripped). An ESC followed by anything other than ESC_END or ESC_ESC, or a
// trailing lone ESC, is ErrFrameCorrupt.
func SlipDecode(body []byte) ([]byte, error) {
	out := make([]byte, 0, len(body))
	for i := 0; i < len(body); i++ {
		b := body[i]
		if b != slipEsc {
			out = append(out, b)
			continue
		}
		i++
		if i >= len(body) {
			return nil, fmt.Errorf("%w: frame ends mid-escape", ErrFrameCorrupt)
		}
		switch body[i] {
		case slipEscEnd:
			out = append(out, slipEnd)
		case slipEscEsc:
			out = append(out, slipEsc)
		default:
			return nil, fmt.Errorf("%w: invalid SLIP escape 0x%02X", ErrFrameCorrupt, body[i])
		}
	}
	return out, nil
}

// SlipReader extracts SLIP frames from a byte stream. The underlying reader
// is expected to return a zero-byte read once its read timeout expires, the
// way a serial port does.
type SlipReader struct {
	r   io.Reader
	buf [1]byte
}

// NewSlipReader returns a SlipReader framing the stream r.
func NewSlipReader(r io.Reader) *SlipReader {
	return &SlipReader{r: r}
}

// ReadFrame reads the next complete SLIP frame and returns its decoded
// payload. Empty frames (back-to-back END bytes) are skipped. A stream that
// dries up, whether inside a frame or before any frame byte is seen, is
// reported as ErrFrameTruncated.
func (sr *SlipReader) ReadFrame(maxLen int) ([]byte, error) {
	// Scan for the opening delimiter, tolerating line noise before it.
	inFrame := false
	var body bytes.Buffer

	for {
		n, err := sr.r.Read(sr.buf[:])
		if err != nil {
			return nil, err
		}
		if n == 0 {
			if inFrame || body.Len() > 0 {
				return nil, fmt.Errorf("%w: stream ended inside SLIP frame", ErrFrameTruncated)
			}
			return nil, ErrFrameTruncated
		}

		b := sr.buf[0]
		switch {
		case b == slipEnd && !inFrame:
			inFrame = true
		case b == slipEnd && inFrame:
			if body.Len() == 0 {
				// Back-to-back END bytes delimit an empty frame; keep
				// scanning for real content.
				continue
			}
			return SlipDecode(body.Bytes())
		case inFrame:
			if body.Len() >= maxLen {
				return nil, fmt.Errorf("%w: frame exceeds %d bytes", ErrFrameCorrupt, maxLen)
			}
			body.WriteByte(b)
		default:
			// Noise before the frame opens; discard.
		}
	}
}
