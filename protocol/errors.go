package protocol

import (
	"errors"
	"fmt"
)

// ErrFrameCorrupt indicates a frame that arrived complete but failed
// validation: bad SLIP escape, checksum mismatch, or a malformed envelope.
var ErrFrameCorrupt = errors.New("frame corrupt")

// ErrFrameTruncated indicates fewer bytes arrived before the read timeout
// than the frame declared.
var ErrFrameTruncated = errors.New("frame truncated")

// StatusError is a failure status reported by the target loader in an
// otherwise well-formed response.
type StatusError struct {
	// Op is the host-side name of the command that failed.
	Op string

	// Code is the error code from the loader.
	Code byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s failed: %s (0x%02X)", e.Op, statusName(e.Code), e.Code)
}

// statusName maps Espressif loader error codes to readable names.
func statusName(code byte) string {
	switch code {
	case 0x05:
		return "invalid message"
	case 0x06:
		return "failed to act"
	case 0x07:
		return "invalid CRC"
	case 0x08:
		return "flash write error"
	case 0x09:
		return "flash read error"
	case 0x0A:
		return "flash read length error"
	case 0x0B:
		return "deflate error"
	default:
		return "unknown error"
	}
}
