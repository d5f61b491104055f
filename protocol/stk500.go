package protocol

import "fmt"

// STK500v1 opcodes and framing bytes, as spoken by AVR "arduino"
// bootloaders (optiboot and friends).
const (
	STKGetSync     = 0x30
	STKLoadAddress = 0x55
	STKProgPage    = 0x64
	STKReadPage    = 0x74
	STKReadSign    = 0x75

	STKCRCEOP = 0x20 // terminates every request
	STKInSync = 0x14 // opens every response
	STKOK     = 0x10 // closes every response
	STKNoSync = 0x15 // bootloader lost sync with the host
)

// STKMemtypeFlash selects flash for page program/read commands.
const STKMemtypeFlash = 'F'

// STKCommand builds a request: opcode, arguments, CRC_EOP terminator.
func STKCommand(op byte, args ...byte) []byte {
	frame := make([]byte, 0, len(args)+2)
	frame = append(frame, op)
	frame = append(frame, args...)
	return append(frame, STKCRCEOP)
}

// STKLoadAddressCmd builds a LOAD_ADDRESS request. The bootloader takes a
// little-endian word address, so addr must already be divided by two.
func STKLoadAddressCmd(wordAddr uint16) []byte {
	return STKCommand(STKLoadAddress, byte(wordAddr), byte(wordAddr>>8))
}

// STKProgPageCmd builds a PROG_PAGE request for one flash page. The length
// is big-endian, unlike the address.
func STKProgPageCmd(data []byte) []byte {
	args := make([]byte, 0, len(data)+3)
	args = append(args, byte(len(data)>>8), byte(len(data)), STKMemtypeFlash)
	args = append(args, data...)
	return STKCommand(STKProgPage, args...)
}

// STKReadPageCmd builds a READ_PAGE request for n flash bytes at the
// previously loaded address.
func STKReadPageCmd(n int) []byte {
	return STKCommand(STKReadPage, byte(n>>8), byte(n), STKMemtypeFlash)
}

// STKParseResponse validates the INSYNC/OK envelope around a response that
// carries payloadLen data bytes, returning the payload.
func STKParseResponse(frame []byte, payloadLen int) ([]byte, error) {
	want := payloadLen + 2
	if len(frame) < want {
		return nil, fmt.Errorf("%w: STK response of %d bytes, want %d", ErrFrameTruncated, len(frame), want)
	}
	if frame[0] == STKNoSync {
		return nil, fmt.Errorf("%w: bootloader reports NOSYNC", ErrFrameCorrupt)
	}
	if frame[0] != STKInSync {
		return nil, fmt.Errorf("%w: response opens with 0x%02X, want INSYNC", ErrFrameCorrupt, frame[0])
	}
	if frame[want-1] != STKOK {
		return nil, fmt.Errorf("%w: response closes with 0x%02X, want OK", ErrFrameCorrupt, frame[want-1])
	}
	return frame[1 : want-1], nil
}
