package protocol

import (
	"encoding/binary"
	"fmt"
)

// Espressif loader command opcodes.
const (
	ESPFlashBegin = 0x02
	ESPFlashData  = 0x03
	ESPFlashEnd   = 0x04
	ESPSync       = 0x08
	ESPReadReg    = 0x0A
	ESPChangeBaud = 0x0F

	// Stub loader commands.
	ESPEraseRegion = 0xD1
	ESPReadFlash   = 0xD2
)

// Direction bytes for the ESP frame envelope.
const (
	espDirRequest  = 0x00
	espDirResponse = 0x01
)

// Geometry of the SPI flash behind an Espressif part.
const (
	ESPFlashSectorSize = 0x1000
	ESPFlashBlockSize  = 0x400
)

// ChipDetectRegister holds a per-family magic value readable before the chip
// is otherwise identified.
const ChipDetectRegister = 0x40001000

// ESPMaxFrame bounds how large a single response frame may grow while being
// read; it covers a full flash sector plus envelope.
const ESPMaxFrame = ESPFlashSectorSize + 16

// ESPChecksum computes the loader's data checksum: XOR over data, seeded
// with 0xEF. Only data-bearing commands (FLASH_DATA) carry it; other
// commands send zero.
func ESPChecksum(data []byte) uint32 {
	sum := byte(0xEF)
	for _, b := range data {
		sum ^= b
	}
	return uint32(sum)
}

// ESPRequest serializes one command into the pre-SLIP envelope:
//
//	[0x00][OP][LEN16][CHECKSUM32][DATA...]
func ESPRequest(op byte, data []byte, checksum uint32) []byte {
	frame := make([]byte, 8+len(data))
	frame[0] = espDirRequest
	frame[1] = op
	binary.LittleEndian.PutUint16(frame[2:4], uint16(len(data)))
	binary.LittleEndian.PutUint32(frame[4:8], checksum)
	copy(frame[8:], data)
	return frame
}

// ESPResponse is a decoded loader response.
type ESPResponse struct {
	Op    byte
	Value uint32
	Data  []byte

	// Status and Code are the trailing two bytes of the payload: Status is
	// non-zero on failure and Code identifies the loader error.
	Status byte
	Code   byte
}

// Err converts a failure status into a *StatusError named after op, or
// returns nil for a successful response.
func (r *ESPResponse) Err(op string) error {
	if r.Status == 0 {
		return nil
	}
	return &StatusError{Op: op, Code: r.Code}
}

// ParseESPResponse validates and decodes a SLIP-decoded response frame.
func ParseESPResponse(frame []byte) (*ESPResponse, error) {
	if len(frame) < 10 {
		return nil, fmt.Errorf("%w: ESP response of %d bytes", ErrFrameTruncated, len(frame))
	}
	if frame[0] != espDirResponse {
		return nil, fmt.Errorf("%w: direction byte 0x%02X", ErrFrameCorrupt, frame[0])
	}

	size := int(binary.LittleEndian.Uint16(frame[2:4]))
	if len(frame)-8 < size {
		return nil, fmt.Errorf("%w: declared %d payload bytes, got %d", ErrFrameTruncated, size, len(frame)-8)
	}
	if size < 2 {
		return nil, fmt.Errorf("%w: payload too short for status", ErrFrameCorrupt)
	}

	resp := &ESPResponse{
		Op:     frame[1],
		Value:  binary.LittleEndian.Uint32(frame[4:8]),
		Data:   frame[8 : 8+size-2],
		Status: frame[8+size-2],
		Code:   frame[8+size-1],
	}
	return resp, nil
}

// ESPSyncData is the SYNC command payload: a fixed preamble followed by
// 32 bytes of 0x55 for the autobaud detector.
func ESPSyncData() []byte {
	data := make([]byte, 36)
	data[0] = 0x07
	data[1] = 0x07
	data[2] = 0x12
	data[3] = 0x20
	for i := 4; i < len(data); i++ {
		data[i] = 0x55
	}
	return data
}

// ESPReadRegData is the READ_REG payload for a register address.
func ESPReadRegData(addr uint32) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, addr)
	return data
}

// ESPFlashBeginData announces a write: the erase size, the number of data
// blocks that will follow, their block size, and the flash offset.
func ESPFlashBeginData(eraseSize, numBlocks, blockSize, offset uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], eraseSize)
	binary.LittleEndian.PutUint32(data[4:8], numBlocks)
	binary.LittleEndian.PutUint32(data[8:12], blockSize)
	binary.LittleEndian.PutUint32(data[12:16], offset)
	return data
}

// ESPFlashDataPayload wraps one block for FLASH_DATA: a 16-byte header of
// {len, seq, 0, 0} followed by the block bytes.
func ESPFlashDataPayload(seq uint32, block []byte) []byte {
	payload := make([]byte, 16+len(block))
	binary.LittleEndian.PutUint32(payload[0:4], uint32(len(block)))
	binary.LittleEndian.PutUint32(payload[4:8], seq)
	copy(payload[16:], block)
	return payload
}

// ESPFlashEndData finishes a write. stay keeps the chip in the loader
// instead of rebooting into the application.
func ESPFlashEndData(stay bool) []byte {
	data := make([]byte, 4)
	if stay {
		binary.LittleEndian.PutUint32(data, 1)
	}
	return data
}

// ESPChangeBaudData requests a new line speed. oldBaud is zero when talking
// to the ROM loader and the current rate when a stub is running.
func ESPChangeBaudData(newBaud, oldBaud uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], newBaud)
	binary.LittleEndian.PutUint32(data[4:8], oldBaud)
	return data
}

// ESPEraseRegionData erases a region. Offset and size must be sector
// aligned; SectorAlign rounds a length up.
func ESPEraseRegionData(offset, size uint32) []byte {
	data := make([]byte, 8)
	binary.LittleEndian.PutUint32(data[0:4], offset)
	binary.LittleEndian.PutUint32(data[4:8], size)
	return data
}

// ESPReadFlashData asks the stub to stream size bytes from offset in blocks
// of blockSize, with at most inflight unacknowledged blocks.
func ESPReadFlashData(offset, size, blockSize, inflight uint32) []byte {
	data := make([]byte, 16)
	binary.LittleEndian.PutUint32(data[0:4], offset)
	binary.LittleEndian.PutUint32(data[4:8], size)
	binary.LittleEndian.PutUint32(data[8:12], blockSize)
	binary.LittleEndian.PutUint32(data[12:16], inflight)
	return data
}

// ESPReadAck acknowledges received read-stream bytes back to the stub.
func ESPReadAck(received uint32) []byte {
	data := make([]byte, 4)
	binary.LittleEndian.PutUint32(data, received)
	return data
}

// SectorAlign rounds n up to the flash sector boundary.
func SectorAlign(n uint32) uint32 {
	return (n + ESPFlashSectorSize - 1) / ESPFlashSectorSize * ESPFlashSectorSize
}
