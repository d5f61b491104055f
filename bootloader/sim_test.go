package bootloader

import (
	"bytes"
	"crypto/md5"
	"encoding/binary"
	"time"

	"github.com/moffa90/go-serialisp/protocol"
)

// espSim is a simulated Espressif target implementing transport.Conn. It
// parses the SLIP frames the host writes and queues the bytes a real loader
// would send back. Fault injection knobs let tests exercise the retry and
// failure paths.
type espSim struct {
	flash []byte
	magic uint32

	in  bytes.Buffer // bytes written by the host, pending parse
	out bytes.Buffer // bytes queued for the host to read

	// loader state
	synced    bool
	writeBase uint32
	blockSize uint32

	// line state
	lineBaud      int
	requestedBaud uint32
	rts           bool
	resets        int

	// fault injection
	deaf              bool // ignore everything
	deafAfterBaud     bool // go deaf once CHANGE_BAUDRATE is acknowledged
	corruptDataFrames int  // serve this many corrupted READ_FLASH data frames
	garbageWriteAcks  int  // answer this many FLASH_DATA commands with garbage
	eraseHangs        bool // never acknowledge ERASE_REGION
	sabotageAddr      int  // flip this flash byte after FLASH_END, -1 for off

	// counters for assertions
	writeCount int
	readCount  int
	syncCount  int
}

func newESPSim() *espSim {
	return &espSim{
		flash:        make([]byte, 4*1024*1024),
		magic:        0x00F01D83, // ESP32
		lineBaud:     115200,
		sabotageAddr: -1,
	}
}

func (s *espSim) Read(p []byte) (int, error) {
	if s.out.Len() == 0 {
		return 0, nil // timeout, serial style
	}
	return s.out.Read(p)
}

func (s *espSim) Write(p []byte) (int, error) {
	s.in.Write(p)
	s.process()
	return len(p), nil
}

func (s *espSim) SetReadTimeout(time.Duration) error { return nil }

func (s *espSim) SetBaudRate(baud int) error {
	s.lineBaud = baud
	return nil
}

func (s *espSim) SetDTR(bool) error { return nil }

func (s *espSim) SetRTS(level bool) error {
	// Falling RTS releases reset; treat it as a fresh boot into the loader.
	if s.rts && !level {
		s.resets++
		s.in.Reset()
		s.out.Reset()
		s.synced = false
	}
	s.rts = level
	return nil
}

func (s *espSim) DiscardInput() error {
	s.out.Reset()
	return nil
}

func (s *espSim) Close() error { return nil }

// process extracts complete SLIP frames from the inbound buffer.
func (s *espSim) process() {
	for {
		raw := s.in.Bytes()
		start := bytes.IndexByte(raw, 0xC0)
		if start < 0 {
			s.in.Reset()
			return
		}
		rel := bytes.IndexByte(raw[start+1:], 0xC0)
		if rel < 0 {
			rest := append([]byte(nil), raw[start:]...)
			s.in.Reset()
			s.in.Write(rest)
			return
		}
		end := start + 1 + rel
		body := append([]byte(nil), raw[start+1:end]...)
		rest := append([]byte(nil), raw[end+1:]...)
		s.in.Reset()
		s.in.Write(rest)

		if len(body) > 0 && !s.deaf {
			s.handleFrame(body)
		}
	}
}

func (s *espSim) handleFrame(body []byte) {
	frame, err := protocol.SlipDecode(body)
	if err != nil {
		return
	}
	// Read-stream acks are bare 4-byte frames, not commands.
	if len(frame) < 8 || frame[0] != 0x00 {
		return
	}

	op := frame[1]
	size := int(binary.LittleEndian.Uint16(frame[2:4]))
	checksum := binary.LittleEndian.Uint32(frame[4:8])
	if len(frame)-8 < size {
		return
	}
	data := frame[8 : 8+size]

	switch op {
	case protocol.ESPSync:
		s.synced = true
		s.syncCount++
		// The ROM echoes the sync response several times.
		s.respond(op, 0)
		s.respond(op, 0)

	case protocol.ESPReadReg:
		addr := binary.LittleEndian.Uint32(data)
		if addr == protocol.ChipDetectRegister {
			s.respond(op, s.magic)
		} else {
			s.respond(op, 0)
		}

	case protocol.ESPFlashBegin:
		eraseSize := binary.LittleEndian.Uint32(data[0:4])
		s.blockSize = binary.LittleEndian.Uint32(data[8:12])
		s.writeBase = binary.LittleEndian.Uint32(data[12:16])
		for i := s.writeBase; i < s.writeBase+eraseSize && int(i) < len(s.flash); i++ {
			s.flash[i] = 0xFF
		}
		s.respond(op, 0)

	case protocol.ESPFlashData:
		if s.garbageWriteAcks > 0 {
			s.garbageWriteAcks--
			s.respondGarbage()
			return
		}
		dlen := binary.LittleEndian.Uint32(data[0:4])
		seq := binary.LittleEndian.Uint32(data[4:8])
		block := data[16 : 16+dlen]
		if protocol.ESPChecksum(block) != checksum {
			s.respondFailure(op, 0x08)
			return
		}
		addr := s.writeBase + seq*s.blockSize
		if int(addr)+len(block) <= len(s.flash) {
			copy(s.flash[addr:], block)
		}
		s.writeCount++
		s.respond(op, 0)

	case protocol.ESPFlashEnd:
		if s.sabotageAddr >= 0 {
			s.flash[s.sabotageAddr] ^= 0xFF
		}
		s.respond(op, 0)

	case protocol.ESPChangeBaud:
		s.requestedBaud = binary.LittleEndian.Uint32(data[0:4])
		s.respond(op, 0)
		if s.deafAfterBaud {
			s.deaf = true
		}

	case protocol.ESPEraseRegion:
		if s.eraseHangs {
			return
		}
		offset := binary.LittleEndian.Uint32(data[0:4])
		esize := binary.LittleEndian.Uint32(data[4:8])
		for i := offset; i < offset+esize && int(i) < len(s.flash); i++ {
			s.flash[i] = 0xFF
		}
		s.respond(op, 0)

	case protocol.ESPReadFlash:
		offset := binary.LittleEndian.Uint32(data[0:4])
		rsize := binary.LittleEndian.Uint32(data[4:8])
		s.readCount++
		s.respond(op, 0)

		chunk := append([]byte(nil), s.flash[offset:offset+rsize]...)
		digest := md5.Sum(chunk)
		if s.corruptDataFrames > 0 {
			s.corruptDataFrames--
			chunk[0] ^= 0xFF
		}
		s.out.Write(protocol.SlipEncode(chunk))
		s.out.Write(protocol.SlipEncode(digest[:]))
	}
}

// respond queues a well-formed success response.
func (s *espSim) respond(op byte, value uint32) {
	s.respondStatus(op, value, 0, 0)
}

// respondFailure queues a response carrying a loader error code.
func (s *espSim) respondFailure(op byte, code byte) {
	s.respondStatus(op, 0, 1, code)
}

func (s *espSim) respondStatus(op byte, value uint32, status, code byte) {
	frame := make([]byte, 10)
	frame[0] = 0x01
	frame[1] = op
	binary.LittleEndian.PutUint16(frame[2:4], 2)
	binary.LittleEndian.PutUint32(frame[4:8], value)
	frame[8] = status
	frame[9] = code
	s.out.Write(protocol.SlipEncode(frame))
}

// respondGarbage queues a frame too short to parse.
func (s *espSim) respondGarbage() {
	s.out.Write(protocol.SlipEncode([]byte{0xAA, 0x55}))
}

// avrSim is a simulated AVR optiboot target implementing transport.Conn.
// The driver issues exactly one command per Write call, so each Write is
// parsed as one STK500v1 request.
type avrSim struct {
	flash []byte
	sig   [3]byte

	out  bytes.Buffer
	addr uint32 // byte address set by LOAD_ADDRESS

	maxPageSeen int
	progCount   int
}

func newAVRSim() *avrSim {
	return &avrSim{
		flash: bytes.Repeat([]byte{0xFF}, 32*1024),
		sig:   [3]byte{0x1E, 0x95, 0x0F}, // ATmega328P
	}
}

func (s *avrSim) Read(p []byte) (int, error) {
	if s.out.Len() == 0 {
		return 0, nil
	}
	return s.out.Read(p)
}

func (s *avrSim) Write(p []byte) (int, error) {
	s.handleCommand(p)
	return len(p), nil
}

func (s *avrSim) SetReadTimeout(time.Duration) error { return nil }
func (s *avrSim) SetBaudRate(int) error              { return nil }
func (s *avrSim) SetDTR(bool) error                  { return nil }
func (s *avrSim) SetRTS(bool) error                  { return nil }
func (s *avrSim) Close() error                       { return nil }

func (s *avrSim) DiscardInput() error {
	s.out.Reset()
	return nil
}

func (s *avrSim) handleCommand(cmd []byte) {
	if len(cmd) < 2 || cmd[len(cmd)-1] != protocol.STKCRCEOP {
		s.out.Write([]byte{protocol.STKNoSync, protocol.STKOK})
		return
	}

	switch cmd[0] {
	case protocol.STKGetSync:
		s.out.Write([]byte{protocol.STKInSync, protocol.STKOK})

	case protocol.STKReadSign:
		s.out.Write([]byte{protocol.STKInSync, s.sig[0], s.sig[1], s.sig[2], protocol.STKOK})

	case protocol.STKLoadAddress:
		word := uint16(cmd[1]) | uint16(cmd[2])<<8
		s.addr = uint32(word) * 2
		s.out.Write([]byte{protocol.STKInSync, protocol.STKOK})

	case protocol.STKProgPage:
		n := int(cmd[1])<<8 | int(cmd[2])
		data := cmd[4 : 4+n]
		if n > s.maxPageSeen {
			s.maxPageSeen = n
		}
		if int(s.addr)+n <= len(s.flash) {
			copy(s.flash[s.addr:], data)
		}
		s.progCount++
		s.out.Write([]byte{protocol.STKInSync, protocol.STKOK})

	case protocol.STKReadPage:
		n := int(cmd[1])<<8 | int(cmd[2])
		s.out.WriteByte(protocol.STKInSync)
		s.out.Write(s.flash[s.addr : s.addr+uint32(n)])
		s.out.WriteByte(protocol.STKOK)

	default:
		s.out.Write([]byte{protocol.STKNoSync, protocol.STKOK})
	}
}
