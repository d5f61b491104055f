package bootloader

import (
	"bytes"
	"context"
	"crypto/md5"
	"fmt"
	"time"

	"github.com/moffa90/go-serialisp/protocol"
	"github.com/moffa90/go-serialisp/transport"
)

// espResponseScan bounds how many frames the command loop inspects while
// looking for the response matching its opcode. The ROM emits several sync
// echoes and the occasional debug frame.
const espResponseScan = 16

// ESPDriver speaks the Espressif serial loader protocol: SLIP-framed
// commands against the ROM loader or the flasher stub.
type ESPDriver struct {
	conn transport.Conn
	slip *protocol.SlipReader

	// seq counts FLASH_DATA blocks inside one BeginWrite/EndWrite bracket.
	seq uint32

	// blockSize is the chunk size announced by BeginWrite. WriteChunk pads
	// every block to it.
	blockSize int
}

// NewESPDriver returns a driver for Espressif targets on conn.
func NewESPDriver(conn transport.Conn) *ESPDriver {
	return &ESPDriver{
		conn: conn,
		slip: protocol.NewSlipReader(conn),
	}
}

// Family returns FamilyESP.
func (d *ESPDriver) Family() string { return FamilyESP }

// Capabilities reports baud negotiation, standalone erase, and a sector-size
// chunk cap.
func (d *ESPDriver) Capabilities() Capabilities {
	return Capabilities{
		SetBaud:  true,
		Erase:    true,
		MaxChunk: protocol.ESPFlashSectorSize,
	}
}

// Reset performs the classic auto-reset dance: pull the chip into reset with
// the boot strap pin held low, then release reset so it comes up in download
// mode.
func (d *ESPDriver) Reset() error {
	if err := d.conn.SetDTR(false); err != nil {
		return err
	}
	if err := d.conn.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(100 * time.Millisecond)
	if err := d.conn.SetDTR(true); err != nil {
		return err
	}
	if err := d.conn.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	if err := d.conn.SetDTR(false); err != nil {
		return err
	}
	return d.conn.DiscardInput()
}

// command sends one request and scans responses until the opcode matches,
// skipping stale frames left over from earlier commands.
func (d *ESPDriver) command(ctx context.Context, name string, op byte, data []byte, checksum uint32) (*protocol.ESPResponse, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	frame := protocol.ESPRequest(op, data, checksum)
	if _, err := d.conn.Write(protocol.SlipEncode(frame)); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	for i := 0; i < espResponseScan; i++ {
		raw, err := d.slip.ReadFrame(protocol.ESPMaxFrame)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		resp, err := protocol.ParseESPResponse(raw)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", name, err)
		}
		if resp.Op != op {
			continue
		}
		if err := resp.Err(name); err != nil {
			return nil, err
		}
		return resp, nil
	}
	return nil, fmt.Errorf("%s: %w: no matching response in %d frames", name, protocol.ErrFrameCorrupt, espResponseScan)
}

// Sync sends the SYNC probe and waits for its echo. A successful sync leaves
// extra echo frames queued; they are drained so the next command starts
// clean.
func (d *ESPDriver) Sync(ctx context.Context) error {
	if _, err := d.command(ctx, "SYNC", protocol.ESPSync, protocol.ESPSyncData(), 0); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	return d.conn.DiscardInput()
}

// Identify reads the chip-detect register, whose magic value distinguishes
// the Espressif families.
func (d *ESPDriver) Identify(ctx context.Context) (uint32, error) {
	resp, err := d.command(ctx, "READ_REG", protocol.ESPReadReg, protocol.ESPReadRegData(protocol.ChipDetectRegister), 0)
	if err != nil {
		return 0, err
	}
	return resp.Value, nil
}

// SetBaud asks the loader to switch line speed. The loader acknowledges at
// the old rate and switches immediately after; the caller reconfigures the
// port once this returns.
func (d *ESPDriver) SetBaud(ctx context.Context, baud int) error {
	_, err := d.command(ctx, "CHANGE_BAUDRATE", protocol.ESPChangeBaud, protocol.ESPChangeBaudData(uint32(baud), 0), 0)
	return err
}

// BeginWrite announces the write with FLASH_BEGIN. The loader erases the
// sector-aligned target region as part of this command.
func (d *ESPDriver) BeginWrite(ctx context.Context, region Region, chunkSize int) error {
	d.seq = 0
	d.blockSize = chunkSize

	numBlocks := (region.Length + uint32(chunkSize) - 1) / uint32(chunkSize)
	data := protocol.ESPFlashBeginData(
		protocol.SectorAlign(region.Length),
		numBlocks,
		uint32(chunkSize),
		region.Start,
	)
	_, err := d.command(ctx, "FLASH_BEGIN", protocol.ESPFlashBegin, data, 0)
	return err
}

// WriteChunk programs one block with FLASH_DATA. Blocks are padded to the
// announced block size with erased-flash bytes; the loader writes them at
// the next sequential offset, so addr is implicit in the sequence number.
func (d *ESPDriver) WriteChunk(ctx context.Context, addr uint32, data []byte) error {
	block := data
	if len(block) < d.blockSize {
		block = make([]byte, d.blockSize)
		copy(block, data)
		for i := len(data); i < len(block); i++ {
			block[i] = 0xFF
		}
	}

	payload := protocol.ESPFlashDataPayload(d.seq, block)
	_, err := d.command(ctx, "FLASH_DATA", protocol.ESPFlashData, payload, protocol.ESPChecksum(block))
	if err != nil {
		return err
	}
	d.seq++
	return nil
}

// EndWrite closes the write bracket, keeping the chip in the loader.
func (d *ESPDriver) EndWrite(ctx context.Context) error {
	_, err := d.command(ctx, "FLASH_END", protocol.ESPFlashEnd, protocol.ESPFlashEndData(true), 0)
	return err
}

// ReadChunk asks the stub for one block and verifies the MD5 digest it sends
// after the data. A digest mismatch is reported as frame corruption so the
// chunk retry path covers it.
func (d *ESPDriver) ReadChunk(ctx context.Context, addr uint32, buf []byte) error {
	size := uint32(len(buf))
	data := protocol.ESPReadFlashData(addr, size, size, 1)
	if _, err := d.command(ctx, "READ_FLASH", protocol.ESPReadFlash, data, 0); err != nil {
		return err
	}

	// The stub streams the block as a bare SLIP frame, then waits for an
	// ack of how much arrived, then sends the MD5 of everything streamed.
	block, err := d.slip.ReadFrame(protocol.ESPMaxFrame)
	if err != nil {
		return fmt.Errorf("READ_FLASH data: %w", err)
	}
	if len(block) != len(buf) {
		return fmt.Errorf("READ_FLASH data: %w: got %d bytes, want %d", protocol.ErrFrameCorrupt, len(block), len(buf))
	}

	if _, err := d.conn.Write(protocol.SlipEncode(protocol.ESPReadAck(size))); err != nil {
		return fmt.Errorf("READ_FLASH ack: %w", err)
	}

	digest, err := d.slip.ReadFrame(protocol.ESPMaxFrame)
	if err != nil {
		return fmt.Errorf("READ_FLASH digest: %w", err)
	}
	want := md5.Sum(block)
	if len(digest) != md5.Size || !bytes.Equal(digest, want[:]) {
		return fmt.Errorf("READ_FLASH digest: %w: MD5 mismatch", protocol.ErrFrameCorrupt)
	}

	copy(buf, block)
	return nil
}

// Erase erases the sector-aligned region with ERASE_REGION.
func (d *ESPDriver) Erase(ctx context.Context, region Region) error {
	data := protocol.ESPEraseRegionData(region.Start, protocol.SectorAlign(region.Length))
	_, err := d.command(ctx, "ERASE_REGION", protocol.ESPEraseRegion, data, 0)
	return err
}
