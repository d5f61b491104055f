package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-serialisp/protocol"
	"github.com/moffa90/go-serialisp/transport"
)

// avrDefaultPageSize is assumed until the device table refines it after
// identification.
const avrDefaultPageSize = 128

// AVRDriver speaks STK500v1 against AVR serial bootloaders of the optiboot
// lineage.
type AVRDriver struct {
	conn     transport.Conn
	pageSize int
}

// NewAVRDriver returns a driver for AVR targets on conn.
func NewAVRDriver(conn transport.Conn) *AVRDriver {
	return &AVRDriver{conn: conn, pageSize: avrDefaultPageSize}
}

// Family returns FamilyAVR.
func (d *AVRDriver) Family() string { return FamilyAVR }

// Capabilities reports no baud negotiation, no standalone erase, and a
// page-size chunk cap. Optiboot erases each page as it programs it.
func (d *AVRDriver) Capabilities() Capabilities {
	return Capabilities{MaxChunk: d.pageSize}
}

// SetPageSize adjusts the page-size chunk cap once the device is known.
func (d *AVRDriver) SetPageSize(n int) {
	if n > 0 {
		d.pageSize = n
	}
}

// Reset pulses DTR and RTS to fire the auto-reset circuit, then waits for
// the bootloader's startup window.
func (d *AVRDriver) Reset() error {
	if err := d.conn.SetDTR(false); err != nil {
		return err
	}
	if err := d.conn.SetRTS(false); err != nil {
		return err
	}
	time.Sleep(50 * time.Millisecond)
	if err := d.conn.SetDTR(true); err != nil {
		return err
	}
	if err := d.conn.SetRTS(true); err != nil {
		return err
	}
	time.Sleep(250 * time.Millisecond)
	return d.conn.DiscardInput()
}

// roundTrip sends one command and reads its INSYNC/OK envelope plus
// payloadLen data bytes.
func (d *AVRDriver) roundTrip(ctx context.Context, name string, cmd []byte, payloadLen int) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if _, err := d.conn.Write(cmd); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	resp := make([]byte, payloadLen+2)
	if err := transport.ReadFull(d.conn, resp); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	payload, err := protocol.STKParseResponse(resp, payloadLen)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	return payload, nil
}

// Sync sends GET_SYNC and expects the empty INSYNC/OK envelope back.
func (d *AVRDriver) Sync(ctx context.Context) error {
	_, err := d.roundTrip(ctx, "GET_SYNC", protocol.STKCommand(protocol.STKGetSync), 0)
	return err
}

// Identify reads the three AVR signature bytes and packs them big-endian.
func (d *AVRDriver) Identify(ctx context.Context) (uint32, error) {
	sig, err := d.roundTrip(ctx, "READ_SIGN", protocol.STKCommand(protocol.STKReadSign), 3)
	if err != nil {
		return 0, err
	}
	return uint32(sig[0])<<16 | uint32(sig[1])<<8 | uint32(sig[2]), nil
}

// SetBaud is not part of STK500v1.
func (d *AVRDriver) SetBaud(ctx context.Context, baud int) error {
	return fmt.Errorf("stk500 baud change: %w", ErrNotSupported)
}

// loadAddress points the bootloader at a byte address. The wire carries word
// addresses, so the byte address must be even.
func (d *AVRDriver) loadAddress(ctx context.Context, addr uint32) error {
	if addr%2 != 0 {
		return fmt.Errorf("LOAD_ADDRESS: byte address 0x%X is not word aligned", addr)
	}
	_, err := d.roundTrip(ctx, "LOAD_ADDRESS", protocol.STKLoadAddressCmd(uint16(addr/2)), 0)
	return err
}

// BeginWrite is a no-op; STK500v1 has no write bracket.
func (d *AVRDriver) BeginWrite(ctx context.Context, region Region, chunkSize int) error {
	return nil
}

// WriteChunk programs one page: LOAD_ADDRESS then PROG_PAGE.
func (d *AVRDriver) WriteChunk(ctx context.Context, addr uint32, data []byte) error {
	if err := d.loadAddress(ctx, addr); err != nil {
		return err
	}
	_, err := d.roundTrip(ctx, "PROG_PAGE", protocol.STKProgPageCmd(data), 0)
	return err
}

// EndWrite is a no-op; STK500v1 has no write bracket.
func (d *AVRDriver) EndWrite(ctx context.Context) error {
	return nil
}

// ReadChunk reads one page: LOAD_ADDRESS then READ_PAGE.
func (d *AVRDriver) ReadChunk(ctx context.Context, addr uint32, buf []byte) error {
	if err := d.loadAddress(ctx, addr); err != nil {
		return err
	}
	payload, err := d.roundTrip(ctx, "READ_PAGE", protocol.STKReadPageCmd(len(buf)), len(buf))
	if err != nil {
		return err
	}
	copy(buf, payload)
	return nil
}

// Erase is not available; page erase happens inside PROG_PAGE.
func (d *AVRDriver) Erase(ctx context.Context, region Region) error {
	return fmt.Errorf("stk500 erase: %w", ErrNotSupported)
}
