package bootloader

import (
	"context"
	"fmt"

	"github.com/moffa90/go-serialisp/transport"
)

// Capabilities describes what a device family's wire protocol can do.
type Capabilities struct {
	// SetBaud is true when the bootloader can renegotiate the line speed
	SetBaud bool

	// Erase is true when the bootloader supports standalone region erase
	Erase bool

	// MaxChunk caps the per-chunk payload size. Zero means no protocol cap.
	MaxChunk int
}

// Driver speaks one bootloader wire protocol over a transport.Conn. The
// Session drives it through the fixed sequence Reset, Sync, Identify, then
// transfer operations; drivers may assume that order.
type Driver interface {
	// Family returns the device family this driver speaks, FamilyESP or
	// FamilyAVR.
	Family() string

	// Capabilities reports what the protocol supports.
	Capabilities() Capabilities

	// Reset drives the modem control lines to restart the target into its
	// bootloader and discards stale input.
	Reset() error

	// Sync probes the bootloader once and confirms it answers.
	Sync(ctx context.Context) error

	// Identify reads the target's identification value.
	Identify(ctx context.Context) (uint32, error)

	// SetBaud asks the bootloader to switch to a new line speed. The caller
	// reconfigures the port afterwards. Families without baud negotiation
	// return ErrNotSupported.
	SetBaud(ctx context.Context, baud int) error

	// BeginWrite prepares the bootloader for a chunked write of region,
	// announcing the chunk size that WriteChunk will use.
	BeginWrite(ctx context.Context, region Region, chunkSize int) error

	// WriteChunk programs one chunk at addr. Chunks arrive in ascending
	// address order between BeginWrite and EndWrite.
	WriteChunk(ctx context.Context, addr uint32, data []byte) error

	// EndWrite finishes a chunked write, leaving the target in its
	// bootloader.
	EndWrite(ctx context.Context) error

	// ReadChunk fills buf with flash content starting at addr.
	ReadChunk(ctx context.Context, addr uint32, buf []byte) error

	// Erase erases a flash region. Families without standalone erase return
	// ErrNotSupported.
	Erase(ctx context.Context, region Region) error
}

// NewDriver returns the driver for a device family name.
func NewDriver(family string, conn transport.Conn) (Driver, error) {
	switch family {
	case FamilyESP:
		return NewESPDriver(conn), nil
	case FamilyAVR:
		return NewAVRDriver(conn), nil
	}
	return nil, fmt.Errorf("unknown device family %q", family)
}
