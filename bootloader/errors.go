package bootloader

import (
	"errors"
	"fmt"
)

// ErrNotSupported is returned for operations the connected device family
// cannot perform, such as a standalone erase on an AVR bootloader.
var ErrNotSupported = errors.New("operation not supported by this device")

// ErrNotReady is returned when an operation is attempted on a session that
// has not completed its handshake, or whose handshake or a previous transfer
// failed.
var ErrNotReady = errors.New("session is not ready")

// SyncError reports that the target never answered the sync probe.
type SyncError struct {
	// Attempts is how many reset-and-probe cycles were tried.
	Attempts int

	// Err is the failure of the last attempt.
	Err error
}

func (e *SyncError) Error() string {
	return fmt.Sprintf("no sync after %d attempts: %v", e.Attempts, e.Err)
}

func (e *SyncError) Unwrap() error { return e.Err }

// UnknownDeviceError reports a signature that matches no known device.
type UnknownDeviceError struct {
	Family    string
	Signature uint32
}

func (e *UnknownDeviceError) Error() string {
	return fmt.Sprintf("unknown %s device with signature 0x%08X", e.Family, e.Signature)
}

// BaudNegotiationError reports a failed switch to the transfer baud rate.
// The line has already been reverted to the handshake rate when this is
// returned.
type BaudNegotiationError struct {
	From int
	To   int
	Err  error
}

func (e *BaudNegotiationError) Error() string {
	return fmt.Sprintf("baud negotiation %d -> %d failed: %v", e.From, e.To, e.Err)
}

func (e *BaudNegotiationError) Unwrap() error { return e.Err }

// RegionError reports a flash region that does not fit the connected device.
// It is returned before any device I/O happens.
type RegionError struct {
	Region    Region
	FlashSize uint32
	Reason    string
}

func (e *RegionError) Error() string {
	return fmt.Sprintf("region %s invalid for %d byte flash: %s", e.Region, e.FlashSize, e.Reason)
}

// SizeMismatchError reports an image whose length does not match the target
// region. It is returned before any device I/O happens.
type SizeMismatchError struct {
	ImageLen  int
	RegionLen uint32
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("image is %d bytes but target region is %d bytes", e.ImageLen, e.RegionLen)
}

// ReadError reports a chunk read that still failed after retries.
type ReadError struct {
	// Address is the flash address of the failing chunk.
	Address uint32
	Err     error
}

func (e *ReadError) Error() string {
	return fmt.Sprintf("read failed at 0x%X: %v", e.Address, e.Err)
}

func (e *ReadError) Unwrap() error { return e.Err }

// WriteError reports a chunk write that still failed after retries.
type WriteError struct {
	// Address is the flash address of the failing chunk.
	Address uint32
	Err     error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("write failed at 0x%X: %v", e.Address, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// VerifyMismatchError reports the first flash byte that read back different
// from what was written.
type VerifyMismatchError struct {
	Address uint32
	Got     byte
	Want    byte
}

func (e *VerifyMismatchError) Error() string {
	return fmt.Sprintf("verify mismatch at 0x%X: flash holds 0x%02X, wrote 0x%02X", e.Address, e.Got, e.Want)
}

// EraseTimeoutError reports an erase that did not acknowledge within the
// configured erase timeout.
type EraseTimeoutError struct {
	Region Region
	Err    error
}

func (e *EraseTimeoutError) Error() string {
	return fmt.Sprintf("erase of %s timed out: %v", e.Region, e.Err)
}

func (e *EraseTimeoutError) Unwrap() error { return e.Err }
