// Package bootloader provides a high-level API for flashing microcontrollers
// over their factory serial bootloaders.
//
// # Overview
//
// This package orchestrates the complete flash transfer sequence:
//   - Resetting the target into its bootloader and syncing
//   - Identifying the chip from its signature
//   - Negotiating a faster transfer baud rate where supported
//   - Reading, writing and erasing flash regions with automatic chunking
//   - Verifying written data by reading it back
//
// Two device families are supported out of the box: Espressif parts speaking
// the SLIP-framed ROM/stub loader protocol (ESPDriver) and AVR parts speaking
// STK500v1 (AVRDriver).
//
// # Basic Usage
//
// The simplest way to flash a device:
//
//	port, err := transport.Open("/dev/ttyUSB0", 115200)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer port.Close()
//
//	img, err := image.Load("firmware.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//
//	sess := bootloader.New(port, bootloader.NewESPDriver(port))
//	if err := sess.Handshake(context.Background()); err != nil {
//	    log.Fatal(err)
//	}
//
//	region := bootloader.Region{Start: 0x10000, Length: uint32(img.Len())}
//	if err := sess.WriteFlash(context.Background(), region, img); err != nil {
//	    log.Fatal(err)
//	}
//
// # Progress Tracking
//
// Track transfer progress with a callback:
//
//	sess := bootloader.New(port, drv,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% at 0x%X\n", p.Phase, p.Percentage, p.Address)
//	    }),
//	)
//
// # Configuration Options
//
// Customize behavior with functional options:
//
//	sess := bootloader.New(port, drv,
//	    bootloader.WithLogger(myLogger),
//	    bootloader.WithTransferBaud(460800),
//	    bootloader.WithChunkSize(4096),
//	    bootloader.WithRetries(5),
//	    bootloader.WithVerify(true),
//	)
//
// # Session Lifecycle
//
// A Session moves through Disconnected, SyncAttempted, Synced, Identified
// and Ready; any failure parks it in the terminal Failed state, after which
// a fresh Session (and usually a fresh reset) is required. Handshake must
// succeed before any transfer runs.
//
// # Error Handling
//
// The package provides structured error types:
//   - SyncError: the target never answered the sync probe
//   - UnknownDeviceError: signature matches no known device
//   - BaudNegotiationError: transfer rate switch failed, line reverted
//   - RegionError: region does not fit the device flash
//   - SizeMismatchError: image length does not match the target region
//   - ReadError, WriteError: a chunk failed after all retries
//   - VerifyMismatchError: flash read back different from what was written
//   - EraseTimeoutError: erase did not acknowledge in time
//
// Transient chunk failures (corrupt frames, timeouts) are retried
// transparently up to the configured retry budget before any of these
// surface.
//
// # Hardware Independence
//
// Drivers talk through the transport.Conn interface rather than a concrete
// serial port, so tests and unusual transports can substitute their own
// implementation.
package bootloader
