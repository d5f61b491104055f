// Package protocol implements the wire formats spoken by the supported
// serial bootloaders.
//
// Two families are covered:
//
//   - The Espressif ROM/stub loader: binary commands carried in SLIP frames
//     (0xC0 delimited, 0xDB escaped), with an XOR data checksum seeded 0xEF.
//   - The STK500v1 protocol used by AVR "arduino" bootloaders: short byte
//     commands terminated by CRC_EOP, answered by an INSYNC/OK envelope.
//
// The package is purely encode/decode: it builds request frames, validates
// and parses response frames, and reports malformed input via
// ErrFrameCorrupt and ErrFrameTruncated. It performs no retries and holds no
// session state; that logic lives in the bootloader package.
//
// # ESP frame structure
//
//	Request:  [0x00][OP][LEN16][CHECKSUM32][DATA...]        (then SLIP encoded)
//	Response: [0x01][OP][LEN16][VALUE32][DATA...][ST][ERR]  (after SLIP decode)
//
// All multi-byte fields are little-endian. A non-zero status byte is
// reported as a *StatusError carrying the loader's error code.
//
// # STK500v1 structure
//
//	Request:  [OP][ARGS...][0x20]
//	Response: [0x14][PAYLOAD...][0x10]
//
// A response that does not open with INSYNC (0x14) or close with OK (0x10)
// is corrupt; fewer bytes than expected before the read timeout is a
// truncated frame.
package protocol
