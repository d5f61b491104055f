// Package image represents flash content and converts it between raw binary
// and Intel HEX text.
//
// # Intel HEX
//
// Each line is one record:
//
//	:LLAAAATT[DD...]CC
//
// with LL the data length, AAAA the 16-bit address, TT the record type, DD
// the data and CC a two's-complement checksum over every preceding byte.
// Supported record types are 00 (data), 01 (end of file), 02 (extended
// segment address) and 04 (extended linear address); start-address records
// (03, 05) are ignored. Anything else fails the decode.
//
// Records may arrive out of address order; DecodeHex merges them by address.
// Overlapping records are an error. Gaps between records are filled with
// 0xFF, the erased-flash value, so the resulting Image is always contiguous.
//
// # Usage
//
//	img, err := image.Load("app.hex")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	fmt.Printf("%d bytes at 0x%X, crc16 %04X\n", img.Len(), img.Start, img.CRC16())
//
// A decode failure never yields a partial Image: a single bad checksum fails
// the whole file with a *ChecksumError naming the line.
package image
