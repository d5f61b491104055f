package image

import (
	"bufio"
	"encoding/hex"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Intel HEX record types.
const (
	recData          = 0x00
	recEOF           = 0x01
	recExtSegment    = 0x02
	recStartSegment  = 0x03
	recExtLinear     = 0x04
	recStartLinear   = 0x05
)

// DefaultRecordLen is the data bytes per record EncodeHex emits unless told
// otherwise.
const DefaultRecordLen = 16

// MaxRecordLen caps the record size EncodeHex accepts.
const MaxRecordLen = 32

// GapFill is the value used for address gaps between records, matching
// erased NOR flash.
const GapFill = 0xFF

// segment is one data record's worth of bytes at an absolute address.
type segment struct {
	addr uint32
	data []byte
}

// DecodeHex parses Intel HEX text into an Image. Records may appear in any
// address order; overlaps and structural problems fail the whole decode with
// no partial result.
func DecodeHex(r io.Reader) (*Image, error) {
	scanner := bufio.NewScanner(r)

	var (
		segments []segment
		base     uint32
		line     int
		sawEOF   bool
	)

	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		rec, err := parseRecord(text, line)
		if err != nil {
			return nil, err
		}

		switch rec.typ {
		case recData:
			if len(rec.data) == 0 {
				continue
			}
			seg := segment{addr: base + uint32(rec.addr), data: rec.data}
			segments = append(segments, seg)
		case recEOF:
			if len(rec.data) != 0 {
				return nil, &MalformedRecordError{Line: line, Reason: "end-of-file record carries data"}
			}
			sawEOF = true
		case recExtSegment:
			if len(rec.data) != 2 {
				return nil, &MalformedRecordError{Line: line, Reason: "extended segment record needs 2 data bytes"}
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 4
		case recExtLinear:
			if len(rec.data) != 2 {
				return nil, &MalformedRecordError{Line: line, Reason: "extended linear record needs 2 data bytes"}
			}
			base = (uint32(rec.data[0])<<8 | uint32(rec.data[1])) << 16
		case recStartSegment, recStartLinear:
			// Entry-point records are meaningless for flash content.
		default:
			return nil, &MalformedRecordError{Line: line, Reason: fmt.Sprintf("unknown record type 0x%02X", rec.typ)}
		}

		if sawEOF {
			break
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read hex input: %w", err)
	}
	if !sawEOF {
		return nil, &MalformedRecordError{Line: line, Reason: "missing end-of-file record"}
	}
	if len(segments) == 0 {
		return nil, &MalformedRecordError{Line: line, Reason: "no data records"}
	}

	return assemble(segments)
}

// record is one parsed hex line.
type record struct {
	addr uint16
	typ  byte
	data []byte
}

func parseRecord(text string, line int) (*record, error) {
	if text[0] != ':' {
		return nil, &MalformedRecordError{Line: line, Reason: "record does not start with ':'"}
	}

	raw, err := hex.DecodeString(text[1:])
	if err != nil {
		return nil, &MalformedRecordError{Line: line, Reason: "invalid hex digits"}
	}

	// count(1) + addr(2) + type(1) + checksum(1)
	if len(raw) < 5 {
		return nil, &MalformedRecordError{Line: line, Reason: fmt.Sprintf("record of %d bytes, minimum is 5", len(raw))}
	}

	count := int(raw[0])
	if len(raw) != count+5 {
		return nil, &MalformedRecordError{
			Line:   line,
			Reason: fmt.Sprintf("declared %d data bytes, record carries %d", count, len(raw)-5),
		}
	}

	var sum byte
	for _, b := range raw[:len(raw)-1] {
		sum += b
	}
	want := ^sum + 1
	if got := raw[len(raw)-1]; got != want {
		return nil, &ChecksumError{Line: line, Got: got, Expected: want}
	}

	return &record{
		addr: uint16(raw[1])<<8 | uint16(raw[2]),
		typ:  raw[3],
		data: raw[4 : 4+count],
	}, nil
}

// assemble merges address-sorted segments into one contiguous buffer,
// filling gaps with GapFill.
func assemble(segments []segment) (*Image, error) {
	sort.SliceStable(segments, func(i, j int) bool {
		return segments[i].addr < segments[j].addr
	})

	start := segments[0].addr
	end := start
	for _, seg := range segments {
		if seg.addr < end {
			return nil, &MalformedRecordError{
				Line:   0,
				Reason: fmt.Sprintf("records overlap at address 0x%X", seg.addr),
			}
		}
		end = seg.addr + uint32(len(seg.data))
	}

	data := make([]byte, end-start)
	for i := range data {
		data[i] = GapFill
	}
	for _, seg := range segments {
		copy(data[seg.addr-start:], seg.data)
	}

	return &Image{Start: start, Data: data}, nil
}

// EncodeHex writes img as Intel HEX with recordLen data bytes per record,
// emitting extended linear address records at each 64 KiB boundary. The
// output always round-trips: DecodeHex(EncodeHex(img)) reproduces img.
func EncodeHex(w io.Writer, img *Image, recordLen int) error {
	if recordLen <= 0 {
		recordLen = DefaultRecordLen
	}
	if recordLen > MaxRecordLen {
		return fmt.Errorf("record length %d exceeds maximum %d", recordLen, MaxRecordLen)
	}

	bw := bufio.NewWriter(w)
	upper := uint32(0xFFFFFFFF) // force the first extended record when needed

	for off := 0; off < len(img.Data); {
		addr := img.Start + uint32(off)

		if hi := addr >> 16; hi != upper {
			if hi != 0 || upper != 0xFFFFFFFF {
				if err := writeRecord(bw, 0, recExtLinear, []byte{byte(hi >> 8), byte(hi)}); err != nil {
					return err
				}
			}
			upper = hi
		}

		n := recordLen
		if rem := len(img.Data) - off; rem < n {
			n = rem
		}
		// Keep a record inside its 64 KiB page so the address field cannot
		// wrap.
		if room := 0x10000 - int(addr&0xFFFF); n > room {
			n = room
		}

		if err := writeRecord(bw, uint16(addr), recData, img.Data[off:off+n]); err != nil {
			return err
		}
		off += n
	}

	if err := writeRecord(bw, 0, recEOF, nil); err != nil {
		return err
	}
	return bw.Flush()
}

func writeRecord(w *bufio.Writer, addr uint16, typ byte, data []byte) error {
	sum := byte(len(data)) + byte(addr>>8) + byte(addr) + typ
	for _, b := range data {
		sum += b
	}
	checksum := ^sum + 1

	_, err := fmt.Fprintf(w, ":%02X%04X%02X%s%02X\n",
		len(data), addr, typ, strings.ToUpper(hex.EncodeToString(data)), checksum)
	return err
}
