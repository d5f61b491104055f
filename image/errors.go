package image

import "fmt"

// MalformedRecordError reports a structurally invalid Intel HEX record.
type MalformedRecordError struct {
	// Line is the 1-based line number of the bad record.
	Line int

	// Reason describes what was wrong with it.
	Reason string
}

func (e *MalformedRecordError) Error() string {
	return fmt.Sprintf("line %d: malformed record: %s", e.Line, e.Reason)
}

// ChecksumError reports a record whose checksum byte does not match its
// contents.
type ChecksumError struct {
	Line     int
	Got      byte
	Expected byte
}

func (e *ChecksumError) Error() string {
	return fmt.Sprintf("line %d: record checksum 0x%02X, expected 0x%02X", e.Line, e.Got, e.Expected)
}
