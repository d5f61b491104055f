package image

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sigurn/crc16"
)

// crcTable is the CRC-16/CCITT-FALSE table used for image fingerprints.
var crcTable = crc16.MakeTable(crc16.CRC16_CCITT_FALSE)

// Image is a contiguous run of flash content starting at Start. Raw binary
// files decode to an Image with Start zero; hex files carry their own base
// address.
type Image struct {
	Start uint32
	Data  []byte
}

// New returns an Image over a private copy of data.
func New(start uint32, data []byte) *Image {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &Image{Start: start, Data: buf}
}

// Len returns the image length in bytes.
func (img *Image) Len() int { return len(img.Data) }

// End returns the first address past the image.
func (img *Image) End() uint32 { return img.Start + uint32(len(img.Data)) }

// CRC16 returns the CRC-16/CCITT-FALSE fingerprint of the image content.
func (img *Image) CRC16() uint16 {
	return crc16.Checksum(img.Data, crcTable)
}

func (img *Image) String() string {
	return fmt.Sprintf("%d bytes at 0x%X (crc16 %04X)", len(img.Data), img.Start, img.CRC16())
}

// hexExtensions are the file suffixes treated as Intel HEX by Load and Save.
var hexExtensions = map[string]bool{
	".hex":  true,
	".ihx":  true,
	".ihex": true,
}

func isHexPath(path string) bool {
	return hexExtensions[strings.ToLower(filepath.Ext(path))]
}

// Load reads path as Intel HEX if its extension says so, raw binary
// otherwise.
func Load(path string) (*Image, error) {
	if isHexPath(path) {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("open image: %w", err)
		}
		defer func() { _ = f.Close() }()
		return DecodeHex(f)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read image: %w", err)
	}
	return &Image{Data: data}, nil
}

// Save writes the image to path, as Intel HEX if the extension says so, raw
// binary otherwise.
func (img *Image) Save(path string) error {
	if isHexPath(path) {
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create image: %w", err)
		}
		if err := EncodeHex(f, img, DefaultRecordLen); err != nil {
			_ = f.Close()
			return err
		}
		return f.Close()
	}
	return os.WriteFile(path, img.Data, 0644)
}
