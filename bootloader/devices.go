package bootloader

import "fmt"

// Device families.
const (
	FamilyESP = "esp"
	FamilyAVR = "avr"
)

// Device describes one known target chip.
type Device struct {
	// Name is the human-readable chip name
	Name string

	// Family selects the wire protocol: FamilyESP or FamilyAVR
	Family string

	// Signature is the identification value read during the handshake. For
	// Espressif parts it is the chip-detect magic; for AVRs the three
	// signature bytes packed big-endian.
	Signature uint32

	// FlashSize is the flash capacity in bytes. Zero means unknown, which
	// disables region bounds checking.
	FlashSize uint32

	// PageSize caps the transfer chunk size where the protocol writes whole
	// pages. Zero means no page constraint.
	PageSize uint32
}

func (d *Device) String() string {
	return fmt.Sprintf("%s (signature 0x%08X)", d.Name, d.Signature)
}

// knownDevices is the identification table consulted after the handshake
// reads the target signature.
var knownDevices = []Device{
	{Name: "ESP8266", Family: FamilyESP, Signature: 0xFFF0C101, FlashSize: 4 * 1024 * 1024},
	{Name: "ESP32", Family: FamilyESP, Signature: 0x00F01D83, FlashSize: 4 * 1024 * 1024},
	{Name: "ESP32-S2", Family: FamilyESP, Signature: 0x000007C6, FlashSize: 4 * 1024 * 1024},
	{Name: "ESP32-C3", Family: FamilyESP, Signature: 0x6921506F, FlashSize: 4 * 1024 * 1024},

	{Name: "ATmega168", Family: FamilyAVR, Signature: 0x1E9406, FlashSize: 16 * 1024, PageSize: 128},
	{Name: "ATmega328P", Family: FamilyAVR, Signature: 0x1E950F, FlashSize: 32 * 1024, PageSize: 128},
	{Name: "ATmega32U4", Family: FamilyAVR, Signature: 0x1E9587, FlashSize: 32 * 1024, PageSize: 128},
	{Name: "ATmega2560", Family: FamilyAVR, Signature: 0x1E9801, FlashSize: 256 * 1024, PageSize: 256},
}

// LookupDevice finds the known device for a family and signature.
func LookupDevice(family string, signature uint32) (*Device, bool) {
	for i := range knownDevices {
		d := &knownDevices[i]
		if d.Family == family && d.Signature == signature {
			dev := *d
			return &dev, true
		}
	}
	return nil, false
}

// KnownDevices returns a copy of the identification table.
func KnownDevices() []Device {
	out := make([]Device, len(knownDevices))
	copy(out, knownDevices)
	return out
}

// Region is a contiguous span of flash addresses.
type Region struct {
	Start  uint32
	Length uint32
}

// End returns the first address past the region.
func (r Region) End() uint32 { return r.Start + r.Length }

func (r Region) String() string {
	return fmt.Sprintf("0x%X+0x%X", r.Start, r.Length)
}
