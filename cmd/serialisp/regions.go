package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/moffa90/go-serialisp/bootloader"
)

// errBadRegionArg marks region arguments that could not be parsed or sized,
// so they exit with the invalid-arguments code rather than as a transfer
// failure.
var errBadRegionArg = errors.New("invalid region argument")

// partitions maps the conventional ESP32 partition names onto flash regions,
// so users can say "app" instead of 0x10000:0x100000.
var partitions = map[string]bootloader.Region{
	"bootloader":      {Start: 0x1000, Length: 0x6000},
	"partition-table": {Start: 0x8000, Length: 0x1000},
	"nvs":             {Start: 0x9000, Length: 0x6000},
	"otadata":         {Start: 0xd000, Length: 0x2000},
	"app":             {Start: 0x10000, Length: 0x100000},
	"spiffs":          {Start: 0x180000, Length: 0x200000},
}

// parseRegion turns a region argument into a Region. Accepted forms:
//
//	0x1000:0x100   start and length
//	0x1000         start only; the caller fills the length in
//	app            an ESP partition name
//	all            the whole flash; length resolved from the device
//
// A zero Length means the caller must resolve it (image length for writes,
// device flash size for "all").
func parseRegion(arg string) (bootloader.Region, error) {
	if r, ok := partitions[arg]; ok {
		return r, nil
	}
	if arg == "all" {
		return bootloader.Region{}, nil
	}

	parts := strings.SplitN(arg, ":", 2)
	start, err := parseNum(parts[0])
	if err != nil {
		return bootloader.Region{}, fmt.Errorf("%w: bad start %q: %v", errBadRegionArg, parts[0], err)
	}
	r := bootloader.Region{Start: start}
	if len(parts) == 2 {
		length, err := parseNum(parts[1])
		if err != nil {
			return bootloader.Region{}, fmt.Errorf("%w: bad length %q: %v", errBadRegionArg, parts[1], err)
		}
		r.Length = length
	}
	return r, nil
}

func parseNum(s string) (uint32, error) {
	n, err := strconv.ParseUint(s, 0, 32)
	if err != nil {
		return 0, err
	}
	return uint32(n), nil
}

// resolveLength fills a zero region length from the device flash size.
func resolveLength(r bootloader.Region, dev *bootloader.Device) (bootloader.Region, error) {
	if r.Length > 0 {
		return r, nil
	}
	if dev == nil || dev.FlashSize == 0 {
		return r, fmt.Errorf("%w: cannot size region, device flash size unknown", errBadRegionArg)
	}
	if r.Start >= dev.FlashSize {
		return r, fmt.Errorf("%w: start 0x%X is past end of flash", errBadRegionArg, r.Start)
	}
	r.Length = dev.FlashSize - r.Start
	return r, nil
}
