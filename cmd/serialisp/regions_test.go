package main

import (
	"testing"

	"github.com/moffa90/go-serialisp/bootloader"
)

func TestParseRegion(t *testing.T) {
	tests := []struct {
		arg     string
		want    bootloader.Region
		wantErr bool
	}{
		{arg: "0x1000:0x100", want: bootloader.Region{Start: 0x1000, Length: 0x100}},
		{arg: "4096:256", want: bootloader.Region{Start: 4096, Length: 256}},
		{arg: "0x10000", want: bootloader.Region{Start: 0x10000}},
		{arg: "app", want: bootloader.Region{Start: 0x10000, Length: 0x100000}},
		{arg: "bootloader", want: bootloader.Region{Start: 0x1000, Length: 0x6000}},
		{arg: "all", want: bootloader.Region{}},
		{arg: "0x1000:bogus", wantErr: true},
		{arg: "not-a-partition", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.arg, func(t *testing.T) {
			got, err := parseRegion(tt.arg)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("parseRegion(%q) succeeded, want error", tt.arg)
				}
				return
			}
			if err != nil {
				t.Fatalf("parseRegion(%q): %v", tt.arg, err)
			}
			if got != tt.want {
				t.Errorf("parseRegion(%q) = %s, want %s", tt.arg, got, tt.want)
			}
		})
	}
}

func TestResolveLength(t *testing.T) {
	dev := &bootloader.Device{FlashSize: 0x400000}

	r, err := resolveLength(bootloader.Region{}, dev)
	if err != nil {
		t.Fatalf("resolveLength: %v", err)
	}
	if r.Length != 0x400000 {
		t.Errorf("whole-flash length = 0x%X, want 0x400000", r.Length)
	}

	r, err = resolveLength(bootloader.Region{Start: 0x1000}, dev)
	if err != nil {
		t.Fatalf("resolveLength: %v", err)
	}
	if r.Length != 0x3FF000 {
		t.Errorf("tail length = 0x%X, want 0x3FF000", r.Length)
	}

	if _, err := resolveLength(bootloader.Region{}, &bootloader.Device{}); err == nil {
		t.Error("expected error when flash size is unknown")
	}

	// Explicit lengths pass through untouched.
	r, err = resolveLength(bootloader.Region{Start: 0x1000, Length: 0x100}, dev)
	if err != nil || r.Length != 0x100 {
		t.Errorf("explicit length changed: %s, %v", r, err)
	}
}

func TestExitCode(t *testing.T) {
	_, badRegionErr := parseRegion("zz:10")
	if badRegionErr == nil {
		t.Fatal("parseRegion accepted a malformed region")
	}
	_, unsizedErr := resolveLength(bootloader.Region{}, &bootloader.Device{})
	if unsizedErr == nil {
		t.Fatal("resolveLength sized a region without a flash size")
	}

	tests := []struct {
		name string
		err  error
		want int
	}{
		{name: "nil", err: nil, want: exitOK},
		{name: "sync failure", err: &bootloader.SyncError{Attempts: 3}, want: exitConnection},
		{name: "unknown device", err: &bootloader.UnknownDeviceError{Family: "esp"}, want: exitConnection},
		{name: "verify mismatch", err: &bootloader.VerifyMismatchError{Address: 0x10}, want: exitVerify},
		{name: "bad region", err: &bootloader.RegionError{}, want: exitUsage},
		{name: "size mismatch", err: &bootloader.SizeMismatchError{}, want: exitUsage},
		{name: "unparseable region argument", err: badRegionErr, want: exitUsage},
		{name: "unsizable region argument", err: unsizedErr, want: exitUsage},
		{name: "write failure", err: &bootloader.WriteError{Address: 0x10}, want: exitTransfer},
		{name: "erase timeout", err: &bootloader.EraseTimeoutError{}, want: exitTransfer},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := exitCode(tt.err); got != tt.want {
				t.Errorf("exitCode(%v) = %d, want %d", tt.err, got, tt.want)
			}
		})
	}
}
