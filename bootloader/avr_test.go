package bootloader

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moffa90/go-serialisp/image"
)

func readyAVRSession(t *testing.T, sim *avrSim, opts ...Option) *Session {
	t.Helper()
	base := []Option{
		WithSyncTimeout(50 * time.Millisecond),
		WithReadTimeout(50 * time.Millisecond),
	}
	sess := New(sim, NewAVRDriver(sim), append(base, opts...)...)
	if err := sess.Handshake(context.Background()); err != nil {
		t.Fatalf("Handshake: %v", err)
	}
	return sess
}

func TestAVRHandshakeIdentifiesATmega328P(t *testing.T) {
	sim := newAVRSim()
	sess := readyAVRSession(t, sim)

	dev := sess.Device()
	if dev == nil || dev.Name != "ATmega328P" {
		t.Fatalf("device = %v, want ATmega328P", dev)
	}
	if dev.FlashSize != 32*1024 || dev.PageSize != 128 {
		t.Errorf("geometry %d/%d, want 32768/128", dev.FlashSize, dev.PageSize)
	}
}

func TestAVRUnknownSignature(t *testing.T) {
	sim := newAVRSim()
	sim.sig = [3]byte{0x1E, 0x00, 0x00}
	sess := New(sim, NewAVRDriver(sim), WithSyncTimeout(50*time.Millisecond))

	err := sess.Handshake(context.Background())

	var ue *UnknownDeviceError
	if !errors.As(err, &ue) {
		t.Fatalf("error = %v (%T), want *UnknownDeviceError", err, err)
	}
	if ue.Signature != 0x1E0000 {
		t.Errorf("Signature = 0x%06X, want 0x1E0000", ue.Signature)
	}
}

func TestAVRWriteClampsToPageSize(t *testing.T) {
	sim := newAVRSim()
	// Ask for oversized chunks; the page size must win.
	sess := readyAVRSession(t, sim, WithChunkSize(1024))

	region := Region{Start: 0x100, Length: 0x200}
	img := image.New(region.Start, pattern(0x200))

	if err := sess.WriteFlash(context.Background(), region, img); err != nil {
		t.Fatalf("WriteFlash: %v", err)
	}

	if sim.maxPageSeen > 128 {
		t.Errorf("device received %d byte pages, limit is 128", sim.maxPageSeen)
	}
	if sim.progCount != 4 {
		t.Errorf("device received %d pages, want 4", sim.progCount)
	}
	if !bytes.Equal(sim.flash[0x100:0x300], img.Data) {
		t.Error("flash content wrong after write")
	}
}

func TestAVRReadBack(t *testing.T) {
	sim := newAVRSim()
	sess := readyAVRSession(t, sim)

	copy(sim.flash[0x400:], pattern(0x180))

	got, err := sess.ReadFlash(context.Background(), Region{Start: 0x400, Length: 0x180})
	if err != nil {
		t.Fatalf("ReadFlash: %v", err)
	}
	if !bytes.Equal(got.Data, pattern(0x180)) {
		t.Error("read data differs from flash content")
	}
}

func TestAVRRegionBounds(t *testing.T) {
	sim := newAVRSim()
	sess := readyAVRSession(t, sim)

	var re *RegionError
	_, err := sess.ReadFlash(context.Background(), Region{Start: 0x7F00, Length: 0x200})
	if !errors.As(err, &re) {
		t.Fatalf("error = %v, want *RegionError for 32 KiB part", err)
	}
}

func TestAVREraseNotSupported(t *testing.T) {
	sim := newAVRSim()
	sess := readyAVRSession(t, sim)

	err := sess.EraseFlash(context.Background(), Region{Start: 0, Length: 0x100})
	if !errors.Is(err, ErrNotSupported) {
		t.Errorf("EraseFlash = %v, want ErrNotSupported", err)
	}
	// Capability misses are reported without touching the device or the
	// session state.
	if sess.State() != StateReady {
		t.Errorf("state = %s, want ready", sess.State())
	}
}

func TestAVRTransferBaudSkipped(t *testing.T) {
	sim := newAVRSim()
	// STK500v1 has no baud change; the handshake must still succeed at the
	// handshake rate.
	sess := readyAVRSession(t, sim, WithTransferBaud(460800))

	if sess.State() != StateReady {
		t.Errorf("state = %s, want ready", sess.State())
	}
}

func TestAVRDriverRejectsOddAddress(t *testing.T) {
	sim := newAVRSim()
	drv := NewAVRDriver(sim)

	err := drv.ReadChunk(context.Background(), 0x101, make([]byte, 16))
	if err == nil {
		t.Fatal("expected error for odd byte address")
	}
}
