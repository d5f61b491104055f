package bootloader

import (
	"context"
	"fmt"
	"time"

	"github.com/moffa90/go-serialisp/transport"
)

// State tracks where a session is in its lifecycle.
type State int

const (
	// StateDisconnected is the initial state before Handshake.
	StateDisconnected State = iota

	// StateSyncAttempted means sync probes are in flight.
	StateSyncAttempted

	// StateSynced means the bootloader answered a probe.
	StateSynced

	// StateIdentified means the target signature has been read.
	StateIdentified

	// StateReady means the handshake finished and transfers may run.
	StateReady

	// StateFailed is terminal: the handshake or a transfer failed and a
	// fresh session is required.
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateSyncAttempted:
		return "sync-attempted"
	case StateSynced:
		return "synced"
	case StateIdentified:
		return "identified"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Session drives one bootloader conversation over a serial connection. Create
// it with New, bring it up with Handshake, then use ReadFlash, WriteFlash and
// EraseFlash. A Session is not safe for concurrent use.
type Session struct {
	conn transport.Conn
	drv  Driver
	cfg  Config

	state State
	dev   *Device
	sig   uint32
	baud  int // current line rate
	start time.Time
}

// New creates a Session for the bootloader behind conn, spoken to by drv.
//
// Example:
//
//	port, err := transport.Open("/dev/ttyUSB0", 115200)
//	if err != nil {
//	    return err
//	}
//	defer port.Close()
//
//	sess := bootloader.New(port, bootloader.NewESPDriver(port),
//	    bootloader.WithTransferBaud(460800),
//	)
//	if err := sess.Handshake(ctx); err != nil {
//	    return err
//	}
func New(conn transport.Conn, drv Driver, opts ...Option) *Session {
	cfg := defaultConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Logger == nil {
		cfg.Logger = nopLogger{}
	}
	return &Session{
		conn:  conn,
		drv:   drv,
		cfg:   cfg,
		state: StateDisconnected,
		baud:  cfg.InitialBaud,
	}
}

// State returns the current session state.
func (s *Session) State() State { return s.state }

// Device returns the identified device, or nil before identification. For an
// unknown signature admitted by WithAllowUnknown, the returned device has the
// raw signature and zero flash size.
func (s *Session) Device() *Device { return s.dev }

// Signature returns the raw identification value read during the handshake.
func (s *Session) Signature() uint32 { return s.sig }

// ChipInfo returns the identified device once the session is ready.
func (s *Session) ChipInfo() (*Device, error) {
	if s.dev == nil {
		return nil, fmt.Errorf("%w: device not identified", ErrNotReady)
	}
	return s.dev, nil
}

// Handshake resets the target, syncs with its bootloader, identifies the
// chip, and negotiates the transfer baud rate when one is configured. It must
// complete before any transfer. Each failure is terminal for the session.
func (s *Session) Handshake(ctx context.Context) error {
	if s.state != StateDisconnected {
		return fmt.Errorf("%w: handshake already attempted (state %s)", ErrNotReady, s.state)
	}
	s.start = time.Now()
	s.state = StateSyncAttempted
	s.report(PhaseHandshake, 0, 0, 0)

	if err := s.sync(ctx); err != nil {
		return s.fail(err)
	}
	s.state = StateSynced

	if err := s.conn.SetReadTimeout(s.cfg.ReadTimeout); err != nil {
		return s.fail(err)
	}

	sig, err := s.drv.Identify(ctx)
	if err != nil {
		return s.fail(fmt.Errorf("identify: %w", err))
	}
	s.sig = sig

	dev, ok := LookupDevice(s.drv.Family(), sig)
	if !ok {
		if !s.cfg.AllowUnknown {
			return s.fail(&UnknownDeviceError{Family: s.drv.Family(), Signature: sig})
		}
		dev = &Device{Name: "unknown", Family: s.drv.Family(), Signature: sig}
		s.cfg.Logger.Info("proceeding with unknown device", "signature", fmt.Sprintf("0x%08X", sig))
	}
	s.dev = dev
	s.state = StateIdentified
	s.cfg.Logger.Info("identified device", "device", dev.Name, "signature", fmt.Sprintf("0x%08X", sig))

	if avr, ok := s.drv.(*AVRDriver); ok && dev.PageSize > 0 {
		avr.SetPageSize(int(dev.PageSize))
	}

	if s.cfg.TransferBaud > 0 && s.cfg.TransferBaud != s.baud {
		if err := s.negotiateBaud(ctx); err != nil {
			return s.fail(err)
		}
	}

	s.state = StateReady
	s.cfg.Logger.Info("handshake complete", "device", dev.Name, "baud", s.baud)
	return nil
}

// sync runs the reset-and-probe loop under the sync timeout.
func (s *Session) sync(ctx context.Context) error {
	if err := s.conn.SetReadTimeout(s.cfg.SyncTimeout); err != nil {
		return err
	}

	var lastErr error
	for attempt := 1; attempt <= s.cfg.SyncAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := s.drv.Reset(); err != nil {
			return fmt.Errorf("reset target: %w", err)
		}
		if err := s.drv.Sync(ctx); err != nil {
			lastErr = err
			s.cfg.Logger.Debug("sync attempt failed", "attempt", attempt, "error", err)
			continue
		}
		s.cfg.Logger.Debug("sync established", "attempt", attempt)
		return nil
	}
	return &SyncError{Attempts: s.cfg.SyncAttempts, Err: lastErr}
}

// negotiateBaud switches the bootloader and then the local port to the
// transfer rate, confirming with a fresh sync probe. Any failure reverts the
// port to the handshake rate before reporting.
func (s *Session) negotiateBaud(ctx context.Context) error {
	from, to := s.baud, s.cfg.TransferBaud

	caps := s.drv.Capabilities()
	if !caps.SetBaud {
		s.cfg.Logger.Info("baud negotiation unsupported, keeping handshake rate", "baud", from)
		return nil
	}

	if err := s.drv.SetBaud(ctx, to); err != nil {
		return &BaudNegotiationError{From: from, To: to, Err: err}
	}
	if err := s.conn.SetBaudRate(to); err != nil {
		return &BaudNegotiationError{From: from, To: to, Err: err}
	}

	// The loader switches right after acknowledging; give it a moment and
	// drop any bytes mangled by the transition.
	time.Sleep(50 * time.Millisecond)
	_ = s.conn.DiscardInput()

	if err := s.drv.Sync(ctx); err != nil {
		if rerr := s.conn.SetBaudRate(from); rerr != nil {
			s.cfg.Logger.Error("baud revert failed", "baud", from, "error", rerr)
		}
		return &BaudNegotiationError{From: from, To: to, Err: err}
	}

	s.baud = to
	s.cfg.Logger.Info("negotiated transfer baud", "baud", to)
	return nil
}

// fail marks the session terminally failed.
func (s *Session) fail(err error) error {
	s.state = StateFailed
	s.cfg.Logger.Error("session failed", "error", err)
	return err
}

// checkReady gates transfer operations on a completed handshake.
func (s *Session) checkReady() error {
	if s.state != StateReady {
		return fmt.Errorf("%w (state %s)", ErrNotReady, s.state)
	}
	return nil
}

// checkRegion validates a region against the identified device before any
// bytes move. Devices with unknown flash size skip the bounds check.
func (s *Session) checkRegion(r Region) error {
	if r.Length == 0 {
		return &RegionError{Region: r, FlashSize: s.dev.FlashSize, Reason: "region is empty"}
	}
	if r.Start+r.Length < r.Start {
		return &RegionError{Region: r, FlashSize: s.dev.FlashSize, Reason: "region wraps the address space"}
	}
	if s.dev.FlashSize > 0 && r.End() > s.dev.FlashSize {
		return &RegionError{
			Region:    r,
			FlashSize: s.dev.FlashSize,
			Reason:    fmt.Sprintf("region ends at 0x%X, past end of flash", r.End()),
		}
	}
	return nil
}

// chunkSize resolves the effective transfer chunk: the configured preference
// clamped to the protocol cap and the device page size.
func (s *Session) chunkSize() int {
	c := s.cfg.ChunkSize
	if caps := s.drv.Capabilities(); caps.MaxChunk > 0 && c > caps.MaxChunk {
		c = caps.MaxChunk
	}
	if s.dev != nil && s.dev.PageSize > 0 && c > int(s.dev.PageSize) {
		c = int(s.dev.PageSize)
	}
	return c
}

// report delivers a progress snapshot when a callback is configured.
func (s *Session) report(phase string, addr uint32, done, total int) {
	if s.cfg.ProgressCallback == nil {
		return
	}
	var pct float64
	if total > 0 {
		pct = float64(done) / float64(total) * 100
	}
	s.cfg.ProgressCallback(Progress{
		Phase:       phase,
		Address:     addr,
		BytesDone:   done,
		TotalBytes:  total,
		Percentage:  pct,
		ElapsedTime: time.Since(s.start),
	})
}
