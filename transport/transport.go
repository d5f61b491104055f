// Package transport provides the serial byte channel used by the bootloader
// drivers. It owns exactly one OS serial handle per port: a second Open on a
// port already claimed by this process fails with ErrPortBusy instead of
// queuing.
package transport

import (
	"errors"
	"fmt"
	"io"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Conn is the half-duplex byte channel the bootloader drivers talk over.
// Implementations must apply SetReadTimeout to subsequent Read calls and
// report an expired timeout as a zero-byte read.
type Conn interface {
	io.ReadWriter

	// SetReadTimeout bounds every following Read call.
	SetReadTimeout(d time.Duration) error

	// SetBaudRate reconfigures the line speed without reopening the port.
	SetBaudRate(baud int) error

	// SetDTR and SetRTS drive the modem control lines used to reset the
	// target into its bootloader.
	SetDTR(level bool) error
	SetRTS(level bool) error

	// DiscardInput drops any bytes already buffered by the OS.
	DiscardInput() error

	Close() error
}

// ErrPortBusy is returned by Open when the port is already claimed by a live
// session in this process.
var ErrPortBusy = errors.New("serial port already in use")

// ErrReadTimeout is returned by ReadFull when the device stops sending before
// the buffer is filled.
var ErrReadTimeout = errors.New("serial read timed out")

// OpenError wraps an OS-level failure to open a serial port.
type OpenError struct {
	Port string
	Err  error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("cannot open serial port %s: %v", e.Port, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

// claims tracks ports owned by live SerialPort values in this process.
var (
	claimsMu sync.Mutex
	claims   = make(map[string]struct{})
)

func claim(name string) error {
	claimsMu.Lock()
	defer claimsMu.Unlock()
	if _, busy := claims[name]; busy {
		return fmt.Errorf("%w: %s", ErrPortBusy, name)
	}
	claims[name] = struct{}{}
	return nil
}

func release(name string) {
	claimsMu.Lock()
	defer claimsMu.Unlock()
	delete(claims, name)
}

// SerialPort is a Conn backed by a real serial device.
type SerialPort struct {
	name string
	port serial.Port
	mode serial.Mode

	closeOnce sync.Once
	closeErr  error
}

// Config holds the line parameters for Open.
type Config struct {
	DataBits    int
	Parity      serial.Parity
	StopBits    serial.StopBits
	ReadTimeout time.Duration
}

// PortOption adjusts the line parameters used by Open.
type PortOption func(*Config)

// WithParity overrides the default no-parity setting.
func WithParity(p serial.Parity) PortOption {
	return func(c *Config) { c.Parity = p }
}

// WithStopBits overrides the default single stop bit.
func WithStopBits(s serial.StopBits) PortOption {
	return func(c *Config) { c.StopBits = s }
}

// WithReadTimeout sets the initial read timeout. Default is one second.
func WithReadTimeout(d time.Duration) PortOption {
	return func(c *Config) { c.ReadTimeout = d }
}

// Open claims name for this process and opens it at the given baud rate.
// The claim is released on Close, on every error path included.
func Open(name string, baud int, opts ...PortOption) (*SerialPort, error) {
	cfg := Config{
		DataBits:    8,
		Parity:      serial.NoParity,
		StopBits:    serial.OneStopBit,
		ReadTimeout: time.Second,
	}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := claim(name); err != nil {
		return nil, err
	}

	mode := serial.Mode{
		BaudRate: baud,
		DataBits: cfg.DataBits,
		Parity:   cfg.Parity,
		StopBits: cfg.StopBits,
	}

	port, err := serial.Open(name, &mode)
	if err != nil {
		release(name)
		return nil, &OpenError{Port: name, Err: err}
	}

	if err := port.SetReadTimeout(cfg.ReadTimeout); err != nil {
		_ = port.Close()
		release(name)
		return nil, &OpenError{Port: name, Err: err}
	}

	return &SerialPort{name: name, port: port, mode: mode}, nil
}

// Name returns the OS port identifier this connection was opened with.
func (p *SerialPort) Name() string { return p.name }

func (p *SerialPort) Read(buf []byte) (int, error)  { return p.port.Read(buf) }
func (p *SerialPort) Write(buf []byte) (int, error) { return p.port.Write(buf) }

func (p *SerialPort) SetReadTimeout(d time.Duration) error {
	return p.port.SetReadTimeout(d)
}

func (p *SerialPort) SetBaudRate(baud int) error {
	mode := p.mode
	mode.BaudRate = baud
	if err := p.port.SetMode(&mode); err != nil {
		return err
	}
	p.mode = mode
	return nil
}

func (p *SerialPort) SetDTR(level bool) error { return p.port.SetDTR(level) }
func (p *SerialPort) SetRTS(level bool) error { return p.port.SetRTS(level) }

func (p *SerialPort) DiscardInput() error { return p.port.ResetInputBuffer() }

// Close releases the OS handle and the in-process claim. Safe to call more
// than once.
func (p *SerialPort) Close() error {
	p.closeOnce.Do(func() {
		p.closeErr = p.port.Close()
		release(p.name)
	})
	return p.closeErr
}

// ReadFull reads len(buf) bytes from c, looping over short reads. A zero-byte
// read means the configured read timeout expired; ReadFull reports that as
// ErrReadTimeout annotated with how far it got.
func ReadFull(c Conn, buf []byte) error {
	got := 0
	for got < len(buf) {
		n, err := c.Read(buf[got:])
		if err != nil {
			return err
		}
		if n == 0 {
			return fmt.Errorf("%w after %d/%d bytes", ErrReadTimeout, got, len(buf))
		}
		got += n
	}
	return nil
}
