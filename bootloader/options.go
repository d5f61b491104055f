package bootloader

import "time"

// Config holds the session configuration.
type Config struct {
	// ProgressCallback is called during transfers to report progress (optional)
	ProgressCallback ProgressCallback

	// Logger is used for logging operations (optional)
	Logger Logger

	// SyncAttempts is how many reset-and-probe cycles Handshake tries
	SyncAttempts int

	// SyncTimeout bounds each individual sync probe
	SyncTimeout time.Duration

	// ReadTimeout is the per-read timeout used after the handshake
	ReadTimeout time.Duration

	// ChunkSize is the preferred transfer chunk size. It is clamped to the
	// driver's maximum and to the device page size where one applies.
	ChunkSize int

	// Retries is the number of retry attempts for a failed chunk
	Retries int

	// Verify enables read-back verification after writes
	Verify bool

	// EraseBeforeWrite issues an explicit erase of the target region before
	// writing, on families that support standalone erase
	EraseBeforeWrite bool

	// EraseTimeout bounds the erase acknowledgement wait
	EraseTimeout time.Duration

	// InitialBaud is the rate the port was opened at. The session reverts to
	// it when transfer baud negotiation fails.
	InitialBaud int

	// TransferBaud, when non-zero, is negotiated after sync on families that
	// support it
	TransferBaud int

	// AllowUnknown lets the handshake proceed when the signature matches no
	// known device. Region bounds are not checked in that case.
	AllowUnknown bool
}

// defaultConfig returns the default configuration.
func defaultConfig() Config {
	return Config{
		SyncAttempts: 3,
		SyncTimeout:  time.Second,
		ReadTimeout:  3 * time.Second,
		ChunkSize:    1024,
		Retries:      3,
		Verify:       true,
		EraseTimeout: 30 * time.Second,
		InitialBaud:  115200,
	}
}

// Option is a functional option for configuring the Session.
type Option func(*Config)

// WithProgressCallback sets a callback function to track transfer progress.
//
// Example:
//
//	sess := bootloader.New(conn, drv,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("%.1f%% complete\n", p.Percentage)
//	    }),
//	)
func WithProgressCallback(callback ProgressCallback) Option {
	return func(c *Config) {
		c.ProgressCallback = callback
	}
}

// WithLogger sets a logger for session operations.
//
// Example:
//
//	sess := bootloader.New(conn, drv, bootloader.WithLogger(myLogger))
func WithLogger(logger Logger) Option {
	return func(c *Config) {
		c.Logger = logger
	}
}

// WithSyncAttempts sets how many reset-and-probe cycles Handshake tries
// before giving up. Default is 3.
func WithSyncAttempts(n int) Option {
	return func(c *Config) {
		if n > 0 {
			c.SyncAttempts = n
		}
	}
}

// WithSyncTimeout bounds each individual sync probe. Default is one second.
func WithSyncTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.SyncTimeout = d
		}
	}
}

// WithReadTimeout sets the per-read timeout used once the handshake is done.
// Default is 3 seconds.
func WithReadTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.ReadTimeout = d
		}
	}
}

// WithChunkSize sets the preferred transfer chunk size. Drivers clamp it to
// what the wire protocol allows. Default is 1024.
func WithChunkSize(size int) Option {
	return func(c *Config) {
		if size > 0 {
			c.ChunkSize = size
		}
	}
}

// WithRetries sets the number of retry attempts for a failed chunk.
// Default is 3.
func WithRetries(retries int) Option {
	return func(c *Config) {
		if retries >= 0 {
			c.Retries = retries
		}
	}
}

// WithVerify enables or disables read-back verification after writes.
// Default is true.
func WithVerify(verify bool) Option {
	return func(c *Config) {
		c.Verify = verify
	}
}

// WithEraseBeforeWrite issues an explicit erase of the target region before
// writing, on families that support standalone erase. Default is false; note
// that Espressif writes always erase the target sectors as part of the write
// setup regardless of this option.
func WithEraseBeforeWrite(erase bool) Option {
	return func(c *Config) {
		c.EraseBeforeWrite = erase
	}
}

// WithEraseTimeout bounds the erase acknowledgement wait. Default is
// 30 seconds.
func WithEraseTimeout(d time.Duration) Option {
	return func(c *Config) {
		if d > 0 {
			c.EraseTimeout = d
		}
	}
}

// WithInitialBaud records the rate the port was opened at, so a failed baud
// negotiation can revert to it. Default is 115200.
func WithInitialBaud(baud int) Option {
	return func(c *Config) {
		if baud > 0 {
			c.InitialBaud = baud
		}
	}
}

// WithTransferBaud negotiates a faster line speed after sync, on families
// that support it. Zero (the default) keeps the handshake rate.
func WithTransferBaud(baud int) Option {
	return func(c *Config) {
		if baud >= 0 {
			c.TransferBaud = baud
		}
	}
}

// WithAllowUnknown lets the handshake proceed when the device signature is
// not in the known-device table. Default is false.
func WithAllowUnknown(allow bool) Option {
	return func(c *Config) {
		c.AllowUnknown = allow
	}
}
