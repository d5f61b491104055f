package bootloader

import "time"

// Progress contains information about a running flash operation.
// Passed to ProgressCallback during transfers.
type Progress struct {
	// Phase describes the current operation phase:
	//   "handshake" - Syncing and identifying the target
	//   "erasing"   - Erasing flash
	//   "writing"   - Writing flash chunks
	//   "verifying" - Reading back written chunks
	//   "reading"   - Reading flash chunks
	//   "complete"  - Operation completed successfully
	Phase string

	// Address is the flash address the operation has reached
	Address uint32

	// BytesDone is the number of payload bytes transferred so far
	BytesDone int

	// TotalBytes is the total number of payload bytes to transfer
	TotalBytes int

	// Percentage is the completion percentage (0.0 to 100.0)
	Percentage float64

	// ElapsedTime is the time elapsed since the operation started
	ElapsedTime time.Duration
}

// Phase values reported through ProgressCallback.
const (
	PhaseHandshake = "handshake"
	PhaseErasing   = "erasing"
	PhaseWriting   = "writing"
	PhaseVerifying = "verifying"
	PhaseReading   = "reading"
	PhaseComplete  = "complete"
)

// ProgressCallback is called periodically during transfers to report progress.
// Implementations should return quickly to avoid slowing the transfer.
//
// Example:
//
//	sess := bootloader.New(conn, drv,
//	    bootloader.WithProgressCallback(func(p bootloader.Progress) {
//	        fmt.Printf("[%s] %.1f%% at 0x%X\n", p.Phase, p.Percentage, p.Address)
//	    }),
//	)
type ProgressCallback func(Progress)

// Logger is an optional logging interface that can be provided to the session.
// This allows integration with any logging framework.
//
// Example with standard log package:
//
//	type StdLogger struct{}
//	func (l *StdLogger) Debug(msg string, kv ...interface{}) { log.Println(msg, kv) }
//	func (l *StdLogger) Info(msg string, kv ...interface{})  { log.Println(msg, kv) }
//	func (l *StdLogger) Error(msg string, kv ...interface{}) { log.Println(msg, kv) }
//
//	sess := bootloader.New(conn, drv, bootloader.WithLogger(&StdLogger{}))
type Logger interface {
	// Debug logs a debug message with optional key-value pairs
	Debug(msg string, keysAndValues ...interface{})

	// Info logs an info message with optional key-value pairs
	Info(msg string, keysAndValues ...interface{})

	// Error logs an error message with optional key-value pairs
	Error(msg string, keysAndValues ...interface{})
}

// nopLogger discards all output. It is the default when no logger is set.
type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{}) {}
func (nopLogger) Info(string, ...interface{})  {}
func (nopLogger) Error(string, ...interface{}) {}
