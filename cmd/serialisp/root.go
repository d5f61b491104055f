package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/moffa90/go-serialisp/bootloader"
	"github.com/moffa90/go-serialisp/transport"
)

var (
	flagPort         string
	flagBaud         int
	flagTransferBaud int
	flagChip         string
	flagRetries      int
	flagChunkSize    int
	flagVerbose      bool

	log = logrus.New()

	// commandRan distinguishes runtime failures from argument problems that
	// stopped cobra before the subcommand started.
	commandRan bool
)

var rootCmd = &cobra.Command{
	Use:   "serialisp",
	Short: "Flash microcontrollers over their factory serial bootloaders",
	Long: `serialisp talks to the serial bootloaders burned into Espressif and AVR
microcontrollers: it can read, write and erase flash regions and identify
the connected chip. Firmware files may be raw binaries or Intel HEX.`,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		commandRan = true
		log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		if flagVerbose {
			log.SetLevel(logrus.DebugLevel)
		}
	},
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagPort, "port", "p", "", "serial port device (e.g. /dev/ttyUSB0)")
	pf.IntVarP(&flagBaud, "baud", "b", 115200, "handshake baud rate")
	pf.IntVar(&flagTransferBaud, "transfer-baud", 0, "faster rate negotiated after sync (0 keeps the handshake rate)")
	pf.StringVar(&flagChip, "chip", "auto", "device family: auto, esp or avr")
	pf.IntVar(&flagRetries, "retries", 3, "retry attempts per flash chunk")
	pf.IntVar(&flagChunkSize, "chunk-size", 1024, "preferred transfer chunk size in bytes")
	pf.BoolVarP(&flagVerbose, "verbose", "v", false, "enable debug logging")
	_ = rootCmd.MarkPersistentFlagRequired("port")
}

// logrusLogger adapts logrus to the library's Logger interface.
type logrusLogger struct {
	l *logrus.Logger
}

func (a logrusLogger) fields(kv []interface{}) logrus.Fields {
	f := logrus.Fields{}
	for i := 0; i+1 < len(kv); i += 2 {
		key, ok := kv[i].(string)
		if !ok {
			key = fmt.Sprint(kv[i])
		}
		f[key] = kv[i+1]
	}
	return f
}

func (a logrusLogger) Debug(msg string, kv ...interface{}) { a.l.WithFields(a.fields(kv)).Debug(msg) }
func (a logrusLogger) Info(msg string, kv ...interface{})  { a.l.WithFields(a.fields(kv)).Info(msg) }
func (a logrusLogger) Error(msg string, kv ...interface{}) { a.l.WithFields(a.fields(kv)).Error(msg) }

// progressPrinter renders a single updating progress line on stdout.
func progressPrinter(p bootloader.Progress) {
	if p.TotalBytes == 0 {
		return
	}
	fmt.Printf("\r%-10s %6.1f%%  (%d/%d bytes)", p.Phase, p.Percentage, p.BytesDone, p.TotalBytes)
	if p.Phase == bootloader.PhaseComplete {
		fmt.Println()
	}
}

func sessionOptions() []bootloader.Option {
	return []bootloader.Option{
		bootloader.WithLogger(logrusLogger{log}),
		bootloader.WithProgressCallback(progressPrinter),
		bootloader.WithRetries(flagRetries),
		bootloader.WithChunkSize(flagChunkSize),
		bootloader.WithInitialBaud(flagBaud),
		bootloader.WithTransferBaud(flagTransferBaud),
	}
}

// openSession opens the port and completes a handshake. With --chip auto it
// tries the ESP protocol first and falls back to AVR when the target never
// syncs.
func openSession(ctx context.Context, extra ...bootloader.Option) (*bootloader.Session, *transport.SerialPort, error) {
	families := []string{flagChip}
	if flagChip == "auto" {
		families = []string{bootloader.FamilyESP, bootloader.FamilyAVR}
	}

	port, err := transport.Open(flagPort, flagBaud)
	if err != nil {
		return nil, nil, err
	}

	opts := append(sessionOptions(), extra...)
	var lastErr error
	for _, family := range families {
		drv, err := bootloader.NewDriver(family, port)
		if err != nil {
			_ = port.Close()
			return nil, nil, err
		}

		sess := bootloader.New(port, drv, opts...)
		err = sess.Handshake(ctx)
		if err == nil {
			return sess, port, nil
		}
		lastErr = err

		var se *bootloader.SyncError
		if len(families) > 1 && errors.As(err, &se) {
			log.WithField("family", family).Debug("no sync, trying next family")
			continue
		}
		break
	}

	_ = port.Close()
	return nil, nil, lastErr
}
