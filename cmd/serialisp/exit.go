package main

import (
	"errors"

	"github.com/moffa90/go-serialisp/bootloader"
	"github.com/moffa90/go-serialisp/image"
	"github.com/moffa90/go-serialisp/transport"
)

// Exit codes, stable for scripting.
const (
	exitOK         = 0
	exitConnection = 1
	exitTransfer   = 2
	exitVerify     = 3
	exitUsage      = 4
)

// exitCode maps a failure to its exit code.
func exitCode(err error) int {
	if err == nil {
		return exitOK
	}

	var (
		openErr   *transport.OpenError
		syncErr   *bootloader.SyncError
		unkErr    *bootloader.UnknownDeviceError
		baudErr   *bootloader.BaudNegotiationError
		verifyErr *bootloader.VerifyMismatchError
		regionErr *bootloader.RegionError
		sizeErr   *bootloader.SizeMismatchError
		malErr    *image.MalformedRecordError
		crcErr    *image.ChecksumError
	)

	switch {
	case errors.As(err, &verifyErr):
		return exitVerify
	case errors.As(err, &regionErr),
		errors.As(err, &sizeErr),
		errors.As(err, &malErr),
		errors.As(err, &crcErr),
		errors.Is(err, errBadRegionArg):
		return exitUsage
	case errors.As(err, &openErr),
		errors.Is(err, transport.ErrPortBusy),
		errors.As(err, &syncErr),
		errors.As(err, &unkErr),
		errors.As(err, &baudErr):
		return exitConnection
	}
	return exitTransfer
}
