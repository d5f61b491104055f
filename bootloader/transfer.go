package bootloader

import (
	"context"
	"errors"
	"fmt"

	"github.com/moffa90/go-serialisp/image"
	"github.com/moffa90/go-serialisp/protocol"
	"github.com/moffa90/go-serialisp/transport"
)

// retryable reports whether a chunk failure is worth retrying: corruption and
// timeouts are transient line conditions, everything else is not.
func retryable(err error) bool {
	return errors.Is(err, protocol.ErrFrameCorrupt) ||
		errors.Is(err, protocol.ErrFrameTruncated) ||
		errors.Is(err, transport.ErrReadTimeout)
}

// withRetry runs op up to 1+Retries times, retrying only transient failures.
// Cancellation is checked before each attempt, never mid-chunk.
func (s *Session) withRetry(ctx context.Context, addr uint32, op func() error) error {
	var lastErr error
	for attempt := 0; attempt <= s.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		if attempt > 0 {
			s.cfg.Logger.Debug("retrying chunk", "address", fmt.Sprintf("0x%X", addr), "attempt", attempt)
			_ = s.conn.DiscardInput()
		}
		err := op()
		if err == nil {
			return nil
		}
		lastErr = err
		if !retryable(err) {
			return err
		}
	}
	return fmt.Errorf("%d retries exhausted: %w", s.cfg.Retries, lastErr)
}

// ReadFlash reads region from the device into a fresh image whose Start is
// the region start. The region is validated before any device I/O.
func (s *Session) ReadFlash(ctx context.Context, region Region) (*image.Image, error) {
	if err := s.checkReady(); err != nil {
		return nil, err
	}
	if err := s.checkRegion(region); err != nil {
		return nil, err
	}

	data := make([]byte, region.Length)
	chunk := s.chunkSize()
	total := len(data)
	s.report(PhaseReading, region.Start, 0, total)

	for off := 0; off < total; off += chunk {
		if err := ctx.Err(); err != nil {
			return nil, s.fail(err)
		}
		n := chunk
		if rem := total - off; rem < n {
			n = rem
		}
		addr := region.Start + uint32(off)

		err := s.withRetry(ctx, addr, func() error {
			return s.drv.ReadChunk(ctx, addr, data[off:off+n])
		})
		if err != nil {
			return nil, s.fail(&ReadError{Address: addr, Err: err})
		}
		s.report(PhaseReading, addr+uint32(n), off+n, total)
	}

	s.report(PhaseComplete, region.End(), total, total)
	s.cfg.Logger.Info("read complete", "region", region.String(), "bytes", total)
	return image.New(region.Start, data), nil
}

// WriteFlash programs img into region, then reads it back for verification
// unless disabled. The image length must equal the region length exactly;
// that and the region bounds are checked before any device I/O.
func (s *Session) WriteFlash(ctx context.Context, region Region, img *image.Image) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if uint32(img.Len()) != region.Length {
		return &SizeMismatchError{ImageLen: img.Len(), RegionLen: region.Length}
	}
	if err := s.checkRegion(region); err != nil {
		return err
	}

	if s.cfg.EraseBeforeWrite {
		if s.drv.Capabilities().Erase {
			if err := s.eraseRegion(ctx, region); err != nil {
				return s.fail(err)
			}
		} else {
			s.cfg.Logger.Info("standalone erase unsupported, pages erase during programming")
		}
	}

	chunk := s.chunkSize()
	total := img.Len()
	s.report(PhaseWriting, region.Start, 0, total)

	if err := s.drv.BeginWrite(ctx, region, chunk); err != nil {
		return s.fail(&WriteError{Address: region.Start, Err: err})
	}

	for off := 0; off < total; off += chunk {
		if err := ctx.Err(); err != nil {
			return s.fail(err)
		}
		n := chunk
		if rem := total - off; rem < n {
			n = rem
		}
		addr := region.Start + uint32(off)

		err := s.withRetry(ctx, addr, func() error {
			return s.drv.WriteChunk(ctx, addr, img.Data[off:off+n])
		})
		if err != nil {
			return s.fail(&WriteError{Address: addr, Err: err})
		}
		s.report(PhaseWriting, addr+uint32(n), off+n, total)
	}

	if err := s.drv.EndWrite(ctx); err != nil {
		return s.fail(&WriteError{Address: region.End(), Err: err})
	}

	if s.cfg.Verify {
		if err := s.verify(ctx, region, img); err != nil {
			return s.fail(err)
		}
	}

	s.report(PhaseComplete, region.End(), total, total)
	s.cfg.Logger.Info("write complete", "region", region.String(), "bytes", total, "verified", s.cfg.Verify)
	return nil
}

// verify reads the written region back chunk by chunk and reports the first
// byte that differs.
func (s *Session) verify(ctx context.Context, region Region, img *image.Image) error {
	chunk := s.chunkSize()
	total := img.Len()
	buf := make([]byte, chunk)
	s.report(PhaseVerifying, region.Start, 0, total)

	for off := 0; off < total; off += chunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		n := chunk
		if rem := total - off; rem < n {
			n = rem
		}
		addr := region.Start + uint32(off)

		err := s.withRetry(ctx, addr, func() error {
			return s.drv.ReadChunk(ctx, addr, buf[:n])
		})
		if err != nil {
			return &ReadError{Address: addr, Err: err}
		}

		for i := 0; i < n; i++ {
			if buf[i] != img.Data[off+i] {
				return &VerifyMismatchError{
					Address: addr + uint32(i),
					Got:     buf[i],
					Want:    img.Data[off+i],
				}
			}
		}
		s.report(PhaseVerifying, addr+uint32(n), off+n, total)
	}
	return nil
}

// EraseFlash erases region on families that support standalone erase. The
// region is validated before any device I/O.
func (s *Session) EraseFlash(ctx context.Context, region Region) error {
	if err := s.checkReady(); err != nil {
		return err
	}
	if err := s.checkRegion(region); err != nil {
		return err
	}
	if !s.drv.Capabilities().Erase {
		return fmt.Errorf("erase: %w", ErrNotSupported)
	}
	if err := s.eraseRegion(ctx, region); err != nil {
		return s.fail(err)
	}
	s.report(PhaseComplete, region.End(), int(region.Length), int(region.Length))
	s.cfg.Logger.Info("erase complete", "region", region.String())
	return nil
}

// eraseRegion runs the erase under the longer erase timeout and restores the
// normal read timeout afterwards.
func (s *Session) eraseRegion(ctx context.Context, region Region) error {
	s.report(PhaseErasing, region.Start, 0, int(region.Length))

	if err := s.conn.SetReadTimeout(s.cfg.EraseTimeout); err != nil {
		return err
	}
	err := s.drv.Erase(ctx, region)
	if terr := s.conn.SetReadTimeout(s.cfg.ReadTimeout); terr != nil && err == nil {
		err = terr
	}

	if err != nil {
		if errors.Is(err, transport.ErrReadTimeout) || errors.Is(err, protocol.ErrFrameTruncated) {
			return &EraseTimeoutError{Region: region, Err: err}
		}
		return fmt.Errorf("erase %s: %w", region, err)
	}
	return nil
}
