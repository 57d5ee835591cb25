// Package copyengine implements the aligned block copy at the heart of the
// download coordinator: one alignment-sized buffer, bounded per-block
// retry, and a final truncate to drop the pad left by the last short read.
// Grounded on the source's filecopy.
package copyengine

import (
	"context"
	"fmt"
	"io"

	"github.com/weftimage/lazybd/core"
)

// Alignment is the buffer and block-size alignment filecopy preserves so
// writes remain legal against direct-I/O destinations.
const Alignment = 4096

// Copy copies src to dst starting at offset 0 until a short read signals
// EOF, in blocks of blockSize (which should be a multiple of Alignment).
// running is polled before every block; when it reports false the copy
// stops and returns core.ErrCancelled. Each block's read and write are each
// retried up to retryLimit times on error before the whole copy fails.
//
// Write length is quantized to blockSize so the destination can be opened
// for direct I/O; the final block's pad is removed by truncating dst to
// the number of bytes actually read.
func Copy(ctx context.Context, src, dst core.File, blockSize, retryLimit int, running func() bool) (int64, error) {
	if blockSize <= 0 || blockSize%Alignment != 0 {
		return 0, fmt.Errorf("copyengine: block size %d is not a positive multiple of %d", blockSize, Alignment)
	}

	buf := make([]byte, blockSize)
	var off int64

	for {
		if ctx.Err() != nil {
			return off, ctx.Err()
		}
		if running != nil && !running() {
			return off, core.ErrCancelled
		}

		n, rerr := readWithRetry(src, buf, off, retryLimit)
		if rerr != nil {
			return off, &core.IoError{Op: "read", Err: rerr}
		}

		if n > 0 {
			if werr := writeWithRetry(dst, buf, off, retryLimit); werr != nil {
				return off, &core.IoError{Op: "write", Err: werr}
			}
			off += int64(n)
		}

		if n < blockSize {
			if err := dst.Truncate(off); err != nil {
				return off, &core.IoError{Op: "truncate", Err: err}
			}
			return off, nil
		}
	}
}

func readWithRetry(src core.File, buf []byte, off int64, retryLimit int) (int, error) {
	var lastErr error
	for attempt := 0; attempt <= retryLimit; attempt++ {
		n, err := src.ReadAt(buf, off)
		if err == nil {
			return n, nil
		}
		if err == io.EOF {
			return n, nil
		}
		if n > 0 {
			// A short read with a non-EOF error still counts as partial
			// progress; surface it to the caller as EOF-equivalent rather
			// than discarding the bytes already read.
			return n, nil
		}
		lastErr = err
	}
	return 0, lastErr
}

func writeWithRetry(dst core.File, buf []byte, off int64, retryLimit int) error {
	written := 0
	var lastErr error
	for attempt := 0; attempt <= retryLimit; attempt++ {
		n, err := dst.WriteAt(buf[written:], off+int64(written))
		written += n
		if written >= len(buf) {
			return nil
		}
		if err != nil {
			lastErr = err
			continue
		}
	}
	if lastErr == nil {
		lastErr = fmt.Errorf("short write: wrote %d of %d bytes", written, len(buf))
	}
	return lastErr
}
