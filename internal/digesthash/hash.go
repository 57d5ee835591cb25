// Package digesthash streams a local file through SHA-256 on a dedicated
// goroutine and produces a canonical "sha256:" digest string, the way the
// source's sha256sum runs the hash on a blocking OS thread and unparks a
// cooperative waiter on completion.
package digesthash

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"unsafe"

	"github.com/weftimage/lazybd/core"
)

// blockSize is the read chunk size; allocation is aligned to 4096 bytes so
// the same buffer is legal against O_DIRECT-opened sources.
const blockSize = 64 * 1024

const alignment = 4096

// Digest streams f from offset 0 to its current size and returns
// "sha256:"+hex(digest). Any open/stat/read error yields an empty string;
// callers must treat an empty digest as a mismatch, never as success.
//
// The hash runs on a separate goroutine so ctx cancellation unparks the
// caller immediately; the goroutine itself is not interruptible mid-read
// and is left to run to completion, matching the source's treatment of its
// blocking hashing thread.
func Digest(ctx context.Context, f core.File) (core.Digest, error) {
	type result struct {
		digest core.Digest
		err    error
	}
	done := make(chan result, 1)

	go func() {
		d, err := hashFile(f)
		done <- result{d, err}
	}()

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case r := <-done:
		return r.digest, r.err
	}
}

func hashFile(f core.File) (core.Digest, error) {
	info, err := f.Stat()
	if err != nil {
		return "", &core.IoError{Op: "stat", Err: err}
	}

	h := sha256.New()
	buf := make([]byte, blockSize+alignment)
	if rem := int(uintptr(unsafe.Pointer(&buf[0])) % alignment); rem != 0 {
		buf = buf[alignment-rem:]
	}
	buf = buf[:blockSize]

	var off int64
	for off < info.Size {
		n, err := f.ReadAt(buf, off)
		if n > 0 {
			if _, werr := h.Write(buf[:n]); werr != nil {
				return "", &core.IoError{Op: "hash", Err: werr}
			}
			off += int64(n)
		}
		if err != nil {
			if n == 0 {
				return "", &core.IoError{Op: "read", Err: err}
			}
			break
		}
	}

	return core.Digest(fmt.Sprintf("sha256:%s", hex.EncodeToString(h.Sum(nil)))), nil
}
