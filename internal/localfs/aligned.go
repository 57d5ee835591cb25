package localfs

import (
	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/copyengine"
)

// Aligned wraps a local core.File so every ReadAt/WriteAt offset is
// validated against the 4096-byte alignment direct I/O requires; lengths
// are not checked. It is applied only when core.Config.IOEngine is
// core.IOEngineLibaio, and only to locally-opened commit files, per the
// source's ioEngine-conditional __open_ro_file wrapping.
type Aligned struct {
	core.File
}

// WrapIfLibaio returns f wrapped in Aligned when engine is
// core.IOEngineLibaio, and f unchanged otherwise.
func WrapIfLibaio(f core.File, engine core.IOEngine) core.File {
	if engine != core.IOEngineLibaio {
		return f
	}
	return Aligned{File: f}
}

func (a Aligned) ReadAt(p []byte, off int64) (int, error) {
	if off%copyengine.Alignment != 0 {
		return 0, &core.IoError{Op: "read", Err: errUnaligned(off)}
	}
	return a.File.ReadAt(p, off)
}

func (a Aligned) WriteAt(p []byte, off int64) (int, error) {
	if off%copyengine.Alignment != 0 {
		return 0, &core.IoError{Op: "write", Err: errUnaligned(off)}
	}
	return a.File.WriteAt(p, off)
}

type alignmentError int64

func (e alignmentError) Error() string {
	return "offset is not 4096-byte aligned"
}

func errUnaligned(off int64) error { return alignmentError(off) }
