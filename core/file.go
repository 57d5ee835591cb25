package core

import "io"

// File is the capability set the core forwards operations across: a
// block-addressable read/write file with stat and lifecycle control. It
// narrows the source system's wider trait (which also exposes readv/writev/
// preadv/pwritev/lseek/fdatasync/sync_file_range/fchmod/fchown/fallocate) to
// the subset the adapter stack actually forwards; those remaining calls are
// out of scope per §1 and belong to the block-device abstraction that
// consumes this stack.
type File interface {
	io.Closer

	// ReadAt reads len(p) bytes starting at off, the pread contract: it
	// does not affect and is not affected by any other read's offset.
	ReadAt(p []byte, off int64) (int, error)

	// WriteAt writes len(p) bytes starting at off, the pwrite contract.
	WriteAt(p []byte, off int64) (int, error)

	// Stat returns the file's current size and other fstat metadata.
	Stat() (FileInfo, error)

	// Sync flushes any buffered data to stable storage (fsync).
	Sync() error

	// Truncate resizes the file to exactly size bytes (ftruncate).
	Truncate(size int64) error

	// Filesystem returns the filesystem handle that opened this file.
	Filesystem() Filesystem
}

// FileInfo is the fstat result the core cares about.
type FileInfo struct {
	Size int64
}

// OpenFlag enumerates the open modes Filesystem.Open accepts.
type OpenFlag int

const (
	// OpenReadOnly opens an existing file for reading only.
	OpenReadOnly OpenFlag = iota
	// OpenReadWrite opens an existing file for reading and writing.
	OpenReadWrite
	// OpenCreate creates the file (and any missing parent directories for
	// local filesystems) if it does not already exist, then opens it for
	// reading and writing.
	OpenCreate
)

// Filesystem is the minimal capability a File's origin must expose: open by
// path, an existence probe, and atomic rename for the download
// coordinator's commit handoff.
type Filesystem interface {
	// Open opens path under the given flags.
	Open(path string, flag OpenFlag) (File, error)

	// Access reports whether path exists and is reachable. A nil return
	// means the path exists; any non-nil error (including the filesystem
	// wrapping os.ErrNotExist) means it does not.
	Access(path string) error

	// Rename atomically replaces dst with src. Implementations that
	// cannot offer atomicity (e.g. across HTTP) must not implement this
	// method meaningfully; the download coordinator only ever renames on
	// a local filesystem.
	Rename(src, dst string) error
}

// Codec decodes a raw backing File into a read-only logical File. Tar
// framing and decompression live behind this seam; verifyChecksum selects
// whether the codec enforces the underlying content's integrity itself
// (remote backings) or trusts the caller's own verification (local
// backings already validated by the download coordinator).
type Codec interface {
	OpenRO(f File, verifyChecksum bool) (File, error)
}
