// Package localfs implements core.Filesystem and core.File over the local
// OS filesystem. Grounded on the teacher's osfs.go (an fs.FS rooted at a
// directory) but widened from read-only fs.FS access to the full
// pread/pwrite/fstat/ftruncate/rename contract §6 requires, since this
// system opens raw commit files for direct random-access I/O, not just
// sequential archive reads.
package localfs

import (
	"os"

	"github.com/weftimage/lazybd/core"
)

// FS is a core.Filesystem backed directly by the OS filesystem; paths are
// used as given, unlike osFS's root-relative fs.FS paths, because commit
// file paths here are already absolute layer directories.
type FS struct{}

// New returns a local filesystem adapter.
func New() FS { return FS{} }

// Open implements core.Filesystem.
func (FS) Open(path string, flag core.OpenFlag) (core.File, error) {
	var f *os.File
	var err error
	switch flag {
	case core.OpenReadOnly:
		f, err = os.Open(path)
	case core.OpenReadWrite:
		f, err = os.OpenFile(path, os.O_RDWR, 0o644)
	case core.OpenCreate:
		f, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	default:
		f, err = os.Open(path)
	}
	if err != nil {
		return nil, &core.IoError{Op: "open", Path: path, Err: err}
	}
	return &File{f: f, fs: FS{}}, nil
}

// Access implements core.Filesystem.
func (FS) Access(path string) error {
	if _, err := os.Stat(path); err != nil {
		return &core.IoError{Op: "access", Path: path, Err: err}
	}
	return nil
}

// Rename implements core.Filesystem with the OS's atomic rename.
func (FS) Rename(src, dst string) error {
	if err := os.Rename(src, dst); err != nil {
		return &core.IoError{Op: "rename", Path: dst, Err: err}
	}
	return nil
}

// File adapts *os.File to core.File.
type File struct {
	f  *os.File
	fs core.Filesystem
}

func (lf *File) ReadAt(p []byte, off int64) (int, error)  { return lf.f.ReadAt(p, off) }
func (lf *File) WriteAt(p []byte, off int64) (int, error) { return lf.f.WriteAt(p, off) }

func (lf *File) Stat() (core.FileInfo, error) {
	info, err := lf.f.Stat()
	if err != nil {
		return core.FileInfo{}, &core.IoError{Op: "stat", Path: lf.f.Name(), Err: err}
	}
	return core.FileInfo{Size: info.Size()}, nil
}

func (lf *File) Sync() error             { return lf.f.Sync() }
func (lf *File) Truncate(size int64) error { return lf.f.Truncate(size) }
func (lf *File) Filesystem() core.Filesystem { return lf.fs }
func (lf *File) Close() error            { return lf.f.Close() }
