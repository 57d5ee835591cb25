// Package layertest provides small in-memory core.File/core.Filesystem
// fakes shared by the component test suites, the way the source's own test
// harnesses stub the File trait rather than touching a real disk.
package layertest

import (
	"io"
	"sync"

	"github.com/weftimage/lazybd/core"
)

// memFile is a growable in-memory core.File.
type memFile struct {
	mu     sync.Mutex
	data   []byte
	closed bool
	fs     core.Filesystem
}

// MemFile returns a core.File backed by a copy of data.
func MemFile(data []byte) core.File {
	buf := make([]byte, len(data))
	copy(buf, data)
	return &memFile{data: buf}
}

// MemFileIn is like MemFile but reports fs as the file's owning filesystem.
func MemFileIn(fs core.Filesystem, data []byte) core.File {
	f := MemFile(data).(*memFile)
	f.fs = fs
	return f
}

func (f *memFile) ReadAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, core.ErrClosed
	}
	if off >= int64(len(f.data)) {
		return 0, io.EOF
	}
	n := copy(p, f.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *memFile) WriteAt(p []byte, off int64) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.closed {
		return 0, core.ErrClosed
	}
	end := off + int64(len(p))
	if end > int64(len(f.data)) {
		grown := make([]byte, end)
		copy(grown, f.data)
		f.data = grown
	}
	copy(f.data[off:end], p)
	return len(p), nil
}

func (f *memFile) Stat() (core.FileInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return core.FileInfo{Size: int64(len(f.data))}, nil
}

func (f *memFile) Sync() error { return nil }

func (f *memFile) Truncate(size int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if size <= int64(len(f.data)) {
		f.data = f.data[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, f.data)
	f.data = grown
	return nil
}

func (f *memFile) Filesystem() core.Filesystem { return f.fs }

func (f *memFile) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// Bytes returns a copy of the file's current contents, for test assertions.
func (f *memFile) Bytes() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]byte, len(f.data))
	copy(out, f.data)
	return out
}

// Contents returns a copy of f's bytes. f must have been created by MemFile.
func Contents(f core.File) []byte {
	return f.(*memFile).Bytes()
}
