package layertest

import (
	"sync"

	"github.com/weftimage/lazybd/core"
)

// MemFS is an in-memory core.Filesystem, keyed by path.
type MemFS struct {
	mu    sync.Mutex
	files map[string]*memFile
}

// NewMemFS returns an empty in-memory filesystem.
func NewMemFS() *MemFS {
	return &MemFS{files: map[string]*memFile{}}
}

// Seed pre-populates path with data, as if it had already been written.
func (m *MemFS) Seed(path string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f := MemFileIn(m, data).(*memFile)
	m.files[path] = f
}

// Open returns the single handle kept for path. A handle closed by an
// earlier caller is reopened, so a file stays readable after the handle that
// wrote it was closed, as on a real filesystem.
func (m *MemFS) Open(path string, flag core.OpenFlag) (core.File, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[path]
	if !ok {
		if flag != core.OpenCreate {
			return nil, &core.IoError{Op: "open", Path: path, Err: core.ErrIO}
		}
		f = MemFileIn(m, nil).(*memFile)
		m.files[path] = f
	}
	f.mu.Lock()
	f.closed = false
	f.mu.Unlock()
	return f, nil
}

func (m *MemFS) Access(path string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[path]; !ok {
		return &core.IoError{Op: "access", Path: path, Err: core.ErrIO}
	}
	return nil
}

func (m *MemFS) Rename(src, dst string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	f, ok := m.files[src]
	if !ok {
		return &core.IoError{Op: "rename", Path: src, Err: core.ErrIO}
	}
	delete(m.files, src)
	m.files[dst] = f
	return nil
}
