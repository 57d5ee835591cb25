package codec

import (
	"errors"
	"io"

	"github.com/weftimage/lazybd/core"
)

// errReadOnly is returned by the decoded, in-memory backing's mutating
// operations; decompressed content is never written back.
var errReadOnly = errors.New("codec: decoded backing is read-only")

// decodedFile is a read-only, in-memory core.File holding the result of a
// decompression. Layer blobs are bounded in size by the registry's own
// layer-size limits, so buffering the decoded form is acceptable here; a
// production decompression codec would instead expose a seekable
// decompressing reader, which is explicitly out of scope (see §1).
type decodedFile struct {
	data []byte
}

func newDecodedFile(data []byte) *decodedFile {
	return &decodedFile{data: data}
}

func (d *decodedFile) ReadAt(p []byte, off int64) (int, error) {
	if off >= int64(len(d.data)) {
		return 0, io.EOF
	}
	n := copy(p, d.data[off:])
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (d *decodedFile) WriteAt(p []byte, off int64) (int, error) {
	return 0, errReadOnly
}

func (d *decodedFile) Stat() (core.FileInfo, error) {
	return core.FileInfo{Size: int64(len(d.data))}, nil
}

func (d *decodedFile) Sync() error { return nil }

func (d *decodedFile) Truncate(int64) error { return errReadOnly }

func (d *decodedFile) Filesystem() core.Filesystem { return nil }

func (d *decodedFile) Close() error { return nil }
