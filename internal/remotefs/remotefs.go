// Package remotefs implements core.Filesystem and core.File over a flat
// HTTP blob URL: open issues a HEAD for size, and every pread issues a
// Range GET. Grounded on the teacher's registry range-fetch contract
// (internal/registry/contentrange_test.go's validateContentRange), adapted
// from "fetch a range of an OCI blob" to "fetch a range of a plain blob
// URL" — repoBlobUrl+"/"+digest names a flat blob, not an OCI distribution
// endpoint, which is why oras-go is not used here (see DESIGN.md).
package remotefs

import (
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/weftimage/lazybd/core"
)

// FS opens files by URL over HTTP Range requests.
type FS struct {
	Client *http.Client
}

// New returns a remote filesystem using client, or http.DefaultClient if
// client is nil.
func New(client *http.Client) FS {
	if client == nil {
		client = http.DefaultClient
	}
	return FS{Client: client}
}

// Open issues a HEAD request against url to learn its size.
func (fs FS) Open(url string, _ core.OpenFlag) (core.File, error) {
	req, err := http.NewRequest(http.MethodHead, url, nil)
	if err != nil {
		return nil, &core.IoError{Op: "open", Path: url, Err: err}
	}
	resp, err := fs.Client.Do(req)
	if err != nil {
		return nil, &core.IoError{Op: "open", Path: url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return nil, &core.AuthError{StatusCode: resp.StatusCode, Path: url}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, &core.IoError{Op: "open", Path: url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	return &File{fs: fs, url: url, size: resp.ContentLength}, nil
}

// Access issues the same HEAD request as Open and discards the result.
func (fs FS) Access(url string) error {
	_, err := fs.Open(url, core.OpenReadOnly)
	return err
}

// Rename is not meaningful over HTTP; the download coordinator only ever
// renames on the local filesystem that owns the commit file.
func (fs FS) Rename(src, dst string) error {
	return &core.IoError{Op: "rename", Path: dst, Err: fmt.Errorf("remote filesystem is read-only")}
}

// File serves pread via HTTP Range GET requests against a fixed URL.
type File struct {
	fs   FS
	url  string
	size int64
}

func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if off >= f.size {
		return 0, io.EOF
	}
	end := off + int64(len(p)) - 1
	if end >= f.size {
		end = f.size - 1
	}
	want := end - off + 1

	req, err := http.NewRequest(http.MethodGet, f.url, nil)
	if err != nil {
		return 0, &core.IoError{Op: "read", Path: f.url, Err: err}
	}
	req.Header.Set("Range", fmt.Sprintf("bytes=%d-%d", off, end))

	resp, err := f.fs.Client.Do(req)
	if err != nil {
		return 0, &core.IoError{Op: "read", Path: f.url, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		return 0, &core.AuthError{StatusCode: resp.StatusCode, Path: f.url}
	}
	if resp.StatusCode != http.StatusPartialContent && resp.StatusCode != http.StatusOK {
		return 0, &core.IoError{Op: "read", Path: f.url, Err: fmt.Errorf("unexpected status %d", resp.StatusCode)}
	}

	if err := validateContentRange(resp.Header.Get("Content-Range"), off, want); err != nil {
		return 0, &core.IoError{Op: "read", Path: f.url, Err: err}
	}

	if resp.StatusCode == http.StatusOK {
		// The origin ignored our Range request and answered with the full
		// body starting at byte 0; skip ahead to off before reading.
		if _, err := io.CopyN(io.Discard, resp.Body, off); err != nil {
			return 0, &core.IoError{Op: "read", Path: f.url, Err: err}
		}
	}

	n, err := io.ReadFull(resp.Body, p[:want])
	if err != nil && err != io.ErrUnexpectedEOF {
		return n, &core.IoError{Op: "read", Path: f.url, Err: err}
	}
	if n < len(p) {
		return n, io.EOF
	}
	return n, nil
}

func (f *File) WriteAt(p []byte, off int64) (int, error) {
	return 0, &core.IoError{Op: "write", Path: f.url, Err: fmt.Errorf("remote files are read-only")}
}

func (f *File) Stat() (core.FileInfo, error) { return core.FileInfo{Size: f.size}, nil }
func (f *File) Sync() error                  { return nil }
func (f *File) Truncate(int64) error {
	return &core.IoError{Op: "truncate", Path: f.url, Err: fmt.Errorf("remote files are read-only")}
}
func (f *File) Filesystem() core.Filesystem { return f.fs }
func (f *File) Close() error                { return nil }

// validateContentRange checks a "Content-Range: bytes start-end/total"
// response header against the range that was requested. An empty header
// is accepted (some origins omit it on a 200 full-content response).
func validateContentRange(header string, expectedOffset, expectedLength int64) error {
	if header == "" {
		return nil
	}

	const prefix = "bytes "
	if !strings.HasPrefix(header, prefix) {
		return fmt.Errorf("malformed Content-Range header: %q", header)
	}
	rangePart, _, ok := strings.Cut(header[len(prefix):], "/")
	if !ok {
		return fmt.Errorf("malformed Content-Range header: %q", header)
	}
	startStr, endStr, ok := strings.Cut(rangePart, "-")
	if !ok {
		return fmt.Errorf("malformed Content-Range header: %q", header)
	}
	start, err := strconv.ParseInt(startStr, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed Content-Range header: %q", header)
	}
	end, err := strconv.ParseInt(endStr, 10, 64)
	if err != nil {
		return fmt.Errorf("malformed Content-Range header: %q", header)
	}

	if start != expectedOffset {
		return fmt.Errorf("start offset mismatch: got %d, want %d", start, expectedOffset)
	}
	if length := end - start + 1; length != expectedLength {
		return fmt.Errorf("length mismatch: got %d, want %d", length, expectedLength)
	}
	return nil
}
