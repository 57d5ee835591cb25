package layer

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/download"
	"github.com/weftimage/lazybd/internal/imagestatus"
	"github.com/weftimage/lazybd/internal/layercache"
	"github.com/weftimage/lazybd/internal/layertest"
	"github.com/weftimage/lazybd/internal/localfs"
)

// fakeRemoteFS serves content by URL, handing out a fresh handle per Open
// so a download's second handle doesn't share state with the switch
// file's own read handle.
type fakeRemoteFS struct {
	blobs map[string][]byte
}

func (f *fakeRemoteFS) Open(url string, _ core.OpenFlag) (core.File, error) {
	data, ok := f.blobs[url]
	if !ok {
		return nil, &core.IoError{Op: "open", Path: url, Err: fmt.Errorf("not found")}
	}
	return layertest.MemFile(data), nil
}
func (f *fakeRemoteFS) Access(url string) error {
	if _, ok := f.blobs[url]; !ok {
		return &core.IoError{Op: "access", Path: url, Err: fmt.Errorf("not found")}
	}
	return nil
}
func (f *fakeRemoteFS) Rename(src, dst string) error {
	return fmt.Errorf("remote filesystem is read-only")
}

func digestOf(b []byte) core.Digest {
	sum := sha256.Sum256(b)
	return core.Digest(fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:])))
}

func TestOpener_RemoteOnly_NoDownload(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := []byte("remote layer bytes")
	d := digestOf(data)
	remote := &fakeRemoteFS{blobs: map[string][]byte{"http://repo/" + d.String(): data}}

	cfg := core.Config{RepoBlobURL: "http://repo", Download: core.DownloadConfig{Enable: false}}
	o := NewOpener(cfg, remote, layercache.New(), download.NewGate(), nil)
	o.LocalFS = localfs.New()

	status := imagestatus.New()
	f, err := o.Open(context.Background(), core.LayerIdentity{Directory: dir, Digest: d, Size: int64(len(data))}, status)
	require.NoError(t, err)
	assert.False(t, status.Failed())

	buf := make([]byte, len(data))
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])
}

func TestOpener_DownloadEnabled_Materializes(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := []byte("materialize this layer over time")
	d := digestOf(data)
	remote := &fakeRemoteFS{blobs: map[string][]byte{"http://repo/" + d.String(): data}}

	cfg := core.Config{
		RepoBlobURL: "http://repo",
		Download: core.DownloadConfig{
			Enable: true, Delay: 0, DelayExtra: 0, MaxMBps: 0, TryCnt: 3,
		},
	}
	o := NewOpener(cfg, remote, layercache.New(), download.NewGate(), nil)
	o.LocalFS = localfs.New()

	status := imagestatus.New()
	f, err := o.Open(context.Background(), core.LayerIdentity{Directory: dir, Digest: d, Size: int64(len(data))}, status)
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return localfs.New().Access(filepath.Join(dir, "overlaybd.commit")) == nil
	}, 2*time.Second, 5*time.Millisecond)

	buf := make([]byte, len(data))
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])
}

func TestOpener_CacheSharesSameRef(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := []byte("shared layer")
	d := digestOf(data)
	remote := &fakeRemoteFS{blobs: map[string][]byte{"http://repo/" + d.String(): data}}

	cfg := core.Config{RepoBlobURL: "http://repo"}
	cache := layercache.New()
	o := NewOpener(cfg, remote, cache, download.NewGate(), nil)
	o.LocalFS = localfs.New()

	status := imagestatus.New()
	id := core.LayerIdentity{Directory: dir, Digest: d, Size: int64(len(data))}

	f1, err := o.Open(context.Background(), id, status)
	require.NoError(t, err)
	f2, err := o.Open(context.Background(), id, status)
	require.NoError(t, err)

	assert.Same(t, f1, f2)
}

func TestOpener_PreMaterializedLayer_StartsLocal(t *testing.T) {
	t.Parallel()

	dir := t.TempDir()
	data := []byte("already on disk")
	fs := localfs.New()
	f, err := fs.Open(filepath.Join(dir, "overlaybd.commit"), core.OpenCreate)
	require.NoError(t, err)
	_, err = f.WriteAt(data, 0)
	require.NoError(t, err)
	require.NoError(t, f.Close())

	cfg := core.Config{RepoBlobURL: "http://repo"}
	o := NewOpener(cfg, &fakeRemoteFS{blobs: map[string][]byte{}}, layercache.New(), download.NewGate(), nil)
	o.LocalFS = fs

	status := imagestatus.New()
	got, err := o.Open(context.Background(), core.LayerIdentity{Directory: dir, Digest: digestOf(data), Size: int64(len(data))}, status)
	require.NoError(t, err)

	buf := make([]byte, len(data))
	n, err := got.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])
}
