package codec

import (
	"bytes"
	"compress/gzip"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/layertest"
)

func gzipBytes(t *testing.T, plain []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := gzip.NewWriter(&buf)
	_, err := w.Write(plain)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func TestStack_PassesThroughNonGzip(t *testing.T) {
	t.Parallel()

	plain := []byte("plain tar-ish content")
	f := layertest.MemFile(plain)

	out, err := New().OpenRO(f, false)
	require.NoError(t, err)

	buf := make([]byte, len(plain))
	n, err := out.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, buf[:n])
}

func TestStack_DecompressesGzip(t *testing.T) {
	t.Parallel()

	plain := []byte("layer contents worth compressing")
	f := layertest.MemFile(gzipBytes(t, plain))

	out, err := New().OpenRO(f, false)
	require.NoError(t, err)

	info, err := out.Stat()
	require.NoError(t, err)
	assert.Equal(t, int64(len(plain)), info.Size)

	buf := make([]byte, len(plain))
	n, err := out.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, plain, buf[:n])
}

func TestStack_EnforcesChecksumWhenRequested(t *testing.T) {
	t.Parallel()

	plain := []byte("trusted bytes")
	f := layertest.MemFile(plain)

	s := Stack{ExpectedDigest: core.Digest("sha256:" + hex.EncodeToString(make([]byte, 32)))}
	_, err := s.OpenRO(f, true)
	assert.Error(t, err)
}
