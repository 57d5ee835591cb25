package lazybd

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/layertest"
)

func digestOf(b []byte) core.Digest {
	sum := sha256.Sum256(b)
	return core.Digest(fmt.Sprintf("sha256:%s", hex.EncodeToString(sum[:])))
}

// rangeBlobHandler serves data as a flat blob, honoring HEAD (size probe)
// and Range GET requests the way a real object store would.
func rangeBlobHandler(data []byte) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(data)))
			w.WriteHeader(http.StatusOK)
			return
		}
		var start, end int
		if _, err := fmt.Sscanf(r.Header.Get("Range"), "bytes=%d-%d", &start, &end); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if end >= len(data) {
			end = len(data) - 1
		}
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(data)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(data[start : end+1])
	}
}

func TestNewClient_RejectsInvalidDownloadConfig(t *testing.T) {
	t.Parallel()

	_, err := NewClient(WithDownload(core.DownloadConfig{Enable: true, TryCnt: 0}))
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestNewClient_RejectsAccelerationWithRecordTrace(t *testing.T) {
	t.Parallel()

	_, err := NewClient(func(c *Client) error {
		c.config.AccelerationLayer = true
		c.config.RecordTracePath = "/tmp/trace"
		return nil
	})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrConfig)
}

func TestClient_OpenRemoteLayer(t *testing.T) {
	t.Parallel()

	data := []byte("hello from a remote layer")
	d := digestOf(data)

	srv := httptest.NewServer(http.HandlerFunc(rangeBlobHandler(data)))
	defer srv.Close()

	c, err := NewClient(WithRepoBlobURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	dir := t.TempDir()
	status := NewImageStatus()
	f, err := c.Open(context.Background(), core.LayerIdentity{Directory: dir, Digest: d, Size: int64(len(data))}, status)
	require.NoError(t, err)
	assert.False(t, status.Failed())

	buf := make([]byte, len(data))
	n, err := f.ReadAt(buf, 0)
	require.NoError(t, err)
	assert.Equal(t, data, buf[:n])
}

// joinStacker concatenates its lowers' full contents, for tests only.
type joinStacker struct{}

func (joinStacker) Stack(lowers []core.File) (core.File, error) {
	var out []byte
	for _, f := range lowers {
		buf := make([]byte, 4096)
		n, err := f.ReadAt(buf, 0)
		if err != nil && n == 0 {
			continue
		}
		out = append(out, buf[:n]...)
	}
	return layertest.MemFile(out), nil
}

func TestClient_OpenLowersSharesCompositeStack(t *testing.T) {
	t.Parallel()

	dirA, dirB := t.TempDir(), t.TempDir()
	dataA, dataB := []byte("layer-a"), []byte("layer-b")

	mux := http.NewServeMux()
	dA, dB := digestOf(dataA), digestOf(dataB)
	mux.HandleFunc("/"+dA.String(), rangeBlobHandler(dataA))
	mux.HandleFunc("/"+dB.String(), rangeBlobHandler(dataB))
	srv := httptest.NewServer(mux)
	defer srv.Close()

	c, err := NewClient(WithRepoBlobURL(srv.URL), WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	layers := []core.LayerIdentity{
		{Directory: dirA, Digest: dA, Size: int64(len(dataA))},
		{Directory: dirB, Digest: dB, Size: int64(len(dataB))},
	}

	f1, err := c.OpenLowers(context.Background(), layers, joinStacker{}, nil)
	require.NoError(t, err)
	f2, err := c.OpenLowers(context.Background(), layers, joinStacker{}, nil)
	require.NoError(t, err)

	assert.Same(t, f1, f2)
}
