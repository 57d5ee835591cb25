package remotefs

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
)

func TestValidateContentRange(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name           string
		header         string
		expectedOffset int64
		expectedLength int64
		wantErr        bool
	}{
		{name: "valid with total", header: "bytes 0-99/1000", expectedOffset: 0, expectedLength: 100},
		{name: "valid unknown total", header: "bytes 100-199/*", expectedOffset: 100, expectedLength: 100},
		{name: "empty accepted", header: "", expectedOffset: 0, expectedLength: 100},
		{name: "offset mismatch", header: "bytes 50-149/1000", expectedOffset: 0, expectedLength: 100, wantErr: true},
		{name: "length mismatch", header: "bytes 0-49/1000", expectedOffset: 0, expectedLength: 100, wantErr: true},
		{name: "malformed", header: "invalid", expectedOffset: 0, expectedLength: 100, wantErr: true},
		{name: "missing bytes prefix", header: "0-99/1000", expectedOffset: 0, expectedLength: 100, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := validateContentRange(tt.header, tt.expectedOffset, tt.expectedLength)
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFile_ReadAtIssuesRangeRequest(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
			w.WriteHeader(http.StatusOK)
			return
		}
		rng := r.Header.Get("Range")
		var start, end int
		_, err := fmt.Sscanf(rng, "bytes=%d-%d", &start, &end)
		require.NoError(t, err)
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, len(content)))
		w.WriteHeader(http.StatusPartialContent)
		w.Write(content[start : end+1])
	}))
	defer srv.Close()

	fs := New(srv.Client())
	f, err := fs.Open(srv.URL, core.OpenReadOnly)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 2)
	require.NoError(t, err)
	assert.Equal(t, "2345", string(buf[:n]))
}

func TestFile_ReadAtSkipsAheadWhenOriginIgnoresRange(t *testing.T) {
	t.Parallel()

	content := []byte("0123456789abcdef")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodHead {
			w.Header().Set("Content-Length", fmt.Sprintf("%d", len(content)))
			w.WriteHeader(http.StatusOK)
			return
		}
		// This origin ignores Range entirely and always answers 200 with
		// the full body, as some naive blob stores do.
		w.WriteHeader(http.StatusOK)
		w.Write(content)
	}))
	defer srv.Close()

	fs := New(srv.Client())
	f, err := fs.Open(srv.URL, core.OpenReadOnly)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := f.ReadAt(buf, 10)
	require.NoError(t, err)
	assert.Equal(t, "abcd", string(buf[:n]))
}

func TestFS_OpenUnauthorized(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	fs := New(srv.Client())
	_, err := fs.Open(srv.URL, core.OpenReadOnly)
	require.Error(t, err)
	var authErr *core.AuthError
	assert.ErrorAs(t, err, &authErr)
}
