package layercache

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/layertest"
)

func TestCache_LookupMissThenInsert(t *testing.T) {
	t.Parallel()

	c := New()
	_, ok := c.Lookup("/a")
	assert.False(t, ok)

	f := layertest.MemFile([]byte("data"))
	ref := c.Insert("/a", f)
	assert.Equal(t, 1, ref.RefCount())
}

func TestCache_ConcurrentLookupsSharePointerAndRefcount(t *testing.T) {
	t.Parallel()

	c := New()
	f := layertest.MemFile([]byte("data"))
	first := c.Insert("/a", f)

	second, ok := c.Lookup("/a")
	require.True(t, ok)
	assert.Same(t, first, second)
	assert.Equal(t, 2, first.RefCount())

	require.NoError(t, second.Close())
	assert.Equal(t, 1, first.RefCount())

	require.NoError(t, first.Close())
	_, ok = c.Lookup("/a")
	assert.False(t, ok)
}

func TestCache_GetOrOpenConvergesConcurrentMissesOnOneOpen(t *testing.T) {
	t.Parallel()

	c := New()
	var opens atomic.Int32
	f := layertest.MemFile([]byte("data"))

	const waiters = 16
	refs := make([]*Ref, waiters)
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			ref, err := c.GetOrOpen("/a", func() (core.File, error) {
				opens.Add(1)
				return f, nil
			})
			require.NoError(t, err)
			refs[i] = ref
		}(i)
	}
	wg.Wait()

	assert.Equal(t, int32(1), opens.Load())
	for _, ref := range refs {
		assert.Same(t, refs[0], ref)
	}
	assert.Equal(t, waiters, refs[0].RefCount())

	for _, ref := range refs {
		require.NoError(t, ref.Close())
	}
	_, ok := c.Lookup("/a")
	assert.False(t, ok)
}

func TestCache_GetOrOpenPropagatesOpenErrorToEveryWaiter(t *testing.T) {
	t.Parallel()

	c := New()
	wantErr := errors.New("boom")

	const waiters = 8
	errs := make([]error, waiters)
	var wg sync.WaitGroup
	wg.Add(waiters)
	for i := 0; i < waiters; i++ {
		go func(i int) {
			defer wg.Done()
			_, err := c.GetOrOpen("/a", func() (core.File, error) {
				return nil, wantErr
			})
			errs[i] = err
		}(i)
	}
	wg.Wait()

	for _, err := range errs {
		assert.ErrorIs(t, err, wantErr)
	}
	_, ok := c.Lookup("/a")
	assert.False(t, ok)
}

func TestCache_LastCloseDestroysUnderlying(t *testing.T) {
	t.Parallel()

	c := New()
	f := layertest.MemFile([]byte("data"))
	ref := c.Insert("/a", f)

	require.NoError(t, ref.Close())

	buf := make([]byte, 1)
	_, err := f.ReadAt(buf, 0)
	assert.Error(t, err) // closed.
}
