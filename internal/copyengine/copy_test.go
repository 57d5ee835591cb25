package copyengine

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/layertest"
)

func always(b bool) func() bool { return func() bool { return b } }

func TestCopy_ExactBlockMultiple(t *testing.T) {
	t.Parallel()

	data := make([]byte, Alignment*3)
	for i := range data {
		data[i] = byte(i)
	}
	src := layertest.MemFile(data)
	dst := layertest.MemFile(nil)

	n, err := Copy(context.Background(), src, dst, Alignment, 1, always(true))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Equal(t, data, layertest.Contents(dst))
}

func TestCopy_ShortFinalBlockTruncates(t *testing.T) {
	t.Parallel()

	data := make([]byte, Alignment+100)
	src := layertest.MemFile(data)
	dst := layertest.MemFile(nil)

	n, err := Copy(context.Background(), src, dst, Alignment, 1, always(true))
	require.NoError(t, err)
	assert.Equal(t, int64(len(data)), n)
	assert.Len(t, layertest.Contents(dst), len(data))
}

func TestCopy_CancelledMidway(t *testing.T) {
	t.Parallel()

	data := make([]byte, Alignment*5)
	src := layertest.MemFile(data)
	dst := layertest.MemFile(nil)

	// running reports true for the first two blocks, then false.
	var polls int
	running := func() bool { polls++; return polls <= 2 }

	n, err := Copy(context.Background(), src, dst, Alignment, 1, running)
	assert.ErrorIs(t, err, core.ErrCancelled)
	assert.Equal(t, int64(2*Alignment), n)
}

func TestCopy_RejectsUnalignedBlockSize(t *testing.T) {
	t.Parallel()

	src := layertest.MemFile(nil)
	dst := layertest.MemFile(nil)

	_, err := Copy(context.Background(), src, dst, 100, 1, always(true))
	assert.Error(t, err)
}
