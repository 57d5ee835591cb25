// Package loader implements the Parallel Layer Loader: a bounded-fanout
// concurrent opener that materializes all lower layers of an image,
// short-circuiting on first error. Grounded on the source's
// ParallelOpenTask/do_parallel_open_files and open_lowers.
package loader

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/imagestatus"
	"github.com/weftimage/lazybd/internal/layer"
	"github.com/weftimage/lazybd/internal/layercache"
)

// maxParallelOpens is the fixed worker fan-out, matching the source's
// PARALLEL_LOAD_INDEX.
const maxParallelOpens = 32

// Stacker combines an ordered list of opened lower-layer files into a
// single logical volume; no read-write upper is passed. Its internals
// are out of scope; this is the narrow interface the loader calls into.
type Stacker interface {
	Stack(lowers []core.File) (core.File, error)
}

// Prefetcher consumes or produces a recorded prefetch trace. Its internals
// (the trace format itself, and how replay influences I/O scheduling) are
// out of scope; this is the narrow interface the loader hands a trace path
// to once the acceleration-layer/record-mode policy has been resolved.
type Prefetcher interface {
	Replay(tracePath string) error
	Record(tracePath string) error
}

// Loader opens every lower layer of an image across a bounded worker pool
// and shares the resulting stacked file through a composite-key cache.
type Loader struct {
	Opener     *layer.Opener
	Cache      *layercache.Cache
	Stacker    Stacker
	Prefetcher Prefetcher
}

// New returns a Loader using opener to open individual layers and stacker
// to combine them, sharing stacked results through cache. prefetcher may be
// nil if acceleration-layer replay is not needed.
func New(opener *layer.Opener, cache *layercache.Cache, stacker Stacker, prefetcher Prefetcher) *Loader {
	return &Loader{Opener: opener, Cache: cache, Stacker: stacker, Prefetcher: prefetcher}
}

// OpenLowers opens every identity in layers (in order), stacks them, and
// shares the result under their composite key. On any single layer
// failure, every layer that did open successfully is closed and no entry
// is inserted into the cache. Concurrent OpenLowers calls for the same
// composite key converge on a single fan-out and stack (see
// Cache.GetOrOpen); only one of them actually does the work.
//
// The acceleration-layer/record-trace-path mutual exclusion (cfg.Validate)
// is checked once here, before the fan-out even starts, rather than deep
// inside it. When cfg.AccelerationLayer is set, the last entry of layers is
// treated as a prefetch-trace pseudo-layer: it is excluded from the
// opened/stacked set and its trace file is handed to the Prefetcher in
// replay mode instead. When cfg.RecordTracePath is set instead, every layer
// opens and stacks normally and the Prefetcher is started in record mode
// once stacking succeeds.
func (l *Loader) OpenLowers(ctx context.Context, cfg core.Config, layers []core.LayerIdentity, status *imagestatus.Status) (core.File, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	var tracePath, recordPath string
	if cfg.AccelerationLayer && len(layers) > 0 {
		accel := layers[len(layers)-1]
		layers = layers[:len(layers)-1]
		tracePath = accel.Directory + "/trace"
	} else if cfg.RecordTracePath != "" {
		recordPath = cfg.RecordTracePath
	}

	keys := make([]string, len(layers))
	for i, id := range layers {
		keys[i] = id.Key()
	}
	compositeKey := core.LowerStackKey(keys)

	return l.Cache.GetOrOpen(compositeKey, func() (core.File, error) {
		opened := make([]core.File, len(layers))
		var errSlot atomic.Value // holds error
		var nextIndex atomic.Int64

		var wg sync.WaitGroup
		workers := min(maxParallelOpens, len(layers))
		for w := 0; w < workers; w++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				for {
					if errSlot.Load() != nil {
						return
					}
					idx := int(nextIndex.Add(1)) - 1
					if idx >= len(layers) {
						return
					}
					f, err := l.Opener.Open(ctx, layers[idx], status)
					if err != nil {
						errSlot.Store(fmt.Errorf("layer %d: %w", idx, err))
						return
					}
					opened[idx] = f
				}
			}()
		}
		wg.Wait()

		if v := errSlot.Load(); v != nil {
			closeAll(opened)
			return nil, v.(error)
		}
		for _, f := range opened {
			if f == nil {
				closeAll(opened)
				return nil, fmt.Errorf("loader: internal error, a layer slot was never filled")
			}
		}

		stacked, err := l.Stacker.Stack(opened)
		if err != nil {
			closeAll(opened)
			return nil, err
		}

		if l.Prefetcher != nil {
			switch {
			case tracePath != "":
				if err := l.Prefetcher.Replay(tracePath); err != nil {
					l.Opener.Logger.Warn("acceleration layer trace replay failed, continuing without it", "trace", tracePath, "error", err)
				}
			case recordPath != "":
				if err := l.Prefetcher.Record(recordPath); err != nil {
					l.Opener.Logger.Warn("prefetch trace recording failed to start, continuing without it", "trace", recordPath, "error", err)
				}
			}
		}

		return stacked, nil
	})
}

func closeAll(files []core.File) {
	for _, f := range files {
		if f != nil {
			f.Close()
		}
	}
}
