package download

import (
	"context"

	"golang.org/x/time/rate"

	"github.com/weftimage/lazybd/core"
)

// throttleBlock is the block size the throughput shim accounts against the
// limiter, matching the source's 1 MiB block over a 1-second window.
const throttleBlock = 1 << 20

// throttledFile wraps a core.File, rate-limiting ReadAt to at most maxMBps
// megabytes per second measured in throttleBlock-sized bursts.
type throttledFile struct {
	core.File
	limiter *rate.Limiter
	ctx     context.Context
}

// throttle wraps src so its ReadAt calls are paced to maxMBps. A maxMBps of
// zero is rejected by the caller before this is ever constructed; see
// download.go.
func throttle(ctx context.Context, src core.File, maxMBps float64) core.File {
	bytesPerSec := maxMBps * 1024 * 1024
	burst := throttleBlock
	lim := rate.NewLimiter(rate.Limit(bytesPerSec), burst)
	return &throttledFile{File: src, limiter: lim, ctx: ctx}
}

func (t *throttledFile) ReadAt(p []byte, off int64) (int, error) {
	if len(p) > throttleBlock {
		p = p[:throttleBlock]
	}
	if err := t.limiter.WaitN(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.File.ReadAt(p, off)
}
