// Package download implements the background materialization of a single
// remote layer: a process-wide single-flight gate, an optional throughput
// cap, and a bounded number of copy-verify-rename attempts. Grounded on the
// source's download_blob and download_done.
package download

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"time"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/copyengine"
	"github.com/weftimage/lazybd/internal/digesthash"
)

// copyBlockSize is the block size the copy engine is driven at during a
// download, and copyRetryLimit the per-block retry budget — both fixed by
// the source rather than exposed as configuration.
const (
	copyBlockSize  = 1 << 20
	copyRetryLimit = 1
)

// Params configures a single download attempt sequence.
type Params struct {
	// Src is the remote-backed source to copy from.
	Src core.File
	// Dst is the filesystem DstPath and its ".download" sibling live on.
	Dst core.Filesystem
	// DstPath is the final commit file path.
	DstPath string
	// TmpPath is the transient path written before the atomic rename into
	// DstPath. Callers materializing a remote layer should set this to
	// the identity's LayerIdentity.DownloadPath(); it defaults to
	// DstPath+".download" when left empty.
	TmpPath string
	// MetaPath, when non-empty, is where a best-effort JSON sidecar
	// recording {digest,size,media_type,created_at} is written once the
	// download has verified and renamed successfully. Typically
	// LayerIdentity.MetaPath().
	MetaPath string
	// MediaType is recorded in the metadata sidecar when MetaPath is set
	// and MediaType is non-empty; this layer of the stack does not parse
	// OCI manifests, so callers that know the descriptor's media type may
	// supply it here.
	MediaType string
	// Digest is the digest the completed download must match.
	Digest core.Digest
	// Delay is how long to wait before joining the gate.
	Delay time.Duration
	// MaxMBps caps throughput; zero disables throttling.
	MaxMBps float64
	// MaxTries bounds copy-and-verify attempts.
	MaxTries int
	// Running is polled before each step; a false return aborts with
	// core.ErrCancelled.
	Running func() bool
}

// Coordinator serializes downloads across a process through a shared Gate.
type Coordinator struct {
	gate   *Gate
	logger *slog.Logger
}

// New returns a Coordinator admitting downloads through gate. logger may be
// nil, in which case sidecar-write warnings are discarded.
func New(gate *Gate, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Coordinator{gate: gate, logger: logger}
}

// Run executes the delay, the gated copy-verify-rename attempts, and
// returns nil only if a copy both verified and renamed successfully.
func (c *Coordinator) Run(ctx context.Context, p Params) error {
	if err := sleepCancellable(ctx, p.Delay, p.Running); err != nil {
		return err
	}

	if err := c.gate.Acquire(ctx); err != nil {
		return err
	}
	defer c.gate.Release()

	src := p.Src
	if p.MaxMBps > 0 {
		src = throttle(ctx, src, p.MaxMBps)
	}

	tmpPath := p.TmpPath
	if tmpPath == "" {
		tmpPath = p.DstPath + ".download"
	}

	var lastErr error
	for attempt := 0; attempt < p.MaxTries; attempt++ {
		if p.Running != nil && !p.Running() {
			return core.ErrCancelled
		}

		tmp, err := p.Dst.Open(tmpPath, core.OpenCreate)
		if err != nil {
			lastErr = err
			continue
		}

		if _, err := copyengine.Copy(ctx, src, tmp, copyBlockSize, copyRetryLimit, p.Running); err != nil {
			tmp.Close()
			lastErr = err
			continue
		}

		got, err := digesthash.Digest(ctx, tmp)
		tmp.Close()
		if err != nil {
			lastErr = err
			continue
		}
		if got != p.Digest {
			lastErr = &core.IntegrityError{Want: string(p.Digest), Got: string(got)}
			continue
		}

		if p.Running != nil && !p.Running() {
			return core.ErrCancelled
		}
		if err := p.Dst.Rename(tmpPath, p.DstPath); err != nil {
			return &core.IoError{Op: "rename", Path: p.DstPath, Err: err}
		}
		if p.MetaPath != "" {
			c.writeMetaSidecar(p)
		}
		return nil
	}

	return lastErr
}

// layerMeta is the JSON sidecar recorded alongside a verified commit file.
type layerMeta struct {
	Digest    string `json:"digest"`
	Size      int64  `json:"size"`
	MediaType string `json:"media_type,omitempty"`
	CreatedAt string `json:"created_at"`
}

// writeMetaSidecar writes p.MetaPath's best-effort metadata sidecar. A
// failure here never fails the download itself; it is logged and dropped.
func (c *Coordinator) writeMetaSidecar(p Params) {
	info, err := p.Dst.Open(p.DstPath, core.OpenReadOnly)
	if err != nil {
		c.logger.Warn("could not stat commit file for metadata sidecar", "path", p.MetaPath, "error", err)
		return
	}
	stat, err := info.Stat()
	info.Close()
	if err != nil {
		c.logger.Warn("could not stat commit file for metadata sidecar", "path", p.MetaPath, "error", err)
		return
	}

	meta := layerMeta{
		Digest:    string(p.Digest),
		Size:      stat.Size,
		MediaType: p.MediaType,
		CreatedAt: time.Now().UTC().Format(time.RFC3339),
	}
	data, err := json.Marshal(meta)
	if err != nil {
		c.logger.Warn("could not marshal metadata sidecar", "path", p.MetaPath, "error", err)
		return
	}

	f, err := p.Dst.Open(p.MetaPath, core.OpenCreate)
	if err != nil {
		c.logger.Warn("could not open metadata sidecar", "path", p.MetaPath, "error", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteAt(data, 0); err != nil {
		c.logger.Warn("could not write metadata sidecar", "path", p.MetaPath, "error", err)
		return
	}
	if err := f.Truncate(int64(len(data))); err != nil {
		c.logger.Warn("could not truncate metadata sidecar", "path", p.MetaPath, "error", err)
	}
}

// NewDelay computes the jittered start delay the Layer Opener seeds a
// download with: base + uniform(0, extra), defaulting extra to 30 when
// given negative.
func NewDelay(base, extra float64) time.Duration {
	if extra < 0 {
		extra = 30
	}
	jitter := rand.Float64() * extra //nolint:gosec // timing jitter, not security sensitive
	return time.Duration((base + jitter) * float64(time.Second))
}

func sleepCancellable(ctx context.Context, d time.Duration, running func() bool) error {
	if running != nil && !running() {
		return core.ErrCancelled
	}
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		if running != nil && !running() {
			return core.ErrCancelled
		}
		return nil
	}
}
