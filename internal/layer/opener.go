// Package layer implements the Layer Opener: constructs the per-layer file
// stack (decompression/tar-framing codec, Switch File, reference wrapper)
// and selects remote vs. local backing at open time. Grounded on the
// source's __open_ro_file/__open_ro_remote_share/__open_ro_remote.
package layer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/codec"
	"github.com/weftimage/lazybd/internal/download"
	"github.com/weftimage/lazybd/internal/imagestatus"
	"github.com/weftimage/lazybd/internal/layercache"
	"github.com/weftimage/lazybd/internal/localfs"
	"github.com/weftimage/lazybd/internal/switchfile"
)

// Opener constructs Switch-File-backed layers and shares them through a
// Cache keyed by layer identity.
type Opener struct {
	Config     core.Config
	LocalFS    core.Filesystem
	RemoteFS   core.Filesystem
	Cache      *layercache.Cache
	Downloads  *download.Coordinator
	Logger     *slog.Logger
}

// NewOpener returns an Opener over cfg, sharing downloads through gate and
// caching opened layers in cache.
func NewOpener(cfg core.Config, remoteFS core.Filesystem, cache *layercache.Cache, gate *download.Gate, logger *slog.Logger) *Opener {
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Opener{
		Config:    cfg,
		LocalFS:   localfs.New(),
		RemoteFS:  remoteFS,
		Cache:     cache,
		Downloads: download.New(gate, logger),
		Logger:    logger,
	}
}

// Open returns the shared file for id, opening and caching it on first
// access. Concurrent Open calls for the same identity converge on a single
// underlying open (see Cache.GetOrOpen). Auth failures and other open
// failures are additionally recorded into status under the image-boot
// first-error-wins policy.
func (o *Opener) Open(ctx context.Context, id core.LayerIdentity, status *imagestatus.Status) (core.File, error) {
	ref, err := o.Cache.GetOrOpen(id.Key(), func() (core.File, error) {
		return o.open(ctx, id)
	})
	if err != nil {
		o.recordFailure(id, err, status)
		return nil, err
	}
	return ref, nil
}

func (o *Opener) recordFailure(id core.LayerIdentity, err error, status *imagestatus.Status) {
	reason := fmt.Sprintf("open layer %s: %v", id.Key(), err)
	var authErr *core.AuthError
	if errors.As(err, &authErr) {
		status.TrySetAuthFailed(reason)
		return
	}
	status.TrySetFailed(reason)
}

func (o *Opener) open(ctx context.Context, id core.LayerIdentity) (core.File, error) {
	if id.IsLocal() {
		return o.openLocalPath(id.Path)
	}
	return o.openRemoteBacked(ctx, id)
}

func (o *Opener) openLocalPath(path string) (core.File, error) {
	raw, err := o.LocalFS.Open(path, core.OpenReadOnly)
	if err != nil {
		return nil, err
	}
	raw = localfs.WrapIfLibaio(raw, o.Config.IOEngine)
	decoded, err := codec.New().OpenRO(raw, false)
	if err != nil {
		return nil, err
	}
	return switchfile.NewLocal(decoded, switchfile.Options{
		CommitFS: o.LocalFS,
		Codec:    codec.New(),
		Logger:   o.Logger,
	}), nil
}

func (o *Opener) openRemoteBacked(ctx context.Context, id core.LayerIdentity) (core.File, error) {
	commitPath := id.CommitPath()
	decodeLocal := codec.Stack{ExpectedDigest: id.Digest}
	decodeRemote := codec.Stack{ExpectedDigest: id.Digest}

	if o.LocalFS.Access(commitPath) == nil {
		raw, err := o.LocalFS.Open(commitPath, core.OpenReadOnly)
		if err != nil {
			return nil, err
		}
		raw = localfs.WrapIfLibaio(raw, o.Config.IOEngine)
		decoded, err := decodeLocal.OpenRO(raw, false)
		if err != nil {
			return nil, err
		}
		return switchfile.NewLocal(decoded, switchfile.Options{
			CommitFS: o.LocalFS,
			Codec:    decodeLocal,
			Logger:   o.Logger,
		}), nil
	}

	base, err := o.Config.NormalizedRepoBlobURL()
	if err != nil {
		return nil, err
	}
	blobURL := base + id.Digest.String()

	remote, err := o.RemoteFS.Open(blobURL, core.OpenReadOnly)
	if err != nil {
		return nil, err
	}
	decodedRemote, err := decodeRemote.OpenRO(remote, true)
	if err != nil {
		return nil, err
	}

	sf := switchfile.New(decodedRemote, switchfile.Options{
		CommitFS:   o.LocalFS,
		CommitPath: commitPath,
		Codec:      decodeLocal,
		Logger:     o.Logger,
	})

	if o.Config.Download.Enable {
		dlSrc, err := o.RemoteFS.Open(blobURL, core.OpenReadOnly)
		if err != nil {
			o.Logger.Warn("could not open second handle for background download, layer stays remote", "layer", id.Key(), "error", err)
			return sf, nil
		}
		delay := download.NewDelay(o.Config.Download.Delay, o.Config.Download.EffectiveDelayExtra())
		sf.StartDownload(ctx, o.Downloads, download.Params{
			Src:      dlSrc,
			Dst:      o.LocalFS,
			DstPath:  commitPath,
			TmpPath:  id.DownloadPath(),
			MetaPath: id.MetaPath(),
			Digest:   id.Digest,
			Delay:    delay,
			MaxMBps:  o.Config.Download.MaxMBps,
			MaxTries: o.Config.Download.TryCnt,
		})
	}

	return sf, nil
}
