package lazybd

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/download"
	"github.com/weftimage/lazybd/internal/imagestatus"
	"github.com/weftimage/lazybd/internal/layer"
	"github.com/weftimage/lazybd/internal/layercache"
	"github.com/weftimage/lazybd/internal/loader"
	"github.com/weftimage/lazybd/internal/remotefs"
)

// Stacker combines an ordered list of opened lower-layer files into a
// single logical volume. LSMT stacking internals are out of scope; callers
// supply their own implementation.
type Stacker = loader.Stacker

// Prefetcher consumes a recorded prefetch trace for an acceleration layer.
// Prefetcher internals are out of scope.
type Prefetcher = loader.Prefetcher

// ImageStatus is the first-error-wins failure latch an image boot records
// into across every layer it opens.
type ImageStatus = imagestatus.Status

// NewImageStatus returns an ImageStatus with no failure recorded.
func NewImageStatus() *ImageStatus { return imagestatus.New() }

// Client opens and shares container image layers according to a single
// configuration. A Client owns one process-wide single-flight download
// gate and two sharing caches (one per layer, one per ordered lower stack);
// it is safe for concurrent use.
type Client struct {
	config     core.Config
	logger     *slog.Logger
	httpClient *http.Client
	prefetcher Prefetcher

	layerCache *layercache.Cache
	lowerCache *layercache.Cache
	gate       *download.Gate
	opener     *layer.Opener
}

// NewClient returns a Client configured by opts. The zero-value
// configuration rejects any remote open (an empty repoBlobUrl is a
// configuration error); set WithRepoBlobURL for remote layers.
func NewClient(opts ...ClientOption) (*Client, error) {
	c := &Client{
		logger:     slog.New(slog.DiscardHandler),
		httpClient: http.DefaultClient,
	}
	for _, opt := range opts {
		if err := opt(c); err != nil {
			return nil, err
		}
	}
	if err := c.config.Validate(); err != nil {
		return nil, err
	}

	c.layerCache = layercache.New()
	c.lowerCache = layercache.New()
	c.gate = download.NewGate()

	remoteFS := remotefs.New(c.httpClient)
	c.opener = layer.NewOpener(c.config, remoteFS, c.layerCache, c.gate, c.logger)

	return c, nil
}

// Open opens a single layer, sharing it with any other open call for the
// same identity. The returned file is a reference-counted wrapper; callers
// must Close it when done.
func (c *Client) Open(ctx context.Context, id core.LayerIdentity, status *ImageStatus) (core.File, error) {
	if status == nil {
		status = imagestatus.New()
	}
	return c.opener.Open(ctx, id, status)
}

// OpenLowers opens every identity in layers (in order) across a bounded
// worker pool, combines them with stacker, and shares the result under
// their composite key. On any single layer failure, every layer that did
// open successfully is closed and no entry is cached.
func (c *Client) OpenLowers(ctx context.Context, layers []core.LayerIdentity, stacker Stacker, status *ImageStatus) (core.File, error) {
	if status == nil {
		status = imagestatus.New()
	}
	l := loader.New(c.opener, c.lowerCache, stacker, c.prefetcher)
	return l.OpenLowers(ctx, c.config, layers, status)
}

// Config returns the configuration this client was constructed with.
func (c *Client) Config() core.Config { return c.config }
