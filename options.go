package lazybd

import (
	"log/slog"
	"net/http"

	"github.com/weftimage/lazybd/core"
)

// ClientOption configures a Client.
type ClientOption func(*Client) error

// WithLogger sets the logger that receives warnings for failed downloads,
// failed swaps, metadata-sidecar writes and prefetch-trace failures, and
// debug lines for slow local reads. Cache hits and phase transitions are
// not logged. The default discards logs.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) error {
		c.logger = logger
		return nil
	}
}

// WithRepoBlobURL sets the base URL remote layers are fetched from.
func WithRepoBlobURL(url string) ClientOption {
	return func(c *Client) error {
		c.config.RepoBlobURL = url
		return nil
	}
}

// WithIOEngine selects the I/O engine local commit files are opened with.
func WithIOEngine(eng core.IOEngine) ClientOption {
	return func(c *Client) error {
		c.config.IOEngine = eng
		return nil
	}
}

// WithDownload configures background download behavior.
func WithDownload(cfg core.DownloadConfig) ClientOption {
	return func(c *Client) error {
		c.config.Download = cfg
		return nil
	}
}

// WithAccelerationLayer marks the last lower of every OpenLowers call as a
// prefetch-trace pseudo-layer, replayed through the given Prefetcher rather
// than opened as block data.
func WithAccelerationLayer(prefetcher Prefetcher) ClientOption {
	return func(c *Client) error {
		c.config.AccelerationLayer = true
		c.prefetcher = prefetcher
		return nil
	}
}

// WithRecordTracePath runs the given Prefetcher in record mode after every
// OpenLowers call, writing observed reads to path. Mutually exclusive with
// WithAccelerationLayer.
func WithRecordTracePath(path string, prefetcher Prefetcher) ClientOption {
	return func(c *Client) error {
		c.config.RecordTracePath = path
		c.prefetcher = prefetcher
		return nil
	}
}

// WithHTTPClient sets the *http.Client used for remote blob reads.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) error {
		c.httpClient = hc
		return nil
	}
}
