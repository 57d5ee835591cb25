package lazybd

import "github.com/weftimage/lazybd/core"

// Sentinel errors for common failure conditions. Re-exported from core so
// callers need not import the core package just to check errors.Is.
var (
	// ErrConfig indicates invalid or missing configuration.
	ErrConfig = core.ErrConfig

	// ErrIO indicates an open/read/write/rename failure.
	ErrIO = core.ErrIO

	// ErrAuth indicates a remote open was rejected for lack of permission.
	ErrAuth = core.ErrAuth

	// ErrIntegrity indicates a digest mismatch.
	ErrIntegrity = core.ErrIntegrity

	// ErrCancelled indicates an operation observed a cleared running flag.
	ErrCancelled = core.ErrCancelled

	// ErrClosed indicates an operation was attempted on a closed resource.
	ErrClosed = core.ErrClosed
)
