// Package switchfile implements the Switch File: a File that forwards
// reads to either a remote or local backing and performs an atomic,
// reader-safe switchover between them once a background download has
// verified a local commit file. Grounded on the source's SwitchFile and
// its check_switch state machine.
package switchfile

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/weftimage/lazybd/core"
	"github.com/weftimage/lazybd/internal/download"
)

// Phase is one of the four states a Switch File's backing can be in.
// Observed phases are non-decreasing in this order, with one exception: a
// swap whose commit-file open fails returns from PhaseSwapping to
// PhaseRemote.
type Phase int32

const (
	PhaseRemote Phase = iota
	PhaseReadyToSwap
	PhaseSwapping
	PhaseLocal
)

func (p Phase) String() string {
	switch p {
	case PhaseRemote:
		return "remote"
	case PhaseReadyToSwap:
		return "ready-to-swap"
	case PhaseSwapping:
		return "swapping"
	case PhaseLocal:
		return "local"
	default:
		return "unknown"
	}
}

// drainPoll is the sleep interval used while waiting for inflight reads to
// drain during a swap, and while a loser retries past PhaseSwapping.
const drainPoll = time.Millisecond

// auditThreshold is the pread latency above which a local-backing read is
// logged; observational only, never affects control flow.
const auditThreshold = 10 * time.Millisecond

// Options configures a SwitchFile at construction.
type Options struct {
	CommitFS   core.Filesystem
	CommitPath string
	Codec      core.Codec
	Logger     *slog.Logger
}

// SwitchFile implements core.File, forwarding to whichever backing is
// currently active and swapping from remote to local at most once.
type SwitchFile struct {
	phase    atomic.Int32
	inflight atomic.Int64
	running  atomic.Bool

	backingMu sync.RWMutex
	backing   core.File

	commitFS   core.Filesystem
	commitPath string
	codec      core.Codec
	logger     *slog.Logger

	downloadCancel context.CancelFunc
	downloadDone   chan struct{}
}

// New constructs a SwitchFile starting in PhaseRemote, backed by remote
// until a download marks it ready to swap.
func New(remote core.File, opts Options) *SwitchFile {
	s := newBase(opts)
	s.backing = remote
	s.phase.Store(int32(PhaseRemote))
	return s
}

// NewLocal constructs a SwitchFile already in the terminal PhaseLocal,
// for pre-materialized layers (a local path, or a commit file that already
// existed at open time).
func NewLocal(local core.File, opts Options) *SwitchFile {
	s := newBase(opts)
	s.backing = local
	s.phase.Store(int32(PhaseLocal))
	return s
}

func newBase(opts Options) *SwitchFile {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	s := &SwitchFile{
		commitFS:   opts.CommitFS,
		commitPath: opts.CommitPath,
		codec:      opts.Codec,
		logger:     logger,
	}
	s.running.Store(true)
	return s
}

// Phase returns the current phase.
func (s *SwitchFile) Phase() Phase { return Phase(s.phase.Load()) }

// Running reports whether the SwitchFile has not yet been closed; it is
// handed to the download coordinator and copy engine as their cancellation
// poll.
func (s *SwitchFile) Running() bool { return s.running.Load() }

// StartDownload launches a background download that, on success, marks
// this SwitchFile ready to swap. Failure is logged and leaves the phase at
// PhaseRemote; reads continue against remote unaffected.
func (s *SwitchFile) StartDownload(ctx context.Context, coord *download.Coordinator, params download.Params) {
	ctx, cancel := context.WithCancel(ctx)
	s.downloadCancel = cancel
	s.downloadDone = make(chan struct{})
	params.Running = s.Running

	go func() {
		defer close(s.downloadDone)
		if err := coord.Run(ctx, params); err != nil {
			s.logger.Warn("layer download did not complete", "path", s.commitPath, "error", err)
			return
		}
		s.markReadyToSwap()
	}()
}

func (s *SwitchFile) markReadyToSwap() {
	s.phase.CompareAndSwap(int32(PhaseRemote), int32(PhaseReadyToSwap))
}

// ReadAt implements the per-read switchover protocol: phases Remote and
// Local are forwarded directly under the inflight fence; ReadyToSwap
// elects exactly one caller (via CAS) to perform the swap; Swapping callers
// retry after a short sleep.
func (s *SwitchFile) ReadAt(p []byte, off int64) (int, error) {
	for {
		switch Phase(s.phase.Load()) {
		case PhaseLocal, PhaseRemote:
			return s.forwardRead(p, off)

		case PhaseReadyToSwap:
			if s.phase.CompareAndSwap(int32(PhaseReadyToSwap), int32(PhaseSwapping)) {
				s.performSwap()
			}
			// Winner falls through to retry with the new phase; losers
			// retry too, observing Swapping or Local next iteration.

		case PhaseSwapping:
			time.Sleep(drainPoll)
		}
	}
}

func (s *SwitchFile) forwardRead(p []byte, off int64) (int, error) {
	s.inflight.Add(1)
	backing := s.currentBacking()
	start := time.Now()
	n, err := backing.ReadAt(p, off)
	s.inflight.Add(-1)

	if Phase(s.phase.Load()) == PhaseLocal {
		if elapsed := time.Since(start); elapsed > auditThreshold {
			s.logger.Debug("slow local pread", "path", s.commitPath, "elapsed", elapsed)
		}
	}
	return n, err
}

func (s *SwitchFile) currentBacking() core.File {
	s.backingMu.RLock()
	defer s.backingMu.RUnlock()
	return s.backing
}

// performSwap drains inflight reads against the old backing, opens the
// commit file through the decode stack, and publishes it as the new
// backing. On any failure it reverts to PhaseRemote and keeps the old
// backing; it never fails a read.
func (s *SwitchFile) performSwap() {
	for s.inflight.Load() > 0 {
		time.Sleep(drainPoll)
	}

	local, err := s.openLocal()
	if err != nil {
		s.logger.Warn("swap to local commit file failed, staying remote", "path", s.commitPath, "error", err)
		s.phase.Store(int32(PhaseRemote))
		return
	}

	s.backingMu.Lock()
	superseded := s.backing
	s.backing = local
	s.backingMu.Unlock()

	s.phase.Store(int32(PhaseLocal))

	// No reader can still be touching superseded: inflight was drained to
	// zero above, and forwardRead only ever resolves currentBacking to
	// whatever backingMu currently guards, which is now local. Close it
	// here instead of holding the remote handle open until the Switch
	// File itself closes.
	if err := superseded.Close(); err != nil {
		s.logger.Warn("closing superseded remote backing after swap", "path", s.commitPath, "error", err)
	}
}

func (s *SwitchFile) openLocal() (core.File, error) {
	raw, err := s.commitFS.Open(s.commitPath, core.OpenReadOnly)
	if err != nil {
		return nil, &core.IoError{Op: "open", Path: s.commitPath, Err: err}
	}
	// Local backings skip checksum enforcement in the codec: the download
	// coordinator already verified the digest before the rename that made
	// this file observable.
	return s.codec.OpenRO(raw, false)
}

// WriteAt, Stat, Sync, Truncate, and Filesystem forward directly to the
// current backing; they do not participate in the switchover protocol.

func (s *SwitchFile) WriteAt(p []byte, off int64) (int, error) {
	return s.currentBacking().WriteAt(p, off)
}

func (s *SwitchFile) Stat() (core.FileInfo, error) {
	return s.currentBacking().Stat()
}

func (s *SwitchFile) Sync() error {
	return s.currentBacking().Sync()
}

func (s *SwitchFile) Truncate(size int64) error {
	return s.currentBacking().Truncate(size)
}

func (s *SwitchFile) Filesystem() core.Filesystem {
	return s.currentBacking().Filesystem()
}

// Close stops any background download, waits for it to observe the stop,
// and releases the current backing. A superseded remote backing, if a swap
// already occurred, was already closed by performSwap. No read may be
// started after Close begins.
func (s *SwitchFile) Close() error {
	s.running.Store(false)
	if s.downloadCancel != nil {
		s.downloadCancel()
	}
	if s.downloadDone != nil {
		<-s.downloadDone
	}

	s.backingMu.Lock()
	defer s.backingMu.Unlock()

	if s.backing == nil {
		return nil
	}
	return s.backing.Close()
}
