// Package imagestatus implements the first-error-wins latch an image boot
// records failures into. Grounded on the source's m_status/m_exception and
// its explicit comment that these are set "only ... in image boot phase":
// the first failure sticks, and every later one is silently discarded.
package imagestatus

import "sync/atomic"

// Status is a process-wide (per image boot) failure latch.
type Status struct {
	failed     atomic.Bool
	authFailed atomic.Bool
	reason     atomic.Pointer[string]
}

// New returns a Status with no failure recorded.
func New() *Status {
	return &Status{}
}

// TrySetFailed records reason as the boot's failure if none has been
// recorded yet. Returns true iff this call won the race and its reason is
// the one now stored.
func (s *Status) TrySetFailed(reason string) bool {
	if !s.failed.CompareAndSwap(false, true) {
		return false
	}
	s.reason.Store(&reason)
	return true
}

// TrySetAuthFailed is TrySetFailed but additionally marks the failure as
// an authentication failure, for callers that distinguish the two.
func (s *Status) TrySetAuthFailed(reason string) bool {
	if !s.failed.CompareAndSwap(false, true) {
		return false
	}
	s.authFailed.Store(true)
	s.reason.Store(&reason)
	return true
}

// Failed reports whether any failure has been recorded.
func (s *Status) Failed() bool { return s.failed.Load() }

// AuthFailed reports whether the recorded failure was an auth failure.
func (s *Status) AuthFailed() bool { return s.authFailed.Load() }

// Reason returns the first recorded failure's human-readable reason, or
// the empty string if none has been recorded.
func (s *Status) Reason() string {
	p := s.reason.Load()
	if p == nil {
		return ""
	}
	return *p
}
