// Package layercache implements the process-wide, identity-keyed sharing
// cache: concurrent opens of the same layer (or the same ordered lower
// stack) receive the same reference-counted wrapper, and the underlying
// file is destroyed only when the last reference is closed. Grounded on
// the source's image_service.opened_files/opened_lowers maps and RefFile.
package layercache

import (
	"fmt"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/weftimage/lazybd/core"
)

// Cache is a single key->ref-counted-file table. The Layer Opener and the
// Parallel Layer Loader each own their own Cache instance (one keyed by
// single-layer identity, one by composite lower-stack key); nothing here
// is shared between those two namespaces.
type Cache struct {
	mu      sync.Mutex
	entries map[string]*Ref
	sg      singleflight.Group
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{entries: map[string]*Ref{}}
}

// Lookup returns the cached wrapper for key with its reference count
// incremented, or ok=false if no entry exists yet. Two concurrent Lookups
// (or a Lookup racing an Insert that wins first) for the same key return
// the identical *Ref pointer.
func (c *Cache) Lookup(key string) (ref *Ref, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, ok := c.entries[key]
	if !ok {
		return nil, false
	}
	r.refs++
	return r, true
}

// Insert stores file under key with a reference count of 1 and returns its
// wrapper. Callers that may race with another Insert for the same key
// should go through GetOrOpen instead, which serializes the open.
func (c *Cache) Insert(key string, file core.File) *Ref {
	c.mu.Lock()
	defer c.mu.Unlock()
	r := &Ref{File: file, cache: c, key: key, refs: 1}
	c.entries[key] = r
	return r
}

// insertZero is like Insert but starts the reference count at zero: the
// entry becomes visible to Lookup, but no caller has claimed a reference to
// it yet. GetOrOpen uses this so that every concurrent waiter (the one that
// actually called open included) claims its own reference through an
// ordinary Lookup once open completes.
func (c *Cache) insertZero(key string, file core.File) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = &Ref{File: file, cache: c, key: key, refs: 0}
}

// GetOrOpen returns the cached wrapper for key, calling open to produce it
// if absent. Concurrent GetOrOpen calls for the same missing key converge on
// a single call to open via a singleflight.Group, the pattern the source's
// registry converter uses to collapse concurrent conversions of the same
// descriptor; every caller, including whichever one's open actually ran,
// claims its own reference afterward, so RefCount ends up equal to the
// number of callers regardless of how the race landed.
func (c *Cache) GetOrOpen(key string, open func() (core.File, error)) (*Ref, error) {
	if ref, ok := c.Lookup(key); ok {
		return ref, nil
	}

	_, err, _ := c.sg.Do(key, func() (any, error) {
		// An earlier Do for key may have finished after this caller's
		// Lookup missed; reuse its entry instead of opening again.
		c.mu.Lock()
		_, exists := c.entries[key]
		c.mu.Unlock()
		if exists {
			return nil, nil
		}
		file, err := open()
		if err != nil {
			return nil, err
		}
		c.insertZero(key, file)
		return nil, nil
	})
	if err != nil {
		return nil, err
	}

	ref, ok := c.Lookup(key)
	if !ok {
		return nil, fmt.Errorf("layercache: entry for %q vanished immediately after open", key)
	}
	return ref, nil
}

// Ref is the reference-counted wrapper the cache hands out. It embeds
// core.File so every capability forwards transparently; Close is
// overridden to decrement the shared count and only close the underlying
// file once no references remain.
type Ref struct {
	core.File

	cache *Cache
	key   string
	refs  int
}

// Close decrements the reference count. The underlying file is closed,
// and the cache entry removed, only when the count reaches zero.
func (r *Ref) Close() error {
	r.cache.mu.Lock()
	r.refs--
	destroy := r.refs <= 0
	if destroy {
		delete(r.cache.entries, r.key)
	}
	r.cache.mu.Unlock()

	if !destroy {
		return nil
	}
	return r.File.Close()
}

// RefCount reports the current reference count, for tests.
func (r *Ref) RefCount() int {
	r.cache.mu.Lock()
	defer r.cache.mu.Unlock()
	return r.refs
}
