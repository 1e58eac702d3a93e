// Package cache implements a named, size-bounded key/value cache with TTL
// expiry, LRU eviction, transaction-epoch visibility for tentative writes,
// and single-flight entry creation, generalized from a block-buffer file
// cache into a generic string-keyed value cache with commit/rollback
// semantics.
package cache

import (
	"container/list"
	"sync"
	"time"
)

// entry is one cache slot: a key, its value (absent while a creator is
// still building it), size accounting, expiry, and optional transaction
// epoch visibility.
type entry struct {
	key       string
	value     any
	hasValue  bool
	size      uint64
	expiresAt time.Time // zero means no TTL
	epoch     uint64    // 0 = committed/global; non-zero = visible only within that transaction
	elem      *list.Element
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// FreeFunc is invoked when an entry's value is evicted or flushed.
type FreeFunc func(value any)

// Cache is a named, size-bounded, LRU-evicting key/value store.
type Cache struct {
	Name string

	mu   sync.Mutex
	cond *sync.Cond

	maxSize uint64
	curSize uint64
	ttl     time.Duration // 0 = no TTL
	free    FreeFunc

	entries map[string]*entry
	lru     *list.List // front = most recently used

	nextEpoch uint64
}

// New creates a named cache with the given byte size cap (0 = unbounded),
// default TTL (0 = no expiry), and optional value-free callback.
func New(name string, maxSize uint64, ttl time.Duration, free FreeFunc) *Cache {
	c := &Cache{
		Name:    name,
		maxSize: maxSize,
		ttl:     ttl,
		free:    free,
		entries: make(map[string]*entry),
		lru:     list.New(),
	}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Size returns the current total size of committed entries, including
// expired ones that have not been flushed or replaced yet.
func (c *Cache) Size() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.curSize
}

// FindEntry returns the value for key, visible under the given transaction
// stack (nil/empty for a globally-committed-only lookup).
func (c *Cache) FindEntry(key string, txStack []uint64) (any, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok || !e.hasValue || e.expired(time.Now()) {
		return nil, false
	}
	if !c.visible(e, txStack) {
		return nil, false
	}
	c.touch(e)
	return e.value, true
}

// visible reports whether e is visible to a lookup holding txStack: a
// committed entry (epoch 0) is always visible; an uncommitted entry is
// visible only if its epoch is in txStack.
func (c *Cache) visible(e *entry, txStack []uint64) bool {
	if e.epoch == 0 {
		return true
	}
	for _, ep := range txStack {
		if ep == e.epoch {
			return true
		}
	}
	return false
}

// CreateEntry inserts an empty (valueless) entry for key unless a
// non-expired one already exists. It reports whether an entry was created.
func (c *Cache) CreateEntry(key string) (created bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok && !e.expired(time.Now()) {
		return false
	}
	c.entries[key] = &entry{key: key}
	return true
}

// WaitCreateEntry returns the existing value for key if present and
// committed; otherwise, if another goroutine is already building key (an
// empty entry exists), it blocks on the cache's condition variable until
// the value is set, the entry is flushed, or timeout elapses. It guarantees
// at most one concurrent builder per key.
//
// Returns (value, hasValue, isCreator, timedOut).
func (c *Cache) WaitCreateEntry(key string, timeout time.Duration) (value any, hasValue bool, isCreator bool, timedOut bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	deadline := time.Time{}
	if timeout > 0 {
		deadline = time.Now().Add(timeout)
	}

	for {
		e, ok := c.entries[key]
		if !ok || e.expired(time.Now()) {
			c.entries[key] = &entry{key: key}
			return nil, false, true, false
		}
		if e.hasValue && e.epoch == 0 {
			c.touch(e)
			return e.value, true, false, false
		}
		// Entry exists but has no committed value yet: someone else is
		// building it.
		if !deadline.IsZero() && time.Now().After(deadline) {
			return nil, false, false, true
		}
		c.waitWithDeadline(deadline)
	}
}

// waitWithDeadline blocks on the cache's condvar, waking spuriously at
// deadline if one was given. Caller holds c.mu.
func (c *Cache) waitWithDeadline(deadline time.Time) {
	if deadline.IsZero() {
		c.cond.Wait()
		return
	}
	d := time.Until(deadline)
	if d <= 0 {
		return
	}
	timer := time.AfterFunc(d, func() {
		c.mu.Lock()
		c.cond.Broadcast()
		c.mu.Unlock()
	})
	defer timer.Stop()
	c.cond.Wait()
}

// SetValueExpires publishes value for key with the given size, expiry
// (zero = the cache's default TTL from now, or never when that TTL is 0),
// and transaction epoch (0 = commit immediately/globally
// visible; non-zero = visible only within that transaction until Commit or
// Rollback). It signals any WaitCreateEntry callers blocked on key.
func (c *Cache) SetValueExpires(key string, value any, size uint64, expiresAt time.Time, epoch uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		e = &entry{key: key}
		c.entries[key] = e
	}
	if e.hasValue && e.epoch == 0 {
		c.curSize -= e.size // replacing a committed value
	}
	if expiresAt.IsZero() && c.ttl > 0 {
		expiresAt = time.Now().Add(c.ttl)
	}
	e.value, e.hasValue, e.size, e.expiresAt, e.epoch = value, true, size, expiresAt, epoch

	if epoch == 0 {
		c.curSize += size
		c.touch(e)
		c.evictLocked()
	}

	c.cond.Broadcast()
}

// NextEpoch returns a strictly monotonic transaction epoch id for a new
// tentative-write transaction.
func (c *Cache) NextEpoch() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.nextEpoch++
	return c.nextEpoch
}

// CommitEntries makes every uncommitted entry of the given epoch globally
// visible, folds its size into the cache total, evicts if needed, and
// wakes waiters.
func (c *Cache) CommitEntries(epoch uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for _, e := range c.entries {
		if e.epoch == epoch {
			e.epoch = 0
			c.curSize += e.size
			c.touch(e)
			n++
		}
	}
	if n > 0 {
		c.evictLocked()
		c.cond.Broadcast()
	}
	return n
}

// RollbackEntries discards every uncommitted entry of the given epoch and
// wakes waiters.
func (c *Cache) RollbackEntries(epoch uint64) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := 0
	for k, e := range c.entries {
		if e.epoch == epoch {
			c.freeLocked(e)
			delete(c.entries, k)
			n++
		}
	}
	if n > 0 {
		c.cond.Broadcast()
	}
	return n
}

// FlushEntry removes key unconditionally, freeing its value. Reports
// whether an entry was removed.
func (c *Cache) FlushEntry(key string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.entries[key]
	if !ok {
		return false
	}
	c.freeLocked(e)
	delete(c.entries, key)
	c.cond.Broadcast()
	return true
}

// Flush removes every entry, returning the count removed.
func (c *Cache) Flush() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.entries)
	for _, e := range c.entries {
		c.freeLocked(e)
	}
	c.entries = make(map[string]*entry)
	c.lru.Init()
	c.curSize = 0
	c.cond.Broadcast()
	return n
}

// touch marks e most-recently-used, inserting it into the LRU list if
// needed. Caller holds c.mu.
func (c *Cache) touch(e *entry) {
	if e.elem != nil {
		c.lru.MoveToFront(e.elem)
		return
	}
	e.elem = c.lru.PushFront(e)
}

// freeLocked invokes the cache's free callback on e's value (if any) and
// removes its LRU linkage and size contribution. Caller holds c.mu.
func (c *Cache) freeLocked(e *entry) {
	if e.elem != nil {
		c.lru.Remove(e.elem)
		e.elem = nil
	}
	if e.epoch == 0 && e.hasValue {
		c.curSize -= e.size
	}
	if c.free != nil && e.hasValue {
		c.free(e.value)
	}
}

// evictLocked evicts least-recently-used committed entries until curSize
// fits within maxSize. Uncommitted (in-flight transaction) entries are
// never evicted. Caller holds c.mu.
func (c *Cache) evictLocked() {
	if c.maxSize == 0 {
		return
	}
	for c.curSize > c.maxSize {
		elem := c.lru.Back()
		if elem == nil {
			return
		}
		e := elem.Value.(*entry)
		if e.epoch != 0 {
			// Shouldn't be on the LRU list, but guard anyway.
			return
		}
		c.freeLocked(e)
		delete(c.entries, e.key)
	}
}
