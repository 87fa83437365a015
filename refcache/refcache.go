// Package refcache implements the generic refcounted object arena
// that backs the block cache: a fixed-size map from an integer key to
// a lazily-filled, refcounted slot. When the arena is full, the
// least-recently-used slot with no references is evicted; if every
// slot is busy, the lookup fails.
package refcache

import (
	"fmt"
	"sync"

	"teachfs/defs"
)

/// Obj is any cached object: something with a stable integer key that
/// knows how to clean itself up when evicted.
type Obj interface {
	Evict()
	EvictNow() bool
	Key() int
}

/// Ref is a refcounted slot wrapping one cached Obj. The slot's own
/// mutex protects the object's contents; the cache's mutex protects
/// membership and the LRU chain.
type Ref struct {
	sync.Mutex
	Obj    Obj
	Refcnt int
	Key    int
	Valid  bool
	Tag    string

	next *Ref
	prev *Ref
}

/// Cache is a fixed-capacity refcounted arena.
type Cache struct {
	sync.Mutex
	maxsize int
	refs    map[int]*Ref
	lru     lru
	async   bool

	nevict int
}

/// New returns an empty cache admitting at most size live entries.
/// When async is true, eviction runs the victim's Evict in a new
/// goroutine instead of blocking the caller that triggered it.
func New(size int, async bool) *Cache {
	return &Cache{
		maxsize: size,
		refs:    make(map[int]*Ref, size),
		async:   async,
	}
}

/// Nlive returns the number of entries with a nonzero refcount.
func (c *Cache) Nlive() int {
	n := 0
	for _, r := range c.refs {
		if r.Refcnt > 0 {
			n++
		}
	}
	return n
}

func (c *Cache) delete(r *Ref) {
	delete(c.refs, r.Key)
	c.lru.remove(r)
	c.nevict++
}

func (c *Cache) replace() Obj {
	for r := c.lru.tail; r != nil; r = r.prev {
		if r.Refcnt == 0 {
			c.delete(r)
			return r.Obj
		}
	}
	return nil
}

/// Lookup returns a locked Ref for key, creating an empty (Valid ==
/// false) slot on first reference. The caller fills in Obj and sets
/// Valid before unlocking. Returns defs.ENOMEM if the cache is full
/// and every current entry is pinned (refcnt > 0).
func (c *Cache) Lookup(key int, tag string) (*Ref, defs.Err_t) {
	c.Lock()

	if r, ok := c.refs[key]; ok {
		r.Refcnt++
		c.lru.mkhead(r)
		c.Unlock()
		r.Lock()
		return r, 0
	}

	var victim Obj
	if len(c.refs) >= c.maxsize {
		victim = c.replace()
		if victim == nil {
			c.Unlock()
			return nil, defs.ENOMEM
		}
	}

	r := &Ref{Refcnt: 1, Key: key, Valid: false, Tag: tag}
	r.Lock()
	c.refs[key] = r
	c.lru.mkhead(r)
	c.Unlock()

	if victim != nil {
		c.doevict(victim)
	}
	return r, 0
}

/// Refup bumps the refcount of an already-cached object.
func (c *Cache) Refup(o Obj, tag string) {
	c.Lock()
	defer c.Unlock()

	r, ok := c.refs[o.Key()]
	if !ok {
		panic("refcache: Refup of unknown key")
	}
	r.Refcnt++
}

/// Refdown drops the refcount of a cached object, evicting it
/// immediately when it hits zero and the object asks to be (via
/// EvictNow), or leaving it cached for later reuse otherwise.
func (c *Cache) Refdown(o Obj, tag string) {
	c.Lock()

	r, ok := c.refs[o.Key()]
	if !ok {
		panic("refcache: Refdown of unknown key")
	}
	if o != r.Obj {
		panic("refcache: Refdown of stale obj")
	}

	r.Refcnt--
	if r.Refcnt < 0 {
		panic("refcache: negative refcount")
	}

	var victim Obj
	if r.Refcnt == 0 && r.Obj.EvictNow() {
		c.delete(r)
		victim = r.Obj
	}

	c.Unlock()

	if victim != nil {
		c.doevict(victim)
	}
}

func (c *Cache) doevict(victim Obj) {
	if c.async {
		go victim.Evict()
	} else {
		victim.Evict()
	}
}

/// Stat renders a one-line summary, in the style of the teacher's own
/// *_stat() helpers.
func (c *Cache) Stat() string {
	c.Lock()
	defer c.Unlock()
	return fmt.Sprintf("refcache: size %d #evictions %d #live %d", len(c.refs), c.nevict, c.Nlive())
}

// lru is a doubly-linked list ordering Refs from most- to
// least-recently used.
type lru struct {
	head *Ref
	tail *Ref
}

func (l *lru) mkhead(r *Ref) {
	if l.head == r {
		return
	}
	l.remove(r)
	if l.head != nil {
		l.head.prev = r
	}
	r.next = l.head
	l.head = r
	if l.tail == nil {
		l.tail = r
	}
}

func (l *lru) remove(r *Ref) {
	if l.tail == r {
		l.tail = r.prev
	}
	if l.head == r {
		l.head = r.next
	}
	if r.prev != nil {
		r.prev.next = r.next
	}
	if r.next != nil {
		r.next.prev = r.prev
	}
	r.prev, r.next = nil, nil
}
