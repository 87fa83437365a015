package vfs

import "teachfs/sleeplock"

/// DTable is the fixed-capacity dentry pool. Allocation is a linear
/// scan for the first free slot; there is no hashing, the cache is
/// advisory only.
type DTable struct {
	mu    sleeplock.SpinLock
	slots []*Dentry
}

/// NewDTable allocates a dentry pool with room for n entries.
func NewDTable(n int) *DTable {
	return &DTable{slots: make([]*Dentry, n)}
}

/// Dgetblank claims the first free slot, marks it in use, and returns
/// it zeroed. Panics if the pool is exhausted.
func (t *DTable) Dgetblank() *Dentry {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, d := range t.slots {
		if d == nil {
			nd := &Dentry{Ref: 1}
			t.slots[i] = nd
			return nd
		}
	}
	panic("dgetblank: no dentries")
}

/// Dfree returns d's slot to the pool.
func (t *DTable) Dfree(d *Dentry) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, s := range t.slots {
		if s == d {
			t.slots[i] = nil
			return
		}
	}
}
