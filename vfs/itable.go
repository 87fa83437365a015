package vfs

import (
	"teachfs/logctx"
	"teachfs/sleeplock"
)

var ilog = logctx.New("itable")

/// ITable is the fixed-capacity in-memory inode table every mounted
/// file system shares. Allocation and refcounting (Dev/Inum/Ref) are
/// protected by the table's own spinlock; everything else about an
/// inode is protected by that inode's sleep-lock.
type ITable struct {
	mu    sleeplock.SpinLock
	slots []*Inode
}

/// NewITable allocates an inode table with room for n entries.
func NewITable(n int) *ITable {
	t := &ITable{slots: make([]*Inode, n)}
	for i := range t.slots {
		t.slots[i] = &Inode{Lock: sleeplock.NewSleepLock()}
	}
	return t
}

/// Iget finds or creates the in-memory entry for (dev, inum), bumping
/// its reference count. It never touches the disk and never acquires
/// the sleep-lock. Panics if the table is full — an invariant
/// violation per the error-handling design, not a recoverable error.
func (t *ITable) Iget(dev int, inum uint32) *Inode {
	t.mu.Lock()
	defer t.mu.Unlock()

	var empty *Inode
	for _, ip := range t.slots {
		if ip.Ref > 0 && ip.Dev == dev && ip.Inum == inum {
			ip.Ref++
			return ip
		}
		if empty == nil && ip.Ref == 0 {
			empty = ip
		}
	}
	if empty == nil {
		panic("iget: no inodes")
	}
	empty.Dev = dev
	empty.Inum = inum
	empty.Ref = 1
	empty.Private = nil
	return empty
}

/// Idup bumps ip's reference count and returns it.
func (t *ITable) Idup(ip *Inode) *Inode {
	t.mu.Lock()
	ip.Ref++
	t.mu.Unlock()
	return ip
}

/// Ilock acquires ip's sleep-lock and, on first attachment, loads its
/// metadata from disk via the file system's UpdateLock hook.
func (t *ITable) Ilock(ip *Inode) {
	if ip == nil || ip.Ref < 1 {
		panic("ilock")
	}
	ip.Lock.Acquire()
	if ip.Private == nil {
		ip.Op.UpdateLock(ip)
	}
}

/// Iunlock releases ip's sleep-lock.
func (t *ITable) Iunlock(ip *Inode) {
	if ip == nil || !ip.Lock.Holding() {
		panic("iunlock: no lock")
	}
	t.mu.Lock()
	ref := ip.Ref
	t.mu.Unlock()
	if ref < 1 {
		panic("iunlock: no ref")
	}
	ip.Lock.Release()
}

/// Iput drops a reference to ip. If this is the last live reference
/// and the on-disk link count has dropped to zero, the inode's
/// content and disk slot are freed. Callers reaching this from any
/// path that can free blocks must be inside a log transaction.
func (t *ITable) Iput(ip *Inode) {
	if ip.Private == nil {
		t.mu.Lock()
		ip.Ref--
		t.mu.Unlock()
		return
	}

	t.mu.Lock()
	ref := ip.Ref
	t.mu.Unlock()

	if ref == 1 && ip.Nlink == 0 {
		ip.Lock.Acquire()
		ip.Type = 0
		ip.Op.Trunc(ip)
		ip.Op.WriteInode(ip)
		ip.Op.FreeInode(ip)
		ip.Lock.Release()
	} else if ref == 1 {
		ip.Lock.Acquire()
		ip.Op.WriteInode(ip)
		ip.Op.ReleaseInode(ip)
		ip.Lock.Release()
	}

	t.mu.Lock()
	ip.Ref--
	t.mu.Unlock()
}

/// IunlockPut is Iunlock followed by Iput.
func (t *ITable) IunlockPut(ip *Inode) {
	t.Iunlock(ip)
	t.Iput(ip)
}
