// Package blockdev implements the block device contract the VFS and
// on-disk filesystem layers are built on: a fixed-size block cache
// backed by a pluggable Disk, with the same refcounted-eviction
// discipline the kernel uses for every other in-memory cache.
package blockdev

import (
	"fmt"
	"sync"

	"teachfs/defs"
	"teachfs/refcache"
)

// BSIZE is the on-disk block size. Kept at the xv6-exact 512 bytes
// (not the teacher's own 4096) since the on-disk layout this module
// implements is bit-exact xv6, not biscuit's evolved format.
const BSIZE = 512

/// Bdevcmd_t enumerates disk request types.
type Bdevcmd_t uint

const (
	BDEV_WRITE Bdevcmd_t = 1
	BDEV_READ  Bdevcmd_t = 2
	BDEV_FLUSH Bdevcmd_t = 3
)

/// Disk abstracts the backing store a Cache reads and writes through.
type Disk interface {
	Start(*Request) bool
	Stats() string
}

/// Request describes one disk transfer: a list of contiguous blocks,
/// a command, and (for synchronous requests) a channel the disk
/// signals on completion.
type Request struct {
	Cmd   Bdevcmd_t
	Blks  []*Block
	AckCh chan bool
	Sync  bool
}

/// MkRequest builds a Request for the given blocks and command.
func MkRequest(blks []*Block, cmd Bdevcmd_t, sync bool) *Request {
	r := &Request{Cmd: cmd, Blks: blks, Sync: sync}
	if sync {
		r.AckCh = make(chan bool, 1)
	}
	return r
}

/// Block is a cached disk block. Its own mutex serializes concurrent
/// readers/writers (an inode block packs several dinodes, so two
/// inodes in the same block must not race); the owning Cache's mutex
/// protects membership in the cache.
type Block struct {
	sync.Mutex
	Num      int
	Data     []byte
	disk     Disk
	pinned   bool
}

func newBlock(num int, disk Disk) *Block {
	return &Block{Num: num, Data: make([]byte, BSIZE), disk: disk}
}

/// Key identifies the block for refcache.Obj.
func (b *Block) Key() int { return b.Num }

/// Evict is called by the cache when the block is reclaimed; a plain
/// in-memory block has nothing further to release.
func (b *Block) Evict() {}

/// EvictNow reports that blocks are eagerly reclaimed once their
/// refcount drops to zero, mirroring the teacher's own
/// always-evict-eagerly block cache policy.
func (b *Block) EvictNow() bool { return true }

func (b *Block) readFromDisk() {
	req := MkRequest([]*Block{b}, BDEV_READ, true)
	if b.disk.Start(req) {
		<-req.AckCh
	}
}

func (b *Block) writeToDisk(sync bool) {
	req := MkRequest([]*Block{b}, BDEV_WRITE, sync)
	if b.disk.Start(req) && sync {
		<-req.AckCh
	}
}

/// Cache is the block cache every Bread/Bwrite in the filesystem
/// layer goes through. There is exactly one Block per block number;
/// callers sharing a number share the same Block and coordinate via
/// its lock.
type Cache struct {
	disk  Disk
	refs  *refcache.Cache
}

/// NewCache returns a block cache of the given capacity backed by disk.
func NewCache(disk Disk, capacity int) *Cache {
	return &Cache{disk: disk, refs: refcache.New(capacity, false)}
}

// lookup returns a locked, refcounted Block for num, reading it from
// disk on first reference unless fill is false.
func (c *Cache) lookup(num int, tag string, fill bool) (*Block, defs.Err_t) {
	r, err := c.refs.Lookup(num, tag)
	if err != 0 {
		return nil, err
	}
	if !r.Valid {
		b := newBlock(num, c.disk)
		r.Obj = b
		r.Valid = true
		if fill {
			b.readFromDisk()
		}
	}
	b := r.Obj.(*Block)
	b.Lock()
	r.Unlock()
	return b, 0
}

/// Bread returns a locked block filled from disk. Callers must call
/// Brelse when done.
func (c *Cache) Bread(num int, tag string) (*Block, defs.Err_t) {
	return c.lookup(num, tag, true)
}

/// Bget returns a locked block without reading it from disk, for
/// callers about to overwrite the block in full (balloc's freshly
/// allocated block, for instance).
func (c *Cache) Bget(num int, tag string) (*Block, defs.Err_t) {
	b, err := c.lookup(num, tag, false)
	if err != 0 {
		return nil, err
	}
	for i := range b.Data {
		b.Data[i] = 0
	}
	return b, 0
}

/// Bwrite writes b to disk synchronously. b must already be locked.
func (c *Cache) Bwrite(b *Block) {
	b.writeToDisk(true)
}

/// BwriteAsync queues a write without waiting for completion.
func (c *Cache) BwriteAsync(b *Block) {
	b.writeToDisk(false)
}

/// Brelse unlocks b and drops the caller's reference.
func (c *Cache) Brelse(b *Block, tag string) {
	b.Unlock()
	c.refs.Refdown(b, tag)
}

/// Bpin keeps b resident across a Brelse, for blocks the transaction
/// log must hold onto between begin_op and commit.
func (c *Cache) Bpin(b *Block) {
	c.refs.Refup(b, "pin")
}

/// Bunpin releases a pin taken by Bpin.
func (c *Cache) Bunpin(b *Block, tag string) {
	c.refs.Refdown(b, tag)
}

/// Stat renders a one-line cache summary.
func (c *Cache) Stat() string {
	return fmt.Sprintf("bcache: %s disk: %s", c.refs.Stat(), c.disk.Stats())
}
