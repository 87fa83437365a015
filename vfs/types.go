// Package vfs implements the polymorphic object model shared by every
// mounted file system: superblock/inode/dentry/file records, the
// operation vtable they are dispatched through, the in-memory inode
// table and dentry pool, and path resolution over them.
//
// The concrete on-disk layout lives in package xv6fs, which supplies
// an Operations implementation; nothing in this package knows about
// block bitmaps or directory byte layout.
package vfs

import (
	"teachfs/defs"
	"teachfs/sleeplock"
	"teachfs/stat"
)

const (
	DIRSIZ = 14
	MAXMNT = 32
	DEVSIZ = 32
)

/// Operations is the complete per-file-system vtable. Every
/// polymorphic call in the core goes through one of these methods;
/// a concrete file system (xv6fs being the only one this module
/// ships) implements all of them.
type Operations interface {
	Mount(source string) (*SuperBlock, defs.Err_t)
	Umount(sb *SuperBlock)

	Init() defs.Err_t

	AllocInode(sb *SuperBlock, typ int) (*Inode, defs.Err_t)
	WriteInode(ip *Inode)
	ReleaseInode(ip *Inode)
	FreeInode(ip *Inode)
	Trunc(ip *Inode)

	Open(ip *Inode, mode int) (*File, defs.Err_t)
	Close(f *File)
	Read(ip *Inode, dst []byte, off uint32) (int, defs.Err_t)
	Write(ip *Inode, src []byte, off uint32) (int, defs.Err_t)

	Create(dir *Inode, target *Dentry, typ, major, minor int) defs.Err_t
	Link(target *Dentry) defs.Err_t
	Unlink(d *Dentry) defs.Err_t
	DirLookup(dp *Inode, name []byte) (*Dentry, defs.Err_t)
	ReleaseDentry(d *Dentry)
	IsDirEmpty(dp *Inode) bool

	Geti(dev int, inum uint32, incRef bool) (*Inode, defs.Err_t)
	UpdateLock(ip *Inode)
}

/// SuperBlock is the in-memory registration of one mounted file
/// system.
type SuperBlock struct {
	Op         Operations
	Type       string
	Parent     *SuperBlock
	Root       *Inode
	Mountpoint *Dentry // nil at the true root
	Device     string
	Mounts     [MAXMNT]*SuperBlock
	Private    interface{} // FS-specific cached on-disk superblock
}

/// Inode is one slot of the in-memory inode table. Dev/Inum/Ref are
/// protected by the owning ITable's spinlock; every other field is
/// protected by Lock, the per-inode sleep-lock, and is only
/// meaningful once Private != nil (the VALID state).
type Inode struct {
	Op   Operations
	Sb   *SuperBlock
	Inum uint32
	Dev  int

	Lock *sleeplock.SleepLock

	Ref int

	Type  int
	Size  uint32
	Nlink int16

	Private interface{}
}

/// Dentry is a directory-entry cache record, allocated from the
/// fixed-size dentry pool.
type Dentry struct {
	Op       Operations
	Parent   *Inode
	Name     [DIRSIZ]byte
	Inode    *Inode
	IsMount  bool
	Deleted  bool
	Ref      int
	Private  interface{}
}

/// NameBytes returns Name trimmed of trailing NUL padding.
func (d *Dentry) NameBytes() []byte {
	n := len(d.Name)
	for n > 0 && d.Name[n-1] == 0 {
		n--
	}
	return d.Name[:n]
}

// File-private tags distinguishing what a File dispatches to.
const (
	FD_NONE   = 0
	FD_INODE  = 1
	FD_DEVICE = 2
	FD_PIPE   = 3
)

/// File is a syscall-visible open-file record, allocated from the
/// fixed-size open-file table.
type File struct {
	Op       Operations
	Ref      int
	Off      uint32
	Readable bool
	Writable bool
	Inode    *Inode

	Kind  int // one of FD_*
	Major int
	Pipe  interface{} // *pipe.Pipe, opaque here to avoid an import cycle
}

/// Stati copies dev/ino/type/nlink/size into st. The caller must hold
/// ip.Lock.
func Stati(ip *Inode, st *stat.Stat_t) {
	st.Wdev(uint(ip.Dev))
	st.Wino(uint(ip.Inum))
	st.Wmode(uint(ip.Type))
	st.Wnlink(uint(ip.Nlink))
	st.Wsize(uint(ip.Size))
}
