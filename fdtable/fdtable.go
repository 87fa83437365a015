// Package fdtable implements the file-descriptor layer: the fixed
// open-file table, and fileread/filewrite/filestat/filedup/fileclose,
// which dispatch either to a file system's Operations vtable or to a
// device-switch table indexed by major number.
package fdtable

import (
	"teachfs/defs"
	"teachfs/pipe"
	"teachfs/sleeplock"
	"teachfs/stat"
	"teachfs/txlog"
	"teachfs/vfs"
)

/// FTable is the fixed-capacity open-file pool every process's fd
/// table ultimately points into.
type FTable struct {
	mu    sleeplock.SpinLock
	slots []*vfs.File
}

/// NewFTable allocates an open-file pool with room for n entries.
func NewFTable(n int) *FTable {
	t := &FTable{slots: make([]*vfs.File, n)}
	for i := range t.slots {
		t.slots[i] = &vfs.File{}
	}
	return t
}

/// FileAlloc claims the first file with Ref == 0, resets it, and
/// returns it with Ref == 1.
func (t *FTable) FileAlloc() *vfs.File {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, f := range t.slots {
		if f.Ref == 0 {
			*f = vfs.File{Ref: 1}
			return f
		}
	}
	return nil
}

/// FileFree returns f to the pool unused. Only valid for a file
/// FileAlloc just handed back that nothing else has observed yet —
/// e.g. the second half of a pipe() pair failing to allocate.
func (t *FTable) FileFree(f *vfs.File) {
	t.mu.Lock()
	defer t.mu.Unlock()
	*f = vfs.File{}
}

/// FileDup bumps f's reference count. Panics if f is not open.
func FileDup(f *vfs.File) *vfs.File {
	if f.Ref < 1 {
		panic("filedup")
	}
	f.Ref++
	return f
}

/// Device is one row of the device-switch table: a major-indexed
/// read/write pair the console and other character devices are
/// wired through.
type Device interface {
	Read(dst []byte) (int, defs.Err_t)
	Write(src []byte) (int, defs.Err_t)
}

/// Devsw is the fixed device-switch table, indexed by major number.
type Devsw [defs.NDEV]Device

/// FileClose dispatches to the owning file system's Close (for
/// FD_INODE/FD_DEVICE files). A pipe file is handled here directly:
/// its reference count drops by one, and its end of the pipe is closed
/// once no reference is left. Pipes never go through a vfs.Operations
/// vtable since they have no backing inode.
func FileClose(f *vfs.File) {
	if f.Kind == vfs.FD_PIPE {
		if f.Ref > 1 {
			f.Ref--
			return
		}
		f.Ref = 0
		f.Pipe.(*pipe.Pipe).Close(f.Writable)
		return
	}
	f.Op.Close(f)
}

/// FileRead reads up to len(dst) bytes at f's current offset,
/// advancing it on success. Devices bypass the offset entirely and
/// the itable lock; pipes have no offset at all.
func FileRead(it *vfs.ITable, dev *Devsw, f *vfs.File, dst []byte) (int, defs.Err_t) {
	if !f.Readable {
		return -1, defs.EINVAL
	}
	if f.Kind == vfs.FD_PIPE {
		return f.Pipe.(*pipe.Pipe).Read(dst), 0
	}
	if f.Kind == vfs.FD_DEVICE {
		// Always dispatches through the console row regardless of
		// f.Major, preserving a quirk present in the original: it is
		// unclear whether this was an intentional shortcut (only the
		// console was ever wired) or a bug, so this rewrite keeps the
		// original's observable behavior rather than guessing.
		d := dev[defs.D_CONSOLE]
		if d == nil {
			return -1, defs.ENOENT
		}
		return d.Read(dst)
	}

	ip := f.Inode
	it.Ilock(ip)
	n, err := f.Op.Read(ip, dst, f.Off)
	if n > 0 {
		f.Off += uint32(n)
	}
	it.Iunlock(ip)
	return n, err
}

// writeChunk bounds a single filewrite chunk so it fits inside one
// external log transaction (spec's MaxOpBlocks budget).
func writeChunk(maxOpBlocks int) int {
	return ((maxOpBlocks - 1 - 1 - 2) / 2) * 512
}

/// FileWrite writes all of src at f's current offset, in chunks sized
/// to fit a single transaction, advancing the offset on each chunk
/// and failing the whole call on any short chunk write. Each chunk is
/// its own transaction, bracketed by l.BeginOp/EndOp, matching every
/// other mutating syscall.
func FileWrite(it *vfs.ITable, dev *Devsw, l *txlog.Log, f *vfs.File, src []byte, maxOpBlocks int) (int, defs.Err_t) {
	if !f.Writable {
		return -1, defs.EINVAL
	}
	if f.Kind == vfs.FD_PIPE {
		n := f.Pipe.(*pipe.Pipe).Write(src)
		if n != len(src) {
			return n, defs.EPIPE
		}
		return n, 0
	}
	if f.Kind == vfs.FD_DEVICE {
		// Same console-only dispatch quirk as FileRead; see there.
		d := dev[defs.D_CONSOLE]
		if d == nil {
			return -1, defs.ENOENT
		}
		return d.Write(src)
	}

	max := writeChunk(maxOpBlocks)
	ip := f.Inode
	tot := 0
	for tot < len(src) {
		n1 := len(src) - tot
		if n1 > max {
			n1 = max
		}
		l.BeginOp()
		it.Ilock(ip)
		n, err := f.Op.Write(ip, src[tot:tot+n1], f.Off)
		it.Iunlock(ip)
		l.EndOp()
		if err != 0 {
			return -1, err
		}
		if n != n1 {
			return -1, defs.EIO
		}
		f.Off += uint32(n)
		tot += n
	}
	return tot, 0
}

/// FileStat fills st with f's inode metadata. Devices and pipes have
/// no backing inode to stat.
func FileStat(it *vfs.ITable, f *vfs.File, st *stat.Stat_t) defs.Err_t {
	if f.Inode == nil {
		return defs.EINVAL
	}
	it.Ilock(f.Inode)
	vfs.Stati(f.Inode, st)
	it.Iunlock(f.Inode)
	return 0
}
