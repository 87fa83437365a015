package xv6fs

import (
	"teachfs/blockdev"
	"teachfs/defs"
	"teachfs/fdtable"
	"teachfs/logctx"
	"teachfs/txlog"
	"teachfs/vfs"
)

var log = logctx.New("xv6fs")

// inodePriv is the FS-specific payload vfs.Inode.Private points at
// once an inode has been attached (ALLOCATED -> VALID). It mirrors
// exactly the fields the on-disk dinode carries beyond what vfs.Inode
// itself already holds (Type/Size/Nlink).
type inodePriv struct {
	Major int16
	Minor int16
	Addrs [NDIRECT + 1]uint32
}

/// Fs implements vfs.Operations over a block device using the
/// classic xv6 on-disk layout.
type Fs struct {
	bc     *blockdev.Cache
	log    *txlog.Log
	itable *vfs.ITable
	dtable *vfs.DTable
	files  *fdtable.FTable
	dev    int

	sb superblock
}

/// New wires an Fs on top of an already-open block cache. The
/// superblock is not read until Init. files is the system-wide
/// fixed-capacity open-file pool Open claims its File slots from —
/// the same pool a caller wires into ksys.System.Files, so every open
/// file (pipes included) lives in the one NFILE-sized table.
func New(bc *blockdev.Cache, itable *vfs.ITable, dtable *vfs.DTable, files *fdtable.FTable, dev int) *Fs {
	return &Fs{bc: bc, itable: itable, dtable: dtable, files: files, dev: dev}
}

/// Init reads and validates the on-disk superblock, then opens the
/// transaction log described by it. Panics on a bad magic number: a
/// corrupt or non-xv6fs image is an invariant violation, not a
/// recoverable error.
func (fs *Fs) Init() defs.Err_t {
	b, err := fs.bc.Bread(1, "readsb")
	if err != 0 {
		return err
	}
	fs.sb = decodeSuper(b.Data)
	fs.bc.Brelse(b, "readsb")

	if fs.sb.Magic != FSMAGIC {
		panic("xv6fs: bad superblock magic")
	}

	l, err := txlog.Open(fs.bc, int(fs.sb.LogStart), int(fs.sb.Nlog))
	if err != 0 {
		return err
	}
	fs.log = l
	return 0
}

/// Mount attaches the root inode and returns a fresh vfs.SuperBlock
/// for it. source is unused (there is exactly one backing device per
/// Fs); it is kept in the signature to match the vtable.
func (fs *Fs) Mount(source string) (*vfs.SuperBlock, defs.Err_t) {
	sb := &vfs.SuperBlock{Type: "xv6fs", Device: source}
	root, err := fs.Geti(fs.dev, ROOTINO, true)
	if err != 0 {
		return nil, err
	}
	root.Op = fs
	root.Sb = sb
	sb.Op = fs
	sb.Root = root
	sb.Private = &fs.sb
	return sb, 0
}

/// Umount is a no-op: there is no per-mount state to release beyond
/// what Iput already reclaims as references drop.
func (fs *Fs) Umount(sb *vfs.SuperBlock) {}

/// Log returns the transaction log Init opened over this file
/// system's log region, so a caller wiring up ksys.System.Log shares
/// the exact same admission state this Fs writes under.
func (fs *Fs) Log() *txlog.Log {
	return fs.log
}

func (fs *Fs) priv(ip *vfs.Inode) *inodePriv {
	return ip.Private.(*inodePriv)
}

// zeroBlock overwrites block bno with zeros, under the transaction log.
func (fs *Fs) zeroBlock(bno int) defs.Err_t {
	b, err := fs.bc.Bget(bno, "bzero")
	if err != 0 {
		return err
	}
	fs.log.Write(b)
	fs.bc.Brelse(b, "bzero")
	return 0
}

/// balloc scans the free-block bitmap in BPB-bit chunks and claims
/// the first clear bit, zero-filling the newly allocated block.
/// Returns 0 on exhaustion, matching the original's sentinel.
func (fs *Fs) balloc() (int, defs.Err_t) {
	for b := 0; b < int(fs.sb.Size); b += BPB {
		bm, err := fs.bc.Bread(bblock(b, fs.sb.BmapStart), "balloc")
		if err != 0 {
			return 0, err
		}
		for bi := 0; bi < BPB && b+bi < int(fs.sb.Size); bi++ {
			m := byte(1 << (bi % 8))
			byteIdx := bi / 8
			if bm.Data[byteIdx]&m == 0 {
				bm.Data[byteIdx] |= m
				fs.log.Write(bm)
				fs.bc.Brelse(bm, "balloc")
				if err := fs.zeroBlock(b + bi); err != 0 {
					return 0, err
				}
				return b + bi, 0
			}
		}
		fs.bc.Brelse(bm, "balloc")
	}
	log.Warn("balloc: out of blocks")
	return 0, 0
}

/// bfree clears b's bit in the free-block bitmap. Panics if the bit
/// is already clear: a double free is a core bug, not a user error.
func (fs *Fs) bfree(b int) {
	bm, err := fs.bc.Bread(bblock(b, fs.sb.BmapStart), "bfree")
	if err != 0 {
		panic(err)
	}
	bi := b % BPB
	m := byte(1 << (bi % 8))
	byteIdx := bi / 8
	if bm.Data[byteIdx]&m == 0 {
		panic("freeing free block")
	}
	bm.Data[byteIdx] &^= m
	fs.log.Write(bm)
	fs.bc.Brelse(bm, "bfree")
}

/// bmap resolves the bn'th logical block of ip to a disk block
/// number, allocating direct or indirect blocks lazily as needed.
/// Panics if bn is beyond MAXFILE.
func (fs *Fs) bmap(ip *vfs.Inode, bn int) (int, defs.Err_t) {
	priv := fs.priv(ip)

	if bn < NDIRECT {
		addr := priv.Addrs[bn]
		if addr == 0 {
			a, err := fs.balloc()
			if err != 0 || a == 0 {
				return 0, defs.ENOSPC
			}
			addr = uint32(a)
			priv.Addrs[bn] = addr
		}
		return int(addr), 0
	}

	bn -= NDIRECT
	if bn < NINDIRECT {
		indAddr := priv.Addrs[NDIRECT]
		if indAddr == 0 {
			a, err := fs.balloc()
			if err != 0 || a == 0 {
				return 0, defs.ENOSPC
			}
			indAddr = uint32(a)
			priv.Addrs[NDIRECT] = indAddr
		}
		ib, err := fs.bc.Bread(int(indAddr), "bmap-indirect")
		if err != 0 {
			return 0, err
		}
		off := bn * 4
		addr := leUint32(ib.Data[off : off+4])
		if addr == 0 {
			a, err := fs.balloc()
			if err != 0 || a == 0 {
				fs.bc.Brelse(ib, "bmap-indirect")
				return 0, defs.ENOSPC
			}
			addr = uint32(a)
			putLeUint32(ib.Data[off:off+4], addr)
			fs.log.Write(ib)
			fs.bc.Brelse(ib, "bmap-indirect")
		} else {
			fs.bc.Brelse(ib, "bmap-indirect")
		}
		return int(addr), 0
	}

	panic("bmap: out of range")
}

func leUint32(b []byte) uint32 {
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

func putLeUint32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}
