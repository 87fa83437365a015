package xv6fs

import (
	"teachfs/defs"
	"teachfs/vfs"
)

/// AllocInode scans the on-disk inode region for the first inode
/// with type == 0, claims it by writing typ (T_FILE/T_DIR/T_DEVICE)
/// into its on-disk type field, and returns the in-memory shell
/// attached to it. The non-zero type is what keeps a concurrent
/// allocator from also claiming the slot; every other field is left
/// for the caller to fill in and flush via WriteInode.
func (fs *Fs) AllocInode(sb *vfs.SuperBlock, typ int) (*vfs.Inode, defs.Err_t) {
	for inum := uint32(1); inum < fs.sb.Ninodes; inum++ {
		b, err := fs.bc.Bread(iblock(inum, fs.sb.InodeStart), "ialloc")
		if err != 0 {
			return nil, err
		}
		off := (int(inum) % IPB) * dinodeSize
		d := decodeDinode(b.Data[off : off+dinodeSize])
		if d.Type == 0 {
			d.Type = int16(typ)
			copy(b.Data[off:off+dinodeSize], encodeDinode(d))
			fs.log.Write(b)
			fs.bc.Brelse(b, "ialloc")

			ip, err := fs.Geti(fs.dev, inum, true)
			if err != 0 {
				return nil, err
			}
			ip.Op = fs
			ip.Sb = sb
			return ip, 0
		}
		fs.bc.Brelse(b, "ialloc")
	}
	return nil, defs.ENOSPC
}

/// WriteInode flushes ip's in-memory metadata to its on-disk dinode.
/// The caller must hold ip.Lock.
func (fs *Fs) WriteInode(ip *vfs.Inode) {
	priv := fs.priv(ip)
	b, err := fs.bc.Bread(iblock(ip.Inum, fs.sb.InodeStart), "iupdate")
	if err != 0 {
		panic(err)
	}
	off := (int(ip.Inum) % IPB) * dinodeSize
	d := dinode{
		Type:  int16(ip.Type),
		Major: priv.Major,
		Minor: priv.Minor,
		Nlink: ip.Nlink,
		Size:  ip.Size,
		Addrs: priv.Addrs,
	}
	copy(b.Data[off:off+dinodeSize], encodeDinode(d))
	fs.log.Write(b)
	fs.bc.Brelse(b, "iupdate")
}

/// ReleaseInode drops the in-memory FS-private payload; the on-disk
/// inode is untouched (the link count is still nonzero).
func (fs *Fs) ReleaseInode(ip *vfs.Inode) {
	ip.Private = nil
}

/// FreeInode drops the in-memory payload. The on-disk side of
/// freeing is already done by the type=0 WriteInode that Iput
/// performs immediately before calling this.
func (fs *Fs) FreeInode(ip *vfs.Inode) {
	ip.Private = nil
}

/// Trunc frees every block (direct, then indirect) reachable from
/// ip, zeroes its size, and flushes the result to disk.
func (fs *Fs) Trunc(ip *vfs.Inode) {
	priv := fs.priv(ip)
	for i := 0; i < NDIRECT; i++ {
		if priv.Addrs[i] != 0 {
			fs.bfree(int(priv.Addrs[i]))
			priv.Addrs[i] = 0
		}
	}
	if priv.Addrs[NDIRECT] != 0 {
		ib, err := fs.bc.Bread(int(priv.Addrs[NDIRECT]), "trunc-indirect")
		if err == 0 {
			for off := 0; off < BSIZE; off += 4 {
				a := leUint32(ib.Data[off : off+4])
				if a != 0 {
					fs.bfree(int(a))
				}
			}
			fs.bc.Brelse(ib, "trunc-indirect")
		}
		fs.bfree(int(priv.Addrs[NDIRECT]))
		priv.Addrs[NDIRECT] = 0
	}
	ip.Size = 0
	fs.WriteInode(ip)
}

/// Geti wraps vfs.ITable.Iget: on first attachment, it loads the
/// on-disk dinode and populates both the FS-private payload and the
/// VFS-visible Type/Nlink/Size fields. If incRef is false the extra
/// reference Iget took is immediately undone.
func (fs *Fs) Geti(dev int, inum uint32, incRef bool) (*vfs.Inode, defs.Err_t) {
	ip := fs.itable.Iget(dev, inum)
	if !incRef {
		ip.Ref--
	}
	if ip.Private == nil {
		if err := fs.load(ip, inum); err != 0 {
			return nil, err
		}
	}
	return ip, 0
}

/// UpdateLock performs the same population as Geti, but is invoked by
/// Ilock itself when ip has not been loaded yet (Private == nil), e.g.
/// an inode obtained from vfs.ITable.Iget directly rather than through
/// Geti.
func (fs *Fs) UpdateLock(ip *vfs.Inode) {
	if ip.Private == nil {
		if err := fs.load(ip, ip.Inum); err != 0 {
			panic(err)
		}
	}
}

func (fs *Fs) load(ip *vfs.Inode, inum uint32) defs.Err_t {
	b, err := fs.bc.Bread(iblock(inum, fs.sb.InodeStart), "load")
	if err != 0 {
		return err
	}
	off := (int(inum) % IPB) * dinodeSize
	d := decodeDinode(b.Data[off : off+dinodeSize])
	fs.bc.Brelse(b, "load")

	ip.Dev = fs.dev
	ip.Inum = inum
	ip.Type = int(d.Type)
	ip.Nlink = d.Nlink
	ip.Size = d.Size
	ip.Private = &inodePriv{Major: d.Major, Minor: d.Minor, Addrs: d.Addrs}
	return 0
}

/// Read copies up to len(dst) bytes starting at off from ip's
/// content into dst, walking block-sized windows via bmap. Rejects a
/// starting offset beyond the file, clamps the length otherwise.
func (fs *Fs) Read(ip *vfs.Inode, dst []byte, off uint32) (int, defs.Err_t) {
	if off > ip.Size {
		return 0, 0
	}
	n := uint32(len(dst))
	if off+n < off || off+n > ip.Size {
		n = ip.Size - off
	}
	if n == 0 {
		return 0, 0
	}

	tot := uint32(0)
	for tot < n {
		bn, err := fs.bmap(ip, int(off/BSIZE))
		if err != 0 {
			return int(tot), err
		}
		b, err := fs.bc.Bread(bn, "readi")
		if err != 0 {
			return int(tot), err
		}
		blkoff := off % BSIZE
		m := uint32(BSIZE) - blkoff
		if m > n-tot {
			m = n - tot
		}
		copy(dst[tot:tot+m], b.Data[blkoff:blkoff+m])
		fs.bc.Brelse(b, "readi")
		tot += m
		off += m
	}
	return int(tot), 0
}

/// Write copies src into ip's content starting at off, allocating
/// blocks lazily via bmap, extending Size as needed, and always
/// flushing the inode afterward since bmap may have mutated Addrs
/// even on a short write.
func (fs *Fs) Write(ip *vfs.Inode, src []byte, off uint32) (int, defs.Err_t) {
	if off > ip.Size {
		return -1, defs.EINVAL
	}
	n := uint32(len(src))
	if uint64(off)+uint64(n) > uint64(MAXFILE)*BSIZE {
		return -1, defs.EINVAL
	}

	tot := uint32(0)
	for tot < n {
		bn, err := fs.bmap(ip, int(off/BSIZE))
		if err != 0 {
			break
		}
		b, err := fs.bc.Bread(bn, "writei")
		if err != 0 {
			break
		}
		blkoff := off % BSIZE
		m := uint32(BSIZE) - blkoff
		if m > n-tot {
			m = n - tot
		}
		copy(b.Data[blkoff:blkoff+m], src[tot:tot+m])
		fs.log.Write(b)
		fs.bc.Brelse(b, "writei")
		tot += m
		off += m
	}

	if off > ip.Size {
		ip.Size = off
	}
	fs.WriteInode(ip)

	if tot != n {
		return int(tot), defs.EIO
	}
	return int(tot), 0
}
