package xv6fs

import (
	"bytes"

	"teachfs/defs"
	"teachfs/vfs"
)

// readDirent reads the i'th directory entry of dp.
func (fs *Fs) readDirent(dp *vfs.Inode, i int) (dirent, defs.Err_t) {
	buf := make([]byte, direntSize)
	n, err := fs.Read(dp, buf, uint32(i*direntSize))
	if err != 0 {
		return dirent{}, err
	}
	if n != direntSize {
		panic("dirlookup read")
	}
	return decodeDirent(buf), 0
}

func (fs *Fs) writeDirent(dp *vfs.Inode, i int, de dirent) defs.Err_t {
	b := encodeDirent(de)
	n, err := fs.Write(dp, b, uint32(i*direntSize))
	if err != 0 || n != direntSize {
		return defs.EIO
	}
	return 0
}

/// DirLookup scans dp's directory content for an entry matching
/// name, a fixed DIRSIZ-byte slice. Panics if dp is not a directory —
/// the caller (path resolution) is responsible for that check and
/// should never reach here otherwise.
func (fs *Fs) DirLookup(dp *vfs.Inode, name []byte) (*vfs.Dentry, defs.Err_t) {
	if dp.Type != defs.T_DIR {
		panic("dirlookup not DIR")
	}

	nentries := int(dp.Size) / direntSize
	for i := 0; i < nentries; i++ {
		de, err := fs.readDirent(dp, i)
		if err != 0 {
			return nil, err
		}
		if de.Inum == 0 {
			continue
		}
		if bytes.Equal(de.Name[:], name[:DIRSIZ]) {
			child, err := fs.Geti(dp.Dev, uint32(de.Inum), true)
			if err != 0 {
				return nil, err
			}
			child.Op = dp.Op
			child.Sb = dp.Sb

			d := fs.dtable.Dgetblank()
			d.Op = fs
			d.Parent = dp
			copy(d.Name[:], name[:DIRSIZ])
			d.Inode = child
			return d, 0
		}
	}
	return nil, defs.ENOENT
}

/// ReleaseDentry is a no-op: dentries carry no FS-private state that
/// outlives the slot itself.
func (fs *Fs) ReleaseDentry(d *vfs.Dentry) {}

/// Link writes a new directory entry for target (whose Parent/Inode/
/// Name fields describe it) into the parent directory, after first
/// confirming no entry of that name already exists.
func (fs *Fs) Link(target *vfs.Dentry) defs.Err_t {
	dp := target.Parent
	inum := target.Inode.Inum

	if existing, err := fs.DirLookup(dp, target.Name[:]); err == 0 {
		fs.itable.Iput(existing.Inode)
		fs.dtable.Dfree(existing)
		return defs.EEXIST
	}

	nentries := int(dp.Size) / direntSize
	for i := 0; i <= nentries; i++ {
		if i < nentries {
			de, err := fs.readDirent(dp, i)
			if err != 0 {
				return err
			}
			if de.Inum != 0 {
				continue
			}
		}
		var de dirent
		de.Inum = uint16(inum)
		copy(de.Name[:], target.Name[:])
		if err := fs.writeDirent(dp, i, de); err != 0 {
			return defs.EIO
		}
		return 0
	}
	return defs.EIO
}

/// Unlink zeroes every directory entry matching d.Name. Directory
/// compaction (shifting later entries down) never happens, which is
/// why IsDirEmpty must scan the whole size rather than trust a live
/// count.
func (fs *Fs) Unlink(d *vfs.Dentry) defs.Err_t {
	dp := d.Parent
	nentries := int(dp.Size) / direntSize
	found := false
	for i := 0; i < nentries; i++ {
		de, err := fs.readDirent(dp, i)
		if err != 0 {
			panic("dirlink read in unlink")
		}
		if de.Inum == 0 || !bytes.Equal(de.Name[:], d.Name[:]) {
			continue
		}
		var zero dirent
		if err := fs.writeDirent(dp, i, zero); err != 0 {
			panic("unlink write")
		}
		found = true
	}
	if !found {
		return defs.ENOENT
	}
	return 0
}

/// IsDirEmpty reports whether dp contains only the conventional "."
/// and ".." entries.
func (fs *Fs) IsDirEmpty(dp *vfs.Inode) bool {
	nentries := int(dp.Size) / direntSize
	for i := 2; i < nentries; i++ {
		de, err := fs.readDirent(dp, i)
		if err != 0 {
			panic("isdirempty: readi")
		}
		if de.Inum != 0 {
			return false
		}
	}
	return true
}

/// Create records major/minor on the freshly allocated child inode's
/// FS-private state; everything else about creating a directory
/// entry happens via Link at the syscall layer.
func (fs *Fs) Create(dir *vfs.Inode, target *vfs.Dentry, typ, major, minor int) defs.Err_t {
	ip := target.Inode
	priv := fs.priv(ip)
	priv.Major = int16(major)
	priv.Minor = int16(minor)
	return 0
}
