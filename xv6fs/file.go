package xv6fs

import (
	"teachfs/defs"
	"teachfs/vfs"
)

/// Open claims a File slot from the open-file pool and populates it
/// over ip. A DEVICE inode whose major is out of [0, NDEV) is
/// rejected — an edge case the distilled spec never states but the
/// original guards against.
func (fs *Fs) Open(ip *vfs.Inode, mode int) (*vfs.File, defs.Err_t) {
	priv := fs.priv(ip)
	if ip.Type == defs.T_DEVICE && (int(priv.Major) < 0 || int(priv.Major) >= defs.NDEV) {
		return nil, defs.EINVAL
	}

	f := fs.files.FileAlloc()
	if f == nil {
		return nil, defs.EMFILE
	}
	f.Op = fs
	f.Inode = ip
	if ip.Type == defs.T_DEVICE {
		f.Kind = vfs.FD_DEVICE
		f.Major = int(priv.Major)
	} else {
		f.Kind = vfs.FD_INODE
	}
	switch mode & (defs.O_RDONLY | defs.O_WRONLY | defs.O_RDWR) {
	case defs.O_RDONLY:
		f.Readable, f.Writable = true, false
	case defs.O_WRONLY:
		f.Readable, f.Writable = false, true
	case defs.O_RDWR:
		f.Readable, f.Writable = true, true
	}
	return f, 0
}

/// Close decrements f's reference count; once it reaches zero the
/// underlying inode reference is released.
func (fs *Fs) Close(f *vfs.File) {
	if f.Ref < 1 {
		panic("fileclose")
	}
	f.Ref--
	if f.Ref > 0 {
		return
	}
	fs.itable.Iput(f.Inode)
}
