package ksys

import (
	"teachfs/defs"
	"teachfs/fdtable"
	"teachfs/pipe"
	"teachfs/stat"
	"teachfs/ustr"
	"teachfs/vfs"
)

// nameTrim strips the trailing NUL padding SkipElem leaves on a
// fixed DIRSIZ-byte name buffer, for the few call sites (Isdot
// checks, log messages) that want the bare string rather than the
// on-disk-comparable form.
func nameTrim(b []byte) []byte {
	n := len(b)
	for n > 0 && b[n-1] == 0 {
		n--
	}
	return b[:n]
}

/// Dup duplicates fd onto a new, lowest-available descriptor.
func (p *Process) Dup(fd int) (int, defs.Err_t) {
	f, err := p.argfd(fd)
	if err != 0 {
		return -1, err
	}
	nfd, err := p.fdalloc(f)
	if err != 0 {
		return -1, err
	}
	fdtable.FileDup(f)
	return nfd, 0
}

/// Read reads up to len(dst) bytes from fd.
func (p *Process) Read(fd int, dst []byte) (int, defs.Err_t) {
	f, err := p.argfd(fd)
	if err != 0 {
		return -1, err
	}
	return fdtable.FileRead(p.sys.Itable, p.sys.Dev, f, dst)
}

/// Write writes all of src to fd.
func (p *Process) Write(fd int, src []byte) (int, defs.Err_t) {
	f, err := p.argfd(fd)
	if err != 0 {
		return -1, err
	}
	return fdtable.FileWrite(p.sys.Itable, p.sys.Dev, p.sys.Log, f, src, p.sys.Cfg.MaxOpBlocks)
}

/// Close releases fd. fileclose may drop the last reference to an
/// inode whose link count is already zero, which can free disk
/// blocks, so the whole call is bracketed in a log transaction.
func (p *Process) Close(fd int) defs.Err_t {
	f, err := p.argfd(fd)
	if err != 0 {
		return err
	}
	p.ofile[fd] = nil
	p.sys.Log.BeginOp()
	fdtable.FileClose(f)
	p.sys.Log.EndOp()
	return 0
}

/// Fstat fills st with fd's inode metadata.
func (p *Process) Fstat(fd int, st *stat.Stat_t) defs.Err_t {
	f, err := p.argfd(fd)
	if err != 0 {
		return err
	}
	return fdtable.FileStat(p.sys.Itable, f, st)
}

/// Link creates newpath as a hard link to the inode oldpath names.
/// A partial failure after the nlink bump is rolled back by
/// decrementing it again and rewriting the inode.
func (p *Process) Link(oldpath, newpath string) defs.Err_t {
	it := p.sys.Itable
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()

	pc := p.pathContext()
	ip := vfs.Namei(pc, oldpath)
	if ip == nil {
		return defs.ENOENT
	}

	it.Ilock(ip)
	if ip.Type == defs.T_DIR {
		it.IunlockPut(ip)
		return defs.EPERM
	}
	ip.Nlink++
	ip.Op.WriteInode(ip)
	it.Iunlock(ip)

	rollback := func(e defs.Err_t) defs.Err_t {
		it.Ilock(ip)
		ip.Nlink--
		ip.Op.WriteInode(ip)
		it.IunlockPut(ip)
		return e
	}

	dp, name := vfs.NameiParent(pc, newpath)
	if dp == nil {
		return rollback(defs.ENOENT)
	}
	it.Ilock(dp)

	d := p.sys.Dtable.Dgetblank()
	d.Parent = dp
	d.Inode = ip
	copy(d.Name[:], name)

	if dp.Dev != ip.Dev {
		it.IunlockPut(dp)
		p.sys.Dtable.Dfree(d)
		return rollback(defs.EXDEV)
	}
	if err := dp.Op.Link(d); err != 0 {
		it.IunlockPut(dp)
		p.sys.Dtable.Dfree(d)
		return rollback(err)
	}
	p.sys.Dtable.Dfree(d)
	it.IunlockPut(dp)
	it.Iput(ip)
	return 0
}

/// Unlink removes the directory entry named by path. It is an error
/// to unlink "." or "..", or a non-empty directory.
func (p *Process) Unlink(path string) defs.Err_t {
	it := p.sys.Itable
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()

	pc := p.pathContext()
	dp, name := vfs.NameiParent(pc, path)
	if dp == nil {
		return defs.ENOENT
	}
	it.Ilock(dp)

	trimmed := ustr.Ustr(nameTrim(name))
	if trimmed.Isdot() || trimmed.Isdotdot() {
		it.IunlockPut(dp)
		return defs.EPERM
	}

	d, err := dp.Op.DirLookup(dp, name)
	if err != 0 || d == nil || d.Inode == nil {
		it.IunlockPut(dp)
		return defs.ENOENT
	}
	ip := d.Inode
	it.Ilock(ip)

	if ip.Nlink < 1 {
		panic("unlink: nlink < 1")
	}
	if ip.Type == defs.T_DIR && !dp.Op.IsDirEmpty(ip) {
		it.IunlockPut(ip)
		it.IunlockPut(dp)
		p.sys.Dtable.Dfree(d)
		return defs.ENOTEMPTY
	}

	if err := dp.Op.Unlink(d); err != 0 {
		it.IunlockPut(ip)
		it.IunlockPut(dp)
		p.sys.Dtable.Dfree(d)
		return err
	}

	if ip.Type == defs.T_DIR {
		dp.Nlink--
		dp.Op.WriteInode(dp)
	}
	p.sys.Dtable.Dfree(d)
	it.IunlockPut(dp)

	ip.Nlink--
	ip.Op.WriteInode(ip)
	it.IunlockPut(ip)
	return 0
}

// create resolves path's parent, and either returns the existing
// inode (if path already names a plain file or a device node and typ
// is T_FILE, the
// sys_open(O_CREATE) reuse case) or allocates a fresh one, wiring up
// "."/".." through the same Link path an ordinary directory entry
// uses. Any failure after the inode is allocated unwinds by setting
// Nlink back to zero so Iput reclaims it.
func (p *Process) create(path string, typ, major, minor int) (*vfs.Inode, defs.Err_t) {
	it := p.sys.Itable
	pc := p.pathContext()
	dp, name := vfs.NameiParent(pc, path)
	if dp == nil {
		return nil, defs.ENOENT
	}
	it.Ilock(dp)

	if existing, err := dp.Op.DirLookup(dp, name); err == 0 && existing.Inode != nil {
		it.IunlockPut(dp)
		ip := existing.Inode
		it.Ilock(ip)
		p.sys.Dtable.Dfree(existing)
		if typ == defs.T_FILE && (ip.Type == defs.T_FILE || ip.Type == defs.T_DEVICE) {
			return ip, 0
		}
		it.IunlockPut(ip)
		return nil, defs.EEXIST
	}

	ip, err := dp.Op.AllocInode(dp.Sb, typ)
	if err != 0 {
		it.IunlockPut(dp)
		return nil, err
	}

	it.Ilock(ip)
	ip.Nlink = 1
	ip.Type = typ
	ip.Op.WriteInode(ip)

	fail := func(e defs.Err_t) (*vfs.Inode, defs.Err_t) {
		ip.Nlink = 0
		ip.Op.WriteInode(ip)
		it.IunlockPut(ip)
		it.IunlockPut(dp)
		return nil, e
	}

	if typ == defs.T_DIR {
		dot := p.sys.Dtable.Dgetblank()
		dot.Parent, dot.Inode = ip, ip
		copy(dot.Name[:], ".")
		if err := ip.Op.Link(dot); err != 0 {
			p.sys.Dtable.Dfree(dot)
			return fail(err)
		}
		p.sys.Dtable.Dfree(dot)

		dotdot := p.sys.Dtable.Dgetblank()
		dotdot.Parent, dotdot.Inode = ip, dp
		copy(dotdot.Name[:], "..")
		if err := ip.Op.Link(dotdot); err != 0 {
			p.sys.Dtable.Dfree(dotdot)
			return fail(err)
		}
		p.sys.Dtable.Dfree(dotdot)
	}

	de := p.sys.Dtable.Dgetblank()
	de.Inode, de.Parent = ip, dp
	copy(de.Name[:], name)
	if err := dp.Op.Link(de); err != 0 {
		p.sys.Dtable.Dfree(de)
		return fail(err)
	}
	if err := dp.Op.Create(dp, de, typ, major, minor); err != 0 {
		p.sys.Dtable.Dfree(de)
		return fail(err)
	}
	p.sys.Dtable.Dfree(de)

	if typ == defs.T_DIR {
		dp.Nlink++
		dp.Op.WriteInode(dp)
	}
	it.IunlockPut(dp)
	return ip, 0
}

/// Open resolves or creates path per mode and returns a descriptor
/// for it. O_CREATE only ever makes a plain file; mkdir/mknod are the
/// only way to create a directory or device node.
func (p *Process) Open(path string, mode int) (int, defs.Err_t) {
	it := p.sys.Itable
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()

	var ip *vfs.Inode
	if mode&defs.O_CREATE != 0 {
		var err defs.Err_t
		ip, err = p.create(path, defs.T_FILE, 0, 0)
		if err != 0 {
			return -1, err
		}
	} else {
		pc := p.pathContext()
		ip = vfs.Namei(pc, path)
		if ip == nil {
			return -1, defs.ENOENT
		}
		it.Ilock(ip)
		if ip.Type == defs.T_DIR && mode != defs.O_RDONLY {
			it.IunlockPut(ip)
			return -1, defs.EISDIR
		}
	}

	f, err := ip.Op.Open(ip, mode)
	if err != 0 {
		it.IunlockPut(ip)
		return -1, err
	}
	fd, ferr := p.fdalloc(f)
	if ferr != 0 {
		ip.Op.Close(f)
		it.IunlockPut(ip)
		return -1, ferr
	}

	if ip.Type != defs.T_DEVICE {
		f.Off = 0
	}
	f.Inode = ip
	f.Op = ip.Op

	if mode&defs.O_TRUNC != 0 && ip.Type == defs.T_FILE {
		ip.Op.Trunc(ip)
	}

	it.Iunlock(ip)
	return fd, 0
}

/// Mkdir creates path as an empty directory.
func (p *Process) Mkdir(path string) defs.Err_t {
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()
	ip, err := p.create(path, defs.T_DIR, 0, 0)
	if err != 0 {
		return err
	}
	p.sys.Itable.IunlockPut(ip)
	return 0
}

/// Mknod creates path as a device special file with the given major
/// and minor numbers.
func (p *Process) Mknod(path string, major, minor int) defs.Err_t {
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()
	ip, err := p.create(path, defs.T_DEVICE, major, minor)
	if err != 0 {
		return err
	}
	p.sys.Itable.IunlockPut(ip)
	return 0
}

/// Chdir changes the process's current directory to path.
func (p *Process) Chdir(path string) defs.Err_t {
	it := p.sys.Itable
	p.sys.Log.BeginOp()
	defer p.sys.Log.EndOp()
	pc := p.pathContext()
	ip := vfs.Namei(pc, path)
	if ip == nil {
		return defs.ENOENT
	}
	it.Ilock(ip)
	if ip.Type != defs.T_DIR {
		it.IunlockPut(ip)
		return defs.ENOTDIR
	}
	it.Iunlock(ip)

	it.Iput(p.cwd)
	p.cwd = ip
	return 0
}

/// Pipe allocates an anonymous pipe and returns its read and write
/// descriptors.
func (p *Process) Pipe() (rfd, wfd int, err defs.Err_t) {
	rf := p.sys.Files.FileAlloc()
	if rf == nil {
		return -1, -1, defs.EMFILE
	}
	wf := p.sys.Files.FileAlloc()
	if wf == nil {
		p.sys.Files.FileFree(rf)
		return -1, -1, defs.EMFILE
	}

	pp := pipe.New()
	rf.Kind, rf.Pipe, rf.Readable, rf.Writable = vfs.FD_PIPE, pp, true, false
	wf.Kind, wf.Pipe, wf.Readable, wf.Writable = vfs.FD_PIPE, pp, false, true

	fd0, e := p.fdalloc(rf)
	if e != 0 {
		p.sys.Files.FileFree(rf)
		p.sys.Files.FileFree(wf)
		return -1, -1, e
	}
	fd1, e := p.fdalloc(wf)
	if e != 0 {
		p.ofile[fd0] = nil
		p.sys.Files.FileFree(rf)
		p.sys.Files.FileFree(wf)
		return -1, -1, e
	}
	return fd0, fd1, 0
}

/// Exec is pure argument marshalling: it delegates straight to the
/// injected Execer, matching the narrow contract the real loader
/// would satisfy.
func (p *Process) Exec(path string, argv []string) defs.Err_t {
	if p.sys.Exec == nil {
		log.Warn("exec: no loader wired")
		return defs.ENOENT
	}
	return p.sys.Exec.Exec(path, argv)
}
