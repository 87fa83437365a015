// Package ksys implements the syscall layer: argument checking and
// descriptor bookkeeping only, delegating everything else to
// fdtable, vfs, and the mounted file system's Operations vtable. It
// mirrors sysfile.c's division of labor — this package never touches
// a block or a bitmap directly.
package ksys

import (
	"teachfs/config"
	"teachfs/defs"
	"teachfs/fdtable"
	"teachfs/logctx"
	"teachfs/txlog"
	"teachfs/vfs"
)

var log = logctx.New("ksys")

/// Execer is the narrow contract the exec loader satisfies. Building
/// a new address space and argument stack is out of scope here; Exec
/// is argument marshalling plus a single delegated call.
type Execer interface {
	Exec(path string, argv []string) defs.Err_t
}

/// System is the kernel-lifetime state every process's syscalls are
/// dispatched against.
type System struct {
	Itable *vfs.ITable
	Dtable *vfs.DTable
	Files  *fdtable.FTable
	Dev    *fdtable.Devsw
	Root   *vfs.Inode
	Log    *txlog.Log
	Cfg    *config.Config
	Exec   Execer
}

/// Process is the per-process view onto a System: its private
/// descriptor table and current working directory.
type Process struct {
	sys   *System
	ofile []*vfs.File
	cwd   *vfs.Inode
}

/// NewProcess returns a process rooted at cwd, with a descriptor
/// table sized by sys.Cfg.NOFILE. cwd's reference is taken over by
/// the new process.
func NewProcess(sys *System, cwd *vfs.Inode) *Process {
	return &Process{
		sys:   sys,
		ofile: make([]*vfs.File, sys.Cfg.NOFILE),
		cwd:   cwd,
	}
}

func (p *Process) pathContext() *vfs.PathContext {
	return &vfs.PathContext{Itable: p.sys.Itable, Dtable: p.sys.Dtable, Root: p.sys.Root, Cwd: p.cwd}
}

// fdalloc claims the first free descriptor slot for f, taking over
// the caller's reference on success.
func (p *Process) fdalloc(f *vfs.File) (int, defs.Err_t) {
	for fd := range p.ofile {
		if p.ofile[fd] == nil {
			p.ofile[fd] = f
			return fd, 0
		}
	}
	return -1, defs.EMFILE
}

// argfd resolves fd to its open file.
func (p *Process) argfd(fd int) (*vfs.File, defs.Err_t) {
	if fd < 0 || fd >= len(p.ofile) || p.ofile[fd] == nil {
		return nil, defs.EBADF
	}
	return p.ofile[fd], 0
}
