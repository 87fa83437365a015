package vfs

import (
	"sync"

	"teachfs/defs"
)

/// registry is the global table mapping a file-system type name to
/// its vtable. Initialized once at boot and never torn down, matching
/// the kernel-lifetime singletons (itable, dtable, ftable, devsw) the
/// rest of this core relies on.
var registry = struct {
	sync.Mutex
	types map[string]Operations
}{types: make(map[string]Operations)}

/// Register associates name with ops. Intended to be called once per
/// file system at boot, e.g. from an init function.
func Register(name string, ops Operations) {
	registry.Lock()
	defer registry.Unlock()
	registry.types[name] = ops
}

/// Lookup returns the vtable registered under name.
func Lookup(name string) (Operations, bool) {
	registry.Lock()
	defer registry.Unlock()
	ops, ok := registry.types[name]
	return ops, ok
}

/// Mount looks up the named file system's type, calls its Init,
/// then its Mount, and returns the resulting superblock. Mirrors
/// fsinit's {op->init(); root.op->mount(...)} sequence.
func Mount(name, source string) (*SuperBlock, defs.Err_t) {
	ops, ok := Lookup(name)
	if !ok {
		return nil, defs.ENOENT
	}
	if err := ops.Init(); err != 0 {
		return nil, err
	}
	return ops.Mount(source)
}
