// Package pipe implements the anonymous pipe sys_pipe allocates.
// Pipes never touch the file system: no inode, no dentry, no
// transaction log — a pipe's only storage is its in-memory ring
// buffer, and it is closed by reference count exactly like any other
// vfs.File, just without an Operations vtable behind it.
package pipe

import "sync"

// pipeSize matches xv6's PIPESIZE: the ring buffer holds this many
// bytes before a writer blocks.
const pipeSize = 512

/// Pipe is a single anonymous pipe shared by a read end and a write
/// end. Both ends hold a pointer to the same Pipe; closing one end
/// wakes whichever goroutine is blocked on the other.
type Pipe struct {
	mu    sync.Mutex
	cond  *sync.Cond
	data  [pipeSize]byte
	nread  uint64
	nwrite uint64

	readOpen  bool
	writeOpen bool
}

/// New returns a pipe with both ends open.
func New() *Pipe {
	p := &Pipe{readOpen: true, writeOpen: true}
	p.cond = sync.NewCond(&p.mu)
	return p
}

/// Close releases one end of the pipe. writable selects which end:
/// closing the write end lets pending readers drain the buffer and
/// then see EOF; closing the read end makes pending writers fail.
func (p *Pipe) Close(writable bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if writable {
		p.writeOpen = false
	} else {
		p.readOpen = false
	}
	p.cond.Broadcast()
}

/// Read blocks until at least one byte is available, the write end
/// has closed, or the read end has already closed (returning 0, the
/// EOF-like convention the original gives a closed read end).
func (p *Pipe) Read(dst []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.nread == p.nwrite && p.writeOpen && p.readOpen {
		p.cond.Wait()
	}
	if !p.readOpen {
		return 0
	}
	n := 0
	for n < len(dst) && p.nread < p.nwrite {
		dst[n] = p.data[p.nread%pipeSize]
		p.nread++
		n++
	}
	p.cond.Broadcast()
	return n
}

/// Write blocks whenever the buffer is full, waking readers as soon
/// as bytes land. Returns fewer bytes than len(src) only if the read
/// end closed mid-write.
func (p *Pipe) Write(src []byte) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for n < len(src) {
		for p.nwrite-p.nread == pipeSize && p.readOpen {
			p.cond.Broadcast()
			p.cond.Wait()
		}
		if !p.readOpen {
			break
		}
		p.data[p.nwrite%pipeSize] = src[n]
		p.nwrite++
		n++
	}
	p.cond.Broadcast()
	return n
}
