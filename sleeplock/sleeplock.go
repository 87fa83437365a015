// Package sleeplock provides the two lock tiers the filesystem core
// distinguishes: a spin lock for short critical sections protecting
// table membership and refcounts, and a sleep lock for longer
// operations (disk I/O) that may block the calling goroutine.
//
// Go's scheduler makes the preemption-disabling distinction the
// original kernel cares about moot, but the two names are kept
// separate so call sites read the same way the teacher's own code
// does and so it stays obvious which lock a given field is protected
// by.
package sleeplock

import "sync"

/// SpinLock guards table membership and refcounts: itable/dtable
/// slot state, open-file refcounts, and similar short sections that
/// never block.
type SpinLock struct {
	sync.Mutex
}

/// SleepLock guards everything else about an inode (its disk-backed
/// fields) across operations that may block on I/O. Implemented as a
/// buffered channel used as a binary semaphore, the same pattern the
/// transaction log uses for admission control.
type SleepLock struct {
	ch chan struct{}
}

/// NewSleepLock returns an unlocked SleepLock.
func NewSleepLock() *SleepLock {
	l := &SleepLock{ch: make(chan struct{}, 1)}
	l.ch <- struct{}{}
	return l
}

/// Acquire blocks until the lock is available.
func (l *SleepLock) Acquire() {
	<-l.ch
}

/// Release hands the lock back. Panics if called while not held.
func (l *SleepLock) Release() {
	select {
	case l.ch <- struct{}{}:
	default:
		panic("sleeplock: release of unheld lock")
	}
}

/// Holding reports whether the lock is currently held by anybody,
/// without acquiring it. Used only for the "no lock" panic check
/// iunlock makes on entry.
func (l *SleepLock) Holding() bool {
	select {
	case v := <-l.ch:
		l.ch <- v
		return false
	default:
		return true
	}
}
