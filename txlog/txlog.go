// Package txlog implements the write-ahead transaction log every
// operation that reaches iput must bracket with BeginOp/EndOp: writes
// made inside a bracket are buffered, committed to a fixed log region
// as a batch, and only then installed at their real destinations, so
// a crash mid-write always has a complete transaction to recover from
// or none at all.
package txlog

import (
	"fmt"

	"teachfs/blockdev"
	"teachfs/defs"
	"teachfs/logctx"
	"teachfs/util"
)

var log = logctx.New("txlog")

type logEntry struct {
	block int
	buf   *blockdev.Block
}

// logHeader is the first block of the log region: byte 0-7 holds the
// number of valid log blocks, bytes 8.. hold one destination block
// number per logged block.
type logHeader struct {
	data []byte
}

func (lh logHeader) recoverNum() int { return util.Readn(lh.data, 8, 0) }
func (lh logHeader) setRecoverNum(n int) { util.Writen(lh.data, 8, 0, n) }
func (lh logHeader) dest(i int) int      { return util.Readn(lh.data, 8, 8+i*8) }
func (lh logHeader) setDest(i, n int)    { util.Writen(lh.data, 8, 8+i*8, n) }

// maxBlksPerSys upper-bounds the blocks a single filesystem call may
// dirty, so the log is provably long enough for the number of
// concurrent operations it admits.
const maxBlksPerSys = 10

/// Log is the admission-controlled commit daemon. Every BeginOp call
/// blocks until the log has room to admit another operation; EndOp
/// tells the daemon the operation is finished so it can decide whether
/// to commit.
type Log struct {
	bc    *blockdev.Cache
	log   []logEntry
	lhead int

	logStart int
	logLen   int // blocks usable for log entries, excluding the header

	incoming chan *blockdev.Block
	admission chan bool
	done      chan bool
}

/// Open initializes (and, if needed, recovers) the log occupying
/// [logStart, logStart+logLen) on bc, and starts its commit daemon.
func Open(bc *blockdev.Cache, logStart, logLen int) (*Log, defs.Err_t) {
	l := &Log{
		bc:        bc,
		logStart:  logStart,
		logLen:    logLen - 1,
		log:       make([]logEntry, logLen-1),
		incoming:  make(chan *blockdev.Block),
		admission: make(chan bool),
		done:      make(chan bool),
	}
	if l.logLen*8+8 >= blockdev.BSIZE {
		panic("txlog: log too long for one header block")
	}
	if err := l.recover(); err != 0 {
		return nil, err
	}
	go l.daemon()
	return l, 0
}

func (l *Log) recover() defs.Err_t {
	b, err := l.bc.Bread(l.logStart, "recover")
	if err != 0 {
		return err
	}
	lh := logHeader{b.Data}
	n := lh.recoverNum()
	if n == 0 {
		l.bc.Brelse(b, "recover")
		return 0
	}
	log.Infof("replaying %d logged blocks", n)
	for i := 0; i < n; i++ {
		dst := lh.dest(i)
		logblk, err := l.bc.Bread(l.logStart+1+i, "recover-src")
		if err != 0 {
			return err
		}
		dblk, err := l.bc.Bread(dst, "recover-dst")
		if err != 0 {
			return err
		}
		copy(dblk.Data, logblk.Data)
		l.bc.Bwrite(dblk)
		l.bc.Brelse(logblk, "recover-src")
		l.bc.Brelse(dblk, "recover-dst")
	}
	lh.setRecoverNum(0)
	l.bc.Bwrite(b)
	l.bc.Brelse(b, "recover")
	return 0
}

func (l *Log) full(nops int) bool {
	return maxBlksPerSys*nops+l.lhead >= l.logLen
}

func (l *Log) addLog(b *blockdev.Block) {
	for i := 0; i < l.lhead; i++ {
		if l.log[i].block == b.Num {
			if l.log[i].buf != b {
				panic("txlog: absorption of distinct block objects")
			}
			l.bc.Bunpin(b, "absorption")
			return
		}
	}
	if l.lhead >= len(l.log) {
		panic("txlog: log overflow")
	}
	l.log[l.lhead] = logEntry{b.Num, b}
	l.lhead++
}

func (l *Log) commit() {
	if l.lhead == 0 {
		return
	}
	if logctx.Debug.Log {
		log.Debugf("commit %d blocks", l.lhead)
	}

	headblk, err := l.bc.Bget(l.logStart, "commit")
	if err != 0 {
		panic(fmt.Sprintf("txlog: cannot read commit block: %v", err))
	}
	lh := logHeader{headblk.Data}

	blks := make([]*blockdev.Block, l.lhead)
	for i := 0; i < l.lhead; i++ {
		e := l.log[i]
		lh.setDest(i, e.block)

		b, err := l.bc.Bget(l.logStart+i+1, "log")
		if err != 0 {
			panic(fmt.Sprintf("txlog: cannot get log block: %v", err))
		}
		copy(b.Data, e.buf.Data)
		blks[i] = b
		l.bc.Brelse(b, "writelog")
	}
	for _, b := range blks {
		l.bc.BwriteAsync(b)
	}

	lh.setRecoverNum(l.lhead)
	l.bc.Bwrite(headblk)

	for i := 0; i < l.lhead; i++ {
		e := l.log[i]
		l.bc.BwriteAsync(e.buf)
		l.bc.Bunpin(e.buf, "apply")
	}

	lh.setRecoverNum(0)
	l.bc.Bwrite(headblk)
	l.bc.Brelse(headblk, "commit done")

	l.lhead = 0
}

func (l *Log) daemon() {
	for {
		adm := l.admission
		done := false
		nops := 0

		for !done {
			select {
			case b := <-l.incoming:
				if nops <= 0 {
					panic("txlog: incoming write with no admitted op")
				}
				l.addLog(b)
			case <-l.done:
				nops--
				if adm == nil {
					if l.full(nops + 1) {
						if nops == 0 {
							done = true
						}
					} else {
						adm = l.admission
					}
				}
			case adm <- true:
				nops++
				if l.full(nops + 1) {
					adm = nil
				}
			}
		}
		l.commit()
	}
}

/// BeginOp blocks until the log admits another concurrent operation.
/// Every call must be matched by exactly one EndOp.
func (l *Log) BeginOp() {
	<-l.admission
}

/// EndOp tells the daemon this operation is finished, possibly
/// triggering a commit.
func (l *Log) EndOp() {
	l.done <- true
}

/// Write buffers b for the next commit instead of writing it
/// straight to disk. The caller must still hold b's lock (and the
/// reference Bread/Bget returned) when calling Write, and must
/// Brelse it itself immediately afterward, exactly as with any other
/// Bread/Bget — Write only pins an extra reference for the log, which
/// keeps b resident past that Brelse until commit installs it and
/// releases the pin.
func (l *Log) Write(b *blockdev.Block) {
	l.bc.Bpin(b)
	l.incoming <- b
}
