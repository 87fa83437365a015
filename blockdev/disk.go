package blockdev

import (
	"fmt"
	"os"
	"sync"
)

/// MemDisk is an in-memory Disk, used by tests and by mkfs before an
/// image file exists.
type MemDisk struct {
	sync.Mutex
	blocks map[int][]byte
	nreq   int
}

/// NewMemDisk returns an empty in-memory disk.
func NewMemDisk() *MemDisk {
	return &MemDisk{blocks: make(map[int][]byte)}
}

/// Start services req synchronously and signals completion on
/// req.AckCh if the request asked for one.
func (d *MemDisk) Start(req *Request) bool {
	d.Lock()
	d.nreq++
	for _, b := range req.Blks {
		switch req.Cmd {
		case BDEV_READ:
			if data, ok := d.blocks[b.Num]; ok {
				copy(b.Data, data)
			} else {
				for i := range b.Data {
					b.Data[i] = 0
				}
			}
		case BDEV_WRITE:
			cp := make([]byte, len(b.Data))
			copy(cp, b.Data)
			d.blocks[b.Num] = cp
		}
	}
	d.Unlock()
	if req.Sync && req.AckCh != nil {
		req.AckCh <- true
	}
	return req.Sync
}

/// Stats renders a one-line summary.
func (d *MemDisk) Stats() string {
	d.Lock()
	defer d.Unlock()
	return fmt.Sprintf("memdisk: %d blocks %d requests", len(d.blocks), d.nreq)
}

/// FileDisk is a Disk backed by a regular file: the disk image
/// cmd/mkfs produces and cmd/lsfs inspects.
type FileDisk struct {
	mu   sync.Mutex
	f    *os.File
	nreq int
}

/// OpenFileDisk opens (creating if necessary) the image at path.
func OpenFileDisk(path string) (*FileDisk, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0644)
	if err != nil {
		return nil, err
	}
	return &FileDisk{f: f}, nil
}

/// Start services req synchronously against the backing file.
func (d *FileDisk) Start(req *Request) bool {
	d.mu.Lock()
	d.nreq++
	for _, b := range req.Blks {
		off := int64(b.Num) * BSIZE
		switch req.Cmd {
		case BDEV_READ:
			if _, err := d.f.ReadAt(b.Data, off); err != nil {
				for i := range b.Data {
					b.Data[i] = 0
				}
			}
		case BDEV_WRITE:
			if _, err := d.f.WriteAt(b.Data, off); err != nil {
				panic(err)
			}
		case BDEV_FLUSH:
			d.f.Sync()
		}
	}
	d.mu.Unlock()
	if req.Sync && req.AckCh != nil {
		req.AckCh <- true
	}
	return req.Sync
}

/// Stats renders a one-line summary.
func (d *FileDisk) Stats() string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return fmt.Sprintf("filedisk: %s requests %d", d.f.Name(), d.nreq)
}

/// Close releases the backing file.
func (d *FileDisk) Close() error {
	return d.f.Close()
}
