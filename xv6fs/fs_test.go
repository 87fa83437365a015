package xv6fs

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"teachfs/blockdev"
	"teachfs/defs"
	"teachfs/fdtable"
	"teachfs/vfs"
)

// newTestFs formats a tiny image directly on a MemDisk (bypassing
// cmd/mkfs, which is a separate standalone tool) and mounts it,
// returning everything a test needs to drive the file system layer
// directly.
func newTestFs(t *testing.T) (*Fs, *vfs.ITable, *vfs.DTable, *vfs.SuperBlock) {
	t.Helper()

	const (
		size      = 200
		ninodes   = 50
		logblocks = 10
	)
	ninodeBlocks := ninodes/IPB + 1
	nbitmap := size/BPB + 1
	nmeta := 2 + logblocks + ninodeBlocks + nbitmap

	sb := superblock{
		Magic:      FSMAGIC,
		Size:       uint32(size),
		Nblocks:    uint32(size - nmeta),
		Ninodes:    uint32(ninodes),
		Nlog:       uint32(logblocks),
		LogStart:   2,
		InodeStart: uint32(2 + logblocks),
		BmapStart:  uint32(2 + logblocks + ninodeBlocks),
	}

	bc := blockdev.NewCache(blockdev.NewMemDisk(), 64)

	b, err := bc.Bget(1, "setup")
	if err != 0 {
		t.Fatalf("Bget(1): %v", err)
	}
	copy(b.Data, encodeSuper(sb))
	bc.Bwrite(b)
	bc.Brelse(b, "setup")

	rootBlk, err := bc.Bget(iblock(ROOTINO, sb.InodeStart), "setup")
	if err != 0 {
		t.Fatalf("Bget(root inode block): %v", err)
	}
	off := (ROOTINO % IPB) * dinodeSize
	d := dinode{Type: int16(defs.T_DIR), Nlink: 1}
	copy(rootBlk.Data[off:off+dinodeSize], encodeDinode(d))
	bc.Bwrite(rootBlk)
	bc.Brelse(rootBlk, "setup")

	bm, err := bc.Bget(int(sb.BmapStart), "setup")
	if err != 0 {
		t.Fatalf("Bget(bitmap): %v", err)
	}
	for i := 0; i < nmeta; i++ {
		bm.Data[i/8] |= 1 << (i % 8)
	}
	bc.Bwrite(bm)
	bc.Brelse(bm, "setup")

	itable := vfs.NewITable(20)
	dtable := vfs.NewDTable(20)
	files := fdtable.NewFTable(20)
	fs := New(bc, itable, dtable, files, ROOTDEV)
	if err := fs.Init(); err != 0 {
		t.Fatalf("Init: %v", err)
	}
	vsb, err := fs.Mount("test")
	if err != 0 {
		t.Fatalf("Mount: %v", err)
	}

	// A real create() wires "." and ".." for every directory it
	// makes; the root is never passed through create(), so it needs
	// the same two entries set up by hand.
	itable.Ilock(vsb.Root)
	for _, name := range []string{".", ".."} {
		de := dtable.Dgetblank()
		de.Parent, de.Inode = vsb.Root, vsb.Root
		copy(de.Name[:], padName(name))
		fs.Log().BeginOp()
		err := fs.Link(de)
		fs.Log().EndOp()
		if err != 0 {
			t.Fatalf("Link(%q): %v", name, err)
		}
		dtable.Dfree(de)
	}
	itable.Iunlock(vsb.Root)

	return fs, itable, dtable, vsb
}

func padName(name string) []byte {
	buf := make([]byte, vfs.DIRSIZ)
	copy(buf, name)
	return buf
}

// createFile allocates, links, and fills in a plain file named name
// under dp, the way ksys.create does at a higher layer, and returns
// its inode unlocked with one reference held by the caller.
func createFile(t *testing.T, fs *Fs, it *vfs.ITable, dt *vfs.DTable, dp *vfs.Inode, name string, typ int) *vfs.Inode {
	t.Helper()
	it.Ilock(dp)
	defer it.Iunlock(dp)

	fs.Log().BeginOp()
	defer fs.Log().EndOp()

	ip, err := fs.AllocInode(dp.Sb, typ)
	if err != 0 {
		t.Fatalf("AllocInode: %v", err)
	}
	it.Ilock(ip)
	ip.Nlink = 1
	ip.Type = typ
	fs.WriteInode(ip)

	de := dt.Dgetblank()
	de.Parent, de.Inode = dp, ip
	copy(de.Name[:], padName(name))
	if err := fs.Link(de); err != 0 {
		t.Fatalf("Link: %v", err)
	}
	if err := fs.Create(dp, de, typ, 0, 0); err != 0 {
		t.Fatalf("Create: %v", err)
	}
	dt.Dfree(de)
	it.Iunlock(ip)
	return ip
}

func TestCreateWriteReadFile(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)
	ip := createFile(t, fs, it, dt, sb.Root, "hello", defs.T_FILE)

	it.Ilock(ip)
	fs.Log().BeginOp()
	n, err := fs.Write(ip, []byte("hi there"), 0)
	fs.Log().EndOp()
	it.Iunlock(ip)
	if err != 0 || n != 8 {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}

	it.Ilock(ip)
	buf := make([]byte, 8)
	n, err = fs.Read(ip, buf, 0)
	it.Iunlock(ip)
	if err != 0 || n != 8 {
		t.Fatalf("Read: n=%d err=%v", n, err)
	}
	if diff := cmp.Diff([]byte("hi there"), buf); diff != "" {
		t.Errorf("Read content (-want +got):\n%s", diff)
	}
}

func TestDirLookupFindsLinkedEntry(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)
	ip := createFile(t, fs, it, dt, sb.Root, "hello", defs.T_FILE)

	it.Ilock(sb.Root)
	d, err := fs.DirLookup(sb.Root, padName("hello"))
	it.Iunlock(sb.Root)
	if err != 0 {
		t.Fatalf("DirLookup: %v", err)
	}
	if d.Inode.Inum != ip.Inum {
		t.Fatalf("DirLookup found inum %d, want %d", d.Inode.Inum, ip.Inum)
	}
	it.Iput(d.Inode)
	dt.Dfree(d)

	it.Ilock(sb.Root)
	_, err = fs.DirLookup(sb.Root, padName("nope"))
	it.Iunlock(sb.Root)
	if err != defs.ENOENT {
		t.Fatalf("DirLookup of a missing name: got %v, want ENOENT", err)
	}
}

func TestLinkRejectsDuplicateName(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)
	createFile(t, fs, it, dt, sb.Root, "dup", defs.T_FILE)

	it.Ilock(sb.Root)
	fs.Log().BeginOp()
	ip2, err := fs.AllocInode(sb, defs.T_FILE)
	if err != 0 {
		t.Fatalf("AllocInode: %v", err)
	}
	it.Ilock(ip2)
	ip2.Nlink = 1
	fs.WriteInode(ip2)
	it.Iunlock(ip2)

	de := dt.Dgetblank()
	de.Parent, de.Inode = sb.Root, ip2
	copy(de.Name[:], padName("dup"))
	err = fs.Link(de)
	fs.Log().EndOp()
	it.Iunlock(sb.Root)
	dt.Dfree(de)

	if err != defs.EEXIST {
		t.Fatalf("Link of a duplicate name: got %v, want EEXIST", err)
	}
}

func TestUnlinkRemovesEntryNotCompactsSize(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)
	ip := createFile(t, fs, it, dt, sb.Root, "gone", defs.T_FILE)

	it.Ilock(sb.Root)
	sizeBefore := sb.Root.Size
	d, err := fs.DirLookup(sb.Root, padName("gone"))
	if err != 0 {
		t.Fatalf("DirLookup: %v", err)
	}
	it.Ilock(ip)
	fs.Log().BeginOp()
	err = fs.Unlink(d)
	fs.Log().EndOp()
	if err != 0 {
		t.Fatalf("Unlink: %v", err)
	}
	it.Iunlock(ip)
	it.Iunlock(sb.Root)
	it.Iput(d.Inode)
	dt.Dfree(d)

	if sb.Root.Size != sizeBefore {
		t.Fatalf("directory size changed from %d to %d: unlink should zero, not compact",
			sizeBefore, sb.Root.Size)
	}

	it.Ilock(sb.Root)
	_, err = fs.DirLookup(sb.Root, padName("gone"))
	it.Iunlock(sb.Root)
	if err != defs.ENOENT {
		t.Fatalf("DirLookup after Unlink: got %v, want ENOENT", err)
	}
}

func TestIsDirEmpty(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)

	it.Ilock(sb.Root)
	empty := fs.IsDirEmpty(sb.Root)
	it.Iunlock(sb.Root)
	if !empty {
		t.Fatal("a freshly mounted root holding only . and .. should be empty")
	}

	createFile(t, fs, it, dt, sb.Root, "x", defs.T_FILE)

	it.Ilock(sb.Root)
	empty = fs.IsDirEmpty(sb.Root)
	it.Iunlock(sb.Root)
	if empty {
		t.Fatal("a directory with a real entry should not be empty")
	}
}

func TestTruncFreesBlocks(t *testing.T) {
	fs, it, dt, sb := newTestFs(t)
	ip := createFile(t, fs, it, dt, sb.Root, "big", defs.T_FILE)

	it.Ilock(ip)
	fs.Log().BeginOp()
	data := make([]byte, BSIZE*3)
	n, err := fs.Write(ip, data, 0)
	fs.Log().EndOp()
	if err != 0 || n != len(data) {
		t.Fatalf("Write: n=%d err=%v", n, err)
	}
	if ip.Size != uint32(len(data)) {
		t.Fatalf("Size = %d, want %d", ip.Size, len(data))
	}

	addrs := fs.priv(ip).Addrs
	fs.Log().BeginOp()
	fs.Trunc(ip)
	fs.Log().EndOp()
	if ip.Size != 0 {
		t.Fatalf("Size after Trunc = %d, want 0", ip.Size)
	}

	bm, err := fs.bc.Bread(bblock(0, fs.sb.BmapStart), "check")
	if err != 0 {
		t.Fatalf("Bread(bitmap): %v", err)
	}
	for _, a := range addrs[:3] {
		if bm.Data[a/8]&(byte(1)<<(a%8)) != 0 {
			fs.bc.Brelse(bm, "check")
			t.Fatalf("data block %d still marked in use after Trunc", a)
		}
	}
	fs.bc.Brelse(bm, "check")
	it.Iunlock(ip)
}
