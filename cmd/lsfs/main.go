// Command lsfs mounts an xv6fs image read-only and recursively lists
// its directory tree, the way a minimal "fsck --list" would. It
// exercises the same vfs/xv6fs stack ksys drives, just without a
// process or a syscall surface around it.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path"

	"teachfs/blockdev"
	"teachfs/config"
	"teachfs/defs"
	"teachfs/fdtable"
	"teachfs/txlog"
	"teachfs/vfs"
	"teachfs/xv6fs"
)

func main() {
	cfg := config.Default()
	flag.StringVar(&cfg.DiskPath, "image", cfg.DiskPath, "path to the disk image")
	ninode := flag.Int("ninode", cfg.NINODE, "in-memory inode table size")
	ndentry := flag.Int("ndentry", cfg.NDENTRY, "dentry pool size")
	flag.Parse()

	disk, err := blockdev.OpenFileDisk(cfg.DiskPath)
	if err != nil {
		log.Fatalf("lsfs: %v", err)
	}
	defer disk.Close()

	bc := blockdev.NewCache(disk, *ninode+16)
	itable := vfs.NewITable(*ninode)
	dtable := vfs.NewDTable(*ndentry)
	files := fdtable.NewFTable(cfg.NFILE)

	fs := xv6fs.New(bc, itable, dtable, files, xv6fs.ROOTDEV)
	if e := fs.Init(); e != 0 {
		log.Fatalf("lsfs: init: %v", e)
	}
	sb, e := fs.Mount(cfg.DiskPath)
	if e != 0 {
		log.Fatalf("lsfs: mount: %v", e)
	}

	walk(itable, dtable, fs.Log(), sb.Root, "/")
}

func walk(it *vfs.ITable, dt *vfs.DTable, l *txlog.Log, dir *vfs.Inode, prefix string) {
	it.Ilock(dir)
	names := listDir(dir)
	it.Iunlock(dir)

	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		it.Ilock(dir)
		d, err := dir.Op.DirLookup(dir, padName(name))
		it.Iunlock(dir)
		if err != 0 || d == nil {
			fmt.Fprintf(os.Stderr, "lsfs: %s: %v\n", path.Join(prefix, name), err)
			continue
		}
		child := d.Inode
		dt.Dfree(d)
		it.Ilock(child)
		typ, size := child.Type, child.Size
		it.Iunlock(child)

		p := path.Join(prefix, name)
		fmt.Printf("%-6s %8d  %s\n", typeName(typ), size, p)
		if typ == defs.T_DIR {
			walk(it, dt, l, child, p)
		}
		l.BeginOp()
		it.Iput(child)
		l.EndOp()
	}
}

// listDir reads every directory entry of dir's content and returns
// the non-empty names. The caller must already hold dir's lock. It
// reimplements only the read loop xv6fs.DirLookup already has
// privately, since lsfs sits outside that package.
func listDir(dir *vfs.Inode) []string {
	const direntSize = 2 + 14
	buf := make([]byte, direntSize)
	var names []string
	for off := uint32(0); off+direntSize <= dir.Size; off += direntSize {
		n, err := dir.Op.Read(dir, buf, off)
		if err != 0 || n != direntSize {
			break
		}
		inum := uint16(buf[0]) | uint16(buf[1])<<8
		if inum == 0 {
			continue
		}
		name := string(buf[2:])
		for i, c := range name {
			if c == 0 {
				name = name[:i]
				break
			}
		}
		names = append(names, name)
	}
	return names
}

func padName(name string) []byte {
	buf := make([]byte, 14)
	copy(buf, name)
	return buf
}

func typeName(t int) string {
	switch t {
	case defs.T_DIR:
		return "dir"
	case defs.T_FILE:
		return "file"
	case defs.T_DEVICE:
		return "dev"
	default:
		return "?"
	}
}
