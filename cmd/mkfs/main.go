// Command mkfs builds a fresh xv6fs disk image: superblock, log
// region, inode region, and bitmap, with an empty root directory.
// It optionally copies a host directory tree into the image the way
// the teacher's own mkfs populates a skeleton filesystem.
package main

import (
	"bytes"
	"encoding/binary"
	"flag"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const (
	bsize   = 512
	fsmagic = 0x10203040
	ndirect = 12
	nindirect = bsize / 4
	maxfile = ndirect + nindirect
	dirsiz  = 14
	rootino = 1

	tDir    = 1
	tFile   = 2
	tDevice = 3
)

const dinodeSize = 2 + 2 + 2 + 2 + 4 + (ndirect+1)*4
const direntSize = 2 + dirsiz
const ipb = bsize / dinodeSize
const bpb = bsize * 8

type superblock struct {
	Magic      uint32
	Size       uint32
	Nblocks    uint32
	Ninodes    uint32
	Nlog       uint32
	LogStart   uint32
	InodeStart uint32
	BmapStart  uint32
}

type dinode struct {
	Type  int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32
	Addrs [ndirect + 1]uint32
}

type dirent struct {
	Inum uint16
	Name [dirsiz]byte
}

// builder holds the open image file and the free-block/free-inode
// cursors mkfs advances as it lays out content; it never reads back
// anything it has not itself already written.
type builder struct {
	f          *os.File
	sb         superblock
	freeBlock  uint32
	freeInode  uint32
}

func main() {
	var (
		size        = flag.Int("size", 2000, "image size in blocks")
		ninodes     = flag.Int("ninodes", 200, "number of inodes")
		logBlocks   = flag.Int("logblocks", 30, "blocks reserved for the transaction log")
		skeldir     = flag.String("skel", "", "optional host directory to copy into the image root")
	)
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "usage: mkfs [flags] <image>\n")
		flag.PrintDefaults()
	}
	flag.Parse()
	if flag.NArg() != 1 {
		flag.Usage()
		os.Exit(2)
	}

	b, err := newBuilder(flag.Arg(0), *size, *ninodes, *logBlocks)
	if err != nil {
		log.Fatal(err)
	}
	defer b.f.Close()

	root := b.ialloc(tDir)
	b.iappend(root, encodeDirent(dirent{Inum: uint16(root), Name: nameOf(".")}))
	b.iappend(root, encodeDirent(dirent{Inum: uint16(root), Name: nameOf("..")}))

	if *skeldir != "" {
		b.addTree(root, *skeldir)
	}

	b.writeBitmap()
	log.Printf("mkfs: wrote %s: %d blocks, %d inodes, root inum %d", flag.Arg(0), b.sb.Size, b.sb.Ninodes, root)
}

func newBuilder(path string, size, ninodes, logBlocks int) (*builder, error) {
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0666)
	if err != nil {
		return nil, err
	}

	ninodeBlocks := ninodes/ipb + 1
	nbitmap := size/bpb + 1
	nmeta := 2 + logBlocks + ninodeBlocks + nbitmap

	sb := superblock{
		Magic:      fsmagic,
		Size:       uint32(size),
		Nblocks:    uint32(size - nmeta),
		Ninodes:    uint32(ninodes),
		Nlog:       uint32(logBlocks),
		LogStart:   2,
		InodeStart: uint32(2 + logBlocks),
		BmapStart:  uint32(2 + logBlocks + ninodeBlocks),
	}

	b := &builder{f: f, sb: sb, freeBlock: uint32(nmeta), freeInode: 1}

	zero := make([]byte, bsize)
	for i := 0; i < size; i++ {
		if err := b.wsect(uint32(i), zero); err != nil {
			return nil, err
		}
	}

	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &sb)
	sbBlock := make([]byte, bsize)
	copy(sbBlock, buf.Bytes())
	if err := b.wsect(1, sbBlock); err != nil {
		return nil, err
	}
	return b, nil
}

// nameOf normalizes s to NFC before truncating it into a fixed
// DIRSIZ-byte on-disk name, so visually-identical names built from
// different codepoint sequences land on the same bytes instead of
// silently aliasing or colliding at lookup time.
func nameOf(s string) [dirsiz]byte {
	var n [dirsiz]byte
	copy(n[:], norm.NFC.String(s))
	return n
}

func encodeDirent(de dirent) []byte {
	b := make([]byte, direntSize)
	binary.LittleEndian.PutUint16(b[0:2], de.Inum)
	copy(b[2:2+dirsiz], de.Name[:])
	return b
}

func (b *builder) wsect(n uint32, data []byte) error {
	if _, err := b.f.WriteAt(data, int64(n)*bsize); err != nil {
		return err
	}
	return nil
}

func (b *builder) rsect(n uint32) []byte {
	buf := make([]byte, bsize)
	if _, err := b.f.ReadAt(buf, int64(n)*bsize); err != nil && err != io.EOF {
		log.Fatal(err)
	}
	return buf
}

func (b *builder) iblock(inum uint32) uint32 {
	return b.sb.InodeStart + inum/uint32(ipb)
}

func (b *builder) rinode(inum uint32) dinode {
	blk := b.rsect(b.iblock(inum))
	off := (int(inum) % ipb) * dinodeSize
	var d dinode
	binary.Read(bytes.NewReader(blk[off:off+dinodeSize]), binary.LittleEndian, &d)
	return d
}

func (b *builder) winode(inum uint32, d dinode) {
	blkno := b.iblock(inum)
	blk := b.rsect(blkno)
	off := (int(inum) % ipb) * dinodeSize
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &d)
	copy(blk[off:off+dinodeSize], buf.Bytes())
	if err := b.wsect(blkno, blk); err != nil {
		log.Fatal(err)
	}
}

func (b *builder) ialloc(typ int16) uint32 {
	inum := b.freeInode
	b.freeInode++
	b.winode(inum, dinode{Type: typ, Nlink: 1})
	return inum
}

// iappend writes data to the end of inum's content, allocating direct
// and singly-indirect blocks from freeBlock as needed. Mirrors the
// teacher's own mkfs.go append loop and frenchwr-xv6-riscv's iappend.
func (b *builder) iappend(inum uint32, data []byte) {
	d := b.rinode(inum)
	off := d.Size

	for len(data) > 0 {
		fbn := off / bsize
		if fbn >= uint32(maxfile) {
			log.Fatal("mkfs: file too large")
		}

		var blockAddr uint32
		if fbn < ndirect {
			if d.Addrs[fbn] == 0 {
				d.Addrs[fbn] = b.freeBlock
				b.freeBlock++
			}
			blockAddr = d.Addrs[fbn]
		} else {
			if d.Addrs[ndirect] == 0 {
				d.Addrs[ndirect] = b.freeBlock
				b.freeBlock++
			}
			ind := b.rsect(d.Addrs[ndirect])
			slot := (fbn - ndirect) * 4
			blockAddr = binary.LittleEndian.Uint32(ind[slot : slot+4])
			if blockAddr == 0 {
				blockAddr = b.freeBlock
				b.freeBlock++
				binary.LittleEndian.PutUint32(ind[slot:slot+4], blockAddr)
				if err := b.wsect(d.Addrs[ndirect], ind); err != nil {
					log.Fatal(err)
				}
			}
		}

		blkoff := off % bsize
		n := bsize - blkoff
		if uint32(n) > uint32(len(data)) {
			n = uint32(len(data))
		}
		blk := b.rsect(blockAddr)
		copy(blk[blkoff:], data[:n])
		if err := b.wsect(blockAddr, blk); err != nil {
			log.Fatal(err)
		}

		off += uint32(n)
		data = data[n:]
	}

	d.Size = off
	b.winode(inum, d)
}

func (b *builder) writeBitmap() {
	buf := make([]byte, bsize)
	used := int(b.freeBlock)
	if used >= bpb {
		log.Fatal("mkfs: too many blocks in use for a single bitmap block")
	}
	for i := 0; i < used; i++ {
		buf[i/8] |= 1 << (i % 8)
	}
	if err := b.wsect(b.sb.BmapStart, buf); err != nil {
		log.Fatal(err)
	}
}

// addTree walks skeldir on the host and replicates it under dirInum,
// the way the teacher's own mkfs populates a skeleton filesystem.
func (b *builder) addTree(dirInum uint32, skeldir string) {
	dirs := map[string]uint32{"": dirInum}

	err := filepath.WalkDir(skeldir, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel := strings.TrimPrefix(strings.TrimPrefix(path, skeldir), string(os.PathSeparator))
		if rel == "" {
			return nil
		}

		parentRel := filepath.Dir(rel)
		if parentRel == "." {
			parentRel = ""
		}
		parent, ok := dirs[parentRel]
		if !ok {
			return fmt.Errorf("mkfs: walked %q before its parent %q", rel, parentRel)
		}

		name := filepath.Base(rel)
		if d.IsDir() {
			inum := b.ialloc(tDir)
			b.iappend(inum, encodeDirent(dirent{Inum: uint16(inum), Name: nameOf(".")}))
			b.iappend(inum, encodeDirent(dirent{Inum: uint16(parent), Name: nameOf("..")}))
			b.iappend(parent, encodeDirent(dirent{Inum: uint16(inum), Name: nameOf(name)}))
			parentDin := b.rinode(parent)
			parentDin.Nlink++
			b.winode(parent, parentDin)
			dirs[rel] = inum
			return nil
		}

		inum := b.ialloc(tFile)
		b.iappend(parent, encodeDirent(dirent{Inum: uint16(inum), Name: nameOf(name)}))
		b.copyFile(inum, path)
		return nil
	})
	if err != nil {
		log.Fatalf("mkfs: walking %q: %v", skeldir, err)
	}
}

func (b *builder) copyFile(inum uint32, src string) {
	f, err := os.Open(src)
	if err != nil {
		log.Fatal(err)
	}
	defer f.Close()

	buf := make([]byte, bsize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			b.iappend(inum, buf[:n])
		}
		if err == io.EOF {
			return
		}
		if err != nil {
			log.Fatal(err)
		}
	}
}
