// Package xv6fs implements the classic unix-v6-style on-disk layout
// (superblock, bitmap-allocated data blocks, direct+singly-indirect
// inodes, linear directories) behind the vfs.Operations vtable.
//
// The on-disk struct encoding uses encoding/binary directly (little
// endian, matching the bit-exact layout below) rather than the
// unsafe-pointer field packing the rest of the kernel uses for
// in-memory structs: these bytes are read and written by a separate
// tool (cmd/mkfs) and must be portable across the host that built the
// image and whatever runs this module, so relying on native pointer
// alignment/endianness here would be the wrong tool for the job.
package xv6fs

import (
	"bytes"
	"encoding/binary"
)

const (
	BSIZE    = 512
	FSMAGIC  = 0x10203040
	NDIRECT  = 12
	NINDIRECT = BSIZE / 4
	MAXFILE  = NDIRECT + NINDIRECT
	DIRSIZ   = 14
	ROOTINO  = 1
	ROOTDEV  = 1

	// IPB is the number of packed dinodes per block.
	IPB = BSIZE / dinodeSize
	// BPB is the number of bitmap bits tracked per block.
	BPB = BSIZE * 8
)

// dinodeSize is sizeof(dinode) on disk: 4*int16 + uint32 + (NDIRECT+1)*uint32.
const dinodeSize = 2 + 2 + 2 + 2 + 4 + (NDIRECT+1)*4

// direntSize is sizeof(dirent) on disk: uint16 + DIRSIZ bytes.
const direntSize = 2 + DIRSIZ

/// superblock is the bit-exact on-disk superblock stored in block 1.
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

func decodeSuper(b []byte) superblock {
	var sb superblock
	binary.Read(bytes.NewReader(b), binary.LittleEndian, &sb)
	return sb
}

func encodeSuper(sb superblock) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &sb)
	return buf.Bytes()
}

/// dinode is the bit-exact on-disk inode record.
type dinode struct {
	Type  int16
	Major int16
	Minor int16
	Nlink int16
	Size  uint32
	Addrs [NDIRECT + 1]uint32
}

func decodeDinode(b []byte) dinode {
	var d dinode
	binary.Read(bytes.NewReader(b), binary.LittleEndian, &d)
	return d
}

func encodeDinode(d dinode) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, &d)
	return buf.Bytes()
}

/// dirent is the bit-exact on-disk directory entry.
type dirent struct {
	Inum uint16
	Name [DIRSIZ]byte
}

func decodeDirent(b []byte) dirent {
	var de dirent
	de.Inum = binary.LittleEndian.Uint16(b[0:2])
	copy(de.Name[:], b[2:2+DIRSIZ])
	return de
}

func encodeDirent(de dirent) []byte {
	b := make([]byte, direntSize)
	binary.LittleEndian.PutUint16(b[0:2], de.Inum)
	copy(b[2:2+DIRSIZ], de.Name[:])
	return b
}

// iblock returns the block number holding dinode inum.
func iblock(inum uint32, inodeStart uint32) int {
	return int(inodeStart + inum/uint32(IPB))
}

// bblock returns the bitmap block number holding the bit for data
// block b.
func bblock(b int, bmapStart uint32) int {
	return int(bmapStart) + b/BPB
}
