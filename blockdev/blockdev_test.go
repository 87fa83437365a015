package blockdev

import (
	"bytes"
	"testing"
)

func TestBreadMissingIsZeroed(t *testing.T) {
	c := NewCache(NewMemDisk(), 4)
	b, err := c.Bread(5, "test")
	if err != 0 {
		t.Fatalf("Bread: %v", err)
	}
	defer c.Brelse(b, "test")
	if !bytes.Equal(b.Data, make([]byte, BSIZE)) {
		t.Fatal("an unwritten block should read back as zeros")
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	c := NewCache(NewMemDisk(), 4)

	b, err := c.Bget(3, "test")
	if err != 0 {
		t.Fatalf("Bget: %v", err)
	}
	copy(b.Data, []byte("hello block"))
	c.Bwrite(b)
	c.Brelse(b, "test")

	b2, err := c.Bread(3, "test")
	if err != 0 {
		t.Fatalf("Bread: %v", err)
	}
	defer c.Brelse(b2, "test")
	if !bytes.HasPrefix(b2.Data, []byte("hello block")) {
		t.Fatalf("read back %q, want prefix %q", b2.Data[:11], "hello block")
	}
}

func TestBreadSameNumberSharesBlock(t *testing.T) {
	c := NewCache(NewMemDisk(), 4)
	b1, _ := c.Bread(1, "a")
	// Blocks are evicted as soon as their last reference drops, so a
	// pin keeps block 1 resident across the Brelse.
	c.Bpin(b1)
	c.Brelse(b1, "a")
	b2, _ := c.Bread(1, "b")
	defer c.Bunpin(b1, "a")
	defer c.Brelse(b2, "b")
	if b1 != b2 {
		t.Fatal("two Breads of the same block number should return the same *Block")
	}
}

func TestBpinSurvivesBrelse(t *testing.T) {
	c := NewCache(NewMemDisk(), 1)
	b, _ := c.Bread(1, "a")
	c.Bpin(b)
	c.Brelse(b, "a")

	// Cache has capacity 1; looking up a different block would need
	// to evict block 1, but it is pinned so this must fail.
	_, err := c.refs.Lookup(2, "probe")
	if err == 0 {
		t.Fatal("expected the pinned block to block eviction")
	}
	c.Bunpin(b, "a")
}

func TestFileDiskRoundTrip(t *testing.T) {
	tmp := t.TempDir() + "/disk.img"
	d, err := OpenFileDisk(tmp)
	if err != nil {
		t.Fatalf("OpenFileDisk: %v", err)
	}
	defer d.Close()

	c := NewCache(d, 4)
	b, _ := c.Bget(0, "test")
	copy(b.Data, []byte("on disk"))
	c.Bwrite(b)
	c.Brelse(b, "test")

	b2, _ := c.Bread(0, "test")
	defer c.Brelse(b2, "test")
	if !bytes.HasPrefix(b2.Data, []byte("on disk")) {
		t.Fatalf("read back %q, want prefix %q", b2.Data[:7], "on disk")
	}
}
