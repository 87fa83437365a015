package refcache

import "testing"

type fakeObj struct {
	key     int
	evicted bool
}

func (o *fakeObj) Key() int       { return o.key }
func (o *fakeObj) Evict()         { o.evicted = true }
func (o *fakeObj) EvictNow() bool { return true }

func lookupFake(c *Cache, key int) *fakeObj {
	r, err := c.Lookup(key, "test")
	if err != 0 {
		return nil
	}
	if !r.Valid {
		r.Obj = &fakeObj{key: key}
		r.Valid = true
	}
	o := r.Obj.(*fakeObj)
	r.Unlock()
	return o
}

func TestLookupCreatesAndReuses(t *testing.T) {
	c := New(2, false)
	a := lookupFake(c, 1)
	b := lookupFake(c, 1)
	if a != b {
		t.Fatal("looking up the same key twice should return the same object")
	}
}

func TestLookupEvictsWhenFull(t *testing.T) {
	c := New(1, false)
	a := lookupFake(c, 1)
	c.Refdown(a, "test") // refcount drops to zero, EvictNow frees the slot

	b := lookupFake(c, 2)
	if a.key == b.key {
		t.Fatal("expected a fresh object for a different key")
	}
	if !a.evicted {
		t.Fatal("the old entry should have been evicted to make room")
	}
}

func TestLookupFailsWhenFullAndPinned(t *testing.T) {
	c := New(1, false)
	lookupFake(c, 1) // refcount stays at 1: nothing releases it

	_, err := c.Lookup(2, "test")
	if err == 0 {
		t.Fatal("Lookup should fail when the cache is full of pinned entries")
	}
}

func TestRefupRefdown(t *testing.T) {
	c := New(2, false)
	a := lookupFake(c, 1)
	c.Refup(a, "extra")
	c.Refdown(a, "extra")
	if a.evicted {
		t.Fatal("object should still be live after dropping only the extra ref")
	}
	c.Refdown(a, "test")
	if !a.evicted {
		t.Fatal("object should be evicted once its refcount reaches zero")
	}
}

func TestRefdownNegativePanics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("Refdown past zero did not panic")
		}
	}()
	c := New(1, false)
	a := lookupFake(c, 1)
	c.Refdown(a, "test")
	c.Refdown(a, "test")
}
