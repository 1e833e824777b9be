package group

import "testing"

func testGroup(name, description string) *Group {
	return &Group{name: name, description: description}
}

func TestCacheLRUEviction(t *testing.T) {
	// Budget fits two bare groups (512 overhead + 1-byte name each).
	c := NewCache(2 * 513)
	a, b, d := testGroup("a", ""), testGroup("b", ""), testGroup("d", "")

	c.Put(a)
	c.Put(b)
	if c.Len() != 2 || c.Bytes() != 2*513 {
		t.Fatalf("len = %d bytes = %d", c.Len(), c.Bytes())
	}

	// Touch a so b becomes the eviction candidate.
	if got, ok := c.Get("a"); !ok || got != a {
		t.Fatalf("get a = %v, %v", got, ok)
	}
	c.Put(d)
	if _, ok := c.Get("b"); ok {
		t.Fatalf("b should have been evicted")
	}
	if _, ok := c.Get("a"); !ok {
		t.Fatalf("a evicted out of order")
	}
	if _, ok := c.Get("d"); !ok {
		t.Fatalf("d missing")
	}
	if c.Bytes() != 2*513 {
		t.Fatalf("bytes = %d", c.Bytes())
	}
}

func TestCachePutReplacesSameName(t *testing.T) {
	c := NewCache(0)
	first := testGroup("g", "")
	second := testGroup("g", "longer description")
	c.Put(first)
	c.Put(second)
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
	got, ok := c.Get("g")
	if !ok || got != second {
		t.Fatalf("get = %v, %v", got, ok)
	}
	if c.Bytes() != second.CachedSize() {
		t.Fatalf("bytes = %d, want %d", c.Bytes(), second.CachedSize())
	}
}

func TestCacheRename(t *testing.T) {
	c := NewCache(0)
	g := testGroup("old", "")
	c.Put(g)
	before := c.Bytes()

	if !c.Rename("old", "newer") {
		t.Fatalf("rename reported miss")
	}
	if _, ok := c.Get("old"); ok {
		t.Fatalf("old name still resolves")
	}
	got, ok := c.Get("newer")
	if !ok || got != g {
		t.Fatalf("new name = %v, %v", got, ok)
	}
	if c.Bytes() != before+int64(len("newer")-len("old")) {
		t.Fatalf("bytes = %d", c.Bytes())
	}
	if c.Rename("ghost", "x") {
		t.Fatalf("rename of missing entry reported hit")
	}
}

func TestCacheRenameDisplacesStaleEntry(t *testing.T) {
	c := NewCache(0)
	winner := testGroup("a", "")
	stale := testGroup("b", "")
	c.Put(winner)
	c.Put(stale)

	// Renaming onto an occupied name drops the stale occupant so a name
	// never maps to two live instances.
	if !c.Rename("a", "b") {
		t.Fatalf("rename reported miss")
	}
	got, ok := c.Get("b")
	if !ok || got != winner {
		t.Fatalf("b = %v, %v", got, ok)
	}
	if c.Len() != 1 {
		t.Fatalf("len = %d", c.Len())
	}
}

func TestCacheRemove(t *testing.T) {
	c := NewCache(0)
	c.Put(testGroup("g", ""))
	if !c.Remove("g") {
		t.Fatalf("remove reported miss")
	}
	if c.Remove("g") {
		t.Fatalf("second remove reported hit")
	}
	if c.Len() != 0 || c.Bytes() != 0 {
		t.Fatalf("len = %d bytes = %d", c.Len(), c.Bytes())
	}
}
