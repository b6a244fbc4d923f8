package bridge

import (
	"reflect"
	"testing"
)

func TestCompressorInsertGrowsFromEmptyThroughInlineToArena(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	h := emptyHandle

	h, res := c.Insert(h, 5)
	if res != ResultChanged {
		t.Fatalf("insert into empty: result = %v, want ResultChanged", res)
	}
	if !isInline(h) {
		t.Fatalf("single-id set should be inline, got handle %#x", h)
	}

	h, res = c.Insert(h, 3)
	if res != ResultChanged {
		t.Fatalf("insert second id: result = %v, want ResultChanged", res)
	}
	if isInline(h) {
		t.Fatalf("two-id set should live in the arena, got inline handle %#x", h)
	}

	ids, cell := c.Decompress(h)
	defer c.Deref(cell)
	if !reflect.DeepEqual(ids, []uint32{3, 5}) {
		t.Errorf("ids = %v, want [3 5] (sorted)", ids)
	}
}

func TestCompressorInsertDuplicateIsUnchanged(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	h, _ := c.Insert(emptyHandle, 9)

	h2, res := c.Insert(h, 9)
	if res != ResultUnchanged {
		t.Errorf("result = %v, want ResultUnchanged", res)
	}
	if h2 != h {
		t.Errorf("handle changed on duplicate insert: %#x -> %#x", h, h2)
	}
}

func TestCompressorRemoveLastIDEmpties(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	h, _ := c.Insert(emptyHandle, 1)

	h, res := c.Remove(h, 1)
	if res != ResultEmptied {
		t.Fatalf("result = %v, want ResultEmptied", res)
	}
	if h != emptyHandle {
		t.Errorf("handle = %#x, want emptyHandle", h)
	}
}

func TestCompressorRemoveAbsentIDIsUnchanged(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	h, _ := c.Insert(emptyHandle, 1)

	h2, res := c.Remove(h, 42)
	if res != ResultUnchanged {
		t.Errorf("result = %v, want ResultUnchanged", res)
	}
	if h2 != h {
		t.Errorf("handle changed removing absent id: %#x -> %#x", h, h2)
	}
}

func TestCompressorSharesArenaSlotForIdenticalSets(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	a, _ := c.Insert(emptyHandle, 1)
	a, _ = c.Insert(a, 2)

	b, _ := c.Insert(emptyHandle, 1)
	b, _ = c.Insert(b, 2)

	if a != b {
		t.Errorf("identical id-sets did not share a handle: %#x != %#x", a, b)
	}
}

func TestCompressorArenaSlotReusedAfterRelease(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	a, _ := c.Insert(emptyHandle, 1)
	a, _ = c.Insert(a, 2)

	_, res := c.Remove(a, 1)
	if res != ResultChanged {
		t.Fatalf("remove from 2-set: result = %v, want ResultChanged", res)
	}
	arenaLenAfterFirst := len(c.arena)

	b, _ := c.Insert(emptyHandle, 10)
	b, _ = c.Insert(b, 20)

	if len(c.arena) > arenaLenAfterFirst {
		t.Errorf("arena grew (%d -> %d) instead of reusing a freed slot", arenaLenAfterFirst, len(c.arena))
	}

	ids, cell := c.Decompress(b)
	defer c.Deref(cell)
	if !reflect.DeepEqual(ids, []uint32{10, 20}) {
		t.Errorf("ids = %v, want [10 20]", ids)
	}
}

func TestCompressorDecompressEmptyHandle(t *testing.T) {
	t.Parallel()

	c := NewCompressor()
	ids, cell := c.Decompress(emptyHandle)
	if ids != nil || cell != nil {
		t.Errorf("Decompress(emptyHandle) = (%v, %v), want (nil, nil)", ids, cell)
	}
}
