package bridge

import "slices"

// Delta/route compressor: a compressor over sets of small integer session
// ids. Sets of size 0 or 1 are represented inline in
// the Handle itself; larger sets live in a refcounted arena slot so that
// two routes sharing the exact same id-set can share storage.
//
// A Handle is opaque to callers: zero means "empty set", the high bit
// distinguishes the inline tag from an arena index.

// Handle is a compressed representation of a sorted set of session ids.
// The zero Handle represents the empty set.
type Handle uint64

const inlineTag = uint64(1) << 63

// emptyHandle is the zero value; kept as a named constant for clarity at call sites.
const emptyHandle Handle = 0

// arenaEntry backs a Handle whose id-set has more than one member.
type arenaEntry struct {
	ids      []uint32 // sorted, no duplicates
	refcount int32
	inUse    bool
}

// Compressor owns the shared arena of multi-id sets referenced by Handles.
// Not safe for concurrent use; the bridge event loop is single-threaded.
type Compressor struct {
	arena []arenaEntry
	free  []uint32
}

// NewCompressor returns an empty Compressor.
func NewCompressor() *Compressor {
	return &Compressor{}
}

// isInline reports whether h encodes its id directly rather than through
// the arena.
func isInline(h Handle) bool {
	return h != 0 && uint64(h)&inlineTag != 0
}

func inlineHandle(id uint32) Handle {
	return Handle(inlineTag | uint64(id))
}

func inlineID(h Handle) uint32 {
	return uint32(uint64(h) &^ inlineTag)
}

// Decompress returns the sorted id-set aliased by h. For inline handles the
// returned refcount pointer is nil: there is nothing to deref. For arena
// handles the returned pointer is the live refcount cell; callers that are
// done with the decompressed view must call Deref on it exactly once per
// Decompress call that returned non-nil.
func (c *Compressor) Decompress(h Handle) ([]uint32, *int32) {
	switch {
	case h == emptyHandle:
		return nil, nil
	case isInline(h):
		return []uint32{inlineID(h)}, nil
	default:
		idx := int(h) - 1
		e := &c.arena[idx]
		e.refcount++
		return e.ids, &e.refcount
	}
}

// Deref releases one reference obtained from Decompress. Safe to call with
// a nil cell (a no-op, matching the inline case).
func (c *Compressor) Deref(cell *int32) {
	if cell == nil {
		return
	}
	*cell--
	if *cell > 0 {
		return
	}
	// Find and free the owning arena slot. Cell is a pointer into the arena
	// slice element, so we can recover its index via pointer arithmetic on
	// the common case: callers only ever hold cells obtained from this
	// Compressor's own arena.
	for i := range c.arena {
		if &c.arena[i].refcount == cell {
			c.arena[i].inUse = false
			c.arena[i].ids = nil
			c.free = append(c.free, uint32(i))
			return
		}
	}
}

// ModifyResult describes the outcome of Insert/Remove against a Handle.
type ModifyResult uint8

const (
	// ResultUnchanged means the id was already present (Insert) or already
	// absent (Remove); the returned Handle is identical to the input.
	ResultUnchanged ModifyResult = iota
	// ResultChanged means the id-set changed and the returned Handle
	// replaces the caller's stored handle.
	ResultChanged
	// ResultEmptied means the id-set became empty; the returned Handle is
	// zero and the caller is expected to remove the parent map entry.
	ResultEmptied
)

// Insert adds id to the set aliased by h, returning the new handle and the
// outcome. The caller is responsible for replacing its stored handle with
// the returned one (old storage, if any, has already been released).
func (c *Compressor) Insert(h Handle, id uint32) (Handle, ModifyResult) {
	ids := c.rawIDs(h)

	pos, found := searchSorted(ids, id)
	if found {
		return h, ResultUnchanged
	}

	next := make([]uint32, len(ids)+1)
	copy(next, ids[:pos])
	next[pos] = id
	copy(next[pos+1:], ids[pos:])

	c.release(h)
	return c.encode(next), ResultChanged
}

// Remove deletes id from the set aliased by h.
func (c *Compressor) Remove(h Handle, id uint32) (Handle, ModifyResult) {
	ids := c.rawIDs(h)

	pos, found := searchSorted(ids, id)
	if !found {
		return h, ResultUnchanged
	}

	if len(ids) == 1 {
		c.release(h)
		return emptyHandle, ResultEmptied
	}

	next := make([]uint32, len(ids)-1)
	copy(next, ids[:pos])
	copy(next[pos:], ids[pos+1:])

	c.release(h)
	return c.encode(next), ResultChanged
}

// rawIDs returns the id-set of h without taking a reference; the slice must
// not be retained past the next mutation of the Compressor.
func (c *Compressor) rawIDs(h Handle) []uint32 {
	switch {
	case h == emptyHandle:
		return nil
	case isInline(h):
		return []uint32{inlineID(h)}
	default:
		return c.arena[int(h)-1].ids
	}
}

// release drops the caller's implicit reference to h (the one a map entry
// holds), freeing the arena slot if it was the last.
func (c *Compressor) release(h Handle) {
	if h == emptyHandle || isInline(h) {
		return
	}
	idx := int(h) - 1
	e := &c.arena[idx]
	e.refcount--
	if e.refcount <= 0 {
		e.inUse = false
		e.ids = nil
		c.free = append(c.free, uint32(idx))
	}
}

// encode allocates (or reuses) storage for ids and returns its Handle.
// Ownership: the returned handle carries one implicit reference, matching
// the reference release() expects to later drop.
func (c *Compressor) encode(ids []uint32) Handle {
	switch len(ids) {
	case 0:
		return emptyHandle
	case 1:
		return inlineHandle(ids[0])
	}

	for i := range c.arena {
		if e := &c.arena[i]; e.inUse && slices.Equal(e.ids, ids) {
			e.refcount++
			return Handle(i + 1)
		}
	}

	var idx uint32
	if n := len(c.free); n > 0 {
		idx = c.free[n-1]
		c.free = c.free[:n-1]
		c.arena[idx] = arenaEntry{ids: ids, refcount: 1, inUse: true}
	} else {
		idx = uint32(len(c.arena))
		c.arena = append(c.arena, arenaEntry{ids: ids, refcount: 1, inUse: true})
	}
	return Handle(idx + 1)
}

// searchSorted returns the insertion point for id in a sorted slice and
// whether id is already present.
func searchSorted(ids []uint32, id uint32) (int, bool) {
	lo, hi := 0, len(ids)
	for lo < hi {
		mid := (lo + hi) / 2
		switch {
		case ids[mid] == id:
			return mid, true
		case ids[mid] < id:
			lo = mid + 1
		default:
			hi = mid
		}
	}
	return lo, false
}
