package bridge

import (
	"encoding/binary"
	"time"

	"github.com/cespare/xxhash/v2"
)

// PeerTable tracks remote bridge peers by stamp. Sessions live in a dense,
// append-only array so that ids are stable index values; a free-list
// recycles released slots. A global LRU list (over the same slots) drives
// timeout eviction, and a separate hash-chained index resolves stamp -> id
// lookups that miss the one-entry MRU cache.
//
// State transitions follow the NEW -> ESTABLISHED -> DATALOSS -> TIMEOUT ->
// released machine. There is no discrete transition table: every edge is
// driven by either a sequence-number comparison or a clock comparison --
// see UpdateSession and CheckTimeout.

// SessionState is a bitset over a session's lifecycle flags.
type SessionState uint8

const (
	// StateNew is set at creation and cleared on the first HELLO-with-ping
	// whose payload equals our own stamp.
	StateNew SessionState = 1 << iota
	// StateDataloss is set when a received frame's sequence gap != 1.
	StateDataloss
	// StateTimeout is set by the first idle observation of a peer at the
	// LRU tail; a second idle observation evicts it.
	StateTimeout
	// StateBye is set on an explicit BYE frame, just before release.
	StateBye
)

// String renders the set flags joined by "|", or "established" when none
// are set (the steady-state default once StateNew clears).
func (s SessionState) String() string {
	if s == 0 {
		return "established"
	}

	var out string
	add := func(flag SessionState, name string) {
		if s&flag == 0 {
			return
		}
		if out != "" {
			out += "|"
		}
		out += name
	}
	add(StateNew, "new")
	add(StateDataloss, "dataloss")
	add(StateTimeout, "timeout")
	add(StateBye, "bye")

	return out
}

// Session is the bridge's local record for one remote peer.
type Session struct {
	ID         uint32
	Stamp      uint64
	LastActive time.Time
	LastSeqno  uint64
	DeltaSeqno uint64
	PubCount   uint32
	SubCount   uint32
	PsubCount  uint32
	State      SessionState

	// Frag is the in-progress fragment-reassembly handle for this peer, nil
	// when no fragmented message is in flight.
	Frag *FragmentAssembler
	// FragmentsInFlight counts fragments currently buffered in Frag, an
	// admin-observability counter.
	FragmentsInFlight int

	inUse             bool
	lruPrev, lruNext  uint32
	chainNext         uint32
}

const slabSize = 64
const noIndex = ^uint32(0)

// PeerTable owns the dense session array plus its LRU and stamp-hash index.
type PeerTable struct {
	slots   []Session
	free    []uint32
	buckets []uint32
	mask    uint32

	lruHead, lruTail uint32
	lastID           uint32 // MRU cache; noIndex means the dummy session (stamp 0)
	pingCursor       uint32
	count            int
}

// NewPeerTable returns an empty PeerTable.
func NewPeerTable() *PeerTable {
	t := &PeerTable{
		lruHead: noIndex,
		lruTail: noIndex,
		lastID:  noIndex,
	}
	t.resizeBuckets(16)
	return t
}

func hashStamp(stamp uint64) uint32 {
	var b [8]byte
	binary.BigEndian.PutUint64(b[:], stamp)
	return uint32(xxhash.Sum64(b[:]))
}

func (t *PeerTable) resizeBuckets(n int) {
	buckets := make([]uint32, n)
	for i := range buckets {
		buckets[i] = noIndex
	}
	t.mask = uint32(n - 1)
	t.buckets = buckets

	for i := range t.slots {
		if !t.slots[i].inUse {
			continue
		}
		b := hashStamp(t.slots[i].Stamp) & t.mask
		t.slots[i].chainNext = t.buckets[b]
		t.buckets[b] = uint32(i)
	}
}

// LastSessionStamp implements testable property 5: either 0 (the dummy
// session) or some live session's stamp.
func (t *PeerTable) LastSessionStamp() uint64 {
	if t.lastID == noIndex {
		return 0
	}
	return t.slots[t.lastID].Stamp
}

// Get returns the live session at id, if any.
func (t *PeerTable) Get(id uint32) (*Session, bool) {
	if id >= uint32(len(t.slots)) || !t.slots[id].inUse {
		return nil, false
	}
	return &t.slots[id], true
}

// lookupByStamp resolves stamp via the MRU cache, falling back to the
// stamp-hash chain.
func (t *PeerTable) lookupByStamp(stamp uint64) (*Session, bool) {
	if t.lastID != noIndex && t.slots[t.lastID].Stamp == stamp {
		return &t.slots[t.lastID], true
	}

	b := hashStamp(stamp) & t.mask
	for idx := t.buckets[b]; idx != noIndex; idx = t.slots[idx].chainNext {
		if t.slots[idx].Stamp == stamp {
			return &t.slots[idx], true
		}
	}
	return nil, false
}

// UpdateSession resolves stamp to a session (MRU cache, then stamp-hash,
// then create), recomputes the sequence delta, and promotes the session
// to the LRU head. now is the frame's observed arrival time.
func (t *PeerTable) UpdateSession(stamp, seqno uint64, now time.Time) *Session {
	s, ok := t.lookupByStamp(stamp)
	if !ok {
		s = t.newSession(stamp, seqno, now)
		t.lastID = s.ID
		t.lruPromote(s.ID)
		return s
	}

	delta := seqno - s.LastSeqno
	s.DeltaSeqno = delta
	if delta != 1 {
		s.State |= StateDataloss
	} else {
		s.State &^= StateTimeout
	}
	s.LastSeqno = seqno
	s.LastActive = now

	t.lastID = s.ID
	t.lruPromote(s.ID)
	return s
}

// newSession creates a session for a previously-unseen stamp.
func (t *PeerTable) newSession(stamp, seqno uint64, now time.Time) *Session {
	id := t.allocSlot()
	s := &t.slots[id]
	*s = Session{
		ID:         id,
		Stamp:      stamp,
		LastActive: now,
		LastSeqno:  seqno,
		DeltaSeqno: 1,
		State:      StateNew,
		inUse:      true,
		lruPrev:    noIndex,
		lruNext:    noIndex,
	}

	b := hashStamp(stamp) & t.mask
	s.chainNext = t.buckets[b]
	t.buckets[b] = id
	t.count++

	if t.count > len(t.buckets) {
		t.resizeBuckets(len(t.buckets) * 2)
	}

	return s
}

// allocSlot returns a free session index, growing the array in slabs of 64
// if the free list is empty. Slot indices are never renumbered.
func (t *PeerTable) allocSlot() uint32 {
	if n := len(t.free); n > 0 {
		idx := t.free[n-1]
		t.free = t.free[:n-1]
		return idx
	}

	base := len(t.slots)
	t.slots = append(t.slots, make([]Session, slabSize)...)
	for i := base + 1; i < base+slabSize; i++ {
		t.free = append(t.free, uint32(i))
	}
	return uint32(base)
}

// ReleaseSession unlinks id from the LRU and stamp-hash chain, drops its
// fragment handle, and returns the slot to the free list. Called for BYE,
// timeout eviction, or full shutdown.
func (t *PeerTable) ReleaseSession(id uint32) {
	if id >= uint32(len(t.slots)) || !t.slots[id].inUse {
		return
	}

	t.lruUnlink(id)
	t.unlinkChain(id)

	if t.lastID == id {
		t.lastID = noIndex
	}
	if t.pingCursor == id {
		t.pingCursor = noIndex
	}

	t.slots[id] = Session{}
	t.free = append(t.free, id)
	t.count--
}

func (t *PeerTable) unlinkChain(id uint32) {
	b := hashStamp(t.slots[id].Stamp) & t.mask
	var prev uint32 = noIndex
	for idx := t.buckets[b]; idx != noIndex; idx = t.slots[idx].chainNext {
		if idx == id {
			if prev == noIndex {
				t.buckets[b] = t.slots[idx].chainNext
			} else {
				t.slots[prev].chainNext = t.slots[idx].chainNext
			}
			return
		}
		prev = idx
	}
}

// lruPromote moves id to the LRU head (most recently active).
func (t *PeerTable) lruPromote(id uint32) {
	if t.lruHead == id {
		return
	}
	t.lruUnlink(id)

	t.slots[id].lruPrev = noIndex
	t.slots[id].lruNext = t.lruHead
	if t.lruHead != noIndex {
		t.slots[t.lruHead].lruPrev = id
	}
	t.lruHead = id
	if t.lruTail == noIndex {
		t.lruTail = id
	}
}

func (t *PeerTable) lruUnlink(id uint32) {
	s := &t.slots[id]
	if s.lruPrev != noIndex {
		t.slots[s.lruPrev].lruNext = s.lruNext
	} else if t.lruHead == id {
		t.lruHead = s.lruNext
	}
	if s.lruNext != noIndex {
		t.slots[s.lruNext].lruPrev = s.lruPrev
	} else if t.lruTail == id {
		t.lruTail = s.lruPrev
	}
	s.lruPrev, s.lruNext = noIndex, noIndex
}

// CheckTimeout inspects only the LRU tail (the least recently active
// session). If it has been idle since before cutoff and is already
// TIMEOUT-flagged, it is returned for the caller to evict (clear routes,
// ReleaseSession). Otherwise, if idle, TIMEOUT is set and nil is returned:
// two successive idle observations are required to evict a peer.
func (t *PeerTable) CheckTimeout(cutoff time.Time) (*Session, bool) {
	if t.lruTail == noIndex {
		return nil, false
	}
	s := &t.slots[t.lruTail]
	if !s.LastActive.Before(cutoff) {
		return nil, false
	}
	if s.State&StateTimeout != 0 {
		return s, true
	}
	s.State |= StateTimeout
	return nil, false
}

// NextPing returns the stamp of the next peer to address in a rotating
// heartbeat-peer probe, advancing the rotation cursor. Supplemented from
// the original implementation's next_ping.
func (t *PeerTable) NextPing() (uint64, bool) {
	if t.count == 0 {
		return 0, false
	}

	n := uint32(len(t.slots))
	for i := uint32(0); i < n; i++ {
		t.pingCursor++
		if t.pingCursor >= n {
			t.pingCursor = 0
		}
		if t.slots[t.pingCursor].inUse {
			return t.slots[t.pingCursor].Stamp, true
		}
	}
	return 0, false
}

// Count returns the number of live sessions.
func (t *PeerTable) Count() int {
	return t.count
}

// Each calls fn for every live session, in slot order. fn must not call
// ReleaseSession on a session other than the one it was given.
func (t *PeerTable) Each(fn func(*Session)) {
	for i := range t.slots {
		if t.slots[i].inUse {
			fn(&t.slots[i])
		}
	}
}
