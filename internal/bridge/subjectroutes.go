package bridge

import (
	"bytes"

	"github.com/cespare/xxhash/v2"
)

// SubjectRouteMap is the bridge's view of exact-subject routes owned by one
// or more remote peer sessions. Entries are created on a session's first
// subscribe for a subject and destroyed when the id-set empties.

// HashSubject hashes subject bytes the same way on both the wire-frame
// producer and the local route maps, so a peer-supplied hash and a
// locally-recomputed one always agree.
func HashSubject(subject []byte) uint32 {
	return uint32(xxhash.Sum64(subject))
}

// PutResult is the outcome of SubjectRouteMap.Put / PatternRouteMap.Put.
type PutResult uint8

const (
	// PutNew means this was the first id for the subject/pattern: the
	// caller must install an aggregate route at the local bus.
	PutNew PutResult = iota
	// PutExists means the id was already present; no route change needed.
	PutExists
)

// RemResult is the outcome of SubjectRouteMap.Rem.
type RemResult uint8

const (
	// RemOK means the id was removed but other ids remain subscribed.
	RemOK RemResult = iota
	// RemRemoved means the id-set became empty: the entry is gone and the
	// caller must drop the aggregate route unless another live entry still
	// shares the subject hash (see FindByHash).
	RemRemoved
	// RemNotFound means no matching entry/id existed.
	RemNotFound
)

type subjectEntry struct {
	inUse   bool
	hash    uint32
	subject []byte
	ids     Handle
	next    uint32 // next entry index sharing this bucket, noIndex-terminated
}

// SubjectRouteMap is a hash-chained map from exact subject bytes to the
// compressed set of session ids subscribed to it.
type SubjectRouteMap struct {
	comp    *Compressor
	buckets []uint32 // bucket -> head entry index, or noIndex
	mask    uint32
	entries []subjectEntry
	free    []uint32
	count   int
}

// NewSubjectRouteMap returns an empty map sharing comp for id-set storage.
func NewSubjectRouteMap(comp *Compressor) *SubjectRouteMap {
	m := &SubjectRouteMap{comp: comp}
	m.resizeBuckets(16)
	return m
}

func (m *SubjectRouteMap) resizeBuckets(n int) {
	buckets := make([]uint32, n)
	for i := range buckets {
		buckets[i] = noIndex
	}
	old := m.entries
	m.buckets = buckets
	m.mask = uint32(n - 1)

	// Re-thread every live entry into the new bucket array.
	for i := range old {
		if !old[i].inUse {
			continue
		}
		b := old[i].hash & m.mask
		old[i].next = m.buckets[b]
		m.buckets[b] = uint32(i)
	}
}

func (m *SubjectRouteMap) bucket(hash uint32) uint32 {
	return hash & m.mask
}

// Put inserts id into the id-set for subject (identified by hash + exact
// bytes). Returns PutNew iff this created the entry's first id.
func (m *SubjectRouteMap) Put(hash uint32, subject []byte, id uint32) PutResult {
	b := m.bucket(hash)
	for idx := m.buckets[b]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.hash == hash && bytes.Equal(e.subject, subject) {
			newH, res := m.comp.Insert(e.ids, id)
			e.ids = newH
			if res == ResultUnchanged {
				return PutExists
			}
			return PutExists // id-set existed already, just grew: not a new entry
		}
	}

	// No existing entry for this subject: create one.
	idx := m.allocEntry()
	e := &m.entries[idx]
	e.inUse = true
	e.hash = hash
	e.subject = append([]byte(nil), subject...)
	e.ids, _ = m.comp.Insert(emptyHandle, id)
	e.next = m.buckets[b]
	m.buckets[b] = idx
	m.count++

	if m.count > len(m.buckets) {
		m.resizeBuckets(len(m.buckets) * 2)
	}

	return PutNew
}

// Rem removes id from subject's id-set. Returns RemRemoved iff the entry's
// id-set became empty, in which case the entry has already been unlinked
// from the map.
func (m *SubjectRouteMap) Rem(hash uint32, subject []byte, id uint32) RemResult {
	b := m.bucket(hash)
	var prev uint32 = noIndex
	for idx := m.buckets[b]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.hash == hash && bytes.Equal(e.subject, subject) {
			newH, res := m.comp.Remove(e.ids, id)
			switch res {
			case ResultUnchanged:
				return RemNotFound
			case ResultEmptied:
				m.unlink(b, prev, idx)
				m.freeEntry(idx)
				return RemRemoved
			default:
				e.ids = newH
				return RemOK
			}
		}
		prev = idx
	}
	return RemNotFound
}

// IDCount returns the number of session ids currently subscribed to subject,
// used to fill notify_sub's rcnt argument.
func (m *SubjectRouteMap) IDCount(hash uint32, subject []byte) int {
	for idx := m.buckets[m.bucket(hash)]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.hash == hash && bytes.Equal(e.subject, subject) {
			ids, cell := m.comp.Decompress(e.ids)
			m.comp.Deref(cell)
			return len(ids)
		}
	}
	return 0
}

// Count returns the number of live subject entries, used to populate the
// bridgemetrics subject-route gauge.
func (m *SubjectRouteMap) Count() int {
	return m.count
}

// FindByHash reports whether any live entry shares hash, used by callers
// deciding whether a shared aggregate route is still needed.
func (m *SubjectRouteMap) FindByHash(hash uint32) bool {
	for idx := m.buckets[m.bucket(hash)]; idx != noIndex; idx = m.entries[idx].next {
		if m.entries[idx].hash == hash {
			return true
		}
	}
	return false
}

// SubjectCursor iterates live entries in index order; zero value starts at
// the beginning.
type SubjectCursor struct{ next uint32 }

// First returns the first live entry and a cursor to continue from, or ok=false.
func (m *SubjectRouteMap) First() (subject []byte, ids []uint32, cur SubjectCursor, ok bool) {
	return m.Next(SubjectCursor{})
}

// Next returns the next live entry after cur.
func (m *SubjectRouteMap) Next(cur SubjectCursor) (subject []byte, ids []uint32, next SubjectCursor, ok bool) {
	for i := cur.next; i < uint32(len(m.entries)); i++ {
		if m.entries[i].inUse {
			ids, cell := m.comp.Decompress(m.entries[i].ids)
			m.comp.Deref(cell)
			return m.entries[i].subject, ids, SubjectCursor{next: i + 1}, true
		}
	}
	return nil, nil, SubjectCursor{next: uint32(len(m.entries))}, false
}

// RemovedSubject describes one SubjectRouteMap entry whose id-set emptied
// during a RemoveAllForID sweep.
type RemovedSubject struct {
	Subject []byte
}

// RemoveAllForID removes id from every entry's id-set, used to drop a
// session's routes wholesale on dataloss, BYE, or timeout eviction. There is
// no reverse index from session id to subjects, so this walks every entry;
// acceptable since it only runs on the rare session-teardown path, not the
// per-frame hot path.
func (m *SubjectRouteMap) RemoveAllForID(id uint32) []RemovedSubject {
	var removed []RemovedSubject
	for idx := range m.entries {
		e := &m.entries[idx]
		if !e.inUse {
			continue
		}
		newH, res := m.comp.Remove(e.ids, id)
		switch res {
		case ResultEmptied:
			removed = append(removed, RemovedSubject{Subject: e.subject})
			b := e.hash & m.mask
			m.unlinkByIndex(b, uint32(idx))
			m.freeEntry(uint32(idx))
		case ResultChanged:
			e.ids = newH
		}
	}
	return removed
}

func (m *SubjectRouteMap) unlinkByIndex(bucket, idx uint32) {
	var prev uint32 = noIndex
	for i := m.buckets[bucket]; i != noIndex; i = m.entries[i].next {
		if i == idx {
			m.unlink(bucket, prev, idx)
			return
		}
		prev = i
	}
}

func (m *SubjectRouteMap) allocEntry() uint32 {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		return idx
	}
	m.entries = append(m.entries, subjectEntry{})
	return uint32(len(m.entries) - 1)
}

func (m *SubjectRouteMap) freeEntry(idx uint32) {
	m.entries[idx] = subjectEntry{}
	m.free = append(m.free, idx)
	m.count--
}

func (m *SubjectRouteMap) unlink(bucket, prev, idx uint32) {
	if prev == noIndex {
		m.buckets[bucket] = m.entries[idx].next
	} else {
		m.entries[prev].next = m.entries[idx].next
	}
}
