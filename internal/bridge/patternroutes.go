package bridge

import "bytes"

// PatternRouteMap is as SubjectRouteMap but keyed by the hash of a
// pattern's literal prefix; several distinct patterns may share a prefix
// hash and even a prefix, so entries additionally store the full pattern
// bytes for identity and the prefix bytes for chain matching.

type patternEntry struct {
	inUse      bool
	prefixHash uint32
	prefix     []byte
	pattern    []byte
	prefixLen  int
	ids        Handle
	next       uint32
}

// RemovedPattern describes one PatternRouteMap entry whose id-set emptied
// during a Rem call, so the caller can emit del_pattern_route/notify_punsub
// for it.
type RemovedPattern struct {
	Pattern []byte
}

// PatternRouteMap maps a pattern prefix hash to the (possibly several)
// pattern entries sharing that hash.
type PatternRouteMap struct {
	comp    *Compressor
	buckets []uint32
	mask    uint32
	entries []patternEntry
	free    []uint32
	count   int
}

// NewPatternRouteMap returns an empty map sharing comp for id-set storage.
func NewPatternRouteMap(comp *Compressor) *PatternRouteMap {
	m := &PatternRouteMap{comp: comp}
	m.resizeBuckets(16)
	return m
}

func (m *PatternRouteMap) resizeBuckets(n int) {
	buckets := make([]uint32, n)
	for i := range buckets {
		buckets[i] = noIndex
	}
	old := m.entries
	m.buckets = buckets
	m.mask = uint32(n - 1)

	for i := range old {
		if !old[i].inUse {
			continue
		}
		b := old[i].prefixHash & m.mask
		old[i].next = m.buckets[b]
		m.buckets[b] = uint32(i)
	}
}

func (m *PatternRouteMap) bucket(hash uint32) uint32 {
	return hash & m.mask
}

// Put inserts id into the id-set for pattern (identified by its full bytes,
// chained under prefixHash). Returns PutNew iff this created the entry.
func (m *PatternRouteMap) Put(prefixHash uint32, prefix, pattern []byte, id uint32) PutResult {
	b := m.bucket(prefixHash)
	for idx := m.buckets[b]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.prefixHash == prefixHash && bytes.Equal(e.pattern, pattern) {
			newH, _ := m.comp.Insert(e.ids, id)
			e.ids = newH
			return PutExists
		}
	}

	idx := m.allocEntry()
	e := &m.entries[idx]
	e.inUse = true
	e.prefixHash = prefixHash
	e.prefix = append([]byte(nil), prefix...)
	e.pattern = append([]byte(nil), pattern...)
	e.prefixLen = len(prefix)
	e.ids, _ = m.comp.Insert(emptyHandle, id)
	e.next = m.buckets[b]
	m.buckets[b] = idx
	m.count++

	if m.count > len(m.buckets) {
		m.resizeBuckets(len(m.buckets) * 2)
	}

	return PutNew
}

// Rem removes id from every entry whose stored prefix equals prefix (not
// the full pattern), walking prefixHash's chain. Entries whose id-set
// empties are unlinked and returned for the caller to announce.
func (m *PatternRouteMap) Rem(prefixHash uint32, prefix []byte, id uint32) []RemovedPattern {
	var emptied []uint32

	b := m.bucket(prefixHash)
	for idx := m.buckets[b]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.prefixHash != prefixHash || !bytes.Equal(e.prefix, prefix) {
			continue
		}
		newH, res := m.comp.Remove(e.ids, id)
		switch res {
		case ResultEmptied:
			emptied = append(emptied, idx)
		case ResultChanged:
			e.ids = newH
		}
	}

	if len(emptied) == 0 {
		return nil
	}

	removed := make([]RemovedPattern, 0, len(emptied))
	for _, idx := range emptied {
		removed = append(removed, RemovedPattern{Pattern: m.entries[idx].pattern})
		m.unlinkAndFree(b, idx)
	}
	return removed
}

func (m *PatternRouteMap) unlinkAndFree(bucket, idx uint32) {
	var prev uint32 = noIndex
	for i := m.buckets[bucket]; i != noIndex; i = m.entries[i].next {
		if i == idx {
			if prev == noIndex {
				m.buckets[bucket] = m.entries[i].next
			} else {
				m.entries[prev].next = m.entries[i].next
			}
			break
		}
		prev = i
	}
	m.entries[idx] = patternEntry{}
	m.free = append(m.free, idx)
	m.count--
}

// IDCount returns the number of session ids currently subscribed to
// pattern, used to fill notify_psub's rcnt argument.
func (m *PatternRouteMap) IDCount(prefixHash uint32, pattern []byte) int {
	for idx := m.buckets[m.bucket(prefixHash)]; idx != noIndex; idx = m.entries[idx].next {
		e := &m.entries[idx]
		if e.prefixHash == prefixHash && bytes.Equal(e.pattern, pattern) {
			ids, cell := m.comp.Decompress(e.ids)
			m.comp.Deref(cell)
			return len(ids)
		}
	}
	return 0
}

// Count returns the number of live pattern entries, used to populate the
// bridgemetrics pattern-route gauge.
func (m *PatternRouteMap) Count() int {
	return m.count
}

// FindByPrefixHash reports whether any live entry shares prefixHash.
func (m *PatternRouteMap) FindByPrefixHash(prefixHash uint32) bool {
	for idx := m.buckets[m.bucket(prefixHash)]; idx != noIndex; idx = m.entries[idx].next {
		if m.entries[idx].prefixHash == prefixHash {
			return true
		}
	}
	return false
}

// RemoveAllForID removes id from every entry's id-set, used to drop a
// session's pattern routes wholesale on dataloss, BYE, or timeout eviction.
func (m *PatternRouteMap) RemoveAllForID(id uint32) []RemovedPattern {
	var removed []RemovedPattern
	for idx := range m.entries {
		e := &m.entries[idx]
		if !e.inUse {
			continue
		}
		newH, res := m.comp.Remove(e.ids, id)
		switch res {
		case ResultEmptied:
			removed = append(removed, RemovedPattern{Pattern: e.pattern})
			b := e.prefixHash & m.mask
			m.unlinkAndFree(b, uint32(idx))
		case ResultChanged:
			e.ids = newH
		}
	}
	return removed
}

func (m *PatternRouteMap) allocEntry() uint32 {
	if n := len(m.free); n > 0 {
		idx := m.free[n-1]
		m.free = m.free[:n-1]
		return idx
	}
	m.entries = append(m.entries, patternEntry{})
	return uint32(len(m.entries) - 1)
}
