package bridge

// OutboundQueue batches encoded frames for delivery to the fabric. Frame
// bytes are carved out of a single bump-allocated arena rather than
// allocated per message; the arena is reset in one shot once every
// pending item has drained, mirroring the source's per-tick write()
// buffer reuse without needing a free list for individual frames.

// maxSendAttempts bounds how many ticks a not-connected destination is
// retried before its frame is dropped.
const maxSendAttempts = 3

type outboundItem struct {
	dst      uint64
	buf      []byte
	attempts int
}

// DroppedReason explains why Drain discarded an item without delivering it.
type DroppedReason uint8

const (
	// DroppedRetriesExhausted means dst stayed unreachable past maxSendAttempts.
	DroppedRetriesExhausted DroppedReason = iota
	// DroppedAdminAction means an operator blocked dst.
	DroppedAdminAction
	// DroppedClosed means the fabric connection to dst is gone for good.
	DroppedClosed
)

// Dropped names one item Drain gave up on, and why, so the caller can react
// (release a session, emit a log line, bump a metric).
type Dropped struct {
	Dst    uint64
	Reason DroppedReason
}

// DrainStats summarizes one Drain call.
type DrainStats struct {
	Sent          int
	Backpressured int
	Dropped       []Dropped
}

// OutboundQueue owns the pending-frame list and the arena their bytes are
// carved from.
type OutboundQueue struct {
	fabric Fabric

	arena    []byte
	arenaOff int

	pending []outboundItem

	// seqnos tracks the next sequence number to stamp per destination, so
	// the receiving dispatcher's gap-based dataloss check has something
	// meaningful to compare against. Keyed by destination, not source,
	// since a single bridge fans the same logical frame out to many peers.
	seqnos map[uint64]uint64
}

// NewOutboundQueue returns a queue that writes to fabric, backed by an arena
// of arenaSize bytes.
func NewOutboundQueue(fabric Fabric, arenaSize int) *OutboundQueue {
	return &OutboundQueue{
		fabric: fabric,
		arena:  make([]byte, arenaSize),
		seqnos: make(map[uint64]uint64),
	}
}

// Enqueue marshals f and queues it for delivery to dst. Returns false if the
// arena has no room left this tick; the caller should Drain and retry.
func (q *OutboundQueue) Enqueue(dst uint64, f *Frame) bool {
	q.seqnos[dst]++
	f.Seqno = q.seqnos[dst]

	remaining := q.arena[q.arenaOff:]
	n, err := Marshal(f, remaining)
	if err != nil {
		return false
	}
	buf := remaining[:n]
	q.arenaOff += n
	q.pending = append(q.pending, outboundItem{dst: dst, buf: buf})
	return true
}

// Drain offers every pending item to the fabric once, in FIFO order. An item
// that hits backpressure halts delivery to its destination for this call but
// does not block other destinations queued behind it. An item that is
// not-connected is retried up to maxSendAttempts ticks before being dropped.
// If every item drains (delivered or dropped), the arena is reset for reuse.
func (q *OutboundQueue) Drain() DrainStats {
	var stats DrainStats
	remaining := q.pending[:0]
	var blocked map[uint64]bool

	for _, item := range q.pending {
		if blocked[item.dst] {
			remaining = append(remaining, item)
			continue
		}
		switch q.fabric.Offer(item.dst, item.buf) {
		case OfferOK:
			stats.Sent++
		case OfferBackpressure:
			stats.Backpressured++
			remaining = append(remaining, item)
			if blocked == nil {
				blocked = make(map[uint64]bool)
			}
			blocked[item.dst] = true
		case OfferNotConnected:
			item.attempts++
			if item.attempts >= maxSendAttempts {
				stats.Dropped = append(stats.Dropped, Dropped{Dst: item.dst, Reason: DroppedRetriesExhausted})
				continue
			}
			remaining = append(remaining, item)
		case OfferAdminAction:
			stats.Dropped = append(stats.Dropped, Dropped{Dst: item.dst, Reason: DroppedAdminAction})
		case OfferClosed:
			stats.Dropped = append(stats.Dropped, Dropped{Dst: item.dst, Reason: DroppedClosed})
		}
	}

	q.pending = remaining
	if len(q.pending) == 0 {
		q.arenaOff = 0
	}
	return stats
}

// Pending reports how many items await delivery.
func (q *OutboundQueue) Pending() int {
	return len(q.pending)
}
