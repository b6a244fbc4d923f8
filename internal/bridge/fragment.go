package bridge

// FragmentAssembler reassembles a sequence of PUBLISH/FRAGMENT frames that
// together carry one oversized message, keyed per session. The frame
// builder on the sending side marks every piece but the last with
// CodeMore; InboundDispatcher appends pieces in arrival order until a
// non-CodeMore piece completes the message.

// CodeMore marks a PUBLISH or FRAGMENT frame as not the final piece of its
// message.
const CodeMore byte = 'M'

// maxFragmentsInFlight bounds how many pieces one message may be split into
// before the assembler is considered overflowed and the dispatcher drops it,
// forwarding whatever partial data was collected so far.
const maxFragmentsInFlight = 256

// FragmentAssembler accumulates payload bytes for one in-progress message.
type FragmentAssembler struct {
	buf   []byte
	count int
}

// Append adds one piece's payload.
func (a *FragmentAssembler) Append(payload []byte) {
	a.buf = append(a.buf, payload...)
	a.count++
}

// Overflowed reports whether this assembler has exceeded the fragment cap.
func (a *FragmentAssembler) Overflowed() bool {
	return a.count > maxFragmentsInFlight
}

// Bytes returns the assembled buffer so far.
func (a *FragmentAssembler) Bytes() []byte {
	return a.buf
}
