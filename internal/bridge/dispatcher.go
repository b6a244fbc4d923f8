package bridge

import (
	"time"

	"github.com/rs/zerolog"
)

// InboundDispatcher decodes frames off the fabric, updates peer session
// state, and drives the route maps and local bus.

// Dispatcher wires together the PeerTable, route maps, local subscription
// cache, and the LocalBus producer surface for one bridge instance.
type Dispatcher struct {
	Peers    *PeerTable
	Subjects *SubjectRouteMap
	Patterns *PatternRouteMap
	Cache    *LocalSubCache
	Outbound *OutboundQueue
	Bus      LocalBus
	Log      zerolog.Logger

	// OurStamp and OurSendSrc identify frames this bridge itself emitted,
	// so Dispatch can suppress the self-loop a broadcast/multicast fabric
	// would otherwise echo back.
	OurStamp   uint64
	OurSendSrc uint32
}

// Dispatch decodes buf, resolves the sending session, and applies the
// frame's effects to the route maps and local bus. now is the frame's
// observed arrival time, used for session bookkeeping.
func (d *Dispatcher) Dispatch(buf []byte, now time.Time) error {
	f, err := Unmarshal(buf)
	if err != nil {
		return err
	}

	if f.Stamp == d.OurStamp && f.Src == d.OurSendSrc {
		return nil
	}

	session := d.Peers.UpdateSession(f.Stamp, f.Seqno, now)

	if session.State&StateDataloss != 0 && f.MsgType != MsgBye {
		d.Log.Warn().Uint64("stamp", f.Stamp).Uint32("id", session.ID).Uint64("delta_seqno", session.DeltaSeqno).Msg("peer dataloss")
		d.clearSessionRoutes(session)
		session.State = StateNew
	}

	switch f.MsgType {
	case MsgPublish:
		d.dispatchPublish(session, &f)
	case MsgFragment:
		if session.Frag == nil {
			session.Frag = &FragmentAssembler{}
		}
		session.Frag.Append(f.Payload)
		session.FragmentsInFlight++
	case MsgSub:
		d.dispatchSub(session, &f)
	case MsgUnsub:
		d.dispatchUnsub(session, &f)
	case MsgPsub:
		d.dispatchPsub(session, &f)
	case MsgPunsub:
		d.dispatchPunsub(session, &f)
	case MsgHello:
		d.dispatchHello(session, &f)
	case MsgBye:
		d.dispatchBye(session)
	}

	return nil
}

func (d *Dispatcher) dispatchPublish(session *Session, f *Frame) {
	defer func() { session.PubCount++ }()

	if session.Frag == nil {
		if f.Code == CodeMore {
			session.Frag = &FragmentAssembler{}
			session.Frag.Append(f.Payload)
			session.FragmentsInFlight = 1
			return
		}
		d.Bus.Publish(f.Subject, f.Reply, f.Payload)
		return
	}

	if session.Frag.Overflowed() {
		d.Bus.Publish(f.Subject, f.Reply, session.Frag.Bytes())
		session.Frag = nil
		session.FragmentsInFlight = 0
		return
	}

	session.Frag.Append(f.Payload)
	session.FragmentsInFlight++

	if f.Code != CodeMore || session.Frag.Overflowed() {
		d.Bus.Publish(f.Subject, f.Reply, session.Frag.Bytes())
		session.Frag = nil
		session.FragmentsInFlight = 0
	}
}

func (d *Dispatcher) dispatchSub(session *Session, f *Frame) {
	res := d.Subjects.Put(f.Hash, f.Subject, session.ID)
	if res == PutNew {
		d.Bus.AddSubRoute(f.Subject)
		session.SubCount++
	}
	rcnt := d.Subjects.IDCount(f.Hash, f.Subject)
	d.Bus.NotifySub(rcnt, 'A', f.Subject, f.Reply)
}

func (d *Dispatcher) dispatchUnsub(session *Session, f *Frame) {
	res := d.Subjects.Rem(f.Hash, f.Subject, session.ID)
	if res != RemRemoved {
		return
	}
	session.SubCount--
	// The shared-hash check guards against two distinct subjects colliding
	// on the same hash bucket; it is almost always true->false, since a
	// collision this exact is rare, but guarding it keeps a colliding
	// subject's own route alive.
	if !d.Subjects.FindByHash(f.Hash) {
		d.Bus.DelSubRoute(f.Subject)
	}
	d.Bus.NotifyUnsub(0, f.Subject)
}

func (d *Dispatcher) dispatchPsub(session *Session, f *Frame) {
	prefix := patternPrefix(f.Reply)
	res := d.Patterns.Put(f.Hash, prefix, f.Reply, session.ID)
	if res == PutNew {
		d.Bus.AddPatternRoute(f.Reply)
		session.PsubCount++
	}
	rcnt := d.Patterns.IDCount(f.Hash, f.Reply)
	d.Bus.NotifyPsub(rcnt, f.Reply)
}

func (d *Dispatcher) dispatchPunsub(session *Session, f *Frame) {
	prefix := patternPrefix(f.Reply)
	removed := d.Patterns.Rem(f.Hash, prefix, session.ID)
	if len(removed) > 0 {
		session.PsubCount--
	}
	for _, r := range removed {
		d.Bus.DelPatternRoute(r.Pattern)
		d.Bus.NotifyPunsub(0, r.Pattern)
	}
}

func (d *Dispatcher) dispatchHello(session *Session, f *Frame) {
	if f.Ping == nil {
		zero := uint64(0)
		reply := Frame{MsgType: MsgHello, Src: d.OurSendSrc, Stamp: d.OurStamp, Ping: &zero}
		d.Outbound.Enqueue(session.Stamp, &reply)
		return
	}

	if *f.Ping == d.OurStamp {
		session.State &^= StateNew
		d.publishMySubs(session.Stamp)
	}
}

func (d *Dispatcher) dispatchBye(session *Session) {
	session.State = StateBye
	d.clearSessionRoutes(session)
	d.Peers.ReleaseSession(session.ID)
}

// clearSessionRoutes drops every route this session owns, in both maps, as
// required on dataloss recovery, BYE, and timeout eviction.
func (d *Dispatcher) clearSessionRoutes(session *Session) {
	for _, r := range d.Subjects.RemoveAllForID(session.ID) {
		d.Bus.DelSubRoute(r.Subject)
	}
	for _, r := range d.Patterns.RemoveAllForID(session.ID) {
		d.Bus.DelPatternRoute(r.Pattern)
	}
	session.SubCount = 0
	session.PsubCount = 0
	session.Frag = nil
	session.FragmentsInFlight = 0
}

// publishMySubs replays the entire LocalSubCache onto dst as SUB/PSUB
// frames, per HELLO's bidirectional-reachability handshake.
func (d *Dispatcher) publishMySubs(dst uint64) {
	for _, rec := range d.Cache.ReplayAll() {
		if rec.IsPattern {
			f := Frame{MsgType: MsgPsub, Src: d.OurSendSrc, Stamp: d.OurStamp, Hash: HashSubject(patternPrefix(rec.Pattern)), Reply: rec.Pattern}
			d.Outbound.Enqueue(dst, &f)
			continue
		}
		f := Frame{MsgType: MsgSub, Src: d.OurSendSrc, Stamp: d.OurStamp, Hash: HashSubject(rec.Subject), Subject: rec.Subject}
		d.Outbound.Enqueue(dst, &f)
	}
}

// patternPrefix returns the literal (non-wildcard) prefix of pattern, the
// bytes PatternRouteMap hashes and chains on. '*' and '>' are the wildcard
// tokens this subject syntax reserves.
func patternPrefix(pattern []byte) []byte {
	for i, c := range pattern {
		if c == '*' || c == '>' {
			return pattern[:i]
		}
	}
	return pattern
}
