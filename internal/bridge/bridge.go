package bridge

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// Timing constants: a fast inbound poll, a much slower heartbeat/timeout-check
// tick, and a session timeout set at 25x the heartbeat interval.
const (
	PollInterval      = 100 * time.Microsecond
	HeartbeatInterval = 200 * time.Millisecond
	SessionTimeout    = 25 * HeartbeatInterval

	// maxFragmentsPerPoll caps how many inbound frames one poll tick
	// dispatches before yielding back to the loop.
	maxFragmentsPerPoll = 8

	// maxPayloadLen is the outbound fragmentation threshold: local
	// publishes whose payload exceeds it are split across CodeMore-tagged
	// PUBLISH/FRAGMENT frames.
	maxPayloadLen = 1200

	outboundArenaSize = 64 * 1024
)

// Bridge owns the route maps, peer table, local sub cache, outbound queue,
// and dispatcher for one bridge instance and drives its event loop.
type Bridge struct {
	comp       *Compressor
	Subjects   *SubjectRouteMap
	Patterns   *PatternRouteMap
	Peers      *PeerTable
	Cache      *LocalSubCache
	Outbound   *OutboundQueue
	Dispatcher *Dispatcher
	Fabric     Fabric
	Bus        LocalBus
	Log        zerolog.Logger

	OurStamp   uint64
	OurSendSrc uint32
}

// New wires up a Bridge against fabric and bus, identifying this instance's
// own frames by ourStamp/ourSendSrc (see BuildStamp for how ourStamp is
// constructed).
func New(fabric Fabric, bus LocalBus, ourStamp uint64, ourSendSrc uint32, log zerolog.Logger) *Bridge {
	comp := NewCompressor()
	subjects := NewSubjectRouteMap(comp)
	patterns := NewPatternRouteMap(comp)
	peers := NewPeerTable()
	cache := NewLocalSubCache()
	outq := NewOutboundQueue(fabric, outboundArenaSize)

	disp := &Dispatcher{
		Peers: peers, Subjects: subjects, Patterns: patterns,
		Cache: cache, Outbound: outq, Bus: bus, Log: log,
		OurStamp: ourStamp, OurSendSrc: ourSendSrc,
	}

	return &Bridge{
		comp: comp, Subjects: subjects, Patterns: patterns, Peers: peers,
		Cache: cache, Outbound: outq, Dispatcher: disp,
		Fabric: fabric, Bus: bus, Log: log,
		OurStamp: ourStamp, OurSendSrc: ourSendSrc,
	}
}

// Run drives the event loop until ctx is cancelled: a fast poll tick for
// inbound frames, a slower heartbeat tick for peer probing, timeout
// eviction, and outbound draining. It never suspends within a single
// frame's dispatch.
func (b *Bridge) Run(ctx context.Context) error {
	poll := time.NewTicker(PollInterval)
	defer poll.Stop()
	heartbeat := time.NewTicker(HeartbeatInterval)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-poll.C:
			b.PollTick(now)
		case now := <-heartbeat.C:
			b.HeartbeatTick(now)
		}
	}
}

// PollTick drains up to maxFragmentsPerPoll inbound frames from the fabric
// and dispatches each.
func (b *Bridge) PollTick(now time.Time) {
	for _, buf := range b.Fabric.Poll(maxFragmentsPerPoll) {
		if err := b.Dispatcher.Dispatch(buf, now); err != nil {
			b.Log.Debug().Err(err).Msg("dropped invalid inbound frame")
		}
	}
}

// HeartbeatTick pings the next peer in rotation, evicts the timed-out LRU
// tail if any, and drains the outbound queue.
func (b *Bridge) HeartbeatTick(now time.Time) {
	if stamp, ok := b.Peers.NextPing(); ok {
		ping := stamp
		f := Frame{MsgType: MsgHello, Src: b.OurSendSrc, Stamp: b.OurStamp, Ping: &ping}
		b.Outbound.Enqueue(stamp, &f)
	}

	if s, evict := b.Peers.CheckTimeout(now.Add(-SessionTimeout)); evict {
		b.Log.Info().Uint64("stamp", s.Stamp).Uint32("id", s.ID).Msg("peer timed out")
		b.Dispatcher.clearSessionRoutes(s)
		b.Peers.ReleaseSession(s.ID)
	}

	stats := b.Outbound.Drain()
	for _, d := range stats.Dropped {
		b.Log.Warn().Uint64("dst_stamp", d.Dst).Uint8("reason", uint8(d.Reason)).Msg("dropped outbound frame")
	}
}

// OnSub implements LocalBusConsumer: a local process subscribed to subject.
// It upserts the cache and announces the subscription to every known peer.
func (b *Bridge) OnSub(hash uint32, subject []byte, rcnt int, kind byte, reply []byte) {
	b.Cache.Upsert(subject, nil, false)
	f := Frame{MsgType: MsgSub, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: hash, Subject: subject, Reply: reply}
	b.Peers.Each(func(s *Session) { b.Outbound.Enqueue(s.Stamp, &f) })
}

// OnUnsub implements LocalBusConsumer: a local process unsubscribed from
// subject.
func (b *Bridge) OnUnsub(hash uint32, subject []byte) {
	if !b.Cache.Remove(subject) {
		return
	}
	f := Frame{MsgType: MsgUnsub, Code: CodeDelete, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: hash, Subject: subject}
	b.Peers.Each(func(s *Session) { b.Outbound.Enqueue(s.Stamp, &f) })
}

// OnPsub implements LocalBusConsumer for pattern subscriptions.
func (b *Bridge) OnPsub(hash uint32, pattern []byte, rcnt int) {
	b.Cache.Upsert(nil, pattern, true)
	f := Frame{MsgType: MsgPsub, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: hash, Reply: pattern}
	b.Peers.Each(func(s *Session) { b.Outbound.Enqueue(s.Stamp, &f) })
}

// OnPunsub implements LocalBusConsumer for pattern unsubscriptions.
func (b *Bridge) OnPunsub(hash uint32, pattern []byte) {
	if !b.Cache.RemovePattern(pattern) {
		return
	}
	f := Frame{MsgType: MsgPunsub, Code: CodeDelete, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: hash, Reply: pattern}
	b.Peers.Each(func(s *Session) { b.Outbound.Enqueue(s.Stamp, &f) })
}

// OnMsg implements LocalBusConsumer: forwards a local publish to every
// known peer, splitting it into CodeMore-tagged pieces if its payload
// exceeds maxPayloadLen.
func (b *Bridge) OnMsg(subject, reply, payload []byte) {
	b.Peers.Each(func(s *Session) {
		b.enqueuePublish(s.Stamp, subject, reply, payload)
	})
}

func (b *Bridge) enqueuePublish(dst uint64, subject, reply, payload []byte) {
	if len(payload) <= maxPayloadLen {
		f := Frame{MsgType: MsgPublish, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: HashSubject(subject), Subject: subject, Reply: reply, Payload: payload}
		b.Outbound.Enqueue(dst, &f)
		return
	}

	for off := 0; off < len(payload); off += maxPayloadLen {
		end := off + maxPayloadLen
		if end > len(payload) {
			end = len(payload)
		}
		msgType := MsgFragment
		code := byte(CodeMore)
		if off == 0 {
			msgType = MsgPublish
		}
		if end == len(payload) {
			code = 0
		}
		f := Frame{MsgType: msgType, Code: code, Src: b.OurSendSrc, Stamp: b.OurStamp, Hash: HashSubject(subject), Subject: subject, Reply: reply, Payload: payload[off:end]}
		b.Outbound.Enqueue(dst, &f)
	}
}
