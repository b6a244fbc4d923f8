package bridge

import (
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func newTestBridge(fab Fabric) (*Bridge, *recordingBus) {
	bus := &recordingBus{}
	b := New(fab, bus, 0xFEED, 1, zerolog.New(io.Discard))
	return b, bus
}

func TestNewWiresDispatcherBusToSameBus(t *testing.T) {
	t.Parallel()

	b, bus := newTestBridge(&scriptedFabric{results: []OfferResult{OfferOK}})
	if b.Dispatcher.Bus != bus {
		t.Fatal("Dispatcher.Bus is not the bus passed to New")
	}
	if b.Bus != bus {
		t.Fatal("Bridge.Bus is not the bus passed to New")
	}
}

func TestOnSubAnnouncesToEveryKnownPeer(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	b.Peers.UpdateSession(1, 1, time.Now())
	b.Peers.UpdateSession(2, 1, time.Now())

	b.OnSub(HashSubject([]byte("a.b")), []byte("a.b"), 1, 'A', nil)
	b.Outbound.Drain()

	if len(fab.sent) != 2 {
		t.Fatalf("sent = %d, want 2 (one per peer)", len(fab.sent))
	}
}

func TestOnUnsubNoOpWhenSubjectNotCached(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	b.Peers.UpdateSession(1, 1, time.Now())

	b.OnUnsub(HashSubject([]byte("never.subbed")), []byte("never.subbed"))
	b.Outbound.Drain()

	if len(fab.sent) != 0 {
		t.Errorf("sent = %d, want 0 (subject was never in the cache)", len(fab.sent))
	}
}

func TestOnMsgSplitsOversizedPayloadAcrossFragments(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	b.Peers.UpdateSession(1, 1, time.Now())

	payload := make([]byte, maxPayloadLen*2+10)
	for i := range payload {
		payload[i] = byte(i)
	}

	b.OnMsg([]byte("a.b"), nil, payload)
	if b.Outbound.Pending() != 3 {
		t.Fatalf("Pending = %d, want 3 fragments", b.Outbound.Pending())
	}
}

func TestOnMsgSinglePieceUnderThreshold(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	b.Peers.UpdateSession(1, 1, time.Now())

	b.OnMsg([]byte("a.b"), nil, []byte("small"))
	if b.Outbound.Pending() != 1 {
		t.Fatalf("Pending = %d, want 1", b.Outbound.Pending())
	}
}

func TestPollTickDispatchesInboundFrames(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, bus := newTestBridge(fab)

	f := Frame{MsgType: MsgPublish, Stamp: 1, Seqno: 1, Subject: []byte("a.b"), Payload: []byte("hi")}
	buf := make([]byte, 128)
	n, err := Marshal(&f, buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	fab.polled = [][]byte{buf[:n]}

	b.PollTick(time.Now())

	if len(bus.published) != 1 {
		t.Fatalf("published = %d, want 1", len(bus.published))
	}
}

func TestHeartbeatTickPingsNextPeerAndDrains(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	b.Peers.UpdateSession(1, 1, time.Now())

	b.HeartbeatTick(time.Now())

	if len(fab.sent) != 1 {
		t.Fatalf("sent = %d, want 1 (the rotating ping)", len(fab.sent))
	}
	if b.Outbound.Pending() != 0 {
		t.Errorf("Pending after heartbeat drain = %d, want 0", b.Outbound.Pending())
	}
}

func TestHeartbeatTickEvictsTimedOutPeer(t *testing.T) {
	t.Parallel()

	fab := &scriptedFabric{results: []OfferResult{OfferOK}}
	b, _ := newTestBridge(fab)
	base := time.Now()
	b.Peers.UpdateSession(1, 1, base)

	b.HeartbeatTick(base.Add(SessionTimeout + time.Second))
	b.HeartbeatTick(base.Add(2 * (SessionTimeout + time.Second)))

	if b.Peers.Count() != 0 {
		t.Errorf("Count after two stale heartbeats = %d, want 0 (evicted)", b.Peers.Count())
	}
}
