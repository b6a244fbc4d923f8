package transport_test

import (
	"io"
	"net/netip"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"github.com/pubsub-bridge/bridged/internal/bridge"
	"github.com/pubsub-bridge/bridged/internal/transport"
)

func mustAddrPort(t *testing.T, s string) netip.AddrPort {
	t.Helper()
	ap, err := netip.ParseAddrPort(s)
	if err != nil {
		t.Fatalf("ParseAddrPort(%q): %v", s, err)
	}
	return ap
}

func discardLogger() zerolog.Logger {
	return zerolog.New(io.Discard)
}

func helloFrame(t *testing.T, stamp uint64) []byte {
	t.Helper()

	f := bridge.Frame{MsgType: bridge.MsgHello, Stamp: stamp, Seqno: 1}
	buf := make([]byte, bridge.HeaderSize)
	n, err := bridge.Marshal(&f, buf)
	if err != nil {
		t.Fatalf("Marshal: %v", err)
	}
	return buf[:n]
}

func waitForPoll(t *testing.T, f *transport.UDPFabric, n int) [][]byte {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if got := f.Poll(n); len(got) > 0 {
			return got
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("timed out waiting for inbound datagram")
	return nil
}

func TestOfferNotConnectedWithoutRegisteredPeer(t *testing.T) {
	t.Parallel()

	f, err := transport.NewUDPFabric("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("NewUDPFabric: %v", err)
	}
	defer f.Close()

	if got := f.Offer(12345, helloFrame(t, 99)); got != bridge.OfferNotConnected {
		t.Errorf("Offer = %v, want OfferNotConnected", got)
	}
}

func TestOfferAdminActionWhenBlocked(t *testing.T) {
	t.Parallel()

	a, err := transport.NewUDPFabric("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("NewUDPFabric a: %v", err)
	}
	defer a.Close()

	b, err := transport.NewUDPFabric("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("NewUDPFabric b: %v", err)
	}
	defer b.Close()

	dst := uint64(42)
	a.RegisterPeer(dst, b.LocalAddr())
	a.Block(dst)

	if got := a.Offer(dst, helloFrame(t, 1)); got != bridge.OfferAdminAction {
		t.Errorf("Offer = %v, want OfferAdminAction", got)
	}

	a.Unblock(dst)
	if got := a.Offer(dst, helloFrame(t, 1)); got != bridge.OfferOK {
		t.Errorf("Offer after unblock = %v, want OfferOK", got)
	}
}

func TestRoundTripLearnsPeerStamp(t *testing.T) {
	t.Parallel()

	a, err := transport.NewUDPFabric("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("NewUDPFabric a: %v", err)
	}
	defer a.Close()

	b, err := transport.NewUDPFabric("127.0.0.1:0", discardLogger())
	if err != nil {
		t.Fatalf("NewUDPFabric b: %v", err)
	}
	defer b.Close()

	const ourStamp = uint64(0xABCD)
	a.RegisterPeer(1, b.LocalAddr())

	if got := a.Offer(1, helloFrame(t, ourStamp)); got != bridge.OfferOK {
		t.Fatalf("Offer = %v, want OfferOK", got)
	}

	got := waitForPoll(t, b, 1)
	frame, err := bridge.Unmarshal(got[0])
	if err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if frame.Stamp != ourStamp {
		t.Errorf("received Stamp = %d, want %d", frame.Stamp, ourStamp)
	}

	// b should now be able to reply to a's stamp without static config.
	if got := b.Offer(ourStamp, helloFrame(t, 0xBEEF)); got != bridge.OfferOK {
		t.Errorf("reply Offer = %v, want OfferOK", got)
	}
}

func TestStaticPeerStampIsStable(t *testing.T) {
	t.Parallel()

	addr := mustAddrPort(t, "203.0.113.5:7890")
	if transport.StaticPeerStamp(addr) != transport.StaticPeerStamp(addr) {
		t.Error("StaticPeerStamp is not deterministic for the same address")
	}
}
