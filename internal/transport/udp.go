// Package transport provides the reference bridge.Fabric implementation:
// a single UDP socket shared between every peer, with inbound frames
// demultiplexed by stamp rather than by source address alone, since a
// peer's address can change across restarts while its stamp is meant to
// stay stable.
package transport

import (
	"context"
	"fmt"
	"net"
	"net/netip"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/rs/zerolog"

	"github.com/pubsub-bridge/bridged/internal/bridge"
)

// maxDatagramSize is the largest UDP payload the socket will read in one
// call. The bridge's own maxPayloadLen (1200) plus the frame header leaves
// ample headroom under common path MTUs; this is just the read buffer.
const maxDatagramSize = 2048

// inboundQueueSize bounds how many reassembled datagrams Poll can have
// queued before the reader goroutine starts dropping them. The reader
// never blocks on a full queue: a fabric that backs up the bridge's own
// poll loop would stall the whole event loop.
const inboundQueueSize = 4096

// UDPFabric is a bridge.Fabric backed by one UDP socket. Safe for
// concurrent use: Offer may be called from the bridge's poll loop while
// a background goroutine fills the inbound queue that Poll drains.
type UDPFabric struct {
	conn   *net.UDPConn
	logger zerolog.Logger

	mu        sync.Mutex
	addrByDst map[uint64]netip.AddrPort
	blocked   map[uint64]bool

	inbound chan []byte
	done    chan struct{}
}

// NewUDPFabric binds a UDP socket at listenAddr (e.g. ":7890") and starts
// the background reader. Call Close to release the socket and stop the
// reader.
func NewUDPFabric(listenAddr string, logger zerolog.Logger) (*UDPFabric, error) {
	lc := net.ListenConfig{Control: setFabricSockOpts}

	pc, err := lc.ListenPacket(context.Background(), "udp", listenAddr)
	if err != nil {
		return nil, fmt.Errorf("transport: listen %q: %w", listenAddr, err)
	}

	conn, ok := pc.(*net.UDPConn)
	if !ok {
		closeErr := pc.Close()
		return nil, fmt.Errorf("transport: listen %q: unexpected conn type: %w", listenAddr, closeErr)
	}

	f := &UDPFabric{
		conn:      conn,
		logger:    logger.With().Str("component", "transport.udp").Logger(),
		addrByDst: make(map[uint64]netip.AddrPort),
		blocked:   make(map[uint64]bool),
		inbound:   make(chan []byte, inboundQueueSize),
		done:      make(chan struct{}),
	}

	go f.readLoop()

	return f, nil
}

// RegisterPeer records the UDP address a stamp is reachable at, either
// from static configuration (FabricConfig.Peers, keyed on the synthetic
// stamp returned by StaticPeerStamp) or once readLoop learns a real stamp
// from an inbound frame's sender.
func (f *UDPFabric) RegisterPeer(dst uint64, addr netip.AddrPort) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.addrByDst[dst] = addr
}

// StaticPeerStamp derives a synthetic dst identifier for a configured
// peer address, for use before that peer's real stamp is known. The
// bridge sends its bootstrap HELLO to this synthetic dst; once the peer
// replies, PeerTable creates a session keyed by its real stamp and this
// placeholder entry simply goes unused.
func StaticPeerStamp(addr netip.AddrPort) uint64 {
	return xxhash.Sum64String(addr.String())
}

// Block administratively blocks dst: further Offer calls return
// OfferAdminAction until Unblock is called.
func (f *UDPFabric) Block(dst uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.blocked[dst] = true
}

// Unblock clears an administrative block on dst.
func (f *UDPFabric) Unblock(dst uint64) {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.blocked, dst)
}

// Offer implements bridge.Fabric.
func (f *UDPFabric) Offer(dst uint64, buf []byte) bridge.OfferResult {
	f.mu.Lock()
	if f.blocked[dst] {
		f.mu.Unlock()
		return bridge.OfferAdminAction
	}
	addr, ok := f.addrByDst[dst]
	f.mu.Unlock()

	if !ok {
		return bridge.OfferNotConnected
	}

	n, err := f.conn.WriteToUDPAddrPort(buf, addr)
	if err != nil {
		if isTemporary(err) {
			return bridge.OfferBackpressure
		}
		f.logger.Warn().Uint64("dst", dst).Err(err).Msg("udp write failed")
		return bridge.OfferClosed
	}
	if n < len(buf) {
		return bridge.OfferBackpressure
	}

	return bridge.OfferOK
}

// Poll implements bridge.Fabric: it drains up to max buffered inbound
// datagrams without blocking.
func (f *UDPFabric) Poll(max int) [][]byte {
	if max <= 0 {
		return nil
	}

	out := make([][]byte, 0, max)
	for len(out) < max {
		select {
		case buf := <-f.inbound:
			out = append(out, buf)
		default:
			return out
		}
	}
	return out
}

// LocalAddr returns the address the fabric's socket is bound to, mainly
// useful for tests and for announcing this instance's reachable address
// out of band.
func (f *UDPFabric) LocalAddr() netip.AddrPort {
	return f.conn.LocalAddr().(*net.UDPAddr).AddrPort()
}

// Close stops the reader goroutine and releases the socket.
func (f *UDPFabric) Close() error {
	close(f.done)
	return f.conn.Close()
}

// readLoop reads datagrams until the socket is closed, learning the
// sender's address against the frame's stamp as it goes so that replies
// and fabric relays can reach it via Offer without static configuration.
func (f *UDPFabric) readLoop() {
	buf := make([]byte, maxDatagramSize)
	for {
		n, addr, err := f.conn.ReadFromUDPAddrPort(buf)
		if err != nil {
			select {
			case <-f.done:
				return
			default:
				f.logger.Warn().Err(err).Msg("udp read failed")
				continue
			}
		}

		frame, decodeErr := bridge.Unmarshal(buf[:n])
		if decodeErr == nil {
			f.RegisterPeer(frame.Stamp, addr)
		}

		cp := make([]byte, n)
		copy(cp, buf[:n])

		select {
		case f.inbound <- cp:
		default:
			f.logger.Warn().Str("src", addr.String()).Msg("inbound queue full, dropping datagram")
		}
	}
}

func isTemporary(err error) bool {
	var ne net.Error
	if errorsAs(err, &ne) {
		return ne.Timeout()
	}
	return false
}

// errorsAs is a tiny indirection so isTemporary has one obvious call
// site; kept local to avoid importing errors just for this one check.
func errorsAs(err error, target *net.Error) bool {
	ne, ok := err.(net.Error)
	if !ok {
		return false
	}
	*target = ne
	return true
}
