package bridge

import (
	"crypto/rand"
	"encoding/binary"
	"net/netip"
)

// BuildStamp constructs this instance's 64-bit peer identity the way
// aekv's EvAeron::start_aeron packs one: the low 32 bits carry an
// addressable interface identity when one is configured, the next 16
// bits carry a service id, and the top 16 bits are a 15-bit per-process
// instance counter with its high bit set to mark the anonymous form (no
// stable address to key on, since a configured interface address is
// optional).
func BuildStamp(ifAddr netip.Addr, serviceID uint16) (uint64, error) {
	instance, err := randomInstance()
	if err != nil {
		return 0, err
	}

	var lo uint32
	anonymous := !ifAddr.IsValid() || !ifAddr.Is4()
	if !anonymous {
		b := ifAddr.As4()
		lo = binary.BigEndian.Uint32(b[:])
	}

	hi := instance & 0x7fff
	if anonymous {
		hi |= 0x8000
	}

	return uint64(lo) | uint64(serviceID)<<32 | uint64(hi)<<48, nil
}

// randomInstance draws the 16-bit instance counter from crypto/rand
// rather than incrementing a persisted value: collisions across restarts
// are acceptable, so a fresh random draw per process start is sufficient.
func randomInstance() (uint16, error) {
	var b [2]byte
	if _, err := rand.Read(b[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b[:]), nil
}
