package mem

import (
	"github.com/sarchlab/r5sim/emu"
)

// FixedLatencyMemory serves requests from a flat backing store after a
// fixed number of cycles. One instance serves one port (instruction or
// data); each holds a single outstanding transaction, per the
// no-reentrancy contract.
type FixedLatencyMemory struct {
	backing *emu.Memory
	latency uint64

	// Addresses at or above limit fault as access faults. Zero means
	// no limit.
	limit uint32

	pending     bool
	pendingAddr uint32
	remaining   uint64
}

// FixedOption configures a FixedLatencyMemory.
type FixedOption func(*FixedLatencyMemory)

// WithLimit makes addresses at or above limit return access faults.
func WithLimit(limit uint32) FixedOption {
	return func(m *FixedLatencyMemory) {
		m.limit = limit
	}
}

// NewFixedLatencyMemory creates a memory service with the given
// response latency in cycles. A latency of 1 acknowledges a request on
// the cycle it is made.
func NewFixedLatencyMemory(backing *emu.Memory, latency uint64, opts ...FixedOption) *FixedLatencyMemory {
	if latency == 0 {
		latency = 1
	}
	m := &FixedLatencyMemory{
		backing: backing,
		latency: latency,
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// tick advances the outstanding transaction for addr. Returns true when
// the transaction completes this cycle.
func (m *FixedLatencyMemory) tick(addr uint32) bool {
	if m.pending && m.pendingAddr != addr {
		// The requester moved on (flush); restart for the new address.
		m.pending = false
	}
	if !m.pending {
		m.pending = true
		m.pendingAddr = addr
		m.remaining = m.latency
	}
	m.remaining--
	if m.remaining == 0 {
		m.pending = false
		return true
	}
	return false
}

func (m *FixedLatencyMemory) faulted(addr uint32, cause uint32) (bool, Fault) {
	if m.limit != 0 && addr >= m.limit {
		m.pending = false
		return true, Fault{Valid: true, Cause: cause}
	}
	return false, Fault{}
}

// Fetch implements InstMemory.
func (m *FixedLatencyMemory) Fetch(addr uint32) (uint32, bool, Fault) {
	if bad, fault := m.faulted(addr, emu.CauseInstAccessFault); bad {
		return 0, true, fault
	}
	if !m.tick(addr) {
		return 0, false, Fault{}
	}
	return m.backing.Read32(addr), true, Fault{}
}

// Access implements DataMemory.
func (m *FixedLatencyMemory) Access(req DataRequest) (uint32, bool, Fault) {
	cause := uint32(emu.CauseLoadAccessFault)
	if req.IsWrite {
		cause = emu.CauseStoreAccessFault
	}
	if bad, fault := m.faulted(req.Addr, cause); bad {
		return 0, true, fault
	}
	if !m.tick(req.Addr) {
		return 0, false, Fault{}
	}

	if req.IsWrite {
		switch req.Size {
		case 1:
			m.backing.Write8(req.Addr, uint8(req.Data))
		case 2:
			m.backing.Write16(req.Addr, uint16(req.Data))
		default:
			m.backing.Write32(req.Addr, req.Data)
		}
		return 0, true, Fault{}
	}

	switch req.Size {
	case 1:
		return uint32(m.backing.Read8(req.Addr)), true, Fault{}
	case 2:
		return uint32(m.backing.Read16(req.Addr)), true, Fault{}
	default:
		return m.backing.Read32(req.Addr), true, Fault{}
	}
}

// Cancel abandons the outstanding transaction.
func (m *FixedLatencyMemory) Cancel() {
	m.pending = false
}
