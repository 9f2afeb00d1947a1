// Package mem provides the memory-side services the core talks to:
// instruction and data memory with a request/acknowledge handshake, and
// address translation. The services are latency-bearing models, not
// functional implementations of a memory hierarchy.
package mem

// AccessType distinguishes translation requests.
type AccessType int

// Access types.
const (
	AccessFetch AccessType = iota
	AccessLoad
	AccessStore
)

// Fault describes a failed memory or translation request. A zero Fault
// means success.
type Fault struct {
	// Valid is true if a fault occurred.
	Valid bool
	// Cause is the exception cause code (emu.Cause*).
	Cause uint32
}

// AddressTranslator converts virtual to physical addresses. Translation
// happens before a request reaches the memory service; a fault here
// surfaces as a page/access fault on the requesting instruction.
type AddressTranslator interface {
	Translate(vaddr uint32, access AccessType) (uint32, Fault)
}

// IdentityMMU translates every address to itself and never faults.
type IdentityMMU struct{}

// Translate returns the address unchanged.
func (IdentityMMU) Translate(vaddr uint32, _ AccessType) (uint32, Fault) {
	return vaddr, Fault{}
}

// InstMemory is the instruction memory service. Fetch must be re-polled
// with the same address every cycle until done is true; the service
// holds one outstanding request.
type InstMemory interface {
	Fetch(addr uint32) (word uint32, done bool, fault Fault)
	// Cancel abandons the outstanding request, if any. Called on fetch
	// redirects.
	Cancel()
}

// DataRequest describes one data memory access.
type DataRequest struct {
	Addr    uint32
	IsWrite bool
	Data    uint32
	// Size is the access width in bytes (1, 2 or 4).
	Size uint8
}

// DataMemory is the data memory service. Access must be re-polled with
// the same request every cycle until done is true; the service holds
// one outstanding transaction.
type DataMemory interface {
	Access(req DataRequest) (data uint32, done bool, fault Fault)
	Cancel()
}
