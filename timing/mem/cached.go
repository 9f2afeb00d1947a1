package mem

import (
	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/timing/cache"
)

// CachedMemory fronts a backing store with an L1 cache model. The
// access is performed against the cache on the first poll; the
// transaction then takes the hit or miss latency the cache reported.
type CachedMemory struct {
	cache *cache.Cache
	limit uint32

	pending     bool
	pendingAddr uint32
	remaining   uint64
	data        uint32
}

// NewCachedMemory creates a cache-fronted memory service.
func NewCachedMemory(config cache.Config, backing *emu.Memory) *CachedMemory {
	return &CachedMemory{
		cache: cache.New(config, cache.NewMemoryBacking(backing)),
	}
}

// SetLimit makes addresses at or above limit return access faults.
func (m *CachedMemory) SetLimit(limit uint32) {
	m.limit = limit
}

// Cache exposes the underlying cache model (for statistics).
func (m *CachedMemory) Cache() *cache.Cache {
	return m.cache
}

// Fetch implements InstMemory.
func (m *CachedMemory) Fetch(addr uint32) (uint32, bool, Fault) {
	return m.access(DataRequest{Addr: addr, Size: 4}, emu.CauseInstAccessFault)
}

// Access implements DataMemory.
func (m *CachedMemory) Access(req DataRequest) (uint32, bool, Fault) {
	cause := uint32(emu.CauseLoadAccessFault)
	if req.IsWrite {
		cause = emu.CauseStoreAccessFault
	}
	return m.access(req, cause)
}

func (m *CachedMemory) access(req DataRequest, cause uint32) (uint32, bool, Fault) {
	if m.limit != 0 && req.Addr >= m.limit {
		m.pending = false
		return 0, true, Fault{Valid: true, Cause: cause}
	}

	if m.pending && m.pendingAddr != req.Addr {
		m.pending = false
	}

	if !m.pending {
		size := int(req.Size)
		if size == 0 {
			size = 4
		}

		var result cache.AccessResult
		if req.IsWrite {
			result = m.cache.Write(uint64(req.Addr), size, uint64(req.Data))
		} else {
			result = m.cache.Read(uint64(req.Addr), size)
		}

		m.pending = true
		m.pendingAddr = req.Addr
		m.remaining = result.Latency
		m.data = uint32(result.Data)
		if m.remaining == 0 {
			m.remaining = 1
		}
	}

	m.remaining--
	if m.remaining == 0 {
		m.pending = false
		return m.data, true, Fault{}
	}
	return 0, false, Fault{}
}

// Cancel abandons the outstanding transaction.
func (m *CachedMemory) Cancel() {
	m.pending = false
}
