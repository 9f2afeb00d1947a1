package ooo

import (
	"github.com/sarchlab/r5sim/timing/mem"
)

// LoadEntry is one load queue slot, allocated at dispatch in program
// order and released at commit.
type LoadEntry struct {
	Seq      uint64
	DestPhys PhysReg

	Addr      uint32
	Size      uint8
	Signed    bool
	AddrKnown bool

	// Killed marks a load whose address generation faulted; it never
	// accesses memory.
	Killed bool
	Done   bool
}

// StoreEntry is one store queue slot. A store holds its address and
// data in the queue until commit; only then does the write reach the
// memory service.
type StoreEntry struct {
	Seq  uint64
	Addr uint32
	Data uint32
	Size uint8

	AddrKnown bool
	Committed bool
}

// LoadCompletion reports a finished load back to the engine for
// writeback.
type LoadCompletion struct {
	Seq      uint64
	DestPhys PhysReg
	Value    uint32

	HasFault bool
	Cause    uint32
	Addr     uint32
}

// LSQStats holds load/store queue statistics.
type LSQStats struct {
	// ForwardedLoads counts loads satisfied by store-to-load
	// forwarding without a memory access.
	ForwardedLoads uint64
	// DisambiguationStalls counts cycles a load waited because an
	// older store's address was still unknown.
	DisambiguationStalls uint64
	// OverlapStalls counts cycles a load waited on a partially
	// overlapping older store it could not forward from.
	OverlapStalls uint64
	// MemoryLoads counts loads that went to the memory service.
	MemoryLoads uint64
	// CommittedStores counts stores written to memory.
	CommittedStores uint64
}

// LSQ holds the load and store queues and performs memory
// disambiguation. Both queues are ring buffers with explicit element
// counts. Age ordering is by dispatch sequence number.
//
// Disambiguation is conservative: a load with a known address may not
// access memory or forward while any older store's address is unknown.
// Once all older store addresses are known, the load forwards from the
// youngest older store that fully covers its bytes, stalls on a
// partial overlap, and otherwise goes to memory.
type LSQ struct {
	loads     []LoadEntry
	loadHead  int
	loadTail  int
	loadCount int

	stores     []StoreEntry
	storeHead  int
	storeTail  int
	storeCount int

	translator mem.AddressTranslator
	dmem       mem.DataMemory

	// issuingSeq tracks the load currently holding the memory service,
	// so the same request is re-polled every cycle.
	issuing    bool
	issuingSeq uint64

	// drainBusy blocks load issue while a committed store is writing.
	drainBusy bool

	stats LSQStats
}

// NewLSQ creates a load/store queue with the given capacities.
func NewLSQ(loadCapacity, storeCapacity int, translator mem.AddressTranslator, dmem mem.DataMemory) *LSQ {
	return &LSQ{
		loads:      make([]LoadEntry, loadCapacity),
		stores:     make([]StoreEntry, storeCapacity),
		translator: translator,
		dmem:       dmem,
	}
}

// CanAllocateLoad reports whether a load queue slot is free.
func (q *LSQ) CanAllocateLoad() bool {
	return q.loadCount < len(q.loads)
}

// CanAllocateStore reports whether a store queue slot is free.
func (q *LSQ) CanAllocateStore() bool {
	return q.storeCount < len(q.stores)
}

// AllocateLoad reserves a load queue slot at dispatch.
func (q *LSQ) AllocateLoad(seq uint64, destPhys PhysReg) {
	q.loads[q.loadTail] = LoadEntry{Seq: seq, DestPhys: destPhys}
	q.loadTail = (q.loadTail + 1) % len(q.loads)
	q.loadCount++
}

// AllocateStore reserves a store queue slot at dispatch.
func (q *LSQ) AllocateStore(seq uint64) {
	q.stores[q.storeTail] = StoreEntry{Seq: seq}
	q.storeTail = (q.storeTail + 1) % len(q.stores)
	q.storeCount++
}

func (q *LSQ) loadAt(i int) *LoadEntry {
	return &q.loads[(q.loadHead+i)%len(q.loads)]
}

func (q *LSQ) storeAt(i int) *StoreEntry {
	return &q.stores[(q.storeHead+i)%len(q.stores)]
}

func (q *LSQ) loadBySeq(seq uint64) *LoadEntry {
	for i := 0; i < q.loadCount; i++ {
		if e := q.loadAt(i); e.Seq == seq {
			return e
		}
	}
	return nil
}

func (q *LSQ) storeBySeq(seq uint64) *StoreEntry {
	for i := 0; i < q.storeCount; i++ {
		if e := q.storeAt(i); e.Seq == seq {
			return e
		}
	}
	return nil
}

// SetLoadAddress delivers a computed effective address from the
// address generation unit.
func (q *LSQ) SetLoadAddress(seq uint64, addr uint32, size uint8, signed bool) {
	if e := q.loadBySeq(seq); e != nil {
		e.Addr = addr
		e.Size = size
		e.Signed = signed
		e.AddrKnown = true
	}
}

// SetStoreAddress delivers a store's effective address and data.
func (q *LSQ) SetStoreAddress(seq uint64, addr uint32, data uint32, size uint8) {
	if e := q.storeBySeq(seq); e != nil {
		e.Addr = addr
		e.Data = data
		e.Size = size
		e.AddrKnown = true
	}
}

// KillLoad marks a load dead after an address generation fault so it
// never accesses memory. The reorder buffer carries the exception.
func (q *LSQ) KillLoad(seq uint64) {
	if e := q.loadBySeq(seq); e != nil {
		e.Killed = true
		e.Done = true
		if q.issuing && q.issuingSeq == seq {
			q.issuing = false
			q.dmem.Cancel()
		}
	}
}

// overlaps reports whether two byte ranges intersect. Range ends are
// computed in 64 bits so a range touching the top of the address space
// does not wrap to zero.
func overlaps(aAddr uint32, aSize uint8, bAddr uint32, bSize uint8) bool {
	return uint64(aAddr) < uint64(bAddr)+uint64(bSize) &&
		uint64(bAddr) < uint64(aAddr)+uint64(aSize)
}

// covers reports whether the store's byte range fully contains the
// load's.
func (s *StoreEntry) covers(addr uint32, size uint8) bool {
	return s.Addr <= addr &&
		uint64(s.Addr)+uint64(s.Size) >= uint64(addr)+uint64(size)
}

// forwardValue extracts the load's bytes from a covering store's data.
func forwardValue(s *StoreEntry, addr uint32, size uint8, signed bool) uint32 {
	shift := (addr - s.Addr) * 8
	raw := s.Data >> shift
	return extendValue(raw, size, signed)
}

func extendValue(raw uint32, size uint8, signed bool) uint32 {
	switch size {
	case 1:
		if signed {
			return uint32(int32(int8(raw)))
		}
		return uint32(uint8(raw))
	case 2:
		if signed {
			return uint32(int32(int16(raw)))
		}
		return uint32(uint16(raw))
	}
	return raw
}

// Tick services at most one load per cycle and returns its completion,
// if any. The oldest unserviced load with a known address is
// considered first; younger loads never bypass it, which keeps the
// memory stage deterministic.
func (q *LSQ) Tick() []LoadCompletion {
	for i := 0; i < q.loadCount; i++ {
		load := q.loadAt(i)
		if load.Done {
			continue
		}
		if !load.AddrKnown {
			// Address generation still pending; younger loads wait
			// behind it to keep servicing age ordered.
			return nil
		}

		action := q.serviceLoad(load)
		switch action.kind {
		case loadStall:
			return nil
		case loadDone:
			load.Done = true
			return []LoadCompletion{action.completion}
		case loadWaiting:
			return nil
		}
	}
	return nil
}

type loadActionKind int

const (
	loadStall loadActionKind = iota
	loadWaiting
	loadDone
)

type loadAction struct {
	kind       loadActionKind
	completion LoadCompletion
}

func (q *LSQ) serviceLoad(load *LoadEntry) loadAction {
	// All older stores must have known addresses before the load may
	// proceed anywhere.
	var newestCover *StoreEntry
	for i := 0; i < q.storeCount; i++ {
		store := q.storeAt(i)
		if store.Seq > load.Seq {
			break
		}
		if !store.AddrKnown {
			q.stats.DisambiguationStalls++
			return loadAction{kind: loadStall}
		}
		if !overlaps(store.Addr, store.Size, load.Addr, load.Size) {
			continue
		}
		if store.covers(load.Addr, load.Size) {
			newestCover = store
		} else {
			// Partial overlap: wait for the store to commit and drain.
			newestCover = nil
			q.stats.OverlapStalls++
		}
	}

	if newestCover != nil {
		q.stats.ForwardedLoads++
		return loadAction{
			kind: loadDone,
			completion: LoadCompletion{
				Seq:      load.Seq,
				DestPhys: load.DestPhys,
				Value:    forwardValue(newestCover, load.Addr, load.Size, load.Signed),
			},
		}
	}

	// An unresolvable overlap stalls the load (and everything behind
	// it) until the store drains.
	for i := 0; i < q.storeCount; i++ {
		store := q.storeAt(i)
		if store.Seq > load.Seq {
			break
		}
		if overlaps(store.Addr, store.Size, load.Addr, load.Size) &&
			!store.covers(load.Addr, load.Size) {
			return loadAction{kind: loadStall}
		}
	}

	// The memory port is occupied by a committing store this cycle.
	if q.drainBusy {
		return loadAction{kind: loadWaiting}
	}

	paddr, fault := q.translator.Translate(load.Addr, mem.AccessLoad)
	if fault.Valid {
		return loadAction{
			kind: loadDone,
			completion: LoadCompletion{
				Seq:      load.Seq,
				DestPhys: load.DestPhys,
				HasFault: true,
				Cause:    fault.Cause,
				Addr:     load.Addr,
			},
		}
	}

	if !q.issuing {
		q.issuing = true
		q.issuingSeq = load.Seq
		q.stats.MemoryLoads++
	}

	data, done, memFault := q.dmem.Access(mem.DataRequest{
		Addr: paddr,
		Size: load.Size,
	})
	if !done {
		return loadAction{kind: loadWaiting}
	}

	q.issuing = false
	if memFault.Valid {
		return loadAction{
			kind: loadDone,
			completion: LoadCompletion{
				Seq:      load.Seq,
				DestPhys: load.DestPhys,
				HasFault: true,
				Cause:    memFault.Cause,
				Addr:     load.Addr,
			},
		}
	}

	return loadAction{
		kind: loadDone,
		completion: LoadCompletion{
			Seq:      load.Seq,
			DestPhys: load.DestPhys,
			Value:    extendValue(data, load.Size, load.Signed),
		},
	}
}

// ReleaseLoad frees the head load queue slot when the load commits.
func (q *LSQ) ReleaseLoad(seq uint64) {
	if q.loadCount == 0 || q.loads[q.loadHead].Seq != seq {
		return
	}
	q.loadHead = (q.loadHead + 1) % len(q.loads)
	q.loadCount--
}

// DrainStore writes the committing store to memory. It is polled every
// cycle by the commit stage until it reports done; the store queue
// slot is freed on completion. A translation or access fault surfaces
// on the committing store.
func (q *LSQ) DrainStore(seq uint64) (done bool, fault mem.Fault) {
	if q.storeCount == 0 || q.stores[q.storeHead].Seq != seq {
		return true, mem.Fault{}
	}
	store := &q.stores[q.storeHead]
	store.Committed = true

	paddr, trFault := q.translator.Translate(store.Addr, mem.AccessStore)
	if trFault.Valid {
		q.drainBusy = false
		q.popStore()
		return true, trFault
	}

	// Preempt the memory port: an in-flight speculative load restarts
	// after the store completes.
	if q.issuing {
		q.issuing = false
		q.dmem.Cancel()
	}
	q.drainBusy = true

	_, finished, memFault := q.dmem.Access(mem.DataRequest{
		Addr:    paddr,
		IsWrite: true,
		Data:    store.Data,
		Size:    store.Size,
	})
	if !finished {
		return false, mem.Fault{}
	}

	q.drainBusy = false
	q.popStore()
	if memFault.Valid {
		return true, memFault
	}
	q.stats.CommittedStores++
	return true, mem.Fault{}
}

func (q *LSQ) popStore() {
	q.storeHead = (q.storeHead + 1) % len(q.stores)
	q.storeCount--
}

// SquashAfter removes loads and stores younger than seq. Committed
// stores are always older than any flush point and survive.
func (q *LSQ) SquashAfter(seq uint64) {
	for q.loadCount > 0 {
		tail := (q.loadTail - 1 + len(q.loads)) % len(q.loads)
		if q.loads[tail].Seq <= seq {
			break
		}
		if q.issuing && q.issuingSeq == q.loads[tail].Seq {
			q.issuing = false
			q.dmem.Cancel()
		}
		q.loadTail = tail
		q.loadCount--
	}
	for q.storeCount > 0 {
		tail := (q.storeTail - 1 + len(q.stores)) % len(q.stores)
		if q.stores[tail].Seq <= seq {
			break
		}
		q.storeTail = tail
		q.storeCount--
	}
}

// Draining reports whether a committed store write is in flight on the
// memory port.
func (q *LSQ) Draining() bool {
	return q.drainBusy
}

// LoadCount returns the number of occupied load queue slots.
func (q *LSQ) LoadCount() int {
	return q.loadCount
}

// StoreCount returns the number of occupied store queue slots.
func (q *LSQ) StoreCount() int {
	return q.storeCount
}

// Stats returns the queue statistics.
func (q *LSQ) Stats() LSQStats {
	return q.stats
}
