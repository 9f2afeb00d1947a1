package ooo

import "github.com/sarchlab/r5sim/insts"

// ROBEntry is one reorder buffer slot. Entries are allocated at
// dispatch in program order and retired from the head in the same
// order.
type ROBEntry struct {
	// Seq is the monotonically increasing dispatch sequence number.
	// Smaller means older. It never wraps in practice (64 bits).
	Seq uint64
	// PC is the address of the instruction.
	PC uint32
	// Inst is the decoded instruction.
	Inst *insts.Instruction

	// HasDest is true if the instruction writes a destination register.
	HasDest bool
	// ArchDest is the flattened architectural destination.
	ArchDest uint8
	// PhysDest is the physical register allocated for the destination.
	PhysDest PhysReg
	// OldPhysDest is the previous mapping, freed at commit.
	OldPhysDest PhysReg

	// Completed is true once the instruction has finished executing.
	Completed bool
	// Result is the destination value (captured for debugging; the
	// physical register file holds the authoritative copy).
	Result uint32

	// HasException marks a deferred exception, raised only if the
	// entry reaches the head of the buffer.
	HasException bool
	// ExcCause is the mcause value for the deferred exception.
	ExcCause uint32
	// ExcValue is the mtval value for the deferred exception.
	ExcValue uint32

	// FPFlags accumulates floating-point exception flags, merged into
	// fflags at commit.
	FPFlags uint32

	// BranchTaken and BranchTarget record the resolved outcome of a
	// branch instruction.
	BranchTaken  bool
	BranchTarget uint32
	// NextPC is the resolved next sequential fetch address.
	NextPC uint32
	// Mispredicted is true if the front-end guessed the wrong path.
	Mispredicted bool

	// PredictedNextPC and PredictedTaken carry the front-end's guess,
	// checked at branch resolution.
	PredictedNextPC uint32
	PredictedTaken  bool

	// IsStore and IsLoad mark memory operations that also occupy a
	// load/store queue slot.
	IsStore bool
	IsLoad  bool
	// MemAddr is the resolved effective address of a memory operation.
	MemAddr uint32
}

// ROB is the reorder buffer: a ring buffer with an explicit element
// count, so full and empty are distinct at every occupancy.
type ROB struct {
	entries []ROBEntry
	head    int
	tail    int
	count   int
}

// NewROB creates a reorder buffer with the given capacity.
func NewROB(capacity int) *ROB {
	return &ROB{
		entries: make([]ROBEntry, capacity),
	}
}

// Full reports whether the buffer has no free slot.
func (rob *ROB) Full() bool {
	return rob.count == len(rob.entries)
}

// Empty reports whether the buffer holds no entries.
func (rob *ROB) Empty() bool {
	return rob.count == 0
}

// Len returns the number of in-flight entries.
func (rob *ROB) Len() int {
	return rob.count
}

// Capacity returns the buffer size.
func (rob *ROB) Capacity() int {
	return len(rob.entries)
}

// Allocate appends an entry at the tail. The caller must check Full
// first.
func (rob *ROB) Allocate(entry ROBEntry) *ROBEntry {
	slot := &rob.entries[rob.tail]
	*slot = entry
	rob.tail = (rob.tail + 1) % len(rob.entries)
	rob.count++
	return slot
}

// Head returns the oldest entry, or nil if the buffer is empty.
func (rob *ROB) Head() *ROBEntry {
	if rob.count == 0 {
		return nil
	}
	return &rob.entries[rob.head]
}

// Retire removes the head entry. The caller must have consumed it.
func (rob *ROB) Retire() {
	rob.head = (rob.head + 1) % len(rob.entries)
	rob.count--
}

// BySeq returns the in-flight entry with the given sequence number, or
// nil if it is no longer in the buffer.
func (rob *ROB) BySeq(seq uint64) *ROBEntry {
	for i := 0; i < rob.count; i++ {
		e := &rob.entries[(rob.head+i)%len(rob.entries)]
		if e.Seq == seq {
			return e
		}
	}
	return nil
}

// Walk visits the in-flight entries oldest first. The visitor may
// mutate entries but must not allocate or retire.
func (rob *ROB) Walk(visit func(*ROBEntry)) {
	for i := 0; i < rob.count; i++ {
		visit(&rob.entries[(rob.head+i)%len(rob.entries)])
	}
}

// SquashAfter removes every entry younger than seq and returns the
// removed entries oldest first, for the caller to unwind (free
// physical registers, purge queue slots). Entries at or older than seq
// survive.
func (rob *ROB) SquashAfter(seq uint64) []ROBEntry {
	var squashed []ROBEntry
	kept := 0
	for i := 0; i < rob.count; i++ {
		e := rob.entries[(rob.head+i)%len(rob.entries)]
		if e.Seq > seq {
			squashed = append(squashed, e)
		} else {
			kept++
		}
	}
	rob.tail = (rob.head + kept) % len(rob.entries)
	rob.count = kept
	return squashed
}

// SquashAll removes every entry and returns them oldest first.
func (rob *ROB) SquashAll() []ROBEntry {
	var squashed []ROBEntry
	for i := 0; i < rob.count; i++ {
		squashed = append(squashed, rob.entries[(rob.head+i)%len(rob.entries)])
	}
	rob.tail = rob.head
	rob.count = 0
	return squashed
}
