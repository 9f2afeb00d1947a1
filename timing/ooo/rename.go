package ooo

import "github.com/sarchlab/r5sim/insts"

// PhysReg identifies a physical register.
type PhysReg uint16

// NumArchRegs is the number of architectural registers the renamer
// tracks: x0-x31 followed by f0-f31.
const NumArchRegs = 64

// ArchReg flattens an architectural register into the renamer's
// namespace. Integer registers occupy 0-31, floating-point registers
// 32-63.
func ArchReg(reg uint8, isFP bool) uint8 {
	if isFP {
		return 32 + reg
	}
	return reg
}

// DestArchReg returns the flattened destination register of an
// instruction, or false if it writes no destination.
func DestArchReg(inst *insts.Instruction) (uint8, bool) {
	if !inst.WritesDest() {
		return 0, false
	}
	return ArchReg(inst.Rd, inst.RdIsFP), true
}

// PhysRegFile holds the values and ready bits of the physical
// registers. A register becomes ready when a functional unit writes it
// back; it goes not-ready when the renamer hands it out as a fresh
// destination.
type PhysRegFile struct {
	values []uint32
	ready  []bool
}

// NewPhysRegFile creates a physical register file of the given size.
// All registers start ready with value zero.
func NewPhysRegFile(size int) *PhysRegFile {
	prf := &PhysRegFile{
		values: make([]uint32, size),
		ready:  make([]bool, size),
	}
	for i := range prf.ready {
		prf.ready[i] = true
	}
	return prf
}

// Read returns the value and readiness of a physical register.
func (prf *PhysRegFile) Read(reg PhysReg) (uint32, bool) {
	return prf.values[reg], prf.ready[reg]
}

// Write sets the value of a physical register and marks it ready.
func (prf *PhysRegFile) Write(reg PhysReg, value uint32) {
	// Physical register 0 backs x0 and stays hardwired to zero.
	if reg == 0 {
		return
	}
	prf.values[reg] = value
	prf.ready[reg] = true
}

// MarkPending marks a freshly allocated destination as not ready.
func (prf *PhysRegFile) MarkPending(reg PhysReg) {
	if reg == 0 {
		return
	}
	prf.ready[reg] = false
}

// Size returns the number of physical registers.
func (prf *PhysRegFile) Size() int {
	return len(prf.values)
}

// Renamer maintains the speculative and committed register alias
// tables and the free list of physical registers.
//
// The free list is a ring buffer with an explicit element count, so
// the full and empty states are unambiguous at every occupancy.
type Renamer struct {
	specTable      [NumArchRegs]PhysReg
	committedTable [NumArchRegs]PhysReg

	freeList []PhysReg
	freeHead int
	freeTail int
	freeLen  int
}

// NewRenamer creates a renamer for a physical register file of the
// given size. The first NumArchRegs physical registers start mapped
// identity-wise to the architectural registers; the rest populate the
// free list. numPhysRegs must exceed NumArchRegs.
func NewRenamer(numPhysRegs int) *Renamer {
	r := &Renamer{
		freeList: make([]PhysReg, numPhysRegs),
	}
	for i := 0; i < NumArchRegs; i++ {
		r.specTable[i] = PhysReg(i)
		r.committedTable[i] = PhysReg(i)
	}
	for p := NumArchRegs; p < numPhysRegs; p++ {
		r.pushFree(PhysReg(p))
	}
	return r
}

func (r *Renamer) pushFree(reg PhysReg) {
	r.freeList[r.freeTail] = reg
	r.freeTail = (r.freeTail + 1) % len(r.freeList)
	r.freeLen++
}

func (r *Renamer) popFree() PhysReg {
	reg := r.freeList[r.freeHead]
	r.freeHead = (r.freeHead + 1) % len(r.freeList)
	r.freeLen--
	return reg
}

// Lookup returns the physical register currently mapped to an
// architectural register in the speculative table.
func (r *Renamer) Lookup(arch uint8) PhysReg {
	return r.specTable[arch]
}

// CanAllocate reports whether a free physical register is available.
func (r *Renamer) CanAllocate() bool {
	return r.freeLen > 0
}

// FreeCount returns the number of physical registers on the free list.
func (r *Renamer) FreeCount() int {
	return r.freeLen
}

// Allocate maps an architectural destination to a fresh physical
// register. It returns the new mapping and the previous one; the
// previous register is freed when the instruction commits, or the new
// one is freed if the instruction is squashed. The caller must check
// CanAllocate first.
//
// Architectural register x0 is never renamed: it stays mapped to
// physical register 0 and Allocate returns (0, 0) for it.
func (r *Renamer) Allocate(arch uint8) (newReg, oldReg PhysReg) {
	if arch == 0 {
		return 0, 0
	}
	oldReg = r.specTable[arch]
	newReg = r.popFree()
	r.specTable[arch] = newReg
	return newReg, oldReg
}

// Commit promotes a mapping into the committed table and returns the
// previous committed register to the free list. Called in program
// order at retirement.
func (r *Renamer) Commit(arch uint8, reg, oldReg PhysReg) {
	if arch == 0 {
		return
	}
	r.committedTable[arch] = reg
	r.pushFree(oldReg)
}

// Free returns a physical register to the free list. Called for the
// speculative destinations of squashed instructions.
func (r *Renamer) Free(reg PhysReg) {
	if reg == 0 {
		return
	}
	r.pushFree(reg)
}

// Rollback resets the speculative table to the committed state. The
// caller is responsible for freeing the squashed destinations and for
// replaying any surviving in-flight mappings.
func (r *Renamer) Rollback() {
	r.specTable = r.committedTable
}

// Restore re-applies a surviving in-flight mapping after a Rollback.
// Call in program order, oldest first.
func (r *Renamer) Restore(arch uint8, reg PhysReg) {
	if arch == 0 {
		return
	}
	r.specTable[arch] = reg
}

// CommittedMapping returns the committed physical register of an
// architectural register.
func (r *Renamer) CommittedMapping(arch uint8) PhysReg {
	return r.committedTable[arch]
}
