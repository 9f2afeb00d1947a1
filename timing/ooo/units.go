package ooo

import (
	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/latency"
)

// ExecResult is the outcome of executing one instruction on a
// functional unit.
type ExecResult struct {
	Seq      uint64
	PC       uint32
	Inst     *insts.Instruction
	DestPhys PhysReg

	// Value is the destination value for register-writing operations.
	Value    uint32
	HasValue bool

	// FPFlags holds accrued floating-point exception flags.
	FPFlags uint32

	// Exception records a deferred fault detected at execute, raised
	// only if the instruction reaches the head of the reorder buffer.
	HasException bool
	ExcCause     uint32
	ExcValue     uint32

	// Branch resolution.
	IsBranch     bool
	Taken        bool
	Target       uint32
	ActualNextPC uint32

	// Memory operations deliver the computed effective address to the
	// load/store queue instead of a register value.
	IsMem     bool
	MemAddr   uint32
	MemSize   uint8
	MemSigned bool
	StoreData uint32
}

// fuPort is one functional unit pipeline slot. A port accepts one
// instruction, holds it for the operation latency, then delivers the
// result. Ports are not pipelined internally; a busy port rejects new
// work.
type fuPort struct {
	class     insts.Class
	busy      bool
	remaining uint64
	result    ExecResult
}

// UnitSet is the fixed pool of functional unit ports: two integer
// ALUs, one multiplier/divider, two FPU pipes, one branch unit, one
// load/store address unit and one vector unit.
type UnitSet struct {
	ports   []fuPort
	latency *latency.Table
}

// NewUnitSet creates the functional unit pool.
func NewUnitSet(table *latency.Table) *UnitSet {
	return &UnitSet{
		ports: []fuPort{
			{class: insts.ClassALU},
			{class: insts.ClassALU},
			{class: insts.ClassMulDiv},
			{class: insts.ClassFPU},
			{class: insts.ClassFPU},
			{class: insts.ClassBranch},
			{class: insts.ClassLoad}, // shared load/store address unit
			{class: insts.ClassVector},
		},
		latency: table,
	}
}

// portClass maps an instruction class to the port class serving it.
// Loads and stores share the address generation unit; CSR and system
// instructions borrow the branch unit, which is idle while they are in
// flight because system instructions serialize the pipeline.
func portClass(class insts.Class) insts.Class {
	switch class {
	case insts.ClassStore:
		return insts.ClassLoad
	case insts.ClassSystem:
		return insts.ClassBranch
	}
	return class
}

// HasFree reports whether a port of the class serving the instruction
// class is available.
func (u *UnitSet) HasFree(class insts.Class) bool {
	pc := portClass(class)
	for i := range u.ports {
		if u.ports[i].class == pc && !u.ports[i].busy {
			return true
		}
	}
	return false
}

// Dispatch starts executing an issue queue entry on a free port. The
// result is computed up front and held for the operation latency. The
// caller must check HasFree first.
func (u *UnitSet) Dispatch(entry IQEntry) {
	pc := portClass(entry.Inst.Class)
	for i := range u.ports {
		port := &u.ports[i]
		if port.class != pc || port.busy {
			continue
		}
		port.busy = true
		port.remaining = u.latency.GetLatency(entry.Inst)
		if port.remaining == 0 {
			port.remaining = 1
		}
		port.result = execute(entry)
		return
	}
}

// Tick advances every busy port one cycle and returns the results that
// complete this cycle.
func (u *UnitSet) Tick() []ExecResult {
	var done []ExecResult
	for i := range u.ports {
		port := &u.ports[i]
		if !port.busy {
			continue
		}
		port.remaining--
		if port.remaining == 0 {
			port.busy = false
			done = append(done, port.result)
		}
	}
	return done
}

// SquashAfter drops in-flight work younger than seq.
func (u *UnitSet) SquashAfter(seq uint64) {
	for i := range u.ports {
		if u.ports[i].busy && u.ports[i].result.Seq > seq {
			u.ports[i].busy = false
		}
	}
}

// Clear drops all in-flight work.
func (u *UnitSet) Clear() {
	for i := range u.ports {
		u.ports[i].busy = false
	}
}

// execute computes the architectural result of one instruction from
// its captured operands. Timing is the port's concern; this is pure
// dataflow.
func execute(entry IQEntry) ExecResult {
	inst := entry.Inst
	pc := entry.PC
	a := entry.Src[0].Value
	b := entry.Src[1].Value

	res := ExecResult{
		Seq:      entry.Seq,
		PC:       pc,
		Inst:     inst,
		DestPhys: entry.DestPhys,
	}

	switch inst.Class {
	case insts.ClassALU:
		res.Value = executeALU(inst, pc, a, b)
		res.HasValue = true

	case insts.ClassMulDiv:
		res.Value = emu.MulDiv(inst.Op, a, b)
		res.HasValue = true

	case insts.ClassFPU:
		res.Value, res.FPFlags = emu.FPOp(inst.Op, a, b)
		res.HasValue = true

	case insts.ClassBranch:
		executeBranch(inst, pc, a, b, &res)

	case insts.ClassLoad:
		res.IsMem = true
		res.MemAddr = a + uint32(inst.Imm)
		res.MemSize, res.MemSigned = loadWidth(inst.Op)
		if res.MemAddr%uint32(res.MemSize) != 0 {
			res.HasException = true
			res.ExcCause = emu.CauseLoadAddrMisaligned
			res.ExcValue = res.MemAddr
		}

	case insts.ClassStore:
		res.IsMem = true
		res.MemAddr = a + uint32(inst.Imm)
		res.StoreData = b
		res.MemSize = storeWidth(inst.Op)
		if res.MemAddr%uint32(res.MemSize) != 0 {
			res.HasException = true
			res.ExcCause = emu.CauseStoreAddrMisaligned
			res.ExcValue = res.MemAddr
		}

	case insts.ClassVector:
		// Opaque vector operation: occupies the unit for its latency
		// and produces no scalar result.

	case insts.ClassSystem:
		// CSR reads and side effects happen at commit, when the
		// instruction is the oldest in flight. Carry the rs1 operand
		// for the commit-time read-modify-write.
		res.Value = a
	}

	return res
}

func executeALU(inst *insts.Instruction, pc, a, b uint32) uint32 {
	imm := uint32(inst.Imm)
	switch inst.Op {
	case insts.OpLUI:
		return imm
	case insts.OpAUIPC:
		return pc + imm
	case insts.OpADDI:
		return a + imm
	case insts.OpSLTI:
		return boolToReg(int32(a) < inst.Imm)
	case insts.OpSLTIU:
		return boolToReg(a < imm)
	case insts.OpXORI:
		return a ^ imm
	case insts.OpORI:
		return a | imm
	case insts.OpANDI:
		return a & imm
	case insts.OpSLLI:
		return a << (imm & 0x1F)
	case insts.OpSRLI:
		return a >> (imm & 0x1F)
	case insts.OpSRAI:
		return uint32(int32(a) >> (imm & 0x1F))
	case insts.OpADD:
		return a + b
	case insts.OpSUB:
		return a - b
	case insts.OpSLL:
		return a << (b & 0x1F)
	case insts.OpSLT:
		return boolToReg(int32(a) < int32(b))
	case insts.OpSLTU:
		return boolToReg(a < b)
	case insts.OpXOR:
		return a ^ b
	case insts.OpSRL:
		return a >> (b & 0x1F)
	case insts.OpSRA:
		return uint32(int32(a) >> (b & 0x1F))
	case insts.OpOR:
		return a | b
	case insts.OpAND:
		return a & b
	}
	return 0
}

func executeBranch(inst *insts.Instruction, pc, a, b uint32, res *ExecResult) {
	res.IsBranch = true
	imm := uint32(inst.Imm)

	switch inst.Op {
	case insts.OpJAL:
		res.Taken = true
		res.Target = pc + imm
		res.Value = pc + 4
		res.HasValue = inst.WritesDest()
	case insts.OpJALR:
		res.Taken = true
		res.Target = (a + imm) &^ 1
		res.Value = pc + 4
		res.HasValue = inst.WritesDest()
	case insts.OpBEQ:
		res.Taken = a == b
		res.Target = pc + imm
	case insts.OpBNE:
		res.Taken = a != b
		res.Target = pc + imm
	case insts.OpBLT:
		res.Taken = int32(a) < int32(b)
		res.Target = pc + imm
	case insts.OpBGE:
		res.Taken = int32(a) >= int32(b)
		res.Target = pc + imm
	case insts.OpBLTU:
		res.Taken = a < b
		res.Target = pc + imm
	case insts.OpBGEU:
		res.Taken = a >= b
		res.Target = pc + imm
	}

	if res.Taken {
		res.ActualNextPC = res.Target
	} else {
		res.ActualNextPC = pc + 4
	}
}

// loadWidth returns the access width in bytes and whether the loaded
// value is sign-extended.
func loadWidth(op insts.Op) (uint8, bool) {
	switch op {
	case insts.OpLB:
		return 1, true
	case insts.OpLBU:
		return 1, false
	case insts.OpLH:
		return 2, true
	case insts.OpLHU:
		return 2, false
	}
	return 4, false
}

// storeWidth returns the access width in bytes.
func storeWidth(op insts.Op) uint8 {
	switch op {
	case insts.OpSB:
		return 1
	case insts.OpSH:
		return 2
	}
	return 4
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
