package emu

import (
	"math"

	"github.com/sarchlab/r5sim/insts"
)

// StepResult represents the result of executing a single instruction.
type StepResult struct {
	// Halted is true if the program stopped (EBREAK or instruction limit).
	Halted bool

	// Trapped is true if the instruction raised a precise exception and
	// control transferred to the trap vector.
	Trapped bool

	// Cause is the exception cause if Trapped is true.
	Cause uint32
}

// Emulator executes RV32 instructions functionally, strictly in order
// and without speculation. It is the reference model against which the
// out-of-order timing engine is validated.
type Emulator struct {
	regFile *RegFile
	csrs    *CSRFile
	memory  *Memory
	decoder *insts.Decoder

	instructionCount uint64
	maxInstructions  uint64 // 0 means no limit
	halted           bool
}

// EmulatorOption is a functional option for configuring the Emulator.
type EmulatorOption func(*Emulator)

// WithMaxInstructions sets the maximum number of instructions to
// execute. A value of 0 means no limit.
func WithMaxInstructions(max uint64) EmulatorOption {
	return func(e *Emulator) {
		e.maxInstructions = max
	}
}

// WithMemory attaches an existing memory instead of a fresh one.
func WithMemory(memory *Memory) EmulatorOption {
	return func(e *Emulator) {
		e.memory = memory
	}
}

// NewEmulator creates a new RV32 emulator.
func NewEmulator(opts ...EmulatorOption) *Emulator {
	e := &Emulator{
		regFile: &RegFile{},
		csrs:    NewCSRFile(),
		memory:  NewMemory(),
		decoder: insts.NewDecoder(),
	}

	for _, opt := range opts {
		opt(e)
	}

	return e
}

// RegFile returns the architectural register file.
func (e *Emulator) RegFile() *RegFile {
	return e.regFile
}

// CSRs returns the CSR file.
func (e *Emulator) CSRs() *CSRFile {
	return e.csrs
}

// Memory returns the memory.
func (e *Emulator) Memory() *Memory {
	return e.memory
}

// InstructionCount returns the number of instructions executed.
func (e *Emulator) InstructionCount() uint64 {
	return e.instructionCount
}

// Halted returns true if execution has stopped.
func (e *Emulator) Halted() bool {
	return e.halted
}

// SetPC sets the program counter.
func (e *Emulator) SetPC(pc uint32) {
	e.regFile.PC = pc
}

// Run executes instructions until the emulator halts.
func (e *Emulator) Run() {
	for !e.halted {
		e.Step()
	}
}

// Step executes one instruction, taking any pending enabled interrupt
// first. Traps are precise: the faulting instruction has no
// architectural effect beyond the trap CSRs.
func (e *Emulator) Step() StepResult {
	if e.halted {
		return StepResult{Halted: true}
	}

	if cause, ok := e.csrs.PendingInterrupt(); ok {
		e.regFile.PC = e.csrs.TrapInterrupt(e.regFile.PC, cause)
	}

	pc := e.regFile.PC
	word := e.memory.Read32(pc)
	inst := e.decoder.Decode(word)

	if inst.Op == insts.OpUnknown {
		return e.trap(pc, CauseIllegalInstruction, word)
	}

	result := e.execute(pc, inst)
	if result.Trapped {
		return result
	}
	if result.Halted {
		// An EBREAK halt leaves the breakpoint unretired; minstret
		// counts only instructions that completed.
		return result
	}

	e.csrs.Instret++
	e.instructionCount++
	if e.maxInstructions > 0 && e.instructionCount >= e.maxInstructions {
		e.halted = true
		result.Halted = true
	}
	return result
}

// trap transfers control to the trap vector. A trapped instruction does
// not retire, so the instret counter is left alone.
func (e *Emulator) trap(pc, cause, tval uint32) StepResult {
	e.regFile.PC = e.csrs.TrapException(pc, cause, tval)
	return StepResult{Trapped: true, Cause: cause}
}

//nolint:gocyclo // one arm per opcode keeps the reference model flat and auditable
func (e *Emulator) execute(pc uint32, inst *insts.Instruction) StepResult {
	r := e.regFile
	rs1 := r.ReadReg(inst.Rs1)
	rs2 := r.ReadReg(inst.Rs2)
	imm := uint32(inst.Imm)
	nextPC := pc + 4

	switch inst.Op {
	case insts.OpLUI:
		r.WriteReg(inst.Rd, imm)
	case insts.OpAUIPC:
		r.WriteReg(inst.Rd, pc+imm)
	case insts.OpJAL:
		r.WriteReg(inst.Rd, pc+4)
		nextPC = pc + imm
	case insts.OpJALR:
		r.WriteReg(inst.Rd, pc+4)
		nextPC = (rs1 + imm) &^ 1
	case insts.OpBEQ:
		if rs1 == rs2 {
			nextPC = pc + imm
		}
	case insts.OpBNE:
		if rs1 != rs2 {
			nextPC = pc + imm
		}
	case insts.OpBLT:
		if int32(rs1) < int32(rs2) {
			nextPC = pc + imm
		}
	case insts.OpBGE:
		if int32(rs1) >= int32(rs2) {
			nextPC = pc + imm
		}
	case insts.OpBLTU:
		if rs1 < rs2 {
			nextPC = pc + imm
		}
	case insts.OpBGEU:
		if rs1 >= rs2 {
			nextPC = pc + imm
		}
	case insts.OpLB:
		r.WriteReg(inst.Rd, uint32(int32(int8(e.memory.Read8(rs1+imm)))))
	case insts.OpLH:
		addr := rs1 + imm
		if addr%2 != 0 {
			return e.trap(pc, CauseLoadAddrMisaligned, addr)
		}
		r.WriteReg(inst.Rd, uint32(int32(int16(e.memory.Read16(addr)))))
	case insts.OpLW:
		addr := rs1 + imm
		if addr%4 != 0 {
			return e.trap(pc, CauseLoadAddrMisaligned, addr)
		}
		r.WriteReg(inst.Rd, e.memory.Read32(addr))
	case insts.OpLBU:
		r.WriteReg(inst.Rd, uint32(e.memory.Read8(rs1+imm)))
	case insts.OpLHU:
		addr := rs1 + imm
		if addr%2 != 0 {
			return e.trap(pc, CauseLoadAddrMisaligned, addr)
		}
		r.WriteReg(inst.Rd, uint32(e.memory.Read16(addr)))
	case insts.OpSB:
		e.memory.Write8(rs1+imm, uint8(rs2))
	case insts.OpSH:
		addr := rs1 + imm
		if addr%2 != 0 {
			return e.trap(pc, CauseStoreAddrMisaligned, addr)
		}
		e.memory.Write16(addr, uint16(rs2))
	case insts.OpSW:
		addr := rs1 + imm
		if addr%4 != 0 {
			return e.trap(pc, CauseStoreAddrMisaligned, addr)
		}
		e.memory.Write32(addr, rs2)
	case insts.OpADDI:
		r.WriteReg(inst.Rd, rs1+imm)
	case insts.OpSLTI:
		r.WriteReg(inst.Rd, boolToReg(int32(rs1) < inst.Imm))
	case insts.OpSLTIU:
		r.WriteReg(inst.Rd, boolToReg(rs1 < imm))
	case insts.OpXORI:
		r.WriteReg(inst.Rd, rs1^imm)
	case insts.OpORI:
		r.WriteReg(inst.Rd, rs1|imm)
	case insts.OpANDI:
		r.WriteReg(inst.Rd, rs1&imm)
	case insts.OpSLLI:
		r.WriteReg(inst.Rd, rs1<<(imm&0x1F))
	case insts.OpSRLI:
		r.WriteReg(inst.Rd, rs1>>(imm&0x1F))
	case insts.OpSRAI:
		r.WriteReg(inst.Rd, uint32(int32(rs1)>>(imm&0x1F)))
	case insts.OpADD:
		r.WriteReg(inst.Rd, rs1+rs2)
	case insts.OpSUB:
		r.WriteReg(inst.Rd, rs1-rs2)
	case insts.OpSLL:
		r.WriteReg(inst.Rd, rs1<<(rs2&0x1F))
	case insts.OpSLT:
		r.WriteReg(inst.Rd, boolToReg(int32(rs1) < int32(rs2)))
	case insts.OpSLTU:
		r.WriteReg(inst.Rd, boolToReg(rs1 < rs2))
	case insts.OpXOR:
		r.WriteReg(inst.Rd, rs1^rs2)
	case insts.OpSRL:
		r.WriteReg(inst.Rd, rs1>>(rs2&0x1F))
	case insts.OpSRA:
		r.WriteReg(inst.Rd, uint32(int32(rs1)>>(rs2&0x1F)))
	case insts.OpOR:
		r.WriteReg(inst.Rd, rs1|rs2)
	case insts.OpAND:
		r.WriteReg(inst.Rd, rs1&rs2)
	case insts.OpMUL, insts.OpMULH, insts.OpMULHSU, insts.OpMULHU,
		insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU:
		r.WriteReg(inst.Rd, MulDiv(inst.Op, rs1, rs2))
	case insts.OpFLW:
		addr := rs1 + imm
		if addr%4 != 0 {
			return e.trap(pc, CauseLoadAddrMisaligned, addr)
		}
		r.WriteFPReg(inst.Rd, e.memory.Read32(addr))
	case insts.OpFSW:
		addr := rs1 + imm
		if addr%4 != 0 {
			return e.trap(pc, CauseStoreAddrMisaligned, addr)
		}
		e.memory.Write32(addr, r.ReadFPReg(inst.Rs2))
	case insts.OpFADDS, insts.OpFSUBS, insts.OpFMULS, insts.OpFDIVS:
		result, flags := FPOp(inst.Op, r.ReadFPReg(inst.Rs1), r.ReadFPReg(inst.Rs2))
		r.WriteFPReg(inst.Rd, result)
		e.csrs.Fflags |= flags
	case insts.OpCSRRW, insts.OpCSRRS, insts.OpCSRRC,
		insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		if !e.executeCSR(inst, rs1) {
			return e.trap(pc, CauseIllegalInstruction, inst.Raw)
		}
	case insts.OpECALL:
		cause := uint32(CauseECallFromU)
		if e.csrs.Priv == PrivMachine {
			cause = CauseECallFromM
		}
		return e.trap(pc, cause, 0)
	case insts.OpEBREAK:
		e.halted = true
		r.PC = pc
		return StepResult{Halted: true}
	case insts.OpMRET:
		nextPC = e.csrs.Return()
	case insts.OpWFI, insts.OpFENCE, insts.OpVOp:
		// No architectural effect in this model.
	}

	r.PC = nextPC
	return StepResult{}
}

// executeCSR performs a Zicsr read-modify-write. Returns false on an
// access to an unimplemented or read-only CSR.
func (e *Emulator) executeCSR(inst *insts.Instruction, rs1 uint32) bool {
	old, ok := e.csrs.Read(inst.CSR)
	if !ok {
		return false
	}

	operand := rs1
	immediate := false
	switch inst.Op {
	case insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		operand = uint32(inst.Imm)
		immediate = true
	}

	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		if !e.csrs.Write(inst.CSR, operand) {
			return false
		}
	case insts.OpCSRRS, insts.OpCSRRSI:
		// Set with a zero source is a pure read, even of read-only CSRs.
		if operand != 0 || (!immediate && inst.Rs1 != 0) {
			if !e.csrs.Write(inst.CSR, old|operand) {
				return false
			}
		}
	case insts.OpCSRRC, insts.OpCSRRCI:
		if operand != 0 || (!immediate && inst.Rs1 != 0) {
			if !e.csrs.Write(inst.CSR, old&^operand) {
				return false
			}
		}
	}

	e.regFile.WriteReg(inst.Rd, old)
	return true
}

func boolToReg(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// MulDiv computes an RV32M result. Division by zero and signed overflow
// follow the architectural fixed results (no trap).
func MulDiv(op insts.Op, a, b uint32) uint32 {
	switch op {
	case insts.OpMUL:
		return a * b
	case insts.OpMULH:
		return uint32(uint64(int64(int32(a))*int64(int32(b))) >> 32)
	case insts.OpMULHSU:
		return uint32(uint64(int64(int32(a))*int64(b)) >> 32)
	case insts.OpMULHU:
		return uint32(uint64(a) * uint64(b) >> 32)
	case insts.OpDIV:
		switch {
		case b == 0:
			return ^uint32(0)
		case a == 0x80000000 && b == ^uint32(0):
			return a
		default:
			return uint32(int32(a) / int32(b))
		}
	case insts.OpDIVU:
		if b == 0 {
			return ^uint32(0)
		}
		return a / b
	case insts.OpREM:
		switch {
		case b == 0:
			return a
		case a == 0x80000000 && b == ^uint32(0):
			return 0
		default:
			return uint32(int32(a) % int32(b))
		}
	case insts.OpREMU:
		if b == 0 {
			return a
		}
		return a % b
	}
	return 0
}

// FP exception flag bits (fflags layout).
const (
	FlagNX = 1 << 0 // inexact
	FlagUF = 1 << 1 // underflow
	FlagOF = 1 << 2 // overflow
	FlagDZ = 1 << 3 // divide by zero
	FlagNV = 1 << 4 // invalid operation
)

// FPOp computes a single-precision result from raw register bits and
// returns the accumulated exception flags. Flags are sticky state, not
// traps.
func FPOp(op insts.Op, aBits, bBits uint32) (uint32, uint32) {
	a := math.Float32frombits(aBits)
	b := math.Float32frombits(bBits)

	var result float32
	var flags uint32

	switch op {
	case insts.OpFADDS:
		result = a + b
	case insts.OpFSUBS:
		result = a - b
	case insts.OpFMULS:
		result = a * b
	case insts.OpFDIVS:
		if b == 0 {
			if a == 0 || isNaN32(a) {
				flags |= FlagNV
			} else {
				flags |= FlagDZ
			}
		}
		result = a / b
	}

	if isNaN32(result) && !isNaN32(a) && !isNaN32(b) {
		flags |= FlagNV
	}
	if math.IsInf(float64(result), 0) && !math.IsInf(float64(a), 0) &&
		!math.IsInf(float64(b), 0) && op != insts.OpFDIVS {
		flags |= FlagOF
	}

	return math.Float32bits(result), flags
}

func isNaN32(f float32) bool {
	return f != f
}
