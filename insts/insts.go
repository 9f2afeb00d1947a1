// Package insts provides RV32 instruction definitions and decoding.
//
// This package implements decoding of RISC-V machine code into structured
// instruction representations. It supports:
//   - RV32I base integer instructions
//   - RV32M multiply/divide instructions
//   - A single-precision floating-point subset (FLW, FSW, FADD.S, FSUB.S,
//     FMUL.S, FDIV.S)
//   - Zicsr CSR instructions and machine-mode system instructions
//   - The OP-V major opcode, decoded as an opaque vector operation
//
// Usage:
//
//	decoder := insts.NewDecoder()
//	inst := decoder.Decode(0x002081B3) // ADD x3, x1, x2
//	fmt.Printf("Op: %v, Rd: %d, Rs1: %d, Rs2: %d\n", inst.Op, inst.Rd, inst.Rs1, inst.Rs2)
package insts

// Op represents a RISC-V opcode.
type Op uint16

// RV32 opcodes.
const (
	OpUnknown Op = iota
	OpLUI
	OpAUIPC
	OpJAL
	OpJALR
	OpBEQ
	OpBNE
	OpBLT
	OpBGE
	OpBLTU
	OpBGEU
	OpLB
	OpLH
	OpLW
	OpLBU
	OpLHU
	OpSB
	OpSH
	OpSW
	OpADDI
	OpSLTI
	OpSLTIU
	OpXORI
	OpORI
	OpANDI
	OpSLLI
	OpSRLI
	OpSRAI
	OpADD
	OpSUB
	OpSLL
	OpSLT
	OpSLTU
	OpXOR
	OpSRL
	OpSRA
	OpOR
	OpAND
	OpMUL
	OpMULH
	OpMULHSU
	OpMULHU
	OpDIV
	OpDIVU
	OpREM
	OpREMU
	OpFLW
	OpFSW
	OpFADDS
	OpFSUBS
	OpFMULS
	OpFDIVS
	OpCSRRW
	OpCSRRS
	OpCSRRC
	OpCSRRWI
	OpCSRRSI
	OpCSRRCI
	OpECALL
	OpEBREAK
	OpMRET
	OpWFI
	OpFENCE
	OpVOp
)

var opNames = map[Op]string{
	OpUnknown: "unknown",
	OpLUI:     "lui",
	OpAUIPC:   "auipc",
	OpJAL:     "jal",
	OpJALR:    "jalr",
	OpBEQ:     "beq",
	OpBNE:     "bne",
	OpBLT:     "blt",
	OpBGE:     "bge",
	OpBLTU:    "bltu",
	OpBGEU:    "bgeu",
	OpLB:      "lb",
	OpLH:      "lh",
	OpLW:      "lw",
	OpLBU:     "lbu",
	OpLHU:     "lhu",
	OpSB:      "sb",
	OpSH:      "sh",
	OpSW:      "sw",
	OpADDI:    "addi",
	OpSLTI:    "slti",
	OpSLTIU:   "sltiu",
	OpXORI:    "xori",
	OpORI:     "ori",
	OpANDI:    "andi",
	OpSLLI:    "slli",
	OpSRLI:    "srli",
	OpSRAI:    "srai",
	OpADD:     "add",
	OpSUB:     "sub",
	OpSLL:     "sll",
	OpSLT:     "slt",
	OpSLTU:    "sltu",
	OpXOR:     "xor",
	OpSRL:     "srl",
	OpSRA:     "sra",
	OpOR:      "or",
	OpAND:     "and",
	OpMUL:     "mul",
	OpMULH:    "mulh",
	OpMULHSU:  "mulhsu",
	OpMULHU:   "mulhu",
	OpDIV:     "div",
	OpDIVU:    "divu",
	OpREM:     "rem",
	OpREMU:    "remu",
	OpFLW:     "flw",
	OpFSW:     "fsw",
	OpFADDS:   "fadd.s",
	OpFSUBS:   "fsub.s",
	OpFMULS:   "fmul.s",
	OpFDIVS:   "fdiv.s",
	OpCSRRW:   "csrrw",
	OpCSRRS:   "csrrs",
	OpCSRRC:   "csrrc",
	OpCSRRWI:  "csrrwi",
	OpCSRRSI:  "csrrsi",
	OpCSRRCI:  "csrrci",
	OpECALL:   "ecall",
	OpEBREAK:  "ebreak",
	OpMRET:    "mret",
	OpWFI:     "wfi",
	OpFENCE:   "fence",
	OpVOp:     "vop",
}

// String returns the mnemonic for the opcode.
func (o Op) String() string {
	if name, ok := opNames[o]; ok {
		return name
	}
	return "invalid"
}

// Class identifies which functional unit an instruction executes on.
type Class uint8

// Instruction classes.
const (
	ClassUnknown Class = iota
	ClassALU           // Integer ALU operations
	ClassMulDiv        // Integer multiply/divide
	ClassFPU           // Floating-point operations
	ClassVector        // Vector operations (opaque)
	ClassLoad          // Memory loads
	ClassStore         // Memory stores
	ClassBranch        // Branches, jumps, calls, returns
	ClassSystem        // CSR and system instructions
)

var classNames = map[Class]string{
	ClassUnknown: "unknown",
	ClassALU:     "alu",
	ClassMulDiv:  "muldiv",
	ClassFPU:     "fpu",
	ClassVector:  "vector",
	ClassLoad:    "load",
	ClassStore:   "store",
	ClassBranch:  "branch",
	ClassSystem:  "system",
}

// String returns a short name for the class.
func (c Class) String() string {
	if name, ok := classNames[c]; ok {
		return name
	}
	return "invalid"
}

// Link register conventions used for return-address-stack maintenance.
const (
	LinkRegRA  = 1 // x1, the standard return address register
	LinkRegAlt = 5 // x5, the alternate link register
)

// Instruction represents a decoded RV32 instruction.
type Instruction struct {
	Raw   uint32 // Raw instruction word
	Op    Op     // Operation code
	Class Class  // Functional unit class

	// Register operands. Indices are within the integer or FP register
	// file depending on the *IsFP flags below.
	Rd  uint8 // Destination register
	Rs1 uint8 // First source register
	Rs2 uint8 // Second source register

	// FP register space flags. FLW writes an FP destination from an
	// integer base address; FSW stores an FP source.
	RdIsFP  bool
	Rs1IsFP bool
	Rs2IsFP bool

	// Imm is the sign-extended immediate value for the instruction's
	// encoding format.
	Imm int32

	// CSR is the CSR address for Zicsr instructions.
	CSR uint16
}

// IsMemOp returns true if the instruction accesses data memory.
func (i *Instruction) IsMemOp() bool {
	return i.Class == ClassLoad || i.Class == ClassStore
}

// IsBranchOp returns true for branches, jumps, calls and returns.
func (i *Instruction) IsBranchOp() bool {
	return i.Class == ClassBranch
}

// WritesDest returns true if the instruction produces a register result.
// Writes to x0 are architecturally discarded and report false here.
func (i *Instruction) WritesDest() bool {
	switch i.Class {
	case ClassStore, ClassUnknown:
		return false
	case ClassBranch:
		// JAL/JALR write a link register; plain branches do not.
		if i.Op == OpJAL || i.Op == OpJALR {
			return i.Rd != 0
		}
		return false
	case ClassSystem:
		switch i.Op {
		case OpCSRRW, OpCSRRS, OpCSRRC, OpCSRRWI, OpCSRRSI, OpCSRRCI:
			return i.Rd != 0
		}
		return false
	}
	if i.RdIsFP {
		return true
	}
	return i.Rd != 0
}

// IsCall reports whether the instruction is a call-type branch
// (a jump that writes a link register).
func (i *Instruction) IsCall() bool {
	if i.Op != OpJAL && i.Op != OpJALR {
		return false
	}
	return i.Rd == LinkRegRA || i.Rd == LinkRegAlt
}

// IsReturn reports whether the instruction is a return-type branch
// (an indirect jump through a link register that does not re-link).
func (i *Instruction) IsReturn() bool {
	if i.Op != OpJALR {
		return false
	}
	sourceIsLink := i.Rs1 == LinkRegRA || i.Rs1 == LinkRegAlt
	return sourceIsLink && i.Rd != i.Rs1 &&
		i.Rd != LinkRegRA && i.Rd != LinkRegAlt
}
