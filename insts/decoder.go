package insts

// RISC-V major opcodes (bits [6:0] of the instruction word).
const (
	opcodeLUI    = 0b0110111
	opcodeAUIPC  = 0b0010111
	opcodeJAL    = 0b1101111
	opcodeJALR   = 0b1100111
	opcodeBranch = 0b1100011
	opcodeLoad   = 0b0000011
	opcodeStore  = 0b0100011
	opcodeOpImm  = 0b0010011
	opcodeOp     = 0b0110011
	opcodeLoadFP = 0b0000111
	opcodeStFP   = 0b0100111
	opcodeOpFP   = 0b1010011
	opcodeOpV    = 0b1010111
	opcodeMiscM  = 0b0001111
	opcodeSystem = 0b1110011
)

// Decoder decodes RV32 machine code into instructions.
type Decoder struct{}

// NewDecoder creates a new RV32 instruction decoder.
func NewDecoder() *Decoder {
	return &Decoder{}
}

// Decode decodes a 32-bit instruction word. Undecodable words return an
// Instruction with Op == OpUnknown; callers turn that into an
// illegal-instruction fault.
func (d *Decoder) Decode(word uint32) *Instruction {
	inst := &Instruction{
		Raw: word,
		Rd:  rd(word),
		Rs1: rs1(word),
		Rs2: rs2(word),
	}

	switch word & 0x7F {
	case opcodeLUI:
		inst.Op = OpLUI
		inst.Class = ClassALU
		inst.Imm = immU(word)
	case opcodeAUIPC:
		inst.Op = OpAUIPC
		inst.Class = ClassALU
		inst.Imm = immU(word)
	case opcodeJAL:
		inst.Op = OpJAL
		inst.Class = ClassBranch
		inst.Imm = immJ(word)
	case opcodeJALR:
		if funct3(word) != 0 {
			return unknown(word)
		}
		inst.Op = OpJALR
		inst.Class = ClassBranch
		inst.Imm = immI(word)
	case opcodeBranch:
		return d.decodeBranch(word, inst)
	case opcodeLoad:
		return d.decodeLoad(word, inst)
	case opcodeStore:
		return d.decodeStore(word, inst)
	case opcodeOpImm:
		return d.decodeOpImm(word, inst)
	case opcodeOp:
		return d.decodeOp(word, inst)
	case opcodeLoadFP:
		if funct3(word) != 0b010 {
			return unknown(word)
		}
		inst.Op = OpFLW
		inst.Class = ClassLoad
		inst.Imm = immI(word)
		inst.RdIsFP = true
	case opcodeStFP:
		if funct3(word) != 0b010 {
			return unknown(word)
		}
		inst.Op = OpFSW
		inst.Class = ClassStore
		inst.Imm = immS(word)
		inst.Rs2IsFP = true
	case opcodeOpFP:
		return d.decodeOpFP(word, inst)
	case opcodeOpV:
		// Vector operations are decoded opaquely; the vector unit is a
		// black box with a fixed latency.
		inst.Op = OpVOp
		inst.Class = ClassVector
	case opcodeMiscM:
		inst.Op = OpFENCE
		inst.Class = ClassSystem
	case opcodeSystem:
		return d.decodeSystem(word, inst)
	default:
		return unknown(word)
	}

	return inst
}

func (d *Decoder) decodeBranch(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassBranch
	inst.Imm = immB(word)
	inst.Rd = 0
	switch funct3(word) {
	case 0b000:
		inst.Op = OpBEQ
	case 0b001:
		inst.Op = OpBNE
	case 0b100:
		inst.Op = OpBLT
	case 0b101:
		inst.Op = OpBGE
	case 0b110:
		inst.Op = OpBLTU
	case 0b111:
		inst.Op = OpBGEU
	default:
		return unknown(word)
	}
	return inst
}

func (d *Decoder) decodeLoad(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassLoad
	inst.Imm = immI(word)
	switch funct3(word) {
	case 0b000:
		inst.Op = OpLB
	case 0b001:
		inst.Op = OpLH
	case 0b010:
		inst.Op = OpLW
	case 0b100:
		inst.Op = OpLBU
	case 0b101:
		inst.Op = OpLHU
	default:
		return unknown(word)
	}
	return inst
}

func (d *Decoder) decodeStore(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassStore
	inst.Imm = immS(word)
	inst.Rd = 0
	switch funct3(word) {
	case 0b000:
		inst.Op = OpSB
	case 0b001:
		inst.Op = OpSH
	case 0b010:
		inst.Op = OpSW
	default:
		return unknown(word)
	}
	return inst
}

func (d *Decoder) decodeOpImm(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassALU
	inst.Imm = immI(word)
	switch funct3(word) {
	case 0b000:
		inst.Op = OpADDI
	case 0b010:
		inst.Op = OpSLTI
	case 0b011:
		inst.Op = OpSLTIU
	case 0b100:
		inst.Op = OpXORI
	case 0b110:
		inst.Op = OpORI
	case 0b111:
		inst.Op = OpANDI
	case 0b001:
		if funct7(word) != 0 {
			return unknown(word)
		}
		inst.Op = OpSLLI
		inst.Imm = int32(rs2(word))
	case 0b101:
		switch funct7(word) {
		case 0b0000000:
			inst.Op = OpSRLI
		case 0b0100000:
			inst.Op = OpSRAI
		default:
			return unknown(word)
		}
		inst.Imm = int32(rs2(word))
	}
	return inst
}

func (d *Decoder) decodeOp(word uint32, inst *Instruction) *Instruction {
	f3 := funct3(word)
	switch funct7(word) {
	case 0b0000000:
		inst.Class = ClassALU
		switch f3 {
		case 0b000:
			inst.Op = OpADD
		case 0b001:
			inst.Op = OpSLL
		case 0b010:
			inst.Op = OpSLT
		case 0b011:
			inst.Op = OpSLTU
		case 0b100:
			inst.Op = OpXOR
		case 0b101:
			inst.Op = OpSRL
		case 0b110:
			inst.Op = OpOR
		case 0b111:
			inst.Op = OpAND
		}
	case 0b0100000:
		inst.Class = ClassALU
		switch f3 {
		case 0b000:
			inst.Op = OpSUB
		case 0b101:
			inst.Op = OpSRA
		default:
			return unknown(word)
		}
	case 0b0000001:
		inst.Class = ClassMulDiv
		switch f3 {
		case 0b000:
			inst.Op = OpMUL
		case 0b001:
			inst.Op = OpMULH
		case 0b010:
			inst.Op = OpMULHSU
		case 0b011:
			inst.Op = OpMULHU
		case 0b100:
			inst.Op = OpDIV
		case 0b101:
			inst.Op = OpDIVU
		case 0b110:
			inst.Op = OpREM
		case 0b111:
			inst.Op = OpREMU
		}
	default:
		return unknown(word)
	}
	return inst
}

func (d *Decoder) decodeOpFP(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassFPU
	inst.RdIsFP = true
	inst.Rs1IsFP = true
	inst.Rs2IsFP = true
	switch funct7(word) {
	case 0b0000000:
		inst.Op = OpFADDS
	case 0b0000100:
		inst.Op = OpFSUBS
	case 0b0001000:
		inst.Op = OpFMULS
	case 0b0001100:
		inst.Op = OpFDIVS
	default:
		return unknown(word)
	}
	return inst
}

func (d *Decoder) decodeSystem(word uint32, inst *Instruction) *Instruction {
	inst.Class = ClassSystem
	f3 := funct3(word)
	if f3 == 0 {
		if rd(word) != 0 || rs1(word) != 0 {
			return unknown(word)
		}
		switch word >> 20 {
		case 0x000:
			inst.Op = OpECALL
		case 0x001:
			inst.Op = OpEBREAK
		case 0x302:
			inst.Op = OpMRET
		case 0x105:
			inst.Op = OpWFI
		default:
			return unknown(word)
		}
		return inst
	}

	inst.CSR = uint16(word >> 20)
	switch f3 {
	case 0b001:
		inst.Op = OpCSRRW
	case 0b010:
		inst.Op = OpCSRRS
	case 0b011:
		inst.Op = OpCSRRC
	case 0b101:
		inst.Op = OpCSRRWI
	case 0b110:
		inst.Op = OpCSRRSI
	case 0b111:
		inst.Op = OpCSRRCI
	default:
		return unknown(word)
	}
	// Immediate CSR forms carry a 5-bit zero-extended immediate in the
	// rs1 field.
	if f3 >= 0b101 {
		inst.Imm = int32(rs1(word))
	}
	return inst
}

func unknown(word uint32) *Instruction {
	return &Instruction{Raw: word, Op: OpUnknown, Class: ClassUnknown}
}

func rd(word uint32) uint8     { return uint8((word >> 7) & 0x1F) }
func rs1(word uint32) uint8    { return uint8((word >> 15) & 0x1F) }
func rs2(word uint32) uint8    { return uint8((word >> 20) & 0x1F) }
func funct3(word uint32) uint8 { return uint8((word >> 12) & 0x7) }
func funct7(word uint32) uint8 { return uint8(word >> 25) }

// immI extracts the sign-extended I-type immediate.
func immI(word uint32) int32 {
	return int32(word) >> 20
}

// immS extracts the sign-extended S-type immediate.
func immS(word uint32) int32 {
	imm := (int32(word) >> 20) &^ 0x1F
	return imm | int32((word>>7)&0x1F)
}

// immB extracts the sign-extended B-type immediate (byte offset).
func immB(word uint32) int32 {
	imm := (int32(word) >> 31) << 12
	imm |= int32((word>>7)&0x1) << 11
	imm |= int32((word>>25)&0x3F) << 5
	imm |= int32((word>>8)&0xF) << 1
	return imm
}

// immU extracts the U-type immediate (upper 20 bits, already shifted).
func immU(word uint32) int32 {
	return int32(word & 0xFFFFF000)
}

// immJ extracts the sign-extended J-type immediate (byte offset).
func immJ(word uint32) int32 {
	imm := (int32(word) >> 31) << 20
	imm |= int32((word>>12)&0xFF) << 12
	imm |= int32((word>>20)&0x1) << 11
	imm |= int32((word>>21)&0x3FF) << 1
	return imm
}
