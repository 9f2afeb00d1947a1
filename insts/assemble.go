package insts

// Instruction word encoders, primarily used by tests and example
// programs. Each helper produces the 32-bit encoding of one RV32
// instruction.

func encodeR(opcode, f3, f7 uint32, rd, rs1, rs2 uint8) uint32 {
	return f7<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | f3<<12 |
		uint32(rd)<<7 | opcode
}

func encodeI(opcode, f3 uint32, rd, rs1 uint8, imm int32) uint32 {
	return uint32(imm)<<20 | uint32(rs1)<<15 | f3<<12 |
		uint32(rd)<<7 | opcode
}

func encodeS(opcode, f3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return (u>>5)<<25 | uint32(rs2)<<20 | uint32(rs1)<<15 | f3<<12 |
		(u&0x1F)<<7 | opcode
}

func encodeB(opcode, f3 uint32, rs1, rs2 uint8, imm int32) uint32 {
	u := uint32(imm)
	return (u>>12&0x1)<<31 | (u>>5&0x3F)<<25 | uint32(rs2)<<20 |
		uint32(rs1)<<15 | f3<<12 | (u>>1&0xF)<<8 | (u>>11&0x1)<<7 | opcode
}

func encodeU(opcode uint32, rd uint8, imm int32) uint32 {
	return uint32(imm)&0xFFFFF000 | uint32(rd)<<7 | opcode
}

func encodeJ(opcode uint32, rd uint8, imm int32) uint32 {
	u := uint32(imm)
	return (u>>20&0x1)<<31 | (u>>1&0x3FF)<<21 | (u>>11&0x1)<<20 |
		(u>>12&0xFF)<<12 | uint32(rd)<<7 | opcode
}

// ADD encodes add rd, rs1, rs2.
func ADD(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b000, 0, rd, rs1, rs2) }

// SUB encodes sub rd, rs1, rs2.
func SUB(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b000, 0b0100000, rd, rs1, rs2) }

// AND encodes and rd, rs1, rs2.
func AND(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b111, 0, rd, rs1, rs2) }

// OR encodes or rd, rs1, rs2.
func OR(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b110, 0, rd, rs1, rs2) }

// XOR encodes xor rd, rs1, rs2.
func XOR(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b100, 0, rd, rs1, rs2) }

// SLT encodes slt rd, rs1, rs2.
func SLT(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b010, 0, rd, rs1, rs2) }

// SLL encodes sll rd, rs1, rs2.
func SLL(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b001, 0, rd, rs1, rs2) }

// MUL encodes mul rd, rs1, rs2.
func MUL(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b000, 1, rd, rs1, rs2) }

// DIV encodes div rd, rs1, rs2.
func DIV(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b100, 1, rd, rs1, rs2) }

// REM encodes rem rd, rs1, rs2.
func REM(rd, rs1, rs2 uint8) uint32 { return encodeR(opcodeOp, 0b110, 1, rd, rs1, rs2) }

// ADDI encodes addi rd, rs1, imm.
func ADDI(rd, rs1 uint8, imm int32) uint32 { return encodeI(opcodeOpImm, 0b000, rd, rs1, imm) }

// ANDI encodes andi rd, rs1, imm.
func ANDI(rd, rs1 uint8, imm int32) uint32 { return encodeI(opcodeOpImm, 0b111, rd, rs1, imm) }

// ORI encodes ori rd, rs1, imm.
func ORI(rd, rs1 uint8, imm int32) uint32 { return encodeI(opcodeOpImm, 0b110, rd, rs1, imm) }

// SLLI encodes slli rd, rs1, shamt.
func SLLI(rd, rs1 uint8, shamt uint8) uint32 {
	return encodeI(opcodeOpImm, 0b001, rd, rs1, int32(shamt&0x1F))
}

// SRLI encodes srli rd, rs1, shamt.
func SRLI(rd, rs1 uint8, shamt uint8) uint32 {
	return encodeI(opcodeOpImm, 0b101, rd, rs1, int32(shamt&0x1F))
}

// LUI encodes lui rd, imm. The low 12 bits of imm are ignored.
func LUI(rd uint8, imm int32) uint32 { return encodeU(opcodeLUI, rd, imm) }

// AUIPC encodes auipc rd, imm.
func AUIPC(rd uint8, imm int32) uint32 { return encodeU(opcodeAUIPC, rd, imm) }

// LW encodes lw rd, offset(rs1).
func LW(rd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeLoad, 0b010, rd, rs1, offset) }

// LB encodes lb rd, offset(rs1).
func LB(rd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeLoad, 0b000, rd, rs1, offset) }

// LBU encodes lbu rd, offset(rs1).
func LBU(rd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeLoad, 0b100, rd, rs1, offset) }

// LH encodes lh rd, offset(rs1).
func LH(rd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeLoad, 0b001, rd, rs1, offset) }

// SW encodes sw rs2, offset(rs1).
func SW(rs2, rs1 uint8, offset int32) uint32 { return encodeS(opcodeStore, 0b010, rs1, rs2, offset) }

// SB encodes sb rs2, offset(rs1).
func SB(rs2, rs1 uint8, offset int32) uint32 { return encodeS(opcodeStore, 0b000, rs1, rs2, offset) }

// SH encodes sh rs2, offset(rs1).
func SH(rs2, rs1 uint8, offset int32) uint32 { return encodeS(opcodeStore, 0b001, rs1, rs2, offset) }

// BEQ encodes beq rs1, rs2, offset.
func BEQ(rs1, rs2 uint8, offset int32) uint32 { return encodeB(opcodeBranch, 0b000, rs1, rs2, offset) }

// BNE encodes bne rs1, rs2, offset.
func BNE(rs1, rs2 uint8, offset int32) uint32 { return encodeB(opcodeBranch, 0b001, rs1, rs2, offset) }

// BLT encodes blt rs1, rs2, offset.
func BLT(rs1, rs2 uint8, offset int32) uint32 { return encodeB(opcodeBranch, 0b100, rs1, rs2, offset) }

// BGE encodes bge rs1, rs2, offset.
func BGE(rs1, rs2 uint8, offset int32) uint32 { return encodeB(opcodeBranch, 0b101, rs1, rs2, offset) }

// JAL encodes jal rd, offset.
func JAL(rd uint8, offset int32) uint32 { return encodeJ(opcodeJAL, rd, offset) }

// JALR encodes jalr rd, offset(rs1).
func JALR(rd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeJALR, 0b000, rd, rs1, offset) }

// FLW encodes flw fd, offset(rs1).
func FLW(fd, rs1 uint8, offset int32) uint32 { return encodeI(opcodeLoadFP, 0b010, fd, rs1, offset) }

// FSW encodes fsw fs2, offset(rs1).
func FSW(fs2, rs1 uint8, offset int32) uint32 { return encodeS(opcodeStFP, 0b010, rs1, fs2, offset) }

// FADDS encodes fadd.s fd, fs1, fs2.
func FADDS(fd, fs1, fs2 uint8) uint32 { return encodeR(opcodeOpFP, 0, 0b0000000, fd, fs1, fs2) }

// FMULS encodes fmul.s fd, fs1, fs2.
func FMULS(fd, fs1, fs2 uint8) uint32 { return encodeR(opcodeOpFP, 0, 0b0001000, fd, fs1, fs2) }

// FDIVS encodes fdiv.s fd, fs1, fs2.
func FDIVS(fd, fs1, fs2 uint8) uint32 { return encodeR(opcodeOpFP, 0, 0b0001100, fd, fs1, fs2) }

// CSRRW encodes csrrw rd, csr, rs1.
func CSRRW(rd uint8, csr uint16, rs1 uint8) uint32 {
	return encodeI(opcodeSystem, 0b001, rd, rs1, int32(csr))
}

// CSRRS encodes csrrs rd, csr, rs1.
func CSRRS(rd uint8, csr uint16, rs1 uint8) uint32 {
	return encodeI(opcodeSystem, 0b010, rd, rs1, int32(csr))
}

// CSRRWI encodes csrrwi rd, csr, imm.
func CSRRWI(rd uint8, csr uint16, imm uint8) uint32 {
	return encodeI(opcodeSystem, 0b101, rd, imm&0x1F, int32(csr))
}

// ECALL encodes ecall.
func ECALL() uint32 { return encodeI(opcodeSystem, 0, 0, 0, 0x000) }

// EBREAK encodes ebreak.
func EBREAK() uint32 { return encodeI(opcodeSystem, 0, 0, 0, 0x001) }

// MRET encodes mret.
func MRET() uint32 { return encodeI(opcodeSystem, 0, 0, 0, 0x302) }

// NOP encodes addi x0, x0, 0.
func NOP() uint32 { return ADDI(0, 0, 0) }
