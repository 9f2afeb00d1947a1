package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/insts"
)

var _ = Describe("Decoder", func() {
	var decoder *insts.Decoder

	BeforeEach(func() {
		decoder = insts.NewDecoder()
	})

	Describe("integer register-immediate", func() {
		It("should decode ADDI", func() {
			inst := decoder.Decode(insts.ADDI(5, 6, 42))
			Expect(inst.Op).To(Equal(insts.OpADDI))
			Expect(inst.Class).To(Equal(insts.ClassALU))
			Expect(inst.Rd).To(Equal(uint8(5)))
			Expect(inst.Rs1).To(Equal(uint8(6)))
			Expect(inst.Imm).To(Equal(int32(42)))
		})

		It("should sign-extend negative immediates", func() {
			inst := decoder.Decode(insts.ADDI(1, 2, -7))
			Expect(inst.Imm).To(Equal(int32(-7)))
		})

		It("should decode LUI with the immediate in the upper bits", func() {
			inst := decoder.Decode(insts.LUI(3, 0x12345000))
			Expect(inst.Op).To(Equal(insts.OpLUI))
			Expect(inst.Imm).To(Equal(int32(0x12345000)))
		})
	})

	Describe("integer register-register", func() {
		It("should decode ADD", func() {
			inst := decoder.Decode(insts.ADD(1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpADD))
			Expect(inst.Class).To(Equal(insts.ClassALU))
			Expect(inst.Rd).To(Equal(uint8(1)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
			Expect(inst.Rs2).To(Equal(uint8(3)))
		})

		It("should decode MUL into the multiply class", func() {
			inst := decoder.Decode(insts.MUL(1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpMUL))
			Expect(inst.Class).To(Equal(insts.ClassMulDiv))
		})

		It("should decode DIV into the multiply class", func() {
			inst := decoder.Decode(insts.DIV(1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpDIV))
			Expect(inst.Class).To(Equal(insts.ClassMulDiv))
		})
	})

	Describe("memory operations", func() {
		It("should decode LW", func() {
			inst := decoder.Decode(insts.LW(4, 5, -8))
			Expect(inst.Op).To(Equal(insts.OpLW))
			Expect(inst.Class).To(Equal(insts.ClassLoad))
			Expect(inst.Rd).To(Equal(uint8(4)))
			Expect(inst.Rs1).To(Equal(uint8(5)))
			Expect(inst.Imm).To(Equal(int32(-8)))
			Expect(inst.IsMemOp()).To(BeTrue())
		})

		It("should decode SW with a split immediate", func() {
			inst := decoder.Decode(insts.SW(7, 8, 0x7FC))
			Expect(inst.Op).To(Equal(insts.OpSW))
			Expect(inst.Class).To(Equal(insts.ClassStore))
			Expect(inst.Rs1).To(Equal(uint8(8)))
			Expect(inst.Rs2).To(Equal(uint8(7)))
			Expect(inst.Imm).To(Equal(int32(0x7FC)))
		})

		It("should decode FLW as an FP-destination load", func() {
			inst := decoder.Decode(insts.FLW(2, 10, 16))
			Expect(inst.Op).To(Equal(insts.OpFLW))
			Expect(inst.Class).To(Equal(insts.ClassLoad))
			Expect(inst.RdIsFP).To(BeTrue())
			Expect(inst.Rs1IsFP).To(BeFalse())
		})

		It("should decode FSW as an FP-source store", func() {
			inst := decoder.Decode(insts.FSW(3, 10, 20))
			Expect(inst.Op).To(Equal(insts.OpFSW))
			Expect(inst.Class).To(Equal(insts.ClassStore))
			Expect(inst.Rs2IsFP).To(BeTrue())
		})
	})

	Describe("branches and jumps", func() {
		It("should decode BEQ with a byte offset", func() {
			inst := decoder.Decode(insts.BEQ(1, 2, 16))
			Expect(inst.Op).To(Equal(insts.OpBEQ))
			Expect(inst.Class).To(Equal(insts.ClassBranch))
			Expect(inst.Imm).To(Equal(int32(16)))
		})

		It("should decode backward branches", func() {
			inst := decoder.Decode(insts.BNE(1, 2, -12))
			Expect(inst.Op).To(Equal(insts.OpBNE))
			Expect(inst.Imm).To(Equal(int32(-12)))
		})

		It("should decode JAL", func() {
			inst := decoder.Decode(insts.JAL(1, 2048))
			Expect(inst.Op).To(Equal(insts.OpJAL))
			Expect(inst.Imm).To(Equal(int32(2048)))
			Expect(inst.IsCall()).To(BeTrue())
		})

		It("should decode JALR and classify returns", func() {
			inst := decoder.Decode(insts.JALR(0, 1, 0))
			Expect(inst.Op).To(Equal(insts.OpJALR))
			Expect(inst.IsReturn()).To(BeTrue())
			Expect(inst.IsCall()).To(BeFalse())
		})
	})

	Describe("floating point arithmetic", func() {
		It("should decode FADD.S with FP operands", func() {
			inst := decoder.Decode(insts.FADDS(1, 2, 3))
			Expect(inst.Op).To(Equal(insts.OpFADDS))
			Expect(inst.Class).To(Equal(insts.ClassFPU))
			Expect(inst.RdIsFP).To(BeTrue())
			Expect(inst.Rs1IsFP).To(BeTrue())
			Expect(inst.Rs2IsFP).To(BeTrue())
		})

		It("should decode FDIV.S", func() {
			inst := decoder.Decode(insts.FDIVS(4, 5, 6))
			Expect(inst.Op).To(Equal(insts.OpFDIVS))
			Expect(inst.Class).To(Equal(insts.ClassFPU))
		})
	})

	Describe("system instructions", func() {
		It("should decode ECALL", func() {
			inst := decoder.Decode(insts.ECALL())
			Expect(inst.Op).To(Equal(insts.OpECALL))
			Expect(inst.Class).To(Equal(insts.ClassSystem))
		})

		It("should decode EBREAK", func() {
			inst := decoder.Decode(insts.EBREAK())
			Expect(inst.Op).To(Equal(insts.OpEBREAK))
		})

		It("should decode MRET", func() {
			inst := decoder.Decode(insts.MRET())
			Expect(inst.Op).To(Equal(insts.OpMRET))
		})

		It("should decode CSRRW with the CSR address", func() {
			inst := decoder.Decode(insts.CSRRW(1, 0x305, 2))
			Expect(inst.Op).To(Equal(insts.OpCSRRW))
			Expect(inst.CSR).To(Equal(uint16(0x305)))
			Expect(inst.Rs1).To(Equal(uint8(2)))
		})

		It("should decode CSRRWI with the zimm field", func() {
			inst := decoder.Decode(insts.CSRRWI(1, 0x300, 9))
			Expect(inst.Op).To(Equal(insts.OpCSRRWI))
			Expect(inst.Imm).To(Equal(int32(9)))
		})
	})

	Describe("unknown encodings", func() {
		It("should return OpUnknown for garbage words", func() {
			inst := decoder.Decode(0xFFFFFFFF)
			Expect(inst.Op).To(Equal(insts.OpUnknown))
			Expect(inst.Raw).To(Equal(uint32(0xFFFFFFFF)))
		})

		It("should return OpUnknown for an all-zero word", func() {
			inst := decoder.Decode(0)
			Expect(inst.Op).To(Equal(insts.OpUnknown))
		})
	})
})
