package insts_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/insts"
)

var _ = Describe("Instruction", func() {
	decoder := insts.NewDecoder()

	Describe("WritesDest", func() {
		It("should report false for writes to x0", func() {
			inst := decoder.Decode(insts.ADDI(0, 1, 5))
			Expect(inst.WritesDest()).To(BeFalse())
		})

		It("should report true for ordinary ALU results", func() {
			inst := decoder.Decode(insts.ADD(3, 1, 2))
			Expect(inst.WritesDest()).To(BeTrue())
		})

		It("should report false for stores", func() {
			inst := decoder.Decode(insts.SW(1, 2, 0))
			Expect(inst.WritesDest()).To(BeFalse())
		})

		It("should report false for plain branches", func() {
			inst := decoder.Decode(insts.BEQ(1, 2, 8))
			Expect(inst.WritesDest()).To(BeFalse())
		})

		It("should report true for a linking JAL", func() {
			inst := decoder.Decode(insts.JAL(1, 64))
			Expect(inst.WritesDest()).To(BeTrue())
		})

		It("should report false for a non-linking JAL", func() {
			inst := decoder.Decode(insts.JAL(0, 64))
			Expect(inst.WritesDest()).To(BeFalse())
		})

		It("should report true for FP destinations including f0", func() {
			inst := decoder.Decode(insts.FADDS(0, 1, 2))
			Expect(inst.WritesDest()).To(BeTrue())
		})

		It("should report false for CSR ops with rd=x0", func() {
			inst := decoder.Decode(insts.CSRRW(0, 0x305, 2))
			Expect(inst.WritesDest()).To(BeFalse())
		})
	})

	Describe("call and return detection", func() {
		It("should treat jal ra as a call", func() {
			inst := decoder.Decode(insts.JAL(insts.LinkRegRA, 128))
			Expect(inst.IsCall()).To(BeTrue())
			Expect(inst.IsReturn()).To(BeFalse())
		})

		It("should treat jal x5 as a call through the alternate link register", func() {
			inst := decoder.Decode(insts.JAL(insts.LinkRegAlt, 128))
			Expect(inst.IsCall()).To(BeTrue())
		})

		It("should treat jalr x0, 0(ra) as a return", func() {
			inst := decoder.Decode(insts.JALR(0, insts.LinkRegRA, 0))
			Expect(inst.IsReturn()).To(BeTrue())
		})

		It("should not treat jalr through a non-link register as a return", func() {
			inst := decoder.Decode(insts.JALR(0, 7, 0))
			Expect(inst.IsReturn()).To(BeFalse())
		})

		It("should not treat a re-linking jalr as a return", func() {
			inst := decoder.Decode(insts.JALR(insts.LinkRegRA, insts.LinkRegRA, 0))
			Expect(inst.IsReturn()).To(BeFalse())
			Expect(inst.IsCall()).To(BeTrue())
		})
	})

	Describe("String", func() {
		It("should name operations", func() {
			Expect(insts.OpADD.String()).To(Equal("add"))
			Expect(insts.OpEBREAK.String()).To(Equal("ebreak"))
		})

		It("should name classes", func() {
			Expect(insts.ClassALU.String()).To(Equal("alu"))
			Expect(insts.ClassMulDiv.String()).To(Equal("muldiv"))
		})
	})
})
