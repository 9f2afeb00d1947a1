package ooo_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/timing/ooo"
)

var _ = Describe("UnitSet", func() {
	var (
		units   *ooo.UnitSet
		decoder *insts.Decoder
	)

	entryFor := func(seq uint64, word uint32, pc, a, b uint32) ooo.IQEntry {
		entry := ooo.IQEntry{
			Seq:  seq,
			PC:   pc,
			Inst: decoder.Decode(word),
		}
		entry.Src[0] = ooo.Operand{Ready: true, Value: a}
		entry.Src[1] = ooo.Operand{Ready: true, Value: b}
		return entry
	}

	BeforeEach(func() {
		units = ooo.NewUnitSet(latency.NewTable())
		decoder = insts.NewDecoder()
	})

	It("should complete an ALU operation in one cycle", func() {
		units.Dispatch(entryFor(1, insts.ADD(3, 1, 2), 0x1000, 5, 7))

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].HasValue).To(BeTrue())
		Expect(results[0].Value).To(Equal(uint32(12)))
	})

	It("should hold a multiply for its latency", func() {
		units.Dispatch(entryFor(1, insts.MUL(3, 1, 2), 0x1000, 6, 7))

		Expect(units.Tick()).To(BeEmpty())
		Expect(units.Tick()).To(BeEmpty())
		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].Value).To(Equal(uint32(42)))
	})

	It("should run independent work on both ALU ports", func() {
		Expect(units.HasFree(insts.ClassALU)).To(BeTrue())
		units.Dispatch(entryFor(1, insts.ADD(3, 1, 2), 0x1000, 1, 2))
		Expect(units.HasFree(insts.ClassALU)).To(BeTrue())
		units.Dispatch(entryFor(2, insts.ADD(4, 1, 2), 0x1004, 3, 4))
		Expect(units.HasFree(insts.ClassALU)).To(BeFalse())

		results := units.Tick()
		Expect(results).To(HaveLen(2))
		Expect(units.HasFree(insts.ClassALU)).To(BeTrue())
	})

	It("should resolve a taken conditional branch", func() {
		units.Dispatch(entryFor(1, insts.BEQ(1, 2, 64), 0x1000, 9, 9))

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].IsBranch).To(BeTrue())
		Expect(results[0].Taken).To(BeTrue())
		Expect(results[0].ActualNextPC).To(Equal(uint32(0x1040)))
	})

	It("should link the return address of a jump", func() {
		units.Dispatch(entryFor(1, insts.JAL(1, 32), 0x1000, 0, 0))

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].HasValue).To(BeTrue())
		Expect(results[0].Value).To(Equal(uint32(0x1004)))
		Expect(results[0].ActualNextPC).To(Equal(uint32(0x1020)))
	})

	It("should generate the effective address of a store", func() {
		units.Dispatch(entryFor(1, insts.SW(2, 1, 8), 0x1000, 0x200, 99))

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].IsMem).To(BeTrue())
		Expect(results[0].MemAddr).To(Equal(uint32(0x208)))
		Expect(results[0].StoreData).To(Equal(uint32(99)))
		Expect(results[0].MemSize).To(Equal(uint8(4)))
	})

	It("should flag a misaligned load address", func() {
		units.Dispatch(entryFor(1, insts.LW(2, 1, 1), 0x1000, 0x200, 0))

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].HasException).To(BeTrue())
		Expect(results[0].ExcCause).To(Equal(uint32(emu.CauseLoadAddrMisaligned)))
		Expect(results[0].ExcValue).To(Equal(uint32(0x201)))
	})

	It("should serve system instructions on the branch port", func() {
		Expect(units.HasFree(insts.ClassSystem)).To(BeTrue())
		units.Dispatch(entryFor(1, insts.CSRRW(1, emu.CSRMScratch, 2), 0x1000, 0xABCD, 0))
		Expect(units.HasFree(insts.ClassBranch)).To(BeFalse())

		results := units.Tick()
		Expect(results).To(HaveLen(1))
		// The rs1 operand rides along for the commit-time CSR access.
		Expect(results[0].Value).To(Equal(uint32(0xABCD)))
	})

	It("should drop squashed work", func() {
		units.Dispatch(entryFor(1, insts.MUL(3, 1, 2), 0x1000, 2, 3))
		units.Dispatch(entryFor(2, insts.ADD(4, 1, 2), 0x1004, 4, 5))

		units.SquashAfter(1)

		// The squashed ALU result never surfaces; the older multiply
		// still completes.
		Expect(units.Tick()).To(BeEmpty())
		Expect(units.Tick()).To(BeEmpty())
		results := units.Tick()
		Expect(results).To(HaveLen(1))
		Expect(results[0].Seq).To(Equal(uint64(1)))
	})
})
