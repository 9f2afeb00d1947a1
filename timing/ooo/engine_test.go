package ooo_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/mem"
	"github.com/sarchlab/r5sim/timing/ooo"
)

const (
	codeBase    = 0x1000
	handlerBase = 0x100
)

// newTestEngine wires an engine to latency-1 instruction and data ports
// over a shared flat memory, with the program loaded at codeBase.
func newTestEngine(program []uint32, opts ...ooo.EngineOption) (*ooo.Engine, *emu.Memory) {
	memory := emu.NewMemory()
	memory.LoadWords(codeBase, program)
	imem := mem.NewFixedLatencyMemory(memory, 1)
	dmem := mem.NewFixedLatencyMemory(memory, 1)
	engine := ooo.NewEngine(imem, dmem, opts...)
	engine.SetPC(codeBase)
	return engine, memory
}

var _ = Describe("Engine", func() {
	It("should execute a dependent chain in order", func() {
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(1, 0, 5),
			insts.ADDI(2, 0, 7),
			insts.ADD(3, 1, 2),
			insts.ADDI(4, 3, 5),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(3, false)).To(Equal(uint32(12)))
		Expect(engine.ArchRegValue(4, false)).To(Equal(uint32(17)))
		Expect(engine.Stats().Retired).To(Equal(uint64(4)))
	})

	It("should keep x0 zero", func() {
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(0, 0, 99),
			insts.ADD(1, 0, 0),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(0, false)).To(Equal(uint32(0)))
		Expect(engine.ArchRegValue(1, false)).To(Equal(uint32(0)))
	})

	It("should discard the wrong path of a mispredicted branch", func() {
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(1, 0, 1),
			insts.BEQ(0, 0, 8), // always taken, cold predictor says not
			insts.ADDI(2, 0, 99),
			insts.ADDI(3, 0, 3),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(1, false)).To(Equal(uint32(1)))
		Expect(engine.ArchRegValue(2, false)).To(Equal(uint32(0)))
		Expect(engine.ArchRegValue(3, false)).To(Equal(uint32(3)))
		Expect(engine.Stats().Mispredictions).To(BeNumerically(">=", 1))
		Expect(engine.Stats().Flushes).To(BeNumerically(">=", 1))
	})

	It("should forward a pending store to a younger load", func() {
		// The divide holds commit for its full latency, so the store is
		// still queued, not yet drained, when the load's address
		// resolves.
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(1, 0, 0x200),
			insts.ADDI(2, 0, 42),
			insts.DIV(5, 2, 2),
			insts.SW(2, 1, 0),
			insts.LW(3, 1, 0),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(3, false)).To(Equal(uint32(42)))
		Expect(engine.ArchRegValue(5, false)).To(Equal(uint32(1)))
		Expect(engine.LSQStats().ForwardedLoads).To(BeNumerically(">=", 1))
	})

	It("should hold a load behind an older store with an unresolved address", func() {
		// The store's base register comes from a divide, so its address
		// stays unknown for many cycles after the load's own address is
		// ready.
		engine, memory := newTestEngine([]uint32{
			insts.ADDI(1, 0, 512),
			insts.ADDI(7, 0, 8),
			insts.DIV(2, 1, 7), // 64
			insts.ADDI(6, 0, 77),
			insts.SW(6, 2, 0),
			insts.ADDI(3, 0, 0x80),
			insts.LW(4, 3, 0),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(4, false)).To(Equal(uint32(0)))
		Expect(memory.Read32(64)).To(Equal(uint32(77)))
		Expect(engine.LSQStats().DisambiguationStalls).To(BeNumerically(">", 0))
	})

	It("should take a precise trap on a misaligned load", func() {
		engine, memory := newTestEngine([]uint32{
			insts.ADDI(5, 0, handlerBase),
			insts.CSRRW(0, emu.CSRMTVec, 5),
			insts.ADDI(1, 0, 11),
			insts.ADDI(6, 0, 0x201),
			insts.LW(2, 6, 0), // misaligned
			insts.ADDI(3, 0, 33),
			insts.EBREAK(),
		})
		memory.LoadWords(handlerBase, []uint32{insts.EBREAK()})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		// Older work committed, the faulting load and everything younger
		// did not.
		Expect(engine.ArchRegValue(1, false)).To(Equal(uint32(11)))
		Expect(engine.ArchRegValue(2, false)).To(Equal(uint32(0)))
		Expect(engine.ArchRegValue(3, false)).To(Equal(uint32(0)))

		csrs := engine.CSRs()
		Expect(csrs.MEPC).To(Equal(uint32(codeBase + 0x10)))
		Expect(csrs.MCause).To(Equal(uint32(emu.CauseLoadAddrMisaligned)))
		Expect(csrs.MTVal).To(Equal(uint32(0x201)))
	})

	It("should round-trip an environment call through mret", func() {
		engine, memory := newTestEngine([]uint32{
			insts.ADDI(5, 0, handlerBase),
			insts.CSRRW(0, emu.CSRMTVec, 5),
			insts.ADDI(1, 0, 0),
			insts.ECALL(),
			insts.ADDI(3, 0, 7),
			insts.EBREAK(),
		})
		memory.LoadWords(handlerBase, []uint32{
			insts.CSRRS(7, emu.CSRMEPC, 0), // read only, rs1 is x0
			insts.ADDI(8, 7, 4),
			insts.CSRRW(0, emu.CSRMEPC, 8),
			insts.MRET(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(7, false)).To(Equal(uint32(codeBase + 0xC)))
		Expect(engine.ArchRegValue(3, false)).To(Equal(uint32(7)))
		Expect(engine.CSRs().MCause).To(Equal(uint32(emu.CauseECallFromM)))
	})

	It("should divert commit to the handler on an external interrupt", func() {
		csrs := emu.NewCSRFile()
		csrs.MTVec = handlerBase
		csrs.MStatus = 1 << 3 // mstatus.MIE
		csrs.MIE = 1 << emu.IntExternal

		engine, memory := newTestEngine([]uint32{
			insts.JAL(0, 0), // spin
		}, ooo.WithCSRFile(csrs))
		memory.LoadWords(handlerBase, []uint32{insts.EBREAK()})

		engine.Run(50)
		Expect(engine.Halted()).To(BeFalse())

		engine.SetInterrupt(emu.IntExternal, true)
		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.CSRs().MCause).To(Equal(uint32(1<<31 | emu.IntExternal)))
		Expect(engine.Stats().Interrupts).To(Equal(uint64(1)))
	})

	It("should read the hardware counters through csrrs", func() {
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(1, 0, 1),
			insts.ADDI(2, 0, 2),
			insts.ADDI(3, 0, 3),
			insts.CSRRS(10, emu.CSRMInstret, 0),
			insts.CSRRS(9, emu.CSRMCycle, 0),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		Expect(engine.ArchRegValue(10, false)).To(Equal(uint32(3)))
		Expect(engine.ArchRegValue(9, false)).To(BeNumerically(">", 0))
	})

	It("should match the functional emulator on a loop", func() {
		program := []uint32{
			insts.ADDI(1, 0, 0),    // sum
			insts.ADDI(2, 0, 0),    // i
			insts.ADDI(3, 0, 10),   // limit
			insts.ADD(1, 1, 2),     // loop:
			insts.ADDI(2, 2, 1),    //
			insts.BNE(2, 3, -8),    //   until i == limit
			insts.ADDI(4, 0, 0x400),
			insts.SW(1, 4, 0),
			insts.EBREAK(),
		}

		refMemory := emu.NewMemory()
		refMemory.LoadWords(codeBase, program)
		ref := emu.NewEmulator(emu.WithMemory(refMemory))
		ref.SetPC(codeBase)
		ref.Run()
		Expect(ref.Halted()).To(BeTrue())

		engine, memory := newTestEngine(program)
		engine.Run(10_000)
		Expect(engine.Halted()).To(BeTrue())

		refRegs := ref.RegFile()
		regs := engine.RegFile()
		for i := 1; i < 32; i++ {
			Expect(regs.X[i]).To(Equal(refRegs.X[i]), "x%d", i)
		}
		Expect(ref.CSRs().Instret).To(Equal(engine.Stats().Retired))
		Expect(memory.Read32(0x400)).To(Equal(uint32(45)))
		Expect(refMemory.Read32(0x400)).To(Equal(uint32(45)))
	})

	It("should conserve physical registers across flushes", func() {
		engine, _ := newTestEngine([]uint32{
			insts.ADDI(1, 0, 1),
			insts.BEQ(0, 0, 8),
			insts.ADDI(2, 0, 99),
			insts.ADDI(3, 0, 3),
			insts.EBREAK(),
		})

		engine.Run(10_000)

		Expect(engine.Halted()).To(BeTrue())
		// Only the halting breakpoint remains in flight and it has no
		// destination, so the free list is back to its reset size.
		Expect(engine.InFlight()).To(Equal(1))
		Expect(engine.FreePhysRegs()).To(Equal(ooo.DefaultConfig().NumPhysRegs - ooo.NumArchRegs))
	})

	Describe("debug halt", func() {
		It("should freeze commit until resumed", func() {
			engine, _ := newTestEngine([]uint32{
				insts.ADDI(1, 0, 1),
				insts.ADDI(2, 0, 2),
				insts.ADDI(3, 0, 3),
				insts.ADDI(4, 0, 4),
				insts.EBREAK(),
			})

			engine.DebugHalt()
			engine.Run(100)

			Expect(engine.Halted()).To(BeFalse())
			Expect(engine.Stats().Retired).To(Equal(uint64(0)))
			Expect(engine.Stats().Cycles).To(Equal(uint64(100)))

			engine.DebugResume()
			engine.Run(10_000)

			Expect(engine.Halted()).To(BeTrue())
			Expect(engine.Stats().Retired).To(Equal(uint64(4)))
		})
	})
})
