package ooo

import (
	"sort"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/timing/mem"
)

// Config holds the structural parameters of the execution engine.
type Config struct {
	// ROBSize is the reorder buffer capacity.
	ROBSize int
	// IQSize is the issue queue capacity.
	IQSize int
	// LoadQueueSize and StoreQueueSize are the load/store queue
	// capacities.
	LoadQueueSize  int
	StoreQueueSize int
	// NumPhysRegs is the physical register file size. Must exceed the
	// 64 architectural registers.
	NumPhysRegs int
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		ROBSize:        32,
		IQSize:         16,
		LoadQueueSize:  8,
		StoreQueueSize: 8,
		NumPhysRegs:    96,
	}
}

// Stats holds engine-level statistics.
type Stats struct {
	// Cycles is the number of cycles simulated.
	Cycles uint64
	// Retired is the number of instructions committed.
	Retired uint64
	// BranchesResolved is the number of branch-class instructions
	// resolved by the branch unit.
	BranchesResolved uint64
	// Mispredictions is the number of resolved branches whose actual
	// next PC differed from the front-end's guess.
	Mispredictions uint64
	// Flushes counts pipeline flushes from mispredictions, traps and
	// interrupts.
	Flushes uint64
	// Exceptions counts committed synchronous exceptions.
	Exceptions uint64
	// Interrupts counts taken asynchronous interrupts.
	Interrupts uint64
	// DispatchStallROB, DispatchStallIQ, DispatchStallLSQ and
	// DispatchStallRegs count cycles dispatch was blocked on each
	// resource.
	DispatchStallROB  uint64
	DispatchStallIQ   uint64
	DispatchStallLSQ  uint64
	DispatchStallRegs uint64
}

// IPC returns retired instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Retired) / float64(s.Cycles)
}

// CPI returns cycles per retired instruction.
func (s Stats) CPI() float64 {
	if s.Retired == 0 {
		return 0
	}
	return float64(s.Cycles) / float64(s.Retired)
}

// Engine is the speculative out-of-order core. Each Tick advances one
// cycle; stages run oldest-first (commit before fetch) so one
// instruction moves at most one stage per cycle.
type Engine struct {
	config Config

	csrs      *emu.CSRFile
	predictor *BranchPredictor
	frontEnd  *FrontEnd
	renamer   *Renamer
	prf       *PhysRegFile
	rob       *ROB
	iq        *IssueQueue
	lsq       *LSQ
	units     *UnitSet

	nextSeq uint64

	// serializing is set while a system instruction is in flight; it
	// blocks dispatch and fetch until the instruction commits.
	serializing bool

	halted      bool
	debugHalted bool

	stats Stats
}

// EngineOption configures an Engine.
type EngineOption func(*engineParams)

type engineParams struct {
	config     Config
	latencies  *latency.Table
	translator mem.AddressTranslator
	predictor  BranchPredictorConfig
	csrs       *emu.CSRFile
}

// WithConfig overrides the structural configuration.
func WithConfig(config Config) EngineOption {
	return func(p *engineParams) {
		p.config = config
	}
}

// WithLatencyTable overrides the functional unit latency table.
func WithLatencyTable(table *latency.Table) EngineOption {
	return func(p *engineParams) {
		p.latencies = table
	}
}

// WithTranslator sets the address translator. The default is the
// identity translation.
func WithTranslator(translator mem.AddressTranslator) EngineOption {
	return func(p *engineParams) {
		p.translator = translator
	}
}

// WithPredictorConfig overrides the branch predictor configuration.
func WithPredictorConfig(config BranchPredictorConfig) EngineOption {
	return func(p *engineParams) {
		p.predictor = config
	}
}

// WithCSRFile shares a CSR file with the engine, letting the harness
// preload machine state.
func WithCSRFile(csrs *emu.CSRFile) EngineOption {
	return func(p *engineParams) {
		p.csrs = csrs
	}
}

// NewEngine creates an out-of-order engine fetching from imem and
// accessing data through dmem.
func NewEngine(imem mem.InstMemory, dmem mem.DataMemory, opts ...EngineOption) *Engine {
	params := engineParams{
		config:     DefaultConfig(),
		latencies:  latency.NewTable(),
		translator: mem.IdentityMMU{},
		predictor:  DefaultBranchPredictorConfig(),
		csrs:       emu.NewCSRFile(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	predictor := NewBranchPredictor(params.predictor)
	e := &Engine{
		config:    params.config,
		csrs:      params.csrs,
		predictor: predictor,
		frontEnd:  NewFrontEnd(predictor, params.translator, imem),
		renamer:   NewRenamer(params.config.NumPhysRegs),
		prf:       NewPhysRegFile(params.config.NumPhysRegs),
		rob:       NewROB(params.config.ROBSize),
		iq:        NewIssueQueue(params.config.IQSize),
		lsq:       NewLSQ(params.config.LoadQueueSize, params.config.StoreQueueSize, params.translator, dmem),
		units:     NewUnitSet(params.latencies),
		nextSeq:   1,
	}
	return e
}

// SetPC steers the engine to start fetching at pc.
func (e *Engine) SetPC(pc uint32) {
	e.frontEnd.Redirect(pc)
}

// Halted reports whether the engine stopped at an EBREAK.
func (e *Engine) Halted() bool {
	return e.halted
}

// CSRs returns the engine's CSR file.
func (e *Engine) CSRs() *emu.CSRFile {
	return e.csrs
}

// DebugHalt pauses commit and fetch without disturbing machine state.
func (e *Engine) DebugHalt() {
	e.debugHalted = true
}

// DebugResume resumes a debug-halted engine.
func (e *Engine) DebugResume() {
	e.debugHalted = false
}

// DebugHalted reports whether the engine is halted by the debug
// interface.
func (e *Engine) DebugHalted() bool {
	return e.debugHalted
}

// SetInterrupt raises or clears an interrupt line (emu.IntSoftware,
// emu.IntTimer or emu.IntExternal).
func (e *Engine) SetInterrupt(cause uint32, pending bool) {
	e.csrs.SetInterruptPending(cause, pending)
}

// Stats returns the engine statistics.
func (e *Engine) Stats() Stats {
	return e.stats
}

// PredictorStats returns the branch predictor statistics.
func (e *Engine) PredictorStats() BranchPredictorStats {
	return e.predictor.Stats()
}

// LSQStats returns the load/store queue statistics.
func (e *Engine) LSQStats() LSQStats {
	return e.lsq.Stats()
}

// FrontEndStats returns the front-end statistics.
func (e *Engine) FrontEndStats() FrontEndStats {
	return e.frontEnd.Stats()
}

// InFlight returns the number of instructions in the reorder buffer.
func (e *Engine) InFlight() int {
	return e.rob.Len()
}

// FreePhysRegs returns the current free list occupancy.
func (e *Engine) FreePhysRegs() int {
	return e.renamer.FreeCount()
}

// ArchRegValue reads an architectural register through the committed
// rename table.
func (e *Engine) ArchRegValue(reg uint8, isFP bool) uint32 {
	phys := e.renamer.CommittedMapping(ArchReg(reg, isFP))
	value, _ := e.prf.Read(phys)
	if !isFP && reg == 0 {
		return 0
	}
	return value
}

// RegFile materializes the committed architectural register state.
func (e *Engine) RegFile() *emu.RegFile {
	rf := &emu.RegFile{PC: e.frontEnd.PC()}
	for i := uint8(1); i < 32; i++ {
		rf.X[i] = e.ArchRegValue(i, false)
	}
	for i := uint8(0); i < 32; i++ {
		rf.F[i] = e.ArchRegValue(i, true)
	}
	return rf
}

// Run ticks the engine until it halts or maxCycles elapse. It returns
// the number of cycles simulated by this call.
func (e *Engine) Run(maxCycles uint64) uint64 {
	var n uint64
	for n < maxCycles && !e.halted {
		e.Tick()
		n++
	}
	return n
}

// Tick advances the engine one cycle. Stages evaluate oldest-first:
// commit, then writeback and memory, then execute, issue, dispatch and
// fetch.
func (e *Engine) Tick() {
	if e.halted {
		return
	}
	e.stats.Cycles++
	e.csrs.Cycle++

	e.commit()
	if e.halted {
		return
	}
	e.writeback()
	e.memory()
	e.issue()
	e.dispatch()
	e.frontEnd.Tick()
}

// commit retires at most one completed instruction from the head of
// the reorder buffer, applying its architectural effects in program
// order.
func (e *Engine) commit() {
	if e.debugHalted {
		return
	}

	// Interrupts divert commit between instructions. A store mid-drain
	// holds them off until the write completes.
	if !e.lsq.Draining() {
		if cause, ok := e.csrs.PendingInterrupt(); ok {
			epc := e.frontEnd.PC()
			if head := e.rob.Head(); head != nil {
				epc = head.PC
			}
			e.stats.Interrupts++
			vector := e.csrs.TrapInterrupt(epc, cause)
			e.flushAll(vector)
			return
		}
	}

	head := e.rob.Head()
	if head == nil || !head.Completed {
		return
	}

	if head.HasException {
		e.raiseException(head.PC, head.ExcCause, head.ExcValue)
		return
	}

	if head.Inst != nil && head.Inst.Class == insts.ClassSystem {
		e.commitSystem(head)
		return
	}

	if head.IsStore {
		done, fault := e.lsq.DrainStore(head.Seq)
		if !done {
			return
		}
		if fault.Valid {
			e.raiseException(head.PC, fault.Cause, head.MemAddr)
			return
		}
	}

	e.retire(head)
}

// retire applies the register-side effects of the head entry and frees
// its slot.
func (e *Engine) retire(head *ROBEntry) {
	if head.HasDest {
		e.renamer.Commit(head.ArchDest, head.PhysDest, head.OldPhysDest)
	}
	if head.IsLoad {
		e.lsq.ReleaseLoad(head.Seq)
	}
	if head.FPFlags != 0 {
		e.csrs.Fflags |= head.FPFlags & 0x1F
	}
	e.csrs.Instret++
	e.stats.Retired++
	e.rob.Retire()
}

// commitSystem handles the commit of a serializing system instruction:
// CSR accesses, environment calls, trap returns. Fetch resumes at the
// address the instruction determines.
func (e *Engine) commitSystem(head *ROBEntry) {
	inst := head.Inst

	switch inst.Op {
	case insts.OpECALL:
		cause := uint32(emu.CauseECallFromU)
		if e.csrs.Priv == emu.PrivMachine {
			cause = emu.CauseECallFromM
		}
		e.raiseException(head.PC, cause, 0)
		return

	case insts.OpEBREAK:
		// Debug convention: EBREAK ends the simulation with the PC
		// still pointing at it.
		e.halted = true
		return

	case insts.OpMRET:
		target := e.csrs.Return()
		e.retire(head)
		e.serializing = false
		e.frontEnd.Redirect(target)
		return

	case insts.OpWFI, insts.OpFENCE:
		e.retire(head)
		e.serializing = false
		e.frontEnd.Redirect(head.PC + 4)
		return
	}

	// Zicsr read-modify-write. head.Result carries the rs1 operand
	// captured at execute; immediate forms use the zimm field.
	old, ok := e.csrs.Read(inst.CSR)
	if !ok {
		e.raiseException(head.PC, emu.CauseIllegalInstruction, inst.Raw)
		return
	}

	operand := head.Result
	if inst.Op == insts.OpCSRRWI || inst.Op == insts.OpCSRRSI || inst.Op == insts.OpCSRRCI {
		operand = uint32(inst.Imm)
	}

	writeOK := true
	switch inst.Op {
	case insts.OpCSRRW, insts.OpCSRRWI:
		writeOK = e.csrs.Write(inst.CSR, operand)
	case insts.OpCSRRS, insts.OpCSRRSI:
		if operand != 0 || (inst.Op == insts.OpCSRRS && inst.Rs1 != 0) {
			writeOK = e.csrs.Write(inst.CSR, old|operand)
		}
	case insts.OpCSRRC, insts.OpCSRRCI:
		if operand != 0 || (inst.Op == insts.OpCSRRC && inst.Rs1 != 0) {
			writeOK = e.csrs.Write(inst.CSR, old&^operand)
		}
	}
	if !writeOK {
		e.raiseException(head.PC, emu.CauseIllegalInstruction, inst.Raw)
		return
	}

	if head.HasDest {
		e.prf.Write(head.PhysDest, old)
		head.Result = old
	}

	e.retire(head)
	e.serializing = false
	e.frontEnd.Redirect(head.PC + 4)
}

// raiseException enters the trap handler for the faulting head
// instruction. The full pipeline is flushed; nothing younger than the
// fault has touched architectural state.
func (e *Engine) raiseException(epc, cause, tval uint32) {
	e.stats.Exceptions++
	vector := e.csrs.TrapException(epc, cause, tval)
	e.flushAll(vector)
}

// flushAll squashes every in-flight instruction and redirects fetch.
func (e *Engine) flushAll(newPC uint32) {
	squashed := e.rob.SquashAll()
	e.unwind(squashed)
	e.iq.Clear()
	e.lsq.SquashAfter(0)
	e.units.Clear()
	e.serializing = false
	e.frontEnd.Redirect(newPC)
	e.stats.Flushes++
}

// flushAfter squashes everything younger than seq and redirects fetch.
func (e *Engine) flushAfter(seq uint64, newPC uint32) {
	squashed := e.rob.SquashAfter(seq)
	e.unwind(squashed)
	e.iq.SquashAfter(seq)
	e.lsq.SquashAfter(seq)
	e.units.SquashAfter(seq)
	e.serializing = false
	e.frontEnd.Redirect(newPC)
	e.stats.Flushes++
}

// unwind returns the squashed entries' speculative destinations to the
// free list and rebuilds the speculative rename table: committed state
// first, then the surviving in-flight mappings replayed oldest-first.
func (e *Engine) unwind(squashed []ROBEntry) {
	for i := range squashed {
		if squashed[i].HasDest {
			e.renamer.Free(squashed[i].PhysDest)
		}
	}
	e.renamer.Rollback()
	e.rob.Walk(func(entry *ROBEntry) {
		if entry.HasDest {
			e.renamer.Restore(entry.ArchDest, entry.PhysDest)
		}
	})
}

// writeback drains the functional units: register results wake the
// issue queue, memory addresses flow to the load/store queue, and
// branches resolve.
func (e *Engine) writeback() {
	results := e.units.Tick()
	// Oldest first, so a misprediction flush only ever discards
	// results younger than the branch.
	sort.Slice(results, func(i, j int) bool {
		return results[i].Seq < results[j].Seq
	})

	for _, res := range results {
		entry := e.rob.BySeq(res.Seq)
		if entry == nil {
			continue
		}

		if res.IsMem {
			e.writebackMem(entry, res)
			continue
		}

		if res.HasValue {
			e.prf.Write(res.DestPhys, res.Value)
			e.iq.Wakeup(res.DestPhys, res.Value)
			entry.Result = res.Value
		}
		if res.Inst != nil && res.Inst.Class == insts.ClassSystem {
			entry.Result = res.Value
		}
		entry.FPFlags = res.FPFlags
		entry.Completed = true

		if res.IsBranch {
			e.resolveBranch(entry, res)
			// A misprediction flush invalidates the remaining results
			// this cycle; they are all younger than the branch.
			if entry.Mispredicted {
				return
			}
		}
	}
}

// writebackMem delivers an address generation result to the load/store
// queue.
func (e *Engine) writebackMem(entry *ROBEntry, res ExecResult) {
	entry.MemAddr = res.MemAddr

	if res.HasException {
		entry.Completed = true
		entry.HasException = true
		entry.ExcCause = res.ExcCause
		entry.ExcValue = res.ExcValue
		if entry.IsLoad {
			e.lsq.KillLoad(res.Seq)
		}
		return
	}

	if entry.IsLoad {
		e.lsq.SetLoadAddress(res.Seq, res.MemAddr, res.MemSize, res.MemSigned)
		return
	}

	// A store is complete once its address and data are captured; the
	// write itself waits for commit.
	e.lsq.SetStoreAddress(res.Seq, res.MemAddr, res.StoreData, res.MemSize)
	entry.Completed = true
}

// resolveBranch checks the front-end's guess against the actual
// outcome, trains the predictor and flushes on a misprediction.
func (e *Engine) resolveBranch(entry *ROBEntry, res ExecResult) {
	entry.BranchTaken = res.Taken
	entry.BranchTarget = res.Target
	entry.NextPC = res.ActualNextPC
	e.stats.BranchesResolved++

	// Train the predictor on conditional branches and indirect jumps.
	// Direct jumps resolve fully in the front-end and would only
	// dilute the history register.
	switch res.Inst.Op {
	case insts.OpJAL:
	case insts.OpJALR:
		if !res.Inst.IsReturn() {
			e.predictor.Update(entry.PC, true, res.Target)
		}
	default:
		e.predictor.Update(entry.PC, res.Taken, res.Target)
	}

	if res.ActualNextPC != entry.PredictedNextPC {
		entry.Mispredicted = true
		e.stats.Mispredictions++
		e.flushAfter(entry.Seq, res.ActualNextPC)
	}
}

// memory lets the load/store queue service loads and writes back any
// that complete.
func (e *Engine) memory() {
	for _, c := range e.lsq.Tick() {
		entry := e.rob.BySeq(c.Seq)
		if entry == nil {
			continue
		}
		entry.Completed = true
		if c.HasFault {
			entry.HasException = true
			entry.ExcCause = c.Cause
			entry.ExcValue = c.Addr
			continue
		}
		entry.Result = c.Value
		e.prf.Write(c.DestPhys, c.Value)
		e.iq.Wakeup(c.DestPhys, c.Value)
	}
}

// issue moves ready issue queue entries to free functional unit ports,
// oldest first within each port class.
func (e *Engine) issue() {
	portClasses := []insts.Class{
		insts.ClassALU,
		insts.ClassMulDiv,
		insts.ClassFPU,
		insts.ClassBranch,
		insts.ClassLoad,
		insts.ClassVector,
	}
	for _, pc := range portClasses {
		for e.units.HasFree(pc) {
			entry, ok := e.iq.SelectOldest(func(inst *insts.Instruction) bool {
				return portClass(inst.Class) == pc
			})
			if !ok {
				break
			}
			e.units.Dispatch(entry)
		}
	}
}

// dispatch renames the buffered instruction and allocates its reorder
// buffer, issue queue and load/store queue resources. Dispatch is in
// order and stalls when any resource is exhausted.
func (e *Engine) dispatch() {
	if e.serializing {
		return
	}
	rec := e.frontEnd.Peek()
	if rec == nil {
		return
	}

	if e.rob.Full() {
		e.stats.DispatchStallROB++
		return
	}

	// Fetch faults and undecodable words ride the reorder buffer as
	// pre-completed entries so they trap precisely at the head.
	if rec.HasFault {
		e.rob.Allocate(ROBEntry{
			Seq:          e.allocSeq(),
			PC:           rec.PC,
			Completed:    true,
			HasException: true,
			ExcCause:     rec.Cause,
			ExcValue:     rec.PC,
		})
		e.frontEnd.Consume()
		return
	}
	if rec.Inst.Op == insts.OpUnknown {
		e.rob.Allocate(ROBEntry{
			Seq:          e.allocSeq(),
			PC:           rec.PC,
			Inst:         rec.Inst,
			Completed:    true,
			HasException: true,
			ExcCause:     emu.CauseIllegalInstruction,
			ExcValue:     rec.Inst.Raw,
		})
		e.frontEnd.Consume()
		return
	}

	inst := rec.Inst

	// System instructions serialize: they dispatch alone into an empty
	// pipeline and hold fetch until they commit.
	if inst.Class == insts.ClassSystem {
		if !e.rob.Empty() {
			return
		}
	}

	if e.iq.Full() {
		e.stats.DispatchStallIQ++
		return
	}
	if inst.Class == insts.ClassLoad && !e.lsq.CanAllocateLoad() {
		e.stats.DispatchStallLSQ++
		return
	}
	if inst.Class == insts.ClassStore && !e.lsq.CanAllocateStore() {
		e.stats.DispatchStallLSQ++
		return
	}

	archDest, hasDest := DestArchReg(inst)
	if hasDest && !e.renamer.CanAllocate() {
		e.stats.DispatchStallRegs++
		return
	}

	seq := e.allocSeq()

	iqEntry := IQEntry{
		Seq:             seq,
		PC:              rec.PC,
		Inst:            inst,
		PredictedNextPC: rec.PredictedNextPC,
		PredictedTaken:  rec.PredictedTaken,
	}
	iqEntry.Src[0] = e.renameSource(inst, 0)
	iqEntry.Src[1] = e.renameSource(inst, 1)

	robEntry := ROBEntry{
		Seq:             seq,
		PC:              rec.PC,
		Inst:            inst,
		PredictedNextPC: rec.PredictedNextPC,
		PredictedTaken:  rec.PredictedTaken,
		IsLoad:          inst.Class == insts.ClassLoad,
		IsStore:         inst.Class == insts.ClassStore,
	}

	if hasDest {
		newReg, oldReg := e.renamer.Allocate(archDest)
		e.prf.MarkPending(newReg)
		robEntry.HasDest = true
		robEntry.ArchDest = archDest
		robEntry.PhysDest = newReg
		robEntry.OldPhysDest = oldReg
		iqEntry.DestPhys = newReg
	}

	e.rob.Allocate(robEntry)
	e.iq.Add(iqEntry)
	if robEntry.IsLoad {
		e.lsq.AllocateLoad(seq, iqEntry.DestPhys)
	}
	if robEntry.IsStore {
		e.lsq.AllocateStore(seq)
	}

	if inst.Class == insts.ClassSystem {
		e.serializing = true
		e.frontEnd.Stall()
	}

	e.frontEnd.Consume()
}

func (e *Engine) allocSeq() uint64 {
	seq := e.nextSeq
	e.nextSeq++
	return seq
}

// renameSource builds one issue queue operand: a captured value if the
// producing physical register is ready, otherwise its tag.
func (e *Engine) renameSource(inst *insts.Instruction, idx int) Operand {
	var reg uint8
	var isFP, needed bool
	if idx == 0 {
		reg, isFP, needed = inst.Rs1, inst.Rs1IsFP, needsRs1(inst)
	} else {
		reg, isFP, needed = inst.Rs2, inst.Rs2IsFP, needsRs2(inst)
	}
	if !needed {
		return Operand{Ready: true}
	}

	phys := e.renamer.Lookup(ArchReg(reg, isFP))
	value, ready := e.prf.Read(phys)
	if ready {
		return Operand{Ready: true, Value: value}
	}
	return Operand{Tag: phys}
}

// needsRs1 reports whether the instruction reads its first source
// operand.
func needsRs1(inst *insts.Instruction) bool {
	switch inst.Op {
	case insts.OpLUI, insts.OpAUIPC, insts.OpJAL,
		insts.OpECALL, insts.OpEBREAK, insts.OpMRET, insts.OpWFI,
		insts.OpFENCE, insts.OpVOp,
		insts.OpCSRRWI, insts.OpCSRRSI, insts.OpCSRRCI:
		return false
	}
	return true
}

// needsRs2 reports whether the instruction reads its second source
// operand.
func needsRs2(inst *insts.Instruction) bool {
	switch inst.Class {
	case insts.ClassStore:
		return true
	case insts.ClassMulDiv, insts.ClassFPU:
		return true
	case insts.ClassBranch:
		switch inst.Op {
		case insts.OpJAL, insts.OpJALR:
			return false
		}
		return true
	case insts.ClassALU:
		switch inst.Op {
		case insts.OpADD, insts.OpSUB, insts.OpSLL, insts.OpSLT,
			insts.OpSLTU, insts.OpXOR, insts.OpSRL, insts.OpSRA,
			insts.OpOR, insts.OpAND:
			return true
		}
	}
	return false
}
