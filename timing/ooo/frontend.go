package ooo

import (
	"github.com/sarchlab/r5sim/insts"
	"github.com/sarchlab/r5sim/timing/mem"
)

// FetchedInst is one instruction leaving the front-end, carrying the
// decoded form and the next-PC prediction made for it.
type FetchedInst struct {
	PC   uint32
	Inst *insts.Instruction

	PredictedNextPC uint32
	PredictedTaken  bool

	// HasFault marks a fetch that failed translation or memory access.
	// The record still flows to the reorder buffer so the fault is
	// raised precisely.
	HasFault bool
	Cause    uint32
}

// FrontEndStats holds front-end statistics.
type FrontEndStats struct {
	// Fetched is the number of instructions delivered downstream.
	Fetched uint64
	// FetchStallCycles counts cycles spent waiting on instruction
	// memory.
	FetchStallCycles uint64
	// BackPressureCycles counts cycles the fetch buffer was full.
	BackPressureCycles uint64
}

// FrontEnd fetches, decodes and predicts one instruction per cycle.
// It follows predicted paths until redirected by a branch resolution,
// trap or flush.
type FrontEnd struct {
	pc      uint32
	decoder *insts.Decoder

	predictor  *BranchPredictor
	translator mem.AddressTranslator
	imem       mem.InstMemory

	// buffer decouples fetch from dispatch; it holds at most one
	// instruction.
	buffer *FetchedInst

	// stalled is set once a fetch fault has been delivered; fetch
	// stops until redirected, since everything past the fault is
	// unfetchable.
	stalled bool

	stats FrontEndStats
}

// NewFrontEnd creates the fetch/decode stage.
func NewFrontEnd(
	predictor *BranchPredictor,
	translator mem.AddressTranslator,
	imem mem.InstMemory,
) *FrontEnd {
	return &FrontEnd{
		decoder:    insts.NewDecoder(),
		predictor:  predictor,
		translator: translator,
		imem:       imem,
	}
}

// PC returns the current fetch address.
func (fe *FrontEnd) PC() uint32 {
	return fe.pc
}

// Redirect steers fetch to a new address, discarding buffered work and
// the outstanding instruction memory request.
func (fe *FrontEnd) Redirect(pc uint32) {
	fe.pc = pc
	fe.buffer = nil
	fe.stalled = false
	fe.imem.Cancel()
}

// Peek returns the buffered instruction without consuming it.
func (fe *FrontEnd) Peek() *FetchedInst {
	return fe.buffer
}

// Consume removes the buffered instruction after dispatch accepted it.
func (fe *FrontEnd) Consume() {
	fe.buffer = nil
}

// Tick advances the front-end one cycle: if the buffer is free, poll
// instruction memory for the word at the current PC, decode it,
// predict the next PC and advance.
func (fe *FrontEnd) Tick() {
	if fe.stalled {
		return
	}
	if fe.buffer != nil {
		fe.stats.BackPressureCycles++
		return
	}

	paddr, fault := fe.translator.Translate(fe.pc, mem.AccessFetch)
	if fault.Valid {
		fe.deliverFault(fault.Cause)
		return
	}

	word, done, memFault := fe.imem.Fetch(paddr)
	if memFault.Valid {
		fe.deliverFault(memFault.Cause)
		return
	}
	if !done {
		fe.stats.FetchStallCycles++
		return
	}

	inst := fe.decoder.Decode(word)
	record := &FetchedInst{PC: fe.pc, Inst: inst}
	record.PredictedNextPC, record.PredictedTaken = fe.predictNext(inst)

	fe.buffer = record
	fe.stats.Fetched++
	fe.pc = record.PredictedNextPC
}

// predictNext chooses the next fetch address for a decoded
// instruction. Direct jumps resolve in the front-end; returns consult
// the return-address stack; conditional branches and other indirect
// jumps consult the target table.
func (fe *FrontEnd) predictNext(inst *insts.Instruction) (uint32, bool) {
	fallThrough := fe.pc + 4

	switch {
	case inst.Op == insts.OpJAL:
		if inst.IsCall() {
			fe.predictor.PushReturn(fallThrough)
		}
		return fe.pc + uint32(inst.Imm), true

	case inst.Op == insts.OpJALR:
		if inst.IsReturn() {
			return fe.predictor.PopReturn(), true
		}
		if inst.IsCall() {
			fe.predictor.PushReturn(fallThrough)
		}
		if p := fe.predictor.Predict(fe.pc); p.TargetKnown {
			return p.Target, true
		}
		// Unknown indirect target; fetch down the fallthrough path and
		// let resolution redirect.
		return fallThrough, false

	case inst.IsBranchOp():
		p := fe.predictor.Predict(fe.pc)
		if p.Taken && p.TargetKnown {
			return p.Target, true
		}
		return fallThrough, false

	case inst.Class == insts.ClassSystem:
		// System instructions serialize; the engine redirects fetch
		// after they commit. Predict fallthrough and stop here.
		return fallThrough, false
	}

	return fallThrough, false
}

// Stall pauses fetch until the next Redirect. Used after dispatching a
// serializing instruction.
func (fe *FrontEnd) Stall() {
	fe.stalled = true
	fe.imem.Cancel()
}

func (fe *FrontEnd) deliverFault(cause uint32) {
	fe.buffer = &FetchedInst{
		PC:       fe.pc,
		HasFault: true,
		Cause:    cause,
	}
	fe.stalled = true
}

// Stats returns the front-end statistics.
func (fe *FrontEnd) Stats() FrontEndStats {
	return fe.stats
}
