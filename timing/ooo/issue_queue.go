package ooo

import "github.com/sarchlab/r5sim/insts"

// Operand is one source operand of an issue queue entry: either a
// captured value or a physical register tag still awaiting writeback.
type Operand struct {
	// Ready is true once Value holds the operand.
	Ready bool
	// Value is the operand value, valid when Ready.
	Value uint32
	// Tag is the physical register the operand waits on.
	Tag PhysReg
}

// IQEntry is one issue queue slot.
type IQEntry struct {
	Seq      uint64
	PC       uint32
	Inst     *insts.Instruction
	DestPhys PhysReg
	Src      [2]Operand

	// PredictedNextPC and PredictedTaken carry the front-end guess to
	// the branch unit for resolution.
	PredictedNextPC uint32
	PredictedTaken  bool
}

// ready reports whether both operands are available.
func (e *IQEntry) ready() bool {
	return e.Src[0].Ready && e.Src[1].Ready
}

// IssueQueue is the unified scheduler window. Entries wait for their
// operands, woken by result broadcasts, and issue oldest-first within
// each instruction class.
type IssueQueue struct {
	entries  []IQEntry
	capacity int
}

// NewIssueQueue creates an issue queue with the given capacity.
func NewIssueQueue(capacity int) *IssueQueue {
	return &IssueQueue{
		entries:  make([]IQEntry, 0, capacity),
		capacity: capacity,
	}
}

// Full reports whether the queue has no free slot.
func (iq *IssueQueue) Full() bool {
	return len(iq.entries) == iq.capacity
}

// Len returns the number of waiting entries.
func (iq *IssueQueue) Len() int {
	return len(iq.entries)
}

// Add inserts an entry. The caller must check Full first.
func (iq *IssueQueue) Add(entry IQEntry) {
	iq.entries = append(iq.entries, entry)
}

// Wakeup broadcasts a result to every waiting operand with a matching
// tag.
func (iq *IssueQueue) Wakeup(tag PhysReg, value uint32) {
	if tag == 0 {
		return
	}
	for i := range iq.entries {
		for s := range iq.entries[i].Src {
			op := &iq.entries[i].Src[s]
			if !op.Ready && op.Tag == tag {
				op.Ready = true
				op.Value = value
			}
		}
	}
}

// SelectOldest removes and returns the oldest ready entry accepted by
// match, or false if none is ready. Oldest means smallest sequence
// number, which makes selection deterministic.
func (iq *IssueQueue) SelectOldest(match func(*insts.Instruction) bool) (IQEntry, bool) {
	best := -1
	for i := range iq.entries {
		e := &iq.entries[i]
		if !match(e.Inst) || !e.ready() {
			continue
		}
		if best < 0 || e.Seq < iq.entries[best].Seq {
			best = i
		}
	}
	if best < 0 {
		return IQEntry{}, false
	}
	entry := iq.entries[best]
	iq.entries = append(iq.entries[:best], iq.entries[best+1:]...)
	return entry, true
}

// SquashAfter removes every entry younger than seq.
func (iq *IssueQueue) SquashAfter(seq uint64) {
	kept := iq.entries[:0]
	for _, e := range iq.entries {
		if e.Seq <= seq {
			kept = append(kept, e)
		}
	}
	iq.entries = kept
}

// Clear removes every entry.
func (iq *IssueQueue) Clear() {
	iq.entries = iq.entries[:0]
}
