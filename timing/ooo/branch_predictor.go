// Package ooo implements the speculative out-of-order execution engine:
// branch prediction, fetch/decode, register renaming, the reorder
// buffer, the issue queue, functional units, the load/store queue, and
// in-order commit with precise exception recovery.
package ooo

// BranchPredictorConfig holds configuration for the branch predictor.
type BranchPredictorConfig struct {
	// TableSize is the number of entries in the branch target table.
	// Must be a power of 2. Default is 512.
	TableSize uint32
	// RASDepth is the depth of the return-address stack. Must be a
	// power of 2. Default is 16.
	RASDepth uint32
	// HistoryLength is the number of global history bits folded into
	// the table index. Default is 8.
	HistoryLength uint32
}

// DefaultBranchPredictorConfig returns a default configuration.
func DefaultBranchPredictorConfig() BranchPredictorConfig {
	return BranchPredictorConfig{
		TableSize:     512,
		RASDepth:      16,
		HistoryLength: 8,
	}
}

// BranchPredictorStats holds statistics for the branch predictor.
type BranchPredictorStats struct {
	// Predictions is the total number of predictions made.
	Predictions uint64
	// Correct is the number of correct predictions.
	Correct uint64
	// Mispredictions is the number of incorrect predictions.
	Mispredictions uint64
	// TableHits is the number of target-table tag hits.
	TableHits uint64
	// TableMisses is the number of target-table tag misses.
	TableMisses uint64
	// RASPops is the number of return-address-stack pops.
	RASPops uint64
}

// Accuracy returns the share of resolved branches that were predicted
// correctly, as a percentage. Resolved branches are Correct +
// Mispredictions; Predictions also counts wrong-path fetches that
// never resolve.
func (s BranchPredictorStats) Accuracy() float64 {
	resolved := s.Correct + s.Mispredictions
	if resolved == 0 {
		return 0
	}
	return float64(s.Correct) / float64(resolved) * 100
}

// MispredictionRate returns the share of resolved branches that were
// mispredicted, as a percentage.
func (s BranchPredictorStats) MispredictionRate() float64 {
	resolved := s.Correct + s.Mispredictions
	if resolved == 0 {
		return 0
	}
	return float64(s.Mispredictions) / float64(resolved) * 100
}

// Prediction represents a branch prediction result.
type Prediction struct {
	// Taken indicates whether the branch is predicted taken.
	Taken bool
	// Target is the predicted target address (if known).
	Target uint32
	// TargetKnown indicates whether the target address is known.
	TargetKnown bool
}

// targetEntry is one direct-mapped branch target table entry.
type targetEntry struct {
	valid   bool
	tag     uint32
	target  uint32
	counter uint8 // 2-bit saturating confidence counter
}

// BranchPredictor combines a tagged, direct-mapped branch target table
// with 2-bit saturating confidence counters, a global history register
// folded into the index, and a return-address stack.
//
// The return-address stack pointer wraps modulo the stack depth on both
// over-push and over-pop. A deep enough stack makes the wraparound
// behave like the unbounded ideal for realistic call depths.
type BranchPredictor struct {
	table   []targetEntry
	history uint32

	ras    []uint32
	rasTop uint32

	config BranchPredictorConfig
	stats  BranchPredictorStats
}

// NewBranchPredictor creates a new branch predictor with the given
// configuration.
func NewBranchPredictor(config BranchPredictorConfig) *BranchPredictor {
	if config.TableSize == 0 {
		config.TableSize = 512
	}
	if config.RASDepth == 0 {
		config.RASDepth = 16
	}

	return &BranchPredictor{
		table:  make([]targetEntry, config.TableSize),
		ras:    make([]uint32, config.RASDepth),
		config: config,
	}
}

// index computes the table index for a PC, folding in global history.
func (bp *BranchPredictor) index(pc uint32) uint32 {
	historyMask := uint32(1)<<bp.config.HistoryLength - 1
	return ((pc >> 2) ^ (bp.history & historyMask)) & (bp.config.TableSize - 1)
}

// tag computes the table tag for a PC.
func (bp *BranchPredictor) tag(pc uint32) uint32 {
	return pc >> 2
}

// Predict makes a prediction for the given fetch PC. It completes in
// the same cycle; there is no stall path.
func (bp *BranchPredictor) Predict(pc uint32) Prediction {
	bp.stats.Predictions++

	entry := &bp.table[bp.index(pc)]
	if !entry.valid || entry.tag != bp.tag(pc) {
		bp.stats.TableMisses++
		return Prediction{}
	}

	bp.stats.TableHits++
	return Prediction{
		Taken:       entry.counter >= 2,
		Target:      entry.target,
		TargetKnown: true,
	}
}

// Update trains the predictor with a resolved branch outcome. On a tag
// mismatch the entry is overwritten: cold-start allocation, last writer
// wins.
func (bp *BranchPredictor) Update(pc uint32, taken bool, target uint32) {
	entry := &bp.table[bp.index(pc)]

	if !entry.valid || entry.tag != bp.tag(pc) {
		// A tag miss predicted not-taken at fetch.
		if taken {
			bp.stats.Mispredictions++
		} else {
			bp.stats.Correct++
		}
		*entry = targetEntry{
			valid:  true,
			tag:    bp.tag(pc),
			target: target,
			counter: func() uint8 {
				if taken {
					return 2
				}
				return 1
			}(),
		}
	} else {
		predicted := entry.counter >= 2
		if predicted == taken {
			bp.stats.Correct++
		} else {
			bp.stats.Mispredictions++
		}
		if taken {
			if entry.counter < 3 {
				entry.counter++
			}
			entry.target = target
		} else if entry.counter > 0 {
			entry.counter--
		}
	}

	// Shift the outcome into the global history register.
	bp.history <<= 1
	if taken {
		bp.history |= 1
	}
}

// PushReturn records a return address on a detected call-type branch.
func (bp *BranchPredictor) PushReturn(returnPC uint32) {
	bp.rasTop = (bp.rasTop + 1) % bp.config.RASDepth
	bp.ras[bp.rasTop] = returnPC
}

// PopReturn predicts the target of a detected return-type branch.
func (bp *BranchPredictor) PopReturn() uint32 {
	bp.stats.RASPops++
	target := bp.ras[bp.rasTop]
	bp.rasTop = (bp.rasTop + bp.config.RASDepth - 1) % bp.config.RASDepth
	return target
}

// Stats returns the predictor statistics.
func (bp *BranchPredictor) Stats() BranchPredictorStats {
	return bp.stats
}

// Reset clears all predictor state and statistics.
func (bp *BranchPredictor) Reset() {
	for i := range bp.table {
		bp.table[i] = targetEntry{}
	}
	for i := range bp.ras {
		bp.ras[i] = 0
	}
	bp.rasTop = 0
	bp.history = 0
	bp.stats = BranchPredictorStats{}
}
