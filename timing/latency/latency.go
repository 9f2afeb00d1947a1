// Package latency provides instruction timing models for cycle-level
// simulation. Latency values can be configured via TimingConfig.
package latency

import (
	"github.com/sarchlab/r5sim/insts"
)

// Table provides instruction latency lookups.
type Table struct {
	config *TimingConfig
}

// NewTable creates a new latency table with default timing values.
func NewTable() *Table {
	return &Table{
		config: DefaultTimingConfig(),
	}
}

// NewTableWithConfig creates a new latency table with custom timing
// configuration.
func NewTableWithConfig(config *TimingConfig) *Table {
	return &Table{
		config: config,
	}
}

// GetLatency returns the execution latency in cycles for the given
// instruction on its functional unit. Load/store latency here is the
// address-generation part only; memory service time is modeled by the
// load/store queue.
func (t *Table) GetLatency(inst *insts.Instruction) uint64 {
	if inst == nil {
		return 1
	}

	switch inst.Class {
	case insts.ClassALU:
		return t.config.ALULatency
	case insts.ClassBranch:
		return t.config.BranchLatency
	case insts.ClassMulDiv:
		switch inst.Op {
		case insts.OpDIV, insts.OpDIVU, insts.OpREM, insts.OpREMU:
			return t.config.DivideLatency
		}
		return t.config.MultiplyLatency
	case insts.ClassFPU:
		if inst.Op == insts.OpFDIVS {
			return t.config.FPDivideLatency
		}
		return t.config.FPULatency
	case insts.ClassVector:
		return t.config.VectorLatency
	case insts.ClassLoad, insts.ClassStore:
		return t.config.AGULatency
	case insts.ClassSystem:
		return t.config.SystemLatency
	default:
		return 1
	}
}

// Config returns the current timing configuration.
func (t *Table) Config() *TimingConfig {
	return t.config
}
