package latency

import (
	"encoding/json"
	"fmt"
	"os"
)

// TimingConfig holds execution latency values per functional unit.
type TimingConfig struct {
	// ALULatency is the execution latency for integer ALU operations.
	// Default: 1 cycle.
	ALULatency uint64 `json:"alu_latency"`

	// BranchLatency is the resolution latency of the branch unit. This
	// does not include the misprediction flush penalty, which emerges
	// from refilling the pipeline. Default: 1 cycle.
	BranchLatency uint64 `json:"branch_latency"`

	// MultiplyLatency is the latency for integer multiply operations.
	// Default: 3 cycles.
	MultiplyLatency uint64 `json:"multiply_latency"`

	// DivideLatency is the latency for integer divide/remainder
	// operations. Default: 12 cycles.
	DivideLatency uint64 `json:"divide_latency"`

	// FPULatency is the latency for floating-point add/sub/mul.
	// Default: 4 cycles.
	FPULatency uint64 `json:"fpu_latency"`

	// FPDivideLatency is the latency for floating-point divide.
	// Default: 12 cycles.
	FPDivideLatency uint64 `json:"fp_divide_latency"`

	// VectorLatency is the latency of the (black-box) vector unit.
	// Default: 4 cycles.
	VectorLatency uint64 `json:"vector_latency"`

	// AGULatency is the address-generation latency for loads and stores
	// before they enter the load/store queue. Default: 1 cycle.
	AGULatency uint64 `json:"agu_latency"`

	// SystemLatency is the latency for CSR and other system
	// instructions (side effects happen at commit). Default: 1 cycle.
	SystemLatency uint64 `json:"system_latency"`

	// MemoryLatency is the data memory service round-trip latency.
	// Default: 4 cycles.
	MemoryLatency uint64 `json:"memory_latency"`

	// FetchLatency is the instruction memory service latency.
	// Default: 1 cycle.
	FetchLatency uint64 `json:"fetch_latency"`
}

// DefaultTimingConfig returns a TimingConfig with default values.
func DefaultTimingConfig() *TimingConfig {
	return &TimingConfig{
		ALULatency:      1,
		BranchLatency:   1,
		MultiplyLatency: 3,
		DivideLatency:   12,
		FPULatency:      4,
		FPDivideLatency: 12,
		VectorLatency:   4,
		AGULatency:      1,
		SystemLatency:   1,
		MemoryLatency:   4,
		FetchLatency:    1,
	}
}

// LoadConfig loads a TimingConfig from a JSON file. Missing fields keep
// their default values.
func LoadConfig(path string) (*TimingConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read timing config file: %w", err)
	}

	config := DefaultTimingConfig()
	if err := json.Unmarshal(data, config); err != nil {
		return nil, fmt.Errorf("failed to parse timing config: %w", err)
	}

	return config, nil
}

// SaveConfig writes a TimingConfig to a JSON file.
func (c *TimingConfig) SaveConfig(path string) error {
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to serialize timing config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write timing config file: %w", err)
	}

	return nil
}

// Validate checks that all latency values are valid (> 0).
func (c *TimingConfig) Validate() error {
	fields := map[string]uint64{
		"alu_latency":       c.ALULatency,
		"branch_latency":    c.BranchLatency,
		"multiply_latency":  c.MultiplyLatency,
		"divide_latency":    c.DivideLatency,
		"fpu_latency":       c.FPULatency,
		"fp_divide_latency": c.FPDivideLatency,
		"vector_latency":    c.VectorLatency,
		"agu_latency":       c.AGULatency,
		"system_latency":    c.SystemLatency,
		"memory_latency":    c.MemoryLatency,
		"fetch_latency":     c.FetchLatency,
	}
	for name, v := range fields {
		if v == 0 {
			return fmt.Errorf("%s must be > 0", name)
		}
	}
	return nil
}

// Clone returns a deep copy of the TimingConfig.
func (c *TimingConfig) Clone() *TimingConfig {
	clone := *c
	return &clone
}
