// Package core provides the cycle-level CPU core model. It assembles
// the out-of-order engine with its memory services and provides a
// high-level interface for simulation.
package core

import (
	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/timing/cache"
	"github.com/sarchlab/r5sim/timing/latency"
	"github.com/sarchlab/r5sim/timing/mem"
	"github.com/sarchlab/r5sim/timing/ooo"
)

// Stats holds performance statistics for the core.
type Stats struct {
	// Cycles is the total number of cycles simulated.
	Cycles uint64
	// Instructions is the number of instructions retired.
	Instructions uint64
	// Flushes is the number of pipeline flushes.
	Flushes uint64
	// BranchesResolved and Mispredictions summarize branch handling.
	BranchesResolved uint64
	Mispredictions   uint64
	// ForwardedLoads is the number of loads served by store-to-load
	// forwarding.
	ForwardedLoads uint64
	// Exceptions and Interrupts count taken traps.
	Exceptions uint64
	Interrupts uint64
}

// IPC returns retired instructions per cycle.
func (s Stats) IPC() float64 {
	if s.Cycles == 0 {
		return 0
	}
	return float64(s.Instructions) / float64(s.Cycles)
}

// Core is a cycle-level out-of-order CPU core. It owns the flat
// backing memory and the instruction/data memory services in front of
// it.
type Core struct {
	// Engine is the underlying out-of-order execution engine.
	Engine *ooo.Engine

	memory *emu.Memory
	icache *cache.Cache
	dcache *cache.Cache
}

// CoreOption configures a Core.
type CoreOption func(*coreParams)

type coreParams struct {
	memory        *emu.Memory
	latencies     *latency.Table
	engineConfig  ooo.Config
	withCaches    bool
	icacheConfig  cache.Config
	dcacheConfig  cache.Config
	memoryLimit   uint32
	predictorConf ooo.BranchPredictorConfig
}

// WithMemory shares a pre-loaded backing memory with the core.
func WithMemory(memory *emu.Memory) CoreOption {
	return func(p *coreParams) {
		p.memory = memory
	}
}

// WithLatencyConfig sets the functional unit and memory latencies.
func WithLatencyConfig(config latency.TimingConfig) CoreOption {
	return func(p *coreParams) {
		p.latencies = latency.NewTableWithConfig(&config)
	}
}

// WithEngineConfig sets the engine's structural parameters.
func WithEngineConfig(config ooo.Config) CoreOption {
	return func(p *coreParams) {
		p.engineConfig = config
	}
}

// WithPredictorConfig sets the branch predictor parameters.
func WithPredictorConfig(config ooo.BranchPredictorConfig) CoreOption {
	return func(p *coreParams) {
		p.predictorConf = config
	}
}

// WithCaches fronts the memory services with L1 instruction and data
// caches.
func WithCaches(icache, dcache cache.Config) CoreOption {
	return func(p *coreParams) {
		p.withCaches = true
		p.icacheConfig = icache
		p.dcacheConfig = dcache
	}
}

// WithMemoryLimit makes accesses at or above limit fault.
func WithMemoryLimit(limit uint32) CoreOption {
	return func(p *coreParams) {
		p.memoryLimit = limit
	}
}

// NewCore creates a core with default parameters, overridden by the
// given options.
func NewCore(opts ...CoreOption) *Core {
	params := coreParams{
		memory:        emu.NewMemory(),
		latencies:     latency.NewTable(),
		engineConfig:  ooo.DefaultConfig(),
		predictorConf: ooo.DefaultBranchPredictorConfig(),
	}
	for _, opt := range opts {
		opt(&params)
	}

	core := &Core{memory: params.memory}

	var imem mem.InstMemory
	var dmem mem.DataMemory
	if params.withCaches {
		ic := mem.NewCachedMemory(params.icacheConfig, params.memory)
		dc := mem.NewCachedMemory(params.dcacheConfig, params.memory)
		if params.memoryLimit != 0 {
			ic.SetLimit(params.memoryLimit)
			dc.SetLimit(params.memoryLimit)
		}
		core.icache = ic.Cache()
		core.dcache = dc.Cache()
		imem, dmem = ic, dc
	} else {
		config := params.latencies.Config()
		var fixedOpts []mem.FixedOption
		if params.memoryLimit != 0 {
			fixedOpts = append(fixedOpts, mem.WithLimit(params.memoryLimit))
		}
		imem = mem.NewFixedLatencyMemory(params.memory, config.FetchLatency, fixedOpts...)
		dmem = mem.NewFixedLatencyMemory(params.memory, config.MemoryLatency, fixedOpts...)
	}

	core.Engine = ooo.NewEngine(
		imem, dmem,
		ooo.WithConfig(params.engineConfig),
		ooo.WithLatencyTable(params.latencies),
		ooo.WithPredictorConfig(params.predictorConf),
	)
	return core
}

// Memory returns the backing memory.
func (c *Core) Memory() *emu.Memory {
	return c.memory
}

// LoadProgram writes instruction words into memory starting at addr.
func (c *Core) LoadProgram(addr uint32, words []uint32) {
	c.memory.LoadWords(addr, words)
}

// SetPC sets the program counter.
func (c *Core) SetPC(pc uint32) {
	c.Engine.SetPC(pc)
}

// Tick executes one core cycle.
func (c *Core) Tick() {
	c.Engine.Tick()
}

// Halted returns true if the core has halted at a breakpoint.
func (c *Core) Halted() bool {
	return c.Engine.Halted()
}

// Run executes the core until it halts or maxCycles elapse. It returns
// the number of cycles simulated.
func (c *Core) Run(maxCycles uint64) uint64 {
	return c.Engine.Run(maxCycles)
}

// RunCycles executes the core for the specified number of cycles.
// Returns true if still running, false if halted.
func (c *Core) RunCycles(cycles uint64) bool {
	c.Engine.Run(cycles)
	return !c.Engine.Halted()
}

// RegFile materializes the committed architectural register state.
func (c *Core) RegFile() *emu.RegFile {
	return c.Engine.RegFile()
}

// CSRs returns the core's CSR file.
func (c *Core) CSRs() *emu.CSRFile {
	return c.Engine.CSRs()
}

// DebugHalt pauses the core through the debug interface.
func (c *Core) DebugHalt() {
	c.Engine.DebugHalt()
}

// DebugResume resumes a debug-halted core.
func (c *Core) DebugResume() {
	c.Engine.DebugResume()
}

// SetInterrupt raises or clears an interrupt line.
func (c *Core) SetInterrupt(cause uint32, pending bool) {
	c.Engine.SetInterrupt(cause, pending)
}

// ICacheStats returns instruction cache statistics, if caches are
// configured.
func (c *Core) ICacheStats() (cache.Statistics, bool) {
	if c.icache == nil {
		return cache.Statistics{}, false
	}
	return c.icache.Stats(), true
}

// DCacheStats returns data cache statistics, if caches are configured.
func (c *Core) DCacheStats() (cache.Statistics, bool) {
	if c.dcache == nil {
		return cache.Statistics{}, false
	}
	return c.dcache.Stats(), true
}

// Stats returns performance statistics for the core.
func (c *Core) Stats() Stats {
	engineStats := c.Engine.Stats()
	lsqStats := c.Engine.LSQStats()
	return Stats{
		Cycles:           engineStats.Cycles,
		Instructions:     engineStats.Retired,
		Flushes:          engineStats.Flushes,
		BranchesResolved: engineStats.BranchesResolved,
		Mispredictions:   engineStats.Mispredictions,
		ForwardedLoads:   lsqStats.ForwardedLoads,
		Exceptions:       engineStats.Exceptions,
		Interrupts:       engineStats.Interrupts,
	}
}
