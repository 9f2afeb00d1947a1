// Package main provides the entry point for r5sim, a cycle-level
// RV32 out-of-order CPU simulator.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/loader"
	"github.com/sarchlab/r5sim/timing/cache"
	"github.com/sarchlab/r5sim/timing/core"
	"github.com/sarchlab/r5sim/timing/latency"
)

var (
	configPath string
	maxCycles  uint64
	useCaches  bool
	verbose    bool

	maxInsts uint64
)

func main() {
	rootCmd := &cobra.Command{
		Use:          "r5sim",
		Short:        "r5sim is a cycle-level RV32 out-of-order CPU simulator",
		SilenceUsage: true,
	}

	runCmd := &cobra.Command{
		Use:   "run <program.elf>",
		Short: "Run a program on the out-of-order timing model",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runTiming(args[0])
		},
	}
	runCmd.Flags().StringVar(&configPath, "config", "", "path to timing configuration JSON file")
	runCmd.Flags().Uint64Var(&maxCycles, "max-cycles", 100_000_000, "cycle limit")
	runCmd.Flags().BoolVar(&useCaches, "caches", false, "model L1 instruction and data caches")
	runCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	emuCmd := &cobra.Command{
		Use:   "emu <program.elf>",
		Short: "Run a program on the functional emulator",
		Args:  cobra.ExactArgs(1),
		RunE: func(_ *cobra.Command, args []string) error {
			return runEmulation(args[0])
		},
	}
	emuCmd.Flags().Uint64Var(&maxInsts, "max-insts", 0, "instruction limit (0 = unlimited)")
	emuCmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "verbose output")

	rootCmd.AddCommand(runCmd, emuCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func loadProgram(path string) (*loader.Program, *emu.Memory, error) {
	prog, err := loader.Load(path)
	if err != nil {
		return nil, nil, fmt.Errorf("loading program: %w", err)
	}

	memory := emu.NewMemory()
	prog.Apply(memory)

	if verbose {
		fmt.Printf("Loaded: %s\n", path)
		fmt.Printf("Entry point: 0x%X\n", prog.EntryPoint)
		fmt.Printf("Segments: %d\n", len(prog.Segments))
	}
	return prog, memory, nil
}

func runEmulation(path string) error {
	prog, memory, err := loadProgram(path)
	if err != nil {
		return err
	}

	opts := []emu.EmulatorOption{emu.WithMemory(memory)}
	if maxInsts > 0 {
		opts = append(opts, emu.WithMaxInstructions(maxInsts))
	}
	emulator := emu.NewEmulator(opts...)
	emulator.RegFile().X[2] = prog.InitialSP
	emulator.SetPC(prog.EntryPoint)
	emulator.Run()

	fmt.Printf("Program: %s\n", path)
	fmt.Printf("Instructions executed: %d\n", emulator.InstructionCount())
	return nil
}

func runTiming(path string) error {
	timingConfig := latency.DefaultTimingConfig()
	if configPath != "" {
		loaded, err := latency.LoadConfig(configPath)
		if err != nil {
			return fmt.Errorf("loading timing config: %w", err)
		}
		timingConfig = loaded
	}

	prog, memory, err := loadProgram(path)
	if err != nil {
		return err
	}

	opts := []core.CoreOption{
		core.WithMemory(memory),
		core.WithLatencyConfig(*timingConfig),
	}
	if useCaches {
		opts = append(opts, core.WithCaches(cache.DefaultL1IConfig(), cache.DefaultL1DConfig()))
	}

	c := core.NewCore(opts...)
	c.Engine.SetPC(prog.EntryPoint)
	c.Run(maxCycles)

	if !c.Halted() {
		fmt.Fprintf(os.Stderr, "warning: cycle limit reached before the program halted\n")
	}

	printReport(path, c)
	return nil
}

func printReport(path string, c *core.Core) {
	stats := c.Stats()
	predStats := c.Engine.PredictorStats()
	lsqStats := c.Engine.LSQStats()

	fmt.Printf("\n")
	fmt.Printf("Program: %s\n", path)
	fmt.Printf("Total Instructions: %d\n", stats.Instructions)
	fmt.Printf("Total Cycles: %d\n", stats.Cycles)
	fmt.Printf("IPC: %.2f\n", stats.IPC())
	fmt.Printf("\n")
	fmt.Printf("Branches:\n")
	fmt.Printf("  Resolved:       %d\n", stats.BranchesResolved)
	fmt.Printf("  Mispredictions: %d\n", stats.Mispredictions)
	fmt.Printf("  Accuracy:       %.1f%%\n", predStats.Accuracy())
	fmt.Printf("\n")
	fmt.Printf("Memory:\n")
	fmt.Printf("  Loads from memory:     %d\n", lsqStats.MemoryLoads)
	fmt.Printf("  Forwarded loads:       %d\n", lsqStats.ForwardedLoads)
	fmt.Printf("  Disambiguation stalls: %d\n", lsqStats.DisambiguationStalls)
	fmt.Printf("  Committed stores:      %d\n", lsqStats.CommittedStores)

	if icStats, ok := c.ICacheStats(); ok {
		dcStats, _ := c.DCacheStats()
		fmt.Printf("\n")
		fmt.Printf("Caches:\n")
		fmt.Printf("  L1I hit rate: %.1f%% (%d accesses)\n",
			icStats.HitRate(), icStats.Hits+icStats.Misses)
		fmt.Printf("  L1D hit rate: %.1f%% (%d accesses)\n",
			dcStats.HitRate(), dcStats.Hits+dcStats.Misses)
	}

	fmt.Printf("\n")
	fmt.Printf("Pipeline Events:\n")
	fmt.Printf("  Flushes:    %d\n", stats.Flushes)
	fmt.Printf("  Exceptions: %d\n", stats.Exceptions)
	fmt.Printf("  Interrupts: %d\n", stats.Interrupts)
}
