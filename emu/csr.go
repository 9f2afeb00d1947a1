package emu

// Machine-mode CSR addresses.
const (
	CSRFflags   = 0x001
	CSRMStatus  = 0x300
	CSRMISA     = 0x301
	CSRMIE      = 0x304
	CSRMTVec    = 0x305
	CSRMScratch = 0x340
	CSRMEPC     = 0x341
	CSRMCause   = 0x342
	CSRMTVal    = 0x343
	CSRMIP      = 0x344
	CSRMCycle   = 0xB00
	CSRMInstret = 0xB02
	CSRMHartID  = 0xF14
)

// mstatus bit positions.
const (
	mstatusMIE  = 1 << 3
	mstatusMPIE = 1 << 7
	mstatusMPP  = 3 << 11
)

// Exception cause codes (mcause values).
const (
	CauseInstAddrMisaligned  = 0
	CauseInstAccessFault     = 1
	CauseIllegalInstruction  = 2
	CauseBreakpoint          = 3
	CauseLoadAddrMisaligned  = 4
	CauseLoadAccessFault     = 5
	CauseStoreAddrMisaligned = 6
	CauseStoreAccessFault    = 7
	CauseECallFromU          = 8
	CauseECallFromM          = 11
	CauseInstPageFault       = 12
	CauseLoadPageFault       = 13
	CauseStorePageFault      = 15
)

// Interrupt cause codes. When latched into mcause the interrupt bit
// (bit 31) is also set.
const (
	IntSoftware = 3
	IntTimer    = 7
	IntExternal = 11

	causeInterruptBit = 1 << 31
)

// Privilege levels.
const (
	PrivUser    = 0
	PrivMachine = 3
)

// CSRFile is the flat machine-mode control register file. CSR side
// effects are never speculative: the out-of-order engine touches this
// file only at commit, and the functional emulator is in-order by
// construction.
type CSRFile struct {
	MStatus  uint32
	MTVec    uint32
	MScratch uint32
	MEPC     uint32
	MCause   uint32
	MTVal    uint32
	MIE      uint32
	MIP      uint32
	Fflags   uint32

	// Priv is the current privilege level.
	Priv uint8

	// Cycle and Instret back the mcycle/minstret counters. The timing
	// and functional engines advance these themselves.
	Cycle   uint64
	Instret uint64
}

// NewCSRFile creates a CSR file in the machine-mode reset state.
func NewCSRFile() *CSRFile {
	return &CSRFile{Priv: PrivMachine}
}

// Read reads a CSR. The second return value is false for unimplemented
// CSR addresses, which callers report as an illegal instruction.
func (c *CSRFile) Read(addr uint16) (uint32, bool) {
	switch addr {
	case CSRFflags:
		return c.Fflags, true
	case CSRMStatus:
		return c.MStatus, true
	case CSRMISA:
		// RV32IMF, machine mode.
		return 1<<30 | 1<<8 | 1<<12 | 1<<5, true
	case CSRMIE:
		return c.MIE, true
	case CSRMTVec:
		return c.MTVec, true
	case CSRMScratch:
		return c.MScratch, true
	case CSRMEPC:
		return c.MEPC, true
	case CSRMCause:
		return c.MCause, true
	case CSRMTVal:
		return c.MTVal, true
	case CSRMIP:
		return c.MIP, true
	case CSRMCycle:
		return uint32(c.Cycle), true
	case CSRMInstret:
		return uint32(c.Instret), true
	case CSRMHartID:
		return 0, true
	}
	return 0, false
}

// Write writes a CSR. Writes to read-only or unimplemented CSRs return
// false and take no effect.
func (c *CSRFile) Write(addr uint16, value uint32) bool {
	switch addr {
	case CSRFflags:
		c.Fflags = value & 0x1F
	case CSRMStatus:
		c.MStatus = value
	case CSRMIE:
		c.MIE = value
	case CSRMTVec:
		c.MTVec = value &^ 0x3 // direct mode only
	case CSRMScratch:
		c.MScratch = value
	case CSRMEPC:
		c.MEPC = value &^ 0x1
	case CSRMCause:
		c.MCause = value
	case CSRMTVal:
		c.MTVal = value
	case CSRMIP:
		c.MIP = value
	case CSRMISA, CSRMHartID, CSRMCycle, CSRMInstret:
		return false
	default:
		return false
	}
	return true
}

// InterruptsEnabled returns true if machine interrupts are globally
// enabled in mstatus.
func (c *CSRFile) InterruptsEnabled() bool {
	return c.MStatus&mstatusMIE != 0
}

// PendingInterrupt returns the highest-priority enabled pending
// interrupt cause, if any. Priority order is external, software, timer,
// matching the conventional machine-level ordering.
func (c *CSRFile) PendingInterrupt() (uint32, bool) {
	if !c.InterruptsEnabled() {
		return 0, false
	}
	pending := c.MIP & c.MIE
	switch {
	case pending&(1<<IntExternal) != 0:
		return IntExternal, true
	case pending&(1<<IntSoftware) != 0:
		return IntSoftware, true
	case pending&(1<<IntTimer) != 0:
		return IntTimer, true
	}
	return 0, false
}

// SetInterruptPending sets or clears one mip bit.
func (c *CSRFile) SetInterruptPending(cause uint32, pending bool) {
	if pending {
		c.MIP |= 1 << cause
	} else {
		c.MIP &^= 1 << cause
	}
}

// TrapException enters the trap handler for a synchronous exception.
// It latches epc/cause/tval, stacks the interrupt-enable state, raises
// the privilege to machine mode, and returns the handler address.
func (c *CSRFile) TrapException(epc, cause, tval uint32) uint32 {
	return c.trap(epc, cause, tval)
}

// TrapInterrupt enters the trap handler for an asynchronous interrupt.
// epc is the PC of the instruction that would have committed next.
func (c *CSRFile) TrapInterrupt(epc, cause uint32) uint32 {
	return c.trap(epc, cause|causeInterruptBit, 0)
}

func (c *CSRFile) trap(epc, cause, tval uint32) uint32 {
	c.MEPC = epc
	c.MCause = cause
	c.MTVal = tval

	// Stack MIE into MPIE and the privilege into MPP.
	c.MStatus &^= mstatusMPIE | mstatusMPP
	if c.MStatus&mstatusMIE != 0 {
		c.MStatus |= mstatusMPIE
	}
	c.MStatus |= uint32(c.Priv) << 11
	c.MStatus &^= mstatusMIE
	c.Priv = PrivMachine

	return c.MTVec
}

// Return reverses a trap entry (MRET): restores the interrupt-enable
// state and privilege, and returns the saved exception PC.
func (c *CSRFile) Return() uint32 {
	c.MStatus &^= mstatusMIE
	if c.MStatus&mstatusMPIE != 0 {
		c.MStatus |= mstatusMIE
	}
	c.MStatus |= mstatusMPIE
	c.Priv = uint8((c.MStatus & mstatusMPP) >> 11)
	c.MStatus &^= mstatusMPP
	return c.MEPC
}
