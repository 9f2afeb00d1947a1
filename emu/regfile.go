// Package emu provides functional RV32 emulation.
package emu

// RegFile represents the RV32 architectural register state.
// It contains 32 integer registers (x0-x31), 32 single-precision
// floating-point registers (f0-f31, stored as raw bits), and the
// program counter.
type RegFile struct {
	// X holds integer registers x0-x31. X[0] is the zero register and
	// always reads as 0.
	X [32]uint32

	// F holds floating-point registers f0-f31 as raw IEEE-754 bits.
	F [32]uint32

	// PC is the program counter.
	PC uint32
}

// ReadReg reads an integer register. Register 0 returns 0.
func (r *RegFile) ReadReg(reg uint8) uint32 {
	if reg == 0 || reg >= 32 {
		return 0
	}
	return r.X[reg]
}

// WriteReg writes an integer register. Writes to register 0 are ignored.
func (r *RegFile) WriteReg(reg uint8, value uint32) {
	if reg == 0 || reg >= 32 {
		return
	}
	r.X[reg] = value
}

// ReadFPReg reads a floating-point register as raw bits.
func (r *RegFile) ReadFPReg(reg uint8) uint32 {
	if reg >= 32 {
		return 0
	}
	return r.F[reg]
}

// WriteFPReg writes a floating-point register as raw bits.
func (r *RegFile) WriteFPReg(reg uint8, value uint32) {
	if reg >= 32 {
		return
	}
	r.F[reg] = value
}
