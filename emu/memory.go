package emu

// pageSize is the granularity of the sparse backing store. 4KB matches
// the architectural page size but is otherwise arbitrary.
const pageSize = 4096

// Memory is a sparse, page-granular byte-addressable memory.
// All accesses are little-endian. Unwritten memory reads as zero.
type Memory struct {
	pages map[uint32]*[pageSize]byte
}

// NewMemory creates an empty memory.
func NewMemory() *Memory {
	return &Memory{pages: make(map[uint32]*[pageSize]byte)}
}

func (m *Memory) page(addr uint32, create bool) *[pageSize]byte {
	base := addr &^ (pageSize - 1)
	p, ok := m.pages[base]
	if !ok && create {
		p = new([pageSize]byte)
		m.pages[base] = p
	}
	return p
}

// Read8 reads one byte.
func (m *Memory) Read8(addr uint32) uint8 {
	p := m.page(addr, false)
	if p == nil {
		return 0
	}
	return p[addr%pageSize]
}

// Write8 writes one byte.
func (m *Memory) Write8(addr uint32, value uint8) {
	m.page(addr, true)[addr%pageSize] = value
}

// Read16 reads a little-endian halfword.
func (m *Memory) Read16(addr uint32) uint16 {
	return uint16(m.Read8(addr)) | uint16(m.Read8(addr+1))<<8
}

// Write16 writes a little-endian halfword.
func (m *Memory) Write16(addr uint32, value uint16) {
	m.Write8(addr, uint8(value))
	m.Write8(addr+1, uint8(value>>8))
}

// Read32 reads a little-endian word.
func (m *Memory) Read32(addr uint32) uint32 {
	return uint32(m.Read16(addr)) | uint32(m.Read16(addr+2))<<16
}

// Write32 writes a little-endian word.
func (m *Memory) Write32(addr uint32, value uint32) {
	m.Write16(addr, uint16(value))
	m.Write16(addr+2, uint16(value>>16))
}

// ReadBytes reads size bytes starting at addr.
func (m *Memory) ReadBytes(addr uint32, size int) []byte {
	data := make([]byte, size)
	for i := range data {
		data[i] = m.Read8(addr + uint32(i))
	}
	return data
}

// WriteBytes writes data starting at addr.
func (m *Memory) WriteBytes(addr uint32, data []byte) {
	for i, b := range data {
		m.Write8(addr+uint32(i), b)
	}
}

// LoadWords writes a sequence of 32-bit words starting at addr.
// Convenient for loading small test programs.
func (m *Memory) LoadWords(addr uint32, words []uint32) {
	for i, w := range words {
		m.Write32(addr+uint32(i)*4, w)
	}
}
