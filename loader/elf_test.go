package loader_test

import (
	"encoding/binary"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/loader"
)

var _ = Describe("ELF Loader", func() {
	var tempDir string

	// addi a0, zero, 42; ret
	rv32Code := []byte{
		0x13, 0x05, 0xA0, 0x02,
		0x67, 0x80, 0x00, 0x00,
	}

	BeforeEach(func() {
		var err error
		tempDir, err = os.MkdirTemp("", "elf-loader-test")
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		_ = os.RemoveAll(tempDir)
	})

	Describe("Load", func() {
		Context("with a valid RV32 ELF binary", func() {
			var elfPath string

			BeforeEach(func() {
				elfPath = filepath.Join(tempDir, "test.elf")
				createRV32ELF(elfPath, 0x1080, []elfSegment{
					{vaddr: 0x1000, data: rv32Code, memsz: uint32(len(rv32Code)), flags: 0x5},
				})
			})

			It("should load without error", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog).NotTo(BeNil())
			})

			It("should extract the correct entry point", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.EntryPoint).To(Equal(uint32(0x1080)))
			})

			It("should load segment contents", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].VirtAddr).To(Equal(uint32(0x1000)))
				Expect(prog.Segments[0].Data).To(Equal(rv32Code))
				Expect(prog.Segments[0].Flags & loader.SegmentFlagExecute).NotTo(BeZero())
			})

			It("should set up the initial stack pointer", func() {
				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.InitialSP).To(Equal(uint32(loader.DefaultStackTop)))
			})
		})

		Context("with multiple segments", func() {
			It("should load every PT_LOAD segment", func() {
				elfPath := filepath.Join(tempDir, "multi.elf")
				dataBytes := []byte{0x01, 0x02, 0x03, 0x04}
				createRV32ELF(elfPath, 0x1000, []elfSegment{
					{vaddr: 0x1000, data: rv32Code, memsz: uint32(len(rv32Code)), flags: 0x5},
					{vaddr: 0x4000, data: dataBytes, memsz: uint32(len(dataBytes)), flags: 0x6},
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(2))
				Expect(prog.Segments[1].Data).To(Equal(dataBytes))
				Expect(prog.Segments[1].Flags & loader.SegmentFlagWrite).NotTo(BeZero())
			})
		})

		Context("with a BSS segment", func() {
			It("should keep Memsz larger than the file data", func() {
				elfPath := filepath.Join(tempDir, "bss.elf")
				initial := []byte{0xAA, 0xBB}
				createRV32ELF(elfPath, 0x1000, []elfSegment{
					{vaddr: 0x4000, data: initial, memsz: 1024, flags: 0x6},
				})

				prog, err := loader.Load(elfPath)
				Expect(err).NotTo(HaveOccurred())
				Expect(prog.Segments).To(HaveLen(1))
				Expect(prog.Segments[0].Data).To(Equal(initial))
				Expect(prog.Segments[0].MemSize).To(Equal(uint32(1024)))
			})
		})

		Context("with an invalid file", func() {
			It("should return an error for a non-existent file", func() {
				_, err := loader.Load(filepath.Join(tempDir, "missing.elf"))
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("failed to open"))
			})

			It("should return an error for a non-ELF file", func() {
				notElf := filepath.Join(tempDir, "not-elf.bin")
				Expect(os.WriteFile(notElf, []byte("not an elf file"), 0644)).To(Succeed())

				_, err := loader.Load(notElf)
				Expect(err).To(HaveOccurred())
			})
		})

		Context("with a 64-bit ELF", func() {
			It("should reject it", func() {
				elfPath := filepath.Join(tempDir, "elf64.elf")
				createELF64(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a 32-bit"))
			})
		})

		Context("with a non-RISC-V ELF", func() {
			It("should reject it", func() {
				elfPath := filepath.Join(tempDir, "x86.elf")
				createX86ELF(elfPath)

				_, err := loader.Load(elfPath)
				Expect(err).To(HaveOccurred())
				Expect(err.Error()).To(ContainSubstring("not a RISC-V"))
			})
		})
	})

	Describe("Apply", func() {
		It("should copy segments into memory and zero the BSS", func() {
			elfPath := filepath.Join(tempDir, "apply.elf")
			initial := []byte{0x11, 0x22, 0x33, 0x44}
			createRV32ELF(elfPath, 0x1000, []elfSegment{
				{vaddr: 0x4000, data: initial, memsz: 16, flags: 0x6},
			})

			prog, err := loader.Load(elfPath)
			Expect(err).NotTo(HaveOccurred())

			memory := emu.NewMemory()
			// Pre-dirty the BSS range to verify zeroing.
			memory.Write32(0x4008, 0xFFFFFFFF)
			prog.Apply(memory)

			Expect(memory.Read32(0x4000)).To(Equal(uint32(0x44332211)))
			Expect(memory.Read32(0x4008)).To(Equal(uint32(0)))
		})
	})
})

type elfSegment struct {
	vaddr uint32
	data  []byte
	memsz uint32
	flags uint32
}

// createRV32ELF writes a minimal valid little-endian RV32 ELF
// executable with the given PT_LOAD segments.
func createRV32ELF(path string, entryPoint uint32, segments []elfSegment) {
	const (
		ehSize = 52
		phSize = 32
	)

	header := make([]byte, ehSize)
	copy(header[0:4], []byte{0x7F, 'E', 'L', 'F'})
	header[4] = 1 // ELFCLASS32
	header[5] = 1 // little endian
	header[6] = 1 // version
	binary.LittleEndian.PutUint16(header[16:18], 2)   // ET_EXEC
	binary.LittleEndian.PutUint16(header[18:20], 243) // EM_RISCV
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint32(header[24:28], entryPoint)
	binary.LittleEndian.PutUint32(header[28:32], ehSize) // phoff
	binary.LittleEndian.PutUint32(header[32:36], 0)      // shoff
	binary.LittleEndian.PutUint32(header[36:40], 0)      // flags
	binary.LittleEndian.PutUint16(header[40:42], ehSize)
	binary.LittleEndian.PutUint16(header[42:44], phSize)
	binary.LittleEndian.PutUint16(header[44:46], uint16(len(segments)))

	dataOffset := uint32(ehSize + phSize*len(segments))
	var phdrs []byte
	var payload []byte
	for _, seg := range segments {
		ph := make([]byte, phSize)
		binary.LittleEndian.PutUint32(ph[0:4], 1) // PT_LOAD
		binary.LittleEndian.PutUint32(ph[4:8], dataOffset+uint32(len(payload)))
		binary.LittleEndian.PutUint32(ph[8:12], seg.vaddr)
		binary.LittleEndian.PutUint32(ph[12:16], seg.vaddr)
		binary.LittleEndian.PutUint32(ph[16:20], uint32(len(seg.data)))
		binary.LittleEndian.PutUint32(ph[20:24], seg.memsz)
		binary.LittleEndian.PutUint32(ph[24:28], seg.flags)
		binary.LittleEndian.PutUint32(ph[28:32], 0x1000)
		phdrs = append(phdrs, ph...)
		payload = append(payload, seg.data...)
	}

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
	_, _ = file.Write(phdrs)
	_, _ = file.Write(payload)
}

// createELF64 writes a minimal 64-bit RISC-V ELF to test rejection.
func createELF64(path string) {
	header := make([]byte, 64)
	copy(header[0:4], []byte{0x7F, 'E', 'L', 'F'})
	header[4] = 2 // ELFCLASS64
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], 243)
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[52:54], 64) // ehsize
	binary.LittleEndian.PutUint16(header[54:56], 56) // phentsize

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}

// createX86ELF writes a minimal 32-bit x86 ELF to test rejection.
func createX86ELF(path string) {
	header := make([]byte, 52)
	copy(header[0:4], []byte{0x7F, 'E', 'L', 'F'})
	header[4] = 1
	header[5] = 1
	header[6] = 1
	binary.LittleEndian.PutUint16(header[16:18], 2)
	binary.LittleEndian.PutUint16(header[18:20], 3) // EM_386
	binary.LittleEndian.PutUint32(header[20:24], 1)
	binary.LittleEndian.PutUint16(header[40:42], 52)
	binary.LittleEndian.PutUint16(header[42:44], 32)

	file, _ := os.Create(path)
	defer func() { _ = file.Close() }()
	_, _ = file.Write(header)
}
