package mem_test

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/sarchlab/r5sim/emu"
	"github.com/sarchlab/r5sim/timing/cache"
	"github.com/sarchlab/r5sim/timing/mem"
)

var _ = Describe("FixedLatencyMemory", func() {
	var backing *emu.Memory

	BeforeEach(func() {
		backing = emu.NewMemory()
	})

	It("should acknowledge a latency-1 fetch on the first poll", func() {
		backing.Write32(0x100, 0xAABBCCDD)
		m := mem.NewFixedLatencyMemory(backing, 1)

		word, done, fault := m.Fetch(0x100)
		Expect(done).To(BeTrue())
		Expect(fault.Valid).To(BeFalse())
		Expect(word).To(Equal(uint32(0xAABBCCDD)))
	})

	It("should hold a request for the configured latency", func() {
		backing.Write32(0x100, 0x12345678)
		m := mem.NewFixedLatencyMemory(backing, 3)

		_, done, _ := m.Fetch(0x100)
		Expect(done).To(BeFalse())
		_, done, _ = m.Fetch(0x100)
		Expect(done).To(BeFalse())
		word, done, _ := m.Fetch(0x100)
		Expect(done).To(BeTrue())
		Expect(word).To(Equal(uint32(0x12345678)))
	})

	It("should restart the transaction when the address changes", func() {
		m := mem.NewFixedLatencyMemory(backing, 2)
		_, done, _ := m.Fetch(0x100)
		Expect(done).To(BeFalse())

		// Redirect: new address restarts the countdown.
		_, done, _ = m.Fetch(0x200)
		Expect(done).To(BeFalse())
		_, done, _ = m.Fetch(0x200)
		Expect(done).To(BeTrue())
	})

	It("should perform sized loads and stores", func() {
		m := mem.NewFixedLatencyMemory(backing, 1)

		_, done, fault := m.Access(mem.DataRequest{
			Addr: 0x200, IsWrite: true, Data: 0xDEADBEEF, Size: 4,
		})
		Expect(done).To(BeTrue())
		Expect(fault.Valid).To(BeFalse())
		Expect(backing.Read32(0x200)).To(Equal(uint32(0xDEADBEEF)))

		data, done, _ := m.Access(mem.DataRequest{Addr: 0x200, Size: 1})
		Expect(done).To(BeTrue())
		Expect(data).To(Equal(uint32(0xEF)))

		data, done, _ = m.Access(mem.DataRequest{Addr: 0x200, Size: 2})
		Expect(done).To(BeTrue())
		Expect(data).To(Equal(uint32(0xBEEF)))
	})

	It("should fault on addresses past the limit", func() {
		m := mem.NewFixedLatencyMemory(backing, 1, mem.WithLimit(0x1000))

		_, done, fault := m.Fetch(0x1000)
		Expect(done).To(BeTrue())
		Expect(fault.Valid).To(BeTrue())
		Expect(fault.Cause).To(Equal(uint32(emu.CauseInstAccessFault)))

		_, done, fault = m.Access(mem.DataRequest{Addr: 0x2000, IsWrite: true, Size: 4})
		Expect(done).To(BeTrue())
		Expect(fault.Cause).To(Equal(uint32(emu.CauseStoreAccessFault)))
	})

	It("should abandon a transaction on Cancel", func() {
		backing.Write32(0x100, 7)
		m := mem.NewFixedLatencyMemory(backing, 3)

		_, done, _ := m.Fetch(0x100)
		Expect(done).To(BeFalse())
		m.Cancel()

		// The countdown restarts from scratch.
		_, done, _ = m.Fetch(0x100)
		Expect(done).To(BeFalse())
		_, done, _ = m.Fetch(0x100)
		Expect(done).To(BeFalse())
		_, done, _ = m.Fetch(0x100)
		Expect(done).To(BeTrue())
	})
})

var _ = Describe("CachedMemory", func() {
	var (
		backing *emu.Memory
		m       *mem.CachedMemory
	)

	BeforeEach(func() {
		backing = emu.NewMemory()
		m = mem.NewCachedMemory(cache.Config{
			Size:          256,
			Associativity: 2,
			BlockSize:     64,
			HitLatency:    1,
			MissLatency:   3,
		}, backing)
	})

	It("should take the miss latency cold and the hit latency warm", func() {
		backing.Write32(0x100, 42)

		polls := 0
		for {
			polls++
			_, done, _ := m.Access(mem.DataRequest{Addr: 0x100, Size: 4})
			if done {
				break
			}
		}
		Expect(polls).To(Equal(3))

		data, done, _ := m.Access(mem.DataRequest{Addr: 0x100, Size: 4})
		Expect(done).To(BeTrue())
		Expect(data).To(Equal(uint32(42)))
	})

	It("should serve fetches through the cache", func() {
		backing.Write32(0x400, 0x00000013)
		var word uint32
		for {
			w, done, fault := m.Fetch(0x400)
			Expect(fault.Valid).To(BeFalse())
			if done {
				word = w
				break
			}
		}
		Expect(word).To(Equal(uint32(0x00000013)))
	})

	It("should fault past the limit", func() {
		m.SetLimit(0x1000)
		_, done, fault := m.Access(mem.DataRequest{Addr: 0x1000, Size: 4})
		Expect(done).To(BeTrue())
		Expect(fault.Valid).To(BeTrue())
	})

	It("should expose cache statistics", func() {
		for {
			_, done, _ := m.Access(mem.DataRequest{Addr: 0x100, Size: 4})
			if done {
				break
			}
		}
		Expect(m.Cache().Stats().Misses).To(Equal(uint64(1)))
	})
})
