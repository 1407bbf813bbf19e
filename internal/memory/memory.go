// Package memory implements the CPU-visible address bus: RAM
// mirroring, memory-mapped device delegation, and OAM-DMA.
package memory

import (
	"fmt"

	"github.com/mwasson/nescore/internal/cartridge"
)

// MemoryListener is implemented by devices that own one or more
// memory-mapped addresses (PPU registers, APU registers, the
// controller strobe/shift-register latch). The bus is passed to
// OnWrite/OnRead so a listener can perform bus-side effects without
// holding a reference back to the bus itself. OAM-DMA does not go
// through a listener: the bus copies the block into its OAMTarget.
type MemoryListener interface {
	OnRead(bus *Bus, addr uint16) byte
	OnWrite(bus *Bus, addr uint16, value byte)
}

// OAMTarget is implemented by the PPU to receive the 256-byte block an
// OAM-DMA write transfers. offset is the index within the transfer; the
// target applies its own OAMADDR base and page wrap.
type OAMTarget interface {
	DMAWrite(offset byte, value byte)
}

// Bus is the CPU-visible 16-bit address space: 2 KiB of internal RAM,
// memory-mapped registers delegated to listeners, and cartridge space
// delegated to the mapper.
type Bus struct {
	ram       [2048]byte
	mapper    cartridge.Mapper
	listeners map[uint16]MemoryListener
	oam       OAMTarget

	// TotalCPUCycles is advanced by the CPU after each step by that
	// step's cycle count. It exists
	// here, rather than inside the CPU, solely so OAM-DMA can read the
	// even/odd parity needed to decide between a 513- and 514-cycle
	// stall without the bus holding a reference to the CPU.
	TotalCPUCycles uint64

	// StallCycles is set by an OAM-DMA write and drained by the CPU
	// before its next instruction fetch.
	StallCycles int
}

// New constructs a Bus backed by the given mapper.
func New(mapper cartridge.Mapper) *Bus {
	return &Bus{
		mapper:    mapper,
		listeners: make(map[uint16]MemoryListener),
	}
}

// Register declares that l owns each address in addrs. Registering an
// already-claimed address is a programming error and panics
// immediately rather than silently overwriting the prior owner.
func (b *Bus) Register(l MemoryListener, addrs ...uint16) {
	for _, addr := range addrs {
		if _, exists := b.listeners[addr]; exists {
			panic(fmt.Sprintf("memory: address $%04X already has a registered listener", addr))
		}
		b.listeners[addr] = l
	}
}

// RegisterOAM declares the OAM-DMA destination for $4014 writes.
func (b *Bus) RegisterOAM(t OAMTarget) {
	b.oam = t
}

// AddCPUCycles advances the CPU-cycle counter used for OAM-DMA parity.
func (b *Bus) AddCPUCycles(n uint64) {
	b.TotalCPUCycles += n
}

// Read returns the byte at addr, applying RAM and PPU-register
// mirroring and delegating to listeners or the mapper as appropriate.
func (b *Bus) Read(addr uint16) byte {
	switch {
	case addr < 0x2000:
		return b.ram[addr&0x07FF]
	case addr < 0x4000:
		reg := 0x2000 | (addr & 0x0007)
		if l, ok := b.listeners[reg]; ok {
			return l.OnRead(b, reg)
		}
		return 0
	case addr < 0x4018:
		if l, ok := b.listeners[addr]; ok {
			return l.OnRead(b, addr)
		}
		return 0
	default:
		return b.mapper.ReadPRG(addr)
	}
}

// ReadNoListen reads RAM or cartridge space directly, bypassing any
// registered listener. Used by OAM-DMA, which must read the 256-byte
// source block without re-entering a listener's read path.
func (b *Bus) ReadNoListen(addr uint16) byte {
	switch {
	case addr < 0x2000:
		return b.ram[addr&0x07FF]
	case addr >= 0x4020:
		return b.mapper.ReadPRG(addr)
	default:
		return 0
	}
}

// Write stores value at addr, applying mirroring, triggering OAM-DMA
// on $4014, and delegating to listeners or the mapper.
func (b *Bus) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		b.ram[addr&0x07FF] = value
	case addr < 0x4000:
		reg := 0x2000 | (addr & 0x0007)
		if l, ok := b.listeners[reg]; ok {
			l.OnWrite(b, reg, value)
		}
	case addr == 0x4014:
		b.runOAMDMA(value)
	case addr < 0x4018:
		if l, ok := b.listeners[addr]; ok {
			l.OnWrite(b, addr, value)
		}
	default:
		b.mapper.WritePRG(addr, value)
	}
}

func (b *Bus) runOAMDMA(page byte) {
	if b.oam == nil {
		return
	}
	base := uint16(page) << 8
	for i := 0; i < 256; i++ {
		v := b.ReadNoListen(base + uint16(i))
		b.oam.DMAWrite(byte(i), v)
	}
	if b.TotalCPUCycles%2 == 1 {
		b.StallCycles += 514
	} else {
		b.StallCycles += 513
	}
}

// Read16 returns the little-endian 16-bit value at addr and addr+1.
func (b *Bus) Read16(addr uint16) uint16 {
	lo := uint16(b.Read(addr))
	hi := uint16(b.Read(addr + 1))
	return lo | hi<<8
}

// Read16Bug reproduces the 6502 indirect-JMP page-wrap bug: the high
// byte is fetched from the same page as the low byte, wrapping within
// that page rather than crossing into the next one.
func (b *Bus) Read16Bug(addr uint16) uint16 {
	lo := uint16(b.Read(addr))
	hiAddr := (addr & 0xFF00) | uint16(byte(addr)+1)
	hi := uint16(b.Read(hiAddr))
	return lo | hi<<8
}

// Mapper exposes the underlying cartridge mapper, e.g. for the PPU's
// CHR/nametable-mirroring accesses.
func (b *Bus) Mapper() cartridge.Mapper {
	return b.mapper
}
