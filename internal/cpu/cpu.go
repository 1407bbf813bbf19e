// Package cpu implements a cycle-counting interpreter for the NTSC
// 6502-family CPU at the core of the console: fetch/decode/execute,
// addressing modes, flag semantics, and NMI servicing.
package cpu

import (
	"fmt"

	"github.com/mwasson/nescore/internal/memory"
)

// Status flag bit positions within P.
const (
	FlagC byte = 1 << 0 // carry
	FlagZ byte = 1 << 1 // zero
	FlagI byte = 1 << 2 // interrupt disable
	FlagD byte = 1 << 3 // decimal (unused on this variant, tracked for fidelity)
	FlagB byte = 1 << 4 // break, only meaningful in the pushed copy
	FlagU byte = 1 << 5 // unused, always observed as 1 when pushed
	FlagV byte = 1 << 6 // overflow
	FlagN byte = 1 << 7 // negative
)

const (
	stackBase   uint16 = 0x0100
	resetVector uint16 = 0xFFFC
	nmiVector   uint16 = 0xFFFA
	irqVector   uint16 = 0xFFFE
)

// AddrMode identifies a 6502 addressing mode.
type AddrMode int

const (
	Implicit AddrMode = iota
	Accumulator
	Immediate
	ZeroPage
	ZeroPageX
	ZeroPageY
	Relative
	Absolute
	AbsoluteX
	AbsoluteY
	Indirect
	IndirectX
	IndirectY
)

// instructionLength gives the byte length (opcode + operands) for
// each addressing mode.
var instructionLength = [...]byte{
	Implicit:    1,
	Accumulator: 1,
	Immediate:   2,
	ZeroPage:    2,
	ZeroPageX:   2,
	ZeroPageY:   2,
	Relative:    2,
	Absolute:    3,
	AbsoluteX:   3,
	AbsoluteY:   3,
	Indirect:    3,
	IndirectX:   2,
	IndirectY:   2,
}

// CPU is the 6502 interpreter. A is the accumulator, X/Y are index
// registers, S is the stack pointer, PC the program counter, and P the
// packed status byte (see the Flag* constants).
type CPU struct {
	A, X, Y, S byte
	PC         uint16
	P          byte

	Bus *memory.Bus

	// Cycles is the running total of CPU cycles (not master clocks)
	// consumed since Reset. It backs the scheduler's CycleCount and
	// RunCycles; OAM-DMA parity reads the bus's own TotalCPUCycles.
	Cycles uint64

	nmiPending bool
	irqLine    bool

	instructions [256]instruction
}

// New constructs a CPU wired to bus and populates its decode table.
func New(bus *memory.Bus) *CPU {
	c := &CPU{Bus: bus}
	c.buildInstructionTable()
	return c
}

// Reset loads PC from the reset vector, sets S to $FF, and sets the
// interrupt-disable flag, matching power-on/reset latch behavior.
func (c *CPU) Reset() {
	c.A, c.X, c.Y = 0, 0, 0
	c.S = 0xFF
	c.P = FlagU | FlagI
	c.PC = c.Bus.Read16(resetVector)
	c.Cycles = 0
}

// RequestNMI latches a pending non-maskable interrupt, serviced at the
// start of the next Step.
func (c *CPU) RequestNMI() {
	c.nmiPending = true
}

// SetIRQLine sets or clears the maskable interrupt line. The APU
// frame counter and DMC channel drive this.
func (c *CPU) SetIRQLine(asserted bool) {
	c.irqLine = asserted
}

// Step executes exactly one instruction (or services a pending
// interrupt, or drains an OAM-DMA stall) and returns the number of
// master-clock cycles consumed (CPU cycles × 12).
func (c *CPU) Step() int {
	if c.Bus.StallCycles > 0 {
		n := c.Bus.StallCycles
		c.Bus.StallCycles = 0
		c.Cycles += uint64(n)
		c.Bus.AddCPUCycles(uint64(n))
		return n * 12
	}

	if c.nmiPending {
		return c.serviceNMI() * 12
	}

	if c.irqLine && c.P&FlagI == 0 {
		return c.serviceIRQ() * 12
	}

	cycles := c.executeNext()
	c.Cycles += uint64(cycles)
	c.Bus.AddCPUCycles(uint64(cycles))
	return cycles * 12
}

func (c *CPU) serviceNMI() int {
	c.push16(c.PC)
	c.push(c.statusForPush())
	c.P |= FlagI
	c.PC = c.Bus.Read16(nmiVector)
	c.nmiPending = false
	c.Cycles += 7
	c.Bus.AddCPUCycles(7)
	return 7
}

func (c *CPU) serviceIRQ() int {
	c.push16(c.PC)
	c.push(c.statusForPush())
	c.P |= FlagI
	c.PC = c.Bus.Read16(irqVector)
	c.Cycles += 7
	c.Bus.AddCPUCycles(7)
	return 7
}

// statusForPush returns P as it is pushed to the stack: bit 4 (B)
// clear, bit 5 always set.
func (c *CPU) statusForPush() byte {
	return (c.P &^ FlagB) | FlagU
}

func (c *CPU) executeNext() int {
	opcode := c.Bus.Read(c.PC)
	inst := c.instructions[opcode]
	if inst.exec == nil {
		panic(fmt.Sprintf("cpu: unimplemented opcode $%02X at $%04X", opcode, c.PC))
	}

	addr, pageCrossed := c.resolveAddress(inst.mode)
	cycles := inst.cycles
	if inst.pageBoundary && pageCrossed {
		cycles++
	}

	startPC := c.PC
	extra := inst.exec(inst.mode, addr)
	cycles += extra

	// Instructions that assign PC directly (branches, jumps, returns,
	// BRK) are responsible for leaving it where they want; everything
	// else advances by its operand length.
	if !inst.movesPC {
		c.PC = startPC + uint16(instructionLength[inst.mode])
	}

	return cycles
}

// resolveAddress computes the effective address for mode, along with
// whether indexing crossed a page boundary (for cycle-penalty modes).
// It does not advance PC.
func (c *CPU) resolveAddress(mode AddrMode) (addr uint16, pageCrossed bool) {
	switch mode {
	case Implicit, Accumulator:
		return 0, false
	case Immediate:
		return c.PC + 1, false
	case ZeroPage:
		return uint16(c.Bus.Read(c.PC + 1)), false
	case ZeroPageX:
		return uint16(c.Bus.Read(c.PC+1) + c.X), false
	case ZeroPageY:
		return uint16(c.Bus.Read(c.PC+1) + c.Y), false
	case Relative:
		offset := int8(c.Bus.Read(c.PC + 1))
		base := c.PC + 2
		return uint16(int32(base) + int32(offset)), false
	case Absolute:
		return c.Bus.Read16(c.PC + 1), false
	case AbsoluteX:
		base := c.Bus.Read16(c.PC + 1)
		addr := base + uint16(c.X)
		return addr, pagesDiffer(base, addr)
	case AbsoluteY:
		base := c.Bus.Read16(c.PC + 1)
		addr := base + uint16(c.Y)
		return addr, pagesDiffer(base, addr)
	case Indirect:
		ptr := c.Bus.Read16(c.PC + 1)
		return c.Bus.Read16Bug(ptr), false
	case IndirectX:
		zp := c.Bus.Read(c.PC+1) + c.X
		lo := uint16(c.Bus.Read(uint16(zp)))
		hi := uint16(c.Bus.Read(uint16(zp + 1)))
		return lo | hi<<8, false
	case IndirectY:
		zp := c.Bus.Read(c.PC + 1)
		lo := uint16(c.Bus.Read(uint16(zp)))
		hi := uint16(c.Bus.Read(uint16(zp + 1)))
		base := lo | hi<<8
		addr := base + uint16(c.Y)
		return addr, pagesDiffer(base, addr)
	default:
		panic(fmt.Sprintf("cpu: unhandled addressing mode %d", mode))
	}
}

func pagesDiffer(a, b uint16) bool {
	return a&0xFF00 != b&0xFF00
}

func (c *CPU) push(v byte) {
	c.Bus.Write(stackBase+uint16(c.S), v)
	c.S--
}

func (c *CPU) pop() byte {
	c.S++
	return c.Bus.Read(stackBase + uint16(c.S))
}

func (c *CPU) push16(v uint16) {
	c.push(byte(v >> 8))
	c.push(byte(v))
}

func (c *CPU) pop16() uint16 {
	lo := uint16(c.pop())
	hi := uint16(c.pop())
	return lo | hi<<8
}

func (c *CPU) setZN(v byte) {
	if v == 0 {
		c.P |= FlagZ
	} else {
		c.P &^= FlagZ
	}
	if v&0x80 != 0 {
		c.P |= FlagN
	} else {
		c.P &^= FlagN
	}
}

func (c *CPU) setFlag(flag byte, on bool) {
	if on {
		c.P |= flag
	} else {
		c.P &^= flag
	}
}
