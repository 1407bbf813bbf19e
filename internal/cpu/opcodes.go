package cpu

// instruction describes one decoded opcode slot: its mnemonic (for
// diagnostics), addressing mode, base cycle count, whether indexed
// addressing-mode page crossing adds a cycle, whether the handler
// assigns PC itself, and the handler. exec returns any additional
// runtime cycle penalty (branches taken / taken-across-page).
type instruction struct {
	name         string
	mode         AddrMode
	cycles       int
	pageBoundary bool
	movesPC      bool
	exec         func(mode AddrMode, addr uint16) int
}

func (c *CPU) define(op byte, name string, mode AddrMode, cycles int, pageBoundary bool, exec func(mode AddrMode, addr uint16) int) {
	c.instructions[op] = instruction{name: name, mode: mode, cycles: cycles, pageBoundary: pageBoundary, exec: exec}
}

func (c *CPU) defineJump(op byte, name string, mode AddrMode, cycles int, exec func(mode AddrMode, addr uint16) int) {
	c.instructions[op] = instruction{name: name, mode: mode, cycles: cycles, movesPC: true, exec: exec}
}

func noop(mode AddrMode, addr uint16) int { return 0 }

func (c *CPU) buildInstructionTable() {
	// Loads / stores.
	c.define(0xA9, "LDA", Immediate, 2, false, c.opLDA)
	c.define(0xA5, "LDA", ZeroPage, 3, false, c.opLDA)
	c.define(0xB5, "LDA", ZeroPageX, 4, false, c.opLDA)
	c.define(0xAD, "LDA", Absolute, 4, false, c.opLDA)
	c.define(0xBD, "LDA", AbsoluteX, 4, true, c.opLDA)
	c.define(0xB9, "LDA", AbsoluteY, 4, true, c.opLDA)
	c.define(0xA1, "LDA", IndirectX, 6, false, c.opLDA)
	c.define(0xB1, "LDA", IndirectY, 5, true, c.opLDA)

	c.define(0xA2, "LDX", Immediate, 2, false, c.opLDX)
	c.define(0xA6, "LDX", ZeroPage, 3, false, c.opLDX)
	c.define(0xB6, "LDX", ZeroPageY, 4, false, c.opLDX)
	c.define(0xAE, "LDX", Absolute, 4, false, c.opLDX)
	c.define(0xBE, "LDX", AbsoluteY, 4, true, c.opLDX)

	c.define(0xA0, "LDY", Immediate, 2, false, c.opLDY)
	c.define(0xA4, "LDY", ZeroPage, 3, false, c.opLDY)
	c.define(0xB4, "LDY", ZeroPageX, 4, false, c.opLDY)
	c.define(0xAC, "LDY", Absolute, 4, false, c.opLDY)
	c.define(0xBC, "LDY", AbsoluteX, 4, true, c.opLDY)

	c.define(0x85, "STA", ZeroPage, 3, false, c.opSTA)
	c.define(0x95, "STA", ZeroPageX, 4, false, c.opSTA)
	c.define(0x8D, "STA", Absolute, 4, false, c.opSTA)
	c.define(0x9D, "STA", AbsoluteX, 5, false, c.opSTA)
	c.define(0x99, "STA", AbsoluteY, 5, false, c.opSTA)
	c.define(0x81, "STA", IndirectX, 6, false, c.opSTA)
	c.define(0x91, "STA", IndirectY, 6, false, c.opSTA)

	c.define(0x86, "STX", ZeroPage, 3, false, c.opSTX)
	c.define(0x96, "STX", ZeroPageY, 4, false, c.opSTX)
	c.define(0x8E, "STX", Absolute, 4, false, c.opSTX)

	c.define(0x84, "STY", ZeroPage, 3, false, c.opSTY)
	c.define(0x94, "STY", ZeroPageX, 4, false, c.opSTY)
	c.define(0x8C, "STY", Absolute, 4, false, c.opSTY)

	// Transfers.
	c.define(0xAA, "TAX", Implicit, 2, false, c.opTAX)
	c.define(0xA8, "TAY", Implicit, 2, false, c.opTAY)
	c.define(0xBA, "TSX", Implicit, 2, false, c.opTSX)
	c.define(0x8A, "TXA", Implicit, 2, false, c.opTXA)
	c.define(0x9A, "TXS", Implicit, 2, false, c.opTXS)
	c.define(0x98, "TYA", Implicit, 2, false, c.opTYA)

	// Stack.
	c.define(0x48, "PHA", Implicit, 3, false, c.opPHA)
	c.define(0x08, "PHP", Implicit, 3, false, c.opPHP)
	c.define(0x68, "PLA", Implicit, 4, false, c.opPLA)
	c.define(0x28, "PLP", Implicit, 4, false, c.opPLP)

	// Arithmetic.
	c.define(0x69, "ADC", Immediate, 2, false, c.opADC)
	c.define(0x65, "ADC", ZeroPage, 3, false, c.opADC)
	c.define(0x75, "ADC", ZeroPageX, 4, false, c.opADC)
	c.define(0x6D, "ADC", Absolute, 4, false, c.opADC)
	c.define(0x7D, "ADC", AbsoluteX, 4, true, c.opADC)
	c.define(0x79, "ADC", AbsoluteY, 4, true, c.opADC)
	c.define(0x61, "ADC", IndirectX, 6, false, c.opADC)
	c.define(0x71, "ADC", IndirectY, 5, true, c.opADC)

	c.define(0xE9, "SBC", Immediate, 2, false, c.opSBC)
	c.define(0xE5, "SBC", ZeroPage, 3, false, c.opSBC)
	c.define(0xF5, "SBC", ZeroPageX, 4, false, c.opSBC)
	c.define(0xED, "SBC", Absolute, 4, false, c.opSBC)
	c.define(0xFD, "SBC", AbsoluteX, 4, true, c.opSBC)
	c.define(0xF9, "SBC", AbsoluteY, 4, true, c.opSBC)
	c.define(0xE1, "SBC", IndirectX, 6, false, c.opSBC)
	c.define(0xF1, "SBC", IndirectY, 5, true, c.opSBC)
	c.define(0xEB, "SBC", Immediate, 2, false, c.opSBC) // unofficial duplicate

	// Logic.
	c.define(0x29, "AND", Immediate, 2, false, c.opAND)
	c.define(0x25, "AND", ZeroPage, 3, false, c.opAND)
	c.define(0x35, "AND", ZeroPageX, 4, false, c.opAND)
	c.define(0x2D, "AND", Absolute, 4, false, c.opAND)
	c.define(0x3D, "AND", AbsoluteX, 4, true, c.opAND)
	c.define(0x39, "AND", AbsoluteY, 4, true, c.opAND)
	c.define(0x21, "AND", IndirectX, 6, false, c.opAND)
	c.define(0x31, "AND", IndirectY, 5, true, c.opAND)

	c.define(0x49, "EOR", Immediate, 2, false, c.opEOR)
	c.define(0x45, "EOR", ZeroPage, 3, false, c.opEOR)
	c.define(0x55, "EOR", ZeroPageX, 4, false, c.opEOR)
	c.define(0x4D, "EOR", Absolute, 4, false, c.opEOR)
	c.define(0x5D, "EOR", AbsoluteX, 4, true, c.opEOR)
	c.define(0x59, "EOR", AbsoluteY, 4, true, c.opEOR)
	c.define(0x41, "EOR", IndirectX, 6, false, c.opEOR)
	c.define(0x51, "EOR", IndirectY, 5, true, c.opEOR)

	c.define(0x09, "ORA", Immediate, 2, false, c.opORA)
	c.define(0x05, "ORA", ZeroPage, 3, false, c.opORA)
	c.define(0x15, "ORA", ZeroPageX, 4, false, c.opORA)
	c.define(0x0D, "ORA", Absolute, 4, false, c.opORA)
	c.define(0x1D, "ORA", AbsoluteX, 4, true, c.opORA)
	c.define(0x19, "ORA", AbsoluteY, 4, true, c.opORA)
	c.define(0x01, "ORA", IndirectX, 6, false, c.opORA)
	c.define(0x11, "ORA", IndirectY, 5, true, c.opORA)

	c.define(0x24, "BIT", ZeroPage, 3, false, c.opBIT)
	c.define(0x2C, "BIT", Absolute, 4, false, c.opBIT)

	// Shifts / rotates.
	c.define(0x0A, "ASL", Accumulator, 2, false, c.opASL)
	c.define(0x06, "ASL", ZeroPage, 5, false, c.opASL)
	c.define(0x16, "ASL", ZeroPageX, 6, false, c.opASL)
	c.define(0x0E, "ASL", Absolute, 6, false, c.opASL)
	c.define(0x1E, "ASL", AbsoluteX, 7, false, c.opASL)

	c.define(0x4A, "LSR", Accumulator, 2, false, c.opLSR)
	c.define(0x46, "LSR", ZeroPage, 5, false, c.opLSR)
	c.define(0x56, "LSR", ZeroPageX, 6, false, c.opLSR)
	c.define(0x4E, "LSR", Absolute, 6, false, c.opLSR)
	c.define(0x5E, "LSR", AbsoluteX, 7, false, c.opLSR)

	c.define(0x2A, "ROL", Accumulator, 2, false, c.opROL)
	c.define(0x26, "ROL", ZeroPage, 5, false, c.opROL)
	c.define(0x36, "ROL", ZeroPageX, 6, false, c.opROL)
	c.define(0x2E, "ROL", Absolute, 6, false, c.opROL)
	c.define(0x3E, "ROL", AbsoluteX, 7, false, c.opROL)

	c.define(0x6A, "ROR", Accumulator, 2, false, c.opROR)
	c.define(0x66, "ROR", ZeroPage, 5, false, c.opROR)
	c.define(0x76, "ROR", ZeroPageX, 6, false, c.opROR)
	c.define(0x6E, "ROR", Absolute, 6, false, c.opROR)
	c.define(0x7E, "ROR", AbsoluteX, 7, false, c.opROR)

	// Comparisons.
	c.define(0xC9, "CMP", Immediate, 2, false, c.opCMP)
	c.define(0xC5, "CMP", ZeroPage, 3, false, c.opCMP)
	c.define(0xD5, "CMP", ZeroPageX, 4, false, c.opCMP)
	c.define(0xCD, "CMP", Absolute, 4, false, c.opCMP)
	c.define(0xDD, "CMP", AbsoluteX, 4, true, c.opCMP)
	c.define(0xD9, "CMP", AbsoluteY, 4, true, c.opCMP)
	c.define(0xC1, "CMP", IndirectX, 6, false, c.opCMP)
	c.define(0xD1, "CMP", IndirectY, 5, true, c.opCMP)

	c.define(0xE0, "CPX", Immediate, 2, false, c.opCPX)
	c.define(0xE4, "CPX", ZeroPage, 3, false, c.opCPX)
	c.define(0xEC, "CPX", Absolute, 4, false, c.opCPX)

	c.define(0xC0, "CPY", Immediate, 2, false, c.opCPY)
	c.define(0xC4, "CPY", ZeroPage, 3, false, c.opCPY)
	c.define(0xCC, "CPY", Absolute, 4, false, c.opCPY)

	// Increments / decrements.
	c.define(0xE6, "INC", ZeroPage, 5, false, c.opINC)
	c.define(0xF6, "INC", ZeroPageX, 6, false, c.opINC)
	c.define(0xEE, "INC", Absolute, 6, false, c.opINC)
	c.define(0xFE, "INC", AbsoluteX, 7, false, c.opINC)
	c.define(0xC6, "DEC", ZeroPage, 5, false, c.opDEC)
	c.define(0xD6, "DEC", ZeroPageX, 6, false, c.opDEC)
	c.define(0xCE, "DEC", Absolute, 6, false, c.opDEC)
	c.define(0xDE, "DEC", AbsoluteX, 7, false, c.opDEC)
	c.define(0xE8, "INX", Implicit, 2, false, c.opINX)
	c.define(0xC8, "INY", Implicit, 2, false, c.opINY)
	c.define(0xCA, "DEX", Implicit, 2, false, c.opDEX)
	c.define(0x88, "DEY", Implicit, 2, false, c.opDEY)

	// Branches.
	c.defineJump(0x90, "BCC", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagC == 0 }))
	c.defineJump(0xB0, "BCS", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagC != 0 }))
	c.defineJump(0xF0, "BEQ", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagZ != 0 }))
	c.defineJump(0xD0, "BNE", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagZ == 0 }))
	c.defineJump(0x30, "BMI", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagN != 0 }))
	c.defineJump(0x10, "BPL", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagN == 0 }))
	c.defineJump(0x50, "BVC", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagV == 0 }))
	c.defineJump(0x70, "BVS", Relative, 2, c.branchIf(func(c *CPU) bool { return c.P&FlagV != 0 }))

	// Jumps / calls / returns.
	c.defineJump(0x4C, "JMP", Absolute, 3, c.opJMP)
	c.defineJump(0x6C, "JMP", Indirect, 5, c.opJMP)
	c.defineJump(0x20, "JSR", Absolute, 6, c.opJSR)
	c.defineJump(0x60, "RTS", Implicit, 6, c.opRTS)
	c.defineJump(0x40, "RTI", Implicit, 6, c.opRTI)

	// Flag ops.
	c.define(0x18, "CLC", Implicit, 2, false, c.opCLC)
	c.define(0x38, "SEC", Implicit, 2, false, c.opSEC)
	c.define(0xD8, "CLD", Implicit, 2, false, c.opCLD)
	c.define(0xF8, "SED", Implicit, 2, false, c.opSED)
	c.define(0x58, "CLI", Implicit, 2, false, c.opCLI)
	c.define(0x78, "SEI", Implicit, 2, false, c.opSEI)
	c.define(0xB8, "CLV", Implicit, 2, false, c.opCLV)

	c.defineJump(0x00, "BRK", Implicit, 7, c.opBRK)
	c.define(0xEA, "NOP", Implicit, 2, false, noop)

	c.defineUnofficial()
}

// branchIf returns an exec function implementing a conditional branch:
// PC advances past the two-byte instruction whether or not the branch
// is taken, then jumps to addr if cond holds. The extra cycle(s) for
// taken / taken-across-page are returned so Step can add them.
func (c *CPU) branchIf(cond func(c *CPU) bool) func(mode AddrMode, addr uint16) int {
	return func(mode AddrMode, addr uint16) int {
		next := c.PC + 2
		if !cond(c) {
			c.PC = next
			return 0
		}
		extra := 1
		if pagesDiffer(next, addr) {
			extra++
		}
		c.PC = addr
		return extra
	}
}

func (c *CPU) opLDA(mode AddrMode, addr uint16) int {
	c.A = c.Bus.Read(addr)
	c.setZN(c.A)
	return 0
}
func (c *CPU) opLDX(mode AddrMode, addr uint16) int {
	c.X = c.Bus.Read(addr)
	c.setZN(c.X)
	return 0
}
func (c *CPU) opLDY(mode AddrMode, addr uint16) int {
	c.Y = c.Bus.Read(addr)
	c.setZN(c.Y)
	return 0
}
func (c *CPU) opSTA(mode AddrMode, addr uint16) int { c.Bus.Write(addr, c.A); return 0 }
func (c *CPU) opSTX(mode AddrMode, addr uint16) int { c.Bus.Write(addr, c.X); return 0 }
func (c *CPU) opSTY(mode AddrMode, addr uint16) int { c.Bus.Write(addr, c.Y); return 0 }

func (c *CPU) opTAX(mode AddrMode, addr uint16) int { c.X = c.A; c.setZN(c.X); return 0 }
func (c *CPU) opTAY(mode AddrMode, addr uint16) int { c.Y = c.A; c.setZN(c.Y); return 0 }
func (c *CPU) opTSX(mode AddrMode, addr uint16) int { c.X = c.S; c.setZN(c.X); return 0 }
func (c *CPU) opTXA(mode AddrMode, addr uint16) int { c.A = c.X; c.setZN(c.A); return 0 }
func (c *CPU) opTXS(mode AddrMode, addr uint16) int { c.S = c.X; return 0 }
func (c *CPU) opTYA(mode AddrMode, addr uint16) int { c.A = c.Y; c.setZN(c.A); return 0 }

func (c *CPU) opPHA(mode AddrMode, addr uint16) int { c.push(c.A); return 0 }
func (c *CPU) opPHP(mode AddrMode, addr uint16) int {
	c.push(c.statusForPush() | FlagB)
	return 0
}
func (c *CPU) opPLA(mode AddrMode, addr uint16) int {
	c.A = c.pop()
	c.setZN(c.A)
	return 0
}
// opPLP changes the interrupt-disable flag immediately; the one-instruction
// delay real hardware applies to IRQ recognition is not modeled.
func (c *CPU) opPLP(mode AddrMode, addr uint16) int {
	popped := c.pop()
	c.P = (popped &^ (FlagB | FlagU)) | (c.P & (FlagB | FlagU)) | FlagU
	return 0
}

func (c *CPU) addWithCarry(operand byte) {
	carry := uint16(0)
	if c.P&FlagC != 0 {
		carry = 1
	}
	sum := uint16(c.A) + uint16(operand) + carry
	result := byte(sum)
	c.setFlag(FlagC, sum > 0xFF)
	c.setFlag(FlagV, (c.A^result)&(operand^result)&0x80 != 0)
	c.A = result
	c.setZN(c.A)
}

func (c *CPU) opADC(mode AddrMode, addr uint16) int {
	c.addWithCarry(c.Bus.Read(addr))
	return 0
}
func (c *CPU) opSBC(mode AddrMode, addr uint16) int {
	c.addWithCarry(^c.Bus.Read(addr))
	return 0
}

func (c *CPU) opAND(mode AddrMode, addr uint16) int {
	c.A &= c.Bus.Read(addr)
	c.setZN(c.A)
	return 0
}
func (c *CPU) opEOR(mode AddrMode, addr uint16) int {
	c.A ^= c.Bus.Read(addr)
	c.setZN(c.A)
	return 0
}
func (c *CPU) opORA(mode AddrMode, addr uint16) int {
	c.A |= c.Bus.Read(addr)
	c.setZN(c.A)
	return 0
}
func (c *CPU) opBIT(mode AddrMode, addr uint16) int {
	v := c.Bus.Read(addr)
	c.setFlag(FlagZ, c.A&v == 0)
	c.setFlag(FlagV, v&0x40 != 0)
	c.setFlag(FlagN, v&0x80 != 0)
	return 0
}

func (c *CPU) readModify(mode AddrMode, addr uint16) byte {
	if mode == Accumulator {
		return c.A
	}
	return c.Bus.Read(addr)
}

func (c *CPU) writeModify(mode AddrMode, addr uint16, v byte) {
	if mode == Accumulator {
		c.A = v
		return
	}
	c.Bus.Write(addr, v)
}

func (c *CPU) opASL(mode AddrMode, addr uint16) int {
	v := c.readModify(mode, addr)
	c.setFlag(FlagC, v&0x80 != 0)
	v <<= 1
	c.writeModify(mode, addr, v)
	c.setZN(v)
	return 0
}
func (c *CPU) opLSR(mode AddrMode, addr uint16) int {
	v := c.readModify(mode, addr)
	c.setFlag(FlagC, v&0x01 != 0)
	v >>= 1
	c.writeModify(mode, addr, v)
	c.setZN(v)
	return 0
}
func (c *CPU) opROL(mode AddrMode, addr uint16) int {
	v := c.readModify(mode, addr)
	oldCarry := c.P & FlagC
	c.setFlag(FlagC, v&0x80 != 0)
	v = (v << 1) | oldCarry
	c.writeModify(mode, addr, v)
	c.setZN(v)
	return 0
}
func (c *CPU) opROR(mode AddrMode, addr uint16) int {
	v := c.readModify(mode, addr)
	oldCarry := byte(0)
	if c.P&FlagC != 0 {
		oldCarry = 0x80
	}
	c.setFlag(FlagC, v&0x01 != 0)
	v = (v >> 1) | oldCarry
	c.writeModify(mode, addr, v)
	c.setZN(v)
	return 0
}

func (c *CPU) compare(reg byte, operand byte) {
	c.setFlag(FlagC, reg >= operand)
	c.setZN(reg - operand)
}
func (c *CPU) opCMP(mode AddrMode, addr uint16) int {
	c.compare(c.A, c.Bus.Read(addr))
	return 0
}
func (c *CPU) opCPX(mode AddrMode, addr uint16) int {
	c.compare(c.X, c.Bus.Read(addr))
	return 0
}
func (c *CPU) opCPY(mode AddrMode, addr uint16) int {
	c.compare(c.Y, c.Bus.Read(addr))
	return 0
}

func (c *CPU) opINC(mode AddrMode, addr uint16) int {
	v := c.Bus.Read(addr) + 1
	c.Bus.Write(addr, v)
	c.setZN(v)
	return 0
}
func (c *CPU) opDEC(mode AddrMode, addr uint16) int {
	v := c.Bus.Read(addr) - 1
	c.Bus.Write(addr, v)
	c.setZN(v)
	return 0
}
func (c *CPU) opINX(mode AddrMode, addr uint16) int { c.X++; c.setZN(c.X); return 0 }
func (c *CPU) opINY(mode AddrMode, addr uint16) int { c.Y++; c.setZN(c.Y); return 0 }
func (c *CPU) opDEX(mode AddrMode, addr uint16) int { c.X--; c.setZN(c.X); return 0 }
func (c *CPU) opDEY(mode AddrMode, addr uint16) int { c.Y--; c.setZN(c.Y); return 0 }

func (c *CPU) opJMP(mode AddrMode, addr uint16) int { c.PC = addr; return 0 }
func (c *CPU) opJSR(mode AddrMode, addr uint16) int {
	c.push16(c.PC + 2)
	c.PC = addr
	return 0
}
func (c *CPU) opRTS(mode AddrMode, addr uint16) int {
	c.PC = c.pop16() + 1
	return 0
}
func (c *CPU) opRTI(mode AddrMode, addr uint16) int {
	popped := c.pop()
	c.P = (popped &^ (FlagB | FlagU)) | (c.P & (FlagB | FlagU)) | FlagU
	c.PC = c.pop16()
	return 0
}
func (c *CPU) opBRK(mode AddrMode, addr uint16) int {
	c.push16(c.PC + 2)
	c.push(c.statusForPush() | FlagB)
	c.P |= FlagI
	c.PC = c.Bus.Read16(irqVector)
	return 0
}

func (c *CPU) opCLC(mode AddrMode, addr uint16) int { c.setFlag(FlagC, false); return 0 }
func (c *CPU) opSEC(mode AddrMode, addr uint16) int { c.setFlag(FlagC, true); return 0 }
func (c *CPU) opCLD(mode AddrMode, addr uint16) int { c.setFlag(FlagD, false); return 0 }
func (c *CPU) opSED(mode AddrMode, addr uint16) int { c.setFlag(FlagD, true); return 0 }
// CLI and SEI, like PLP, change the interrupt-disable flag immediately;
// the one-instruction delay of real hardware is not modeled.
func (c *CPU) opCLI(mode AddrMode, addr uint16) int { c.setFlag(FlagI, false); return 0 }
func (c *CPU) opSEI(mode AddrMode, addr uint16) int { c.setFlag(FlagI, true); return 0 }
func (c *CPU) opCLV(mode AddrMode, addr uint16) int { c.setFlag(FlagV, false); return 0 }
