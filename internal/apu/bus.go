package apu

import "github.com/mwasson/nescore/internal/memory"

// OnRead implements memory.MemoryListener. Only $4015 (status) is
// readable; the channel registers themselves are write-only.
func (a *APU) OnRead(bus *memory.Bus, addr uint16) byte {
	if addr == 0x4015 {
		return a.ReadStatus()
	}
	return 0
}

// OnWrite implements memory.MemoryListener, dispatching to the
// channel and frame-counter register handlers.
func (a *APU) OnWrite(bus *memory.Bus, addr uint16, value byte) {
	a.WriteRegister(addr, value)
}

// IRQLine reports whether the frame counter or DMC channel currently
// asserts the APU's IRQ line. The scheduler samples this once per APU
// step and forwards it to the CPU.
func (a *APU) IRQLine() bool {
	return a.GetFrameIRQ() || a.GetDMCIRQ()
}
