// Package scheduler implements the master-clock-domain interleaver
// that steps the CPU, PPU and APU at their correct relative rates and
// exposes the host-facing save/stop control channel.
package scheduler

import (
	"time"

	"github.com/mwasson/nescore/internal/apu"
	"github.com/mwasson/nescore/internal/cartridge"
	"github.com/mwasson/nescore/internal/cpu"
	"github.com/mwasson/nescore/internal/input"
	"github.com/mwasson/nescore/internal/memory"
	"github.com/mwasson/nescore/internal/ppu"
)

// Master-clock costs of one step of each processor. The master clock
// runs at 21.477272 MHz NTSC; 12 ticks make one CPU cycle, 4 make one
// PPU dot, 24 make one APU cycle (CPU/2), matching the documented
// NESdev APU-cycle frame-counter thresholds the apu package uses.
const (
	masterClocksPerCPUCycle = 12
	masterClocksPerPPUDot   = 4
	masterClocksPerAPUCycle = 24

	masterClockHz = 21477272
)

type taskKind int

const (
	taskCPU taskKind = iota
	taskPPU
	taskAPU
)

// SignalKind identifies a host-to-scheduler control message.
type SignalKind int

const (
	// SignalSave requests a snapshot of CPU-visible persistent memory
	// (cartridge PRG-RAM). The reply is delivered on Reply.
	SignalSave SignalKind = iota
	// SignalStop requests a clean loop exit; Run returns once it is
	// observed.
	SignalStop
)

// Signal is sent on the channel passed to Run.
type Signal struct {
	Kind  SignalKind
	Reply chan []byte // required for SignalSave, ignored otherwise
}

// Scheduler owns the CPU, PPU and APU and advances whichever of them
// is next due on the master clock, breaking ties CPU, then PPU, then
// APU. Three compared timers avoid the allocation a
// priority-queue-per-event design would put on the hot path.
type Scheduler struct {
	Memory *memory.Bus
	CPU    *cpu.CPU
	PPU    *ppu.PPU
	APU    *apu.APU
	Input  *input.InputState
	cart   *cartridge.Cartridge

	nextCPUTime uint64
	nextPPUTime uint64
	nextAPUTime uint64

	frameCompleted bool
	frameCount     uint64
}

// port4017 multiplexes $4017 between controller 2's serial read and
// the APU frame-counter write, since a bus address can only have one
// registered listener but the two real devices share the address in
// opposite directions.
type port4017 struct {
	input *input.InputState
	apu   *apu.APU
}

func (p *port4017) OnRead(bus *memory.Bus, addr uint16) byte {
	return p.input.Controller2.Read() | 0x40
}

func (p *port4017) OnWrite(bus *memory.Bus, addr uint16, value byte) {
	p.apu.OnWrite(bus, addr, value)
}

// New constructs a Scheduler wired to a freshly loaded cartridge: the
// Bus, CPU, PPU, APU and controller ports are all created here and
// registered against each other exactly once.
func New(cart *cartridge.Cartridge) *Scheduler {
	bus := memory.New(cart.Mapper)
	ppuInst := ppu.New(cart.Mapper)
	apuInst := apu.New()
	inputState := input.NewInputState()
	cpuInst := cpu.New(bus)

	for reg := uint16(0x2000); reg <= 0x2007; reg++ {
		bus.Register(ppuInst, reg)
	}
	bus.RegisterOAM(ppuInst)

	bus.Register(apuInst,
		0x4000, 0x4001, 0x4002, 0x4003,
		0x4004, 0x4005, 0x4006, 0x4007,
		0x4008, 0x400A, 0x400B,
		0x400C, 0x400E, 0x400F,
		0x4010, 0x4011, 0x4012, 0x4013,
		0x4015,
	)
	apuInst.SetMemoryReader(bus.Read)

	bus.Register(inputState, 0x4016)
	bus.Register(&port4017{input: inputState, apu: apuInst}, 0x4017)

	s := &Scheduler{
		Memory: bus,
		CPU:    cpuInst,
		PPU:    ppuInst,
		APU:    apuInst,
		Input:  inputState,
		cart:   cart,
	}

	ppuInst.SetNMICallback(cpuInst.RequestNMI)
	ppuInst.SetFrameCompleteCallback(s.onFrameComplete)

	s.Reset()
	return s
}

// Reset returns every owned component to its power-on/reset state and
// re-zeroes the master-clock timers.
func (s *Scheduler) Reset() {
	s.PPU.Reset()
	s.APU.Reset()
	s.Input.Reset()
	s.CPU.Reset()
	s.nextCPUTime, s.nextPPUTime, s.nextAPUTime = 0, 0, 0
	s.frameCompleted = false
	s.frameCount = 0
}

func (s *Scheduler) onFrameComplete() {
	s.frameCompleted = true
	s.frameCount++
}

// nextTask reports which processor has the smallest next-due
// master-clock timestamp, breaking ties CPU, then PPU, then APU.
func (s *Scheduler) nextTask() (taskKind, uint64) {
	best := taskCPU
	bestTime := s.nextCPUTime

	if bestTime > s.nextPPUTime {
		bestTime = s.nextPPUTime
		best = taskPPU
	}
	if bestTime > s.nextAPUTime {
		bestTime = s.nextAPUTime
		best = taskAPU
	}
	return best, bestTime
}

// StepMasterClock advances whichever processor is next due by exactly
// one unit of its own work (one CPU step, one PPU dot, or one APU
// cycle) and returns which one ran.
func (s *Scheduler) StepMasterClock() taskKind {
	kind, _ := s.nextTask()
	switch kind {
	case taskCPU:
		mc := s.CPU.Step()
		s.nextCPUTime += uint64(mc)
	case taskPPU:
		s.PPU.Step()
		s.nextPPUTime += masterClocksPerPPUDot
	case taskAPU:
		s.APU.Step()
		s.CPU.SetIRQLine(s.APU.IRQLine())
		s.nextAPUTime += masterClocksPerAPUCycle
	}
	return kind
}

// RunFrame steps the master clock until the PPU publishes a complete
// frame. Intended for a host that drives its own frame pump (e.g. a
// display backend's 60Hz Update callback) rather than the real-time
// Run loop below.
func (s *Scheduler) RunFrame() {
	s.frameCompleted = false
	for !s.frameCompleted {
		s.StepMasterClock()
	}
}

// RunCycles steps the master clock until at least n CPU cycles have
// elapsed (measured by CycleCount), rounding up to the CPU step that
// crosses the boundary. Used by tests that want deterministic CPU
// progress without caring about frame boundaries.
func (s *Scheduler) RunCycles(n uint64) {
	target := s.CPU.Cycles + n
	for s.CPU.Cycles < target {
		s.StepMasterClock()
	}
}

// Run drives the scheduler in real time: it always advances whichever
// processor is next due, batching sleeps into ~10ms quanta rather than
// sleeping on every master-clock tick. It polls signals without
// blocking before every master-clock step, so a signal is never handled
// mid-instruction; polling is not limited to quantum boundaries. It returns when it
// observes SignalStop or when the signals channel is closed.
func (s *Scheduler) Run(signals <-chan Signal) {
	const quantum = 10 * time.Millisecond

	start := time.Now()
	mostRecentNow := start
	checkTimeClocks := durationToClocks(quantum)

	for {
		select {
		case sig, ok := <-signals:
			if !ok {
				return
			}
			switch sig.Kind {
			case SignalSave:
				if sig.Reply != nil {
					sig.Reply <- s.SnapshotSaveData()
				}
			case SignalStop:
				return
			}
		default:
		}

		_, dueTime := s.nextTask()
		if dueTime > checkTimeClocks {
			target := clocksToTime(start, dueTime)
			if d := target.Sub(mostRecentNow); d > 0 {
				time.Sleep(d)
			}
			mostRecentNow = time.Now()
			checkTimeClocks = durationToClocks(mostRecentNow.Add(quantum).Sub(start))
		}

		s.StepMasterClock()
	}
}

// clocksToTime returns the wall-clock instant at which clocks master
// clock ticks will have elapsed since start, at the NTSC master clock
// rate of 21.477272 MHz.
func clocksToTime(start time.Time, clocks uint64) time.Time {
	return start.Add(time.Duration(clocks * 1_000_000 / masterClockHz) * time.Microsecond)
}

// durationToClocks converts a wall-clock duration into the number of
// master clock ticks that elapse in that time.
func durationToClocks(d time.Duration) uint64 {
	return uint64(d.Microseconds()) * masterClockHz / 1_000_000
}

// SnapshotSaveData returns the CPU-visible persistent memory backing
// the cartridge (PRG-RAM, $6000-$7FFF) as a flat byte slice, answering
// the SignalSave control request. Mappers with no PRG-RAM (NROM,
// UxROM, AxROM) return all zero bytes.
func (s *Scheduler) SnapshotSaveData() []byte {
	return cartridge.ReadPRGSlice(s.cart.Mapper, 0x6000, 0x2000)
}

// FrameBuffer returns the most recently published 256x240 frame, one
// pixel per uint32 packed as 0xAARRGGBB (not RGBA8 byte quadruples).
func (s *Scheduler) FrameBuffer() [256 * 240]uint32 {
	return s.PPU.GetFrameBuffer()
}

// AudioSamples drains and returns the APU's pending sample buffer.
func (s *Scheduler) AudioSamples() []float32 {
	return s.APU.GetSamples()
}

// FrameCount returns the number of frames completed since Reset.
func (s *Scheduler) FrameCount() uint64 {
	return s.frameCount
}

// CycleCount returns the number of CPU cycles executed since Reset.
func (s *Scheduler) CycleCount() uint64 {
	return s.CPU.Cycles
}

// SetControllerButtons replaces all eight button states for the given
// 1-based controller port (1 or 2); any other value is ignored.
func (s *Scheduler) SetControllerButtons(controller int, buttons [8]bool) {
	switch controller {
	case 1:
		s.Input.SetButtons1(buttons)
	case 2:
		s.Input.SetButtons2(buttons)
	}
}
