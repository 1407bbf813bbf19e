package apu

import "testing"

func TestEnvelopeDecaysAndLoops(t *testing.T) {
	var e envelope
	e.configure(0x20) // period 0, decay mode, loop
	e.start()

	e.clock() // start flag consumed, decay = 15
	if e.volume() != 15 {
		t.Fatalf("decay level after start = %d, want 15", e.volume())
	}
	for i := 0; i < 15; i++ {
		e.clock()
	}
	if e.volume() != 0 {
		t.Fatalf("decay level after 15 clocks = %d, want 0", e.volume())
	}
	e.clock()
	if e.volume() != 15 {
		t.Fatalf("decay level after loop = %d, want 15 (loop flag set)", e.volume())
	}
}

func TestEnvelopeConstantVolumeIgnoresDecay(t *testing.T) {
	var e envelope
	e.configure(0x17) // constant volume 7
	e.start()
	for i := 0; i < 40; i++ {
		e.clock()
	}
	if e.volume() != 7 {
		t.Fatalf("constant volume = %d, want 7", e.volume())
	}
}

func TestLengthCounterIgnoresLoadWhileDisabled(t *testing.T) {
	var lc lengthCounter
	lc.load(0x08)
	if lc.active() {
		t.Fatalf("length counter loaded while disabled")
	}
	lc.setEnabled(true)
	lc.load(0x08) // index 1 -> 254
	if lc.count != 254 {
		t.Fatalf("count = %d, want 254", lc.count)
	}
	lc.setEnabled(false)
	if lc.active() {
		t.Fatalf("disabling did not zero the length counter")
	}
}

func TestLengthCounterHaltStopsDecrement(t *testing.T) {
	var lc lengthCounter
	lc.setEnabled(true)
	lc.load(0x00) // index 0 -> 10
	lc.halt = true
	lc.clock()
	if lc.count != 10 {
		t.Fatalf("halted counter decremented to %d", lc.count)
	}
	lc.halt = false
	lc.clock()
	if lc.count != 9 {
		t.Fatalf("count = %d, want 9", lc.count)
	}
}

func TestSweepMutesOnTargetOverflowAndLowPeriod(t *testing.T) {
	var s sweep
	s.configure(0x81) // enabled, shift 1, add mode

	if !s.mutes(4) {
		t.Fatalf("period below 8 not muted")
	}
	if !s.mutes(0x600) { // target 0x600 + 0x300 > 0x7FF
		t.Fatalf("11-bit target overflow not muted")
	}
	if s.mutes(0x200) {
		t.Fatalf("in-range period muted")
	}
}

func TestSweepNegateModesDifferByOne(t *testing.T) {
	var p1, p2 sweep
	p1.onesComplement = true
	p1.configure(0x89) // enabled, negate, shift 1
	p2.configure(0x89)

	// change = 0x100; pulse 1 subtracts one extra.
	if got := p1.target(0x200); got != 0x0FF {
		t.Fatalf("ones' complement target = $%03X, want $0FF", got)
	}
	if got := p2.target(0x200); got != 0x100 {
		t.Fatalf("two's complement target = $%03X, want $100", got)
	}
}

func TestLinearCounterReloadsUntilControlCleared(t *testing.T) {
	var lc linearCounter
	lc.configure(0x85) // control set, reload value 5
	lc.reloadFlag = true

	lc.clock()
	lc.clock()
	if lc.count != 5 {
		t.Fatalf("count = %d, want 5 (control flag keeps reloading)", lc.count)
	}

	lc.configure(0x05) // control clear
	lc.clock()         // reloads once more, then clears the flag
	lc.clock()
	if lc.count != 4 {
		t.Fatalf("count = %d, want 4 after reload flag cleared", lc.count)
	}
}

func TestNoiseLFSRTapSelection(t *testing.T) {
	n := noise{shift: 1}
	n.writePeriod(0x00) // long mode, fastest period
	n.timer.count = 0
	n.tickTimer() // feedback = bit0 ^ bit1 = 1
	if n.shift != 0x4000 {
		t.Fatalf("long-mode shift = $%04X, want $4000", n.shift)
	}

	n = noise{shift: 1}
	n.writePeriod(0x80) // short mode: tap bit 6
	n.timer.count = 0
	n.tickTimer()
	if n.shift != 0x4000 {
		t.Fatalf("short-mode shift = $%04X, want $4000", n.shift)
	}

	n = noise{shift: 0x41} // bits 0 and 6 set: short-mode feedback is 0
	n.writePeriod(0x80)
	n.timer.count = 0
	n.tickTimer()
	if n.shift != 0x20 {
		t.Fatalf("short-mode shift = $%04X, want $0020", n.shift)
	}
}

func TestTriangleSequencerNeedsBothCounters(t *testing.T) {
	var tr triangle
	tr.length.setEnabled(true)
	tr.writeControl(0x05)   // linear reload 5
	tr.writeTimerLow(0x10)  // audible period
	tr.writeTimerHigh(0x00) // loads length, arms linear reload
	tr.quarterFrame()       // linear counter picks up its reload

	tr.timer.count = 0
	tr.tickTimer()
	if tr.step != 1 {
		t.Fatalf("sequencer step = %d, want 1 with both counters live", tr.step)
	}

	tr.linear.count = 0
	tr.timer.count = 0
	tr.tickTimer()
	if tr.step != 1 {
		t.Fatalf("sequencer advanced with linear counter at zero")
	}
}

func TestLengthCounterClearedWhenChannelDisabled(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01) // enable pulse 1
	a.WriteRegister(0x4003, 0x08) // timer-high, loads a length counter value

	if !a.pulse1.length.active() {
		t.Fatalf("expected nonzero length counter after enabling and loading")
	}

	a.WriteRegister(0x4015, 0x00) // disable pulse 1
	if a.pulse1.length.active() {
		t.Fatalf("length counter = %d, want 0 after disabling channel", a.pulse1.length.count)
	}
}

func TestReadStatusReportsLengthCountersAndClearsFrameIRQ(t *testing.T) {
	a := New()
	a.WriteRegister(0x4015, 0x01)
	a.WriteRegister(0x4003, 0x08)
	a.frameIRQ = true

	status := a.ReadStatus()
	if status&0x01 == 0 {
		t.Fatalf("status bit 0 not set with nonzero pulse1 length counter")
	}
	if status&0x40 == 0 {
		t.Fatalf("status bit 6 not set with frame IRQ pending")
	}
	if a.GetFrameIRQ() {
		t.Fatalf("reading $4015 did not clear the frame IRQ flag")
	}
}

func TestDMCFetchesSampleBytesThroughWiredMemoryReader(t *testing.T) {
	a := New()
	mem := map[uint16]byte{0xC000: 0xAA, 0xC001: 0xBB}
	a.SetMemoryReader(func(addr uint16) byte { return mem[addr] })

	a.WriteRegister(0x4012, 0x00) // sample address $C000
	a.WriteRegister(0x4013, 0x01) // sample length = 1*16+1 = 17 bytes
	a.WriteRegister(0x4015, 0x10) // enable DMC, starts the sample

	if a.dmc.currentAddress != 0xC000 {
		t.Fatalf("dmc.currentAddress = %#x, want $C000", a.dmc.currentAddress)
	}

	a.dmc.timer.count = 0
	a.dmc.tickTimer()

	if a.dmc.shiftRegister != 0xAA {
		t.Fatalf("shiftRegister = %#x, want $AA fetched via the wired memory reader", a.dmc.shiftRegister)
	}
	if a.dmc.currentAddress != 0xC001 {
		t.Fatalf("currentAddress after fetch = %#x, want $C001", a.dmc.currentAddress)
	}
}

func TestDMCFetchWithNoMemoryReaderDoesNotPanic(t *testing.T) {
	a := New()
	a.WriteRegister(0x4012, 0x00)
	a.WriteRegister(0x4013, 0x00)
	a.WriteRegister(0x4015, 0x10)

	a.dmc.timer.count = 0
	a.dmc.tickTimer() // must not panic with no reader wired
}

func TestFourStepFrameCounterAssertsIRQAtFourteenThousandNineHundredFourteen(t *testing.T) {
	a := New()
	a.writeFrameCounter(0x00) // 4-step mode, IRQ enabled

	for i := 0; i < frameStep4; i++ {
		a.stepFrameCounter()
	}
	if !a.frameIRQ {
		t.Fatalf("frame IRQ not asserted after %d APU cycles in 4-step mode", frameStep4)
	}
	if a.frameCounter != 0 {
		t.Fatalf("frameCounter = %d, want 0 after wraparound", a.frameCounter)
	}
}

func TestFiveStepFrameCounterNeverAssertsIRQ(t *testing.T) {
	a := New()
	a.writeFrameCounter(0x80) // 5-step mode, IRQ enabled

	for i := 0; i < frameStep5; i++ {
		a.stepFrameCounter()
	}
	if a.frameIRQ {
		t.Fatalf("5-step mode must never assert the frame IRQ")
	}
	if a.frameCounter != 0 {
		t.Fatalf("frameCounter = %d, want 0 after wraparound", a.frameCounter)
	}
}
