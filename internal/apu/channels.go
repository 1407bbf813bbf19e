package apu

// pulseDuties holds the four 8-step pulse waveforms selected by the
// duty bits, high bits first within each step.
var pulseDuties = [4][8]byte{
	{0, 1, 0, 0, 0, 0, 0, 0}, // 12.5%
	{0, 1, 1, 0, 0, 0, 0, 0}, // 25%
	{0, 1, 1, 1, 1, 0, 0, 0}, // 50%
	{1, 0, 0, 1, 1, 1, 1, 1}, // 25% negated
}

// pulse is one of the two square-wave channels: a timer-driven 8-step
// duty sequencer gated by a length counter, scaled by an envelope, and
// pitch-bent by a sweep unit.
type pulse struct {
	timer    timer
	envelope envelope
	length   lengthCounter
	sweep    sweep

	dutyMode byte
	dutyStep byte
}

func (p *pulse) writeControl(v byte) {
	p.dutyMode = v >> 6
	p.length.halt = v&0x20 != 0
	p.envelope.configure(v)
}

func (p *pulse) writeSweep(v byte) {
	p.sweep.configure(v)
}

func (p *pulse) writeTimerLow(v byte) {
	p.timer.setLow(v)
}

func (p *pulse) writeTimerHigh(v byte) {
	p.timer.setHigh(v)
	p.length.load(v)
	p.dutyStep = 0
	p.envelope.start()
}

func (p *pulse) tickTimer() {
	if p.timer.clock() {
		p.dutyStep = (p.dutyStep + 1) & 7
	}
}

func (p *pulse) quarterFrame() {
	p.envelope.clock()
}

func (p *pulse) halfFrame() {
	p.length.clock()
	p.sweep.clock(&p.timer)
}

func (p *pulse) output() byte {
	if !p.length.active() || p.sweep.mutes(p.timer.period) {
		return 0
	}
	if pulseDuties[p.dutyMode][p.dutyStep] == 0 {
		return 0
	}
	return p.envelope.volume()
}

// triangle steps a 32-entry ramp sequencer whenever both its length
// and linear counters are nonzero.
type triangle struct {
	timer  timer
	length lengthCounter
	linear linearCounter

	step byte
}

func (t *triangle) writeControl(v byte) {
	t.length.halt = v&0x80 != 0
	t.linear.configure(v)
}

func (t *triangle) writeTimerLow(v byte) {
	t.timer.setLow(v)
}

func (t *triangle) writeTimerHigh(v byte) {
	t.timer.setHigh(v)
	t.length.load(v)
	t.linear.reloadFlag = true
}

func (t *triangle) tickTimer() {
	if !t.length.active() || !t.linear.active() {
		return
	}
	if t.timer.clock() {
		t.step = (t.step + 1) & 31
	}
}

func (t *triangle) quarterFrame() {
	t.linear.clock()
}

func (t *triangle) halfFrame() {
	t.length.clock()
}

// output descends 15..0 over the first half of the sequence and climbs
// back 0..15 over the second. Ultrasonic periods (< 2) are silenced
// rather than reproduced.
func (t *triangle) output() byte {
	if !t.length.active() || !t.linear.active() || t.timer.period < 2 {
		return 0
	}
	v := t.step & 15
	if t.step < 16 {
		v = 15 - v
	}
	return v
}

// noisePeriods is the NTSC timer-period table selected by the low
// nibble of $400E.
var noisePeriods = [16]uint16{
	4, 8, 16, 32, 64, 96, 128, 160,
	202, 254, 380, 508, 762, 1016, 2034, 4068,
}

// noise drives a 15-bit LFSR from its timer; the feedback tap is bit 1
// normally and bit 6 in short mode. Bit 0 high silences the channel.
type noise struct {
	timer    timer
	envelope envelope
	length   lengthCounter

	shift uint16
	mode  bool
}

func (n *noise) writeControl(v byte) {
	n.length.halt = v&0x20 != 0
	n.envelope.configure(v)
}

func (n *noise) writePeriod(v byte) {
	n.mode = v&0x80 != 0
	n.timer.period = noisePeriods[v&0x0F]
}

func (n *noise) writeLength(v byte) {
	n.length.load(v)
	n.envelope.start()
}

func (n *noise) tickTimer() {
	if !n.timer.clock() {
		return
	}
	tap := uint16(1)
	if n.mode {
		tap = 6
	}
	feedback := (n.shift ^ n.shift>>tap) & 1
	n.shift = n.shift>>1 | feedback<<14
}

func (n *noise) quarterFrame() {
	n.envelope.clock()
}

func (n *noise) halfFrame() {
	n.length.clock()
}

func (n *noise) output() byte {
	if !n.length.active() || n.shift&1 != 0 {
		return 0
	}
	return n.envelope.volume()
}

// dmcRates is the NTSC table of timer periods selected by the low
// nibble of $4010.
var dmcRates = [16]uint16{
	428, 380, 340, 320, 286, 254, 226, 214,
	190, 160, 142, 128, 106, 84, 72, 54,
}

// dmc plays 1-bit delta-coded samples: each timer reload shifts one
// bit out of the sample byte and nudges the 7-bit output level up or
// down by 2. Sample bytes come from CPU-visible memory through the
// fetch hook.
type dmc struct {
	timer timer
	level byte

	irqEnabled bool
	loopFlag   bool
	irqFlag    bool

	sampleAddress uint16
	sampleLength  uint16

	currentAddress uint16
	bytesLeft      uint16

	shiftRegister byte
	bitsLeft      byte
	silence       bool

	fetch func(addr uint16) byte
}

func (d *dmc) writeControl(v byte) {
	d.irqEnabled = v&0x80 != 0
	d.loopFlag = v&0x40 != 0
	d.timer.period = dmcRates[v&0x0F]
	if !d.irqEnabled {
		d.irqFlag = false
	}
}

func (d *dmc) writeDirectLoad(v byte) {
	d.level = v & 0x7F
}

func (d *dmc) writeSampleAddress(v byte) {
	d.sampleAddress = 0xC000 + uint16(v)<<6
}

func (d *dmc) writeSampleLength(v byte) {
	d.sampleLength = uint16(v)<<4 + 1
}

func (d *dmc) restart() {
	d.currentAddress = d.sampleAddress
	d.bytesLeft = d.sampleLength
}

func (d *dmc) setEnabled(on bool) {
	if !on {
		d.bytesLeft = 0
	} else if d.bytesLeft == 0 {
		d.restart()
	}
}

func (d *dmc) active() bool { return d.bytesLeft > 0 }

func (d *dmc) tickTimer() {
	if !d.timer.clock() {
		return
	}
	if !d.silence {
		if d.shiftRegister&1 != 0 {
			if d.level <= 125 {
				d.level += 2
			}
		} else if d.level >= 2 {
			d.level -= 2
		}
	}
	d.shiftRegister >>= 1
	if d.bitsLeft > 0 {
		d.bitsLeft--
	}
	if d.bitsLeft == 0 {
		d.refill()
	}
}

// refill loads the next sample byte once the current one is spent. The
// real 2A03 stalls the CPU for up to 4 cycles on this fetch; that
// stall is not modeled.
func (d *dmc) refill() {
	if d.bytesLeft == 0 {
		d.silence = true
		return
	}
	if d.fetch != nil {
		d.shiftRegister = d.fetch(d.currentAddress)
	} else {
		d.shiftRegister = 0
	}
	d.bitsLeft = 8
	d.silence = false
	d.currentAddress++
	d.bytesLeft--
	if d.bytesLeft == 0 {
		if d.loopFlag {
			d.restart()
		} else if d.irqEnabled {
			d.irqFlag = true
		}
	}
}

func (d *dmc) output() byte { return d.level }
