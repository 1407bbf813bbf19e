// Package input implements standard NES controller handling: the
// strobe/shift-register protocol exposed to the CPU at $4016/$4017.
package input

import "github.com/mwasson/nescore/internal/memory"

// Button identifies one of the eight standard controller buttons.
type Button uint8

const (
	ButtonA Button = 1 << iota
	ButtonB
	ButtonSelect
	ButtonStart
	ButtonUp
	ButtonDown
	ButtonLeft
	ButtonRight
)

// Controller is a single standard NES joypad: an 8-bit button latch
// shifted out one bit per read while strobe is low, and continuously
// reloaded from live button state while strobe is high.
type Controller struct {
	buttons  uint8
	shift    uint8
	strobe   bool
	bitIndex uint8
}

// New constructs a controller with no buttons held.
func New() *Controller { return &Controller{} }

// SetButton updates a single button's held state.
func (c *Controller) SetButton(button Button, pressed bool) {
	if pressed {
		c.buttons |= uint8(button)
	} else {
		c.buttons &^= uint8(button)
	}
	if c.strobe {
		c.shift = c.buttons
	}
}

// SetButtons replaces all eight button states at once, in
// A,B,Select,Start,Up,Down,Left,Right order.
func (c *Controller) SetButtons(buttons [8]bool) {
	var b uint8
	order := [8]Button{ButtonA, ButtonB, ButtonSelect, ButtonStart, ButtonUp, ButtonDown, ButtonLeft, ButtonRight}
	for i, pressed := range buttons {
		if pressed {
			b |= uint8(order[i])
		}
	}
	c.buttons = b
	if c.strobe {
		c.shift = c.buttons
	}
}

// IsPressed reports whether button is currently held.
func (c *Controller) IsPressed(button Button) bool {
	return c.buttons&uint8(button) != 0
}

// Write handles a write to the strobe line. While strobe is high the
// shift register continuously reloads from live button state; the
// falling edge latches it for serial reading.
func (c *Controller) Write(value uint8) {
	c.strobe = value&1 != 0
	if c.strobe {
		c.shift = c.buttons
		c.bitIndex = 0
	}
}

// Read shifts out the next button bit. Reads past the eighth bit
// return 1, matching real hardware's open-bus/controller-absence
// convention used by most games' polling loops.
func (c *Controller) Read() uint8 {
	if c.strobe {
		return c.buttons & 1
	}
	var bit uint8 = 1
	if c.bitIndex < 8 {
		bit = c.shift & 1
		c.shift >>= 1
	}
	c.bitIndex++
	return bit
}

// Reset clears all controller state.
func (c *Controller) Reset() {
	*c = Controller{}
}

// InputState holds both standard controller ports.
type InputState struct {
	Controller1 *Controller
	Controller2 *Controller
}

// NewInputState constructs both controller ports, unpressed.
func NewInputState() *InputState {
	return &InputState{Controller1: New(), Controller2: New()}
}

// Reset clears both controllers.
func (is *InputState) Reset() {
	is.Controller1.Reset()
	is.Controller2.Reset()
}

// SetButtons1 replaces controller 1's button state.
func (is *InputState) SetButtons1(buttons [8]bool) { is.Controller1.SetButtons(buttons) }

// SetButtons2 replaces controller 2's button state.
func (is *InputState) SetButtons2(buttons [8]bool) { is.Controller2.SetButtons(buttons) }

// OnRead implements memory.MemoryListener for $4016/$4017. Bit 6 of
// $4017 is set on real hardware due to open-bus behavior on that port.
func (is *InputState) OnRead(bus *memory.Bus, addr uint16) byte {
	switch addr {
	case 0x4016:
		return is.Controller1.Read()
	case 0x4017:
		return is.Controller2.Read() | 0x40
	default:
		return 0
	}
}

// OnWrite implements memory.MemoryListener. The strobe line at $4016
// is wired to both controllers simultaneously.
func (is *InputState) OnWrite(bus *memory.Bus, addr uint16, value byte) {
	if addr == 0x4016 {
		is.Controller1.Write(value)
		is.Controller2.Write(value)
	}
}
