// Package cgb implements the Game Boy Color compatibility/speed-switch
// register bookkeeping: KEY0 and KEY1. The bus consults DoubleSpeed and,
// while it is set, advances the PPU/APU only on every other T-cycle.
package cgb

// Controller holds the CGB-only KEY0/KEY1 registers and double-speed
// state. On DMG hardware (or when CGB mode is disabled) it is still
// constructed but never toggles speed.
type Controller struct {
	cgbMode bool

	key0 byte // FF4C, compatibility register, latched pre-game-start
	armed  bool // KEY1 bit 0: speed switch armed
	double bool // current speed: false=normal, true=double
}

// New returns a Controller. cgbMode selects whether STOP is allowed to
// perform the speed switch at all (DMG ignores KEY1 writes).
func New(cgbMode bool) *Controller { return &Controller{cgbMode: cgbMode} }

// SetCGBMode updates whether CGB-only registers are live, used when the
// hardware mode is chosen after construction (auto-detect from header).
func (c *Controller) SetCGBMode(v bool) { c.cgbMode = v }
func (c *Controller) CGBMode() bool     { return c.cgbMode }

// ReadKEY0 returns FF4C. Non-CGB reads return 0xFF (open bus).
func (c *Controller) ReadKEY0() byte {
	if !c.cgbMode {
		return 0xFF
	}
	return c.key0
}

// WriteKEY0 stores FF4C (only meaningful before the boot handoff; kept
// writable here since this core starts post-boot already).
func (c *Controller) WriteKEY0(v byte) {
	if c.cgbMode {
		c.key0 = v
	}
}

// ReadKEY1 returns FF4D: bit7 reflects current speed, bit0 reflects the
// armed flag, other bits read as 1.
func (c *Controller) ReadKEY1() byte {
	if !c.cgbMode {
		return 0xFF
	}
	v := byte(0x7E)
	if c.double {
		v |= 0x80
	}
	if c.armed {
		v |= 0x01
	}
	return v
}

// WriteKEY1 arms or disarms the speed switch (bit 0 only; other bits
// ignored on write).
func (c *Controller) WriteKEY1(v byte) {
	if !c.cgbMode {
		return
	}
	c.armed = v&0x01 != 0
}

// PerformStop is invoked by the CPU when it decodes STOP (0x10). If the
// speed switch is armed, it toggles speed and disarms; otherwise it is a
// no-op advance, per spec.md's STOP handling.
func (c *Controller) PerformStop() {
	if c.cgbMode && c.armed {
		c.double = !c.double
		c.armed = false
	}
}

// DoubleSpeed reports the current speed for cycle-budget halving.
func (c *Controller) DoubleSpeed() bool { return c.cgbMode && c.double }

// State is a serializable snapshot for savestates.
type State struct {
	CGBMode       bool
	KEY0          byte
	Armed, Double bool
}

func (c *Controller) SaveState() State {
	return State{CGBMode: c.cgbMode, KEY0: c.key0, Armed: c.armed, Double: c.double}
}

func (c *Controller) LoadState(s State) {
	c.cgbMode, c.key0, c.armed, c.double = s.CGBMode, s.KEY0, s.Armed, s.Double
}
