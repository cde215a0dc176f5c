// Package joypad implements the P1/JOYP register and button matrix,
// including the Pan Docs high-to-low transition interrupt semantics
// (spec.md's REDESIGN FLAG: prefer Pan Docs over "any newly pressed
// button").
package joypad

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/interrupt"

// Button bitmasks for SetButtons. A set bit means pressed.
const (
	Right = 1 << iota
	Left
	Up
	Down
	A
	B
	Select
	Start
)

// Joypad owns the P1 select bits and the pressed-button mask, and raises
// the Joypad interrupt on a high-to-low transition of the selected
// lower nibble.
type Joypad struct {
	selectBits byte // bits 5-4 as last written to P1
	pressed    byte // Button bitmask, 1 = pressed
	lowerNib   byte // last computed active-low lower nibble, for edge detection

	ic *interrupt.Controller
}

// New returns a Joypad wired to raise interrupts through ic.
func New(ic *interrupt.Controller) *Joypad {
	j := &Joypad{lowerNib: 0x0F, ic: ic}
	return j
}

// ReadP1 returns the FF00 value: bits 7-6 read as 1, bits 5-4 reflect the
// last select write, bits 3-0 reflect the selected button group(s),
// active-low.
func (j *Joypad) ReadP1() byte {
	res := byte(0xC0 | (j.selectBits & 0x30) | 0x0F)
	if j.selectBits&0x10 == 0 { // P14 low selects D-pad
		if j.pressed&Right != 0 {
			res &^= 0x01
		}
		if j.pressed&Left != 0 {
			res &^= 0x02
		}
		if j.pressed&Up != 0 {
			res &^= 0x04
		}
		if j.pressed&Down != 0 {
			res &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 { // P15 low selects buttons
		if j.pressed&A != 0 {
			res &^= 0x01
		}
		if j.pressed&B != 0 {
			res &^= 0x02
		}
		if j.pressed&Select != 0 {
			res &^= 0x04
		}
		if j.pressed&Start != 0 {
			res &^= 0x08
		}
	}
	return res
}

// WriteP1 stores the two select bits and re-evaluates the interrupt edge.
func (j *Joypad) WriteP1(v byte) {
	j.selectBits = v & 0x30
	j.recompute()
}

// SetButtons updates which buttons are currently pressed (bitmask of the
// constants above, set bit = pressed) and re-evaluates the interrupt
// edge for the currently selected group(s).
func (j *Joypad) SetButtons(mask byte) {
	j.pressed = mask
	j.recompute()
}

// recompute derives the active-low lower nibble for the selected
// group(s) and raises Joypad on any bit that newly went 1->0.
func (j *Joypad) recompute() {
	next := byte(0x0F)
	if j.selectBits&0x10 == 0 {
		if j.pressed&Right != 0 {
			next &^= 0x01
		}
		if j.pressed&Left != 0 {
			next &^= 0x02
		}
		if j.pressed&Up != 0 {
			next &^= 0x04
		}
		if j.pressed&Down != 0 {
			next &^= 0x08
		}
	}
	if j.selectBits&0x20 == 0 {
		if j.pressed&A != 0 {
			next &^= 0x01
		}
		if j.pressed&B != 0 {
			next &^= 0x02
		}
		if j.pressed&Select != 0 {
			next &^= 0x04
		}
		if j.pressed&Start != 0 {
			next &^= 0x08
		}
	}
	falling := j.lowerNib &^ next // bits that were 1 and are now 0
	if falling != 0 && j.ic != nil {
		j.ic.Request(interrupt.Joypad)
	}
	j.lowerNib = next
}

// State is a serializable snapshot for savestates.
type State struct {
	SelectBits, Pressed, LowerNib byte
}

func (j *Joypad) SaveState() State {
	return State{SelectBits: j.selectBits, Pressed: j.pressed, LowerNib: j.lowerNib}
}

func (j *Joypad) LoadState(s State) {
	j.selectBits, j.pressed, j.lowerNib = s.SelectBits, s.Pressed, s.LowerNib
}
