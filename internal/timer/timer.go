// Package timer implements the Game Boy's programmable timer: the 16-bit
// internal divider, TIMA/TMA/TAC, and the falling-edge increment behavior
// that Mooneye's timer conformance suite depends on.
package timer

import "github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/interrupt"

// divider bit selected by each TAC frequency code.
var selectBit = [4]uint{9, 3, 5, 7} // 4096Hz, 262144Hz, 65536Hz, 16384Hz

// Timer owns DIV/TIMA/TMA/TAC and the internal 16-bit divider.
type Timer struct {
	divInternal uint16
	tima        byte
	tma         byte
	tac         byte // low 3 bits meaningful

	// reloadDelay counts T-cycles remaining until a pending TIMA overflow
	// reloads from TMA and raises the Timer interrupt (4, one M-cycle,
	// when armed). 0 means no pending reload. T-cycles match the bus's
	// per-T-cycle Tick granularity.
	reloadDelay int

	ic *interrupt.Controller
}

// New returns a Timer wired to raise interrupts through ic.
func New(ic *interrupt.Controller) *Timer {
	return &Timer{ic: ic}
}

// Reset returns the timer to its zero state.
func (t *Timer) Reset() {
	t.divInternal = 0
	t.tima = 0
	t.tma = 0
	t.tac = 0
	t.reloadDelay = 0
}

// ReadDIV returns the upper 8 bits of the internal divider.
func (t *Timer) ReadDIV() byte { return byte(t.divInternal >> 8) }

// WriteDIV resets the entire 16-bit divider to zero. If the timer input
// was high before the reset (selected bit AND TAC-enable), the reset
// synthesizes a falling edge and increments TIMA.
func (t *Timer) WriteDIV() {
	old := t.input()
	t.divInternal = 0
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// ReadTIMA returns TIMA. During the one-M-cycle window after an overflow
// and before reload, TIMA reads as 0x00 (already stored that way).
func (t *Timer) ReadTIMA() byte { return t.tima }

// WriteTIMA stores a value to TIMA. Writing during the pending-reload
// window cancels the reload (the written value wins outright).
func (t *Timer) WriteTIMA(v byte) {
	t.tima = v
	t.reloadDelay = 0
}

// ReadTMA returns TMA.
func (t *Timer) ReadTMA() byte { return t.tma }

// WriteTMA stores TMA. A write that lands during the reload window is
// observed: the value being reloaded this cycle reflects the new TMA.
func (t *Timer) WriteTMA(v byte) { t.tma = v }

// ReadTAC returns TAC with its unused upper bits read as 1.
func (t *Timer) ReadTAC() byte { return 0xF8 | (t.tac & 0x07) }

// WriteTAC stores TAC. Changing the enable bit or frequency select can
// synthesize a falling edge on the timer input exactly like a DIV reset.
func (t *Timer) WriteTAC(v byte) {
	old := t.input()
	t.tac = v & 0x07
	if old && !t.input() {
		t.incrementTIMA()
	}
}

// input is the AND of the TAC-selected divider bit and the TAC enable bit.
func (t *Timer) input() bool {
	if t.tac&0x04 == 0 {
		return false
	}
	bit := selectBit[t.tac&0x03]
	return (t.divInternal>>bit)&1 != 0
}

// Tick advances the timer by one T-cycle. The bus calls this four
// times (one M-cycle) before dispatching each Read/Write, and again
// for whatever T-cycles of an instruction carried no bus access, so
// the total per instruction still matches its full cycle cost.
func (t *Timer) Tick() {
	old := t.input()
	t.divInternal++
	falling := old && !t.input()

	if t.reloadDelay > 0 {
		t.reloadDelay--
		if t.reloadDelay == 0 {
			t.tima = t.tma
			if t.ic != nil {
				t.ic.Request(interrupt.Timer)
			}
		}
	}

	if falling {
		t.incrementTIMA()
	}
}

func (t *Timer) incrementTIMA() {
	if t.reloadDelay > 0 {
		// A reload is already armed; hardware keeps counting toward it.
		return
	}
	if t.tima == 0xFF {
		t.tima = 0x00
		t.reloadDelay = 4 // one M-cycle, expressed in T-cycles
		return
	}
	t.tima++
}

// State is a serializable snapshot for savestates.
type State struct {
	DivInternal uint16
	TIMA, TMA   byte
	TAC         byte
	ReloadDelay int
}

func (t *Timer) SaveState() State {
	return State{DivInternal: t.divInternal, TIMA: t.tima, TMA: t.tma, TAC: t.tac, ReloadDelay: t.reloadDelay}
}

func (t *Timer) LoadState(s State) {
	t.divInternal = s.DivInternal
	t.tima = s.TIMA
	t.tma = s.TMA
	t.tac = s.TAC & 0x07
	t.reloadDelay = s.ReloadDelay
}
