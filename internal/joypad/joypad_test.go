package joypad

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/interrupt"
)

func TestJoypad_DefaultReadAllReleased(t *testing.T) {
	j := New(interrupt.New())
	if got := j.ReadP1(); got&0x0F != 0x0F {
		t.Fatalf("default lower bits got %02X want 0F", got&0x0F)
	}
}

func TestJoypad_DPadSelection(t *testing.T) {
	j := New(interrupt.New())
	j.WriteP1(0x20) // bit5=1 bit4=0: select D-pad
	j.SetButtons(Right | Up)
	if got := j.ReadP1() & 0x0F; got != 0x0A {
		t.Fatalf("D-pad got %02X want 0A", got)
	}
}

func TestJoypad_ButtonSelection(t *testing.T) {
	j := New(interrupt.New())
	j.WriteP1(0x10) // bit5=0 bit4=1: select buttons
	j.SetButtons(A | Start)
	if got := j.ReadP1() & 0x0F; got != 0x06 {
		t.Fatalf("buttons got %02X want 06", got)
	}
}

func TestJoypad_FallingEdgeRaisesInterrupt(t *testing.T) {
	ic := interrupt.New()
	ic.WriteIE(1 << interrupt.Joypad.Bit())
	j := New(ic)
	j.WriteP1(0x20) // select D-pad
	j.SetButtons(Down)
	if !ic.AnyPending() {
		t.Fatalf("expected Joypad interrupt pending after a press")
	}
}

func TestJoypad_SaveLoadState(t *testing.T) {
	j := New(interrupt.New())
	j.WriteP1(0x20)
	j.SetButtons(Left | B)
	s := j.SaveState()
	j2 := New(interrupt.New())
	j2.LoadState(s)
	if j2.ReadP1() != j.ReadP1() {
		t.Fatalf("state did not round-trip")
	}
}
