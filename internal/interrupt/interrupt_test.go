package interrupt

import "testing"

func TestController_RequestAcknowledge(t *testing.T) {
	c := New()
	c.Request(Timer)
	if got := c.ReadIF(); got != 0xE0|(1<<2) {
		t.Fatalf("IF got %02X want %02X", got, 0xE0|(1<<2))
	}
	c.Acknowledge(Timer)
	if got := c.ReadIF(); got != 0xE0 {
		t.Fatalf("IF after ack got %02X want E0", got)
	}
}

func TestController_PriorityOrder(t *testing.T) {
	c := New()
	c.WriteIE(0x1F)
	c.Request(Serial)
	c.Request(VBlank)
	c.Request(Timer)
	k, ok := c.Pending()
	if !ok || k != VBlank {
		t.Fatalf("expected VBlank to win priority, got %v ok=%v", k, ok)
	}
}

func TestController_PendingRequiresEnable(t *testing.T) {
	c := New()
	c.Request(Timer)
	if _, ok := c.Pending(); ok {
		t.Fatalf("expected no pending interrupt without IE set")
	}
	if c.AnyPending() {
		t.Fatalf("AnyPending should require IE&IF overlap")
	}
	c.WriteIE(1 << Timer.Bit())
	if !c.AnyPending() {
		t.Fatalf("expected AnyPending true once IE enables Timer")
	}
}

func TestKind_Vector(t *testing.T) {
	cases := []struct {
		k    Kind
		want uint16
	}{
		{VBlank, 0x40}, {LCDStat, 0x48}, {Timer, 0x50}, {Serial, 0x58}, {Joypad, 0x60},
	}
	for _, c := range cases {
		if got := c.k.Vector(); got != c.want {
			t.Fatalf("%v vector got %04X want %04X", c.k, got, c.want)
		}
	}
}

func TestController_SaveLoadState(t *testing.T) {
	c := New()
	c.WriteIE(0x1F)
	c.Request(LCDStat)
	s := c.SaveState()
	c2 := New()
	c2.LoadState(s)
	if c2.ReadIE() != 0x1F || c2.ReadIF() != c.ReadIF() {
		t.Fatalf("state did not round-trip")
	}
}
