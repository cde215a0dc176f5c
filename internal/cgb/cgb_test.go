package cgb

import "testing"

func TestController_DMGModeRegistersOpenBus(t *testing.T) {
	c := New(false)
	if c.ReadKEY0() != 0xFF || c.ReadKEY1() != 0xFF {
		t.Fatalf("DMG mode should read KEY0/KEY1 as open bus")
	}
	c.WriteKEY1(0x01)
	if c.DoubleSpeed() {
		t.Fatalf("DMG mode must never enter double speed")
	}
}

func TestController_SpeedSwitchArmAndPerform(t *testing.T) {
	c := New(true)
	c.WriteKEY1(0x01)
	if c.ReadKEY1()&0x01 == 0 {
		t.Fatalf("expected armed bit set after WriteKEY1(1)")
	}
	c.PerformStop()
	if !c.DoubleSpeed() {
		t.Fatalf("expected double speed after armed STOP")
	}
	if c.ReadKEY1()&0x01 != 0 {
		t.Fatalf("expected armed bit cleared after switch")
	}
	if c.ReadKEY1()&0x80 == 0 {
		t.Fatalf("expected speed bit set in KEY1")
	}
	c.WriteKEY1(0x01)
	c.PerformStop()
	if c.DoubleSpeed() {
		t.Fatalf("expected normal speed after second armed STOP")
	}
}

func TestController_UnarmedStopDoesNothing(t *testing.T) {
	c := New(true)
	c.PerformStop()
	if c.DoubleSpeed() {
		t.Fatalf("unarmed STOP must not switch speed")
	}
}

func TestController_SaveLoadState(t *testing.T) {
	c := New(true)
	c.WriteKEY1(0x01)
	c.PerformStop()
	s := c.SaveState()
	c2 := New(false)
	c2.LoadState(s)
	if !c2.DoubleSpeed() || !c2.CGBMode() {
		t.Fatalf("state did not round-trip")
	}
}
