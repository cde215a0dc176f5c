package savepersist

import (
	"path/filepath"
	"testing"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
)

func TestBatteryPath(t *testing.T) {
	if got := BatteryPath("/roms/zelda.gb"); got != "/roms/zelda.sav" {
		t.Fatalf("got %q", got)
	}
	if got := RTCPath("/roms/zelda.gb"); got != "/roms/zelda.rtc" {
		t.Fatalf("got %q", got)
	}
}

func TestSaveLoadBattery(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.sav")

	rom := make([]byte, 0x8000)
	c := cart.NewMBC1(rom, 0x2000, true)
	c.Write(0x0000, 0x0A) // RAM enable
	c.Write(0xA000, 0x42)

	if ok, err := SaveBattery(path, c); err != nil || !ok {
		t.Fatalf("save: ok=%v err=%v", ok, err)
	}

	c2 := cart.NewMBC1(rom, 0x2000, true)
	c2.Write(0x0000, 0x0A)
	if ok, err := LoadBattery(path, c2); err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
	if got := c2.Read(0xA000); got != 0x42 {
		t.Fatalf("restored RAM got %02X want 42", got)
	}
}

func TestLoadBatteryMissingFileIsNotError(t *testing.T) {
	rom := make([]byte, 0x8000)
	c := cart.NewMBC1(rom, 0x2000, true)
	ok, err := LoadBattery(filepath.Join(t.TempDir(), "missing.sav"), c)
	if err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}

func TestSaveLoadRTC(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "game.rtc")

	rom := make([]byte, 0x8000)
	m := cart.NewMBC3(rom, 0x2000, true, true)
	m.Write(0x0000, 0x0A)
	m.Write(0x4000, 0x08)
	m.Write(0xA000, 30) // seconds

	if ok, err := SaveRTC(path, m); err != nil || !ok {
		t.Fatalf("save: ok=%v err=%v", ok, err)
	}

	m2 := cart.NewMBC3(rom, 0x2000, true, true)
	m2.Write(0x0000, 0x0A)
	if ok, err := LoadRTC(path, m2); err != nil || !ok {
		t.Fatalf("load: ok=%v err=%v", ok, err)
	}
}

func TestRTCOnNonRTCCartIsNoop(t *testing.T) {
	rom := make([]byte, 0x8000)
	c := cart.NewMBC1(rom, 0x2000, true)
	if ok, err := SaveRTC(filepath.Join(t.TempDir(), "x.rtc"), c); err != nil || ok {
		t.Fatalf("ok=%v err=%v", ok, err)
	}
}
