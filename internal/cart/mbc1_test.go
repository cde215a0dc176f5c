package cart

import "testing"

func TestMBC1_ROMBanking(t *testing.T) {
	// Build a 128KB ROM with distinct bytes per bank at start of each bank
	rom := make([]byte, 128*1024)
	for bank := 0; bank < 8; bank++ {
		rom[bank*0x4000] = byte(bank)
	}
	m := NewMBC1(rom, 0, false)

	if got := m.Read(0x0000); got != 0x00 {
		t.Fatalf("bank0 read got %02X want 00", got)
	}

	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank1 read got %02X want 01", got)
	}

	m.Write(0x2000, 0x03)
	if got := m.Read(0x4000); got != 0x03 {
		t.Fatalf("bank3 read got %02X want 03", got)
	}

	m.Write(0x2000, 0x00)
	if got := m.Read(0x4000); got != 0x01 {
		t.Fatalf("bank0->1 remap failed: got %02X", got)
	}
}

func TestMBC1_RAMBanking_Mode1(t *testing.T) {
	rom := make([]byte, 128*1024)
	m := NewMBC1(rom, 32*1024, true)

	m.Write(0x0000, 0x0A)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x02)

	m.Write(0xA000, 0x77)
	if got := m.Read(0xA000); got != 0x77 {
		t.Fatalf("RAM bank2 RW failed: got %02X", got)
	}
}

func TestMBC1_SaveLoadState(t *testing.T) {
	rom := make([]byte, 128*1024)
	m := NewMBC1(rom, 0, false)
	m.Write(0x2000, 0x05)
	m.Write(0x6000, 0x01)
	m.Write(0x4000, 0x02)

	data := m.SaveState()
	n := NewMBC1(rom, 0, false)
	n.LoadState(data)
	if n.Read(0x4000) != m.Read(0x4000) {
		t.Fatalf("LoadState did not restore bank selection")
	}
}

func TestMBC1_RAMPersistence(t *testing.T) {
	rom := make([]byte, 128*1024)
	m := NewMBC1(rom, 8*1024, true)
	m.Write(0x0000, 0x0A)
	m.Write(0xA000, 0x42)

	data := m.RAMBytes()
	n := NewMBC1(rom, 8*1024, true)
	n.LoadRAMBytes(data)
	n.Write(0x0000, 0x0A)
	if got := n.Read(0xA000); got != 0x42 {
		t.Fatalf("RAM persistence failed: got %02X", got)
	}
}
