package dma

import "testing"

type fakeHDMABus struct {
	mem  [0x10000]byte
	vram [0x2000]byte
}

func (f *fakeHDMABus) Read(addr uint16) byte { return f.mem[addr] }
func (f *fakeHDMABus) WriteVRAM(addr uint16, v byte) {
	if addr >= 0x8000 && addr <= 0x9FFF {
		f.vram[addr-0x8000] = v
	}
}

func TestHDMA_GeneralPurposeCopiesImmediately(t *testing.T) {
	var b fakeHDMABus
	for i := 0; i < 32; i++ {
		b.mem[0x4000+i] = byte(i + 1)
	}
	h := NewHDMA()
	h.WriteSrcHi(0x40)
	h.WriteSrcLo(0x00)
	h.WriteDstHi(0x80)
	h.WriteDstLo(0x00)
	blocks := h.WriteControl(0x01, &b) // (1+1)*16 = 32 bytes, bit7=0 -> general purpose
	if blocks != 2 {
		t.Fatalf("blocks copied got %d want 2", blocks)
	}
	if h.Active() {
		t.Fatalf("general-purpose transfer should not remain active")
	}
	for i := 0; i < 32; i++ {
		if b.vram[i] != byte(i+1) {
			t.Fatalf("vram[%d] = %d want %d", i, b.vram[i], i+1)
		}
	}
}

func TestHDMA_HBlankModeCopiesOneBlockPerCall(t *testing.T) {
	var b fakeHDMABus
	for i := 0; i < 32; i++ {
		b.mem[0x4000+i] = byte(0xA0 + i)
	}
	h := NewHDMA()
	h.WriteSrcHi(0x40)
	h.WriteSrcLo(0x00)
	h.WriteDstHi(0x80)
	h.WriteDstLo(0x00)
	blocks := h.WriteControl(0x81, &b) // bit7 set: arm H-Blank mode, 2 blocks
	if blocks != 0 || !h.Active() {
		t.Fatalf("expected armed H-Blank transfer, blocks=%d active=%v", blocks, h.Active())
	}
	if !h.OnHBlank(&b) {
		t.Fatalf("expected first H-Blank copy to report true")
	}
	if b.vram[0] != 0xA0 || b.vram[15] != 0xAF {
		t.Fatalf("first block not copied correctly")
	}
	if !h.Active() {
		t.Fatalf("expected one block remaining")
	}
	if !h.OnHBlank(&b) {
		t.Fatalf("expected second H-Blank copy to report true")
	}
	if h.Active() {
		t.Fatalf("expected transfer complete after 2 blocks")
	}
}

func TestHDMA_CancelMidTransfer(t *testing.T) {
	var b fakeHDMABus
	h := NewHDMA()
	h.WriteSrcHi(0x40)
	h.WriteDstHi(0x80)
	h.WriteControl(0x83, &b) // arm 4 blocks
	h.OnHBlank(&b)
	h.WriteControl(0x00, &b) // bit7=0 while active cancels
	if h.Active() {
		t.Fatalf("expected cancellation to clear active")
	}
}

func TestHDMA_SaveLoadState(t *testing.T) {
	var b fakeHDMABus
	h := NewHDMA()
	h.WriteSrcHi(0x40)
	h.WriteDstHi(0x80)
	h.WriteControl(0x83, &b)
	s := h.SaveState()
	h2 := NewHDMA()
	h2.LoadState(s)
	if !h2.Active() || h2.ReadLengthStatus() != h.ReadLengthStatus() {
		t.Fatalf("state did not round-trip")
	}
}
