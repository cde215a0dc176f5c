package ppu

import (
	"bytes"
	"encoding/gob"
)

type State struct {
	VRAM0, VRAM1      [0x2000]byte
	VRAMBank          byte
	OAM               [0xA0]byte
	LCDC, STAT        byte
	SCY, SCX          byte
	LY, LYC           byte
	BGP, OBP0, OBP1   byte
	WY, WX            byte
	BGPalRAM          [64]byte
	ObjPalRAM         [64]byte
	BGPI, OCPI, OPRI  byte
	CGBMode           bool
	Dot               int
	WindowLineCounter byte
	WindowTriggered   bool
}

func (p *PPU) SaveState() []byte {
	s := State{
		VRAM0: p.vram[0], VRAM1: p.vram[1], VRAMBank: p.vramBank,
		OAM: p.oam, LCDC: p.lcdc, STAT: p.stat, SCY: p.scy, SCX: p.scx,
		LY: p.ly, LYC: p.lyc, BGP: p.bgp, OBP0: p.obp0, OBP1: p.obp1,
		WY: p.wy, WX: p.wx, BGPalRAM: p.bgPalRAM, ObjPalRAM: p.objPalRAM,
		BGPI: p.bgpi, OCPI: p.ocpi, OPRI: p.opri, CGBMode: p.cgbMode,
		Dot: p.dot, WindowLineCounter: p.windowLineCounter, WindowTriggered: p.windowTriggered,
	}
	var buf bytes.Buffer
	_ = gob.NewEncoder(&buf).Encode(s)
	return buf.Bytes()
}

func (p *PPU) LoadState(data []byte) {
	var s State
	if len(data) == 0 {
		return
	}
	if err := gob.NewDecoder(bytes.NewReader(data)).Decode(&s); err != nil {
		return
	}
	p.vram[0], p.vram[1], p.vramBank = s.VRAM0, s.VRAM1, s.VRAMBank
	p.oam = s.OAM
	p.lcdc, p.stat, p.scy, p.scx = s.LCDC, s.STAT, s.SCY, s.SCX
	p.ly, p.lyc, p.bgp, p.obp0, p.obp1 = s.LY, s.LYC, s.BGP, s.OBP0, s.OBP1
	p.wy, p.wx = s.WY, s.WX
	p.bgPalRAM, p.objPalRAM = s.BGPalRAM, s.ObjPalRAM
	p.bgpi, p.ocpi, p.opri = s.BGPI, s.OCPI, s.OPRI
	p.cgbMode = s.CGBMode
	p.dot, p.windowLineCounter, p.windowTriggered = s.Dot, s.WindowLineCounter, s.WindowTriggered
}
