package ppu

// InterruptRequester is a callback signature to request IF bits (0:VBlank, 1:STAT, etc.).
type InterruptRequester func(bit int)

const (
	ScreenWidth  = 160
	ScreenHeight = 144
)

// PPU models VRAM/OAM, LCDC/STAT regs, LY/LYC, per-scanline BG/window/
// sprite compositing, and CGB palette RAM. It exposes CPU-facing
// Read/Write for VRAM/OAM/PPU IO regs plus WriteOAM/WriteVRAM hooks used
// by the OAM-DMA and HDMA engines (internal/dma).
type PPU struct {
	vram     [2][0x2000]byte // bank 0 always; bank 1 only meaningful in CGB mode
	vramBank byte            // FF4F bit0
	oam      [0xA0]byte

	lcdc byte // FF40
	stat byte // FF41
	scy  byte // FF42
	scx  byte // FF43
	ly   byte // FF44
	lyc  byte // FF45
	bgp  byte // FF47 (DMG only)
	obp0 byte // FF48 (DMG only)
	obp1 byte // FF49 (DMG only)
	wy   byte // FF4A
	wx   byte // FF4B

	// CGB BG/OBJ palette RAM (8 palettes x 4 colors x 2 bytes each).
	bgPalRAM  [64]byte
	objPalRAM [64]byte
	bgpi      byte // FF68
	ocpi      byte // FF6A
	opri      byte // FF6C: object priority mode (0=CGB OAM-order, 1=DMG X-order)

	cgbMode bool

	dot               int
	windowLineCounter byte
	windowTriggered   bool // cleared at frame start and LCD enable; never set (window use is decided from WY <= LY)

	framebuffer [ScreenHeight][ScreenWidth]uint16 // RGB555, 0x8000 bit unused

	lineRegs [ScreenHeight]LineRegisters

	req InterruptRequester
}

// LineRegisters is a per-scanline snapshot of state captured at the
// start of pixel-transfer (mode 3), used both for rendering that line
// and for introspection in tests.
type LineRegisters struct {
	WinLine byte // window-internal line counter used while rendering this line; 0 if window inactive
}

// LineRegs returns the captured register snapshot for scanline ly.
func (p *PPU) LineRegs(ly int) LineRegisters {
	if ly < 0 || ly >= ScreenHeight {
		return LineRegisters{}
	}
	return p.lineRegs[ly]
}

// Read implements VRAMReader for the DMG scanline helpers, reading
// through whichever VRAM bank is currently CPU-selected.
func (p *PPU) Read(addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[p.vramBank][addr-0x8000]
}

// ReadBank implements VRAMBankReader for the CGB scanline helpers.
func (p *PPU) ReadBank(bank int, addr uint16) byte {
	if addr < 0x8000 || addr > 0x9FFF {
		return 0xFF
	}
	return p.vram[bank&0x01][addr-0x8000]
}

func New(req InterruptRequester) *PPU { return &PPU{req: req} }

// SetCGBMode enables CGB palette RAM, the second VRAM bank, and the
// CGB sprite/priority rules. Called once at boot based on the cartridge
// header and the selected hardware mode.
func (p *PPU) SetCGBMode(on bool) { p.cgbMode = on }

func (p *PPU) Framebuffer() *[ScreenHeight][ScreenWidth]uint16 { return &p.framebuffer }

func (p *PPU) CPURead(addr uint16) byte {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return 0xFF
		}
		return p.vram[p.vramBank][addr-0x8000]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return 0xFF
		}
		return p.oam[addr-0xFE00]
	case addr == 0xFF40:
		return p.lcdc
	case addr == 0xFF41:
		return 0x80 | (p.stat & 0x7F)
	case addr == 0xFF42:
		return p.scy
	case addr == 0xFF43:
		return p.scx
	case addr == 0xFF44:
		return p.ly
	case addr == 0xFF45:
		return p.lyc
	case addr == 0xFF47:
		return p.bgp
	case addr == 0xFF48:
		return p.obp0
	case addr == 0xFF49:
		return p.obp1
	case addr == 0xFF4A:
		return p.wy
	case addr == 0xFF4B:
		return p.wx
	case addr == 0xFF4F:
		if !p.cgbMode {
			return 0xFF
		}
		return 0xFE | p.vramBank
	case addr == 0xFF68:
		if !p.cgbMode {
			return 0xFF
		}
		return p.bgpi
	case addr == 0xFF69:
		if !p.cgbMode {
			return 0xFF
		}
		return p.bgPalRAM[p.bgpi&0x3F]
	case addr == 0xFF6A:
		if !p.cgbMode {
			return 0xFF
		}
		return p.ocpi
	case addr == 0xFF6B:
		if !p.cgbMode {
			return 0xFF
		}
		return p.objPalRAM[p.ocpi&0x3F]
	case addr == 0xFF6C:
		if !p.cgbMode {
			return 0xFF
		}
		return 0xFE | p.opri
	default:
		return 0xFF
	}
}

func (p *PPU) CPUWrite(addr uint16, value byte) {
	switch {
	case addr >= 0x8000 && addr <= 0x9FFF:
		if (p.stat & 0x03) == 3 {
			return
		}
		p.vram[p.vramBank][addr-0x8000] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		m := p.stat & 0x03
		if m == 2 || m == 3 {
			return
		}
		p.oam[addr-0xFE00] = value
	case addr == 0xFF40:
		prev := p.lcdc
		p.lcdc = value
		if (p.lcdc&0x80) == 0 && (prev&0x80) != 0 {
			p.ly = 0
			p.dot = 0
			p.setMode(0)
			p.updateLYC()
		} else if (p.lcdc&0x80) != 0 && (prev&0x80) == 0 {
			p.ly = 0
			p.dot = 0
			p.windowLineCounter = 0
			p.windowTriggered = false
			p.setMode(2)
			p.updateLYC()
		}
	case addr == 0xFF41:
		p.stat = (p.stat & 0x07) | (value & 0x78)
	case addr == 0xFF42:
		p.scy = value
	case addr == 0xFF43:
		p.scx = value
	case addr == 0xFF44:
		p.ly = 0
		p.dot = 0
		p.updateLYC()
		if (p.lcdc & 0x80) != 0 {
			p.setMode(2)
		}
	case addr == 0xFF45:
		p.lyc = value
		p.updateLYC()
	case addr == 0xFF47:
		p.bgp = value
	case addr == 0xFF48:
		p.obp0 = value
	case addr == 0xFF49:
		p.obp1 = value
	case addr == 0xFF4A:
		p.wy = value
	case addr == 0xFF4B:
		p.wx = value
	case addr == 0xFF4F:
		if p.cgbMode {
			p.vramBank = value & 0x01
		}
	case addr == 0xFF68:
		if p.cgbMode {
			p.bgpi = value & 0xBF
		}
	case addr == 0xFF69:
		if p.cgbMode {
			p.bgPalRAM[p.bgpi&0x3F] = value
			if p.bgpi&0x80 != 0 {
				p.bgpi = 0x80 | ((p.bgpi + 1) & 0x3F)
			}
		}
	case addr == 0xFF6A:
		if p.cgbMode {
			p.ocpi = value & 0xBF
		}
	case addr == 0xFF6B:
		if p.cgbMode {
			p.objPalRAM[p.ocpi&0x3F] = value
			if p.ocpi&0x80 != 0 {
				p.ocpi = 0x80 | ((p.ocpi + 1) & 0x3F)
			}
		}
	case addr == 0xFF6C:
		if p.cgbMode {
			p.opri = value & 0x01
		}
	}
}

// WriteOAM is used exclusively by the OAM-DMA engine (internal/dma),
// which bypasses the mode-gating CPUWrite applies since DMA owns the
// bus during the transfer.
func (p *PPU) WriteOAM(index int, v byte) {
	if index >= 0 && index < len(p.oam) {
		p.oam[index] = v
	}
}

// WriteVRAM is used by the HDMA engine (internal/dma), writing into
// whichever VRAM bank is currently selected via FF4F.
func (p *PPU) WriteVRAM(addr uint16, v byte) {
	if addr >= 0x8000 && addr <= 0x9FFF {
		p.vram[p.vramBank][addr-0x8000] = v
	}
}

// Tick advances PPU state by the given number of dots (T-cycles),
// rendering a completed scanline into the framebuffer when the active
// line transitions out of pixel-transfer (mode 3) into H-Blank.
func (p *PPU) Tick(cycles int) {
	if cycles <= 0 {
		return
	}
	for i := 0; i < cycles; i++ {
		if (p.lcdc & 0x80) == 0 {
			continue
		}
		p.dot++

		var mode byte
		if p.ly >= 144 {
			mode = 1
		} else {
			switch {
			case p.dot < 80:
				mode = 2
			case p.dot < 80+172:
				mode = 3
			default:
				mode = 0
			}
		}
		prevMode := p.stat & 0x03
		p.setMode(mode)
		if prevMode == 2 && mode == 3 && p.ly < ScreenHeight {
			p.captureLineRegs()
		}
		if prevMode == 3 && mode == 0 && p.ly < ScreenHeight {
			p.renderScanline()
		}

		if p.dot >= 456 {
			p.dot = 0
			p.ly++
			if p.ly == 144 {
				if p.req != nil {
					p.req(0)
				}
				if (p.stat & (1 << 4)) != 0 {
					if p.req != nil {
						p.req(1)
					}
				}
			} else if p.ly > 153 {
				p.ly = 0
				p.windowLineCounter = 0
				p.windowTriggered = false
			}
			p.updateLYC()
			if p.ly >= 144 {
				p.setMode(1)
			} else {
				p.setMode(2)
			}
		}
	}
}

func (p *PPU) setMode(mode byte) {
	prev := p.stat & 0x03
	if prev == mode {
		return
	}
	p.stat = (p.stat &^ 0x03) | (mode & 0x03)
	switch mode {
	case 0:
		if (p.stat & (1 << 3)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	case 2:
		if (p.stat & (1 << 5)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	}
}

func (p *PPU) updateLYC() {
	if p.ly == p.lyc {
		p.stat |= 1 << 2
		if (p.stat & (1 << 6)) != 0 {
			if p.req != nil {
				p.req(1)
			}
		}
	} else {
		p.stat &^= 1 << 2
	}
}

func (p *PPU) BGP() byte  { return p.bgp }
func (p *PPU) OBP0() byte { return p.obp0 }
func (p *PPU) OBP1() byte { return p.obp1 }
func (p *PPU) LCDC() byte { return p.lcdc }
func (p *PPU) SCY() byte  { return p.scy }
func (p *PPU) SCX() byte  { return p.scx }
func (p *PPU) WY() byte   { return p.wy }
func (p *PPU) WX() byte   { return p.wx }

// captureLineRegs snapshots the window's activation/line-counter state
// at the start of pixel-transfer for p.ly, matching the hardware point
// where the window's visibility for the line is latched.
func (p *PPU) captureLineRegs() {
	ly := int(p.ly)
	active := p.lcdc&0x20 != 0 && p.wy <= p.ly && p.wx <= 166
	winLine := byte(0)
	if active {
		winLine = p.windowLineCounter
		p.windowLineCounter++
	}
	p.lineRegs[ly] = LineRegisters{WinLine: winLine}
}

// renderScanline composites BG, window, and sprites for p.ly into the
// framebuffer, in DMG or CGB mode as appropriate.
func (p *PPU) renderScanline() {
	ly := p.ly
	bgWinEnabled := p.lcdc&0x01 != 0 || p.cgbMode // CGB: bit0 instead toggles BG-vs-sprite priority; BG still drawn
	tileData8000 := p.lcdc&0x10 != 0
	bgMapBase := uint16(0x9800)
	if p.lcdc&0x08 != 0 {
		bgMapBase = 0x9C00
	}
	winMapBase := uint16(0x9800)
	if p.lcdc&0x40 != 0 {
		winMapBase = 0x9C00
	}

	var ci [160]byte
	var pal [160]byte
	var pri [160]bool

	if p.cgbMode {
		if bgWinEnabled {
			ci, pal, pri = RenderBGScanlineCGB(p, bgMapBase, bgMapBase, tileData8000, p.scx, p.scy, ly)
		}
		winActive := p.lineRegs[ly].WinLine != 0 || (p.lcdc&0x20 != 0 && p.wy <= ly)
		if winActive && p.lcdc&0x20 != 0 {
			wxStart := int(p.wx) - 7
			if wxStart < 160 {
				wci, wpal, wpri := RenderWindowScanlineCGB(p, winMapBase, winMapBase, tileData8000, wxStart, p.lineRegs[ly].WinLine)
				start := wxStart
				if start < 0 {
					start = 0
				}
				for x := start; x < 160; x++ {
					ci[x] = wci[x]
					pal[x] = wpal[x]
					pri[x] = wpri[x]
				}
			}
		}
	} else if bgWinEnabled {
		if p.lcdc&0x01 != 0 {
			ci = RenderBGScanlineUsingFetcher(p, bgMapBase, tileData8000, p.scx, p.scy, ly)
		}
		if p.lcdc&0x20 != 0 && p.wy <= ly {
			wxStart := int(p.wx) - 7
			if wxStart < 160 {
				wci := RenderWindowScanlineUsingFetcher(p, winMapBase, tileData8000, wxStart, p.lineRegs[ly].WinLine)
				start := wxStart
				if start < 0 {
					start = 0
				}
				for x := start; x < 160; x++ {
					ci[x] = wci[x]
				}
			}
		}
	}

	if p.lcdc&0x02 != 0 {
		cgbOAMOrder := p.cgbMode && p.opri == 0
		sprites := selectSpritesForLine(&p.oam, p.lcdc, ly, cgbOAMOrder)
		sci := ComposeSpriteLine(p, sprites, ly, ci, p.cgbMode)
		for x := 0; x < 160; x++ {
			if sci[x] != 0 {
				p.framebuffer[ly][x] = p.spriteColor(sprites, x, ly, sci[x])
			} else {
				p.framebuffer[ly][x] = p.bgColor(ci[x], pal[x], pri[x])
			}
		}
		return
	}

	for x := 0; x < 160; x++ {
		p.framebuffer[ly][x] = p.bgColor(ci[x], pal[x], pri[x])
	}
}

// bgColor resolves a BG/window color index to RGB555 using either the
// DMG monochrome palette register or CGB BG palette RAM.
func (p *PPU) bgColor(ci, pal byte, priority bool) uint16 {
	if p.cgbMode {
		return p.cgbPaletteColor(p.bgPalRAM[:], pal, ci)
	}
	shade := (p.bgp >> (ci * 2)) & 0x03
	return dmgShadeRGB555(shade)
}

// spriteColor resolves the color of the sprite occupying x on line ly,
// looking up its OBP0/OBP1 (DMG) or CGB OBJ palette.
func (p *PPU) spriteColor(sprites []Sprite, x int, ly byte, ci byte) uint16 {
	for _, s := range sprites {
		row := int(ly) - s.Y
		if row < 0 || row > 7 || x < s.X || x >= s.X+8 {
			continue
		}
		if p.cgbMode {
			return p.cgbPaletteColor(p.objPalRAM[:], s.Attr&attrCGBPal, ci)
		}
		obp := p.obp0
		if s.Attr&attrDMGPal != 0 {
			obp = p.obp1
		}
		shade := (obp >> (ci * 2)) & 0x03
		return dmgShadeRGB555(shade)
	}
	return dmgShadeRGB555(0)
}

func (p *PPU) cgbPaletteColor(ram []byte, pal, ci byte) uint16 {
	off := int(pal)*8 + int(ci)*2
	if off+1 >= len(ram) {
		return 0
	}
	lo, hi := ram[off], ram[off+1]
	return uint16(lo) | uint16(hi)<<8
}

// dmgShadeRGB555 maps a 2-bit DMG shade (0=lightest) to an RGB555
// grayscale approximation. For DMG-mode output internal/emu maps these
// four values back to shade indices and replaces them with its selected
// 4-color compatibility palette.
func dmgShadeRGB555(shade byte) uint16 {
	var v uint16
	switch shade {
	case 0:
		v = 31
	case 1:
		v = 21
	case 2:
		v = 10
	default:
		v = 0
	}
	return v | v<<5 | v<<10
}
