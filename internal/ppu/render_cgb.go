package ppu

// VRAMBankReader lets the CGB-aware scanline helpers address either
// VRAM bank explicitly, independent of whichever bank FF4F currently
// selects for CPU access.
type VRAMBankReader interface {
	ReadBank(bank int, addr uint16) byte
}

// decodeBGAttr unpacks a CGB BG/window map attribute byte (Pan Docs):
// bit0-2 palette, bit3 VRAM bank, bit5 xflip, bit6 yflip, bit7 priority.
func decodeBGAttr(attr byte) (bank int, pal byte, xflip, yflip, priority bool) {
	bank = int((attr >> 3) & 0x01)
	pal = attr & attrCGBPal
	xflip = attr&attrXFlip != 0
	yflip = attr&attrYFlip != 0
	priority = attr&attrPriority != 0
	return
}

func fetchAttrTileRow(mem VRAMBankReader, tileNum byte, tileData8000 bool, bank int, fineY byte, yflip bool) (lo, hi byte) {
	row := fineY & 7
	if yflip {
		row = 7 - row
	}
	var base uint16
	if tileData8000 {
		base = 0x8000 + uint16(tileNum)*16 + uint16(row)*2
	} else {
		base = 0x9000 + uint16(int8(tileNum))*16 + uint16(row)*2
	}
	lo = mem.ReadBank(bank, base)
	hi = mem.ReadBank(bank, base+1)
	return
}

func colorIndex(lo, hi byte, col int, xflip bool) byte {
	c := col
	if xflip {
		c = 7 - col
	}
	bit := byte(7 - c)
	return ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
}

// RenderBGScanlineCGB renders 160 BG pixels plus their per-pixel
// palette index and BG-to-OBJ priority flag, reading tile numbers from
// VRAM bank 0 and attribute bytes from bank 1 at the mirrored map
// address.
func RenderBGScanlineCGB(mem VRAMBankReader, mapBase, attrBase uint16, tileData8000 bool, scx, scy, ly byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	bgY := uint16(ly) + uint16(scy)
	fineY := byte(bgY & 7)
	mapY := (bgY >> 3) & 31

	startX := uint16(scx)
	tileX := (startX >> 3) & 31
	fineX := int(startX & 7)

	x := 0
	first := true
	for x < 160 {
		off := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		bank, p, xflip, yflip, priority := decodeBGAttr(attr)
		lo, hi := fetchAttrTileRow(mem, tileNum, tileData8000, bank, fineY, yflip)

		startCol := 0
		if first {
			startCol = fineX
			first = false
		}
		for col := startCol; col < 8 && x < 160; col++ {
			ci[x] = colorIndex(lo, hi, col, xflip)
			pal[x] = p
			pri[x] = priority
			x++
		}
		tileX = (tileX + 1) & 31
	}
	return
}

// RenderWindowScanlineCGB is RenderBGScanlineCGB's window-layer
// counterpart: it starts painting at wxStart and fetches tile row
// winLine rather than applying SCX/SCY.
func RenderWindowScanlineCGB(mem VRAMBankReader, mapBase, attrBase uint16, tileData8000 bool, wxStart int, winLine byte) (ci [160]byte, pal [160]byte, pri [160]bool) {
	if wxStart >= 160 {
		return
	}
	if wxStart < 0 {
		wxStart = 0
	}
	mapY := uint16(winLine>>3) & 31
	fineY := winLine & 7
	tileX := uint16(0)

	x := wxStart
	for x < 160 {
		off := mapY*32 + tileX
		tileNum := mem.ReadBank(0, mapBase+off)
		attr := mem.ReadBank(1, attrBase+off)
		bank, p, xflip, yflip, priority := decodeBGAttr(attr)
		lo, hi := fetchAttrTileRow(mem, tileNum, tileData8000, bank, fineY, yflip)

		for col := 0; col < 8 && x < 160; col++ {
			ci[x] = colorIndex(lo, hi, col, xflip)
			pal[x] = p
			pri[x] = priority
			x++
		}
		tileX = (tileX + 1) & 31
	}
	return
}
