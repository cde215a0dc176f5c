package ppu

// Sprite is a single OAM entry already resolved for a particular
// scanline: X is screen-space (OAM's raw X-8 offset already applied),
// Y is set so that ly-Y is the tile-local row (0..7) to fetch for this
// line, with Y-flip already folded in by the caller — ComposeSpriteLine
// never re-flips. Tile/Attr are read straight from OAM (Tile already
// selects the correct 8x16 half).
type Sprite struct {
	X, Y     int
	Tile     byte
	Attr     byte
	OAMIndex int
}

const (
	attrPriority = 1 << 7
	attrYFlip    = 1 << 6
	attrXFlip    = 1 << 5
	attrDMGPal   = 1 << 4
	attrBank     = 1 << 3
	attrCGBPal   = 0x07
)

// ComposeSpriteLine draws up to len(sprites) 8x8 sprite rows onto a
// 160-wide line, honoring OBJ-to-BG priority (attr bit 7) against the
// already-rendered background color indices. Earlier entries in
// sprites win ties, so callers must pre-sort by hardware priority
// (X-ascending+OAM-index for DMG/CGB-OPRI1, OAM-index-only for CGB).
func ComposeSpriteLine(mem VRAMReader, sprites []Sprite, ly byte, bgci [160]byte, cgbMode bool) [160]byte {
	var out [160]byte
	var written [160]bool

	for _, s := range sprites {
		row := int(ly) - s.Y
		if row < 0 || row > 7 {
			continue
		}
		addr := uint16(0x8000) + uint16(s.Tile)*16 + uint16(row)*2
		lo := mem.Read(addr)
		hi := mem.Read(addr + 1)

		for px := 0; px < 8; px++ {
			sx := s.X + px
			if sx < 0 || sx >= 160 || written[sx] {
				continue
			}
			col := px
			if s.Attr&attrXFlip != 0 {
				col = 7 - px
			}
			bit := 7 - byte(col)
			ci := ((hi>>bit)&1)<<1 | ((lo >> bit) & 1)
			if ci == 0 {
				continue
			}
			if s.Attr&attrPriority != 0 && bgci[sx] != 0 {
				written[sx] = true // sprite exists at this x but stays hidden behind BG
				continue
			}
			out[sx] = ci
			written[sx] = true
		}
	}
	return out
}

// spriteHeight returns 8 or 16 depending on LCDC bit 2.
func spriteHeight(lcdc byte) int {
	if lcdc&0x04 != 0 {
		return 16
	}
	return 8
}

// selectSpritesForLine scans all 40 OAM entries and returns up to 10
// sprites intersecting ly, pre-sorted by hardware draw priority.
// cgbOAMOrder selects CGB's OAM-index-only ordering (OPRI=0); otherwise
// the DMG/OPRI=1 X-ascending-then-OAM-index ordering is used.
func selectSpritesForLine(oam *[0xA0]byte, lcdc byte, ly byte, cgbOAMOrder bool) []Sprite {
	height := spriteHeight(lcdc)
	var candidates []Sprite
	for i := 0; i < 40; i++ {
		base := i * 4
		rawY := oam[base+0]
		rawX := oam[base+1]
		tile := oam[base+2]
		attr := oam[base+3]
		y := int(rawY) - 16
		if int(ly) < y || int(ly) >= y+height {
			continue
		}
		// rowInSprite is 0..height-1, already flip-resolved here so
		// ComposeSpriteLine never needs to re-flip.
		rowInSprite := int(ly) - y
		if attr&attrYFlip != 0 {
			rowInSprite = height - 1 - rowInSprite
		}
		if height == 16 {
			tile &^= 0x01
			if rowInSprite >= 8 {
				tile |= 0x01
			}
		}
		localRow := rowInSprite % 8
		candidates = append(candidates, Sprite{
			X: int(rawX) - 8, Y: int(ly) - localRow, Tile: tile, Attr: attr, OAMIndex: i,
		})
		if len(candidates) == 10 {
			break
		}
	}
	if !cgbOAMOrder {
		for i := 1; i < len(candidates); i++ {
			for j := i; j > 0; j-- {
				a, b := candidates[j-1], candidates[j]
				if a.X > b.X || (a.X == b.X && a.OAMIndex > b.OAMIndex) {
					candidates[j-1], candidates[j] = candidates[j], candidates[j-1]
				} else {
					break
				}
			}
		}
	}
	return candidates
}
