package cart

// ROMOnly implements a cartridge with no banking chip: ROM reads
// straight through, optional flat external RAM (cart type 0x08/0x09),
// all control-register writes ignored.
type ROMOnly struct {
	rom        []byte
	ram        []byte
	hasBattery bool
}

// NewROMOnly returns a ROM-only cartridge. ramSize may be zero.
func NewROMOnly(rom []byte, ramSize int) *ROMOnly {
	return NewROMOnlyWithBattery(rom, ramSize, false)
}

// NewROMOnlyWithBattery is NewROMOnly plus an explicit battery flag, for
// cart type 0x09 (ROM+RAM+BATTERY, no mapper).
func NewROMOnlyWithBattery(rom []byte, ramSize int, hasBattery bool) *ROMOnly {
	c := &ROMOnly{rom: rom, hasBattery: hasBattery}
	if ramSize > 0 {
		c.ram = make([]byte, ramSize)
	}
	return c
}

func (c *ROMOnly) Read(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if int(addr) < len(c.rom) {
			return c.rom[addr]
		}
		return 0xFF
	case addr >= 0xA000 && addr <= 0xBFFF:
		if len(c.ram) == 0 {
			return 0xFF
		}
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			return c.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

// Write is a no-op for ROM control lines; external RAM (if present) is
// always enabled on this cart family, matching real ROM+RAM carts that
// have no RAM-enable gate.
func (c *ROMOnly) Write(addr uint16, value byte) {
	if addr >= 0xA000 && addr <= 0xBFFF && len(c.ram) > 0 {
		off := int(addr - 0xA000)
		if off < len(c.ram) {
			c.ram[off] = value
		}
	}
}

func (c *ROMOnly) Step(tcycles int) {}

func (c *ROMOnly) RAMBytes() []byte {
	if len(c.ram) == 0 {
		return nil
	}
	out := make([]byte, len(c.ram))
	copy(out, c.ram)
	return out
}

func (c *ROMOnly) LoadRAMBytes(data []byte) {
	if len(c.ram) == 0 {
		return
	}
	n := copy(c.ram, data)
	for i := n; i < len(c.ram); i++ {
		c.ram[i] = 0
	}
}

func (c *ROMOnly) HasBattery() bool { return c.hasBattery }

func (c *ROMOnly) SaveState() []byte     { return nil }
func (c *ROMOnly) LoadState(data []byte) {}
