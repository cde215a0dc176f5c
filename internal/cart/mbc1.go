package cart

// MBC1 implements the classic 2-register ROM/RAM banking scheme: a 5-bit
// lower ROM-bank register, a 2-bit register shared between RAM-bank and
// ROM-bank-high duty depending on the 1-bit banking-mode select.
type MBC1 struct {
	rom []byte
	ram []byte

	romBankLow5 byte // lower 5 bits of ROM bank (0 coerced to 1)
	upperBits   byte // 2-bit RAM-bank / ROM-bank-high register
	ramEnabled  bool
	mode        byte // 0: ROM banking, 1: RAM banking

	hasBattery bool
	romBanks   int
}

// NewMBC1 returns an MBC1 cartridge. ramSize may be zero.
func NewMBC1(rom []byte, ramSize int, hasBattery bool) *MBC1 {
	m := &MBC1{rom: rom, romBankLow5: 1, hasBattery: hasBattery}
	if ramSize > 0 {
		m.ram = make([]byte, ramSize)
	}
	m.romBanks = len(rom) / 0x4000
	if m.romBanks == 0 {
		m.romBanks = 1
	}
	return m
}

func (m *MBC1) Read(addr uint16) byte {
	switch {
	case addr < 0x4000:
		bank := 0
		if m.mode == 1 {
			bank = int(m.upperBits&0x03) << 5
		}
		return m.romByte(bank, int(addr))
	case addr < 0x8000:
		return m.romByte(int(m.effectiveROMBank()), int(addr-0x4000))
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return 0xFF
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			return m.ram[off]
		}
		return 0xFF
	default:
		return 0xFF
	}
}

func (m *MBC1) romByte(bank, offsetInBank int) byte {
	off := bank*0x4000 + offsetInBank
	if off >= 0 && off < len(m.rom) {
		return m.rom[off]
	}
	return 0xFF
}

func (m *MBC1) ramOffset(addr uint16) int {
	ramBank := 0
	if m.mode == 1 {
		ramBank = int(m.upperBits & 0x03)
	}
	return ramBank*0x2000 + int(addr-0xA000)
}

func (m *MBC1) Write(addr uint16, value byte) {
	switch {
	case addr < 0x2000:
		m.ramEnabled = value&0x0F == 0x0A
	case addr < 0x4000:
		v := value & 0x1F
		if v == 0 {
			v = 1
		}
		m.romBankLow5 = v
	case addr < 0x6000:
		m.upperBits = value & 0x03
	case addr < 0x8000:
		m.mode = value & 0x01
	case addr >= 0xA000 && addr <= 0xBFFF:
		if !m.ramEnabled || len(m.ram) == 0 {
			return
		}
		off := m.ramOffset(addr)
		if off < len(m.ram) {
			m.ram[off] = value
		}
	}
}

// effectiveROMBank combines the upper 2 bits with the lower 5 bits. When
// romBankLow5 is 0 it was already coerced to 1 on write, so banks
// 0x00/0x20/0x40/0x60 are never reachable at 4000-7FFF, per spec.md §3.
func (m *MBC1) effectiveROMBank() byte {
	bank := m.romBankLow5 | (m.upperBits << 5)
	if m.romBanks > 0 {
		bank %= byte(m.romBanks)
	}
	return bank
}

func (m *MBC1) Step(tcycles int) {}

func (m *MBC1) RAMBytes() []byte {
	if len(m.ram) == 0 {
		return nil
	}
	out := make([]byte, len(m.ram))
	copy(out, m.ram)
	return out
}

func (m *MBC1) LoadRAMBytes(data []byte) {
	if len(m.ram) == 0 {
		return
	}
	n := copy(m.ram, data)
	for i := n; i < len(m.ram); i++ {
		m.ram[i] = 0
	}
}

func (m *MBC1) HasBattery() bool { return m.hasBattery }

type mbc1State struct {
	RomBankLow5, UpperBits, Mode byte
	RamEnabled                   bool
}

func (m *MBC1) SaveState() []byte {
	return encodeGob(mbc1State{m.romBankLow5, m.upperBits, m.mode, m.ramEnabled})
}

func (m *MBC1) LoadState(data []byte) {
	var s mbc1State
	if decodeGob(data, &s) {
		m.romBankLow5, m.upperBits, m.mode, m.ramEnabled = s.RomBankLow5, s.UpperBits, s.Mode, s.RamEnabled
	}
}
