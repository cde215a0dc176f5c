// Package cart implements cartridge header parsing and the MBC1/MBC3/MBC5
// memory-bank controllers (plus a no-MBC passthrough), per spec.md §4.3.
package cart

// Cartridge is the shared contract every mapper implements (spec.md
// §4.3): CPU-facing read/write over ROM and external RAM/RTC, a T-cycle
// step hook for mappers with internal clocks (only MBC3 uses it), and
// RAM persistence hooks for battery-backed carts.
type Cartridge interface {
	// Read returns a byte for ROM (0x0000-0x7FFF) and external RAM or RTC
	// registers (0xA000-0xBFFF).
	Read(addr uint16) byte
	// Write handles MBC control writes (0x0000-0x7FFF) and external RAM
	// or RTC register writes (0xA000-0xBFFF).
	Write(addr uint16, value byte)
	// Step advances any internal clock (MBC3's RTC) by tcycles T-cycles.
	// No-op for mappers without one.
	Step(tcycles int)
	// RAMBytes returns a copy of external RAM for persistence (nil if the
	// cartridge has none).
	RAMBytes() []byte
	// LoadRAMBytes restores external RAM from a previous save, padding or
	// truncating to the cartridge's declared RAM size.
	LoadRAMBytes(data []byte)
	// HasBattery reports whether external RAM (and RTC, if present)
	// should be persisted across sessions.
	HasBattery() bool

	// SaveState/LoadState serialize mapper-internal registers (bank
	// selects, RTC counters, latch state) for the emulator's savestate
	// container. RAM itself is carried separately via RAMBytes.
	SaveState() []byte
	LoadState(data []byte)
}

// RTC is implemented by mappers exposing a real-time clock (MBC3) for
// the persistence layer's textual sidecar (spec.md §6).
type RTC interface {
	RTCSnapshot() RTCState
	LoadRTCSnapshot(RTCState, int64)
}

// New picks a Cartridge implementation based on the ROM header's cart
// type byte, via the pure decodeTraits lookup rather than a
// enum-with-methods hierarchy (spec.md §9 design note).
func New(rom []byte) Cartridge {
	h, err := ParseHeader(rom)
	if err != nil {
		return NewROMOnly(rom, 0)
	}
	t := decodeTraits(h.CartType)
	ramSize := 0
	if t.hasRAM {
		ramSize = h.RAMSizeBytes
	}
	switch t.kind {
	case mbc1Kind:
		return NewMBC1(rom, ramSize, t.hasBattery)
	case mbc3Kind:
		return NewMBC3(rom, ramSize, t.hasBattery, t.hasRTC)
	case mbc5Kind:
		return NewMBC5(rom, ramSize, t.hasBattery, t.hasRumble)
	default:
		return NewROMOnlyWithBattery(rom, ramSize, t.hasBattery)
	}
}
