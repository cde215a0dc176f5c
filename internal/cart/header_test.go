package cart

import (
	"encoding/binary"
	"testing"
)

// buildROM makes a synthetic ROM with a valid header & checksums.
// size should match the ROM size code (e.g. 64*1024 for code 0x01).
func buildROM(title string, cartType, romSizeCode, ramSizeCode byte, size int) []byte {
	rom := make([]byte, size)

	copy(rom[0x0104:0x0104+len(nintendoLogo)], nintendoLogo[:])

	tbytes := []byte(title)
	if len(tbytes) > 16 {
		tbytes = tbytes[:16]
	}
	copy(rom[0x0134:0x0144], tbytes)

	rom[0x0143] = 0x00
	rom[0x0144], rom[0x0145] = '0', '1'
	rom[0x0146] = 0x00
	rom[0x0147] = cartType
	rom[0x0148] = romSizeCode
	rom[0x0149] = ramSizeCode
	rom[0x014A] = 0x00
	rom[0x014B] = 0x33
	rom[0x014C] = 0x01

	var hsum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		hsum = hsum - rom[addr] - 1
	}
	rom[0x014D] = hsum

	var gsum uint16
	for i := 0; i < len(rom); i++ {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	binary.BigEndian.PutUint16(rom[0x014E:0x0150], gsum)

	return rom
}

func TestParseHeader_Basic(t *testing.T) {
	rom := buildROM("TEST", 0x01, 0x01, 0x02, 64*1024) // MBC1, 64KiB, 8KiB RAM

	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader error: %v", err)
	}
	if h.Title != "TEST" {
		t.Fatalf("Title got %q want %q", h.Title, "TEST")
	}
	if h.CartType != 0x01 || h.CartTypeStr != "MBC1 (variants)" {
		t.Fatalf("CartType got %#02x / %s", h.CartType, h.CartTypeStr)
	}
	if h.ROMSizeBytes != 64*1024 || h.ROMBanks != 4 {
		t.Fatalf("ROM size decode got %d bytes / %d banks", h.ROMSizeBytes, h.ROMBanks)
	}
	if h.RAMSizeBytes != 8*1024 {
		t.Fatalf("RAM size decode got %d", h.RAMSizeBytes)
	}
	if !h.LogoValid {
		t.Fatalf("LogoValid = false, want true")
	}
	if !HeaderChecksumOK(rom) || !h.ChecksumValid {
		t.Fatalf("HeaderChecksumOK/ChecksumValid = false, want true")
	}

	var gsum uint16
	for i := 0; i < len(rom); i++ {
		if i == 0x014E || i == 0x014F {
			continue
		}
		gsum += uint16(rom[i])
	}
	if h.GlobalChecksum != gsum {
		t.Fatalf("Global checksum got %#04x want %#04x", h.GlobalChecksum, gsum)
	}
}

func TestHeaderChecksum_Bad(t *testing.T) {
	rom := buildROM("TEST", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0134] ^= 0xFF
	if HeaderChecksumOK(rom) {
		t.Fatalf("HeaderChecksumOK = true, want false after corruption")
	}
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader error: %v", err)
	}
	if h.ChecksumValid {
		t.Fatalf("ChecksumValid = true, want false")
	}
}

func TestParseHeader_BadLogoIsNonFatal(t *testing.T) {
	rom := buildROM("TEST", 0x00, 0x00, 0x00, 32*1024)
	rom[0x0104] ^= 0xFF
	h, err := ParseHeader(rom)
	if err != nil {
		t.Fatalf("ParseHeader error: %v", err)
	}
	if h.LogoValid {
		t.Fatalf("LogoValid = true, want false")
	}
}

func TestParseHeader_ShortROM(t *testing.T) {
	short := make([]byte, 0x140) // too small (header needs through 0x014F)
	if _, err := ParseHeader(short); err == nil {
		t.Fatalf("expected error on too-small ROM, got nil")
	}
}

func TestCGBFlags(t *testing.T) {
	h := &Header{CGBFlag: 0xC3}
	if !h.CGBOnly() || !h.CGBCompatible() {
		t.Fatalf("0xC3 should be CGB-only and CGB-compatible")
	}
	h = &Header{CGBFlag: 0x80}
	if h.CGBOnly() || !h.CGBCompatible() {
		t.Fatalf("0x80 should be CGB-compatible but not CGB-only")
	}
	h = &Header{CGBFlag: 0x00}
	if h.CGBOnly() || h.CGBCompatible() {
		t.Fatalf("0x00 should be neither CGB-only nor CGB-compatible")
	}
}

func TestDecodeTraits(t *testing.T) {
	cases := []struct {
		cartType byte
		want     traits
	}{
		{0x00, traits{kind: mbcNone}},
		{0x01, traits{kind: mbc1Kind}},
		{0x03, traits{kind: mbc1Kind, hasRAM: true, hasBattery: true}},
		{0x10, traits{kind: mbc3Kind, hasRAM: true, hasBattery: true, hasRTC: true}},
		{0x19, traits{kind: mbc5Kind}},
		{0x1E, traits{kind: mbc5Kind, hasRAM: true, hasBattery: true, hasRumble: true}},
		{0xFF, traits{kind: mbcUnsupported}},
	}
	for _, c := range cases {
		got := decodeTraits(c.cartType)
		if got != c.want {
			t.Fatalf("decodeTraits(%#02x) = %+v, want %+v", c.cartType, got, c.want)
		}
	}
}
