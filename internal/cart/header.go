package cart

import (
	"encoding/binary"
	"errors"
	"strings"
)

const (
	headerStart = 0x0100
	headerEnd   = 0x014F
)

var nintendoLogo = [48]byte{
	0xCE, 0xED, 0x66, 0x66, 0xCC, 0x0D, 0x00, 0x0B, 0x03, 0x73, 0x00, 0x83, 0x00, 0x0C, 0x00, 0x0D,
	0x00, 0x08, 0x11, 0x1F, 0x88, 0x89, 0x00, 0x0E, 0xDC, 0xCC, 0x6E, 0xE6, 0xDD, 0xDD, 0xD9, 0x99,
	0xBB, 0xBB, 0x67, 0x63, 0x6E, 0x0E, 0xEC, 0xCC, 0xDD, 0xDC, 0x99, 0x9F, 0xBB, 0xB9, 0x33, 0x3E,
}

// Header is the parsed 0x0100-0x014F cartridge header.
type Header struct {
	Title          string
	CGBFlag        byte
	NewLicensee    string
	SGBFlag        byte
	CartType       byte
	ROMSizeCode    byte
	RAMSizeCode    byte
	Destination    byte
	OldLicensee    byte
	ROMVersion     byte
	HeaderChecksum byte
	GlobalChecksum uint16

	ROMSizeBytes int
	ROMBanks     int
	RAMSizeBytes int
	CartTypeStr  string

	LogoValid     bool
	ChecksumValid bool
}

// ParseHeader reads the fixed header region. It returns an error only
// when the ROM is too small to contain a header at all; a bad logo or
// checksum is recorded on the Header rather than treated as fatal, since
// many homebrew and conformance ROMs intentionally omit them.
func ParseHeader(rom []byte) (*Header, error) {
	if len(rom) < headerEnd+1 {
		return nil, errors.New("cart: rom too small to contain header")
	}

	logoValid := true
	for i := 0; i < 48; i++ {
		if rom[0x0104+i] != nintendoLogo[i] {
			logoValid = false
			break
		}
	}

	rawTitle := rom[0x0134:0x0144]
	title := strings.TrimRight(string(rawTitle), "\x00")

	h := &Header{
		Title:          title,
		CGBFlag:        rom[0x0143],
		NewLicensee:    string(rom[0x0144:0x0146]),
		SGBFlag:        rom[0x0146],
		CartType:       rom[0x0147],
		ROMSizeCode:    rom[0x0148],
		RAMSizeCode:    rom[0x0149],
		Destination:    rom[0x014A],
		OldLicensee:    rom[0x014B],
		ROMVersion:     rom[0x014C],
		HeaderChecksum: rom[0x014D],
		GlobalChecksum: binary.BigEndian.Uint16(rom[0x014E:0x0150]),
		LogoValid:      logoValid,
	}

	h.ROMSizeBytes, h.ROMBanks = decodeROMSize(h.ROMSizeCode)
	h.RAMSizeBytes = decodeRAMSize(h.RAMSizeCode)
	h.CartTypeStr = cartTypeString(h.CartType)
	h.ChecksumValid = HeaderChecksumOK(rom)

	return h, nil
}

// CGBOnly reports whether the cartridge requires CGB hardware (0xC3).
func (h *Header) CGBOnly() bool { return h.CGBFlag == 0xC3 }

// CGBCompatible reports whether the cartridge supports CGB enhancements
// (0x80 or 0xC3).
func (h *Header) CGBCompatible() bool { return h.CGBFlag == 0x80 || h.CGBFlag == 0xC3 }

// HeaderChecksumOK recomputes the header checksum (starting from 0, for
// each byte b in 0x134..0x14C: x = x - b - 1, modulo 256) and compares it
// against the stored checksum byte at 0x14D.
func HeaderChecksumOK(rom []byte) bool {
	if len(rom) < 0x014E {
		return false
	}
	var sum byte
	for addr := 0x0134; addr <= 0x014C; addr++ {
		sum = sum - rom[addr] - 1
	}
	return sum == rom[0x014D]
}

func decodeROMSize(code byte) (size, banks int) {
	switch code {
	case 0x00:
		return 32 * 1024, 2
	case 0x01:
		return 64 * 1024, 4
	case 0x02:
		return 128 * 1024, 8
	case 0x03:
		return 256 * 1024, 16
	case 0x04:
		return 512 * 1024, 32
	case 0x05:
		return 1 * 1024 * 1024, 64
	case 0x06:
		return 2 * 1024 * 1024, 128
	case 0x07:
		return 4 * 1024 * 1024, 256
	case 0x08:
		return 8 * 1024 * 1024, 512
	case 0x52:
		return 1152 * 1024, 72
	case 0x53:
		return 1280 * 1024, 80
	case 0x54:
		return 1536 * 1024, 96
	default:
		return 0, 0
	}
}

func decodeRAMSize(code byte) int {
	switch code {
	case 0x00:
		return 0
	case 0x01:
		return 2 * 1024
	case 0x02:
		return 8 * 1024
	case 0x03:
		return 32 * 1024
	case 0x04:
		return 128 * 1024
	case 0x05:
		return 64 * 1024
	default:
		return 0
	}
}

func cartTypeString(code byte) string {
	switch code {
	case 0x00:
		return "ROM ONLY"
	case 0x01, 0x02, 0x03:
		return "MBC1 (variants)"
	case 0x05, 0x06:
		return "MBC2 (variants)"
	case 0x0F, 0x10, 0x11, 0x12, 0x13:
		return "MBC3 (variants)"
	case 0x19, 0x1A, 0x1B, 0x1C, 0x1D, 0x1E:
		return "MBC5 (variants)"
	default:
		return "Other/unknown"
	}
}

// mbcKind is the decoded mapper family for a cart-type byte.
type mbcKind int

const (
	mbcNone mbcKind = iota
	mbc1Kind
	mbc3Kind
	mbc5Kind
	mbcUnsupported
)

// traits describes everything the cartridge factory needs from a
// cart-type byte, extracted via a single pure function (spec.md §9
// design note: "extract MBC-type, has-battery, has-RTC, has-RAM via a
// single pure function over the byte", rather than an enum-with-methods).
type traits struct {
	kind       mbcKind
	hasRAM     bool
	hasBattery bool
	hasRTC     bool
	hasRumble  bool
}

func decodeTraits(cartType byte) traits {
	switch cartType {
	case 0x00:
		return traits{kind: mbcNone}
	case 0x08:
		return traits{kind: mbcNone, hasRAM: true}
	case 0x09:
		return traits{kind: mbcNone, hasRAM: true, hasBattery: true}
	case 0x01:
		return traits{kind: mbc1Kind}
	case 0x02:
		return traits{kind: mbc1Kind, hasRAM: true}
	case 0x03:
		return traits{kind: mbc1Kind, hasRAM: true, hasBattery: true}
	case 0x0F:
		return traits{kind: mbc3Kind, hasBattery: true, hasRTC: true}
	case 0x10:
		return traits{kind: mbc3Kind, hasRAM: true, hasBattery: true, hasRTC: true}
	case 0x11:
		return traits{kind: mbc3Kind}
	case 0x12:
		return traits{kind: mbc3Kind, hasRAM: true}
	case 0x13:
		return traits{kind: mbc3Kind, hasRAM: true, hasBattery: true}
	case 0x19:
		return traits{kind: mbc5Kind}
	case 0x1A:
		return traits{kind: mbc5Kind, hasRAM: true}
	case 0x1B:
		return traits{kind: mbc5Kind, hasRAM: true, hasBattery: true}
	case 0x1C:
		return traits{kind: mbc5Kind, hasRumble: true}
	case 0x1D:
		return traits{kind: mbc5Kind, hasRAM: true, hasRumble: true}
	case 0x1E:
		return traits{kind: mbc5Kind, hasRAM: true, hasBattery: true, hasRumble: true}
	default:
		return traits{kind: mbcUnsupported}
	}
}
