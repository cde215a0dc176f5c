// Package bus wires the CPU-visible 16-bit address space to the
// cartridge, WRAM/HRAM, and every peripheral: PPU, APU, timer,
// interrupt controller, joypad, OAM-DMA, and (CGB) HDMA, WRAM banking,
// and the KEY0/KEY1 speed-switch registers.
//
// Read and Write tick the timer and OAM-DMA by one M-cycle before
// dispatching the access, so both observe bus state at the exact
// M-cycle the CPU touches memory rather than at instruction boundary.
package bus

import (
	"io"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/apu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cart"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/cgb"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/dma"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/interrupt"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/joypad"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/ppu"
	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/timer"
)

// Bus wires CPU-visible address space to cartridge, WRAM, HRAM, and IO.
type Bus struct {
	cart cart.Cartridge

	// Work RAM: bank 0 fixed at 0xC000-0xCFFF, banks 1-7 switchable via
	// FF70 at 0xD000-0xDFFF (CGB only; DMG behaves as if bank fixed at 1).
	wram     [8][0x1000]byte
	wramBank byte // FF70 low 3 bits, 0 reads/writes as bank 1

	// High RAM (HRAM) 0xFF80-0xFFFE (127 bytes)
	hram [0x7F]byte

	ppu *ppu.PPU
	apu *apu.APU

	ic     *interrupt.Controller
	tm     *timer.Timer
	joyp   *joypad.Joypad
	oamDMA *dma.OAM
	hdma   *dma.HDMA
	cgbCtl *cgb.Controller

	cgbMode bool
	// speedParity toggles every T-cycle in double speed so PPU/HDMA,
	// which run at the fixed hardware rate, are only advanced on every
	// other call while the CPU itself runs twice as fast.
	speedParity int
	// accessTCycles counts T-cycles already charged to the timer and
	// OAM-DMA by Read/Write since the last Tick call, so Tick only
	// needs to cover the instruction's internal (no-access) cycles.
	accessTCycles int

	// Serial
	sb byte      // FF01 data
	sc byte      // FF02 control (bit7 start, bit0 clock source; immediate external)
	sw io.Writer // sink for serial output (optional)

	// Boot ROM support: the 0x0000-0x00FF overlay and its FF50
	// disable-latch. No hardware initialization beyond what the boot
	// ROM's own code does is simulated.
	bootROM     []byte
	bootEnabled bool
}

// New constructs a Bus with a ROM-only cartridge for convenience.
func New(rom []byte) *Bus {
	return NewWithCartridge(cart.New(rom))
}

// NewWithCartridge wires a provided cartridge implementation. CGB mode
// is off until SetCGBMode is called once the header/hardware mode is known.
func NewWithCartridge(c cart.Cartridge) *Bus {
	b := &Bus{cart: c}
	b.ic = interrupt.New()
	b.tm = timer.New(b.ic)
	b.joyp = joypad.New(b.ic)
	b.oamDMA = dma.New()
	b.hdma = dma.NewHDMA()
	b.cgbCtl = cgb.New(false)
	b.apu = apu.New(44100)
	b.ppu = ppu.New(func(bit int) { b.ic.Request(interrupt.Kind(bit)) })
	return b
}

// SetCGBMode switches WRAM banking, PPU palette RAM/VRAM bank2, and the
// KEY0/KEY1 registers live. Called once after the cartridge header is
// parsed and the hardware mode (DMG/CGB) is chosen.
func (b *Bus) SetCGBMode(on bool) {
	b.cgbMode = on
	b.ppu.SetCGBMode(on)
	b.cgbCtl.SetCGBMode(on)
}

// PPU returns the internal PPU for rendering helpers.
func (b *Bus) PPU() *ppu.PPU { return b.ppu }

// APU returns the internal APU for audio-sink wiring.
func (b *Bus) APU() *apu.APU { return b.apu }

// Cart returns the underlying cartridge for save-RAM/RTC persistence.
func (b *Bus) Cart() cart.Cartridge { return b.cart }

// wramBankIndex returns the bank used for 0xD000-0xDFFF accesses: the
// stored FF70 value, with 0 coerced to 1 exactly like the real hardware.
func (b *Bus) wramBankIndex() byte {
	bank := b.wramBank & 0x07
	if bank == 0 {
		bank = 1
	}
	return bank
}

func (b *Bus) wramRead(addr uint16) byte {
	off := addr - 0xC000
	if off < 0x1000 {
		return b.wram[0][off]
	}
	return b.wram[b.wramBankIndex()][off-0x1000]
}

func (b *Bus) wramWrite(addr uint16, v byte) {
	off := addr - 0xC000
	if off < 0x1000 {
		b.wram[0][off] = v
		return
	}
	b.wram[b.wramBankIndex()][off-0x1000] = v
}

// chargeAccess ticks the timer and OAM-DMA by one M-cycle (4 T-cycles),
// called at the top of every Read/Write so they observe bus state at
// the exact M-cycle of the access rather than at instruction boundary
// (required for Blargg's instr_timing and Mooneye's timer suite).
func (b *Bus) chargeAccess() {
	for i := 0; i < 4; i++ {
		b.tm.Tick()
	}
	if b.oamDMA.Active() {
		b.oamDMA.Tick(busRaw{b})
	}
	b.accessTCycles += 4
}

// busRaw exposes the dispatch-only (untimed) read/write paths to the
// DMA engines, which must not re-charge an access for every byte they
// themselves move during a transfer already accounted for by the CPU
// access that triggered it.
type busRaw struct{ b *Bus }

func (r busRaw) Read(addr uint16) byte         { return r.b.readDispatch(addr) }
func (r busRaw) WriteOAM(index int, v byte)    { r.b.WriteOAM(index, v) }
func (r busRaw) WriteVRAM(addr uint16, v byte) { r.b.WriteVRAM(addr, v) }

func (b *Bus) Read(addr uint16) byte {
	b.chargeAccess()
	// While OAM-DMA runs, the CPU sees only HRAM; every other read is 0xFF.
	if b.oamDMA.Active() && (addr < 0xFF80 || addr > 0xFFFE) {
		return 0xFF
	}
	return b.readDispatch(addr)
}

func (b *Bus) readDispatch(addr uint16) byte {
	switch {
	case addr < 0x8000:
		if b.bootEnabled && addr < 0x0100 && len(b.bootROM) >= 0x100 {
			return b.bootROM[addr]
		}
		return b.cart.Read(addr)
	case addr >= 0x8000 && addr <= 0x9FFF:
		return b.ppu.CPURead(addr)
	case addr >= 0xA000 && addr <= 0xBFFF:
		return b.cart.Read(addr)
	case addr >= 0xC000 && addr <= 0xDFFF:
		return b.wramRead(addr)
	case addr >= 0xE000 && addr <= 0xFDFF:
		return b.wramRead(addr - 0x2000)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		return b.hram[addr-0xFF80]
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.oamDMA.Active() {
			return 0xFF
		}
		return b.ppu.CPURead(addr)
	case addr == 0xFF00:
		return b.joyp.ReadP1()
	case addr == 0xFF01:
		return b.sb
	case addr == 0xFF02:
		return 0x7E | (b.sc & 0x81)
	case addr == 0xFF04:
		return b.tm.ReadDIV()
	case addr == 0xFF05:
		return b.tm.ReadTIMA()
	case addr == 0xFF06:
		return b.tm.ReadTMA()
	case addr == 0xFF07:
		return b.tm.ReadTAC()
	case addr == 0xFF0F:
		return b.ic.ReadIF()
	case addr >= 0xFF10 && addr <= 0xFF3F:
		return b.apu.CPURead(addr)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B,
		addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B, addr == 0xFF6C:
		return b.ppu.CPURead(addr)
	case addr == 0xFF46:
		return b.oamDMA.Reg()
	case addr == 0xFF4C:
		return b.cgbCtl.ReadKEY0()
	case addr == 0xFF4D:
		return b.cgbCtl.ReadKEY1()
	case addr == 0xFF50:
		return 0xFF
	case addr == 0xFF55:
		if !b.cgbMode {
			return 0xFF
		}
		return b.hdma.ReadLengthStatus()
	case addr == 0xFF70:
		if !b.cgbMode {
			return 0xFF
		}
		return 0xF8 | (b.wramBank & 0x07)
	case addr == 0xFFFF:
		return b.ic.ReadIE()
	}
	return 0xFF
}

func (b *Bus) Write(addr uint16, value byte) {
	b.chargeAccess()
	b.writeDispatch(addr, value)
}

func (b *Bus) writeDispatch(addr uint16, value byte) {
	switch {
	case addr < 0x8000:
		b.cart.Write(addr, value)
	case addr >= 0x8000 && addr <= 0x9FFF:
		b.ppu.CPUWrite(addr, value)
	case addr >= 0xA000 && addr <= 0xBFFF:
		b.cart.Write(addr, value)
	case addr >= 0xC000 && addr <= 0xDFFF:
		b.wramWrite(addr, value)
	case addr >= 0xE000 && addr <= 0xFDFF:
		b.wramWrite(addr-0x2000, value)
	case addr >= 0xFF80 && addr <= 0xFFFE:
		b.hram[addr-0xFF80] = value
	case addr >= 0xFE00 && addr <= 0xFE9F:
		if b.oamDMA.Active() {
			return
		}
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF00:
		b.joyp.WriteP1(value)
	case addr == 0xFF01:
		b.sb = value
	case addr == 0xFF02:
		b.sc = value & 0x81
		if b.sc&0x80 != 0 {
			if b.sw != nil {
				_, _ = b.sw.Write([]byte{b.sb})
			}
			b.ic.Request(interrupt.Serial)
			b.sc &^= 0x80
		}
	case addr == 0xFF04:
		b.tm.WriteDIV()
	case addr == 0xFF05:
		b.tm.WriteTIMA(value)
	case addr == 0xFF06:
		b.tm.WriteTMA(value)
	case addr == 0xFF07:
		b.tm.WriteTAC(value)
	case addr == 0xFF0F:
		b.ic.WriteIF(value)
	case addr >= 0xFF10 && addr <= 0xFF3F:
		b.apu.CPUWrite(addr, value)
	case addr == 0xFF40, addr == 0xFF41, addr == 0xFF42, addr == 0xFF43,
		addr == 0xFF44, addr == 0xFF45,
		addr == 0xFF47, addr == 0xFF48, addr == 0xFF49,
		addr == 0xFF4A, addr == 0xFF4B,
		addr == 0xFF4F, addr == 0xFF68, addr == 0xFF69, addr == 0xFF6A, addr == 0xFF6B, addr == 0xFF6C:
		b.ppu.CPUWrite(addr, value)
	case addr == 0xFF46:
		b.oamDMA.Start(value)
	case addr == 0xFF4C:
		b.cgbCtl.WriteKEY0(value)
	case addr == 0xFF4D:
		b.cgbCtl.WriteKEY1(value)
	case addr == 0xFF50:
		if value != 0x00 {
			b.bootEnabled = false
		}
	case addr == 0xFF51:
		if b.cgbMode {
			b.hdma.WriteSrcHi(value)
		}
	case addr == 0xFF52:
		if b.cgbMode {
			b.hdma.WriteSrcLo(value)
		}
	case addr == 0xFF53:
		if b.cgbMode {
			b.hdma.WriteDstHi(value)
		}
	case addr == 0xFF54:
		if b.cgbMode {
			b.hdma.WriteDstLo(value)
		}
	case addr == 0xFF55:
		if b.cgbMode {
			b.hdma.WriteControl(value, busRaw{b})
		}
	case addr == 0xFF70:
		if b.cgbMode {
			b.wramBank = value & 0x07
		}
	case addr == 0xFFFF:
		b.ic.WriteIE(value)
	}
}

// WriteOAM implements dma.ReadWriter so the OAM-DMA engine can bypass
// the mode-gating CPUWrite applies during its own transfer.
func (b *Bus) WriteOAM(index int, v byte) { b.ppu.WriteOAM(index, v) }

// WriteVRAM implements dma.HDMAReadWriter.
func (b *Bus) WriteVRAM(addr uint16, v byte) { b.ppu.WriteVRAM(addr, v) }

// Joypad button bitmasks for SetJoypadState. Bits set mean "pressed".
const (
	JoypRight     = joypad.Right
	JoypLeft      = joypad.Left
	JoypUp        = joypad.Up
	JoypDown      = joypad.Down
	JoypA         = joypad.A
	JoypB         = joypad.B
	JoypSelectBtn = joypad.Select
	JoypStart     = joypad.Start
)

// SetJoypadState sets which buttons are currently pressed (bitmask of
// the Joyp* constants above; set bits mean pressed).
func (b *Bus) SetJoypadState(mask byte) { b.joyp.SetButtons(mask) }

// SetSerialWriter sets a sink that receives bytes written via the serial port.
func (b *Bus) SetSerialWriter(w io.Writer) { b.sw = w }

// SetBootROM loads a DMG boot ROM to be mapped at 0x0000-0x00FF until
// disabled via a write to FF50. The bus only provides the overlay and
// the disable latch; a CPU started at 0x0000 runs the image through it.
func (b *Bus) SetBootROM(data []byte) {
	b.bootROM = nil
	b.bootEnabled = false
	if len(data) >= 0x100 {
		b.bootROM = make([]byte, 0x100)
		copy(b.bootROM, data[:0x100])
		b.bootEnabled = true
	}
}

// PerformStop is called by the CPU when it decodes STOP, so a CGB
// speed-switch armed via KEY1 takes effect.
func (b *Bus) PerformStop() { b.cgbCtl.PerformStop() }

// DoubleSpeed reports whether the CPU is currently running at double
// speed (CGB KEY1), which the CPU uses to halve its own reported cycle
// counts relative to the PPU/APU's fixed real-time rate... in this core
// the halving instead happens inside Tick, so the CPU never needs to
// consult this directly; it is exposed for UI/debug display.
func (b *Bus) DoubleSpeed() bool { return b.cgbCtl.DoubleSpeed() }

// Tick advances every peripheral by the given number of T-cycles, the
// total cost of the instruction that just ran. The timer and OAM-DMA
// have already observed every M-cycle that carried a bus access via
// Read/Write's chargeAccess; Tick only needs to cover the remainder —
// the instruction's internal, no-access cycles — so the timer still
// advances by the full instruction cost overall (DIV genuinely ticks
// twice as fast in double speed, matching the CPU). The cartridge RTC
// always sees the full count; PPU and HDMA run at the fixed hardware
// rate, so in double speed they only advance on every other T-cycle.
func (b *Bus) Tick(tcycles int) {
	if tcycles <= 0 {
		return
	}
	remainder := tcycles - b.accessTCycles
	b.accessTCycles = 0
	if remainder < 0 {
		remainder = 0
	}

	for i := 0; i < tcycles; i++ {
		b.cart.Step(1)

		advancePeripherals := true
		if b.cgbCtl.DoubleSpeed() {
			b.speedParity ^= 1
			advancePeripherals = b.speedParity == 0
		}
		if !advancePeripherals {
			continue
		}

		prevMode := b.ppu.CPURead(0xFF41) & 0x03
		b.ppu.Tick(1)
		b.apu.Tick(1)
		if b.cgbMode && b.hdma.Active() {
			mode := b.ppu.CPURead(0xFF41) & 0x03
			if prevMode == 3 && mode == 0 {
				b.hdma.OnHBlank(busRaw{b})
			}
		}
	}

	for i := 0; i < remainder; i++ {
		b.tm.Tick()
	}
	for i := 0; i < remainder/4; i++ {
		if b.oamDMA.Active() {
			b.oamDMA.Tick(busRaw{b})
		}
	}
}

// --- Save/Load state ---

// BusState is the bus's own serializable register snapshot. PPU, APU,
// cartridge, timer, interrupt, joypad, and DMA each own their state and
// are serialized separately by internal/emu's savestate container.
type BusState struct {
	WRAM        [8][0x1000]byte
	WRAMBank    byte
	HRAM        [0x7F]byte
	SB, SC      byte
	BootEn      bool
	SpeedParity int
}

func (b *Bus) SaveState() BusState {
	return BusState{
		WRAM: b.wram, WRAMBank: b.wramBank, HRAM: b.hram,
		SB: b.sb, SC: b.sc, BootEn: b.bootEnabled,
		SpeedParity: b.speedParity,
	}
}

func (b *Bus) LoadState(s BusState) {
	b.wram, b.wramBank, b.hram = s.WRAM, s.WRAMBank, s.HRAM
	b.sb, b.sc, b.bootEnabled = s.SB, s.SC, s.BootEn
	b.speedParity = s.SpeedParity
}

func (b *Bus) Interrupts() *interrupt.Controller { return b.ic }
func (b *Bus) Timer() *timer.Timer               { return b.tm }
func (b *Bus) Joypad() *joypad.Joypad            { return b.joyp }
func (b *Bus) OAMDMA() *dma.OAM                  { return b.oamDMA }
func (b *Bus) HDMA() *dma.HDMA                   { return b.hdma }
func (b *Bus) CGB() *cgb.Controller              { return b.cgbCtl }
