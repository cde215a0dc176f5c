// Package dma implements the two DMA engines the PPU depends on:
// OAM-DMA (DMG and CGB) and CGB H-Blank/general-purpose VRAM DMA.
package dma

// ReadWriter is the narrow bus capability OAM DMA needs: read from
// anywhere in the 16-bit address space, write into OAM.
type ReadWriter interface {
	Read(addr uint16) byte
	WriteOAM(index int, v byte)
}

// OAM implements the FF46-triggered 160-byte sprite-attribute transfer.
// It runs for 160 M-cycles; while active, the CPU may only see HRAM —
// the bus is responsible for enforcing that by consulting Active().
type OAM struct {
	reg    byte // last value written to FF46
	active bool
	src    uint16
	index  int
}

// New returns an idle OAM DMA engine.
func New() *OAM { return &OAM{} }

// Reg returns the FF46 shadow register value.
func (d *OAM) Reg() byte { return d.reg }

// Start begins a transfer from high*0x100 to OAM FE00-FE9F.
func (d *OAM) Start(high byte) {
	d.reg = high
	d.active = true
	d.src = uint16(high) << 8
	d.index = 0
}

// Active reports whether a transfer is in progress.
func (d *OAM) Active() bool { return d.active }

// Tick advances the transfer by one M-cycle (one byte), copying through
// bus. The bus calls it once per M-cycle: on each Read/Write access, and
// from Tick for the cycles that carried no access.
func (d *OAM) Tick(bus ReadWriter) {
	if !d.active {
		return
	}
	v := bus.Read(d.src + uint16(d.index))
	bus.WriteOAM(d.index, v)
	d.index++
	if d.index >= 0xA0 {
		d.active = false
	}
}

// OAMState is a serializable snapshot for savestates.
type OAMState struct {
	Reg    byte
	Active bool
	Src    uint16
	Index  int
}

func (d *OAM) SaveState() OAMState {
	return OAMState{Reg: d.reg, Active: d.active, Src: d.src, Index: d.index}
}

func (d *OAM) LoadState(s OAMState) {
	d.reg, d.active, d.src, d.index = s.Reg, s.Active, s.Src, s.Index
}
