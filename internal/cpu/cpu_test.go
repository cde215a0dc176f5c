package cpu

import (
	"testing"

	"github.com/FabianRolfMatthiasNoll/GameBoyEmulator/internal/bus"
)

func newCPUWithROM(code []byte) *CPU {
	rom := make([]byte, 0x8000)
	copy(rom, code)
	b := bus.New(rom)
	c := New(b)
	return c
}

func step(t *testing.T, c *CPU) int {
	t.Helper()
	cycles, err := c.Step()
	if err != nil {
		t.Fatalf("unexpected Step error: %v", err)
	}
	return cycles
}

func TestCPU_NopAndPC(t *testing.T) {
	c := newCPUWithROM([]byte{0x00}) // NOP
	if cycles := step(t, c); cycles != 4 {
		t.Fatalf("NOP cycles got %d want 4", cycles)
	}
	if c.PC != 1 {
		t.Fatalf("PC after NOP got %#04x want 0x0001", c.PC)
	}
}

func TestCPU_LD_A_d8_And_XOR_A(t *testing.T) {
	c := newCPUWithROM([]byte{0x3E, 0x12, 0xAF}) // LD A,0x12; XOR A
	step(t, c)                                   // LD
	if c.A != 0x12 {
		t.Fatalf("A after LD got %02x want 12", c.A)
	}
	step(t, c) // XOR A
	if c.A != 0x00 {
		t.Fatalf("A after XOR got %02x want 00", c.A)
	}
	if (c.F & 0x80) == 0 { // Z flag
		t.Fatalf("Z flag not set after XOR A")
	}
}

func TestCPU_LD_a16_A_and_LD_A_a16(t *testing.T) {
	// Program: LD A,0x77; LD (0xC000),A; LD A,0x00; LD A,(0xC000)
	prog := []byte{0x3E, 0x77, 0xEA, 0x00, 0xC0, 0x3E, 0x00, 0xFA, 0x00, 0xC0}
	c := newCPUWithROM(prog)
	step(t, c) // LD A,77
	step(t, c) // LD (C000),A
	if a := c.bus.Read(0xC000); a != 0x77 {
		t.Fatalf("WRAM at C000 got %02x want 77", a)
	}
	step(t, c) // LD A,00
	step(t, c) // LD A,(C000)
	if c.A != 0x77 {
		t.Fatalf("A after LD A,(C000) got %02x want 77", c.A)
	}
}

func TestCPU_JP_and_JR(t *testing.T) {
	// JP to 0x0010 then JR -2 to loop
	prog := []byte{0xC3, 0x10, 0x00} // at 0x0000: JP 0x0010
	rom := make([]byte, 0x8000)
	copy(rom, prog)
	for i := 0x0003; i < 0x0010; i++ {
		rom[i] = 0x00
	}
	// at 0x0010: JR -2 (0xFE), which will hop back to 0x0010 itself (infinite)
	rom[0x0010] = 0x18
	rom[0x0011] = 0xFE
	b := bus.New(rom)
	c := New(b)
	cycles := step(t, c) // JP
	if cycles != 16 || c.PC != 0x0010 {
		t.Fatalf("JP cycles=%d PC=%#04x want cycles=16 PC=0x0010", cycles, c.PC)
	}
	pcBefore := c.PC
	step(t, c)             // JR -2
	if c.PC != pcBefore { // stays at 0x0010
		t.Fatalf("JR -2 PC got %#04x want %#04x", c.PC, pcBefore)
	}
}

func TestCPU_INC_B_Flags(t *testing.T) {
	c := newCPUWithROM([]byte{0x04, 0x04}) // INC B twice
	c.B = 0x0F
	c.F = 0x10 // carry set initially
	step(t, c)
	if c.B != 0x10 {
		t.Fatalf("INC B result got %02x want 10", c.B)
	}
	if (c.F & 0x20) == 0 { // H set
		t.Fatalf("INC B should set H flag")
	}
	if (c.F & 0x10) == 0 { // C preserved
		t.Fatalf("INC B should preserve C flag")
	}
	c.B = 0xFF
	step(t, c)
	if c.B != 0x00 || (c.F&0x80) == 0 { // Z set
		t.Fatalf("INC B to 0 should set Z flag, B=%02x, F=%02x", c.B, c.F)
	}
}

func TestCPU_LD_16bit_and_LDH(t *testing.T) {
	prog := []byte{
		0x21, 0x00, 0xC0, // LD HL, C000
		0x36, 0x5A, // LD (HL), 5A
		0x3E, 0x00, // LD A, 00
		0xF0, 0x00, // LD A, (FF00+0)
		0xE0, 0x01, // LD (FF00+1), A
	}
	c := newCPUWithROM(prog)
	c.Bus().Write(0xFF00, 0x20) // select dpad so read is deterministic
	c.Bus().Write(0xFF00, 0x30) // select none to keep 0x0F
	c.Bus().Write(0xFF80, 0xA7) // HRAM base

	for i := 0; i < 5; i++ {
		step(t, c)
	}
	if v := c.Bus().Read(0xC000); v != 0x5A {
		t.Fatalf("WRAM C000 got %02x want 5A", v)
	}
	if v := c.Bus().Read(0xFF01); v != c.A {
		t.Fatalf("LDH (FF00+1),A expected write to FF01 with A=%02x got %02x", c.A, v)
	}
}

func TestCPU_CALL_RET(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0x0000] = 0xCD
	rom[0x0001] = 0x05
	rom[0x0002] = 0x00
	for i := 0x0003; i < 0x0005; i++ {
		rom[i] = 0x00
	}
	rom[0x0005] = 0xC9 // RET
	b := bus.New(rom)
	c := New(b)
	step(t, c) // CALL
	if c.PC != 0x0005 {
		t.Fatalf("PC after CALL got %04x want 0005", c.PC)
	}
	retCycles := step(t, c)
	if c.PC != 0x0003 || retCycles != 16 {
		t.Fatalf("RET did not return to 0003; PC=%04x cyc=%d", c.PC, retCycles)
	}
}

func TestCPU_IllegalOpcode(t *testing.T) {
	for _, op := range []byte{0xD3, 0xDB, 0xDD, 0xE3, 0xE4, 0xEB, 0xEC, 0xED, 0xF4, 0xFC, 0xFD} {
		c := newCPUWithROM([]byte{op})
		_, err := c.Step()
		if err == nil {
			t.Fatalf("opcode %#02x: expected IllegalOpcodeError", op)
		}
		ioe, ok := err.(*IllegalOpcodeError)
		if !ok || ioe.Opcode != op {
			t.Fatalf("opcode %#02x: got error %v, want IllegalOpcodeError{Opcode: %#02x}", op, err, op)
		}
	}
}

func TestCPU_STOP_EntersDoubleSpeedWhenArmed(t *testing.T) {
	rom := make([]byte, 0x8000)
	rom[0] = 0x10 // STOP
	rom[1] = 0x00 // padding byte
	b := bus.New(rom)
	b.SetCGBMode(true)
	b.Write(0xFF4D, 0x01) // arm speed switch
	c := New(b)
	cycles, err := c.Step()
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cycles != 4 {
		t.Fatalf("STOP cycles got %d want 4", cycles)
	}
	if c.PC != 2 {
		t.Fatalf("PC after STOP got %#04x want 0x0002 (padding byte consumed)", c.PC)
	}
	if !b.DoubleSpeed() {
		t.Fatalf("expected double speed armed after STOP")
	}
}

func TestCPU_HaltBug_DuplicatesNextByteFetch(t *testing.T) {
	// HALT; INC A; NOP -- with IME=0 and a pending interrupt, HALT never
	// actually halts, and PC fails to advance for one fetch afterward, so
	// the INC A byte at PC=1 is read and executed twice in a row before PC
	// moves on to the NOP.
	rom := make([]byte, 0x8000)
	rom[0] = 0x76 // HALT
	rom[1] = 0x3C // INC A
	rom[2] = 0x00 // NOP
	b := bus.New(rom)
	c := New(b)
	c.IME = false
	b.Write(0xFFFF, 0x01) // enable VBlank
	b.Write(0xFF0F, 0x01) // VBlank pending

	step(t, c) // HALT: bug triggers, CPU does not actually halt
	if c.halted {
		t.Fatalf("expected HALT bug to skip actually halting")
	}
	if c.PC != 1 {
		t.Fatalf("PC after HALT got %#04x want 0x0001", c.PC)
	}

	step(t, c) // first fetch reads 0x3C at PC=1 without advancing PC (the bug)
	if c.A != 1 {
		t.Fatalf("A after first INC A got %d want 1", c.A)
	}
	if c.PC != 1 {
		t.Fatalf("PC after duplicated fetch got %#04x want 0x0001 (still stuck on the bug byte)", c.PC)
	}

	step(t, c) // second fetch re-reads the same 0x3C byte, this time advancing PC normally
	if c.A != 2 {
		t.Fatalf("A after second INC A got %d want 2 (same byte executed twice)", c.A)
	}
	if c.PC != 2 {
		t.Fatalf("PC after second fetch got %#04x want 0x0002", c.PC)
	}
}

func TestCPU_HaltBug_DoesNotTriggerWhenIMEEnabled(t *testing.T) {
	// With IME=1 and a pending interrupt, the interrupt is serviced before
	// HALT ever gets a chance to execute -- no HALT bug, no actual halt.
	rom := make([]byte, 0x8000)
	rom[0] = 0x76 // HALT
	b := bus.New(rom)
	c := New(b)
	c.IME = true
	b.Write(0xFFFF, 0x01)
	b.Write(0xFF0F, 0x01)
	step(t, c)
	if c.haltBug || c.halted {
		t.Fatalf("expected neither the halt bug nor an actual halt; interrupt should have been serviced instead")
	}
	if c.PC != 0x40 {
		t.Fatalf("expected interrupt dispatch to VBlank vector, PC=%#04x", c.PC)
	}
}
