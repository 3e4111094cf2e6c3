package cpu_test

import (
	"testing"

	"hackvm.dev/toolchain/pkg/cpu"
)

// The six ALU control bits (zx nx zy ny f no), taken straight from the Hack ALU
// comp table (see hack.CompTable), shifted into their bit-6..11 position.
const (
	aluZero       = 0b101010 << 6 // 0
	aluIdentityD  = 0b001100 << 6 // D
	aluIncrementD = 0b011111 << 6 // D+1
	aluDPlusA     = 0b000010 << 6 // D+A
	aluMinusOne   = 0b111010 << 6 // -1
)

func TestCompALU(t *testing.T) {
	test := func(name string, instruction, x, y uint16, wantOut uint16, wantZr, wantNg bool) {
		t.Run(name, func(t *testing.T) {
			out, zr, ng := cpu.Comp(instruction, x, y)
			if out != wantOut || zr != wantZr || ng != wantNg {
				t.Fatalf("Comp(%07b, %d, %d) = (%d, %v, %v), want (%d, %v, %v)",
					instruction, x, y, out, zr, ng, wantOut, wantZr, wantNg)
			}
		})
	}

	test("zero constant", aluZero, 42, 7, 0, true, false)
	test("identity D", aluIdentityD, 5, 99, 5, false, false)
	test("increment D", aluIncrementD, 5, 0, 6, false, false)
	test("D plus A", aluDPlusA, 3, 4, 7, false, false)
	test("negative one", aluMinusOne, 0, 0, 0xFFFF, false, true)
}

func TestJump(t *testing.T) {
	test := func(name string, instruction uint16, zr, ng, want bool) {
		t.Run(name, func(t *testing.T) {
			if got := cpu.Jump(instruction, zr, ng); got != want {
				t.Fatalf("Jump(%03b, zr=%v, ng=%v) = %v, want %v", instruction, zr, ng, got, want)
			}
		})
	}

	test("JGT taken", cpu.JumpPos, false, false, true)
	test("JGT not taken on zero", cpu.JumpPos, true, false, false)
	test("JLT taken", cpu.JumpNeg, false, true, true)
	test("JEQ taken", cpu.JumpZero, true, false, true)
	test("JMP always taken", cpu.JumpNeg|cpu.JumpZero|cpu.JumpPos, false, false, true)
	test("no condition never taken", uint16(0), true, true, false)
}

func TestCPUStep(t *testing.T) {
	var c cpu.CPU
	rom := cpu.NewMemory(cpu.ROMSize)
	ram := cpu.NewMemory(cpu.RAMSize)

	rom.Set(0, 5)                                 // @5
	rom.Set(1, cpu.Compute|aluIdentityA()|cpu.DestD) // D=A
	rom.Set(2, 3)                                 // @3
	rom.Set(3, cpu.Compute|aluDPlusA|cpu.DestM)      // M=D+A  (RAM[3] = 5+3 = 8)

	if err := c.Run(rom, ram, 4); err != nil {
		t.Fatalf("unexpected error stepping CPU: %v", err)
	}

	if c.D != 5 {
		t.Fatalf("D = %d, want 5", c.D)
	}
	if got := ram.Get(3); got != 8 {
		t.Fatalf("RAM[3] = %d, want 8", got)
	}
	if c.PC != 4 {
		t.Fatalf("PC = %d, want 4", c.PC)
	}
}

func TestCPUJumpLoop(t *testing.T) {
	var c cpu.CPU
	rom := cpu.NewMemory(cpu.ROMSize)
	ram := cpu.NewMemory(cpu.RAMSize)

	rom.Set(0, 0)                                               // @0
	rom.Set(1, cpu.Compute|aluIdentityA()|cpu.DestD)               // D=A (D=0)
	rom.Set(2, 1)                                               // @1 (loop target)
	rom.Set(3, cpu.Compute|aluZero|cpu.JumpNeg|cpu.JumpZero|cpu.JumpPos) // 0;JMP

	if err := c.Run(rom, ram, 4); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if c.PC != 1 {
		t.Fatalf("PC after unconditional jump back = %d, want 1", c.PC)
	}
}

func TestCPUResetZeroesAllRegisters(t *testing.T) {
	c := cpu.CPU{PC: 10, A: 20, D: 30}
	c.Reset()
	if c.PC != 0 || c.A != 0 || c.D != 0 {
		t.Fatalf("Reset left non-zero registers: %+v", c)
	}
}

// aluIdentityA is the 'A' comp code (zx=1 nx=1 zy=0 ny=0 f=0 no=0): ~0 & A = A.
func aluIdentityA() uint16 {
	return 0b110000 << 6
}
