package cpu

import "fmt"

// ----------------------------------------------------------------------------
// Memory interfaces

// ROM is the read-only program store the CPU fetches instructions from, addressed
// by the program counter. Grounded on 'hcc::IROM' in the original source.
type ROM interface {
	Get(address uint16) uint16
}

// RAM is the read/write data store the CPU's 'M' operand and memory-mapped I/O
// (SCREEN, KBD) live in, addressed by the 'A' register. Grounded on 'hcc::IRAM'.
type RAM interface {
	Get(address uint16) uint16
	Set(address uint16, value uint16)
}

// Memory is the simplest possible ROM/RAM implementation, a plain flat array of
// 16-bit words with bound-checked accessors. It satisfies both the ROM and RAM
// interfaces, so it can back either side of a CPU without any adapter in between.
type Memory struct {
	Words []uint16
}

// NewMemory allocates a zeroed Memory of the given word capacity (ROMSize/RAMSize below).
func NewMemory(size int) *Memory {
	return &Memory{Words: make([]uint16, size)}
}

func (m *Memory) Get(address uint16) uint16 {
	if int(address) >= len(m.Words) {
		return 0
	}
	return m.Words[address]
}

func (m *Memory) Set(address uint16, value uint16) {
	if int(address) >= len(m.Words) {
		return
	}
	m.Words[address] = value
}

// ----------------------------------------------------------------------------
// CPU

// Sizes of the two memory banks a CPU is wired against, expressed in 16-bit words
// (not bytes). Grounded on 'hcc::cpu::CPU::romsize'/'ramsize'.
const (
	ROMSize = 0x8000
	RAMSize = 0x6000
)

// CPU is a fetch-decode-execute emulator for the Hack instruction set: a program
// counter ('pc'), the address register ('a') and the data register ('d'). It holds
// no reference to its own ROM/RAM, those are passed in on every Step/Run call so
// the same CPU value can be driven against swappable memory backings (a debugger
// stepping through a fixture ROM, a headless test harness, ...).
//
// There is deliberately no UI, windowing or timer loop here: this package is the
// bare instruction-execution core the rest of the toolchain (and any caller that
// wants to drive a .hack program) builds on top of.
type CPU struct {
	PC uint16
	A  uint16
	D  uint16
}

// Reset zeroes all three registers, returning the CPU to its power-on state.
// Grounded on 'hcc::cpu::CPU::reset()'.
func (c *CPU) Reset() {
	c.PC, c.A, c.D = 0, 0, 0
}

// Step fetches the instruction at 'rom[PC]', executes it against 'ram' and advances
// (or branches) the program counter accordingly. An A instruction (bit 15 clear)
// simply loads its 15-bit payload into 'A' and advances the PC by one; a C instruction
// is decoded into an ALU computation, an optional set of destinations to store the
// result into, and an optional jump condition evaluated against the result.
// Grounded on 'hcc::cpu::CPU::step()'.
func (c *CPU) Step(rom ROM, ram RAM) error {
	if int(c.PC) >= ROMSize {
		return fmt.Errorf("program counter %d out of bounds of the %d word ROM", c.PC, ROMSize)
	}

	instruction := rom.Get(c.PC)
	if instruction&Compute == 0 {
		c.A = instruction
		c.PC++
		return nil
	}

	oldA := c.A
	y := c.A
	if instruction&Fetch != 0 {
		y = ram.Get(oldA)
	}

	out, zr, ng := Comp(instruction, c.D, y)

	if instruction&DestA != 0 {
		c.A = out
	}
	if instruction&DestD != 0 {
		c.D = out
	}
	if instruction&DestM != 0 {
		ram.Set(oldA, out)
	}

	if Jump(instruction, zr, ng) {
		c.PC = oldA
	} else {
		c.PC++
	}

	return nil
}

// Run drives the CPU for up to 'ticks' Step calls, relaying whatever error the
// first failing Step call returns and otherwise always executing the full count.
func (c *CPU) Run(rom ROM, ram RAM, ticks int) error {
	for i := 0; i < ticks; i++ {
		if err := c.Step(rom, ram); err != nil {
			return fmt.Errorf("error executing tick %d/%d: %w", i+1, ticks, err)
		}
	}
	return nil
}
