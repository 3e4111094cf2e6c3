package cpu

// ----------------------------------------------------------------------------
// Instruction bit layout

// This section mirrors the 16-bit Hack instruction encoding bit for bit: every mask
// below picks out one field of either an A instruction (bit 15 clear, the remaining 15
// bits a raw address) or a C instruction (bit 15 set, the remaining bits split between
// the ALU control bits, the destination bits and the jump condition bits).

const (
	Compute uint16 = 1 << 15 // Set for C instructions, clear for A instructions

	aluZX uint16 = 1 << 11 // zero the x input
	aluNX uint16 = 1 << 10 // negate the x input
	aluZY uint16 = 1 << 9  // zero the y input
	aluNY uint16 = 1 << 8  // negate the y input
	aluF  uint16 = 1 << 7  // compute x+y if set, x&y if clear
	aluNO uint16 = 1 << 6  // negate the output

	Fetch uint16 = 1 << 12 // Selects M (RAM[A]) instead of A as the ALU's y input

	DestA uint16 = 1 << 5
	DestD uint16 = 1 << 4
	DestM uint16 = 1 << 3

	JumpNeg  uint16 = 1 << 2
	JumpZero uint16 = 1 << 1
	JumpPos  uint16 = 1 << 0
)

// Comp decodes the 6 ALU control bits (bits 6-11 of a C instruction) against the
// given 'x'/'y' inputs (the A/M selection of bit 12 is applied by the caller), returning the computed output along with the 'zr'/'ng' status
// flags the jump logic consumes. Grounded on 'hcc::cpu::comp' in the original source.
func Comp(instruction, x, y uint16) (out uint16, zr, ng bool) {
	if instruction&aluZX != 0 {
		x = 0
	}
	if instruction&aluNX != 0 {
		x = ^x
	}
	if instruction&aluZY != 0 {
		y = 0
	}
	if instruction&aluNY != 0 {
		y = ^y
	}

	if instruction&aluF != 0 {
		out = x + y
	} else {
		out = x & y
	}

	if instruction&aluNO != 0 {
		out = ^out
	}

	zr = out == 0
	ng = out&(1<<15) != 0
	return out, zr, ng
}

// Jump evaluates the 3-bit jump condition (bits 0-2 of a C instruction) against the
// 'zr'/'ng' flags produced by Comp, returning whether the CPU should branch to the
// address currently loaded in the 'A' register. Grounded on 'hcc::cpu::jump'.
func Jump(instruction uint16, zr, ng bool) bool {
	return (instruction&JumpNeg != 0 && ng) ||
		(instruction&JumpZero != 0 && zr) ||
		(instruction&JumpPos != 0 && !ng && !zr)
}
