package ssa

// Block is a basic block: a label and its ordered instruction list. PHI
// instructions, if any, occupy a contiguous prefix before any other
// instruction; the last instruction, once the block is sealed, is always a
// terminator (JUMP, JLT, JEQ or RETURN).
type Block struct {
	Label        uint32
	Instructions []Instruction
}

// Phis returns the PHI-instruction prefix of the block.
func (b *Block) Phis() []Instruction {
	var out []Instruction
	for _, in := range b.Instructions {
		if in.Op != PHI {
			break
		}
		out = append(out, in)
	}
	return out
}

// Terminator returns the block's terminator instruction and true, or the
// zero Instruction and false if the block has not been sealed yet.
func (b *Block) Terminator() (Instruction, bool) {
	if len(b.Instructions) == 0 {
		return Instruction{}, false
	}
	last := b.Instructions[len(b.Instructions)-1]
	if !last.Op.IsTerminator() {
		return Instruction{}, false
	}
	return last, true
}

// AppendPhi inserts in (which must have Op == PHI) after the last existing
// PHI prefix instruction, preserving the PHI-before-body invariant.
func (b *Block) AppendPhi(in Instruction) {
	idx := 0
	for idx < len(b.Instructions) && b.Instructions[idx].Op == PHI {
		idx++
	}
	b.Instructions = append(b.Instructions, Instruction{})
	copy(b.Instructions[idx+1:], b.Instructions[idx:])
	b.Instructions[idx] = in
}

// Append adds a non-terminator, non-PHI instruction to the end of the body.
func (b *Block) Append(in Instruction) {
	b.Instructions = append(b.Instructions, in)
}

// InsertBeforeTerminator splices in immediately before the block's
// terminator, used by SSA deconstruction to place per-predecessor copies.
func (b *Block) InsertBeforeTerminator(in Instruction) {
	if len(b.Instructions) == 0 {
		b.Instructions = append(b.Instructions, in)
		return
	}
	idx := len(b.Instructions) - 1
	b.Instructions = append(b.Instructions, Instruction{})
	copy(b.Instructions[idx+1:], b.Instructions[idx:])
	b.Instructions[idx] = in
}
