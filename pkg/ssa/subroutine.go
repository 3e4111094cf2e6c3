package ssa

import "hackvm.dev/toolchain/pkg/graph"

// Subroutine is one unit of compiled Jack code: a name, its entry and
// synthetic exit blocks, the full block table keyed by interned label
// handle, and the CFG kept in lock-step with terminator instructions.
// Label handles double as CFG node indices: both the label Interner and
// the CFG graph.Graph allocate sequentially from zero, so AddBlock keeps
// them paired by construction.
type Subroutine struct {
	Name string

	Labels *Interner
	Regs   *Interner
	Locals *Interner

	Entry uint32
	Exit  uint32

	blocks map[uint32]*Block
	cfg    *graph.Graph

	dom    *graph.Dominance
	rdom   *graph.Dominance
	domOK  bool
	rdomOK bool
}

// NewSubroutine creates a subroutine with freshly allocated entry and exit
// blocks. The exit block initially contains a single `RETURN #0`, matching
// the synthetic-exit convention used to root reverse-dominance.
func NewSubroutine(name string) *Subroutine {
	s := &Subroutine{
		Name:   name,
		Labels: NewInterner(),
		Regs:   NewInterner(),
		Locals: NewInterner(),
		blocks: map[uint32]*Block{},
		cfg:    graph.New(),
	}
	s.Entry = s.AddBlock("entry")
	s.Exit = s.AddBlock("exit")
	s.blocks[s.Exit].Instructions = []Instruction{NewReturn(Const(0))}
	return s
}

// AddBlock interns a fresh label name, allocates the matching CFG node, and
// registers an empty Block. Returns the new block's label handle.
func (s *Subroutine) AddBlock(name string) uint32 {
	handle, _ := s.Labels.Fresh(name)
	node := s.cfg.AddNode()
	if node != int(handle) {
		panic("ssa: label interner and cfg node numbering diverged")
	}
	s.blocks[handle] = &Block{Label: handle}
	s.invalidateDominance()
	return handle
}

// Block returns the block for a label handle, or nil.
func (s *Subroutine) Block(label uint32) *Block { return s.blocks[label] }

// Blocks returns every block, in label-handle order (the order blocks were
// created), which is deterministic and used by the text serializer.
func (s *Subroutine) Blocks() []*Block {
	out := make([]*Block, 0, len(s.blocks))
	for h := uint32(0); int(h) < s.Labels.Len(); h++ {
		if b, ok := s.blocks[h]; ok {
			out = append(out, b)
		}
	}
	return out
}

func (s *Subroutine) invalidateDominance() {
	s.domOK = false
	s.rdomOK = false
}

// SetTerminator replaces block's terminator (if any) with in, which must be
// a terminator instruction, and updates the CFG edges to match the new
// targets. Old edges sourced from this block are removed first.
func (s *Subroutine) SetTerminator(label uint32, in Instruction) error {
	if !in.Op.IsTerminator() {
		return &IRError{Subroutine: s.Name, Message: "SetTerminator called with non-terminator opcode " + in.Op.String()}
	}
	b := s.blocks[label]
	if b == nil {
		return &IRError{Subroutine: s.Name, Message: "SetTerminator on unknown block"}
	}

	for _, succ := range s.cfg.Successors(int(label)) {
		s.cfg.RemoveEdge(int(label), succ)
	}

	if old, ok := b.Terminator(); ok {
		b.Instructions = b.Instructions[:len(b.Instructions)-1]
		_ = old
	}
	b.Instructions = append(b.Instructions, in)

	for _, target := range in.Labels() {
		s.cfg.AddEdge(int(label), int(target.Handle))
	}
	s.invalidateDominance()
	return nil
}

// CFG exposes the underlying control-flow graph (read-only use expected;
// mutate only through SetTerminator/AddBlock to keep invariants).
func (s *Subroutine) CFG() *graph.Graph { return s.cfg }

// Dominance returns (computing and caching if necessary) forward dominance
// rooted at the entry block.
func (s *Subroutine) Dominance() *graph.Dominance {
	if !s.domOK {
		s.dom = graph.Compute(s.cfg, int(s.Entry))
		s.domOK = true
	}
	return s.dom
}

// ReverseDominance returns (computing and caching if necessary) dominance
// over the reversed CFG rooted at the exit block, used by aggressive DCE's
// control-dependence step.
func (s *Subroutine) ReverseDominance() *graph.Dominance {
	if !s.rdomOK {
		s.rdom = graph.Compute(s.cfg.Reverse(), int(s.Exit))
		s.rdomOK = true
	}
	return s.rdom
}

// Verify checks the structural invariants listed in the data model:
// one terminator per block at the end, CFG edges matching terminator
// targets exactly, and unique label names (guaranteed by the Interner).
func (s *Subroutine) Verify() error {
	for _, b := range s.Blocks() {
		term, ok := b.Terminator()
		if !ok {
			return &IRError{Subroutine: s.Name, Block: s.Labels.Name(b.Label), Message: "block has no terminator"}
		}
		for i, in := range b.Instructions[:len(b.Instructions)-1] {
			if in.Op.IsTerminator() {
				return &IRError{Subroutine: s.Name, Block: s.Labels.Name(b.Label), Message: "terminator not at block end"}
			}
			if in.Op != PHI {
				continue
			}
			if i > 0 && b.Instructions[i-1].Op != PHI {
				return &IRError{Subroutine: s.Name, Block: s.Labels.Name(b.Label), Message: "phi after non-phi instruction"}
			}
		}

		wantTargets := map[int]bool{}
		for _, l := range term.Labels() {
			wantTargets[int(l.Handle)] = true
		}
		for _, succ := range s.cfg.Successors(int(b.Label)) {
			if !wantTargets[succ] {
				return &IRError{Subroutine: s.Name, Block: s.Labels.Name(b.Label), Message: "cfg has extra successor not reflected by terminator"}
			}
			delete(wantTargets, succ)
		}
		if len(wantTargets) != 0 {
			return &IRError{Subroutine: s.Name, Block: s.Labels.Name(b.Label), Message: "terminator target missing from cfg"}
		}
	}
	return nil
}
