package ssa

import "hackvm.dev/toolchain/pkg/utils"

// Interner maps symbolic names to small dense integer handles and back, the
// way the Jack lowerer's class/subroutine tables do, but scoped to whatever
// owns it (a Subroutine for regs/locals/labels, a Unit for globals) instead
// of a single process-wide table.
type Interner struct {
	names   utils.OrderedMap[string, uint32]
	handles []string
}

// NewInterner returns an empty interner.
func NewInterner() *Interner { return &Interner{} }

// Intern returns the handle for name, allocating a fresh one the first time
// name is seen.
func (in *Interner) Intern(name string) uint32 {
	if h, ok := in.names.Get(name); ok {
		return h
	}
	h := uint32(len(in.handles))
	in.handles = append(in.handles, name)
	in.names.Set(name, h)
	return h
}

// Fresh allocates a brand-new handle with a synthesized name derived from
// base, guaranteed not to collide with any name interned so far. Used by
// renaming and copy-insertion passes that invent new SSA names.
func (in *Interner) Fresh(base string) (uint32, string) {
	name := base
	for i := 0; ; i++ {
		if _, ok := in.names.Get(name); !ok {
			break
		}
		name = base + "'" + itoa(i)
	}
	return in.Intern(name), name
}

// Name returns the symbolic name for handle h.
func (in *Interner) Name(h uint32) string {
	if int(h) >= len(in.handles) {
		return ""
	}
	return in.handles[h]
}

// Len returns the number of distinct handles allocated so far.
func (in *Interner) Len() int { return len(in.handles) }

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := [20]byte{}
	i := len(digits)
	for n > 0 {
		i--
		digits[i] = byte('0' + n%10)
		n /= 10
	}
	return string(digits[i:])
}
