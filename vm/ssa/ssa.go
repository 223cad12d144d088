// Package ssa implements the single-static-assignment tape: the
// intermediate representation produced by walking an expression graph, and
// consumed by both the register allocator (vm/reg) and the simplifier
// (vm/simplify).
package ssa

import "github.com/Niels-IO/fidget/vm/op"

// Slot names an SSA value. Slots are dense and start at 0; a slot is
// written by exactly one operation in a well-formed tape.
type Slot uint32

// Op is a single three-address SSA operation. It is a flat struct tagged by
// Kind rather than one Go type per opcode — see the vm/op package comment.
// Which fields are meaningful depends on Kind:
//
//   - Input:  Out, Axis
//   - Var:    Out, VarID
//   - CopyImm: Out, Imm
//   - unary (Neg..CopyReg): Out, Arg
//   - *RegReg (incl. Min/Max): Out, Lhs, Rhs
//   - *RegImm (incl. Min/Max), except SubImmReg/DivImmReg: Out, Arg, Imm
//   - SubImmReg, DivImmReg: Out, Arg, Imm (computes Imm OP Arg)
type Op struct {
	Kind  op.Kind
	Out   Slot
	Arg   Slot
	Lhs   Slot
	Rhs   Slot
	Imm   float32
	Axis  int
	VarID uint32
}

// Output returns the SSA slot this operation assigns.
func (o Op) Output() Slot { return o.Out }

// HasChoice reports whether this operation is a min/max that the
// simplifier must consult a Choice for.
func (o Op) HasChoice() bool { return o.Kind.HasChoice() }

// Tape is a sequence of SSA operations stored in reverse evaluation order:
// index 0 is the root (the tape's overall output), and later indices are
// progressively closer to the leaves. Invariant: once built, Ops[0].Out ==
// 0. The tape is append-only during construction and immutable thereafter.
type Tape struct {
	Ops []Op

	// ChoiceCount is the number of Ops with HasChoice() == true.
	ChoiceCount int

	// Vars maps a variable name to the SSA slot that reads it.
	Vars map[string]uint32
}

// NewTape returns an empty tape with capacity preallocated for typical
// expression sizes, mirroring the reference implementation's
// Vec::with_capacity(512) tuning.
func NewTape() *Tape {
	return &Tape{
		Ops:  make([]Op, 0, 512),
		Vars: make(map[string]uint32),
	}
}

// Len returns the number of operations in the tape.
func (t *Tape) Len() int { return len(t.Ops) }

// IsEmpty reports whether the tape has no operations.
func (t *Tape) IsEmpty() bool { return len(t.Ops) == 0 }

// Reset clears the tape for reuse, preserving the underlying array
// capacity. The variable map is cleared rather than reallocated.
func (t *Tape) Reset() {
	t.Ops = t.Ops[:0]
	t.ChoiceCount = 0
	for k := range t.Vars {
		delete(t.Vars, k)
	}
}

// Push appends op to the tape, counting it toward ChoiceCount if it bears a
// choice.
func (t *Tape) Push(o Op) {
	if o.HasChoice() {
		t.ChoiceCount++
	}
	t.Ops = append(t.Ops, o)
}
