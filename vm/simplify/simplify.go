// Package simplify implements choice-driven tape simplification: given an
// SSA tape and a Choice recorded for each of its min/max operations (from
// an external interval evaluation, out of scope for this module), it
// produces a shorter, equivalent SSA tape plus its register allocation.
//
// Simplify walks the source tape in its own stored order (root first),
// mirroring the source's reverse-evaluation-order convention so the
// rewritten tape satisfies the same invariant without a separate reversal
// pass. A dropped operation either had no surviving consumer, or was a
// min/max resolved to one side, or a CopyReg, aliased away instead of
// copied.
package simplify

import (
	"fmt"

	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/reg"
	"github.com/Niels-IO/fidget/vm/ssa"
	"github.com/Niels-IO/fidget/vm/vmerr"
)

// Choice records which side of a min/max operation an external interval
// evaluation determined could be taken unconditionally, if either.
type Choice uint8

const (
	// ChoiceUnknown marks a choice that was never resolved; passing it to
	// Simplify is a programming error (vmerr.ErrInternalInvariant).
	ChoiceUnknown Choice = iota
	// ChoiceLeft means the first operand always wins.
	ChoiceLeft
	// ChoiceRight means the second operand (or the immediate, for a
	// *RegImm op) always wins.
	ChoiceRight
	// ChoiceBoth means neither side dominates; the operation must be kept.
	ChoiceBoth
)

func (c Choice) String() string {
	switch c {
	case ChoiceLeft:
		return "left"
	case ChoiceRight:
		return "right"
	case ChoiceBoth:
		return "both"
	default:
		return "unknown"
	}
}

const unbound = ^uint32(0)

// Workspace holds the scratch state a Simplify call needs: the bindings
// from source SSA slots to their rewritten counterparts, and the register
// allocator that consumes the rewritten tape as it's produced. Reusing a
// Workspace across many Simplify calls (spec.md §6: spatial subdivision
// may call this thousands of times) keeps that state's backing arrays
// allocated once.
type Workspace struct {
	alloc *reg.Allocator
	bind  []uint32
	count uint32
}

// NewWorkspace returns a workspace whose register allocator targets the
// given register budget.
func NewWorkspace(regLimit uint8) *Workspace {
	return &Workspace{alloc: reg.NewAllocator(regLimit)}
}

// Reset prepares the workspace for simplifying a tape with sourceLen SSA
// slots, recycling regTape's storage for the rewritten tape's register
// allocation if provided (pass nil to allocate fresh).
func (w *Workspace) Reset(sourceLen int, regTape *reg.Tape) {
	w.alloc.Reset(sourceLen, regTape)
	if cap(w.bind) >= sourceLen {
		w.bind = w.bind[:sourceLen]
	} else {
		w.bind = make([]uint32, sourceLen)
	}
	for i := range w.bind {
		w.bind[i] = unbound
	}
	w.count = 0
}

func (w *Workspace) active(i ssa.Slot) (ssa.Slot, bool) {
	v := w.bind[i]
	if v == unbound {
		return 0, false
	}
	return ssa.Slot(v), true
}

// getOrInsertActive resolves i's rewritten slot, assigning the next fresh
// id if this is the first time i has been referenced while walking the
// source tape backward (i.e. i's eval-time-latest use).
func (w *Workspace) getOrInsertActive(i ssa.Slot) ssa.Slot {
	if w.bind[i] == unbound {
		w.bind[i] = w.count
		w.count++
	}
	return ssa.Slot(w.bind[i])
}

func (w *Workspace) setActive(i, bind ssa.Slot) {
	w.bind[i] = uint32(bind)
}

// Simplify rewrites source according to choices (one entry per
// source.ChoiceCount op bearing a min/max, ordered the way an external
// interval evaluator visits them: leaves to root), returning the rewritten
// SSA tape and its register allocation. recycledSSA and recycledReg, if
// non-nil, have their storage reused for the result instead of allocating
// fresh tapes.
func Simplify(source *ssa.Tape, choices []Choice, ws *Workspace, recycledSSA *ssa.Tape, recycledReg *reg.Tape) (*ssa.Tape, *reg.Tape, error) {
	if len(choices) != source.ChoiceCount {
		return nil, nil, vmerr.NewBadChoiceSlice(len(choices), source.ChoiceCount)
	}

	var out *ssa.Tape
	if recycledSSA != nil {
		recycledSSA.Reset()
		out = recycledSSA
	} else {
		out = ssa.NewTape()
	}

	ws.Reset(source.Len(), recycledReg)

	if source.IsEmpty() {
		return out, ws.alloc.Finalize(), nil
	}
	if source.Ops[0].Output() != 0 {
		return nil, nil, fmt.Errorf("%w: tape root is not slot 0", vmerr.ErrInternalInvariant)
	}

	// Name lookup for fixing up Vars to the rewritten numbering; bounded by
	// variable count, not tape length, so this doesn't compromise the
	// steady-state zero-allocation goal for the dominant per-op work below.
	nameOf := make(map[ssa.Slot]string, len(source.Vars))
	for name, slot := range source.Vars {
		nameOf[ssa.Slot(slot)] = name
	}

	ws.setActive(0, 0)
	ws.count++

	newChoiceCount := 0
	choiceIdx := len(choices) - 1

	for _, srcOp := range source.Ops {
		index := srcOp.Output()
		newIndex, live := ws.active(index)
		if !live {
			if srcOp.HasChoice() {
				choiceIdx--
			}
			continue
		}

		o := srcOp
		drop := false

		switch {
		case o.Kind.IsLeaf():
			o.Out = newIndex
			if o.Kind == op.Var {
				o.VarID = uint32(newIndex)
			}

		case o.Kind == op.CopyReg:
			if src, ok := ws.active(o.Arg); ok {
				o.Out = newIndex
				o.Arg = src
			} else {
				ws.setActive(o.Arg, newIndex)
				drop = true
			}

		case o.Kind == op.MinRegImm, o.Kind == op.MaxRegImm:
			c := choices[choiceIdx]
			choiceIdx--
			switch c {
			case ChoiceLeft:
				if src, ok := ws.active(o.Arg); ok {
					o = ssa.Op{Kind: op.CopyReg, Out: newIndex, Arg: src}
				} else {
					ws.setActive(o.Arg, newIndex)
					drop = true
				}
			case ChoiceRight:
				o = ssa.Op{Kind: op.CopyImm, Out: newIndex, Imm: o.Imm}
			case ChoiceBoth:
				newChoiceCount++
				o.Out = newIndex
				o.Arg = ws.getOrInsertActive(o.Arg)
			default:
				return nil, nil, fmt.Errorf("%w: unresolved choice at slot %d", vmerr.ErrInternalInvariant, index)
			}

		case o.Kind == op.MinRegReg, o.Kind == op.MaxRegReg:
			c := choices[choiceIdx]
			choiceIdx--
			switch c {
			case ChoiceLeft:
				if src, ok := ws.active(o.Lhs); ok {
					o = ssa.Op{Kind: op.CopyReg, Out: newIndex, Arg: src}
				} else {
					ws.setActive(o.Lhs, newIndex)
					drop = true
				}
			case ChoiceRight:
				if src, ok := ws.active(o.Rhs); ok {
					o = ssa.Op{Kind: op.CopyReg, Out: newIndex, Arg: src}
				} else {
					ws.setActive(o.Rhs, newIndex)
					drop = true
				}
			case ChoiceBoth:
				newChoiceCount++
				o.Out = newIndex
				o.Lhs = ws.getOrInsertActive(o.Lhs)
				o.Rhs = ws.getOrInsertActive(o.Rhs)
			default:
				return nil, nil, fmt.Errorf("%w: unresolved choice at slot %d", vmerr.ErrInternalInvariant, index)
			}

		case o.Kind.IsUnary():
			o.Out = newIndex
			o.Arg = ws.getOrInsertActive(o.Arg)

		case o.Kind.IsBinaryRegReg():
			o.Out = newIndex
			o.Lhs = ws.getOrInsertActive(o.Lhs)
			o.Rhs = ws.getOrInsertActive(o.Rhs)

		case o.Kind.IsBinaryRegImm():
			o.Out = newIndex
			o.Arg = ws.getOrInsertActive(o.Arg)

		default:
			return nil, nil, fmt.Errorf("%w: unrecognized op kind", vmerr.ErrBadNode)
		}

		if drop {
			continue
		}

		if name, ok := nameOf[index]; ok && o.Kind == op.Var {
			out.Vars[name] = uint32(newIndex)
		}
		out.Push(o)
		ws.alloc.Process(o)
	}

	out.ChoiceCount = newChoiceCount
	if uint32(out.Len()) != ws.count {
		return nil, nil, fmt.Errorf("%w: simplified tape length does not match bound-slot count", vmerr.ErrInternalInvariant)
	}
	return out, ws.alloc.Finalize(), nil
}
