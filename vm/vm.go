// Package vm ties together the SSA tape builder (vm/ssa), the register
// allocator (vm/reg) and the simplifier (vm/simplify) behind a single
// VmData type: a flattened math expression ready for evaluation, and
// ready to be simplified further given an external interval evaluation's
// choices.
package vm

import (
	"fmt"
	"io"

	"github.com/Niels-IO/fidget/vm/exprgraph"
	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/reg"
	"github.com/Niels-IO/fidget/vm/simplify"
	"github.com/Niels-IO/fidget/vm/ssa"
)

// Choice records which side of a min/max operation an external interval
// evaluation determined could be taken unconditionally, if either.
type Choice = simplify.Choice

// The four possible Choice values.
const (
	ChoiceUnknown = simplify.ChoiceUnknown
	ChoiceLeft    = simplify.ChoiceLeft
	ChoiceRight   = simplify.ChoiceRight
	ChoiceBoth    = simplify.ChoiceBoth
)

// Workspace is the reusable scratch state Simplify needs: see
// vm/simplify.Workspace.
type Workspace = simplify.Workspace

// NewWorkspace returns a workspace whose register allocator targets the
// given register budget.
func NewWorkspace(regLimit uint8) *Workspace {
	return simplify.NewWorkspace(regLimit)
}

// VmData is a flattened math expression, holding both the SSA form
// (suitable for simplification) and the register-allocated form (suitable
// for evaluation or lowering to machine assembly).
type VmData struct {
	ssa *ssa.Tape
	asm *reg.Tape
}

// NewVmData walks g from root, producing an SSA tape and a register
// allocation for it under the given register budget.
func NewVmData(g exprgraph.Graph, root exprgraph.NodeID, regLimit uint8) (*VmData, error) {
	s, err := ssa.Build(g, root)
	if err != nil {
		return nil, err
	}
	return &VmData{ssa: s, asm: reg.Build(s, regLimit)}, nil
}

// NewEmptyVmData returns a zero-length tape targeting the given register
// budget. Its primary use is as the scratch argument to Simplify, whose
// storage gets reused for the simplified result rather than allocated
// fresh — useful the first time a Workspace is used, before any prior
// result exists to recycle.
func NewEmptyVmData(regLimit uint8) *VmData {
	return &VmData{ssa: ssa.NewTape(), asm: reg.NewTape(regLimit)}
}

// Vars returns this tape's mapping of variable names to the SSA/register
// slot that reads them.
func (d *VmData) Vars() map[string]uint32 { return d.ssa.Vars }

// Len returns the length of the register-allocated tape.
func (d *VmData) Len() int { return d.asm.Len() }

// IsEmpty reports whether the register-allocated tape has no operations.
func (d *VmData) IsEmpty() bool { return d.asm.IsEmpty() }

// ChoiceCount returns the number of min/max operations in the tape, i.e.
// the length of the Choice slice Simplify expects.
func (d *VmData) ChoiceCount() int { return d.ssa.ChoiceCount }

// SlotCount returns the number of memory slots used by the inner
// register-allocated tape.
func (d *VmData) SlotCount() int { return d.asm.SlotCount }

// VarCount returns the number of distinct variables referenced by the
// tape.
func (d *VmData) VarCount() int { return len(d.ssa.Vars) }

// RegLimit returns the register budget this tape was allocated against.
func (d *VmData) RegLimit() uint8 { return d.asm.RegLimit }

// Simplify rewrites this tape using choices (one per ChoiceCount()
// min/max operation, ordered leaves-to-root), reusing ws's scratch state
// and scratch's tape storage. Pass a nil scratch only when no previously
// simplified VmData is available to recycle.
func (d *VmData) Simplify(choices []Choice, ws *Workspace, scratch *VmData) (*VmData, error) {
	var recycledSSA *ssa.Tape
	var recycledReg *reg.Tape
	if scratch != nil {
		recycledSSA, recycledReg = scratch.ssa, scratch.asm
	}
	newSSA, newAsm, err := simplify.Simplify(d.ssa, choices, ws, recycledSSA, recycledReg)
	if err != nil {
		return nil, err
	}
	return &VmData{ssa: newSSA, asm: newAsm}, nil
}

// IterAsm returns the register-allocated tape's operations in evaluation
// order (dependencies first, root last).
func (d *VmData) IterAsm() []reg.Op { return d.asm.IterEval() }

// Eval runs a reference evaluator over this tape's register-allocated form,
// independent of the allocator's own bookkeeping. It exists for tests that
// need to check the tape computes the right number (spec.md §8's
// semantic-equivalence and idempotence properties), not just that it has
// the right shape. axes supplies positional Input values; vars supplies
// named Var values indexed by the slot Vars() maps a name to.
func (d *VmData) Eval(axes, vars []float32) float32 { return reg.Eval(d.asm, axes, vars) }

// PrettyPrint writes a human-readable dump of both inner tapes (SSA, then
// register-allocated), each in evaluation order, to w.
func (d *VmData) PrettyPrint(w io.Writer) error {
	for i := len(d.ssa.Ops) - 1; i >= 0; i-- {
		if _, err := fmt.Fprintln(w, formatSSAOp(d.ssa.Ops[i])); err != nil {
			return err
		}
	}
	for _, o := range d.IterAsm() {
		if _, err := fmt.Fprintln(w, formatRegOp(o)); err != nil {
			return err
		}
	}
	return nil
}

func formatSSAOp(o ssa.Op) string {
	switch {
	case o.Kind == op.Input:
		return fmt.Sprintf("$%d = input %d", o.Out, o.Axis)
	case o.Kind == op.Var:
		return fmt.Sprintf("$%d = var %d", o.Out, o.VarID)
	case o.Kind == op.CopyImm:
		return fmt.Sprintf("$%d = %g", o.Out, o.Imm)
	case o.Kind == op.CopyReg:
		return fmt.Sprintf("$%d = $%d", o.Out, o.Arg)
	case o.Kind.IsUnary():
		return fmt.Sprintf("$%d = %s $%d", o.Out, o.Kind, o.Arg)
	case o.Kind.IsBinaryRegReg():
		return fmt.Sprintf("$%d = %s $%d, $%d", o.Out, o.Kind, o.Lhs, o.Rhs)
	case o.Kind.IsBinaryRegImm():
		return fmt.Sprintf("$%d = %s $%d, %g", o.Out, o.Kind, o.Arg, o.Imm)
	default:
		return fmt.Sprintf("$%d = %s <?>", o.Out, o.Kind)
	}
}

func formatRegOp(o reg.Op) string {
	switch {
	case o.Kind == op.Input:
		return fmt.Sprintf("r%d = input %d", o.Out, o.Axis)
	case o.Kind == op.Var:
		return fmt.Sprintf("r%d = var %d", o.Out, o.VarID)
	case o.Kind == op.CopyImm:
		return fmt.Sprintf("r%d = %g", o.Out, o.Imm)
	case o.Kind == op.CopyReg:
		return fmt.Sprintf("r%d = r%d", o.Out, o.Arg)
	case o.Kind == op.Load:
		return fmt.Sprintf("r%d = load m%d", o.Out, o.Mem)
	case o.Kind == op.Store:
		return fmt.Sprintf("store m%d, r%d", o.Mem, o.Arg)
	case o.Kind.IsUnary():
		return fmt.Sprintf("r%d = %s r%d", o.Out, o.Kind, o.Arg)
	case o.Kind.IsBinaryRegReg():
		return fmt.Sprintf("r%d = %s r%d, r%d", o.Out, o.Kind, o.Lhs, o.Rhs)
	case o.Kind.IsBinaryRegImm():
		return fmt.Sprintf("r%d = %s r%d, %g", o.Out, o.Kind, o.Arg, o.Imm)
	default:
		return fmt.Sprintf("r%d = %s <?>", o.Out, o.Kind)
	}
}
