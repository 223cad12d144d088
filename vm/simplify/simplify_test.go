package simplify_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/simplify"
	"github.com/Niels-IO/fidget/vm/ssa"
	"github.com/Niels-IO/fidget/vm/vmerr"
	"github.com/Niels-IO/fidget/vm/vmtest"
)

func buildSSA(t *testing.T) *ssa.Tape {
	t.Helper()
	g, root := vmtest.MinXOne()
	tape, err := ssa.Build(g, root)
	require.NoError(t, err)
	return tape
}

func TestSimplifyRejectsWrongChoiceCount(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	_, _, err := simplify.Simplify(src, nil, ws, nil, nil)
	require.Error(t, err)
	var bad *vmerr.BadChoiceSlice
	require.True(t, errors.As(err, &bad))
	require.Equal(t, 0, bad.Got)
	require.Equal(t, 1, bad.Expected)
}

func TestSimplifyRejectsChoiceUnknown(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	_, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceUnknown}, ws, nil, nil)
	require.ErrorIs(t, err, vmerr.ErrInternalInvariant)
}

func TestSimplifyMinRegImmChoiceLeftDropsTheMin(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	out, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceLeft}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.Equal(t, op.Input, out.Ops[0].Kind)
	require.Equal(t, 0, out.ChoiceCount)
}

func TestSimplifyMinRegImmChoiceRightCollapsesToConstant(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	out, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceRight}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len())
	require.Equal(t, op.CopyImm, out.Ops[0].Kind)
	require.Equal(t, float32(1), out.Ops[0].Imm)
	require.Equal(t, 0, out.ChoiceCount)
}

func TestSimplifyMinRegImmChoiceBothKeepsTheMin(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	out, asm, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceBoth}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, out.Len())
	require.Equal(t, 1, out.ChoiceCount)
	require.Equal(t, op.MinRegImm, out.Ops[0].Kind)
	require.Equal(t, ssa.Slot(0), out.Ops[0].Out)
	require.NotNil(t, asm)
}

func maxMinXYZTape(t *testing.T) *ssa.Tape {
	t.Helper()
	g, root := vmtest.MaxMinXYZ()
	tape, err := ssa.Build(g, root)
	require.NoError(t, err)
	require.Equal(t, 2, tape.ChoiceCount, "min and max should each record a choice")
	return tape
}

// Choice order follows the leaves-to-root convention: the last entry applies
// to the root (the outer Max), the one before it to the inner Min.
func TestSimplifyMaxMinBothBothKeepsEverything(t *testing.T) {
	src := maxMinXYZTape(t)
	ws := simplify.NewWorkspace(4)

	out, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceBoth, simplify.ChoiceBoth}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 5, out.Len())
	require.Equal(t, 2, out.ChoiceCount)
	require.Equal(t, op.MaxRegReg, out.Ops[0].Kind)
	require.Equal(t, ssa.Slot(0), out.Ops[0].Out)
}

func TestSimplifyMaxMinMinBothMaxLeftDropsZ(t *testing.T) {
	src := maxMinXYZTape(t)
	ws := simplify.NewWorkspace(4)

	out, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceBoth, simplify.ChoiceLeft}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 3, out.Len(), "max aliases straight to min: only x, y and the min survive")
	require.Equal(t, 1, out.ChoiceCount)
	require.Equal(t, op.MinRegReg, out.Ops[0].Kind)
	require.Equal(t, ssa.Slot(0), out.Ops[0].Out)
	for _, o := range out.Ops {
		require.NotEqual(t, 2, o.Axis, "z (axis 2) must not survive when max picks its left operand")
	}
}

func TestSimplifyMaxMinMinBothMaxRightKeepsOnlyZ(t *testing.T) {
	src := maxMinXYZTape(t)
	ws := simplify.NewWorkspace(4)

	out, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceBoth, simplify.ChoiceRight}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 1, out.Len(), "max aliases straight to z: the min and its operands all become dead code")
	require.Equal(t, 0, out.ChoiceCount)
	require.Equal(t, op.Input, out.Ops[0].Kind)
	require.Equal(t, 2, out.Ops[0].Axis)
}

func TestSimplifyRecyclesWorkspaceAndStorageAcrossCalls(t *testing.T) {
	src := buildSSA(t)
	ws := simplify.NewWorkspace(4)

	first, firstAsm, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceBoth}, ws, nil, nil)
	require.NoError(t, err)
	require.Equal(t, 2, first.Len())

	second, _, err := simplify.Simplify(src, []simplify.Choice{simplify.ChoiceLeft}, ws, first, firstAsm)
	require.NoError(t, err)
	require.Equal(t, 1, second.Len())
	require.Equal(t, op.Input, second.Ops[0].Kind)
	require.Same(t, first, second, "the recycled ssa.Tape's storage should be reused in place")
}
