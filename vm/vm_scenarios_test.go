package vm_test

// End-to-end scenarios from spec.md §8 (S1-S6), wiring the register tape's
// reference evaluator (vm/reg.Eval, exposed here as VmData.Eval) into each
// one so a structurally-correct-looking tape that computes the wrong
// number actually fails a test.

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Niels-IO/fidget/vm"
	"github.com/Niels-IO/fidget/vm/exprgraph"
	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/reg"
	"github.com/Niels-IO/fidget/vm/vmtest"
)

func TestScenarioS1XPlusY(t *testing.T) {
	g, root := vmtest.XPlusY()
	d, err := vm.NewVmData(g, root, 255)
	require.NoError(t, err)

	require.Equal(t, 3, d.Len())
	require.Equal(t, 0, d.ChoiceCount())

	evalOrder := d.IterAsm()
	require.Equal(t, op.Input, evalOrder[0].Kind)
	require.Equal(t, 0, evalOrder[0].Axis)
	require.Equal(t, op.Input, evalOrder[1].Kind)
	require.Equal(t, 1, evalOrder[1].Axis)
	require.Equal(t, op.AddRegReg, evalOrder[2].Kind)

	require.Equal(t, float32(9), d.Eval([]float32{4, 5}, nil))
}

func TestScenarioS2MinXOneChoiceLeft(t *testing.T) {
	g, root := vmtest.MinXOne()
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)

	ws := vm.NewWorkspace(4)
	simplified, err := d.Simplify([]vm.Choice{vm.ChoiceLeft}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, 1, simplified.Len())
	require.Equal(t, 0, simplified.ChoiceCount())
	require.Equal(t, op.Input, simplified.IterAsm()[0].Kind)

	require.Equal(t, float32(0.3), simplified.Eval([]float32{0.3}, nil))
}

func TestScenarioS3MinXOneChoiceRight(t *testing.T) {
	g, root := vmtest.MinXOne()
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)

	ws := vm.NewWorkspace(4)
	simplified, err := d.Simplify([]vm.Choice{vm.ChoiceRight}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, 1, simplified.Len())
	require.Equal(t, op.CopyImm, simplified.IterAsm()[0].Kind)

	// Collapsed to the constant: every input is ignored.
	require.Equal(t, float32(1), simplified.Eval([]float32{1000}, nil))
}

func TestScenarioS4MinXYChoiceBothPreservesTheMin(t *testing.T) {
	b := exprgraph.NewBuilder()
	x := b.Input(0)
	y := b.Input(1)
	root := b.MakeBinary(exprgraph.Min, x, y)

	d, err := vm.NewVmData(b, root, 4)
	require.NoError(t, err)
	require.Equal(t, 1, d.ChoiceCount())

	ws := vm.NewWorkspace(4)
	simplified, err := d.Simplify([]vm.Choice{vm.ChoiceBoth}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, 3, simplified.Len())
	require.Equal(t, 1, simplified.ChoiceCount())

	require.Equal(t, float32(2), simplified.Eval([]float32{2, 7}, nil))
	require.Equal(t, float32(2), d.Eval([]float32{2, 7}, nil), "unsimplified tape must agree with the simplified one")
}

func TestScenarioS5MaxMinXYZChoiceRightLeftKeepsZ(t *testing.T) {
	g, root := vmtest.MaxMinXYZ()
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)
	require.Equal(t, 2, d.ChoiceCount())

	ws := vm.NewWorkspace(4)
	// Choices are ordered leaves-to-root: the inner min first, the outer
	// max last.
	simplified, err := d.Simplify([]vm.Choice{vm.ChoiceLeft, vm.ChoiceRight}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, 1, simplified.Len())
	require.Equal(t, 0, simplified.ChoiceCount())
	require.Equal(t, op.Input, simplified.IterAsm()[0].Kind)
	require.Equal(t, 2, simplified.IterAsm()[0].Axis)

	require.Equal(t, float32(9), simplified.Eval([]float32{1, 2, 9}, nil), "only z survives")
}

// TestScenarioS6SumOfAxesUnderTightRegisterBudget builds the left-associated
// 8-term sum spec.md §8's S6 describes and checks the register-allocated
// tape evaluates to the arithmetic sum under a tight register budget. This
// particular shape never needs to spill under this allocator's LRU policy
// regardless of regLimit (see DESIGN.md's register-pressure open question):
// a pure accumulator chain only ever has 3 values simultaneously live, so a
// budget of 4 leaves one register permanently idle. The scenario is still
// exercised at the tight budget spec.md specifies, with SlotCount left
// unasserted rather than forced.
func TestScenarioS6SumOfAxesUnderTightRegisterBudget(t *testing.T) {
	g, root := vmtest.SumOfAxes(8)
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)

	for _, o := range d.IterAsm() {
		require.Less(t, o.Out, reg.Reg(4), "every output register must respect the budget")
	}

	axes := []float32{1, 2, 3, 4, 5, 6, 7, 8}
	var want float32
	for _, v := range axes {
		want += v
	}
	require.Equal(t, want, d.Eval(axes, nil))
}

// TestSimplifyIsSemanticallyEquivalentToTheSourceTape exercises spec.md §8
// property 5: for a resolved choice vector, evaluating the simplified tape
// must agree with evaluating the source tape, across several input points.
func TestSimplifyIsSemanticallyEquivalentToTheSourceTape(t *testing.T) {
	g, root := vmtest.MaxMinXYZ()
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)

	ws := vm.NewWorkspace(4)
	// ChoiceBoth at both sites keeps the full computation: the simplified
	// tape differs only in slot numbering, never in the function computed.
	simplified, err := d.Simplify([]vm.Choice{vm.ChoiceBoth, vm.ChoiceBoth}, ws, nil)
	require.NoError(t, err)

	for _, axes := range [][]float32{{1, 2, 3}, {5, -2, 0}, {-9, -9, 4}, {0, 0, 0}} {
		require.Equal(t, d.Eval(axes, nil), simplified.Eval(axes, nil))
	}
}

// TestSimplifyAllBothChoicesIsIdempotent exercises spec.md §8 property 6:
// simplifying a tape with every choice Both must leave both its computed
// function and its choice_count unchanged.
func TestSimplifyAllBothChoicesIsIdempotent(t *testing.T) {
	g, root := vmtest.MaxMinXYZ()
	d, err := vm.NewVmData(g, root, 4)
	require.NoError(t, err)

	ws := vm.NewWorkspace(4)
	once, err := d.Simplify([]vm.Choice{vm.ChoiceBoth, vm.ChoiceBoth}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, d.ChoiceCount(), once.ChoiceCount())

	twice, err := once.Simplify([]vm.Choice{vm.ChoiceBoth, vm.ChoiceBoth}, ws, nil)
	require.NoError(t, err)
	require.Equal(t, once.ChoiceCount(), twice.ChoiceCount())

	for _, axes := range [][]float32{{1, 2, 3}, {5, -2, 0}, {-9, -9, 4}} {
		require.Equal(t, once.Eval(axes, nil), twice.Eval(axes, nil))
	}
}
