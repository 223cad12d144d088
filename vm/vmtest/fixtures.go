// Package vmtest builds small, named expression graphs shared across this
// module's test suites, so each package doesn't redefine the same handful
// of scenarios from spec.md §8.
package vmtest

import "github.com/Niels-IO/fidget/vm/exprgraph"

// XPlusY builds x + y.
func XPlusY() (*exprgraph.Builder, exprgraph.NodeID) {
	b := exprgraph.NewBuilder()
	x := b.Input(0)
	y := b.Input(1)
	return b, b.MakeBinary(exprgraph.Add, x, y)
}

// MinXOne builds min(x, 1).
func MinXOne() (*exprgraph.Builder, exprgraph.NodeID) {
	b := exprgraph.NewBuilder()
	x := b.Input(0)
	one := b.MakeConst(1)
	return b, b.MakeBinary(exprgraph.Min, x, one)
}

// MaxMinXYZ builds max(min(x, y), z).
func MaxMinXYZ() (*exprgraph.Builder, exprgraph.NodeID) {
	b := exprgraph.NewBuilder()
	x := b.Input(0)
	y := b.Input(1)
	z := b.Input(2)
	mn := b.MakeBinary(exprgraph.Min, x, y)
	return b, b.MakeBinary(exprgraph.Max, mn, z)
}

// SumOfAxes builds a left-associated sum of n distinct positional axes:
// (((axis0 + axis1) + axis2) + ... + axis(n-1)). Used for register-pressure
// scenarios under a small register limit; vm/reg's allocator never holds
// more than three of its values in registers at once, so with a limit of
// 3 or more it does not spill.
func SumOfAxes(n int) (*exprgraph.Builder, exprgraph.NodeID) {
	if n < 1 {
		panic("vmtest: SumOfAxes requires n >= 1")
	}
	b := exprgraph.NewBuilder()
	acc := b.Input(0)
	for i := 1; i < n; i++ {
		acc = b.MakeBinary(exprgraph.Add, acc, b.Input(i))
	}
	return b, acc
}

// DeepNegChain builds n nested negations over a single input: deep enough
// (for large n) to overflow a naive recursive tree walker, exercising the
// builder's iterative traversal.
func DeepNegChain(n int) (*exprgraph.Builder, exprgraph.NodeID) {
	b := exprgraph.NewBuilder()
	cur := b.Input(0)
	for i := 0; i < n; i++ {
		cur = b.MakeUnary(exprgraph.Neg, cur)
	}
	return b, cur
}

// SharedSubexpr builds (x*x) + (x*x) from a single shared x*x subnode, to
// exercise the builder's hash-consing: the two multiplications must land
// on the same SSA slot.
func SharedSubexpr() (*exprgraph.Builder, exprgraph.NodeID) {
	b := exprgraph.NewBuilder()
	x := b.Input(0)
	sq := b.MakeBinary(exprgraph.Mul, x, x)
	return b, b.MakeBinary(exprgraph.Add, sq, sq)
}
