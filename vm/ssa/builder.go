package ssa

import (
	"fmt"
	"math"

	"github.com/Niels-IO/fidget/vm/exprgraph"
	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/vmerr"
)

// Build walks g from root in post-order, deduplicating structurally
// identical subtrees via g's own node identity, and returns the resulting
// SSA tape: dense slot ids, slot 0 is the root, stored in reverse
// evaluation order, with every encountered variable name mapped to its
// slot in the returned tape's Vars field.
//
// The walk uses an explicit stack rather than Go call recursion so that
// deeply nested expressions (spec.md §9: ">10^3 deep") cannot overflow the
// goroutine stack.
func Build(g exprgraph.Graph, root exprgraph.NodeID) (*Tape, error) {
	if !g.Valid(root) {
		return nil, vmerr.ErrEmptyTape
	}
	b := &builder{
		g:        g,
		slotOf:   make(map[exprgraph.NodeID]Slot),
		constVal: make(map[Slot]float32),
	}
	if err := b.run(root); err != nil {
		return nil, err
	}
	return b.finish(), nil
}

type builder struct {
	g   exprgraph.Graph
	ops []Op // built in evaluation order: leaves first, root last

	slotOf   map[exprgraph.NodeID]Slot // node -> temporary (eval-order) slot
	constVal map[Slot]float32          // temporary slot -> known constant value, for folding
	varName  []string                  // temporary slot -> variable name, for slots assigned by KindVar
}

type frame struct {
	node   exprgraph.NodeID
	pushed bool
}

func (b *builder) run(root exprgraph.NodeID) error {
	stack := []frame{{node: root}}
	for len(stack) > 0 {
		top := stack[len(stack)-1]
		n := top.node
		if _, ok := b.slotOf[n]; ok {
			stack = stack[:len(stack)-1]
			continue
		}
		if top.pushed {
			if err := b.emit(n); err != nil {
				return err
			}
			stack = stack[:len(stack)-1]
			continue
		}
		stack[len(stack)-1].pushed = true
		switch k := b.g.Kind(n); k {
		case exprgraph.KindInput, exprgraph.KindVar, exprgraph.KindConst:
			// leaves: nothing to push
		case exprgraph.KindUnary:
			_, arg := b.g.Unary(n)
			stack = append(stack, frame{node: arg})
		case exprgraph.KindBinary:
			_, lhs, rhs := b.g.Binary(n)
			// Push rhs first so lhs is visited (and so assigned a lower
			// temporary slot) first; order has no semantic effect, only
			// affects slot numbering within this op's operands.
			stack = append(stack, frame{node: rhs}, frame{node: lhs})
		default:
			return fmt.Errorf("%w: unrecognized node kind %d", vmerr.ErrBadNode, k)
		}
	}
	return nil
}

func (b *builder) nextSlot() (Slot, error) {
	if uint64(len(b.ops)) >= math.MaxUint32 {
		return 0, vmerr.ErrTooManySlots
	}
	return Slot(len(b.ops)), nil
}

func (b *builder) push(n exprgraph.NodeID, o Op) {
	b.slotOf[n] = o.Out
	if o.Kind == op.CopyImm {
		b.constVal[o.Out] = o.Imm
	}
	for int(o.Out) >= len(b.varName) {
		b.varName = append(b.varName, "")
	}
	b.ops = append(b.ops, o)
}

func (b *builder) emit(n exprgraph.NodeID) error {
	out, err := b.nextSlot()
	if err != nil {
		return err
	}
	switch b.g.Kind(n) {
	case exprgraph.KindInput:
		b.push(n, Op{Kind: op.Input, Out: out, Axis: b.g.Axis(n)})
	case exprgraph.KindVar:
		b.push(n, Op{Kind: op.Var, Out: out, VarID: uint32(out)})
		b.varName[out] = b.g.VarName(n)
	case exprgraph.KindConst:
		b.push(n, Op{Kind: op.CopyImm, Out: out, Imm: b.g.Const(n)})
	case exprgraph.KindUnary:
		uop, argNode := b.g.Unary(n)
		arg := b.slotOf[argNode]
		b.push(n, Op{Kind: unaryKind(uop), Out: out, Arg: arg})
	case exprgraph.KindBinary:
		return b.emitBinary(n, out)
	default:
		return fmt.Errorf("%w: unrecognized node kind", vmerr.ErrBadNode)
	}
	return nil
}

func unaryKind(u exprgraph.UnaryOp) op.Kind {
	switch u {
	case exprgraph.Neg:
		return op.Neg
	case exprgraph.Abs:
		return op.Abs
	case exprgraph.Recip:
		return op.Recip
	case exprgraph.Sqrt:
		return op.Sqrt
	case exprgraph.Square:
		return op.Square
	case exprgraph.Sin:
		return op.Sin
	case exprgraph.Cos:
		return op.Cos
	case exprgraph.Tan:
		return op.Tan
	case exprgraph.Asin:
		return op.Asin
	case exprgraph.Acos:
		return op.Acos
	case exprgraph.Atan:
		return op.Atan
	case exprgraph.Exp:
		return op.Exp
	case exprgraph.Ln:
		return op.Ln
	default:
		panic(fmt.Sprintf("ssa: unrecognized unary op %d", u))
	}
}

func foldBinary(o exprgraph.BinaryOp, lhs, rhs float32) float32 {
	switch o {
	case exprgraph.Add:
		return lhs + rhs
	case exprgraph.Sub:
		return lhs - rhs
	case exprgraph.Mul:
		return lhs * rhs
	case exprgraph.Div:
		return lhs / rhs
	case exprgraph.Min:
		return float32(math.Min(float64(lhs), float64(rhs)))
	case exprgraph.Max:
		return float32(math.Max(float64(lhs), float64(rhs)))
	default:
		panic(fmt.Sprintf("ssa: unrecognized binary op %d", o))
	}
}

// emitBinary implements spec.md §4.1's operation-selection rules: min/max
// and commutative/associative ops with one constant operand fold into a
// *RegImm variant; non-commutative Sub/Div pick SubImmReg/DivImmReg when
// the constant is on the left. Two-constant subexpressions fold fully at
// build time into a single CopyImm (this module's resolution of spec.md
// §4.1's open question), transitively through already-folded operands.
func (b *builder) emitBinary(n exprgraph.NodeID, out Slot) error {
	bop, lhsNode, rhsNode := b.g.Binary(n)
	lhs := b.slotOf[lhsNode]
	rhs := b.slotOf[rhsNode]
	lv, lIsConst := b.constVal[lhs]
	rv, rIsConst := b.constVal[rhs]

	if lIsConst && rIsConst {
		b.push(n, Op{Kind: op.CopyImm, Out: out, Imm: foldBinary(bop, lv, rv)})
		return nil
	}
	if rIsConst {
		b.push(n, Op{Kind: regImmKind(bop, false), Out: out, Arg: lhs, Imm: rv})
		return nil
	}
	if lIsConst {
		b.push(n, Op{Kind: regImmKind(bop, true), Out: out, Arg: rhs, Imm: lv})
		return nil
	}
	b.push(n, Op{Kind: regRegKind(bop), Out: out, Lhs: lhs, Rhs: rhs})
	return nil
}

// regImmKind returns the opcode for bop with one immediate operand.
// constOnLeft selects between the reg-imm and imm-reg variant for the
// non-commutative operations Sub and Div.
func regImmKind(bop exprgraph.BinaryOp, constOnLeft bool) op.Kind {
	switch bop {
	case exprgraph.Add:
		return op.AddRegImm
	case exprgraph.Mul:
		return op.MulRegImm
	case exprgraph.Min:
		return op.MinRegImm
	case exprgraph.Max:
		return op.MaxRegImm
	case exprgraph.Sub:
		if constOnLeft {
			return op.SubImmReg
		}
		return op.SubRegImm
	case exprgraph.Div:
		if constOnLeft {
			return op.DivImmReg
		}
		return op.DivRegImm
	default:
		panic(fmt.Sprintf("ssa: unrecognized binary op %d", bop))
	}
}

func regRegKind(bop exprgraph.BinaryOp) op.Kind {
	switch bop {
	case exprgraph.Add:
		return op.AddRegReg
	case exprgraph.Sub:
		return op.SubRegReg
	case exprgraph.Mul:
		return op.MulRegReg
	case exprgraph.Div:
		return op.DivRegReg
	case exprgraph.Min:
		return op.MinRegReg
	case exprgraph.Max:
		return op.MaxRegReg
	default:
		panic(fmt.Sprintf("ssa: unrecognized binary op %d", bop))
	}
}

// finish reverses the evaluation-order op list into storage order (root
// first) and renumbers every slot reference so that the root lands on slot
// 0, satisfying the Tape invariant that storage index 0 and SSA slot 0
// coincide.
func (b *builder) finish() *Tape {
	n := len(b.ops)
	remap := func(s Slot) Slot { return Slot(n-1) - s }

	t := NewTape()
	for i := n - 1; i >= 0; i-- {
		o := b.ops[i]
		o.Out = remap(o.Out)
		switch {
		case o.Kind.IsUnary():
			o.Arg = remap(o.Arg)
		case o.Kind.IsBinaryRegReg():
			o.Lhs = remap(o.Lhs)
			o.Rhs = remap(o.Rhs)
		case o.Kind.IsBinaryRegImm():
			o.Arg = remap(o.Arg)
		case o.Kind == op.Var:
			o.VarID = uint32(o.Out)
		}
		t.Push(o)
	}
	for slot, name := range b.varName {
		if name == "" {
			continue
		}
		t.Vars[name] = uint32(remap(Slot(slot)))
	}
	return t
}
