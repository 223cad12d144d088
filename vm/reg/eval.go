package reg

import (
	"math"

	"github.com/Niels-IO/fidget/vm/op"
)

// Eval is a small reference evaluator over a register-allocated Tape: it
// exists so tests can check a tape computes the value its source expression
// implies (spec.md §8's semantic-equivalence and idempotence properties),
// not merely that its shape looks right. It is not part of the VM's
// production evaluation path — an interval evaluator or a lowering to
// machine code is an external collaborator's job (spec.md §1) — but walks
// the tape the same way IterEval already does, through the same
// register/memory bookkeeping a real backend would need.
//
// axes supplies positional Input values (axis i reads axes[i]); vars
// supplies named Var values, indexed by the VarID the builder assigned
// (matching the slot Vars() maps a name to).
func Eval(t *Tape, axes, vars []float32) float32 {
	if t.IsEmpty() {
		return 0
	}
	regs := make([]float32, t.RegLimit)
	mem := make([]float32, t.SlotCount)

	for _, o := range t.IterEval() {
		switch {
		case o.Kind == op.Input:
			regs[o.Out] = axes[o.Axis]
		case o.Kind == op.Var:
			regs[o.Out] = vars[o.VarID]
		case o.Kind == op.CopyImm:
			regs[o.Out] = o.Imm
		case o.Kind == op.Load:
			regs[o.Out] = mem[o.Mem]
		case o.Kind == op.Store:
			mem[o.Mem] = regs[o.Arg]
		case o.Kind.IsUnary():
			regs[o.Out] = evalUnary(o.Kind, regs[o.Arg])
		case o.Kind.IsBinaryRegReg():
			regs[o.Out] = evalBinaryRegReg(o.Kind, regs[o.Lhs], regs[o.Rhs])
		case o.Kind.IsBinaryRegImm():
			regs[o.Out] = evalBinaryRegImm(o.Kind, regs[o.Arg], o.Imm)
		default:
			panic("reg: Eval encountered an unrecognized op kind " + o.Kind.String())
		}
	}
	return regs[0]
}

func evalUnary(k op.Kind, x float32) float32 {
	switch k {
	case op.Neg:
		return -x
	case op.Abs:
		return float32(math.Abs(float64(x)))
	case op.Recip:
		return 1 / x
	case op.Sqrt:
		return float32(math.Sqrt(float64(x)))
	case op.Square:
		return x * x
	case op.Sin:
		return float32(math.Sin(float64(x)))
	case op.Cos:
		return float32(math.Cos(float64(x)))
	case op.Tan:
		return float32(math.Tan(float64(x)))
	case op.Asin:
		return float32(math.Asin(float64(x)))
	case op.Acos:
		return float32(math.Acos(float64(x)))
	case op.Atan:
		return float32(math.Atan(float64(x)))
	case op.Exp:
		return float32(math.Exp(float64(x)))
	case op.Ln:
		return float32(math.Log(float64(x)))
	case op.CopyReg:
		return x
	default:
		panic("reg: evalUnary encountered a non-unary op kind " + k.String())
	}
}

func evalBinaryRegReg(k op.Kind, lhs, rhs float32) float32 {
	switch k {
	case op.AddRegReg:
		return lhs + rhs
	case op.SubRegReg:
		return lhs - rhs
	case op.MulRegReg:
		return lhs * rhs
	case op.DivRegReg:
		return lhs / rhs
	case op.MinRegReg:
		return float32(math.Min(float64(lhs), float64(rhs)))
	case op.MaxRegReg:
		return float32(math.Max(float64(lhs), float64(rhs)))
	default:
		panic("reg: evalBinaryRegReg encountered a non-reg-reg op kind " + k.String())
	}
}

func evalBinaryRegImm(k op.Kind, reg, imm float32) float32 {
	switch k {
	case op.AddRegImm:
		return reg + imm
	case op.MulRegImm:
		return reg * imm
	case op.SubRegImm:
		return reg - imm
	case op.SubImmReg:
		return imm - reg
	case op.DivRegImm:
		return reg / imm
	case op.DivImmReg:
		return imm / reg
	case op.MinRegImm:
		return float32(math.Min(float64(reg), float64(imm)))
	case op.MaxRegImm:
		return float32(math.Max(float64(reg), float64(imm)))
	default:
		panic("reg: evalBinaryRegImm encountered a non-reg-imm op kind " + k.String())
	}
}
