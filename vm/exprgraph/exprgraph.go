// Package exprgraph declares the contract the tape compilation subsystem
// expects from the external expression front-end, and ships a small
// in-memory reference implementation used by this module's own tests and
// the cmd/tapedump example.
//
// The front-end proper (parsing, hash-consing across an entire program, a
// persistent graph shared by many tapes) is out of scope for this module —
// spec.md §1 names it an external collaborator. This package exists so the
// builder has something concrete to walk in tests without depending on a
// real parser.
package exprgraph

// NodeID names a node in a Graph. Identity, not structural equality, is
// what the builder hash-conses on — two equal NodeIDs are the same node.
type NodeID uint64

// Kind classifies a node for the purpose of SSA lowering.
type Kind int

const (
	KindInput Kind = iota
	KindVar
	KindConst
	KindUnary
	KindBinary
)

// UnaryOp enumerates the unary math operations the builder understands.
type UnaryOp int

const (
	Neg UnaryOp = iota
	Abs
	Recip
	Sqrt
	Square
	Sin
	Cos
	Tan
	Asin
	Acos
	Atan
	Exp
	Ln
)

// BinaryOp enumerates the binary math operations the builder understands.
type BinaryOp int

const (
	Add BinaryOp = iota
	Sub
	Mul
	Div
	Min
	Max
)

// Graph is a post-order-walkable expression graph with stable node
// identities. Implementations need not be thread-safe; the builder reads a
// single Graph from a single goroutine.
type Graph interface {
	// Valid reports whether n names a real node in this graph. The builder
	// checks this for the root before walking anything else, so a caller
	// passing a dangling or out-of-range NodeID gets a structured error
	// instead of an implementation-defined panic.
	Valid(n NodeID) bool

	// Kind reports what n is. Operand accessors below are valid only for
	// the Kind they correspond to; calling the wrong one is a programming
	// error on the caller's part (the builder never does so).
	Kind(n NodeID) Kind

	// Axis is valid when Kind(n) == KindInput; it names the VM's
	// positional axis (0 = x, 1 = y, 2 = z, ...).
	Axis(n NodeID) int

	// VarName is valid when Kind(n) == KindVar.
	VarName(n NodeID) string

	// Const is valid when Kind(n) == KindConst.
	Const(n NodeID) float32

	// Unary is valid when Kind(n) == KindUnary.
	Unary(n NodeID) (UnaryOp, NodeID)

	// Binary is valid when Kind(n) == KindBinary.
	Binary(n NodeID) (BinaryOp, NodeID, NodeID)
}

// Builder is a small hash-consing in-memory Graph, good enough for tests
// and for the example binary: structurally identical subexpressions built
// through its helpers share a NodeID, matching the real front-end's
// contract (spec.md §4.1(d)).
type Builder struct {
	nodes []node
	memo  map[node]NodeID
}

type node struct {
	kind    Kind
	axis    int
	varName string
	cst     float32
	uop     UnaryOp
	bop     BinaryOp
	a, b    NodeID
}

// NewBuilder returns an empty hash-consing graph builder.
func NewBuilder() *Builder {
	return &Builder{memo: make(map[node]NodeID)}
}

func (b *Builder) intern(n node) NodeID {
	if id, ok := b.memo[n]; ok {
		return id
	}
	id := NodeID(len(b.nodes))
	b.nodes = append(b.nodes, n)
	b.memo[n] = id
	return id
}

// Input returns (interning) the node reading positional axis.
func (b *Builder) Input(axis int) NodeID {
	return b.intern(node{kind: KindInput, axis: axis})
}

// Var returns (interning) the node reading the named variable.
func (b *Builder) Var(name string) NodeID {
	return b.intern(node{kind: KindVar, varName: name})
}

// MakeConst returns (interning) the node holding a compile-time constant.
func (b *Builder) MakeConst(v float32) NodeID {
	return b.intern(node{kind: KindConst, cst: v})
}

// MakeUnary returns (interning) the node applying op to arg.
func (b *Builder) MakeUnary(o UnaryOp, arg NodeID) NodeID {
	return b.intern(node{kind: KindUnary, uop: o, a: arg})
}

// MakeBinary returns (interning) the node applying op to (lhs, rhs).
func (b *Builder) MakeBinary(o BinaryOp, lhs, rhs NodeID) NodeID {
	return b.intern(node{kind: KindBinary, bop: o, a: lhs, b: rhs})
}

// Valid reports whether n was returned by one of b's interning methods.
func (b *Builder) Valid(n NodeID) bool { return int(n) < len(b.nodes) }

func (b *Builder) Kind(n NodeID) Kind      { return b.nodes[n].kind }
func (b *Builder) Axis(n NodeID) int       { return b.nodes[n].axis }
func (b *Builder) VarName(n NodeID) string { return b.nodes[n].varName }
func (b *Builder) Const(n NodeID) float32  { return b.nodes[n].cst }
func (b *Builder) Unary(n NodeID) (UnaryOp, NodeID) {
	nd := b.nodes[n]
	return nd.uop, nd.a
}
func (b *Builder) Binary(n NodeID) (BinaryOp, NodeID, NodeID) {
	nd := b.nodes[n]
	return nd.bop, nd.a, nd.b
}
