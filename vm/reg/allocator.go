package reg

import (
	"github.com/Niels-IO/fidget/vm/op"
	"github.com/Niels-IO/fidget/vm/ssa"
)

// locKind tags what an SSA slot currently resolves to in an in-progress
// allocation.
type locKind uint8

const (
	locUnassigned locKind = iota
	locRegister
	locMemory
)

type allocation struct {
	kind locKind
	reg  Reg
	mem  MemSlot
}

// Allocator assigns registers (and, under pressure, spill memory slots) to
// SSA slots, processing an SSA tape in its stored order — root first — and
// emitting a register-level Tape as it goes. This mirrors the structure of
// the teacher's valueLocationStack (an operand stack of
// register/conditional-register/stack locations with LRU-ish stealing from
// used registers), generalized from an operand-stack model to a model
// indexed by SSA slot id, since an SSA value can have many consumers rather
// than one stack position.
//
// An Allocator is reusable across many tapes via Reset, to support the
// workspace pattern (spec.md §6): building thousands of short tapes during
// spatial subdivision without any steady-state heap allocation.
type Allocator struct {
	regLimit uint8

	allocations []allocation // indexed by ssa.Slot
	regOwner    []int64      // register -> owning ssa.Slot, -1 if free
	freeRegs    []Reg

	freeMem   []MemSlot
	nextMem   MemSlot
	slotCount int

	lru *lruList

	pinned []bool        // scratch: registers pinned for the in-flight Process call
	loads  []pendingLoad // scratch: Loads (and their evictions) queued by the in-flight Process call

	out *Tape
}

// NewAllocator returns an allocator with its register-owner and LRU
// scratch sized for regLimit registers.
func NewAllocator(regLimit uint8) *Allocator {
	a := &Allocator{regLimit: regLimit}
	a.lru = newLRU(int(regLimit))
	a.regOwner = make([]int64, regLimit)
	a.freeRegs = make([]Reg, 0, regLimit)
	a.pinned = make([]bool, regLimit)
	a.out = NewTape(regLimit)
	return a
}

// Reset prepares the allocator for a fresh tape of sourceLen SSA slots,
// reusing every scratch slice's backing array. sourceLen bounds the slot
// ids the allocator will see: for a tape built fresh from an expression
// graph this is the SSA tape's own length; for a tape rewritten by the
// simplifier it is the *source* tape's length, a safe upper bound on the
// rewritten slot ids (spec.md §6: the workspace is sized by source length).
//
// Register 0 is pre-bound to SSA slot 0: every tape's root is, by
// convention, produced directly into register 0, giving evaluators a fixed
// place to find the overall result without consulting the allocation
// table.
func (a *Allocator) Reset(sourceLen int, recycled *Tape) {
	if cap(a.allocations) >= sourceLen {
		a.allocations = a.allocations[:sourceLen]
	} else {
		a.allocations = make([]allocation, sourceLen)
	}
	for i := range a.allocations {
		a.allocations[i] = allocation{kind: locUnassigned}
	}
	for i := range a.regOwner {
		a.regOwner[i] = -1
	}
	a.freeRegs = a.freeRegs[:0]
	for r := int(a.regLimit) - 1; r >= 1; r-- {
		a.freeRegs = append(a.freeRegs, Reg(r))
	}
	a.lru.reset()
	a.freeMem = a.freeMem[:0]
	a.nextMem = 0
	a.slotCount = 0

	if recycled != nil {
		recycled.Reset(a.regLimit)
		a.out = recycled
	} else {
		a.out = NewTape(a.regLimit)
	}

	if sourceLen > 0 {
		a.regOwner[0] = 0
		a.allocations[0] = allocation{kind: locRegister, reg: 0}
		a.lru.touch(0)
	}
}

// RegLimit returns the register budget this allocator is configured for.
func (a *Allocator) RegLimit() uint8 { return a.regLimit }

// pendingLoad is a Load op queued for emission after the defining op's main
// entry, paired with the Store (if any) that evicting its register required.
type pendingLoad struct {
	hasLoad bool
	load    Op
	evict   *Op
}

// Process consumes one SSA op, extending the in-progress register tape.
// Ops must be fed in the SSA tape's stored order (root first).
func (a *Allocator) Process(o ssa.Op) {
	out := o.Output()
	alloc := a.allocations[out]
	if alloc.kind == locUnassigned {
		// Nobody downstream (root-ward) ever referenced this value: dead
		// code. Its operands are left untouched; if they have no other
		// consumers either, they will be found dead in turn when we reach
		// their own defining ops.
		return
	}

	for i := range a.pinned {
		a.pinned[i] = false
	}
	pinned := a.pinned
	a.loads = a.loads[:0]

	var outReg Reg
	var outStore *Op
	var outEvict *Op

	if alloc.kind == locRegister {
		outReg = alloc.reg
	} else {
		r, evicted := a.acquireRegister(pinned)
		outReg = r
		s := Op{Kind: op.Store, Mem: alloc.mem, Arg: outReg}
		outStore = &s
		outEvict = evicted
		a.freeMemSlot(alloc.mem)
	}
	pinned[outReg] = true

	main := Op{Kind: o.Kind, Out: outReg, Imm: o.Imm, Axis: o.Axis, VarID: o.VarID}

	resolve := func(slot ssa.Slot) Reg {
		in := a.allocations[slot]
		switch in.kind {
		case locRegister:
			pinned[in.reg] = true
			a.lru.touch(int(in.reg))
			return in.reg
		case locMemory:
			r, evicted := a.acquireRegister(pinned)
			pinned[r] = true
			a.allocations[slot] = allocation{kind: locRegister, reg: r}
			a.regOwner[r] = int64(slot)
			a.freeMemSlot(in.mem)
			a.loads = append(a.loads, pendingLoad{hasLoad: true, load: Op{Kind: op.Load, Out: r, Mem: in.mem}, evict: evicted})
			return r
		default: // locUnassigned: first (eval-time-latest) consumer of this slot
			r, evicted := a.acquireRegister(pinned)
			pinned[r] = true
			a.allocations[slot] = allocation{kind: locRegister, reg: r}
			a.regOwner[r] = int64(slot)
			if evicted != nil {
				a.loads = append(a.loads, pendingLoad{evict: evicted})
			}
			return r
		}
	}

	switch {
	case o.Kind.IsUnary():
		main.Arg = resolve(o.Arg)
	case o.Kind.IsBinaryRegReg():
		main.Lhs = resolve(o.Lhs)
		main.Rhs = resolve(o.Rhs)
	case o.Kind.IsBinaryRegImm():
		main.Arg = resolve(o.Arg)
	}

	if outStore != nil {
		a.out.push(*outStore)
	}
	a.out.push(main)
	if outEvict != nil {
		a.out.push(*outEvict)
	}
	a.releaseRegister(outReg)
	for _, pl := range a.loads {
		if pl.hasLoad {
			a.out.push(pl.load)
		}
		if pl.evict != nil {
			a.out.push(*pl.evict)
		}
	}
}

// Finalize returns the accumulated register tape and records the number of
// distinct memory slots used.
func (a *Allocator) Finalize() *Tape {
	a.out.SlotCount = a.slotCount
	return a.out
}

// Build allocates registers for an entire SSA tape in one pass, using a
// fresh, throwaway Allocator. Callers compiling many short tapes (spatial
// subdivision: spec.md §6) should instead keep an Allocator across calls
// and drive Reset/Process/Finalize directly to avoid repeated allocation.
func Build(source *ssa.Tape, regLimit uint8) *Tape {
	a := NewAllocator(regLimit)
	a.Reset(source.Len(), nil)
	for _, o := range source.Ops {
		a.Process(o)
	}
	return a.Finalize()
}

// acquireRegister returns a register usable by the caller, evicting the
// least-recently-used occupied register not pinned in exclude (indexed by
// register number) if no register is free. The second return value is the
// Store op the caller must emit (at the appropriate point in the output
// stream) if an eviction occurred.
func (a *Allocator) acquireRegister(exclude []bool) (Reg, *Op) {
	if n := len(a.freeRegs); n > 0 {
		r := a.freeRegs[n-1]
		a.freeRegs = a.freeRegs[:n-1]
		a.lru.touch(int(r))
		return r, nil
	}
	victim, ok := a.lru.victim(exclude)
	if !ok {
		// Register budget exhausted by this op's own operands and output;
		// a register limit of at least 3 rules this out for any
		// well-formed op, since an op has at most two live operands plus
		// its output alive simultaneously.
		panic("reg: no eviction candidate available under the configured register limit")
	}
	r := Reg(victim)
	victimSlot := ssa.Slot(a.regOwner[r])
	m := a.allocMemSlot()
	a.allocations[victimSlot] = allocation{kind: locMemory, mem: m}
	a.regOwner[r] = -1
	evict := Op{Kind: op.Store, Mem: m, Arg: r}
	a.lru.touch(int(r))
	return r, &evict
}

// releaseRegister returns r to the free pool: the op that just consumed it
// as an output is its last reference by SSA well-formedness.
func (a *Allocator) releaseRegister(r Reg) {
	a.regOwner[r] = -1
	a.lru.remove(int(r))
	a.freeRegs = append(a.freeRegs, r)
}

func (a *Allocator) allocMemSlot() MemSlot {
	if n := len(a.freeMem); n > 0 {
		m := a.freeMem[n-1]
		a.freeMem = a.freeMem[:n-1]
		return m
	}
	m := a.nextMem
	a.nextMem++
	if int(a.nextMem) > a.slotCount {
		a.slotCount = int(a.nextMem)
	}
	return m
}

func (a *Allocator) freeMemSlot(m MemSlot) {
	a.freeMem = append(a.freeMem, m)
}

// lruList is a doubly-linked list over register ids 0..n-1, stored as two
// index arrays rather than pointers, so that touching or evicting a
// register never allocates (spec.md §6). head is the most-recently-used
// register, tail the least-recently-used; prev points toward head, next
// toward tail.
type lruList struct {
	prev, next []int32
	head, tail int32
}

func newLRU(n int) *lruList {
	l := &lruList{prev: make([]int32, n), next: make([]int32, n)}
	l.reset()
	return l
}

func (l *lruList) reset() {
	for i := range l.prev {
		l.prev[i] = -1
		l.next[i] = -1
	}
	l.head, l.tail = -1, -1
}

// touch moves r to the most-recently-used position, inserting it if it is
// not already linked.
func (l *lruList) touch(r int) {
	l.remove(r)
	l.next[r] = l.head
	l.prev[r] = -1
	if l.head != -1 {
		l.prev[l.head] = int32(r)
	}
	l.head = int32(r)
	if l.tail == -1 {
		l.tail = int32(r)
	}
}

// remove unlinks r if it is currently linked; a no-op otherwise.
func (l *lruList) remove(r int) {
	p, n := l.prev[r], l.next[r]
	if p != -1 {
		l.next[p] = n
	} else if l.head == int32(r) {
		l.head = n
	}
	if n != -1 {
		l.prev[n] = p
	} else if l.tail == int32(r) {
		l.tail = p
	}
	l.prev[r] = -1
	l.next[r] = -1
}

// victim returns the least-recently-used linked register not marked in
// exclude (indexed by register number).
func (l *lruList) victim(exclude []bool) (int, bool) {
	for r := l.tail; r != -1; r = l.prev[r] {
		if !exclude[r] {
			return int(r), true
		}
	}
	return 0, false
}
