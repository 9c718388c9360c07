package pea

import (
	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// Facts is the host's pre-existing fact record for a register, the subset
// of the general specializer's type-fact vocabulary §3 says shadow facts
// mirror: a known type plus a concreteness flag. Unlike pea's own shadow
// facts (shadowfacts.go, C3), Facts records facts the *host* already
// proved before this pass ever ran; the facade only ever reads them.
type Facts struct {
	KnownType repr.Type
	Concrete  bool
}

// OpInfo mirrors §6's op_info(opcode) -> { name, num_operands,
// operand_kinds[], may_deopt }. This module's opcode set carries a fixed
// arity per opcode (no variable-operand-kind dispatch is needed beyond
// what graph.Instruction already encodes), so only the two fields the
// analyzer actually consults are surfaced.
type OpInfo struct {
	Name     string
	MayDeopt bool
}

// Facade is the IR-facing facade (C1): the thin layer over the host graph
// that the rest of the pass reads/writes operand facts, usages, spesh
// slots, and register versions through. Panics with IROops (via
// invariant()) on unknown opcodes, on invalid (missing) operands, and on
// deleting a usage that was never recorded. Fact and version lookups do
// not fail: GetFacts starts an operand with an empty fact record, and
// CurrentVersion returns a register that was never re-versioned as itself.
type Facade struct {
	b graph.Builder

	facts map[graph.ValueID]*Facts

	// usages/deoptUsages are append-only edge lists: usages_add /
	// usages_add_deopt never remove an edge the analyzer itself added;
	// usages_delete is used by the rewriter once it knows a use was
	// folded away.
	usages      map[graph.ValueID][]*graph.Instruction
	deoptUsages map[graph.ValueID][]int32

	// versions tracks the logical-register version chain behind
	// new_version/current_version. In this SSA-based graph a "version"
	// is simply a fresh graph.Value chained under the register's
	// original identity; most registers never gain a second version.
	versions map[graph.ValueID][]graph.Value

	// spesh is the append-only constant pool add_spesh_slot(value)
	// appends to; its index is what TypeSlot/ConstVal operands name.
	spesh []interface{}

	nextDeoptIdx int32
}

// NewFacade wraps b.
func NewFacade(b graph.Builder) *Facade {
	return &Facade{
		b:           b,
		facts:       make(map[graph.ValueID]*Facts),
		usages:      make(map[graph.ValueID][]*graph.Instruction),
		deoptUsages: make(map[graph.ValueID][]int32),
		versions:    make(map[graph.ValueID][]graph.Value),
	}
}

// Builder exposes the wrapped graph builder for read-only structural
// queries (block iteration, formatting) the rest of the pass needs
// directly rather than through a facade method.
func (f *Facade) Builder() graph.Builder { return f.b }

// GetFacts returns v's host fact record, creating an empty one on first
// access — get_facts(operand) never fails; an operand simply starts with
// no known facts.
func (f *Facade) GetFacts(v graph.Value) *Facts {
	invariant(v.Valid(), "get_facts on invalid operand")
	if fa, ok := f.facts[v.ID()]; ok {
		return fa
	}
	fa := &Facts{}
	f.facts[v.ID()] = fa
	return fa
}

// SetKnownType is a convenience used by demo/test setup to seed a host
// fact the way the general specializer would have before PEA ran.
func (f *Facade) SetKnownType(v graph.Value, t repr.Type, concrete bool) {
	f.facts[v.ID()] = &Facts{KnownType: t, Concrete: concrete}
}

// CurrentVersion returns the most recent version minted for reg, or reg
// itself if new_version has never been called on it.
func (f *Facade) CurrentVersion(reg graph.Value) graph.Value {
	invariant(reg.Valid(), "current_version on invalid register")
	chain := f.versions[reg.ID()]
	if len(chain) == 0 {
		return reg
	}
	return chain[len(chain)-1]
}

// NewVersion mints the next version of reg: a fresh graph.Value of the
// same kind, recorded as reg's new current version. No transform in
// rewriter.go calls it.
func (f *Facade) NewVersion(reg graph.Value) graph.Value {
	invariant(reg.Valid(), "new_version on invalid register")
	nv := f.b.NewValue(reg.Kind())
	f.versions[reg.ID()] = append(f.versions[reg.ID()], nv)
	return nv
}

// UniqueReg mints a brand-new register of the given kind, unrelated to any
// existing one (§6 unique_reg(kind)).
func (f *Facade) UniqueReg(kind graph.RegKind) graph.Value { return f.b.NewValue(kind) }

// InsertInstructionAfter splices ins into blk immediately after anchor,
// mirroring §6's insert_ins_after(block, anchor, ins).
func (f *Facade) InsertInstructionAfter(blk graph.BasicBlock, anchor, ins *graph.Instruction) {
	if next := anchor.Next(); next != nil {
		blk.InsertBefore(next, ins)
	} else {
		blk.InsertInstruction(ins)
	}
}

// InsertInstructionBefore splices ins into blk immediately before anchor,
// the companion half of insert_ins_after used by the materialization
// insertion-point logic (§4.5's skip-over-arg-prep rule).
func (f *Facade) InsertInstructionBefore(blk graph.BasicBlock, anchor, ins *graph.Instruction) {
	blk.InsertBefore(anchor, ins)
}

// DeleteInstruction mirrors §6's delete_ins(block, ins).
func (f *Facade) DeleteInstruction(blk graph.BasicBlock, ins *graph.Instruction) {
	blk.Remove(ins)
}

// UsagesAdd records that ins reads v, mirroring usages_add(operand, ins).
func (f *Facade) UsagesAdd(v graph.Value, ins *graph.Instruction) {
	invariant(v.Valid(), "usages_add on invalid operand")
	f.usages[v.ID()] = append(f.usages[v.ID()], ins)
}

// UsagesDelete removes the first recorded usage of v by ins, mirroring
// usages_delete(operand, ins). A delete for a usage never added is an
// invariant violation: the pass's own bookkeeping would be inconsistent.
func (f *Facade) UsagesDelete(v graph.Value, ins *graph.Instruction) {
	list := f.usages[v.ID()]
	for i, u := range list {
		if u == ins {
			f.usages[v.ID()] = append(list[:i], list[i+1:]...)
			return
		}
	}
	invariant(false, "usages_delete: %v not a recorded usage of %v", ins, v)
}

// Usages returns the instructions currently recorded as reading v.
func (f *Facade) Usages(v graph.Value) []*graph.Instruction { return f.usages[v.ID()] }

// UsagesAddDeopt pins v as live at deoptIdx, mirroring
// usages_add_deopt(operand, deopt_idx).
func (f *Facade) UsagesAddDeopt(v graph.Value, deoptIdx int32) {
	invariant(v.Valid(), "usages_add_deopt on invalid operand")
	f.deoptUsages[v.ID()] = append(f.deoptUsages[v.ID()], deoptIdx)
}

// DeoptUsages returns the deopt indices v has been pinned live at.
func (f *Facade) DeoptUsages(v graph.Value) []int32 { return f.deoptUsages[v.ID()] }

// AddSpeshSlot appends value to the constant pool and returns its index,
// mirroring add_spesh_slot(value) -> idx.
func (f *Facade) AddSpeshSlot(value interface{}) uint16 {
	idx := len(f.spesh)
	f.spesh = append(f.spesh, value)
	invariant(idx <= 0xffff, "spesh slot table overflowed uint16")
	return uint16(idx)
}

// SpeshSlot returns the constant-pool entry previously returned by
// AddSpeshSlot at idx.
func (f *Facade) SpeshSlot(idx uint16) interface{} { return f.spesh[idx] }

// OpInfoOf mirrors §6's op_info(opcode).
func (f *Facade) OpInfoOf(op graph.Opcode) OpInfo {
	invariant(op != graph.OpInvalid && op.String() != "unknown", "op_info on unknown opcode %d", op)
	return OpInfo{Name: op.String(), MayDeopt: op.MayDeopt()}
}

// ReversePostOrder mirrors §6's reverse_postorder(graph) -> block[]. It
// returns blocks in allocation order, which is a valid reverse postorder
// when every branch targets a block allocated after its own. The builder
// wires any branch it is given, backward ones included; the analyzer sees
// such a branch as a predecessor not yet visited and refuses the graph.
func (f *Facade) ReversePostOrder() []graph.BasicBlock {
	var blocks []graph.BasicBlock
	for blk := f.b.BlockIteratorBegin(); blk != nil; blk = f.b.BlockIteratorNext() {
		blocks = append(blocks, blk)
	}
	return blocks
}

// NextDeoptIndex allocates the next deopt-point index, analogous to how
// the host's specializer graph numbers its deopt points monotonically as
// it discovers them.
func (f *Facade) NextDeoptIndex() int32 {
	idx := f.nextDeoptIdx
	f.nextDeoptIdx++
	return idx
}
