// Package peademo builds small, self-contained graphs exercising the
// module's handful of representative rewrite scenarios, for cmd/peacheck
// to drive and print. These are independent hand constructions, not pulled
// out of the pea package's own test suite, so the two can evolve apart
// without one breaking the other.
package peademo

import (
	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/pea"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// Scenario is one named demo graph plus the type resolver its constant-pool
// slots reference.
type Scenario struct {
	Name     string
	Describe string
	Builder  graph.Builder
	Types    pea.TypeResolver
}

type slotResolver []repr.Type

func (r slotResolver) ResolveType(slot uint16) repr.Type {
	if int(slot) >= len(r) {
		return nil
	}
	return r[slot]
}

// All returns every demo scenario in a fixed, stable order.
func All() []Scenario {
	return []Scenario{
		singleAttributeBox(),
		bigintAddition(),
		guardElimination(),
	}
}

// singleAttributeBox never lets its object escape: fastcreate, bindattr,
// getattr, return collapses to a single move.
func singleAttributeBox() Scenario {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatInt64}}, false)
	boxType := repr.NewP6opaqueType("Box", layout)

	src := b.NewValue(graph.RegKindInt64)
	b.AnnotateValue(src, "src")

	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	dst := allocIns.Return()
	b.AnnotateValue(dst, "obj")

	b.InsertInstruction(b.AllocateInstruction().AsBindAttr(graph.OpBindAttrInt, dst, src, 0))

	getIns := b.AllocateInstruction().AsGetAttr(graph.OpGetAttrInt, dst, 0)
	b.InsertInstruction(getIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn([]graph.Value{getIns.Return()}))

	return Scenario{
		Name:     "single-attribute-box",
		Describe: "a box allocated, bound, read back, and never escaping collapses to a move",
		Builder:  b,
		Types:    slotResolver{boxType},
	}
}

// bigintAddition devirtualizes a boxed bigint add whose operands are two
// tracked bigint boxes into an unboxed sp_add_bi.
func bigintAddition() Scenario {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatBigint}}, true)
	bigIntType := repr.NewP6opaqueType("BigInt", layout)

	ua := b.NewValue(graph.RegKindObiBigint)
	ub := b.NewValue(graph.RegKindObiBigint)
	b.AnnotateValue(ua, "ua")
	b.AnnotateValue(ub, "ub")

	boxA := b.AllocateInstruction().AsMaterializeBI(ua, 0)
	b.InsertInstruction(boxA)
	boxB := b.AllocateInstruction().AsMaterializeBI(ub, 0)
	b.InsertInstruction(boxB)
	a := boxA.Return()
	c := boxB.Return()
	b.AnnotateValue(a, "a")
	b.AnnotateValue(c, "b")

	addIns := b.AllocateInstruction().AsBigintBinary(graph.OpAddI, a, c, 0)
	b.InsertInstruction(addIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn([]graph.Value{addIns.Return()}))

	return Scenario{
		Name:     "bigint-addition",
		Describe: "add_I on two tracked bigint boxes decomposes into sp_add_bi",
		Builder:  b,
		Types:    slotResolver{bigIntType},
	}
}

// guardElimination shows a guardconc immediately following the allocation
// of the same type being rewritten away.
func guardElimination() Scenario {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout(nil, false)
	ty := repr.NewP6opaqueType("T", layout)

	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	obj := allocIns.Return()
	b.AnnotateValue(obj, "obj")

	guardIns := b.AllocateInstruction().AsGuardconc(obj, 0, 0)
	b.InsertInstruction(guardIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn(nil))

	return Scenario{
		Name:     "guard-elimination",
		Describe: "a guardconc on a just-allocated object of the guarded type is never re-checked",
		Builder:  b,
		Types:    slotResolver{ty},
	}
}
