package pea_test

import (
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/pea"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// slotResolver backs pea.TypeResolver with a flat slice, standing in for a
// host's constant pool in every scenario below.
type slotResolver []repr.Type

func (r slotResolver) ResolveType(slot uint16) repr.Type {
	if int(slot) >= len(r) {
		return nil
	}
	return r[slot]
}

func testLogger() *logrus.Entry {
	l := logrus.New()
	l.SetLevel(logrus.WarnLevel)
	return logrus.NewEntry(l)
}

// instructionsOf collects a block's instructions in list order, for
// assertions about what survived a rewrite.
func instructionsOf(blk graph.BasicBlock) []*graph.Instruction {
	var out []*graph.Instruction
	for ins := blk.Root(); ins != nil; ins = ins.Next() {
		out = append(out, ins)
	}
	return out
}

func opcodesOf(blk graph.BasicBlock) []graph.Opcode {
	var out []graph.Opcode
	for _, ins := range instructionsOf(blk) {
		out = append(out, ins.Opcode())
	}
	return out
}

// S1: a single-attribute box that never escapes collapses entirely to a
// move from the bound source to the read-back destination.
func TestS1SingleAttributeBoxNeverEscapes(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatInt64}}, false)
	boxType := repr.NewP6opaqueType("Box", layout)
	resolver := slotResolver{boxType}

	src := b.NewValue(graph.RegKindInt64)
	b.AnnotateValue(src, "src")

	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	dst := allocIns.Return()

	bindIns := b.AllocateInstruction().AsBindAttr(graph.OpBindAttrInt, dst, src, 0)
	b.InsertInstruction(bindIns)

	getIns := b.AllocateInstruction().AsGetAttr(graph.OpGetAttrInt, dst, 0)
	b.InsertInstruction(getIns)
	out := getIns.Return()

	retIns := b.AllocateInstruction().AsReturn([]graph.Value{out})
	b.InsertInstruction(retIns)

	result := pea.Run(b, resolver, testLogger())
	require.True(t, result.Changed)

	remaining := instructionsOf(entry)
	require.Len(t, remaining, 2, "fastcreate and bindattr should both be gone")
	require.Equal(t, graph.OpSet, remaining[0].Opcode())
	require.Equal(t, src, remaining[0].Arg())
	require.Equal(t, graph.OpReturn, remaining[1].Opcode())
}

// S2: boxed bigint addition on two already-known bigint operands
// decomposes into an unboxed sp_add_bi fed by get_bi prologues.
func TestS2BigintAdditionDevirtualization(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatBigint}}, true)
	bigIntType := repr.NewP6opaqueType("BigInt", layout)
	resolver := slotResolver{bigIntType}

	a := b.NewValue(graph.RegKindObj)
	c := b.NewValue(graph.RegKindObj)
	b.AnnotateValue(a, "a")
	b.AnnotateValue(c, "b")

	f := pea.NewFacade(b)
	f.SetKnownType(a, bigIntType, true)
	f.SetKnownType(c, bigIntType, true)

	addIns := b.AllocateInstruction().AsBigintBinary(graph.OpAddI, a, c, 0)
	b.InsertInstruction(addIns)
	dst := addIns.Return()

	retIns := b.AllocateInstruction().AsReturn([]graph.Value{dst})
	b.InsertInstruction(retIns)

	tr := pea.NewTracker()
	s := pea.NewShadowFacts()
	l := pea.NewLedger()
	an := pea.NewAnalyzer(f, tr, s, l, resolver, testLogger())
	require.True(t, an.Run())

	d := &pea.DeoptTable{}
	rw := pea.NewRewriter(f, tr, l, d, testLogger())
	rw.Run()

	ops := opcodesOf(entry)
	require.Len(t, ops, 5, "two get_bi prologues, the decomposed op, the materialize_bi before return, and return")
	require.Equal(t, graph.OpGetBI, ops[0])
	require.Equal(t, graph.OpGetBI, ops[1])
	require.Equal(t, graph.OpSpAddBI, ops[2])
	require.Equal(t, graph.OpMaterializeBI, ops[3])
	require.Equal(t, graph.OpReturn, ops[4])
}

// S3: a guard immediately following a fastcreate of the same type is
// eliminated (deleted along with the allocator, never re-checked).
func TestS3GuardEliminationAfterAllocation(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout(nil, false)
	ty := repr.NewP6opaqueType("T", layout)
	resolver := slotResolver{ty}

	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	obj := allocIns.Return()

	guardIns := b.AllocateInstruction().AsGuardconc(obj, 0, 0)
	b.InsertInstruction(guardIns)

	retIns := b.AllocateInstruction().AsReturn(nil)
	b.InsertInstruction(retIns)

	result := pea.Run(b, resolver, testLogger())
	require.True(t, result.Changed)

	remaining := instructionsOf(entry)
	require.Len(t, remaining, 1, "fastcreate and guardconc deleted")
	require.Equal(t, graph.OpReturn, remaining[0].Opcode())
	require.NotContains(t, opcodesOf(entry), graph.OpGuardconc)
}

// S4: an allocation escaping to invoke_o on a branch distinct from its
// allocator is materialized immediately before the arg_* sequence that
// prepares the call, never splitting it.
func TestS4EscapingToInvokeMaterializesBeforeArgPrep(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	rightBlk := b.AllocateBasicBlock()
	leftBlk := b.AllocateBasicBlock()

	layout := repr.NewP6opaqueLayout(nil, false)
	ty := repr.NewP6opaqueType("T", layout)
	resolver := slotResolver{ty}

	// rightBlk and leftBlk each return independently rather than
	// rejoining at a shared successor: reconverging would make the
	// allocation materialized on one incoming edge and not the other,
	// which the merge rule (rightly) treats as irreplaceable.
	b.SetCurrentBlock(entry)
	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	obj := allocIns.Return()
	cond := b.NewValue(graph.RegKindInt64)
	b.InsertInstruction(b.AllocateInstruction().AsBrz(cond, nil, rightBlk))
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, leftBlk))

	b.SetCurrentBlock(leftBlk)
	b.InsertInstruction(b.AllocateInstruction().AsReturn(nil))

	b.SetCurrentBlock(rightBlk)
	argIns := b.AllocateInstruction().AsArgPrep(graph.OpArgO, obj)
	b.InsertInstruction(argIns)
	invokeIns := b.AllocateInstruction().AsInvoke([]graph.Value{obj}, 0)
	b.InsertInstruction(invokeIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn(nil))

	result := pea.Run(b, resolver, testLogger())
	require.True(t, result.Changed)

	ops := opcodesOf(rightBlk)
	require.Equal(t, graph.OpFastcreate, ops[0], "materialized object must land before arg_o, not after")
	require.Equal(t, graph.OpArgO, ops[1])
	require.Equal(t, graph.OpInvoke, ops[2])

	entryOps := opcodesOf(entry)
	for _, op := range entryOps {
		require.NotEqual(t, graph.OpFastcreate, op, "the original allocator is still deleted")
	}
}

// S5: a diamond where one branch binds an attribute and the other doesn't
// makes the allocation irreplaceable at the merge; nothing about it is
// rewritten.
func TestS5InconsistentWriteAcrossPredecessors(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	rightBlk := b.AllocateBasicBlock()
	leftBlk := b.AllocateBasicBlock()
	mergeBlk := b.AllocateBasicBlock()

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatInt64}}, false)
	ty := repr.NewP6opaqueType("T", layout)
	resolver := slotResolver{ty}

	b.SetCurrentBlock(entry)
	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	obj := allocIns.Return()
	cond := b.NewValue(graph.RegKindInt64)
	b.InsertInstruction(b.AllocateInstruction().AsBrz(cond, nil, rightBlk))
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, leftBlk))

	src := b.NewValue(graph.RegKindInt64)
	b.SetCurrentBlock(leftBlk)
	bindIns := b.AllocateInstruction().AsBindAttr(graph.OpBindAttrInt, obj, src, 0)
	b.InsertInstruction(bindIns)
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, mergeBlk))

	b.SetCurrentBlock(rightBlk)
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, mergeBlk))

	b.SetCurrentBlock(mergeBlk)
	getIns := b.AllocateInstruction().AsGetAttr(graph.OpGetAttrInt, obj, 0)
	b.InsertInstruction(getIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn([]graph.Value{getIns.Return()}))

	pea.Run(b, resolver, testLogger())

	require.Equal(t, graph.OpFastcreate, opcodesOf(entry)[0], "allocator untouched")
	require.Equal(t, graph.OpBindAttrInt, opcodesOf(leftBlk)[0], "bind untouched")
	require.Equal(t, graph.OpGetAttrInt, opcodesOf(mergeBlk)[0], "read untouched")
}

// S6: an allocation live across a may-deopt instruction (because a later,
// ordinary attribute read still needs it) gets exactly one materialization
// descriptor and a deopt-point entry naming it.
func TestS6DeoptLiveness(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	b.SetCurrentBlock(entry)

	layout := repr.NewP6opaqueLayout([]repr.AttributeSlot{{Offset: 0, Flat: repr.FlatInt64}}, false)
	ty := repr.NewP6opaqueType("T", layout)
	resolver := slotResolver{ty}

	src := b.NewValue(graph.RegKindInt64)
	allocIns := b.AllocateInstruction().AsFastcreate(0)
	b.InsertInstruction(allocIns)
	obj := allocIns.Return()

	bindIns := b.AllocateInstruction().AsBindAttr(graph.OpBindAttrInt, obj, src, 0)
	b.InsertInstruction(bindIns)

	otherArg := b.NewValue(graph.RegKindInt64)
	invokeIns := b.AllocateInstruction().AsInvoke([]graph.Value{otherArg}, 7)
	b.InsertInstruction(invokeIns)

	getIns := b.AllocateInstruction().AsGetAttr(graph.OpGetAttrInt, obj, 0)
	b.InsertInstruction(getIns)
	b.InsertInstruction(b.AllocateInstruction().AsReturn([]graph.Value{getIns.Return()}))

	result := pea.Run(b, resolver, testLogger())
	require.True(t, result.Changed)
	require.NotNil(t, result.Deopt)

	require.Len(t, result.Deopt.MaterializeInfo, 1)
	require.Equal(t, []graph.Value{src}, result.Deopt.MaterializeInfo[0].AttrRegs)

	require.Len(t, result.Deopt.DeoptPoint, 1)
	require.EqualValues(t, 7, result.Deopt.DeoptPoint[0].DeoptPointIdx)
	require.Equal(t, obj, result.Deopt.DeoptPoint[0].TargetReg)
	require.EqualValues(t, 0, result.Deopt.DeoptPoint[0].MaterializeInfoIdx)
}

// Property 2: a back-edge reached before its predecessor has been visited
// makes the pass refuse analysis entirely.
func TestLoopRefusal(t *testing.T) {
	b := graph.NewBuilder()
	blkA := b.AllocateBasicBlock()
	blkB := b.AllocateBasicBlock()

	b.SetCurrentBlock(blkA)
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, blkB))

	b.SetCurrentBlock(blkB)
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, blkA))

	resolver := slotResolver{}
	result := pea.Run(b, resolver, testLogger())
	require.False(t, result.Changed)
	require.Nil(t, result.Deopt)
}
