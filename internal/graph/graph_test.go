package graph_test

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/DataKinds/MoarVM/internal/graph"
)

func TestValueKindRoundTrip(t *testing.T) {
	b := graph.NewBuilder()
	v := b.NewValue(graph.RegKindInt64)
	require.True(t, v.Valid())
	require.Equal(t, graph.RegKindInt64, v.Kind())

	require.False(t, graph.ValueInvalid.Valid())
}

func TestBlockIteratorWalksAllocationOrder(t *testing.T) {
	b := graph.NewBuilder()
	first := b.AllocateBasicBlock()
	second := b.AllocateBasicBlock()

	var seen []graph.BasicBlockID
	for blk := b.BlockIteratorBegin(); blk != nil; blk = b.BlockIteratorNext() {
		seen = append(seen, blk.ID())
	}
	require.Equal(t, []graph.BasicBlockID{first.ID(), second.ID()}, seen)
}

func TestInsertInstructionWiresBranchEdges(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	target := b.AllocateBasicBlock()

	b.SetCurrentBlock(entry)
	jump := b.AllocateInstruction().AsJump(nil, target)
	b.InsertInstruction(jump)

	require.Equal(t, 1, entry.Succs())
	require.Equal(t, target.ID(), entry.SuccBlock(0).ID())
	require.Equal(t, 1, target.Preds())
	require.Equal(t, entry.ID(), target.PredBlock(0).ID())
	require.Same(t, jump, target.PredBranch(0))
}

func TestInsertInstructionAssignsResultByOpcode(t *testing.T) {
	b := graph.NewBuilder()
	blk := b.AllocateBasicBlock()
	b.SetCurrentBlock(blk)

	alloc := b.AllocateInstruction().AsFastcreate(3)
	b.InsertInstruction(alloc)
	require.True(t, alloc.Return().Valid())
	require.Equal(t, graph.RegKindObj, alloc.Return().Kind())

	// bindattr produces no value.
	src := b.NewValue(graph.RegKindInt64)
	bind := b.AllocateInstruction().AsBindAttr(graph.OpBindAttrInt, alloc.Return(), src, 0)
	b.InsertInstruction(bind)
	require.False(t, bind.Return().Valid())
}

func TestInstructionListOrderAndSplice(t *testing.T) {
	b := graph.NewBuilder()
	blk := b.AllocateBasicBlock()
	b.SetCurrentBlock(blk)

	first := b.AllocateInstruction().AsIconst(1)
	b.InsertInstruction(first)
	second := b.AllocateInstruction().AsIconst(2)
	b.InsertInstruction(second)

	require.Equal(t, first, blk.Root())
	require.Equal(t, second, first.Next())
	require.Equal(t, first, second.Prev())

	middle := b.AllocateInstruction().AsIconst(99)
	blk.InsertBefore(second, middle)
	require.Equal(t, []uint64{1, 99, 2}, collectConsts(blk))

	blk.Remove(middle)
	require.Equal(t, []uint64{1, 2}, collectConsts(blk))
}

func collectConsts(blk graph.BasicBlock) []uint64 {
	var out []uint64
	for ins := blk.Root(); ins != nil; ins = ins.Next() {
		out = append(out, ins.ConstVal())
	}
	return out
}

func TestAssignResultAndSetResultDoNotAppendToList(t *testing.T) {
	b := graph.NewBuilder()
	blk := b.AllocateBasicBlock()
	b.SetCurrentBlock(blk)

	anchor := b.AllocateInstruction().AsIconst(0)
	b.InsertInstruction(anchor)

	fresh := b.AllocateInstruction().AsFastcreate(0)
	blk.InsertBefore(anchor, fresh)
	v := b.AssignResult(fresh)
	require.True(t, v.Valid())
	require.Equal(t, v, fresh.Return())

	resurrected := b.AllocateInstruction().AsFastcreate(0)
	blk.InsertBefore(anchor, resurrected)
	target := b.NewValue(graph.RegKindObj)
	b.SetResult(resurrected, target)
	require.Equal(t, target, resurrected.Return())
}

func TestSealedBlockFindValueReachesThroughSinglePredecessor(t *testing.T) {
	b := graph.NewBuilder()
	entry := b.AllocateBasicBlock()
	next := b.AllocateBasicBlock()

	variable := b.DeclareVariable(graph.RegKindInt64)
	b.SetCurrentBlock(entry)
	defined := b.NewValue(graph.RegKindInt64)
	b.DefineVariable(variable, defined, entry)
	b.InsertInstruction(b.AllocateInstruction().AsJump(nil, next))
	b.Seal(next)

	b.SetCurrentBlock(next)
	found := b.FindValue(variable)
	require.Equal(t, defined, found)
}

func TestUnsealedBlockFindValueInsertsBlockParam(t *testing.T) {
	b := graph.NewBuilder()
	blk := b.AllocateBasicBlock()
	b.SetCurrentBlock(blk)

	variable := b.DeclareVariable(graph.RegKindInt64)
	before := blk.Params()
	v := b.FindValue(variable)
	require.True(t, v.Valid())
	require.Equal(t, before+1, blk.Params())
}

func TestFormatIncludesBlockHeadersAndInstructions(t *testing.T) {
	b := graph.NewBuilder()
	blk := b.AllocateBasicBlock()
	b.SetCurrentBlock(blk)
	b.InsertInstruction(b.AllocateInstruction().AsReturn(nil))

	out := b.Format()
	require.Contains(t, out, blk.Name())
	require.Contains(t, out, "Return")
	require.Contains(t, out, "blk_ret")
}

func TestPoolRecyclesSlotsAfterReset(t *testing.T) {
	var resets int
	p := graph.NewPool[int](func(i *int) { *i = 0; resets++ })

	a := p.Allocate()
	*a = 7
	require.Equal(t, 1, p.Allocated())

	p.Reset()
	require.Equal(t, 0, p.Allocated())

	b := p.Allocate()
	require.Equal(t, 1, p.Allocated())
	require.Equal(t, 0, *b, "recycled slot must have been reset")
	require.GreaterOrEqual(t, resets, 2)
}

func TestOpcodeClassification(t *testing.T) {
	require.True(t, graph.OpGuardconc.MayDeopt())
	require.True(t, graph.OpInvoke.MayDeopt())
	require.False(t, graph.OpSet.MayDeopt())

	require.True(t, graph.OpArgO.IsArgPrep())
	require.False(t, graph.OpInvoke.IsArgPrep())

	require.True(t, graph.OpJump.IsBranch())
	require.False(t, graph.OpReturn.IsBranch())

	unboxed, ok := graph.BigintBinaryUnboxed(graph.OpAddI)
	require.True(t, ok)
	require.Equal(t, graph.OpSpAddBI, unboxed)

	_, ok = graph.BigintBinaryUnboxed(graph.OpSet)
	require.False(t, ok)
}
