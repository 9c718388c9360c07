package pea

import (
	"github.com/sirupsen/logrus"

	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// TypeResolver is how the analyzer turns a fastcreate/guardconc/bigint-op's
// TypeSlot operand back into a repr.Type, the bridge between the graph's
// opaque constant-pool indices and the representation model (§6's "query
// the type named by a spesh slot"). Demo graphs and tests back this with a
// flat slice; a real host would back it with its actual constant pool.
type TypeResolver interface {
	ResolveType(slot uint16) repr.Type
}

// Analyzer is the reverse-postorder sweep (C6): the single forward pass
// that classifies every instruction per §4.5's opcode-family table, queuing
// transforms onto the ledger and updating per-BB allocation state as it
// goes. Refuses (returns false, so nothing queued so far is applied) the
// moment it reaches a block with a predecessor it hasn't seen yet — this module's
// Non-goal of handling loops, made concrete as a loop-refusal check rather
// than an infinite-loop risk.
type Analyzer struct {
	f     *Facade
	t     *Tracker
	s     *ShadowFacts
	l     *Ledger
	g     *GraphState
	types TypeResolver
	log   *logrus.Entry

	order      map[*graph.Instruction]int
	seenBlocks map[graph.BasicBlockID]bool
	foundAny   bool
}

// NewAnalyzer wires together the per-pass collaborators C6 reads from and
// writes to.
func NewAnalyzer(f *Facade, t *Tracker, s *ShadowFacts, l *Ledger, types TypeResolver, log *logrus.Entry) *Analyzer {
	return &Analyzer{
		f: f, t: t, s: s, l: l, types: types, log: log,
		g:          newGraphState(),
		order:      make(map[*graph.Instruction]int),
		seenBlocks: make(map[graph.BasicBlockID]bool),
	}
}

// Run performs the sweep. Returns whether anything was queued; a false
// return means the rewriter/deopt bridge have nothing to do this pass
// (§2's "found anything?" gate).
func (a *Analyzer) Run() bool {
	a.precomputeUsages()

	for _, blk := range a.f.ReversePostOrder() {
		for i := 0; i < blk.Preds(); i++ {
			if !a.seenBlocks[blk.PredBlock(i).ID()] {
				a.log.WithField("block", blk.Name()).Debug("back edge reached before predecessor visited, refusing analysis")
				return false
			}
		}
		if blk.Preds() > 0 {
			mergeAtEntry(a.g, a.t, blk)
		}
		for i := 0; i < blk.Params(); i++ {
			a.classifyBlockParam(blk, i)
		}
		a.seenBlocks[blk.ID()] = true

		for ins := blk.Root(); ins != nil; ins = ins.Next() {
			a.visit(blk, ins)
		}
	}
	return a.foundAny
}

// precomputeUsages builds the program-order index and the usages table
// over the whole graph up front, standing in for the host's pre-existing
// usage table (§6) that a prior pass, not PEA itself, would have computed.
func (a *Analyzer) precomputeUsages() {
	order := 0
	for blk := a.f.Builder().BlockIteratorBegin(); blk != nil; blk = a.f.Builder().BlockIteratorNext() {
		for ins := blk.Root(); ins != nil; ins = ins.Next() {
			a.order[ins] = order
			order++
			v1, v2, v3, vs := ins.Args()
			for _, v := range []graph.Value{v1, v2, v3} {
				if v.Valid() {
					a.f.UsagesAdd(v, ins)
				}
			}
			for _, v := range vs {
				if v.Valid() {
					a.f.UsagesAdd(v, ins)
				}
			}
		}
	}
}

func (a *Analyzer) queue(tr *Transform) {
	a.l.Add(tr)
	a.foundAny = true
}

// classifyBlockParam implements the PHI rows of §4.5 for one object-kind
// block parameter: a single distinct tracked input aliases through
// (trivial PHI, the same shape a DELETE_SET degenerates to); two or more
// distinct tracked inputs are each demanded real, since this module does
// not implement cross-branch materialization (Non-goals).
func (a *Analyzer) classifyBlockParam(blk graph.BasicBlock, i int) {
	if blk.Param(i).Kind() != graph.RegKindObj {
		return
	}
	numPreds := blk.Preds()
	if numPreds == 0 {
		return
	}

	trackedIdx := -1
	multiple := false
	any := false
	for p := 0; p < numPreds; p++ {
		args := blk.PredBranch(p).BranchArgs()
		if i >= len(args) {
			continue
		}
		rec, ok := a.t.Lookup(args[i])
		if !ok {
			continue
		}
		any = true
		if trackedIdx == -1 {
			trackedIdx = rec.Index
		} else if trackedIdx != rec.Index {
			multiple = true
		}
	}
	if !any {
		return
	}
	if !multiple {
		a.t.TrackRegister(blk.Param(i), trackedIdx)
		return
	}
	for p := 0; p < numPreds; p++ {
		args := blk.PredBranch(p).BranchArgs()
		if i >= len(args) {
			continue
		}
		if rec, ok := a.t.Lookup(args[i]); ok {
			a.t.MarkIrreplaceable(rec.Index)
		}
	}
}

// visit classifies one instruction: deopt bookkeeping first (§4.5a),
// then recognizing an operand that resolves a pending materialization
// (§4.5b), then the opcode-family classification itself (§4.5c).
func (a *Analyzer) visit(blk graph.BasicBlock, ins *graph.Instruction) {
	if ins.Opcode().MayDeopt() {
		a.handleDeopt(blk, ins)
	}
	v1, v2, v3, vs := ins.Args()
	for _, v := range []graph.Value{v1, v2, v3} {
		if v.Valid() {
			a.noteMaterializedOperand(blk, v)
		}
	}
	for _, v := range vs {
		if v.Valid() {
			a.noteMaterializedOperand(blk, v)
		}
	}
	a.classify(blk, ins)
}

// noteMaterializedOperand implements §4.5b: if v refers to an allocation
// already materialized earlier on every path reaching blk, the consuming
// instruction's use of v becomes an additional target of that
// materialization rather than a fresh escaping use.
func (a *Analyzer) noteMaterializedOperand(blk graph.BasicBlock, v graph.Value) {
	rec, ok := a.t.Lookup(v)
	if !ok || rec.Irreplaceable {
		return
	}
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	for _, idx := range st.Materializations {
		tr := a.l.Get(idx)
		tr.Targets = append(tr.Targets, materializeTarget{IsHypothetical: false, Reg: v})
	}
}

func (a *Analyzer) liveBeyond(rec *AllocationRecord, point *graph.Instruction) bool {
	pointOrder := a.order[point]
	for _, reg := range rec.AliasRegs {
		for _, u := range a.f.Usages(reg) {
			if o, ok := a.order[u]; ok && o > pointOrder {
				return true
			}
		}
	}
	return false
}

// handleDeopt implements §4.5a: settify a redundant guard when the guarded
// type is the tracked allocation's own type (the allocation record's Type;
// the ShadowFacts table is not consulted), then, regardless of whether
// settify fired, pin every tracked
// allocation still live beyond this deopt point into the deopt table.
func (a *Analyzer) handleDeopt(blk graph.BasicBlock, ins *graph.Instruction) {
	if ins.Opcode() == graph.OpGuardconc {
		a.handleGuard(blk, ins)
	}
	deoptIdx := ins.DeoptIndex()
	for _, rec := range a.t.Allocations() {
		if rec.Irreplaceable || !a.liveBeyond(rec, ins) {
			continue
		}
		a.queue(&Transform{Kind: AddDeoptPoint, Alloc: rec.Index, Block: blk, Ins: ins, DeoptIdx: deoptIdx, Src: rec.DestReg})
		a.queue(&Transform{Kind: AddDeoptUsage, Alloc: rec.Index, Block: blk, Ins: ins, DeoptIdx: deoptIdx})
	}
}

func (a *Analyzer) handleGuard(blk graph.BasicBlock, ins *graph.Instruction) {
	val := ins.Arg()
	rec, ok := a.t.Lookup(val)
	if !ok || rec.Irreplaceable {
		return
	}
	guardedType := a.types.ResolveType(ins.TypeSlot())
	if guardedType != nil && guardedType == rec.Type {
		a.queue(&Transform{Kind: GuardToSet, Alloc: rec.Index, Block: blk, Ins: ins, Src: rec.DestReg})
		if ins.Return().Valid() {
			a.t.TrackRegister(ins.Return(), rec.Index)
		}
		return
	}
	if a.worthMaterializing(rec, blk) {
		a.queueMaterialize(blk, ins, rec, val)
	} else {
		a.t.MarkIrreplaceable(rec.Index)
	}
}

// classify implements §4.5c's opcode-family table.
func (a *Analyzer) classify(blk graph.BasicBlock, ins *graph.Instruction) {
	switch ins.Opcode() {
	case graph.OpFastcreate:
		a.handleFastcreate(blk, ins)
		return
	case graph.OpGetAttrVivObj:
		a.handleVivify(blk, ins)
		return
	case graph.OpSet:
		a.handleSet(blk, ins)
		return
	case graph.OpMaterializeBI:
		a.handleMaterializeBI(blk, ins)
		return
	case graph.OpDecontI:
		a.handleDecontI(blk, ins)
		return
	case graph.OpProfAllocated:
		a.handleProfAllocated(blk, ins)
		return
	case graph.OpGuardconc:
		// fully handled in handleDeopt/handleGuard above.
		return
	}
	if _, ok := graph.IsAttrRead(ins.Opcode()); ok {
		a.handleGetAttr(blk, ins)
		return
	}
	if _, ok := graph.IsAttrBind(ins.Opcode()); ok {
		a.handleBindAttr(blk, ins)
		return
	}
	if _, ok := graph.BigintBinaryUnboxed(ins.Opcode()); ok {
		a.handleBigintBinary(blk, ins)
		return
	}
	if _, ok := graph.BigintUnaryUnboxed(ins.Opcode()); ok {
		a.handleBigintUnary(blk, ins)
		return
	}
	if _, ok := graph.BigintRelUnboxed(ins.Opcode()); ok {
		a.handleBigintRel(blk, ins)
		return
	}
	if ins.IsBranching() {
		// block-argument PHI handling happens at the target's entry
		// (classifyBlockParam); a branch itself reads nothing that
		// demands materialization here.
		return
	}
	v1, v2, v3, vs := ins.Args()
	operands := append([]graph.Value{}, vs...)
	for _, v := range []graph.Value{v1, v2, v3} {
		if v.Valid() {
			operands = append(operands, v)
		}
	}
	a.escapingUse(blk, ins, operands...)
}

func (a *Analyzer) handleFastcreate(blk graph.BasicBlock, ins *graph.Instruction) {
	ty := a.types.ResolveType(ins.TypeSlot())
	if ty == nil {
		return
	}
	rec, ok := a.t.TryTrack(ins, blk, ty, ins.TypeSlot())
	if !ok {
		a.log.WithField("type", ty.Name()).Debug("fastcreate: type not a try_track candidate")
		return
	}
	a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp)).Seen = true
	a.queue(&Transform{Kind: DeleteFastcreate, Alloc: rec.Index, Block: blk, Ins: ins})
}

// handleMaterializeBI treats materialize_bi as a second allocator shape
// (§4.5): its own destination is itself a bigint-box P6opaque allocation.
// The rewriter deletes the instruction and takes its already-unboxed
// operand as the allocation's bigint attribute register.
func (a *Analyzer) handleMaterializeBI(blk graph.BasicBlock, ins *graph.Instruction) {
	ty := a.types.ResolveType(ins.TypeSlot())
	if ty == nil {
		return
	}
	rec, ok := a.t.TryTrack(ins, blk, ty, ins.TypeSlot())
	if !ok {
		return
	}
	invariant(rec.Bigint && len(rec.Hyp) == 1, "materialize_bi: type %s is not a single-bigint-attribute layout", ty.Name())
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	st.Seen = true
	st.Used[0] = true
	a.queue(&Transform{Kind: UnmaterializeBI, Alloc: rec.Index, Block: blk, Ins: ins, Src: ins.Arg()})
}

func (a *Analyzer) handleGetAttr(blk graph.BasicBlock, ins *graph.Instruction) {
	obj := ins.Arg()
	rec, ok := a.t.Lookup(obj)
	if !ok || rec.Irreplaceable {
		return
	}
	attrIdx, ok := rec.Layout.OffsetToAttributeIndex(ins.Offset())
	invariant(ok, "getattr: offset %d not in %s's layout", ins.Offset(), rec.Type.Name())

	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	if !st.Used[attrIdx] {
		// Read before any path reaching here wrote this attribute: the
		// allocation's invariant (§3 "every attribute read traces back to
		// a prior write") is violated by real execution, which can only
		// mean this object already escaped some other way we didn't
		// model. Conservative response: stop replacing it.
		a.t.MarkIrreplaceable(rec.Index)
		return
	}
	rec.Read = true
	a.queue(&Transform{Kind: GetAttrToSet, Alloc: rec.Index, Block: blk, Ins: ins, AttrIndex: attrIdx})
	if ins.Return().Valid() {
		if occ, ok := a.t.HypOccupant(rec.Hyp[attrIdx]); ok {
			a.t.TrackRegister(ins.Return(), occ)
		}
	}
}

func (a *Analyzer) handleVivify(blk graph.BasicBlock, ins *graph.Instruction) {
	obj := ins.Arg()
	rec, ok := a.t.Lookup(obj)
	if !ok || rec.Irreplaceable {
		return
	}
	attrIdx, ok := rec.Layout.OffsetToAttributeIndex(ins.Offset())
	invariant(ok, "getattrviv_o: offset %d not in %s's layout", ins.Offset(), rec.Type.Name())

	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	if st.Used[attrIdx] {
		rec.Read = true
		a.queue(&Transform{Kind: GetAttrToSet, Alloc: rec.Index, Block: blk, Ins: ins, AttrIndex: attrIdx})
		return
	}
	st.Used[attrIdx] = true
	rec.Read = true
	attr := rec.Layout.Attribute(attrIdx)
	kind := VivifyType
	if attr.Flat == repr.FlatNone {
		// A reference attribute's default must be an actual instance, not
		// the type object itself: clone it.
		kind = VivifyConcrete
	}
	a.queue(&Transform{Kind: kind, Alloc: rec.Index, Block: blk, Ins: ins, AttrIndex: attrIdx})
}

func (a *Analyzer) handleBindAttr(blk graph.BasicBlock, ins *graph.Instruction) {
	obj, val := ins.Arg2()
	rec, ok := a.t.Lookup(obj)
	if !ok || rec.Irreplaceable {
		return
	}
	attrIdx, ok := rec.Layout.OffsetToAttributeIndex(ins.Offset())
	invariant(ok, "bindattr: offset %d not in %s's layout", ins.Offset(), rec.Type.Name())

	// The rewriter keeps one register per attribute, so an attribute bound
	// in two different blocks could reach a merge with a different value
	// on each path: treat that conservatively as irreplaceable.
	for j := 0; j < a.l.Len(); j++ {
		prev := a.l.Get(j)
		if prev.Kind == BindAttrToSet && prev.Alloc == rec.Index && prev.AttrIndex == attrIdx && prev.Block.ID() != blk.ID() {
			a.t.MarkIrreplaceable(rec.Index)
			return
		}
	}

	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	st.Used[attrIdx] = true
	a.queue(&Transform{Kind: BindAttrToSet, Alloc: rec.Index, Block: blk, Ins: ins, AttrIndex: attrIdx, Src: val})

	if inner, ok := a.t.Lookup(val); ok {
		a.t.AddEscapeDep(rec.Index, inner.Index)
		a.t.SetHypOccupant(rec.Hyp[attrIdx], inner.Index)
	}
}

func (a *Analyzer) handleSet(blk graph.BasicBlock, ins *graph.Instruction) {
	rec, ok := a.t.Lookup(ins.Arg())
	if !ok || rec.Irreplaceable {
		return
	}
	a.t.TrackRegister(ins.Return(), rec.Index)
	a.queue(&Transform{Kind: DeleteSet, Alloc: rec.Index, Block: blk, Ins: ins})
}

func (a *Analyzer) handleDecontI(blk graph.BasicBlock, ins *graph.Instruction) {
	v := ins.Arg()
	rec, ok := a.t.Lookup(v)
	if !ok || rec.Irreplaceable || !rec.Bigint {
		a.escapingUse(blk, ins, v)
		return
	}
	bigintAttr := a.t.BigintAttrIndex(rec)
	if bigintAttr < 0 {
		a.escapingUse(blk, ins, v)
		return
	}
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	if !st.Used[bigintAttr] {
		a.escapingUse(blk, ins, v)
		return
	}
	a.queue(&Transform{Kind: UnboxBigint, Alloc: rec.Index, Block: blk, Ins: ins, AttrIndex: bigintAttr})
}

// handleProfAllocated reproduces pea.c's unhandled_instruction fallthrough
// from the prof_allocated arm straight into the non-trivial-PHI arm with no
// intervening break (§9's first Open Question: reproduce, don't "fix"). The
// practical consequence is that PROF_ALLOCATED transforms are queued but
// their allocation is immediately demanded real in the same breath, so the
// rewriter's "skip if the allocation became irreplaceable since queuing"
// rule (§4.7) always ends up skipping them.
func (a *Analyzer) handleProfAllocated(blk graph.BasicBlock, ins *graph.Instruction) {
	rec, ok := a.t.Lookup(ins.Arg())
	if !ok {
		return
	}
	if !rec.Irreplaceable {
		a.queue(&Transform{Kind: ProfAllocated, Alloc: rec.Index, Block: blk, Ins: ins})
	}
	a.t.MarkIrreplaceable(rec.Index)
}

// bigintOperandInfo resolves one operand of a bigint arithmetic/relational
// op to either its source allocation (if tracked and replaceable) or the
// bigint-attribute offset to read from its known type (if untracked). ok is
// false if neither is available, the §7 "missing type information" row
// that falls through to escaping-use handling rather than panicking.
func (a *Analyzer) bigintOperandInfo(v graph.Value) (allocIdx int, offset uint32, ok bool) {
	if rec, ok2 := a.t.Lookup(v); ok2 && !rec.Irreplaceable {
		return rec.Index, 0, true
	}
	facts := a.f.GetFacts(v)
	if facts.KnownType == nil {
		return -1, 0, false
	}
	layout, ok2 := facts.KnownType.P6opaque()
	if !ok2 {
		return -1, 0, false
	}
	off, ok2 := layout.BigintOffset()
	if !ok2 {
		return -1, 0, false
	}
	return -1, off, true
}

func (a *Analyzer) handleBigintBinary(blk graph.BasicBlock, ins *graph.Instruction) {
	va, vb := ins.Arg2()
	ty := a.types.ResolveType(ins.TypeSlot())
	if ty == nil {
		a.escapingUse(blk, ins, va, vb)
		return
	}
	rec, ok := a.t.TryTrack(ins, blk, ty, ins.TypeSlot())
	if !ok || !rec.Bigint {
		a.escapingUse(blk, ins, va, vb)
		return
	}
	allocA, offA, okA := a.bigintOperandInfo(va)
	allocB, offB, okB := a.bigintOperandInfo(vb)
	if !okA || !okB {
		// Decomposition abandoned; fall through to escaping-use handling
		// for the operands (§7). The boxed op stays in place and produces
		// a real object, so rec is marked irreplaceable.
		a.t.MarkIrreplaceable(rec.Index)
		a.escapingUse(blk, ins, va, vb)
		return
	}
	bigintAttr := a.t.BigintAttrIndex(rec)
	invariant(bigintAttr >= 0, "decompose_bigint_bi: destination type %s has no bigint attribute", ty.Name())
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	st.Seen = true
	st.Used[bigintAttr] = true
	a.queue(&Transform{
		Kind: DecomposeBigintBI, Alloc: rec.Index, Block: blk, Ins: ins,
		OperandAllocA: allocA, OperandOffsetA: offA,
		OperandAllocB: allocB, OperandOffsetB: offB, HasOperandB: true,
	})
}

func (a *Analyzer) handleBigintUnary(blk graph.BasicBlock, ins *graph.Instruction) {
	ty := a.types.ResolveType(ins.TypeSlot())
	if ty == nil {
		a.escapingUse(blk, ins, ins.Arg())
		return
	}
	rec, ok := a.t.TryTrack(ins, blk, ty, ins.TypeSlot())
	if !ok || !rec.Bigint {
		a.escapingUse(blk, ins, ins.Arg())
		return
	}
	allocA, offA, okA := a.bigintOperandInfo(ins.Arg())
	if !okA {
		a.t.MarkIrreplaceable(rec.Index)
		a.escapingUse(blk, ins, ins.Arg())
		return
	}
	bigintAttr := a.t.BigintAttrIndex(rec)
	invariant(bigintAttr >= 0, "decompose_bigint_un: destination type %s has no bigint attribute", ty.Name())
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))
	st.Seen = true
	st.Used[bigintAttr] = true
	a.queue(&Transform{
		Kind: DecomposeBigintUN, Alloc: rec.Index, Block: blk, Ins: ins,
		OperandAllocA: allocA, OperandOffsetA: offA,
	})
}

func (a *Analyzer) handleBigintRel(blk graph.BasicBlock, ins *graph.Instruction) {
	va, vb := ins.Arg2()
	allocA, offA, okA := a.bigintOperandInfo(va)
	allocB, offB, okB := a.bigintOperandInfo(vb)
	if !okA || !okB {
		a.escapingUse(blk, ins, va, vb)
		return
	}
	a.queue(&Transform{
		Kind: DecomposeBigintREL, Alloc: -1, Block: blk, Ins: ins,
		OperandAllocA: allocA, OperandOffsetA: offA,
		OperandAllocB: allocB, OperandOffsetB: offB, HasOperandB: true,
	})
}

// escapingUse implements §4.5's default row ("anything else that reads a
// tracked value"): each operand that names a still-replaceable allocation
// either gets queued for materialization (§4.6) or is demanded irreplaceable.
func (a *Analyzer) escapingUse(blk graph.BasicBlock, ins *graph.Instruction, operands ...graph.Value) {
	for _, v := range operands {
		rec, ok := a.t.Lookup(v)
		if !ok || rec.Irreplaceable {
			continue
		}
		if a.worthMaterializing(rec, blk) {
			a.queueMaterialize(blk, ins, rec, v)
		} else {
			a.t.MarkIrreplaceable(rec.Index)
		}
	}
}

// worthMaterializing is §4.6's heuristic: always worth it if the value has
// ever been read back out or holds a bigint (both make unconditional
// scalar replacement a clear win); otherwise only if the demanding
// instruction sits in a different branch than the allocator, so a
// materialize on one path doesn't tax every path.
func (a *Analyzer) worthMaterializing(rec *AllocationRecord, demandingBlk graph.BasicBlock) bool {
	if rec.Read || rec.Bigint {
		return true
	}
	return a.inDifferentBranch(rec.AllocatorBB, demandingBlk)
}

// inDifferentBranch walks the reverse postorder from the allocator's block,
// tracking a running fork/merge depth from each visited block's
// successor/predecessor counts, asking whether demandingBB sits strictly
// inside a branch relative to the allocator. Reaching the end of the graph
// without finding demandingBB means "yes" (§4.6): the walk only terminates
// early by finding the block, never by assuming a negative.
func (a *Analyzer) inDifferentBranch(allocatorBB, demandingBB graph.BasicBlock) bool {
	if allocatorBB.ID() == demandingBB.ID() {
		return false
	}
	depth := 0
	started := false
	for _, blk := range a.f.ReversePostOrder() {
		if blk.ID() == allocatorBB.ID() {
			started = true
		}
		if !started {
			continue
		}
		// The allocator's own in-degree never contributes: we start the
		// walk there, we didn't arrive across one of its predecessor
		// edges.
		if blk.ID() != allocatorBB.ID() {
			depth -= blk.Preds() - 1
		}
		if blk.ID() == demandingBB.ID() {
			return depth != 0
		}
		depth += blk.Succs() - 1
	}
	return true
}

// findInsertionPoint implements §4.5's ordering rule: a materialization
// runs immediately before the demanding instruction, skipping backwards
// over any adjacent argument-preparation opcodes so the materialized
// object lands before arg_* has already started pushing the pending call's
// argument buffer.
func findInsertionPoint(demanding *graph.Instruction) *graph.Instruction {
	point := demanding
	for point.Prev() != nil && point.Prev().Opcode().IsArgPrep() {
		point = point.Prev()
	}
	return point
}

func (a *Analyzer) queueMaterialize(blk graph.BasicBlock, demanding *graph.Instruction, rec *AllocationRecord, consumingReg graph.Value) {
	insertionPoint := findInsertionPoint(demanding)
	a.materializeAllocation(blk, insertionPoint, rec, materializeTarget{IsHypothetical: false, Reg: consumingReg})
}

// materializeAllocation queues (or extends an already-pending) MATERIALIZE
// transform for rec at insertionPoint, then recurses into every
// object-kind attribute currently occupied by another tracked, replaceable
// allocation — §4.5's "transitive materialization of nested allocations".
func (a *Analyzer) materializeAllocation(blk graph.BasicBlock, insertionPoint *graph.Instruction, rec *AllocationRecord, target materializeTarget) {
	st := a.g.block(blk.ID()).forAlloc(rec.Index, len(rec.Hyp))

	for _, idx := range st.Materializations {
		tr := a.l.Get(idx)
		if tr.Ins == insertionPoint {
			tr.Targets = append(tr.Targets, target)
			return
		}
	}

	tr := &Transform{Kind: Materialize, Alloc: rec.Index, Block: blk, Ins: insertionPoint, Targets: []materializeTarget{target}}
	idx := a.l.Add(tr)
	a.foundAny = true
	st.Materializations = append(st.Materializations, idx)

	for _, h := range rec.Hyp {
		if a.t.HypKind(h) != graph.RegKindObj {
			continue
		}
		occ, ok := a.t.HypOccupant(h)
		if !ok {
			continue
		}
		inner := a.t.Allocation(occ)
		if inner.Irreplaceable {
			continue
		}
		a.materializeAllocation(blk, insertionPoint, inner, materializeTarget{IsHypothetical: true, Hyp: h})
	}
}
