package pea

import (
	"github.com/sirupsen/logrus"

	"github.com/DataKinds/MoarVM/internal/graph"
)

// Rewriter is the transform-application pass (C7): walks every block in the
// same order the analyzer visited them and, within each, applies its
// ledger entries in queued order (§5, §4.7), skipping any transform whose
// allocation became irreplaceable after it was queued.
type Rewriter struct {
	f   *Facade
	t   *Tracker
	l   *Ledger
	d   *DeoptTable
	log *logrus.Entry
}

// NewRewriter wires together C7's collaborators.
func NewRewriter(f *Facade, t *Tracker, l *Ledger, d *DeoptTable, log *logrus.Entry) *Rewriter {
	return &Rewriter{f: f, t: t, l: l, d: d, log: log}
}

// Run applies every still-live transform.
func (r *Rewriter) Run() {
	b := r.f.Builder()
	for blk := b.BlockIteratorBegin(); blk != nil; blk = b.BlockIteratorNext() {
		for _, idx := range r.l.ForBlock(blk.ID()) {
			tr := r.l.Get(idx)
			if tr.skipped {
				continue
			}
			if tr.Alloc >= 0 && r.t.Allocation(tr.Alloc).Irreplaceable {
				tr.skipped = true
				r.log.WithField("kind", tr.Kind).Debug("transform skipped: allocation became irreplaceable after queuing")
				continue
			}
			r.apply(blk, tr)
		}
	}
}

// ensureConcreteAttrReg returns rec's current concrete register for
// attribute idx, minting and caching one on the allocation record when
// none is set yet.
func (r *Rewriter) ensureConcreteAttrReg(rec *AllocationRecord, idx int) graph.Value {
	if rec.ConcreteAttrReg[idx].Valid() {
		return rec.ConcreteAttrReg[idx]
	}
	v := r.f.UniqueReg(r.t.HypKind(rec.Hyp[idx]))
	rec.ConcreteAttrReg[idx] = v
	return v
}

func (r *Rewriter) apply(blk graph.BasicBlock, tr *Transform) {
	switch tr.Kind {
	case DeleteFastcreate, DeleteSet, GuardToSet:
		// A GuardToSet is only ever queued for a guard on a tracked
		// allocation, so whenever it applies the guarded value has been
		// replaced and the guard is deleted like an alias move.
		r.f.DeleteInstruction(blk, tr.Ins)

	case UnmaterializeBI:
		rec := r.t.Allocation(tr.Alloc)
		rec.ConcreteAttrReg[0] = tr.Src
		r.f.DeleteInstruction(blk, tr.Ins)

	case GetAttrToSet:
		rec := r.t.Allocation(tr.Alloc)
		tr.Ins.AsSet(r.ensureConcreteAttrReg(rec, tr.AttrIndex))

	case BindAttrToSet:
		rec := r.t.Allocation(tr.Alloc)
		rec.ConcreteAttrReg[tr.AttrIndex] = tr.Src
		r.f.DeleteInstruction(blk, tr.Ins)

	case AddDeoptPoint:
		rec := r.t.Allocation(tr.Alloc)
		matIdx := r.d.materializeInfoFor(rec)
		r.d.addDeoptPoint(tr.DeoptIdx, matIdx, tr.Src)

	case AddDeoptUsage:
		rec := r.t.Allocation(tr.Alloc)
		for _, reg := range rec.ConcreteAttrReg {
			if reg.Valid() {
				r.f.UsagesAddDeopt(reg, tr.DeoptIdx)
			}
		}

	case ProfAllocated:
		rec := r.t.Allocation(tr.Alloc)
		slot := r.f.AddSpeshSlot(rec.Type)
		tr.Ins.AsProfAllocatedReplaced(slot)

	case DecomposeBigintBI:
		r.applyDecomposeBinary(blk, tr)

	case DecomposeBigintUN:
		r.applyDecomposeUnary(blk, tr)

	case DecomposeBigintREL:
		r.applyDecomposeRel(blk, tr)

	case UnboxBigint:
		rec := r.t.Allocation(tr.Alloc)
		tr.Ins.AsDecontIBI(r.ensureConcreteAttrReg(rec, tr.AttrIndex))

	case VivifyType:
		rec := r.t.Allocation(tr.Alloc)
		slot := r.f.AddSpeshSlot(rec.Type)
		tr.Ins.AsSpeshSlotRead(slot)
		rec.ConcreteAttrReg[tr.AttrIndex] = tr.Ins.Return()

	case VivifyConcrete:
		r.applyVivifyConcrete(blk, tr)

	case Materialize:
		r.applyMaterialize(blk, tr)

	default:
		invariant(false, "rewriter: unhandled transform kind %d", tr.Kind)
	}
}

// resolveBigintOperand returns the unboxed bigint register for one operand
// of a DECOMPOSE_BIGINT_* transform: the source allocation's concrete
// bigint register if tracked, or a freshly-synthesized get_bi prologue
// reading originalOperand at offset otherwise (§4.5's decomposition
// prologue).
func (r *Rewriter) resolveBigintOperand(blk graph.BasicBlock, insertBefore *graph.Instruction, allocIdx int, offset uint32, originalOperand graph.Value) graph.Value {
	if allocIdx >= 0 {
		rec := r.t.Allocation(allocIdx)
		return r.ensureConcreteAttrReg(rec, r.t.BigintAttrIndex(rec))
	}
	prep := r.f.Builder().AllocateInstruction().AsGetBI(originalOperand, offset)
	r.f.InsertInstructionBefore(blk, insertBefore, prep)
	r.f.Builder().AssignResult(prep)
	return prep.Return()
}

func (r *Rewriter) applyDecomposeBinary(blk graph.BasicBlock, tr *Transform) {
	rec := r.t.Allocation(tr.Alloc)
	origA, origB := tr.Ins.Arg2()
	unboxedOp, ok := graph.BigintBinaryUnboxed(tr.Ins.Opcode())
	invariant(ok, "decompose_bigint_bi: %s is not a boxed bigint binary opcode", tr.Ins.Opcode())
	a := r.resolveBigintOperand(blk, tr.Ins, tr.OperandAllocA, tr.OperandOffsetA, origA)
	b := r.resolveBigintOperand(blk, tr.Ins, tr.OperandAllocB, tr.OperandOffsetB, origB)
	tr.Ins.AsBigintBinary(unboxedOp, a, b, 0)
	r.f.Builder().AssignResult(tr.Ins)
	bigintAttr := r.t.BigintAttrIndex(rec)
	invariant(bigintAttr >= 0, "decompose_bigint_bi: allocation %d has no bigint attribute", tr.Alloc)
	rec.ConcreteAttrReg[bigintAttr] = tr.Ins.Return()
}

func (r *Rewriter) applyDecomposeUnary(blk graph.BasicBlock, tr *Transform) {
	rec := r.t.Allocation(tr.Alloc)
	orig := tr.Ins.Arg()
	unboxedOp, ok := graph.BigintUnaryUnboxed(tr.Ins.Opcode())
	invariant(ok, "decompose_bigint_un: %s is not a boxed bigint unary opcode", tr.Ins.Opcode())
	a := r.resolveBigintOperand(blk, tr.Ins, tr.OperandAllocA, tr.OperandOffsetA, orig)
	tr.Ins.AsBigintUnary(unboxedOp, a, 0)
	r.f.Builder().AssignResult(tr.Ins)
	bigintAttr := r.t.BigintAttrIndex(rec)
	invariant(bigintAttr >= 0, "decompose_bigint_un: allocation %d has no bigint attribute", tr.Alloc)
	rec.ConcreteAttrReg[bigintAttr] = tr.Ins.Return()
}

func (r *Rewriter) applyDecomposeRel(blk graph.BasicBlock, tr *Transform) {
	origA, origB := tr.Ins.Arg2()
	unboxedOp, ok := graph.BigintRelUnboxed(tr.Ins.Opcode())
	invariant(ok, "decompose_bigint_rel: %s is not a boxed bigint relational opcode", tr.Ins.Opcode())
	a := r.resolveBigintOperand(blk, tr.Ins, tr.OperandAllocA, tr.OperandOffsetA, origA)
	b := r.resolveBigintOperand(blk, tr.Ins, tr.OperandAllocB, tr.OperandOffsetB, origB)
	tr.Ins.AsBigintRel(unboxedOp, a, b)
}

func (r *Rewriter) applyVivifyConcrete(blk graph.BasicBlock, tr *Transform) {
	rec := r.t.Allocation(tr.Alloc)
	slot := r.f.AddSpeshSlot(rec.Type)
	typeRead := r.f.Builder().AllocateInstruction().AsSpeshSlotRead(slot)
	r.f.InsertInstructionBefore(blk, tr.Ins, typeRead)
	r.f.Builder().AssignResult(typeRead)
	tr.Ins.AsClone(typeRead.Return())
	rec.ConcreteAttrReg[tr.AttrIndex] = tr.Ins.Return()
}

// bindOpForKind maps an attribute's RegKind to the bindattr opcode
// rematerialization writes it with, the inverse of attributeRegKind.
func bindOpForKind(k graph.RegKind) graph.Opcode {
	switch k {
	case graph.RegKindInt64:
		return graph.OpBindAttrInt
	case graph.RegKindNum64:
		return graph.OpBindAttrNum
	case graph.RegKindStr:
		return graph.OpBindAttrStr
	case graph.RegKindObiBigint:
		return graph.OpBindAttrBI
	default:
		return graph.OpBindAttrObj
	}
}

// materializeObject inserts the instruction sequence that rebuilds rec's
// object immediately before insertionPoint, stamping resultReg as its
// result so every existing reference to that identity becomes valid again
// (§4.7's MATERIALIZE case, including the cache-aware single-bigint-
// attribute shortcut of §4.9/SingleAttributeBigintCache).
func (r *Rewriter) materializeObject(blk graph.BasicBlock, insertionPoint *graph.Instruction, rec *AllocationRecord, resultReg graph.Value) {
	if rec.Layout.SingleAttributeBigintCache() {
		idx := r.t.BigintAttrIndex(rec)
		src := r.ensureConcreteAttrReg(rec, idx)
		alloc := r.f.Builder().AllocateInstruction().AsMaterializeBI(src, rec.TypeSlot)
		r.f.InsertInstructionBefore(blk, insertionPoint, alloc)
		r.f.Builder().SetResult(alloc, resultReg)
		return
	}

	alloc := r.f.Builder().AllocateInstruction().AsFastcreate(rec.TypeSlot)
	r.f.InsertInstructionBefore(blk, insertionPoint, alloc)
	r.f.Builder().SetResult(alloc, resultReg)

	for i := range rec.Hyp {
		if !rec.ConcreteAttrReg[i].Valid() {
			continue // never written on any path: leave the attribute at its type default.
		}
		op := bindOpForKind(r.t.HypKind(rec.Hyp[i]))
		bind := r.f.Builder().AllocateInstruction().AsBindAttr(op, resultReg, rec.ConcreteAttrReg[i], rec.Layout.Attribute(i).Offset)
		r.f.InsertInstructionBefore(blk, insertionPoint, bind)
	}
}

// primaryTargetReg picks which Value the synthesized object's result
// stamps onto directly; every other target becomes a move off of it.
func primaryTargetReg(t materializeTarget, rec *AllocationRecord) graph.Value {
	if t.IsHypothetical {
		return rec.DestReg
	}
	return t.Reg
}

func (r *Rewriter) applyMaterialize(blk graph.BasicBlock, tr *Transform) {
	rec := r.t.Allocation(tr.Alloc)
	if len(tr.Targets) == 0 {
		return
	}
	primaryReg := primaryTargetReg(tr.Targets[0], rec)
	r.materializeObject(blk, tr.Ins, rec, primaryReg)

	for _, target := range tr.Targets {
		if target.IsHypothetical {
			ownerIdx, attrIdx := r.t.HypOwner(target.Hyp)
			r.t.Allocation(ownerIdx).ConcreteAttrReg[attrIdx] = primaryReg
			continue
		}
		if target.Reg.ID() == primaryReg.ID() {
			continue
		}
		mv := r.f.Builder().AllocateInstruction().AsSet(primaryReg)
		r.f.InsertInstructionBefore(blk, tr.Ins, mv)
		r.f.Builder().SetResult(mv, target.Reg)
	}
}
