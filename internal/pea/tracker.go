package pea

import (
	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// HypIndex is a dense, monotonically-allocated hypothetical register
// index (§3): "if we commit to scalar replacement, we will materialize
// this as a register of kind K."
type HypIndex int

// AllocationRecord is §3's "Allocation record": one per candidate
// allocation instruction, living until pass teardown.
type AllocationRecord struct {
	// Index is this record's position inside Tracker.allocations, the
	// dense index §3 says every allocation carries.
	Index int

	Allocator   *graph.Instruction
	AllocatorBB graph.BasicBlock
	Type        repr.Type
	Layout      repr.P6opaqueLayout
	// TypeSlot is the constant-pool slot index naming Type, the same
	// slot the original fastcreate/materialize instruction carried.
	TypeSlot uint16

	// Hyp holds one hypothetical register index per attribute, in
	// declaration order matching Layout.
	Hyp []HypIndex

	Bigint        bool
	Read          bool
	Irreplaceable bool

	HasDeoptMatIdx bool
	DeoptMatIdx    uint16

	// EscapeDeps is the escape-dependency set (§3): other allocations'
	// indices whose replaceability transitively depends on this one.
	EscapeDeps []int

	// ConcreteAttrReg[i] is the concrete register currently standing for
	// Hyp[i] as the rewriter applies transforms in order, graph.ValueInvalid
	// until one sets it. Each bind, vivify, decomposition or unmaterialize
	// overwrites it with that transform's register; ensureConcreteAttrReg
	// mints a fresh one only when a read finds none. An attribute is
	// therefore not limited to a single concrete register per pass.
	ConcreteAttrReg []graph.Value

	// DestReg is the allocator's own destination register — what gets
	// registered as a tracked register (§4.2) and what later usages key
	// off of to recognize "this operand refers to allocation A".
	DestReg graph.Value

	// AliasRegs collects every register TrackRegister has ever pointed at
	// this allocation (DestReg plus every DELETE_SET/narrowed-guard
	// alias), used by the deopt bookkeeping pass to ask "is this
	// allocation's identity read anywhere beyond this point" without
	// needing a separate liveness pass.
	AliasRegs []graph.Value
}

// Tracker is the allocation tracker (C2).
type Tracker struct {
	allocations []*AllocationRecord

	// hypKinds/hypOwner/hypAttr are parallel vectors indexed by
	// HypIndex, the dense 0..N hypothetical-register space shared
	// across every allocation in the pass.
	hypKinds []graph.RegKind
	hypOwner []int
	hypAttr  []int

	// tracked maps a real register's ValueID to the allocation it
	// currently aliases — populated by the allocator's destination, by
	// DELETE_SET aliasing, and by successful guards (§3 "Tracked
	// register").
	tracked map[graph.ValueID]int

	// hypOccupant[h] is the allocation index currently bound into the
	// object-kind hypothetical register h by a BINDATTR_TO_SET — how a
	// GETATTR_TO_SET reading that same slot back recognizes it is handing
	// back a reference to a still-tracked nested allocation, and how
	// MATERIALIZE discovers what it must recursively rebuild.
	hypOccupant map[HypIndex]int
}

// NewTracker creates an empty Tracker.
func NewTracker() *Tracker {
	return &Tracker{tracked: make(map[graph.ValueID]int), hypOccupant: make(map[HypIndex]int)}
}

func (t *Tracker) newHyp(kind graph.RegKind, allocIdx, attrIdx int) HypIndex {
	idx := HypIndex(len(t.hypKinds))
	t.hypKinds = append(t.hypKinds, kind)
	t.hypOwner = append(t.hypOwner, allocIdx)
	t.hypAttr = append(t.hypAttr, attrIdx)
	return idx
}

// HypKind returns the register kind idx was allocated with.
func (t *Tracker) HypKind(idx HypIndex) graph.RegKind { return t.hypKinds[idx] }

// HypOwner returns the allocation and attribute index idx belongs to.
func (t *Tracker) HypOwner(idx HypIndex) (allocIdx, attrIdx int) {
	return t.hypOwner[idx], t.hypAttr[idx]
}

// Allocation returns the allocation record at idx.
func (t *Tracker) Allocation(idx int) *AllocationRecord { return t.allocations[idx] }

// Allocations returns every allocation record created this pass, in
// creation order.
func (t *Tracker) Allocations() []*AllocationRecord { return t.allocations }

// BigintAttrIndex returns the index of rec's single bigint-kind attribute,
// or -1 if it has none (rec.Bigint should always be checked first).
func (t *Tracker) BigintAttrIndex(rec *AllocationRecord) int {
	for i, h := range rec.Hyp {
		if t.HypKind(h) == graph.RegKindObiBigint {
			return i
		}
	}
	return -1
}

// attributeRegKind implements §4.2's "every attribute maps to a register
// kind" rule, grounded on flattened_type_to_register_kind.
func attributeRegKind(f repr.FlatKind) (graph.RegKind, bool) {
	switch f {
	case repr.FlatNone:
		return graph.RegKindObj, true
	case repr.FlatInt64:
		return graph.RegKindInt64, true
	case repr.FlatNum64:
		return graph.RegKindNum64, true
	case repr.FlatStr:
		return graph.RegKindStr, true
	case repr.FlatBigint:
		return graph.RegKindObiBigint, true
	default:
		return 0, false
	}
}

// TryTrack implements §4.2's try_track(alloc_ins, type). Succeeds only if
// ty is P6opaque-shaped and every attribute maps to a register kind; on
// success the allocator's destination is registered as a tracked register
// and the allocation is marked seen in blk (the caller, analyzer.go, owns
// the per-BB state and does that half).
func (t *Tracker) TryTrack(alloc *graph.Instruction, blk graph.BasicBlock, ty repr.Type, typeSlot uint16) (*AllocationRecord, bool) {
	layout, ok := ty.P6opaque()
	if !ok {
		return nil, false
	}
	n := layout.NumAttributes()
	allocIdx := len(t.allocations)
	hyps := make([]HypIndex, n)
	bigint := false
	for i := 0; i < n; i++ {
		kind, ok := attributeRegKind(layout.Attribute(i).Flat)
		if !ok {
			return nil, false
		}
		if kind == graph.RegKindObiBigint {
			bigint = true
		}
		hyps[i] = t.newHyp(kind, allocIdx, i)
	}
	concreteReg := make([]graph.Value, n)
	for i := range concreteReg {
		concreteReg[i] = graph.ValueInvalid
	}
	rec := &AllocationRecord{
		Index:           allocIdx,
		Allocator:       alloc,
		AllocatorBB:     blk,
		Type:            ty,
		Layout:          layout,
		TypeSlot:        typeSlot,
		Hyp:             hyps,
		Bigint:          bigint,
		ConcreteAttrReg: concreteReg,
		DestReg:         alloc.Return(),
	}
	t.allocations = append(t.allocations, rec)
	if rec.DestReg.Valid() {
		t.tracked[rec.DestReg.ID()] = allocIdx
		rec.AliasRegs = append(rec.AliasRegs, rec.DestReg)
	}
	return rec, true
}

// TrackRegister aliases reg to the same allocation idx, e.g. after a
// DELETE_SET move or a narrowed guard (§3 "Tracked register").
func (t *Tracker) TrackRegister(reg graph.Value, idx int) {
	if !reg.Valid() {
		return
	}
	t.tracked[reg.ID()] = idx
	rec := t.allocations[idx]
	rec.AliasRegs = append(rec.AliasRegs, reg)
}

// SetHypOccupant records that hypothetical register h currently holds a
// reference to allocation allocIdx, set whenever a BINDATTR_TO_SET writes
// a tracked value into an object-kind attribute slot.
func (t *Tracker) SetHypOccupant(h HypIndex, allocIdx int) { t.hypOccupant[h] = allocIdx }

// HypOccupant returns the allocation index currently occupying hypothetical
// register h, if any.
func (t *Tracker) HypOccupant(h HypIndex) (int, bool) {
	idx, ok := t.hypOccupant[h]
	return idx, ok
}

// Lookup returns the allocation reg currently aliases, if any.
func (t *Tracker) Lookup(reg graph.Value) (*AllocationRecord, bool) {
	if !reg.Valid() {
		return nil, false
	}
	idx, ok := t.tracked[reg.ID()]
	if !ok {
		return nil, false
	}
	return t.allocations[idx], true
}

// AddEscapeDep records that if outerIdx's allocation becomes
// irreplaceable, innerIdx's must too — the edge §4.5's bindattr/getattr
// rows add when a tracked object is nested inside another's attribute.
func (t *Tracker) AddEscapeDep(outerIdx, innerIdx int) {
	outer := t.allocations[outerIdx]
	for _, d := range outer.EscapeDeps {
		if d == innerIdx {
			return
		}
	}
	outer.EscapeDeps = append(outer.EscapeDeps, innerIdx)
}

// MarkIrreplaceable marks idx irreplaceable and propagates through escape
// dependencies as an explicit worklist, not recursion — mirroring
// mark_irreplaceable's flat-array loop in the original source (§9).
func (t *Tracker) MarkIrreplaceable(idx int) {
	if t.allocations[idx].Irreplaceable {
		return
	}
	worklist := []int{idx}
	for len(worklist) > 0 {
		cur := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		rec := t.allocations[cur]
		if rec.Irreplaceable {
			continue
		}
		rec.Irreplaceable = true
		worklist = append(worklist, rec.EscapeDeps...)
	}
}
