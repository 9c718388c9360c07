package pea

import "github.com/DataKinds/MoarVM/internal/graph"

// MaterializeInfo is a materialization descriptor (§4.8, §6): what the
// deoptimizer needs to rebuild one allocation's object — its type's
// constant-pool slot and the concrete attribute registers holding its
// field values. A single descriptor is shared across every deopt point
// needing the same allocation (lazily assigned, cached on the allocation
// record's DeoptMatIdx). AttrRegs aliases the allocation's own
// ConcreteAttrReg slice rather than copying it, so a bind that mints an
// attribute register after this descriptor was created is still visible
// through it — registers are minted by index assignment into that slice,
// never by reassigning the slice itself, so every descriptor sharing it
// stays current.
type MaterializeInfo struct {
	TypeSlot uint16
	AttrRegs []graph.Value
}

// DeoptPoint is one entry of deopt_pea.deopt_point[] (§6): at DeoptPointIdx,
// TargetReg is live and must be rebuilt from MaterializeInfoIdx's
// descriptor.
type DeoptPoint struct {
	DeoptPointIdx      int32
	MaterializeInfoIdx uint16
	TargetReg          graph.Value
}

// DeoptTable is the deopt bridge's (C8) output: the side table handed to
// the deoptimizer consumer (out of scope per §1), which this module never
// interprets itself — only produces and, in cmd/peacheck, prints.
type DeoptTable struct {
	MaterializeInfo []MaterializeInfo
	DeoptPoint      []DeoptPoint
}

// addMaterializeInfo appends a new descriptor and returns its index.
func (t *DeoptTable) addMaterializeInfo(typeSlot uint16, attrRegs []graph.Value) uint16 {
	idx := len(t.MaterializeInfo)
	t.MaterializeInfo = append(t.MaterializeInfo, MaterializeInfo{TypeSlot: typeSlot, AttrRegs: attrRegs})
	return uint16(idx)
}

// addDeoptPoint appends a new deopt-point entry.
func (t *DeoptTable) addDeoptPoint(deoptIdx int32, matIdx uint16, targetReg graph.Value) {
	t.DeoptPoint = append(t.DeoptPoint, DeoptPoint{
		DeoptPointIdx:      deoptIdx,
		MaterializeInfoIdx: matIdx,
		TargetReg:          targetReg,
	})
}

// materializeInfoFor returns rec's materialization descriptor index,
// creating it on first request (§4.7 "ADD_DEOPT_POINT ... assigned
// lazily").
func (t *DeoptTable) materializeInfoFor(rec *AllocationRecord) uint16 {
	if rec.HasDeoptMatIdx {
		return rec.DeoptMatIdx
	}
	idx := t.addMaterializeInfo(rec.TypeSlot, rec.ConcreteAttrReg)
	rec.HasDeoptMatIdx = true
	rec.DeoptMatIdx = idx
	return idx
}
