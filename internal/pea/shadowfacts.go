package pea

import (
	"github.com/DataKinds/MoarVM/internal/graph"
	"github.com/DataKinds/MoarVM/internal/repr"
)

// ShadowFact is §3's "Shadow fact": the subset of the host's type-fact
// vocabulary this pass needs, plus a back pointer to the allocation this
// fact was derived from.
type ShadowFact struct {
	KnownType repr.Type
	Concrete  bool
	// DependAllocation is the allocation index this fact's value derives
	// from, or -1 if none.
	DependAllocation int
}

type shadowRegKey struct {
	reg     graph.ValueID
	version int
}

// ShadowFacts is the shadow-facts table (C3): two lookup paths, by
// hypothetical register index or by (register, version). Append-only
// within one pass; insertion never collides — an existing entry is
// returned for mutation rather than overwritten.
type ShadowFacts struct {
	byHyp map[HypIndex]*ShadowFact
	byReg map[shadowRegKey]*ShadowFact
}

// NewShadowFacts creates an empty table.
func NewShadowFacts() *ShadowFacts {
	return &ShadowFacts{
		byHyp: make(map[HypIndex]*ShadowFact),
		byReg: make(map[shadowRegKey]*ShadowFact),
	}
}

// ForHyp returns the fact record for hypothetical register idx, creating
// an empty one on first access.
func (s *ShadowFacts) ForHyp(idx HypIndex) *ShadowFact {
	if f, ok := s.byHyp[idx]; ok {
		return f
	}
	f := &ShadowFact{DependAllocation: -1}
	s.byHyp[idx] = f
	return f
}

// ForReg returns the fact record for (reg, version), creating an empty one
// on first access.
func (s *ShadowFacts) ForReg(reg graph.Value, version int) *ShadowFact {
	key := shadowRegKey{reg.ID(), version}
	if f, ok := s.byReg[key]; ok {
		return f
	}
	f := &ShadowFact{DependAllocation: -1}
	s.byReg[key] = f
	return f
}
