package pea

import "github.com/DataKinds/MoarVM/internal/graph"

// TransformKind tags a Transform's variant, one per row of §4.7.
type TransformKind byte

const (
	TransformInvalid TransformKind = iota
	DeleteFastcreate
	UnmaterializeBI
	GetAttrToSet
	BindAttrToSet
	DeleteSet
	GuardToSet
	AddDeoptPoint
	AddDeoptUsage
	ProfAllocated
	DecomposeBigintBI
	DecomposeBigintUN
	DecomposeBigintREL
	UnboxBigint
	Materialize
	VivifyType
	VivifyConcrete
)

// materializeTarget is one destination a MATERIALIZE transform must bind
// the rebuilt object into: either a hypothetical register (another
// allocation's attribute slot) or a concrete one (an operand register of
// the demanding instruction), mirroring pea.c's
// resolve_materialization_target / add_materialization_target_* split.
type materializeTarget struct {
	IsHypothetical bool
	Hyp            HypIndex
	Reg            graph.Value
}

// Transform is §3's "Transform record": a tagged variant sharing an
// allocation field (Alloc, -1 for relational-op decomposition, which
// produces no allocation) plus a per-case payload. Implemented as one
// flattened struct rather than an interface hierarchy, the same shape
// graph.Instruction itself uses for its own tagged union.
type Transform struct {
	Kind  TransformKind
	Alloc int
	Block graph.BasicBlock
	Ins   *graph.Instruction

	// AttrIndex is the attribute index for GetAttrToSet / BindAttrToSet /
	// VivifyType / VivifyConcrete.
	AttrIndex int

	// Src is the value written by a plain bind, the value a guard aliases
	// to, the unboxed operand of UnmaterializeBI, or the target register
	// of AddDeoptPoint.
	Src graph.Value

	// DeoptIdx is the deopt-point index for AddDeoptPoint/AddDeoptUsage.
	DeoptIdx int32

	// Targets lists where a MATERIALIZE transform's rebuilt object must
	// end up.
	Targets []materializeTarget

	// OperandAllocA/B are the source allocation indices for
	// DecomposeBigintBI/UN/REL (-1 if that operand isn't tracked, in
	// which case OperandOffsetA/B names the bigint attribute offset to
	// read from instead).
	OperandAllocA, OperandAllocB   int
	OperandOffsetA, OperandOffsetB uint32
	HasOperandB                    bool

	// skipped is set by the rewriter when it finds, at apply time, that
	// Alloc had since become irreplaceable (§4.7 "silently skipped").
	skipped bool
}

// Ledger is the transform ledger (C5): the queue of pending graph edits,
// one record per edit, organized both in overall analysis order and per
// block so the rewriter can walk blocks in linear order and, within each,
// apply transforms in the order they were queued (§5).
type Ledger struct {
	transforms []*Transform
	byBlock    map[graph.BasicBlockID][]int
}

// NewLedger creates an empty ledger.
func NewLedger() *Ledger {
	return &Ledger{byBlock: make(map[graph.BasicBlockID][]int)}
}

// Add appends tr to the ledger, returning its index.
func (l *Ledger) Add(tr *Transform) int {
	idx := len(l.transforms)
	l.transforms = append(l.transforms, tr)
	l.byBlock[tr.Block.ID()] = append(l.byBlock[tr.Block.ID()], idx)
	return idx
}

// Get returns the transform at idx.
func (l *Ledger) Get(idx int) *Transform { return l.transforms[idx] }

// ForBlock returns the transform indices queued for block id, in queued
// (= analysis) order.
func (l *Ledger) ForBlock(id graph.BasicBlockID) []int { return l.byBlock[id] }

// Len reports how many transforms have been queued.
func (l *Ledger) Len() int { return len(l.transforms) }
