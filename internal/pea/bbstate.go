package pea

import "github.com/DataKinds/MoarVM/internal/graph"

// BBAllocationState is §3's "Per-BB allocation state": indexed by an
// allocation's dense index, the merge unit C4 computes fresh at each
// block's entry.
type BBAllocationState struct {
	Seen bool
	// Used holds one entry per attribute: has it been written on every
	// path reaching this block?
	Used []bool
	// Materializations is the set of distinct materialization-transform
	// indices (into Ledger.transforms) visible on entry to this block.
	Materializations []int
}

// BBState is §3's "Per-BB state": the allocation-state table for one
// block, keyed by allocation dense index.
type BBState struct {
	Allocs map[int]*BBAllocationState
}

func newBBState() *BBState { return &BBState{Allocs: make(map[int]*BBAllocationState)} }

func (s *BBState) forAlloc(idx, numAttrs int) *BBAllocationState {
	st, ok := s.Allocs[idx]
	if !ok {
		st = &BBAllocationState{Used: make([]bool, numAttrs)}
		s.Allocs[idx] = st
	}
	return st
}

// GraphState owns every block's BBState for the duration of one pass run,
// released at pass teardown along with everything else in §5's resource
// list.
type GraphState struct {
	blocks map[graph.BasicBlockID]*BBState
}

func newGraphState() *GraphState {
	return &GraphState{blocks: make(map[graph.BasicBlockID]*BBState)}
}

func (g *GraphState) block(id graph.BasicBlockID) *BBState {
	st, ok := g.blocks[id]
	if !ok {
		st = newBBState()
		g.blocks[id] = st
	}
	return st
}

// mergeAtEntry implements §4.4's per-block predecessor merge for every
// allocation created so far. Reverse-postorder analysis guarantees every
// predecessor of blk has already been visited and populated its own
// BBState by the time this runs.
func mergeAtEntry(g *GraphState, t *Tracker, blk graph.BasicBlock) {
	cur := g.block(blk.ID())
	numPreds := blk.Preds()

	for allocIdx := 0; allocIdx < len(t.allocations); allocIdx++ {
		rec := t.allocations[allocIdx]
		numAttrs := len(rec.Hyp)

		// 1. Scan predecessors.
		predStates := make([]*BBAllocationState, numPreds)
		anySeen := false
		for i := 0; i < numPreds; i++ {
			pid := blk.PredBlock(i).ID()
			if ps, ok := g.blocks[pid]; ok {
				if as, ok := ps.Allocs[allocIdx]; ok && as.Seen {
					predStates[i] = as
					anySeen = true
				}
			}
		}

		// 2. If no predecessor has seen A, B does not see it either.
		if !anySeen {
			continue
		}

		// 3. Used consistency: written on every seeing predecessor, or
		// inconsistent (irreplaceable).
		used := make([]bool, numAttrs)
		inconsistent := false
		for i := 0; i < numAttrs; i++ {
			saw, wrote := 0, 0
			for _, ps := range predStates {
				if ps == nil {
					continue
				}
				saw++
				if ps.Used[i] {
					wrote++
				}
			}
			switch {
			case saw == 0:
			case wrote == saw:
				used[i] = true
			case wrote > 0:
				inconsistent = true
			}
		}
		if inconsistent {
			t.MarkIrreplaceable(allocIdx)
			continue
		}

		// 4. Materialized-on-some-but-not-all predecessors is also
		// inconsistent.
		sawMat, sawNoMat := false, false
		union := make(map[int]bool)
		for _, ps := range predStates {
			if ps == nil {
				continue
			}
			if len(ps.Materializations) > 0 {
				sawMat = true
			} else {
				sawNoMat = true
			}
			for _, m := range ps.Materializations {
				union[m] = true
			}
		}
		if sawMat && sawNoMat {
			t.MarkIrreplaceable(allocIdx)
			continue
		}

		// 5. Propagate: union of materializations, seen = true. A block
		// with exactly one predecessor that saw A trivially satisfies
		// steps 3-4 (nothing to be inconsistent against), which is the
		// conservative behavior the single-pred "TODO" in the original
		// source is codified as resolving to (§9's second Open
		// Question) — no special case is needed here.
		st := cur.forAlloc(allocIdx, numAttrs)
		st.Seen = true
		st.Used = used
		for m := range union {
			st.Materializations = append(st.Materializations, m)
		}
	}
}
