package graph

import (
	"fmt"
	"strings"
)

// BasicBlock is a straight-line sequence of Instruction(s) with a single
// entry and, except for the return block, a single exit via a branching
// instruction. Ported from ssa.BasicBlock, trimmed to what the PEA core and
// its facade (C1) need: predecessor/successor edges, block parameters (this
// graph's PHI-equivalent, §4.5's "PHI with N inputs" rows), and instruction
// iteration.
type BasicBlock interface {
	ID() BasicBlockID
	Name() string
	AddParam(kind RegKind) Value
	Params() int
	Param(i int) Value
	Root() *Instruction
	Tail() *Instruction
	InsertInstruction(ins *Instruction)
	// InsertBefore splices ins into this block's instruction list
	// immediately before anchor, the graph-level primitive behind C1's
	// insert_ins_after (the facade's "insert after X" calls this with X's
	// successor as anchor, or appends when X is the tail).
	InsertBefore(anchor, ins *Instruction)
	// Remove unlinks ins from this block's instruction list, the
	// graph-level primitive behind C1's delete_ins.
	Remove(ins *Instruction)
	ReturnBlock() bool
	Valid() bool
	Preds() int
	PredBlock(i int) BasicBlock
	PredBranch(i int) *Instruction
	Succs() int
	SuccBlock(i int) BasicBlock
	FormatHeader(b Builder) string
}

type blockParam struct {
	value Value
	kind  RegKind
}

// BasicBlockID is the unique, dense ID of a basicBlock, assigned in
// allocation order (which doubles as a valid reverse-postorder-compatible
// iteration order for an acyclic, forward-only constructed graph — see
// Builder.ReversePostOrder).
type BasicBlockID uint32

const basicBlockIDReturn = 0xffffffff

type basicBlockPred struct {
	blk    *basicBlock
	branch *Instruction
}

type basicBlock struct {
	id                      BasicBlockID
	rootInstr, currentInstr *Instruction
	params                  []blockParam
	preds                   []basicBlockPred
	success                 []*basicBlock
	invalid                 bool
}

func (bb *basicBlock) ID() BasicBlockID { return bb.id }

func (bb *basicBlock) Name() string {
	if bb.id == basicBlockIDReturn {
		return "blk_ret"
	}
	return fmt.Sprintf("blk%d", bb.id)
}

func (bb *basicBlock) ReturnBlock() bool { return bb.id == basicBlockIDReturn }

func (bb *basicBlock) Valid() bool { return !bb.invalid }

func (bb *basicBlock) AddParam(kind RegKind) Value {
	v := Value(len(bb.params)) // placeholder; replaced by builder.fixupParam
	bb.params = append(bb.params, blockParam{value: v, kind: kind})
	return v
}

func (bb *basicBlock) Params() int { return len(bb.params) }

func (bb *basicBlock) Param(i int) Value { return bb.params[i].value }

func (bb *basicBlock) Root() *Instruction { return bb.rootInstr }

func (bb *basicBlock) Tail() *Instruction { return bb.currentInstr }

func (bb *basicBlock) Preds() int { return len(bb.preds) }

func (bb *basicBlock) PredBlock(i int) BasicBlock { return bb.preds[i].blk }

func (bb *basicBlock) PredBranch(i int) *Instruction { return bb.preds[i].branch }

func (bb *basicBlock) Succs() int { return len(bb.success) }

func (bb *basicBlock) SuccBlock(i int) BasicBlock { return bb.success[i] }

// InsertInstruction appends ins to the tail of this block and, if it is a
// branch, wires the predecessor/successor edges, mirroring
// ssa.basicBlock.InsertInstruction.
func (bb *basicBlock) InsertInstruction(ins *Instruction) {
	if cur := bb.currentInstr; cur != nil {
		cur.next = ins
		ins.prev = cur
	} else {
		bb.rootInstr = ins
	}
	bb.currentInstr = ins

	if ins.opcode.IsBranch() {
		target := ins.blk
		target.preds = append(target.preds, basicBlockPred{blk: bb, branch: ins})
		bb.success = append(bb.success, target)
	}
}

// InsertBefore splices ins immediately before anchor. anchor must belong to
// this block. Does not touch predecessor/successor edges: callers never
// insert a new branch mid-block, only straight-line instructions ahead of
// the existing terminator.
func (bb *basicBlock) InsertBefore(anchor, ins *Instruction) {
	ins.prev = anchor.prev
	ins.next = anchor
	if anchor.prev != nil {
		anchor.prev.next = ins
	} else {
		bb.rootInstr = ins
	}
	anchor.prev = ins
}

// Remove unlinks ins from this block's instruction list.
func (bb *basicBlock) Remove(ins *Instruction) {
	if ins.prev != nil {
		ins.prev.next = ins.next
	} else {
		bb.rootInstr = ins.next
	}
	if ins.next != nil {
		ins.next.prev = ins.prev
	} else {
		bb.currentInstr = ins.prev
	}
	ins.prev, ins.next = nil, nil
}

// FormatHeader implements the header line of Builder.Format, mirroring
// ssa.basicBlock.FormatHeader.
func (bb *basicBlock) FormatHeader(b Builder) string {
	ps := make([]string, len(bb.params))
	for i, p := range bb.params {
		ps[i] = fmt.Sprintf("%s:%s", p.value.Format(b), p.kind)
	}
	if len(bb.preds) == 0 {
		return fmt.Sprintf("%s: (%s)", bb.Name(), strings.Join(ps, ", "))
	}
	preds := make([]string, 0, len(bb.preds))
	for _, p := range bb.preds {
		if p.blk.invalid {
			continue
		}
		preds = append(preds, p.blk.Name())
	}
	return fmt.Sprintf("%s: (%s) <-- (%s)", bb.Name(), strings.Join(ps, ","), strings.Join(preds, ","))
}
