package graph

import (
	"fmt"
	"strings"
)

// Builder constructs and holds a graph: BasicBlock(s) linked by branches,
// Instruction(s) within them, and the Value(s) they define. Ported from
// ssa.Builder, trimmed to the subset the PEA facade (C1) and this module's
// own scenario constructors (§8's S1-S6) need: no loop support (this graph
// is built forward-only, one block at a time, matching the "no back edges"
// Non-goal), no calling-convention-aware ABI lowering, no SSA-pass pipeline.
type Builder interface {
	// AllocateBasicBlock creates a new, unlinked BasicBlock.
	AllocateBasicBlock() BasicBlock
	// SetCurrentBlock directs subsequent InsertInstruction and
	// AllocateInstruction calls at blk.
	SetCurrentBlock(blk BasicBlock)
	// CurrentBlock returns the block set by SetCurrentBlock.
	CurrentBlock() BasicBlock
	// AllocateInstruction returns a fresh, zeroed Instruction ready for one
	// of its As* constructors.
	AllocateInstruction() *Instruction
	// NewValue mints a fresh, globally-unique Value of the given kind,
	// unattached to any instruction. This is unique_reg(kind) of §6: the
	// rewriter uses it to allocate concrete attribute registers and
	// materialization targets without going through InsertInstruction.
	NewValue(kind RegKind) Value
	// AssignResult mints and stamps a fresh result Value for ins (using
	// resultKind), for an instruction built via AllocateInstruction and
	// spliced in directly via BasicBlock.InsertBefore rather than through
	// InsertInstruction — safe only for brand-new instructions nothing
	// could already hold a reference to.
	AssignResult(ins *Instruction) Value
	// SetResult stamps ins's result to the specific, already-minted value
	// v, resurrecting a prior instruction's destination identity at a new
	// program point (the rewriter's MATERIALIZE case restoring a deleted
	// allocator's original result so existing operand references stay
	// valid).
	SetResult(ins *Instruction, v Value)
	// InsertInstruction appends ins to the current block and, if the
	// opcode produces a value, allocates and assigns its result Value.
	InsertInstruction(ins *Instruction)
	// DeclareVariable introduces a new source-level Variable of the given
	// kind, for use with DefineVariable/FindValue.
	DeclareVariable(kind RegKind) Variable
	// DefineVariable records that v is the current block's definition of
	// variable, mirroring ssa.Builder.DefineVariable.
	DefineVariable(variable Variable, v Value, blk BasicBlock)
	// FindValue resolves variable to its reaching definition at the
	// current block, inserting a block parameter if necessary.
	FindValue(variable Variable) Value
	// Seal marks blk as having all its predecessors known, allowing
	// FindValue to stop treating it as an incomplete CFG node.
	Seal(blk BasicBlock)
	// AnnotateValue attaches a human-readable name to v for Format output;
	// cosmetic only, used by the scenario constructors in §8's tests.
	AnnotateValue(v Value, name string)
	// ReturnBlock is the graph's single exit block.
	ReturnBlock() BasicBlock
	// BlockIteratorBegin/Next walk blocks in allocation order, which for a
	// forward-only-constructed graph is a valid reverse postorder.
	BlockIteratorBegin() BasicBlock
	BlockIteratorNext() BasicBlock
	// Format renders the whole graph for debugging/golden-output tests.
	Format() string
}

type builder struct {
	instrPool Pool[Instruction]
	blkPool   Pool[basicBlock]

	blocks []*basicBlock
	cur    *basicBlock
	retBlk *basicBlock

	nextValueID ValueID
	varKinds    []RegKind

	// currentDef[variable][blockID] is the reaching definition, mirroring
	// ssa.Builder's per-variable per-block definition map used by the
	// sealed/unsealed local-value-numbering algorithm (Braun et al., as
	// wazero's builder.go cites).
	currentDef []map[BasicBlockID]Value
	sealed     map[BasicBlockID]bool
	// incompletePhis[blockID][variable] = block-param Value awaiting
	// Seal to be filled in from predecessors.
	incompletePhis map[BasicBlockID]map[Variable]Value

	valueAnnotations map[ValueID]string

	blkIterCursor int
}

// NewBuilder creates an empty Builder.
func NewBuilder() Builder {
	b := &builder{
		instrPool:        NewPool[Instruction](func(i *Instruction) { i.reset() }),
		blkPool:          NewPool[basicBlock](func(bb *basicBlock) { *bb = basicBlock{} }),
		sealed:           make(map[BasicBlockID]bool),
		incompletePhis:   make(map[BasicBlockID]map[Variable]Value),
		valueAnnotations: make(map[ValueID]string),
	}
	b.retBlk = b.blkPool.Allocate()
	b.retBlk.id = basicBlockIDReturn
	b.sealed[basicBlockIDReturn] = true
	return b
}

func (b *builder) allocValue(kind RegKind) Value {
	id := b.nextValueID
	b.nextValueID++
	return Value(id).setKind(kind)
}

func (b *builder) AllocateBasicBlock() BasicBlock {
	bb := b.blkPool.Allocate()
	bb.id = BasicBlockID(len(b.blocks))
	b.blocks = append(b.blocks, bb)
	return bb
}

func (b *builder) SetCurrentBlock(blk BasicBlock) { b.cur = blk.(*basicBlock) }

func (b *builder) CurrentBlock() BasicBlock { return b.cur }

func (b *builder) AllocateInstruction() *Instruction { return b.instrPool.Allocate() }

func (b *builder) NewValue(kind RegKind) Value { return b.allocValue(kind) }

func (b *builder) AssignResult(ins *Instruction) Value {
	if k := resultKind(ins); !k.invalid() {
		ins.rValue = b.allocValue(k)
	}
	return ins.rValue
}

func (b *builder) SetResult(ins *Instruction, v Value) { ins.rValue = v }

// InsertInstruction mirrors ssa.Builder.InsertInstruction: after the
// instruction is appended, if its opcode yields a result the builder
// allocates that result Value and stamps it onto the instruction, using
// resultKind (this module's analogue of the teacher's
// instructionReturnTypes table) to pick its RegKind.
func (b *builder) InsertInstruction(ins *Instruction) {
	b.cur.InsertInstruction(ins)
	if k := resultKind(ins); !k.invalid() {
		ins.rValue = b.allocValue(k)
	}
}

func (b *builder) DeclareVariable(kind RegKind) Variable {
	v := Variable(len(b.varKinds))
	b.varKinds = append(b.varKinds, kind)
	b.currentDef = append(b.currentDef, make(map[BasicBlockID]Value))
	return v
}

func (b *builder) DefineVariable(variable Variable, v Value, blk BasicBlock) {
	bb := blk.(*basicBlock)
	b.currentDef[variable][bb.id] = v
}

// FindValue implements the sealed/unsealed incomplete-CFG SSA-construction
// algorithm (recursive lookup through predecessors, with a placeholder block
// parameter for not-yet-sealed blocks), exactly as ssa.Builder.findValue.
func (b *builder) FindValue(variable Variable) Value {
	return b.findValueAt(variable, b.cur)
}

func (b *builder) findValueAt(variable Variable, blk *basicBlock) Value {
	if v, ok := b.currentDef[variable][blk.id]; ok {
		return v
	}
	if !b.sealed[blk.id] {
		// Incomplete CFG: add a block parameter now, fill it in on Seal.
		kind := b.varKinds[variable]
		v := blk.AddParam(kind)
		v = b.allocValue(kind)
		b.fixupParam(blk, v)
		if b.incompletePhis[blk.id] == nil {
			b.incompletePhis[blk.id] = make(map[Variable]Value)
		}
		b.incompletePhis[blk.id][variable] = v
		b.currentDef[variable][blk.id] = v
		return v
	}
	switch len(blk.preds) {
	case 0:
		// Unreachable/entry with no definition: return an invalid Value
		// rather than panicking here; the PEA facade is responsible for
		// raising IROops when it later reads this operand.
		return ValueInvalid
	case 1:
		v := b.findValueAt(variable, blk.preds[0].blk)
		b.currentDef[variable][blk.id] = v
		return v
	default:
		kind := b.varKinds[variable]
		blk.AddParam(kind)
		paramVal := b.allocValue(kind)
		b.fixupParam(blk, paramVal)
		b.currentDef[variable][blk.id] = paramVal
		for _, pred := range blk.preds {
			pv := b.findValueAt(variable, pred.blk)
			pred.branch.vs = append(pred.branch.vs, pv)
		}
		return paramVal
	}
}

// fixupParam replaces the placeholder Value AddParam assigned with the
// real, globally-unique Value id just minted for it.
func (b *builder) fixupParam(blk *basicBlock, v Value) {
	blk.params[len(blk.params)-1].value = v
}

// Seal resolves any block parameters added speculatively by findValueAt
// while blk was still incomplete, filling each predecessor branch's
// argument list, mirroring ssa.Builder.Seal / sealBlock.
func (b *builder) Seal(blk BasicBlock) {
	bb := blk.(*basicBlock)
	b.sealed[bb.id] = true
	for variable, v := range b.incompletePhis[bb.id] {
		for _, pred := range bb.preds {
			pv := b.findValueAt(variable, pred.blk)
			pred.branch.vs = append(pred.branch.vs, pv)
		}
		_ = v
	}
	delete(b.incompletePhis, bb.id)
}

func (b *builder) AnnotateValue(v Value, name string) { b.valueAnnotations[v.ID()] = name }

func (b *builder) ReturnBlock() BasicBlock { return b.retBlk }

func (b *builder) BlockIteratorBegin() BasicBlock {
	b.blkIterCursor = 0
	return b.BlockIteratorNext()
}

func (b *builder) BlockIteratorNext() BasicBlock {
	for b.blkIterCursor < len(b.blocks) {
		bb := b.blocks[b.blkIterCursor]
		b.blkIterCursor++
		if bb.Valid() {
			return bb
		}
	}
	return nil
}

// Format renders every reachable block and instruction, mirroring
// ssa.Builder.Format's plain-text dump used by golden-output tests.
func (b *builder) Format() string {
	var buf strings.Builder
	for blk := b.BlockIteratorBegin(); blk != nil; blk = b.BlockIteratorNext() {
		bb := blk.(*basicBlock)
		buf.WriteString(bb.FormatHeader(b))
		buf.WriteByte('\n')
		for ins := bb.Root(); ins != nil; ins = ins.Next() {
			fmt.Fprintf(&buf, "\t%s\n", ins.Format(b))
		}
	}
	buf.WriteString(b.retBlk.Name())
	buf.WriteString(":\n")
	return buf.String()
}
