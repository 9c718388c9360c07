package graph

import (
	"fmt"
	"strconv"
	"strings"
)

// Instruction is a single instruction in the graph, ported from
// ssa.Instruction: a flattened tagged union, one struct shape reused by
// every opcode, with a doubly-linked list threading instructions within a
// BasicBlock. Which fields are meaningful depends on Opcode.
type Instruction struct {
	opcode Opcode

	// v, v2, v3 are the first three value operands; vs holds any remaining
	// ones (block arguments on branches, call arguments on OpInvoke).
	v, v2, v3 Value
	vs        []Value

	// offset is the attribute offset for getattr/bindattr variants.
	offset uint32
	// typeSlot is the constant-pool slot index for fastcreate/guardconc/
	// bigint-arithmetic/vivify/prof_allocated_replaced.
	typeSlot uint16
	// iconst is the immediate for OpIconst (test scaffolding only).
	iconst uint64

	// blk is the branch target for OpJump/OpBrz/OpBrnz.
	blk *basicBlock

	// deoptIdx is the deopt-point index this instruction represents, valid
	// when Opcode().MayDeopt().
	deoptIdx int32

	rValue Value

	prev, next *Instruction

	// live is a per-instruction liveness flag; no code in this module sets
	// or reads it.
	live bool
}

// reset restores the instruction to its initial state, mirroring
// ssa.Instruction.reset.
func (i *Instruction) reset() {
	*i = Instruction{}
	i.v, i.v2, i.v3, i.rValue = ValueInvalid, ValueInvalid, ValueInvalid, ValueInvalid
	i.deoptIdx = -1
}

// Opcode returns the opcode of this instruction.
func (i *Instruction) Opcode() Opcode { return i.opcode }

// Next/Prev walk the instruction list within a BasicBlock.
func (i *Instruction) Next() *Instruction { return i.next }
func (i *Instruction) Prev() *Instruction { return i.prev }

// Return returns the Value this instruction produces, or ValueInvalid.
func (i *Instruction) Return() Value { return i.rValue }

// Args returns up to three value arguments plus any overflow in vs, mirroring
// ssa.Instruction.Args.
func (i *Instruction) Args() (v1, v2, v3 Value, vs []Value) { return i.v, i.v2, i.v3, i.vs }

// Arg returns the first argument.
func (i *Instruction) Arg() Value { return i.v }

// Arg2 returns the first two arguments.
func (i *Instruction) Arg2() (Value, Value) { return i.v, i.v2 }

// Offset returns the attribute offset operand.
func (i *Instruction) Offset() uint32 { return i.offset }

// TypeSlot returns the constant-pool slot operand.
func (i *Instruction) TypeSlot() uint16 { return i.typeSlot }

// ConstVal returns the immediate of an OpIconst.
func (i *Instruction) ConstVal() uint64 { return i.iconst }

// BranchTarget returns the branch target block.
func (i *Instruction) BranchTarget() BasicBlock { return i.blk }

// BranchArgs returns the block-argument values carried by a branch.
func (i *Instruction) BranchArgs() []Value { return i.vs }

// DeoptIndex returns the deopt-point index of this instruction.
func (i *Instruction) DeoptIndex() int32 { return i.deoptIdx }

// IsBranching reports whether this is a control-transfer instruction.
func (i *Instruction) IsBranching() bool { return i.opcode.IsBranch() }

// --- constructors, one per opcode this module's scenarios need -----------

func (i *Instruction) AsFastcreate(typeSlot uint16) *Instruction {
	i.opcode = OpFastcreate
	i.typeSlot = typeSlot
	return i
}

func (i *Instruction) AsGetAttr(op Opcode, obj Value, offset uint32) *Instruction {
	i.opcode = op
	i.v = obj
	i.offset = offset
	return i
}

func (i *Instruction) AsBindAttr(op Opcode, obj, val Value, offset uint32) *Instruction {
	i.opcode = op
	i.v, i.v2 = obj, val
	i.offset = offset
	return i
}

func (i *Instruction) AsSet(src Value) *Instruction {
	i.opcode = OpSet
	i.v = src
	return i
}

func (i *Instruction) AsGuardconc(val Value, typeSlot uint16, deoptIdx int32) *Instruction {
	i.opcode = OpGuardconc
	i.v = val
	i.typeSlot = typeSlot
	i.deoptIdx = deoptIdx
	return i
}

func (i *Instruction) AsBigintBinary(op Opcode, a, b Value, typeSlot uint16) *Instruction {
	i.opcode = op
	i.v, i.v2 = a, b
	i.typeSlot = typeSlot
	return i
}

func (i *Instruction) AsBigintUnary(op Opcode, a Value, typeSlot uint16) *Instruction {
	i.opcode = op
	i.v = a
	i.typeSlot = typeSlot
	return i
}

func (i *Instruction) AsBigintRel(op Opcode, a, b Value) *Instruction {
	i.opcode = op
	i.v, i.v2 = a, b
	return i
}

func (i *Instruction) AsGetBI(obj Value, offset uint32) *Instruction {
	i.opcode = OpGetBI
	i.v = obj
	i.offset = offset
	return i
}

func (i *Instruction) AsMaterializeBI(unboxed Value, typeSlot uint16) *Instruction {
	i.opcode = OpMaterializeBI
	i.v = unboxed
	i.typeSlot = typeSlot
	return i
}

func (i *Instruction) AsDecontI(val Value) *Instruction {
	i.opcode = OpDecontI
	i.v = val
	return i
}

func (i *Instruction) AsProfAllocated(obj Value) *Instruction {
	i.opcode = OpProfAllocated
	i.v = obj
	return i
}

// AsProfAllocatedReplaced is what PROF_ALLOCATED rewrites an OpProfAllocated
// into: the same hook, now taking the type's constant-pool slot instead of
// the (possibly scalar-replaced) object value.
func (i *Instruction) AsProfAllocatedReplaced(typeSlot uint16) *Instruction {
	i.opcode = OpProfAllocatedReplaced
	i.typeSlot = typeSlot
	return i
}

// AsSpeshSlotRead reads a constant-pool slot value, the rewriter's
// VIVIFY_TYPE shape.
func (i *Instruction) AsSpeshSlotRead(typeSlot uint16) *Instruction {
	i.opcode = OpSpeshSlotRead
	i.typeSlot = typeSlot
	return i
}

// AsClone clones src, the rewriter's VIVIFY_CONCRETE shape.
func (i *Instruction) AsClone(src Value) *Instruction {
	i.opcode = OpClone
	i.v = src
	return i
}

// AsDecontIBI reads the unboxed bigint register directly, what UNBOX_BIGINT
// rewrites an OpDecontI into.
func (i *Instruction) AsDecontIBI(bigintReg Value) *Instruction {
	i.opcode = OpDecontIBI
	i.v = bigintReg
	return i
}

func (i *Instruction) AsArgPrep(op Opcode, val Value) *Instruction {
	i.opcode = op
	i.v = val
	return i
}

func (i *Instruction) AsInvoke(args []Value, deoptIdx int32) *Instruction {
	i.opcode = OpInvoke
	i.vs = args
	i.deoptIdx = deoptIdx
	return i
}

func (i *Instruction) AsIconst(v uint64) *Instruction {
	i.opcode = OpIconst
	i.iconst = v
	return i
}

func (i *Instruction) AsJump(vs []Value, target BasicBlock) *Instruction {
	i.opcode = OpJump
	i.vs = vs
	i.blk = target.(*basicBlock)
	return i
}

func (i *Instruction) AsBrz(c Value, vs []Value, target BasicBlock) *Instruction {
	i.opcode = OpBrz
	i.v = c
	i.vs = vs
	i.blk = target.(*basicBlock)
	return i
}

func (i *Instruction) AsBrnz(c Value, vs []Value, target BasicBlock) *Instruction {
	i.opcode = OpBrnz
	i.v = c
	i.vs = vs
	i.blk = target.(*basicBlock)
	return i
}

func (i *Instruction) AsReturn(vs []Value) *Instruction {
	i.opcode = OpReturn
	i.vs = vs
	return i
}

// Format creates a debug string for this instruction, mirroring the shape of
// ssa.Instruction.Format (result := opcode operands).
func (i *Instruction) Format(b Builder) string {
	var buf strings.Builder
	if i.rValue.Valid() {
		buf.WriteString(i.rValue.formatWithKind(b))
		buf.WriteString(" = ")
	}
	buf.WriteString(i.opcode.String())

	args := make([]string, 0, 4)
	switch i.opcode {
	case OpJump, OpBrz, OpBrnz:
		if i.v.Valid() {
			args = append(args, i.v.Format(b))
		}
		args = append(args, i.blk.Name())
		for _, v := range i.vs {
			args = append(args, v.Format(b))
		}
	case OpFastcreate:
		args = append(args, fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpGetAttrObj, OpGetAttrInt, OpGetAttrNum, OpGetAttrStr, OpGetAttrBI, OpGetAttrVivObj, OpGetBI:
		args = append(args, i.v.Format(b), fmt.Sprintf("+%d", i.offset))
	case OpBindAttrObj, OpBindAttrInt, OpBindAttrNum, OpBindAttrStr, OpBindAttrBI:
		args = append(args, i.v.Format(b), fmt.Sprintf("+%d", i.offset), i.v2.Format(b))
	case OpSet, OpDecontI, OpDecontIBI, OpProfAllocated, OpClone:
		args = append(args, i.v.Format(b))
	case OpGuardconc:
		args = append(args, i.v.Format(b), fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpProfAllocatedReplaced, OpSpeshSlotRead:
		args = append(args, fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpAddI, OpSubI, OpMulI, OpGcdI, OpCmpI, OpEqI, OpNeI, OpLtI, OpLeI, OpGtI, OpGeI:
		args = append(args, i.v.Format(b), i.v2.Format(b), fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpSpAddBI, OpSpSubBI, OpSpMulBI, OpSpGcdBI, OpSpCmpBI, OpSpEqBI, OpSpNeBI, OpSpLtBI, OpSpLeBI, OpSpGtBI, OpSpGeBI:
		args = append(args, i.v.Format(b), i.v2.Format(b))
	case OpNegI, OpAbsI:
		args = append(args, i.v.Format(b), fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpSpNegBI, OpSpAbsBI:
		args = append(args, i.v.Format(b))
	case OpMaterializeBI:
		args = append(args, i.v.Format(b), fmt.Sprintf("slot(%d)", i.typeSlot))
	case OpArgI, OpArgN, OpArgS, OpArgO, OpArgConstI, OpArgConstN, OpArgConstS:
		args = append(args, i.v.Format(b))
	case OpInvoke:
		for _, v := range i.vs {
			args = append(args, v.Format(b))
		}
	case OpIconst:
		args = append(args, strconv.FormatUint(i.iconst, 10))
	case OpReturn:
		for _, v := range i.vs {
			args = append(args, v.Format(b))
		}
	}
	if len(args) > 0 {
		buf.WriteByte(' ')
		buf.WriteString(strings.Join(args, ", "))
	}
	return buf.String()
}
