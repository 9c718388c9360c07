package graph

// Opcode represents a single host instruction, ported from ssa.Opcode's
// role but naming the operations §4.5's opcode-family table needs rather
// than WebAssembly's. Field layout on Instruction is a flattened union,
// exactly as in the teacher: which fields are meaningful depends on Opcode.
type Opcode uint32

const (
	OpInvalid Opcode = iota

	// --- control flow --------------------------------------------------

	// OpJump unconditionally transfers control, carrying block-argument
	// values vs to the target block's parameters.
	OpJump
	// OpBrz transfers control to blk (with vs) if v is zero.
	OpBrz
	// OpBrnz transfers control to blk (with vs) if v is non-zero.
	OpBrnz
	// OpReturn returns vs from the function.
	OpReturn

	// --- allocation ------------------------------------------------------

	// OpFastcreate allocates a fresh P6opaque-repr object of the type named
	// by TypeSlot, the candidate allocation instruction §4.2 looks for.
	OpFastcreate

	// --- attribute access --------------------------------------------------

	// OpGetAttrObj/Int/Num/Str/BI read an attribute at Offset from Arg()
	// into the result, one opcode per register kind (§4.2's mapping).
	OpGetAttrObj
	OpGetAttrInt
	OpGetAttrNum
	OpGetAttrStr
	OpGetAttrBI
	// OpGetAttrVivObj is the auto-vivifying object-attribute read: if the
	// attribute was never bound, it materializes the type's default value
	// (§4.5 "Auto-vivifying read").
	OpGetAttrVivObj

	// OpBindAttrObj/Int/Num/Str/BI write Arg2() into the attribute at
	// Offset of Arg().
	OpBindAttrObj
	OpBindAttrInt
	OpBindAttrNum
	OpBindAttrStr
	OpBindAttrBI

	// --- moves / guards --------------------------------------------------

	// OpSet is a plain register-to-register alias move, and also the shape
	// a trivial PHI (single non-self-referencing input) degenerates to.
	OpSet
	// OpGuardconc asserts that Arg() is concretely of the type named by
	// TypeSlot; may deopt.
	OpGuardconc

	// --- bigint arithmetic -------------------------------------------------

	// OpAddI/SubI/MulI/GcdI are boxed bigint binary ops: (dst-as-object) =
	// op(a, b, TypeSlot).
	OpAddI
	OpSubI
	OpMulI
	OpGcdI
	// OpNegI/AbsI are boxed bigint unary ops.
	OpNegI
	OpAbsI
	// OpCmpI/EqI/NeI/LtI/LeI/GtI/GeI are boxed bigint relational ops; they
	// never produce a new allocation (§4.5).
	OpCmpI
	OpEqI
	OpNeI
	OpLtI
	OpLeI
	OpGtI
	OpGeI

	// unboxed forms that DECOMPOSE_BIGINT_* rewrite arithmetic op into.
	OpSpAddBI
	OpSpSubBI
	OpSpMulBI
	OpSpGcdBI
	OpSpNegBI
	OpSpAbsBI
	OpSpCmpBI
	OpSpEqBI
	OpSpNeBI
	OpSpLtBI
	OpSpLeBI
	OpSpGtBI
	OpSpGeBI

	// OpGetBI reads the unboxed bigint out of an object attribute; the
	// DECOMPOSE_BIGINT_* prologue this module's rewriter synthesizes for an
	// untracked operand.
	OpGetBI
	// OpMaterializeBI is the "materialized bigint box" trigger of §4.5: a
	// bigint-cache-aware single-attribute materialization.
	OpMaterializeBI

	// --- integer unboxing --------------------------------------------------

	// OpDecontI unboxes a contained integer value (decont_i).
	OpDecontI
	// OpDecontIBI is what UNBOX_BIGINT rewrites OpDecontI into: read the
	// bigint register directly.
	OpDecontIBI

	// --- profiling -----------------------------------------------------

	// OpProfAllocated is a profiling hook taking the allocated object.
	OpProfAllocated
	// OpProfAllocatedReplaced is what PROF_ALLOCATED rewrites it into: the
	// same hook taking the type's constant-pool slot instead of a value.
	OpProfAllocatedReplaced

	// --- call argument preparation & calls -------------------------------

	// OpArgI/N/S/O push an integer/num/string/object argument into the
	// pending call's argument buffer.
	OpArgI
	OpArgN
	OpArgS
	OpArgO
	// OpArgConstI/N/S push a constant argument.
	OpArgConstI
	OpArgConstN
	OpArgConstS
	// OpInvoke calls a callee with the previously-pushed arguments; may
	// deopt (an escaping use per §4.5's "anything else").
	OpInvoke

	// --- materialization helpers used only by the rewriter ----------------

	// OpSpeshSlotRead reads a constant-pool slot value (VIVIFY_TYPE).
	OpSpeshSlotRead
	// OpClone clones the value it reads (VIVIFY_CONCRETE).
	OpClone

	// --- scaffolding used by tests/demos only ------------------------------

	// OpIconst materializes a constant integer, used only to build test
	// scenarios (not part of §4's opcode family table).
	OpIconst

	opcodeEnd
)

var opcodeNames = [opcodeEnd]string{
	OpInvalid:                "invalid",
	OpJump:                   "Jump",
	OpBrz:                    "Brz",
	OpBrnz:                   "Brnz",
	OpReturn:                 "Return",
	OpFastcreate:             "fastcreate",
	OpGetAttrObj:             "getattr_o",
	OpGetAttrInt:             "getattr_i",
	OpGetAttrNum:             "getattr_n",
	OpGetAttrStr:             "getattr_s",
	OpGetAttrBI:              "getattr_bi",
	OpGetAttrVivObj:          "getattrviv_o",
	OpBindAttrObj:            "bindattr_o",
	OpBindAttrInt:            "bindattr_i",
	OpBindAttrNum:            "bindattr_n",
	OpBindAttrStr:            "bindattr_s",
	OpBindAttrBI:             "bindattr_bi",
	OpSet:                    "set",
	OpGuardconc:              "guardconc",
	OpAddI:                   "add_I",
	OpSubI:                   "sub_I",
	OpMulI:                   "mul_I",
	OpGcdI:                   "gcd_I",
	OpNegI:                   "neg_I",
	OpAbsI:                   "abs_I",
	OpCmpI:                   "cmp_I",
	OpEqI:                    "eq_I",
	OpNeI:                    "ne_I",
	OpLtI:                    "lt_I",
	OpLeI:                    "le_I",
	OpGtI:                    "gt_I",
	OpGeI:                    "ge_I",
	OpSpAddBI:                "sp_add_bi",
	OpSpSubBI:                "sp_sub_bi",
	OpSpMulBI:                "sp_mul_bi",
	OpSpGcdBI:                "sp_gcd_bi",
	OpSpNegBI:                "sp_neg_bi",
	OpSpAbsBI:                "sp_abs_bi",
	OpSpCmpBI:                "sp_cmp_bi",
	OpSpEqBI:                 "sp_eq_bi",
	OpSpNeBI:                 "sp_ne_bi",
	OpSpLtBI:                 "sp_lt_bi",
	OpSpLeBI:                 "sp_le_bi",
	OpSpGtBI:                 "sp_gt_bi",
	OpSpGeBI:                 "sp_ge_bi",
	OpGetBI:                  "get_bi",
	OpMaterializeBI:          "materialize_bi",
	OpDecontI:                "decont_i",
	OpDecontIBI:              "decont_i_bi",
	OpProfAllocated:          "prof_allocated",
	OpProfAllocatedReplaced:  "prof_allocated_replaced",
	OpArgI:                   "arg_i",
	OpArgN:                   "arg_n",
	OpArgS:                   "arg_s",
	OpArgO:                   "arg_o",
	OpArgConstI:              "argconst_i",
	OpArgConstN:              "argconst_n",
	OpArgConstS:              "argconst_s",
	OpInvoke:                 "invoke_o",
	OpSpeshSlotRead:          "sp_getspeshslot",
	OpClone:                  "clone",
	OpIconst:                 "const_i",
}

// String implements fmt.Stringer.
func (o Opcode) String() string {
	if int(o) < len(opcodeNames) && opcodeNames[o] != "" {
		return opcodeNames[o]
	}
	return "unknown"
}

// mayDeoptOpcodes is the set for which op_info(opcode).may_deopt is true
// (§6, §4.5a). Guards and calls are the two deopt-capable shapes this graph
// models; a real host graph would have more (bounds checks, lazy binds,
// ...), which the PEA core does not special-case beyond consulting may_deopt.
var mayDeoptOpcodes = map[Opcode]bool{
	OpGuardconc: true,
	OpInvoke:    true,
}

// MayDeopt implements op_info(opcode).may_deopt.
func (o Opcode) MayDeopt() bool { return mayDeoptOpcodes[o] }

// IsArgPrep returns true for the arg_*/argconst_* family that §4.5's
// insertion-point rule skips backwards over.
func (o Opcode) IsArgPrep() bool {
	switch o {
	case OpArgI, OpArgN, OpArgS, OpArgO, OpArgConstI, OpArgConstN, OpArgConstS:
		return true
	default:
		return false
	}
}

// IsBranch mirrors ssa.Instruction.IsBranching.
func (o Opcode) IsBranch() bool {
	switch o {
	case OpJump, OpBrz, OpBrnz:
		return true
	default:
		return false
	}
}

// bigintBinaryOps / bigintUnaryOps / bigintRelOps group the opcode families
// the analyzer classifies (§4.5's bigint rows) and the unboxed replacement
// each boxed opcode rewrites into.
var bigintBinaryOps = map[Opcode]Opcode{
	OpAddI: OpSpAddBI,
	OpSubI: OpSpSubBI,
	OpMulI: OpSpMulBI,
	OpGcdI: OpSpGcdBI,
}

var bigintUnaryOps = map[Opcode]Opcode{
	OpNegI: OpSpNegBI,
	OpAbsI: OpSpAbsBI,
}

var bigintRelOps = map[Opcode]Opcode{
	OpCmpI: OpSpCmpBI,
	OpEqI:  OpSpEqBI,
	OpNeI:  OpSpNeBI,
	OpLtI:  OpSpLtBI,
	OpLeI:  OpSpLeBI,
	OpGtI:  OpSpGtBI,
	OpGeI:  OpSpGeBI,
}

// attrReadOps / attrBindOps map each attribute opcode to the RegKind it
// operates on, grounding §4.2's "attribute maps to a register kind" rule and
// §4.5's GETATTR_TO_SET/BINDATTR_TO_SET rows.
var attrReadOps = map[Opcode]RegKind{
	OpGetAttrObj: RegKindObj,
	OpGetAttrInt: RegKindInt64,
	OpGetAttrNum: RegKindNum64,
	OpGetAttrStr: RegKindStr,
	OpGetAttrBI:  RegKindObiBigint,
}

var attrBindOps = map[Opcode]RegKind{
	OpBindAttrObj: RegKindObj,
	OpBindAttrInt: RegKindInt64,
	OpBindAttrNum: RegKindNum64,
	OpBindAttrStr: RegKindStr,
	OpBindAttrBI:  RegKindObiBigint,
}

// IsAttrRead reports whether op is a getattr variant (excluding the
// auto-vivifying getattrviv_o, which the analyzer classifies separately),
// returning the RegKind it reads into its result.
func IsAttrRead(op Opcode) (RegKind, bool) { k, ok := attrReadOps[op]; return k, ok }

// IsAttrBind reports whether op is a bindattr variant, returning the
// RegKind of the value it writes.
func IsAttrBind(op Opcode) (RegKind, bool) { k, ok := attrBindOps[op]; return k, ok }

// BigintBinaryUnboxed returns the unboxed opcode a boxed bigint binary op
// (add_I/sub_I/mul_I/gcd_I) decomposes into.
func BigintBinaryUnboxed(op Opcode) (Opcode, bool) { k, ok := bigintBinaryOps[op]; return k, ok }

// BigintUnaryUnboxed returns the unboxed opcode a boxed bigint unary op
// (neg_I/abs_I) decomposes into.
func BigintUnaryUnboxed(op Opcode) (Opcode, bool) { k, ok := bigintUnaryOps[op]; return k, ok }

// BigintRelUnboxed returns the unboxed opcode a boxed bigint relational op
// decomposes into.
func BigintRelUnboxed(op Opcode) (Opcode, bool) { k, ok := bigintRelOps[op]; return k, ok }

// resultKind returns the RegKind InsertInstruction should allocate a result
// Value in, or regKindInvalid if the opcode produces no value. This plays
// the role of the teacher's instructionReturnTypes table (ssa/instructions.go),
// simplified since this graph has no multi-result instructions. A handful of
// opcodes (moves/guards/clones) just pass through the kind of their operand.
func resultKind(ins *Instruction) RegKind {
	switch ins.opcode {
	case OpFastcreate, OpGetAttrObj, OpGetAttrVivObj, OpMaterializeBI, OpSpeshSlotRead:
		return RegKindObj
	case OpIconst:
		return RegKindInt64
	case OpAddI, OpSubI, OpMulI, OpGcdI, OpNegI, OpAbsI:
		return RegKindObj
	case OpSet, OpGuardconc, OpClone:
		return ins.v.Kind()
	case OpDecontIBI:
		return RegKindInt64
	case OpGetAttrInt:
		return RegKindInt64
	case OpGetAttrNum:
		return RegKindNum64
	case OpGetAttrStr:
		return RegKindStr
	case OpGetAttrBI, OpGetBI, OpSpAddBI, OpSpSubBI, OpSpMulBI, OpSpGcdBI, OpSpNegBI, OpSpAbsBI:
		return RegKindObiBigint
	case OpDecontI:
		return RegKindInt64
	case OpCmpI, OpEqI, OpNeI, OpLtI, OpLeI, OpGtI, OpGeI,
		OpSpCmpBI, OpSpEqBI, OpSpNeBI, OpSpLtBI, OpSpLeBI, OpSpGtBI, OpSpGeBI:
		return RegKindInt64
	default:
		return regKindInvalid
	}
}
