package graph

import (
	"fmt"
	"math"
)

// Variable is a unique identifier for a source-program local/attribute slot;
// ported from ssa.Variable. FindValue resolves a Variable to its current
// definition through the same sealed/unsealed block-argument construction
// used by the teacher's builder.go (not reused by the PEA core itself, which
// only ever deals in already-built Value(s), but kept so that `graph` is a
// self-standing SSA builder usable to construct the scenarios in §8).
type Variable uint32

// String implements fmt.Stringer.
func (v Variable) String() string { return fmt.Sprintf("var%d", v) }

// Value represents an SSA value with a RegKind folded into the high bits,
// exactly as ssa.Value folds ssa.Type into its high 32 bits.
type Value uint64

// ValueID is the pure identifier of a Value, without its RegKind.
type ValueID uint32

const (
	valueIDInvalid ValueID = math.MaxUint32
	// ValueInvalid marks an unset Value. It is not the zero Value (which is
	// the valid v0); Instruction.reset stores it explicitly.
	ValueInvalid Value = Value(valueIDInvalid)
)

// Valid returns true if this value is valid.
func (v Value) Valid() bool { return v.ID() != valueIDInvalid }

// Kind returns the RegKind of this value.
func (v Value) Kind() RegKind { return RegKind(v >> 32) }

// ID returns the ValueID of this value.
func (v Value) ID() ValueID { return ValueID(v) }

func (v Value) setKind(k RegKind) Value { return v | Value(k)<<32 }

// Format creates a debug string for this Value, honoring annotations set via
// Builder.AnnotateValue (e.g. "obj", "a", "b" in the scenario builders).
func (v Value) Format(b Builder) string {
	if a, ok := b.(*builder).valueAnnotations[v.ID()]; ok {
		return a
	}
	return fmt.Sprintf("v%d", v.ID())
}

func (v Value) formatWithKind(b Builder) string {
	return fmt.Sprintf("%s:%s", v.Format(b), v.Kind())
}
