package graph

// RegKind is the kind of register a Value lives in. Unlike the teacher's
// ssa.Type (which tracks WebAssembly's i32/i64/f32/f64), RegKind tracks the
// host VM's register kinds, including the two PEA cares about specially:
// RegKindObiBigint (an unboxed big integer living outside any P6opaque box)
// and RegKindObj (an opaque reference, possibly to a tracked allocation).
type RegKind byte

const (
	regKindInvalid RegKind = iota

	// RegKindInt64 holds a flat 64-bit signed integer attribute or local.
	RegKindInt64
	// RegKindNum64 holds a flat 64-bit float attribute or local.
	RegKindNum64
	// RegKindStr holds a flat string attribute or local.
	RegKindStr
	// RegKindObj holds a reference to a (possibly tracked) object.
	RegKindObj
	// RegKindObiBigint holds an unboxed arbitrary-precision integer, the
	// special "reference-to-bigint" kind used to carry a bigint across
	// instructions once its box has been scalar-replaced. Named "Obi"
	// after the host's MVM_reg_obi, which this is grounded on.
	RegKindObiBigint
)

// String implements fmt.Stringer.
func (k RegKind) String() string {
	switch k {
	case RegKindInt64:
		return "int64"
	case RegKindNum64:
		return "num64"
	case RegKindStr:
		return "str"
	case RegKindObj:
		return "obj"
	case RegKindObiBigint:
		return "obi"
	default:
		return "invalid"
	}
}

func (k RegKind) invalid() bool {
	return k == regKindInvalid
}
