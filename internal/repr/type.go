// Package repr stands in for the representation model §6 names as an
// external collaborator: the object model that knows how a type's
// attributes are laid out in memory (P6opaqueREPRData in the host this
// spec is grounded on) and how any type boxes a primitive
// (MVMStorageSpec). The PEA tracker (package pea) only ever asks a Type
// the handful of questions §4.2/§6 need; it never constructs objects or
// interprets bytecode.
package repr

// ID names a representation, mirroring MVM_REPR_ID_*. Only the two
// representations §4.2's attribute-kind rule cares about are named; any
// other ID is a representation the tracker refuses without inspecting
// further (§7 "not a candidate").
type ID uint32

const (
	IDInvalid ID = iota
	// IDP6opaque is the attribute-layout representation C2 can scalar
	// replace (MVM_REPR_ID_P6opaque).
	IDP6opaque
	// IDP6bigint is the single-bigint-attribute box representation
	// (MVM_REPR_ID_P6bigint); every P6bigint type is also reachable as a
	// one-attribute P6opaque layout via P6opaque(), but its ID is kept
	// distinct because flattened_type_to_register_kind special-cases it
	// before ever looking at a storage spec.
	IDP6bigint
	// IDOpaquePointer and other representations the host supports exist
	// but are irrelevant here: any ID other than the two above is simply
	// "not a candidate" to the tracker.
	IDOpaquePointer
)

// StorageSpec mirrors MVMStorageSpec: how a representation boxes a flat
// primitive, consulted by flattened_type_to_register_kind.
type StorageSpec struct {
	// BoxedPrimitive is one of the BoxedPrimitive* constants below, or
	// BoxedPrimitiveNone if this type does not box a flat primitive at
	// all (i.e. is itself a reference type).
	BoxedPrimitive int
	Bits           int
	IsUnsigned     bool
}

const (
	BoxedPrimitiveNone = iota
	// BoxedPrimitiveInt mirrors MVM_STORAGE_SPEC_BP_INT.
	BoxedPrimitiveInt
	// BoxedPrimitiveNum mirrors MVM_STORAGE_SPEC_BP_NUM.
	BoxedPrimitiveNum
	// BoxedPrimitiveStr mirrors MVM_STORAGE_SPEC_BP_STR.
	BoxedPrimitiveStr
)

// Type is the capability-query surface on a type/STable descriptor (§9's
// "vtable-like probe"): every query the tracker needs, and nothing else.
// A concrete demo/test type is TypeDesc.
type Type interface {
	// ReprID returns this type's representation ID.
	ReprID() ID
	// Name is used only for diagnostic logging.
	Name() string
	// StorageSpec returns how this type boxes a flat primitive, mirroring
	// REPR->get_storage_spec. Meaningless (BoxedPrimitiveNone) unless
	// ReprID is itself a boxing representation.
	StorageSpec() StorageSpec
	// P6opaque returns this type's attribute layout and true if it
	// exposes a P6opaque-shaped attribute layout (ReprID == IDP6opaque),
	// or the zero value and false otherwise.
	P6opaque() (layout P6opaqueLayout, ok bool)
}
