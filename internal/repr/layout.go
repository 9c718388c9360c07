package repr

// FlatKind is the per-attribute storage kind a P6opaque layout exposes for
// one attribute slot, mirroring what flattened_type_to_register_kind
// computes from a flattened STable (or lack of one): a non-flattened
// attribute (FlatNone) is a plain reference.
type FlatKind byte

const (
	// FlatNone means this attribute holds a reference (it has no
	// flattened STable), the pea.c "default: return MVM_REG_OBJ" case.
	FlatNone FlatKind = iota
	// FlatInt64 is a flattened 64-bit signed integer attribute.
	FlatInt64
	// FlatNum64 is a flattened 64-bit floating point attribute.
	FlatNum64
	// FlatStr is a flattened string attribute.
	FlatStr
	// FlatBigint is a flattened P6bigint attribute, the special
	// reference-to-bigint register kind (MVM_REPR_ID_P6bigint case of
	// flattened_type_to_register_kind, checked before the storage spec).
	FlatBigint
	// FlatUnsupported is a flattened attribute whose storage-spec bit
	// width isn't one this pass can hold in a register (pea.c's
	// "default: return -1" cases inside the int/num/str switches).
	// try_track must refuse the whole allocation if any attribute comes
	// back with this kind.
	FlatUnsupported
)

// AttributeSlot is one entry of a P6opaqueLayout: the byte offset of the
// attribute within the object and the register kind it flattens to.
type AttributeSlot struct {
	Offset uint32
	Flat   FlatKind
}

// P6opaqueLayout is the capability P6opaqueREPRData exposes: attribute
// count, per-attribute flattened kind and offset, offset-to-index lookup,
// and (if present) the offset of the bigint attribute.
type P6opaqueLayout struct {
	attrs        []AttributeSlot
	offsetIndex  map[uint32]int
	bigintOffset int64 // -1 if this type has no bigint attribute
	// integerCache marks a type the host's boxed-integer allocation
	// cache special-cases (pea.c's apply_transform MATERIALIZE case,
	// "materialize_bi" path) — only meaningful when NumAttributes() == 1
	// and that attribute is FlatBigint.
	integerCache bool
}

// NewP6opaqueLayout builds a layout from its attribute slots, in
// declaration order (matching repr_data->attribute_offsets' indexing).
func NewP6opaqueLayout(attrs []AttributeSlot, integerCache bool) P6opaqueLayout {
	l := P6opaqueLayout{
		attrs:        attrs,
		offsetIndex:  make(map[uint32]int, len(attrs)),
		bigintOffset: -1,
		integerCache: integerCache,
	}
	for i, a := range attrs {
		l.offsetIndex[a.Offset] = i
		if a.Flat == FlatBigint {
			l.bigintOffset = int64(a.Offset)
		}
	}
	return l
}

// NumAttributes mirrors repr_data->num_attributes.
func (l P6opaqueLayout) NumAttributes() int { return len(l.attrs) }

// Attribute returns the i'th attribute slot.
func (l P6opaqueLayout) Attribute(i int) AttributeSlot { return l.attrs[i] }

// AttributeOffsets mirrors repr_data->attribute_offsets[].
func (l P6opaqueLayout) AttributeOffsets() []uint32 {
	offs := make([]uint32, len(l.attrs))
	for i, a := range l.attrs {
		offs[i] = a.Offset
	}
	return offs
}

// OffsetToAttributeIndex mirrors offset_to_attribute_index(offset).
func (l P6opaqueLayout) OffsetToAttributeIndex(offset uint32) (int, bool) {
	i, ok := l.offsetIndex[offset]
	return i, ok
}

// BigintOffset mirrors MVM_p6opaque_get_bigint_offset: the offset of this
// type's bigint attribute, if it has one (the last one when there are
// several).
func (l P6opaqueLayout) BigintOffset() (uint32, bool) {
	if l.bigintOffset < 0 {
		return 0, false
	}
	return uint32(l.bigintOffset), true
}

// SingleAttributeBigintCache reports whether this layout is a one-attribute
// bigint box registered in the host's boxed-integer cache: the condition
// the rewriter's MATERIALIZE case checks before choosing the cache-aware
// materialize_bi opcode over a fastcreate-then-bindattr sequence (§4.7).
func (l P6opaqueLayout) SingleAttributeBigintCache() bool {
	return l.integerCache && len(l.attrs) == 1 && l.attrs[0].Flat == FlatBigint
}
