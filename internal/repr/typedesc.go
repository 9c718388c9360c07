package repr

// TypeDesc is a concrete, in-memory Type, standing in for an STable: the
// constant-pool slot value this module's scenario builders and
// cmd/peacheck's demo graphs hand to graph.Instruction.AsFastcreate /
// AsGuardconc as the TypeSlot operand's referent.
type TypeDesc struct {
	name    string
	reprID  ID
	spec    StorageSpec
	layout  P6opaqueLayout
	hasOpq  bool
}

// NewP6opaqueType builds a Type exposing the given P6opaque attribute
// layout, the shape try_track (§4.2) consumes.
func NewP6opaqueType(name string, layout P6opaqueLayout) *TypeDesc {
	return &TypeDesc{name: name, reprID: IDP6opaque, layout: layout, hasOpq: true}
}

// NewBoxType builds a Type that boxes a flat primitive but exposes no
// P6opaque layout (e.g. a plain Int/Num/Str box) — not a candidate for
// try_track (the "not a candidate" row of §7).
func NewBoxType(name string, spec StorageSpec) *TypeDesc {
	return &TypeDesc{name: name, reprID: IDOpaquePointer, spec: spec}
}

func (t *TypeDesc) ReprID() ID     { return t.reprID }
func (t *TypeDesc) Name() string   { return t.name }
func (t *TypeDesc) StorageSpec() StorageSpec { return t.spec }

func (t *TypeDesc) P6opaque() (P6opaqueLayout, bool) {
	if !t.hasOpq {
		return P6opaqueLayout{}, false
	}
	return t.layout, true
}
