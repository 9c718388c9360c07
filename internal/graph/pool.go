package graph

// Pool is a page-based free-list allocator for T, ported from
// wazevoapi.Pool. The PEA core never calls this directly; Builder uses it to
// allocate Instruction and basicBlock values without a separate GC'd object
// per node.
type Pool[T any] struct {
	pages       [][]T
	resetFn     func(*T)
	pageSize    int
	allocated   int
	view        []T
}

const poolPageSize = 128

// NewPool creates a new Pool. resetFn, if non-nil, is called on every value
// handed out by Allocate before it is reused from a recycled slot.
func NewPool[T any](resetFn func(*T)) Pool[T] {
	return Pool[T]{resetFn: resetFn, pageSize: poolPageSize}
}

// Allocate returns a pointer to a fresh (or recycled-and-reset) T.
func (p *Pool[T]) Allocate() *T {
	if len(p.view) == 0 {
		p.pages = append(p.pages, make([]T, p.pageSize))
		p.view = p.pages[len(p.pages)-1]
	}
	ret := &p.view[0]
	p.view = p.view[1:]
	p.allocated++
	if p.resetFn != nil {
		p.resetFn(ret)
	}
	return ret
}

// Reset releases all allocations so the backing pages can be handed out
// again on the next Allocate, mirroring wazevoapi.Pool.Reset.
func (p *Pool[T]) Reset() {
	p.allocated = 0
	var flat []T
	for _, page := range p.pages {
		if p.resetFn != nil {
			for i := range page {
				p.resetFn(&page[i])
			}
		}
		flat = append(flat, page...)
	}
	if flat != nil {
		p.pages = [][]T{flat}
		p.view = flat
	}
}

// Allocated returns the number of live allocations since the last Reset.
func (p *Pool[T]) Allocated() int { return p.allocated }
