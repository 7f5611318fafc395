// Package rc implements reference counted ownership for the Orizon runtime.
// Strong handles release their value the moment the last one goes away;
// reference cycles that plain counting cannot free are reclaimed by a
// synchronous trial-deletion pass run by Collector.
//
// Nothing in this package is safe for concurrent use. Handles, records and
// the collector belong to the goroutine running the interpreter.
package rc

// Color is the collector's classification of a record during a pass.
type Color uint8

const (
	Black  Color = iota // in use or free
	Gray                // possible member of a garbage cycle
	White               // member of a garbage cycle
	Purple              // possible root of a garbage cycle
)

// String returns string representation of color
func (c Color) String() string {
	switch c {
	case Black:
		return "black"
	case Gray:
		return "gray"
	case White:
		return "white"
	case Purple:
		return "purple"
	default:
		return "unknown"
	}
}

// Tracer is implemented by values that own strong references.
// Trace must call visit once for every owned *Strong field, in the same
// order every time. Weak handles are not visited.
type Tracer interface {
	Trace(visit func(Ref))
}

// Dropper is implemented by values that need to run code when their last
// strong reference is released. Drop must not release handles it reports
// through Trace; the runtime does that after Drop returns.
type Dropper interface {
	Drop()
}

// Sizer lets a value report its heap footprint beyond its static size.
type Sizer interface {
	HeapSize() uintptr
}

// Ref is the type-erased view of a *Strong handle passed to Tracer.
type Ref interface {
	ref() *record
	detach() *record
}

// record is the heap cell behind every handle.
type record struct {
	value    any // *T while strong > 0
	owner    *Collector
	typeName string
	size     uintptr

	strong int64
	weak   int64

	color    Color
	buffered bool
	leaf     bool // value cannot own strong references
	dead     bool // value dropped
	freed    bool // record released

	survived uint32 // passes this record was examined as a root and found live
	suspect  bool
}

// children calls fn for each record the value directly owns.
func (r *record) children(fn func(*record)) {
	if r.leaf || r.value == nil {
		return
	}
	t, ok := r.value.(Tracer)
	if !ok {
		return
	}
	t.Trace(func(ref Ref) {
		if ref == nil {
			return
		}
		child := ref.ref()
		if child == nil {
			return
		}
		if child.owner != r.owner {
			inconsistent(ErrorForeignRecord, child)
		}
		if child.dead {
			inconsistent(ErrorUseAfterFree, child)
		}
		fn(child)
	})
}

// detachChildren empties every strong field of the value and returns the
// records they pointed to.
func (r *record) detachChildren(out []*record) []*record {
	if r.leaf || r.value == nil {
		return out
	}
	t, ok := r.value.(Tracer)
	if !ok {
		return out
	}
	t.Trace(func(ref Ref) {
		if ref == nil {
			return
		}
		if child := ref.detach(); child != nil {
			out = append(out, child)
		}
	})
	return out
}

// dropValue runs the destructor hook and marks the value dropped.
func (r *record) dropValue() {
	if d, ok := r.value.(Dropper); ok {
		d.Drop()
	}
	r.dead = true
}
