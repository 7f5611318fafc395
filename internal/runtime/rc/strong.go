package rc

import (
	"reflect"
	"unsafe"
)

// recordOverhead is charged to the tracker for every record on top of
// the value itself.
const recordOverhead = unsafe.Sizeof(record{})

// Strong is an owning handle to a value managed by a Collector.
// The zero value is an empty handle. Copying a Strong by assignment does
// not create a new reference; use Clone.
type Strong[T any] struct {
	rec *record
	ptr *T
}

// New moves v into a fresh record with one strong reference.
func New[T any](c *Collector, v T) (Strong[T], error) {
	p := new(T)
	*p = v

	size := unsafe.Sizeof(v) + recordOverhead
	if s, ok := any(p).(Sizer); ok {
		size += s.HeapSize()
	}
	_, traceable := any(p).(Tracer)

	r, err := c.allocate(p, size, reflect.TypeFor[T]().String(), !traceable)
	if err != nil {
		return Strong[T]{}, err
	}
	return Strong[T]{rec: r, ptr: p}, nil
}

// Get returns a pointer to the value, or nil for an empty handle.
func (s *Strong[T]) Get() *T {
	if s.rec == nil {
		return nil
	}
	if s.rec.dead {
		inconsistent(ErrorUseAfterFree, s.rec)
	}
	return s.ptr
}

// IsNil reports whether the handle is empty.
func (s *Strong[T]) IsNil() bool { return s.rec == nil }

// Clone returns a new strong reference to the same value.
func (s *Strong[T]) Clone() Strong[T] {
	if s.rec == nil {
		return Strong[T]{}
	}
	if s.rec.dead {
		inconsistent(ErrorUseAfterFree, s.rec)
	}
	s.rec.strong++
	return Strong[T]{rec: s.rec, ptr: s.ptr}
}

// Release gives up this reference and empties the handle. When it was the
// last strong reference the value is dropped immediately, together with
// everything only it kept alive. Releasing an empty handle does nothing.
func (s *Strong[T]) Release() {
	r := s.rec
	if r == nil {
		return
	}
	s.rec, s.ptr = nil, nil
	r.owner.release(r)
}

// Downgrade returns a weak reference to the value.
func (s *Strong[T]) Downgrade() Weak[T] {
	if s.rec == nil {
		return Weak[T]{}
	}
	if s.rec.dead {
		inconsistent(ErrorUseAfterFree, s.rec)
	}
	s.rec.weak++
	return Weak[T]{rec: s.rec}
}

// StrongCount returns the number of live strong references.
func (s *Strong[T]) StrongCount() int64 {
	if s.rec == nil {
		return 0
	}
	return s.rec.strong
}

// WeakCount returns the number of live weak references.
func (s *Strong[T]) WeakCount() int64 {
	if s.rec == nil {
		return 0
	}
	return s.rec.weak
}

// Same reports whether both handles refer to the same record.
func (s *Strong[T]) Same(other Ref) bool {
	if s.rec == nil || other == nil {
		return false
	}
	return other.ref() == s.rec
}

func (s *Strong[T]) ref() *record { return s.rec }

func (s *Strong[T]) detach() *record {
	r := s.rec
	s.rec, s.ptr = nil, nil
	return r
}
