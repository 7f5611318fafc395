package rc

// Weak observes a value without keeping it alive. It only holds the
// record's bookkeeping in place until the last weak reference goes away.
type Weak[T any] struct {
	rec *record
}

// IsNil reports whether the handle is empty.
func (w *Weak[T]) IsNil() bool { return w.rec == nil }

// Clone returns another weak reference to the same record.
func (w *Weak[T]) Clone() Weak[T] {
	if w.rec == nil {
		return Weak[T]{}
	}
	if w.rec.freed {
		inconsistent(ErrorUseAfterFree, w.rec)
	}
	w.rec.weak++
	return Weak[T]{rec: w.rec}
}

// Upgrade returns a new strong reference, or false once the value has been
// dropped.
func (w *Weak[T]) Upgrade() (Strong[T], bool) {
	r := w.rec
	if r == nil || r.strong == 0 {
		return Strong[T]{}, false
	}
	r.strong++
	return Strong[T]{rec: r, ptr: r.value.(*T)}, true
}

// Alive reports whether the value has not been dropped yet.
func (w *Weak[T]) Alive() bool {
	return w.rec != nil && w.rec.strong > 0
}

// Release gives up this weak reference and empties the handle.
func (w *Weak[T]) Release() {
	r := w.rec
	if r == nil {
		return
	}
	w.rec = nil
	if r.weak <= 0 {
		inconsistent(ErrorWeakUnderflow, r)
	}
	r.weak--
	// A record whose strong count is zero but whose value is still set is a
	// cycle member being reclaimed; CollectWhite frees it.
	if r.weak == 0 && r.dead {
		r.owner.free(r)
	}
}
