package rc

import (
	"errors"
	"fmt"
)

// ErrorCode classifies reference counting failures.
type ErrorCode int

const (
	ErrorHeapLimit       ErrorCode = iota // allocation would exceed max_heap_size
	ErrorStrongUnderflow                  // strong count released below zero
	ErrorWeakUnderflow                    // weak count released below zero
	ErrorUseAfterFree                     // handle touched a released record
	ErrorForeignRecord                    // trace reported a record this collector does not own
)

// String returns string representation of error code
func (ec ErrorCode) String() string {
	switch ec {
	case ErrorHeapLimit:
		return "HeapLimit"
	case ErrorStrongUnderflow:
		return "StrongUnderflow"
	case ErrorWeakUnderflow:
		return "WeakUnderflow"
	case ErrorUseAfterFree:
		return "UseAfterFree"
	case ErrorForeignRecord:
		return "ForeignRecord"
	default:
		return "Unknown"
	}
}

// ErrAllocationFailure matches every *AllocationError through errors.Is.
var ErrAllocationFailure = errors.New("rc: allocation failure")

// AllocationError is returned when a new record cannot be created.
// The executor surfaces it as a language-level out-of-memory condition.
type AllocationError struct {
	Code     ErrorCode
	TypeName string
	Size     uintptr
	InUse    uint64
	Limit    uint64
}

func (ae *AllocationError) Error() string {
	return fmt.Sprintf("AllocationError[%s]: cannot allocate %d bytes for %s (in use=%d, limit=%d)",
		ae.Code, ae.Size, ae.TypeName, ae.InUse, ae.Limit)
}

// Is reports whether target is ErrAllocationFailure.
func (ae *AllocationError) Is(target error) bool {
	return target == ErrAllocationFailure
}

// InconsistencyError describes a broken reference counting invariant.
// It is only ever raised through panic.
type InconsistencyError struct {
	Code     ErrorCode
	TypeName string
	Strong   int64
	Weak     int64
}

func (ie *InconsistencyError) Error() string {
	return fmt.Sprintf("rc: internal inconsistency [%s] on %s (strong=%d, weak=%d)",
		ie.Code, ie.TypeName, ie.Strong, ie.Weak)
}

func inconsistent(code ErrorCode, r *record) {
	panic(&InconsistencyError{Code: code, TypeName: r.typeName, Strong: r.strong, Weak: r.weak})
}
