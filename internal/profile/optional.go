package profile

import "fmt"

// Optional is a value that may be missing from a snapshot.
type Optional[T any] struct {
	value T
	ok    bool
}

// Some wraps a present value.
func Some[T any](v T) Optional[T] {
	return Optional[T]{value: v, ok: true}
}

// None returns a missing value.
func None[T any]() Optional[T] {
	return Optional[T]{}
}

// NonEmpty returns None for the empty string.
func NonEmpty(s string) Optional[string] {
	if s == "" {
		return None[string]()
	}
	return Some(s)
}

// Get returns the value and whether it is present.
func (o Optional[T]) Get() (T, bool) {
	return o.value, o.ok
}

// IsPresent reports whether a value is held.
func (o Optional[T]) IsPresent() bool {
	return o.ok
}

// OrZero returns the value or the zero value of T.
func (o Optional[T]) OrZero() T {
	return o.value
}

func (o Optional[T]) String() string {
	if !o.ok {
		return "<none>"
	}
	return fmt.Sprint(o.value)
}

// FieldState tells whether a baseline field was ever observed, and if so
// whether the contact had a value for it.
type FieldState uint8

const (
	// StateUnrecorded means the field was never checked.
	StateUnrecorded FieldState = iota
	// StateAbsent means the field was checked and the contact has no value.
	StateAbsent
	// StatePresent means the field was checked and holds a value.
	StatePresent
)

func (s FieldState) String() string {
	switch s {
	case StateUnrecorded:
		return "unrecorded"
	case StateAbsent:
		return "absent"
	case StatePresent:
		return "present"
	default:
		return fmt.Sprintf("FieldState(%d)", uint8(s))
	}
}

// ParseFieldState is the inverse of FieldState.String.
func ParseFieldState(s string) (FieldState, error) {
	switch s {
	case "unrecorded", "":
		return StateUnrecorded, nil
	case "absent":
		return StateAbsent, nil
	case "present":
		return StatePresent, nil
	default:
		return StateUnrecorded, fmt.Errorf("unknown field state %q", s)
	}
}

// Field is a persisted baseline value. The zero Field is unrecorded.
type Field[T any] struct {
	State FieldState
	Value T
}

// Unrecorded returns a field that was never checked.
func Unrecorded[T any]() Field[T] {
	return Field[T]{State: StateUnrecorded}
}

// Absent returns a field known to have no value.
func Absent[T any]() Field[T] {
	return Field[T]{State: StateAbsent}
}

// Present returns a field holding v.
func Present[T any](v T) Field[T] {
	return Field[T]{State: StatePresent, Value: v}
}

// FieldOf converts a fresh observation into a baseline field.
func FieldOf[T any](o Optional[T]) Field[T] {
	if v, ok := o.Get(); ok {
		return Present(v)
	}
	return Absent[T]()
}

// Get returns the value when the field is present.
func (f Field[T]) Get() (T, bool) {
	return f.Value, f.State == StatePresent
}

// Recorded reports whether the field was ever checked.
func (f Field[T]) Recorded() bool {
	return f.State != StateUnrecorded
}
