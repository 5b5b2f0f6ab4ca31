// Package patch models partial-update request bodies.
package patch

import "encoding/json"

// Field distinguishes a member that was absent from the JSON body from one
// that was sent, including an explicit null. Use a pointer or money.Price
// as T when null must clear the stored value.
type Field[T any] struct {
	Set   bool
	Value T
}

func Some[T any](v T) Field[T] {
	return Field[T]{Set: true, Value: v}
}

func (f *Field[T]) UnmarshalJSON(b []byte) error {
	f.Set = true
	return json.Unmarshal(b, &f.Value)
}

func (f Field[T]) MarshalJSON() ([]byte, error) {
	return json.Marshal(f.Value)
}

// IsZero lets `json:",omitzero"` drop unset fields when encoding.
func (f Field[T]) IsZero() bool {
	return !f.Set
}

// Apply copies the value into dst when the field was sent.
func (f Field[T]) Apply(dst *T) bool {
	if f.Set {
		*dst = f.Value
	}
	return f.Set
}
