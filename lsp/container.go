package lsp

import (
	"bytes"
	"encoding/json"
)

// Container holds one-or-many values of T. The wire form depends only on
// cardinality: exactly one item encodes as the bare value, any other count
// encodes as an array. Decoding accepts either shape.
//
// NewContainer(x), NewContainer(xs...) and ContainerFrom(xs) are therefore
// interchangeable whenever they hold the same items.
type Container[T any] struct {
	items []T
}

// NewContainer builds a Container from a single value or from varargs.
func NewContainer[T any](items ...T) Container[T] {
	return ContainerFrom(items)
}

// ContainerFrom builds a Container from an ordered sequence. The slice is
// copied.
func ContainerFrom[T any](items []T) Container[T] {
	if len(items) == 0 {
		return Container[T]{}
	}
	out := make([]T, len(items))
	copy(out, items)
	return Container[T]{items: out}
}

// Items returns a copy of the contained values in order.
func (c Container[T]) Items() []T {
	out := make([]T, len(c.items))
	copy(out, c.items)
	return out
}

// Len reports the number of contained values.
func (c Container[T]) Len() int { return len(c.items) }

// IsZero reports whether the container is empty. It lets `omitzero` drop
// empty containers from the wire form.
func (c Container[T]) IsZero() bool { return len(c.items) == 0 }

// MarshalJSON implements json.Marshaler.
func (c Container[T]) MarshalJSON() ([]byte, error) {
	if len(c.items) == 1 {
		return json.Marshal(c.items[0])
	}
	if c.items == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(c.items)
}

// UnmarshalJSON implements json.Unmarshaler.
func (c *Container[T]) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if bytes.Equal(trimmed, []byte("null")) {
		c.items = nil
		return nil
	}
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var items []T
		if err := json.Unmarshal(trimmed, &items); err != nil {
			return err
		}
		if len(items) == 0 {
			items = nil
		}
		c.items = items
		return nil
	}
	var item T
	if err := json.Unmarshal(trimmed, &item); err != nil {
		return err
	}
	c.items = []T{item}
	return nil
}
