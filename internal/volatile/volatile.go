package volatile

import (
	"sync/atomic"
)

// Value is a typed box around sync/atomic.Value for values that are read
// and replaced from different goroutines.
type Value[T any] struct {
	inner atomic.Value
}

func NewValue[T any](initial T) *Value[T] {
	value := &Value[T]{}
	value.inner.Store(initial)
	return value
}

func (value *Value[T]) Load() T {
	return value.inner.Load().(T)
}

func (value *Value[T]) Store(v T) {
	value.inner.Store(v)
}
