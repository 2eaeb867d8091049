// Package iteration provides the closeable pull cursor used by the store
// and by the query operators.
//
// An Iteration is consumed with HasNext/Next and released with Close.
// Close is idempotent and may be called at any point, including after
// exhaustion or after a failure. A failure closes the iteration and is
// reported again by every later HasNext or Next.
package iteration

import (
	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// Iteration is a pull cursor over values of type T.
type Iteration[T any] interface {
	// HasNext reports whether Next will return a value.
	HasNext() (bool, error)
	// Next returns the next value. Past the end it returns an
	// ErrNoSuchElement error.
	Next() (T, error)
	// Close releases the resources held by the iteration.
	Close() error
}

// ErrExhausted builds the error Next returns past the end.
func ErrExhausted() error {
	return errors.New(errors.ErrNoSuchElement, "iteration has no more elements")
}

// LookAhead implements Iteration on top of a fetch function that returns
// the next element, or ok=false at the end. onClose runs exactly once.
type LookAhead[T any] struct {
	fetch   func() (T, bool, error)
	onClose func() error

	next     T
	buffered bool
	done     bool
	closed   bool
	err      error
}

// NewLookAhead returns a LookAhead over fetch. onClose may be nil.
func NewLookAhead[T any](fetch func() (T, bool, error), onClose func() error) *LookAhead[T] {
	return &LookAhead[T]{fetch: fetch, onClose: onClose}
}

func (l *LookAhead[T]) HasNext() (bool, error) {
	if l.err != nil {
		return false, l.err
	}
	if l.buffered {
		return true, nil
	}
	if l.done || l.closed {
		return false, nil
	}

	v, ok, err := l.fetch()
	if err != nil {
		l.err = err
		_ = l.Close()
		return false, err
	}
	if !ok {
		l.done = true
		if err := l.Close(); err != nil {
			l.err = err
			return false, err
		}
		return false, nil
	}
	l.next, l.buffered = v, true
	return true, nil
}

func (l *LookAhead[T]) Next() (T, error) {
	var zero T
	ok, err := l.HasNext()
	if err != nil {
		return zero, err
	}
	if !ok {
		return zero, ErrExhausted()
	}
	v := l.next
	l.next, l.buffered = zero, false
	return v, nil
}

func (l *LookAhead[T]) Close() error {
	if l.closed {
		return nil
	}
	l.closed = true
	var zero T
	l.next, l.buffered = zero, false
	if l.onClose != nil {
		return l.onClose()
	}
	return nil
}

// Closed reports whether Close has run.
func (l *LookAhead[T]) Closed() bool {
	return l.closed
}

// Empty returns an iteration without elements.
func Empty[T any]() Iteration[T] {
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		return zero, false, nil
	}, nil)
}

// FromSlice iterates over items.
func FromSlice[T any](items []T) Iteration[T] {
	i := 0
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		if i >= len(items) {
			return zero, false, nil
		}
		v := items[i]
		i++
		return v, true, nil
	}, nil)
}

// Single iterates over one element.
func Single[T any](v T) Iteration[T] {
	return FromSlice([]T{v})
}

// Failed returns an iteration whose first HasNext reports err.
func Failed[T any](err error) Iteration[T] {
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		return zero, false, err
	}, nil)
}

// Collect drains it into a slice and closes it.
func Collect[T any](it Iteration[T]) ([]T, error) {
	var out []T
	for {
		ok, err := it.HasNext()
		if err != nil {
			_ = it.Close()
			return out, err
		}
		if !ok {
			break
		}
		v, err := it.Next()
		if err != nil {
			_ = it.Close()
			return out, err
		}
		out = append(out, v)
	}
	return out, it.Close()
}

// Count drains it and returns the number of elements.
func Count[T any](it Iteration[T]) (int, error) {
	n := 0
	err := ForEach(it, func(T) error {
		n++
		return nil
	})
	return n, err
}

// ForEach calls fn for every element and closes it. A non-nil error from
// fn stops the walk and is returned.
func ForEach[T any](it Iteration[T], fn func(T) error) error {
	defer func() { _ = it.Close() }()
	for {
		ok, err := it.HasNext()
		if err != nil {
			return err
		}
		if !ok {
			return it.Close()
		}
		v, err := it.Next()
		if err != nil {
			return err
		}
		if err := fn(v); err != nil {
			return err
		}
	}
}

// CloseAll closes every iteration and returns the first error.
func CloseAll(closers ...interface{ Close() error }) error {
	var first error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
