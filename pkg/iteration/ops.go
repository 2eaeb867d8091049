package iteration

// Pull takes one element from src. It is the fetch step of an iteration
// layered over src.
func Pull[T any](src Iteration[T]) (T, bool, error) {
	var zero T
	ok, err := src.HasNext()
	if err != nil || !ok {
		return zero, false, err
	}
	v, err := src.Next()
	if err != nil {
		return zero, false, err
	}
	return v, true, nil
}

// Convert maps every element of src through fn. A failure in fn ends the
// iteration with that error.
func Convert[S, T any](src Iteration[S], fn func(S) (T, error)) Iteration[T] {
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		v, ok, err := Pull(src)
		if err != nil || !ok {
			return zero, false, err
		}
		out, err := fn(v)
		if err != nil {
			return zero, false, err
		}
		return out, true, nil
	}, src.Close)
}

// Filter keeps the elements of src for which accept returns true.
func Filter[T any](src Iteration[T], accept func(T) (bool, error)) Iteration[T] {
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		for {
			v, ok, err := Pull(src)
			if err != nil || !ok {
				return zero, false, err
			}
			keep, err := accept(v)
			if err != nil {
				return zero, false, err
			}
			if keep {
				return v, true, nil
			}
		}
	}, src.Close)
}

// Concat returns the elements of every iteration in order, without
// removing duplicates. Each input is closed as soon as it is exhausted;
// the rest are closed by Close.
func Concat[T any](iters ...Iteration[T]) Iteration[T] {
	i := 0
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		for i < len(iters) {
			v, ok, err := Pull(iters[i])
			if err != nil {
				return zero, false, err
			}
			if ok {
				return v, true, nil
			}
			if err := iters[i].Close(); err != nil {
				return zero, false, err
			}
			i++
		}
		return zero, false, nil
	}, func() error {
		var first error
		for ; i < len(iters); i++ {
			if err := iters[i].Close(); err != nil && first == nil {
				first = err
			}
		}
		return first
	})
}

// Slice skips offset elements and then returns at most limit elements.
// A negative limit means no limit. The source is closed once the limit is
// reached.
func Slice[T any](src Iteration[T], offset, limit int64) Iteration[T] {
	var skipped, returned int64
	return NewLookAhead(func() (T, bool, error) {
		var zero T
		if limit >= 0 && returned >= limit {
			return zero, false, nil
		}
		for skipped < offset {
			_, ok, err := Pull(src)
			if err != nil || !ok {
				return zero, false, err
			}
			skipped++
		}
		v, ok, err := Pull(src)
		if err != nil || !ok {
			return zero, false, err
		}
		returned++
		return v, true, nil
	}, src.Close)
}

// Distinct removes elements whose key was seen before. The set of keys
// grows with the number of distinct elements.
func Distinct[T any, K comparable](src Iteration[T], key func(T) K) Iteration[T] {
	seen := make(map[K]struct{})
	return Filter(src, func(v T) (bool, error) {
		k := key(v)
		if _, ok := seen[k]; ok {
			return false, nil
		}
		seen[k] = struct{}{}
		return true, nil
	})
}

// OnClose runs fn after src is closed.
func OnClose[T any](src Iteration[T], fn func()) Iteration[T] {
	return NewLookAhead(func() (T, bool, error) {
		return Pull(src)
	}, func() error {
		err := src.Close()
		fn()
		return err
	})
}
