package iteration

import (
	"fmt"
	"io"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/ansell/openrdf-sesame-sub028/pkg/errors"
)

// countingSource is a slice iteration that records how often it was
// closed and how many elements were pulled.
type countingSource struct {
	*LookAhead[int]
	closes int
	pulled int
}

func newCountingSource(items ...int) *countingSource {
	c := &countingSource{}
	i := 0
	c.LookAhead = NewLookAhead(func() (int, bool, error) {
		if i >= len(items) {
			return 0, false, nil
		}
		c.pulled++
		i++
		return items[i-1], true, nil
	}, func() error {
		c.closes++
		return nil
	})
	return c
}

func TestLookAhead_Protocol(t *testing.T) {
	src := newCountingSource(1, 2)

	for _, want := range []int{1, 2} {
		ok, err := src.HasNext()
		if err != nil || !ok {
			t.Fatalf("HasNext = %v, %v", ok, err)
		}
		// HasNext is idempotent.
		if ok, _ := src.HasNext(); !ok {
			t.Fatal("second HasNext lost the buffered element")
		}
		got, err := src.Next()
		if err != nil || got != want {
			t.Fatalf("Next = %v, %v; want %v", got, err, want)
		}
	}

	if ok, err := src.HasNext(); ok || err != nil {
		t.Fatalf("expected exhaustion, got %v, %v", ok, err)
	}
	if _, err := src.Next(); !errors.Is(err, errors.ErrNoSuchElement) {
		t.Fatalf("expected no such element, got %v", err)
	}
	if src.closes != 1 {
		t.Errorf("exhaustion should close the source once, got %d", src.closes)
	}
	if err := src.Close(); err != nil {
		t.Fatal(err)
	}
	if src.closes != 1 {
		t.Errorf("Close must be idempotent, got %d closes", src.closes)
	}
}

func TestLookAhead_ErrorClosesAndSticks(t *testing.T) {
	closes := 0
	calls := 0
	it := NewLookAhead(func() (int, bool, error) {
		calls++
		return 0, false, io.ErrUnexpectedEOF
	}, func() error {
		closes++
		return nil
	})

	if _, err := it.HasNext(); err != io.ErrUnexpectedEOF {
		t.Fatalf("expected fetch error, got %v", err)
	}
	if _, err := it.Next(); err != io.ErrUnexpectedEOF {
		t.Fatalf("error should be reported again, got %v", err)
	}
	if calls != 1 {
		t.Errorf("fetch should not run after a failure, ran %d times", calls)
	}
	if closes != 1 {
		t.Errorf("failure should close once, got %d", closes)
	}
}

func TestCloseUnread(t *testing.T) {
	src := newCountingSource(1, 2, 3)
	it := Filter[int](src, func(int) (bool, error) { return true, nil })
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if src.closes != 1 {
		t.Errorf("closing an unread iteration must close its source")
	}
	if src.pulled != 0 {
		t.Errorf("nothing should be pulled, got %d", src.pulled)
	}
	if ok, _ := it.HasNext(); ok {
		t.Error("closed iteration should report no elements")
	}
}

func TestOperators(t *testing.T) {
	tests := []struct {
		name string
		it   Iteration[int]
		want []int
	}{
		{"empty", Empty[int](), nil},
		{"single", Single(7), []int{7}},
		{"filter", Filter(FromSlice([]int{1, 2, 3, 4}), func(v int) (bool, error) { return v%2 == 0, nil }), []int{2, 4}},
		{"concat", Concat(FromSlice([]int{1, 2}), Empty[int](), FromSlice([]int{2, 3})), []int{1, 2, 2, 3}},
		{"slice", Slice(FromSlice([]int{1, 2, 3, 4, 5}), 1, 2), []int{2, 3}},
		{"slice no limit", Slice(FromSlice([]int{1, 2, 3}), 2, -1), []int{3}},
		{"slice past end", Slice(FromSlice([]int{1, 2}), 5, 1), nil},
		{"distinct", Distinct(FromSlice([]int{3, 1, 3, 2, 1}), func(v int) int { return v }), []int{3, 1, 2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Collect(tt.it)
			if err != nil {
				t.Fatal(err)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestConvert_Error(t *testing.T) {
	src := newCountingSource(1, 2, 3)
	it := Convert[int, string](src, func(v int) (string, error) {
		if v == 2 {
			return "", fmt.Errorf("bad value %d", v)
		}
		return fmt.Sprint(v), nil
	})
	got, err := Collect(it)
	if err == nil {
		t.Fatal("expected conversion error")
	}
	if diff := cmp.Diff([]string{"1"}, got); diff != "" {
		t.Errorf("mismatch (-want +got):\n%s", diff)
	}
	if src.closes != 1 {
		t.Errorf("failure should close the source, got %d", src.closes)
	}
}

func TestSlice_ClosesSourceAtLimit(t *testing.T) {
	src := newCountingSource(1, 2, 3, 4)
	got, err := Collect(Slice[int](src, 0, 2))
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 2 || src.pulled != 2 {
		t.Errorf("got %v after pulling %d", got, src.pulled)
	}
	if src.closes != 1 {
		t.Errorf("source should be closed")
	}
}

func TestConcat_ClosesRemaining(t *testing.T) {
	a := newCountingSource(1)
	b := newCountingSource(2)
	it := Concat[int](a, b)
	if _, err := it.Next(); err != nil {
		t.Fatal(err)
	}
	if err := it.Close(); err != nil {
		t.Fatal(err)
	}
	if a.closes != 1 || b.closes != 1 {
		t.Errorf("closes: a=%d b=%d", a.closes, b.closes)
	}
}

func TestTracker(t *testing.T) {
	tr := NewTracker()
	a := newCountingSource(1, 2)
	b := newCountingSource(3)

	ta := Track[int](tr, a)
	tb := Track[int](tr, b)
	if tr.Len() != 2 {
		t.Fatalf("expected 2 tracked, got %d", tr.Len())
	}

	if _, err := Collect(tb); err != nil {
		t.Fatal(err)
	}
	if tr.Len() != 1 {
		t.Fatalf("exhausted iteration should be released, got %d", tr.Len())
	}

	if err := tr.CloseAll(); err != nil {
		t.Fatal(err)
	}
	if a.closes != 1 || tr.Len() != 0 {
		t.Errorf("CloseAll should close open iterations: closes=%d open=%d", a.closes, tr.Len())
	}
	if ok, _ := ta.HasNext(); ok {
		t.Error("closed tracked iteration should be empty")
	}
}

func TestForEach_StopsOnError(t *testing.T) {
	src := newCountingSource(1, 2, 3)
	stop := fmt.Errorf("stop")
	err := ForEach[int](src, func(v int) error {
		if v == 2 {
			return stop
		}
		return nil
	})
	if err != stop {
		t.Fatalf("expected stop error, got %v", err)
	}
	if src.closes != 1 {
		t.Errorf("ForEach must close the iteration")
	}
}
