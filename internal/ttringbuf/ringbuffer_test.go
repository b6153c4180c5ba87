package ttringbuf

import (
	"errors"
	"strconv"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func assertEqual[T any](t *testing.T, have, want T) {
	t.Helper()
	if !cmp.Equal(have, want) {
		t.Fatal(cmp.Diff(have, want))
	}
}

func TestRingBuffer(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[int](3)

	top := func(k int) []int {
		res := []int{}
		rb.Walk(func(i int) error {
			if k >= 0 && len(res) >= k {
				return errors.New("done")
			}
			res = append(res, i)
			return nil
		})
		return res
	}

	assertEqual(t, top(-1), []int{})
	assertEqual(t, top(99), []int{})

	rb.Add(1)
	assertEqual(t, top(-1), []int{1})
	assertEqual(t, top(0), []int{})

	rb.Add(2)
	rb.Add(3)
	assertEqual(t, top(-1), []int{3, 2, 1})
	assertEqual(t, top(2), []int{3, 2})

	removed, did := rb.Add(4)
	assertEqual(t, did, true)
	assertEqual(t, removed, 1)
	assertEqual(t, top(-1), []int{4, 3, 2})

	rb.Add(5)
	rb.Add(6)
	assertEqual(t, top(-1), []int{6, 5, 4})
	assertEqual(t, rb.Len(), 3)
	assertEqual(t, rb.Cap(), 3)
}

func TestRingBufferZeroCapacity(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[string](0)
	dropped, ok := rb.Add("a")
	assertEqual(t, dropped, "")
	assertEqual(t, ok, false)
	assertEqual(t, rb.Len(), 0)
	assertEqual(t, rb.Drain(), []string{})
}

func TestRingBufferDrain(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[string](2)
	rb.Add("A")
	rb.Add("B")
	rb.Add("C")

	assertEqual(t, rb.Snapshot(), []string{"B", "C"})
	assertEqual(t, rb.Drain(), []string{"B", "C"})
	assertEqual(t, rb.Len(), 0)
	assertEqual(t, rb.Drain(), []string{})

	rb.Add("D")
	assertEqual(t, rb.Snapshot(), []string{"D"})
	assertEqual(t, rb.Cap(), 2)

	rb.Reset()
	assertEqual(t, rb.Snapshot(), []string{})
}

func TestRingBufferResize(t *testing.T) {
	t.Parallel()

	rb := NewRingBuffer[int](3)

	rb.Add(1)
	rb.Add(2)
	rb.Add(3)
	rb.Add(4) // evicts 1

	assertEqual(t, rb.Snapshot(), []int{2, 3, 4})

	removed := rb.Resize(2)
	assertEqual(t, removed, []int{2})
	assertEqual(t, rb.Snapshot(), []int{3, 4})

	removed = rb.Resize(4)
	assertEqual(t, removed, []int(nil))
	assertEqual(t, rb.Snapshot(), []int{3, 4})

	rb.Add(5)
	rb.Add(6)
	rb.Add(7)
	assertEqual(t, rb.Snapshot(), []int{4, 5, 6, 7})

	assertEqual(t, rb.Resize(0), []int(nil))
	assertEqual(t, rb.Cap(), 4)
}

func BenchmarkRingBuffer(b *testing.B) {
	for _, cap := range []int{100, 1000, 10000} {
		b.Run(strconv.Itoa(cap), func(b *testing.B) {
			rb := NewRingBuffer[int](cap)
			for i := 0; i < cap; i++ {
				rb.Add(i)
			}

			b.ReportAllocs()

			b.Run("Add", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					rb.Add(i)
				}
			})

			b.Run("Snapshot", func(b *testing.B) {
				for i := 0; i < b.N; i++ {
					rb.Snapshot()
				}
			})
		})
	}
}
