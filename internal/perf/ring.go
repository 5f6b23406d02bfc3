package perf

// ring is a fixed-capacity insertion-ordered buffer. Pushing past capacity
// evicts the oldest element, so the retained elements are always the most
// recent cap insertions in order.
type ring[T any] struct {
	cap   int
	items []T
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{cap: capacity}
}

func (r *ring[T]) push(v T) {
	r.items = append(r.items, v)
	if len(r.items) > r.cap {
		// shift instead of re-slice so the backing array does not grow forever
		copy(r.items, r.items[1:])
		r.items = r.items[:r.cap]
	}
}

func (r *ring[T]) len() int {
	return len(r.items)
}

// values returns a copy; callers may retain it across lock release
func (r *ring[T]) values() []T {
	out := make([]T, len(r.items))
	copy(out, r.items)
	return out
}

// last returns up to n newest elements in insertion order
func (r *ring[T]) last(n int) []T {
	if n > len(r.items) {
		n = len(r.items)
	}
	out := make([]T, n)
	copy(out, r.items[len(r.items)-n:])
	return out
}
