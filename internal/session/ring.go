// SPDX-License-Identifier: MIT

package session

// ring is a fixed-capacity overwrite buffer. Not safe for concurrent use;
// each instance belongs to one session and is touched only by that
// session's worker.
type ring[T any] struct {
	buf  []T
	next int
	n    int
}

func newRing[T any](capacity int) *ring[T] {
	return &ring[T]{buf: make([]T, capacity)}
}

func (r *ring[T]) push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.n < len(r.buf) {
		r.n++
	}
}

func (r *ring[T]) len() int { return r.n }

// items returns the contents oldest first.
func (r *ring[T]) items() []T {
	out := make([]T, 0, r.n)
	start := r.next - r.n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < r.n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}

// last returns the newest item, if any.
func (r *ring[T]) last() (T, bool) {
	var zero T
	if r.n == 0 {
		return zero, false
	}
	idx := r.next - 1
	if idx < 0 {
		idx += len(r.buf)
	}
	return r.buf[idx], true
}
