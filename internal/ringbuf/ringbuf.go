// package ringbuf is a fixed capacity FIFO queue.
package ringbuf

type RingBuf[T any] struct {
	buf []T
	// head is the index of the front, n is the number of elements
	head, n int
}

func New[T any](n int) RingBuf[T] {
	return RingBuf[T]{buf: make([]T, n)}
}

func (rb *RingBuf[T]) MaxLen() int {
	return len(rb.buf)
}

func (rb *RingBuf[T]) Len() int {
	return rb.n
}

// PushBack appends val, it returns false if the buffer is full.
func (rb *RingBuf[T]) PushBack(val T) bool {
	if rb.n == len(rb.buf) {
		return false
	}
	rb.buf[(rb.head+rb.n)%len(rb.buf)] = val
	rb.n++
	return true
}

// PopFront removes the oldest element, it returns false if the buffer is empty.
func (rb *RingBuf[T]) PopFront() (T, bool) {
	var zero T
	if rb.n == 0 {
		return zero, false
	}
	val := rb.buf[rb.head]
	rb.buf[rb.head] = zero
	rb.head = (rb.head + 1) % len(rb.buf)
	rb.n--
	return val, true
}

// At returns the i-th element from the front
func (rb *RingBuf[T]) At(i int) T {
	if i < 0 || i >= rb.n {
		panic(i)
	}
	return rb.buf[(rb.head+i)%len(rb.buf)]
}
