// internal/signal/ringbuffer.go
package signal

// MaxWindow is the compile-time capacity of every window in the pipeline.
// Configured window sizes above it are clamped.
const MaxWindow = 20

// RingBuffer stores up to MaxWindow float64 values in FIFO order.
// When the logical capacity is reached the oldest value is overwritten.
// The backing array is part of the struct, so a RingBuffer never allocates.
type RingBuffer struct {
	data     [MaxWindow]float64
	capacity int
	head     int // next write position
	size     int // current number of elements
}

// NewRingBuffer returns a buffer holding at most capacity values
// (clamped to [0, MaxWindow]).
func NewRingBuffer(capacity int) *RingBuffer {
	rb := &RingBuffer{}
	rb.SetCapacity(capacity)
	return rb
}

// SetCapacity changes the logical capacity and clears the buffer.
func (rb *RingBuffer) SetCapacity(capacity int) {
	rb.capacity = clampWindow(capacity)
	rb.Reset()
}

// Reset drops every stored value but keeps the capacity.
func (rb *RingBuffer) Reset() {
	rb.head = 0
	rb.size = 0
}

// Push adds a value, overwriting the oldest one once the buffer is full.
// A zero-capacity buffer ignores the value.
func (rb *RingBuffer) Push(value float64) {
	if rb.capacity == 0 {
		return
	}
	rb.data[rb.head] = value
	rb.head = (rb.head + 1) % rb.capacity
	if rb.size < rb.capacity {
		rb.size++
	}
}

// Len returns the number of stored values.
func (rb *RingBuffer) Len() int { return rb.size }

// Cap returns the logical capacity.
func (rb *RingBuffer) Cap() int { return rb.capacity }

// Full reports whether the next Push overwrites the oldest value.
func (rb *RingBuffer) Full() bool { return rb.capacity > 0 && rb.size == rb.capacity }

// At returns the i-th value in insertion order, 0 being the oldest.
// It panics when i is out of range, like a slice index.
func (rb *RingBuffer) At(i int) float64 {
	if i < 0 || i >= rb.size {
		panic("signal: ring buffer index out of range")
	}
	start := (rb.head - rb.size + rb.capacity) % rb.capacity
	return rb.data[(start+i)%rb.capacity]
}

// Oldest returns the oldest value and true, or 0 and false when empty.
func (rb *RingBuffer) Oldest() (float64, bool) {
	if rb.size == 0 {
		return 0, false
	}
	return rb.At(0), true
}

// Latest returns the most recently pushed value and true,
// or 0 and false when empty.
func (rb *RingBuffer) Latest() (float64, bool) {
	if rb.size == 0 {
		return 0, false
	}
	// head points to next write position, so latest is at head-1
	return rb.data[(rb.head-1+rb.capacity)%rb.capacity], true
}

// Sum returns the sum of the stored values.
func (rb *RingBuffer) Sum() float64 {
	var sum float64
	for i := 0; i < rb.size; i++ {
		sum += rb.data[i]
	}
	return sum
}

// CopyTo writes the stored values oldest first into dst and returns the
// number written, which is min(len(dst), Len()).
func (rb *RingBuffer) CopyTo(dst []float64) int {
	n := min(len(dst), rb.size)
	if n == 0 {
		return 0
	}
	start := (rb.head - rb.size + rb.capacity) % rb.capacity
	for i := 0; i < n; i++ {
		dst[i] = rb.data[(start+i)%rb.capacity]
	}
	return n
}

// Values returns a freshly allocated copy of the stored values, oldest
// first. Hot paths use CopyTo with a fixed scratch array instead.
func (rb *RingBuffer) Values() []float64 {
	if rb.size == 0 {
		return nil
	}
	out := make([]float64, rb.size)
	rb.CopyTo(out)
	return out
}

func clampWindow(n int) int {
	return max(0, min(n, MaxWindow))
}
