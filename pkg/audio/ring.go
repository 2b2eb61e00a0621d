package audio

import "sync"

// RingBuffer holds a fixed-capacity, time-ordered history of recent mono
// chunks at the target rate. When full, pushing evicts the oldest chunk.
//
// RingBuffer follows a single-writer/multi-reader discipline: one goroutine
// (the capture callback) appends while any number of goroutines read. Reads
// never mutate the buffer.
type RingBuffer struct {
	mu       sync.Mutex
	chunks   [][]float32
	head     int // index of the oldest chunk
	size     int
	rate     int
	chunkLen int
}

// NewRingBuffer creates a ring buffer sized to hold seconds of audio at rate,
// delivered in chunks of chunkLen samples. Capacity is seconds*rate/chunkLen,
// with a minimum of one chunk.
func NewRingBuffer(seconds, rate, chunkLen int) *RingBuffer {
	capacity := seconds * rate / chunkLen
	if capacity < 1 {
		capacity = 1
	}
	return &RingBuffer{
		chunks:   make([][]float32, capacity),
		rate:     rate,
		chunkLen: chunkLen,
	}
}

// Push appends samples, evicting the oldest chunk when at capacity.
// The buffer takes ownership of samples; the caller must not reuse it.
func (r *RingBuffer) Push(samples []float32) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size < len(r.chunks) {
		r.chunks[(r.head+r.size)%len(r.chunks)] = samples
		r.size++
		return
	}
	r.chunks[r.head] = samples
	r.head = (r.head + 1) % len(r.chunks)
}

// Recent returns the concatenation of the most recent chunks covering at
// least the requested duration (trailing, possibly slightly more). An empty
// buffer yields an empty slice.
func (r *RingBuffer) Recent(seconds float64) []float32 {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.size == 0 {
		return nil
	}

	want := int(seconds * float64(r.rate))
	var have, n int
	for n < r.size && have < want {
		idx := (r.head + r.size - 1 - n) % len(r.chunks)
		have += len(r.chunks[idx])
		n++
	}

	out := make([]float32, 0, have)
	for i := r.size - n; i < r.size; i++ {
		out = append(out, r.chunks[(r.head+i)%len(r.chunks)]...)
	}
	return out
}

// Len returns the number of chunks currently held.
func (r *RingBuffer) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.size
}

// Cap returns the fixed chunk capacity.
func (r *RingBuffer) Cap() int {
	return len(r.chunks)
}
