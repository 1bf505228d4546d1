package audio

import (
	"sync"
)

// RingBuffer keeps the most recent bytes written to it. When full, new data
// overwrites the oldest data. It holds microphone audio that arrives while a
// recognition session is still opening.
type RingBuffer struct {
	mu     sync.Mutex
	buffer []byte
	start  int
	length int
}

// NewRingBuffer creates a new ring buffer with the specified capacity
func NewRingBuffer(size int) *RingBuffer {
	if size < 1 {
		size = 1
	}
	return &RingBuffer{buffer: make([]byte, size)}
}

// Write appends data and returns the number of older bytes it overwrote
func (rb *RingBuffer) Write(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	size := len(rb.buffer)
	dropped := 0
	if len(data) >= size {
		dropped = rb.length + len(data) - size
		copy(rb.buffer, data[len(data)-size:])
		rb.start = 0
		rb.length = size
		return dropped
	}

	for _, b := range data {
		end := (rb.start + rb.length) % size
		rb.buffer[end] = b
		if rb.length == size {
			rb.start = (rb.start + 1) % size
			dropped++
		} else {
			rb.length++
		}
	}
	return dropped
}

// Read copies up to len(data) of the oldest bytes into data and consumes them
func (rb *RingBuffer) Read(data []byte) int {
	rb.mu.Lock()
	defer rb.mu.Unlock()

	n := 0
	for n < len(data) && rb.length > 0 {
		data[n] = rb.buffer[rb.start]
		rb.start = (rb.start + 1) % len(rb.buffer)
		rb.length--
		n++
	}
	if rb.length == 0 {
		rb.start = 0
	}
	return n
}

// Drain returns all buffered bytes, oldest first, and empties the buffer
func (rb *RingBuffer) Drain() []byte {
	rb.mu.Lock()
	n := rb.length
	rb.mu.Unlock()

	out := make([]byte, n)
	return out[:rb.Read(out)]
}

// Available returns the number of bytes available to read
func (rb *RingBuffer) Available() int {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	return rb.length
}

// Cap returns the buffer capacity
func (rb *RingBuffer) Cap() int {
	return len(rb.buffer)
}

// Clear clears the buffer
func (rb *RingBuffer) Clear() {
	rb.mu.Lock()
	defer rb.mu.Unlock()
	rb.start = 0
	rb.length = 0
}
