package ring

import (
	"errors"
	"sync"

	"github.com/yourname/llmgate/internal/assert"
)

var ErrBufferFull = errors.New("ring buffer is full")
var ErrBufferEmpty = errors.New("ring buffer is empty")

// Buffer is a thread-safe, fixed-size ring buffer used as the hand-off queue
// between call handlers and the ledger writer. Zero-allocation on Push/Pop;
// the caller decides what to do on ErrBufferFull (the ledger drops and logs).
type Buffer[T any] struct {
	data     []T
	capacity int
	head     int
	tail     int
	count    int
	mu       sync.Mutex
}

// New creates a fixed-size ring buffer. Returns an error if capacity <= 0.
func New[T any](capacity int) (*Buffer[T], error) {
	if err := assert.Check(capacity > 0, "capacity must be positive"); err != nil {
		return nil, err
	}
	return &Buffer[T]{
		data:     make([]T, capacity),
		capacity: capacity,
	}, nil
}

// Push adds an item. Returns ErrBufferFull at capacity; the caller owns
// backpressure handling.
func (b *Buffer[T]) Push(item T) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.count == b.capacity {
		return ErrBufferFull
	}
	if err := assert.InRange(b.tail, 0, b.capacity-1, "tail index"); err != nil {
		return err
	}

	b.data[b.tail] = item
	b.tail = (b.tail + 1) % b.capacity
	b.count++
	return nil
}

// Pop removes and returns the oldest item, or ErrBufferEmpty.
func (b *Buffer[T]) Pop() (T, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var zero T
	if b.count == 0 {
		return zero, ErrBufferEmpty
	}
	if err := assert.InRange(b.head, 0, b.capacity-1, "head index"); err != nil {
		return zero, err
	}

	item := b.data[b.head]
	b.data[b.head] = zero
	b.head = (b.head + 1) % b.capacity
	b.count--
	return item, nil
}

// IsFull reports whether the buffer is at capacity.
func (b *Buffer[T]) IsFull() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == b.capacity
}

// IsEmpty reports whether the buffer holds no items.
func (b *Buffer[T]) IsEmpty() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count == 0
}

// Len returns the current queue depth.
func (b *Buffer[T]) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the fixed capacity (immutable after construction).
func (b *Buffer[T]) Cap() int {
	return b.capacity
}
