package buffer

// Buffer is a generic bounded buffer. All implementations are safe for
// concurrent use and always collect statistics.
type Buffer[T any] interface {
	// Write adds an item to the buffer. Behavior when the buffer is
	// full depends on the configured overflow policy.
	Write(item T) error

	// Read retrieves and removes one item from the buffer.
	// Returns the zero value and false if the buffer is empty.
	Read() (T, bool)

	// Peek retrieves one item without removing it.
	Peek() (T, bool)

	// Size returns the current number of items in the buffer.
	Size() int

	// Capacity returns the maximum number of items the buffer can hold.
	Capacity() int

	// IsFull returns true if the buffer is at maximum capacity.
	IsFull() bool

	// IsEmpty returns true if the buffer contains no items.
	IsEmpty() bool

	// Clear removes all items from the buffer.
	Clear()

	// Stats returns buffer statistics.
	Stats() *Statistics

	// Close shuts down the buffer. Blocked writers are woken with an error.
	Close() error
}

// OverflowPolicy defines how the buffer behaves when it reaches capacity.
type OverflowPolicy int

const (
	// DropOldest removes the oldest item to make room for new items.
	DropOldest OverflowPolicy = iota

	// DropNewest drops new items when the buffer is full.
	DropNewest

	// Block causes Write operations to block until space is available.
	Block
)

// String returns a human-readable representation of the overflow policy.
func (p OverflowPolicy) String() string {
	switch p {
	case DropOldest:
		return "DropOldest"
	case DropNewest:
		return "DropNewest"
	case Block:
		return "Block"
	default:
		return "Unknown"
	}
}

// ParsePolicy maps a configuration string to an OverflowPolicy.
// Returns DropOldest and false for unrecognized input.
func ParsePolicy(s string) (OverflowPolicy, bool) {
	switch s {
	case "drop_oldest":
		return DropOldest, true
	case "drop_newest":
		return DropNewest, true
	case "block":
		return Block, true
	default:
		return DropOldest, false
	}
}

// DropCallback is called with each item dropped by an overflow policy.
type DropCallback[T any] func(item T)

// NewCircularBuffer creates a circular buffer with the given capacity.
// Stats are always collected; Prometheus export is optional via WithMetrics().
func NewCircularBuffer[T any](capacity int, options ...Option[T]) (Buffer[T], error) {
	opts := applyOptions(options...)
	return newCircularBuffer(capacity, opts)
}
