// Package eventq provides non-blocking channel sends and a single-slot
// command queue.
package eventq

// Offer performs a non-blocking send.
// It returns true when the value was sent and false when the channel is full
// or closed.
func Offer[T any](ch chan<- T, value T) (sent bool) {
	defer func() {
		if recover() != nil {
			sent = false
		}
	}()
	select {
	case ch <- value:
		return true
	default:
		return false
	}
}

// Slot is a queue of capacity one. The first offered value is kept until it
// is received; later offers are dropped. A fresh Slot is created for every
// use so stale values never leak into the next one.
type Slot[T any] struct {
	ch chan T
}

// NewSlot returns an empty Slot.
func NewSlot[T any]() *Slot[T] {
	return &Slot[T]{ch: make(chan T, 1)}
}

// Offer stores v if the slot is empty and reports whether it was stored.
func (s *Slot[T]) Offer(v T) bool {
	return Offer(s.ch, v)
}

// C returns the receive side, for use in select statements.
func (s *Slot[T]) C() <-chan T {
	return s.ch
}

// Drain removes and returns a pending value, if any.
func (s *Slot[T]) Drain() (T, bool) {
	select {
	case v := <-s.ch:
		return v, true
	default:
		var zero T
		return zero, false
	}
}
