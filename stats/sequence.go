package stats

import "sync"

// Sequence assigns dense, monotonically increasing archive ordinals. It is
// initialized to 1 and incremented under mutual exclusion before each
// archive naming, per section 3: "guarantees unique, dense ordinals."
type Sequence struct {
	mu   sync.Mutex
	next int
}

// NewSequence creates a Sequence whose first Next() call returns 1.
func NewSequence() *Sequence {
	return &Sequence{next: 1}
}

// Next returns the next ordinal and advances the counter. Ordinals are
// issued strictly in call order, which the Batcher uses to guarantee batch
// emission order equals ordinal order (section 4.3's tie-break policy).
func (s *Sequence) Next() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := s.next
	s.next++
	return n
}
