package batch

import (
	"context"

	"github.com/coldline/tarvault/source"
	"github.com/coldline/tarvault/stats"
)

// Batcher consumes a FileRef stream and emits Batch values according to a
// Policy, per section 4.2. Back-pressure on the output channel is the
// pipeline's sole natural admission-control point (section 4.2/5).
type Batcher struct {
	Policy   Policy
	Sequence *stats.Sequence
}

// NewBatcher creates a Batcher for the given policy and sequence counter.
func NewBatcher(policy Policy, seq *stats.Sequence) *Batcher {
	return &Batcher{Policy: policy, Sequence: seq}
}

// Run reads in until it closes (or ctx is canceled), emitting closed batches
// on the returned channel, capacity chanCap — matching section 5's "Batch
// channel: Batcher -> Workers, capacity 2*N".
func (b *Batcher) Run(ctx context.Context, in <-chan source.FileRef, chanCap int) <-chan Batch {
	out := make(chan Batch, chanCap)

	go func() {
		defer close(out)

		var open Batch

		emit := func() {
			if open.empty() {
				return
			}
			open.Ordinal = b.Sequence.Next()
			select {
			case out <- open:
			case <-ctx.Done():
			}
			open = Batch{}
		}

		for {
			select {
			case ref, ok := <-in:
				if !ok {
					emit()
					return
				}
				if !open.empty() && b.Policy.ShouldCut(open, ref) {
					emit()
				}
				open.add(ref)
			case <-ctx.Done():
				emit()
				return
			}
		}
	}()

	return out
}
