// Package batch implements the Batcher described in section 4.2: it
// converts the FileRef stream into a stream of Batch values, cutting a new
// batch whenever the active policy's threshold would be exceeded.
package batch

import "github.com/coldline/tarvault/source"

// Batch is an ordered sequence of FileRef values destined for one TAR
// archive, per section 3. Ordinal is assigned when the batch is closed, in
// strict emission order.
type Batch struct {
	Ordinal    int
	Files      []source.FileRef
	TotalBytes int64
}

// add appends ref to the batch and updates TotalBytes.
func (b *Batch) add(ref source.FileRef) {
	b.Files = append(b.Files, ref)
	b.TotalBytes += ref.SizeBytes
}

// empty reports whether the batch has no members yet.
func (b *Batch) empty() bool {
	return len(b.Files) == 0
}

// Policy decides whether adding next to the currently open batch would
// exceed the active threshold, per section 4.2's two policies (count and
// size). Implementations must be pure functions of their own threshold and
// the batch's current state; the Batcher owns all mutation.
type Policy interface {
	// ShouldCut reports whether open must be closed before next is added.
	// The Batcher only calls this when open is non-empty, matching
	// section 4.2's "close current batch when ... and the current batch
	// is non-empty" rule.
	ShouldCut(open Batch, next source.FileRef) bool
}

// CountPolicy closes the batch once it would hold more than MaxCount files.
type CountPolicy struct {
	MaxCount int
}

// ShouldCut implements Policy.
func (p CountPolicy) ShouldCut(open Batch, _ source.FileRef) bool {
	return len(open.Files)+1 > p.MaxCount
}

// SizePolicy closes the batch once adding next's bytes would exceed
// MaxSize. A member larger than MaxSize on its own is never cut against an
// empty batch, so it is placed alone in its own batch per section 4.2.
type SizePolicy struct {
	MaxSize int64
}

// ShouldCut implements Policy.
func (p SizePolicy) ShouldCut(open Batch, next source.FileRef) bool {
	return open.TotalBytes+next.SizeBytes > p.MaxSize
}
