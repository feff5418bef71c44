package source

import "context"

// Reader produces the single, ordered, finite stream of FileRef values for
// one run. Exactly one Reader implementation is active per run (filesystem
// walk, object-store listing, or explicit input list), per section 4.1.
//
// Read is not restartable: it must be called exactly once per run and the
// returned channel is closed when enumeration completes or the context is
// canceled. A single transient listing/stat failure is fatal and aborts the
// run (no retry), because partial enumeration would silently truncate the
// archival set — see section 4.1's Contract paragraph.
type Reader interface {
	// Read starts enumeration and returns a channel of FileRef values in
	// the reader's natural order. The returned error channel carries at
	// most one fatal error, after which the FileRef channel is closed.
	Read(ctx context.Context) (<-chan FileRef, <-chan error)
}

// Opener fetches the content of a single discovered file. Archiver Workers
// use it to stream member content into the TAR writer while hashing it.
type Opener interface {
	Open(ctx context.Context, loc Locator) (ReadSizer, error)
}

// ReadSizer is the content stream handed to a worker: a closer plus the
// exact byte count the TAR header must declare.
type ReadSizer interface {
	Read(p []byte) (int, error)
	Close() error
	Size() int64
}
