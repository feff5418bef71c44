// Package sink implements the Sink described in section 4.4: it writes a
// finished archive+manifest pair to a filesystem directory pair or an
// object-store prefix, with multipart upload and bounded retry for the
// object-store case.
package sink

import (
	"context"

	"github.com/coldline/tarvault/archiveworker"
)

// Sink persists one ArchiveArtifact. Put takes ownership of reading
// artifact.TarPath; it never modifies the file and the caller remains
// responsible for eventually removing it.
type Sink interface {
	Put(ctx context.Context, artifact *archiveworker.Artifact) error
}
