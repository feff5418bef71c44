// Package restore implements the ranged-restore inverse contract
// described in section 6: given an archive location and a manifest row's
// [start_offset, end_offset] range, a ranged read over the uncompressed
// archive yields a valid single-member TAR substream.
package restore

import (
	"archive/tar"
	"context"
	"crypto/md5"
	"fmt"
	"io"

	"github.com/coldline/tarvault/manifest"
	"github.com/coldline/tarvault/source"
)

// RangeOpener opens exactly the [start, end] inclusive byte range of an
// archive. Per section 9, ranged restore is restricted to uncompressed
// archives; callers must not pass a .tar.gz location.
type RangeOpener interface {
	OpenRange(ctx context.Context, loc source.Locator, start, end int64) (io.ReadCloser, error)
}

// Member is one restored archive member, verified against its manifest
// row.
type Member struct {
	Name    string
	Content []byte
}

// Restore fetches the byte range named by entry from the archive at loc,
// parses it as a single-member TAR substream, and verifies the member's
// name and MD5 against the manifest row, per section 8's round-trip
// property.
func Restore(ctx context.Context, opener RangeOpener, loc source.Locator, entry manifest.Entry) (*Member, error) {
	rc, err := opener.OpenRange(ctx, loc, entry.StartOffset, entry.EndOffset)
	if err != nil {
		return nil, fmt.Errorf("open archive range: %w", err)
	}
	defer rc.Close()

	tr := tar.NewReader(rc)
	hdr, err := tr.Next()
	if err != nil {
		return nil, fmt.Errorf("read tar header: %w", err)
	}

	content, err := io.ReadAll(tr)
	if err != nil {
		return nil, fmt.Errorf("read tar content: %w", err)
	}

	if hdr.Name != entry.MemberSource {
		return nil, fmt.Errorf("member name mismatch: tar has %q, manifest expects %q", hdr.Name, entry.MemberSource)
	}

	sum := md5.Sum(content)
	gotHex := fmt.Sprintf("%x", sum)
	if gotHex != entry.MD5Hex {
		return nil, fmt.Errorf("md5 mismatch for %q: got %s, manifest has %s", hdr.Name, gotHex, entry.MD5Hex)
	}

	return &Member{Name: hdr.Name, Content: content}, nil
}
