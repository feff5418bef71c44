// Package archiveworker implements the Archiver Worker described in
// section 4.3: it turns one Batch into a TAR stream and a manifest stream,
// tracking the exact byte offset of every member as the TAR is written.
package archiveworker

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/md5"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/coldline/tarvault/batch"
	"github.com/coldline/tarvault/manifest"
	"github.com/coldline/tarvault/source"
	"github.com/sirupsen/logrus"
)

// Artifact is the output of building one Batch, per section 3's
// ArchiveArtifact. TarPath points at a closed, flushed temporary file; the
// Sink copies or uploads it without modifying it, and the caller that
// handed it to the Sink removes it afterward.
type Artifact struct {
	ArchiveName   string
	ManifestName  string
	TarPath       string
	TarSize       int64
	ManifestRows  []manifest.Entry
	FailedMembers int64
}

// Worker builds Artifacts from Batches. A pool of Workers runs
// concurrently; each Batch is processed by exactly one Worker, per
// section 2.
type Worker struct {
	Opener   source.Opener
	Compress bool
	TempDir  string
	Logger   *logrus.Logger
}

// NewWorker creates a Worker. tempDir is where the intermediate TAR file is
// created. RunStats updates are owned entirely by the caller (the coordinator),
// driven off the returned Artifact, so a batch that fails outright after
// this Worker already recorded some per-member outcome is never
// double-counted.
func NewWorker(opener source.Opener, compress bool, tempDir string, logger *logrus.Logger) *Worker {
	return &Worker{Opener: opener, Compress: compress, TempDir: tempDir, Logger: logger}
}

// Build implements the algorithm in section 4.3 under the archive and
// manifest names the caller derived from the batch ordinal: open a TAR
// writer over a temp file, stream each member through it while tracking
// offsets and hashing, skip unreadable members without rewinding the
// stream, then finalize the TAR and manifest.
func (w *Worker) Build(ctx context.Context, b batch.Batch, archiveName, manifestName string) (*Artifact, error) {
	ext := ".tar"
	if w.Compress {
		ext = ".tar.gz"
	}

	tmp, err := os.CreateTemp(w.TempDir, "tarvault-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create temp archive: %w", err)
	}
	tmpPath := tmp.Name()
	success := false
	defer func() {
		if !success {
			_ = tmp.Close()
			_ = os.Remove(tmpPath)
		}
	}()

	var dest io.Writer = tmp
	var gz *gzip.Writer
	if w.Compress {
		gz = gzip.NewWriter(tmp)
		dest = gz
	}

	// cw sits between the tar writer and any gzip layer, so cw.n always
	// measures the uncompressed tar stream position, per section 4.3/9's
	// offset-correctness invariant.
	cw := &countingWriter{w: dest}
	tw := tar.NewWriter(cw)

	var entries []manifest.Entry
	var failed int64
	now := time.Now()

	for _, ref := range b.Files {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}

		entry, ok, err := w.writeMember(tw, cw, ref, archiveName, now)
		if err != nil {
			// An unrecoverable local I/O or writer error poisons the whole
			// archive; the caller fails the entire batch per section 4.3's
			// "Failure semantics" paragraph.
			return nil, fmt.Errorf("member %s: %w", ref.MemberName, err)
		}
		if !ok {
			// Counted by the caller via Artifact.FailedMembers; the
			// coordinator owns all RunStats updates so a batch that later
			// fails outright isn't double-counted.
			failed++
			if w.Logger != nil {
				w.Logger.WithField("member", ref.MemberName).Warn("skipping unreadable member")
			}
			continue
		}
		entries = append(entries, entry)
	}

	if err := tw.Close(); err != nil {
		return nil, fmt.Errorf("close tar writer: %w", err)
	}
	if gz != nil {
		if err := gz.Close(); err != nil {
			return nil, fmt.Errorf("close gzip writer: %w", err)
		}
	}
	if err := tmp.Close(); err != nil {
		return nil, fmt.Errorf("close temp archive: %w", err)
	}

	info, err := os.Stat(tmpPath)
	if err != nil {
		return nil, fmt.Errorf("stat temp archive: %w", err)
	}

	success = true
	return &Artifact{
		ArchiveName:   archiveName,
		ManifestName:  manifestName,
		TarPath:       tmpPath,
		TarSize:       info.Size(),
		ManifestRows:  entries,
		FailedMembers: failed,
	}, nil
}

// writeMember writes one member's header, content, and padding, returning
// the manifest entry for it. ok is false when the member's content could
// not be read; in that case nothing has been written for this member past
// whatever partial attempt failed, and the caller continues without
// rewinding the stream, per section 4.3 step 3f.
func (w *Worker) writeMember(tw *tar.Writer, cw *countingWriter, ref source.FileRef, archiveName string, at time.Time) (manifest.Entry, bool, error) {
	content, err := w.Opener.Open(context.Background(), ref.Source)
	if err != nil {
		return manifest.Entry{}, false, nil
	}
	defer func() { _ = content.Close() }()

	start := cw.n

	hdr := &tar.Header{
		Name:     filepath.ToSlash(ref.MemberName),
		Mode:     0644,
		Size:     ref.SizeBytes,
		ModTime:  at,
		Typeflag: tar.TypeReg,
	}
	if err := tw.WriteHeader(hdr); err != nil {
		return manifest.Entry{}, false, fmt.Errorf("write header: %w", err)
	}

	h := md5.New()
	tee := io.TeeReader(content, h)
	if _, err := io.Copy(tw, tee); err != nil {
		return manifest.Entry{}, false, nil
	}

	// Flush forces the current record's block padding to be written now,
	// rather than deferred until the next WriteHeader/Close call, so
	// end_offset reflects the true on-disk position immediately.
	if err := tw.Flush(); err != nil {
		return manifest.Entry{}, false, fmt.Errorf("flush tar record: %w", err)
	}

	end := cw.n - 1
	md5Hex := fmt.Sprintf("%x", h.Sum(nil))

	entry := manifest.NewEntry(archiveName, ref.MemberName, ref.SizeBytes, start, end, md5Hex, at)
	return entry, true, nil
}

// countingWriter tracks the number of bytes written through it. It sits
// between the tar writer and any gzip layer, so it always measures the
// uncompressed TAR stream position, satisfying section 4.3's
// offset-correctness invariant.
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}
