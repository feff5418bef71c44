package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/manifest"
)

// FilesystemSink writes archives under "<dest>/archives/" and manifests
// under "<dest>/manifests/", per section 4.4's filesystem destination.
// Each file is written to a temporary path in its final directory and
// renamed into place, so readers never observe a partial file.
type FilesystemSink struct {
	DestDir string
}

// NewFilesystemSink creates a FilesystemSink rooted at destDir.
func NewFilesystemSink(destDir string) *FilesystemSink {
	return &FilesystemSink{DestDir: destDir}
}

func (s *FilesystemSink) archivesDir() string  { return filepath.Join(s.DestDir, "archives") }
func (s *FilesystemSink) manifestsDir() string { return filepath.Join(s.DestDir, "manifests") }

// Put implements Sink.
func (s *FilesystemSink) Put(ctx context.Context, artifact *archiveworker.Artifact) error {
	if err := os.MkdirAll(s.archivesDir(), 0755); err != nil {
		return fmt.Errorf("create archives dir: %w", err)
	}
	if err := os.MkdirAll(s.manifestsDir(), 0755); err != nil {
		return fmt.Errorf("create manifests dir: %w", err)
	}

	if err := s.putArchive(ctx, artifact); err != nil {
		return fmt.Errorf("put archive: %w", err)
	}
	if err := s.putManifest(ctx, artifact); err != nil {
		return fmt.Errorf("put manifest: %w", err)
	}
	return nil
}

func (s *FilesystemSink) putArchive(_ context.Context, artifact *archiveworker.Artifact) error {
	src, err := os.Open(artifact.TarPath)
	if err != nil {
		return fmt.Errorf("open staged archive: %w", err)
	}
	defer src.Close()

	finalPath := filepath.Join(s.archivesDir(), artifact.ArchiveName)
	tmp, err := os.CreateTemp(s.archivesDir(), ".tmp-"+artifact.ArchiveName+"-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := io.Copy(tmp, src); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("copy archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename archive into place: %w", err)
	}
	return nil
}

func (s *FilesystemSink) putManifest(_ context.Context, artifact *archiveworker.Artifact) error {
	finalPath := filepath.Join(s.manifestsDir(), artifact.ManifestName)
	tmp, err := os.CreateTemp(s.manifestsDir(), ".tmp-"+artifact.ManifestName+"-*")
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	tmpPath := tmp.Name()

	if err := manifest.Write(tmp, artifact.ManifestRows); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close staging file: %w", err)
	}
	if err := os.Rename(tmpPath, finalPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("rename manifest into place: %w", err)
	}
	return nil
}
