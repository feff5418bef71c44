package sink

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/manifest"
	"github.com/stretchr/testify/require"
)

func writeStagedArchive(t *testing.T, content []byte) string {
	t.Helper()
	f, err := os.CreateTemp(t.TempDir(), "staged-*.tar")
	require.NoError(t, err)
	_, err = f.Write(content)
	require.NoError(t, err)
	require.NoError(t, f.Close())
	return f.Name()
}

func TestFilesystemSink_Put_WritesArchiveAndManifest(t *testing.T) {
	dest := t.TempDir()
	s := NewFilesystemSink(dest)

	stagedPath := writeStagedArchive(t, []byte("fake tar bytes"))
	artifact := &archiveworker.Artifact{
		ArchiveName:  "archive_20260731_000000_0001.tar",
		ManifestName: "manifest_20260731_000000_0001.csv",
		TarPath:      stagedPath,
		ManifestRows: []manifest.Entry{
			manifest.NewEntry("archive_20260731_000000_0001.tar", "a.txt", 11, 0, 1023, "d41d8cd98f00b204e9800998ecf8427e", time.Now()),
		},
	}

	require.NoError(t, s.Put(context.Background(), artifact))

	archivePath := filepath.Join(dest, "archives", artifact.ArchiveName)
	manifestPath := filepath.Join(dest, "manifests", artifact.ManifestName)

	gotArchive, err := os.ReadFile(archivePath)
	require.NoError(t, err)
	require.Equal(t, "fake tar bytes", string(gotArchive))

	mf, err := os.Open(manifestPath)
	require.NoError(t, err)
	defer mf.Close()

	entries, err := manifest.ReadAll(mf)
	require.NoError(t, err)
	require.Equal(t, artifact.ManifestRows, entries)

	// No stray temp files left behind.
	matches, err := filepath.Glob(filepath.Join(dest, "archives", ".tmp-*"))
	require.NoError(t, err)
	require.Empty(t, matches)
}

func TestFilesystemSink_Put_CreatesDestinationDirs(t *testing.T) {
	dest := filepath.Join(t.TempDir(), "nested", "dest")
	s := NewFilesystemSink(dest)

	stagedPath := writeStagedArchive(t, []byte("x"))
	artifact := &archiveworker.Artifact{
		ArchiveName:  "archive.tar",
		ManifestName: "manifest.csv",
		TarPath:      stagedPath,
	}

	require.NoError(t, s.Put(context.Background(), artifact))
	require.DirExists(t, filepath.Join(dest, "archives"))
	require.DirExists(t, filepath.Join(dest, "manifests"))
}
