package archiveworker

import (
	"fmt"
	"time"
)

// ArchiveName renders the archive filename for a batch ordinal, per section
// 3's ArchiveArtifact: "archive_<timestamp>_<ordinal:04d>.tar[.gz]".
func ArchiveName(runTimestamp time.Time, ordinal int, compress bool) string {
	ext := ".tar"
	if compress {
		ext = ".tar.gz"
	}
	return fmt.Sprintf("archive_%s_%04d%s", runTimestamp.UTC().Format("20060102_150405"), ordinal, ext)
}

// ManifestName renders the manifest filename for a batch ordinal, per
// section 3: "manifest_<timestamp>_<ordinal:04d>.csv". It shares the run
// timestamp with ArchiveName so the two names correlate by ordinal alone.
func ManifestName(runTimestamp time.Time, ordinal int) string {
	return fmt.Sprintf("manifest_%s_%04d.csv", runTimestamp.UTC().Format("20060102_150405"), ordinal)
}
