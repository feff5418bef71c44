package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"
)

// FilesystemReader walks a directory tree rooted at Root and emits one
// FileRef per regular file, per section 4.1's "Filesystem walk" mode.
// Symbolic links to regular files are followed: the target's content and
// size are used. Symbolic links to directories are not descended into, so
// a link back up the tree cannot cause a cycle. A symlink whose target was
// already reached through an earlier symlink is skipped. Unreadable files are
// skipped with a WARNING log and counted by the caller as files_failed.
type FilesystemReader struct {
	Root   string
	Logger *logrus.Logger
}

// NewFilesystemReader creates a FilesystemReader rooted at root.
func NewFilesystemReader(root string, logger *logrus.Logger) *FilesystemReader {
	return &FilesystemReader{Root: root, Logger: logger}
}

// Read implements Reader. It performs a depth-first walk with
// filepath.WalkDir, reading each non-directory entry's metadata with
// DirEntry.Info.
func (r *FilesystemReader) Read(ctx context.Context) (<-chan FileRef, <-chan error) {
	out := make(chan FileRef)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		var seen []os.FileInfo

		walkErr := filepath.WalkDir(r.Root, func(path string, d os.DirEntry, err error) error {
			if err != nil {
				// A failure to even stat an entry aborts the run: partial
				// enumeration would silently truncate the archival set.
				return fmt.Errorf("walk %s: %w", path, err)
			}

			select {
			case <-ctx.Done():
				return ctx.Err()
			default:
			}

			if d.IsDir() {
				return nil
			}

			info, err := d.Info()
			if err != nil {
				r.warnSkip(path, err)
				return nil
			}

			if info.Mode()&os.ModeSymlink != 0 {
				resolved, err := filepath.EvalSymlinks(path)
				if err != nil {
					r.warnSkip(path, err)
					return nil
				}
				st, err := os.Stat(resolved)
				if err != nil {
					r.warnSkip(path, err)
					return nil
				}
				for _, prior := range seen {
					if os.SameFile(prior, st) {
						if r.Logger != nil {
							r.Logger.WithField("path", path).Warn("skipping symlink cycle")
						}
						return nil
					}
				}
				seen = append(seen, st)
				info = st
				path = resolved
			}

			if !info.Mode().IsRegular() {
				return nil
			}

			rel, err := filepath.Rel(r.Root, path)
			if err != nil {
				r.warnSkip(path, err)
				return nil
			}

			ref := FileRef{
				Source:     Locator{Kind: LocatorFilesystem, Path: path},
				MemberName: filepath.ToSlash(rel),
				SizeBytes:  info.Size(),
			}

			select {
			case out <- ref:
			case <-ctx.Done():
				return ctx.Err()
			}
			return nil
		})

		if walkErr != nil && walkErr != context.Canceled {
			errc <- walkErr
		}
	}()

	return out, errc
}

func (r *FilesystemReader) warnSkip(path string, err error) {
	if r.Logger != nil {
		r.Logger.WithField("path", path).WithError(err).Warn("skipping unreadable file")
	}
}
