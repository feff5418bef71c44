package coordinator

import (
	"bytes"
	"context"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/coldline/tarvault/archiveworker"
	"github.com/coldline/tarvault/config"
	"github.com/coldline/tarvault/source"
)

// memOpener serves fixed byte content for each Locator.Path.
type memOpener struct {
	content map[string][]byte
}

type memReadSizer struct {
	io.Reader
	size int64
}

func (m memReadSizer) Close() error { return nil }
func (m memReadSizer) Size() int64  { return m.size }

func (o memOpener) Open(_ context.Context, loc source.Locator) (source.ReadSizer, error) {
	b, ok := o.content[loc.Path]
	if !ok {
		return nil, os.ErrNotExist
	}
	return memReadSizer{Reader: bytes.NewReader(b), size: int64(len(b))}, nil
}

// staticReader emits a fixed slice of FileRef values then closes, never
// producing an error, standing in for a real filesystem walk.
type staticReader struct {
	refs []source.FileRef
}

func (r staticReader) Read(ctx context.Context) (<-chan source.FileRef, <-chan error) {
	out := make(chan source.FileRef)
	errc := make(chan error, 1)
	go func() {
		defer close(out)
		defer close(errc)
		for _, ref := range r.refs {
			select {
			case out <- ref:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, errc
}

// memSink records every artifact it receives instead of persisting it.
type memSink struct {
	mu        sync.Mutex
	artifacts []*archiveworker.Artifact
}

func (s *memSink) Put(_ context.Context, artifact *archiveworker.Artifact) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.artifacts = append(s.artifacts, artifact)
	return nil
}

func (s *memSink) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.artifacts)
}

func newTestConfig() *config.Config {
	cfg := config.Default()
	cfg.SrcType = config.SourceFilesystem
	cfg.SrcPath = "/in"
	cfg.DstType = config.DestFilesystem
	cfg.DstPath = "/out"
	cfg.Combine = config.CombineCount
	cfg.MaxFileNumber = 2
	cfg.MaxProcess = 2
	return &cfg
}

func TestCoordinator_Run_ProcessesAllFilesIntoBatches(t *testing.T) {
	content := map[string][]byte{
		"/in/a.txt": []byte("hello world"),
		"/in/b.txt": []byte("abc"),
		"/in/c.txt": []byte("more content here"),
		"/in/d.txt": []byte("final file"),
		"/in/e.txt": []byte("fifth"),
	}
	var refs []source.FileRef
	for _, name := range []string{"a.txt", "b.txt", "c.txt", "d.txt", "e.txt"} {
		refs = append(refs, source.FileRef{
			Source:     source.Locator{Kind: source.LocatorFilesystem, Path: "/in/" + name},
			MemberName: name,
			SizeBytes:  int64(len(content["/in/"+name])),
		})
	}

	reader := staticReader{refs: refs}
	snk := &memSink{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := newTestConfig()
	coord := New(cfg, reader, memOpener{content: content}, snk, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	report, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(5), report.FilesOK)
	require.Equal(t, int64(0), report.FilesFailed)
	// 5 files at MaxFileNumber=2 closes into 3 batches (2, 2, 1).
	require.Equal(t, 3, snk.count())
	require.Equal(t, int64(3), report.ArchivesWritten)
	require.Equal(t, int64(3), report.ManifestsWritten)
}

func TestCoordinator_Run_EmptyInputProducesNoBatches(t *testing.T) {
	reader := staticReader{}
	snk := &memSink{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := newTestConfig()
	coord := New(cfg, reader, memOpener{content: map[string][]byte{}}, snk, logger, nil)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	report, err := coord.Run(ctx)
	require.NoError(t, err)
	require.Equal(t, int64(0), report.FilesOK)
	require.Equal(t, 0, snk.count())
}

func TestCoordinator_Run_CancellationStopsGracefully(t *testing.T) {
	reader := staticReader{refs: []source.FileRef{
		{Source: source.Locator{Kind: source.LocatorFilesystem, Path: "/in/a.txt"}, MemberName: "a.txt", SizeBytes: 1},
	}}
	snk := &memSink{}
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := newTestConfig()
	coord := New(cfg, reader, memOpener{content: map[string][]byte{"/in/a.txt": []byte("x")}}, snk, logger, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := coord.Run(ctx)
	require.NoError(t, err)
}
