package source

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFilesystemReader_Walk(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.txt"), []byte("hello world"), 0644))
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "sub"), 0755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "sub", "b.txt"), []byte("hi\n"), 0644))

	r := NewFilesystemReader(dir, nil)
	out, errc := r.Read(context.Background())

	var refs []FileRef
	for ref := range out {
		refs = append(refs, ref)
	}
	require.NoError(t, <-errc)
	require.Len(t, refs, 2)

	names := map[string]int64{}
	for _, ref := range refs {
		names[ref.MemberName] = ref.SizeBytes
	}
	require.Equal(t, int64(11), names["a.txt"])
	require.Equal(t, int64(3), names["sub/b.txt"])
}

func TestFilesystemReader_SkipsSymlinkCycle(t *testing.T) {
	dir := t.TempDir()
	sub := filepath.Join(dir, "sub")
	require.NoError(t, os.MkdirAll(sub, 0755))
	// sub/loop -> dir, creating a cycle when walked through the symlink.
	require.NoError(t, os.Symlink(dir, filepath.Join(sub, "loop")))

	r := NewFilesystemReader(dir, nil)
	out, errc := r.Read(context.Background())

	for range out {
		// Draining must terminate; a cycle that isn't detected would hang
		// or walk forever.
	}
	require.NoError(t, <-errc)
}

func TestInputListReader_FilesystemMode(t *testing.T) {
	dir := t.TempDir()
	f1 := filepath.Join(dir, "one.txt")
	require.NoError(t, os.WriteFile(f1, []byte("12345"), 0644))

	listPath := filepath.Join(dir, "list.txt")
	missing := filepath.Join(dir, "missing.txt")
	listContent := "# comment\n\n" + f1 + "\n" + missing + ",renamed.txt\n"
	require.NoError(t, os.WriteFile(listPath, []byte(listContent), 0644))

	r := NewInputListReader(listPath, nil)
	out, errc := r.Read(context.Background())

	var refs []FileRef
	for ref := range out {
		refs = append(refs, ref)
	}
	require.NoError(t, <-errc)
	require.Len(t, refs, 1, "missing file must be skipped, not fatal")
	require.Equal(t, "one.txt", refs[0].MemberName)
	require.Equal(t, int64(5), refs[0].SizeBytes)
}

func TestDedupeMemberName(t *testing.T) {
	seen := make(map[string]int)
	require.Equal(t, "a.txt", dedupeMemberName(seen, "a.txt"))
	require.Equal(t, "a_2.txt", dedupeMemberName(seen, "a.txt"))
	require.Equal(t, "a_3.txt", dedupeMemberName(seen, "a.txt"))
}
