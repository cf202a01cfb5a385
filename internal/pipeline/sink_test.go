package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var threeSegments = []Segment{
	{Duration: 20, URI: "a.ts"},
	{Duration: 20, URI: "b.ts"},
	{Duration: 20, URI: "c.ts"},
}

func writeAll(t *testing.T, s Sink, parts ...string) {
	t.Helper()
	for i, p := range parts {
		require.NoError(t, s.WriteSegment(i, []byte(p)))
	}
}

func dirNames(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

func TestFileSink_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, false)

	parts := []string{"aaaa", "bbbbbbb", "c"}
	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "Show: 1", Quality: QualityNormal, Segments: threeSegments}))
	writeAll(t, s, parts...)

	artifact, err := s.Commit()
	require.NoError(t, err)

	assert.Equal(t, "Show- 1.ts", artifact.Name)
	assert.Equal(t, MediaTypeTS, artifact.MediaType)
	assert.Equal(t, int64(12), artifact.Bytes)
	assert.Equal(t, 3, artifact.Segments)

	data, err := os.ReadFile(artifact.Path)
	require.NoError(t, err)
	assert.Equal(t, "aaaabbbbbbbc", string(data))
	assert.Equal(t, []string{"Show- 1.ts"}, dirNames(t, dir))
}

func TestFileSink_AbortLeavesNothing(t *testing.T) {
	dir := t.TempDir()
	s := NewFileSink(dir, false)

	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "x", Segments: threeSegments}))
	writeAll(t, s, "a", "b")
	require.NoError(t, s.Abort())

	assert.Empty(t, dirNames(t, dir))
}

func TestFileSink_ExistingDestination(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "x.ts"), []byte("old"), 0o644))

	err := NewFileSink(dir, false).Begin(context.Background(), AssemblyInfo{Title: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAssemblyFailed))

	s := NewFileSink(dir, true)
	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "x"}))
	writeAll(t, s, "new")
	_, err = s.Commit()
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(dir, "x.ts"))
	require.NoError(t, err)
	assert.Equal(t, "new", string(data))
}

func TestFileSink_RejectsOutOfOrder(t *testing.T) {
	s := NewFileSink(t.TempDir(), false)
	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "x"}))
	defer s.Abort()

	require.NoError(t, s.WriteSegment(0, []byte("a")))
	err := s.WriteSegment(2, []byte("c"))
	assert.True(t, errors.Is(err, ErrAssemblyFailed))
}

func TestFolderSink(t *testing.T) {
	dir := t.TempDir()
	s := NewFolderSink(dir, false)

	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "Landinn", Quality: QualityHD720, Segments: threeSegments}))
	writeAll(t, s, "a", "bb", "ccc")

	artifact, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, "Landinn (HD720 - 1min)", artifact.Name)
	assert.Equal(t, int64(6), artifact.Bytes)

	// Staging directory is gone, only the final folder remains
	assert.Equal(t, []string{"Landinn (HD720 - 1min)"}, dirNames(t, dir))
	assert.Equal(t, []string{"README.txt", "segment0000.ts", "segment0001.ts", "segment0002.ts"}, dirNames(t, artifact.Path))

	seg, err := os.ReadFile(filepath.Join(artifact.Path, "segment0002.ts"))
	require.NoError(t, err)
	assert.Equal(t, "ccc", string(seg))

	readme, err := os.ReadFile(filepath.Join(artifact.Path, "README.txt"))
	require.NoError(t, err)
	assert.Equal(t, ReadmeText("Landinn", QualityHD720, 1), string(readme))
}

func TestFolderSink_AbortAndExisting(t *testing.T) {
	dir := t.TempDir()
	s := NewFolderSink(dir, false)

	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "x", Segments: threeSegments}))
	writeAll(t, s, "a")
	require.NoError(t, s.Abort())
	assert.Empty(t, dirNames(t, dir))

	require.NoError(t, os.Mkdir(filepath.Join(dir, "x (Normal - 1min)"), 0o755))
	err := NewFolderSink(dir, false).Begin(context.Background(), AssemblyInfo{Title: "x", Segments: threeSegments})
	assert.True(t, errors.Is(err, ErrAssemblyFailed))
}

func TestBufferSink(t *testing.T) {
	s := NewBufferSink()
	require.NoError(t, s.Begin(context.Background(), AssemblyInfo{Title: "clip"}))
	writeAll(t, s, "x", "yy", "zzz")

	artifact, err := s.Commit()
	require.NoError(t, err)
	assert.Equal(t, "clip.ts", artifact.Name)
	assert.Equal(t, int64(6), artifact.Bytes)
	assert.Equal(t, "xyyzzz", string(s.Bytes()))

	assert.Error(t, s.WriteSegment(3, []byte("late")), "writes after commit are rejected")
}
