package pipeline

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"

	"github.com/google/renameio/v2"
)

// MediaTypeTS is the media type of a concatenated transport stream artifact
const MediaTypeTS = "video/mp2t"

// AssemblyInfo describes the job a sink is about to receive segments for
type AssemblyInfo struct {
	Title    string
	Quality  Quality
	Segments []Segment
}

// Artifact is the persisted result of a job
type Artifact struct {
	Name      string
	Path      string // empty for in-memory artifacts
	MediaType string
	Bytes     int64
	Segments  int
}

// Sink receives segment bodies in index order. Begin is called once before
// any segment is fetched; exactly one of Commit or Abort ends the session.
type Sink interface {
	Begin(ctx context.Context, info AssemblyInfo) error
	WriteSegment(index int, data []byte) error
	Commit() (Artifact, error)
	Abort() error
}

// ordering tracks the next expected segment index
type ordering struct {
	next  int
	bytes int64
}

func (o *ordering) accept(index int, n int) error {
	if index != o.next {
		return assemblyFailed(fmt.Sprintf("segment %d written out of order, expected %d", index, o.next), nil)
	}
	o.next++
	o.bytes += int64(n)
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Lstat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}

// FileSink concatenates segments into a single <title>.ts file. Data goes to a
// pending file that only replaces the destination on Commit.
type FileSink struct {
	Dir       string
	Overwrite bool

	path    string
	pending *renameio.PendingFile
	order   ordering
}

// NewFileSink creates a sink writing into dir
func NewFileSink(dir string, overwrite bool) *FileSink {
	return &FileSink{Dir: dir, Overwrite: overwrite}
}

// Begin implements Sink
func (s *FileSink) Begin(_ context.Context, info AssemblyInfo) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return assemblyFailed("failed to create output directory", err)
	}

	s.path = filepath.Join(s.Dir, FileName(info.Title))
	found, err := exists(s.path)
	if err != nil {
		return assemblyFailed("failed to stat destination", err)
	}
	if found && !s.Overwrite {
		return assemblyFailed(fmt.Sprintf("destination %s already exists", s.path), fs.ErrExist)
	}

	pending, err := renameio.NewPendingFile(s.path, renameio.WithPermissions(0o644))
	if err != nil {
		return assemblyFailed("failed to create pending file", err)
	}
	s.pending = pending
	s.order = ordering{}
	return nil
}

// WriteSegment implements Sink
func (s *FileSink) WriteSegment(index int, data []byte) error {
	if s.pending == nil {
		return assemblyFailed("sink not started", nil)
	}
	if err := s.order.accept(index, len(data)); err != nil {
		return err
	}
	if _, err := s.pending.Write(data); err != nil {
		return assemblyFailed(fmt.Sprintf("failed to write segment %d", index), err)
	}
	return nil
}

// Commit implements Sink
func (s *FileSink) Commit() (Artifact, error) {
	if s.pending == nil {
		return Artifact{}, assemblyFailed("sink not started", nil)
	}
	pending := s.pending
	s.pending = nil

	if err := pending.CloseAtomicallyReplace(); err != nil {
		_ = pending.Cleanup()
		return Artifact{}, assemblyFailed("failed to finalize output file", err)
	}

	return Artifact{
		Name:      filepath.Base(s.path),
		Path:      s.path,
		MediaType: MediaTypeTS,
		Bytes:     s.order.bytes,
		Segments:  s.order.next,
	}, nil
}

// Abort implements Sink
func (s *FileSink) Abort() error {
	if s.pending == nil {
		return nil
	}
	pending := s.pending
	s.pending = nil
	return pending.Cleanup()
}

// FolderSink writes one file per segment plus a README into
// "<title> (<quality> - <minutes>min)". Files are staged in a hidden directory
// next to the destination and moved into place on Commit.
type FolderSink struct {
	Dir       string
	Overwrite bool

	final   string
	staging string
	info    AssemblyInfo
	order   ordering
}

// NewFolderSink creates a sink writing into dir
func NewFolderSink(dir string, overwrite bool) *FolderSink {
	return &FolderSink{Dir: dir, Overwrite: overwrite}
}

// Begin implements Sink
func (s *FolderSink) Begin(_ context.Context, info AssemblyInfo) error {
	if err := os.MkdirAll(s.Dir, 0o755); err != nil {
		return assemblyFailed("failed to create output directory", err)
	}

	name := FolderName(info.Title, info.Quality, DurationMinutes(info.Segments))
	s.final = filepath.Join(s.Dir, name)
	found, err := exists(s.final)
	if err != nil {
		return assemblyFailed("failed to stat destination", err)
	}
	if found && !s.Overwrite {
		return assemblyFailed(fmt.Sprintf("destination %s already exists", s.final), fs.ErrExist)
	}

	staging, err := os.MkdirTemp(s.Dir, "."+name+".partial-")
	if err != nil {
		return assemblyFailed("failed to create staging directory", err)
	}
	s.staging = staging
	s.info = info
	s.order = ordering{}
	return nil
}

// WriteSegment implements Sink
func (s *FolderSink) WriteSegment(index int, data []byte) error {
	if s.staging == "" {
		return assemblyFailed("sink not started", nil)
	}
	if err := s.order.accept(index, len(data)); err != nil {
		return err
	}
	path := filepath.Join(s.staging, SegmentFileName(index))
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return assemblyFailed(fmt.Sprintf("failed to write segment %d", index), err)
	}
	return nil
}

// Commit implements Sink
func (s *FolderSink) Commit() (Artifact, error) {
	if s.staging == "" {
		return Artifact{}, assemblyFailed("sink not started", nil)
	}

	readme := ReadmeText(s.info.Title, s.info.Quality, DurationMinutes(s.info.Segments))
	if err := renameio.WriteFile(filepath.Join(s.staging, "README.txt"), []byte(readme), 0o644); err != nil {
		_ = s.Abort()
		return Artifact{}, assemblyFailed("failed to write README", err)
	}
	if err := os.Chmod(s.staging, 0o755); err != nil {
		_ = s.Abort()
		return Artifact{}, assemblyFailed("failed to set folder permissions", err)
	}

	if s.Overwrite {
		if err := os.RemoveAll(s.final); err != nil {
			_ = s.Abort()
			return Artifact{}, assemblyFailed("failed to replace existing folder", err)
		}
	}
	if err := os.Rename(s.staging, s.final); err != nil {
		_ = s.Abort()
		return Artifact{}, assemblyFailed("failed to move folder into place", err)
	}
	s.staging = ""

	return Artifact{
		Name:     filepath.Base(s.final),
		Path:     s.final,
		Bytes:    s.order.bytes,
		Segments: s.order.next,
	}, nil
}

// Abort implements Sink
func (s *FolderSink) Abort() error {
	if s.staging == "" {
		return nil
	}
	staging := s.staging
	s.staging = ""
	return os.RemoveAll(staging)
}

// BufferSink keeps the concatenated stream in memory
type BufferSink struct {
	mu    sync.Mutex
	buf   bytes.Buffer
	name  string
	order ordering
	open  bool
}

// NewBufferSink creates an in-memory sink
func NewBufferSink() *BufferSink {
	return &BufferSink{}
}

// Begin implements Sink
func (s *BufferSink) Begin(_ context.Context, info AssemblyInfo) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.buf.Reset()
	s.name = FileName(info.Title)
	s.order = ordering{}
	s.open = true
	return nil
}

// WriteSegment implements Sink
func (s *BufferSink) WriteSegment(index int, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return assemblyFailed("sink not started", nil)
	}
	if err := s.order.accept(index, len(data)); err != nil {
		return err
	}
	s.buf.Write(data)
	return nil
}

// Commit implements Sink
func (s *BufferSink) Commit() (Artifact, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.open {
		return Artifact{}, assemblyFailed("sink not started", nil)
	}
	s.open = false
	return Artifact{
		Name:      s.name,
		MediaType: MediaTypeTS,
		Bytes:     s.order.bytes,
		Segments:  s.order.next,
	}, nil
}

// Abort implements Sink
func (s *BufferSink) Abort() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.open = false
	s.buf.Reset()
	return nil
}

// Bytes returns a copy of the assembled stream
func (s *BufferSink) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	return bytes.Clone(s.buf.Bytes())
}
