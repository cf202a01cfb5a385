// Package intake turns request files dropped into a directory into download
// jobs. Jobs run one at a time in arrival order.
package intake

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"vod-segment-downloader/internal/pipeline"
)

const (
	doneDir   = "done"
	failedDir = "failed"
)

// RequestFile is the on-disk form of a download request. JSON is accepted as
// well since it is valid YAML.
type RequestFile struct {
	URL     string            `yaml:"url"`
	Quality string            `yaml:"quality"`
	Title   string            `yaml:"title"`
	Headers map[string]string `yaml:"headers"`
}

// Runner executes a download request
type Runner interface {
	Run(ctx context.Context, req pipeline.Request) (pipeline.Result, error)
}

// Options configures a Watcher
type Options struct {
	DefaultQuality pipeline.Quality
	Settle         time.Duration // quiet period before a file is read
}

// Stats summarises what the watcher has done so far
type Stats struct {
	Processed int64
	Failed    int64
	Active    string
	LastError string
}

// Watcher watches a directory for request files
type Watcher struct {
	dir    string
	runner Runner
	opts   Options
	logger *logrus.Entry

	mu     sync.Mutex
	queued map[string]bool
	stats  Stats
}

// NewWatcher creates a watcher for dir
func NewWatcher(dir string, runner Runner, opts Options, logger *logrus.Logger) *Watcher {
	if opts.Settle <= 0 {
		opts.Settle = 500 * time.Millisecond
	}
	return &Watcher{
		dir:    dir,
		runner: runner,
		opts:   opts,
		logger: logger.WithField("component", "intake"),
		queued: make(map[string]bool),
	}
}

// IsRequestFile reports whether name has a request file extension
func IsRequestFile(name string) bool {
	if strings.HasPrefix(filepath.Base(name), ".") {
		return false
	}
	switch strings.ToLower(filepath.Ext(name)) {
	case ".yaml", ".yml", ".json":
		return true
	}
	return false
}

// LoadRequest reads a request file
func LoadRequest(path string, defaultQuality pipeline.Quality) (pipeline.Request, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to read request file: %w", err)
	}

	var rf RequestFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return pipeline.Request{}, fmt.Errorf("failed to parse request file: %w", err)
	}

	quality := defaultQuality
	if rf.Quality != "" {
		quality, err = pipeline.ParseQuality(rf.Quality)
		if err != nil {
			return pipeline.Request{}, err
		}
	}

	return pipeline.Request{
		ManifestURL: strings.TrimSpace(rf.URL),
		Quality:     quality,
		Title:       rf.Title,
		Headers:     rf.Headers,
	}, nil
}

// Stats returns a snapshot of the watcher counters
func (w *Watcher) Stats() Stats {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.stats
}

// Run watches the directory until ctx is canceled. Request files already
// present are processed first.
func (w *Watcher) Run(ctx context.Context) error {
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return fmt.Errorf("failed to create intake directory: %w", err)
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify.NewWatcher: %w", err)
	}
	defer func() {
		_ = watcher.Close()
	}()

	if err := watcher.Add(w.dir); err != nil {
		return fmt.Errorf("watch directory %s: %w", w.dir, err)
	}

	w.logger.WithField("dir", w.dir).Info("Watching for request files")

	ready := make(chan string, 64)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		defer close(ready)
		return w.collect(gctx, watcher, ready)
	})
	g.Go(func() error {
		for path := range ready {
			w.process(gctx, path)
		}
		return nil
	})

	err = g.Wait()
	if ctx.Err() != nil {
		return nil
	}
	return err
}

// collect debounces watcher events and forwards settled files to ready
func (w *Watcher) collect(ctx context.Context, watcher *fsnotify.Watcher, ready chan<- string) error {
	pending := make(map[string]time.Time)

	existing, err := os.ReadDir(w.dir)
	if err != nil {
		return fmt.Errorf("failed to list intake directory: %w", err)
	}
	names := make([]string, 0, len(existing))
	for _, e := range existing {
		if !e.IsDir() && IsRequestFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		pending[filepath.Join(w.dir, name)] = time.Time{}
	}

	ticker := time.NewTicker(w.opts.Settle / 2)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case event, ok := <-watcher.Events:
			if !ok {
				return fmt.Errorf("watcher channel closed")
			}
			if !IsRequestFile(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) || event.Has(fsnotify.Write) {
				pending[event.Name] = time.Now()
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return fmt.Errorf("watcher error channel closed")
			}
			w.logger.WithError(err).Warn("fsnotify watcher error")
		case now := <-ticker.C:
			var settled []string
			for path, seen := range pending {
				if now.Sub(seen) >= w.opts.Settle {
					settled = append(settled, path)
				}
			}
			sort.Strings(settled)
			for _, path := range settled {
				delete(pending, path)
				if !w.enqueue(path) {
					continue
				}
				select {
				case ready <- path:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
	}
}

func (w *Watcher) enqueue(path string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.queued[path] {
		return false
	}
	w.queued[path] = true
	return true
}

func (w *Watcher) process(ctx context.Context, path string) {
	defer func() {
		w.mu.Lock()
		delete(w.queued, path)
		w.mu.Unlock()
	}()

	if _, err := os.Stat(path); err != nil {
		return
	}
	if ctx.Err() != nil {
		return
	}

	logger := w.logger.WithField("file", filepath.Base(path))

	req, err := LoadRequest(path, w.opts.DefaultQuality)
	if err != nil {
		logger.WithError(err).Error("Invalid request file")
		w.finish(path, "", err)
		return
	}

	w.mu.Lock()
	w.stats.Active = filepath.Base(path)
	w.mu.Unlock()

	result, err := w.runner.Run(ctx, req)
	if err != nil {
		if ctx.Err() != nil {
			// Leave the file in place so the next run picks it up
			w.mu.Lock()
			w.stats.Active = ""
			w.mu.Unlock()
			return
		}
		w.finish(path, result.JobID, err)
		return
	}

	logger.WithFields(logrus.Fields{
		"job_id":   result.JobID,
		"artifact": result.Artifact.Name,
	}).Info("Request completed")
	w.finish(path, result.JobID, nil)
}

// finish moves the request file into done/ or failed/ and updates counters.
// Failed requests get a sibling .error file with the message.
func (w *Watcher) finish(path, jobID string, runErr error) {
	sub := doneDir
	if runErr != nil {
		sub = failedDir
	}

	w.mu.Lock()
	w.stats.Active = ""
	if runErr != nil {
		w.stats.Failed++
		w.stats.LastError = runErr.Error()
	} else {
		w.stats.Processed++
	}
	w.mu.Unlock()

	targetDir := filepath.Join(w.dir, sub)
	if err := os.MkdirAll(targetDir, 0o755); err != nil {
		w.logger.WithError(err).Error("Failed to create archive directory")
		return
	}

	target := filepath.Join(targetDir, filepath.Base(path))
	if err := os.Rename(path, target); err != nil {
		w.logger.WithError(err).Error("Failed to archive request file")
		return
	}

	if runErr != nil {
		msg := runErr.Error() + "\n"
		if jobID != "" {
			msg = "job " + jobID + ": " + msg
		}
		if err := os.WriteFile(target+".error", []byte(msg), 0o644); err != nil {
			w.logger.WithError(err).Warn("Failed to write error note")
		}
	}
}
