package pipeline

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"vod-segment-downloader/internal/config"
)

const eventBufferSize = 64

// Job is the state of a single download, owned by one Run call
type Job struct {
	ID              string
	Title           string
	Quality         Quality
	ManifestURL     string // resolved manifest
	VariantURL      string
	BaseURL         string // segment URIs resolve against this
	Headers         map[string]string
	Segments        []Segment
	TotalSegments   int
	BytesDownloaded int64
}

// Request is what the page-extraction side hands over
type Request struct {
	ManifestURL string
	Quality     Quality
	Title       string
	Headers     map[string]string // merged over the configured origin headers
	Sink        Sink              // overrides the configured output mode
}

// Result describes a finished job
type Result struct {
	JobID       string
	Artifact    Artifact
	ManifestURL string
	Variant     Variant
	Segments    int
	Bytes       int64
	Duration    time.Duration
}

// Remuxer rewraps a finished transport stream file into another container
type Remuxer interface {
	Remux(ctx context.Context, src string) (string, error)
}

// Option configures a Downloader
type Option func(*Downloader)

// WithHTTPClient replaces the client built from configuration
func WithHTTPClient(client *http.Client) Option {
	return func(d *Downloader) { d.client = client }
}

// WithCache enables the resolved-manifest cache
func WithCache(cache ManifestCache) Option {
	return func(d *Downloader) { d.cache = cache }
}

// WithObserver registers an observer that sees the events of every job
func WithObserver(o Observer) Option {
	return func(d *Downloader) { d.observers = append(d.observers, o) }
}

// WithSegmentObserver is called after every segment request
func WithSegmentObserver(fn SegmentObserver) Option {
	return func(d *Downloader) { d.onSegment = fn }
}

// WithProbeObserver is called after every manifest candidate request
func WithProbeObserver(fn func(url string, status int, ok bool)) Option {
	return func(d *Downloader) { d.onProbe = fn }
}

// WithRemuxer converts single-file artifacts after assembly
func WithRemuxer(r Remuxer) Option {
	return func(d *Downloader) { d.remuxer = r }
}

// Downloader runs download jobs: resolve the manifest, select a variant, fetch
// the segments and deliver them to a sink.
type Downloader struct {
	config    *config.Config
	logger    *logrus.Logger
	client    *http.Client
	cache     ManifestCache
	observers []Observer
	onSegment SegmentObserver
	onProbe   func(url string, status int, ok bool)
	remuxer   Remuxer

	resolver *Resolver
	fetcher  *Fetcher
}

// New creates a new downloader
func New(cfg *config.Config, logger *logrus.Logger, opts ...Option) (*Downloader, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	d := &Downloader{
		config: cfg,
		logger: logger,
	}
	for _, opt := range opts {
		opt(d)
	}

	if d.client == nil {
		d.client = NewHTTPClient(ClientOptions{
			Timeout:           cfg.HTTP.RequestTimeout(),
			Headers:           cfg.HTTP.Headers(),
			RequestsPerSecond: cfg.HTTP.RequestsPerSecond,
			Burst:             cfg.HTTP.Burst,
		})
	}

	d.resolver = NewResolver(d.client, ResolverOptions{
		Templates:      cfg.Resolver.Templates,
		BucketPrefixes: cfg.Resolver.BucketPrefixes,
		MaxCandidates:  cfg.Resolver.MaxCandidates,
		MetadataAPI: MetadataAPI{
			URLTemplate:   cfg.Resolver.MetadataAPI.URLTemplate,
			ManifestField: cfg.Resolver.MetadataAPI.ManifestField,
		},
		Cache:    d.cache,
		CacheTTL: cfg.Resolver.Cache.CacheTTL(),
	}, logrus.NewEntry(logger))
	d.resolver.onProbe = d.onProbe

	d.fetcher = NewFetcher(d.client, FetcherOptions{
		BatchSize: cfg.Download.BatchSize,
		Retry:     RetryPolicy{MaxRetries: cfg.Download.SegmentRetries, Delay: time.Second},
	}, logrus.NewEntry(logger))
	d.fetcher.onSegment = d.onSegment

	return d, nil
}

// Resolver returns the manifest resolver used by the downloader
func (d *Downloader) Resolver() *Resolver {
	return d.resolver
}

// Run executes one job and blocks until it reaches a terminal state
func (d *Downloader) Run(ctx context.Context, req Request) (Result, error) {
	return d.run(ctx, req, nil)
}

// Start runs a job in the background. The returned channel carries every event
// of the job and is closed after the terminal event. Callers must drain it.
func (d *Downloader) Start(ctx context.Context, req Request) <-chan Event {
	events := make(chan Event, eventBufferSize)
	go func() {
		defer close(events)
		_, _ = d.run(ctx, req, ObserverFunc(func(e Event) { events <- e }))
	}()
	return events
}

func (d *Downloader) run(ctx context.Context, req Request, extra Observer) (Result, error) {
	job := &Job{
		ID:      uuid.NewString(),
		Title:   SanitizeTitle(req.Title),
		Quality: req.Quality,
		Headers: d.headers(req.Headers),
	}

	observers := d.observers
	if extra != nil {
		observers = append(append([]Observer(nil), d.observers...), extra)
	}
	em := newEmitter(job.ID, observers)
	sm := &stateMachine{}
	logger := d.logger.WithFields(logrus.Fields{
		"job_id":  job.ID,
		"title":   job.Title,
		"quality": job.Quality.String(),
	})
	started := time.Now()
	result := Result{JobID: job.ID}

	advance := func(to State) {
		from, err := sm.transition(to)
		if err != nil {
			// Unreachable with the fixed stage order below
			logger.WithError(err).Error("State machine rejected transition")
			return
		}
		logger.Debugf("State %s -> %s", from, to)
		em.state(from, to)
	}

	fail := func(err error) (Result, error) {
		pe := AsPipelineError(err)
		if pe.Type != ErrorTypeCanceled && ctx.Err() != nil {
			pe = canceled(ctx.Err())
		}
		advance(StateFailed)
		em.fail(pe)
		logger.WithField("error_type", pe.Type.String()).WithError(pe).Error("Download failed")
		result.Duration = time.Since(started)
		return result, pe
	}

	if strings.TrimSpace(req.ManifestURL) == "" {
		return fail(NewPipelineError(ErrorTypeMissingManifestURL, "manifest URL cannot be empty", nil))
	}

	logger.WithField("url", req.ManifestURL).Info("Starting download")

	advance(StateResolving)
	res, err := d.resolver.Resolve(ctx, ManifestReference{URL: req.ManifestURL, Headers: job.Headers}, job.Quality)
	if err != nil {
		return fail(err)
	}
	job.ManifestURL = res.URL
	result.ManifestURL = res.URL

	advance(StateVariantSelecting)
	variant, media, err := d.selectVariant(ctx, job, res)
	if err != nil {
		return fail(err)
	}
	result.Variant = variant

	segments, err := ParseMediaPlaylist(media)
	if err != nil {
		return fail(err)
	}
	if len(segments) == 0 {
		return fail(NewPipelineError(ErrorTypeMalformedPlaylist, "media playlist has no segments", nil))
	}
	job.Segments = segments
	job.TotalSegments = len(segments)

	logger.WithFields(logrus.Fields{
		"variant":   variant.URL,
		"bandwidth": variant.Bandwidth,
		"segments":  len(segments),
		"minutes":   DurationMinutes(segments),
	}).Info("Variant selected")

	advance(StateFetching)
	sink := req.Sink
	if sink == nil {
		sink = d.newSink()
	}
	if err := sink.Begin(ctx, AssemblyInfo{Title: job.Title, Quality: job.Quality, Segments: segments}); err != nil {
		return fail(err)
	}

	if err := d.fetcher.Fetch(ctx, job, sink, em.progress); err != nil {
		if abortErr := sink.Abort(); abortErr != nil {
			logger.WithError(abortErr).Warn("Failed to clean up partial output")
		}
		return fail(err)
	}

	advance(StateAssembling)
	artifact, err := sink.Commit()
	if err != nil {
		return fail(err)
	}
	artifact = d.remux(ctx, logger, artifact)

	advance(StateCompleted)
	em.complete(artifact)

	result.Artifact = artifact
	result.Segments = job.TotalSegments
	result.Bytes = job.BytesDownloaded
	result.Duration = time.Since(started)

	logger.WithFields(logrus.Fields{
		"artifact": artifact.Name,
		"size":     humanize.Bytes(uint64(job.BytesDownloaded)),
		"elapsed":  result.Duration.Round(time.Millisecond).String(),
	}).Info("Download completed")

	return result, nil
}

// selectVariant picks the variant for the job and returns its media playlist.
// A manifest that is already a media playlist is used as its own variant.
func (d *Downloader) selectVariant(ctx context.Context, job *Job, res Resolution) (Variant, string, error) {
	variant, _, err := SelectFromMaster(res.Content, res.URL, job.Quality)
	if errors.Is(err, ErrNoVariantsFound) && ClassifyPlaylist(res.Content) == PlaylistMedia {
		job.VariantURL = res.URL
		job.BaseURL = baseDirectory(res.URL)
		return Variant{URL: res.URL}, res.Content, nil
	}
	if err != nil {
		return Variant{}, "", err
	}

	body, status, err := get(ctx, d.client, variant.URL, job.Headers)
	if err != nil {
		if isContextErr(err) {
			return Variant{}, "", canceled(err)
		}
		return Variant{}, "", manifestUnreachable([]string{variant.URL}, status, err)
	}

	job.VariantURL = variant.URL
	job.BaseURL = baseDirectory(variant.URL)
	return variant, string(body), nil
}

func (d *Downloader) remux(ctx context.Context, logger *logrus.Entry, artifact Artifact) Artifact {
	if d.remuxer == nil || artifact.Path == "" || artifact.MediaType != MediaTypeTS {
		return artifact
	}

	out, err := d.remuxer.Remux(ctx, artifact.Path)
	if err != nil {
		logger.WithError(err).Warn("Remux failed, keeping transport stream")
		return artifact
	}

	artifact.Path = out
	artifact.Name = filepath.Base(out)
	artifact.MediaType = "video/mp4"
	return artifact
}

func (d *Downloader) newSink() Sink {
	out := d.config.Output
	if strings.EqualFold(out.Mode, config.ModeFolder) {
		return NewFolderSink(out.Dir, out.Overwrite)
	}
	return NewFileSink(out.Dir, out.Overwrite)
}

func (d *Downloader) headers(extra map[string]string) map[string]string {
	merged := d.config.HTTP.Headers()
	for k, v := range extra {
		if strings.EqualFold(k, "Cookie") || strings.EqualFold(k, "Authorization") {
			continue
		}
		merged[k] = v
	}
	return merged
}

// CheckResult is the outcome of a resolution-only dry run
type CheckResult struct {
	Resolution Resolution
	Kind       PlaylistKind
	Variants   []Variant
	Selected   Variant
}

// Check resolves the manifest and lists its variants without downloading
func (d *Downloader) Check(ctx context.Context, req Request) (CheckResult, error) {
	if err := validateManifestURL(req.ManifestURL); err != nil {
		return CheckResult{}, err
	}

	res, err := d.resolver.Resolve(ctx, ManifestReference{URL: req.ManifestURL, Headers: d.headers(req.Headers)}, req.Quality)
	if err != nil {
		return CheckResult{}, err
	}

	out := CheckResult{Resolution: res, Kind: ClassifyPlaylist(res.Content)}
	if out.Kind == PlaylistMedia {
		out.Selected = Variant{URL: res.URL}
		return out, nil
	}

	selected, variants, err := SelectFromMaster(res.Content, res.URL, req.Quality)
	if err != nil {
		return out, err
	}
	out.Variants = ListVariants(variants)
	out.Selected = selected
	return out, nil
}
