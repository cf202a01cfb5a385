package pipeline

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"
)

const defaultMaxCandidates = 8

// ManifestCache remembers the manifest URL that last worked for a content ID
type ManifestCache interface {
	Get(ctx context.Context, key string) (string, bool)
	Set(ctx context.Context, key, value string, ttl time.Duration)
	Delete(ctx context.Context, key string)
}

// ManifestReference is a candidate manifest location and the headers its
// origin requires.
type ManifestReference struct {
	URL     string
	Headers map[string]string
}

// Resolution is the outcome of a successful manifest lookup
type Resolution struct {
	URL       string   // the URL that answered, not necessarily the input
	Content   string   // manifest body
	Attempted []string // every URL requested, in order
}

// MetadataAPI describes an optional JSON endpoint that maps a content ID to a
// manifest URL.
type MetadataAPI struct {
	URLTemplate   string // {id} is replaced with the escaped content ID
	ManifestField string // dot separated path into the JSON document
}

// ResolverOptions configures a Resolver
type ResolverOptions struct {
	Templates      []string
	BucketPrefixes []string
	MaxCandidates  int
	MetadataAPI    MetadataAPI
	Cache          ManifestCache
	CacheTTL       time.Duration
}

// Resolver finds a working manifest URL by probing an ordered list of
// structurally different fallback URLs. Each candidate is requested once.
type Resolver struct {
	client  *http.Client
	opts    ResolverOptions
	logger  *logrus.Entry
	onProbe func(url string, status int, ok bool)
}

// NewResolver creates a new manifest resolver
func NewResolver(client *http.Client, opts ResolverOptions, logger *logrus.Entry) *Resolver {
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = defaultMaxCandidates
	}
	return &Resolver{
		client: client,
		opts:   opts,
		logger: logger.WithField("component", "resolver"),
	}
}

// Resolve requests ref.URL and, if it does not answer with a 2xx status, each
// fallback candidate in order. The first success wins.
func (r *Resolver) Resolve(ctx context.Context, ref ManifestReference, quality Quality) (Resolution, error) {
	if err := validateManifestURL(ref.URL); err != nil {
		return Resolution{}, err
	}

	var (
		attempted  []string
		lastStatus int
		lastErr    error
	)

	try := func(candidate string) (Resolution, bool) {
		attempted = append(attempted, candidate)
		body, status, err := get(ctx, r.client, candidate, ref.Headers)
		if r.onProbe != nil {
			r.onProbe(candidate, status, err == nil)
		}
		if err != nil {
			lastStatus = status
			lastErr = err
			r.logger.WithFields(logrus.Fields{
				"url":    candidate,
				"status": status,
			}).WithError(err).Debug("Manifest candidate failed")
			return Resolution{}, false
		}
		return Resolution{URL: candidate, Content: string(body), Attempted: attempted}, true
	}

	id := ContentID(ref.URL, r.opts.BucketPrefixes)

	if res, ok := try(ref.URL); ok {
		r.remember(ctx, id, res.URL)
		return res, nil
	}
	if ctx.Err() != nil {
		return Resolution{}, canceled(ctx.Err())
	}

	r.logger.WithFields(logrus.Fields{
		"url":        ref.URL,
		"status":     lastStatus,
		"content_id": id,
	}).Info("Manifest URL failed, trying alternative URLs")

	candidates, cached := r.candidates(ctx, ref, id, quality)
	for _, candidate := range candidates {
		if ctx.Err() != nil {
			return Resolution{}, canceled(ctx.Err())
		}

		if res, ok := try(candidate); ok {
			r.logger.WithField("url", candidate).Info("Found working manifest URL")
			r.remember(ctx, id, res.URL)
			return res, nil
		}
		if candidate == cached && ctx.Err() == nil {
			r.forget(ctx, id)
		}
	}

	if ctx.Err() != nil {
		return Resolution{}, canceled(ctx.Err())
	}
	return Resolution{}, manifestUnreachable(attempted, lastStatus, lastErr)
}

func (r *Resolver) remember(ctx context.Context, id, resolved string) {
	if r.opts.Cache == nil || id == "" {
		return
	}
	r.opts.Cache.Set(ctx, id, resolved, r.opts.CacheTTL)
}

func (r *Resolver) forget(ctx context.Context, id string) {
	if r.opts.Cache == nil || id == "" {
		return
	}
	r.logger.WithField("content_id", id).Debug("Dropping stale cached manifest URL")
	r.opts.Cache.Delete(ctx, id)
}

// candidates builds the full ordered fallback list: cached URL, metadata API
// answer, templates, then the truncated-path last resort. The cached URL is
// returned separately so a failing entry can be invalidated.
func (r *Resolver) candidates(ctx context.Context, ref ManifestReference, id string, quality Quality) ([]string, string) {
	var (
		dynamic []string
		cached  string
	)

	if r.opts.Cache != nil && id != "" {
		if u, ok := r.opts.Cache.Get(ctx, id); ok {
			cached = u
			dynamic = append(dynamic, u)
		}
	}

	if r.opts.MetadataAPI.URLTemplate != "" && id != "" {
		if u, err := r.lookupMetadata(ctx, ref, id); err != nil {
			r.logger.WithError(err).WithField("content_id", id).Debug("Metadata lookup failed")
		} else if u != "" {
			dynamic = append(dynamic, u)
		}
	}

	return r.boundedCandidates(ref.URL, id, quality, dynamic), cached
}

// Candidates returns the static fallback list for rawURL: expanded templates
// followed by the truncated-path last resort. The original URL is excluded.
func (r *Resolver) Candidates(rawURL string, quality Quality) []string {
	return r.boundedCandidates(rawURL, ContentID(rawURL, r.opts.BucketPrefixes), quality, nil)
}

func (r *Resolver) boundedCandidates(rawURL, id string, quality Quality, dynamic []string) []string {
	seen := map[string]bool{rawURL: true}
	var list []string

	add := func(u string) {
		if u == "" || seen[u] {
			return
		}
		seen[u] = true
		list = append(list, u)
	}

	for _, u := range dynamic {
		add(u)
	}
	for _, tmpl := range r.opts.Templates {
		add(expandTemplate(tmpl, rawURL, id, quality))
	}

	lastResort := baseDirectory(rawURL) + "index.m3u8"
	if seen[lastResort] {
		lastResort = ""
	}

	limit := r.opts.MaxCandidates
	if lastResort != "" {
		limit--
	}
	if limit < 0 {
		limit = 0
	}
	if len(list) > limit {
		list = list[:limit]
	}
	if lastResort != "" {
		list = append(list, lastResort)
	}

	return list
}

// expandTemplate fills {id}, {kbps}, {origin} and {dir}. Templates that need
// an ID are skipped when none could be derived.
func expandTemplate(tmpl, rawURL, id string, quality Quality) string {
	if strings.Contains(tmpl, "{id}") && id == "" {
		return ""
	}
	replacer := strings.NewReplacer(
		"{id}", url.PathEscape(id),
		"{kbps}", strconv.FormatInt(quality.Kbps(), 10),
		"{origin}", originOf(rawURL),
		"{dir}", baseDirectory(rawURL),
	)
	return replacer.Replace(tmpl)
}

func (r *Resolver) lookupMetadata(ctx context.Context, ref ManifestReference, id string) (string, error) {
	endpoint := strings.ReplaceAll(r.opts.MetadataAPI.URLTemplate, "{id}", url.PathEscape(id))

	headers := make(map[string]string, len(ref.Headers)+1)
	for k, v := range ref.Headers {
		headers[k] = v
	}
	headers["Accept"] = "application/json"

	body, _, err := get(ctx, r.client, endpoint, headers)
	if err != nil {
		return "", err
	}

	var doc interface{}
	if err := json.Unmarshal(body, &doc); err != nil {
		return "", err
	}

	value := lookupField(doc, r.opts.MetadataAPI.ManifestField)
	if value == "" {
		return "", nil
	}
	return resolveReference(endpoint, value)
}

// lookupField walks a dot separated path through decoded JSON. Numeric path
// elements index into arrays.
func lookupField(doc interface{}, path string) string {
	current := doc
	for _, key := range strings.Split(path, ".") {
		switch node := current.(type) {
		case map[string]interface{}:
			current = node[key]
		case []interface{}:
			i, err := strconv.Atoi(key)
			if err != nil || i < 0 || i >= len(node) {
				return ""
			}
			current = node[i]
		default:
			return ""
		}
	}
	s, _ := current.(string)
	return s
}
