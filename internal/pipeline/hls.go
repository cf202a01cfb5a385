package pipeline

import (
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// validateManifestURL validates the manifest URL format
func validateManifestURL(manifestURL string) error {
	if strings.TrimSpace(manifestURL) == "" {
		return NewPipelineError(ErrorTypeMissingManifestURL, "manifest URL cannot be empty", nil)
	}

	u, err := url.Parse(manifestURL)
	if err != nil {
		return NewPipelineError(ErrorTypeManifestUnreachable, "invalid URL format", err)
	}

	// Check scheme
	if u.Scheme != "http" && u.Scheme != "https" {
		return NewPipelineError(ErrorTypeManifestUnreachable,
			fmt.Sprintf("manifest URL must use http or https scheme, got %q", u.Scheme), nil)
	}

	if u.Host == "" {
		return NewPipelineError(ErrorTypeManifestUnreachable, "manifest URL has no host", nil)
	}

	return nil
}

// resolveReference resolves ref against base. Absolute refs are returned as-is.
func resolveReference(base, ref string) (string, error) {
	refURL, err := url.Parse(ref)
	if err != nil {
		return "", err
	}
	if refURL.IsAbs() {
		return refURL.String(), nil
	}

	baseURL, err := url.Parse(base)
	if err != nil {
		return "", err
	}
	return baseURL.ResolveReference(refURL).String(), nil
}

// baseDirectory returns the URL up to and including the last path slash,
// without query or fragment.
func baseDirectory(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		if idx := strings.LastIndex(rawURL, "/"); idx != -1 {
			return rawURL[:idx+1]
		}
		return rawURL
	}

	u.RawQuery = ""
	u.Fragment = ""
	if idx := strings.LastIndex(u.Path, "/"); idx != -1 {
		u.Path = u.Path[:idx+1]
	} else {
		u.Path = "/"
	}
	u.RawPath = ""
	return u.String()
}

// originOf returns scheme://host of rawURL
func originOf(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil || u.Host == "" {
		return ""
	}
	return u.Scheme + "://" + u.Host
}

var qualityBucket = regexp.MustCompile(`^\d{3,5}$`)

// ContentID derives the content identifier from a manifest URL path.
//
// Known bucket prefixes (e.g. "TV") and numeric quality buckets are skipped, as
// is the playlist file name. The first remaining path segment is the ID.
func ContentID(rawURL string, bucketPrefixes []string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}

	var segments []string
	for _, s := range strings.Split(u.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	if n := len(segments); n > 0 && strings.EqualFold(path.Ext(segments[n-1]), ".m3u8") {
		segments = segments[:n-1]
	}

	for _, s := range segments {
		if isBucketPrefix(s, bucketPrefixes) || qualityBucket.MatchString(s) {
			continue
		}
		return s
	}
	return ""
}

func isBucketPrefix(segment string, prefixes []string) bool {
	for _, p := range prefixes {
		if strings.EqualFold(segment, p) {
			return true
		}
	}
	return false
}
