package pipeline

import (
	"bufio"
	"sort"
	"strconv"
	"strings"

	"github.com/grafov/m3u8"
)

const streamInfPrefix = "#EXT-X-STREAM-INF:"

// Variant represents a single rendition advertised by a master playlist
type Variant struct {
	Bandwidth        int64
	URL              string
	AverageBandwidth int64
	Resolution       string
	Width            int
	Height           int
	Codecs           string
	FrameRate        float64
}

// PlaylistKind tells master and media playlists apart
type PlaylistKind int

const (
	PlaylistUnknown PlaylistKind = iota
	PlaylistMaster
	PlaylistMedia
)

// parseResolution parses resolution string like "1920x1080" into width and height
func parseResolution(resolution string) (int, int) {
	parts := strings.Split(resolution, "x")
	if len(parts) != 2 {
		return 0, 0
	}

	width, err1 := strconv.Atoi(parts[0])
	height, err2 := strconv.Atoi(parts[1])

	if err1 != nil || err2 != nil {
		return 0, 0
	}

	return width, height
}

// parseFrameRate parses frame rate string and returns float value
func parseFrameRate(frameRate string) float64 {
	if frameRate == "" {
		return 0
	}

	value, err := strconv.ParseFloat(frameRate, 64)
	if err != nil {
		return 0
	}

	return value
}

// splitAttributes splits an attribute list on commas outside quoted strings
func splitAttributes(list string) map[string]string {
	attrs := make(map[string]string)
	var (
		start    int
		inQuotes bool
	)

	add := func(part string) {
		kv := strings.SplitN(part, "=", 2)
		if len(kv) != 2 {
			return
		}
		key := strings.TrimSpace(kv[0])
		value := strings.Trim(strings.TrimSpace(kv[1]), `"`)
		attrs[key] = value
	}

	for i := 0; i < len(list); i++ {
		switch list[i] {
		case '"':
			inQuotes = !inQuotes
		case ',':
			if !inQuotes {
				add(list[start:i])
				start = i + 1
			}
		}
	}
	add(list[start:])

	return attrs
}

// ParseMasterPlaylist collects every (bandwidth, url) variant of a master
// playlist in file order. Relative variant URLs are resolved against baseURL.
// Stream declarations without a BANDWIDTH attribute are ignored.
func ParseMasterPlaylist(content, baseURL string) ([]Variant, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		variants []Variant
		current  *Variant
		lineNo   int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, streamInfPrefix) {
			current = nil
			attrs := splitAttributes(strings.TrimPrefix(line, streamInfPrefix))

			raw, ok := attrs["BANDWIDTH"]
			if !ok {
				continue
			}
			bandwidth, err := strconv.ParseInt(raw, 10, 64)
			if err != nil || bandwidth < 0 {
				return nil, malformedPlaylist(lineNo, "invalid BANDWIDTH %q", raw)
			}

			v := Variant{Bandwidth: bandwidth, Codecs: attrs["CODECS"]}
			if avg, err := strconv.ParseInt(attrs["AVERAGE-BANDWIDTH"], 10, 64); err == nil {
				v.AverageBandwidth = avg
			}
			if res := attrs["RESOLUTION"]; res != "" {
				v.Resolution = res
				v.Width, v.Height = parseResolution(res)
			}
			v.FrameRate = parseFrameRate(attrs["FRAME-RATE"])
			current = &v
			continue
		}

		if strings.HasPrefix(line, "#") {
			continue
		}

		// This is a stream URL
		if current != nil {
			resolved, err := resolveReference(baseURL, line)
			if err != nil {
				return nil, malformedPlaylist(lineNo, "invalid variant URL %q: %v", line, err)
			}
			current.URL = resolved
			variants = append(variants, *current)
			current = nil
		}
	}

	if err := scanner.Err(); err != nil {
		return nil, NewPipelineError(ErrorTypeMalformedPlaylist, "error reading playlist", err)
	}

	return variants, nil
}

// SelectVariant returns the variant whose bandwidth is closest to the quality
// target. Ties go to the variant that appears first.
func SelectVariant(variants []Variant, quality Quality) (Variant, error) {
	if len(variants) == 0 {
		return Variant{}, NewPipelineError(ErrorTypeNoVariantsFound, "master playlist advertises no variants", nil)
	}

	target := quality.TargetBitrate()
	best := 0
	bestDistance := distance(target, variants[0].Bandwidth)
	for i := 1; i < len(variants); i++ {
		if d := distance(target, variants[i].Bandwidth); d < bestDistance {
			best = i
			bestDistance = d
		}
	}

	return variants[best], nil
}

// SelectFromMaster parses a master playlist and selects a variant in one step
func SelectFromMaster(content, baseURL string, quality Quality) (Variant, []Variant, error) {
	variants, err := ParseMasterPlaylist(content, baseURL)
	if err != nil {
		return Variant{}, nil, err
	}
	selected, err := SelectVariant(variants, quality)
	if err != nil {
		return Variant{}, variants, err
	}
	return selected, variants, nil
}

func distance(a, b int64) int64 {
	if a > b {
		return a - b
	}
	return b - a
}

// ListVariants returns all variants sorted by bandwidth, highest first
func ListVariants(variants []Variant) []Variant {
	sorted := make([]Variant, len(variants))
	copy(sorted, variants)

	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Bandwidth > sorted[j].Bandwidth
	})

	return sorted
}

// ClassifyPlaylist reports whether content is a master or a media playlist.
// Content the decoder rejects is classified by its tags.
func ClassifyPlaylist(content string) PlaylistKind {
	_, listType, err := m3u8.DecodeFrom(strings.NewReader(content), false)
	if err == nil {
		switch listType {
		case m3u8.MASTER:
			return PlaylistMaster
		case m3u8.MEDIA:
			return PlaylistMedia
		}
	}

	switch {
	case strings.Contains(content, streamInfPrefix):
		return PlaylistMaster
	case strings.Contains(content, extinfPrefix):
		return PlaylistMedia
	default:
		return PlaylistUnknown
	}
}
