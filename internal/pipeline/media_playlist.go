package pipeline

import (
	"bufio"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const extinfPrefix = "#EXTINF:"

// Segment is one media chunk of a variant playlist, in playback order
type Segment struct {
	Duration float64 // seconds
	URI      string  // relative or absolute
}

// ParseMediaPlaylist parses a media playlist into its ordered segments.
//
// Each #EXTINF tag pairs with the next non-comment line. A tag with no URI line
// before the end of the playlist is dropped. A duration that is not a finite,
// non-negative number fails the whole parse with MalformedPlaylist.
func ParseMediaPlaylist(content string) ([]Segment, error) {
	scanner := bufio.NewScanner(strings.NewReader(content))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var (
		segments   []Segment
		pending    float64
		hasPending bool
		lineNo     int
	)

	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, extinfPrefix) {
			duration, err := parseExtinfDuration(strings.TrimPrefix(line, extinfPrefix))
			if err != nil {
				return nil, malformedPlaylist(lineNo, "%v", err)
			}
			pending = duration
			hasPending = true
			continue
		}

		// Other directives and comments
		if strings.HasPrefix(line, "#") {
			continue
		}

		if !hasPending {
			continue
		}

		segments = append(segments, Segment{Duration: pending, URI: line})
		hasPending = false
	}

	if err := scanner.Err(); err != nil {
		return nil, NewPipelineError(ErrorTypeMalformedPlaylist, "error reading playlist", err)
	}

	return segments, nil
}

// parseExtinfDuration parses the "<duration>[,<title>]" part of an EXTINF tag
func parseExtinfDuration(value string) (float64, error) {
	if idx := strings.Index(value, ","); idx != -1 {
		value = value[:idx]
	}
	value = strings.TrimSpace(value)

	duration, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid EXTINF duration %q", value)
	}
	if math.IsNaN(duration) || math.IsInf(duration, 0) || duration < 0 {
		return 0, fmt.Errorf("invalid EXTINF duration %q", value)
	}
	return duration, nil
}

// TotalDuration sums segment durations in seconds
func TotalDuration(segments []Segment) float64 {
	var total float64
	for _, s := range segments {
		total += s.Duration
	}
	return total
}

// DurationMinutes rounds the total duration to whole minutes
func DurationMinutes(segments []Segment) int {
	return int(math.Round(TotalDuration(segments) / 60))
}
