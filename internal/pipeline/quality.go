package pipeline

import (
	"fmt"
	"strings"
)

// Quality is the user-selected quality tier
type Quality int

const (
	QualityNormal Quality = iota
	QualityHD720
	QualityHD1080
)

// Target bitrates in bits per second
const (
	bitrateNormal = 1200000
	bitrateHD720  = 2400000
	bitrateHD1080 = 3600000
)

// Qualities lists every tier in ascending bitrate order
var Qualities = []Quality{QualityNormal, QualityHD720, QualityHD1080}

// String returns the tier name used in folder names and config files
func (q Quality) String() string {
	switch q {
	case QualityNormal:
		return "Normal"
	case QualityHD720:
		return "HD720"
	case QualityHD1080:
		return "HD1080"
	default:
		return fmt.Sprintf("Quality(%d)", int(q))
	}
}

// TargetBitrate returns the nominal bits per second for the tier
func (q Quality) TargetBitrate() int64 {
	switch q {
	case QualityHD720:
		return bitrateHD720
	case QualityHD1080:
		return bitrateHD1080
	default:
		return bitrateNormal
	}
}

// Kbps returns the target bitrate in kilobits, as used by CDN quality buckets
func (q Quality) Kbps() int64 {
	return q.TargetBitrate() / 1000
}

// ParseQuality parses a tier name case-insensitively. Empty input yields Normal.
func ParseQuality(s string) (Quality, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "normal":
		return QualityNormal, nil
	case "hd720", "720", "720p":
		return QualityHD720, nil
	case "hd1080", "1080", "1080p":
		return QualityHD1080, nil
	default:
		return QualityNormal, fmt.Errorf("unknown quality %q (want Normal, HD720 or HD1080)", s)
	}
}

// MarshalText implements encoding.TextMarshaler
func (q Quality) MarshalText() ([]byte, error) {
	return []byte(q.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler
func (q *Quality) UnmarshalText(text []byte) error {
	parsed, err := ParseQuality(string(text))
	if err != nil {
		return err
	}
	*q = parsed
	return nil
}
