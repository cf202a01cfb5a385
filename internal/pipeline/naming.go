package pipeline

import (
	"fmt"
	"strings"

	"golang.org/x/text/unicode/norm"
)

const defaultTitle = "video"

var titleReplacer = strings.NewReplacer(
	"/", "-", `\`, "-", "?", "-", "%", "-", "*", "-",
	":", "-", "|", "-", `"`, "-", "<", "-", ">", "-",
)

// SanitizeTitle makes title safe to use as a file name. Characters that are
// reserved on common filesystems become '-'. An empty title becomes "video".
func SanitizeTitle(title string) string {
	title = strings.TrimSpace(norm.NFC.String(title))
	title = strings.Map(func(r rune) rune {
		if r < 0x20 || r == 0x7f {
			return -1
		}
		return r
	}, title)
	title = titleReplacer.Replace(title)
	if title == "" || title == "." || title == ".." {
		return defaultTitle
	}
	return title
}

// FileName is the single-file artifact name for title
func FileName(title string) string {
	return SanitizeTitle(title) + ".ts"
}

// FolderName is the per-segment folder name, e.g. "Show (HD720 - 42min)"
func FolderName(title string, quality Quality, minutes int) string {
	return fmt.Sprintf("%s (%s - %dmin)", SanitizeTitle(title), quality, minutes)
}

// SegmentFileName returns the zero padded file name of segment index
func SegmentFileName(index int) string {
	return fmt.Sprintf("segment%04d.ts", index)
}

// ReadmeText describes how to reassemble a folder of segments
func ReadmeText(title string, quality Quality, minutes int) string {
	title = SanitizeTitle(title)

	var b strings.Builder
	fmt.Fprintf(&b, "This folder contains video segments from %q\n", title)
	fmt.Fprintf(&b, "Total duration: %d minutes\n", minutes)
	fmt.Fprintf(&b, "Quality: %s\n", quality)
	b.WriteString("\n")
	b.WriteString("To combine the segments, you can use:\n")
	b.WriteString("1. VLC Media Player: Add all .ts files to a playlist\n")
	fmt.Fprintf(&b, "2. ffmpeg command: ffmpeg -i \"concat:segment*.ts\" -c copy \"%s.mp4\"\n", title)
	return b.String()
}
