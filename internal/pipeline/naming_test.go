package pipeline

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSanitizeTitle(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{`a/b\c?d%e*f:g|h"i<j>k`, "a-b-c-d-e-f-g-h-i-j-k"},
		{"Fréttir kl. 19", "Fréttir kl. 19"},
		{"", "video"},
		{"   ", "video"},
		{"..", "video"},
		{"tab\there", "tabhere"},
		// Decomposed e + combining acute becomes a single code point
		{"Kastljo\u0301s", "Kastlj\u00f3s"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, SanitizeTitle(tt.in), "input %q", tt.in)
	}
}

func TestArtifactNames(t *testing.T) {
	assert.Equal(t, "Landinn- 3.ts", FileName("Landinn: 3"))
	assert.Equal(t, "Landinn (HD720 - 42min)", FolderName("Landinn", QualityHD720, 42))
	assert.Equal(t, "segment0000.ts", SegmentFileName(0))
	assert.Equal(t, "segment0123.ts", SegmentFileName(123))
}

func TestReadmeText(t *testing.T) {
	text := ReadmeText("Landinn", QualityNormal, 28)

	lines := strings.Split(text, "\n")
	assert.Equal(t, `This folder contains video segments from "Landinn"`, lines[0])
	assert.Equal(t, "Total duration: 28 minutes", lines[1])
	assert.Equal(t, "Quality: Normal", lines[2])
	assert.Contains(t, text, "VLC Media Player")
	assert.Contains(t, text, `ffmpeg -i "concat:segment*.ts" -c copy "Landinn.mp4"`)
}
