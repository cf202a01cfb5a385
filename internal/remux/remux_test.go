package remux

import (
	"context"
	"path/filepath"
	"strings"
	"testing"

	"github.com/sirupsen/logrus"
)

func TestOutputPath(t *testing.T) {
	if got := OutputPath("/tmp/Fréttir.ts"); got != "/tmp/Fréttir.mp4" {
		t.Errorf("Expected /tmp/Fréttir.mp4, got %s", got)
	}
	if got := OutputPath("/tmp/clip"); got != "/tmp/clip.mp4" {
		t.Errorf("Expected /tmp/clip.mp4, got %s", got)
	}
}

func TestLaunchStringQuotesPaths(t *testing.T) {
	s := launchString(`/tmp/a "b".ts`, "/tmp/out.mp4.partial")

	if !strings.Contains(s, `location="/tmp/a \"b\".ts"`) {
		t.Errorf("source location not quoted: %s", s)
	}
	if !strings.Contains(s, `filesink location="/tmp/out.mp4.partial"`) {
		t.Errorf("sink location not quoted: %s", s)
	}
	for _, element := range []string{"tsdemux", "h264parse", "aacparse", "mp4mux"} {
		if !strings.Contains(s, element) {
			t.Errorf("Expected %s in launch string", element)
		}
	}
}

func TestRemuxMissingSource(t *testing.T) {
	logger := logrus.New()
	logger.SetLevel(logrus.PanicLevel)

	r := New(Options{}, logger)
	_, err := r.Remux(context.Background(), filepath.Join(t.TempDir(), "missing.ts"))
	if err == nil {
		t.Fatal("Expected error for missing source")
	}
}
