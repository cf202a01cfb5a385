// Package remux rewraps an MPEG-TS recording into an MP4 container with
// GStreamer. Streams are copied, never re-encoded.
package remux

import (
	"context"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-gst/go-gst/gst"
	"github.com/sirupsen/logrus"
)

var initOnce sync.Once

// Options controls a Remuxer
type Options struct {
	KeepSource   bool          // leave the .ts file next to the .mp4
	PollInterval time.Duration // bus poll interval, defaults to 100ms
}

// Remuxer converts finished transport streams to MP4
type Remuxer struct {
	opts   Options
	logger *logrus.Entry
}

// New creates a new remuxer
func New(opts Options, logger *logrus.Logger) *Remuxer {
	initOnce.Do(func() {
		gst.Init(nil)
	})
	if opts.PollInterval <= 0 {
		opts.PollInterval = 100 * time.Millisecond
	}
	return &Remuxer{
		opts:   opts,
		logger: logger.WithField("component", "remux"),
	}
}

// OutputPath returns the MP4 path for a transport stream file
func OutputPath(src string) string {
	return strings.TrimSuffix(src, ".ts") + ".mp4"
}

// quote escapes a value for use inside a gst-launch description
func quote(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, `"`, `\"`)
	return `"` + s + `"`
}

// launchString builds the demux/parse/mux chain for src -> dst
func launchString(src, dst string) string {
	return fmt.Sprintf("filesrc location=%s ! tsdemux name=demux "+
		"mp4mux name=mux faststart=true ! filesink location=%s "+
		"demux. ! queue ! h264parse ! mux. "+
		"demux. ! queue ! aacparse ! mux.",
		quote(src), quote(dst))
}

// Remux converts src and returns the path of the MP4 file. The MP4 is written
// to a partial file first and renamed once the muxer reached end of stream.
func (r *Remuxer) Remux(ctx context.Context, src string) (string, error) {
	if _, err := os.Stat(src); err != nil {
		return "", fmt.Errorf("source not readable: %w", err)
	}

	dst := OutputPath(src)
	partial := dst + ".partial"

	pipeline, err := gst.NewPipelineFromString(launchString(src, partial))
	if err != nil {
		return "", fmt.Errorf("failed to create remux pipeline: %w", err)
	}

	if err := pipeline.SetState(gst.StatePlaying); err != nil {
		_ = pipeline.SetState(gst.StateNull)
		_ = os.Remove(partial)
		return "", fmt.Errorf("failed to start remux pipeline: %w", err)
	}

	r.logger.WithField("source", src).Info("Remuxing to MP4")
	runErr := r.wait(ctx, pipeline.GetPipelineBus())
	_ = pipeline.SetState(gst.StateNull)

	if runErr != nil {
		_ = os.Remove(partial)
		return "", runErr
	}

	if err := os.Rename(partial, dst); err != nil {
		_ = os.Remove(partial)
		return "", fmt.Errorf("failed to move MP4 into place: %w", err)
	}

	if !r.opts.KeepSource {
		if err := os.Remove(src); err != nil {
			r.logger.WithError(err).Warn("Failed to remove transport stream after remux")
		}
	}

	r.logger.WithField("output", dst).Info("Remux finished")
	return dst, nil
}

// wait pops bus messages until end of stream, an error or cancellation
func (r *Remuxer) wait(ctx context.Context, bus *gst.Bus) error {
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		msg := bus.TimedPop(gst.ClockTime(r.opts.PollInterval))
		if msg == nil {
			continue
		}

		switch msg.Type() {
		case gst.MessageEOS:
			msg.Unref()
			return nil
		case gst.MessageError:
			gerr := msg.ParseError()
			msg.Unref()
			if debug := gerr.DebugString(); debug != "" {
				r.logger.Debugf("Debug: %s", debug)
			}
			return fmt.Errorf("remux pipeline error: %s", gerr.Error())
		case gst.MessageWarning:
			gerr := msg.ParseWarning()
			r.logger.Warnf("Remux warning: %s", gerr.Error())
		}
		msg.Unref()
	}
}
