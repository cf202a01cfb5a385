package pipeline

import (
	"context"
	"math"
	"net/http"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const defaultBatchSize = 10

// FetcherOptions configures a Fetcher
type FetcherOptions struct {
	BatchSize int // 1 fetches sequentially
	Retry     RetryPolicy
}

// SegmentObserver is told about every finished segment request
type SegmentObserver func(bytes int, elapsed time.Duration, err error)

// Fetcher downloads the segments of a job in ordered batches and hands them
// to a Sink. A batch is fully written before the next one starts.
type Fetcher struct {
	client    *http.Client
	opts      FetcherOptions
	logger    *logrus.Entry
	onSegment SegmentObserver
}

// NewFetcher creates a new segment fetcher
func NewFetcher(client *http.Client, opts FetcherOptions, logger *logrus.Entry) *Fetcher {
	if opts.BatchSize <= 0 {
		opts.BatchSize = defaultBatchSize
	}
	return &Fetcher{
		client: client,
		opts:   opts,
		logger: logger.WithField("component", "fetcher"),
	}
}

// Percent converts a completed segment count to a progress percentage
func Percent(done, total int) int {
	if total <= 0 {
		return 100
	}
	p := int(math.Round(float64(done) / float64(total) * 100))
	if p < 0 {
		return 0
	}
	if p > 100 {
		return 100
	}
	return p
}

// Fetch downloads every segment of job into sink. progress is called after
// each batch with the overall percentage. On error nothing more is written;
// aborting the sink is left to the caller.
func (f *Fetcher) Fetch(ctx context.Context, job *Job, sink Sink, progress func(percent int)) error {
	total := len(job.Segments)
	job.TotalSegments = total
	started := time.Now()

	for start := 0; start < total; start += f.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return canceled(err)
		}

		end := start + f.opts.BatchSize
		if end > total {
			end = total
		}

		bodies, err := f.fetchBatch(ctx, job, start, end)
		if err != nil {
			if ctx.Err() != nil {
				return canceled(ctx.Err())
			}
			return err
		}

		for i, body := range bodies {
			if err := sink.WriteSegment(start+i, body); err != nil {
				return err
			}
			job.BytesDownloaded += int64(len(body))
		}

		f.logger.WithFields(logrus.Fields{
			"job_id":   job.ID,
			"segments": end,
			"total":    total,
			"bytes":    humanize.Bytes(uint64(job.BytesDownloaded)),
		}).Debug("Batch written")

		if progress != nil {
			progress(Percent(end, total))
		}
	}

	f.logger.WithFields(logrus.Fields{
		"job_id":   job.ID,
		"segments": total,
		"bytes":    humanize.Bytes(uint64(job.BytesDownloaded)),
		"elapsed":  time.Since(started).Round(time.Millisecond).String(),
	}).Info("All segments downloaded")

	return nil
}

// fetchBatch fetches segments [start, end) concurrently. Every request in the
// batch runs to completion and the lowest failing index is reported, so the
// error does not depend on which response arrived first.
func (f *Fetcher) fetchBatch(ctx context.Context, job *Job, start, end int) ([][]byte, error) {
	bodies := make([][]byte, end-start)
	errs := make([]error, end-start)
	var g errgroup.Group

	for i := start; i < end; i++ {
		index := i
		g.Go(func() error {
			body, err := f.fetchSegment(ctx, job, index)
			if err != nil {
				errs[index-start] = err
				return err
			}
			bodies[index-start] = body
			return nil
		})
	}

	if g.Wait() == nil {
		return bodies, nil
	}
	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}
	return bodies, nil
}

func (f *Fetcher) fetchSegment(ctx context.Context, job *Job, index int) ([]byte, error) {
	segmentURL, err := resolveReference(job.BaseURL, job.Segments[index].URI)
	if err != nil {
		return nil, segmentFetchFailed(index, 0, job.Segments[index].URI, err)
	}

	for attempt := 0; ; attempt++ {
		begin := time.Now()
		body, status, err := get(ctx, f.client, segmentURL, job.Headers)
		if f.onSegment != nil {
			f.onSegment(len(body), time.Since(begin), err)
		}
		if err == nil {
			return body, nil
		}

		if isContextErr(err) || !f.opts.Retry.shouldRetry(attempt, status) {
			f.logger.WithFields(logrus.Fields{
				"job_id": job.ID,
				"index":  index,
				"status": status,
				"url":    segmentURL,
			}).WithError(err).Debug("Segment fetch failed")
			return nil, segmentFetchFailed(index, status, segmentURL, err)
		}

		f.logger.WithFields(logrus.Fields{
			"job_id":  job.ID,
			"index":   index,
			"status":  status,
			"attempt": attempt + 1,
		}).Warn("Retrying segment")

		if f.opts.Retry.Delay > 0 {
			timer := time.NewTimer(f.opts.Retry.Delay)
			select {
			case <-ctx.Done():
				timer.Stop()
				return nil, segmentFetchFailed(index, status, segmentURL, ctx.Err())
			case <-timer.C:
			}
		}
	}
}
