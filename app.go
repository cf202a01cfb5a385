package main

import (
	"context"
	"fmt"
	"strings"

	"vod-segment-downloader/internal/cache"
	"vod-segment-downloader/internal/config"
	"vod-segment-downloader/internal/metrics"
	"vod-segment-downloader/internal/pipeline"
	"vod-segment-downloader/internal/remux"
	"vod-segment-downloader/pkg/logger"
)

// buildCache creates the resolved-manifest cache selected in configuration.
// The returned close function is never nil.
func buildCache(ctx context.Context, cfg config.CacheConfig, log *logger.Logger) (cache.Cache, func(), error) {
	switch strings.ToLower(cfg.Backend) {
	case "redis":
		rc, err := cache.NewRedisCache(ctx, cache.RedisConfig{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		}, log.WithComponent("cache"))
		if err != nil {
			return nil, func() {}, err
		}
		return rc, func() { _ = rc.Close() }, nil
	case "none":
		return cache.NewNoOpCache(), func() {}, nil
	default:
		return cache.NewMemoryCache(), func() {}, nil
	}
}

// buildDownloader wires cache, metrics and remux into a downloader
func buildDownloader(ctx context.Context, cfg *config.Config, log *logger.Logger) (*pipeline.Downloader, func(), error) {
	c, closeCache, err := buildCache(ctx, cfg.Resolver.Cache, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create manifest cache: %w", err)
	}

	opts := append([]pipeline.Option{pipeline.WithCache(c)}, metrics.Options()...)
	if cfg.Output.Remux.Enabled {
		opts = append(opts, pipeline.WithRemuxer(remux.New(remux.Options{
			KeepSource: cfg.Output.Remux.KeepSource,
		}, log.Logger)))
	}

	d, err := pipeline.New(cfg, log.Logger, opts...)
	if err != nil {
		closeCache()
		return nil, nil, err
	}
	return d, closeCache, nil
}
