package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/alicebob/miniredis/v2"

	"vod-segment-downloader/internal/cache"
	"vod-segment-downloader/internal/config"
	"vod-segment-downloader/pkg/logger"
)

func TestBuildCache(t *testing.T) {
	ctx := context.Background()
	log := logger.Discard()

	c, closeFn, err := buildCache(ctx, config.CacheConfig{Backend: "memory"}, log)
	if err != nil {
		t.Fatalf("memory cache: %v", err)
	}
	defer closeFn()
	if _, ok := c.(*cache.MemoryCache); !ok {
		t.Errorf("Expected *cache.MemoryCache, got %T", c)
	}

	mr := miniredis.RunT(t)
	c, closeFn, err = buildCache(ctx, config.CacheConfig{
		Backend: "redis",
		Redis:   config.RedisConfig{Addr: mr.Addr()},
	}, log)
	if err != nil {
		t.Fatalf("redis cache: %v", err)
	}
	defer closeFn()
	if _, ok := c.(*cache.RedisCache); !ok {
		t.Errorf("Expected *cache.RedisCache, got %T", c)
	}

	c, closeFn, err = buildCache(ctx, config.CacheConfig{Backend: "none"}, log)
	if err != nil {
		t.Fatalf("noop cache: %v", err)
	}
	defer closeFn()
	c.Set(ctx, "k", "v", 0)
	if _, ok := c.Get(ctx, "k"); ok {
		t.Error("Expected noop cache to store nothing")
	}
}

func TestBuildDownloader(t *testing.T) {
	cfg := config.Default()
	cfg.Output.Dir = t.TempDir()

	d, closeFn, err := buildDownloader(context.Background(), cfg, logger.Discard())
	if err != nil {
		t.Fatalf("buildDownloader: %v", err)
	}
	defer closeFn()

	if d.Resolver() == nil {
		t.Error("Expected a resolver")
	}
}

func TestConfigInitCommand(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"config", "init", path})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("config init: %v", err)
	}

	if _, err := os.Stat(path); err != nil {
		t.Fatalf("Expected config file: %v", err)
	}

	cfg, err := config.Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Download.BatchSize != 10 {
		t.Errorf("Expected batch size 10, got %d", cfg.Download.BatchSize)
	}

	// Refuses to overwrite without --force
	rootCmd.SetArgs([]string{"config", "init", path})
	if err := rootCmd.Execute(); err == nil {
		t.Error("Expected error when the file exists")
	}
}
