package topo

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/seantiz/tsunami/internal/grid"
	"github.com/seantiz/tsunami/internal/model"
)

// Source supplies elevation grids for an extent.
type Source interface {
	Fetch(ctx context.Context, extent model.Extent, dataset string, coarsen int) (*grid.Topography, error)
}

// Cache is the shared bathymetry cache rooted at a directory.
type Cache struct {
	dir    string
	source Source
	logger *slog.Logger
	flight singleflight.Group
}

// NewCache creates a cache storing grids under dir and filling misses from source.
func NewCache(dir string, source Source, logger *slog.Logger) *Cache {
	return &Cache{
		dir:    dir,
		source: source,
		logger: logger,
	}
}

// Dir returns the cache root.
func (c *Cache) Dir() string {
	return c.dir
}

// Key returns the filesystem-safe cache tag for a request. Bounds are rounded
// to three decimals; '-' becomes 'm' and '.' becomes 'p'.
func Key(extent model.Extent, dataset string, coarsen int) string {
	tag := fmt.Sprintf("%.3f_%.3f_%.3f_%.3f_%s_c%d",
		extent.West, extent.East, extent.South, extent.North, dataset, coarsen)
	return strings.NewReplacer("-", "m", ".", "p").Replace(tag)
}

// Path returns the cache file a request maps to.
func (c *Cache) Path(extent model.Extent, dataset string, coarsen int) string {
	return filepath.Join(c.dir, "topo_"+Key(extent, dataset, coarsen)+".tt3")
}

// FetchOrCreate returns the cached grid file for the request, fetching and
// writing it on a miss. An existing file is returned as is. Concurrent misses
// for one key share a single upstream fetch, and files appear in the cache
// only once fully written.
func (c *Cache) FetchOrCreate(ctx context.Context, extent model.Extent, dataset string, coarsen int) (string, error) {
	path := c.Path(extent, dataset, coarsen)

	ok, err := exists(path)
	if err != nil {
		cacheRequestsTotal.WithLabelValues(resultError).Inc()
		return "", fmt.Errorf("%w: stat topo cache file: %v", model.ErrWorkspace, err)
	}
	if ok {
		cacheRequestsTotal.WithLabelValues(resultHit).Inc()
		c.logger.Debug("topo cache hit", "path", path)
		return path, nil
	}

	// The fill is shared by every waiter, so it runs detached from any one
	// caller's cancellation. Each caller still stops waiting on its own ctx.
	fillCtx := context.WithoutCancel(ctx)
	ch := c.flight.DoChan(path, func() (any, error) {
		// Another flight may have finished between the stat above and here.
		if ok, err := exists(path); err == nil && ok {
			return nil, nil
		}
		return nil, c.fill(fillCtx, path, extent, dataset, coarsen)
	})

	select {
	case <-ctx.Done():
		cacheRequestsTotal.WithLabelValues(resultError).Inc()
		return "", fmt.Errorf("wait for topography: %w", ctx.Err())
	case res := <-ch:
		if res.Err != nil {
			cacheRequestsTotal.WithLabelValues(resultError).Inc()
			return "", res.Err
		}
		cacheRequestsTotal.WithLabelValues(resultMiss).Inc()
		c.logger.Info("topo cache filled", "path", path, "shared", res.Shared)
		return path, nil
	}
}

func (c *Cache) fill(ctx context.Context, path string, extent model.Extent, dataset string, coarsen int) error {
	start := time.Now()
	defer func() { fetchDuration.Observe(time.Since(start).Seconds()) }()

	if err := os.MkdirAll(c.dir, 0o755); err != nil {
		return fmt.Errorf("%w: create topo cache dir: %v", model.ErrWorkspace, err)
	}

	topo, err := c.source.Fetch(ctx, extent, dataset, coarsen)
	if err != nil {
		if errors.Is(err, model.ErrDataSource) {
			return fmt.Errorf("fetch topography: %w", err)
		}
		return fmt.Errorf("%w: fetch topography: %w", model.ErrDataSource, err)
	}

	tmp, err := os.CreateTemp(c.dir, ".topo-*.tmp")
	if err != nil {
		return fmt.Errorf("%w: create temp topo file: %v", model.ErrWorkspace, err)
	}
	tmpPath := tmp.Name()
	if err := grid.WriteTopo(tmp, topo); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("%w: write topography: %w", model.ErrDataSource, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: close temp topo file: %v", model.ErrWorkspace, err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("%w: rename topo file: %v", model.ErrWorkspace, err)
	}

	c.logger.Info("topography written",
		"path", path,
		"dataset", dataset,
		"coarsen", coarsen,
		"nx", len(topo.X),
		"ny", len(topo.Y),
		"duration_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

func exists(path string) (bool, error) {
	_, err := os.Stat(path)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	return false, err
}
