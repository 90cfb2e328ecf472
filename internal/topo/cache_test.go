package topo

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/seantiz/tsunami/internal/grid"
	"github.com/seantiz/tsunami/internal/model"
)

// countingSource is a fake elevation source that records how often it is hit.
type countingSource struct {
	calls atomic.Int32
	delay time.Duration
	err   error
}

func (s *countingSource) Fetch(ctx context.Context, extent model.Extent, _ string, _ int) (*grid.Topography, error) {
	s.calls.Add(1)
	if s.delay > 0 {
		select {
		case <-time.After(s.delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return &grid.Topography{
		X: grid.Linspace(extent.West, extent.East, 3),
		Y: grid.Linspace(extent.South, extent.North, 2),
		Z: [][]float64{{-4000, -3000, -10}, {-2000, 5, 120}},
	}, nil
}

func newTestCache(t *testing.T, src Source) *Cache {
	t.Helper()
	logger := slog.New(slog.NewJSONHandler(io.Discard, nil))
	return NewCache(t.TempDir(), src, logger)
}

var chileExtent = model.Extent{West: -85, East: -70, South: -45, North: -25}

func TestFetchOrCreateCachesByKey(t *testing.T) {
	src := &countingSource{}
	c := newTestCache(t, src)
	ctx := context.Background()

	first, err := c.FetchOrCreate(ctx, chileExtent, "etopo1", 2)
	if err != nil {
		t.Fatalf("first FetchOrCreate: %v", err)
	}
	info, err := os.Stat(first)
	if err != nil {
		t.Fatalf("stat cache file: %v", err)
	}

	second, err := c.FetchOrCreate(ctx, chileExtent, "etopo1", 2)
	if err != nil {
		t.Fatalf("second FetchOrCreate: %v", err)
	}
	if first != second {
		t.Errorf("paths differ: %q vs %q", first, second)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
	info2, _ := os.Stat(second)
	if !info2.ModTime().Equal(info.ModTime()) {
		t.Errorf("cache file rewritten on hit")
	}

	// A different coarsening is a different key.
	if _, err := c.FetchOrCreate(ctx, chileExtent, "etopo1", 1); err != nil {
		t.Fatalf("coarsen 1: %v", err)
	}
	if got := src.calls.Load(); got != 2 {
		t.Errorf("upstream calls = %d, want 2", got)
	}
}

func TestFetchOrCreateHitSkipsValidation(t *testing.T) {
	src := &countingSource{}
	c := newTestCache(t, src)
	path := c.Path(chileExtent, "etopo1", 2)
	if err := os.WriteFile(path, []byte("truncated"), 0o644); err != nil {
		t.Fatal(err)
	}

	got, err := c.FetchOrCreate(context.Background(), chileExtent, "etopo1", 2)
	if err != nil {
		t.Fatalf("FetchOrCreate: %v", err)
	}
	if got != path || src.calls.Load() != 0 {
		t.Errorf("expected cache hit on existing file, got path %q calls %d", got, src.calls.Load())
	}
}

func TestFetchOrCreateConcurrentMissFetchesOnce(t *testing.T) {
	src := &countingSource{delay: 50 * time.Millisecond}
	c := newTestCache(t, src)

	var wg sync.WaitGroup
	paths := make([]string, 8)
	errs := make([]error, 8)
	for i := range paths {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			paths[i], errs[i] = c.FetchOrCreate(context.Background(), chileExtent, "etopo1", 2)
		}(i)
	}
	wg.Wait()

	for i, err := range errs {
		if err != nil {
			t.Fatalf("caller %d: %v", i, err)
		}
		if paths[i] != paths[0] {
			t.Errorf("caller %d path %q, want %q", i, paths[i], paths[0])
		}
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}

	entries, _ := os.ReadDir(c.Dir())
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), ".tmp") {
			t.Errorf("temporary file left behind: %s", e.Name())
		}
	}
}

func TestFetchOrCreateSourceFailure(t *testing.T) {
	src := &countingSource{err: errors.New("upstream down")}
	c := newTestCache(t, src)

	_, err := c.FetchOrCreate(context.Background(), chileExtent, "etopo1", 2)
	if !errors.Is(err, model.ErrDataSource) {
		t.Fatalf("error = %v, want ErrDataSource", err)
	}
	if _, statErr := os.Stat(c.Path(chileExtent, "etopo1", 2)); !os.IsNotExist(statErr) {
		t.Errorf("failed fetch left a cache file")
	}
}

func TestKeyIsFilesystemSafe(t *testing.T) {
	key := Key(model.Extent{West: -85.12345, East: -70, South: -45.5, North: -25.0004}, "etopo1", 2)
	want := "m85p123_m70p000_m45p500_m25p000_etopo1_c2"
	if key != want {
		t.Errorf("Key = %q, want %q", key, want)
	}
	if strings.ContainsAny(key, "-.") {
		t.Errorf("Key %q contains '-' or '.'", key)
	}
}

func TestKeyIsInjectiveOverGrid(t *testing.T) {
	seen := make(map[string]model.Extent)
	bounds := []float64{-180, -90.5, -1.25, -0.001, 0, 0.001, 1.25, 90.5, 179.999}
	for _, w := range bounds {
		for _, e := range bounds {
			for _, s := range bounds {
				for _, n := range bounds {
					ext := model.Extent{West: w, East: e, South: s, North: n}
					k := Key(ext, "etopo1", 1)
					if prev, dup := seen[k]; dup {
						t.Fatalf("Key collision %q for %+v and %+v", k, prev, ext)
					}
					seen[k] = ext
				}
			}
		}
	}
}

func TestFetchOrCreateCanceledWaiterDoesNotFailOthers(t *testing.T) {
	src := &countingSource{delay: 200 * time.Millisecond}
	c := newTestCache(t, src)

	firstCtx, cancel := context.WithCancel(context.Background())
	defer cancel()
	firstErr := make(chan error, 1)
	go func() {
		_, err := c.FetchOrCreate(firstCtx, chileExtent, "etopo1", 2)
		firstErr <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for src.calls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	secondPath := make(chan string, 1)
	secondErr := make(chan error, 1)
	go func() {
		p, err := c.FetchOrCreate(context.Background(), chileExtent, "etopo1", 2)
		secondPath <- p
		secondErr <- err
	}()
	time.Sleep(20 * time.Millisecond)
	cancel()

	if err := <-firstErr; !errors.Is(err, context.Canceled) {
		t.Errorf("canceled caller error = %v, want context.Canceled", err)
	}
	path := <-secondPath
	if err := <-secondErr; err != nil {
		t.Fatalf("other caller failed with the first caller's cancellation: %v", err)
	}
	if _, err := os.Stat(path); err != nil {
		t.Errorf("cache file missing: %v", err)
	}
	if got := src.calls.Load(); got != 1 {
		t.Errorf("upstream calls = %d, want 1", got)
	}
}
