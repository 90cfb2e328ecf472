// Package publish mirrors the rendered frames of finished runs to
// S3-compatible object storage.
package publish

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/seantiz/tsunami/internal/frames"
	"github.com/seantiz/tsunami/internal/geoclaw"
	"github.com/seantiz/tsunami/internal/workspace"
)

// ObjectStore stores objects in a bucket.
type ObjectStore interface {
	Put(ctx context.Context, bucket, key string, body io.Reader, size int64, contentType string) error
}

// Publisher uploads run artifacts under <prefix>/<run_id>/.
type Publisher struct {
	store  ObjectStore
	bucket string
	prefix string
	logger *slog.Logger
}

// NewPublisher creates a Publisher writing to bucket.
func NewPublisher(store ObjectStore, bucket, prefix string, logger *slog.Logger) *Publisher {
	return &Publisher{store: store, bucket: bucket, prefix: prefix, logger: logger}
}

// ObjectKey returns the key a run file is stored under.
func ObjectKey(prefix, runID string, elem ...string) string {
	return path.Join(append([]string{prefix, runID}, elem...)...)
}

// Publish uploads the plot image of every frame in nums plus the run manifest.
// It returns the number of objects written.
func (p *Publisher) Publish(ctx context.Context, rc workspace.RunContext, nums []int) (int, error) {
	type upload struct {
		file, key, contentType string
	}
	uploads := make([]upload, 0, len(nums)+1)
	for _, n := range nums {
		name := frames.PlotName(n)
		uploads = append(uploads, upload{
			file:        filepath.Join(rc.PlotDir, name),
			key:         ObjectKey(p.prefix, rc.RunID, workspace.PlotsDir, name),
			contentType: "image/png",
		})
	}
	manifest := filepath.Join(rc.RunDir, geoclaw.ManifestFile)
	if _, err := os.Stat(manifest); err == nil {
		uploads = append(uploads, upload{
			file:        manifest,
			key:         ObjectKey(p.prefix, rc.RunID, geoclaw.ManifestFile),
			contentType: "application/yaml",
		})
	}

	written := 0
	for _, u := range uploads {
		if err := p.put(ctx, u.file, u.key, u.contentType); err != nil {
			return written, err
		}
		written++
	}

	p.logger.Info("run published", "run_id", rc.RunID, "bucket", p.bucket, "objects", written)
	return written, nil
}

func (p *Publisher) put(ctx context.Context, file, key, contentType string) error {
	f, err := os.Open(file)
	if err != nil {
		return fmt.Errorf("open %s: %w", filepath.Base(file), err)
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return fmt.Errorf("stat %s: %w", filepath.Base(file), err)
	}
	if err := p.store.Put(ctx, p.bucket, key, f, info.Size(), contentType); err != nil {
		return fmt.Errorf("put %s: %w", key, err)
	}
	return nil
}
