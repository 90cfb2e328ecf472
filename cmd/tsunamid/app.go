package main

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/seantiz/tsunami/internal/catalog"
	"github.com/seantiz/tsunami/internal/config"
	"github.com/seantiz/tsunami/internal/deform"
	"github.com/seantiz/tsunami/internal/geoclaw"
	"github.com/seantiz/tsunami/internal/pipeline"
	"github.com/seantiz/tsunami/internal/publish"
	"github.com/seantiz/tsunami/internal/render"
	"github.com/seantiz/tsunami/internal/store"
	"github.com/seantiz/tsunami/internal/topo"
	"github.com/seantiz/tsunami/internal/workspace"
)

// erddapTimeout bounds a single bathymetry download.
const erddapTimeout = 5 * time.Minute

// app holds the wired collaborators shared by every subcommand.
type app struct {
	logger    *slog.Logger
	templates *catalog.Registry
	workspace *workspace.Workspace
	store     *store.SQLiteStore
	pipeline  *pipeline.Pipeline
}

func loadTemplates(cfg config.Config) (*catalog.Registry, error) {
	if cfg.TemplatesFile == "" {
		return catalog.Default()
	}
	return catalog.LoadFile(cfg.TemplatesFile)
}

// newApp wires the run pipeline from cfg. The caller must call close.
func newApp(ctx context.Context, cfg config.Config) (*app, error) {
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)

	templates, err := loadTemplates(cfg)
	if err != nil {
		return nil, fmt.Errorf("load templates: %w", err)
	}

	db, err := store.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	ws := workspace.New(cfg.WorkspaceRoot, logger)

	renderer, err := render.NewCommandRenderer(cfg.PlotCommand, cfg.Setplot, logger)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("plot command: %w", err)
	}

	source := topo.NewERDDAPSource(cfg.ERDDAPURL, &http.Client{Timeout: erddapTimeout}, nil)

	deps := pipeline.Deps{
		Templates: templates,
		Topo:      topo.NewCache(cfg.TopoCacheDir, source, logger),
		Deform:    deform.NewGenerator(logger),
		Workspace: ws,
		Simulator: geoclaw.New(geoclaw.Config{
			Binary:      cfg.GeoClawBin,
			BaseDataDir: cfg.BaseDataDir,
			Timeout:     cfg.SimTimeout,
		}, logger),
		Renderer: renderer,
		Store:    db,
	}

	if cfg.Publish.Enabled() {
		pub, err := newPublisher(ctx, cfg.Publish, logger)
		if err != nil {
			db.Close()
			return nil, err
		}
		deps.Publisher = pub
	}

	return &app{
		logger:    logger,
		templates: templates,
		workspace: ws,
		store:     db,
		pipeline:  pipeline.New(deps, logger),
	}, nil
}

func newPublisher(ctx context.Context, cfg publish.Config, logger *slog.Logger) (*publish.Publisher, error) {
	client, err := publish.NewMinIOClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("frame mirror client: %w", err)
	}
	if err := publish.EnsureBucket(ctx, client, cfg); err != nil {
		return nil, fmt.Errorf("frame mirror bucket: %w", err)
	}
	objects, err := publish.NewMinioStore(client)
	if err != nil {
		return nil, fmt.Errorf("frame mirror store: %w", err)
	}
	logger.Info("frame mirror enabled", "endpoint", cfg.Endpoint, "bucket", cfg.Bucket)
	return publish.NewPublisher(objects, cfg.Bucket, cfg.Prefix, logger), nil
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		a.logger.Warn("close database", "error", err)
	}
}
