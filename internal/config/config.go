package config

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/seantiz/tsunami/internal/publish"
	"github.com/seantiz/tsunami/internal/render"
	"github.com/seantiz/tsunami/internal/topo"
)

const (
	defaultListenAddr    = ":8000"
	defaultDBPath        = "tsunami.db"
	defaultWorkspaceRoot = "web_runs"
	defaultTopoCacheDir  = "topo_cache"
	defaultGeoClawBin    = "xgeoclaw"
	defaultSetplot       = "setplot.py"
	defaultMinIOBucket   = "tsunami-frames"
	defaultMinIORegion   = "us-east-1"

	envListenAddr     = "TSUNAMI_LISTEN_ADDR"
	envDBPath         = "TSUNAMI_DB_PATH"
	envLogLevel       = "TSUNAMI_LOG_LEVEL"
	envWorkspaceRoot  = "TSUNAMI_WORKSPACE_ROOT"
	envTopoCacheDir   = "TSUNAMI_TOPO_CACHE_DIR"
	envGeoClawBin     = "TSUNAMI_GEOCLAW_BIN"
	envBaseDataDir    = "TSUNAMI_BASE_DATA_DIR"
	envPlotCmd        = "TSUNAMI_PLOT_CMD"
	envSetplot        = "TSUNAMI_SETPLOT"
	envTemplatesFile  = "TSUNAMI_TEMPLATES_FILE"
	envSimTimeout     = "TSUNAMI_SIM_TIMEOUT"
	envERDDAPURL      = "TSUNAMI_ERDDAP_URL"
	envStaticDir      = "TSUNAMI_STATIC_DIR"
	envMinIOEndpoint  = "TSUNAMI_MINIO_ENDPOINT"
	envMinIOAccessKey = "TSUNAMI_MINIO_ACCESS_KEY"
	envMinIOSecretKey = "TSUNAMI_MINIO_SECRET_KEY"
	envMinIORegion    = "TSUNAMI_MINIO_REGION"
	envMinIOUseSSL    = "TSUNAMI_MINIO_USE_SSL"
	envMinIOBucket    = "TSUNAMI_MINIO_BUCKET"
	envMinIOPrefix    = "TSUNAMI_MINIO_PREFIX"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	ListenAddr    string
	DBPath        string
	LogLevel      slog.Level
	WorkspaceRoot string
	TopoCacheDir  string
	GeoClawBin    string
	BaseDataDir   string
	PlotCommand   string
	Setplot       string
	TemplatesFile string
	SimTimeout    time.Duration
	ERDDAPURL     string
	StaticDir     string
	Publish       publish.Config
}

// Load reads configuration from environment variables with sensible defaults.
// It fails only on values that do not parse.
func Load() (Config, error) {
	cfg := Config{
		ListenAddr:    defaultListenAddr,
		DBPath:        defaultDBPath,
		LogLevel:      slog.LevelInfo,
		WorkspaceRoot: defaultWorkspaceRoot,
		TopoCacheDir:  defaultTopoCacheDir,
		GeoClawBin:    defaultGeoClawBin,
		PlotCommand:   render.DefaultCommand,
		Setplot:       defaultSetplot,
		ERDDAPURL:     topo.DefaultERDDAPURL,
		Publish: publish.Config{
			Region: defaultMinIORegion,
			Bucket: defaultMinIOBucket,
		},
	}

	setString(&cfg.ListenAddr, envListenAddr)
	setString(&cfg.DBPath, envDBPath)
	if v := os.Getenv(envLogLevel); v != "" {
		cfg.LogLevel = parseLogLevel(v)
	}
	setString(&cfg.WorkspaceRoot, envWorkspaceRoot)
	setString(&cfg.TopoCacheDir, envTopoCacheDir)
	setString(&cfg.GeoClawBin, envGeoClawBin)
	setString(&cfg.BaseDataDir, envBaseDataDir)
	setString(&cfg.PlotCommand, envPlotCmd)
	setString(&cfg.Setplot, envSetplot)
	setString(&cfg.TemplatesFile, envTemplatesFile)
	setString(&cfg.ERDDAPURL, envERDDAPURL)
	setString(&cfg.StaticDir, envStaticDir)

	if v := os.Getenv(envSimTimeout); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil || d < 0 {
			return Config{}, fmt.Errorf("%s: invalid duration %q", envSimTimeout, v)
		}
		cfg.SimTimeout = d
	}

	setString(&cfg.Publish.Endpoint, envMinIOEndpoint)
	setString(&cfg.Publish.AccessKey, envMinIOAccessKey)
	setString(&cfg.Publish.SecretKey, envMinIOSecretKey)
	setString(&cfg.Publish.Region, envMinIORegion)
	setString(&cfg.Publish.Bucket, envMinIOBucket)
	setString(&cfg.Publish.Prefix, envMinIOPrefix)
	if v := os.Getenv(envMinIOUseSSL); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("%s: invalid boolean %q", envMinIOUseSSL, v)
		}
		cfg.Publish.UseSSL = b
	}
	if cfg.Publish.Enabled() {
		if err := cfg.Publish.Validate(); err != nil {
			return Config{}, fmt.Errorf("frame mirror: %w", err)
		}
	}

	return cfg, nil
}

func setString(dst *string, key string) {
	if v := os.Getenv(key); v != "" {
		*dst = v
	}
}

func parseLogLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// NewLogger creates a structured JSON logger writing to w at the configured level.
func NewLogger(w io.Writer, level slog.Level) *slog.Logger {
	return slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{
		Level: level,
	}))
}
