// Package geoclaw writes the run configuration for the GeoClaw engine and
// drives the engine binary to completion.
package geoclaw

import (
	"bytes"
	"context"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/workspace"
)

// NumOutputTimes is the number of output frames every run produces after t0.
const NumOutputTimes = 6

// File names written into a run directory.
const (
	ClawDataFile  = "claw.data"
	TopoDataFile  = "topo.data"
	DtopoDataFile = "dtopo.data"
	ManifestFile  = "run.yaml"
	OutputLogFile = "geoclaw_output.txt"
)

//go:embed claw.data
var defaultClawData []byte

// Config configures the engine adapter.
type Config struct {
	// Binary is the engine executable, either a path or a name looked up on PATH.
	Binary string
	// BaseDataDir holds the *.data set generated once by setrun. When empty
	// the built-in claw.data is used.
	BaseDataDir string
	// Timeout bounds a single invocation. Zero means no deadline.
	Timeout time.Duration
}

// Manifest records the resolved configuration of a run.
type Manifest struct {
	RunID          string       `yaml:"run_id"`
	Template       string       `yaml:"template"`
	Extent         model.Extent `yaml:"extent"`
	NumCells       [2]int       `yaml:"num_cells"`
	FinalTime      float64      `yaml:"tfinal"`
	NumOutputTimes int          `yaml:"num_output_times"`
	TopoFile       string       `yaml:"topo_file"`
	DtopoFile      string       `yaml:"dtopo_file"`
	ConfiguredAt   time.Time    `yaml:"configured_at"`
}

// Invoker configures and runs the simulation engine for a run workspace.
type Invoker struct {
	cfg    Config
	logger *slog.Logger
}

// New creates an Invoker.
func New(cfg Config, logger *slog.Logger) *Invoker {
	return &Invoker{cfg: cfg, logger: logger}
}

// Configure writes the engine input files for a run into rc.RunDir: the domain
// bounds and cell counts, the final time, the output frame count, and the topo
// and dtopo file references. A run.yaml manifest of the same values is written
// alongside.
func (inv *Invoker) Configure(rc workspace.RunContext, tmpl model.Template, extent model.Extent, topoPath, dtopoPath string) error {
	if err := extent.Validate(); err != nil {
		return err
	}
	if err := tmpl.ValidateGrid(); err != nil {
		return err
	}
	topoAbs, err := filepath.Abs(topoPath)
	if err != nil {
		return fmt.Errorf("%w: resolve topo path: %v", model.ErrWorkspace, err)
	}
	dtopoAbs, err := filepath.Abs(dtopoPath)
	if err != nil {
		return fmt.Errorf("%w: resolve dtopo path: %v", model.ErrWorkspace, err)
	}

	base := defaultClawData
	if inv.cfg.BaseDataDir != "" {
		if err := copyDataFiles(inv.cfg.BaseDataDir, rc.RunDir); err != nil {
			return fmt.Errorf("%w: copy base data: %v", model.ErrWorkspace, err)
		}
		base, err = os.ReadFile(filepath.Join(rc.RunDir, ClawDataFile))
		if err != nil {
			return fmt.Errorf("%w: base data dir has no usable %s: %v", model.ErrWorkspace, ClawDataFile, err)
		}
	}

	claw, err := ParseDataFile(bytes.NewReader(base))
	if err != nil {
		return fmt.Errorf("%w: %v", model.ErrWorkspace, err)
	}
	claw.Set("lower", extent.West, extent.South)
	claw.Set("upper", extent.East, extent.North)
	claw.Set("num_cells", tmpl.GridNX, tmpl.GridNY)
	claw.Set("tfinal", tmpl.FinalTimeSeconds())
	claw.Set("num_output_times", NumOutputTimes)

	files := map[string]io.WriterTo{
		ClawDataFile:  claw,
		TopoDataFile:  gridFileList("ntopofiles", "topo_type", topoAbs),
		DtopoDataFile: gridFileList("mdtopofiles", "dtopo_type", dtopoAbs),
	}
	for name, df := range files {
		if err := writeFile(filepath.Join(rc.RunDir, name), df); err != nil {
			return err
		}
	}

	manifest := Manifest{
		RunID:          rc.RunID,
		Template:       tmpl.ID,
		Extent:         extent,
		NumCells:       [2]int{tmpl.GridNX, tmpl.GridNY},
		FinalTime:      tmpl.FinalTimeSeconds(),
		NumOutputTimes: NumOutputTimes,
		TopoFile:       topoAbs,
		DtopoFile:      dtopoAbs,
		ConfiguredAt:   time.Now().UTC(),
	}
	data, err := yaml.Marshal(manifest)
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	if err := os.WriteFile(filepath.Join(rc.RunDir, ManifestFile), data, 0o644); err != nil {
		return fmt.Errorf("%w: write manifest: %v", model.ErrWorkspace, err)
	}

	inv.logger.Info("run configured",
		"run_id", rc.RunID,
		"template", tmpl.ID,
		"num_cells", manifest.NumCells,
		"tfinal", manifest.FinalTime,
	)
	return nil
}

// Invoke runs the engine against the configuration in rc.RunDir with rc.OutDir
// as its working directory, blocking until it exits. Engine output goes to
// geoclaw_output.txt in the output directory.
func (inv *Invoker) Invoke(ctx context.Context, rc workspace.RunContext) error {
	bin, err := exec.LookPath(inv.cfg.Binary)
	if err != nil {
		simulationsTotal.WithLabelValues(resultNotFound).Inc()
		return fmt.Errorf("%w: %s: %v", model.ErrExecutableNotFound, inv.cfg.Binary, err)
	}
	if bin, err = filepath.Abs(bin); err != nil {
		return fmt.Errorf("%w: %v", model.ErrExecutableNotFound, err)
	}

	if err := copyDataFiles(rc.RunDir, rc.OutDir); err != nil {
		return fmt.Errorf("%w: stage data files: %v", model.ErrWorkspace, err)
	}

	logPath := filepath.Join(rc.OutDir, OutputLogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("%w: create engine log: %v", model.ErrWorkspace, err)
	}
	defer logFile.Close()

	if inv.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, inv.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, bin)
	cmd.Dir = rc.OutDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	inv.logger.Info("simulation started", "run_id", rc.RunID, "binary", bin, "outdir", rc.OutDir)
	start := time.Now()
	err = cmd.Run()
	elapsed := time.Since(start)
	simulationDuration.Observe(elapsed.Seconds())

	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			simulationsTotal.WithLabelValues(resultCanceled).Inc()
			return fmt.Errorf("%w: %w", model.ErrSimulationFailed, ctxErr)
		}
		simulationsTotal.WithLabelValues(resultFailure).Inc()
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit code %d, see %s", model.ErrSimulationFailed, exitErr.ExitCode(), logPath)
		}
		return fmt.Errorf("%w: %v", model.ErrSimulationFailed, err)
	}

	simulationsTotal.WithLabelValues(resultSuccess).Inc()
	inv.logger.Info("simulation finished", "run_id", rc.RunID, "duration_ms", elapsed.Milliseconds())
	return nil
}

// gridFileList builds a topo.data or dtopo.data file referencing one type-3
// grid file.
func gridFileList(countKey, typeKey, path string) *DataFile {
	df := &DataFile{lines: []dataLine{{raw: "# generated by tsunamid"}, {}}}
	df.Set(countKey, 1)
	df.lines = append(df.lines, dataLine{}, dataLine{raw: formatValue(path)})
	df.Set(typeKey, 3)
	return df
}

func writeFile(path string, src io.WriterTo) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("%w: create %s: %v", model.ErrWorkspace, filepath.Base(path), err)
	}
	if _, err := src.WriteTo(f); err != nil {
		f.Close()
		return fmt.Errorf("%w: write %s: %v", model.ErrWorkspace, filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("%w: close %s: %v", model.ErrWorkspace, filepath.Base(path), err)
	}
	return nil
}

// copyDataFiles copies every *.data file in src into dst.
func copyDataFiles(src, dst string) error {
	matches, err := filepath.Glob(filepath.Join(src, "*.data"))
	if err != nil {
		return err
	}
	for _, m := range matches {
		if err := copyFile(m, filepath.Join(dst, filepath.Base(m))); err != nil {
			return err
		}
	}
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}
