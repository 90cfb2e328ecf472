// Package render drives the external plot renderer that turns engine output
// into frame images.
package render

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/workspace"
)

// DefaultCommand runs the visclaw plotting driver.
const DefaultCommand = "python -m clawpack.visclaw.plotclaw {outdir} {plotdir} {setplot}"

// LogFile is the renderer's combined output, written into the run directory.
const LogFile = "plot_output.txt"

// CommandRenderer renders frames by running a configured command line. The
// placeholders {outdir}, {plotdir}, {rundir} and {setplot} are substituted
// per run.
type CommandRenderer struct {
	argv    []string
	setplot string
	logger  *slog.Logger
}

// NewCommandRenderer parses command into arguments. An empty command selects
// DefaultCommand.
func NewCommandRenderer(command, setplot string, logger *slog.Logger) (*CommandRenderer, error) {
	if strings.TrimSpace(command) == "" {
		command = DefaultCommand
	}
	argv := strings.Fields(command)
	if setplot != "" {
		abs, err := filepath.Abs(setplot)
		if err != nil {
			return nil, fmt.Errorf("resolve setplot: %w", err)
		}
		setplot = abs
	}
	r := &CommandRenderer{argv: argv, setplot: setplot, logger: logger}
	// Run directories are never empty paths, so a placeholder context shows whether
	// the program word survives substitution.
	if len(r.Args(workspace.RunContext{RunDir: "run", OutDir: "out", PlotDir: "plots"})) == 0 {
		return nil, fmt.Errorf("%w: plot command %q names no program", model.ErrExecutableNotFound, command)
	}
	return r, nil
}

// Args returns the argument vector for a run.
func (r *CommandRenderer) Args(rc workspace.RunContext) []string {
	repl := strings.NewReplacer(
		"{outdir}", rc.OutDir,
		"{plotdir}", rc.PlotDir,
		"{rundir}", rc.RunDir,
		"{setplot}", r.setplot,
	)
	args := make([]string, 0, len(r.argv))
	for _, a := range r.argv {
		a = repl.Replace(a)
		if a == "" {
			continue
		}
		args = append(args, a)
	}
	return args
}

// Render runs the renderer for rc with the run directory as its working
// directory and waits for it to exit.
func (r *CommandRenderer) Render(ctx context.Context, rc workspace.RunContext) error {
	args := r.Args(rc)
	if len(args) == 0 {
		return fmt.Errorf("%w: plot command expands to nothing", model.ErrExecutableNotFound)
	}
	bin, err := exec.LookPath(args[0])
	if err != nil {
		return fmt.Errorf("%w: plot renderer %s: %v", model.ErrExecutableNotFound, args[0], err)
	}

	logPath := filepath.Join(rc.RunDir, LogFile)
	logFile, err := os.Create(logPath)
	if err != nil {
		return fmt.Errorf("%w: create renderer log: %v", model.ErrWorkspace, err)
	}
	defer logFile.Close()

	cmd := exec.CommandContext(ctx, bin, args[1:]...)
	cmd.Dir = rc.RunDir
	cmd.Stdout = logFile
	cmd.Stderr = logFile

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("%w: %w", model.ErrRenderFailed, ctxErr)
		}
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return fmt.Errorf("%w: exit code %d, see %s", model.ErrRenderFailed, exitErr.ExitCode(), logPath)
		}
		return fmt.Errorf("%w: %v", model.ErrRenderFailed, err)
	}

	r.logger.Info("plots rendered", "run_id", rc.RunID, "plotdir", rc.PlotDir, "duration_ms", time.Since(start).Milliseconds())
	return nil
}
