package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/seantiz/tsunami/internal/config"
	"github.com/seantiz/tsunami/internal/frames"
	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/store"
	"github.com/seantiz/tsunami/internal/workspace"
)

var (
	runsJSON  bool
	runsAll   bool
	runsLimit int
)

var runsCmd = &cobra.Command{
	Use:   "runs",
	Short: "List runs that produced at least one frame",
	Long:  "List runs that produced at least one frame. With --all, list the run ledger instead, failed runs included.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listRuns(cmd)
	},
}

var templatesCmd = &cobra.Command{
	Use:   "templates",
	Short: "List scenario templates",
	RunE: func(cmd *cobra.Command, args []string) error {
		return listTemplates()
	},
}

var framesCmd = &cobra.Command{
	Use:   "frames <run_id>",
	Short: "Print the frame index of a run",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return showFrames(args[0])
	},
}

func registerRunsCommand(root *cobra.Command) {
	root.AddCommand(runsCmd)

	runsCmd.Flags().BoolVar(&runsJSON, "json", false, "Print JSON instead of a table")
	runsCmd.Flags().BoolVarP(&runsAll, "all", "a", false, "List every ledger record, including failed runs")
	runsCmd.Flags().IntVarP(&runsLimit, "limit", "n", 50, "Maximum ledger records to list with --all")
}

func registerTemplatesCommand(root *cobra.Command) {
	root.AddCommand(templatesCmd)
}

func registerFramesCommand(root *cobra.Command) {
	root.AddCommand(framesCmd)
}

type runRow struct {
	RunID      string `json:"run_id"`
	FrameCount int    `json:"n_frames"`
	State      string `json:"state,omitempty"`
}

func listRuns(cmd *cobra.Command) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	if runsAll {
		return listLedger(cmd, a)
	}

	summaries, err := a.workspace.ListRuns()
	if err != nil {
		return err
	}

	rows := make([]runRow, 0, len(summaries))
	for _, s := range summaries {
		row := runRow{RunID: s.RunID, FrameCount: s.FrameCount}
		rec, err := a.store.GetRun(cmd.Context(), s.RunID)
		switch {
		case err == nil:
			row.State = rec.State
		case !errors.Is(err, store.ErrNotFound):
			return err
		}
		rows = append(rows, row)
	}

	if runsJSON {
		return printJSON(rows)
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tFRAMES\tSTATE")
	for _, r := range rows {
		state := r.State
		if state == "" {
			state = "-"
		}
		fmt.Fprintf(tw, "%s\t%d\t%s\n", r.RunID, r.FrameCount, state)
	}
	return tw.Flush()
}

func listLedger(cmd *cobra.Command, a *app) error {
	if runsLimit <= 0 {
		return fmt.Errorf("--limit must be positive, got %d", runsLimit)
	}
	runs, total, err := a.store.ListRuns(cmd.Context(), runsLimit, 0)
	if err != nil {
		return err
	}
	if runsJSON {
		if runs == nil {
			runs = []*model.Run{}
		}
		return printJSON(runs)
	}

	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN ID\tTEMPLATE\tSTATE\tFRAMES\tERROR")
	for _, r := range runs {
		frameCount := "-"
		if r.FrameCount != nil {
			frameCount = strconv.Itoa(*r.FrameCount)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", r.RunID, r.TemplateID, r.State, frameCount, r.Error)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if total > len(runs) {
		fmt.Printf("(%d of %d runs shown)\n", len(runs), total)
	}
	return nil
}

func listTemplates() error {
	templates, err := loadTemplates(cfg)
	if err != nil {
		return err
	}
	tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tNAME")
	for _, t := range templates.List() {
		fmt.Fprintf(tw, "%s\t%s\n", t.ID, t.Name)
	}
	return tw.Flush()
}

func showFrames(runID string) error {
	logger := config.NewLogger(os.Stderr, cfg.LogLevel)
	rc, err := workspace.New(cfg.WorkspaceRoot, logger).Lookup(runID)
	if err != nil {
		return err
	}
	if info, err := os.Stat(rc.PlotDir); err != nil || !info.IsDir() {
		return fmt.Errorf("run %q not found", runID)
	}
	index, err := frames.Index(rc.OutDir, rc.PlotDir)
	if err != nil {
		if index == nil {
			return err
		}
		logger.Warn("frame times partially unavailable", "run_id", runID, "error", err)
	}
	return printJSON(index)
}
