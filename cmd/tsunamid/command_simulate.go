package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/seantiz/tsunami/internal/model"
	"github.com/seantiz/tsunami/internal/pipeline"
)

var (
	simTemplate string
	simLon      float64
	simLat      float64
	simExtent   string
)

var simulateCmd = &cobra.Command{
	Use:   "simulate",
	Short: "Run one simulation and print its frames",
	Long:  "Run one simulation synchronously. Interrupting the command cancels the engine and records the run as failed.",
	RunE: func(cmd *cobra.Command, args []string) error {
		return simulate(cmd)
	},
}

func registerSimulateCommand(root *cobra.Command) {
	root.AddCommand(simulateCmd)

	simulateCmd.Flags().StringVarP(&simTemplate, "template", "t", "", "Scenario template id")
	simulateCmd.Flags().Float64Var(&simLon, "lon", 0, "Fault longitude")
	simulateCmd.Flags().Float64Var(&simLat, "lat", 0, "Fault latitude")
	simulateCmd.Flags().StringVarP(&simExtent, "extent", "e", "", "Domain extent as W,E,S,N")
	simulateCmd.MarkFlagRequired("template")
	simulateCmd.MarkFlagRequired("lon")
	simulateCmd.MarkFlagRequired("lat")
	simulateCmd.MarkFlagRequired("extent")
}

// parseExtent reads a W,E,S,N quadruple.
func parseExtent(s string) (model.Extent, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 4 {
		return model.Extent{}, fmt.Errorf("%w: extent %q must be W,E,S,N", model.ErrInvalidRequest, s)
	}
	var v [4]float64
	for i, p := range parts {
		f, err := strconv.ParseFloat(strings.TrimSpace(p), 64)
		if err != nil {
			return model.Extent{}, fmt.Errorf("%w: extent value %q is not a number", model.ErrInvalidRequest, p)
		}
		v[i] = f
	}
	return model.Extent{West: v[0], East: v[1], South: v[2], North: v[3]}, nil
}

func simulate(cmd *cobra.Command) error {
	extent, err := parseExtent(simExtent)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.close()

	res, err := a.pipeline.Run(ctx, pipeline.Request{
		TemplateID: simTemplate,
		Lon:        simLon,
		Lat:        simLat,
		Extent:     extent,
	})
	if err != nil {
		if ctx.Err() != nil {
			return fmt.Errorf("interrupted: %w", context.Cause(ctx))
		}
		return err
	}
	if res.Frames == nil {
		res.Frames = []model.Frame{}
	}
	return printJSON(res)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
