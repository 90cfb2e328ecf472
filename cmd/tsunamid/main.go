package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/seantiz/tsunami/internal/config"
)

var (
	cfg config.Config

	listenAddr string
)

var rootCmd = &cobra.Command{
	Use:           "tsunamid",
	Short:         "Tsunami run orchestration service",
	Long:          "tsunamid places an earthquake fault, runs a GeoClaw tsunami simulation, renders its frames and serves the results.",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		loaded, err := config.Load()
		if err != nil {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
		if listenAddr != "" {
			cfg.ListenAddr = listenAddr
		}
		return nil
	},
}

func init() {
	registerServeCommand(rootCmd)
	registerSimulateCommand(rootCmd)
	registerRunsCommand(rootCmd)
	registerTemplatesCommand(rootCmd)
	registerFramesCommand(rootCmd)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "tsunamid:", err)
		os.Exit(1)
	}
}
