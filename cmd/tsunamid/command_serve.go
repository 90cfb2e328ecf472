package main

import (
	"github.com/spf13/cobra"

	"github.com/seantiz/tsunami/internal/api"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the HTTP API",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serve(cmd)
	},
}

func registerServeCommand(root *cobra.Command) {
	root.AddCommand(serveCmd)

	serveCmd.Flags().StringVarP(&listenAddr, "listen", "l", "", "Listen address (overrides TSUNAMI_LISTEN_ADDR)")
}

func serve(cmd *cobra.Command) error {
	a, err := newApp(cmd.Context(), cfg)
	if err != nil {
		return err
	}
	defer a.close()

	a.logger.Info("tsunamid: starting",
		"listen_addr", cfg.ListenAddr,
		"db_path", cfg.DBPath,
		"workspace_root", cfg.WorkspaceRoot,
		"templates", len(a.templates.List()),
	)

	srv := api.NewServer(cfg.ListenAddr, api.Deps{
		Templates: a.templates,
		Workspace: a.workspace,
		Store:     a.store,
		Runner:    a.pipeline,
		StaticDir: cfg.StaticDir,
	}, a.logger)

	return srv.Run()
}
