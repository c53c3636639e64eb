package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"eyeparse/internal/app"
)

func newServeCommand(c *cli) *cobra.Command {
	var (
		port    int
		dataDir string
		noCache bool
	)
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the parse API, cached datasets and progress events",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Flags().Changed("port") {
				c.cfg.Server.Port = port
			}
			if dataDir != "" {
				c.cfg.Server.DataDir = dataDir
			}
			if noCache {
				c.cfg.Cache.Enabled = false
			}
			if err := c.cfg.Validate(); err != nil {
				return err
			}

			application, err := app.NewApplication(c.cfg, c.logger)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return application.Run(ctx)
		},
	}
	cmd.Flags().IntVarP(&port, "port", "p", 0, "listen port (default from config)")
	cmd.Flags().StringVar(&dataDir, "data-dir", "", "root folder that parse requests are resolved against")
	cmd.Flags().BoolVar(&noCache, "no-cache", false, "disable the dataset cache")
	return cmd
}
