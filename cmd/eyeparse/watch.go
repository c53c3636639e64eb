package main

import (
	"context"
	"log/slog"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"eyeparse/internal/config"
	"eyeparse/internal/watch"
)

func newWatchCommand(c *cli) *cobra.Command {
	flags := &parseFlags{}
	var debounce time.Duration
	cmd := &cobra.Command{
		Use:   "watch <folder>",
		Short: "Parse a folder and parse it again whenever its logs change",
		Long: "watch parses the folder once, then re-parses after every burst of changes\n" +
			"to its log files. With --out the dataset file is rewritten on each pass.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := flags.apply(cmd, c.cfg); err != nil {
				return err
			}
			folder, err := config.ResolveFolder(args[0])
			if err != nil {
				return err
			}
			run, err := c.newParseRun(flags)
			if err != nil {
				return err
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			rebuild := func(ctx context.Context) error {
				return run.execute(ctx, folder, cmd.OutOrStdout(), cmd.ErrOrStderr())
			}
			if err := rebuild(ctx); err != nil {
				c.logger.ErrorContext(ctx, "initial parse failed", slog.String("error", err.Error()))
			}

			w := watch.New(folder, rebuild, watch.Options{
				Extension: c.cfg.Parser.Extension,
				Debounce:  debounce,
				Logger:    c.logger,
			})
			return w.Run(ctx)
		},
	}
	flags.register(cmd)
	cmd.Flags().DurationVar(&debounce, "debounce", watch.DefaultDebounce, "quiet period before re-parsing")
	return cmd
}
