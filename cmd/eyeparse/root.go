package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"eyeparse/internal/cache"
	"eyeparse/internal/config"
	"eyeparse/internal/infrastructure"
)

// cli carries state shared by the subcommands
type cli struct {
	configPath string
	logLevel   string

	cfg    *config.Config
	logger *slog.Logger
}

func newRootCommand(c *cli) *cobra.Command {
	root := &cobra.Command{
		Use:          config.AppName,
		Short:        "Parse eye-tracker logs into trial datasets",
		Version:      config.AppVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.init()
		},
	}
	root.PersistentFlags().StringVarP(&c.configPath, "config", "c", "", "YAML configuration file")
	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "", "override logging.level (debug, info, warn, error)")

	root.AddCommand(
		newParseCommand(c),
		newWatchCommand(c),
		newServeCommand(c),
		newConvertCommand(c),
		newCacheCommand(c),
	)
	return root
}

// init loads the configuration and, unless a logger was injected, the
// process logger
func (c *cli) init() error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	if c.logLevel != "" {
		cfg.Logging.Level = c.logLevel
		if err := cfg.Validate(); err != nil {
			return fmt.Errorf("invalid --log-level: %w", err)
		}
	}
	c.cfg = cfg

	if c.logger == nil {
		logger, err := infrastructure.InitializeLogger(cfg.Logging)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		c.logger = logger
	}
	return nil
}

// openCache opens dir, or the configured cache when dir is empty and the
// cache is enabled. It returns nil when caching is off.
func (c *cli) openCache(dir string) (*cache.Store, error) {
	if dir == "" {
		if !c.cfg.Cache.Enabled {
			return nil, nil
		}
		dir = c.cfg.Cache.Dir
	}
	return cache.New(cache.Options{Dir: dir, Logger: c.logger})
}

// openCacheDir opens dir, or the configured cache directory whether or not
// caching is enabled for parsing
func (c *cli) openCacheDir(dir string) (*cache.Store, error) {
	if dir == "" {
		dir = c.cfg.Cache.Dir
	}
	return cache.New(cache.Options{Dir: dir, Logger: c.logger})
}
