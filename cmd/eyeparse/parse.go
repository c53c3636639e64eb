package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"eyeparse/internal/config"
	"eyeparse/internal/exporter"
	"eyeparse/internal/pipeline"
	"eyeparse/internal/traceprocessor"
)

// parseFlags are the options shared by parse and watch
type parseFlags struct {
	blinkReconstruct bool
	downsample       int
	mode             string
	method           string
	eye              string
	out              string
	cacheDir         string
	noCache          bool
	workers          int
	skipMalformed    bool
}

func (f *parseFlags) register(cmd *cobra.Command) {
	fl := cmd.Flags()
	fl.BoolVar(&f.blinkReconstruct, "blinkreconstruct", false, "reconstruct pupil traces during blinks")
	fl.IntVar(&f.downsample, "downsample", 0, "keep one sample per N (default from config)")
	fl.StringVar(&f.mode, "mode", "", "blink detection mode: basic or advanced")
	fl.StringVar(&f.method, "downsample-method", "", "mean or decimate")
	fl.StringVar(&f.eye, "eye", "", "eye to keep from binocular recordings: left or right")
	fl.StringVarP(&f.out, "out", "o", "", "output file (.csv, .xlsx or .json); CSV to stdout when empty")
	fl.StringVar(&f.cacheDir, "cache", "", "dataset cache directory (default from config when enabled)")
	fl.BoolVar(&f.noCache, "no-cache", false, "neither read nor write the cache")
	fl.IntVar(&f.workers, "workers", 0, "files parsed in parallel (default from config)")
	fl.BoolVar(&f.skipMalformed, "skip-malformed", false, "skip malformed lines instead of failing the file")
}

// apply overlays the flags the user set on the loaded configuration
func (f *parseFlags) apply(cmd *cobra.Command, cfg *config.Config) error {
	fl := cmd.Flags()
	if fl.Changed("blinkreconstruct") {
		cfg.Processor.BlinkReconstruct = f.blinkReconstruct
	}
	if fl.Changed("downsample") {
		cfg.Processor.Downsample = f.downsample
	}
	if fl.Changed("mode") {
		cfg.Processor.Mode = f.mode
	}
	if fl.Changed("downsample-method") {
		cfg.Processor.DownsampleMethod = f.method
	}
	if fl.Changed("eye") {
		cfg.Parser.Eye = f.eye
	}
	if fl.Changed("workers") {
		cfg.Parser.Workers = f.workers
	}
	if f.skipMalformed {
		cfg.Parser.MalformedPolicy = config.PolicySkip
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid flags: %w", err)
	}
	return nil
}

func newParseCommand(c *cli) *cobra.Command {
	flags := &parseFlags{}
	cmd := &cobra.Command{
		Use:   "parse <folder>",
		Short: "Parse every log in a folder into one dataset",
		Args:  cobra.ExactArgs(1),
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
			return run.execute(cmd.Context(), folder, cmd.OutOrStdout(), cmd.ErrOrStderr())
		},
	}
	flags.register(cmd)
	return cmd
}

// parseRun is one configured parse followed by an export
type parseRun struct {
	out       string
	processor *traceprocessor.Processor
	options   []pipeline.Option
	exporter  *exporter.Exporter
	logger    *slog.Logger
}

func (c *cli) newParseRun(flags *parseFlags) (*parseRun, error) {
	procOpts := traceprocessor.OptionsFromConfig(c.cfg.Processor)
	procOpts.Logger = c.logger

	options := []pipeline.Option{
		pipeline.WithParserConfig(c.cfg.Parser),
		pipeline.WithLogger(c.logger),
	}
	if !flags.noCache {
		store, err := c.openCache(flags.cacheDir)
		if err != nil {
			return nil, err
		}
		if store != nil {
			options = append(options, pipeline.WithCache(store))
		}
	}

	return &parseRun{
		out:       flags.out,
		processor: traceprocessor.New(procOpts),
		options:   options,
		exporter:  exporter.New(exporter.Options{Logger: c.logger}),
		logger:    c.logger,
	}, nil
}

// execute parses folder, writes the dataset and prints a summary to
// status. Without an output file the dataset goes to stdout as CSV.
func (r *parseRun) execute(ctx context.Context, folder string, stdout, status io.Writer) error {
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := pipeline.Parse(ctx, folder, r.processor, r.options...)
	if err != nil {
		return err
	}

	if r.out == "" {
		if err := r.exporter.EncodeCSV(result.Dataset, stdout); err != nil {
			return fmt.Errorf("failed to write dataset: %w", err)
		}
	} else if err := r.exporter.Write(result.Dataset, r.out); err != nil {
		return err
	}

	printSummary(status, result, r.out)
	return nil
}

func printSummary(w io.Writer, result *pipeline.Result, out string) {
	fmt.Fprintf(w, "%d trials, %d columns from %d files in %s",
		result.Dataset.Len(), len(result.Dataset.Columns()), len(result.Files), result.Duration.Round(time.Millisecond))
	if result.Cached {
		fmt.Fprint(w, " (cached)")
	}
	fmt.Fprintln(w)
	if result.CacheKey != "" {
		fmt.Fprintf(w, "cache key: %s\n", result.CacheKey)
	}
	if out != "" {
		fmt.Fprintf(w, "written to %s\n", out)
	}
	for _, f := range result.Failed() {
		fmt.Fprintf(w, "failed: %s: %s\n", f.Path, strings.TrimSpace(f.Err.Error()))
	}
}
