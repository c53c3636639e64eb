package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"eyeparse/internal/edfconv"
)

func newConvertCommand(c *cli) *cobra.Command {
	var outDir string
	cmd := &cobra.Command{
		Use:   "convert-edf <file>...",
		Short: "Convert EDF, EDF+, BDF or BDF+ recordings to text files",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w := cmd.OutOrStdout()
			for _, path := range args {
				res, err := edfconv.Convert(cmd.Context(), path, edfconv.Options{
					OutputDir: outDir,
					Logger:    c.logger,
				})
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%s: %s, %d signals, %d records, %d annotations\n",
					path, res.Header.Format, len(res.Header.DataSignals()), res.Records, res.Annotations)
				for _, out := range []string{res.HeaderPath, res.SignalsPath, res.AnnotationsPath, res.DataPath} {
					if out != "" {
						fmt.Fprintf(w, "  %s\n", out)
					}
				}
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&outDir, "out", "o", "", "output directory (default: next to the input)")
	return cmd
}
