package exporter

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"strings"

	"eyeparse/internal/assembler"
	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/files"
	"eyeparse/internal/infrastructure"
)

// Options configures an Exporter
type Options struct {
	// BOMPrefix starts CSV files with a UTF-8 byte order mark
	BOMPrefix bool
	Logger    *slog.Logger
}

// Exporter writes datasets to files
type Exporter struct {
	bomPrefix bool
	logger    *slog.Logger
}

// New creates an exporter
func New(opts Options) *Exporter {
	return &Exporter{
		bomPrefix: opts.BOMPrefix,
		logger:    infrastructure.WithComponent(opts.Logger, "exporter"),
	}
}

// Formats lists the supported output extensions
var Formats = []string{".csv", ".xlsx", ".json"}

// Write picks the format from the extension of path
func (e *Exporter) Write(ds *assembler.Dataset, path string) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".csv":
		return e.WriteCSV(ds, path)
	case ".xlsx":
		return e.WriteXLSX(ds, path)
	case ".json":
		return e.WriteJSON(ds, path)
	default:
		return apperrors.NewAppValidationError(fmt.Sprintf("unsupported output format %q, want one of %s",
			filepath.Ext(path), strings.Join(Formats, ", ")))
	}
}

// WriteJSON writes the dataset in the same layout the cache stores it
func (e *Exporter) WriteJSON(ds *assembler.Dataset, path string) error {
	e.logger.Info("writing JSON file",
		slog.String("path", path),
		slog.Int("rows", ds.Len()))

	return files.WriteAtomic(path, func(w io.Writer) error {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(ds)
	})
}
