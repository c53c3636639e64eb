package exporter

import (
	"encoding/csv"
	"fmt"
	"io"
	"log/slog"

	"eyeparse/internal/assembler"
	"eyeparse/internal/files"
)

// utf8BOM helps Excel recognize UTF-8 CSV files
var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// WriteCSV writes the dataset with one column per dataset column. Series
// are written as space-separated numbers, NaN as "nan" and Undefined as an
// empty field.
func (e *Exporter) WriteCSV(ds *assembler.Dataset, path string) error {
	e.logger.Info("writing CSV file",
		slog.String("path", path),
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.Columns())))

	return files.WriteAtomic(path, func(w io.Writer) error {
		return e.EncodeCSV(ds, w)
	})
}

// EncodeCSV writes the CSV form of ds to w
func (e *Exporter) EncodeCSV(ds *assembler.Dataset, w io.Writer) error {
	if e.bomPrefix {
		if _, err := w.Write(utf8BOM); err != nil {
			return fmt.Errorf("failed to write BOM: %w", err)
		}
	}

	writer := csv.NewWriter(w)
	if err := writer.Write(ds.Columns()); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	record := make([]string, len(ds.Columns()))
	for i := 0; i < ds.Len(); i++ {
		for c, cell := range ds.Row(i) {
			record[c] = formatCell(cell.Value)
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record %d: %w", i, err)
		}
	}
	writer.Flush()
	return writer.Error()
}
