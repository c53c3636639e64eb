package exporter

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/xuri/excelize/v2"

	"eyeparse/internal/assembler"
	"eyeparse/internal/files"
)

// Sheet names of XLSX exports
const (
	DatasetSheet = "dataset"
	ColumnsSheet = "columns"
)

// WriteXLSX writes the dataset to the dataset sheet in the CSV layout and
// describes each column on the columns sheet
func (e *Exporter) WriteXLSX(ds *assembler.Dataset, path string) error {
	e.logger.Info("writing XLSX file",
		slog.String("path", path),
		slog.Int("rows", ds.Len()))

	f, err := buildWorkbook(ds)
	if err != nil {
		return err
	}
	defer f.Close()

	return files.WriteAtomic(path, func(w io.Writer) error {
		_, err := f.WriteTo(w)
		return err
	})
}

func buildWorkbook(ds *assembler.Dataset) (*excelize.File, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", DatasetSheet); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	if err := writeDatasetSheet(f, ds); err != nil {
		f.Close()
		return nil, err
	}
	if err := writeColumnsSheet(f, ds); err != nil {
		f.Close()
		return nil, err
	}
	return f, nil
}

func writeDatasetSheet(f *excelize.File, ds *assembler.Dataset) error {
	sw, err := f.NewStreamWriter(DatasetSheet)
	if err != nil {
		return fmt.Errorf("failed to open dataset sheet: %w", err)
	}

	columns := ds.Columns()
	header := make([]any, len(columns))
	for i, c := range columns {
		header[i] = c
	}
	if err := sw.SetRow("A1", header); err != nil {
		return fmt.Errorf("failed to write header row: %w", err)
	}

	for r := 0; r < ds.Len(); r++ {
		row := ds.Row(r)
		cells := make([]any, len(row))
		for c, p := range row {
			cells[c] = xlsxCell(p.Value)
		}
		ref, err := excelize.CoordinatesToCellName(1, r+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(ref, cells); err != nil {
			return fmt.Errorf("failed to write row %d: %w", r, err)
		}
	}
	return sw.Flush()
}

func writeColumnsSheet(f *excelize.File, ds *assembler.Dataset) error {
	if _, err := f.NewSheet(ColumnsSheet); err != nil {
		return fmt.Errorf("failed to create columns sheet: %w", err)
	}
	sw, err := f.NewStreamWriter(ColumnsSheet)
	if err != nil {
		return fmt.Errorf("failed to open columns sheet: %w", err)
	}
	if err := sw.SetRow("A1", []any{"name", "kind", "depth", "defined"}); err != nil {
		return err
	}
	for i, info := range ds.Describe() {
		ref, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := sw.SetRow(ref, []any{info.Name, info.Type, info.Depth, info.Count}); err != nil {
			return fmt.Errorf("failed to describe column %s: %w", info.Name, err)
		}
	}
	return sw.Flush()
}
