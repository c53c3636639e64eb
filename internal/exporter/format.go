package exporter

import (
	"math"

	"eyeparse/pkg/contracts/domain"
)

// formatCell renders a cell for text formats
func formatCell(v domain.Value) string {
	return v.String()
}

// xlsxCell returns the value stored in a spreadsheet cell. Spreadsheets
// have no NaN, so missing numbers are written as the text "nan".
func xlsxCell(v domain.Value) any {
	switch v.Kind {
	case domain.ValueNumber:
		if math.IsNaN(v.Num) {
			return "nan"
		}
		return v.Num
	case domain.ValueText, domain.ValueSeries:
		return v.String()
	default:
		return nil
	}
}
