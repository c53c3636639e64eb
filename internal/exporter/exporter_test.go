package exporter

import (
	"bytes"
	"encoding/csv"
	"encoding/json"
	"math"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"eyeparse/internal/assembler"
	apperrors "eyeparse/internal/errors"
	"eyeparse/pkg/contracts/domain"
)

func testDataset(t *testing.T) *assembler.Dataset {
	t.Helper()
	first := &domain.Trial{ID: "0"}
	first.Properties.Set("trialid", domain.Number(0))
	first.Properties.Set("cond", domain.Text("easy, fast"))
	first.Traces = []*domain.Trace{{Name: "ptrace_trial", Kind: domain.TracePupil, Samples: []float64{1.5, math.NaN(), 3}}}

	second := &domain.Trial{ID: "1"}
	second.Properties.Set("trialid", domain.Number(1))
	second.Properties.Set("rt", domain.Number(math.NaN()))

	ds, err := assembler.Assemble(assembler.Options{}, []*domain.Trial{first, second})
	require.NoError(t, err)
	return ds
}

func TestEncodeCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{}).EncodeCSV(testDataset(t), &buf))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	assert.Equal(t, [][]string{
		{"trialid", "cond", "ptrace_trial", "rt"},
		{"0", "easy, fast", "1.5 nan 3", ""},
		{"1", "", "", "nan"},
	}, records)
}

func TestEncodeCSVWithBOM(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, New(Options{BOMPrefix: true}).EncodeCSV(testDataset(t), &buf))
	assert.True(t, bytes.HasPrefix(buf.Bytes(), utf8BOM))
}

func TestWriteXLSX(t *testing.T) {
	path := filepath.Join(t.TempDir(), "out", "dataset.xlsx")
	require.NoError(t, New(Options{}).WriteXLSX(testDataset(t), path))

	f, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(DatasetSheet)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, []string{"trialid", "cond", "ptrace_trial", "rt"}, rows[0])
	assert.Equal(t, "easy, fast", rows[1][1])
	assert.Equal(t, "1.5 nan 3", rows[1][2])
	assert.Equal(t, "nan", rows[2][3])

	cols, err := f.GetRows(ColumnsSheet)
	require.NoError(t, err)
	require.Len(t, cols, 5)
	assert.Equal(t, []string{"name", "kind", "depth", "defined"}, cols[0])
	assert.Equal(t, []string{"ptrace_trial", "series", "3", "1"}, cols[3])
}

func TestWriteJSON(t *testing.T) {
	ds := testDataset(t)
	path := filepath.Join(t.TempDir(), "dataset.json")
	require.NoError(t, New(Options{}).WriteJSON(ds, path))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var back assembler.Dataset
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, ds.Fingerprint(), back.Fingerprint())
}

func TestWriteByExtension(t *testing.T) {
	dir := t.TempDir()
	ex := New(Options{})
	ds := testDataset(t)

	for _, name := range []string{"a.csv", "b.XLSX", "c.json"} {
		require.NoError(t, ex.Write(ds, filepath.Join(dir, name)), name)
		assert.FileExists(t, filepath.Join(dir, name))
	}

	err := ex.Write(ds, filepath.Join(dir, "d.parquet"))
	assert.Equal(t, apperrors.ErrTypeValidation, apperrors.TypeOf(err))
}

func TestXLSXCell(t *testing.T) {
	assert.Nil(t, xlsxCell(domain.Undefined()))
	assert.Equal(t, 2.5, xlsxCell(domain.Number(2.5)))
	assert.Equal(t, "nan", xlsxCell(domain.Number(math.NaN())))
	assert.Equal(t, "1 2", xlsxCell(domain.Series([]float64{1, 2})))
}
