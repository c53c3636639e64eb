package assembler

import (
	"encoding/hex"
	"encoding/json"
	"fmt"

	"golang.org/x/crypto/blake2b"

	apperrors "eyeparse/internal/errors"
	"eyeparse/pkg/contracts/domain"
)

// ColumnKind tells scalar columns from series columns
type ColumnKind uint8

const (
	KindScalar ColumnKind = iota + 1
	KindSeries
)

func (k ColumnKind) String() string {
	switch k {
	case KindScalar:
		return "scalar"
	case KindSeries:
		return "series"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

func kindOf(v domain.Value) ColumnKind {
	if v.Kind == domain.ValueSeries {
		return KindSeries
	}
	return KindScalar
}

// ColumnInfo describes one dataset column
type ColumnInfo struct {
	Name  string     `json:"name"`
	Kind  ColumnKind `json:"-"`
	Type  string     `json:"kind"`
	Depth int        `json:"depth"`
	Count int        `json:"defined"`
}

// Dataset is the immutable result of assembly: one row per trial, one
// column per property or trace name in first-seen order.
type Dataset struct {
	columns []string
	kinds   []ColumnKind
	index   map[string]int
	rows    [][]domain.Value
}

func newDataset(columns []string, kinds []ColumnKind, rows [][]domain.Value) *Dataset {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		index[c] = i
	}
	return &Dataset{columns: columns, kinds: kinds, index: index, rows: rows}
}

// Empty returns a dataset without rows or columns
func Empty() *Dataset {
	return newDataset(nil, nil, nil)
}

// Len returns the number of rows
func (d *Dataset) Len() int {
	return len(d.rows)
}

// Columns returns the column names in order
func (d *Dataset) Columns() []string {
	return append([]string(nil), d.columns...)
}

// Has reports whether the dataset has the column
func (d *Dataset) Has(name string) bool {
	_, ok := d.index[name]
	return ok
}

// Column returns the cells of one column, one per row
func (d *Dataset) Column(name string) ([]domain.Value, error) {
	i, ok := d.index[name]
	if !ok {
		return nil, &apperrors.NoSuchColumnError{Column: name}
	}
	out := make([]domain.Value, len(d.rows))
	for r, row := range d.rows {
		out[r] = row[i]
	}
	return out, nil
}

// Kind returns whether the column holds scalars or series
func (d *Dataset) Kind(name string) (ColumnKind, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, &apperrors.NoSuchColumnError{Column: name}
	}
	return d.kinds[i], nil
}

// Row returns the cells of row i paired with their column names.
// It panics if i is out of range.
func (d *Dataset) Row(i int) domain.Properties {
	row := make(domain.Properties, len(d.columns))
	for c, name := range d.columns {
		row[c] = domain.Property{Name: name, Value: d.rows[i][c]}
	}
	return row
}

// Select returns a dataset restricted to the named columns, in the given order
func (d *Dataset) Select(names ...string) (*Dataset, error) {
	idx := make([]int, len(names))
	kinds := make([]ColumnKind, len(names))
	for n, name := range names {
		i, ok := d.index[name]
		if !ok {
			return nil, &apperrors.NoSuchColumnError{Column: name}
		}
		idx[n] = i
		kinds[n] = d.kinds[i]
	}
	rows := make([][]domain.Value, len(d.rows))
	for r, row := range d.rows {
		out := make([]domain.Value, len(idx))
		for n, i := range idx {
			out[n] = row[i]
		}
		rows[r] = out
	}
	return newDataset(append([]string(nil), names...), kinds, rows), nil
}

// Depth returns the longest series length in a column. Scalar columns
// have depth 1.
func (d *Dataset) Depth(name string) (int, error) {
	i, ok := d.index[name]
	if !ok {
		return 0, &apperrors.NoSuchColumnError{Column: name}
	}
	return d.depth(i), nil
}

func (d *Dataset) depth(i int) int {
	if d.kinds[i] == KindScalar {
		return 1
	}
	depth := 0
	for _, row := range d.rows {
		depth = max(depth, len(row[i].Series))
	}
	return depth
}

// Describe summarizes every column
func (d *Dataset) Describe() []ColumnInfo {
	out := make([]ColumnInfo, len(d.columns))
	for i, name := range d.columns {
		count := 0
		for _, row := range d.rows {
			if !row[i].IsUndefined() {
				count++
			}
		}
		out[i] = ColumnInfo{
			Name:  name,
			Kind:  d.kinds[i],
			Type:  d.kinds[i].String(),
			Depth: d.depth(i),
			Count: count,
		}
	}
	return out
}

// Fingerprint returns a BLAKE2b-256 digest of the dataset contents.
// Equal datasets have equal fingerprints.
func (d *Dataset) Fingerprint() string {
	data, err := json.Marshal(d)
	if err != nil {
		// values always marshal; NaN is encoded as null
		panic(fmt.Sprintf("marshal dataset: %v", err))
	}
	sum := blake2b.Sum256(data)
	return hex.EncodeToString(sum[:])
}

type wireDataset struct {
	Columns []string         `json:"columns"`
	Kinds   []string         `json:"kinds"`
	Rows    [][]domain.Value `json:"rows"`
}

// MarshalJSON implements json.Marshaler
func (d *Dataset) MarshalJSON() ([]byte, error) {
	w := wireDataset{
		Columns: d.columns,
		Kinds:   make([]string, len(d.kinds)),
		Rows:    d.rows,
	}
	if w.Columns == nil {
		w.Columns = []string{}
	}
	if w.Rows == nil {
		w.Rows = [][]domain.Value{}
	}
	for i, k := range d.kinds {
		w.Kinds[i] = k.String()
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Dataset) UnmarshalJSON(data []byte) error {
	var w wireDataset
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	if len(w.Kinds) != len(w.Columns) {
		return fmt.Errorf("dataset has %d columns but %d kinds", len(w.Columns), len(w.Kinds))
	}
	kinds := make([]ColumnKind, len(w.Kinds))
	for i, k := range w.Kinds {
		switch k {
		case "scalar":
			kinds[i] = KindScalar
		case "series":
			kinds[i] = KindSeries
		default:
			return fmt.Errorf("column %q has unknown kind %q", w.Columns[i], k)
		}
	}
	for r, row := range w.Rows {
		if len(row) != len(w.Columns) {
			return fmt.Errorf("row %d has %d cells for %d columns", r, len(row), len(w.Columns))
		}
	}
	*d = *newDataset(w.Columns, kinds, w.Rows)
	return nil
}
