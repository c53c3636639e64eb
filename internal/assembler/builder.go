package assembler

import (
	"fmt"
	"log/slog"

	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	"eyeparse/pkg/contracts/domain"
)

// Options configures a Builder
type Options struct {
	// StrictAlignment requires every series in a column to have one length
	StrictAlignment bool

	Logger *slog.Logger
}

// Builder accumulates trials into a Dataset. It is not safe for
// concurrent use; the pipeline feeds it from a single merge step.
type Builder struct {
	opts   Options
	logger *slog.Logger

	columns []string
	index   map[string]int
	kinds   []ColumnKind
	lengths []int // series length fixed by the first series, strict mode only
	rows    [][]domain.Value
}

// NewBuilder creates an empty builder
func NewBuilder(opts Options) *Builder {
	return &Builder{
		opts:   opts,
		logger: infrastructure.WithComponent(opts.Logger, "assembler"),
		index:  make(map[string]int),
	}
}

// Add appends one trial as a row. On error the builder is left unchanged.
func (b *Builder) Add(trial *domain.Trial) error {
	type cell struct {
		name  string
		value domain.Value
	}
	cells := make([]cell, 0, len(trial.Properties)+len(trial.Traces))
	for _, p := range trial.Properties {
		cells = append(cells, cell{p.Name, p.Value})
	}
	for _, tr := range trial.Traces {
		cells = append(cells, cell{tr.Name, domain.Series(tr.Samples)})
	}

	// check everything before touching the schema
	seen := make(map[string]bool, len(cells))
	for _, c := range cells {
		if seen[c.name] {
			return &apperrors.AssemblyError{Column: c.name, Reason: fmt.Sprintf("set twice in trial %q of %s", trial.ID, trial.Path)}
		}
		seen[c.name] = true

		kind := kindOf(c.value)
		if existing, ok := b.kindOf(c.name); ok && existing != kind {
			return &apperrors.AssemblyError{
				Column: c.name,
				Reason: fmt.Sprintf("trial %q of %s holds a %s where earlier trials hold a %s", trial.ID, trial.Path, kind, existing),
			}
		}

		if b.opts.StrictAlignment && kind == KindSeries {
			if want, fixed := b.seriesLength(c.name); fixed && want != len(c.value.Series) {
				return &apperrors.AssemblyError{
					Column: c.name,
					Reason: fmt.Sprintf("trial %q of %s has %d samples where earlier trials have %d", trial.ID, trial.Path, len(c.value.Series), want),
				}
			}
		}
	}

	row := make([]domain.Value, len(b.columns), len(b.columns)+len(cells))
	for _, c := range cells {
		i, ok := b.index[c.name]
		if !ok {
			i = b.addColumn(c.name, kindOf(c.value))
			row = append(row, domain.Undefined())
		}
		if b.lengths[i] < 0 && c.value.Kind == domain.ValueSeries {
			b.lengths[i] = len(c.value.Series)
		}
		row[i] = c.value
	}
	b.rows = append(b.rows, row)
	return nil
}

// AddAll appends trials in order and stops at the first error
func (b *Builder) AddAll(trials []*domain.Trial) error {
	for _, t := range trials {
		if err := b.Add(t); err != nil {
			return err
		}
	}
	return nil
}

// Len returns the number of rows added so far
func (b *Builder) Len() int {
	return len(b.rows)
}

// Build returns the dataset. Rows added before a column first appeared
// hold Undefined in that column.
func (b *Builder) Build() *Dataset {
	rows := make([][]domain.Value, len(b.rows))
	for i, r := range b.rows {
		full := make([]domain.Value, len(b.columns))
		copy(full, r)
		rows[i] = full
	}
	ds := newDataset(append([]string(nil), b.columns...), append([]ColumnKind(nil), b.kinds...), rows)
	b.logger.Debug("dataset assembled",
		slog.Int("rows", ds.Len()),
		slog.Int("columns", len(ds.columns)))
	return ds
}

func (b *Builder) addColumn(name string, kind ColumnKind) int {
	i := len(b.columns)
	b.columns = append(b.columns, name)
	b.kinds = append(b.kinds, kind)
	b.lengths = append(b.lengths, -1)
	b.index[name] = i
	return i
}

func (b *Builder) kindOf(name string) (ColumnKind, bool) {
	i, ok := b.index[name]
	if !ok {
		return 0, false
	}
	return b.kinds[i], true
}

func (b *Builder) seriesLength(name string) (int, bool) {
	i, ok := b.index[name]
	if !ok || b.lengths[i] < 0 {
		return 0, false
	}
	return b.lengths[i], true
}

// Assemble builds a dataset from per-file trial lists in file order
func Assemble(opts Options, files ...[]*domain.Trial) (*Dataset, error) {
	b := NewBuilder(opts)
	for _, trials := range files {
		if err := b.AddAll(trials); err != nil {
			return nil, err
		}
	}
	return b.Build(), nil
}
