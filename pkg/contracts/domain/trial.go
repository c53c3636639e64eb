package domain

import "slices"

// TraceKind identifies what a trace measures
type TraceKind string

const (
	TracePupil     TraceKind = "pupil"
	TraceX         TraceKind = "x"
	TraceY         TraceKind = "y"
	TraceTime      TraceKind = "time"
	TraceEventList TraceKind = "events"
)

// Continuous reports whether the trace is a per-sample time series.
// Event lists hold one entry per event and are never resampled.
func (k TraceKind) Continuous() bool {
	return k != TraceEventList
}

// Trace is a named sequence of samples belonging to one trial.
// Continuous traces carry one timestamp per sample.
type Trace struct {
	Name       string
	Phase      string
	Kind       TraceKind
	Samples    []float64
	Timestamps []float64
}

// Len returns the number of samples
func (t *Trace) Len() int {
	return len(t.Samples)
}

// Clone returns a deep copy of the trace
func (t *Trace) Clone() *Trace {
	return &Trace{
		Name:       t.Name,
		Phase:      t.Phase,
		Kind:       t.Kind,
		Samples:    slices.Clone(t.Samples),
		Timestamps: slices.Clone(t.Timestamps),
	}
}

// Property is one scalar trial property
type Property struct {
	Name  string
	Value Value
}

// Properties keeps trial properties in the order they were first set
type Properties []Property

// Set adds or replaces a property
func (p *Properties) Set(name string, v Value) {
	for i := range *p {
		if (*p)[i].Name == name {
			(*p)[i].Value = v
			return
		}
	}
	*p = append(*p, Property{Name: name, Value: v})
}

// Get returns the value of a property
func (p Properties) Get(name string) (Value, bool) {
	for _, prop := range p {
		if prop.Name == name {
			return prop.Value, true
		}
	}
	return Value{}, false
}

// Trial is one experimental unit bounded by start and end markers
type Trial struct {
	ID    string
	Index int
	Path  string
	Start float64
	End   float64

	Records    []RawRecord
	Properties Properties
	Traces     []*Trace
}

// Trace returns the named trace
func (t *Trial) Trace(name string) (*Trace, bool) {
	for _, tr := range t.Traces {
		if tr.Name == name {
			return tr, true
		}
	}
	return nil, false
}

// PhaseTraces returns the continuous traces of one phase in trial order
func (t *Trial) PhaseTraces(phase string) []*Trace {
	var out []*Trace
	for _, tr := range t.Traces {
		if tr.Phase == phase && tr.Kind.Continuous() {
			out = append(out, tr)
		}
	}
	return out
}

// WithTraces returns a shallow copy of the trial that owns the given traces.
// Records and properties are shared; they are never mutated after segmentation.
func (t *Trial) WithTraces(traces []*Trace) *Trial {
	cp := *t
	cp.Traces = traces
	return &cp
}
