package domain

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// ValueKind tags the content of a dataset cell
type ValueKind uint8

const (
	ValueUndefined ValueKind = iota
	ValueNumber
	ValueText
	ValueSeries
)

// String returns a readable name for the value kind
func (k ValueKind) String() string {
	switch k {
	case ValueUndefined:
		return "undefined"
	case ValueNumber:
		return "number"
	case ValueText:
		return "text"
	case ValueSeries:
		return "series"
	default:
		return fmt.Sprintf("value(%d)", uint8(k))
	}
}

// Value is one dataset cell. The zero value is Undefined.
type Value struct {
	Kind   ValueKind
	Num    float64
	Text   string
	Series []float64
}

// Undefined returns the placeholder used for missing cells
func Undefined() Value { return Value{} }

// Number wraps a float
func Number(f float64) Value { return Value{Kind: ValueNumber, Num: f} }

// Text wraps a string
func Text(s string) Value { return Value{Kind: ValueText, Text: s} }

// Series wraps a sequence of samples
func Series(xs []float64) Value { return Value{Kind: ValueSeries, Series: xs} }

// ParseValue stores numeric strings as numbers and everything else as text
func ParseValue(s string) Value {
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return Number(f)
	}
	return Text(s)
}

// IsUndefined reports whether the cell is a missing placeholder
func (v Value) IsUndefined() bool {
	return v.Kind == ValueUndefined
}

// IsScalar reports whether the cell holds a number or text
func (v Value) IsScalar() bool {
	return v.Kind == ValueNumber || v.Kind == ValueText
}

// String renders the value for tabular exports
func (v Value) String() string {
	switch v.Kind {
	case ValueNumber:
		return formatFloat(v.Num)
	case ValueText:
		return v.Text
	case ValueSeries:
		out := make([]byte, 0, len(v.Series)*8)
		for i, f := range v.Series {
			if i > 0 {
				out = append(out, ' ')
			}
			out = append(out, formatFloat(f)...)
		}
		return string(out)
	default:
		return ""
	}
}

func formatFloat(f float64) string {
	if math.IsNaN(f) {
		return "nan"
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}

// wireValue is the JSON form of a Value. NaN is written as null.
type wireValue struct {
	Kind   string     `json:"kind"`
	Num    *float64   `json:"num,omitempty"`
	Text   string     `json:"text,omitempty"`
	Series []*float64 `json:"series,omitempty"`
}

// MarshalJSON implements json.Marshaler
func (v Value) MarshalJSON() ([]byte, error) {
	w := wireValue{Kind: v.Kind.String()}
	switch v.Kind {
	case ValueNumber:
		if !math.IsNaN(v.Num) {
			n := v.Num
			w.Num = &n
		}
	case ValueText:
		w.Text = v.Text
	case ValueSeries:
		w.Series = make([]*float64, len(v.Series))
		for i := range v.Series {
			if !math.IsNaN(v.Series[i]) {
				w.Series[i] = &v.Series[i]
			}
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON implements json.Unmarshaler
func (v *Value) UnmarshalJSON(data []byte) error {
	var w wireValue
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	switch w.Kind {
	case "undefined", "":
		*v = Undefined()
	case "number":
		if w.Num == nil {
			*v = Number(math.NaN())
		} else {
			*v = Number(*w.Num)
		}
	case "text":
		*v = Text(w.Text)
	case "series":
		xs := make([]float64, len(w.Series))
		for i, p := range w.Series {
			if p == nil {
				xs[i] = math.NaN()
			} else {
				xs[i] = *p
			}
		}
		*v = Series(xs)
	default:
		return fmt.Errorf("unknown value kind %q", w.Kind)
	}
	return nil
}
