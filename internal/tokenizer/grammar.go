package tokenizer

import (
	"math"
	"strconv"
	"strings"

	"eyeparse/pkg/contracts/domain"
)

// metaKeywords are recording configuration lines. The ones that carry a
// timestamp in their second field are marked true.
var metaKeywords = map[string]bool{
	"START":      true,
	"END":        true,
	"INPUT":      true,
	"BUTTON":     true,
	"SAMPLES":    false,
	"EVENTS":     false,
	"PRESCALER":  false,
	"VPRESCALER": false,
	"PUPIL":      false,
	"PARSEDBY":   false,
}

// lineState carries what earlier lines revealed about the recording
type lineState struct {
	binocular bool
	known     bool
}

// observe updates the eye layout from SAMPLES and START lines
func (s *lineState) observe(fields []string) {
	if fields[0] != "SAMPLES" && fields[0] != "START" {
		return
	}
	var left, right bool
	for _, f := range fields[1:] {
		switch f {
		case "LEFT":
			left = true
		case "RIGHT":
			right = true
		}
	}
	if left || right {
		s.binocular = left && right
		s.known = true
	}
}

// parseLine decodes one log line. ok is false for blank lines, which carry
// no record. A non-empty reason means the line matched no grammar.
func parseLine(line string, n int, state *lineState) (rec domain.RawRecord, ok bool, reason string) {
	trimmed := strings.TrimRight(line, "\r\n")
	fields := strings.Fields(trimmed)
	if len(fields) == 0 {
		return rec, false, ""
	}
	rec.Line = n

	head := fields[0]
	switch {
	case strings.HasPrefix(head, "**"):
		rec.Kind = domain.RecordMeta
		rec.Message = strings.TrimSpace(trimmed)
		return rec, true, ""

	case head == "MSG":
		return parseMessage(rec, trimmed, fields)

	case head == "SFIX" || head == "SSACC" || head == "SBLINK":
		return parseEventStart(rec, fields)

	case head == "EFIX" || head == "ESACC" || head == "EBLINK":
		return parseEventEnd(rec, fields)
	}

	if timed, isMeta := metaKeywords[head]; isMeta {
		rec.Kind = domain.RecordMeta
		rec.Message = strings.TrimSpace(trimmed)
		if timed && len(fields) > 1 {
			if t, err := strconv.ParseFloat(fields[1], 64); err == nil {
				rec.Time, rec.HasTime = t, true
			}
		}
		state.observe(fields)
		return rec, true, ""
	}

	if _, err := strconv.ParseFloat(head, 64); err == nil {
		return parseSample(rec, fields, state)
	}

	return rec, false, "unrecognized record type"
}

func parseMessage(rec domain.RawRecord, line string, fields []string) (domain.RawRecord, bool, string) {
	if len(fields) < 2 {
		return rec, false, "message without timestamp"
	}
	t, err := strconv.ParseFloat(fields[1], 64)
	if err != nil {
		return rec, false, "invalid message timestamp"
	}
	rec.Kind = domain.RecordMessage
	rec.Time, rec.HasTime = t, true

	text := afterFields(line, 2)
	// MSG <time> <offset> <text>: the event happened offset ms before the stamp
	if len(fields) > 3 {
		if off, err := strconv.Atoi(fields[2]); err == nil {
			rec.Time = t - float64(off)
			text = afterFields(line, 3)
		}
	}
	rec.Message = text
	return rec, true, ""
}

func parseEventStart(rec domain.RawRecord, fields []string) (domain.RawRecord, bool, string) {
	if len(fields) < 3 {
		return rec, false, "event start needs eye and time"
	}
	t, err := strconv.ParseFloat(fields[2], 64)
	if err != nil {
		return rec, false, "invalid event start time"
	}
	rec.Kind = domain.RecordEventStart
	rec.Time, rec.HasTime = t, true
	rec.Event = domain.Event{
		Type:  domain.EventType(strings.TrimPrefix(fields[0], "S")),
		Eye:   fields[1],
		Start: t,
	}
	return rec, true, ""
}

// minimum field counts of end events, including the keyword
var endEventFields = map[string]int{
	"EFIX":   8,
	"ESACC":  11,
	"EBLINK": 5,
}

func parseEventEnd(rec domain.RawRecord, fields []string) (domain.RawRecord, bool, string) {
	head := fields[0]
	if len(fields) < endEventFields[head] {
		return rec, false, "truncated " + head + " line"
	}
	nums, ok := parseValues(fields[2:endEventFields[head]])
	if !ok {
		return rec, false, "invalid number in " + head + " line"
	}
	if math.IsNaN(nums[0]) || math.IsNaN(nums[1]) {
		return rec, false, head + " without start or end time"
	}

	ev := domain.Event{
		Type:     domain.EventType(strings.TrimPrefix(head, "E")),
		Eye:      fields[1],
		Start:    nums[0],
		End:      nums[1],
		Duration: nums[2],
	}
	switch head {
	case "EFIX":
		ev.X, ev.Y, ev.Pupil = nums[3], nums[4], nums[5]
	case "ESACC":
		ev.StartX, ev.StartY = nums[3], nums[4]
		ev.EndX, ev.EndY = nums[5], nums[6]
		ev.Amplitude, ev.PeakVelocity = nums[7], nums[8]
	}

	rec.Kind = domain.RecordEventEnd
	rec.Time, rec.HasTime = ev.End, true
	rec.Event = ev
	return rec, true, ""
}

func parseSample(rec domain.RawRecord, fields []string, state *lineState) (domain.RawRecord, bool, string) {
	t, _ := strconv.ParseFloat(fields[0], 64)

	// numeric columns end at the first flag token such as "..." or "C.R.."
	var values []float64
	for _, f := range fields[1:] {
		v, ok := parseValue(f)
		if !ok {
			break
		}
		values = append(values, v)
	}
	if len(values) < 3 {
		return rec, false, "sample needs x, y and pupil"
	}

	binocular := len(values) >= 6
	if state.known {
		binocular = state.binocular
	}
	if binocular && len(values) < 6 {
		return rec, false, "binocular sample needs six values"
	}

	s := domain.Sample{X: values[0], Y: values[1], Pupil: values[2]}
	if binocular {
		s.Binocular = true
		s.XR, s.YR, s.PupilR = values[3], values[4], values[5]
	}

	rec.Kind = domain.RecordSample
	rec.Time, rec.HasTime = t, true
	rec.Sample = s
	return rec, true, ""
}

// parseValue decodes a numeric column where "." marks a missing value
func parseValue(f string) (float64, bool) {
	if f == "." {
		return math.NaN(), true
	}
	v, err := strconv.ParseFloat(f, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}

func parseValues(fields []string) ([]float64, bool) {
	out := make([]float64, len(fields))
	for i, f := range fields {
		v, ok := parseValue(f)
		if !ok {
			return nil, false
		}
		out[i] = v
	}
	return out, true
}

// afterFields returns line with its first n whitespace separated fields
// removed, keeping the remaining text byte for byte.
func afterFields(line string, n int) string {
	rest := line
	for i := 0; i < n; i++ {
		rest = strings.TrimLeft(rest, " \t")
		idx := strings.IndexAny(rest, " \t")
		if idx < 0 {
			return ""
		}
		rest = rest[idx:]
	}
	return strings.TrimLeft(rest, " \t")
}
