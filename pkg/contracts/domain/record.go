package domain

import (
	"fmt"
	"math"
)

// RecordKind tags the variant held by a RawRecord
type RecordKind uint8

const (
	RecordMessage    RecordKind = iota + 1 // MSG lines
	RecordSample                           // numeric sample lines
	RecordEventStart                       // SFIX, SSACC, SBLINK
	RecordEventEnd                         // EFIX, ESACC, EBLINK
	RecordMeta                             // recording configuration and header lines
)

// String returns a readable name for the record kind
func (k RecordKind) String() string {
	switch k {
	case RecordMessage:
		return "message"
	case RecordSample:
		return "sample"
	case RecordEventStart:
		return "event-start"
	case RecordEventEnd:
		return "event-end"
	case RecordMeta:
		return "meta"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// EventType identifies the tracker event carried by event records
type EventType string

const (
	EventFixation EventType = "FIX"
	EventSaccade  EventType = "SACC"
	EventBlink    EventType = "BLINK"
)

// RawRecord is one parsed line of an eye-tracker log.
// Exactly one of Message, Sample or Event is meaningful, selected by Kind.
type RawRecord struct {
	Kind    RecordKind
	Line    int
	Time    float64
	HasTime bool

	// Message holds the MSG text, or the keyword line for meta records
	Message string
	Sample  Sample
	Event   Event
}

// Sample is one gaze sample. Missing values are NaN.
type Sample struct {
	X     float64
	Y     float64
	Pupil float64

	// Right eye values, only set for binocular recordings
	Binocular bool
	XR        float64
	YR        float64
	PupilR    float64
}

// Eye returns the x, y and pupil values for the requested eye.
// Monocular samples always report their single eye.
func (s Sample) Eye(right bool) (x, y, pupil float64) {
	if right && s.Binocular {
		return s.XR, s.YR, s.PupilR
	}
	return s.X, s.Y, s.Pupil
}

// Event is a fixation, saccade or blink reported by the tracker.
// Start-event records only fill Type, Eye and Start.
type Event struct {
	Type     EventType
	Eye      string
	Start    float64
	End      float64
	Duration float64

	// Fixation averages
	X     float64
	Y     float64
	Pupil float64

	// Saccade geometry
	StartX       float64
	StartY       float64
	EndX         float64
	EndY         float64
	Amplitude    float64
	PeakVelocity float64
}

// Missing reports whether a decoded log value was absent (".")
func Missing(v float64) bool {
	return math.IsNaN(v)
}
