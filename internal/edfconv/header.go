package edfconv

import (
	"bytes"
	"strconv"
	"strings"
	"time"
)

const (
	blockSize  = 256
	maxSignals = 256
	fixedScale = int64(time.Second)
)

// Format tells EDF (16-bit samples) from BDF (24-bit samples)
type Format int

const (
	FormatEDF Format = iota
	FormatBDF
)

// SampleSize is the width of one sample in bytes
func (f Format) SampleSize() int {
	if f == FormatBDF {
		return 3
	}
	return 2
}

func (f Format) String() string {
	if f == FormatBDF {
		return "BDF"
	}
	return "EDF"
}

// Header is the decoded file header. Text fields are trimmed.
type Header struct {
	Format         Format
	Plus           bool
	Version        string
	PatientID      string
	RecordingID    string
	StartDate      string
	StartTime      string
	HeaderBytes    int
	Reserved       string
	DataRecords    int
	RecordDuration time.Duration
	Signals        []Signal

	raw []byte
}

// Signal describes one channel of a data record
type Signal struct {
	Label             string
	Transducer        string
	PhysicalDimension string
	PhysicalMin       float64
	PhysicalMax       float64
	DigitalMin        int
	DigitalMax        int
	Prefiltering      string
	SamplesPerRecord  int
	Reserved          string
	Annotation        bool

	index     int
	bufOffset int
	timeStep  int64
	sense     float64
	offset    float64
}

// DataSignals returns the signals that carry samples
func (h *Header) DataSignals() []Signal {
	out := make([]Signal, 0, len(h.Signals))
	for _, s := range h.Signals {
		if !s.Annotation {
			out = append(out, s)
		}
	}
	return out
}

// AnnotationSignals returns the EDF+/BDF+ annotation channels
func (h *Header) AnnotationSignals() []Signal {
	var out []Signal
	for _, s := range h.Signals {
		if s.Annotation {
			out = append(out, s)
		}
	}
	return out
}

// RecordSize is the byte length of one data record
func (h *Header) RecordSize() int {
	n := 0
	for _, s := range h.Signals {
		n += s.SamplesPerRecord
	}
	return n * h.Format.SampleSize()
}

// field returns width bytes at off of the raw header
func (h *Header) field(off, width int) string {
	return string(h.raw[off : off+width])
}

// signalField returns the raw per-signal field. Per-signal fields are laid
// out column by column: all labels first, then all transducers and so on.
func (h *Header) signalField(column, width, i int) string {
	return h.field(blockSize+len(h.Signals)*column+i*width, width)
}

// peekSignalCount reads the signal count from the first header block
func peekSignalCount(block []byte) int {
	return atoi(block[0xfc:0x100])
}

// parseHeader decodes the complete header. Commas are replaced by single
// quotes before anything else because they would break the comma separated
// outputs.
func parseHeader(path string, format Format, raw []byte) (*Header, error) {
	raw = bytes.ReplaceAll(raw, []byte{','}, []byte{'\''})
	ns := peekSignalCount(raw)
	h := &Header{Format: format, raw: raw, Signals: make([]Signal, ns)}

	switch format {
	case FormatEDF:
		if string(raw[:8]) != "0       " {
			return nil, conversionError(path, "EDF header has unknown version")
		}
		h.Version = "0"
	case FormatBDF:
		if raw[0] != 0xff || string(raw[1:8]) != "BIOSEMI" {
			return nil, conversionError(path, "BDF header has unknown version")
		}
		h.Version = "BIOSEMI"
	}

	h.PatientID = strings.TrimSpace(h.field(8, 80))
	h.RecordingID = strings.TrimSpace(h.field(88, 80))
	h.StartDate = strings.TrimSpace(h.field(168, 8))
	h.StartTime = strings.TrimSpace(h.field(176, 8))
	h.HeaderBytes = atoi(raw[184:192])
	h.Reserved = strings.TrimSpace(h.field(192, 44))

	h.DataRecords = atoi(raw[236:244])
	if h.DataRecords < 1 {
		return nil, conversionError(path, "number of data records in header is "+strconv.Itoa(h.DataRecords))
	}
	h.RecordDuration = time.Duration(parseFixed(h.field(244, 8)))

	annotationLabel := "EDF Annotations "
	if format == FormatBDF {
		annotationLabel = "BDF Annotations "
	}
	kind := h.field(192, 10)
	h.Plus = kind == format.String()+"+C     " || kind == format.String()+"+D     "

	offset := 0
	for i := range h.Signals {
		s := &h.Signals[i]
		s.index = i
		s.Label = strings.TrimSpace(h.signalField(0, 16, i))
		s.Transducer = strings.TrimSpace(h.signalField(16, 80, i))
		s.PhysicalDimension = strings.TrimSpace(h.signalField(96, 8, i))
		s.PhysicalMin = atof(h.signalField(104, 8, i))
		s.PhysicalMax = atof(h.signalField(112, 8, i))
		s.DigitalMin = atoi([]byte(h.signalField(120, 8, i)))
		s.DigitalMax = atoi([]byte(h.signalField(128, 8, i)))
		s.Prefiltering = strings.TrimSpace(h.signalField(136, 80, i))
		s.SamplesPerRecord = atoi([]byte(h.signalField(216, 8, i)))
		s.Reserved = strings.TrimSpace(h.signalField(224, 32, i))
		s.Annotation = h.Plus && h.signalField(0, 16, i) == annotationLabel

		if s.SamplesPerRecord < 1 {
			return nil, conversionError(path, "signal "+strconv.Itoa(i+1)+" has no samples per data record")
		}
		s.bufOffset = offset
		offset += s.SamplesPerRecord
		if s.Annotation {
			continue
		}
		if s.DigitalMax == s.DigitalMin {
			return nil, conversionError(path, "signal "+strconv.Itoa(i+1)+" has an empty digital range")
		}
		s.timeStep = int64(h.RecordDuration) / int64(s.SamplesPerRecord)
		s.sense = (s.PhysicalMax - s.PhysicalMin) / float64(s.DigitalMax-s.DigitalMin)
		s.offset = s.PhysicalMax/s.sense - float64(s.DigitalMax)
	}

	if h.Plus && len(h.AnnotationSignals()) == 0 {
		return nil, conversionError(path, "file is marked as "+format.String()+"+ but it has no annotation signal")
	}
	return h, nil
}

// atoi parses a leading integer the way header fields are written: blank
// padded, optionally signed. Anything unparsable reads as zero.
func atoi(b []byte) int {
	s := strings.TrimSpace(string(b))
	end := 0
	for end < len(s) && (s[end] >= '0' && s[end] <= '9' || end == 0 && (s[end] == '-' || s[end] == '+')) {
		end++
	}
	n, err := strconv.Atoi(s[:end])
	if err != nil {
		return 0
	}
	return n
}

func atof(s string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0
	}
	return f
}

// parseFixed reads a decimal number of seconds into nanoseconds without
// going through floating point. Digits past nanosecond precision are
// dropped and parsing stops at the first character that is not part of the
// number.
func parseFixed(s string) int64 {
	s = strings.TrimLeft(s, " ")
	negative := false
	if s != "" && (s[0] == '-' || s[0] == '+') {
		negative = s[0] == '-'
		s = s[1:]
	}

	var whole int64
	i := 0
	for ; i < len(s) && s[i] >= '0' && s[i] <= '9'; i++ {
		whole = whole*10 + int64(s[i]-'0')
	}
	value := whole * fixedScale

	if i < len(s) && s[i] == '.' {
		scale := fixedScale
		for i++; i < len(s) && s[i] >= '0' && s[i] <= '9' && scale > 1; i++ {
			scale /= 10
			value += int64(s[i]-'0') * scale
		}
	}

	if negative {
		return -value
	}
	return value
}

// formatFixed writes nanoseconds as seconds with nine decimals
func formatFixed(ns int64) string {
	sign := ""
	if ns < 0 {
		sign = "-"
		ns = -ns
	}
	frac := strconv.FormatInt(ns%fixedScale, 10)
	return sign + strconv.FormatInt(ns/fixedScale, 10) + "." + strings.Repeat("0", 9-len(frac)) + frac
}
