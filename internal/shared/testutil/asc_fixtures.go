package testutil

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
)

// ASCBuilder writes EyeLink-style ASCII logs for tests.
// Sample lines use fixed gaze coordinates unless written with SampleXY.
type ASCBuilder struct {
	sb   strings.Builder
	next int
	rate int
}

// NewASC starts a log with the usual converter header and recording block.
// Samples are spaced 1000/rate milliseconds apart.
func NewASC(rate int) *ASCBuilder {
	if rate <= 0 {
		rate = 1000
	}
	a := &ASCBuilder{next: 1000, rate: rate}
	a.Line("** CONVERTED FROM TEST.EDF using edfapi 4.2")
	a.Line("** DATE: Mon Jan  1 10:00:00 2024")
	a.Line("")
	a.Line("START\t1000 \tLEFT\tSAMPLES\tEVENTS")
	a.Line("PRESCALER\t1")
	a.Line("VPRESCALER\t1")
	a.Line("PUPIL\tAREA")
	a.Line("EVENTS\tGAZE\tLEFT\tRATE\t" + strconv.Itoa(rate) + ".00\tTRACKING\tCR\tFILTER\t2")
	a.Line("SAMPLES\tGAZE\tLEFT\tRATE\t" + strconv.Itoa(rate) + ".00\tTRACKING\tCR\tFILTER\t2")
	return a
}

// Step returns the sample interval in milliseconds
func (a *ASCBuilder) Step() int {
	return 1000 / a.rate
}

// Now returns the timestamp the next sample will carry
func (a *ASCBuilder) Now() int {
	return a.next
}

// Line appends a raw line
func (a *ASCBuilder) Line(s string) *ASCBuilder {
	a.sb.WriteString(s)
	a.sb.WriteByte('\n')
	return a
}

// Msg appends a MSG line stamped with the current time
func (a *ASCBuilder) Msg(text string) *ASCBuilder {
	return a.Line(fmt.Sprintf("MSG\t%d %s", a.next, text))
}

// StartTrial appends a trial start marker, with an id when one is given
func (a *ASCBuilder) StartTrial(id string) *ASCBuilder {
	if id == "" {
		return a.Msg("start_trial")
	}
	return a.Msg("start_trial " + id)
}

// EndTrial appends a trial end marker
func (a *ASCBuilder) EndTrial() *ASCBuilder {
	return a.Msg("end_trial")
}

// Var appends a trial property message
func (a *ASCBuilder) Var(name string, value any) *ASCBuilder {
	return a.Msg(fmt.Sprintf("var %s %v", name, value))
}

// Samples appends one sample line per pupil value. NaN is written as '.'.
func (a *ASCBuilder) Samples(pupils ...float64) *ASCBuilder {
	for _, p := range pupils {
		a.SampleXY(512, 384, p)
	}
	return a
}

// SampleXY appends one sample with explicit gaze coordinates
func (a *ASCBuilder) SampleXY(x, y, pupil float64) *ASCBuilder {
	a.Line(fmt.Sprintf("%d\t%s\t%s\t%s\t...", a.next, field(x), field(y), field(pupil)))
	a.next += a.Step()
	return a
}

// Blink appends SBLINK, n missing samples and EBLINK
func (a *ASCBuilder) Blink(n int) *ASCBuilder {
	start := a.next
	a.Line(fmt.Sprintf("SBLINK L %d", start))
	for i := 0; i < n; i++ {
		a.Line(fmt.Sprintf("%d\t.\t.\t0.0\t...", a.next))
		a.next += a.Step()
	}
	end := a.next - a.Step()
	return a.Line(fmt.Sprintf("EBLINK L %d\t%d\t%d", start, end, end-start+a.Step()))
}

// Fixation appends SFIX, n samples at (x, y) and EFIX
func (a *ASCBuilder) Fixation(x, y, pupil float64, n int) *ASCBuilder {
	start := a.next
	a.Line(fmt.Sprintf("SFIX L   %d", start))
	for i := 0; i < n; i++ {
		a.SampleXY(x, y, pupil)
	}
	end := a.next - a.Step()
	return a.Line(fmt.Sprintf("EFIX L   %d\t%d\t%d\t  %s\t  %s\t  %s",
		start, end, end-start+a.Step(), field(x), field(y), field(pupil)))
}

// String returns the log text
func (a *ASCBuilder) String() string {
	return a.sb.String()
}

// WriteFile writes the log into dir and returns its path
func (a *ASCBuilder) WriteFile(t testing.TB, dir, name string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(a.String()), 0o644); err != nil {
		t.Fatalf("writing fixture %s: %v", path, err)
	}
	return path
}

func field(v float64) string {
	if math.IsNaN(v) {
		return "."
	}
	return strconv.FormatFloat(v, 'f', 1, 64)
}
