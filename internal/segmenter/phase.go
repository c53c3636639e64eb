package segmenter

import (
	"math"

	"eyeparse/pkg/contracts/domain"
)

// TrialPhase names the implicit phase that spans a whole trial
const TrialPhase = "trial"

// phaseBuffer accumulates the samples and events of one phase
type phaseBuffer struct {
	name string

	times []float64
	pupil []float64
	x     []float64
	y     []float64

	fixX     []float64
	fixY     []float64
	fixStart []float64
	fixEnd   []float64

	blinkStart []float64
	blinkEnd   []float64
}

func (p *phaseBuffer) addSample(t, x, y, pupil float64) {
	p.times = append(p.times, t)
	p.x = append(p.x, x)
	p.y = append(p.y, y)
	p.pupil = append(p.pupil, pupil)
}

func (p *phaseBuffer) addFixation(ev domain.Event) {
	p.fixX = append(p.fixX, ev.X)
	p.fixY = append(p.fixY, ev.Y)
	p.fixStart = append(p.fixStart, ev.Start)
	p.fixEnd = append(p.fixEnd, ev.End)
}

func (p *phaseBuffer) addBlink(ev domain.Event) {
	p.blinkStart = append(p.blinkStart, ev.Start)
	p.blinkEnd = append(p.blinkEnd, ev.End)
}

// traces converts the buffer into named traces. Phases without samples
// produce nothing.
func (p *phaseBuffer) traces() []*domain.Trace {
	if len(p.times) == 0 {
		return nil
	}
	continuous := func(prefix string, kind domain.TraceKind, samples []float64) *domain.Trace {
		return &domain.Trace{
			Name:       prefix + "_" + p.name,
			Phase:      p.name,
			Kind:       kind,
			Samples:    samples,
			Timestamps: p.times,
		}
	}
	events := func(prefix string, samples []float64) *domain.Trace {
		if samples == nil {
			samples = []float64{}
		}
		return &domain.Trace{
			Name:    prefix + "_" + p.name,
			Phase:   p.name,
			Kind:    domain.TraceEventList,
			Samples: samples,
		}
	}
	return []*domain.Trace{
		continuous("ptrace", domain.TracePupil, p.pupil),
		continuous("xtrace", domain.TraceX, p.x),
		continuous("ytrace", domain.TraceY, p.y),
		continuous("ttrace", domain.TraceTime, append([]float64(nil), p.times...)),
		events("fixxlist", p.fixX),
		events("fixylist", p.fixY),
		events("fixstlist", p.fixStart),
		events("fixetlist", p.fixEnd),
		events("blinkstlist", p.blinkStart),
		events("blinketlist", p.blinkEnd),
	}
}

// validPupil maps non-positive pupil sizes, which trackers report while
// the eye is lost, to NaN
func validPupil(p float64) float64 {
	if p <= 0 {
		return math.NaN()
	}
	return p
}
