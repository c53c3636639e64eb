package segmenter

import (
	"context"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	"eyeparse/pkg/contracts/domain"
)

// State is the segmenter state
type State int

const (
	Idle State = iota
	InTrial
)

func (s State) String() string {
	if s == InTrial {
		return "in-trial"
	}
	return "idle"
}

// Phase control messages
const (
	startPhaseMarker = "start_phase"
	phaseMarker      = "phase"
	endPhaseMarker   = "end_phase"
)

// Options configures a Segmenter
type Options struct {
	StartMarker string
	EndMarker   string
	VarMarker   string

	// Eye selects which eye binocular samples and events contribute
	Eye string

	// TrialTraces adds the implicit trial phase spanning the whole trial
	TrialTraces bool

	Logger *slog.Logger
}

// DefaultOptions returns the EyeLink marker conventions
func DefaultOptions() Options {
	return Options{
		StartMarker: "start_trial",
		EndMarker:   "end_trial",
		VarMarker:   "var",
		Eye:         "left",
		TrialTraces: true,
	}
}

// Segmenter groups records into trials
type Segmenter struct {
	opts   Options
	logger *slog.Logger
}

// New creates a segmenter. Empty markers fall back to the defaults.
func New(opts Options) *Segmenter {
	def := DefaultOptions()
	if opts.StartMarker == "" {
		opts.StartMarker = def.StartMarker
	}
	if opts.EndMarker == "" {
		opts.EndMarker = def.EndMarker
	}
	if opts.VarMarker == "" {
		opts.VarMarker = def.VarMarker
	}
	if opts.Eye == "" {
		opts.Eye = def.Eye
	}
	return &Segmenter{
		opts:   opts,
		logger: infrastructure.WithComponent(opts.Logger, "segmenter"),
	}
}

// Trials consumes records and yields each trial when its end marker is
// seen. The first error ends the sequence.
func (s *Segmenter) Trials(ctx context.Context, path string, records iter.Seq2[domain.RawRecord, error]) iter.Seq2[*domain.Trial, error] {
	return func(yield func(*domain.Trial, error) bool) {
		run := newRun(s, path)
		for rec, err := range records {
			if err != nil {
				yield(nil, err)
				return
			}
			trial, err := run.step(rec)
			if err != nil {
				yield(nil, err)
				return
			}
			if trial != nil {
				s.logger.DebugContext(ctx, "trial closed",
					slog.String("path", path),
					slog.String("trial", trial.ID),
					slog.Int("records", len(trial.Records)))
				if !yield(trial, nil) {
					return
				}
			}
		}
		if err := run.finish(); err != nil {
			yield(nil, err)
		}
	}
}

// Segment collects every trial of the file
func (s *Segmenter) Segment(ctx context.Context, path string, records iter.Seq2[domain.RawRecord, error]) ([]*domain.Trial, error) {
	var trials []*domain.Trial
	for trial, err := range s.Trials(ctx, path, records) {
		if err != nil {
			return trials, err
		}
		trials = append(trials, trial)
	}
	return trials, nil
}

// run is the state of one pass over a file
type run struct {
	s    *Segmenter
	path string

	state     State
	count     int
	recorded  string // "L", "R" or "LR" once the recording layout is known
	trial     *domain.Trial
	startLine int
	lastTime  float64
	hasTime   bool
	inBlink   bool

	phases  []*phaseBuffer
	current *phaseBuffer
	whole   *phaseBuffer
}

func newRun(s *Segmenter, path string) *run {
	return &run{s: s, path: path}
}

func (r *run) step(rec domain.RawRecord) (*domain.Trial, error) {
	if rec.Kind == domain.RecordMeta {
		r.observeLayout(rec.Message)
	}

	if rec.Kind == domain.RecordMessage {
		fields := strings.Fields(rec.Message)
		if len(fields) > 0 {
			switch fields[0] {
			case r.s.opts.StartMarker:
				return nil, r.open(rec, fields)
			case r.s.opts.EndMarker:
				return r.close(rec)
			}
		}
	}

	if r.state == Idle {
		return nil, nil
	}

	r.trial.Records = append(r.trial.Records, rec)

	switch rec.Kind {
	case domain.RecordMessage:
		r.message(rec)
	case domain.RecordSample:
		return nil, r.sample(rec)
	case domain.RecordEventStart:
		if rec.Event.Type == domain.EventBlink && r.acceptEye(rec.Event.Eye) {
			r.inBlink = true
		}
	case domain.RecordEventEnd:
		r.eventEnd(rec.Event)
	}
	return nil, nil
}

func (r *run) open(rec domain.RawRecord, fields []string) error {
	if r.state == InTrial {
		return &apperrors.SegmentationError{
			Path:   r.path,
			Line:   rec.Line,
			Reason: fmt.Sprintf("start marker inside trial %q opened at line %d", r.trial.ID, r.startLine),
		}
	}

	id := strconv.Itoa(r.count)
	if len(fields) > 1 {
		id = strings.Join(fields[1:], " ")
	}

	r.trial = &domain.Trial{
		ID:      id,
		Index:   r.count,
		Path:    r.path,
		Start:   rec.Time,
		Records: []domain.RawRecord{rec},
	}
	r.trial.Properties.Set("trialid", domain.ParseValue(id))
	r.trial.Properties.Set("path", domain.Text(filepath.Base(r.path)))
	r.trial.Properties.Set("t_onset", domain.Number(rec.Time))

	r.state = InTrial
	r.startLine = rec.Line
	r.hasTime = false
	r.inBlink = false
	r.phases = nil
	r.current = nil
	r.whole = nil
	if r.s.opts.TrialTraces {
		r.whole = r.phase(TrialPhase)
	}
	return nil
}

func (r *run) close(rec domain.RawRecord) (*domain.Trial, error) {
	if r.state == Idle {
		return nil, &apperrors.SegmentationError{
			Path:   r.path,
			Line:   rec.Line,
			Reason: "end marker outside of a trial",
		}
	}

	t := r.trial
	t.Records = append(t.Records, rec)
	t.End = rec.Time
	t.Properties.Set("t_offset", domain.Number(rec.Time))
	for _, p := range r.phases {
		t.Traces = append(t.Traces, p.traces()...)
	}

	r.state = Idle
	r.trial = nil
	r.count++
	return t, nil
}

func (r *run) finish() error {
	if r.state == InTrial {
		return &apperrors.IncompleteTrialError{
			Path:      r.path,
			TrialID:   r.trial.ID,
			StartLine: r.startLine,
		}
	}
	return nil
}

// message handles properties and phase control inside a trial
func (r *run) message(rec domain.RawRecord) {
	fields := strings.Fields(rec.Message)
	if len(fields) == 0 {
		return
	}
	switch fields[0] {
	case r.s.opts.VarMarker:
		if len(fields) < 2 {
			return
		}
		r.trial.Properties.Set(fields[1], domain.ParseValue(strings.Join(fields[2:], " ")))
	case startPhaseMarker, phaseMarker:
		if len(fields) < 2 {
			return
		}
		r.current = r.phase(fields[1])
	case endPhaseMarker:
		if r.current != nil && (len(fields) < 2 || fields[1] == r.current.name) {
			r.current = nil
		}
	}
}

// phase returns the buffer for name, creating it in first-seen order
func (r *run) phase(name string) *phaseBuffer {
	for _, p := range r.phases {
		if p.name == name {
			return p
		}
	}
	p := &phaseBuffer{name: name}
	r.phases = append(r.phases, p)
	return p
}

func (r *run) sample(rec domain.RawRecord) error {
	if r.hasTime && rec.Time < r.lastTime {
		return &apperrors.SegmentationError{
			Path:   r.path,
			Line:   rec.Line,
			Reason: fmt.Sprintf("timestamp %g goes back from %g in trial %q", rec.Time, r.lastTime, r.trial.ID),
		}
	}
	r.lastTime, r.hasTime = rec.Time, true

	x, y, pupil := rec.Sample.Eye(r.s.opts.Eye == "right")
	pupil = validPupil(pupil)
	if r.inBlink {
		pupil = math.NaN()
	}
	for _, p := range r.active() {
		p.addSample(rec.Time, x, y, pupil)
	}
	return nil
}

func (r *run) eventEnd(ev domain.Event) {
	if !r.acceptEye(ev.Eye) {
		return
	}
	switch ev.Type {
	case domain.EventBlink:
		r.inBlink = false
		for _, p := range r.active() {
			p.addBlink(ev)
		}
	case domain.EventFixation:
		for _, p := range r.active() {
			p.addFixation(ev)
		}
	}
}

// active returns the buffers that currently receive data
func (r *run) active() []*phaseBuffer {
	out := make([]*phaseBuffer, 0, 2)
	if r.whole != nil {
		out = append(out, r.whole)
	}
	if r.current != nil && r.current != r.whole {
		out = append(out, r.current)
	}
	return out
}

// observeLayout learns which eyes were recorded from START and SAMPLES lines
func (r *run) observeLayout(line string) {
	fields := strings.Fields(line)
	if len(fields) == 0 || (fields[0] != "START" && fields[0] != "SAMPLES") {
		return
	}
	var left, right bool
	for _, f := range fields {
		left = left || f == "LEFT"
		right = right || f == "RIGHT"
	}
	switch {
	case left && right:
		r.recorded = "LR"
	case left:
		r.recorded = "L"
	case right:
		r.recorded = "R"
	}
}

// acceptEye reports whether events of eye belong to the selected eye.
// Monocular recordings and unknown layouts accept every event.
func (r *run) acceptEye(eye string) bool {
	if r.recorded != "LR" {
		return true
	}
	if r.s.opts.Eye == "right" {
		return eye == "R"
	}
	return eye == "L"
}
