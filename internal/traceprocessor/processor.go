package traceprocessor

import (
	"fmt"
	"log/slog"
	"slices"

	"eyeparse/internal/config"
	apperrors "eyeparse/internal/errors"
	"eyeparse/internal/infrastructure"
	"eyeparse/pkg/contracts/domain"
)

// Mode selects the blink detection variant
type Mode string

const (
	ModeBasic    Mode = "basic"
	ModeAdvanced Mode = "advanced"
)

// DownsampleMethod selects how a block of samples is reduced
type DownsampleMethod string

const (
	DownsampleMean     DownsampleMethod = "mean"
	DownsampleDecimate DownsampleMethod = "decimate"
)

// BlinkOptions holds the reconstruction thresholds. Margins and durations
// count samples; velocities are pupil units per sample.
type BlinkOptions struct {
	Margin       int
	GapMargin    int
	MaxDur       int
	SmoothWindow int
	VTStart      float64
	VTEnd        float64
}

// DefaultBlinkOptions returns the thresholds used when none are configured
func DefaultBlinkOptions() BlinkOptions {
	return BlinkOptions{
		Margin:       10,
		GapMargin:    20,
		MaxDur:       500,
		SmoothWindow: 21,
		VTStart:      10,
		VTEnd:        5,
	}
}

// Options configures a Processor
type Options struct {
	BlinkReconstruct bool
	Downsample       int
	Mode             Mode
	Method           DownsampleMethod
	Blink            BlinkOptions

	Logger *slog.Logger
}

// OptionsFromConfig maps the processor configuration section
func OptionsFromConfig(cfg config.ProcessorConfig) Options {
	return Options{
		BlinkReconstruct: cfg.BlinkReconstruct,
		Downsample:       cfg.Downsample,
		Mode:             Mode(cfg.Mode),
		Method:           DownsampleMethod(cfg.DownsampleMethod),
		Blink: BlinkOptions{
			Margin:       cfg.Blink.Margin,
			GapMargin:    cfg.Blink.GapMargin,
			MaxDur:       cfg.Blink.MaxDur,
			SmoothWindow: cfg.Blink.SmoothWindow,
			VTStart:      cfg.Blink.VTStart,
			VTEnd:        cfg.Blink.VTEnd,
		},
	}
}

// Canonical renders the options that affect output as a stable string
func (o Options) Canonical() string {
	b := o.Blink
	return fmt.Sprintf("blinkreconstruct=%t;downsample=%d;mode=%s;method=%s;margin=%d;gap=%d;maxdur=%d;smooth=%d;vtstart=%g;vtend=%g",
		o.BlinkReconstruct, o.Downsample, o.Mode, o.Method,
		b.Margin, b.GapMargin, b.MaxDur, b.SmoothWindow, b.VTStart, b.VTEnd)
}

// Processor applies blink reconstruction and downsampling to trial traces.
// It holds no mutable state and is safe for concurrent use.
type Processor struct {
	opts   Options
	logger *slog.Logger
}

// New returns a configured processor. Zero fields take their defaults.
func New(opts Options) *Processor {
	if opts.Downsample < 1 {
		opts.Downsample = 1
	}
	if opts.Mode == "" {
		opts.Mode = ModeAdvanced
	}
	if opts.Method == "" {
		opts.Method = DownsampleMean
	}
	if opts.Blink == (BlinkOptions{}) {
		opts.Blink = DefaultBlinkOptions()
	}
	return &Processor{
		opts:   opts,
		logger: infrastructure.WithComponent(opts.Logger, "traceprocessor"),
	}
}

// Options returns the effective options
func (p *Processor) Options() Options {
	o := p.opts
	o.Logger = nil
	return o
}

// Canonical identifies the processing configuration for cache keys
func (p *Processor) Canonical() string {
	return p.opts.Canonical()
}

// Process returns a copy of trial whose traces are processed. The input
// trial is not modified.
func (p *Processor) Process(trial *domain.Trial) (*domain.Trial, error) {
	out := make([]*domain.Trace, 0, len(trial.Traces))
	for _, tr := range trial.Traces {
		if !tr.Kind.Continuous() {
			out = append(out, tr.Clone())
			continue
		}
		if err := validate(trial.ID, tr); err != nil {
			return nil, err
		}
		out = append(out, p.processTrace(trial.ID, tr))
	}
	return trial.WithTraces(out), nil
}

func (p *Processor) processTrace(trialID string, tr *domain.Trace) *domain.Trace {
	samples := slices.Clone(tr.Samples)
	if p.opts.BlinkReconstruct && tr.Kind == domain.TracePupil {
		if n := reconstruct(samples, tr.Timestamps, p.opts.Mode, p.opts.Blink); n > 0 {
			p.logger.Debug("blinks reconstructed",
				slog.String("trial", trialID),
				slog.String("trace", tr.Name),
				slog.Int("runs", n))
		}
	}
	return &domain.Trace{
		Name:       tr.Name,
		Phase:      tr.Phase,
		Kind:       tr.Kind,
		Samples:    downsample(samples, p.opts.Downsample, p.opts.Method),
		Timestamps: downsample(tr.Timestamps, p.opts.Downsample, p.opts.Method),
	}
}

// validate rejects traces that cannot be aligned in time
func validate(trialID string, tr *domain.Trace) error {
	fail := func(format string, args ...any) error {
		return &apperrors.ProcessingError{TrialID: trialID, Trace: tr.Name, Reason: fmt.Sprintf(format, args...)}
	}
	if len(tr.Samples) == 0 {
		return fail("empty trace")
	}
	if len(tr.Timestamps) != len(tr.Samples) {
		return fail("%d timestamps for %d samples", len(tr.Timestamps), len(tr.Samples))
	}
	for i := 1; i < len(tr.Timestamps); i++ {
		if tr.Timestamps[i] <= tr.Timestamps[i-1] {
			return fail("timestamp %g at sample %d does not increase", tr.Timestamps[i], i)
		}
	}
	return nil
}
