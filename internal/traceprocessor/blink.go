package traceprocessor

import (
	"math"

	"github.com/montanaflynn/stats"
)

// interval is an inclusive range of sample indices
type interval struct {
	start, end int
}

func (iv interval) len() int { return iv.end - iv.start + 1 }

// invalidRuns returns the maximal runs of NaN samples
func invalidRuns(xs []float64) []interval {
	var runs []interval
	for i := 0; i < len(xs); i++ {
		if !math.IsNaN(xs[i]) {
			continue
		}
		j := i
		for j+1 < len(xs) && math.IsNaN(xs[j+1]) {
			j++
		}
		runs = append(runs, interval{i, j})
		i = j
	}
	return runs
}

// reconstruct interpolates blink runs in place and returns how many runs
// were replaced. times must be strictly increasing and as long as xs.
func reconstruct(xs, times []float64, mode Mode, b BlinkOptions) int {
	runs := invalidRuns(xs)
	if len(runs) == 0 {
		return 0
	}

	var (
		widened  []interval
		maxGap   = 0
		velocity []float64
	)
	if mode != ModeBasic {
		velocity = smoothedVelocity(xs, b.SmoothWindow)
		maxGap = b.GapMargin
	}
	last := len(xs) - 1
	for _, r := range runs {
		// runs touching the trace edges have no anchor on one side
		if r.start == 0 || r.end == last {
			continue
		}
		var iv interval
		if mode == ModeBasic {
			iv = interval{r.start - b.Margin, r.end + b.Margin}
		} else {
			if r.len() > b.MaxDur {
				continue
			}
			iv = extend(r, velocity, b)
		}
		// the margin never consumes the first or last sample
		iv.start, iv.end = max(iv.start, 1), min(iv.end, last-1)
		widened = append(widened, iv)
	}

	replaced := 0
	for _, iv := range merge(widened, maxGap) {
		left, right := iv.start-1, iv.end+1
		if math.IsNaN(xs[left]) || math.IsNaN(xs[right]) {
			continue
		}
		interpolate(xs, times, left, right)
		replaced++
	}
	return replaced
}

// extend moves the run onset back while the pupil is still falling and the
// offset forward while it is still recovering, then adds the margin.
// velocity[i] is the change from sample i-1 to sample i.
func extend(r interval, velocity []float64, b BlinkOptions) interval {
	start, end := r.start, r.end
	for start-1 >= 1 && velocity[start-1] < -b.VTStart {
		start--
	}
	for end+2 < len(velocity) && velocity[end+2] > b.VTEnd {
		end++
	}
	return interval{start - b.Margin, end + b.Margin}
}

// merge joins intervals that overlap or are separated by fewer than gap
// samples. Input is sorted by start.
func merge(ivs []interval, gap int) []interval {
	if len(ivs) == 0 {
		return nil
	}
	out := []interval{ivs[0]}
	for _, iv := range ivs[1:] {
		last := &out[len(out)-1]
		if iv.start-last.end-1 < max(gap, 1) {
			last.end = max(last.end, iv.end)
			continue
		}
		out = append(out, iv)
	}
	return out
}

// interpolate replaces xs[left+1:right] with the straight line between
// xs[left] and xs[right], placed by timestamp
func interpolate(xs, times []float64, left, right int) {
	x0, x1 := xs[left], xs[right]
	t0, t1 := times[left], times[right]
	for i := left + 1; i < right; i++ {
		xs[i] = x0 + (x1-x0)*(times[i]-t0)/(t1-t0)
	}
}

// smoothedVelocity returns the sample-to-sample change of the moving
// median of xs. NaN samples are left out of each window; windows without
// valid samples yield NaN.
func smoothedVelocity(xs []float64, window int) []float64 {
	half := window / 2
	smooth := make([]float64, len(xs))
	buf := make(stats.Float64Data, 0, window)
	for i := range xs {
		buf = buf[:0]
		for j := max(0, i-half); j <= min(len(xs)-1, i+half); j++ {
			if !math.IsNaN(xs[j]) {
				buf = append(buf, xs[j])
			}
		}
		m, err := buf.Median()
		if err != nil {
			m = math.NaN()
		}
		smooth[i] = m
	}

	velocity := make([]float64, len(xs))
	velocity[0] = math.NaN()
	for i := 1; i < len(xs); i++ {
		velocity[i] = smooth[i] - smooth[i-1]
	}
	return velocity
}
