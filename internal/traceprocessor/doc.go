// Package traceprocessor reconstructs blinks in pupil traces and
// downsamples continuous traces.
//
// Blinks are runs of NaN pupil samples. The basic mode widens each run by a
// fixed margin and interpolates linearly between the neighbouring valid
// samples. The advanced mode first follows the smoothed pupil velocity to
// find where the blink really begins and ends, merges runs that lie close
// together and ignores runs longer than MaxDur. Runs touching either end
// of a trace are never reconstructed.
package traceprocessor
