// Package segmenter groups tokenized log records into trials.
//
// A trial opens at the start marker message and closes at the end marker.
// Inside a trial, var messages set properties and phase messages
// (start_phase, phase, end_phase) route samples into named phases. Each
// phase yields pupil, gaze and time traces plus fixation and blink lists.
// Pupil samples recorded inside a blink, or reported as zero, are NaN.
package segmenter
