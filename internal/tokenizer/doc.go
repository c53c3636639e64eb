// Package tokenizer turns EyeLink-style ASCII logs into typed records.
//
// Recognized lines:
//
//	MSG <time> [offset] <text>
//	<time> <x> <y> <pupil> [<xr> <yr> <pupilr>] [flags]
//	SFIX|SSACC|SBLINK <eye> <time>
//	EFIX <eye> <start> <end> <dur> <x> <y> <pupil>
//	ESACC <eye> <start> <end> <dur> <sx> <sy> <ex> <ey> <ampl> <pv>
//	EBLINK <eye> <start> <end> <dur>
//	** header, START, END, SAMPLES, EVENTS, INPUT, BUTTON, PRESCALER, VPRESCALER, PUPIL
//
// A "." in a numeric column is decoded as NaN. Message text is kept exactly
// as written after the timestamp. Blank lines carry no record; any other
// line that matches none of the forms above is malformed.
package tokenizer
