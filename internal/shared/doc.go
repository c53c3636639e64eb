// Package shared holds helpers used across the eyeparse packages.
//
// The testutil subpackage provides a buffered slog handler for asserting on
// log output and an ASCII log builder for writing tracker fixtures:
//
//	path := testutil.NewASC(1000).
//		StartTrial("1").
//		Var("set_size", 4).
//		Samples(1012, 1010, 1009).
//		EndTrial().
//		WriteFile(t, dir, "subject01.asc")
package shared
