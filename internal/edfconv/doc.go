// Package edfconv converts EDF, EDF+, BDF and BDF+ recordings to comma
// separated text so they can be inspected next to the eye tracker logs.
package edfconv
