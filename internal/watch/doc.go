// Package watch re-runs a build when the log files of a folder change.
package watch
