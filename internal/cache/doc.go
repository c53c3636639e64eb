// Package cache stores assembled datasets on disk, keyed by a BLAKE2b-256
// digest of the configuration and the input files.
//
// Any change to the file set, file contents or configuration produces a new
// key, so entries never go stale. Old entries stay until Invalidate or
// Purge removes them. Each entry is one JSON file written through a
// temporary file and renamed into place.
package cache
