// Package files provides file system operations and discovery utilities.
//
// Discovery finds the eye-tracker logs of an input folder in a stable,
// name-sorted order. WriteAtomic writes output files through a temporary
// file and a rename, so a crashed writer never leaves a truncated file
// behind.
//
// Example usage:
//
//	logs, err := files.NewDiscovery("").FindLogs("data/sub01", ".asc")
//
//	err = files.WriteAtomic("out/dataset.csv", func(w io.Writer) error {
//	    return writeRows(w)
//	})
package files
