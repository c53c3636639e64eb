// Command eyeparse turns folders of eye-tracker .asc logs into trial
// datasets, serves them over HTTP, and converts EDF recordings to text.
package main

import (
	"os"
)

func main() {
	if err := newRootCommand(&cli{}).Execute(); err != nil {
		os.Exit(1)
	}
}
