// Package pipeline parses a folder of eye-tracker logs into one dataset.
//
// Each file runs through tokenizer, segmenter and trace processor on its own
// worker; per-file results are merged in file name order once every worker
// is done. With a cache configured, a folder whose files and configuration
// are unchanged is served from disk without reading the logs.
//
//	proc := traceprocessor.New(traceprocessor.Options{BlinkReconstruct: true, Downsample: 10})
//	res, err := pipeline.Parse(ctx, "data", proc, pipeline.WithWorkers(4))
package pipeline
