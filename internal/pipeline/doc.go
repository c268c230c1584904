// Package pipeline runs the extraction-and-upload flow for a batch of
// project files.
//
// PerformExtraction validates the export destination, registers one progress
// unit per file and fans out one goroutine per file. Each goroutine extracts,
// writes the extract record, optionally renders swatches and then uploads.
// Per-file failures are sent to the calling goroutine, which is the only
// writer of the run's failure list, so one file failing never cancels its
// siblings. A single context covers the whole fan-out; cancelling it stops
// new work and kills running subprocesses, and the run still finalizes.
package pipeline
