// Package progress aggregates per-file completion into one overall percentage
// and status line.
//
// An Aggregator owns a set of units keyed by their source reference. Each unit
// reports a 0–100 completion count and a finished flag; the aggregator derives
// the overall percent, a "<task> (finished/total)" message, and a sticky failed
// state that only Reset clears. Every mutation goes through the aggregator's
// methods, and each resulting State is published to subscribers.
package progress
