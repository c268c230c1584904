// Package logs reads the JSON log file markerflow mirrors from its console
// output.
//
// Tail returns the last N matching lines and can keep following the file as
// it grows. Filters narrow the output to one extraction run (by correlation
// id), a minimum level or a component. Lines that are not JSON are passed
// through only when no filter is set.
package logs
