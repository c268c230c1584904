package pipeline

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// FailureKind classifies a per-file failure.
type FailureKind string

const (
	KindExtract FailureKind = "failed_to_extract"
	KindUpload  FailureKind = "failed_to_upload"
)

func (k FailureKind) label() string {
	if k == KindUpload {
		return "upload failed"
	}
	return "extraction failed"
}

const cancelledMessage = "cancelled by user"

// Failure records one file's terminal failure.
type Failure struct {
	File      string
	Kind      FailureKind
	Message   string
	Cancelled bool
}

// Reason is the user-facing explanation of the failure.
func (f Failure) Reason() string {
	if f.Cancelled {
		return cancelledMessage
	}
	msg := strings.TrimSpace(f.Message)
	if msg == "" {
		return f.Kind.label()
	}
	return msg
}

// Line renders the failure as "<file name>: <reason>".
func (f Failure) Line() string {
	return fmt.Sprintf("%s: %s", filepath.Base(f.File), f.Reason())
}

// Result is the overall outcome of a run.
type Result string

const (
	ResultSuccess        Result = "success"
	ResultPartialFailure Result = "partial_failure"
	ResultFailed         Result = "failed"
)

// Report describes a finished run.
type Report struct {
	RunID         string
	Files         []string
	Result        Result
	Failures      []Failure
	OutputFolders map[string]string
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Succeeded reports whether the run finished without failures.
func (r *Report) Succeeded() bool {
	return r != nil && len(r.Failures) == 0
}

// OutputFolder returns the output folder of a single-file run.
func (r *Report) OutputFolder() string {
	if r == nil || len(r.Files) != 1 {
		return ""
	}
	return r.OutputFolders[r.Files[0]]
}

// FailuresOf returns the failures of kind.
func (r *Report) FailuresOf(kind FailureKind) []Failure {
	var out []Failure
	for _, f := range r.Failures {
		if f.Kind == kind {
			out = append(out, f)
		}
	}
	return out
}

// Summary is the one-line status shown to the user. Single-file runs show
// the specific reason; multi-file runs point at Detail.
func (r *Report) Summary() string {
	if r.Succeeded() {
		return fmt.Sprintf("Extracted %d %s", len(r.Files), plural(len(r.Files), "project", "projects"))
	}
	if len(r.Files) == 1 && len(r.Failures) == 1 {
		f := r.Failures[0]
		return fmt.Sprintf("%s: %s", capitalize(f.Kind.label()), f.Reason())
	}
	return fmt.Sprintf("%d %s failed, see details", len(r.Failures), plural(len(r.Failures), "file", "files"))
}

// Detail lists every failure on its own line.
func (r *Report) Detail() string {
	return detailLines(r.Failures)
}

func detailLines(failures []Failure) string {
	lines := make([]string, 0, len(failures))
	for _, f := range failures {
		lines = append(lines, f.Line())
	}
	return strings.Join(lines, "\n")
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}

func capitalize(s string) string {
	if s == "" {
		return s
	}
	return strings.ToUpper(s[:1]) + s[1:]
}
