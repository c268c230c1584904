package upload

import (
	"errors"
	"fmt"
	"strings"

	"markerflow/internal/manifest"
	"markerflow/internal/shell"
)

var (
	ErrMissingCredentials = errors.New("upload credentials missing")
	ErrMissingManifest    = errors.New("manifest file missing")
	ErrMissingExecutable  = errors.New("uploader executable missing")
	ErrUnsupported        = errors.New("unsupported upload platform")
	ErrCancelled          = errors.New("upload cancelled by user")
)

// Error reports a non-zero exit of an uploader tool.
type Error struct {
	Platform manifest.Platform
	Output   string
	Err      error
}

func (e *Error) Error() string {
	msg := fmt.Sprintf("%s upload failed", e.Platform)
	if tail := lastOutputLine(e.Output); tail != "" {
		msg += ": " + tail
	}
	return msg
}

func (e *Error) Unwrap() error { return e.Err }

func lastOutputLine(output string) string {
	lines := strings.Split(strings.TrimSpace(output), "\n")
	for i := len(lines) - 1; i >= 0; i-- {
		if line := strings.TrimSpace(lines[i]); line != "" {
			return line
		}
	}
	return ""
}

func classify(platform manifest.Platform, err error, cancelled bool) error {
	switch {
	case cancelled || errors.Is(err, shell.ErrCancelled):
		return ErrCancelled
	case errors.Is(err, shell.ErrNotFound):
		return fmt.Errorf("%w: %w", ErrMissingExecutable, err)
	default:
		return &Error{Platform: platform, Output: shell.Output(err), Err: err}
	}
}
