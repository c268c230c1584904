package shell

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrNotFound reports that the executable could not be resolved.
	ErrNotFound = errors.New("executable not found")
	// ErrCancelled reports that the context was cancelled while the command ran.
	ErrCancelled = errors.New("command cancelled")
	// ErrDecode reports output that is not valid UTF-8.
	ErrDecode = errors.New("command output is not valid UTF-8")
	// ErrNonZeroExit is wrapped by every ExitError.
	ErrNonZeroExit = errors.New("command exited with non-zero status")
	// ErrRead reports that the output pipe could not be read.
	ErrRead = errors.New("read command output")
)

// ExitError carries the exit code and accumulated output of a failed command.
type ExitError struct {
	Code   int
	Output string
}

func (e *ExitError) Error() string {
	tail := lastLine(e.Output)
	if tail == "" {
		return fmt.Sprintf("%s (code %d)", ErrNonZeroExit, e.Code)
	}
	return fmt.Sprintf("%s (code %d): %s", ErrNonZeroExit, e.Code, tail)
}

func (e *ExitError) Unwrap() error { return ErrNonZeroExit }

// DecodeError reports a command that wrote invalid UTF-8. Output holds the
// accumulated output with invalid bytes replaced.
type DecodeError struct {
	Executable string
	Output     string
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("%s: %s", ErrDecode, e.Executable)
}

func (e *DecodeError) Unwrap() error { return ErrDecode }

// Output returns the diagnostic output attached to err, if any.
func Output(err error) string {
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Output
	}
	var decodeErr *DecodeError
	if errors.As(err, &decodeErr) {
		return decodeErr.Output
	}
	return ""
}

func lastLine(output string) string {
	output = strings.TrimSpace(output)
	if idx := strings.LastIndexByte(output, '\n'); idx >= 0 {
		return strings.TrimSpace(output[idx+1:])
	}
	return output
}
