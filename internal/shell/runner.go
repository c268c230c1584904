package shell

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"iter"
	"log/slog"
	"os"
	"os/exec"
	"strings"
	"time"
	"unicode/utf8"

	"markerflow/internal/logging"
)

const (
	defaultShell     = "/bin/sh"
	maxOutputBytes   = 64 * 1024
	maxLineBytes     = 1024 * 1024
	cancelWaitDelay  = 3 * time.Second
	defaultTermValue = "xterm-256color"
)

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, cmd Command, onLine func(string)) error
}

// RunnerOption configures a Runner.
type RunnerOption func(*Runner)

// WithShell overrides the interpreter used to run command lines.
func WithShell(path string) RunnerOption {
	return func(r *Runner) {
		if strings.TrimSpace(path) != "" {
			r.shell = path
		}
	}
}

// WithEnv appends KEY=VALUE entries to the controlled environment.
func WithEnv(entries ...string) RunnerOption {
	return func(r *Runner) {
		r.extraEnv = append(r.extraEnv, entries...)
	}
}

// WithLogger attaches a logger for launch and exit diagnostics.
func WithLogger(logger *slog.Logger) RunnerOption {
	return func(r *Runner) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// Runner launches commands through a shell and streams their merged output.
type Runner struct {
	shell    string
	extraEnv []string
	logger   *slog.Logger
}

// NewRunner constructs a Runner with the default /bin/sh interpreter.
func NewRunner(opts ...RunnerOption) *Runner {
	r := &Runner{shell: defaultShell, logger: logging.NewNop()}
	for _, opt := range opts {
		opt(r)
	}
	r.logger = logging.NewComponentLogger(r.logger, "shell")
	return r
}

// Run executes cmd and calls onLine for every cleaned output line, in order.
// It returns nil on exit code 0, *ExitError on a non-zero exit, ErrCancelled
// when ctx ends first, ErrNotFound when the executable cannot be resolved and
// *DecodeError (wrapping ErrDecode) when the process wrote invalid UTF-8.
func (r *Runner) Run(ctx context.Context, cmd Command, onLine func(string)) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", ErrCancelled, err)
	}
	if err := resolveExecutable(cmd.Executable); err != nil {
		return err
	}

	reader, writer, err := os.Pipe()
	if err != nil {
		return fmt.Errorf("create output pipe: %w", err)
	}
	defer reader.Close()

	proc := exec.CommandContext(ctx, r.shell, "-c", cmd.Line()) //nolint:gosec
	proc.Env = r.environment()
	proc.Stdout = writer
	proc.Stderr = writer
	proc.WaitDelay = cancelWaitDelay
	configureProcessGroup(proc)

	logger := logging.WithContext(ctx, r.logger)
	logger.Debug("launching command", logging.String("command", cmd.Redacted()))

	if err := proc.Start(); err != nil {
		_ = writer.Close()
		return fmt.Errorf("start %s: %w", cmd.Executable, err)
	}
	// The child holds its own copy; closing ours lets the reader see EOF.
	_ = writer.Close()

	var (
		output     bytes.Buffer
		invalidUTF bool
	)
	scanner := bufio.NewScanner(reader)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	scanner.Split(scanLinesOrCarriageReturns)
	for scanner.Scan() {
		raw := scanner.Text()
		if !utf8.ValidString(raw) {
			invalidUTF = true
			appendBounded(&output, Clean(strings.ToValidUTF8(raw, string(utf8.RuneError))))
			continue
		}
		line := Clean(raw)
		appendBounded(&output, line)
		if onLine != nil && line != "" {
			onLine(line)
		}
	}
	scanErr := scanner.Err()
	if scanErr != nil {
		// Keep the pipe flowing so the child can exit and Wait returns.
		_, _ = io.Copy(io.Discard, reader)
	}

	waitErr := proc.Wait()
	if ctxErr := ctx.Err(); ctxErr != nil {
		logger.Debug("command cancelled", logging.String("executable", cmd.Executable))
		return fmt.Errorf("%w: %w", ErrCancelled, ctxErr)
	}
	if waitErr != nil {
		var exitErr *exec.ExitError
		if errors.As(waitErr, &exitErr) {
			return &ExitError{Code: exitErr.ExitCode(), Output: output.String()}
		}
		return fmt.Errorf("wait %s: %w", cmd.Executable, waitErr)
	}
	if scanErr != nil {
		return fmt.Errorf("%w: %s: %w", ErrRead, cmd.Executable, scanErr)
	}
	if invalidUTF {
		return &DecodeError{Executable: cmd.Executable, Output: output.String()}
	}
	return nil
}

// Lines exposes Run as an iterator. The final pair carries a non-nil error
// when the command fails; breaking out of the loop cancels the command.
func (r *Runner) Lines(ctx context.Context, cmd Command) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := context.WithCancel(ctx)
		defer cancel()

		lines := make(chan string)
		done := make(chan error, 1)
		go func() {
			done <- r.Run(ctx, cmd, func(line string) {
				select {
				case lines <- line:
				case <-ctx.Done():
				}
			})
		}()

		for {
			select {
			case line := <-lines:
				if !yield(line, nil) {
					cancel()
					<-done
					return
				}
			case err := <-done:
				if err != nil {
					yield("", err)
				}
				return
			}
		}
	}
}

func (r *Runner) environment() []string {
	home, err := os.UserHomeDir()
	if err != nil {
		home = os.TempDir()
	}
	env := []string{
		"HOME=" + home,
		"TERM=" + defaultTermValue,
		"LANG=en_US.UTF-8",
	}
	if path, ok := os.LookupEnv("PATH"); ok {
		env = append(env, "PATH="+path)
	}
	return append(env, r.extraEnv...)
}

func resolveExecutable(name string) error {
	name = strings.TrimSpace(name)
	if name == "" {
		return fmt.Errorf("%w: empty executable", ErrNotFound)
	}
	if strings.ContainsRune(name, os.PathSeparator) {
		info, err := os.Stat(name)
		if err != nil || info.IsDir() {
			return fmt.Errorf("%w: %s", ErrNotFound, name)
		}
		return nil
	}
	if _, err := exec.LookPath(name); err != nil {
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	return nil
}

func appendBounded(buf *bytes.Buffer, line string) {
	buf.WriteString(line)
	buf.WriteByte('\n')
	if buf.Len() <= maxOutputBytes {
		return
	}
	trimmed := buf.Bytes()[buf.Len()-maxOutputBytes:]
	if idx := bytes.IndexByte(trimmed, '\n'); idx >= 0 {
		trimmed = trimmed[idx+1:]
	}
	kept := append([]byte(nil), trimmed...)
	buf.Reset()
	buf.Write(kept)
}

// scanLinesOrCarriageReturns splits on \n, \r\n and bare \r so tools that
// redraw a progress line in place still yield one line per update. A line
// longer than maxLineBytes is delivered in maxLineBytes pieces.
func scanLinesOrCarriageReturns(data []byte, atEOF bool) (int, []byte, error) {
	if atEOF && len(data) == 0 {
		return 0, nil, nil
	}
	if len(data) >= maxLineBytes && bytes.IndexAny(data[:maxLineBytes], "\r\n") < 0 {
		return maxLineBytes, data[:maxLineBytes], nil
	}
	if i := bytes.IndexAny(data, "\r\n"); i >= 0 {
		advance := i + 1
		if data[i] == '\r' && i+1 < len(data) && data[i+1] == '\n' {
			advance++
		} else if data[i] == '\r' && i+1 == len(data) && !atEOF {
			// Wait for more data in case this is a \r\n pair split across reads.
			return 0, nil, nil
		}
		return advance, data[:i], nil
	}
	if atEOF {
		return len(data), data, nil
	}
	return 0, nil, nil
}
