package extract

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"markerflow/internal/shell"
)

var percentPattern = regexp.MustCompile(`([0-9]+(?:\.[0-9]+)?)%`)

const resultFileName = "extract-result.json"

// Option configures the CLI adapter.
type Option func(*CLI)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec shell.Executor) Option {
	return func(c *CLI) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// CLI drives the markers-extractor executable.
type CLI struct {
	binary string
	exec   shell.Executor
}

// NewCLI constructs an adapter for binary.
func NewCLI(binary string, opts ...Option) (*CLI, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, errors.New("extractor binary required")
	}
	c := &CLI{binary: binary, exec: shell.NewRunner()}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Extract runs the extractor for settings.Source. The tool reports its
// output locations through a result file written into a scratch directory.
func (c *CLI) Extract(ctx context.Context, settings Settings, onProgress func(float64)) (Result, error) {
	if strings.TrimSpace(settings.Source) == "" {
		return Result{}, errors.New("source file required")
	}
	if strings.TrimSpace(settings.OutputDir) == "" {
		return Result{}, errors.New("output directory required")
	}

	scratch, err := os.MkdirTemp("", "markerflow-extract-*")
	if err != nil {
		return Result{}, fmt.Errorf("create scratch directory: %w", err)
	}
	defer os.RemoveAll(scratch)
	resultPath := filepath.Join(scratch, resultFileName)

	cmd := shell.Command{Executable: c.binary, Options: BuildOptions(settings, resultPath)}
	if err := c.exec.Run(ctx, cmd, func(line string) {
		if onProgress == nil {
			return
		}
		if fraction, ok := ParseProgress(line); ok {
			onProgress(fraction)
		}
	}); err != nil {
		return Result{}, fmt.Errorf("markers-extractor: %w", err)
	}

	result, err := readResult(resultPath)
	if err != nil {
		return Result{}, err
	}
	if onProgress != nil {
		onProgress(1)
	}
	return result, nil
}

// BuildOptions maps settings onto markers-extractor flags. The source and
// output directory are the trailing positional arguments.
func BuildOptions(s Settings, resultPath string) []shell.Option {
	opts := []shell.Option{
		shell.Value("--export-format", s.ExportFormat),
		shell.Value("--image-format", s.ImageFormat),
	}
	appendInt := func(name string, value int) {
		if value > 0 {
			opts = append(opts, shell.Value(name, strconv.Itoa(value)))
		}
	}
	appendString := func(name, value string) {
		if strings.TrimSpace(value) != "" {
			opts = append(opts, shell.Value(name, value))
		}
	}

	appendInt("--image-quality", s.ImageQuality)
	appendInt("--image-width", s.ImageWidth)
	appendInt("--image-height", s.ImageHeight)
	appendInt("--image-size", s.ImageScale)
	appendInt("--gif-fps", s.GIFFPS)
	appendInt("--gif-span", s.GIFSpan)
	appendString("--markers-source", s.MarkersSource)
	appendString("--folder-format", s.FolderFormat)
	appendString("--id-naming-mode", s.IDNamingMode)
	if s.IncludeOutsideClipRange {
		opts = append(opts, shell.Flag("--include-outside-clip-boundaries"))
	}
	if s.IncludeDisabledClips {
		opts = append(opts, shell.Flag("--include-disabled"))
	}
	for _, role := range s.ExcludedRoles {
		appendString("--exclude-role", role)
	}

	for _, field := range s.Label.Fields {
		appendString("--label", field)
	}
	appendString("--label-copyright", s.Label.Copyright)
	appendString("--label-font", s.Label.Font)
	appendInt("--label-font-size", s.Label.FontSize)
	appendInt("--label-opacity", s.Label.Opacity)
	appendString("--label-font-color", s.Label.Color)
	appendString("--label-stroke-color", s.Label.StrokeColor)
	appendInt("--label-stroke-width", s.Label.StrokeWidth)
	appendString("--label-align-horizontal", s.Label.AlignHorizontal)
	appendString("--label-align-vertical", s.Label.AlignVertical)
	if s.Label.HideLabels {
		opts = append(opts, shell.Flag("--label-hidden"))
	}

	opts = append(opts,
		shell.Value("--result-file-path", resultPath),
		shell.Path(s.Source),
		shell.Path(s.OutputDir),
	)
	return opts
}

// ParseProgress extracts a completion fraction from one output line.
func ParseProgress(line string) (float64, bool) {
	match := percentPattern.FindStringSubmatch(line)
	if len(match) < 2 {
		return 0, false
	}
	value, err := strconv.ParseFloat(match[1], 64)
	if err != nil {
		return 0, false
	}
	return min(max(value/100, 0), 1), true
}

type resultFile struct {
	OutputFolder string `json:"exportFolder"`
	ManifestPath string `json:"manifestPath"`
}

func readResult(path string) (Result, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Result{}, fmt.Errorf("read extraction result: %w", err)
	}
	var raw resultFile
	if err := json.Unmarshal(data, &raw); err != nil {
		return Result{}, fmt.Errorf("decode extraction result: %w", err)
	}
	if strings.TrimSpace(raw.OutputFolder) == "" {
		return Result{}, errors.New("extraction result missing export folder")
	}
	if strings.TrimSpace(raw.ManifestPath) == "" {
		return Result{}, ErrNoManifest
	}
	return Result{OutputFolder: raw.OutputFolder, ManifestPath: raw.ManifestPath}, nil
}
