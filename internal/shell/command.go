package shell

import (
	"strings"
)

type optionKind int

const (
	kindFlag optionKind = iota
	kindValue
	kindSecret
	kindRaw
	kindPath
)

// Option is one token of a command line.
type Option struct {
	kind   optionKind
	name   string
	values []string
}

// Flag renders a bare switch such as --verbose.
func Flag(name string) Option {
	return Option{kind: kindFlag, name: name}
}

// Value renders a `--key value` pair.
func Value(name, value string) Option {
	return Option{kind: kindValue, name: name, values: []string{value}}
}

// Values renders a key followed by several values: `--key a b`.
func Values(name string, values ...string) Option {
	return Option{kind: kindValue, name: name, values: append([]string(nil), values...)}
}

// Secret renders like Value but is masked in Redacted output.
func Secret(name, value string) Option {
	return Option{kind: kindSecret, name: name, values: []string{value}}
}

// Raw inserts s into the line verbatim, without quoting.
func Raw(s string) Option {
	return Option{kind: kindRaw, values: []string{s}}
}

// Path renders a positional file path argument.
func Path(p string) Option {
	return Option{kind: kindPath, values: []string{p}}
}

// Command is an executable plus its ordered options.
type Command struct {
	Executable string
	Options    []Option
}

// Line renders the command as a single shell line with values quoted.
func (c Command) Line() string {
	return c.render(false)
}

// Redacted renders the command like Line but masks secret values.
func (c Command) Redacted() string {
	return c.render(true)
}

// Args returns the unquoted argument vector, excluding the executable.
func (c Command) Args() []string {
	args := make([]string, 0, len(c.Options)*2)
	for _, opt := range c.Options {
		if opt.kind != kindRaw && opt.kind != kindPath {
			args = append(args, flagName(opt.name))
		}
		if opt.kind != kindFlag {
			args = append(args, opt.values...)
		}
	}
	return args
}

func (c Command) render(redact bool) string {
	parts := make([]string, 0, len(c.Options)*2+1)
	parts = append(parts, Quote(c.Executable))
	for _, opt := range c.Options {
		switch opt.kind {
		case kindFlag:
			parts = append(parts, flagName(opt.name))
		case kindValue:
			parts = append(parts, flagName(opt.name))
			for _, v := range opt.values {
				parts = append(parts, Quote(v))
			}
		case kindSecret:
			parts = append(parts, flagName(opt.name))
			for _, v := range opt.values {
				if redact {
					parts = append(parts, "'***'")
					continue
				}
				parts = append(parts, Quote(v))
			}
		case kindRaw:
			parts = append(parts, opt.values...)
		case kindPath:
			for _, v := range opt.values {
				parts = append(parts, Quote(v))
			}
		}
	}
	return strings.Join(parts, " ")
}

func flagName(name string) string {
	name = strings.TrimSpace(name)
	if strings.HasPrefix(name, "-") {
		return name
	}
	return "--" + name
}

// Quote single-quotes s for a POSIX shell unless it is already wrapped in
// matching single or double quotes.
func Quote(s string) string {
	if isQuoted(s) {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func isQuoted(s string) bool {
	if len(s) < 2 {
		return false
	}
	first, last := s[0], s[len(s)-1]
	return (first == '\'' && last == '\'') || (first == '"' && last == '"')
}
