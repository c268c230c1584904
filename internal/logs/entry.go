package logs

import (
	"encoding/json"
	"log/slog"
	"strings"
)

// Entry is one decoded log line.
type Entry struct {
	Time      string
	Level     string
	Component string
	Message   string
	RunID     string
	File      string
	Raw       string
}

type jsonLine struct {
	Time          string `json:"ts"`
	Level         string `json:"level"`
	Component     string `json:"component"`
	Message       string `json:"msg"`
	CorrelationID string `json:"correlation_id"`
	File          string `json:"file"`
}

// Parse decodes a JSON log line. ok is false for anything else.
func Parse(line string) (Entry, bool) {
	entry := Entry{Raw: line}
	trimmed := strings.TrimSpace(line)
	if !strings.HasPrefix(trimmed, "{") {
		return entry, false
	}
	var raw jsonLine
	if err := json.Unmarshal([]byte(trimmed), &raw); err != nil {
		return entry, false
	}
	entry.Time = raw.Time
	entry.Level = strings.ToLower(raw.Level)
	entry.Component = raw.Component
	entry.Message = raw.Message
	entry.RunID = raw.CorrelationID
	entry.File = raw.File
	return entry, true
}

// Filter selects log lines. The zero value matches everything.
type Filter struct {
	RunID     string
	MinLevel  slog.Level
	Component string
}

func (f Filter) empty() bool {
	return f.RunID == "" && f.MinLevel <= slog.LevelDebug && f.Component == ""
}

// Match reports whether line passes the filter.
func (f Filter) Match(line string) bool {
	entry, ok := Parse(line)
	if !ok {
		return f.empty()
	}
	if f.RunID != "" && !strings.HasPrefix(entry.RunID, f.RunID) {
		return false
	}
	if f.Component != "" && !strings.EqualFold(entry.Component, f.Component) {
		return false
	}
	return levelOf(entry.Level) >= f.MinLevel
}

// ParseLevel maps a level name onto slog levels, defaulting to debug.
func ParseLevel(name string) slog.Level {
	return levelOf(strings.ToLower(strings.TrimSpace(name)))
}

func levelOf(name string) slog.Level {
	switch name {
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelDebug
	}
}
