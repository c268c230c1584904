package settings

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"
)

// DefaultName is the reserved name of the built-in configuration.
const DefaultName = "Default"

// MaxNameLength bounds configuration names, in characters.
const MaxNameLength = 50

var (
	ErrReservedName    = errors.New("configuration name is reserved")
	ErrEmptyName       = errors.New("configuration name is empty")
	ErrNameTooLong     = fmt.Errorf("configuration name exceeds %d characters", MaxNameLength)
	ErrInvalidName     = errors.New("configuration name contains invalid characters")
	ErrNameExists      = errors.New("configuration already exists")
	ErrNotFound        = errors.New("configuration file doesn't exist")
	ErrCreateDirectory = errors.New("couldn't create configurations directory")
)

// DecodeError reports a configuration file that could not be parsed or
// migrated.
type DecodeError struct {
	Name string
	Err  error
}

func (e *DecodeError) Error() string {
	return fmt.Sprintf("couldn't parse configuration %q: %v", e.Name, e.Err)
}

func (e *DecodeError) Unwrap() error { return e.Err }

// NormalizeName trims and NFC-normalizes name so visually identical names
// typed on different keyboards map to the same file.
func NormalizeName(name string) string {
	return norm.NFC.String(strings.TrimSpace(name))
}

// IsDefault reports whether name refers to the built-in configuration.
func IsDefault(name string) bool {
	return strings.EqualFold(NormalizeName(name), DefaultName)
}

// ValidateName checks a name for a new or renamed configuration.
func ValidateName(name string) (string, error) {
	name = NormalizeName(name)
	switch {
	case name == "":
		return "", ErrEmptyName
	case strings.EqualFold(name, DefaultName):
		return "", ErrReservedName
	case utf8.RuneCountInString(name) > MaxNameLength:
		return "", ErrNameTooLong
	case strings.ContainsAny(name, "/\\\x00:"), strings.HasPrefix(name, "."):
		return "", ErrInvalidName
	}
	return name, nil
}
