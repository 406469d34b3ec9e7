package cli

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"unicode/utf8"

	"codeberg.org/snonux/wordaudio/internal/audio"
	"codeberg.org/snonux/wordaudio/internal/ratelimit"
)

// ConfigError reports an unusable option value
type ConfigError struct {
	Option string
	Value  string
	Err    error
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("invalid --%s %q: %v", e.Option, e.Value, e.Err)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// ResolveRate parses the requests-per-second value. Anything that is not a
// positive integer yields ratelimit.DefaultRate and ok == false.
func ResolveRate(raw string) (rate int, ok bool) {
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || n <= 0 {
		return ratelimit.DefaultRate, false
	}
	return n, true
}

// ParseDelimiter turns the delimiter option into a rune. Besides a single
// character it accepts `\t` and "tab".
func ParseDelimiter(s string) (rune, error) {
	switch s {
	case `\t`, "tab", "\t":
		return '\t', nil
	case "":
		return ',', nil
	}

	r, size := utf8.DecodeRuneInString(s)
	if size != len(s) {
		return 0, &ConfigError{Option: "delimiter", Value: s, Err: errors.New("must be a single character")}
	}
	if r == utf8.RuneError || r == '"' || r == '\r' || r == '\n' {
		return 0, &ConfigError{Option: "delimiter", Value: s, Err: errors.New("character cannot be used as a delimiter")}
	}
	return r, nil
}

// Validate checks the options needed to start a job
func Validate(flags *Flags) error {
	info, err := os.Stat(flags.CSVFile)
	if err != nil {
		return &ConfigError{Option: "csv", Value: flags.CSVFile, Err: err}
	}
	if info.IsDir() {
		return &ConfigError{Option: "csv", Value: flags.CSVFile, Err: errors.New("is a directory")}
	}

	if !slices.Contains(audio.Providers(), flags.Backend) {
		return &ConfigError{
			Option: "backend",
			Value:  flags.Backend,
			Err:    fmt.Errorf("must be one of %s", strings.Join(audio.Providers(), ", ")),
		}
	}

	if _, err := ParseDelimiter(flags.Delimiter); err != nil {
		return err
	}

	if flags.Timeout < 0 {
		return &ConfigError{Option: "timeout", Value: flags.Timeout.String(), Err: errors.New("must not be negative")}
	}

	if flags.BreakerFailures < 0 {
		return &ConfigError{Option: "breaker-failures", Value: strconv.Itoa(flags.BreakerFailures), Err: errors.New("must not be negative")}
	}

	if strings.TrimSpace(flags.OutputDir) == "" {
		return &ConfigError{Option: "output", Value: flags.OutputDir, Err: errors.New("must not be empty")}
	}

	return nil
}
