package internal

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

// MaxFilenameBytes is the longest name most filesystems accept for a single path element.
const MaxFilenameBytes = 255

var (
	illegalChars    = regexp.MustCompile(`[/?<>\\:*|"]`)
	controlChars    = regexp.MustCompile(`[\x00-\x1f\x{80}-\x{9f}]`)
	reservedNames   = regexp.MustCompile(`^\.+$`)
	windowsReserved = regexp.MustCompile(`(?i)^(con|prn|aux|nul|com[0-9]|lpt[0-9])(\..*)?$`)
	windowsTrailing = regexp.MustCompile(`[. ]+$`)
)

// SanitizeFilename creates a safe filename from a string. Characters that are
// illegal on common filesystems are removed rather than replaced, so the
// result may be empty; callers must treat an empty result as unusable.
func SanitizeFilename(s string) string {
	result := illegalChars.ReplaceAllString(s, "")
	result = controlChars.ReplaceAllString(result, "")
	result = reservedNames.ReplaceAllString(result, "")
	result = windowsReserved.ReplaceAllString(result, "")
	result = windowsTrailing.ReplaceAllString(result, "")
	return TruncateFilename(strings.TrimSpace(result), MaxFilenameBytes)
}

// TruncateFilename cuts s to at most n bytes without splitting a rune and
// drops dots and spaces left at the new end
func TruncateFilename(s string, n int) string {
	if len(s) <= n {
		return s
	}
	if n <= 0 {
		return ""
	}
	cut := n
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return strings.TrimRight(s[:cut], ". ")
}
