package audio

import (
	"fmt"
	"strings"

	"golang.org/x/text/language"
)

// ValidateText rejects text that a backend cannot render
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return fmt.Errorf("text cannot be empty")
	}
	return nil
}

// ValidateLanguageCode checks that code is a well-formed BCP 47 tag such as
// "en", "fr-FR" or "cmn-Hans-CN". Whether a backend has a voice for it is
// only known once the request is made.
func ValidateLanguageCode(code string) error {
	if strings.TrimSpace(code) == "" {
		return fmt.Errorf("language code cannot be empty")
	}
	if _, err := language.Parse(code); err != nil {
		return fmt.Errorf("invalid language code %q: %w", code, err)
	}
	return nil
}
