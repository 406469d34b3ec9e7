package voices

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"codeberg.org/snonux/wordaudio/internal/audio"
)

// Lister handles listing the voices of a backend
type Lister struct {
	provider audio.Provider
	out      io.Writer
}

// NewLister creates a new voice lister printing to out
func NewLister(provider audio.Provider, out io.Writer) *Lister {
	return &Lister{
		provider: provider,
		out:      out,
	}
}

// ListVoices prints the voices for languageCode grouped by gender. An
// empty language code lists every voice.
func (l *Lister) ListVoices(ctx context.Context, languageCode string) error {
	backend := audio.Backend(l.provider)
	vl, ok := backend.(audio.VoiceLister)
	if !ok {
		return fmt.Errorf("backend %s cannot list voices", backend.Name())
	}

	voices, err := vl.ListVoices(ctx, languageCode)
	if err != nil {
		return fmt.Errorf("failed to list voices: %w", err)
	}

	// Group by gender
	groups := map[string][]audio.Voice{}
	for _, v := range voices {
		gender := strings.ToUpper(v.Gender)
		if gender == "" {
			gender = "UNSPECIFIED"
		}
		groups[gender] = append(groups[gender], v)
	}

	genders := make([]string, 0, len(groups))
	for g := range groups {
		genders = append(genders, g)
	}
	sort.Strings(genders)

	// Print voices
	target := languageCode
	if target == "" {
		target = "all languages"
	}
	fmt.Fprintf(l.out, "Available %s voices for %s:\n", backend.Name(), target)
	if len(voices) == 0 {
		fmt.Fprintln(l.out, "  No voices found")
		return nil
	}

	for _, gender := range genders {
		group := groups[gender]
		sort.Slice(group, func(i, j int) bool { return group[i].Name < group[j].Name })

		fmt.Fprintf(l.out, "\n%s:\n", gender)
		for _, v := range group {
			line := "  " + v.Name
			if len(v.Languages) > 0 {
				line += " (" + strings.Join(v.Languages, ", ") + ")"
			}
			if v.SampleRateHertz > 0 {
				line += fmt.Sprintf(" %d Hz", v.SampleRateHertz)
			}
			fmt.Fprintln(l.out, line)
		}
	}

	return nil
}
