// Package synth turns one row into its audio bundle by requesting every
// language cell concurrently.
package synth

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"codeberg.org/snonux/wordaudio/internal/audio"
	"codeberg.org/snonux/wordaudio/internal/batch"
)

// Bundle holds the fragments of one row in column order
type Bundle struct {
	Row       batch.Row
	Columns   []string
	Fragments []audio.Fragment
}

// Size returns the total number of audio bytes
func (b *Bundle) Size() int {
	n := 0
	for _, f := range b.Fragments {
		n += len(f)
	}
	return n
}

// Release drops the fragments once the bundle has been written
func (b *Bundle) Release() {
	b.Fragments = nil
}

// Synthesizer fans a row out to a provider. The provider is expected to be
// wrapped with the job's rate limiter.
type Synthesizer struct {
	provider audio.Provider
}

// New creates a Synthesizer
func New(provider audio.Provider) *Synthesizer {
	return &Synthesizer{provider: provider}
}

// SynthesizeRow requests one fragment per column and returns them in column
// order. The first failure cancels the remaining requests of the row and is
// returned as *audio.SynthesisError. When columns is nil the row's own
// columns are used.
func (s *Synthesizer) SynthesizeRow(ctx context.Context, row batch.Row, columns []string) (*Bundle, error) {
	if columns == nil {
		columns = row.Columns
	}

	texts := make([]string, len(columns))
	for i, column := range columns {
		text, ok := row.Value(column)
		if !ok {
			return nil, s.fail(column, "", fmt.Errorf("row %d has no column %q", row.Line, column))
		}
		if err := audio.ValidateLanguageCode(column); err != nil {
			return nil, s.fail(column, text, err)
		}
		if err := audio.ValidateText(text); err != nil {
			return nil, s.fail(column, text, err)
		}
		texts[i] = text
	}

	fragments := make([]audio.Fragment, len(columns))
	g, gctx := errgroup.WithContext(ctx)
	for i, column := range columns {
		i, column := i, column
		g.Go(func() error {
			fragment, err := s.provider.Synthesize(gctx, column, texts[i])
			if err != nil {
				return s.fail(column, texts[i], err)
			}
			fragments[i] = fragment
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	return &Bundle{Row: row, Columns: columns, Fragments: fragments}, nil
}

func (s *Synthesizer) fail(language, text string, err error) error {
	return &audio.SynthesisError{
		Provider: s.provider.Name(),
		Language: language,
		Text:     text,
		Err:      err,
	}
}
