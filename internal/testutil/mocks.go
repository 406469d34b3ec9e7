package testutil

import (
	"context"
	"fmt"
	"sync"
	"time"

	"codeberg.org/snonux/wordaudio/internal/audio"
)

// StubCall records one Synthesize call
type StubCall struct {
	Language string
	Text     string
	At       time.Time
}

// StubProvider is a deterministic audio.Provider. It answers with
// "<lang>:<text>" unless a response or error is configured, and can delay
// individual languages to reorder completions.
type StubProvider struct {
	Responses map[string][]byte        // keyed by "lang:text"
	Errors    map[string]error         // keyed by "lang:text" or "lang"
	Delays    map[string]time.Duration // keyed by lang
	Ext       string

	mu    sync.Mutex
	calls []StubCall
}

// NewStubProvider creates a StubProvider producing files with extension ext
func NewStubProvider(ext string) *StubProvider {
	return &StubProvider{
		Responses: make(map[string][]byte),
		Errors:    make(map[string]error),
		Delays:    make(map[string]time.Duration),
		Ext:       ext,
	}
}

// Synthesize returns the configured fragment for the request
func (s *StubProvider) Synthesize(ctx context.Context, languageCode, text string) (audio.Fragment, error) {
	s.mu.Lock()
	s.calls = append(s.calls, StubCall{Language: languageCode, Text: text, At: time.Now()})
	delay := s.Delays[languageCode]
	s.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	key := fmt.Sprintf("%s:%s", languageCode, text)
	if err, ok := s.Errors[key]; ok {
		return nil, err
	}
	if err, ok := s.Errors[languageCode]; ok {
		return nil, err
	}
	if data, ok := s.Responses[key]; ok {
		return audio.Fragment(data), nil
	}
	return audio.Fragment(key), nil
}

// Name returns the provider name
func (s *StubProvider) Name() string {
	return "stub"
}

// Extension returns the configured extension
func (s *StubProvider) Extension() string {
	if s.Ext == "" {
		return "mp3"
	}
	return s.Ext
}

// IsAvailable always succeeds
func (s *StubProvider) IsAvailable() error {
	return nil
}

// Calls returns a copy of the recorded calls
func (s *StubProvider) Calls() []StubCall {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]StubCall(nil), s.calls...)
}

// CallCount returns the number of Synthesize calls
func (s *StubProvider) CallCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.calls)
}
