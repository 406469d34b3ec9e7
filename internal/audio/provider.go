package audio

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
)

// Fragment is the encoded audio returned for one (word, language) request.
// It must not be modified once returned.
type Fragment []byte

// Provider defines the interface for text-to-speech providers
type Provider interface {
	// Synthesize renders text in the given language and returns the encoded audio
	Synthesize(ctx context.Context, languageCode, text string) (Fragment, error)

	// Name returns the provider name
	Name() string

	// Extension returns the file extension of the audio the provider produces
	Extension() string

	// IsAvailable checks if the provider is properly configured and available
	IsAvailable() error
}

// Voice describes one voice offered by a provider
type Voice struct {
	Name            string
	Languages       []string
	Gender          string
	SampleRateHertz int32
}

// VoiceLister is implemented by providers that can enumerate their voices
type VoiceLister interface {
	ListVoices(ctx context.Context, languageCode string) ([]Voice, error)
}

// Wrapper is implemented by decorators so callers can reach the backend
type Wrapper interface {
	Unwrap() Provider
}

// Config holds common configuration for audio providers
type Config struct {
	Provider string // Provider name: "google", "openai", "gemini" or "espeak"

	// Google Cloud Text-to-Speech settings
	GoogleCredentialsFile string            // Service account key file, empty for application default credentials
	GoogleGender          string            // "NEUTRAL", "MALE" or "FEMALE"
	GoogleVoices          map[string]string // Optional voice name per language code

	// OpenAI-specific settings
	OpenAIKey         string
	OpenAIBaseURL     string
	OpenAIModel       string  // "tts-1", "tts-1-hd", or "gpt-4o-mini-tts"
	OpenAIVoice       string  // "alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"
	OpenAISpeed       float64 // 0.25 to 4.0
	OpenAIFormat      string  // "mp3", "wav", "opus", "aac", "flac"
	OpenAIInstruction string  // Extra voice instructions for gpt-4o-mini-tts

	// Gemini settings
	GeminiKey     string
	GeminiBaseURL string
	GeminiModel   string
	GeminiVoice   string

	// espeak-ng settings
	ESpeakCommand string
	ESpeakSpeed   int // Words per minute
}

// DefaultProviderConfig returns default configuration
func DefaultProviderConfig() *Config {
	return &Config{
		Provider:      "google",
		GoogleGender:  "NEUTRAL",
		OpenAIModel:   "gpt-4o-mini-tts",
		OpenAIVoice:   "alloy",
		OpenAISpeed:   1.0,
		OpenAIFormat:  "mp3",
		GeminiModel:   "gemini-2.5-flash-preview-tts",
		GeminiVoice:   "Kore",
		ESpeakCommand: "espeak-ng",
		ESpeakSpeed:   150,
	}
}

// Providers lists the backend names NewProvider accepts
func Providers() []string {
	return []string{"google", "openai", "gemini", "espeak"}
}

// Fingerprint identifies the settings that influence the produced audio.
// Two configurations with the same fingerprint render identical requests.
func (c *Config) Fingerprint() string {
	switch c.Provider {
	case "google":
		langs := make([]string, 0, len(c.GoogleVoices))
		for lang := range c.GoogleVoices {
			langs = append(langs, lang)
		}
		sort.Strings(langs)
		var voices []string
		for _, lang := range langs {
			voices = append(voices, lang+"="+c.GoogleVoices[lang])
		}
		return fmt.Sprintf("google|%s|%s", strings.ToUpper(c.GoogleGender), strings.Join(voices, ","))
	case "openai":
		return fmt.Sprintf("openai|%s|%s|%.2f|%s|%s", c.OpenAIModel, c.OpenAIVoice, c.OpenAISpeed, c.OpenAIFormat, c.OpenAIInstruction)
	case "gemini":
		return fmt.Sprintf("gemini|%s|%s", c.GeminiModel, c.GeminiVoice)
	case "espeak":
		return fmt.Sprintf("espeak|%d", c.ESpeakSpeed)
	default:
		return c.Provider
	}
}

// NewProvider creates the appropriate audio provider based on configuration
func NewProvider(ctx context.Context, config *Config) (Provider, error) {
	if config == nil {
		config = DefaultProviderConfig()
	}

	switch config.Provider {
	case "google":
		return NewGoogleProvider(ctx, config)

	case "openai":
		if config.OpenAIKey == "" {
			return nil, fmt.Errorf("OpenAI API key is required")
		}
		return NewOpenAIProvider(config)

	case "gemini":
		if config.GeminiKey == "" {
			return nil, fmt.Errorf("Gemini API key is required")
		}
		return NewGeminiProvider(ctx, config)

	case "espeak":
		return NewESpeakProvider(config)

	default:
		return nil, fmt.Errorf("unknown audio provider: %s", config.Provider)
	}
}

// Backend follows Unwrap through decorators and returns the innermost provider
func Backend(p Provider) Provider {
	for {
		w, ok := p.(Wrapper)
		if !ok {
			return p
		}
		p = w.Unwrap()
	}
}

// Close releases the backend's resources when it holds any
func Close(p Provider) error {
	if c, ok := Backend(p).(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// SynthesisError reports a failed synthesis request for one cell
type SynthesisError struct {
	Provider string
	Language string
	Text     string
	Err      error
}

func (e *SynthesisError) Error() string {
	return fmt.Sprintf("synthesis failed (provider: %s, lang: %s, word: %q): %v", e.Provider, e.Language, e.Text, e.Err)
}

func (e *SynthesisError) Unwrap() error {
	return e.Err
}
