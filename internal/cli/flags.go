package cli

import (
	"time"

	"codeberg.org/snonux/wordaudio/internal/audio"
)

// Flags holds all command-line flag values
type Flags struct {
	// General flags
	CfgFile    string
	CSVFile    string
	Rate       string // Requests per second, validated by ResolveRate
	OutputDir  string
	Delimiter  string
	Timeout    time.Duration
	KeepGoing  bool
	CacheFile  string
	ListVoices string
	Archive    bool
	Anki       bool
	Verbose    bool

	// Backend flags
	Backend         string
	BreakerFailures int

	// Google flags
	GoogleVoices      map[string]string
	GoogleGender      string
	GoogleCredentials string

	// OpenAI flags
	OpenAIModel       string
	OpenAIVoice       string
	OpenAIFormat      string
	OpenAISpeed       float64
	OpenAIInstruction string

	// Gemini flags
	GeminiModel string
	GeminiVoice string

	// espeak-ng flags
	ESpeakSpeed int
}

// NewFlags creates a new Flags instance with default values
func NewFlags() *Flags {
	defaults := audio.DefaultProviderConfig()
	return &Flags{
		CSVFile:         "words.csv",
		Rate:            "1",
		OutputDir:       "output",
		Delimiter:       ",",
		Backend:         defaults.Provider,
		BreakerFailures: int(audio.DefaultBreakerSettings().MaxConsecutiveFailures),
		GoogleVoices:    map[string]string{},
		GoogleGender:    defaults.GoogleGender,
		OpenAIModel:     defaults.OpenAIModel,
		OpenAIVoice:     defaults.OpenAIVoice,
		OpenAIFormat:    defaults.OpenAIFormat,
		OpenAISpeed:     defaults.OpenAISpeed,
		GeminiModel:     defaults.GeminiModel,
		GeminiVoice:     defaults.GeminiVoice,
		ESpeakSpeed:     defaults.ESpeakSpeed,
	}
}

// ProviderConfig builds the backend configuration from the flags
func (f *Flags) ProviderConfig() *audio.Config {
	config := audio.DefaultProviderConfig()
	config.Provider = f.Backend
	config.GoogleCredentialsFile = f.GoogleCredentials
	config.GoogleGender = f.GoogleGender
	config.GoogleVoices = f.GoogleVoices
	config.OpenAIKey = GetOpenAIKey()
	config.OpenAIModel = f.OpenAIModel
	config.OpenAIVoice = f.OpenAIVoice
	config.OpenAIFormat = f.OpenAIFormat
	config.OpenAISpeed = f.OpenAISpeed
	config.OpenAIInstruction = f.OpenAIInstruction
	config.GeminiKey = GetGeminiKey()
	config.GeminiModel = f.GeminiModel
	config.GeminiVoice = f.GeminiVoice
	config.ESpeakSpeed = f.ESpeakSpeed
	return config
}

// BreakerSettings returns the circuit breaker settings from the flags
func (f *Flags) BreakerSettings() audio.BreakerSettings {
	settings := audio.DefaultBreakerSettings()
	if f.BreakerFailures > 0 {
		settings.MaxConsecutiveFailures = uint32(f.BreakerFailures)
	}
	return settings
}
