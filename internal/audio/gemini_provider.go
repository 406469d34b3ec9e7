package audio

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

// geminiVoices are the prebuilt voices of the Gemini speech models
var geminiVoices = []string{
	"Zephyr", "Puck", "Charon", "Kore", "Fenrir", "Leda", "Orus", "Aoede",
	"Callirrhoe", "Autonoe", "Enceladus", "Iapetus", "Umbriel", "Algieba",
	"Despina", "Erinome", "Algenib", "Rasalgethi", "Laomedeia", "Achernar",
	"Alnilam", "Schedar", "Gacrux", "Pulcherrima", "Achird", "Zubenelgenubi",
	"Vindemiatrix", "Sadachbia", "Sadaltager", "Sulafat",
}

// GeminiProvider implements Provider with the Gemini speech generation models.
// The models return raw 24 kHz, 16-bit mono PCM.
type GeminiProvider struct {
	client *genai.Client
	config *Config
}

// NewGeminiProvider creates a Gemini API client
func NewGeminiProvider(ctx context.Context, config *Config) (*GeminiProvider, error) {
	if config.GeminiKey == "" {
		return nil, fmt.Errorf("Gemini API key is required")
	}

	clientConfig := &genai.ClientConfig{
		APIKey:  config.GeminiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if config.GeminiBaseURL != "" {
		clientConfig.HTTPOptions = genai.HTTPOptions{BaseURL: config.GeminiBaseURL}
	}

	client, err := genai.NewClient(ctx, clientConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Gemini client: %w", err)
	}

	return &GeminiProvider{
		client: client,
		config: config,
	}, nil
}

// Synthesize asks the model for an audio-only response in the given language
func (p *GeminiProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: languageCode,
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{
					VoiceName: p.config.GeminiVoice,
				},
			},
		},
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.GeminiModel, genai.Text(strings.TrimSpace(text)), config)
	if err != nil {
		var apiErr genai.APIError
		if errors.As(err, &apiErr) {
			return nil, fmt.Errorf("Gemini API request failed (status=%d): %s", apiErr.Code, strings.TrimSpace(apiErr.Message))
		}
		return nil, fmt.Errorf("Gemini API request failed: %w", err)
	}

	var audio []byte
	if resp != nil && len(resp.Candidates) > 0 && resp.Candidates[0].Content != nil {
		for _, part := range resp.Candidates[0].Content.Parts {
			if part != nil && part.InlineData != nil {
				audio = append(audio, part.InlineData.Data...)
			}
		}
	}
	if len(audio) == 0 {
		return nil, fmt.Errorf("no audio data received from Gemini")
	}

	return Fragment(audio), nil
}

// ListVoices returns the prebuilt voices, which are multilingual
func (p *GeminiProvider) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	voices := make([]Voice, 0, len(geminiVoices))
	for _, name := range geminiVoices {
		voices = append(voices, Voice{Name: name, SampleRateHertz: 24000})
	}
	return voices, nil
}

// Name returns the provider name
func (p *GeminiProvider) Name() string {
	return "gemini"
}

// Extension returns the extension for raw PCM
func (p *GeminiProvider) Extension() string {
	return "pcm"
}

// IsAvailable checks that an API key is configured
func (p *GeminiProvider) IsAvailable() error {
	if p.config.GeminiKey == "" {
		return fmt.Errorf("Gemini API key not configured")
	}
	return nil
}
