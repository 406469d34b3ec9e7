package audio

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/sashabaranov/go-openai"
)

// openAIVoices are the voices offered by the OpenAI speech endpoint
var openAIVoices = []string{"alloy", "ash", "ballad", "coral", "echo", "fable", "onyx", "nova", "sage", "shimmer", "verse"}

// OpenAIProvider implements Provider interface for OpenAI TTS
type OpenAIProvider struct {
	client *openai.Client
	config *Config
}

// NewOpenAIProvider creates a new OpenAI TTS provider
func NewOpenAIProvider(config *Config) (*OpenAIProvider, error) {
	if config.OpenAIKey == "" {
		return nil, fmt.Errorf("OpenAI API key is required")
	}
	if _, err := speechResponseFormat(config.OpenAIFormat); err != nil {
		return nil, err
	}

	clientConfig := openai.DefaultConfig(config.OpenAIKey)
	if config.OpenAIBaseURL != "" {
		clientConfig.BaseURL = config.OpenAIBaseURL
	}

	return &OpenAIProvider{
		client: openai.NewClientWithConfig(clientConfig),
		config: config,
	}, nil
}

// Synthesize generates audio using OpenAI TTS. The speech endpoint has no
// language parameter, so the language is passed as a voice instruction on
// models that accept instructions and otherwise left to auto-detection.
func (p *OpenAIProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	format, _ := speechResponseFormat(p.config.OpenAIFormat)
	req := openai.CreateSpeechRequest{
		Model:          openai.SpeechModel(p.config.OpenAIModel),
		Input:          strings.TrimSpace(text),
		Voice:          openai.SpeechVoice(p.config.OpenAIVoice),
		Speed:          p.config.OpenAISpeed,
		ResponseFormat: format,
	}
	if supportsInstructions(p.config.OpenAIModel) {
		req.Instructions = p.instructionFor(languageCode)
	}

	response, err := p.client.CreateSpeech(ctx, req)
	if err != nil {
		// Check if it's a model access error
		errStr := err.Error()
		if strings.Contains(errStr, "does not have access to model") && supportsInstructions(p.config.OpenAIModel) {
			return nil, fmt.Errorf("OpenAI TTS API error: %w\nNote: The %s model requires access. Try using --openai-model tts-1-hd instead", err, p.config.OpenAIModel)
		}
		return nil, fmt.Errorf("OpenAI TTS API error: %w", err)
	}
	defer response.Close()

	data, err := io.ReadAll(response)
	if err != nil {
		return nil, fmt.Errorf("failed to read audio data: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("no audio data received from OpenAI")
	}

	return Fragment(data), nil
}

// ListVoices returns the fixed OpenAI voice set, which covers every language
func (p *OpenAIProvider) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	voices := make([]Voice, 0, len(openAIVoices))
	for _, name := range openAIVoices {
		voices = append(voices, Voice{Name: name})
	}
	return voices, nil
}

// Name returns the provider name
func (p *OpenAIProvider) Name() string {
	return "openai"
}

// Extension returns the configured response format
func (p *OpenAIProvider) Extension() string {
	if p.config.OpenAIFormat == "" {
		return "mp3"
	}
	return strings.ToLower(p.config.OpenAIFormat)
}

// IsAvailable checks if the OpenAI API is accessible
func (p *OpenAIProvider) IsAvailable() error {
	if p.config.OpenAIKey == "" {
		return fmt.Errorf("OpenAI API key not configured")
	}

	// A test request would spend credits, so only the key is checked
	return nil
}

func (p *OpenAIProvider) instructionFor(languageCode string) string {
	instruction := fmt.Sprintf("Speak the text in the language identified by the code %q, with native pronunciation.", languageCode)
	if p.config.OpenAIInstruction != "" {
		instruction += " " + p.config.OpenAIInstruction
	}
	return instruction
}

func supportsInstructions(model string) bool {
	return model == "gpt-4o-mini-tts" || model == "gpt-4o-mini-audio-preview"
}

func speechResponseFormat(format string) (openai.SpeechResponseFormat, error) {
	switch strings.ToLower(format) {
	case "", "mp3":
		return openai.SpeechResponseFormatMp3, nil
	case "wav":
		return openai.SpeechResponseFormatWav, nil
	case "opus":
		return openai.SpeechResponseFormatOpus, nil
	case "aac":
		return openai.SpeechResponseFormatAac, nil
	case "flac":
		return openai.SpeechResponseFormatFlac, nil
	default:
		return "", fmt.Errorf("unsupported OpenAI audio format: %s", format)
	}
}
