package audio

import (
	"context"
	"fmt"
	"strings"

	texttospeech "cloud.google.com/go/texttospeech/apiv1"
	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
)

// googleSpeechClient is the subset of the Cloud Text-to-Speech client used here
type googleSpeechClient interface {
	SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error)
	ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error)
	Close() error
}

// GoogleProvider implements Provider with Google Cloud Text-to-Speech
type GoogleProvider struct {
	client googleSpeechClient
	config *Config
	gender texttospeechpb.SsmlVoiceGender
}

// NewGoogleProvider creates a Cloud Text-to-Speech client. Credentials come
// from the configured key file or from application default credentials.
func NewGoogleProvider(ctx context.Context, config *Config) (*GoogleProvider, error) {
	if _, err := parseGender(config.GoogleGender); err != nil {
		return nil, err
	}

	var opts []option.ClientOption
	if config.GoogleCredentialsFile != "" {
		opts = append(opts, option.WithCredentialsFile(config.GoogleCredentialsFile))
	}

	client, err := texttospeech.NewClient(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Google Text-to-Speech client: %w", err)
	}

	return newGoogleProvider(client, config)
}

func newGoogleProvider(client googleSpeechClient, config *Config) (*GoogleProvider, error) {
	gender, err := parseGender(config.GoogleGender)
	if err != nil {
		return nil, err
	}
	return &GoogleProvider{
		client: client,
		config: config,
		gender: gender,
	}, nil
}

// Synthesize requests MP3 audio for text in the given language
func (p *GoogleProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	req := &texttospeechpb.SynthesizeSpeechRequest{
		Input: &texttospeechpb.SynthesisInput{
			InputSource: &texttospeechpb.SynthesisInput_Text{Text: text},
		},
		Voice: &texttospeechpb.VoiceSelectionParams{
			LanguageCode: languageCode,
			SsmlGender:   p.gender,
			Name:         p.voiceFor(languageCode),
		},
		AudioConfig: &texttospeechpb.AudioConfig{
			AudioEncoding: texttospeechpb.AudioEncoding_MP3,
		},
	}

	resp, err := p.client.SynthesizeSpeech(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Google TTS API error: %w", err)
	}
	if len(resp.GetAudioContent()) == 0 {
		return nil, fmt.Errorf("no audio data received from Google")
	}

	return Fragment(resp.GetAudioContent()), nil
}

// voiceFor returns the configured voice name for a language. Config files
// lowercase map keys, so the lookup ignores case.
func (p *GoogleProvider) voiceFor(languageCode string) string {
	if name, ok := p.config.GoogleVoices[languageCode]; ok {
		return name
	}
	for lang, name := range p.config.GoogleVoices {
		if strings.EqualFold(lang, languageCode) {
			return name
		}
	}
	return ""
}

// ListVoices returns the voices Google offers for a language, all voices when empty
func (p *GoogleProvider) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	resp, err := p.client.ListVoices(ctx, &texttospeechpb.ListVoicesRequest{LanguageCode: languageCode})
	if err != nil {
		return nil, fmt.Errorf("failed to list voices: %w", err)
	}

	voices := make([]Voice, 0, len(resp.GetVoices()))
	for _, v := range resp.GetVoices() {
		voices = append(voices, Voice{
			Name:            v.GetName(),
			Languages:       v.GetLanguageCodes(),
			Gender:          v.GetSsmlGender().String(),
			SampleRateHertz: v.GetNaturalSampleRateHertz(),
		})
	}
	return voices, nil
}

// Name returns the provider name
func (p *GoogleProvider) Name() string {
	return "google"
}

// Extension returns the file extension for MP3 output
func (p *GoogleProvider) Extension() string {
	return "mp3"
}

// IsAvailable reports whether a client was created
func (p *GoogleProvider) IsAvailable() error {
	if p.client == nil {
		return fmt.Errorf("Google Text-to-Speech client not initialized")
	}
	return nil
}

// Close closes the underlying gRPC connection
func (p *GoogleProvider) Close() error {
	return p.client.Close()
}

func parseGender(gender string) (texttospeechpb.SsmlVoiceGender, error) {
	if gender == "" {
		return texttospeechpb.SsmlVoiceGender_NEUTRAL, nil
	}
	value, ok := texttospeechpb.SsmlVoiceGender_value[strings.ToUpper(gender)]
	if !ok {
		return 0, fmt.Errorf("unknown voice gender: %s", gender)
	}
	return texttospeechpb.SsmlVoiceGender(value), nil
}
