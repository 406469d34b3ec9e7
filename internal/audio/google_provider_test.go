package audio

import (
	"context"
	"errors"
	"testing"

	"cloud.google.com/go/texttospeech/apiv1/texttospeechpb"
	"github.com/googleapis/gax-go/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeGoogleClient struct {
	requests []*texttospeechpb.SynthesizeSpeechRequest
	audio    []byte
	err      error
	voices   []*texttospeechpb.Voice
	closed   bool
}

func (f *fakeGoogleClient) SynthesizeSpeech(ctx context.Context, req *texttospeechpb.SynthesizeSpeechRequest, opts ...gax.CallOption) (*texttospeechpb.SynthesizeSpeechResponse, error) {
	f.requests = append(f.requests, req)
	if f.err != nil {
		return nil, f.err
	}
	return &texttospeechpb.SynthesizeSpeechResponse{AudioContent: f.audio}, nil
}

func (f *fakeGoogleClient) ListVoices(ctx context.Context, req *texttospeechpb.ListVoicesRequest, opts ...gax.CallOption) (*texttospeechpb.ListVoicesResponse, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &texttospeechpb.ListVoicesResponse{Voices: f.voices}, nil
}

func (f *fakeGoogleClient) Close() error {
	f.closed = true
	return nil
}

func TestGoogleProviderSynthesize(t *testing.T) {
	client := &fakeGoogleClient{audio: []byte("ID3-bonjour")}
	config := DefaultProviderConfig()
	config.GoogleVoices = map[string]string{"fr-FR": "fr-FR-Wavenet-A"}

	provider, err := newGoogleProvider(client, config)
	require.NoError(t, err)

	fragment, err := provider.Synthesize(context.Background(), "fr-FR", "bonjour")
	require.NoError(t, err)
	assert.Equal(t, Fragment("ID3-bonjour"), fragment)

	require.Len(t, client.requests, 1)
	req := client.requests[0]
	assert.Equal(t, "bonjour", req.GetInput().GetText())
	assert.Equal(t, "fr-FR", req.GetVoice().GetLanguageCode())
	assert.Equal(t, "fr-FR-Wavenet-A", req.GetVoice().GetName())
	assert.Equal(t, texttospeechpb.SsmlVoiceGender_NEUTRAL, req.GetVoice().GetSsmlGender())
	assert.Equal(t, texttospeechpb.AudioEncoding_MP3, req.GetAudioConfig().GetAudioEncoding())
}

func TestGoogleProviderSynthesize_Errors(t *testing.T) {
	t.Run("backend error", func(t *testing.T) {
		client := &fakeGoogleClient{err: errors.New("invalid language")}
		provider, err := newGoogleProvider(client, DefaultProviderConfig())
		require.NoError(t, err)

		_, err = provider.Synthesize(context.Background(), "xx", "hello")
		assert.ErrorContains(t, err, "invalid language")
	})

	t.Run("empty audio", func(t *testing.T) {
		client := &fakeGoogleClient{}
		provider, err := newGoogleProvider(client, DefaultProviderConfig())
		require.NoError(t, err)

		_, err = provider.Synthesize(context.Background(), "en", "hello")
		assert.ErrorContains(t, err, "no audio data")
	})

	t.Run("empty text never reaches backend", func(t *testing.T) {
		client := &fakeGoogleClient{audio: []byte("x")}
		provider, err := newGoogleProvider(client, DefaultProviderConfig())
		require.NoError(t, err)

		_, err = provider.Synthesize(context.Background(), "en", "")
		assert.Error(t, err)
		assert.Empty(t, client.requests)
	})
}

func TestGoogleProviderGender(t *testing.T) {
	tests := []struct {
		gender  string
		want    texttospeechpb.SsmlVoiceGender
		wantErr bool
	}{
		{"", texttospeechpb.SsmlVoiceGender_NEUTRAL, false},
		{"neutral", texttospeechpb.SsmlVoiceGender_NEUTRAL, false},
		{"FEMALE", texttospeechpb.SsmlVoiceGender_FEMALE, false},
		{"male", texttospeechpb.SsmlVoiceGender_MALE, false},
		{"robot", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.gender, func(t *testing.T) {
			got, err := parseGender(tt.gender)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestGoogleProviderListVoices(t *testing.T) {
	client := &fakeGoogleClient{voices: []*texttospeechpb.Voice{
		{
			Name:                   "en-US-Standard-A",
			LanguageCodes:          []string{"en-US"},
			SsmlGender:             texttospeechpb.SsmlVoiceGender_MALE,
			NaturalSampleRateHertz: 24000,
		},
	}}
	provider, err := newGoogleProvider(client, DefaultProviderConfig())
	require.NoError(t, err)

	voices, err := provider.ListVoices(context.Background(), "en-US")
	require.NoError(t, err)
	require.Len(t, voices, 1)
	assert.Equal(t, Voice{
		Name:            "en-US-Standard-A",
		Languages:       []string{"en-US"},
		Gender:          "MALE",
		SampleRateHertz: 24000,
	}, voices[0])
}

func TestGoogleProviderMetadata(t *testing.T) {
	client := &fakeGoogleClient{}
	provider, err := newGoogleProvider(client, DefaultProviderConfig())
	require.NoError(t, err)

	assert.Equal(t, "google", provider.Name())
	assert.Equal(t, "mp3", provider.Extension())
	assert.NoError(t, provider.IsAvailable())

	require.NoError(t, Close(provider))
	assert.True(t, client.closed)
}

func TestGoogleProviderVoiceLookupIgnoresCase(t *testing.T) {
	client := &fakeGoogleClient{audio: []byte("x")}
	config := DefaultProviderConfig()
	config.GoogleVoices = map[string]string{"de-de": "de-DE-Neural2-B"}

	provider, err := newGoogleProvider(client, config)
	require.NoError(t, err)

	_, err = provider.Synthesize(context.Background(), "de-DE", "Hallo")
	require.NoError(t, err)
	assert.Equal(t, "de-DE-Neural2-B", client.requests[0].GetVoice().GetName())
}
