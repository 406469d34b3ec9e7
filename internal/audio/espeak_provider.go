package audio

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// ESpeakProvider implements Provider with a local espeak-ng binary. It needs
// no network access and produces WAV audio.
type ESpeakProvider struct {
	command string
	speed   int
}

// NewESpeakProvider creates a new espeak-ng provider
func NewESpeakProvider(config *Config) (*ESpeakProvider, error) {
	command := config.ESpeakCommand
	if command == "" {
		command = "espeak-ng"
	}
	speed := config.ESpeakSpeed
	if speed == 0 {
		speed = 150
	}

	p := &ESpeakProvider{command: command, speed: clampSpeed(speed)}
	if err := p.IsAvailable(); err != nil {
		return nil, err
	}
	return p, nil
}

// Synthesize runs espeak-ng with the language as voice and captures the WAV
// written to stdout
func (p *ESpeakProvider) Synthesize(ctx context.Context, languageCode, text string) (Fragment, error) {
	if err := ValidateText(text); err != nil {
		return nil, err
	}

	args := []string{
		"-v", strings.ToLower(languageCode),
		"-s", strconv.Itoa(p.speed),
		"--stdout",
		strings.TrimSpace(text),
	}

	var stdout, stderr bytes.Buffer
	cmd := exec.CommandContext(ctx, p.command, args...)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return nil, fmt.Errorf("espeak-ng failed: %w\nOutput: %s", err, strings.TrimSpace(stderr.String()))
	}
	if stdout.Len() == 0 {
		return nil, fmt.Errorf("no audio data received from espeak-ng")
	}

	return Fragment(stdout.Bytes()), nil
}

// ListVoices parses the voice table printed by espeak-ng --voices
func (p *ESpeakProvider) ListVoices(ctx context.Context, languageCode string) ([]Voice, error) {
	arg := "--voices"
	if languageCode != "" {
		arg += "=" + strings.ToLower(languageCode)
	}

	out, err := exec.CommandContext(ctx, p.command, arg).Output()
	if err != nil {
		return nil, fmt.Errorf("failed to list espeak-ng voices: %w", err)
	}
	return parseESpeakVoices(out), nil
}

// Name returns the provider name
func (p *ESpeakProvider) Name() string {
	return "espeak-ng"
}

// Extension returns the extension for WAV output
func (p *ESpeakProvider) Extension() string {
	return "wav"
}

// IsAvailable checks if espeak-ng is installed
func (p *ESpeakProvider) IsAvailable() error {
	if err := exec.Command(p.command, "--version").Run(); err != nil {
		return fmt.Errorf("espeak-ng is not installed or not in PATH: %w", err)
	}
	return nil
}

// parseESpeakVoices reads lines like
// " 5  en-gb          --/M      English_(Great_Britain) gmw/en"
func parseESpeakVoices(out []byte) []Voice {
	var voices []Voice
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || fields[0] == "Pty" {
			continue
		}
		gender := ""
		if parts := strings.SplitN(fields[2], "/", 2); len(parts) == 2 {
			gender = parts[1]
		}
		voices = append(voices, Voice{
			Name:      fields[3],
			Languages: []string{fields[1]},
			Gender:    gender,
		})
	}
	return voices
}

func clampSpeed(speed int) int {
	if speed < 80 {
		return 80
	}
	if speed > 450 {
		return 450
	}
	return speed
}
