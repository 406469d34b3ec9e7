// Package voices prints the voices a speech backend offers, so that users
// can pick values for --voice, --openai-voice or --gemini-voice.
package voices
