package tts

import (
	"context"
)

// VoiceProvider is the cloud synthesis capability.
type VoiceProvider interface {
	// Name is the provider tag recorded in cache entries, e.g. "amazonPolly".
	Name() string

	// CurrentVoice returns the active voice id, or ok=false when the
	// provider has no usable voice.
	CurrentVoice() (voiceID string, ok bool)

	// Synthesize converts markup text into provider-native audio spoken by
	// voiceID. An empty voiceID uses the current voice.
	Synthesize(ctx context.Context, voiceID, text string) ([]byte, error)
}

// Synthesizer is the offline synthesis capability. It has no cache and
// overwrites its output on every call.
type Synthesizer interface {
	Synthesize(ctx context.Context, text string) ([]byte, error)
}

// Converter turns a provider-native artifact into the canonical WAV encoding.
// Failures wrap ErrConversion.
type Converter interface {
	Convert(ctx context.Context, srcPath, dstPath string) error
}
