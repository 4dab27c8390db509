// Package mock provides mock synthesis engines for testing.
package mock

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/voxcache/voxcache/internal/tts"
)

// Provider implements tts.VoiceProvider for testing.
type Provider struct {
	mu        sync.Mutex
	name      string
	voice     string
	available bool
	audio     []byte
	delay     time.Duration
	err       error
	texts     []string
	voices    []string

	calls atomic.Int64
}

// NewProvider creates an available provider speaking with voice.
func NewProvider(voice string) *Provider {
	return &Provider{
		name:      "amazonPolly",
		voice:     voice,
		available: true,
		audio:     PCM(1600),
	}
}

// Name returns the provider tag.
func (p *Provider) Name() string {
	return p.name
}

// CurrentVoice returns the voice while the provider is available.
func (p *Provider) CurrentVoice() (string, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.available {
		return "", false
	}
	return p.voice, true
}

// Synthesize records the call and returns the configured audio.
func (p *Provider) Synthesize(ctx context.Context, voiceID, text string) ([]byte, error) {
	p.calls.Add(1)

	p.mu.Lock()
	p.texts = append(p.texts, text)
	p.voices = append(p.voices, voiceID)
	delay, err, audio := p.delay, p.err, p.audio
	p.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	out := make([]byte, len(audio))
	copy(out, audio)
	return out, nil
}

// SetAvailable toggles whether CurrentVoice reports a voice.
func (p *Provider) SetAvailable(ok bool) {
	p.mu.Lock()
	p.available = ok
	p.mu.Unlock()
}

// SetVoice changes the active voice.
func (p *Provider) SetVoice(voice string) {
	p.mu.Lock()
	p.voice = voice
	p.mu.Unlock()
}

// SetFailure makes every Synthesize call fail with err; nil clears it.
func (p *Provider) SetFailure(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
}

// SetAudio sets the bytes Synthesize returns.
func (p *Provider) SetAudio(audio []byte) {
	p.mu.Lock()
	p.audio = audio
	p.mu.Unlock()
}

// SetDelay sets a simulated processing delay.
func (p *Provider) SetDelay(d time.Duration) {
	p.mu.Lock()
	p.delay = d
	p.mu.Unlock()
}

// Calls returns how many times Synthesize ran.
func (p *Provider) Calls() int {
	return int(p.calls.Load())
}

// Texts returns the markup passed to each Synthesize call.
func (p *Provider) Texts() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.texts))
	copy(out, p.texts)
	return out
}

// Voices returns the voice passed to each Synthesize call.
func (p *Provider) Voices() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.voices))
	copy(out, p.voices)
	return out
}

// Synthesizer implements tts.Synthesizer for testing.
type Synthesizer struct {
	mu    sync.Mutex
	audio []byte
	err   error
	texts []string
}

// NewSynthesizer creates an offline synthesizer returning a small WAV.
func NewSynthesizer() *Synthesizer {
	return &Synthesizer{audio: WAV(800)}
}

// Synthesize records the call and returns the configured audio.
func (s *Synthesizer) Synthesize(_ context.Context, text string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.texts = append(s.texts, text)
	if s.err != nil {
		return nil, s.err
	}
	return s.audio, nil
}

// SetFailure makes every call fail with err; nil clears it.
func (s *Synthesizer) SetFailure(err error) {
	s.mu.Lock()
	s.err = err
	s.mu.Unlock()
}

// Calls returns how many times Synthesize ran.
func (s *Synthesizer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.texts)
}

// Texts returns the text passed to each call.
func (s *Synthesizer) Texts() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.texts))
	copy(out, s.texts)
	return out
}

// Converter implements tts.Converter by writing a fixed WAV to dst.
type Converter struct {
	err   error
	calls atomic.Int64
}

// NewConverter creates a converter that always succeeds.
func NewConverter() *Converter {
	return &Converter{}
}

// FailWith makes Convert fail. The error is wrapped in tts.ErrConversion.
func (c *Converter) FailWith(err error) {
	c.err = err
}

// Convert writes a WAV for src to dst.
func (c *Converter) Convert(_ context.Context, src, dst string) error {
	c.calls.Add(1)
	if c.err != nil {
		return errors.Join(tts.ErrConversion, c.err)
	}
	data, err := os.ReadFile(src)
	if err != nil {
		return errors.Join(tts.ErrConversion, err)
	}
	return os.WriteFile(dst, WAV(len(data)), 0o644)
}

// Calls returns how many times Convert ran.
func (c *Converter) Calls() int {
	return int(c.calls.Load())
}

// PCM returns n bytes of 16-bit silence.
func PCM(n int) []byte {
	return make([]byte, n&^1)
}

// WAV returns a minimal mono 16-bit WAV file with n bytes of silence.
func WAV(n int) []byte {
	n &^= 1
	buf := make([]byte, 44+n)
	copy(buf[0:], "RIFF")
	putLE32(buf[4:], uint32(36+n))
	copy(buf[8:], "WAVEfmt ")
	putLE32(buf[16:], 16)
	putLE16(buf[20:], 1)
	putLE16(buf[22:], 1)
	putLE32(buf[24:], 16000)
	putLE32(buf[28:], 32000)
	putLE16(buf[32:], 2)
	putLE16(buf[34:], 16)
	copy(buf[36:], "data")
	putLE32(buf[40:], uint32(n))
	return buf
}

func putLE16(b []byte, v uint16) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

func putLE32(b []byte, v uint32) {
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

var (
	_ tts.VoiceProvider = (*Provider)(nil)
	_ tts.Synthesizer   = (*Synthesizer)(nil)
	_ tts.Converter     = (*Converter)(nil)
)
