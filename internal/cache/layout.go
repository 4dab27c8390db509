package cache

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"

	"github.com/voxcache/voxcache/internal/tts"
)

const (
	originalExt  = ".original"
	audioExt     = ".wav"
	fallbackName = "native_synthesis"
)

// Layout resolves artifact paths inside the data directory:
//
//	{name}.original       raw provider output
//	{name}.wav            canonical audio
//	native_synthesis.wav  offline output, overwritten on every call
type Layout struct {
	Dir string
}

// Ensure creates the data directory.
func (l Layout) Ensure() error {
	if err := os.MkdirAll(l.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create data directory: %w", err)
	}
	return nil
}

// OriginalPath is where raw provider output for name is written.
func (l Layout) OriginalPath(name string) string {
	return filepath.Join(l.Dir, name+originalExt)
}

// AudioPath is where converted audio for name is written.
func (l Layout) AudioPath(name string) string {
	return filepath.Join(l.Dir, name+audioExt)
}

// FallbackPath is the fixed offline synthesis output.
func (l Layout) FallbackPath() string {
	return filepath.Join(l.Dir, fallbackName+audioExt)
}

// WriteOriginal stores raw provider output for name.
func (l Layout) WriteOriginal(name string, data []byte) (string, error) {
	path := l.OriginalPath(name)
	tempPath := path + ".tmp"
	if err := os.WriteFile(tempPath, data, 0o644); err != nil {
		return "", fmt.Errorf("write original artifact: %w", err)
	}
	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("write original artifact: %w", err)
	}
	return path, nil
}

// ReadAudio returns the canonical audio for name. A missing, empty or
// non-RIFF file is reported as tts.ErrStaleArtifact.
func (l Layout) ReadAudio(name string) ([]byte, error) {
	data, err := os.ReadFile(l.AudioPath(name))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", tts.ErrStaleArtifact, err)
	}
	if !LooksLikeWAV(data) {
		return nil, fmt.Errorf("%w: %s is not a wav file", tts.ErrStaleArtifact, l.AudioPath(name))
	}
	return data, nil
}

// LooksLikeWAV reports whether data starts with a RIFF/WAVE header.
func LooksLikeWAV(data []byte) bool {
	return len(data) > 12 &&
		bytes.Equal(data[0:4], []byte("RIFF")) &&
		bytes.Equal(data[8:12], []byte("WAVE"))
}
