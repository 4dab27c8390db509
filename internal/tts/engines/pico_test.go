package engines

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/voxcache/voxcache/internal/tts"
)

// fakePico writes a shell script standing in for pico2wave.
func fakePico(t *testing.T, body string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("shell scripts not supported on windows")
	}
	path := filepath.Join(t.TempDir(), "pico2wave")
	script := "#!/bin/sh\nout=\"\"\nwhile [ $# -gt 0 ]; do\n  if [ \"$1\" = \"-w\" ]; then out=\"$2\"; fi\n  shift\ndone\n" + body + "\n"
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestPicoEngine_Synthesize(t *testing.T) {
	bin := fakePico(t, `printf 'RIFF0000WAVEdata' > "$out"`)
	out := filepath.Join(t.TempDir(), "native_synthesis.wav")
	e := NewPicoEngine(PicoConfig{Binary: bin, OutputPath: out})

	for i := 0; i < 2; i++ {
		audio, err := e.Synthesize(context.Background(), "hello there")
		if err != nil {
			t.Fatalf("Synthesize() = %v", err)
		}
		if string(audio) != "RIFF0000WAVEdata" {
			t.Errorf("Synthesize() = %q", audio)
		}
	}
}

func TestPicoEngine_Failures(t *testing.T) {
	tests := []struct {
		name string
		body string
		bin  string
	}{
		{name: "missing binary", bin: "/nonexistent/pico2wave"},
		{name: "non-zero exit", body: "echo broken >&2; exit 3"},
		{name: "no output", body: "exit 0"},
		{name: "empty output", body: `: > "$out"`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			bin := tt.bin
			if bin == "" {
				bin = fakePico(t, tt.body)
			}
			e := NewPicoEngine(PicoConfig{Binary: bin, OutputPath: filepath.Join(t.TempDir(), "out.wav")})
			_, err := e.Synthesize(context.Background(), "hello")
			if !errors.Is(err, tts.ErrFallbackFailed) {
				t.Errorf("Synthesize() = %v, want ErrFallbackFailed", err)
			}
			if !tts.IsFatal(err) {
				t.Error("offline failure should be fatal")
			}
		})
	}
}

func TestPicoEngine_StaleOutputIgnored(t *testing.T) {
	bin := fakePico(t, "exit 0")
	out := filepath.Join(t.TempDir(), "native_synthesis.wav")
	if err := os.WriteFile(out, []byte("old run"), 0o644); err != nil {
		t.Fatal(err)
	}
	e := NewPicoEngine(PicoConfig{Binary: bin, OutputPath: out})
	if _, err := e.Synthesize(context.Background(), "hello"); err == nil {
		t.Fatal("expected failure when the binary writes nothing")
	}
}

func TestPicoEngine_Timeout(t *testing.T) {
	bin := fakePico(t, "sleep 5")
	e := NewPicoEngine(PicoConfig{
		Binary:      bin,
		OutputPath:  filepath.Join(t.TempDir(), "out.wav"),
		Timeout:     100 * time.Millisecond,
		GracePeriod: 100 * time.Millisecond,
	})

	start := time.Now()
	_, err := e.Synthesize(context.Background(), "hello")
	if !errors.Is(err, tts.ErrFallbackFailed) || !errors.Is(err, tts.ErrTimeout) {
		t.Errorf("Synthesize() = %v, want fallback timeout", err)
	}
	if took := time.Since(start); took > 3*time.Second {
		t.Errorf("timeout took %v", took)
	}
}

func TestPicoEngine_EmptyText(t *testing.T) {
	e := NewPicoEngine(PicoConfig{OutputPath: "unused"})
	if _, err := e.Synthesize(context.Background(), "  "); !errors.Is(err, tts.ErrEmptyText) {
		t.Errorf("Synthesize() = %v, want ErrEmptyText", err)
	}
}
