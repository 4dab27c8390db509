package engines

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/voxcache/voxcache/internal/tts"
)

// PicoConfig holds configuration for the pico2wave engine.
type PicoConfig struct {
	// Binary to run (defaults to "pico2wave")
	Binary string

	// Language passed with -l, e.g. "en-US"
	Language string

	// OutputPath is the fixed WAV file pico2wave writes to
	OutputPath string

	// Timeout bounds a single run
	Timeout time.Duration

	// GracePeriod between interrupt and kill once the run is cancelled
	GracePeriod time.Duration
}

// PicoEngine implements tts.Synthesizer by shelling out to pico2wave.
// Runs are serialized because every run writes the same output file.
type PicoEngine struct {
	config PicoConfig
	logger *log.Logger
	mu     sync.Mutex
}

// NewPicoEngine creates a new pico2wave engine.
func NewPicoEngine(config PicoConfig) *PicoEngine {
	if config.Binary == "" {
		config.Binary = "pico2wave"
	}
	if config.Language == "" {
		config.Language = "en-US"
	}
	if config.Timeout <= 0 {
		config.Timeout = 10 * time.Second
	}
	if config.GracePeriod <= 0 {
		config.GracePeriod = 500 * time.Millisecond
	}
	return &PicoEngine{
		config: config,
		logger: log.Default().WithPrefix("pico"),
	}
}

// Validate reports whether the binary can be found.
func (e *PicoEngine) Validate() error {
	if _, err := exec.LookPath(e.config.Binary); err != nil {
		return fmt.Errorf("%s not found in PATH: %w", e.config.Binary, err)
	}
	if e.config.OutputPath == "" {
		return errors.New("pico output path is not set")
	}
	return nil
}

// Synthesize speaks plain text into the fixed output file and returns its
// contents. It never touches the voice cache.
func (e *PicoEngine) Synthesize(ctx context.Context, text string) ([]byte, error) {
	if strings.TrimSpace(text) == "" {
		return nil, tts.ErrEmptyText
	}
	if err := e.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", tts.ErrFallbackFailed, err)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := os.MkdirAll(filepath.Dir(e.config.OutputPath), 0o755); err != nil {
		return nil, fmt.Errorf("%w: %v", tts.ErrFallbackFailed, err)
	}
	// A leftover file from an earlier run must not be mistaken for output.
	if err := os.Remove(e.config.OutputPath); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("%w: %v", tts.ErrFallbackFailed, err)
	}

	ctx, cancel := context.WithTimeout(ctx, e.config.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, e.config.Binary,
		"-l", e.config.Language,
		"-w", e.config.OutputPath,
		text)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// SIGINT first, SIGKILL once the grace period runs out.
	cmd.Cancel = func() error { return interrupt(cmd.Process) }
	cmd.WaitDelay = e.config.GracePeriod

	start := time.Now()
	err := cmd.Run()
	took := time.Since(start)

	if ctx.Err() == context.DeadlineExceeded {
		e.logger.Warn("pico2wave timed out", "timeout", e.config.Timeout)
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed,
			fmt.Sprintf("pico2wave timed out after %v", e.config.Timeout), tts.ErrTimeout)
	}
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "pico2wave failed: "+msg, err)
		}
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "pico2wave failed", err)
	}

	audio, err := os.ReadFile(e.config.OutputPath)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "read pico2wave output", err)
	}
	if len(audio) == 0 {
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "pico2wave produced no audio", nil)
	}

	e.logger.Debug("pico2wave done", "size", humanize.Bytes(uint64(len(audio))), "took", took)
	return audio, nil
}

func interrupt(p *os.Process) error {
	if p == nil {
		return nil
	}
	if runtime.GOOS == "windows" {
		return p.Kill()
	}
	return p.Signal(syscall.SIGINT)
}

var _ tts.Synthesizer = (*PicoEngine)(nil)
