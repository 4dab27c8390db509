package engines

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/polly"
	"github.com/aws/aws-sdk-go-v2/service/polly/types"
	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"

	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/tts"
)

// maxAudioSize bounds a single Polly response.
const maxAudioSize = 20 * 1024 * 1024

// PollyAPI is the subset of the Polly client the engine uses.
type PollyAPI interface {
	SynthesizeSpeech(ctx context.Context, in *polly.SynthesizeSpeechInput, optFns ...func(*polly.Options)) (*polly.SynthesizeSpeechOutput, error)
	DescribeVoices(ctx context.Context, in *polly.DescribeVoicesInput, optFns ...func(*polly.Options)) (*polly.DescribeVoicesOutput, error)
}

// PollyConfig holds configuration for the Polly engine.
type PollyConfig struct {
	// AWS region (optional, defaults to us-east-1)
	Region string

	// Voice id, e.g. "Joanna"
	Voice string

	// "standard" or "neural"
	Engine string

	// "mp3" or "pcm"
	OutputFormat string

	// Sample rate in Hz as accepted by Polly (optional)
	SampleRate int
}

// PollyEngine implements tts.VoiceProvider on Amazon Polly.
type PollyEngine struct {
	client PollyAPI
	config PollyConfig
	logger *log.Logger

	mu        sync.RWMutex
	voice     string
	available bool
}

// NewPollyEngine builds an engine from the default AWS credential chain.
func NewPollyEngine(ctx context.Context, config PollyConfig) (*PollyEngine, error) {
	if config.Region == "" {
		config.Region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(config.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	return NewPollyEngineWithClient(polly.NewFromConfig(awsCfg), config), nil
}

// NewPollyEngineWithClient builds an engine around an existing client.
func NewPollyEngineWithClient(client PollyAPI, config PollyConfig) *PollyEngine {
	if config.Voice == "" {
		config.Voice = "Joanna"
	}
	if config.Engine == "" {
		config.Engine = string(types.EngineStandard)
	}
	if config.OutputFormat == "" {
		config.OutputFormat = string(types.OutputFormatMp3)
	}
	return &PollyEngine{
		client: client,
		config: config,
		logger: log.Default().WithPrefix("polly"),
	}
}

// Name returns the provider tag stored in cache records.
func (e *PollyEngine) Name() string {
	return cache.ProviderAmazonPolly
}

// OutputFormat returns the configured provider-native encoding.
func (e *PollyEngine) OutputFormat() string {
	return e.config.OutputFormat
}

// Init checks that the configured voice exists for the configured engine.
// Until Init succeeds CurrentVoice reports the provider as unavailable.
func (e *PollyEngine) Init(ctx context.Context) error {
	found, err := e.findVoice(ctx, e.config.Voice)
	e.mu.Lock()
	defer e.mu.Unlock()

	if err != nil {
		e.available = false
		return fmt.Errorf("%w: %v", tts.ErrProviderUnavailable, err)
	}
	if !found {
		e.available = false
		return fmt.Errorf("%w: voice %q not offered for engine %q", tts.ErrProviderUnavailable, e.config.Voice, e.config.Engine)
	}

	e.voice = e.config.Voice
	e.available = true
	e.logger.Info("Polly voice ready", "voice", e.voice, "engine", e.config.Engine, "region", e.config.Region)
	return nil
}

// StartRefresh retries Init every interval while the provider is
// unavailable. It returns when ctx is done.
func (e *PollyEngine) StartRefresh(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		return
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if _, ok := e.CurrentVoice(); ok {
					continue
				}
				if err := e.Init(ctx); err != nil {
					e.logger.Debug("Polly still unavailable", "err", err)
				}
			case <-ctx.Done():
				return
			}
		}
	}()
}

// CurrentVoice returns the active voice once Init has confirmed it.
func (e *PollyEngine) CurrentVoice() (string, bool) {
	e.mu.RLock()
	defer e.mu.RUnlock()
	if !e.available {
		return "", false
	}
	return e.voice, true
}

// SetVoice switches the active voice without a lookup. An empty voice marks
// the provider unavailable.
func (e *PollyEngine) SetVoice(voice string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.voice = voice
	e.available = voice != ""
}

// Synthesize sends SSML to Polly and returns the raw audio stream contents.
// The caller's voice is used as given so the audio matches the voice it
// records, even if a refresh switches voices meanwhile.
func (e *PollyEngine) Synthesize(ctx context.Context, voice, text string) ([]byte, error) {
	if voice == "" {
		current, ok := e.CurrentVoice()
		if !ok {
			return nil, tts.ErrProviderUnavailable
		}
		voice = current
	}
	if text == "" {
		return nil, tts.ErrEmptyText
	}

	in := &polly.SynthesizeSpeechInput{
		Text:         aws.String(text),
		TextType:     types.TextTypeSsml,
		VoiceId:      types.VoiceId(voice),
		Engine:       types.Engine(e.config.Engine),
		OutputFormat: types.OutputFormat(e.config.OutputFormat),
	}
	if e.config.SampleRate > 0 {
		in.SampleRate = aws.String(strconv.Itoa(e.config.SampleRate))
	}

	start := time.Now()
	out, err := e.client.SynthesizeSpeech(ctx, in)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, tts.NewError(tts.ErrorCodeTimeout, "polly synthesize", err)
		}
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed, "polly synthesize", err)
	}
	if out.AudioStream == nil {
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed, "polly returned no audio stream", nil)
	}
	defer out.AudioStream.Close()

	audio, err := io.ReadAll(io.LimitReader(out.AudioStream, maxAudioSize+1))
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed, "read polly audio stream", err)
	}
	if len(audio) == 0 {
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed, "polly returned empty audio", nil)
	}
	if len(audio) > maxAudioSize {
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed,
			fmt.Sprintf("polly audio exceeds %s", humanize.Bytes(maxAudioSize)), nil)
	}

	e.logger.Debug("Polly synthesis done",
		"voice", voice,
		"size", humanize.Bytes(uint64(len(audio))),
		"took", time.Since(start))
	return audio, nil
}

func (e *PollyEngine) findVoice(ctx context.Context, voice string) (bool, error) {
	in := &polly.DescribeVoicesInput{
		Engine: types.Engine(e.config.Engine),
	}
	for {
		out, err := e.client.DescribeVoices(ctx, in)
		if err != nil {
			return false, err
		}
		for _, v := range out.Voices {
			if string(v.Id) == voice {
				return true, nil
			}
		}
		if out.NextToken == nil || *out.NextToken == "" {
			return false, nil
		}
		in.NextToken = out.NextToken
	}
}

// Ensure PollyEngine implements the VoiceProvider interface
var _ tts.VoiceProvider = (*PollyEngine)(nil)
