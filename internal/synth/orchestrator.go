// Package synth resolves a speech request to audio. It serves cached audio
// when it can, synthesizes and caches cloud audio when it must, and falls
// back to offline synthesis whenever the cloud path fails.
package synth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/dustin/go-humanize"
	"golang.org/x/sync/singleflight"

	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/metrics"
	"github.com/voxcache/voxcache/internal/tts"
)

// Default stage timeouts.
const (
	DefaultSynthesisTimeout = 15 * time.Second
	DefaultConvertTimeout   = 10 * time.Second
)

// Source names where the audio of a Result came from.
type Source string

const (
	SourceCache    Source = metrics.SourceCache
	SourceCloud    Source = metrics.SourceCloud
	SourceFallback Source = metrics.SourceFallback
)

// Request is a single speech request.
type Request struct {
	Text    string
	Effects tts.EffectSet
}

// Result is the resolved audio. Record is nil for fallback audio.
type Result struct {
	Audio  []byte
	Source Source
	Record *cache.VoiceRecord
}

// Orchestrator runs the lookup, synthesize, convert, record pipeline.
type Orchestrator struct {
	provider  tts.VoiceProvider
	offline   tts.Synthesizer
	converter tts.Converter
	store     *cache.Store
	layout    cache.Layout

	metrics          *metrics.Metrics
	logger           *log.Logger
	synthesisTimeout time.Duration
	convertTimeout   time.Duration
	now              func() time.Time

	flights singleflight.Group
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithMetrics records pipeline metrics on m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(o *Orchestrator) {
		o.metrics = m
	}
}

// WithLogger sets the logger.
func WithLogger(l *log.Logger) Option {
	return func(o *Orchestrator) {
		if l != nil {
			o.logger = l
		}
	}
}

// WithTimeouts bounds the cloud synthesis and conversion stages. Zero keeps
// the default.
func WithTimeouts(synthesis, convert time.Duration) Option {
	return func(o *Orchestrator) {
		if synthesis > 0 {
			o.synthesisTimeout = synthesis
		}
		if convert > 0 {
			o.convertTimeout = convert
		}
	}
}

// WithClock replaces time.Now for record names.
func WithClock(now func() time.Time) Option {
	return func(o *Orchestrator) {
		if now != nil {
			o.now = now
		}
	}
}

// New creates an orchestrator. All collaborators are required.
func New(provider tts.VoiceProvider, offline tts.Synthesizer, converter tts.Converter,
	store *cache.Store, layout cache.Layout, opts ...Option,
) (*Orchestrator, error) {
	switch {
	case provider == nil:
		return nil, errors.New("synth: voice provider is required")
	case offline == nil:
		return nil, errors.New("synth: offline synthesizer is required")
	case converter == nil:
		return nil, errors.New("synth: converter is required")
	case store == nil:
		return nil, errors.New("synth: cache store is required")
	case layout.Dir == "":
		return nil, errors.New("synth: data directory is required")
	}

	o := &Orchestrator{
		provider:         provider,
		offline:          offline,
		converter:        converter,
		store:            store,
		layout:           layout,
		logger:           log.Default().WithPrefix("synth"),
		synthesisTimeout: DefaultSynthesisTimeout,
		convertTimeout:   DefaultConvertTimeout,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o, nil
}

// Resolve returns audio for req. The only error a caller sees for a valid
// request is one wrapping tts.ErrFallbackFailed, or ctx's error when the
// caller gave up waiting.
func (o *Orchestrator) Resolve(ctx context.Context, req Request) (*Result, error) {
	if err := tts.ValidateText(req.Text); err != nil {
		return nil, err
	}

	start := time.Now()
	o.logger.Info("New request", "text", req.Text, "effects", req.Effects.String())

	res, err := o.resolve(ctx, req)
	o.metrics.ObserveStage("total", time.Since(start))
	if err != nil {
		o.metrics.Request(metrics.SourceError)
		o.logger.Error("Request failed", "err", err, "took", time.Since(start))
		return nil, err
	}

	o.metrics.Request(string(res.Source))
	o.logger.Info("Request done",
		"source", res.Source,
		"size", humanize.Bytes(uint64(len(res.Audio))),
		"took", time.Since(start))
	return res, nil
}

func (o *Orchestrator) resolve(ctx context.Context, req Request) (*Result, error) {
	voice, ok := o.provider.CurrentVoice()
	if !ok {
		return o.fallback(ctx, req, "provider_unavailable", tts.ErrProviderUnavailable)
	}

	res, err := o.resolveCloud(ctx, req, voice)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, ctxErr
		}
		return o.fallback(ctx, req, fallbackReason(err), err)
	}
	return res, nil
}

// resolveCloud serves from the cache or synthesizes once per key. Callers
// that join another caller's flight count as a repeat of that request.
func (o *Orchestrator) resolveCloud(ctx context.Context, req Request, voice string) (*Result, error) {
	if res, ok := o.lookup(req, voice); ok {
		return res, nil
	}

	key := voice + "|" + req.Text + "|" + req.Effects.String()
	executed := false
	ch := o.flights.DoChan(key, func() (any, error) {
		executed = true
		// A flight that finished just before this one started may have
		// recorded the key already.
		if res, ok := o.lookup(req, voice); ok {
			return res, nil
		}
		return o.synthesize(context.WithoutCancel(ctx), req, voice)
	})

	var r singleflight.Result
	select {
	case r = <-ch:
	case <-ctx.Done():
		return nil, ctx.Err()
	}
	if r.Err != nil {
		return nil, r.Err
	}

	res := r.Val.(*Result)
	if executed {
		return res, nil
	}

	rec, err := o.store.IncrementUsage(res.Record.Name)
	if err != nil {
		return nil, err
	}
	o.metrics.CacheLookup("hit")
	return &Result{Audio: res.Audio, Source: SourceCache, Record: &rec}, nil
}

// lookup finds a cached record with readable audio. A stale artifact is
// logged and reported as a miss.
func (o *Orchestrator) lookup(req Request, voice string) (*Result, bool) {
	var audio []byte
	rec, ok, err := o.store.Lookup(req.Text, req.Effects, voice, func(r cache.VoiceRecord) error {
		data, err := o.layout.ReadAudio(r.Name)
		if err != nil {
			return err
		}
		audio = data
		return nil
	})
	if !ok {
		if err != nil {
			o.logger.Warn("Cached audio is stale, synthesizing again", "err", err)
			o.metrics.CacheLookup("stale")
		} else {
			o.metrics.CacheLookup("miss")
		}
		return nil, false
	}

	o.metrics.CacheLookup("hit")
	o.logger.Debug("Cache hit", "name", rec.Name, "usage", rec.UsageCount)
	return &Result{Audio: audio, Source: SourceCache, Record: &rec}, true
}

// synthesize calls the provider, converts the artifact and records it. It
// runs detached from the caller so a stage ends only on its own timeout.
func (o *Orchestrator) synthesize(ctx context.Context, req Request, voice string) (*Result, error) {
	enhanced := tts.Enhance(req.Text, req.Effects)

	start := time.Now()
	sctx, cancel := context.WithTimeout(ctx, o.synthesisTimeout)
	raw, err := o.provider.Synthesize(sctx, voice, enhanced)
	cancel()
	o.metrics.ObserveStage("cloud", time.Since(start))
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, tts.ErrTimeout) {
			err = tts.NewError(tts.ErrorCodeTimeout, "cloud synthesis", err)
		}
		return nil, err
	}
	if len(raw) == 0 {
		return nil, tts.NewError(tts.ErrorCodeSynthesisFailed, "provider returned no audio", nil)
	}

	rec := cache.NewRecord(o.provider.Name(), voice, req.Text, enhanced, req.Effects, o.now())
	// Artifacts are keyed by name; hold the name until the record lands.
	release, err := o.store.Reserve(rec.Name)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodePersistenceFailed, "record "+rec.Name, err)
	}
	defer release()

	original, err := o.layout.WriteOriginal(rec.Name, raw)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodePersistenceFailed, "write original artifact", err)
	}

	start = time.Now()
	cctx, cancel := context.WithTimeout(ctx, o.convertTimeout)
	err = o.converter.Convert(cctx, original, o.layout.AudioPath(rec.Name))
	cancel()
	o.metrics.ObserveStage("convert", time.Since(start))
	if err != nil {
		if !errors.Is(err, tts.ErrConversion) {
			err = tts.NewError(tts.ErrorCodeConversionFailed, "convert "+rec.Name, err)
		}
		return nil, err
	}

	audio, err := o.layout.ReadAudio(rec.Name)
	if err != nil {
		return nil, tts.NewError(tts.ErrorCodeConversionFailed, "converted audio unreadable", err)
	}

	if err := o.store.Append(rec); err != nil {
		return nil, tts.NewError(tts.ErrorCodePersistenceFailed, "record "+rec.Name, err)
	}

	o.logger.Info("Cached new voice",
		"name", rec.Name,
		"original", humanize.Bytes(uint64(len(raw))),
		"wav", humanize.Bytes(uint64(len(audio))))
	return &Result{Audio: audio, Source: SourceCloud, Record: &rec}, nil
}

// fallback speaks the original text offline. The cache is not consulted
// or updated.
func (o *Orchestrator) fallback(ctx context.Context, req Request, reason string, cause error) (*Result, error) {
	o.metrics.Fallback(reason)
	o.logger.Warn("Falling back to offline synthesis", "reason", reason, "err", cause)

	start := time.Now()
	audio, err := o.offline.Synthesize(ctx, req.Text)
	o.metrics.ObserveStage("offline", time.Since(start))
	if err != nil {
		if errors.Is(err, tts.ErrFallbackFailed) {
			return nil, err
		}
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "offline synthesis", err)
	}
	if len(audio) == 0 {
		return nil, tts.NewError(tts.ErrorCodeFallbackFailed, "offline synthesis produced no audio", nil)
	}
	return &Result{Audio: audio, Source: SourceFallback}, nil
}

func fallbackReason(err error) string {
	switch {
	case errors.Is(err, tts.ErrTimeout):
		return "timeout"
	case errors.Is(err, tts.ErrProviderUnavailable):
		return "provider_unavailable"
	case errors.Is(err, tts.ErrConversion):
		return "conversion"
	case errors.Is(err, cache.ErrDuplicateName):
		return "duplicate_name"
	case errors.Is(err, tts.ErrPersistence):
		return "persistence"
	default:
		return "synthesis"
	}
}

// String renders a result for log lines.
func (r *Result) String() string {
	if r.Record == nil {
		return fmt.Sprintf("%s (%s)", r.Source, humanize.Bytes(uint64(len(r.Audio))))
	}
	return fmt.Sprintf("%s %s (%s)", r.Source, r.Record.Name, humanize.Bytes(uint64(len(r.Audio))))
}
