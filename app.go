package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"
	"github.com/redis/go-redis/v9"

	"github.com/voxcache/voxcache/internal/audio"
	"github.com/voxcache/voxcache/internal/cache"
	"github.com/voxcache/voxcache/internal/metrics"
	"github.com/voxcache/voxcache/internal/synth"
	"github.com/voxcache/voxcache/internal/tts/engines"
)

const flushTimeout = 5 * time.Second

// index is an open voice index and whatever backs it.
type index struct {
	store  *cache.Store
	closer func() error
}

// Close flushes the index and releases its backend.
func (ix *index) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), flushTimeout)
	defer cancel()
	return errors.Join(ix.store.Flush(ctx), ix.closer())
}

// openIndex opens the voice index on the configured backend. A nil m
// disables the persistence-failure counter.
func openIndex(ctx context.Context, cfg Config, m *metrics.Metrics) (*index, error) {
	var (
		p      cache.Persister
		closer func() error
	)
	switch cfg.Store.Backend {
	case "redis":
		client := redis.NewClient(&redis.Options{Addr: cfg.Store.Redis.Addr})
		if err := client.Ping(ctx).Err(); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("unable to reach redis at %s: %w", cfg.Store.Redis.Addr, err)
		}
		rp := cache.NewRedisPersister(client, cache.WithKey(cfg.Store.Redis.Key))
		log.Debug("Using redis voice index", "addr", cfg.Store.Redis.Addr, "key", rp.Key())
		p, closer = rp, client.Close
	default:
		fp, err := cache.NewFilePersister(cfg.DataDir, cfg.Store.Compress)
		if err != nil {
			return nil, err
		}
		log.Debug("Using file voice index", "path", fp.Path())
		p, closer = fp, fp.Close
	}

	store, err := cache.Open(ctx, p, cache.WithPersistErrorHook(m.PersistFailure))
	if err != nil {
		_ = closer()
		return nil, err
	}
	return &index{store: store, closer: closer}, nil
}

// pipeline is everything a resolve needs, built from the configuration.
type pipeline struct {
	*index
	orchestrator *synth.Orchestrator
	polly        *engines.PollyEngine
	metrics      *metrics.Metrics
}

func buildPipeline(ctx context.Context, cfg Config) (*pipeline, error) {
	layout := cache.Layout{Dir: cfg.DataDir}
	if err := layout.Ensure(); err != nil {
		return nil, err
	}

	m := metrics.New()
	ix, err := openIndex(ctx, cfg, m)
	if err != nil {
		return nil, err
	}

	polly, err := engines.NewPollyEngine(ctx, engines.PollyConfig{
		Region:       cfg.Polly.Region,
		Voice:        cfg.Polly.Voice,
		Engine:       cfg.Polly.Engine,
		OutputFormat: cfg.Polly.OutputFormat,
		SampleRate:   cfg.Polly.SampleRate,
	})
	if err != nil {
		_ = ix.Close()
		return nil, err
	}
	// An unavailable provider is not fatal; requests fall back until a
	// refresh finds the voice.
	if err := polly.Init(ctx); err != nil {
		log.Warn("Polly unavailable, using offline synthesis", "err", err)
	}

	pico := engines.NewPicoEngine(engines.PicoConfig{
		Binary:     cfg.Offline.Binary,
		Language:   cfg.Offline.Language,
		OutputPath: layout.FallbackPath(),
		Timeout:    cfg.Timeouts.Offline,
	})
	if err := pico.Validate(); err != nil {
		log.Warn("Offline synthesis is not usable", "err", err)
	}

	conv, err := audio.NewConverter(cfg.Polly.OutputFormat, cfg.Polly.SampleRate)
	if err != nil {
		_ = ix.Close()
		return nil, err
	}

	o, err := synth.New(polly, pico, conv, ix.store, layout,
		synth.WithMetrics(m),
		synth.WithTimeouts(cfg.Timeouts.Synthesis, cfg.Timeouts.Convert),
	)
	if err != nil {
		_ = ix.Close()
		return nil, err
	}

	return &pipeline{
		index:        ix,
		orchestrator: o,
		polly:        polly,
		metrics:      m,
	}, nil
}
