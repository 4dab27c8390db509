package cache

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/voxcache/voxcache/internal/tts"
)

const defaultSaveTimeout = 5 * time.Second

// Store is the ordered, append-only collection of voice records. Every
// read and mutation, including the persistence write that follows a
// mutation, runs under one mutex.
type Store struct {
	mu        sync.Mutex
	items     []VoiceRecord
	reserved  map[string]struct{}
	persister Persister

	logger         *log.Logger
	saveTimeout    time.Duration
	warnSometimes  rate.Sometimes
	onPersistError func(error)
	lastPersistErr error
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for persistence warnings.
func WithLogger(l *log.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithSaveTimeout bounds each persistence write.
func WithSaveTimeout(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.saveTimeout = d
		}
	}
}

// WithPersistErrorHook is called after every failed persistence write.
func WithPersistErrorHook(fn func(error)) Option {
	return func(s *Store) {
		s.onPersistError = fn
	}
}

// Open loads the snapshot from p and returns a ready store.
func Open(ctx context.Context, p Persister, opts ...Option) (*Store, error) {
	if p == nil {
		return nil, errors.New("cache: persister is required")
	}

	s := &Store{
		persister:     p,
		reserved:      make(map[string]struct{}),
		logger:        log.Default().WithPrefix("cache"),
		saveTimeout:   defaultSaveTimeout,
		warnSometimes: rate.Sometimes{First: 3, Interval: time.Minute},
	}
	for _, opt := range opts {
		opt(s)
	}

	snap, err := p.Load(ctx)
	if err != nil {
		return nil, fmt.Errorf("load cache snapshot: %w", err)
	}
	if snap != nil {
		s.items = snap.Items
	}
	s.logger.Debug("Cache loaded", "records", len(s.items))

	return s, nil
}

// Find returns the first record matching the request and counts a hit.
func (s *Store) Find(text string, effects tts.EffectSet, voiceID string) (VoiceRecord, bool) {
	rec, ok, _ := s.Lookup(text, effects, voiceID, nil)
	return rec, ok
}

// Lookup scans every record in order. Each matching candidate is passed to
// load (if non-nil); the first one load accepts is the hit, its usage count
// is incremented and the store is persisted. Candidates that load rejects
// are skipped as stale. When no candidate is accepted, the returned error
// wraps tts.ErrStaleArtifact if at least one stale match was seen.
func (s *Store) Lookup(text string, effects tts.EffectSet, voiceID string, load func(VoiceRecord) error) (VoiceRecord, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var staleErr error
	for i := range s.items {
		if !s.items[i].Matches(text, effects, voiceID) {
			continue
		}
		if load != nil {
			if err := load(s.items[i]); err != nil {
				staleErr = tts.NewError(tts.ErrorCodeStaleArtifact, s.items[i].Name, err)
				continue
			}
		}
		s.items[i].UsageCount++
		s.persistLocked()
		return s.items[i], true, nil
	}

	return VoiceRecord{}, false, staleErr
}

// Append adds a new record and persists the store.
func (s *Store) Append(rec VoiceRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.Name == "" {
		return errors.New("cache: record name is required")
	}
	if s.indexLocked(rec.Name) >= 0 {
		return fmt.Errorf("%w: %s", ErrDuplicateName, rec.Name)
	}
	rec.Effects = tts.EffectSetFromStrings(rec.Effects).Strings()

	delete(s.reserved, rec.Name)
	s.items = append(s.items, rec)
	s.persistLocked()
	return nil
}

// IncrementUsage counts one more hit for the named record.
func (s *Store) IncrementUsage(name string) (VoiceRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i := s.indexLocked(name)
	if i < 0 {
		return VoiceRecord{}, fmt.Errorf("cache: no record named %q", name)
	}
	s.items[i].UsageCount++
	s.persistLocked()
	return s.items[i], nil
}

// Reserve claims name before its artifacts are written. It fails with
// ErrDuplicateName while a record or another claim holds the name. The claim
// ends when the record is appended or release is called.
func (s *Store) Reserve(name string) (release func(), err error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, held := s.reserved[name]; held || s.indexLocked(name) >= 0 {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateName, name)
	}
	s.reserved[name] = struct{}{}
	return func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.reserved, name)
	}, nil
}

// Records returns a copy of every record in insertion order.
func (s *Store) Records() []VoiceRecord {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]VoiceRecord, len(s.items))
	for i, rec := range s.items {
		rec.Effects = slices.Clone(rec.Effects)
		out[i] = rec
	}
	return out
}

// Len returns the number of records.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.items)
}

// Flush writes the current state and reports the result.
func (s *Store) Flush(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saveLocked(ctx)
}

// LastPersistError returns the most recent persistence failure, or nil if
// the last write succeeded.
func (s *Store) LastPersistError() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastPersistErr
}

func (s *Store) indexLocked(name string) int {
	for i := range s.items {
		if s.items[i].Name == name {
			return i
		}
	}
	return -1
}

// persistLocked saves the store. Failures leave the in-memory state intact;
// they are logged and reported through the hook.
func (s *Store) persistLocked() {
	ctx, cancel := context.WithTimeout(context.Background(), s.saveTimeout)
	defer cancel()

	if err := s.saveLocked(ctx); err != nil {
		if s.onPersistError != nil {
			s.onPersistError(err)
		}
		s.warnSometimes.Do(func() {
			s.logger.Warn("Could not persist cache; changes may be lost on restart", "err", err)
		})
	}
}

func (s *Store) saveLocked(ctx context.Context) error {
	snap := &Snapshot{
		Version: SnapshotVersion,
		Items:   s.items,
	}
	if err := s.persister.Save(ctx, snap); err != nil {
		s.lastPersistErr = tts.NewError(tts.ErrorCodePersistenceFailed, "save snapshot", err)
		return s.lastPersistErr
	}
	s.lastPersistErr = nil
	return nil
}
