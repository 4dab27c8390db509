package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/voxcache/voxcache/internal/tts"
)

// Common errors for cache operations
var (
	// ErrDuplicateName is returned when a record name is already in the store
	ErrDuplicateName = errors.New("record name already exists")

	// ErrCacheCorrupted is returned when a snapshot cannot be decoded
	ErrCacheCorrupted = errors.New("cache data corrupted")
)

// SnapshotVersion is the current snapshot schema version.
const SnapshotVersion = 1

// ProviderAmazonPolly is the provider tag for Polly records.
const ProviderAmazonPolly = "amazonPolly"

// VoiceRecord is one cached synthesis outcome.
type VoiceRecord struct {
	Name         string    `json:"name"`
	Provider     string    `json:"provider"`
	VoiceID      string    `json:"voiceId"`
	Text         string    `json:"text"`
	EnhancedText string    `json:"enhancedText"`
	Effects      []string  `json:"effects"`
	UsageCount   int64     `json:"usageCount"`
	CreatedAt    time.Time `json:"createdAt"`
}

// NewRecord builds a record with a generated name. Effects are stored sorted.
func NewRecord(provider, voiceID, text, enhanced string, effects tts.EffectSet, now time.Time) VoiceRecord {
	return VoiceRecord{
		Name:         RecordName(provider, voiceID, now),
		Provider:     provider,
		VoiceID:      voiceID,
		Text:         text,
		EnhancedText: enhanced,
		Effects:      effects.Strings(),
		CreatedAt:    now,
	}
}

// RecordName returns {provider}_{voiceId}_{unixMillis}. Two completions for
// the same voice in the same millisecond collide; Store.Append rejects the
// second one.
func RecordName(provider, voiceID string, t time.Time) string {
	return fmt.Sprintf("%s_%s_%d", provider, voiceID, t.UnixMilli())
}

// EffectSet returns the record's effects as a set.
func (r VoiceRecord) EffectSet() tts.EffectSet {
	return tts.EffectSetFromStrings(r.Effects)
}

// Matches reports whether r satisfies a request. Voice and text must be equal
// and the effects must be set-equal.
func (r VoiceRecord) Matches(text string, effects tts.EffectSet, voiceID string) bool {
	return r.VoiceID == voiceID &&
		r.Text == text &&
		r.EffectSet().Equal(effects)
}

// Snapshot is the full persisted form of a Store.
type Snapshot struct {
	Version int           `json:"version"`
	Items   []VoiceRecord `json:"items"`
}

// Persister loads and saves whole snapshots. Save must be atomic: a reader
// sees either the previous snapshot or the new one, never a partial write.
type Persister interface {
	// Load returns the stored snapshot, or an empty one if nothing is stored.
	Load(ctx context.Context) (*Snapshot, error)

	// Save replaces the stored snapshot.
	Save(ctx context.Context, snap *Snapshot) error
}
