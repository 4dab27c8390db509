package tts

import (
	"slices"
	"strings"
)

// Effect is a named voice modifier applied through markup.
type Effect string

const (
	// EffectWhispered renders the text as a whisper.
	EffectWhispered Effect = "whispered"

	// EffectAutoBreaths inserts natural breathing sounds.
	EffectAutoBreaths Effect = "auto-breaths"
)

// KnownEffects lists every effect token a request may carry.
var KnownEffects = []Effect{EffectWhispered, EffectAutoBreaths}

// Valid reports whether e is one of KnownEffects.
func (e Effect) Valid() bool {
	return slices.Contains(KnownEffects, e)
}

// EffectSet is an unordered collection of effects. The zero value is the
// empty set. Order of insertion never matters for equality or markup.
type EffectSet map[Effect]struct{}

// NewEffectSet builds a set from the given effects, collapsing duplicates.
func NewEffectSet(effects ...Effect) EffectSet {
	s := make(EffectSet, len(effects))
	for _, e := range effects {
		s[e] = struct{}{}
	}
	return s
}

// Has reports whether e is in the set.
func (s EffectSet) Has(e Effect) bool {
	_, ok := s[e]
	return ok
}

// Len returns the number of distinct effects.
func (s EffectSet) Len() int {
	return len(s)
}

// Equal reports set equality. A nil set equals an empty set.
func (s EffectSet) Equal(other EffectSet) bool {
	if len(s) != len(other) {
		return false
	}
	for e := range s {
		if !other.Has(e) {
			return false
		}
	}
	return true
}

// Sorted returns the effects in lexical order.
func (s EffectSet) Sorted() []Effect {
	out := make([]Effect, 0, len(s))
	for e := range s {
		out = append(out, e)
	}
	slices.Sort(out)
	return out
}

// Strings returns the sorted effects as plain strings.
func (s EffectSet) Strings() []string {
	sorted := s.Sorted()
	out := make([]string, len(sorted))
	for i, e := range sorted {
		out[i] = string(e)
	}
	return out
}

// String joins the sorted effects with commas.
func (s EffectSet) String() string {
	return strings.Join(s.Strings(), ",")
}

// EffectSetFromStrings converts stored tokens back into a set. Unknown tokens
// are kept so that records written by other versions still compare exactly.
func EffectSetFromStrings(tokens []string) EffectSet {
	s := make(EffectSet, len(tokens))
	for _, t := range tokens {
		s[Effect(t)] = struct{}{}
	}
	return s
}
