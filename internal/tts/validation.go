package tts

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// ParseEffects parses a comma-separated effect list such as
// "whispered,auto-breaths". Tokens are trimmed and lower-cased, empty tokens
// are ignored and duplicates collapse. An unknown token is an error.
func ParseEffects(raw string) (EffectSet, error) {
	set := EffectSet{}
	if strings.TrimSpace(raw) == "" {
		return set, nil
	}

	for _, token := range strings.Split(raw, ",") {
		token = strings.ToLower(strings.TrimSpace(token))
		if token == "" {
			continue
		}
		e := Effect(token)
		if !e.Valid() {
			return nil, fmt.Errorf("%w: %q (supported: %s)", ErrUnknownEffect, token, knownEffectList())
		}
		set[e] = struct{}{}
	}
	return set, nil
}

// ValidateText checks that request text is usable for synthesis.
func ValidateText(text string) error {
	if strings.TrimSpace(text) == "" {
		return ErrEmptyText
	}
	if !utf8.ValidString(text) {
		return NewError(ErrorCodeInvalidInput, "text is not valid UTF-8", nil)
	}
	return nil
}

func knownEffectList() string {
	names := make([]string, len(KnownEffects))
	for i, e := range KnownEffects {
		names[i] = string(e)
	}
	return strings.Join(names, ", ")
}
