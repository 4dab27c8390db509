package tts

import "fmt"

const (
	whisperedTemplate   = `<amazon:effect name="whispered">%s</amazon:effect>`
	autoBreathsTemplate = `<amazon:auto-breaths frequency="medium" volume="medium" duration="x-short">%s</amazon:auto-breaths>`
	speakTemplate       = `<speak>%s</speak>`
)

// Enhance wraps text in SSML for the requested effects.
//
// Effects are applied in a fixed order no matter how they were supplied:
// whispered first, then auto-breaths around it, then the outer <speak>
// container. The text itself is inserted verbatim.
func Enhance(text string, effects EffectSet) string {
	if effects.Has(EffectWhispered) {
		text = fmt.Sprintf(whisperedTemplate, text)
	}
	if effects.Has(EffectAutoBreaths) {
		text = fmt.Sprintf(autoBreathsTemplate, text)
	}
	return fmt.Sprintf(speakTemplate, text)
}
