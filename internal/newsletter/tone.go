package newsletter

import "strings"

// Tone sets the voice of a generated newsletter.
type Tone string

const (
	ToneProfessional Tone = "professional"
	ToneFriendly     Tone = "friendly"
	ToneExcited      Tone = "excited"
	ToneGrateful     Tone = "grateful"
)

type toneStyle struct {
	description string
	greeting    string
	closing     string
}

var styles = map[Tone]toneStyle{
	ToneProfessional: {"professional and polished", "Dear Valued Customer,", "Best regards,"},
	ToneFriendly:     {"friendly, warm, and casual", "Hey there! 👋", "Cheers,"},
	ToneExcited:      {"excited, energetic, and enthusiastic", "Great news! 🎉", "Can't wait to see you!"},
	ToneGrateful:     {"grateful, appreciative, and heartfelt", "We are so thankful for you! 🙏", "With sincere gratitude,"},
}

// ParseTone maps unknown values to ToneProfessional.
func ParseTone(s string) Tone {
	t := Tone(strings.ToLower(strings.TrimSpace(s)))
	if _, ok := styles[t]; ok {
		return t
	}
	return ToneProfessional
}

func (t Tone) style() toneStyle {
	if s, ok := styles[t]; ok {
		return s
	}
	return styles[ToneProfessional]
}
