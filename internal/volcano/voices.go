package volcano

import "strings"

const (
	VoiceCancan = "BV700_streaming"
	VoiceStefan = "BV702_streaming"
)

// LangCode maps a language name to the provider language code.
// Unsupported languages are sent as English.
func LangCode(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "chinese", "zh":
		return "zh"
	case "japanese", "ja":
		return "ja"
	default:
		return "en"
	}
}

// DefaultVoice picks the voice used when no style pins one.
func DefaultVoice(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "english", "en":
		return VoiceStefan
	default:
		return VoiceCancan
	}
}
