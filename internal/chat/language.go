package chat

import "strings"

// Languages the service can answer in.
var Languages = []string{"English", "Chinese", "Japanese", "French"}

// LanguageInstruction is appended to the model-facing message so the persona
// answers in the requested language. Unknown languages get the English suffix.
func LanguageInstruction(language string) string {
	switch strings.ToLower(strings.TrimSpace(language)) {
	case "chinese":
		return " 请用中文回答。"
	case "japanese":
		return " 日本語で答えてください。"
	case "french":
		return " Veuillez répondre en français."
	default:
		return " Please answer in English."
	}
}

// CanonicalLanguage maps user input onto one of Languages, defaulting to fallback.
func CanonicalLanguage(language, fallback string) string {
	l := strings.TrimSpace(language)
	for _, known := range Languages {
		if strings.EqualFold(l, known) {
			return known
		}
	}
	for _, known := range Languages {
		if strings.EqualFold(strings.TrimSpace(fallback), known) {
			return known
		}
	}
	return "English"
}
