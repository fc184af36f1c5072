package voice

import (
	"regexp"
	"strings"
	"unicode"
)

// speechRules rewrite markup in a reply into plain readable text. Applied in order.
var speechRules = []struct {
	re   *regexp.Regexp
	repl string
}{
	{regexp.MustCompile("(?s)```.*?```"), " "},
	{regexp.MustCompile("`([^`]*)`"), "$1"},
	{regexp.MustCompile(`!\[[^\]]*\]\([^)]*\)`), " "},
	{regexp.MustCompile(`\[([^\]]*)\]\([^)]*\)`), "$1"},
	{regexp.MustCompile(`https?://\S+`), " "},
	// Chat template tokens and stray tags such as <|assistant|> or </s>.
	{regexp.MustCompile(`<\|?[A-Za-z_/]+\|?>`), " "},
	{regexp.MustCompile(`(?m)^[ \t]{0,3}(?:#{1,6}|[-*+]|\d+[.)])[ \t]+`), ""},
	{regexp.MustCompile(`\*{1,3}([^*\n]+)\*{1,3}`), "$1"},
}

const (
	// speechKeepPunct is read as prosody by both synthesizers.
	speechKeepPunct = ".,!?:;'\"-()%，。！？、：；“”（）「」"
	// speechBreakRunes separate words but are never spoken.
	speechBreakRunes = "*_\\/|#~<>=+"
)

type runeClass int

const (
	runeKeep runeClass = iota
	runeBreak
	runeDrop
)

// sanitizeSpeechText turns a dialogue reply into text fit for synthesis.
func sanitizeSpeechText(raw string) string {
	for _, rule := range speechRules {
		raw = rule.re.ReplaceAllString(raw, rule.repl)
	}

	var b strings.Builder
	b.Grow(len(raw))
	space := false
	for _, r := range raw {
		switch classifySpeechRune(r) {
		case runeDrop:
		case runeBreak:
			space = b.Len() > 0
		default:
			if space {
				b.WriteByte(' ')
				space = false
			}
			b.WriteRune(r)
		}
	}
	return b.String()
}

func classifySpeechRune(r rune) runeClass {
	switch {
	case unicode.IsSpace(r), strings.ContainsRune(speechBreakRunes, r):
		return runeBreak
	case strings.ContainsRune(speechKeepPunct, r):
		return runeKeep
	case r == '\ufe0f', r == '\u20e3', unicode.IsControl(r), unicode.In(r, unicode.Cf, unicode.So, unicode.Sm, unicode.Sk, unicode.Co):
		return runeDrop
	case unicode.IsPunct(r):
		return runeBreak
	default:
		return runeKeep
	}
}
