package policy

import "regexp"

var (
	emailPattern    = regexp.MustCompile(`[a-zA-Z0-9._%+\-]+@[a-zA-Z0-9.\-]+\.[a-zA-Z]{2,}`)
	residentPattern = regexp.MustCompile(`\b\d{17}[\dXx]\b`)
	mobilePattern   = regexp.MustCompile(`\b1[3-9]\d{9}\b`)
	phonePattern    = regexp.MustCompile(`\+?[0-9][0-9\-() ]{7,}[0-9]`)
	cardPattern     = regexp.MustCompile(`\b(?:\d[ -]*?){13,19}\b`)
)

// RedactPII masks common high-risk PII patterns in transcripts and replies.
func RedactPII(input string) (redacted string, changed bool) {
	out := input
	apply := func(p *regexp.Regexp, marker string) {
		next := p.ReplaceAllString(out, marker)
		changed = changed || next != out
		out = next
	}

	apply(emailPattern, "[REDACTED_EMAIL]")
	// Resident id numbers are 18 digits and would otherwise match as cards.
	apply(residentPattern, "[REDACTED_ID]")
	// Cards before phones so long digit runs are not classified as phones.
	apply(cardPattern, "[REDACTED_CARD]")
	apply(mobilePattern, "[REDACTED_PHONE]")
	apply(phonePattern, "[REDACTED_PHONE]")

	return out, changed
}
