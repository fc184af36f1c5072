package chat

// EstimateTokens estimates the token count of text. ASCII runes weigh about a
// quarter token, everything else about one token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		if r <= 127 {
			weight++
		} else {
			weight += 4
		}
	}
	return (weight + 3) / 4
}

// TrimHistory keeps the newest exchanges within maxTurns and tokenLimit.
// A limit of zero disables that bound.
func TrimHistory(history []Exchange, maxTurns, tokenLimit int) []Exchange {
	if len(history) == 0 {
		return history
	}
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	if tokenLimit <= 0 {
		return history
	}

	total := 0
	for _, ex := range history {
		total += exchangeTokens(ex)
	}
	for total > tokenLimit && len(history) > 0 {
		total -= exchangeTokens(history[0])
		history = history[1:]
	}
	return history
}

func exchangeTokens(ex Exchange) int {
	return EstimateTokens(ex.User) + EstimateTokens(ex.Reply)
}
