package flow

import (
	"strings"

	"github.com/camperolabs/ordering/session"
)

// ValidateHistory checks that every turn carries at least a user message
// or a bot reply. A history failing this was corrupted outside the store.
func ValidateHistory(history []session.Turn) bool {
	for _, turn := range history {
		if turn.User == "" && turn.Bot == "" {
			return false
		}
	}
	return true
}

// BuildPrompt replays the conversation into the completion prompt and
// appends the user's new message. The initial prompt turn (bot only) is
// emitted bare; full exchanges use the Usuario/Bot framing the assistant
// was instructed with.
func BuildPrompt(history []session.Turn, userMessage string) string {
	var lines []string
	for _, turn := range history {
		switch {
		case turn.User != "" && turn.Bot != "":
			lines = append(lines, "Usuario: "+turn.User+"\nBot: "+turn.Bot)
		case turn.Bot != "":
			lines = append(lines, turn.Bot)
		case turn.User != "":
			lines = append(lines, "Usuario: "+turn.User)
		}
	}
	lines = append(lines, "Usuario: "+userMessage+"\nBot:")
	return strings.Join(lines, "\n")
}

// TruncateHistory trims the conversation to a message cap and a token
// budget, dropping the oldest exchanges first. The initial prompt turn is
// always kept: without it the assistant loses the menu and its
// instructions.
func TruncateHistory(history []session.Turn, tokenLimit, messageLimit int) []session.Turn {
	if len(history) <= 1 {
		return history
	}
	head, tail := history[0], history[1:]

	if messageLimit > 0 && len(tail) > messageLimit {
		tail = tail[len(tail)-messageLimit:]
	}

	if tokenLimit > 0 {
		budget := tokenLimit - EstimateTokens(head.Bot)
		total := 0
		for _, turn := range tail {
			total += EstimateTokens(turn.User) + EstimateTokens(turn.Bot)
		}
		for total > budget && len(tail) > 0 {
			total -= EstimateTokens(tail[0].User) + EstimateTokens(tail[0].Bot)
			tail = tail[1:]
		}
	}

	return append([]session.Turn{head}, tail...)
}

// EstimateTokens estimates the token count for a given text using a
// Unicode-aware heuristic: ASCII characters weigh ~4 per token, non-ASCII
// (accented Spanish, emoji) ~1 per token.
func EstimateTokens(text string) int {
	weight := 0
	for _, r := range text {
		switch {
		case r <= 127:
			weight += 1
		default:
			weight += 4
		}
	}
	return (weight + 3) / 4
}
