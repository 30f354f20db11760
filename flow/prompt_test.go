package flow

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/camperolabs/ordering/session"
)

func TestValidateHistory(t *testing.T) {
	valid := []session.Turn{
		{Bot: "prompt", UserID: "u1"},
		{User: "hola", Bot: "buenas"},
		{User: "una duda"},
	}
	assert.True(t, ValidateHistory(valid))
	assert.True(t, ValidateHistory(nil))

	corrupted := []session.Turn{
		{Bot: "prompt"},
		{UserID: "u1"}, // neither side of the exchange present
	}
	assert.False(t, ValidateHistory(corrupted))
}

func TestBuildPrompt(t *testing.T) {
	history := []session.Turn{
		{Bot: "Eres un camarero virtual.", UserID: "u1"},
		{User: "hola", Bot: "¡Hola! ¿Número de mesa?"},
	}

	prompt := BuildPrompt(history, "mesa 4")

	lines := strings.Split(prompt, "\n")
	require.GreaterOrEqual(t, len(lines), 4)
	assert.Equal(t, "Eres un camarero virtual.", lines[0])
	assert.Equal(t, "Usuario: hola", lines[1])
	assert.Equal(t, "Bot: ¡Hola! ¿Número de mesa?", lines[2])
	assert.Equal(t, "Usuario: mesa 4", lines[3])
	assert.True(t, strings.HasSuffix(prompt, "Bot:"))
}

func TestTruncateHistory_MessageCap(t *testing.T) {
	history := []session.Turn{{Bot: "prompt", UserID: "u1"}}
	for i := 0; i < 10; i++ {
		history = append(history, session.Turn{User: "u", Bot: "b"})
	}

	got := TruncateHistory(history, 0, 4)
	require.Len(t, got, 5)
	assert.Equal(t, "prompt", got[0].Bot) // initial turn always survives
}

func TestTruncateHistory_TokenBudgetDropsOldestFirst(t *testing.T) {
	long := strings.Repeat("palabras y palabras ", 50)
	history := []session.Turn{
		{Bot: "prompt", UserID: "u1"},
		{User: long, Bot: long},
		{User: "último", Bot: "vale"},
	}

	got := TruncateHistory(history, EstimateTokens("prompt")+EstimateTokens("último")+EstimateTokens("vale")+1, 0)
	require.Len(t, got, 2)
	assert.Equal(t, "prompt", got[0].Bot)
	assert.Equal(t, "último", got[1].User)
}

func TestTruncateHistory_ShortHistoryUntouched(t *testing.T) {
	history := []session.Turn{{Bot: "prompt", UserID: "u1"}}
	assert.Equal(t, history, TruncateHistory(history, 10, 2))
}

func TestEstimateTokens(t *testing.T) {
	assert.Equal(t, 0, EstimateTokens(""))
	assert.Equal(t, 1, EstimateTokens("hola"))     // 4 ASCII chars
	assert.Equal(t, 4, EstimateTokens("ñáéí"))     // non-ASCII weigh ~1 per token
	assert.Equal(t, 3, EstimateTokens("hola ahí")) // mixed
}
