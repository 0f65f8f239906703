package assistant

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jarvis-hub/jarvis/internal/domain/message"
)

func TestBuildPrompt(t *testing.T) {
	history := []message.Exchange{
		{UserText: "hi", JarvisText: "hello"},
		{UserText: "", JarvisText: "reminder"},
	}

	turns := BuildPrompt(history, "tony", "what's up")

	require.Len(t, turns, 5)
	assert.Equal(t, RoleSystem, turns[0].Role)
	assert.Contains(t, turns[0].Content, "tony")
	assert.Equal(t, Turn{Role: RoleUser, Content: "hi"}, turns[1])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "hello"}, turns[2])
	assert.Equal(t, Turn{Role: RoleAssistant, Content: "reminder"}, turns[3])
	assert.Equal(t, Turn{Role: RoleUser, Content: "what's up"}, turns[4])
}

func TestBuildPrompt_TrimsHistory(t *testing.T) {
	var history []message.Exchange
	for i := 0; i < HistoryLimit+5; i++ {
		history = append(history, message.Exchange{UserText: fmt.Sprintf("q%d", i)})
	}

	turns := BuildPrompt(history, "", "now")

	require.Len(t, turns, HistoryLimit+2)
	assert.Equal(t, SystemPrompt, turns[0].Content)
	assert.Equal(t, "q5", turns[1].Content)
}

func TestNewExchange(t *testing.T) {
	ex := NewExchange("tony", "ping", "pong")
	assert.Equal(t, "ping", ex.UserText)
	assert.Equal(t, "pong", ex.JarvisText)
	assert.False(t, ex.Date.IsZero())
}
