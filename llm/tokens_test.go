package llm

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTokenEstimator_Count(t *testing.T) {
	e := NewTokenEstimator()
	assert.Greater(t, e.Count("the quick brown fox jumps over the lazy dog"), 5)
	assert.Greater(t, e.Count("リモートワークを全社導入すべきか"), 0)
}

func TestTokenEstimator_TrimToBudget(t *testing.T) {
	e := NewTokenEstimator()
	long := strings.Repeat("discussion ", 100)
	msgs := []Message{
		{Role: RoleUser, Content: long},
		{Role: RoleAssistant, Content: long},
		{Role: RoleUser, Content: "latest question"},
	}

	trimmed := e.TrimToBudget(msgs, 50)
	require.NotEmpty(t, trimmed)
	// the newest message survives even an impossible budget
	assert.Equal(t, "latest question", trimmed[len(trimmed)-1].Content)
	assert.Less(t, len(trimmed), len(msgs))

	// a generous budget keeps everything
	assert.Len(t, e.TrimToBudget(msgs, 1_000_000), 3)
}
