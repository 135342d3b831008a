package discussion

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitolab/gdflow/testutil/mocks"
	"github.com/hitolab/gdflow/types"
)

func TestMentionClassifier_StripsUnknownNames(t *testing.T) {
	provider := mocks.NewLLMProvider().WithResponses(
		`{"mentioned": ["田中", "架空の人"], "is_direct_question": true}`)
	c := NewMentionClassifier(provider, nil)

	m, err := c.Classify(context.Background(), "田中さんはどう思いますか？", []string{"facilitator", "田中", "鈴木"})
	require.NoError(t, err)
	assert.Equal(t, []string{"田中"}, m.Mentioned)
	assert.True(t, m.IsDirectQuestion)
}

func TestMentionClassifier_AllNamesUnknownDropsDirectFlag(t *testing.T) {
	provider := mocks.NewLLMProvider().WithResponses(
		`{"mentioned": ["佐藤"], "is_direct_question": true}`)
	c := NewMentionClassifier(provider, nil)

	m, err := c.Classify(context.Background(), "佐藤さん、どうぞ", []string{"facilitator", "田中"})
	require.NoError(t, err)
	assert.Empty(t, m.Mentioned)
	assert.False(t, m.IsDirectQuestion, "a direct question to nobody real is no direct question")
}

func TestMentionClassifier_ProviderFailure(t *testing.T) {
	provider := mocks.NewLLMProvider().WithError(types.NewError(types.ErrUpstreamError, "down"))
	c := NewMentionClassifier(provider, nil)

	m, err := c.Classify(context.Background(), "どう思いますか", []string{"田中"})
	require.Error(t, err)
	assert.Empty(t, m.Mentioned)
	assert.False(t, m.IsDirectQuestion)
}
