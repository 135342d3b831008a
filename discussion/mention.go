package discussion

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hitolab/gdflow/llm"
)

// Mention is the structured verdict on who an utterance addresses.
type Mention struct {
	Mentioned        []string `json:"mentioned"`
	IsDirectQuestion bool     `json:"is_direct_question"`
}

// MentionClassifier detects addressed participants in an utterance.
type MentionClassifier interface {
	Classify(ctx context.Context, text string, names []string) (Mention, error)
}

type llmMentionClassifier struct {
	provider llm.Provider
	logger   *zap.Logger
}

// NewMentionClassifier builds the LLM-backed classifier. Names coming
// back that are not on the roster are discarded, so a hallucinated
// mention can never route a turn to a participant that does not exist.
func NewMentionClassifier(provider llm.Provider, logger *zap.Logger) MentionClassifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &llmMentionClassifier{
		provider: provider,
		logger:   logger.With(zap.String("component", "mention")),
	}
}

const mentionSystemPrompt = `あなたはグループディスカッションの発言分析器です。
発言の中で名前を挙げられた参加者と、その発言が特定の相手への直接の質問かどうかを判定してください。
参加者リストにない名前は含めないでください。
次のJSONのみを返してください: {"mentioned": ["名前", ...], "is_direct_question": true/false}`

func (c *llmMentionClassifier) Classify(ctx context.Context, text string, names []string) (Mention, error) {
	var out Mention
	err := c.provider.GenerateStructured(ctx, &llm.GenerateRequest{
		System: mentionSystemPrompt,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf("参加者リスト: %s\n発言: %s",
				strings.Join(names, ", "), text),
		}},
	}, &out)
	if err != nil {
		c.logger.Debug("mention classification failed", zap.Error(err))
		return Mention{}, err
	}
	out.Mentioned = lo.Filter(out.Mentioned, func(n string, _ int) bool {
		return lo.Contains(names, n)
	})
	if len(out.Mentioned) == 0 {
		out.IsDirectQuestion = false
	}
	return out, nil
}
