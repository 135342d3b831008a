package score

import (
	"context"
	"fmt"
	"strings"

	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/types"
)

// Feedback is the coaching summary handed to the trainee: what worked,
// what to work on, and one concrete next step.
type Feedback struct {
	Good   []string `json:"good"`
	More   []string `json:"more"`
	Action string   `json:"action"`
}

const feedbackSystemPrompt = `あなたはファシリテーション研修のコーチです。
発言記録と評価結果をもとに、受講者へのフィードバックを作成してください。
次の形のJSONのみを返してください:
{"good": ["良かった点", ...], "more": ["改善点", ...], "action": "次回に向けた具体的な一歩"}`

// Feedback builds the coaching summary. When the LLM is unavailable it
// derives one mechanically from the score, so the trainee always gets
// a report.
func (s *Scorer) Feedback(ctx context.Context, sess *session.Session, score types.FacilitationScore) Feedback {
	var out Feedback
	err := s.provider.GenerateStructured(ctx, &llm.GenerateRequest{
		System: feedbackSystemPrompt,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf("テーマ: %s\n評価: %d/5\n発言記録:\n%s",
				sess.Theme, score.Total, renderNumbered(sess.Transcript.All())),
		}},
	}, &out)
	if err == nil && (len(out.Good) > 0 || len(out.More) > 0 || out.Action != "") {
		return out
	}
	s.logger.Warn("feedback generation failed, deriving from score")
	return feedbackFromScore(score)
}

var itemLabels = map[types.RubricItem]string{
	types.RubricGoalSetting:        "目標設定",
	types.RubricRoleDelegation:     "役割分担",
	types.RubricOpinionElicitation: "意見の引き出し",
	types.RubricSummarizing:        "要約・整理",
	types.RubricTimeManagement:     "時間管理",
}

func feedbackFromScore(score types.FacilitationScore) Feedback {
	fb := Feedback{}
	for _, item := range types.RubricItems() {
		label := itemLabels[item]
		if score.Items[item].Achieved {
			fb.Good = append(fb.Good, label+"ができていました。")
		} else {
			fb.More = append(fb.More, label+"を意識してみましょう。")
		}
	}
	if len(fb.More) > 0 {
		fb.Action = "次回はまず" + strings.TrimSuffix(fb.More[0], "を意識してみましょう。") + "から始めてみましょう。"
	} else {
		fb.Action = "この調子で、より深い議論への誘導に挑戦してみましょう。"
	}
	return fb
}

// RenderReport formats the assessment as a readable text report.
func RenderReport(theme string, score types.FacilitationScore, fb Feedback) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# ファシリテーション評価レポート\n\n")
	fmt.Fprintf(&b, "テーマ: %s\n", theme)
	fmt.Fprintf(&b, "総合スコア: %d/5 (%s)\n\n", score.Total, score.Method)
	b.WriteString("## 評価項目\n")
	for _, item := range types.RubricItems() {
		v := score.Items[item]
		mark := "✗"
		if v.Achieved {
			mark = "✓"
		}
		fmt.Fprintf(&b, "- [%s] %s", mark, itemLabels[item])
		if v.Justification != "" {
			fmt.Fprintf(&b, ": %s", v.Justification)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n## Good\n")
	for _, g := range fb.Good {
		fmt.Fprintf(&b, "- %s\n", g)
	}
	b.WriteString("\n## More\n")
	for _, m := range fb.More {
		fmt.Fprintf(&b, "- %s\n", m)
	}
	fmt.Fprintf(&b, "\n## Action\n%s\n", fb.Action)
	return b.String()
}
