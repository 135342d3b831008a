package score

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/types"
)

const minutesSystemPrompt = `あなたはグループディスカッションの書記です。
発言記録から議事録を作成してください。決定事項、主な意見、未解決の論点を含め、
発言記録にない内容は書かないでください。マークダウンで出力してください。`

// Minutes produces the session minutes, but only when a participant
// actually claimed the recorder role during the discussion. ok reports
// whether a recorder existed; without one there are no minutes, which
// is itself feedback about the facilitator's role delegation.
func (s *Scorer) Minutes(ctx context.Context, sess *session.Session) (text string, ok bool, err error) {
	recorder, claimed := sess.Roster.RoleHolder(types.RoleRecorder)
	if !claimed {
		return "", false, nil
	}

	resp, err := s.provider.Generate(ctx, &llm.GenerateRequest{
		System: minutesSystemPrompt,
		Messages: []llm.Message{{
			Role: llm.RoleUser,
			Content: fmt.Sprintf("テーマ: %s\n書記: %s\n発言記録:\n%s",
				sess.Theme, recorder.ID, renderNumbered(sess.Transcript.All())),
		}},
	})
	if err != nil {
		s.logger.Warn("minutes generation failed, using plain transcript form", zap.Error(err))
		return plainMinutes(sess, recorder.ID), true, nil
	}
	return strings.TrimSpace(resp.Text), true, nil
}

func plainMinutes(sess *session.Session, recorderID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# 議事録\n\nテーマ: %s\n書記: %s\n\n## 発言記録\n", sess.Theme, recorderID)
	for _, u := range sess.Transcript.All() {
		fmt.Fprintf(&b, "- %s: %s\n", u.SpeakerID, u.Text)
	}
	return b.String()
}
