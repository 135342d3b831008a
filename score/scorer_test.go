package score

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/testutil/mocks"
	"github.com/hitolab/gdflow/types"
)

func scoringConfig() config.ScoringConfig {
	return config.ScoringConfig{JudgeTimeout: time.Second, WindowTokens: 6000}
}

func sessionWithTranscript(lines ...[2]string) *session.Session {
	sess := session.New("リモートワーク導入の是非",
		session.NewRoster(
			types.NewHuman("facilitator"),
			types.NewPersona("田中", types.PersonaProfile{ActivityLevel: 0.8}),
		), 10*time.Minute)
	for _, l := range lines {
		sess.Transcript.Append(l[0], l[1])
	}
	return sess
}

func TestScore_JudgePath(t *testing.T) {
	provider := mocks.NewLLMProvider().WithResponses(`{
		"goal_setting": {"achieved": true, "justification": "冒頭でゴールを提示", "utterance_indexes": [0]},
		"role_delegation": {"achieved": false},
		"opinion_elicitation": {"achieved": true, "utterance_indexes": [1, 99]},
		"summarizing": {"achieved": false},
		"time_management": {"achieved": true, "utterance_indexes": [2]}
	}`)
	sess := sessionWithTranscript(
		[2]string{"facilitator", "本日のゴールは方針を一つに絞ることです"},
		[2]string{"facilitator", "田中さんはどう思いますか"},
		[2]string{"facilitator", "残り5分です"},
	)

	score := New(provider, scoringConfig(), nil).Score(context.Background(), sess)

	assert.Equal(t, types.ScoreMethodJudge, score.Method)
	assert.Equal(t, 3, score.Total)
	assert.Len(t, score.Items, 5, "every rubric item present regardless of verdicts")
	assert.True(t, score.Items[types.RubricGoalSetting].Achieved)
	// the hallucinated out-of-range index is dropped
	assert.Equal(t, []int{1}, score.Items[types.RubricOpinionElicitation].UtteranceIndexes)
}

func TestScore_FallsBackToKeywordsOnJudgeFailure(t *testing.T) {
	provider := mocks.NewLLMProvider().WithError(types.NewError(types.ErrUpstreamError, "down"))
	sess := sessionWithTranscript(
		[2]string{"facilitator", "今日のゴールを決めましょう"},
		[2]string{"facilitator", "田中さんのご意見を聞かせてください"},
		[2]string{"田中", "残り時間はあと少しですね"}, // AI utterances never score
	)

	score := New(provider, scoringConfig(), nil).Score(context.Background(), sess)

	assert.Equal(t, types.ScoreMethodKeyword, score.Method)
	assert.Len(t, score.Items, 5)
	assert.True(t, score.Items[types.RubricGoalSetting].Achieved)
	assert.True(t, score.Items[types.RubricOpinionElicitation].Achieved)
	assert.False(t, score.Items[types.RubricTimeManagement].Achieved,
		"time talk by a persona does not credit the facilitator")
	assert.Equal(t, 2, score.Total)
}

func TestKeywordScore_TimeReference(t *testing.T) {
	score := KeywordScore("facilitator", []types.Utterance{
		{SpeakerID: "facilitator", Text: "残り3分なのでまとめに入ります", Sequence: 0},
	})
	assert.True(t, score.Items[types.RubricTimeManagement].Achieved)
	assert.True(t, score.Items[types.RubricSummarizing].Achieved)
	assert.Equal(t, []int{0}, score.Items[types.RubricTimeManagement].UtteranceIndexes)
}

func TestScore_BothPathsShareShape(t *testing.T) {
	judged := types.NewFacilitationScore(types.ScoreMethodJudge)
	keyword := KeywordScore("facilitator", nil)
	require.Len(t, judged.Items, len(keyword.Items))
	for item := range judged.Items {
		_, ok := keyword.Items[item]
		assert.True(t, ok, "item %s missing from keyword path", item)
	}
}

func TestFeedback_FallbackDerivedFromScore(t *testing.T) {
	provider := mocks.NewLLMProvider().WithError(types.NewError(types.ErrUpstreamError, "down"))
	sess := sessionWithTranscript([2]string{"facilitator", "始めましょう"})

	score := types.NewFacilitationScore(types.ScoreMethodKeyword)
	score.Set(types.RubricGoalSetting, types.ItemVerdict{Achieved: true})

	fb := New(provider, scoringConfig(), nil).Feedback(context.Background(), sess, score)
	assert.Len(t, fb.Good, 1)
	assert.Len(t, fb.More, 4)
	assert.NotEmpty(t, fb.Action)
}

func TestFeedback_JudgePath(t *testing.T) {
	provider := mocks.NewLLMProvider().WithResponses(
		`{"good": ["冒頭の目標設定が明確"], "more": ["発言の少ない参加者への声かけ"], "action": "次回は消極的な参加者を指名してみましょう"}`)
	sess := sessionWithTranscript([2]string{"facilitator", "始めましょう"})

	fb := New(provider, scoringConfig(), nil).Feedback(context.Background(), sess, types.NewFacilitationScore(types.ScoreMethodJudge))
	assert.Equal(t, []string{"冒頭の目標設定が明確"}, fb.Good)
	assert.NotEmpty(t, fb.Action)
}

func TestMinutes_RequiresRecorder(t *testing.T) {
	provider := mocks.NewLLMProvider().WithResponses("# 議事録\n決定事項: なし")
	sess := sessionWithTranscript([2]string{"facilitator", "始めましょう"})
	s := New(provider, scoringConfig(), nil)

	text, ok, err := s.Minutes(context.Background(), sess)
	require.NoError(t, err)
	assert.False(t, ok, "no recorder was appointed")
	assert.Empty(t, text)
	assert.Zero(t, provider.CallCount())

	require.True(t, sess.Roster.ClaimRole(types.RoleRecorder, "田中"))
	text, ok, err = s.Minutes(context.Background(), sess)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, text, "議事録")
}

func TestMinutes_PlainFallback(t *testing.T) {
	provider := mocks.NewLLMProvider().WithError(types.NewError(types.ErrUpstreamError, "down"))
	sess := sessionWithTranscript([2]string{"facilitator", "決を採ります"})
	require.True(t, sess.Roster.ClaimRole(types.RoleRecorder, "田中"))

	text, ok, err := New(provider, scoringConfig(), nil).Minutes(context.Background(), sess)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Contains(t, text, "決を採ります")
	assert.Contains(t, text, "書記: 田中")
}

func TestRenderReport(t *testing.T) {
	score := types.NewFacilitationScore(types.ScoreMethodKeyword)
	score.Set(types.RubricGoalSetting, types.ItemVerdict{Achieved: true, Justification: "キーワード「ゴール」を検出"})
	out := RenderReport("リモートワーク導入の是非", score, Feedback{
		Good:   []string{"目標設定ができていました。"},
		More:   []string{"時間管理を意識してみましょう。"},
		Action: "次回は残り時間を二回アナウンスしてみましょう",
	})
	assert.Contains(t, out, "総合スコア: 1/5 (keyword)")
	assert.Contains(t, out, "[✓] 目標設定")
	assert.Contains(t, out, "[✗] 時間管理")
	assert.Contains(t, out, "## Action")
}
