// Package score assesses the facilitator after a session: five rubric
// items judged by an LLM, with a deterministic keyword fallback that
// produces the identical shape so reporting never cares which path ran.
package score

import (
	"context"
	"fmt"
	"strings"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/hitolab/gdflow/config"
	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/session"
	"github.com/hitolab/gdflow/types"
)

// Scorer produces the post-session facilitation assessment.
type Scorer struct {
	provider  llm.Provider
	cfg       config.ScoringConfig
	estimator *llm.TokenEstimator
	logger    *zap.Logger
}

// New creates a scorer.
func New(provider llm.Provider, cfg config.ScoringConfig, logger *zap.Logger) *Scorer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Scorer{
		provider:  provider,
		cfg:       cfg,
		estimator: llm.NewTokenEstimator(),
		logger:    logger.With(zap.String("component", "scorer")),
	}
}

// Score judges all five rubric items in one batched call and falls
// back to keyword matching when the judge is unavailable.
func (s *Scorer) Score(ctx context.Context, sess *session.Session) types.FacilitationScore {
	facilitatorID := sess.Roster.Human().ID
	transcript := sess.Transcript.All()

	judged, err := s.judge(ctx, facilitatorID, transcript)
	if err != nil {
		s.logger.Warn("judge unavailable, falling back to keyword scoring", zap.Error(err))
		return KeywordScore(facilitatorID, transcript)
	}
	return judged
}

const judgeSystemPrompt = `あなたはグループディスカッションのファシリテーション評価者です。
発言記録を読み、ファシリテーターが以下の5項目を実施できたかを判定してください。
- goal_setting: 議論の目標やゴールを設定した
- role_delegation: 書記などの役割分担を行った
- opinion_elicitation: 参加者から意見を引き出した
- summarizing: 議論を要約・整理した
- time_management: 残り時間に言及し時間を管理した
各項目について {"achieved": true/false, "justification": "根拠", "utterance_indexes": [発言番号]} を返してください。
次の形のJSONのみを返してください:
{"goal_setting": {...}, "role_delegation": {...}, "opinion_elicitation": {...}, "summarizing": {...}, "time_management": {...}}`

func (s *Scorer) judge(ctx context.Context, facilitatorID string, transcript []types.Utterance) (types.FacilitationScore, error) {
	if s.cfg.JudgeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.cfg.JudgeTimeout)
		defer cancel()
	}

	rendered := renderNumbered(transcript)
	if s.cfg.WindowTokens > 0 {
		msgs := s.estimator.TrimToBudget([]llm.Message{{Role: llm.RoleUser, Content: rendered}}, s.cfg.WindowTokens)
		rendered = msgs[len(msgs)-1].Content
	}

	var out map[string]types.ItemVerdict
	err := s.provider.GenerateStructured(ctx, &llm.GenerateRequest{
		System: judgeSystemPrompt,
		Messages: []llm.Message{{
			Role:    llm.RoleUser,
			Content: fmt.Sprintf("ファシリテーター: %s\n発言記録:\n%s", facilitatorID, rendered),
		}},
	}, &out)
	if err != nil {
		return types.FacilitationScore{}, err
	}

	score := types.NewFacilitationScore(types.ScoreMethodJudge)
	for _, item := range types.RubricItems() {
		v, ok := out[string(item)]
		if !ok {
			continue
		}
		v.UtteranceIndexes = lo.Filter(v.UtteranceIndexes, func(i int, _ int) bool {
			return i >= 0 && i < len(transcript)
		})
		score.Set(item, v)
	}
	return score, nil
}

// keyword phrases per rubric item, Japanese and English
var keywordRules = map[types.RubricItem][]string{
	types.RubricGoalSetting:        {"目標", "ゴール", "目的", "決めましょう", "goal"},
	types.RubricRoleDelegation:     {"書記", "タイムキーパー", "役割", "担当", "お願いし", "role"},
	types.RubricOpinionElicitation: {"どう思い", "ご意見", "意見を", "いかがですか", "聞かせて", "what do you think"},
	types.RubricSummarizing:        {"まとめ", "整理し", "要するに", "つまり", "summar"},
	types.RubricTimeManagement:     {"残り", "時間", "あと", "time"},
}

// KeywordScore is the deterministic fallback: scan the facilitator's
// own utterances for rubric phrases. It returns the same shape as the
// judge path.
func KeywordScore(facilitatorID string, transcript []types.Utterance) types.FacilitationScore {
	score := types.NewFacilitationScore(types.ScoreMethodKeyword)
	for _, item := range types.RubricItems() {
		verdict := types.ItemVerdict{}
		for _, u := range transcript {
			if u.SpeakerID != facilitatorID {
				continue
			}
			lower := strings.ToLower(u.Text)
			for _, kw := range keywordRules[item] {
				if strings.Contains(lower, kw) || strings.Contains(u.Text, kw) {
					verdict.Achieved = true
					verdict.UtteranceIndexes = append(verdict.UtteranceIndexes, u.Sequence)
					if verdict.Justification == "" {
						verdict.Justification = fmt.Sprintf("キーワード「%s」を検出", kw)
					}
					break
				}
			}
		}
		score.Set(item, verdict)
	}
	return score
}

func renderNumbered(transcript []types.Utterance) string {
	var b strings.Builder
	for _, u := range transcript {
		fmt.Fprintf(&b, "[%d] %s: %s\n", u.Sequence, u.SpeakerID, u.Text)
	}
	return b.String()
}
