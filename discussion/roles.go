package discussion

import (
	"strings"

	"github.com/hitolab/gdflow/types"
)

// role self-declaration patterns, Japanese and English
var roleClaims = []struct {
	role    types.Role
	subject []string
	verb    []string
	phrases []string
}{
	{
		role:    types.RoleRecorder,
		subject: []string{"書記", "議事録"},
		verb:    []string{"担当", "やります", "務め", "引き受け", "取ります", "します"},
		phrases: []string{"i'll take notes", "i will take notes", "i'll be the recorder", "i will be the recorder", "i'll take the minutes"},
	},
	{
		role:    types.RoleTimeKeeper,
		subject: []string{"タイムキーパー", "時間管理"},
		verb:    []string{"担当", "やります", "務め", "引き受け", "します"},
		phrases: []string{"i'll keep time", "i'll be the timekeeper", "i will be the timekeeper"},
	},
}

// DetectRoleClaim scans an AI utterance for a self-declared role, like
// a persona volunteering to keep the minutes. Only the claim is
// detected here; whether it sticks is the roster's first-claim-wins
// call.
func DetectRoleClaim(text string) (types.Role, bool) {
	lower := strings.ToLower(text)
	for _, rc := range roleClaims {
		for _, p := range rc.phrases {
			if strings.Contains(lower, p) {
				return rc.role, true
			}
		}
		for _, sub := range rc.subject {
			if !strings.Contains(text, sub) {
				continue
			}
			for _, v := range rc.verb {
				if strings.Contains(text, v) {
					return rc.role, true
				}
			}
		}
	}
	return types.RoleNone, false
}
