// Package gdflow is a conversation orchestration engine for practicing
// group-discussion facilitation: one human facilitator talks with a
// handful of AI personas over voice, and the engine scores the
// facilitation afterwards.
package gdflow

import (
	"math/rand"

	"github.com/hitolab/gdflow/types"
)

// Version is the engine version.
const Version = "0.1.0"

var surnames = []string{"田中", "鈴木", "佐藤", "高橋", "伊藤", "渡辺", "山本", "中村"}

var themes = []string{
	"リモートワークを全社導入すべきか",
	"新入社員の研修期間を短縮すべきか",
	"社内公用語を英語にすべきか",
	"週休3日制を導入すべきか",
	"オフィスのフリーアドレス化を進めるべきか",
	"副業を全面的に解禁すべきか",
}

// Themes returns the built-in discussion theme pool.
func Themes() []string {
	out := make([]string, len(themes))
	copy(out, themes)
	return out
}

// RandomTheme draws one theme from the pool.
func RandomTheme(seed int64) string {
	rng := rand.New(rand.NewSource(seed))
	return themes[rng.Intn(len(themes))]
}

type personaTemplate struct {
	archetype   types.Archetype
	activity    float64
	description string
	voice       types.VoiceProfile
}

// one of each temperament, so every session has a driver, a brake,
// and someone the facilitator has to draw out
var personaTemplates = []personaTemplate{
	{
		archetype:   types.ArchetypeAssertive,
		activity:    0.8,
		description: "アイデアを出して議論を引っ張るタイプ",
		voice:       types.VoiceProfile{Name: "ja-JP-Neural2-C", Pitch: 0, Rate: 1.1},
	},
	{
		archetype:   types.ArchetypeCautious,
		activity:    0.5,
		description: "実現可能性やリスクを確認するタイプ",
		voice:       types.VoiceProfile{Name: "ja-JP-Neural2-B", Pitch: -2.0, Rate: 1.0},
	},
	{
		archetype:   types.ArchetypePassive,
		activity:    0.2,
		description: "振られたときだけ短く答えるタイプ",
		voice:       types.VoiceProfile{Name: "ja-JP-Neural2-D", Pitch: 2.0, Rate: 0.95},
	},
}

// DefaultPersonas builds the standard three-persona lineup with
// distinct surnames drawn from the seed.
func DefaultPersonas(seed int64) []*types.Participant {
	rng := rand.New(rand.NewSource(seed))
	names := rng.Perm(len(surnames))

	out := make([]*types.Participant, len(personaTemplates))
	for i, tpl := range personaTemplates {
		out[i] = types.NewPersona(surnames[names[i]], types.PersonaProfile{
			Archetype:     tpl.archetype,
			ActivityLevel: tpl.activity,
			Description:   tpl.description,
			Voice:         tpl.voice,
		})
	}
	return out
}
