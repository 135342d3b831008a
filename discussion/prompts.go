package discussion

import (
	"fmt"
	"strings"

	"github.com/hitolab/gdflow/llm"
	"github.com/hitolab/gdflow/types"
)

// KickoffText is spoken after the introduction round to hand the floor
// to the facilitator.
const KickoffText = "それでは、自己紹介が終わりましたので、ファシリテーターの進行でディスカッションを始めてください。"

var archetypeStyles = map[types.Archetype]string{
	types.ArchetypeAssertive: "積極的で、自分から意見やアイデアをどんどん出します。議論を前に進めることを好みます。",
	types.ArchetypeCautious:  "慎重で、リスクや実現可能性を重視します。他の意見に対して懸念点を指摘することがあります。",
	types.ArchetypePassive:   "消極的で、自分からはあまり発言しません。意見を求められたときは短く答えます。",
}

// personaSystem builds the system prompt for a persona's speaking
// turns.
func personaSystem(p *types.Participant, theme string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "あなたは「%s」という名前で、グループディスカッションに参加しています。\n", p.ID)
	fmt.Fprintf(&b, "ディスカッションのテーマ: %s\n", theme)
	if style, ok := archetypeStyles[p.Persona.Archetype]; ok {
		fmt.Fprintf(&b, "あなたの性格: %s\n", style)
	}
	if p.Persona.Description != "" {
		fmt.Fprintf(&b, "補足: %s\n", p.Persona.Description)
	}
	if p.AssignedRole == types.RoleRecorder {
		b.WriteString("あなたは書記を担当しています。\n")
	}
	b.WriteString("発言は話し言葉で2〜3文以内に収めてください。")
	b.WriteString("箇条書きや記号、マークダウンは使わないでください。")
	return b.String()
}

const (
	introInstruction        = "ディスカッションの開始前です。名前と一言だけの簡単な自己紹介をしてください。"
	reactionInstruction     = "直前の発言を踏まえて、あなたの意見や反応を述べてください。"
	selfInitiateInstruction = "場が静かになっています。議論を前に進める発言を自分から切り出してください。"
)

// conversationMessages renders the transcript window for a persona's
// turn, followed by the instruction for this turn.
func conversationMessages(window []types.Utterance, selfID, instruction string) []llm.Message {
	msgs := make([]llm.Message, 0, len(window)+1)
	for _, u := range window {
		role := llm.RoleUser
		content := fmt.Sprintf("%s: %s", u.SpeakerID, u.Text)
		if u.SpeakerID == selfID {
			role = llm.RoleAssistant
			content = u.Text
		}
		msgs = append(msgs, llm.Message{Role: role, Content: content})
	}
	return append(msgs, llm.Message{Role: llm.RoleUser, Content: instruction})
}
