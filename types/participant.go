package types

// ParticipantKind distinguishes the human facilitator from AI personas.
type ParticipantKind string

const (
	KindHuman     ParticipantKind = "human"
	KindAIPersona ParticipantKind = "ai_persona"
)

// Role is a shared discussion role a participant may hold.
type Role string

const (
	RoleNone       Role = ""
	RoleRecorder   Role = "recorder"
	RoleTimeKeeper Role = "time_keeper"
)

// Archetype tags a persona's behavioral pattern.
type Archetype string

const (
	ArchetypeAssertive Archetype = "assertive" // speaks first, speaks long
	ArchetypeCautious  Archetype = "cautious"  // raises risks and feasibility
	ArchetypePassive   Archetype = "passive"   // answers only when addressed
)

// VoiceProfile selects a synthesis voice for a participant.
type VoiceProfile struct {
	Name  string  `json:"name" yaml:"name"`
	Pitch float64 `json:"pitch" yaml:"pitch"` // semitones, -20.0..20.0
	Rate  float64 `json:"rate" yaml:"rate"`   // speaking rate multiplier
}

// PersonaProfile describes an AI participant's fixed behavior.
// ActivityLevel in [0,1] drives both speaking probability and timing:
// higher means the persona jumps in earlier and more often.
type PersonaProfile struct {
	Archetype     Archetype    `json:"archetype" yaml:"archetype"`
	ActivityLevel float64      `json:"activity_level" yaml:"activity_level"`
	Description   string       `json:"description" yaml:"description"`
	Voice         VoiceProfile `json:"voice" yaml:"voice"`
}

// Participant is a member of the discussion. ID doubles as the display
// name used to address the participant in speech. AssignedRole is
// mutated at most once from RoleNone; all mutation goes through the
// session roster so that the first successful claim wins.
type Participant struct {
	ID           string          `json:"id"`
	Kind         ParticipantKind `json:"kind"`
	Persona      PersonaProfile  `json:"persona,omitempty"`
	AssignedRole Role            `json:"assigned_role,omitempty"`
}

// IsHuman reports whether the participant is the human facilitator.
func (p *Participant) IsHuman() bool { return p.Kind == KindHuman }

// NewHuman creates the human facilitator participant.
func NewHuman(id string) *Participant {
	return &Participant{ID: id, Kind: KindHuman}
}

// NewPersona creates an AI participant with the given profile.
func NewPersona(id string, profile PersonaProfile) *Participant {
	return &Participant{ID: id, Kind: KindAIPersona, Persona: profile}
}
